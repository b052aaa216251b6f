package runstore

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/Aleph-Alpha/lexgraph/v1/corpus"
)

// Family is an algorithm family. Each family has at most one active run.
type Family string

const (
	FamilyDensity Family = "density"
	FamilyTopic   Family = "topic"
)

// Valid reports whether f is a known family.
func (f Family) Valid() bool {
	return f == FamilyDensity || f == FamilyTopic
}

// Status is the lifecycle state of a run.
type Status string

const (
	StatusPending     Status = "PENDING"
	StatusProjecting  Status = "PROJECTING"
	StatusClustering  Status = "CLUSTERING"
	StatusLayoutReady Status = "LAYOUT_READY"
	StatusActive      Status = "ACTIVE"
	StatusFailed      Status = "FAILED"
	StatusInactive    Status = "INACTIVE"
)

var transitions = map[Status][]Status{
	StatusPending:     {StatusProjecting, StatusFailed},
	StatusProjecting:  {StatusClustering, StatusFailed},
	StatusClustering:  {StatusLayoutReady, StatusFailed},
	StatusLayoutReady: {StatusActive, StatusFailed},
	StatusActive:      {StatusInactive},
}

// CanTransition reports whether a run may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// InProgress reports whether s is a state of a run still being computed.
func (s Status) InProgress() bool {
	switch s {
	case StatusPending, StatusProjecting, StatusClustering, StatusLayoutReady:
		return true
	}
	return false
}

var (
	// ErrRunNotFound is returned for an unknown run id.
	ErrRunNotFound = errors.New("runstore: run not found")

	// ErrNoActiveRun is returned when a family has never had a run activated.
	ErrNoActiveRun = errors.New("runstore: no active run")

	// ErrInvalidTransition is returned for a status change the lifecycle forbids.
	ErrInvalidTransition = errors.New("runstore: invalid status transition")

	// ErrLockLost is returned when renewing or releasing a lock the caller no
	// longer holds.
	ErrLockLost = errors.New("runstore: lock not held")
)

// ClusterStat summarises one cluster of a run.
type ClusterStat struct {
	Label             int       `json:"label"`
	Size              int       `json:"size"`
	DominantLegalArea string    `json:"dominant_legal_area,omitempty"`
	Stability         float64   `json:"stability"`
	Name              string    `json:"name,omitempty"`
	Keywords          []string  `json:"keywords,omitempty"`
	KeywordWeights    []float64 `json:"keyword_weights,omitempty"`
}

// Quality holds run-level metrics over non-outlier points. A nil metric is
// undefined for the run, e.g. with fewer than two clusters.
type Quality struct {
	Silhouette       *float64 `json:"silhouette,omitempty"`
	CalinskiHarabasz *float64 `json:"calinski_harabasz,omitempty"`
	DaviesBouldin    *float64 `json:"davies_bouldin,omitempty"`
}

// Run is one clustering or topic computation.
type Run struct {
	ID            string           `json:"id"`
	Family        Family           `json:"family"`
	Algorithm     string           `json:"algorithm"`
	Encoder       corpus.EncoderID `json:"encoder"`
	Parameters    json.RawMessage  `json:"parameters,omitempty"`
	Status        Status           `json:"status"`
	Reason        string           `json:"reason,omitempty"`
	DocumentCount int              `json:"document_count"`
	Stats         []ClusterStat    `json:"cluster_stats,omitempty"`
	Quality       Quality          `json:"quality"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
	ActivatedAt   *time.Time       `json:"activated_at,omitempty"`
}

// Assignment is the placement of one document in a run.
type Assignment struct {
	DocumentID  string  `json:"document_id"`
	Label       int     `json:"label"`
	Probability float64 `json:"probability"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
}

// ActivationEvent announces that a run became the active run of its family.
type ActivationEvent struct {
	Family        Family    `json:"family"`
	RunID         string    `json:"run_id"`
	PreviousRunID string    `json:"previous_run_id,omitempty"`
	Algorithm     string    `json:"algorithm"`
	ActivatedAt   time.Time `json:"activated_at"`
}
