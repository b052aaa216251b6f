package jobs

import (
	"time"

	"github.com/Aleph-Alpha/lexgraph/v1/corpus"
	"github.com/Aleph-Alpha/lexgraph/v1/runstore"
)

// Type is the kind of work a job performs.
type Type string

const (
	TypeEmbedding  Type = "embedding"
	TypeClustering Type = "clustering"
	TypeTopics     Type = "topics"
)

// Family returns the run family a clustering job type regenerates.
func (t Type) Family() (runstore.Family, bool) {
	switch t {
	case TypeClustering:
		return runstore.FamilyDensity, true
	case TypeTopics:
		return runstore.FamilyTopic, true
	}
	return "", false
}

// Job is the message published on the work queue.
type Job struct {
	ID          string             `json:"id"`
	Type        Type               `json:"type"`
	DocumentIDs []string           `json:"document_ids,omitempty"`
	Encoders    []corpus.EncoderID `json:"encoders,omitempty"`
	EnqueuedAt  time.Time          `json:"enqueued_at"`
}

// Handle is returned to the caller that triggered a job.
type Handle struct {
	JobID             string        `json:"job_id"`
	Type              Type          `json:"type"`
	EstimatedDuration time.Duration `json:"estimated_duration"`
}

// State is the lifecycle state of a job.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Status is what the tracker records about a job.
type Status struct {
	JobID     string    `json:"job_id"`
	Type      Type      `json:"type"`
	State     State     `json:"state"`
	Reason    string    `json:"reason,omitempty"`
	Attempts  int       `json:"attempts"`
	RunID     string    `json:"run_id,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Result is what a successful handler reports.
type Result struct {
	// RunID is set by clustering and topic jobs.
	RunID string

	// Detail is a short human readable summary.
	Detail string
}
