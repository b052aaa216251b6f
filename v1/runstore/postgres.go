package runstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Aleph-Alpha/lexgraph/v1/corpus"
	"github.com/Aleph-Alpha/lexgraph/v1/postgres"
)

// RunRow is the cluster_runs table.
type RunRow struct {
	ID               string        `gorm:"primaryKey;type:text"`
	Family           string        `gorm:"type:text;not null;index:idx_cluster_runs_family_created,priority:1"`
	Algorithm        string        `gorm:"type:text;not null"`
	EncoderID        string        `gorm:"type:text;not null"`
	Parameters       string        `gorm:"type:jsonb;not null;default:'{}'"`
	Status           string        `gorm:"type:text;not null;index"`
	Reason           string        `gorm:"type:text"`
	DocumentCount    int           `gorm:"not null;default:0"`
	Stats            []ClusterStat `gorm:"serializer:json;type:jsonb"`
	Silhouette       *float64
	CalinskiHarabasz *float64
	DaviesBouldin    *float64
	CreatedAt        time.Time `gorm:"index:idx_cluster_runs_family_created,priority:2,sort:desc"`
	UpdatedAt        time.Time
	ActivatedAt      *time.Time

	Assignments []AssignmentRow `gorm:"foreignKey:RunID;references:ID;constraint:OnDelete:CASCADE"`
}

// TableName pins the table name.
func (RunRow) TableName() string { return "cluster_runs" }

// AssignmentRow is the cluster_assignments table.
type AssignmentRow struct {
	RunID       string `gorm:"primaryKey;type:text"`
	DocumentID  string `gorm:"primaryKey;type:text"`
	Label       int    `gorm:"not null;index"`
	Probability float64
	X           float64
	Y           float64
}

// TableName pins the table name.
func (AssignmentRow) TableName() string { return "cluster_assignments" }

// ActiveRunRow is the single-row-per-family active pointer.
type ActiveRunRow struct {
	Family    string `gorm:"primaryKey;type:text"`
	RunID     string `gorm:"type:text;not null"`
	Run       RunRow `gorm:"foreignKey:RunID;references:ID;constraint:OnDelete:RESTRICT"`
	UpdatedAt time.Time
}

// TableName pins the table name.
func (ActiveRunRow) TableName() string { return "active_runs" }

// LockRow is the in-progress guard of a family.
type LockRow struct {
	Family     string    `gorm:"primaryKey;type:text"`
	Owner      string    `gorm:"type:text;not null"`
	AcquiredAt time.Time `gorm:"not null"`
	ExpiresAt  time.Time `gorm:"not null"`
}

// TableName pins the table name.
func (LockRow) TableName() string { return "run_locks" }

// Models returns the gorm models owned by this package, in migration order.
func Models() []interface{} {
	return []interface{}{&RunRow{}, &AssignmentRow{}, &ActiveRunRow{}, &LockRow{}}
}

// PGStore is the PostgreSQL Store. Lease expiry uses the database clock so
// that workers on different hosts agree on it.
type PGStore struct {
	pg postgres.Client
}

// NewPGStore returns a store over pg.
func NewPGStore(pg postgres.Client) *PGStore {
	return &PGStore{pg: pg}
}

const acquireLockSQL = `
INSERT INTO run_locks (family, owner, acquired_at, expires_at)
VALUES (?, ?, now(), now() + (? * interval '1 millisecond'))
ON CONFLICT (family) DO UPDATE
SET owner = EXCLUDED.owner, acquired_at = EXCLUDED.acquired_at, expires_at = EXCLUDED.expires_at
WHERE run_locks.expires_at < now() OR run_locks.owner = EXCLUDED.owner`

// AcquireLock upserts the lock row of family, taking over an expired lease.
func (s *PGStore) AcquireLock(ctx context.Context, family Family, owner string, lease time.Duration) error {
	res := s.pg.DB().WithContext(ctx).Exec(acquireLockSQL, string(family), owner, lease.Milliseconds())
	if res.Error != nil {
		return fmt.Errorf("acquire lock for %s: %w", family, postgres.TranslateError(res.Error))
	}
	if res.RowsAffected == 0 {
		return corpus.ConcurrentRunConflict("acquire lock", fmt.Errorf("family %s is locked by another worker", family))
	}
	return nil
}

func (s *PGStore) RenewLock(ctx context.Context, family Family, owner string, lease time.Duration) error {
	res := s.pg.DB().WithContext(ctx).
		Model(&LockRow{}).
		Where("family = ? AND owner = ?", string(family), owner).
		Update("expires_at", gorm.Expr("now() + (? * interval '1 millisecond')", lease.Milliseconds()))
	if res.Error != nil {
		return fmt.Errorf("renew lock for %s: %w", family, postgres.TranslateError(res.Error))
	}
	if res.RowsAffected == 0 {
		return ErrLockLost
	}
	return nil
}

func (s *PGStore) ReleaseLock(ctx context.Context, family Family, owner string) error {
	res := s.pg.DB().WithContext(ctx).
		Where("family = ? AND owner = ?", string(family), owner).
		Delete(&LockRow{})
	if res.Error != nil {
		return fmt.Errorf("release lock for %s: %w", family, postgres.TranslateError(res.Error))
	}
	if res.RowsAffected == 0 {
		return ErrLockLost
	}
	return nil
}

func (s *PGStore) Locked(ctx context.Context, family Family) (bool, error) {
	var n int64
	err := s.pg.DB().WithContext(ctx).
		Model(&LockRow{}).
		Where("family = ? AND expires_at >= now()", string(family)).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("read lock of %s: %w", family, postgres.TranslateError(err))
	}
	return n > 0, nil
}

func (s *PGStore) CreateRun(ctx context.Context, run Run) error {
	if !run.Family.Valid() {
		return fmt.Errorf("runstore: unknown family %q", run.Family)
	}
	run.Status = StatusPending
	run.ActivatedAt = nil
	row := toRunRow(run)
	if err := s.pg.DB().WithContext(ctx).Omit("Assignments").Create(&row).Error; err != nil {
		return fmt.Errorf("create run %s: %w", run.ID, postgres.TranslateError(err))
	}
	return nil
}

// loadForUpdate reads a run row and locks it for the rest of the transaction.
func loadForUpdate(db *gorm.DB, runID string) (RunRow, error) {
	var row RunRow
	err := db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&row, "id = ?", runID).Error
	if err != nil {
		if errors.Is(postgres.TranslateError(err), postgres.ErrRecordNotFound) {
			return row, ErrRunNotFound
		}
		return row, fmt.Errorf("load run %s: %w", runID, postgres.TranslateError(err))
	}
	return row, nil
}

func (s *PGStore) Transition(ctx context.Context, runID string, to Status, reason string) error {
	return s.pg.Transaction(ctx, func(tx postgres.Client) error {
		db := tx.DB()
		row, err := loadForUpdate(db, runID)
		if err != nil {
			return err
		}
		from := Status(row.Status)
		if to == StatusActive || !CanTransition(from, to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
		}
		err = db.Model(&RunRow{}).Where("id = ?", runID).Updates(map[string]interface{}{
			"status":     string(to),
			"reason":     reason,
			"updated_at": time.Now().UTC(),
		}).Error
		if err != nil {
			return fmt.Errorf("update run %s: %w", runID, postgres.TranslateError(err))
		}
		return nil
	})
}

func (s *PGStore) SaveResults(ctx context.Context, runID string, stats []ClusterStat, quality Quality, assignments []Assignment) error {
	return s.pg.Transaction(ctx, func(tx postgres.Client) error {
		db := tx.DB()
		row, err := loadForUpdate(db, runID)
		if err != nil {
			return err
		}
		if Status(row.Status) != StatusClustering {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, row.Status, StatusLayoutReady)
		}

		if err := db.Where("run_id = ?", runID).Delete(&AssignmentRow{}).Error; err != nil {
			return fmt.Errorf("clear assignments of %s: %w", runID, postgres.TranslateError(err))
		}
		if len(assignments) > 0 {
			rows := make([]AssignmentRow, len(assignments))
			for i, a := range assignments {
				rows[i] = AssignmentRow{
					RunID:       runID,
					DocumentID:  a.DocumentID,
					Label:       a.Label,
					Probability: a.Probability,
					X:           a.X,
					Y:           a.Y,
				}
			}
			if err := db.CreateInBatches(rows, 1000).Error; err != nil {
				return fmt.Errorf("insert assignments of %s: %w", runID, postgres.TranslateError(err))
			}
		}

		row.Stats = stats
		row.Silhouette = quality.Silhouette
		row.CalinskiHarabasz = quality.CalinskiHarabasz
		row.DaviesBouldin = quality.DaviesBouldin
		row.DocumentCount = len(assignments)
		row.Status = string(StatusLayoutReady)
		row.UpdatedAt = time.Now().UTC()
		if err := db.Omit("Assignments").Save(&row).Error; err != nil {
			return fmt.Errorf("save run %s: %w", runID, postgres.TranslateError(err))
		}
		return nil
	})
}

// Activate swaps the active pointer of family in one transaction.
func (s *PGStore) Activate(ctx context.Context, family Family, runID string) (string, error) {
	var previous string
	err := s.pg.Transaction(ctx, func(tx postgres.Client) error {
		db := tx.DB()

		var pointer ActiveRunRow
		err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("family = ?", string(family)).
			Limit(1).
			Find(&pointer).Error
		if err != nil {
			return fmt.Errorf("lock active pointer of %s: %w", family, postgres.TranslateError(err))
		}
		previous = pointer.RunID

		row, err := loadForUpdate(db, runID)
		if err != nil {
			return err
		}
		if row.Family != string(family) {
			return fmt.Errorf("runstore: run %s belongs to family %s, not %s", runID, row.Family, family)
		}
		if Status(row.Status) != StatusLayoutReady {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, row.Status, StatusActive)
		}

		now := time.Now().UTC()
		if previous != "" {
			err := db.Model(&RunRow{}).Where("id = ?", previous).Updates(map[string]interface{}{
				"status":     string(StatusInactive),
				"updated_at": now,
			}).Error
			if err != nil {
				return fmt.Errorf("deactivate run %s: %w", previous, postgres.TranslateError(err))
			}
		}

		err = db.Model(&RunRow{}).Where("id = ?", runID).Updates(map[string]interface{}{
			"status":       string(StatusActive),
			"activated_at": now,
			"updated_at":   now,
		}).Error
		if err != nil {
			return fmt.Errorf("activate run %s: %w", runID, postgres.TranslateError(err))
		}

		err = db.Omit("Run").Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "family"}},
			DoUpdates: clause.AssignmentColumns([]string{"run_id", "updated_at"}),
		}).Create(&ActiveRunRow{Family: string(family), RunID: runID, UpdatedAt: now}).Error
		if err != nil {
			return fmt.Errorf("swap active pointer of %s: %w", family, postgres.TranslateError(err))
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return previous, nil
}

func (s *PGStore) Active(ctx context.Context, family Family) (Run, error) {
	var row RunRow
	err := s.pg.DB().WithContext(ctx).
		Joins("JOIN active_runs a ON a.run_id = cluster_runs.id").
		Where("a.family = ?", string(family)).
		First(&row).Error
	if err != nil {
		if errors.Is(postgres.TranslateError(err), postgres.ErrRecordNotFound) {
			return Run{}, ErrNoActiveRun
		}
		return Run{}, fmt.Errorf("read active run of %s: %w", family, postgres.TranslateError(err))
	}
	return fromRunRow(row), nil
}

func (s *PGStore) Run(ctx context.Context, runID string) (Run, error) {
	var row RunRow
	if err := s.pg.DB().WithContext(ctx).First(&row, "id = ?", runID).Error; err != nil {
		if errors.Is(postgres.TranslateError(err), postgres.ErrRecordNotFound) {
			return Run{}, ErrRunNotFound
		}
		return Run{}, fmt.Errorf("read run %s: %w", runID, postgres.TranslateError(err))
	}
	return fromRunRow(row), nil
}

func (s *PGStore) Runs(ctx context.Context, family Family) ([]Run, error) {
	var rows []RunRow
	err := s.pg.DB().WithContext(ctx).
		Where("family = ?", string(family)).
		Order("created_at DESC, id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list runs of %s: %w", family, postgres.TranslateError(err))
	}
	out := make([]Run, len(rows))
	for i, r := range rows {
		out[i] = fromRunRow(r)
	}
	return out, nil
}

func (s *PGStore) Assignments(ctx context.Context, runID string) ([]Assignment, error) {
	if _, err := s.Run(ctx, runID); err != nil {
		return nil, err
	}
	var rows []AssignmentRow
	err := s.pg.DB().WithContext(ctx).
		Where("run_id = ?", runID).
		Order("document_id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("read assignments of %s: %w", runID, postgres.TranslateError(err))
	}
	out := make([]Assignment, len(rows))
	for i, r := range rows {
		out[i] = Assignment{DocumentID: r.DocumentID, Label: r.Label, Probability: r.Probability, X: r.X, Y: r.Y}
	}
	return out, nil
}

func (s *PGStore) Prune(ctx context.Context, family Family, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	var deleted int64
	err := s.pg.Transaction(ctx, func(tx postgres.Client) error {
		db := tx.DB()
		var ids []string
		err := db.Model(&RunRow{}).
			Where("family = ? AND status IN ?", string(family), []string{string(StatusFailed), string(StatusInactive)}).
			Where("id NOT IN (?)", db.Model(&ActiveRunRow{}).Select("run_id")).
			Order("created_at DESC, id DESC").
			Offset(keep).
			Pluck("id", &ids).Error
		if err != nil {
			return fmt.Errorf("select runs to prune: %w", postgres.TranslateError(err))
		}
		if len(ids) == 0 {
			return nil
		}
		res := db.Where("id IN ?", ids).Delete(&RunRow{})
		if res.Error != nil {
			return fmt.Errorf("prune runs of %s: %w", family, postgres.TranslateError(res.Error))
		}
		deleted = res.RowsAffected
		return nil
	})
	return int(deleted), err
}

func toRunRow(r Run) RunRow {
	params := string(r.Parameters)
	if params == "" {
		params = "{}"
	}
	return RunRow{
		ID:               r.ID,
		Family:           string(r.Family),
		Algorithm:        r.Algorithm,
		EncoderID:        string(r.Encoder),
		Parameters:       params,
		Status:           string(r.Status),
		Reason:           r.Reason,
		DocumentCount:    r.DocumentCount,
		Stats:            r.Stats,
		Silhouette:       r.Quality.Silhouette,
		CalinskiHarabasz: r.Quality.CalinskiHarabasz,
		DaviesBouldin:    r.Quality.DaviesBouldin,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
		ActivatedAt:      r.ActivatedAt,
	}
}

func fromRunRow(r RunRow) Run {
	return Run{
		ID:            r.ID,
		Family:        Family(r.Family),
		Algorithm:     r.Algorithm,
		Encoder:       corpus.EncoderID(r.EncoderID),
		Parameters:    []byte(r.Parameters),
		Status:        Status(r.Status),
		Reason:        r.Reason,
		DocumentCount: r.DocumentCount,
		Stats:         r.Stats,
		Quality: Quality{
			Silhouette:       r.Silhouette,
			CalinskiHarabasz: r.CalinskiHarabasz,
			DaviesBouldin:    r.DaviesBouldin,
		},
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		ActivatedAt: r.ActivatedAt,
	}
}
