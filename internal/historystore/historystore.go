// Package historystore is a Postgres-backed adapter for the
// prior-allocation history snapshot the core's deduplicator reads
// (spec.md §6's "persistent history storage medium", explicitly an
// external collaborator the core itself never assumes). It is the
// only place in this module that talks to a database.
package historystore

import (
	"context"
	"database/sql"
	"time"

	"github.com/rezahh107/matrix2/internal/dedupe"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// Store wraps a bun.DB connection scoped to the allocation_history
// table.
type Store struct {
	db *bun.DB
}

// New opens a connection pool against dsn. It does not validate
// connectivity; call Ping for that.
func New(dsn string) *Store {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return &Store{db: bun.NewDB(sqldb, pgdialect.New())}
}

// Model is the allocation_history row shape (spec.md §6's history
// snapshot columns).
type Model struct {
	bun.BaseModel `bun:"table:allocation_history,alias:h"`

	NationalCodeNormalized string    `bun:"national_code_normalized,pk"`
	MentorID               string    `bun:"mentor_id"`
	CenterCode             string    `bun:"center_code"`
	LastAllocationAt       time.Time `bun:"last_allocation_at"`
}

// InitSchema creates the allocation_history table if it does not
// already exist.
func (s *Store) InitSchema(ctx context.Context) error {
	_, err := s.db.NewCreateTable().Model((*Model)(nil)).IfNotExists().Exec(ctx)
	return err
}

// LoadSnapshot reads the entire history table into the in-memory
// dedupe.Snapshot the core consumes. The core never queries the
// database directly; this is the one translation point.
func (s *Store) LoadSnapshot(ctx context.Context) (dedupe.Snapshot, error) {
	var rows []Model
	if err := s.db.NewSelect().Model(&rows).Scan(ctx); err != nil {
		return nil, err
	}
	snapshot := make(dedupe.Snapshot, len(rows))
	for _, r := range rows {
		snapshot[r.NationalCodeNormalized] = dedupe.Record{
			MentorID:         r.MentorID,
			CenterCode:       r.CenterCode,
			LastAllocationAt: r.LastAllocationAt.Format(time.RFC3339),
		}
	}
	return snapshot, nil
}

// RecordAllocation upserts one allocation_history row for a newly
// committed student, so a later run's dedupe snapshot will already
// exclude them.
func (s *Store) RecordAllocation(ctx context.Context, nationalCodeNormalized, mentorID, centerCode string, at time.Time) error {
	model := &Model{
		NationalCodeNormalized: nationalCodeNormalized,
		MentorID:               mentorID,
		CenterCode:             centerCode,
		LastAllocationAt:       at,
	}
	_, err := s.db.NewInsert().Model(model).
		On("CONFLICT (national_code_normalized) DO UPDATE").
		Exec(ctx)
	return err
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
