// Package store persists interpolation runs: the neighborhood geometries,
// the per-year estimates, and the conservation verdicts behind them.
package store

import (
	"context"
	"time"

	"github.com/ctessum/geom"
)

// Run statuses.
const (
	RunStatusRunning  = "running"
	RunStatusComplete = "complete"
	RunStatusFailed   = "failed"
)

// Run records one pipeline execution.
type Run struct {
	ID         string     `json:"id"`
	Manifest   string     `json:"manifest"`
	Status     string     `json:"status"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Neighborhood is one fixed target polygon, persisted as EWKB.
type Neighborhood struct {
	ID   string
	Geom geom.Polygonal
}

// Estimate is one interpolated cell: a neighborhood's value for one
// attribute in one census year.
type Estimate struct {
	RunID        string  `json:"run_id"`
	Year         int     `json:"year"`
	Neighborhood string  `json:"neighborhood"`
	Attribute    string  `json:"attribute"`
	Value        float64 `json:"value"`
}

// VerdictRecord is a persisted conservation verdict for one attribute-year.
type VerdictRecord struct {
	RunID       string  `json:"run_id"`
	Year        int     `json:"year"`
	Attribute   string  `json:"attribute"`
	SourceTotal float64 `json:"source_total"`
	TargetTotal float64 `json:"target_total"`
	Discrepancy float64 `json:"discrepancy"`
	Conserved   bool    `json:"conserved"`
	Expected    bool    `json:"expected"`
}

// Store defines the persistence interface for interpolation output.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, manifest string) (*Run, error)
	FinishRun(ctx context.Context, runID string, runErr error) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	// Geometry and results
	UpsertNeighborhoods(ctx context.Context, crs string, neighborhoods []Neighborhood) error
	SaveEstimates(ctx context.Context, estimates []Estimate) error
	SaveVerdicts(ctx context.Context, verdicts []VerdictRecord) error

	// Queries
	Series(ctx context.Context, runID, neighborhood string) ([]Estimate, error)
	Verdicts(ctx context.Context, runID string) ([]VerdictRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
