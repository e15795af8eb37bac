// Package store persists the stage run log: one row per acquire, repair,
// or sweep invocation for an entity.
package store

import (
	"context"
	"time"
)

// Run status values. A run is "running" until CompleteRun sets its outcome.
const (
	StatusRunning = "running"
)

// Run is one logged stage invocation.
type Run struct {
	ID        string    `json:"id"`
	Stage     string    `json:"stage"`
	Entity    string    `json:"entity"`
	Status    string    `json:"status"`
	Summary   string    `json:"summary,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Stage  string `json:"stage,omitempty"`
	Entity string `json:"entity,omitempty"`
	Status string `json:"status,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// Store defines the persistence interface for the run log.
type Store interface {
	CreateRun(ctx context.Context, stage, entity string) (string, error)
	CompleteRun(ctx context.Context, id, status, summary string) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)

	Migrate(ctx context.Context) error
	Close() error
}
