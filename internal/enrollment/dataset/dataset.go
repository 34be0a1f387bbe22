// Package dataset provides the enrollment dataset snapshot, its Postgres
// loader and the TTL cache that hands immutable snapshots to the query
// engine.
package dataset

import (
	"context"
	"time"
)

// Row is a single enrollment fact.
type Row struct {
	Term        string `json:"term"`
	Level       string `json:"level"`
	Mode        string `json:"mode"`
	Metric      string `json:"metric"`
	Variable    string `json:"variable"`
	Count       int    `json:"count"`
	Description string `json:"description"`
}

// Dataset is an immutable snapshot of the enrollment table. Once constructed
// it is never mutated; the cache swaps whole snapshots between query calls.
type Dataset struct {
	rows     []Row
	loadedAt time.Time
}

// New copies rows into a fresh snapshot.
func New(rows []Row, loadedAt time.Time) *Dataset {
	copied := make([]Row, len(rows))
	copy(copied, rows)
	return &Dataset{rows: copied, loadedAt: loadedAt}
}

// Rows returns the snapshot rows. Callers must treat the slice as read-only.
func (d *Dataset) Rows() []Row {
	return d.rows
}

// Len returns the row count.
func (d *Dataset) Len() int {
	return len(d.rows)
}

// LoadedAt returns when the snapshot was loaded.
func (d *Dataset) LoadedAt() time.Time {
	return d.loadedAt
}

// Loader provides the raw rows from wherever the dataset lives.
type Loader interface {
	Load(ctx context.Context) ([]Row, error)
}
