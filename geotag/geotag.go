// Package geotag provides best-effort, single-shot location snapshots for
// captured memos.
package geotag

import "context"

// Position is a geographic coordinate pair.
type Position struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Provider performs a single-shot location lookup. Implementations may be
// slow or fail entirely; callers treat absence as the (0,0) sentinel and
// must bound the wait themselves via ctx.
type Provider interface {
	CurrentPosition(ctx context.Context) (Position, error)
}

// Fixed is a Provider that always reports the same position. It backs the
// config override for devices without any location source.
type Fixed struct {
	Pos Position
}

func (f Fixed) CurrentPosition(_ context.Context) (Position, error) {
	return f.Pos, nil
}
