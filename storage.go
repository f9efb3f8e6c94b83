package admission

import (
	"context"
	"time"
)

// LimiterState is the fixed-window record kept for one identity.
type LimiterState struct {
	Identity      string
	Count         int
	WindowResetAt time.Time
}

// WindowStore is a registry of LimiterState for a single protected action.
type WindowStore interface {
	// CheckAndRecord admits or rejects one request for identity and records it
	// when admitted.
	CheckAndRecord(ctx context.Context, identity string, quota int, window time.Duration, now time.Time) Decision
	// Peek returns the stored state for identity without touching it.
	Peek(ctx context.Context, identity string) (LimiterState, bool)
}

// Sweeper is implemented by stores that have to be pruned by hand.
type Sweeper interface {
	Sweep(before time.Time) int
}
