package ledger

import (
	"context"
	"time"
)

/*
Ledger records dedupe keys for a bounded window.

ShouldProceed returns true exactly once per key per window and false for
every repeat until the window elapses. Forget releases a key early.
*/
type Ledger interface {
	ShouldProceed(ctx context.Context, key string, window time.Duration) (bool, error)
	Forget(ctx context.Context, key string) error
}
