package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/TOOL2U/Application---Property-Management--sub002/internal/utils"
)

// sweep the whole map every this many calls, so keys never re-checked still go away.
const sweepEvery = 512

// MemoryLedger is a process-local ledger.
type MemoryLedger struct {
	mu      sync.Mutex
	now     utils.Clock
	entries map[string]time.Time
	calls   int
}

func NewMemoryLedger(clock utils.Clock) *MemoryLedger {
	if clock == nil {
		clock = utils.SystemClock
	}
	return &MemoryLedger{now: clock, entries: make(map[string]time.Time)}
}

func (l *MemoryLedger) ShouldProceed(ctx context.Context, key string, window time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.calls++
	if l.calls%sweepEvery == 0 {
		l.purgeLocked(now)
	}

	if exp, ok := l.entries[key]; ok && now.Before(exp) {
		return false, nil
	}
	l.entries[key] = now.Add(window)
	return true, nil
}

func (l *MemoryLedger) Forget(_ context.Context, key string) error {
	l.mu.Lock()
	delete(l.entries, key)
	l.mu.Unlock()
	return nil
}

// Len returns the number of live entries.
func (l *MemoryLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.purgeLocked(l.now())
	return len(l.entries)
}

func (l *MemoryLedger) purgeLocked(now time.Time) {
	for k, exp := range l.entries {
		if !now.Before(exp) {
			delete(l.entries, k)
		}
	}
}
