package webhooks

import (
	"context"
	"sync"

	goerrors "github.com/goliatone/go-errors"

	"github.com/acmecorp/go-mobile-access/core"
)

// SeenLedger claims an event id exactly once. Claim returns true on
// first sight and false for any replay; implementations must make the
// check-and-record atomic.
type SeenLedger interface {
	Claim(ctx context.Context, eventID string) (bool, error)
}

const defaultSeenCapacity = 4096

// MemorySeenLedger is a bounded in-process ledger. When the capacity
// is reached the oldest ids fall off, which is acceptable because the
// platform's redelivery window is far shorter than the horizon a few
// thousand entries cover.
type MemorySeenLedger struct {
	mu       sync.Mutex
	capacity int
	order    []string
	seen     map[string]struct{}
}

func NewMemorySeenLedger(capacity int) *MemorySeenLedger {
	if capacity <= 0 {
		capacity = defaultSeenCapacity
	}
	return &MemorySeenLedger{
		capacity: capacity,
		seen:     make(map[string]struct{}, capacity),
	}
}

func (l *MemorySeenLedger) Claim(_ context.Context, eventID string) (bool, error) {
	if l == nil {
		return false, core.NewError("webhooks: seen ledger is nil", goerrors.CategoryInternal, core.ErrorInternal, nil)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, dup := l.seen[eventID]; dup {
		return false, nil
	}
	if len(l.order) >= l.capacity {
		oldest := l.order[0]
		l.order = l.order[1:]
		delete(l.seen, oldest)
	}
	l.seen[eventID] = struct{}{}
	l.order = append(l.order, eventID)
	return true, nil
}

var _ SeenLedger = (*MemorySeenLedger)(nil)
