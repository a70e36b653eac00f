package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const DefaultTouchQueueSize = 256

type AccountToucher interface {
	Touch(ctx context.Context, id uuid.UUID, at time.Time) error
}

type touch struct {
	id uuid.UUID
	at time.Time
}

// Toucher records last-seen stamps off the request path. A full queue drops
// the stamp rather than blocking the caller.
type Toucher struct {
	store   AccountToucher
	queue   chan touch
	done    chan struct{}
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
}

func NewToucher(accounts AccountToucher, size int) *Toucher {
	if size <= 0 {
		size = DefaultTouchQueueSize
	}
	t := &Toucher{
		store:   accounts,
		queue:   make(chan touch, size),
		done:    make(chan struct{}),
		timeout: 5 * time.Second,
	}
	go t.run()
	return t
}

// Schedule reports whether the stamp was queued.
func (t *Toucher) Schedule(id uuid.UUID, at time.Time) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return false
	}
	select {
	case t.queue <- touch{id: id, at: at}:
		return true
	default:
		slog.Warn("last-seen queue full, dropping update", "account_id", id)
		return false
	}
}

func (t *Toucher) run() {
	defer close(t.done)
	for item := range t.queue {
		ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
		if err := t.store.Touch(ctx, item.id, item.at); err != nil {
			slog.Error("last-seen update failed", "account_id", item.id, "error", err)
		}
		cancel()
	}
}

// Close stops accepting stamps and waits for queued ones to be written.
func (t *Toucher) Close() {
	t.mu.Lock()
	if !t.closed {
		t.closed = true
		close(t.queue)
	}
	t.mu.Unlock()
	<-t.done
}
