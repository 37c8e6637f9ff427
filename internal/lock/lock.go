// Package lock serializes ledger mutations on the same product or register
// before their transaction starts.
package lock

import (
	"context"
	"errors"
	"slices"
	"sync"
)

var ErrNotObtained = errors.New("lock not obtained")

// Locker takes every key or none. Release is safe to call once.
type Locker interface {
	Acquire(ctx context.Context, keys ...string) (release func(), err error)
}

// Normalize sorts and dedupes keys so every caller takes them in the same
// order.
func Normalize(keys []string) []string {
	out := slices.Clone(keys)
	slices.Sort(out)
	return slices.Compact(out)
}

// Local is an in-process keyed mutex.
type Local struct {
	mu   sync.Mutex
	held map[string]chan struct{}
}

func NewLocal() *Local {
	return &Local{held: make(map[string]chan struct{})}
}

func (l *Local) Acquire(ctx context.Context, keys ...string) (func(), error) {
	keys = Normalize(keys)
	taken := make([]string, 0, len(keys))
	for _, key := range keys {
		if err := l.acquireOne(ctx, key); err != nil {
			l.release(taken)
			return nil, err
		}
		taken = append(taken, key)
	}

	var once sync.Once
	return func() { once.Do(func() { l.release(taken) }) }, nil
}

func (l *Local) acquireOne(ctx context.Context, key string) error {
	for {
		l.mu.Lock()
		wait, busy := l.held[key]
		if !busy {
			l.held[key] = make(chan struct{})
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return errors.Join(ErrNotObtained, ctx.Err())
		}
	}
}

func (l *Local) release(keys []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, key := range keys {
		if ch, ok := l.held[key]; ok {
			close(ch)
			delete(l.held, key)
		}
	}
}

// Noop grants every request immediately.
type Noop struct{}

func (Noop) Acquire(context.Context, ...string) (func(), error) {
	return func() {}, nil
}
