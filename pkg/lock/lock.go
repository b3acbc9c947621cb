// Package lock provides bounded mutual exclusion per string key.
package lock

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mcclellann/loanledger/pkg/apperr"
)

// Keyed hands out one lock per key. Locks are never released from the map;
// the key space (accounts, loans) is small and long lived.
type Keyed struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewKeyed() *Keyed {
	return &Keyed{slots: make(map[string]chan struct{})}
}

func (k *Keyed) slot(key string) chan struct{} {
	k.mu.Lock()
	defer k.mu.Unlock()
	ch, ok := k.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		k.slots[key] = ch
	}
	return ch
}

// Acquire locks every key, in sorted order, waiting at most timeout or until
// ctx is done. On failure nothing stays held and the error wraps ErrBusy.
// A timeout <= 0 tries each key once without waiting.
//
// The returned release func unlocks all keys and is safe to call once.
func (k *Keyed) Acquire(ctx context.Context, timeout time.Duration, keys ...string) (func(), error) {
	keys = unique(keys)

	var deadline <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		deadline = t.C
	}

	held := make([]chan struct{}, 0, len(keys))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i]
		}
	}

	for _, key := range keys {
		ch := k.slot(key)
		if timeout <= 0 {
			select {
			case ch <- struct{}{}:
				held = append(held, ch)
				continue
			default:
				release()
				return nil, fmt.Errorf("lock %s: %w", key, apperr.ErrBusy)
			}
		}
		select {
		case ch <- struct{}{}:
			held = append(held, ch)
		case <-deadline:
			release()
			return nil, fmt.Errorf("lock %s: timed out after %s: %w", key, timeout, apperr.ErrBusy)
		case <-ctx.Done():
			release()
			return nil, fmt.Errorf("lock %s: %v: %w", key, ctx.Err(), apperr.ErrBusy)
		}
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}

func unique(keys []string) []string {
	out := append([]string(nil), keys...)
	sort.Strings(out)
	n := 0
	for i, key := range out {
		if i > 0 && key == out[n-1] {
			continue
		}
		out[n] = key
		n++
	}
	return out[:n]
}
