package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mcclellann/loanledger/pkg/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	k := NewKeyed()
	release, err := k.Acquire(context.Background(), time.Second, "b", "a", "a")
	require.NoError(t, err)

	_, err = k.Acquire(context.Background(), 20*time.Millisecond, "a")
	assert.True(t, errors.Is(err, apperr.ErrBusy))

	release()
	release() // second call is a no-op

	again, err := k.Acquire(context.Background(), 0, "a", "b")
	require.NoError(t, err)
	again()
}

func TestFailedAcquireHoldsNothing(t *testing.T) {
	k := NewKeyed()
	holdB, err := k.Acquire(context.Background(), 0, "b")
	require.NoError(t, err)

	_, err = k.Acquire(context.Background(), 0, "a", "b")
	require.True(t, errors.Is(err, apperr.ErrBusy))

	// "a" must have been given back
	releaseA, err := k.Acquire(context.Background(), 0, "a")
	require.NoError(t, err)
	releaseA()
	holdB()
}

func TestContextCancelIsBusy(t *testing.T) {
	k := NewKeyed()
	hold, err := k.Acquire(context.Background(), 0, "x")
	require.NoError(t, err)
	defer hold()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = k.Acquire(ctx, time.Minute, "x")
	assert.True(t, errors.Is(err, apperr.ErrBusy))
}

func TestSerializes(t *testing.T) {
	k := NewKeyed()
	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := k.Acquire(context.Background(), 5*time.Second, "acct")
			if err != nil {
				t.Error(err)
				return
			}
			counter++
			release()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}
