package apperr

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindNone},
		{"plain", ErrBusy, KindBusy},
		{"wrapped", fmt.Errorf("post entry: %w", ErrUnbalancedEntry), KindUnbalancedEntry},
		{"storage", Storage("append entries", sql.ErrConnDone), KindStorageUnavailable},
		{"foreign", errors.New("boom"), KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestStorageHidesCause(t *testing.T) {
	err := Storage("load schedule", sql.ErrConnDone)

	assert.True(t, errors.Is(err, ErrStorageUnavailable))
	assert.False(t, errors.Is(err, sql.ErrConnDone))
	assert.Equal(t, "storage unavailable: load schedule", err.Error())
	assert.Equal(t, sql.ErrConnDone, Cause(err))
	assert.True(t, Retryable(err))

	// wrapping twice keeps the first operation name
	again := Storage("outer", err)
	assert.Equal(t, err, again)
	assert.Nil(t, Storage("noop", nil))
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(fmt.Errorf("lock: %w", ErrBusy)))
	assert.False(t, Retryable(ErrDuplicateEvent))
	assert.False(t, Retryable(nil))
}
