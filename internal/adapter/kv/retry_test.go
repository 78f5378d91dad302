package kv

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-device-compare/internal/config"
	"github.com/fairyhunter13/ai-device-compare/internal/domain/mocks"
)

type mockStore struct {
	*mocks.MockKVStore
}

func (mockStore) Ping(context.Context) error { return nil }
func (mockStore) Close() error               { return nil }

var fastRetry = config.RetryConfig{
	MaxElapsedTime:  200 * time.Millisecond,
	InitialInterval: time.Millisecond,
	MaxInterval:     5 * time.Millisecond,
	Multiplier:      2,
}

func TestWithRetry_RecoversAfterTransientFailure(t *testing.T) {
	t.Parallel()
	m := mocks.NewMockKVStore(t)
	m.On("Set", mock.Anything, "k", "v").Return(errors.New("conn reset")).Twice()
	m.On("Set", mock.Anything, "k", "v").Return(nil).Once()

	s := WithRetry(mockStore{m}, fastRetry)
	require.NoError(t, s.Set(context.Background(), "k", "v"))
}

func TestWithRetry_GivesUp(t *testing.T) {
	t.Parallel()
	m := mocks.NewMockKVStore(t)
	m.On("Get", mock.Anything, "k").Return("", false, errors.New("down"))

	s := WithRetry(mockStore{m}, fastRetry)
	start := time.Now()
	_, _, err := s.Get(context.Background(), "k")
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestWithRetry_StopsOnCancelledContext(t *testing.T) {
	t.Parallel()
	m := mocks.NewMockKVStore(t)
	m.On("Delete", mock.Anything, "k").Return(errors.New("down")).Maybe()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := WithRetry(mockStore{m}, config.RetryConfig{MaxElapsedTime: time.Minute, InitialInterval: time.Second})
	assert.Error(t, s.Delete(ctx, "k"))
}

func TestWithRetry_DisabledReturnsStore(t *testing.T) {
	t.Parallel()
	inner := NewMemoryStore()
	assert.Same(t, inner, WithRetry(inner, config.RetryConfig{}))
}
