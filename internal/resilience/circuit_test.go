package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("upstream down")

func failing(context.Context) (string, error) { return "", errUpstream }

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "textgen", FailureThreshold: 2, ResetTimeout: time.Hour})
	ctx := context.Background()

	for range 2 {
		_, err := ExecuteVal(ctx, cb, failing)
		require.ErrorIs(t, err, errUpstream)
	}
	assert.Equal(t, "open", cb.State())

	calls := 0
	_, err := ExecuteVal(ctx, cb, func(context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Zero(t, calls)
}

func TestCircuitBreaker_HalfOpenRecovers(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "textgen", FailureThreshold: 1, ResetTimeout: 20 * time.Millisecond})
	ctx := context.Background()

	_, err := ExecuteVal(ctx, cb, failing)
	require.Error(t, err)
	assert.Equal(t, "open", cb.State())

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, "half-open", cb.State())

	got, err := ExecuteVal(ctx, cb, func(context.Context) (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, "closed", cb.State())
}

func TestCircuitBreaker_ShouldTripFiltersErrors(t *testing.T) {
	badInput := errors.New("bad input")
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "textgen",
		FailureThreshold: 1,
		ShouldTrip:       func(err error) bool { return !errors.Is(err, badInput) },
	})

	_, err := ExecuteVal(context.Background(), cb, func(context.Context) (int, error) { return 0, badInput })
	require.ErrorIs(t, err, badInput)
	assert.Equal(t, "closed", cb.State())
}

func TestCircuitBreaker_CancellationDoesNotTrip(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "textgen", FailureThreshold: 1})

	_, err := ExecuteVal(context.Background(), cb, func(context.Context) (int, error) { return 0, context.Canceled })
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "closed", cb.State())
}

func TestCircuitBreaker_ReturnsValue(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "textgen"})
	got, err := ExecuteVal(context.Background(), cb, func(context.Context) ([]string, error) {
		return []string{"a", "b"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)
}
