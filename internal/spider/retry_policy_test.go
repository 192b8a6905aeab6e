package spider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type instantPolicy struct{ max int }

func (p instantPolicy) ShouldRetry(err error, attempt int) bool { return err != nil && attempt < p.max }
func (instantPolicy) Backoff(int) time.Duration                 { return time.Millisecond }

func TestRetryStopsAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	attempts := 0
	err := Retry(context.Background(), instantPolicy{max: 3}, func(context.Context) error {
		attempts++
		return errors.New("boom")
	})
	require.EqualError(t, err, "boom")
	require.Equal(t, 3, attempts)
}

func TestRetrySucceeds(t *testing.T) {
	t.Parallel()

	attempts := 0
	err := Retry(context.Background(), instantPolicy{max: 3}, func(context.Context) error {
		attempts++
		if attempts < 2 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, attempts)
}

func TestExponentialRetryPolicy(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy(3)
	require.True(t, p.ShouldRetry(errors.New("x"), 1))
	require.False(t, p.ShouldRetry(errors.New("x"), 3))
	require.False(t, p.ShouldRetry(context.Canceled, 1))
	require.LessOrEqual(t, p.Backoff(10), 5*time.Second)
}
