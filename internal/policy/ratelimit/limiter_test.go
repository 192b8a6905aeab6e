package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestLimiter_Wait(t *testing.T) {
	t.Parallel()

	l := New(Config{
		DefaultRPS:   10, // 100ms interval
		DefaultBurst: 1,
	})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://test.com/a"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://test.com/b"))
	if dur := time.Since(start); dur < 80*time.Millisecond {
		t.Errorf("expected wait ~100ms, got %v", dur)
	}
}

func TestLimiter_DifferentDomains(t *testing.T) {
	t.Parallel()

	l := New(Config{
		DefaultRPS:   1,
		DefaultBurst: 1,
	})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://a.com/1"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://b.com/1"))
	if time.Since(start) > 10*time.Millisecond {
		t.Errorf("domain B blocked unexpectedly")
	}
}

func TestLimiter_DomainOverrides(t *testing.T) {
	t.Parallel()

	l := New(Config{
		DefaultRPS: 5,
		DomainRPS: map[string]float64{
			"sina.com.cn":      1,
			"news.sina.com.cn": 0,
		},
	})

	require.Equal(t, rate.Limit(1), l.rateFor("slide.sina.com.cn"))
	require.Equal(t, rate.Inf, l.rateFor("news.sina.com.cn"))
	require.Equal(t, rate.Limit(5), l.rateFor("www.qq.com"))
	require.Equal(t, rate.Limit(5), l.rateFor("notsina.com.cn"))
}

func TestLimiter_CanceledContext(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 0.1, DefaultBurst: 1})
	require.NoError(t, l.Wait(context.Background(), "https://slow.com"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, l.Wait(ctx, "https://slow.com"))
}
