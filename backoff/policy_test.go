package backoff

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zardamhussain/outblog-crawl/transport"
)

func TestPolicy_NextDelayMonotonicUpToCap(t *testing.T) {
	t.Parallel()

	p := NewSeeded(Config{
		MaxAttempts:    10,
		Base:           100 * time.Millisecond,
		Cap:            2 * time.Second,
		Multiplier:     2,
		JitterFraction: 0, // deterministic without jitter
	}, 1)

	var prev time.Duration
	for attempt := 0; attempt < 10; attempt++ {
		d := p.NextDelay(attempt)
		require.GreaterOrEqual(t, d, prev, "attempt %d", attempt)
		require.LessOrEqual(t, d, 2*time.Second)
		prev = d
	}
	require.Equal(t, 2*time.Second, p.NextDelay(9))
}

func TestPolicy_NextDelayJitterBounds(t *testing.T) {
	t.Parallel()

	p := NewSeeded(Config{
		Base:           100 * time.Millisecond,
		Cap:            10 * time.Second,
		Multiplier:     2,
		JitterFraction: 0.5,
	}, 42)

	for i := 0; i < 100; i++ {
		d := p.NextDelay(0)
		require.GreaterOrEqual(t, d, 100*time.Millisecond)
		require.Less(t, d, 150*time.Millisecond)
	}
}

func TestPolicy_NextDelayDeterministicForSeed(t *testing.T) {
	t.Parallel()

	cfg := Config{Base: 100 * time.Millisecond, JitterFraction: 0.5}
	a := NewSeeded(cfg, 7)
	b := NewSeeded(cfg, 7)
	for attempt := 0; attempt < 5; attempt++ {
		require.Equal(t, a.NextDelay(attempt), b.NextDelay(attempt))
	}
}

func TestPolicy_ShouldRetry(t *testing.T) {
	t.Parallel()

	p := New(Config{MaxAttempts: 3})

	connErr := &transport.Error{Kind: transport.KindConnection, Err: errors.New("refused")}
	timeoutErr := &transport.Error{Kind: transport.KindTimeout, Err: errors.New("deadline")}
	protoErr := &transport.Error{Kind: transport.KindProtocol, Err: errors.New("bad json")}

	tests := []struct {
		name    string
		err     error
		attempt int
		want    bool
	}{
		{"nil error", nil, 0, false},
		{"connection", connErr, 0, true},
		{"timeout", timeoutErr, 0, true},
		{"protocol", protoErr, 0, false},
		{"http 429", &transport.Error{Kind: transport.KindHTTP, Status: 429}, 0, true},
		{"http 500", &transport.Error{Kind: transport.KindHTTP, Status: 500}, 0, true},
		{"http 503", &transport.Error{Kind: transport.KindHTTP, Status: 503}, 0, true},
		{"http 404", &transport.Error{Kind: transport.KindHTTP, Status: 404}, 0, false},
		{"http 400", &transport.Error{Kind: transport.KindHTTP, Status: 400}, 0, false},
		{"exhausted attempts", connErr, 3, false},
		{"non-transport error", errors.New("plain"), 0, false},
		{
			"caller cancellation",
			&transport.Error{Kind: transport.KindConnection, Err: context.Canceled},
			0,
			false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, p.ShouldRetry(tt.err, tt.attempt))
		})
	}
}

func TestPolicy_SleepHonorsContext(t *testing.T) {
	t.Parallel()

	p := New(Config{Base: time.Minute, Cap: time.Minute})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := p.Sleep(ctx, 0)
	require.ErrorIs(t, err, context.Canceled)
	require.Less(t, time.Since(start), time.Second)
}
