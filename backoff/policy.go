// Package backoff computes retry delays and retry eligibility for
// transport failures. Keeping this separate from the transport lets
// retry behavior be tested without any network machinery.
package backoff

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/zardamhussain/outblog-crawl/transport"
)

// Config holds the policy parameters. Zero fields fall back to the
// defaults below.
type Config struct {
	MaxAttempts    int
	Base           time.Duration
	Cap            time.Duration
	Multiplier     float64
	JitterFraction float64
}

const (
	defaultMaxAttempts    = 5
	defaultBase           = 250 * time.Millisecond
	defaultCap            = 10 * time.Second
	defaultMultiplier     = 2.0
	defaultJitterFraction = 0.2
)

// Policy decides whether and when to retry. Safe for concurrent use.
type Policy struct {
	cfg Config

	mu  sync.Mutex
	rng *rand.Rand
}

// New builds a Policy, filling unset Config fields with defaults.
func New(cfg Config) *Policy {
	return newPolicy(cfg, rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewSeeded builds a Policy whose jitter is deterministic for the
// given seed. Intended for tests.
func NewSeeded(cfg Config, seed int64) *Policy {
	return newPolicy(cfg, rand.New(rand.NewSource(seed)))
}

func newPolicy(cfg Config, rng *rand.Rand) *Policy {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.Base <= 0 {
		cfg.Base = defaultBase
	}
	if cfg.Cap <= 0 {
		cfg.Cap = defaultCap
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = defaultMultiplier
	}
	if cfg.JitterFraction < 0 {
		cfg.JitterFraction = defaultJitterFraction
	}
	return &Policy{cfg: cfg, rng: rng}
}

// MaxAttempts exposes the attempt budget for callers that report
// exhaustion.
func (p *Policy) MaxAttempts() int { return p.cfg.MaxAttempts }

// NextDelay returns the wait before retry number attempt (0-based):
// min(cap, base*multiplier^attempt) plus uniform jitter in
// [0, delay*jitterFraction].
func (p *Policy) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := float64(p.cfg.Base) * math.Pow(p.cfg.Multiplier, float64(attempt))
	if delay > float64(p.cfg.Cap) {
		delay = float64(p.cfg.Cap)
	}
	return time.Duration(delay) + p.jitter(time.Duration(delay*p.cfg.JitterFraction))
}

func (p *Policy) jitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Duration(p.rng.Int63n(int64(limit)))
}

// ShouldRetry reports whether err is worth another attempt. Retryable:
// connection and timeout failures, plus HTTP 429/500/502/503/504.
// Validation problems, protocol violations, other 4xx, context
// cancellation, and an exhausted attempt budget are not.
func (p *Policy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if attempt >= p.cfg.MaxAttempts {
		return false
	}
	// Kind is consulted before sentinel checks: an attempt-level HTTP
	// client timeout satisfies errors.Is(err, context.DeadlineExceeded)
	// on modern Go, yet is exactly the case that should be retried.
	// Caller-level cancellation is enforced by the retry loop's context.
	if te, ok := transport.AsError(err); ok {
		switch te.Kind {
		case transport.KindConnection:
			return !errors.Is(err, context.Canceled)
		case transport.KindTimeout:
			return true
		case transport.KindHTTP:
			return retryableStatus(te.Status)
		default:
			return false
		}
	}
	return false
}

func retryableStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// Sleep waits for the attempt's delay or until ctx finishes, whichever
// comes first.
func (p *Policy) Sleep(ctx context.Context, attempt int) error {
	timer := time.NewTimer(p.NextDelay(attempt))
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
