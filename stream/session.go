// Package stream manages a long-lived subscription to a job's
// incremental results, reconnecting on drops and resuming from the
// last acknowledged sequence number.
package stream

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/zardamhussain/outblog-crawl/aggregate"
	"github.com/zardamhussain/outblog-crawl/backoff"
	"github.com/zardamhussain/outblog-crawl/crawl"
	"github.com/zardamhussain/outblog-crawl/internal/metrics"
	"github.com/zardamhussain/outblog-crawl/transport"
)

// State is the connection state of a Session.
type State int32

// Session states.
const (
	StateConnecting State = iota
	StateOpen
	StateReconnecting
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ErrSessionClosed is returned by Run when Close was called before the
// job reached a terminal status. The partial result is still returned.
var ErrSessionClosed = errors.New("stream: session closed")

// Config holds per-session options.
type Config struct {
	JobID string

	// BufferCapacity bounds the aggregator's out-of-order buffer.
	BufferCapacity int

	// OnPage, when set, is invoked in sequence order for every page
	// accepted into the contiguous prefix.
	OnPage func(crawl.Page)

	Logger *zap.Logger
}

// Session drives one streaming subscription. Create it, call Run once,
// and use Close for early cancellation. Run hand-offs every received
// page to the aggregator at-least-once; the aggregator dedups.
type Session struct {
	jobID  string
	tr     transport.Transport
	policy *backoff.Policy
	agg    *aggregate.Aggregator
	onPage func(crawl.Page)
	logger *zap.Logger

	state atomic.Int32

	mu      sync.Mutex
	current transport.Stream

	closeOnce sync.Once
	closed    chan struct{}
	onDone    func()
}

// New builds a Session. tr and policy are required; cfg.JobID must be
// set by the caller (the client does this).
func New(tr transport.Transport, policy *backoff.Policy, cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		jobID:  cfg.JobID,
		tr:     tr,
		policy: policy,
		agg:    aggregate.New(cfg.JobID, cfg.BufferCapacity),
		onPage: cfg.OnPage,
		logger: logger.With(zap.String("job_id", cfg.JobID)),
		closed: make(chan struct{}),
	}
}

// OnDone registers a hook invoked exactly once when Run finishes. The
// client uses it to release the one-session-per-job slot.
func (s *Session) OnDone(fn func()) {
	s.onDone = fn
}

// State reports the current connection state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// LastAck returns the resumption token: the highest contiguous
// sequence number handed off to the aggregator, or -1.
func (s *Session) LastAck() int64 {
	return s.agg.LastContiguous()
}

// Close transitions to Closed from any state and releases the
// underlying connection. In-flight hand-offs complete; no new frames
// are consumed. Safe to call from any goroutine, repeatedly.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.state.Store(int32(StateClosed))
		s.mu.Lock()
		cur := s.current
		s.mu.Unlock()
		if cur != nil {
			_ = cur.Close()
		}
	})
	return nil
}

func (s *Session) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// Run connects, consumes frames until the job reaches a terminal
// status, and returns the final result. Transport drops are retried
// with backoff; exhaustion yields *crawl.StreamAbandonedError together
// with the partial result. Run must be called at most once.
func (s *Session) Run(ctx context.Context) (crawl.FinalResult, error) {
	metrics.IncActiveStreams()
	defer metrics.DecActiveStreams()
	if s.onDone != nil {
		defer s.onDone()
	}
	defer s.state.Store(int32(StateClosed))

	attempt := 0
	for {
		if s.isClosed() {
			return s.agg.Finalize(crawl.JobStatusRunning), ErrSessionClosed
		}
		if err := ctx.Err(); err != nil {
			return s.agg.Finalize(crawl.JobStatusRunning), err
		}

		if attempt == 0 && s.State() != StateReconnecting {
			s.state.Store(int32(StateConnecting))
		}

		handle, err := s.tr.OpenStream(ctx, s.jobID, s.agg.LastContiguous())
		if err != nil {
			if retry, rerr := s.backOff(ctx, err, &attempt); !retry {
				return s.agg.Finalize(crawl.JobStatusRunning), rerr
			}
			continue
		}

		if !s.attach(handle) {
			_ = handle.Close()
			return s.agg.Finalize(crawl.JobStatusRunning), ErrSessionClosed
		}
		s.state.Store(int32(StateOpen))
		attempt = 0
		s.logger.Debug("stream open", zap.Int64("last_seq", s.agg.LastContiguous()))

		res, done, err := s.consume(ctx, handle)
		if done {
			return res, err
		}

		// Stream dropped mid-read; fall back into the reconnect path.
		s.state.Store(int32(StateReconnecting))
		if retry, rerr := s.backOff(ctx, err, &attempt); !retry {
			return s.agg.Finalize(crawl.JobStatusRunning), rerr
		}
	}
}

// attach records the live handle so Close can release it. Returns
// false when the session was closed while dialing.
func (s *Session) attach(handle transport.Stream) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isClosed() {
		return false
	}
	s.current = handle
	return true
}

// backOff decides whether to reconnect after err. When it returns
// retry=false, rerr is the error Run should surface.
func (s *Session) backOff(ctx context.Context, err error, attempt *int) (bool, error) {
	if s.isClosed() {
		return false, ErrSessionClosed
	}
	if !s.policy.ShouldRetry(err, *attempt) {
		return false, &crawl.StreamAbandonedError{JobID: s.jobID, Attempts: *attempt + 1, Err: err}
	}
	s.state.Store(int32(StateReconnecting))
	metrics.ObserveStreamReconnect()
	s.logger.Warn("stream dropped, reconnecting",
		zap.Int("attempt", *attempt),
		zap.Error(err),
	)
	if serr := s.policy.Sleep(ctx, *attempt); serr != nil {
		return false, serr
	}
	*attempt++
	return true, nil
}

// consume reads frames until the stream drops (done=false) or the
// session finishes (done=true).
func (s *Session) consume(ctx context.Context, handle transport.Stream) (crawl.FinalResult, bool, error) {
	delivered := s.agg.Len()
	for {
		frame, err := handle.Next(ctx)
		if err != nil {
			_ = handle.Close()
			if s.isClosed() {
				return s.agg.Finalize(crawl.JobStatusRunning), true, ErrSessionClosed
			}
			if cerr := ctx.Err(); cerr != nil {
				return s.agg.Finalize(crawl.JobStatusRunning), true, cerr
			}
			return crawl.FinalResult{}, false, err
		}

		switch frame.Type {
		case transport.FrameTypeAck:
			continue

		case transport.FrameTypePage:
			outcome, aggErr := s.agg.Accept(*frame.Page)
			metrics.ObservePage(outcome.String())
			if aggErr != nil {
				_ = handle.Close()
				return s.agg.Finalize(crawl.JobStatusRunning), true, aggErr
			}
			if s.onPage != nil {
				for _, p := range s.agg.Accepted(delivered) {
					s.onPage(p)
				}
				delivered = s.agg.Len()
			}

		case transport.FrameTypeStatus:
			if !frame.Status.Terminal() {
				continue
			}
			_ = handle.Close()
			return s.agg.Finalize(frame.Status), true, nil

		case transport.FrameTypeError:
			_ = handle.Close()
			return s.agg.Finalize(crawl.JobStatusFailed), true, &crawl.CrawlError{
				JobID:   s.jobID,
				Message: frame.Message,
			}
		}
	}
}
