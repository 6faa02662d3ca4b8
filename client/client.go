// Package client is the public entry point of the SDK: job
// submission, status polling, result retrieval, and streaming.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zardamhussain/outblog-crawl/backoff"
	"github.com/zardamhussain/outblog-crawl/crawl"
	"github.com/zardamhussain/outblog-crawl/internal/clock"
	"github.com/zardamhussain/outblog-crawl/internal/metrics"
	"github.com/zardamhussain/outblog-crawl/stream"
	"github.com/zardamhussain/outblog-crawl/transport"
)

// Config carries the caller-facing settings. Explicit struct rather
// than ambient globals so tests can build isolated clients with mock
// transports.
type Config struct {
	BaseURL string
	APIKey  string

	// PollInterval is the sleep between status polls in
	// WaitForCompletion.
	PollInterval time.Duration

	// Timeout bounds the total duration of WaitForCompletion across
	// every poll and retry. Zero means no SDK-imposed deadline; the
	// context still applies.
	Timeout time.Duration

	// RequestTimeout bounds each individual transport attempt.
	RequestTimeout time.Duration

	// Backoff parameterizes the shared retry policy.
	Backoff backoff.Config

	// BufferCapacity bounds each aggregator's out-of-order buffer.
	BufferCapacity int

	UserAgent string
}

const defaultPollInterval = 2 * time.Second

// ErrStreamActive is returned by Watch when the job already has an
// open streaming session on this client.
var ErrStreamActive = errors.New("client: streaming session already active for this job")

// Client talks to the Outblog Crawl API. Safe for concurrent use;
// distinct jobs share only the transport's connection pool.
type Client struct {
	cfg    Config
	tr     transport.Transport
	policy *backoff.Policy
	clock  clock.Clock
	logger *zap.Logger

	mu      sync.Mutex
	streams map[string]*stream.Session
}

// Option customizes a Client.
type Option func(*Client)

// WithTransport swaps the wire implementation, typically for a fake in
// tests.
func WithTransport(tr transport.Transport) Option {
	return func(c *Client) { c.tr = tr }
}

// WithLogger attaches a structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithClock substitutes the time source.
func WithClock(clk clock.Clock) Option {
	return func(c *Client) { c.clock = clk }
}

// New builds a Client. BaseURL is required unless WithTransport
// supplies the wire layer.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	c := &Client{
		cfg:     cfg,
		policy:  backoff.New(cfg.Backoff),
		clock:   clock.System{},
		logger:  zap.NewNop(),
		streams: make(map[string]*stream.Session),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tr == nil {
		tr, err := transport.New(transport.Config{
			BaseURL:   cfg.BaseURL,
			APIKey:    cfg.APIKey,
			Timeout:   cfg.RequestTimeout,
			UserAgent: cfg.UserAgent,
		}, c.logger)
		if err != nil {
			return nil, err
		}
		c.tr = tr
	}
	return c, nil
}

// Submit validates params locally and creates a crawl job. Validation
// failures return *crawl.ValidationError without touching the network.
func (c *Client) Submit(ctx context.Context, params crawl.JobParameters) (*crawl.Job, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	var job crawl.Job
	err := c.do(ctx, "submit", func(ctx context.Context) error {
		resp, err := c.tr.Send(ctx, http.MethodPost, "v1/crawl", params)
		if err != nil {
			return err
		}
		return decodeInto(resp.Body, &job)
	})
	if err != nil {
		return nil, fmt.Errorf("submit crawl: %w", err)
	}
	if job.Submitted.IsZero() {
		job.Submitted = c.clock.Now()
	}
	c.logger.Info("crawl submitted",
		zap.String("job_id", job.ID),
		zap.String("url", params.URL),
	)
	return &job, nil
}

// Status fetches the job's current lifecycle state.
func (c *Client) Status(ctx context.Context, jobID string) (*crawl.Job, error) {
	if jobID == "" {
		return nil, &crawl.ValidationError{Field: "job_id", Reason: "must not be empty"}
	}
	var job crawl.Job
	err := c.do(ctx, "status", func(ctx context.Context) error {
		resp, err := c.tr.Send(ctx, http.MethodGet, "v1/crawl/"+url.PathEscape(jobID), nil)
		if err != nil {
			return err
		}
		return decodeInto(resp.Body, &job)
	})
	if err != nil {
		return nil, fmt.Errorf("job status: %w", err)
	}
	return &job, nil
}

// Cancel asks the server to stop the job. The job transitions to
// Cancelled; already-terminal jobs are unaffected.
func (c *Client) Cancel(ctx context.Context, jobID string) error {
	if jobID == "" {
		return &crawl.ValidationError{Field: "job_id", Reason: "must not be empty"}
	}
	err := c.do(ctx, "cancel", func(ctx context.Context) error {
		_, err := c.tr.Send(ctx, http.MethodDelete, "v1/crawl/"+url.PathEscape(jobID), nil)
		return err
	})
	if err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}
	return nil
}

// do runs fn with transparent retries per the backoff policy. Each
// logical operation owns its attempt counter; a success resets nothing
// because the counter dies with the call.
func (c *Client) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !c.policy.ShouldRetry(err, attempt) {
			return err
		}
		metrics.ObserveRetry(op)
		c.logger.Debug("retrying after transient failure",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if serr := c.policy.Sleep(ctx, attempt); serr != nil {
			return err
		}
	}
}

// decodeInto maps body decoding failures to the protocol error class:
// a malformed response is a transport fault, not a caller fault.
func decodeInto(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return &transport.Error{Kind: transport.KindProtocol, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
