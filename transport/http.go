package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zardamhussain/outblog-crawl/internal/metrics"
)

// Config holds the connection settings for a Client. The zero value is
// not usable; BaseURL is required.
type Config struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	UserAgent string

	// HTTPClient overrides the pooled default, mainly for tests.
	HTTPClient *http.Client
}

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "outblog-crawl-go/1.0"
)

// Client is the concrete Transport speaking HTTP and WebSocket to the
// crawl API. Safe for concurrent use; in-flight requests share one
// connection pool.
type Client struct {
	base   *url.URL
	apiKey string
	ua     string
	http   *http.Client
	dialer *websocket.Dialer
	logger *zap.Logger
}

// New validates cfg and builds a Client.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("transport: base URL is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("transport: parse base URL: %w", err)
	}
	if !base.IsAbs() {
		return nil, fmt.Errorf("transport: base URL %q must be absolute", cfg.BaseURL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	metrics.Init()
	return &Client{
		base:   base,
		apiKey: cfg.APIKey,
		ua:     ua,
		http:   httpClient,
		dialer: &websocket.Dialer{HandshakeTimeout: timeout},
		logger: logger,
	}, nil
}

// Send performs a single HTTP attempt against path relative to the
// base URL. It never retries; classification of the failure is the
// caller's signal for whether to.
func (c *Client) Send(ctx context.Context, method, path string, body any) (*Response, error) {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, &Error{Kind: KindProtocol, Err: fmt.Errorf("encode request: %w", err)}
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.resolve(path), reqBody)
	if err != nil {
		return nil, &Error{Kind: KindProtocol, Err: fmt.Errorf("build request: %w", err)}
	}
	reqID := uuid.NewString()
	req.Header.Set("X-Request-ID", reqID)
	req.Header.Set("User-Agent", c.ua)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		terr := classify(err)
		metrics.ObserveRequest(method, 0, time.Since(start))
		c.logger.Debug("request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.String("request_id", reqID),
			zap.Error(err),
		)
		return nil, terr
	}
	defer resp.Body.Close() //nolint:errcheck

	payload, err := io.ReadAll(resp.Body)
	metrics.ObserveRequest(method, resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, classify(err)
	}

	c.logger.Debug("request completed",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.String("request_id", reqID),
		zap.Duration("dur", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{
			Kind:   KindHTTP,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("http status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload))),
		}
	}
	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: payload}, nil
}

func (c *Client) resolve(path string) string {
	ref := &url.URL{Path: strings.TrimPrefix(path, "/")}
	base := *c.base
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	if i := strings.IndexByte(path, '?'); i >= 0 {
		ref.Path = strings.TrimPrefix(path[:i], "/")
		ref.RawQuery = path[i+1:]
	}
	return base.ResolveReference(ref).String()
}

// classify maps low-level errors onto the transport taxonomy.
func classify(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Kind: KindConnection, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Err: err}
	}
	return &Error{Kind: KindConnection, Err: err}
}
