package crawl

import (
	"fmt"
	"net/url"
	"time"
)

// ValidationError reports a caller-supplied parameter rejected before
// any network call. It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// CrawlError is a server-reported job failure. It is terminal and not
// retried.
type CrawlError struct {
	JobID   string
	Message string
}

func (e *CrawlError) Error() string {
	return fmt.Sprintf("crawl job %s failed: %s", e.JobID, e.Message)
}

// SequenceGapError reports that the aggregator's gap buffer filled up
// while waiting for a missing sequence number. The partial result set
// is still surfaced to the caller.
type SequenceGapError struct {
	JobID    string
	WantSeq  uint64
	Buffered int
}

func (e *SequenceGapError) Error() string {
	return fmt.Sprintf("crawl job %s: sequence gap unresolved waiting for seq %d (%d pages buffered)",
		e.JobID, e.WantSeq, e.Buffered)
}

// StreamAbandonedError reports that a streaming session exhausted its
// reconnect attempts. Err carries the last underlying transport cause.
type StreamAbandonedError struct {
	JobID    string
	Attempts int
	Err      error
}

func (e *StreamAbandonedError) Error() string {
	return fmt.Sprintf("crawl job %s: stream abandoned after %d attempts: %v", e.JobID, e.Attempts, e.Err)
}

func (e *StreamAbandonedError) Unwrap() error { return e.Err }

// WaitTimeoutError reports that WaitForCompletion's deadline elapsed
// while the job status was still non-terminal.
type WaitTimeoutError struct {
	JobID      string
	LastStatus JobStatus
	Waited     time.Duration
}

func (e *WaitTimeoutError) Error() string {
	return fmt.Sprintf("crawl job %s: timed out after %s (last status %q)", e.JobID, e.Waited, e.LastStatus)
}

// Validate checks JobParameters locally so bad input fails fast
// without consuming a network round trip.
func (p JobParameters) Validate() error {
	if p.URL == "" {
		return &ValidationError{Field: "url", Reason: "must not be empty"}
	}
	u, err := url.Parse(p.URL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return &ValidationError{Field: "url", Reason: "must be an absolute http(s) URL"}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ValidationError{Field: "url", Reason: fmt.Sprintf("unsupported scheme %q", u.Scheme)}
	}
	if p.Limit < 0 {
		return &ValidationError{Field: "limit", Reason: "must be >= 0"}
	}
	if p.MaxDepth < 0 {
		return &ValidationError{Field: "max_depth", Reason: "must be >= 0"}
	}
	for _, f := range p.Formats {
		if !KnownFormat(f) {
			return &ValidationError{Field: "formats", Reason: fmt.Sprintf("unknown format %q", f)}
		}
	}
	return nil
}
