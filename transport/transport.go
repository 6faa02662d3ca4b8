// Package transport executes single-attempt HTTP requests and
// WebSocket streams against the Outblog Crawl API. It carries no retry
// logic; callers layer backoff on top.
package transport

import (
	"context"
	"net/http"

	"github.com/zardamhussain/outblog-crawl/crawl"
)

// Response is the decoded outcome of a successful HTTP call.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// FrameType tags a streamed message.
type FrameType string

// Frame types carried on the streaming protocol.
const (
	FrameTypePage   FrameType = "page"
	FrameTypeStatus FrameType = "status"
	FrameTypeAck    FrameType = "ack"
	FrameTypeError  FrameType = "error"
)

// Frame is a single streamed message. Page is set for page frames,
// Status for status frames, Message for error frames.
type Frame struct {
	Type    FrameType       `json:"type"`
	Seq     uint64          `json:"seq,omitempty"`
	Page    *crawl.Page     `json:"page,omitempty"`
	Status  crawl.JobStatus `json:"status,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Stream yields frames from a live subscription. Next blocks until a
// frame arrives, the context finishes, or the stream fails.
type Stream interface {
	Next(ctx context.Context) (Frame, error)
	Close() error
}

// Transport abstracts the wire so the client and streaming session can
// be tested against fakes.
type Transport interface {
	// Send performs exactly one HTTP attempt. body is JSON-encoded
	// when non-nil. Non-2xx responses return *Error{Kind: KindHTTP}.
	Send(ctx context.Context, method, path string, body any) (*Response, error)

	// OpenStream dials the job's streaming endpoint and resumes
	// delivery after lastSeq. lastSeq < 0 requests delivery from the
	// start.
	OpenStream(ctx context.Context, jobID string, lastSeq int64) (Stream, error)
}
