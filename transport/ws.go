package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// resumeFrame is the first message sent on every (re)connect. The
// server replays page frames with seq > LastSeq.
type resumeFrame struct {
	Type    string `json:"type"`
	JobID   string `json:"job_id"`
	LastSeq int64  `json:"last_seq"`
}

// OpenStream dials the WebSocket endpoint for jobID and performs the
// resume handshake. One attempt only; reconnect policy lives in the
// streaming session.
func (c *Client) OpenStream(ctx context.Context, jobID string, lastSeq int64) (Stream, error) {
	if jobID == "" {
		return nil, &Error{Kind: KindProtocol, Err: errors.New("job id is required")}
	}

	endpoint, err := c.streamURL(jobID)
	if err != nil {
		return nil, &Error{Kind: KindProtocol, Err: err}
	}

	header := http.Header{}
	header.Set("User-Agent", c.ua)
	if c.apiKey != "" {
		header.Set("Authorization", "Bearer "+c.apiKey)
	}

	conn, resp, err := c.dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			return nil, &Error{Kind: KindHTTP, Status: resp.StatusCode, Err: fmt.Errorf("stream handshake: %w", err)}
		}
		return nil, classify(err)
	}

	if err := conn.WriteJSON(resumeFrame{Type: "resume", JobID: jobID, LastSeq: lastSeq}); err != nil {
		_ = conn.Close()
		return nil, classify(err)
	}

	c.logger.Debug("stream opened",
		zap.String("job_id", jobID),
		zap.Int64("last_seq", lastSeq),
	)
	return &wsStream{conn: conn}, nil
}

func (c *Client) streamURL(jobID string) (string, error) {
	u := *c.base
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("base URL scheme %q does not support streaming", u.Scheme)
	}
	ref := &url.URL{Path: fmt.Sprintf("v1/crawl/%s/stream", jobID)}
	if u.Path != "" && u.Path[len(u.Path)-1] != '/' {
		u.Path += "/"
	}
	return u.ResolveReference(ref).String(), nil
}

// wsStream adapts a websocket connection to the Stream interface.
type wsStream struct {
	conn *websocket.Conn

	closeOnce sync.Once
	closeErr  error
}

// Next blocks until a frame arrives. Read interruption is implemented
// by closing the connection when ctx finishes, since gorilla reads do
// not take a context.
func (s *wsStream) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, classify(err)
	}

	done := make(chan struct{})
	interrupted := make(chan error, 1)
	go func() {
		select {
		case <-ctx.Done():
			interrupted <- ctx.Err()
			_ = s.conn.Close()
		case <-done:
		}
	}()

	var frame Frame
	err := s.conn.ReadJSON(&frame)
	close(done)
	select {
	case werr := <-interrupted:
		return Frame{}, classify(werr)
	default:
	}
	if err != nil {
		return Frame{}, classifyStreamRead(err)
	}
	switch frame.Type {
	case FrameTypePage, FrameTypeStatus, FrameTypeAck, FrameTypeError:
	default:
		return Frame{}, &Error{Kind: KindProtocol, Err: fmt.Errorf("unknown frame type %q", frame.Type)}
	}
	if frame.Type == FrameTypePage && frame.Page == nil {
		return Frame{}, &Error{Kind: KindProtocol, Err: errors.New("page frame without payload")}
	}
	return frame, nil
}

// Close releases the underlying connection. Safe to call repeatedly.
func (s *wsStream) Close() error {
	s.closeOnce.Do(func() {
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

func classifyStreamRead(err error) *Error {
	var jsonErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &jsonErr) || errors.As(err, &typeErr) {
		return &Error{Kind: KindProtocol, Err: err}
	}
	if websocket.IsUnexpectedCloseError(err) || errors.Is(err, net.ErrClosed) {
		return &Error{Kind: KindConnection, Err: err}
	}
	return classify(err)
}
