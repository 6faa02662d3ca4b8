package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/zardamhussain/outblog-crawl/crawl"
)

var upgrader = websocket.Upgrader{}

// streamServer upgrades, verifies the resume handshake, then hands the
// connection to fn.
func streamServer(t *testing.T, wantLastSeq int64, fn func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/crawl/job-1/stream", r.URL.Path)
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close() //nolint:errcheck

		var resume resumeFrame
		require.NoError(t, conn.ReadJSON(&resume))
		require.Equal(t, "resume", resume.Type)
		require.Equal(t, "job-1", resume.JobID)
		require.Equal(t, wantLastSeq, resume.LastSeq)

		fn(conn)
	}))
}

func TestClient_OpenStreamDeliversFrames(t *testing.T) {
	t.Parallel()

	srv := streamServer(t, -1, func(conn *websocket.Conn) {
		require.NoError(t, conn.WriteJSON(Frame{
			Type: FrameTypePage,
			Seq:  0,
			Page: &crawl.Page{URL: "https://example.com", Seq: 0, Format: crawl.FormatMarkdown},
		}))
		require.NoError(t, conn.WriteJSON(Frame{Type: FrameTypeStatus, Status: crawl.JobStatusCompleted}))
	})
	defer srv.Close()

	c := newTestClient(t, srv.URL, time.Second)
	stream, err := c.OpenStream(context.Background(), "job-1", -1)
	require.NoError(t, err)
	defer stream.Close() //nolint:errcheck

	frame, err := stream.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, FrameTypePage, frame.Type)
	require.NotNil(t, frame.Page)
	require.Equal(t, uint64(0), frame.Page.Seq)

	frame, err = stream.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, FrameTypeStatus, frame.Type)
	require.Equal(t, crawl.JobStatusCompleted, frame.Status)
}

func TestClient_OpenStreamSendsResumeToken(t *testing.T) {
	t.Parallel()

	srv := streamServer(t, 41, func(conn *websocket.Conn) {
		require.NoError(t, conn.WriteJSON(Frame{Type: FrameTypeAck}))
	})
	defer srv.Close()

	c := newTestClient(t, srv.URL, time.Second)
	stream, err := c.OpenStream(context.Background(), "job-1", 41)
	require.NoError(t, err)
	defer stream.Close() //nolint:errcheck

	frame, err := stream.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, FrameTypeAck, frame.Type)
}

func TestWSStream_DropSurfacesConnectionError(t *testing.T) {
	t.Parallel()

	srv := streamServer(t, -1, func(conn *websocket.Conn) {
		_ = conn.Close() // drop without a close frame
	})
	defer srv.Close()

	c := newTestClient(t, srv.URL, time.Second)
	stream, err := c.OpenStream(context.Background(), "job-1", -1)
	require.NoError(t, err)
	defer stream.Close() //nolint:errcheck

	_, err = stream.Next(context.Background())
	te, ok := AsError(err)
	require.True(t, ok)
	require.Equal(t, KindConnection, te.Kind)
}

func TestWSStream_UnknownFrameTypeIsProtocolError(t *testing.T) {
	t.Parallel()

	srv := streamServer(t, -1, func(conn *websocket.Conn) {
		require.NoError(t, conn.WriteJSON(map[string]string{"type": "mystery"}))
	})
	defer srv.Close()

	c := newTestClient(t, srv.URL, time.Second)
	stream, err := c.OpenStream(context.Background(), "job-1", -1)
	require.NoError(t, err)
	defer stream.Close() //nolint:errcheck

	_, err = stream.Next(context.Background())
	te, ok := AsError(err)
	require.True(t, ok)
	require.Equal(t, KindProtocol, te.Kind)
}

func TestWSStream_NextHonorsContext(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	srv := streamServer(t, -1, func(*websocket.Conn) {
		<-block
	})
	defer srv.Close()
	defer close(block)

	c := newTestClient(t, srv.URL, time.Second)
	stream, err := c.OpenStream(context.Background(), "job-1", -1)
	require.NoError(t, err)
	defer stream.Close() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = stream.Next(ctx)
	require.Error(t, err)
	require.Less(t, time.Since(start), time.Second)
}

func TestClient_OpenStreamHandshakeRejection(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, time.Second)
	_, err := c.OpenStream(context.Background(), "job-1", -1)

	te, ok := AsError(err)
	require.True(t, ok)
	require.Equal(t, KindHTTP, te.Kind)
	require.Equal(t, http.StatusForbidden, te.Status)
}
