package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, baseURL string, timeout time.Duration) *Client {
	t.Helper()
	c, err := New(Config{
		BaseURL: baseURL,
		APIKey:  "test-key",
		Timeout: timeout,
	}, zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestClient_SendSuccess(t *testing.T) {
	t.Parallel()

	var gotAuth, gotReqID, gotContentType string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotReqID = r.Header.Get("X-Request-ID")
		gotContentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"job-1","status":"queued"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, time.Second)
	resp, err := c.Send(context.Background(), http.MethodPost, "v1/crawl", map[string]string{"url": "https://example.com"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.Status)
	require.JSONEq(t, `{"id":"job-1","status":"queued"}`, string(resp.Body))

	require.Equal(t, "Bearer test-key", gotAuth)
	require.NotEmpty(t, gotReqID)
	require.Equal(t, "application/json", gotContentType)
	require.Equal(t, "https://example.com", gotBody["url"])
}

func TestClient_SendHTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, time.Second)
	_, err := c.Send(context.Background(), http.MethodGet, "v1/crawl/x", nil)

	te, ok := AsError(err)
	require.True(t, ok)
	require.Equal(t, KindHTTP, te.Kind)
	require.Equal(t, http.StatusServiceUnavailable, te.Status)
}

func TestClient_SendTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	defer close(release)

	c := newTestClient(t, srv.URL, 50*time.Millisecond)
	_, err := c.Send(context.Background(), http.MethodGet, "v1/crawl/x", nil)

	te, ok := AsError(err)
	require.True(t, ok)
	require.Equal(t, KindTimeout, te.Kind)
}

func TestClient_SendConnectionRefused(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // nothing listening anymore

	c := newTestClient(t, srv.URL, time.Second)
	_, err := c.Send(context.Background(), http.MethodGet, "v1/crawl/x", nil)

	te, ok := AsError(err)
	require.True(t, ok)
	require.Equal(t, KindConnection, te.Kind)
}

func TestClient_ResolvePreservesQuery(t *testing.T) {
	t.Parallel()

	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, time.Second)
	_, err := c.Send(context.Background(), http.MethodGet, "v1/crawl/job-1/pages?since=41", nil)
	require.NoError(t, err)
	require.Equal(t, "/v1/crawl/job-1/pages", gotPath)
	require.Equal(t, "since=41", gotQuery)
}

func TestNew_RequiresAbsoluteBaseURL(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, nil)
	require.Error(t, err)

	_, err = New(Config{BaseURL: "not-a-url"}, nil)
	require.Error(t, err)
}
