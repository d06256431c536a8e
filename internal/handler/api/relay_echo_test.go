package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"ProbDesk/internal/service/ratelimit"
	"ProbDesk/internal/services/relay"

	"github.com/labstack/echo/v4"
)

func newRelayServer(t *testing.T, upstream string, opts ...RelayHandlerOption) *echo.Echo {
	t.Helper()
	e := echo.New()
	NewRelayEchoHandler(nil, relay.New(upstream), opts...).RegisterRoutes(e)
	return e
}

func postStream(e *echo.Echo, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/chat/stream", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRelayStreamsUpstreamChunks(t *testing.T) {
	var gotAuth, gotBody, gotPath string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "text/plain")
		flusher := w.(http.Flusher)
		for i := 0; i < 3; i++ {
			fmt.Fprintf(w, "data: chunk-%d\n\n", i)
			flusher.Flush()
		}
	}))
	defer upstream.Close()

	e := newRelayServer(t, upstream.URL)
	rec := postStream(e, `{"messages":[{"role":"user","content":"hi"}]}`, map[string]string{
		"Authorization": "Bearer abc",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content-type = %q", ct)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Fatalf("cache-control = %q", cc)
	}
	if conn := rec.Header().Get("Connection"); conn != "keep-alive" {
		t.Fatalf("connection = %q", conn)
	}
	want := "data: chunk-0\n\ndata: chunk-1\n\ndata: chunk-2\n\n"
	if rec.Body.String() != want {
		t.Fatalf("body = %q", rec.Body.String())
	}
	if gotAuth != "Bearer abc" {
		t.Fatalf("authorization forwarded = %q", gotAuth)
	}
	if gotPath != "/chat/stream" {
		t.Fatalf("upstream path = %q", gotPath)
	}
	if gotBody != `{"messages":[{"role":"user","content":"hi"}]}` {
		t.Fatalf("upstream body = %q", gotBody)
	}
	if rec.Header().Get(echo.HeaderXRequestID) == "" {
		t.Fatal("missing request id")
	}
}

func TestRelayPassesThroughUpstreamError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"detail":"overloaded"}`))
	}))
	defer upstream.Close()

	rec := postStream(newRelayServer(t, upstream.URL), `{"q":1}`, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if rec.Body.String() != `{"detail":"overloaded"}` {
		t.Fatalf("body = %q", rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type = %q", ct)
	}
}

func TestRelayUnreachableUpstream(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	base := upstream.URL
	upstream.Close()

	rec := postStream(newRelayServer(t, base), `{"q":1}`, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"error":"Internal Server Error"}` {
		t.Fatalf("body = %q", got)
	}
}

func TestRelayMalformedBody(t *testing.T) {
	called := false
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	defer upstream.Close()

	rec := postStream(newRelayServer(t, upstream.URL), `{not json`, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"error":"Internal Server Error"}` {
		t.Fatalf("body = %q", got)
	}
	if called {
		t.Fatal("upstream must not be called for a malformed body")
	}
}

func TestRelayRateLimited(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("data: ok\n\n"))
	}))
	defer upstream.Close()

	e := newRelayServer(t, upstream.URL, WithRateLimit(ratelimit.New(), 0.001, 1))
	if rec := postStream(e, `{}`, nil); rec.Code != http.StatusOK {
		t.Fatalf("first status = %d", rec.Code)
	}
	if rec := postStream(e, `{}`, nil); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", rec.Code)
	}
}

// firstWriteRecorder signals once the first body bytes reach the client.
type firstWriteRecorder struct {
	*httptest.ResponseRecorder
	once  sync.Once
	wrote chan struct{}
}

func (r *firstWriteRecorder) Write(b []byte) (int, error) {
	n, err := r.ResponseRecorder.Write(b)
	r.once.Do(func() { close(r.wrote) })
	return n, err
}

func TestRelayClientCancelAbortsUpstream(t *testing.T) {
	upstreamGone := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: first\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
			close(upstreamGone)
		case <-time.After(5 * time.Second):
		}
	}))
	defer upstream.Close()

	e := newRelayServer(t, upstream.URL)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/chat/stream", strings.NewReader(`{"messages":[]}`)).WithContext(ctx)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := &firstWriteRecorder{ResponseRecorder: httptest.NewRecorder(), wrote: make(chan struct{})}

	served := make(chan struct{})
	go func() {
		defer close(served)
		e.ServeHTTP(rec, req)
	}()

	select {
	case <-rec.wrote:
	case <-time.After(5 * time.Second):
		t.Fatal("first chunk never reached the client")
	}
	cancel()

	select {
	case <-upstreamGone:
	case <-time.After(5 * time.Second):
		t.Fatal("upstream request was not cancelled with the inbound request")
	}
	select {
	case <-served:
	case <-time.After(5 * time.Second):
		t.Fatal("handler kept streaming after the client went away")
	}
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "data: first") {
		t.Fatalf("status = %d body = %q", rec.Code, rec.Body.String())
	}
}
