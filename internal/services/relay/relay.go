package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"ProbDesk/internal/domain/models"
	xhttp "ProbDesk/pkg/http"
)

const (
	StreamPath       = "/chat/stream"
	DefaultChunkSize = 4096
)

// Request is an inbound relay call. Body is forwarded verbatim.
type Request struct {
	Body          []byte
	Authorization string
	RequestID     string
}

// Relay forwards one request to the upstream inference backend and pipes the
// response back. One attempt per call, no retry.
type Relay struct {
	endpoint  string
	client    *xhttp.Client
	maxBody   int64
	chunkSize int
}

type Option func(*Relay)

func WithMaxBodyBytes(n int64) Option {
	return func(r *Relay) {
		if n > 0 {
			r.maxBody = n
		}
	}
}

func WithChunkSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.chunkSize = n
		}
	}
}

// WithClient replaces the outbound client; it must not carry a total timeout.
func WithClient(c *xhttp.Client) Option {
	return func(r *Relay) {
		if c != nil {
			r.client = c
		}
	}
}

func New(upstreamBase string, opts ...Option) *Relay {
	r := &Relay{
		endpoint:  strings.TrimRight(upstreamBase, "/") + StreamPath,
		maxBody:   1 << 20,
		chunkSize: DefaultChunkSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.client == nil {
		r.client = xhttp.NewClient(xhttp.WithTimeout(0))
	}
	return r
}

func (r *Relay) Endpoint() string { return r.endpoint }

func (r *Relay) MaxBodyBytes() int64 { return r.maxBody }

// ReadBody reads at most the configured limit and checks that it is JSON.
func (r *Relay) ReadBody(body io.Reader) ([]byte, error) {
	if body == nil {
		return nil, models.NewValidationError("body", "is required")
	}
	b, err := io.ReadAll(io.LimitReader(body, r.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(b)) > r.maxBody {
		return nil, models.NewValidationError("body", fmt.Sprintf("exceeds %d bytes", r.maxBody))
	}
	if !json.Valid(b) {
		return nil, models.NewValidationError("body", "must be valid JSON")
	}
	return b, nil
}

// Open sends the request upstream. On a 2xx it returns the live response
// whose body the caller must close. Any other outcome is an *UpstreamError;
// when the upstream answered, the error carries its response for passthrough.
// ctx should be the inbound request context so a client disconnect aborts
// the outbound call.
func (r *Relay) Open(ctx context.Context, req Request) (*http.Response, error) {
	headers := map[string]string{
		"Content-Type": "application/json",
		"Accept":       "text/event-stream",
	}
	if req.Authorization != "" {
		headers["Authorization"] = req.Authorization
	}
	if req.RequestID != "" {
		headers["X-Request-ID"] = req.RequestID
	}

	resp, err := r.client.SendRequest(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodPost,
		URL:     r.endpoint,
		Headers: headers,
		Body:    req.Body,
	})
	if err != nil {
		return nil, &models.UpstreamError{Op: "send", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &models.UpstreamError{Op: "status", Status: resp.StatusCode, Response: resp}
	}
	return resp, nil
}

// Pipe copies src to dst chunk by chunk, flushing after every write when dst
// supports it. Nothing is buffered beyond one chunk.
func (r *Relay) Pipe(dst io.Writer, src io.Reader) (int64, error) {
	flusher, _ := dst.(http.Flusher)
	buf := make([]byte, r.chunkSize)
	var written int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			w, werr := dst.Write(buf[:n])
			written += int64(w)
			if werr != nil {
				return written, fmt.Errorf("write downstream: %w", werr)
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return written, nil
			}
			return written, fmt.Errorf("read upstream: %w", rerr)
		}
	}
}
