package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const DefaultURL = "https://api.apollo.io/v1/people/match"

// Response is the fully buffered upstream reply.
type Response struct {
	StatusCode int
	StatusText string
	Header     http.Header
	Body       []byte
	Latency    time.Duration
}

// OK reports a 2xx status.
func (r *Response) OK() bool { return r.StatusCode/100 == 2 }

// TransportError means the upstream could not be reached or its body could not be read.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("upstream %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Forwarder sends the caller's body to the enrichment endpoint.
type Forwarder interface {
	Forward(ctx context.Context, body []byte) (*Response, error)
}

type HTTPForwarder struct {
	url    string
	client *http.Client
}

// NewHTTPForwarder builds a forwarder for url. A zero timeout leaves the client
// without a deadline; the request context still applies.
func NewHTTPForwarder(url string, timeout time.Duration) *HTTPForwarder {
	if url == "" {
		url = DefaultURL
	}
	if timeout < 0 {
		timeout = 0
	}

	return &HTTPForwarder{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (f *HTTPForwarder) URL() string { return f.url }

func (f *HTTPForwarder) Forward(ctx context.Context, body []byte) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	res, err := f.client.Do(req)
	if err != nil {
		return nil, &TransportError{URL: f.url, Err: err}
	}

	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, &TransportError{URL: f.url, Err: fmt.Errorf("read body: %w", err)}
	}

	return &Response{
		StatusCode: res.StatusCode,
		StatusText: statusText(res.Status, res.StatusCode),
		Header:     res.Header.Clone(),
		Body:       raw,
		Latency:    time.Since(start),
	}, nil
}

// statusText extracts the reason phrase from "422 Unprocessable Entity".
func statusText(status string, code int) string {
	if rest, ok := strings.CutPrefix(status, strconv.Itoa(code)); ok {
		if s := strings.TrimSpace(rest); s != "" {
			return s
		}
	}
	return http.StatusText(code)
}
