// Package upstreamclient provides the concrete outbound HTTP client
// collaborator: it dispatches a ratelimit.Request and produces a
// ratelimit.Envelope, with no retries and no streaming (request and
// response bodies are buffered JSON).
package upstreamclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/hashicorp/go-cleanhttp"

	"github.com/RoMcHiKo0o/ratelimiter/internal/ratelimit"
)

// hopByHopResponseHeaders are stripped from the forwarded response so
// the server framing the caller sees describes the bytes actually
// written, not the upstream's.
var hopByHopResponseHeaders = map[string]bool{
	"Content-Length":    true,
	"Content-Encoding":  true,
	"Transfer-Encoding": true,
}

// Client dispatches requests to configured upstreams over a pooled
// HTTP transport (github.com/hashicorp/go-cleanhttp).
type Client struct {
	http *http.Client
}

// New builds a Client backed by cleanhttp's pooled transport. No
// retry transport is layered on top; failed upstream calls are
// surfaced to the caller rather than retried.
func New() *Client {
	return &Client{
		http: &http.Client{Transport: cleanhttp.DefaultPooledTransport()},
	}
}

var _ ratelimit.Dispatcher = (*Client)(nil)

// Dispatch performs the outbound call and decodes it into an
// envelope. Transport failures produce an error envelope with Status
// left unset; the caller decides what HTTP status to surface for that
// case (see httpapi.Options.TransportErrorStatus).
func (c *Client) Dispatch(ctx context.Context, req ratelimit.Request) ratelimit.Envelope {
	body, kind, err := c.encodeBody(req.Body)
	if err != nil {
		return ratelimit.TransportErrorEnvelope(kind, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.withQuery(req.URL, req.Query), body)
	if err != nil {
		return ratelimit.TransportErrorEnvelope("request_error", err)
	}
	for name, values := range req.Headers {
		for _, v := range values {
			httpReq.Header.Add(name, v)
		}
	}
	if body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return ratelimit.TransportErrorEnvelope("transport_error", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return ratelimit.TransportErrorEnvelope("read_error", err)
	}

	var decoded any
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return ratelimit.TransportErrorEnvelope("decode_error", err)
		}
	}

	headers := make(map[string][]string, len(resp.Header))
	for name, values := range resp.Header {
		if hopByHopResponseHeaders[http.CanonicalHeaderKey(name)] {
			continue
		}
		headers[name] = values
	}

	return ratelimit.Envelope{Status: resp.StatusCode, Headers: headers, Body: decoded}
}

func (c *Client) encodeBody(body any) (io.Reader, string, error) {
	if body == nil {
		return nil, "", nil
	}
	if m, ok := body.(map[string]any); ok && len(m) == 0 {
		return nil, "", nil
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, "encode_error", fmt.Errorf("encoding request body: %w", err)
	}
	return bytes.NewReader(b), "", nil
}

func (c *Client) withQuery(rawURL string, query map[string][]string) string {
	if len(query) == 0 {
		return rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	for k, values := range query {
		for _, v := range values {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// StrippedHeaderNames is exposed for tests asserting the response
// filtering behaviour without duplicating the hop-by-hop set.
func StrippedHeaderNames() []string {
	names := make([]string, 0, len(hopByHopResponseHeaders))
	for k := range hopByHopResponseHeaders {
		names = append(names, k)
	}
	return names
}
