package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/RoMcHiKo0o/ratelimiter/internal/identifier"
	"github.com/RoMcHiKo0o/ratelimiter/internal/ratelimit"
)

const (
	headerIdentifierExtra = "X-Identifier-Extra"
	headerPriority        = "X-Priority"
)

// intake is the single HTTP entry point: it matches the inbound call
// to a configured upstream, applies quota, enqueues the work, and
// writes back whatever the worker produced.
func (s *Server) intake(w http.ResponseWriter, r *http.Request) {
	// Reject unknown methods before matching, rather than forwarding
	// only a configured subset silently.
	if !identifier.AllowedMethods[r.Method] {
		writeErr(w, http.StatusBadRequest, "unsupported HTTP method "+r.Method)
		return
	}

	extra := r.Header.Get(headerIdentifierExtra)
	r.Header.Del(headerIdentifierExtra)

	priority := 0
	if raw := r.Header.Get(headerPriority); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil {
			s.log.Warn("x-priority must be int-like, treating as 0", "got", raw)
		} else {
			priority = p
		}
	}
	r.Header.Del(headerPriority)

	urlTail := strings.TrimPrefix(r.URL.Path, "/")

	matches, err := s.registry.Matcher().Find(urlTail, r.Method, extra, identifier.First)
	if err != nil || len(matches) == 0 {
		writeMsg(w, http.StatusBadRequest, "no api with such identifier")
		return
	}
	matched := matches[0]

	upstream, ok := s.registry.Lookup(matched.Key())
	if !ok {
		writeMsg(w, http.StatusBadRequest, "no api with such identifier")
		return
	}

	if !upstream.IncrementIfAllowed() {
		writeMsg(w, http.StatusTooManyRequests, "daily quota reached")
		return
	}

	body := readJSONBody(r)
	req := ratelimit.Request{
		URL:     matched.URL,
		Method:  r.Method,
		Headers: map[string][]string(r.Header),
		Query:   map[string][]string(r.URL.Query()),
		Body:    body,
	}

	completion := upstream.Enqueue(-priority, req)
	env := <-completion
	writeEnvelope(w, env, s.transportErrorStatus)
}

// readJSONBody reads and decodes an optional JSON body. An empty body
// or a decode failure both yield nil rather than an error, since a
// missing or malformed body is not itself a client error here.
func readJSONBody(r *http.Request) any {
	if r.Body == nil {
		return nil
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil || len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}
