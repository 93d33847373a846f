// Package httpapi is the HTTP-facing surface: request intake and the
// admin endpoints. It owns response envelope encoding; hop-by-hop
// response headers are already stripped by internal/upstreamclient
// before an envelope reaches this package.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/RoMcHiKo0o/ratelimiter/internal/ratelimit"
)

// writeJSON writes status and v as a JSON body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMsg(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"msg": msg})
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeEnvelope surfaces a dispatch envelope verbatim to the caller.
// Transport errors (Envelope.Err set, Status left unset by the
// dispatcher) are surfaced with transportErrorStatus -- 502 by
// default, or 200 for compatibility with callers that expect a 200
// wrapper -- everything else passes through with the upstream's own
// status code.
func writeEnvelope(w http.ResponseWriter, env ratelimit.Envelope, transportErrorStatus int) {
	if env.IsError() {
		writeErr(w, transportErrorStatus, env.Err)
		return
	}

	header := w.Header()
	for name, values := range env.Headers {
		for _, v := range values {
			header.Add(name, v)
		}
	}
	header.Set("Content-Type", "application/json")
	w.WriteHeader(env.Status)
	_ = json.NewEncoder(w).Encode(env.Body)
}
