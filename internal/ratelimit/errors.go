package ratelimit

import "fmt"

// ShutdownEnvelope is the error envelope given to callers whose
// request was enqueued but never dispatched because the worker shut
// down first.
func ShutdownEnvelope() Envelope {
	return Envelope{Err: "shutdown: upstream worker stopped before this request was dispatched"}
}

// TransportErrorEnvelope wraps a dispatcher failure into the standard
// error envelope shape: {"error": "<kind>: <message>"}.
func TransportErrorEnvelope(kind string, err error) Envelope {
	return Envelope{Err: fmt.Sprintf("%s: %s", kind, err.Error())}
}
