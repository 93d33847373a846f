package ratelimit

import "context"

// Dispatcher is the outbound HTTP client collaborator, specified here
// only by its contract so this package's tests can fake it.
// internal/upstreamclient provides the concrete implementation used in
// production.
type Dispatcher interface {
	Dispatch(ctx context.Context, req Request) Envelope
}
