// Package logutil builds the hclog.Logger used across the proxy from
// a level name and a JSON-output flag.
package logutil

import (
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
)

// New returns an hclog.Logger writing to stderr at level, in JSON
// format when json is true. It returns an error if level does not
// name a known hclog level.
func New(level string, json bool) (hclog.Logger, error) {
	parsed := hclog.LevelFromString(level)
	if parsed == hclog.NoLevel {
		return nil, fmt.Errorf("unknown log level: %s", level)
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:       "ratelimiter",
		JSONFormat: json,
		Level:      parsed,
		Output:     os.Stderr,
	}), nil
}
