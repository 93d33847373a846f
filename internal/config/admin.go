package config

import "github.com/RoMcHiKo0o/ratelimiter/internal/ratelimit"

// DecodeSource decodes a single source entry -- the shape POSTed to
// /admin/add_api is identical to one element of the config file's
// "sources" array -- applying the same defaults and validation as the
// file loader.
func DecodeSource(entry map[string]any) (ratelimit.Source, error) {
	return decodeOne(entry)
}
