// Package identifier implements the (url, method, extra) triple that
// names an upstream, its canonical registry key, and the longest-prefix
// matcher that maps an inbound request to a registered identifier.
package identifier

import (
	"encoding/json"
	"fmt"
	"net/url"
)

// MethodAny is the wildcard HTTP method: an identifier registered with
// it matches a request with any method.
const MethodAny = "ANY"

// AllowedMethods are the nine standard HTTP methods accepted by the
// config loader and admin surface.
var AllowedMethods = map[string]bool{
	"GET":     true,
	"HEAD":    true,
	"POST":    true,
	"PUT":     true,
	"DELETE":  true,
	"CONNECT": true,
	"OPTIONS": true,
	"TRACE":   true,
	"PATCH":   true,
}

// Identifier is the triple that names an upstream. It is immutable
// once registered.
type Identifier struct {
	URL    string `json:"url"`
	Method string `json:"method"`
	Extra  string `json:"extra"`
}

// WithDefaults returns a copy with Method defaulted to MethodAny when
// empty.
func (id Identifier) WithDefaults() Identifier {
	if id.Method == "" {
		id.Method = MethodAny
	}
	return id
}

// Validate checks that URL is a parsable absolute http(s) URL and that
// Method is one of the allowed methods or MethodAny.
func (id Identifier) Validate() error {
	if id.URL == "" {
		return fmt.Errorf("identifier: url is required")
	}
	u, err := url.Parse(id.URL)
	if err != nil {
		return fmt.Errorf("identifier: invalid url %q: %w", id.URL, err)
	}
	if !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("identifier: url %q must be an absolute http(s) url", id.URL)
	}
	if u.Host == "" {
		return fmt.Errorf("identifier: url %q is missing a host", id.URL)
	}
	if id.Method != MethodAny && !AllowedMethods[id.Method] {
		return fmt.Errorf("identifier: unprocessable method %q", id.Method)
	}
	return nil
}

// Key returns the canonical registry key: the JSON serialisation of
// the triple with keys sorted and stable UTF-8, so that identifier
// equality reduces to string equality.
func (id Identifier) Key() string {
	// encoding/json marshals struct fields in declaration order, which
	// is not alphabetical; sort explicitly so the key is independent
	// of the Go struct layout.
	ordered := struct {
		Extra  string `json:"extra"`
		Method string `json:"method"`
		URL    string `json:"url"`
	}{Extra: id.Extra, Method: id.Method, URL: id.URL}

	b, err := json.Marshal(ordered)
	if err != nil {
		// Identifier fields are plain strings; marshalling cannot fail.
		panic(fmt.Sprintf("identifier: key marshal: %v", err))
	}
	return string(b)
}

// KeyFrom parses a canonical key back into an Identifier. Used by the
// admin get_apis surface's consumers and by tests.
func KeyFrom(key string) (Identifier, error) {
	var id Identifier
	if err := json.Unmarshal([]byte(key), &id); err != nil {
		return Identifier{}, fmt.Errorf("identifier: invalid key %q: %w", key, err)
	}
	return id, nil
}
