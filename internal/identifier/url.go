package identifier

import (
	"fmt"
	"net/url"
	"strings"
)

// DecomposePrefixes decomposes an absolute URL into its ordered list
// of path-prefix URLs, least to most specific. The scheme and
// authority are preserved verbatim; the path is split on "/", empty
// segments are dropped, and prefixes are reconstructed by joining
// 1..k of them onto the authority. The input URL itself is the last
// element. Query and fragment are discarded.
//
// https://h/a/b/c -> [https://h/a, https://h/a/b, https://h/a/b/c]
//
// A URL with an empty path produces an empty list: no upstream can be
// registered for a bare host.
func DecomposePrefixes(rawURL string) ([]string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("url: invalid url %q: %w", rawURL, err)
	}

	segments := make([]string, 0)
	for _, seg := range strings.Split(u.Path, "/") {
		if seg != "" {
			segments = append(segments, seg)
		}
	}
	if len(segments) == 0 {
		return nil, nil
	}

	authority := u.Scheme + "://" + u.Host
	prefixes := make([]string, 0, len(segments))
	for i := range segments {
		prefixes = append(prefixes, authority+"/"+strings.Join(segments[:i+1], "/"))
	}
	return prefixes, nil
}
