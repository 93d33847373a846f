// Package config loads the JSON configuration file and watches it for
// hot-reloadable additions.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"

	"github.com/RoMcHiKo0o/ratelimiter/internal/identifier"
	"github.com/RoMcHiKo0o/ratelimiter/internal/ratelimit"
)

// rawFile mirrors the on-disk JSON shape before defaults are applied.
type rawFile struct {
	Sources []map[string]any `json:"sources"`
}

// File is a fully decoded, default-applied configuration file.
type File struct {
	Sources []ratelimit.Source
	// Errors holds one entry per source that failed to decode or
	// validate; these are logged and skipped, never fatal.
	Errors []error
}

// Load reads and decodes the configuration file at path. A read or
// top-level JSON error is fatal (there is nothing to start); per-entry
// problems are collected into File.Errors instead of failing the
// load.
func Load(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var parsed rawFile
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	return decode(parsed), nil
}

// decode converts each raw source entry into a validated
// ratelimit.Source, applying baseline defaults via mapstructure.
func decode(parsed rawFile) *File {
	file := &File{}
	for i, entry := range parsed.Sources {
		src, err := decodeOne(entry)
		if err != nil {
			file.Errors = append(file.Errors, fmt.Errorf("source[%d]: %w", i, err))
			continue
		}
		file.Sources = append(file.Sources, src)
	}
	return file
}

func decodeOne(entry map[string]any) (ratelimit.Source, error) {
	var shape struct {
		Identifier map[string]any `mapstructure:"identifier"`
		RateLimit  map[string]any `mapstructure:"rate_limit"`
	}
	if err := mapstructure.Decode(entry, &shape); err != nil {
		return ratelimit.Source{}, fmt.Errorf("decoding source: %w", err)
	}

	var id identifier.Identifier
	if err := mapstructure.Decode(shape.Identifier, &id); err != nil {
		return ratelimit.Source{}, fmt.Errorf("decoding identifier: %w", err)
	}
	id = id.WithDefaults()
	if err := id.Validate(); err != nil {
		return ratelimit.Source{}, err
	}

	if len(shape.Identifier) > 0 {
		for k := range shape.Identifier {
			switch k {
			case "url", "method", "extra":
			default:
				return ratelimit.Source{}, fmt.Errorf("identifier has unknown key %q", k)
			}
		}
	}

	// Seed with the baseline config, then decode on top of it: a key
	// absent from rate_limit leaves the seeded default in place, while
	// an explicit value -- including a legitimate "interval": 0 -- is
	// honoured as-is. Do not call WithDefaults after this: it cannot
	// tell an explicit zero from an absent key and would clobber it.
	cfg := ratelimit.DefaultConfig()
	if err := mapstructure.Decode(shape.RateLimit, &cfg); err != nil {
		return ratelimit.Source{}, fmt.Errorf("decoding rate_limit: %w", err)
	}

	return ratelimit.Source{Identifier: id, RateLimit: cfg}, nil
}
