package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/RoMcHiKo0o/ratelimiter/internal/ratelimit"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "apis.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_DecodesSourcesAndAppliesDefaults(t *testing.T) {
	require := require.New(t)

	path := writeTempConfig(t, `{
		"sources": [
			{"identifier": {"url": "http://h/a", "method": "GET"}, "rate_limit": {"interval": 1.0, "RPD": 10}},
			{"identifier": {"url": "http://h/b"}}
		]
	}`)

	file, err := Load(path)
	require.NoError(err)
	require.Empty(file.Errors)
	require.Len(file.Sources, 2)

	require.Equal("GET", file.Sources[0].Identifier.Method)
	require.Equal(10, file.Sources[0].RateLimit.RPD)

	require.Equal("ANY", file.Sources[1].Identifier.Method)
	require.Equal(-1, file.Sources[1].RateLimit.RPD)
	require.Equal(ratelimit.DefaultConfig().Interval, file.Sources[1].RateLimit.Interval)
}

func TestLoad_ExplicitZeroIntervalSurvivesDefaulting(t *testing.T) {
	require := require.New(t)

	path := writeTempConfig(t, `{
		"sources": [
			{"identifier": {"url": "http://h/a", "method": "GET"}, "rate_limit": {"interval": 0}}
		]
	}`)

	file, err := Load(path)
	require.NoError(err)
	require.Len(file.Sources, 1)
	require.Equal(0.0, file.Sources[0].RateLimit.Interval)
}

func TestLoad_CollectsPerEntryErrorsWithoutFailing(t *testing.T) {
	require := require.New(t)

	path := writeTempConfig(t, `{
		"sources": [
			{"identifier": {"url": "http://h/a", "method": "GET"}},
			{"identifier": {"url": "not-a-url"}},
			{"identifier": {"url": "http://h/c", "method": "BOGUS"}}
		]
	}`)

	file, err := Load(path)
	require.NoError(err)
	require.Len(file.Sources, 1)
	require.Len(file.Errors, 2)
}

func TestLoad_RejectsUnknownIdentifierKeys(t *testing.T) {
	require := require.New(t)

	path := writeTempConfig(t, `{"sources": [{"identifier": {"url": "http://h/a", "bogus": "x"}}]}`)

	file, err := Load(path)
	require.NoError(err)
	require.Empty(file.Sources)
	require.Len(file.Errors, 1)
}

func TestLoad_MissingFileIsFatal(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	require.Error(t, err)
}

func TestLoad_InvalidJSONIsFatal(t *testing.T) {
	path := writeTempConfig(t, `not json`)
	_, err := Load(path)
	require.Error(t, err)
}
