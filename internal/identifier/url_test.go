package identifier

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestDecomposePrefixes(t *testing.T) {
	got, err := DecomposePrefixes("https://h/a/b/c")
	require.NoError(t, err)

	want := []string{"https://h/a", "https://h/a/b", "https://h/a/b/c"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DecomposePrefixes mismatch (-want +got):\n%s", diff)
	}
}

func TestDecomposePrefixes_EmptyPath(t *testing.T) {
	got, err := DecomposePrefixes("https://h")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestDecomposePrefixes_LastElementIsInput(t *testing.T) {
	require := require.New(t)

	for _, raw := range []string{
		"http://h:9/a",
		"http://h:9/a/b/c",
		"https://example.com/x/y",
	} {
		prefixes, err := DecomposePrefixes(raw)
		require.NoError(err)
		require.NotEmpty(prefixes)
		require.Equal(raw, prefixes[len(prefixes)-1])
	}
}

func TestDecomposePrefixes_DropsEmptySegments(t *testing.T) {
	got, err := DecomposePrefixes("http://h//a//b/")
	require.NoError(t, err)
	require.Equal(t, []string{"http://h/a", "http://h/a/b"}, got)
}

func TestDecomposePrefixes_InvalidURL(t *testing.T) {
	_, err := DecomposePrefixes("http://[::1")
	require.Error(t, err)
}
