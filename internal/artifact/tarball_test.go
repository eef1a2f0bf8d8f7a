package artifact

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTarballDeterministic(t *testing.T) {
	entries := []Entry{
		{Name: "package/package.json", Content: []byte(`{"name":"@a/b"}`)},
		{Name: "package/index.mjs", Content: []byte(`export default 1;`)},
	}

	first, err := Tarball(entries)
	require.NoError(t, err)
	second, err := Tarball(entries)
	require.NoError(t, err)

	assert.Equal(t, first, second)

	decoded, err := ReadTarball(bytes.NewReader(first))
	require.NoError(t, err)
	assert.Equal(t, entries, decoded)
}

func TestReadTarballRejectsGarbage(t *testing.T) {
	_, err := ReadTarball(bytes.NewReader([]byte("not an archive")))
	assert.Error(t, err)
}
