package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsPresent(t *testing.T) {
	entries, err := fs.ReadDir(FS, "sql")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		assert.True(t, strings.HasSuffix(e.Name(), ".sql"), "unexpected file %s", e.Name())
		names = append(names, e.Name())
	}
	assert.Contains(t, names, "00001_init.sql")
}

func TestEmbeddedMigrationsReadable(t *testing.T) {
	data, err := fs.ReadFile(FS, "sql/00001_init.sql")
	require.NoError(t, err)
	assert.Contains(t, string(data), "+goose Up")
	assert.Contains(t, string(data), "CREATE TABLE")
}
