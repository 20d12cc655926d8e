package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "backends.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, `{
		"servers": {
			"exa": {"command": "exa-mcp-server", "args": ["--stdio"], "env": {"EXA_API_KEY": "x"}}
		}
	}`)

	file, err := Load(path)
	require.NoError(t, err)
	require.Contains(t, file.Servers, "exa")
	assert.Equal(t, "exa-mcp-server", file.Servers["exa"].Command)
	assert.Equal(t, []string{"--stdio"}, file.Servers["exa"].Args)
}

func TestLoadMissingCommandFails(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, `{"servers": {"exa": {"args": ["--stdio"]}}}`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingArgsDefaultsToEmpty(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, `{"servers": {"exa": {"command": "exa-mcp-server"}}}`)

	file, err := Load(path)
	require.NoError(t, err)
	assert.NotNil(t, file.Servers["exa"].Args)
	assert.Empty(t, file.Servers["exa"].Args)
}

func TestLoadBackendNameWithUnderscoreFails(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, `{"servers": {"web_search": {"command": "web-search-mcp"}}}`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadBackendNameWithHyphenSucceeds(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, `{"servers": {"web-search": {"command": "web-search-mcp"}}}`)

	file, err := Load(path)
	require.NoError(t, err)
	assert.Contains(t, file.Servers, "web-search")
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	assert.Error(t, err)
}

func TestLoadMalformedJSON(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, `{not valid json`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestToBackendSpecs(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, `{"servers": {"exa": {"command": "exa-mcp-server", "args": ["--stdio"]}}}`)
	file, err := Load(path)
	require.NoError(t, err)

	specs := file.ToBackendSpecs()
	require.Contains(t, specs, "exa")
	assert.Equal(t, "exa-mcp-server", specs["exa"].Command)
}
