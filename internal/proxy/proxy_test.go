//go:build !windows

package proxy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shuaige121/tool-gating-mcp/internal/registry"
	"github.com/shuaige121/tool-gating-mcp/internal/session"
)

const fakeServerScript = `
import sys, json

def write(obj):
    sys.stdout.write(json.dumps(obj) + "\n")
    sys.stdout.flush()

for line in sys.stdin:
    line = line.strip()
    if not line:
        continue
    req = json.loads(line)
    method = req.get("method")
    rid = req.get("id")
    if method == "initialize":
        write({"jsonrpc": "2.0", "id": rid, "result": {"capabilities": {}}})
    elif method == "notifications/initialized":
        continue
    elif method == "tools/list":
        write({"jsonrpc": "2.0", "id": rid, "result": {"tools": [
            {"name": "search", "description": "search the web", "inputSchema": {}}
        ]}})
    elif method == "tools/call":
        write({"jsonrpc": "2.0", "id": rid, "result": {"isError": False}})
`

func newTestProxy() (*Proxy, *registry.Registry, *session.Manager) {
	reg := registry.New(nil)
	sessions := session.NewManager()
	return New(reg, sessions), reg, sessions
}

func TestStartupIndexesToolsWithNamespacedID(t *testing.T) {
	t.Parallel()
	p, reg, sessions := newTestProxy()
	defer sessions.ShutdownAll()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	results := p.Startup(ctx, map[string]session.BackendSpec{
		"exa": {Command: "python3", Args: []string{"-c", fakeServerScript}},
	})

	require.Len(t, results, 1)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, 1, results[0].ToolCount)

	tool, err := reg.Get("exa_search")
	require.NoError(t, err)
	assert.Equal(t, "search", tool.Name)
	assert.Equal(t, "exa", tool.Backend)
}

func TestStartupIsolatesBackendFailures(t *testing.T) {
	t.Parallel()
	p, reg, sessions := newTestProxy()
	defer sessions.ShutdownAll()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	results := p.Startup(ctx, map[string]session.BackendSpec{
		"good": {Command: "python3", Args: []string{"-c", fakeServerScript}},
		"bad":  {Command: "/no/such/binary"},
	})

	require.Len(t, results, 2)
	var sawGood, sawBad bool
	for _, r := range results {
		if r.Name == "good" {
			sawGood = true
			assert.NoError(t, r.Err)
		}
		if r.Name == "bad" {
			sawBad = true
			assert.Error(t, r.Err)
		}
	}
	assert.True(t, sawGood)
	assert.True(t, sawBad)
	assert.Equal(t, 1, reg.Count())
}

func TestExecuteRoutesToOwningBackend(t *testing.T) {
	t.Parallel()
	p, _, sessions := newTestProxy()
	defer sessions.ShutdownAll()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p.Startup(ctx, map[string]session.BackendSpec{
		"exa": {Command: "python3", Args: []string{"-c", fakeServerScript}},
	})

	result, err := p.Execute(ctx, "exa_search", map[string]any{"q": "cats"})
	require.NoError(t, err)
	assert.False(t, result.IsError)
}

func TestExecuteUnknownToolID(t *testing.T) {
	t.Parallel()
	p, _, sessions := newTestProxy()
	defer sessions.ShutdownAll()

	_, err := p.Execute(context.Background(), "missing_tool", nil)
	assert.Error(t, err)
}

func TestRemoveServerDeletesOwnedTools(t *testing.T) {
	t.Parallel()
	p, reg, sessions := newTestProxy()
	defer sessions.ShutdownAll()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p.Startup(ctx, map[string]session.BackendSpec{
		"exa": {Command: "python3", Args: []string{"-c", fakeServerScript}},
	})
	require.Equal(t, 1, reg.Count())

	removed := p.RemoveServer("exa")
	assert.Equal(t, 1, removed)
	assert.Equal(t, 0, reg.Count())
}

func TestAddServerWithTrustedTools(t *testing.T) {
	t.Parallel()
	p, reg, sessions := newTestProxy()
	defer sessions.ShutdownAll()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	count, err := p.AddServer(ctx, "exa", session.BackendSpec{Command: "python3", Args: []string{"-c", fakeServerScript}},
		[]registry.Tool{{ID: "exa_search", Name: "search", Description: "web search"}})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	tool, err := reg.Get("exa_search")
	require.NoError(t, err)
	assert.Equal(t, "exa", tool.Backend)
}
