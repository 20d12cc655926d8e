//go:build !windows

package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServerScript is a minimal MCP stdio server: it answers "initialize"
// and "tools/list" with canned results and echoes "tools/call" back as a
// success payload. It ignores anything else. Good enough to exercise the
// Session/Manager framing without a real backend binary.
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
            {"name": "echo", "description": "echoes input", "inputSchema": {}}
        ]}})
    elif method == "tools/call":
        write({"jsonrpc": "2.0", "id": rid, "result": {"isError": False, "echoed": req.get("params")}})
`

func connectFakeBackend(t *testing.T) (*Manager, string) {
	t.Helper()
	m := NewManager()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := m.Connect(ctx, "fake", BackendSpec{
		Command: "python3",
		Args:    []string{"-c", fakeServerScript},
	})
	require.NoError(t, err)
	return m, "fake"
}

func TestConnectListToolsCallToolDisconnect(t *testing.T) {
	t.Parallel()
	m, name := connectFakeBackend(t)
	defer m.ShutdownAll()

	s, ok := m.Get(name)
	require.True(t, ok)
	assert.Equal(t, StatusConnected, s.Status())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tools, err := m.ListTools(ctx, name)
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "echo", tools[0].Name)

	result, err := m.CallTool(ctx, name, "echo", map[string]any{"x": 1})
	require.NoError(t, err)
	assert.False(t, result.IsError)

	m.Disconnect(name)
	_, ok = m.Get(name)
	assert.False(t, ok)
}

func TestConnectIsIdempotent(t *testing.T) {
	t.Parallel()
	m, name := connectFakeBackend(t)
	defer m.ShutdownAll()

	first, _ := m.Get(name)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	second, err := m.Connect(ctx, name, BackendSpec{Command: "python3", Args: []string{"-c", fakeServerScript}})
	require.NoError(t, err)

	assert.Same(t, first, second)
}

func TestDisconnectUnknownNameIsNoop(t *testing.T) {
	t.Parallel()
	m := NewManager()
	m.Disconnect("never-connected") // must not panic
}

// hangingServerScript spawns cleanly and reads stdin but never writes a
// response, simulating a backend stuck mid-handshake rather than one that
// exits immediately.
const hangingServerScript = `
import sys, time
sys.stdin.read()
time.sleep(60)
`

func TestConnectTimesOutOnHangingHandshake(t *testing.T) {
	t.Parallel()
	m := NewManager()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := m.Connect(ctx, "stuck", BackendSpec{
		Command: "python3",
		Args:    []string{"-c", hangingServerScript},
	})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Less(t, elapsed, 5*time.Second, "Connect must not block past the handshake deadline")

	s, ok := m.Get("stuck")
	require.True(t, ok)
	assert.Equal(t, StatusFailed, s.Status())

	m.ShutdownAll()
}

func TestConnectFailsOnBadCommand(t *testing.T) {
	t.Parallel()
	m := NewManager()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := m.Connect(ctx, "bad", BackendSpec{Command: "/no/such/binary"})
	assert.Error(t, err)

	// A connect failure must not erase the backend's record: it stays
	// listable as failed, and a later Connect can still retry it.
	s, ok := m.Get("bad")
	assert.True(t, ok)
	assert.Equal(t, StatusFailed, s.Status())
	assert.Contains(t, m.Names(), "bad")
}
