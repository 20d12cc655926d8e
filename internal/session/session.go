// Package session owns the lifecycle of backend MCP connections over
// stdio: spawning the subprocess, performing the MCP initialization
// handshake, and routing correlated JSON-RPC requests and responses across
// one reader loop per backend.
//
// The protocol framing here is deliberately explicit rather than delegated
// to a client SDK: each session needs direct control of its subprocess
// (for the SIGTERM/SIGKILL disconnect escalation) and of its correlator
// map (so a session failure can resolve every in-flight call at once).
package session

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shuaige121/tool-gating-mcp/internal/apperr"
	"github.com/shuaige121/tool-gating-mcp/internal/logger"
	"github.com/shuaige121/tool-gating-mcp/internal/procutil"
)

// Status is a session's position in the pending -> connecting -> connected
// -> {closing -> closed | failed} state machine.
type Status string

const (
	StatusPending     Status = "pending"
	StatusConnecting  Status = "connecting"
	StatusConnected   Status = "connected"
	StatusClosing     Status = "closing"
	StatusClosed      Status = "closed"
	StatusFailed      Status = "failed"
)

const (
	protocolVersion       = "2024-11-05"
	clientName            = "tool-gating-mcp"
	clientVersion         = "0.1.0"
	defaultCallTimeout    = 30 * time.Second
	defaultConnectTimeout = 15 * time.Second
	defaultDisconnectWait = 5 * time.Second
)

// BackendSpec is the launch specification for a backend subprocess.
type BackendSpec struct {
	Command string
	Args    []string
	Env     map[string]string
}

// NativeTool is a tool as reported by a backend's tools/list response,
// before it is given a namespaced id and indexed into the Registry.
type NativeTool struct {
	Name            string
	Description     string
	InputSchema     json.RawMessage
	EstimatedTokens int
}

// CallResult is the payload of a successful tools/call response, forwarded
// to the caller untouched.
type CallResult struct {
	Content json.RawMessage
	IsError bool
}

type jsonrpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type jsonrpcNotification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type jsonrpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Session is one live bidirectional MCP channel over a child process's
// stdio. It owns the subprocess handle, the request/response correlator,
// and the send-side mutex serializing writes.
type Session struct {
	name string
	spec BackendSpec

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	sendMu sync.Mutex
	nextID int64

	pendingMu sync.Mutex
	pending   map[int64]chan *jsonrpcResponse

	status atomic.Value // Status

	readerDone chan struct{}
}

func (s *Session) setStatus(st Status) { s.status.Store(st) }

// Status returns the session's current state.
func (s *Session) Status() Status {
	if v, ok := s.status.Load().(Status); ok {
		return v
	}
	return StatusPending
}

func newSession(name string, spec BackendSpec) *Session {
	s := &Session{
		name:       name,
		spec:       spec,
		pending:    make(map[int64]chan *jsonrpcResponse),
		readerDone: make(chan struct{}),
	}
	s.setStatus(StatusPending)
	return s
}

// start spawns the subprocess, wires up stdio pipes, launches the reader
// loop, and performs the MCP initialize handshake.
func (s *Session) start(ctx context.Context) error {
	s.setStatus(StatusConnecting)

	cmd := exec.Command(s.spec.Command, s.spec.Args...)
	cmd.Env = os.Environ()
	for k, v := range s.spec.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawn %s: %w", s.spec.Command, err)
	}

	s.cmd = cmd
	s.stdin = stdin
	s.stdout = stdout

	go s.readLoop()

	// The handshake always carries a deadline, even when the caller's own
	// context has none: a backend that accepts stdin but never writes
	// stdout must not block startup forever.
	hsCtx, cancel := withTimeout(ctx, defaultConnectTimeout)
	defer cancel()

	initParams := map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    clientName,
			"version": clientVersion,
		},
	}
	if _, err := s.call(hsCtx, "initialize", initParams); err != nil {
		_ = s.terminate()
		return fmt.Errorf("initialize handshake: %w", err)
	}
	if err := s.notify("notifications/initialized", nil); err != nil {
		_ = s.terminate()
		return fmt.Errorf("initialized notification: %w", err)
	}

	s.setStatus(StatusConnected)
	return nil
}

// readLoop drains stdout, dispatching each response to its correlator's
// waiting caller. It is the sole owner of s.pending's receive side and the
// sole writer of the failed-transition on I/O error.
func (s *Session) readLoop() {
	defer close(s.readerDone)

	scanner := bufio.NewScanner(s.stdout)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		var resp jsonrpcResponse
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			logger.Warnf("session %s: malformed response: %v", s.name, err)
			continue
		}
		if resp.ID == nil {
			continue // notification from the backend; nothing to correlate
		}
		s.deliver(*resp.ID, &resp)
	}

	s.failAll()
}

func (s *Session) deliver(id int64, resp *jsonrpcResponse) {
	s.pendingMu.Lock()
	ch, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	s.pendingMu.Unlock()

	if ok {
		ch <- resp
	}
}

// failAll transitions the session to failed and resolves every in-flight
// call with SessionLost, per the component design's failure semantics.
func (s *Session) failAll() {
	if s.Status() == StatusClosed {
		return
	}
	s.setStatus(StatusFailed)

	s.pendingMu.Lock()
	waiters := s.pending
	s.pending = make(map[int64]chan *jsonrpcResponse)
	s.pendingMu.Unlock()

	for _, ch := range waiters {
		close(ch)
	}
}

// call sends a request and blocks until the matching response arrives, the
// session fails, or ctx is done. On deadline, the correlator is retired but
// the session remains usable.
func (s *Session) call(ctx context.Context, method string, params any) (*jsonrpcResponse, error) {
	id := atomic.AddInt64(&s.nextID, 1)
	ch := make(chan *jsonrpcResponse, 1)

	s.pendingMu.Lock()
	s.pending[id] = ch
	s.pendingMu.Unlock()

	req := jsonrpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	data, err := json.Marshal(req)
	if err != nil {
		s.retire(id)
		return nil, apperr.NewCallError(apperr.CallKindSessionLost, "failed to marshal request", err)
	}

	s.sendMu.Lock()
	_, writeErr := s.stdin.Write(append(data, '\n'))
	s.sendMu.Unlock()
	if writeErr != nil {
		s.retire(id)
		return nil, apperr.NewCallError(apperr.CallKindSessionLost, "failed to write request", writeErr)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, apperr.NewCallError(apperr.CallKindSessionLost, "session lost while awaiting response", nil)
		}
		if resp.Error != nil {
			return nil, apperr.NewCallError(apperr.CallKindBackendError, fmt.Sprintf("backend error %d: %s", resp.Error.Code, resp.Error.Message), nil)
		}
		return resp, nil
	case <-ctx.Done():
		s.retire(id)
		if ctx.Err() == context.Canceled {
			return nil, apperr.NewCallError(apperr.CallKindCancelled, "call cancelled", ctx.Err())
		}
		return nil, apperr.NewCallError(apperr.CallKindTimeout, "call timed out", ctx.Err())
	}
}

func (s *Session) retire(id int64) {
	s.pendingMu.Lock()
	delete(s.pending, id)
	s.pendingMu.Unlock()
}

func (s *Session) notify(method string, params any) error {
	notif := jsonrpcNotification{JSONRPC: "2.0", Method: method, Params: params}
	data, err := json.Marshal(notif)
	if err != nil {
		return err
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	_, err = s.stdin.Write(append(data, '\n'))
	return err
}

// listTools issues tools/list and parses the result into NativeTool
// descriptors.
func (s *Session) listTools(ctx context.Context) ([]NativeTool, error) {
	resp, err := s.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Tools []struct {
			Name        string          `json:"name"`
			Description string          `json:"description"`
			InputSchema json.RawMessage `json:"inputSchema"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, apperr.NewCallError(apperr.CallKindBackendError, "failed to parse tools/list result", err)
	}

	tools := make([]NativeTool, len(result.Tools))
	for i, t := range result.Tools {
		tools[i] = NativeTool{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema}
	}
	return tools, nil
}

// callTool issues tools/call for nativeName with args.
func (s *Session) callTool(ctx context.Context, nativeName string, args map[string]any) (*CallResult, error) {
	params := map[string]any{"name": nativeName, "arguments": args}
	resp, err := s.call(ctx, "tools/call", params)
	if err != nil {
		return nil, err
	}

	var result struct {
		IsError bool `json:"isError"`
	}
	_ = json.Unmarshal(resp.Result, &result)

	return &CallResult{Content: resp.Result, IsError: result.IsError}, nil
}

// terminate closes stdio and escalates SIGTERM -> SIGKILL on the
// subprocess, waiting up to timeout before forcing.
func (s *Session) terminate() error {
	if s.stdin != nil {
		_ = s.stdin.Close()
	}
	if s.stdout != nil {
		_ = s.stdout.Close()
	}

	if s.cmd == nil || s.cmd.Process == nil {
		return nil
	}

	err := procutil.Terminate(s.cmd.Process.Pid, defaultDisconnectWait)
	_ = s.cmd.Wait()
	return err
}
