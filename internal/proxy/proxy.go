// Package proxy composes the Session Manager and the Tool Registry into
// the router the client actually talks to: it drives backend startup,
// runtime add/remove of backends, and id-based execution.
package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/shuaige121/tool-gating-mcp/internal/apperr"
	"github.com/shuaige121/tool-gating-mcp/internal/logger"
	"github.com/shuaige121/tool-gating-mcp/internal/registry"
	"github.com/shuaige121/tool-gating-mcp/internal/session"
)

// tagKeywords are substrings whose presence in a tool's description imply
// a tag, used to backfill tags for backends that don't supply any of their
// own (the raw MCP tools/list response carries no tag field).
var tagKeywords = []string{"search", "web", "browser", "file", "code", "api", "data"}

func inferTags(description string) []string {
	lower := strings.ToLower(description)
	set := make(map[string]struct{})

	for _, kw := range tagKeywords {
		if strings.Contains(lower, kw) {
			set[kw] = struct{}{}
		}
	}
	for _, kw := range []string{"screenshot", "read", "write", "documentation"} {
		if strings.Contains(lower, kw) {
			set[kw] = struct{}{}
		}
	}
	if strings.Contains(lower, "navigate") || strings.Contains(lower, "navigation") {
		set["navigation"] = struct{}{}
	}
	if strings.Contains(lower, "docs") {
		set["documentation"] = struct{}{}
	}

	tags := make([]string, 0, len(set))
	for tag := range set {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// startupConcurrency bounds how many backends connect at once, mirroring
// the aggregation layer's backend-query concurrency cap.
const startupConcurrency = 10

// BackendResult reports one backend's outcome during Startup or AddServer.
type BackendResult struct {
	Name      string
	ToolCount int
	Err       error
}

// Proxy is the cross-backend surface: Registry.insert-on-connect at
// startup, and id-routed execution at runtime.
type Proxy struct {
	registry *registry.Registry
	sessions *session.Manager
}

// New constructs a Proxy over reg and sessions.
func New(reg *registry.Registry, sessions *session.Manager) *Proxy {
	return &Proxy{registry: reg, sessions: sessions}
}

// Startup connects every configured backend in parallel, bounded
// concurrency, and indexes each backend's tools into the Registry. A
// backend that fails to connect is isolated — it is reported in the
// returned results but does not prevent the other backends from starting.
func (p *Proxy) Startup(ctx context.Context, backends map[string]session.BackendSpec) []BackendResult {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(startupConcurrency)

	var mu sync.Mutex
	results := make([]BackendResult, 0, len(backends))

	for name, spec := range backends {
		name, spec := name, spec
		g.Go(func() error {
			count, err := p.connectAndIndex(gctx, name, spec)
			if err != nil {
				logger.Warnf("backend %s failed to start: %v", name, err)
			}
			mu.Lock()
			results = append(results, BackendResult{Name: name, ToolCount: count, Err: err})
			mu.Unlock()
			return nil // never abort sibling backends
		})
	}
	_ = g.Wait()

	return results
}

// connectAndIndex connects one backend, lists its tools, and inserts each
// as a namespaced descriptor. Duplicate ids are logged and skipped
// (first-wins).
func (p *Proxy) connectAndIndex(ctx context.Context, name string, spec session.BackendSpec) (int, error) {
	if _, err := p.sessions.Connect(ctx, name, spec); err != nil {
		return 0, err
	}

	tools, err := p.sessions.ListTools(ctx, name)
	if err != nil {
		p.sessions.Disconnect(name)
		return 0, err
	}

	count := 0
	for _, t := range tools {
		id := namespacedID(name, t.Name)
		err := p.registry.Insert(registry.Tool{
			ID:              id,
			Name:            t.Name,
			Description:     t.Description,
			Tags:            inferTags(t.Description),
			Parameters:      json.RawMessage(t.InputSchema),
			EstimatedTokens: estimateTokens(t),
			Backend:         name,
		})
		if err != nil {
			if err == registry.ErrDuplicateID {
				logger.Warnf("duplicate tool id %q from backend %s, keeping first registration", id, name)
				continue
			}
			logger.Warnf("failed to index tool %q from backend %s: %v", id, name, err)
			continue
		}
		count++
	}

	return count, nil
}

// AddServer connects (or re-indexes) one backend at runtime. If tools is
// non-empty, those descriptors are trusted and inserted directly — the
// AI-assisted registration path — skipping live tools/list enumeration.
func (p *Proxy) AddServer(ctx context.Context, name string, spec session.BackendSpec, tools []registry.Tool) (int, error) {
	if len(tools) > 0 {
		if _, err := p.sessions.Connect(ctx, name, spec); err != nil {
			return 0, err
		}
		count := 0
		for _, t := range tools {
			t.Backend = name
			if err := p.registry.Insert(t); err != nil {
				logger.Warnf("failed to index trusted tool %q from backend %s: %v", t.ID, name, err)
				continue
			}
			count++
		}
		return count, nil
	}

	return p.connectAndIndex(ctx, name, spec)
}

// RemoveServer disconnects name's session and deletes every tool it owns
// from the Registry.
func (p *Proxy) RemoveServer(name string) int {
	p.sessions.Disconnect(name)
	return p.registry.DeleteByBackend(name)
}

// Execute resolves id to (backend, native tool) and forwards the call,
// surfacing UnknownTool and the Session Manager's call errors verbatim.
func (p *Proxy) Execute(ctx context.Context, id string, args map[string]any) (*session.CallResult, error) {
	tool, err := p.registry.Get(id)
	if err != nil {
		return nil, apperr.NewUnknownToolError(fmt.Sprintf("no tool registered with id %q", id), err)
	}
	if tool.Backend == "" {
		return nil, apperr.NewUnknownToolError(fmt.Sprintf("tool %q has no owning backend", id), nil)
	}

	return p.sessions.CallTool(ctx, tool.Backend, tool.Name, args)
}

func namespacedID(backend, nativeName string) string {
	return backend + "_" + nativeName
}

// Token estimate constants: description words at ~1.3 tokens/word (a closer
// approximation than byte-division for prose), schema bytes at 4
// bytes/token, plus a flat per-tool overhead.
const (
	wordsToTokens     = 1.3
	tokenByteDivisor  = 4
	baseTokenOverhead = 50
)

// estimateTokens approximates the prompt cost of one tool definition from
// its description and parameter schema text.
func estimateTokens(t session.NativeTool) int {
	descTokens := float64(len(strings.Fields(t.Description))) * wordsToTokens
	schemaTokens := float64(len(t.InputSchema)) / tokenByteDivisor
	return int(descTokens+schemaTokens) + baseTokenOverhead
}
