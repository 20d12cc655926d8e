package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shuaige121/tool-gating-mcp/internal/registry"
	"github.com/shuaige121/tool-gating-mcp/internal/session"
)

type addServerRequest struct {
	Name    string            `json:"name"`
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// addServer
//
//	@Summary	Connect a backend at runtime and index its live tool list
//	@Router		/api/mcp/add_server [post]
func (routes *Routes) addServer(w http.ResponseWriter, r *http.Request) {
	var req addServerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	spec := session.BackendSpec{Command: req.Command, Args: req.Args, Env: req.Env}
	count, err := routes.proxy.AddServer(r.Context(), req.Name, spec, nil)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"name": req.Name, "tool_count": count})
}

type aiRegisterServerRequest struct {
	Name    string            `json:"name"`
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Tools   []aiToolRequest   `json:"tools"`
}

type aiToolRequest struct {
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	Tags            []string        `json:"tags,omitempty"`
	Parameters      json.RawMessage `json:"parameters,omitempty"`
	EstimatedTokens int             `json:"estimated_tokens,omitempty"`
}

// aiRegisterServer
//
//	@Summary	Connect a backend and trust a caller-supplied tool list instead
//				of enumerating it live (the AI-assisted registration path)
//	@Router		/api/mcp/ai/register-server [post]
func (routes *Routes) aiRegisterServer(w http.ResponseWriter, r *http.Request) {
	var req aiRegisterServerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	spec := session.BackendSpec{Command: req.Command, Args: req.Args, Env: req.Env}
	tools := make([]registry.Tool, len(req.Tools))
	for i, t := range req.Tools {
		tools[i] = registry.Tool{
			ID:              req.Name + "_" + t.Name,
			Name:            t.Name,
			Description:     t.Description,
			Tags:            t.Tags,
			Parameters:      t.Parameters,
			EstimatedTokens: t.EstimatedTokens,
		}
	}

	count, err := routes.proxy.AddServer(r.Context(), req.Name, spec, tools)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"name": req.Name, "tool_count": count})
}

// removeServer
//
//	@Summary	Disconnect a backend and delete every tool it owns
//	@Router		/api/mcp/servers/{name} [delete]
func (routes *Routes) removeServer(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	removed := routes.proxy.RemoveServer(name)
	writeJSON(w, http.StatusOK, map[string]any{"name": name, "tools_removed": removed})
}

type serverStatusResponse struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// listServers
//
//	@Summary	List every tracked backend and its session status
//	@Router		/api/mcp/servers [get]
func (routes *Routes) listServers(w http.ResponseWriter, _ *http.Request) {
	names := routes.sessions.Names()
	out := make([]serverStatusResponse, 0, len(names))
	for _, name := range names {
		s, ok := routes.sessions.Get(name)
		if !ok {
			continue // disconnected between Names() and Get()
		}
		out = append(out, serverStatusResponse{Name: name, Status: string(s.Status())})
	}

	writeJSON(w, http.StatusOK, out)
}
