// Package httpapi is the thin HTTP collaborator in front of the core: it
// decodes requests, calls into the Discovery engine, Registry, and Proxy,
// and recovers their typed errors into structured JSON responses.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/shuaige121/tool-gating-mcp/internal/apperr"
	"github.com/shuaige121/tool-gating-mcp/internal/discovery"
	"github.com/shuaige121/tool-gating-mcp/internal/logger"
	"github.com/shuaige121/tool-gating-mcp/internal/proxy"
	"github.com/shuaige121/tool-gating-mcp/internal/registry"
	"github.com/shuaige121/tool-gating-mcp/internal/session"
)

const middlewareTimeout = 60 * time.Second

// Routes bundles the core components the HTTP surface calls into.
type Routes struct {
	registry  *registry.Registry
	discovery *discovery.Engine
	proxy     *proxy.Proxy
	sessions  *session.Manager
}

// NewRouter builds the full chi router for the HTTP surface described by
// the external interfaces: tool discovery/provisioning/registration, proxy
// execution, and backend lifecycle management.
func NewRouter(reg *registry.Registry, disc *discovery.Engine, p *proxy.Proxy, sessions *session.Manager) http.Handler {
	routes := &Routes{registry: reg, discovery: disc, proxy: p, sessions: sessions}

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Timeout(middlewareTimeout),
		headersMiddleware,
	)

	r.Route("/api/tools", func(r chi.Router) {
		r.Post("/discover", routes.discoverTools)
		r.Post("/provision", routes.provisionTools)
		r.Post("/register", routes.registerTool)
		r.Delete("/clear", routes.clearTools)
	})

	r.Route("/api/proxy", func(r chi.Router) {
		r.Post("/execute", routes.executeTool)
	})

	r.Route("/api/mcp", func(r chi.Router) {
		r.Post("/add_server", routes.addServer)
		r.Post("/ai/register-server", routes.aiRegisterServer)
		r.Delete("/servers/{name}", routes.removeServer)
		r.Get("/servers", routes.listServers)
	})

	return r
}

func headersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// errorResponse is the structured shape every error is recovered into at
// the HTTP boundary.
type errorResponse struct {
	Error string `json:"error"`
	Type  string `json:"type"`
}

// writeError maps a typed apperr.Error to a status code and writes a
// structured body; it never lets a raw error string leak without a type
// tag. Every component wraps its sentinel errors in an apperr.Error before
// they reach the HTTP boundary, so the dispatch below is driven entirely by
// the apperr.Is* family rather than by comparing against package sentinels.
func writeError(w http.ResponseWriter, err error) {
	if _, ok := err.(*apperr.Error); !ok {
		err = apperr.NewInternalError("unclassified error", err)
	}

	status := http.StatusInternalServerError
	errType := apperr.TypeInternal

	switch {
	case apperr.IsUnknownTool(err):
		status, errType = http.StatusNotFound, apperr.TypeUnknownTool
	case apperr.IsDuplicateID(err):
		status, errType = http.StatusConflict, apperr.TypeDuplicateID
	case apperr.IsConfig(err):
		status, errType = http.StatusBadRequest, apperr.TypeConfig
	case apperr.IsEmbedder(err):
		status, errType = http.StatusBadRequest, apperr.TypeEmbedder
	case apperr.IsConnect(err):
		status, errType = http.StatusServiceUnavailable, apperr.TypeConnect
	case apperr.IsCall(err):
		status, errType = http.StatusBadGateway, apperr.TypeCall
	case apperr.IsShutdown(err):
		status, errType = http.StatusServiceUnavailable, apperr.TypeShutdown
	}

	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: err.Error(), Type: errType})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(errorResponse{Error: "failed to decode request body", Type: "bad_request"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorf("failed to encode response: %v", err)
	}
}

func nowUnix() int64 {
	return time.Now().Unix()
}
