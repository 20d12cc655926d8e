package httpapi

import (
	"encoding/json"
	"net/http"
)

type executeRequest struct {
	ToolID    string         `json:"tool_id"`
	Arguments map[string]any `json:"arguments"`
}

// executeTool
//
//	@Summary	Forward a tool invocation to its owning backend
//	@Router		/api/proxy/execute [post]
func (routes *Routes) executeTool(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := routes.proxy.Execute(r.Context(), req.ToolID, req.Arguments)
	if err != nil {
		writeError(w, err)
		return
	}

	if result.IsError {
		writeJSON(w, http.StatusBadGateway, map[string]json.RawMessage{"content": result.Content})
		return
	}

	writeJSON(w, http.StatusOK, map[string]json.RawMessage{"content": result.Content})
}
