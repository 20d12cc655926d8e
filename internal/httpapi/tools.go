package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/shuaige121/tool-gating-mcp/internal/apperr"
	"github.com/shuaige121/tool-gating-mcp/internal/registry"
)

type discoverRequest struct {
	Query string   `json:"query"`
	Tags  []string `json:"tags,omitempty"`
	Limit int      `json:"limit,omitempty"`
}

type matchResponse struct {
	ToolID          string   `json:"tool_id"`
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	Score           float64  `json:"score"`
	MatchedTags     []string `json:"matched_tags"`
	EstimatedTokens int      `json:"estimated_tokens"`
}

type discoverResponse struct {
	Tools     []matchResponse `json:"tools"`
	QueryID   string          `json:"query_id"`
	Timestamp int64           `json:"timestamp"`
}

// discoverTools
//
//	@Summary	Rank registered tools against a natural-language query
//	@Router		/api/tools/discover [post]
func (routes *Routes) discoverTools(w http.ResponseWriter, r *http.Request) {
	var req discoverRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	matches, queryID, err := routes.discovery.Discover(req.Query, req.Tags, req.Limit)
	if err != nil {
		writeError(w, err)
		return
	}

	tools := make([]matchResponse, len(matches))
	for i, m := range matches {
		tools[i] = matchResponse{
			ToolID:          m.ToolID,
			Name:            m.Name,
			Description:     m.Description,
			Score:           m.Score,
			MatchedTags:     m.MatchedTags,
			EstimatedTokens: m.EstimatedTokens,
		}
	}

	writeJSON(w, http.StatusOK, discoverResponse{
		Tools:     tools,
		QueryID:   queryID,
		Timestamp: nowUnix(),
	})
}

type provisionRequest struct {
	ToolIDs   []string `json:"tool_ids"`
	MaxTools  int      `json:"max_tools,omitempty"`
	MaxTokens int      `json:"max_tokens,omitempty"`
}

type provisionedToolResponse struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
	TokenCount  int             `json:"token_count"`
}

type provisionMetadata struct {
	TotalTokens   int  `json:"total_tokens"`
	GatingApplied bool `json:"gating_applied"`
}

type provisionResponse struct {
	Tools    []provisionedToolResponse `json:"tools"`
	Metadata provisionMetadata         `json:"metadata"`
}

// provisionTools
//
//	@Summary	Trim an explicit tool id list to a token/count budget
//	@Router		/api/tools/provision [post]
func (routes *Routes) provisionTools(w http.ResponseWriter, r *http.Request) {
	var req provisionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := routes.discovery.ProvisionByIDs(req.ToolIDs, req.MaxTools, req.MaxTokens)
	if err != nil {
		writeError(w, err)
		return
	}

	tools := make([]provisionedToolResponse, len(result.Tools))
	for i, t := range result.Tools {
		tools[i] = provisionedToolResponse{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
			TokenCount:  t.TokenCount,
		}
	}

	writeJSON(w, http.StatusOK, provisionResponse{
		Tools: tools,
		Metadata: provisionMetadata{
			TotalTokens:   result.TotalTokens,
			GatingApplied: result.GatingApplied,
		},
	})
}

type registerToolRequest struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	Tags            []string        `json:"tags,omitempty"`
	Parameters      json.RawMessage `json:"parameters,omitempty"`
	EstimatedTokens int             `json:"estimated_tokens,omitempty"`
}

// registerTool
//
//	@Summary	Register one locally defined tool descriptor
//	@Router		/api/tools/register [post]
func (routes *Routes) registerTool(w http.ResponseWriter, r *http.Request) {
	var req registerToolRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	err := routes.registry.Insert(registry.Tool{
		ID:              req.ID,
		Name:            req.Name,
		Description:     req.Description,
		Tags:            req.Tags,
		Parameters:      req.Parameters,
		EstimatedTokens: req.EstimatedTokens,
	})
	if err == registry.ErrDuplicateID {
		err = apperr.NewDuplicateIDError(fmt.Sprintf("tool id %q already exists", req.ID), err)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": req.ID})
}

// clearTools
//
//	@Summary	Empty the Registry
//	@Router		/api/tools/clear [delete]
func (routes *Routes) clearTools(w http.ResponseWriter, _ *http.Request) {
	routes.registry.Clear()
	w.WriteHeader(http.StatusNoContent)
}
