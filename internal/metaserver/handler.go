package metaserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/shuaige121/tool-gating-mcp/internal/apperr"
	"github.com/shuaige121/tool-gating-mcp/internal/discovery"
	"github.com/shuaige121/tool-gating-mcp/internal/proxy"
	"github.com/shuaige121/tool-gating-mcp/internal/registry"
)

// Handler implements the meta-toolset's four tools over the core
// components; it never holds state of its own.
type Handler struct {
	registry  *registry.Registry
	discovery *discovery.Engine
	proxy     *proxy.Proxy
}

type discoverArgs struct {
	Query string   `json:"query"`
	Tags  []string `json:"tags,omitempty"`
	Limit int      `json:"limit,omitempty"`
}

type discoverMatch struct {
	ToolID          string   `json:"tool_id"`
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	Score           float64  `json:"score"`
	MatchedTags     []string `json:"matched_tags"`
	EstimatedTokens int      `json:"estimated_tokens"`
}

type discoverResult struct {
	Tools   []discoverMatch `json:"tools"`
	QueryID string          `json:"query_id"`
}

// Discover ranks registered tools against a natural-language query.
func (h *Handler) Discover(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args discoverArgs
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to parse arguments: %v", err)), nil
	}

	matches, queryID, err := h.discovery.Discover(args.Query, args.Tags, args.Limit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	out := discoverResult{Tools: make([]discoverMatch, len(matches)), QueryID: queryID}
	for i, m := range matches {
		out.Tools[i] = discoverMatch{
			ToolID:          m.ToolID,
			Name:            m.Name,
			Description:     m.Description,
			Score:           m.Score,
			MatchedTags:     m.MatchedTags,
			EstimatedTokens: m.EstimatedTokens,
		}
	}
	return mcp.NewToolResultStructuredOnly(out), nil
}

type provisionArgs struct {
	ToolIDs   []string `json:"tool_ids"`
	MaxTools  int      `json:"max_tools,omitempty"`
	MaxTokens int      `json:"max_tokens,omitempty"`
}

type provisionedTool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	TokenCount  int    `json:"token_count"`
}

type provisionResult struct {
	Tools         []provisionedTool `json:"tools"`
	TotalTokens   int               `json:"total_tokens"`
	GatingApplied bool              `json:"gating_applied"`
}

// Provision trims an explicit tool id list to the requested budget.
func (h *Handler) Provision(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args provisionArgs
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to parse arguments: %v", err)), nil
	}

	result, err := h.discovery.ProvisionByIDs(args.ToolIDs, args.MaxTools, args.MaxTokens)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	out := provisionResult{
		Tools:         make([]provisionedTool, len(result.Tools)),
		TotalTokens:   result.TotalTokens,
		GatingApplied: result.GatingApplied,
	}
	for i, t := range result.Tools {
		out.Tools[i] = provisionedTool{Name: t.Name, Description: t.Description, TokenCount: t.TokenCount}
	}
	return mcp.NewToolResultStructuredOnly(out), nil
}

type executeArgs struct {
	ToolID    string         `json:"tool_id"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Execute forwards a call to the backend that owns tool_id.
func (h *Handler) Execute(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args executeArgs
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to parse arguments: %v", err)), nil
	}

	result, err := h.proxy.Execute(ctx, args.ToolID, args.Arguments)
	if err != nil {
		return mcp.NewToolResultError(callErrorMessage(err)), nil
	}
	if result.IsError {
		return mcp.NewToolResultError(string(result.Content)), nil
	}
	return mcp.NewToolResultText(string(result.Content)), nil
}

// callErrorMessage adds a retry hint for the CallKind variants a client can
// act on: a timeout or a lost session is worth retrying, a structured
// backend error or the caller's own cancellation is not.
func callErrorMessage(err error) string {
	switch {
	case apperr.IsCallKind(err, apperr.CallKindTimeout), apperr.IsCallKind(err, apperr.CallKindSessionLost):
		return fmt.Sprintf("%s (retryable)", err.Error())
	default:
		return err.Error()
	}
}

type registerArgs struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	Tags            []string `json:"tags,omitempty"`
	EstimatedTokens int      `json:"estimated_tokens,omitempty"`
}

// Register adds one locally defined tool descriptor to the registry.
func (h *Handler) Register(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args registerArgs
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to parse arguments: %v", err)), nil
	}

	err := h.registry.Insert(registry.Tool{
		ID:              args.ID,
		Name:            args.Name,
		Description:     args.Description,
		Tags:            args.Tags,
		EstimatedTokens: args.EstimatedTokens,
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("registered %s", args.ID)), nil
}
