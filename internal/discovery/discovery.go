// Package discovery implements the Discovery/Gating Engine: it turns a
// natural-language query into a ranked, budget-fit tool list by combining
// cosine similarity (vectors are unit-norm, so a dot product suffices) with
// a tag-overlap boost, then greedily trims the result to caller-supplied
// token and count budgets.
package discovery

import (
	"sort"

	"github.com/google/uuid"

	"github.com/shuaige121/tool-gating-mcp/internal/apperr"
	"github.com/shuaige121/tool-gating-mcp/internal/registry"
)

const (
	tagBoostWeight = 0.2

	defaultLimit     = 10
	defaultMaxTools  = 10
	defaultMaxTokens = 2000
)

// Embedder is the subset of the embedder contract Discovery needs.
type Embedder interface {
	Embed(text string) ([]float32, error)
}

// Registry is the subset of the Tool Registry contract Discovery needs.
type Registry interface {
	Get(id string) (registry.Tool, error)
	AllVectors() ([]string, [][]float32)
}

// Match is one entry in a ranked_list: a tool scored against a query.
type Match struct {
	ToolID          string
	Name            string
	Description     string
	Score           float64
	MatchedTags     []string
	EstimatedTokens int
}

// ProvisionedTool is one entry of a provisioned set, carrying what the
// client needs to call the tool.
type ProvisionedTool struct {
	ToolID      string
	Name        string
	Description string
	Parameters  []byte
	TokenCount  int
}

// ProvisionResult is the outcome of a provision call.
type ProvisionResult struct {
	Tools         []ProvisionedTool
	TotalTokens   int
	GatingApplied bool
}

// Engine is the Discovery/Gating Engine. It holds no mutable state of its
// own; all state lives in the Registry it is constructed against.
type Engine struct {
	registry Registry
	embedder Embedder
}

// New constructs a Discovery engine over reg, using embedder to vectorize
// query text.
func New(reg Registry, embedder Embedder) *Engine {
	return &Engine{registry: reg, embedder: embedder}
}

// Discover ranks every indexed tool against queryText and tags, returning
// the top-limit matches ordered by descending score, ties broken by
// ascending id for determinism. limit <= 0 uses the default of 10. An empty
// registry yields an empty list, never an error.
func (e *Engine) Discover(queryText string, tags []string, limit int) ([]Match, string, error) {
	if limit <= 0 {
		limit = defaultLimit
	}

	var query []float32
	if queryText != "" {
		q, err := e.embedder.Embed(queryText)
		if err != nil {
			return nil, "", apperr.NewEmbedderError("failed to embed query", err)
		}
		query = q
	}

	ids, vectors := e.registry.AllVectors()
	tagSet := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		tagSet[t] = struct{}{}
	}

	matches := make([]Match, 0, len(ids))
	for i, id := range ids {
		tool, err := e.registry.Get(id)
		if err != nil {
			// Deleted between the snapshot read and this lookup; skip it
			// rather than fail the whole query.
			continue
		}

		var sim float64
		if query != nil {
			sim = dot(query, vectors[i])
		}

		matchedTags := intersect(tagSet, tool.Tags)
		boost := tagBoostWeight * float64(len(matchedTags))
		score := clamp01(sim + boost)

		matches = append(matches, Match{
			ToolID:          tool.ID,
			Name:            tool.Name,
			Description:     tool.Description,
			Score:           score,
			MatchedTags:     matchedTags,
			EstimatedTokens: tool.EstimatedTokens,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ToolID < matches[j].ToolID
	})

	if limit < len(matches) {
		matches = matches[:limit]
	}

	return matches, uuid.NewString(), nil
}

// ProvisionRanked greedily trims ranked (highest score first, as returned
// by Discover) to maxTools/maxTokens. maxTools <= 0 defaults to 10,
// maxTokens <= 0 defaults to 2000.
func (e *Engine) ProvisionRanked(ranked []Match, maxTools, maxTokens int) (ProvisionResult, error) {
	ids := make([]string, len(ranked))
	for i, m := range ranked {
		ids[i] = m.ToolID
	}
	return e.provision(ids, maxTools, maxTokens)
}

// ProvisionByIDs greedily trims the explicit, caller-ordered id list to
// maxTools/maxTokens. It fails with apperr.TypeUnknownTool if any id does
// not exist in the registry.
func (e *Engine) ProvisionByIDs(toolIDs []string, maxTools, maxTokens int) (ProvisionResult, error) {
	return e.provision(toolIDs, maxTools, maxTokens)
}

func (e *Engine) provision(toolIDs []string, maxTools, maxTokens int) (ProvisionResult, error) {
	if maxTools <= 0 {
		maxTools = defaultMaxTools
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	result := ProvisionResult{Tools: make([]ProvisionedTool, 0, len(toolIDs))}

	var count, tokens int
	for _, id := range toolIDs {
		tool, err := e.registry.Get(id)
		if err != nil {
			return ProvisionResult{}, apperr.NewUnknownToolError("tool not found: "+id, registry.ErrNotFound)
		}

		if count+1 > maxTools || tokens+tool.EstimatedTokens > maxTokens {
			result.GatingApplied = true
			continue
		}

		count++
		tokens += tool.EstimatedTokens
		result.Tools = append(result.Tools, ProvisionedTool{
			ToolID:      tool.ID,
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  tool.Parameters,
			TokenCount:  tool.EstimatedTokens,
		})
	}

	result.TotalTokens = tokens
	return result, nil
}

// dot is the inner product of two equal-length unit-norm vectors, which
// equals their cosine similarity.
func dot(a, b []float32) float64 {
	var sum float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func intersect(tagSet map[string]struct{}, toolTags []string) []string {
	if len(tagSet) == 0 {
		return nil
	}
	var out []string
	for _, tag := range toolTags {
		if _, ok := tagSet[tag]; ok {
			out = append(out, tag)
		}
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
