package mcp

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// SearchDocsTool is the only tool the server exposes.
const SearchDocsTool = "search_docs"

// top_k bounds.
const (
	MinTopK = 1
	MaxTopK = 50
)

// DefaultSections are the documentation sections of the bundled corpus.
var DefaultSections = []string{"opencode", "openclaw", "oh-my-opencode"}

// SearchDocsArgs are the decoded search_docs arguments.
type SearchDocsArgs struct {
	Query   string `json:"query"`
	TopK    *int   `json:"top_k,omitempty"`
	Section string `json:"section,omitempty"`
}

// searchDocsSchema builds the input schema for the configured sections and default top_k.
func searchDocsSchema(sections []string, defaultTopK int) *jsonschema.Schema {
	enum := make([]any, len(sections))
	for i, s := range sections {
		enum[i] = s
	}

	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"query": {
				Type:        "string",
				Description: "Natural language search query",
			},
			"top_k": {
				Type:        "integer",
				Description: fmt.Sprintf("Number of results to return (default: %d)", defaultTopK),
				Default:     json.RawMessage(fmt.Sprintf("%d", defaultTopK)),
			},
			"section": {
				Type:        "string",
				Description: "Filter by section: " + joinOr(sections),
				Enum:        enum,
			},
		},
		Required: []string{"query"},
	}
}

// searchDocsDescriptor returns the tools/list entry.
func searchDocsDescriptor(schema *jsonschema.Schema, sections []string) *mcp.Tool {
	return &mcp.Tool{
		Name: SearchDocsTool,
		Description: "Search the documentation knowledge base. " +
			"Covers " + strings.Join(sections, ", ") + " documentation. " +
			"Returns the most relevant documentation snippets for your query.",
		InputSchema: schema,
	}
}

// parseSearchDocsArgs validates raw against the schema and decodes it.
// An empty section is treated as absent. top_k is clamped to [MinTopK, MaxTopK].
func parseSearchDocsArgs(schema *jsonschema.Resolved, raw json.RawMessage, defaultTopK int) (SearchDocsArgs, *RPCError) {
	var args SearchDocsArgs
	if len(raw) == 0 || string(raw) == "null" {
		raw = json.RawMessage(`{}`)
	}

	var instance map[string]any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return args, NewInvalidParamsError("arguments must be a JSON object")
	}
	if s, ok := instance["section"].(string); ok && s == "" {
		delete(instance, "section")
	}
	if err := schema.Validate(instance); err != nil {
		return args, NewInvalidParamsError("invalid search_docs arguments: " + err.Error())
	}

	if err := json.Unmarshal(raw, &args); err != nil {
		return args, NewInvalidParamsError("invalid search_docs arguments: " + err.Error())
	}
	if strings.TrimSpace(args.Query) == "" {
		return args, NewInvalidParamsError("query cannot be empty or whitespace only")
	}

	topK := defaultTopK
	if args.TopK != nil {
		topK = *args.TopK
	}
	topK = clampTopK(topK)
	args.TopK = &topK
	return args, nil
}

func clampTopK(n int) int {
	return min(max(n, MinTopK), MaxTopK)
}

func joinOr(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	default:
		return strings.Join(items[:len(items)-1], ", ") + ", or " + items[len(items)-1]
	}
}
