package mcp

import (
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ProtocolVersion is the MCP revision this server speaks.
const ProtocolVersion = "2024-11-05"

// Method is the closed set of JSON-RPC methods the server understands.
type Method int

const (
	MethodUnknown Method = iota
	MethodInitialize
	MethodToolsList
	MethodToolsCall
	MethodInitialized
	MethodPing
)

var methodNames = map[string]Method{
	"initialize":                MethodInitialize,
	"tools/list":                MethodToolsList,
	"tools/call":                MethodToolsCall,
	"notifications/initialized": MethodInitialized,
	"ping":                      MethodPing,
}

// ParseMethod maps a wire method name onto a Method. Unknown names map to MethodUnknown.
func ParseMethod(name string) Method {
	return methodNames[name]
}

func (m Method) String() string {
	for name, v := range methodNames {
		if v == m {
			return name
		}
	}
	return "unknown"
}

// Request is an incoming JSON-RPC message.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// HasID reports whether the message expects a response.
func (r *Request) HasID() bool {
	return len(r.ID) > 0 && string(r.ID) != "null"
}

// Response is an outgoing JSON-RPC message. Exactly one of Result and Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// initializeResult keeps listChanged on the wire even when false.
type initializeResult struct {
	ProtocolVersion string              `json:"protocolVersion"`
	Capabilities    serverCapabilities  `json:"capabilities"`
	ServerInfo      *mcp.Implementation `json:"serverInfo"`
}

type serverCapabilities struct {
	Tools toolCapabilities `json:"tools"`
}

type toolCapabilities struct {
	ListChanged bool `json:"listChanged"`
}

type listToolsResult struct {
	Tools []*mcp.Tool `json:"tools"`
}

// callToolResult always carries isError, which the SDK type omits when false.
type callToolResult struct {
	Content []mcp.Content `json:"content"`
	IsError bool          `json:"isError"`
}

type callToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func textResult(text string) callToolResult {
	return callToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}
