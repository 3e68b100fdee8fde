// Package mcp implements the Model Context Protocol server: a
// Content-Length framed JSON-RPC loop over stdio exposing the search_docs tool.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/docsearch/internal/embed"
	errs "github.com/Aman-CERP/docsearch/internal/errors"
	"github.com/Aman-CERP/docsearch/internal/search"
)

// Server identity reported by initialize.
const (
	ServerName    = "lena-docs-search"
	ServerVersion = "1.0.0"
)

// Searcher is the search capability the server needs.
type Searcher interface {
	Search(ctx context.Context, query string, opts search.Options) ([]search.Result, error)
}

// Config tunes the server.
type Config struct {
	Name        string
	Version     string
	Sections    []string
	DefaultTopK int
}

// Server handles one client over one stream, strictly one request at a time.
type Server struct {
	engine Searcher
	config Config
	logger *slog.Logger

	tool   *mcp.Tool
	schema *jsonschema.Resolved
}

// ServerOption configures the server.
type ServerOption func(*Server)

// WithLogger sets the logger. Logs must never go to the protocol stream.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a server backed by engine.
func NewServer(engine Searcher, cfg Config, opts ...ServerOption) (*Server, error) {
	if engine == nil {
		return nil, errors.New("search engine is required")
	}
	if cfg.Name == "" {
		cfg.Name = ServerName
	}
	if cfg.Version == "" {
		cfg.Version = ServerVersion
	}
	if len(cfg.Sections) == 0 {
		cfg.Sections = DefaultSections
	}
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = search.DefaultTopK
	}
	cfg.DefaultTopK = clampTopK(cfg.DefaultTopK)

	schema := searchDocsSchema(cfg.Sections, cfg.DefaultTopK)
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolve search_docs schema: %w", err)
	}

	s := &Server{
		engine: engine,
		config: cfg,
		logger: slog.Default(),
		tool:   searchDocsDescriptor(schema, cfg.Sections),
		schema: resolved,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Serve runs the read-dispatch-respond loop until r reaches end of stream.
// Framing and parse problems are logged and skipped; only a write failure
// or a broken read ends the loop with an error.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	frames := NewFrameReader(r)
	out := bufio.NewWriter(w)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		body, err := frames.ReadFrame()
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			s.logger.Info("input closed, stopping server")
			return nil
		case errors.Is(err, io.ErrUnexpectedEOF):
			s.logger.Warn("input closed inside a frame, stopping server")
			return nil
		case errors.Is(err, ErrBadHeader), errors.Is(err, ErrFrameTooLarge):
			s.logger.Warn("skipping frame", slog.String("error", err.Error()))
			continue
		default:
			return fmt.Errorf("read frame: %w", err)
		}

		resp := s.HandleMessage(ctx, body)
		if resp == nil {
			continue
		}
		if err := WriteFrame(out, resp); err != nil {
			return fmt.Errorf("write frame: %w", err)
		}
	}
}

// HandleMessage dispatches one frame body and returns the encoded response,
// or nil when no response is due (notifications, malformed bodies).
func (s *Server) HandleMessage(ctx context.Context, body []byte) []byte {
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		s.logger.Error("JSON parse error",
			slog.String("error", fmt.Errorf("%w: %v", ErrMalformedMessage, err).Error()))
		return nil
	}

	resp := s.dispatch(ctx, &req)
	if resp == nil {
		return nil
	}
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("failed to encode response", slog.String("method", req.Method), slog.String("error", err.Error()))
		data, _ = json.Marshal(s.errorResponse(&req, &RPCError{Code: ErrCodeInternalError, Message: "failed to encode response"}))
	}
	return data
}

func (s *Server) dispatch(ctx context.Context, req *Request) (resp *Response) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("panic while handling request",
				slog.String("method", req.Method),
				slog.Any("panic", p))
			resp = nil
			if req.HasID() {
				resp = s.errorResponse(req, &RPCError{Code: ErrCodeInternalError, Message: "internal error"})
			}
		}
	}()

	switch method := ParseMethod(req.Method); method {
	case MethodInitialize:
		return s.result(req, initializeResult{
			ProtocolVersion: ProtocolVersion,
			Capabilities:    serverCapabilities{Tools: toolCapabilities{ListChanged: false}},
			ServerInfo:      &mcp.Implementation{Name: s.config.Name, Version: s.config.Version},
		})
	case MethodToolsList:
		return s.result(req, listToolsResult{Tools: []*mcp.Tool{s.tool}})
	case MethodToolsCall:
		return s.handleToolsCall(ctx, req)
	case MethodInitialized:
		return nil
	case MethodPing:
		return s.result(req, struct{}{})
	default:
		if !req.HasID() {
			s.logger.Warn("ignoring unknown notification", slog.String("method", req.Method))
			return nil
		}
		s.logger.Warn("unknown method", slog.String("method", req.Method))
		return s.errorResponse(req, NewMethodNotFoundError(req.Method))
	}
}

func (s *Server) handleToolsCall(ctx context.Context, req *Request) *Response {
	var params callToolParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return s.errorResponse(req, NewInvalidParamsError("invalid tools/call params: "+err.Error()))
		}
	}
	if params.Name != SearchDocsTool {
		return s.errorResponse(req, NewUnknownToolError(params.Name))
	}

	args, rpcErr := parseSearchDocsArgs(s.schema, params.Arguments, s.config.DefaultTopK)
	if rpcErr != nil {
		return s.errorResponse(req, rpcErr)
	}

	requestID := uuid.NewString()
	start := time.Now()
	s.logger.Info("search started",
		slog.String("request_id", requestID),
		slog.String("query", args.Query),
		slog.Int("top_k", *args.TopK),
		slog.String("section", args.Section))

	results, err := s.engine.Search(ctx, args.Query, search.Options{TopK: *args.TopK, Section: args.Section})
	if err != nil {
		attrs := append([]any{slog.String("request_id", requestID)}, errs.LogAttrs(err)...)
		s.logger.Warn("search failed", attrs...)
	} else {
		s.logger.Info("search completed",
			slog.String("request_id", requestID),
			slog.Int("results", len(results)),
			slog.Duration("duration", time.Since(start)))
	}

	return s.result(req, textResult(FormatResults(args.Query, results, err)))
}

func (s *Server) result(req *Request, result any) *Response {
	return &Response{JSONRPC: "2.0", ID: req.ID, Result: result}
}

func (s *Server) errorResponse(req *Request, rpcErr *RPCError) *Response {
	return &Response{JSONRPC: "2.0", ID: req.ID, Error: rpcErr}
}

// errorMessage renders an error for the tool text: provider and dimension
// errors keep their own wording, coded errors show the message without the code.
func errorMessage(err error) string {
	var pe *embed.ProviderError
	if errors.As(err, &pe) {
		return pe.Error()
	}
	var dm *search.DimensionMismatchError
	if errors.As(err, &dm) {
		return dm.Error()
	}
	if e, ok := errs.As(err); ok {
		return e.Message
	}
	return strings.TrimSpace(err.Error())
}
