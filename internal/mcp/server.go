package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/amanrag/internal/cache"
	"github.com/Aman-CERP/amanrag/internal/embed"
	"github.com/Aman-CERP/amanrag/internal/index"
	"github.com/Aman-CERP/amanrag/internal/query"
	"github.com/Aman-CERP/amanrag/pkg/version"
)

// ServerName is the implementation name reported to clients.
const ServerName = "AmanRAG"

// Asker answers questions. *query.Engine implements it.
type Asker interface {
	Ask(ctx context.Context, question string, opts query.Options) (*query.Answer, error)
}

// Indexer runs and inspects index builds. *index.Indexer implements it.
type Indexer interface {
	Run(ctx context.Context, mode index.Mode) (*index.Result, error)
	Status(ctx context.Context) (*index.Status, error)
}

// CacheStats reports cache sizes. *cache.Caches implements it.
type CacheStats interface {
	Stats() cache.Stats
}

// Dependencies are the collaborators behind the tools.
type Dependencies struct {
	Engine  Asker
	Indexer Indexer

	// Optional, reported by the status tool.
	Caches   CacheStats
	Embedder embed.Service
}

// Server is the MCP server for AmanRAG.
// It exposes question answering and reindexing to AI clients.
type Server struct {
	mcp      *mcp.Server
	engine   Asker
	indexer  Indexer
	caches   CacheStats
	embedder embed.Service
	logger   *slog.Logger
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var tools = []ToolInfo{
	{
		Name:        "ask",
		Description: "Answer a question from the indexed documents. Retrieves passages with hybrid vector and keyword search, then generates an answer that cites its sources. Optional filters restrict which sources and keywords a passage must match.",
	},
	{
		Name:        "reindex",
		Description: "Bring the index up to date with the document folder. Incremental mode embeds only changed chunks; full mode rebuilds the collection.",
	},
	{
		Name:        "status",
		Description: "Report whether the index is built, how many chunks it holds, and cache sizes.",
	},
}

// NewServer creates a new MCP server.
func NewServer(deps Dependencies) (*Server, error) {
	if deps.Engine == nil {
		return nil, errors.New("query engine is required")
	}
	if deps.Indexer == nil {
		return nil, errors.New("indexer is required")
	}

	s := &Server{
		engine:   deps.Engine,
		indexer:  deps.Indexer,
		caches:   deps.Caches,
		embedder: deps.Embedder,
		logger:   slog.Default(),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    ServerName,
			Version: version.Version,
		},
		nil,
	)
	s.registerTools()

	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return ServerName, version.Version
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	out := make([]ToolInfo, len(tools))
	copy(out, tools)
	return out
}

// CallTool invokes a tool by name with JSON-style arguments.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case "ask":
		var in AskInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		return s.ask(ctx, in)
	case "reindex":
		var in ReindexInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		return s.reindex(ctx, in)
	case "status":
		return s.status(ctx)
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

func decodeArgs(args map[string]any, dst any) error {
	if len(args) == 0 {
		return nil
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return NewInvalidParamsError(err.Error())
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return NewInvalidParamsError(fmt.Sprintf("invalid arguments: %v", err))
	}
	return nil
}

func (s *Server) ask(ctx context.Context, in AskInput) (AskOutput, error) {
	if strings.TrimSpace(in.Question) == "" {
		return AskOutput{}, NewInvalidParamsError("question parameter is required and must be a non-empty string")
	}
	opts, err := toAskOptions(in)
	if err != nil {
		return AskOutput{}, MapError(err)
	}

	start := time.Now()
	requestID := generateRequestID()
	s.logger.Info("ask started",
		slog.String("request_id", requestID),
		slog.Int("question_len", len(in.Question)),
		slog.Bool("filtered", len(in.Sources) > 0 || in.SourcePrefix != "" || len(in.MustInclude) > 0))

	answer, err := s.engine.Ask(ctx, in.Question, opts)
	duration := time.Since(start)
	if err != nil {
		s.logger.Error("ask failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return AskOutput{}, MapError(err)
	}

	s.logger.Info("ask completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.Int("source_count", len(answer.Sources)))

	return toAskOutput(answer), nil
}

func (s *Server) reindex(ctx context.Context, in ReindexInput) (ReindexOutput, error) {
	mode, err := index.ParseMode(in.Mode)
	if err != nil {
		return ReindexOutput{}, MapError(err)
	}

	requestID := generateRequestID()
	s.logger.Info("reindex started",
		slog.String("request_id", requestID),
		slog.String("mode", string(mode)))

	res, err := s.indexer.Run(ctx, mode)
	if err != nil {
		s.logger.Error("reindex failed",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
		return ReindexOutput{}, MapError(err)
	}

	s.logger.Info("reindex completed",
		slog.String("request_id", requestID),
		slog.Int("added", res.Added),
		slog.Int("deleted", res.Deleted))

	return toReindexOutput(res), nil
}

func (s *Server) status(ctx context.Context) (StatusOutput, error) {
	st, err := s.indexer.Status(ctx)
	if err != nil {
		return StatusOutput{}, MapError(err)
	}
	out := StatusOutput{Index: toIndexInfo(st)}
	if s.caches != nil {
		out.Caches = s.caches.Stats()
	}
	if s.embedder != nil {
		out.Embedder = EmbeddingInfo{
			Model:      s.embedder.ModelName(),
			Dimensions: s.embedder.Dimensions(),
		}
	}
	return out, nil
}

// registerTools registers all tools with the MCP server.
func (s *Server) registerTools() {
	s.logger.Debug("Registering MCP tools")

	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[0].Name, Description: tools[0].Description}, s.mcpAskHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[1].Name, Description: tools[1].Description}, s.mcpReindexHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[2].Name, Description: tools[2].Description}, s.mcpStatusHandler)

	s.logger.Debug("MCP tools registered", slog.Int("count", len(tools)))
}

// mcpAskHandler is the MCP SDK handler for the ask tool.
func (s *Server) mcpAskHandler(ctx context.Context, _ *mcp.CallToolRequest, input AskInput) (
	*mcp.CallToolResult,
	AskOutput,
	error,
) {
	out, err := s.ask(ctx, input)
	if err != nil {
		return nil, AskOutput{}, err
	}
	return textResult(FormatAnswer(input.Question, out)), out, nil
}

// mcpReindexHandler is the MCP SDK handler for the reindex tool.
func (s *Server) mcpReindexHandler(ctx context.Context, _ *mcp.CallToolRequest, input ReindexInput) (
	*mcp.CallToolResult,
	ReindexOutput,
	error,
) {
	out, err := s.reindex(ctx, input)
	if err != nil {
		return nil, ReindexOutput{}, err
	}
	return textResult(FormatReindex(out)), out, nil
}

// mcpStatusHandler is the MCP SDK handler for the status tool.
func (s *Server) mcpStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ StatusInput) (
	*mcp.CallToolResult,
	StatusOutput,
	error,
) {
	out, err := s.status(ctx)
	if err != nil {
		return nil, StatusOutput{}, err
	}
	return textResult(FormatStatus(out)), out, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

// Serve starts the server with the specified transport.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("Starting MCP server", slog.String("transport", transport))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("MCP server stopped with error",
				slog.String("error", err.Error()))
		} else {
			s.logger.Info("MCP server stopped gracefully")
		}
		return err
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
