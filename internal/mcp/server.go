package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/codecontext/internal/async"
	"github.com/Aman-CERP/codecontext/internal/config"
	cerrors "github.com/Aman-CERP/codecontext/internal/errors"
	"github.com/Aman-CERP/codecontext/internal/index"
	"github.com/Aman-CERP/codecontext/internal/scanner"
	"github.com/Aman-CERP/codecontext/internal/search"
	"github.com/Aman-CERP/codecontext/pkg/codecontext"
	"github.com/Aman-CERP/codecontext/pkg/version"
)

// Engine is the part of codecontext.Engine the server drives.
type Engine interface {
	IndexWithOptions(ctx context.Context, path string, opts codecontext.IndexOptions) (*codecontext.IndexStats, error)
	SearchWithOptions(ctx context.Context, path, query string, opts codecontext.SearchOptions) ([]*codecontext.SearchResult, error)
	HasIndex(path string) bool
	Status(ctx context.Context, path string) (*codecontext.Status, error)
	ClearIndex(ctx context.Context, path string) error
}

var _ Engine = (*codecontext.Engine)(nil)

// Tool names.
const (
	ToolSearch      = "search"
	ToolIndex       = "index"
	ToolIndexStatus = "index_status"
	ToolClearIndex  = "clear_index"
)

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var tools = []ToolInfo{
	{
		Name:        ToolSearch,
		Description: "Hybrid semantic and keyword search over an indexed codebase. Returns ranked code chunks with file paths and line ranges. Supports extension, language and directory filters.",
	},
	{
		Name:        ToolIndex,
		Description: "Index a codebase for search. Runs in the background and is incremental: only added, modified and removed files are processed. Use force to rebuild everything.",
	},
	{
		Name:        ToolIndexStatus,
		Description: "Report whether a codebase is indexed, its file and chunk counts, the active embedding model and the progress of a background run.",
	},
	{
		Name:        ToolClearIndex,
		Description: "Delete the index and snapshot of a codebase. Fails while indexing is in progress.",
	},
}

// Server is the MCP server for codecontext.
// It bridges AI clients with the indexing and search pipelines.
type Server struct {
	mcp      *mcp.Server
	engine   Engine
	config   *config.Config
	logger   *slog.Logger
	rootPath string

	// jobs holds one background indexer per project. Runs outlive the tool
	// call that started them and are bound to ctx instead.
	jobs   *async.Jobs
	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer creates a new MCP server. rootPath is the default project for
// tools called without a path.
func NewServer(engine Engine, cfg *config.Config, rootPath string) (*Server, error) {
	if engine == nil {
		return nil, cerrors.InternalError("engine is required", nil)
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}
	root, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, cerrors.New(cerrors.ErrCodePathNotFound, "cannot resolve path "+rootPath, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		engine:   engine,
		config:   cfg,
		logger:   slog.Default(),
		rootPath: root,
		jobs:     async.NewJobs(),
		ctx:      ctx,
		cancel:   cancel,
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "codecontext",
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
	return "codecontext", version.Version
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	out := make([]ToolInfo, len(tools))
	copy(out, tools)
	return out
}

// CallTool invokes a tool by name with JSON-style arguments, as a client
// would send them.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case ToolSearch:
		var in SearchInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		_, out, err := s.handleSearch(ctx, in)
		return out, err
	case ToolIndex:
		var in IndexInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		return s.handleIndex(ctx, in)
	case ToolIndexStatus:
		var in StatusInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		return s.handleStatus(ctx, in)
	case ToolClearIndex:
		var in ClearInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		return s.handleClear(ctx, in)
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

func decodeArgs(args map[string]any, into any) error {
	data, err := json.Marshal(args)
	if err != nil {
		return NewInvalidParamsError("arguments are not valid JSON")
	}
	if err := json.Unmarshal(data, into); err != nil {
		return NewInvalidParamsError("invalid arguments: " + err.Error())
	}
	return nil
}

// resolvePath makes p absolute against the server root. Empty means the root.
func (s *Server) resolvePath(p string) string {
	switch {
	case p == "":
		return s.rootPath
	case filepath.IsAbs(p):
		return filepath.Clean(p)
	default:
		return filepath.Join(s.rootPath, p)
	}
}

// progressFor returns the background run state of root, nil if none ran.
func (s *Server) progressFor(root string) *IndexingProgress {
	job, ok := s.jobs.Lookup(root)
	if !ok {
		return nil
	}
	snap := job.Progress().Snapshot()
	if snap.Status == string(async.StatusIdle) {
		return nil
	}
	return toIndexingProgress(snap)
}

// handleSearch returns the markdown rendering and the structured output.
func (s *Server) handleSearch(ctx context.Context, in SearchInput) (string, *SearchOutput, error) {
	if strings.TrimSpace(in.Query) == "" {
		return "", nil, NewInvalidParamsError("query parameter is required and must be a non-empty string")
	}

	start := time.Now()
	requestID := generateRequestID()
	root := s.resolvePath(in.Path)
	progress := s.progressFor(root)

	// Nothing to search until the first background run has stored something.
	if progress != nil && progress.Status == string(async.StatusIndexing) && !s.engine.HasIndex(root) {
		return FormatIndexingInProgress(progress), &SearchOutput{Results: []SearchResultOutput{}, Indexing: progress}, nil
	}

	opts := codecontext.SearchOptions{
		TopK:         clampLimit(in.Limit, s.config.Search.DefaultTopK, 1, search.MaxTopK),
		Threshold:    in.Threshold,
		Extensions:   in.Extensions,
		Language:     in.Language,
		Scopes:       in.Scope,
		MaxGraphHops: in.GraphHops,
	}

	s.logger.Info("search started",
		slog.String("request_id", requestID),
		slog.String("project", root),
		slog.Int("top_k", opts.TopK))

	results, err := s.engine.SearchWithOptions(ctx, root, in.Query, opts)
	duration := time.Since(start)
	if err != nil {
		attrs := append([]slog.Attr{
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
		}, cerrors.LogAttrs(err)...)
		s.logger.LogAttrs(ctx, slog.LevelError, "search failed", attrs...)
		return "", nil, MapError(err)
	}

	s.logger.Info("search completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.Int("result_count", len(results)))

	out := &SearchOutput{Results: make([]SearchResultOutput, 0, len(results))}
	for _, r := range results {
		if r != nil {
			out.Results = append(out.Results, ToSearchResultOutput(r))
		}
	}
	if progress != nil && progress.Status == string(async.StatusIndexing) {
		out.Indexing = progress
	}
	return FormatSearchResults(in.Query, results), out, nil
}

// handleIndex starts a background run, or waits for it when in.Wait is set.
func (s *Server) handleIndex(ctx context.Context, in IndexInput) (*IndexOutput, error) {
	root, err := scanner.ValidateRoot(s.resolvePath(in.Path))
	if err != nil {
		return nil, MapError(err)
	}

	job := s.jobs.Get(root)
	opts := index.Options{Force: in.Force, Ignore: in.Ignore}
	err = job.Start(s.ctx, func(ctx context.Context, progress index.ProgressFunc) (*index.Stats, error) {
		opts.Progress = progress
		return s.engine.IndexWithOptions(ctx, root, opts)
	})
	if err != nil {
		return nil, MapError(err)
	}
	s.logger.Info("background index started",
		slog.String("project", root),
		slog.Bool("force", in.Force))

	out := &IndexOutput{
		ProjectPath: root,
		Started:     true,
		Message:     "Indexing started in the background. Use index_status to follow progress.",
	}
	if !in.Wait {
		out.Progress = toIndexingProgress(job.Progress().Snapshot())
		return out, nil
	}

	done := make(chan struct{})
	var stats *index.Stats
	var runErr error
	go func() {
		stats, runErr = job.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		// The run keeps going in the background.
		return nil, MapError(ctx.Err())
	}

	out.Progress = toIndexingProgress(job.Progress().Snapshot())
	if runErr != nil {
		return nil, MapError(runErr)
	}
	out.Message = fmt.Sprintf("Indexing complete: %s.", stats)
	return out, nil
}

func (s *Server) handleStatus(ctx context.Context, in StatusInput) (*StatusOutput, error) {
	root := s.resolvePath(in.Path)

	status, err := s.engine.Status(ctx, root)
	if err != nil {
		return nil, MapError(err)
	}

	project := DetectProject(root)
	project.Collection = status.Collection

	out := &StatusOutput{
		Project: project,
		Stats: IndexStats{
			Indexed:     status.Indexed,
			FileCount:   status.Files,
			ChunkCount:  status.Chunks,
			VectorCount: status.Vectors,
		},
		Embeddings: EmbeddingInfo{
			Provider:   s.config.Embeddings.Provider,
			Model:      status.Model,
			Dimensions: status.Dimensions,
		},
		Indexing: s.progressFor(root),
	}
	if !status.LastIndexed.IsZero() {
		out.Stats.LastIndexed = status.LastIndexed.Format(time.RFC3339)
	}
	return out, nil
}

func (s *Server) handleClear(ctx context.Context, in ClearInput) (*ClearOutput, error) {
	root := s.resolvePath(in.Path)

	if job, ok := s.jobs.Lookup(root); ok && job.IsRunning() {
		return nil, MapError(cerrors.New(cerrors.ErrCodeIndexBusy, "indexing is in progress for "+root, nil).
			WithSuggestion("wait for the run to finish, then clear"))
	}
	if err := s.engine.ClearIndex(ctx, root); err != nil {
		return nil, MapError(err)
	}
	s.logger.Info("index cleared", slog.String("project", root))
	return &ClearOutput{ProjectPath: root, Cleared: true}, nil
}

// registerTools registers all tools with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolSearch, Description: tools[0].Description}, s.mcpSearchHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolIndex, Description: tools[1].Description}, s.mcpIndexHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolIndexStatus, Description: tools[2].Description}, s.mcpStatusHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolClearIndex, Description: tools[3].Description}, s.mcpClearHandler)

	s.logger.Debug("MCP tools registered", slog.Int("count", len(tools)))
}

// mcpSearchHandler returns markdown for display alongside the structured results.
func (s *Server) mcpSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, in SearchInput) (
	*mcp.CallToolResult,
	*SearchOutput,
	error,
) {
	text, out, err := s.handleSearch(ctx, in)
	if err != nil {
		return nil, nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, out, nil
}

func (s *Server) mcpIndexHandler(ctx context.Context, _ *mcp.CallToolRequest, in IndexInput) (
	*mcp.CallToolResult,
	*IndexOutput,
	error,
) {
	out, err := s.handleIndex(ctx, in)
	return nil, out, err
}

func (s *Server) mcpStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, in StatusInput) (
	*mcp.CallToolResult,
	*StatusOutput,
	error,
) {
	out, err := s.handleStatus(ctx, in)
	return nil, out, err
}

func (s *Server) mcpClearHandler(ctx context.Context, _ *mcp.CallToolRequest, in ClearInput) (
	*mcp.CallToolResult,
	*ClearOutput,
	error,
) {
	out, err := s.handleClear(ctx, in)
	return nil, out, err
}

// Serve runs the server over stdio until ctx is canceled or the client
// disconnects.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("Starting MCP server", slog.String("transport", "stdio"), slog.String("root", s.rootPath))

	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && err != context.Canceled {
		s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("MCP server stopped")
	return nil
}

// Close cancels background runs and waits for them to stop.
func (s *Server) Close() error {
	s.cancel()
	s.jobs.StopAll()
	return nil
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
