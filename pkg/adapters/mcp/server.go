// Package mcp exposes the conductor operations as Model Context Protocol
// tools so assistants can inspect sessions and trigger inputs.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/conductor/internal/logging"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const sessionsURI = "conductor://sessions"

// Sessions is the registry surface exposed as tools.
type Sessions interface {
	StartSession(ctx context.Context, lot, expiry string, origin int, run *domain.Context) (*domain.Session, error)
	GetSession(origin int) (*domain.Session, error)
	PauseSession(ctx context.Context, lot string) error
	RestartSession(ctx context.Context, lot string) (*domain.Session, error)
	FinishSession(ctx context.Context, lot string) error
	List(ctx context.Context) ([]*domain.Session, error)
	Active() []*domain.Session
}

// Dispatcher triggers inputs and reports runs.
type Dispatcher interface {
	Dispatch(ctx context.Context, n int) (*domain.Run, error)
	Runs() []domain.Run
}

// Server wraps the conductor operations as an MCP server.
type Server struct {
	sessions   Sessions
	dispatcher Dispatcher
	mcpServer  *server.MCPServer
	logger     *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithLogger configures a logger for the Server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(sessions Sessions, dispatcher Dispatcher, version string, opts ...Option) *Server {
	s := &Server{
		sessions:   sessions,
		dispatcher: dispatcher,
		mcpServer:  server.NewMCPServer("conductor-mcp", version),
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the MCP SSE transport on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())
	httpServer := &http.Server{Addr: addr, Handler: mux}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("list_sessions",
		mcp.WithDescription("List the active sessions, or every persisted session when all is true."),
		mcp.WithBoolean("all", mcp.Description("Include paused and finished sessions")),
	), s.handleListSessions)

	s.mcpServer.AddTool(mcp.NewTool("get_active_session",
		mcp.WithDescription("Get the session currently running on an origin input."),
		mcp.WithNumber("input", mcp.Required(), mcp.Description("Origin input number (1-16)")),
	), s.handleGetActiveSession)

	s.mcpServer.AddTool(mcp.NewTool("start_session",
		mcp.WithDescription("Start a session by hand. The lot must start with 10."),
		mcp.WithString("lot", mcp.Required(), mcp.Description("Lot number")),
		mcp.WithString("expiry", mcp.Required(), mcp.Description("Expiry date, YYMMDD")),
		mcp.WithNumber("input", mcp.Required(), mcp.Description("Origin input number (1-16)")),
	), s.handleStartSession)

	s.mcpServer.AddTool(mcp.NewTool("pause_session",
		mcp.WithDescription("Pause a running session."),
		mcp.WithString("lot", mcp.Required(), mcp.Description("Lot number")),
	), s.lotHandler(s.sessions.PauseSession))

	s.mcpServer.AddTool(mcp.NewTool("restart_session",
		mcp.WithDescription("Resume a paused session."),
		mcp.WithString("lot", mcp.Required(), mcp.Description("Lot number")),
	), s.lotHandler(func(ctx context.Context, lot string) error {
		_, err := s.sessions.RestartSession(ctx, lot)
		return err
	}))

	s.mcpServer.AddTool(mcp.NewTool("finish_session",
		mcp.WithDescription("Finish a session."),
		mcp.WithString("lot", mcp.Required(), mcp.Description("Lot number")),
	), s.lotHandler(s.sessions.FinishSession))

	s.mcpServer.AddTool(mcp.NewTool("dispatch_input",
		mcp.WithDescription("Trigger the pipeline mapped to an input, as if the line went active."),
		mcp.WithNumber("input", mcp.Required(), mcp.Description("Input number (1-16)")),
	), s.handleDispatchInput)

	s.mcpServer.AddTool(mcp.NewTool("list_runs",
		mcp.WithDescription("List recent pipeline runs, newest first."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(s.dispatcher.Runs())
	})
}

func (s *Server) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !request.GetBool("all", false) {
		return jsonResult(s.sessions.Active())
	}
	sessions, err := s.sessions.List(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(sessions)
}

func (s *Server) handleGetActiveSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n, err := request.RequireInt("input")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	session, err := s.sessions.GetSession(n)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(session)
}

func (s *Server) handleStartSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	lot, err := request.RequireString("lot")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	expiry, err := request.RequireString("expiry")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := request.RequireInt("input")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := domain.ValidateManualLot(lot); err != nil {
		return errorResult(err), nil
	}
	session, err := s.sessions.StartSession(ctx, lot, expiry, n, nil)
	if err != nil {
		return errorResult(err), nil
	}
	s.logger.Info("Session started via MCP", "lot", lot, "origin_input", n)
	return jsonResult(session)
}

func (s *Server) handleDispatchInput(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n, err := request.RequireInt("input")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	run, err := s.dispatcher.Dispatch(ctx, n)
	if err != nil && run == nil {
		return errorResult(err), nil
	}
	return jsonResult(run)
}

func (s *Server) lotHandler(fn func(context.Context, string) error) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		lot, err := request.RequireString("lot")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if err := fn(ctx, lot); err != nil {
			return errorResult(err), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("lot %s updated", lot)), nil
	}
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(sessionsURI, "Active Sessions",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		jsonBytes, err := json.Marshal(s.sessions.Active())
		if err != nil {
			return nil, fmt.Errorf("failed to encode sessions: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      sessionsURI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// errorResult reports err to the caller as a tool error tagged with its kind.
func errorResult(err error) *mcp.CallToolResult {
	var e *domain.Error
	if errors.As(err, &e) {
		return mcp.NewToolResultError(fmt.Sprintf("%s: %v", e.Kind, err))
	}
	return mcp.NewToolResultError(err.Error())
}
