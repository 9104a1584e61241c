// Package mcp exposes a Verifier to MCP clients as tools and resources.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/attest"
	"github.com/aretw0/attest/internal/logging"
	"github.com/aretw0/attest/pkg/contacts"
	"github.com/aretw0/attest/pkg/domain"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/errgroup"
)

// ToolsURI is the resource listing the oracle's tool catalog.
const ToolsURI = "attest://tools"

// Verifier is the subset of *attest.Verifier exposed over MCP.
type Verifier interface {
	RunDecision(ctx context.Context, req attest.Request) (*domain.Result, error)
	LoadSession(ctx context.Context, id string) ([]domain.StepRecord, error)
	ListSessions(ctx context.Context) ([]domain.SessionSummary, error)
	Tools() []domain.ToolDefinition
}

// RunDecisionArgs are the run_decision tool arguments. The reply is flattened
// so clients can fill it field by field.
type RunDecisionArgs struct {
	SessionID        string `json:"session_id,omitempty"`
	CandidateName    string `json:"candidate_name"`
	UniversityName   string `json:"university_name"`
	DegreeName       string `json:"degree_name,omitempty"`
	IssueDate        string `json:"issue_date,omitempty"`
	ReplyBody        string `json:"reply_body,omitempty"`
	ReplySender      string `json:"reply_sender_email,omitempty"`
	ReplySubject     string `json:"reply_subject,omitempty"`
	ReplyReferenceID string `json:"reply_reference_id,omitempty"`
	ContactFound     *bool  `json:"contact_found,omitempty"`
	MaxIterations    int    `json:"max_iterations,omitempty"`
}

// SessionArgs select one session.
type SessionArgs struct {
	SessionID string `json:"session_id"`
}

// Server wraps a Verifier as an MCP server.
type Server struct {
	verifier  Verifier
	contacts  *contacts.Directory
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures a Server.
type Option func(*Server)

// WithContacts derives contact_found from the directory when a call omits it.
func WithContacts(d *contacts.Directory) Option {
	return func(s *Server) { s.contacts = d }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// NewServer creates a new MCP Server instance.
func NewServer(v Verifier, opts ...Option) *Server {
	s := &Server{
		verifier:  v,
		logger:    logging.NewNop(),
		mcpServer: server.NewMCPServer("attest-mcp", strings.TrimSpace(attest.Version)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying server, mainly for tests and embedding.
func (s *Server) MCPServer() *server.MCPServer { return s.mcpServer }

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves MCP over SSE on addr until ctx is cancelled.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sse := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", sse.SSEHandler())
	mux.Handle("/message", sse.MessageHandler())
	httpServer := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("run_decision",
		mcp.WithDescription("Decide whether a credential is compliant based on the issuing institution's reply. "+
			"Every step is written to an append-only audit log; the result carries the session id."),
		mcp.WithString("candidate_name", mcp.Required(), mcp.Description("Name on the certificate")),
		mcp.WithString("university_name", mcp.Required(), mcp.Description("Issuing institution")),
		mcp.WithString("degree_name", mcp.Description("Degree on the certificate")),
		mcp.WithString("issue_date", mcp.Description("Issue date on the certificate")),
		mcp.WithString("reply_body", mcp.Description("Text of the institution's reply; omit when none was received")),
		mcp.WithString("reply_sender_email", mcp.Description("Sender of the reply")),
		mcp.WithString("reply_subject", mcp.Description("Subject of the reply")),
		mcp.WithString("reply_reference_id", mcp.Description("Verification reference quoted in the reply")),
		mcp.WithBoolean("contact_found", mcp.Description("Whether the institution's verification contact is known")),
		mcp.WithNumber("max_iterations", mcp.Description("Iteration cap for this run")),
		mcp.WithString("session_id", mcp.Description("Optional audit session id; must be unused")),
		mcp.WithOutputSchema[domain.Result](),
	), mcp.NewStructuredToolHandler(s.handleRunDecision))

	s.mcpServer.AddTool(mcp.NewTool("load_session",
		mcp.WithDescription("Replay the audit records of a session in order."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session to load")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args SessionArgs
		if err := request.BindArguments(&args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		recs, err := s.verifier.LoadSession(ctx, args.SessionID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("load session failed: %v", err)), nil
		}
		return jsonResult(recs)
	})

	s.mcpServer.AddTool(mcp.NewTool("list_sessions",
		mcp.WithDescription("Summaries of ended sessions, most recent first."),
	), func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sums, err := s.verifier.ListSessions(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list sessions failed: %v", err)), nil
		}
		if sums == nil {
			sums = []domain.SessionSummary{}
		}
		return jsonResult(sums)
	})

	s.mcpServer.AddTool(mcp.NewTool("list_tools",
		mcp.WithDescription("The tool catalog the reasoning oracle chooses from."),
	), func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(s.verifier.Tools())
	})
}

func (s *Server) handleRunDecision(ctx context.Context, _ mcp.CallToolRequest, args RunDecisionArgs) (*domain.Result, error) {
	req := attest.Request{
		SessionID: args.SessionID,
		Certificate: domain.Certificate{
			CandidateName:  args.CandidateName,
			UniversityName: args.UniversityName,
			DegreeName:     args.DegreeName,
			IssueDate:      args.IssueDate,
		},
		MaxIterations: args.MaxIterations,
	}
	if args.ReplyBody != "" {
		req.Reply = &domain.Reply{
			SenderEmail: args.ReplySender,
			Subject:     args.ReplySubject,
			Body:        args.ReplyBody,
			ReferenceID: args.ReplyReferenceID,
		}
	}
	switch {
	case args.ContactFound != nil:
		req.ContactFound = *args.ContactFound
	case s.contacts != nil:
		_, req.ContactFound = s.contacts.Lookup(args.UniversityName)
	default:
		req.ContactFound = req.Reply != nil
	}

	res, err := s.verifier.RunDecision(ctx, req)
	if err != nil {
		s.logger.Error("MCP run_decision failed", "err", err)
		return nil, err
	}
	return res, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(ToolsURI, "Oracle tool catalog",
		mcp.WithMIMEType("application/json"),
	), func(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		data, err := json.Marshal(s.verifier.Tools())
		if err != nil {
			return nil, fmt.Errorf("failed to encode tools: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      ToolsURI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
