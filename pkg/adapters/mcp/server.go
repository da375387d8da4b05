// Package mcp exposes a bot as a Model Context Protocol server, so that an MCP
// client (an IDE, an agent) can converse with it through tools.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/internal/presentation/graph"
	"github.com/aretw0/parley/pkg/provider"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// GraphURI is the resource holding the Mermaid rendering of the execution graph.
const GraphURI = "parley://graph"

// ErrNotAttached is returned by tools invoked before Run attached a runtime.
var ErrNotAttached = errors.New("mcp server is not attached to a runtime")

// MessageResponse is the result of the send_message tool.
type MessageResponse struct {
	SessionID string   `json:"session_id" jsonschema_description:"The conversation the message belongs to"`
	Replies   []string `json:"replies" jsonschema_description:"Messages the bot replied with, in order"`
	State     string   `json:"state,omitempty" jsonschema_description:"The state the conversation rests in"`
}

// EventResponse is the result of the send_event tool.
type EventResponse struct {
	SessionID string `json:"session_id" jsonschema_description:"The conversation the event was sent to"`
	Event     string `json:"event" jsonschema_description:"Name of the handled event"`
	State     string `json:"state,omitempty" jsonschema_description:"The state the conversation rests in"`
}

// IntentInfo describes one intent of the bot.
type IntentInfo struct {
	Name     string   `json:"name"`
	Examples []string `json:"examples,omitempty"`
	Requires []string `json:"requires,omitempty"`
}

// Server is an input provider serving MCP over stdio, or over SSE when a port is set.
type Server struct {
	mcpServer *server.MCPServer
	logger    *slog.Logger
	stdin     io.Reader
	stdout    io.Writer
	ssePort   int

	mu     sync.Mutex
	sink   provider.Sink
	cancel context.CancelFunc
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithStdio replaces os.Stdin and os.Stdout.
func WithStdio(in io.Reader, out io.Writer) Option {
	return func(s *Server) {
		s.stdin, s.stdout = in, out
	}
}

// WithSSE serves the SSE transport on port instead of stdio.
func WithSSE(port int) Option {
	return func(s *Server) {
		s.ssePort = port
	}
}

// NewServer creates an MCP server advertising the given version.
func NewServer(version string, opts ...Option) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer("parley-mcp", version),
		stdin:     os.Stdin,
		stdout:    os.Stdout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.NewNop()
	}
	s.registerTools()
	s.registerResources()
	return s
}

// Name implements provider.InputProvider.
func (s *Server) Name() string { return "mcp" }

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer { return s.mcpServer }

// Attach binds the server to a runtime without serving a transport.
func (s *Server) Attach(sink provider.Sink) {
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()
}

// Run serves the configured transport until ctx is cancelled or Close is called.
func (s *Server) Run(ctx context.Context, sink provider.Sink) error {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.sink = sink
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	if s.ssePort > 0 {
		return s.serveSSE(ctx)
	}
	s.logger.Info("MCP server listening (stdio)")
	err := server.NewStdioServer(s.mcpServer).Listen(ctx, s.stdin, s.stdout)
	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, io.EOF)) {
		return nil
	}
	return err
}

// Close stops a running transport.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

func (s *Server) serveSSE(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.ssePort)
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(fmt.Sprintf("http://localhost:%d", s.ssePort)))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))
	httpServer := &http.Server{Addr: addr, Handler: mux}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("mcp listen on %s: %w", addr, err)
	}
	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
		serverErrors <- httpServer.Serve(ln)
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop mcp server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) attached() (provider.Sink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sink == nil {
		return nil, ErrNotAttached
	}
	return s.sink, nil
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("send_message",
		mcp.WithDescription("Send a user message to the bot and return its replies."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Conversation identifier; a new one starts the conversation")),
		mcp.WithString("text", mcp.Required(), mcp.Description("What the user says")),
		mcp.WithOutputSchema[MessageResponse](),
	), mcp.NewStructuredToolHandler(s.handleSendMessage))

	s.mcpServer.AddTool(mcp.NewTool("send_event",
		mcp.WithDescription("Send a declared non-intent event to a conversation."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Conversation identifier")),
		mcp.WithString("event", mcp.Required(), mcp.Description("Event name")),
		mcp.WithString("contexts", mcp.Description("JSON object of context values, keyed by context then parameter")),
		mcp.WithOutputSchema[EventResponse](),
	), mcp.NewStructuredToolHandler(s.handleSendEvent))

	s.mcpServer.AddTool(mcp.NewTool("list_intents",
		mcp.WithDescription("List the intents the bot understands, with example sentences."),
	), s.handleListIntents)
}

func (s *Server) handleSendMessage(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (MessageResponse, error) {
	sink, err := s.attached()
	if err != nil {
		return MessageResponse{}, err
	}
	sessionID, _ := args["session_id"].(string)
	text, _ := args["text"].(string)
	if sessionID == "" {
		return MessageResponse{}, fmt.Errorf("session_id is required")
	}

	replies, err := provider.Chat(ctx, sink, sessionID, text)
	if err != nil {
		s.logger.Warn("MCP message rejected", "session_id", sessionID, "err", err)
		return MessageResponse{}, fmt.Errorf("send message: %w", err)
	}
	resp := MessageResponse{SessionID: sessionID, Replies: replies}
	if resp.Replies == nil {
		resp.Replies = []string{}
	}
	if sess, err := sink.Session(ctx, sessionID); err == nil && sess.State() != nil {
		resp.State = sess.State().Name
	}
	return resp, nil
}

func (s *Server) handleSendEvent(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (EventResponse, error) {
	sink, err := s.attached()
	if err != nil {
		return EventResponse{}, err
	}
	sessionID, _ := args["session_id"].(string)
	name, _ := args["event"].(string)

	var values map[string]map[string]any
	if raw, ok := args["contexts"].(string); ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &values); err != nil {
			return EventResponse{}, fmt.Errorf("invalid contexts: %w", err)
		}
	}

	ch, err := provider.SendEvent(ctx, sink, sessionID, name, values)
	if err != nil {
		return EventResponse{}, fmt.Errorf("send event: %w", err)
	}
	turn, err := provider.Wait(ctx, ch)
	if err != nil {
		return EventResponse{}, fmt.Errorf("send event: %w", err)
	}
	resp := EventResponse{SessionID: sessionID, Event: name}
	if turn != nil {
		resp.State = turn.To()
	}
	return resp, nil
}

func (s *Server) handleListIntents(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sink, err := s.attached()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var intents []IntentInfo
	for _, def := range sink.Bot().Intents {
		intents = append(intents, IntentInfo{
			Name:     def.Name,
			Examples: def.TrainingSentences,
			Requires: def.InContexts,
		})
	}
	sort.Slice(intents, func(i, j int) bool { return intents[i].Name < intents[j].Name })
	jsonBytes, err := json.Marshal(intents)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode intents: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(GraphURI, "Execution Graph",
		mcp.WithMIMEType("text/vnd.mermaid"),
	), s.readGraph)
}

func (s *Server) readGraph(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	sink, err := s.attached()
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      GraphURI,
			MIMEType: "text/vnd.mermaid",
			Text:     graph.GenerateMermaid(sink.Bot().Graph, nil),
		},
	}, nil
}

var _ provider.InputProvider = (*Server)(nil)
