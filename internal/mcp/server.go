package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ToolHandler runs one tool call. A returned error becomes an isError result.
type ToolHandler func(ctx context.Context, args json.RawMessage) (*ToolCallResult, error)

type registeredTool struct {
	tool      Tool
	handler   ToolHandler
	validator *validator
}

// Server is an MCP server over newline-delimited JSON.
type Server struct {
	info         ImplementationInfo
	instructions string
	logger       *slog.Logger

	mu          sync.RWMutex
	tools       map[string]registeredTool
	initialized bool

	writeMu sync.Mutex
	writer  io.Writer

	callsMu sync.Mutex
	calls   map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithInstructions sets the instructions sent during initialize.
func WithInstructions(instructions string) ServerOption {
	return func(s *Server) {
		s.instructions = instructions
	}
}

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a server named name.
func NewServer(name, version string, opts ...ServerOption) *Server {
	s := &Server{
		info:   ImplementationInfo{Name: name, Version: version},
		tools:  make(map[string]registeredTool),
		calls:  make(map[string]context.CancelFunc),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterTool adds a tool. Its input schema is compiled here so a broken
// schema fails at startup rather than on first call.
func (s *Server) RegisterTool(tool Tool, handler ToolHandler) error {
	v, err := compileSchema(tool)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tools[tool.Name] = registeredTool{tool: tool, handler: handler, validator: v}
	s.logger.Debug("registered tool", "name", tool.Name)
	return nil
}

// Initialized reports whether the client sent notifications/initialized.
func (s *Server) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// Serve reads requests from in and writes responses to out until in reaches
// EOF or ctx ends. Tool calls run concurrently; in-flight calls are cancelled
// and awaited before Serve returns.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	s.writeMu.Lock()
	s.writer = out
	s.writeMu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		s.wg.Wait()
	}()

	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if err != nil {
				return fmt.Errorf("read mcp input: %w", err)
			}
			return nil
		case line := <-lines:
			if len(line) == 0 {
				continue
			}
			s.dispatch(ctx, line)
		}
	}
}

func (s *Server) dispatch(ctx context.Context, line []byte) {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		s.send(newErrorResponse(nil, newParseError(err.Error())))
		return
	}
	if req.IsNotification() {
		s.handleNotification(&req)
		return
	}

	s.logger.Debug("mcp request", "method", req.Method, "id", string(req.ID))
	switch req.Method {
	case "initialize":
		result, rpcErr := s.handleInitialize(req.Params)
		s.reply(req.ID, result, rpcErr)
	case "tools/list":
		s.reply(req.ID, s.handleToolsList(), nil)
	case "tools/call":
		s.startToolCall(ctx, req)
	case "ping":
		s.reply(req.ID, struct{}{}, nil)
	default:
		s.reply(req.ID, nil, newMethodNotFound(req.Method))
	}
}

func (s *Server) reply(id json.RawMessage, result any, rpcErr *RPCError) {
	if rpcErr != nil {
		s.send(newErrorResponse(id, rpcErr))
		return
	}
	s.send(newResponse(id, result))
}

func (s *Server) handleNotification(req *Request) {
	switch req.Method {
	case "notifications/initialized":
		s.mu.Lock()
		s.initialized = true
		s.mu.Unlock()
		s.logger.Debug("mcp client initialized")
	case "notifications/cancelled":
		var p cancelledParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			s.logger.Debug("malformed cancel notification", "error", err)
			return
		}
		s.callsMu.Lock()
		cancel, ok := s.calls[string(p.RequestID)]
		s.callsMu.Unlock()
		if ok {
			s.logger.Info("tool call cancelled by client", "id", string(p.RequestID), "reason", p.Reason)
			cancel()
		}
	default:
		s.logger.Debug("ignoring notification", "method", req.Method)
	}
}

func (s *Server) handleInitialize(params json.RawMessage) (any, *RPCError) {
	var p InitializeParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, newInvalidParams(err.Error())
		}
	}
	s.logger.Info("mcp initialize", "client", p.ClientInfo.Name, "client_version", p.ClientInfo.Version, "protocol", p.ProtocolVersion)

	return InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    ServerCapability{Tools: &ToolsCapability{}},
		ServerInfo:      s.info,
		Instructions:    s.instructions,
	}, nil
}

func (s *Server) handleToolsList() ToolsListResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tools := make([]Tool, 0, len(s.tools))
	for _, t := range s.tools {
		tools = append(tools, t.tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return ToolsListResult{Tools: tools}
}

func (s *Server) startToolCall(ctx context.Context, req Request) {
	var p ToolCallParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		s.reply(req.ID, nil, newInvalidParams(err.Error()))
		return
	}

	s.mu.RLock()
	registered, ok := s.tools[p.Name]
	s.mu.RUnlock()
	if !ok {
		s.reply(req.ID, nil, newToolNotFound(p.Name))
		return
	}
	if err := registered.validator.validate(p.Arguments); err != nil {
		s.reply(req.ID, nil, newInvalidParams(err.Error()))
		return
	}

	callCtx, cancel := context.WithCancel(ctx)
	key := string(req.ID)
	s.callsMu.Lock()
	s.calls[key] = cancel
	s.callsMu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.callsMu.Lock()
			delete(s.calls, key)
			s.callsMu.Unlock()
			cancel()
		}()

		started := time.Now()
		result, err := registered.handler(callCtx, p.Arguments)
		elapsed := time.Since(started)
		if err != nil {
			s.logger.Warn("tool call failed", "name", p.Name, "error", err, "duration_ms", elapsed.Milliseconds())
			result = ErrorResult(err.Error())
		} else {
			s.logger.Info("tool call finished", "name", p.Name, "duration_ms", elapsed.Milliseconds(), "is_error", result != nil && result.IsError)
		}
		if result == nil {
			result = SuccessResult("")
		}
		s.reply(req.ID, result, nil)
	}()
}

func (s *Server) send(resp *Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("marshal mcp response", "error", err)
		return
	}
	data = append(data, '\n')

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.writer == nil {
		return
	}
	if _, err := s.writer.Write(data); err != nil {
		s.logger.Warn("write mcp response", "error", err)
	}
}
