package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sameehj/vaultd/pkg/tool"
	"github.com/sameehj/vaultd/pkg/version"
)

// Server answers MCP JSON-RPC requests with the vault tools.
type Server struct {
	registry *tool.Registry
	logger   *slog.Logger
}

func NewServer(registry *tool.Registry) *Server {
	return &Server{registry: registry}
}

func (s *Server) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// Serve reads framed requests from reader until EOF and writes responses to
// writer. Frames use Content-Length headers; bare JSON lines are accepted too.
// Serve returns ctx.Err() as soon as ctx is done, even while a read is blocked.
func (s *Server) Serve(ctx context.Context, reader io.Reader, writer io.Writer) error {
	bufReader := bufio.NewReader(reader)
	bufWriter := bufio.NewWriter(writer)

	messages := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		for {
			payload, err := readMessage(bufReader)
			if err != nil {
				readErr <- err
				return
			}
			select {
			case messages <- payload:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				return nil
			}
			s.logError("mcp_read_failed", "error", err)
			return err
		case payload := <-messages:
			resp := s.HandlePayload(ctx, payload)
			if resp == nil {
				continue
			}
			if err := writeResponse(bufWriter, resp); err != nil {
				s.logError("mcp_write_failed", "error", err)
				return err
			}
		}
	}
}

// HandlePayload decodes one JSON-RPC message and dispatches it. It returns nil
// for notifications.
func (s *Server) HandlePayload(ctx context.Context, payload []byte) *Response {
	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		s.logWarn("mcp_parse_error", "error", err)
		return errorResponse(nil, codeParseError, "parse error", err.Error())
	}
	return s.Handle(ctx, req)
}

// Handle dispatches a decoded request.
func (s *Server) Handle(ctx context.Context, req Request) *Response {
	if req.Method == "" {
		return errorResponse(req.ID, codeInvalidRequest, "invalid request", "missing method")
	}
	if req.IsNotification() {
		s.logInfo("mcp_notification", "method", req.Method)
		return nil
	}

	switch req.Method {
	case "initialize":
		return resultResponse(req.ID, map[string]any{
			"protocolVersion": protocolVersion,
			"capabilities": map[string]any{
				"tools": map[string]any{},
			},
			"serverInfo": map[string]any{
				"name":    serverName,
				"version": version.Version,
			},
		})
	case "ping":
		return resultResponse(req.ID, map[string]any{})
	case "tools/list":
		return resultResponse(req.ID, map[string]any{
			"tools": s.registry.Definitions(),
		})
	case "tools/call":
		return s.handleToolCall(ctx, req)
	default:
		return errorResponse(req.ID, codeMethodNotFound, "method not found", req.Method)
	}
}

func (s *Server) handleToolCall(ctx context.Context, req Request) *Response {
	var call toolCallParams
	if err := json.Unmarshal(req.Params, &call); err != nil {
		return errorResponse(req.ID, codeInvalidParams, "invalid params", err.Error())
	}
	if call.Name == "" {
		return errorResponse(req.ID, codeInvalidParams, "invalid params", "missing tool name")
	}

	requestID := uuid.NewString()
	start := time.Now()
	s.logInfo("tool_called", "request_id", requestID, "tool", call.Name, "vault", call.Arguments["vault"])

	text, err := s.registry.Call(ctx, call.Name, call.Arguments)
	if err != nil {
		if errors.Is(err, tool.ErrUnknownTool) {
			s.logWarn("tool_unknown", "request_id", requestID, "tool", call.Name)
			return resultResponse(req.ID, textResult(fmt.Sprintf("Unknown tool: %s", call.Name), true))
		}
		s.logWarn("tool_failed", "request_id", requestID, "tool", call.Name, "error", err)
		return resultResponse(req.ID, textResult("Error: "+err.Error(), true))
	}
	s.logInfo("tool_completed", "request_id", requestID, "tool", call.Name, "duration", time.Since(start))
	return resultResponse(req.ID, textResult(text, false))
}

func textResult(text string, isError bool) ToolResult {
	return ToolResult{Content: []ToolContent{{Type: "text", Text: text}}, IsError: isError}
}

func resultResponse(id json.RawMessage, result interface{}) *Response {
	return &Response{JSONRPC: jsonRPCVersion, ID: id, Result: result}
}

func errorResponse(id json.RawMessage, code int, message string, data interface{}) *Response {
	return &Response{JSONRPC: jsonRPCVersion, ID: id, Error: &RPCError{Code: code, Message: message, Data: data}}
}

func writeResponse(w *bufio.Writer, resp *Response) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return writeMessage(w, payload)
}

func writeMessage(w *bufio.Writer, payload []byte) error {
	if _, err := fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(payload)); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	return w.Flush()
}

func readMessage(r *bufio.Reader) ([]byte, error) {
	for {
		line, err := r.ReadString('\n')
		if err != nil && len(line) == 0 {
			return nil, err
		}
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "{") {
			return []byte(trimmed), nil
		}

		contentLength, err := parseContentLength(trimmed)
		if err != nil {
			return nil, err
		}
		for {
			headerLine, readErr := r.ReadString('\n')
			if readErr != nil && len(headerLine) == 0 {
				return nil, readErr
			}
			header := strings.TrimRight(headerLine, "\r\n")
			if header == "" {
				break
			}
			length, err := parseContentLength(header)
			if err != nil {
				return nil, err
			}
			if length > 0 {
				contentLength = length
			}
		}

		if contentLength <= 0 {
			return nil, fmt.Errorf("missing Content-Length")
		}
		if contentLength > maxRequestBytes {
			return nil, fmt.Errorf("content length %d exceeds limit of %d bytes", contentLength, maxRequestBytes)
		}

		payload := make([]byte, contentLength)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, err
		}
		return payload, nil
	}
}

// parseContentLength returns 0 for headers other than Content-Length.
func parseContentLength(header string) (int, error) {
	name, value, ok := strings.Cut(header, ":")
	if !ok || !strings.EqualFold(strings.TrimSpace(name), "content-length") {
		return 0, nil
	}
	length, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid Content-Length %q: %w", value, err)
	}
	return length, nil
}

func (s *Server) logInfo(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s *Server) logWarn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}

func (s *Server) logError(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Error(msg, args...)
	}
}
