package mcp

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/google/uuid"
)

// maxRequestBytes caps a single JSON-RPC message on either transport.
const maxRequestBytes = 1 << 20

// HTTPTransport exposes a Server over HTTP. POST carries JSON-RPC requests;
// GET opens an SSE stream. A POST naming an open stream's session_id has its
// response delivered on that stream and is acknowledged with 202, otherwise
// the response is written inline.
type HTTPTransport struct {
	server *Server

	mu       sync.Mutex
	sessions map[string]chan []byte
}

func NewHTTPTransport(server *Server) *HTTPTransport {
	return &HTTPTransport{
		server:   server,
		sessions: make(map[string]chan []byte),
	}
}

func (h *HTTPTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.setCORSHeaders(w)

	switch r.Method {
	case http.MethodGet:
		h.handleSSE(w, r)
	case http.MethodPost:
		h.handleJSONRPC(w, r)
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *HTTPTransport) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sessionID := uuid.NewString()
	client := make(chan []byte, 16)
	h.subscribe(sessionID, client)
	defer h.unsubscribe(sessionID)
	h.server.logInfo("sse_session_start", "session_id", sessionID, "remote", r.RemoteAddr)
	defer h.server.logInfo("sse_session_end", "session_id", sessionID)

	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprintf(w, "event: endpoint\ndata: %s?session_id=%s\n\n", r.URL.Path, sessionID); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-client:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "event: message\ndata: %s\n\n", msg); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (h *HTTPTransport) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		h.writeResponse(w, errorResponse(nil, codeParseError, "read body", err.Error()))
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID != "" && !h.hasSession(sessionID) {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	// Cancelling the HTTP request also cancels any command it started.
	resp := h.server.HandlePayload(r.Context(), payload)

	if sessionID != "" {
		if resp != nil {
			h.publish(sessionID, resp)
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}

	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	h.writeResponse(w, resp)
}

func (h *HTTPTransport) writeResponse(w http.ResponseWriter, resp *Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.server.logWarn("mcp_write_failed", "error", err)
	}
}

func (h *HTTPTransport) setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
}

func (h *HTTPTransport) subscribe(id string, ch chan []byte) {
	h.mu.Lock()
	h.sessions[id] = ch
	h.mu.Unlock()
}

func (h *HTTPTransport) unsubscribe(id string) {
	h.mu.Lock()
	if ch, ok := h.sessions[id]; ok {
		delete(h.sessions, id)
		close(ch)
	}
	h.mu.Unlock()
}

func (h *HTTPTransport) hasSession(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.sessions[id]
	return ok
}

// SessionCount reports open SSE streams.
func (h *HTTPTransport) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

func (h *HTTPTransport) publish(id string, resp *Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.sessions[id]
	if !ok {
		return
	}
	select {
	case ch <- data:
	default:
		h.server.logWarn("sse_message_dropped", "session_id", id)
	}
}
