package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/insurelens/insurelens-ai/internal/metrics"
	"github.com/insurelens/insurelens-ai/internal/reasoning"
	api "github.com/insurelens/insurelens-ai/pkg/types"
)

// WebSocket message types.
const (
	MessageTypeAccepted  = "accepted"
	MessageTypeStep      = "step"
	MessageTypeTool      = "tool"
	MessageTypeFinal     = "final"
	MessageTypeError     = "error"
	MessageTypeHeartbeat = "heartbeat"
)

// WSMessage is one server-to-client frame.
type WSMessage struct {
	Type           string         `json:"type"`
	ConversationID string         `json:"conversation_id,omitempty"`
	ExecutionID    string         `json:"execution_id,omitempty"`
	Step           *api.TraceStep `json:"step,omitempty"`
	Tool           string         `json:"tool,omitempty"`
	Answer         string         `json:"answer,omitempty"`
	Data           interface{}    `json:"data,omitempty"`
	Incomplete     bool           `json:"incomplete,omitempty"`
	Error          string         `json:"error,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}

// WSRequest is one client query over the socket.
type WSRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Query          string `json:"query"`
	// Mode mirrors the REST query endpoint. React is the default on the
	// socket; streaming the trace is what it is for.
	Mode string `json:"mode,omitempty"`
}

// Origins admitted when no allow list is configured.
var defaultAllowedOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
}

// newUpgrader builds the WebSocket upgrader with origin checking. An empty
// allow list admits the local development origins; "*" admits any origin;
// requests without an Origin header (non-browser clients) always pass.
func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowed := allowedOrigins
	if len(allowed) == 0 {
		allowed = defaultAllowedOrigins
	}

	wildcard := false
	normalized := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			wildcard = true
			continue
		}
		normalized[strings.ToLower(o)] = struct{}{}
	}

	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if wildcard {
				return true
			}
			_, ok := normalized[strings.ToLower(origin)]
			return ok
		},
	}
}

// WSConnection represents an active WebSocket connection.
type WSConnection struct {
	conn      *websocket.Conn
	server    *Server
	mu        sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	sessionID string
}

// handleWSQuery upgrades the connection and serves queries over it.
func (s *Server) handleWSQuery(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(s.ctx)
	wsConn := &WSConnection{
		conn:      conn,
		server:    s,
		ctx:       ctx,
		cancel:    cancel,
		sessionID: fmt.Sprintf("ws-%d", time.Now().UnixNano()),
	}

	metrics.WebSocketConnections.Inc()
	s.log.Info("websocket connection established", zap.String("session_id", wsConn.sessionID))

	wsConn.handle()
}

// handle manages the connection lifecycle. Queries are served one at a time
// in arrival order.
func (wsc *WSConnection) handle() {
	defer func() {
		wsc.cancel()
		wsc.conn.Close()
		metrics.WebSocketConnections.Dec()
		wsc.server.log.Info("websocket connection closed", zap.String("session_id", wsc.sessionID))
	}()

	go wsc.heartbeat()

	for {
		select {
		case <-wsc.ctx.Done():
			return
		default:
			var req WSRequest
			if err := wsc.conn.ReadJSON(&req); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
					wsc.server.log.Warn("websocket read failed",
						zap.String("session_id", wsc.sessionID),
						zap.Error(err))
				}
				return
			}
			metrics.WebSocketMessagesTotal.WithLabelValues("inbound").Inc()
			wsc.serveQuery(&req)
		}
	}
}

func (wsc *WSConnection) serveQuery(req *WSRequest) {
	if strings.TrimSpace(req.Query) == "" {
		wsc.sendError("query is required")
		return
	}

	mode := req.Mode
	if mode == "" {
		mode = modeReact
	}
	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	switch mode {
	case modeRoute:
		wsc.serveRoute(conversationID, req.Query)
	case modeReact:
		wsc.serveReact(conversationID, req.Query)
	default:
		wsc.sendError(fmt.Sprintf("unknown mode %q", req.Mode))
	}
}

// serveRoute answers over the deterministic path with a single final frame.
func (wsc *WSConnection) serveRoute(conversationID, query string) {
	s := wsc.server

	res, err := s.router.Route(wsc.ctx, conversationID, query)
	if err != nil {
		wsc.sendError(err.Error())
		return
	}
	s.appendTurns(wsc.ctx, conversationID, query, string(res.Decision.Intent), res.Answer)

	wsc.send(&WSMessage{
		Type:           MessageTypeFinal,
		ConversationID: conversationID,
		Answer:         res.Answer,
		Data:           toolPayloadDTO(res.ToolResult.Payload),
		Timestamp:      time.Now().UTC(),
	})
}

// serveReact runs the reasoning loop and streams its events. The execution
// id is minted here so the subscription is in place before the run starts;
// no step frame can be missed.
func (wsc *WSConnection) serveReact(conversationID, query string) {
	s := wsc.server
	if !s.llmAdapter.Configured() {
		wsc.sendError("llm provider not configured")
		return
	}

	executionID := uuid.NewString()
	sub := s.engine.Subscribe(executionID)

	wsc.send(&WSMessage{
		Type:           MessageTypeAccepted,
		ConversationID: conversationID,
		ExecutionID:    executionID,
		Timestamp:      time.Now().UTC(),
	})

	done := make(chan *reasoning.Execution, 1)
	go func() {
		exec, err := s.engine.Ask(wsc.ctx, reasoning.Request{
			ConversationID: conversationID,
			Query:          query,
			ExecutionID:    executionID,
		})
		if err != nil {
			s.engine.Unsubscribe(sub)
			wsc.sendError(err.Error())
		}
		done <- exec
	}()

	for ev := range sub.Ch {
		wsc.relay(conversationID, ev)
	}

	if exec := <-done; exec != nil && exec.State != reasoning.StateFailed {
		s.appendTurns(wsc.ctx, conversationID, query, string(exec.PredictedIntent), exec.FinalAnswer)
	}
}

// relay converts one engine event into its wire frame.
func (wsc *WSConnection) relay(conversationID string, ev reasoning.Event) {
	msg := &WSMessage{
		ConversationID: conversationID,
		ExecutionID:    ev.ExecutionID,
		Timestamp:      ev.Timestamp,
	}

	switch ev.Type {
	case reasoning.EventStep:
		msg.Type = MessageTypeStep
		if ev.Step != nil {
			step := stepDTO(*ev.Step)
			msg.Step = &step
		}
	case reasoning.EventTool:
		msg.Type = MessageTypeTool
		msg.Tool = ev.Tool
		if ev.ToolResult != nil {
			msg.Data = toolPayloadDTO(ev.ToolResult.Payload)
		}
	case reasoning.EventFinal:
		msg.Type = MessageTypeFinal
		msg.Answer = ev.Answer
		msg.Incomplete = ev.Incomplete
	case reasoning.EventError:
		msg.Type = MessageTypeError
		msg.Error = ev.Error
	default:
		return
	}

	wsc.send(msg)
}

// send sends a message to the client.
func (wsc *WSConnection) send(msg *WSMessage) error {
	wsc.mu.Lock()
	defer wsc.mu.Unlock()

	metrics.WebSocketMessagesTotal.WithLabelValues("outbound").Inc()
	wsc.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return wsc.conn.WriteJSON(msg)
}

// sendError sends an error message to the client.
func (wsc *WSConnection) sendError(errMsg string) {
	wsc.send(&WSMessage{
		Type:      MessageTypeError,
		Error:     errMsg,
		Timestamp: time.Now().UTC(),
	})
}

// heartbeat sends periodic heartbeat messages.
func (wsc *WSConnection) heartbeat() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-wsc.ctx.Done():
			return
		case <-ticker.C:
			wsc.send(&WSMessage{
				Type:      MessageTypeHeartbeat,
				Timestamp: time.Now().UTC(),
			})
		}
	}
}
