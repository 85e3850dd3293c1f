// Package ws implements the WebSocket chat surface. Clients hold a
// single connection and exchange JSON frames: each "chat" frame is
// routed through the agent selector, each "run" frame executes the
// active workflow.
package ws

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/jkaninda/busara/internal/agent"
	"github.com/jkaninda/busara/internal/gateway/httpapi"
	"github.com/jkaninda/busara/internal/llm"
	"github.com/jkaninda/busara/internal/workflow"
)

const subprotocol = "busara-chat-v1"

// Frame types exchanged with clients.
const (
	FrameChat     = "chat"
	FrameRun      = "run"
	FrameResponse = "response"
	FrameRunDone  = "run.result"
	FrameError    = "error"
	FramePing     = "ping"
	FramePong     = "pong"
)

// Frame is a single JSON message on the chat connection.
type Frame struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`

	// Response fields.
	Agent    string                    `json:"agent,omitempty"`
	Response string                    `json:"response,omitempty"`
	Success  *bool                     `json:"success,omitempty"`
	Error    string                    `json:"error,omitempty"`
	Result   *workflow.ExecutionResult `json:"result,omitempty"`
}

// Config configures the WebSocket chat server.
type Config struct {
	// Token authenticates clients via the "token" query parameter or a
	// Bearer Authorization header. Empty disables auth.
	Token string

	// WriteTimeout bounds each outbound frame write. Default 10s.
	WriteTimeout time.Duration
}

func (c Config) writeTimeout() time.Duration {
	if c.WriteTimeout > 0 {
		return c.WriteTimeout
	}
	return 10 * time.Second
}

// Server serves chat sessions over WebSocket.
type Server struct {
	cfg       Config
	selector  *agent.Selector
	provider  llm.Provider
	engine    *workflow.Engine
	workflows workflow.Store // nil = "run" frames rejected.
	logger    *slog.Logger
}

// NewServer creates a WebSocket chat server.
func NewServer(cfg Config, selector *agent.Selector, provider llm.Provider, logger *slog.Logger) *Server {
	return &Server{
		cfg:      cfg,
		selector: selector,
		provider: provider,
		logger:   logger,
	}
}

// WithWorkflows enables "run" frames against the active workflow.
func (s *Server) WithWorkflows(engine *workflow.Engine, store workflow.Store) *Server {
	s.engine = engine
	s.workflows = store
	return s
}

// Handler returns an http.Handler that upgrades connections to WebSocket.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.handleUpgrade)
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Token != "" {
		token := r.URL.Query().Get("token")
		if token == "" {
			token = r.Header.Get("Authorization")
			if len(token) > 7 && token[:7] == "Bearer " {
				token = token[7:]
			}
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.Token)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols: []string{subprotocol},
	})
	if err != nil {
		s.logger.Error("websocket accept failed", slog.String("error", err.Error()))
		return
	}

	s.handleConnection(r.Context(), conn, r.RemoteAddr)
}

func (s *Server) handleConnection(ctx context.Context, conn *websocket.Conn, remote string) {
	defer conn.Close(websocket.StatusNormalClosure, "connection closed")

	s.logger.Info("chat session opened", slog.String("remote", remote))

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				s.logger.Info("chat session closed", slog.String("remote", remote))
			} else if !errors.Is(err, context.Canceled) {
				s.logger.Warn("chat connection error",
					slog.String("remote", remote),
					slog.String("error", err.Error()),
				)
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.writeFrame(ctx, conn, &Frame{Type: FrameError, Error: "invalid frame"})
			continue
		}

		s.handleFrame(ctx, conn, &frame)
	}
}

func (s *Server) handleFrame(ctx context.Context, conn *websocket.Conn, frame *Frame) {
	switch frame.Type {
	case FramePing:
		s.writeFrame(ctx, conn, &Frame{Type: FramePong})

	case FrameChat:
		if frame.Message == "" {
			s.writeFrame(ctx, conn, &Frame{Type: FrameError, Error: "message is required"})
			return
		}
		resp, err := httpapi.Chat(ctx, s.selector, s.provider, frame.Message)
		if err != nil {
			s.logger.Error("chat dispatch failed", slog.String("error", err.Error()))
			s.writeFrame(ctx, conn, &Frame{Type: FrameError, Error: "chat failed"})
			return
		}
		success := resp.Success
		s.writeFrame(ctx, conn, &Frame{
			Type:     FrameResponse,
			Agent:    resp.Agent,
			Response: resp.Response,
			Success:  &success,
			Error:    resp.Error,
		})

	case FrameRun:
		s.handleRun(ctx, conn, frame)

	default:
		s.writeFrame(ctx, conn, &Frame{Type: FrameError, Error: "unknown frame type: " + frame.Type})
	}
}

func (s *Server) handleRun(ctx context.Context, conn *websocket.Conn, frame *Frame) {
	if s.engine == nil || s.workflows == nil {
		s.writeFrame(ctx, conn, &Frame{Type: FrameError, Error: "workflow execution not available"})
		return
	}
	if frame.Message == "" {
		s.writeFrame(ctx, conn, &Frame{Type: FrameError, Error: "message is required"})
		return
	}

	def, err := s.workflows.GetActive(ctx)
	if err != nil {
		if errors.Is(err, workflow.ErrWorkflowNotActive) {
			s.writeFrame(ctx, conn, &Frame{Type: FrameError, Error: "no active workflow"})
			return
		}
		s.logger.Error("active workflow lookup failed", slog.String("error", err.Error()))
		s.writeFrame(ctx, conn, &Frame{Type: FrameError, Error: "workflow lookup failed"})
		return
	}

	result := s.engine.Run(ctx, def, frame.Message)
	s.writeFrame(ctx, conn, &Frame{
		Type:    FrameRunDone,
		Success: &result.Success,
		Result:  result,
	})
}

func (s *Server) writeFrame(ctx context.Context, conn *websocket.Conn, frame *Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	wctx, cancel := context.WithTimeout(ctx, s.cfg.writeTimeout())
	defer cancel()
	if err := conn.Write(wctx, websocket.MessageText, data); err != nil {
		s.logger.Debug("frame write failed", slog.String("error", err.Error()))
	}
}
