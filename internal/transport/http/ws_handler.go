package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/auth"
	"live-quiz-service/internal/domain"
)

// Client-to-server event names.
const (
	msgCreateGame       = "create-game"
	msgJoinGame         = "join-game"
	msgJoinGameSession  = "join-game-session"
	msgStartGame        = "start-game"
	msgSubmitAnswer     = "submit-answer"
	msgShowLeaderboard  = "show-leaderboard"
	msgNextQuestionHost = "next-question-host"
)

const (
	maxMessageSize      = 64 << 10
	writeWait           = 10 * time.Second
	defaultPingInterval = 30 * time.Second
	defaultMessageRate  = 5
	defaultMessageBurst = 10
)

// WSOptions tunes the connection handling.
type WSOptions struct {
	MessagesPerSecond float64
	Burst             int
	PingInterval      time.Duration
	AllowedOrigins    []string
}

type WSHandler struct {
	engine   *app.Engine
	hub      *Hub
	verifier *auth.Verifier
	logger   *zap.Logger
	opts     WSOptions
	upgrader websocket.Upgrader
}

// NewWSHandler wires connections into the game engine. verifier may be nil, in
// which case games are created anonymously.
func NewWSHandler(engine *app.Engine, hub *Hub, verifier *auth.Verifier, logger *zap.Logger, opts WSOptions) *WSHandler {
	if opts.MessagesPerSecond <= 0 {
		opts.MessagesPerSecond = defaultMessageRate
	}
	if opts.Burst <= 0 {
		opts.Burst = defaultMessageBurst
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaultPingInterval
	}
	return &WSHandler{
		engine:   engine,
		hub:      hub,
		verifier: verifier,
		logger:   logger,
		opts:     opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(opts.AllowedOrigins),
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type createGamePayload struct {
	Questions []domain.Question `json:"questions"`
	Settings  *domain.Settings  `json:"settings"`
	QuizID    string            `json:"quizId"`
}

type joinGamePayload struct {
	RoomCode   string `json:"roomCode"`
	PlayerName string `json:"playerName"`
	IsHost     bool   `json:"isHost"`
	HostToken  string `json:"hostToken"`
}

type startGamePayload struct {
	RoomCode  string            `json:"roomCode"`
	Questions []domain.Question `json:"questions"`
	Settings  *domain.Settings  `json:"settings"`
}

type submitAnswerPayload struct {
	RoomCode   string          `json:"roomCode"`
	Answer     json.RawMessage `json:"answer"`
	QuestionID string          `json:"questionId"`
	TimeLeft   int             `json:"timeLeft"`
	PlayerName string          `json:"playerName"`
}

type roomPayload struct {
	RoomCode string `json:"roomCode"`
}

// ServeWS upgrades HTTP requests to websockets and feeds their messages into
// the engine as commands.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID, err := h.authenticate(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	connID := uuid.NewString()
	send := h.hub.Register(connID)
	logger := h.logger.With(zap.String("conn", connID))
	logger.Debug("connection opened", zap.String("remote", r.RemoteAddr))

	writerDone := make(chan struct{})
	go h.writeLoop(conn, send, writerDone, logger)

	h.readLoop(conn, connID, userID, logger)

	if code := h.hub.RoomOf(connID); code != "" {
		err := h.engine.Dispatch(context.Background(), app.Disconnect{RoomCode: code, ConnID: connID})
		if err != nil && !errors.Is(err, domain.ErrRoomNotFound) {
			logger.Warn("disconnect failed", zap.String("room", code), zap.Error(err))
		}
	}
	h.hub.Unregister(connID)
	<-writerDone
	logger.Debug("connection closed")
}

func (h *WSHandler) readLoop(conn *websocket.Conn, connID, userID string, logger *zap.Logger) {
	pongWait := h.opts.PingInterval * 2
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	limiter := rate.NewLimiter(rate.Limit(h.opts.MessagesPerSecond), h.opts.Burst)
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("ws read error", zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		if !limiter.Allow() {
			h.sendError(connID, "rate limit exceeded")
			continue
		}
		h.handle(connID, userID, inbound, logger)
	}
}

// writeLoop is the only writer of the connection.
func (h *WSHandler) writeLoop(conn *websocket.Conn, send <-chan []byte, done chan<- struct{}, logger *zap.Logger) {
	defer close(done)
	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Debug("ws write error", zap.Error(err))
				// unblock the reader so the connection is torn down
				_ = conn.Close()
				drain(send)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = conn.Close()
				drain(send)
				return
			}
		}
	}
}

func drain(send <-chan []byte) {
	for range send {
	}
}

func (h *WSHandler) handle(connID, userID string, inbound inboundMessage, logger *zap.Logger) {
	ctx := context.Background()
	current := h.hub.RoomOf(connID)

	switch inbound.Type {
	case msgCreateGame:
		var p createGamePayload
		if !h.decode(connID, inbound, &p) {
			return
		}
		code, err := h.engine.CreateGame(ctx, app.CreateGame{
			ConnID:     connID,
			HostUserID: userID,
			QuizID:     p.QuizID,
			Questions:  p.Questions,
			Settings:   p.Settings,
		})
		if err != nil {
			h.reportError(connID, inbound.Type, err, logger)
			return
		}
		h.leaveCurrent(ctx, connID, current, code)

	case msgJoinGame, msgJoinGameSession:
		var p joinGamePayload
		if !h.decode(connID, inbound, &p) {
			return
		}
		err := h.engine.Dispatch(ctx, app.JoinGame{
			RoomCode:   p.RoomCode,
			ConnID:     connID,
			PlayerName: p.PlayerName,
			IsHost:     p.IsHost,
			HostToken:  p.HostToken,
		})
		if err != nil {
			h.hub.Send(connID, domain.Event{Type: domain.EventJoinError, Payload: domain.MessagePayload{Message: joinErrorMessage(err)}})
			return
		}
		h.leaveCurrent(ctx, connID, current, p.RoomCode)

	case msgStartGame:
		var p startGamePayload
		if !h.decode(connID, inbound, &p) {
			return
		}
		err := h.engine.Dispatch(ctx, app.StartGame{
			RoomCode:  p.RoomCode,
			ConnID:    connID,
			Questions: p.Questions,
			Settings:  p.Settings,
		})
		h.reportError(connID, inbound.Type, err, logger)

	case msgSubmitAnswer:
		var p submitAnswerPayload
		if !h.decode(connID, inbound, &p) {
			return
		}
		answer, err := domain.DecodeAnswer(p.Answer)
		if err != nil {
			h.sendError(connID, "invalid answer payload")
			return
		}
		err = h.engine.Dispatch(ctx, app.SubmitAnswer{
			RoomCode:   p.RoomCode,
			ConnID:     connID,
			QuestionID: p.QuestionID,
			Answer:     answer,
			TimeLeft:   p.TimeLeft,
		})
		h.reportError(connID, inbound.Type, err, logger)

	case msgShowLeaderboard:
		var p roomPayload
		if !h.decode(connID, inbound, &p) {
			return
		}
		err := h.engine.Dispatch(ctx, app.ShowLeaderboard{RoomCode: p.RoomCode, ConnID: connID})
		h.reportError(connID, inbound.Type, err, logger)

	case msgNextQuestionHost:
		var p roomPayload
		if !h.decode(connID, inbound, &p) {
			return
		}
		err := h.engine.Dispatch(ctx, app.NextQuestion{RoomCode: p.RoomCode, ConnID: connID})
		h.reportError(connID, inbound.Type, err, logger)

	default:
		h.sendError(connID, "unsupported message type")
	}
}

// leaveCurrent disconnects the connection from the room it sat in once it has
// created or joined another one. A failed join keeps the old room.
func (h *WSHandler) leaveCurrent(ctx context.Context, connID, current, next string) {
	if current == "" || normalize(next) == current {
		return
	}
	_ = h.engine.Dispatch(ctx, app.Disconnect{RoomCode: current, ConnID: connID})
}

func (h *WSHandler) decode(connID string, inbound inboundMessage, v any) bool {
	if len(inbound.Payload) == 0 {
		inbound.Payload = []byte("{}")
	}
	if err := json.Unmarshal(inbound.Payload, v); err != nil {
		msg := "invalid " + inbound.Type + " payload"
		if errors.Is(err, domain.ErrValidation) {
			msg = err.Error()
		}
		h.sendError(connID, msg)
		return false
	}
	return true
}

// reportError turns command failures into error events. Unauthorized commands
// and ignorable answers produce nothing.
func (h *WSHandler) reportError(connID, msgType string, err error, logger *zap.Logger) {
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrUnauthorized),
		errors.Is(err, domain.ErrStaleSubmission),
		errors.Is(err, domain.ErrDuplicateSubmission):
	case errors.Is(err, domain.ErrRoomNotFound),
		errors.Is(err, domain.ErrParticipantNotFound),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrQuestionClosed),
		errors.Is(err, domain.ErrQuizNotFound),
		errors.Is(err, domain.ErrValidation):
		h.sendError(connID, err.Error())
	default:
		logger.Error("command failed", zap.String("type", msgType), zap.Error(err))
		h.sendError(connID, "internal error")
	}
}

func (h *WSHandler) sendError(connID, message string) {
	h.hub.Send(connID, domain.Event{Type: domain.EventError, Payload: domain.MessagePayload{Message: message}})
}

func joinErrorMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		return "Game room not found"
	case errors.Is(err, domain.ErrGameFinished):
		return "Game has already finished"
	case errors.Is(err, domain.ErrUnauthorized):
		return "Not allowed to join as host"
	case errors.Is(err, domain.ErrValidation):
		return err.Error()
	default:
		return "Failed to join game"
	}
}

// authenticate resolves the optional host identity from the token query
// parameter or the Authorization header. A present but invalid token is rejected.
func (h *WSHandler) authenticate(r *http.Request) (string, error) {
	token := r.URL.Query().Get("token")
	if token == "" && r.Header.Get("Authorization") != "" {
		var err error
		if token, err = auth.BearerToken(r.Header.Get("Authorization")); err != nil {
			return "", err
		}
	}
	if token == "" || h.verifier == nil {
		return "", nil
	}
	user, err := h.verifier.Verify(token)
	if err != nil {
		return "", err
	}
	return user.ID, nil
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
