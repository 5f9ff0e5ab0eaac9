package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"live-quiz-service/internal/domain"
)

// RoomStore owns every live room. Mutate runs fn under a lock private to the
// room, which makes it the single funnel for all room changes.
type RoomStore interface {
	Create(room domain.Room) error
	Get(code string) (domain.Room, error)
	Mutate(code string, fn func(room *domain.Room) error) error
	Delete(code string)
	Codes() []string
}

// Broadcaster fans events out to the connections subscribed to a room.
// Implementations must not block.
type Broadcaster interface {
	Subscribe(roomCode, connID string)
	Unsubscribe(roomCode, connID string)
	Broadcast(roomCode string, event domain.Event)
	Send(connID string, event domain.Event)
	CloseRoom(roomCode string)
}

// QuizRepository loads saved quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// StatsRecorder receives the player count of finished games hosted by a known user.
type StatsRecorder interface {
	AddPlayers(ctx context.Context, userID string, players int) error
}

// EngineConfig holds the game tunables.
type EngineConfig struct {
	DefaultTimeLimit  int // seconds
	CountdownSeconds  int
	TickInterval      time.Duration
	CodeLength        int
	FinishedRetention time.Duration
	MaxRoomAge        time.Duration
}

// DefaultEngineConfig mirrors the classic game: 30s questions after a 5s countdown.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		DefaultTimeLimit:  30,
		CountdownSeconds:  5,
		TickInterval:      time.Second,
		CodeLength:        DefaultCodeLength,
		FinishedRetention: 10 * time.Minute,
		MaxRoomAge:        6 * time.Hour,
	}
}

// errNoChange lets a mutation bail out without touching the room.
var errNoChange = errors.New("no change")

// Engine is the game state machine. Client commands and timer ticks both go
// through mutate, so every change to a room is serialized per room code.
type Engine struct {
	store     RoomStore
	gateway   Broadcaster
	scheduler Scheduler
	quizzes   QuizRepository
	stats     StatsRecorder
	logger    *zap.Logger
	cfg       EngineConfig

	now     func() time.Time
	newID   func() string
	newCode func() (string, error)
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

func WithQuizRepository(quizzes QuizRepository) EngineOption {
	return func(e *Engine) { e.quizzes = quizzes }
}

func WithStatsRecorder(stats StatsRecorder) EngineOption {
	return func(e *Engine) { e.stats = stats }
}

// WithClock is used by tests for deterministic timestamps.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

func WithCodeGenerator(gen func() (string, error)) EngineOption {
	return func(e *Engine) { e.newCode = gen }
}

func WithIDGenerator(gen func() string) EngineOption {
	return func(e *Engine) { e.newID = gen }
}

func NewEngine(store RoomStore, gateway Broadcaster, scheduler Scheduler, logger *zap.Logger, cfg EngineConfig, opts ...EngineOption) *Engine {
	defaults := DefaultEngineConfig()
	if cfg.DefaultTimeLimit <= 0 || cfg.DefaultTimeLimit > domain.MaxTimeLimit {
		cfg.DefaultTimeLimit = defaults.DefaultTimeLimit
	}
	if cfg.CountdownSeconds <= 0 {
		cfg.CountdownSeconds = defaults.CountdownSeconds
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaults.TickInterval
	}
	if cfg.CodeLength <= 0 {
		cfg.CodeLength = defaults.CodeLength
	}

	e := &Engine{
		store:     store,
		gateway:   gateway,
		scheduler: scheduler,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	e.newCode = func() (string, error) { return GenerateRoomCode(e.cfg.CodeLength) }
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Command is an inbound session action addressed to a room.
type Command interface {
	isCommand()
}

type CreateGame struct {
	ConnID     string
	HostUserID string
	QuizID     string
	Questions  []domain.Question
	Settings   *domain.Settings
}

type JoinGame struct {
	RoomCode   string
	ConnID     string
	PlayerName string
	IsHost     bool
	HostToken  string
}

type StartGame struct {
	RoomCode  string
	ConnID    string
	Questions []domain.Question
	Settings  *domain.Settings
}

type SubmitAnswer struct {
	RoomCode   string
	ConnID     string
	QuestionID string
	Answer     string
	TimeLeft   int
}

type ShowLeaderboard struct {
	RoomCode string
	ConnID   string
}

type NextQuestion struct {
	RoomCode string
	ConnID   string
}

type Disconnect struct {
	RoomCode string
	ConnID   string
}

func (CreateGame) isCommand()      {}
func (JoinGame) isCommand()        {}
func (StartGame) isCommand()       {}
func (SubmitAnswer) isCommand()    {}
func (ShowLeaderboard) isCommand() {}
func (NextQuestion) isCommand()    {}
func (Disconnect) isCommand()      {}

// Dispatch routes a command to its handler.
func (e *Engine) Dispatch(ctx context.Context, cmd Command) error {
	switch c := cmd.(type) {
	case CreateGame:
		_, err := e.CreateGame(ctx, c)
		return err
	case JoinGame:
		return e.JoinGame(ctx, c)
	case StartGame:
		return e.StartGame(ctx, c)
	case SubmitAnswer:
		_, err := e.SubmitAnswer(ctx, c)
		return err
	case ShowLeaderboard:
		return e.ShowLeaderboard(ctx, c)
	case NextQuestion:
		return e.NextQuestion(ctx, c)
	case Disconnect:
		return e.Disconnect(ctx, c)
	default:
		return fmt.Errorf("%w: unknown command %T", domain.ErrValidation, cmd)
	}
}

// Room returns a snapshot of a live room.
func (e *Engine) Room(code string) (domain.Room, error) {
	return e.store.Get(normalizeCode(code))
}

// CreateGame opens a room hosted by the calling connection and returns its code.
func (e *Engine) CreateGame(ctx context.Context, cmd CreateGame) (string, error) {
	questions := cmd.Questions
	if cmd.QuizID != "" {
		quiz, err := e.loadQuiz(ctx, cmd.QuizID, cmd.HostUserID)
		if err != nil {
			return "", err
		}
		questions = quiz.Questions
	}
	questions, err := e.prepareQuestions(questions)
	if err != nil {
		return "", err
	}
	settings, err := e.resolveSettings(cmd.Settings, domain.Settings{})
	if err != nil {
		return "", err
	}

	now := e.now()
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := e.newCode()
		if err != nil {
			return "", fmt.Errorf("generate room code: %w", err)
		}
		room := domain.Room{
			Code:          code,
			HostID:        cmd.ConnID,
			HostToken:     e.newID(),
			HostUserID:    cmd.HostUserID,
			QuizID:        cmd.QuizID,
			Questions:     questions,
			TimeRemaining: settings.TimeLimit,
			State:         domain.StateWaiting,
			Settings:      settings,
			Players:       []domain.Player{},
			Submissions:   make(map[string]domain.Submission),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		err = e.store.Create(room)
		if errors.Is(err, domain.ErrRoomExists) {
			e.logger.Debug("room code collision, retrying", zap.String("room", code), zap.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return "", err
		}

		e.gateway.Subscribe(code, cmd.ConnID)
		e.gateway.Send(cmd.ConnID, domain.Event{
			Type:    domain.EventGameCreated,
			Payload: domain.GameCreatedPayload{RoomCode: code, HostToken: room.HostToken},
		})
		e.logger.Info("game created",
			zap.String("room", code),
			zap.String("host", cmd.ConnID),
			zap.Int("questions", len(questions)),
		)
		return code, nil
	}
	return "", fmt.Errorf("failed to generate unique room code after %d attempts", maxCodeAttempts)
}

// JoinGame adds a player, rebinds a returning player by name, or rebinds the
// host connection when the host token matches.
func (e *Engine) JoinGame(_ context.Context, cmd JoinGame) error {
	code := normalizeCode(cmd.RoomCode)
	name := strings.TrimSpace(cmd.PlayerName)
	if !cmd.IsHost && name == "" {
		return fmt.Errorf("%w: player name is required", domain.ErrValidation)
	}

	return e.mutate(code, func(room *domain.Room) error {
		if room.State == domain.StateFinished {
			return domain.ErrGameFinished
		}

		bound := room.PlayerIndex(cmd.ConnID)
		if cmd.IsHost {
			if cmd.HostToken == "" || cmd.HostToken != room.HostToken {
				e.logger.Warn("host rebind rejected", zap.String("room", code), zap.String("conn", cmd.ConnID))
				return domain.ErrUnauthorized
			}
			if bound >= 0 {
				return fmt.Errorf("%w: connection already plays as %q", domain.ErrValidation, room.Players[bound].Name)
			}
			previous := room.HostID
			room.HostID = cmd.ConnID
			if previous != cmd.ConnID {
				e.gateway.Unsubscribe(code, previous)
			}
			e.gateway.Subscribe(code, cmd.ConnID)
			e.gateway.Send(cmd.ConnID, domain.Event{Type: domain.EventJoinedGame, Payload: joinedPayload(room, "host")})
			e.gateway.Send(cmd.ConnID, domain.Event{Type: domain.EventGameState, Payload: room.StateView()})
			e.logger.Info("host rebound", zap.String("room", code), zap.String("conn", cmd.ConnID))
			return nil
		}

		if room.IsHost(cmd.ConnID) {
			return domain.ErrUnauthorized
		}
		// one connection plays one name
		if bound >= 0 && room.Players[bound].Name != name {
			return fmt.Errorf("%w: connection already plays as %q", domain.ErrValidation, room.Players[bound].Name)
		}
		player, previous, rebound := room.Join(name, cmd.ConnID, e.now())
		if rebound && previous != cmd.ConnID {
			e.gateway.Unsubscribe(code, previous)
		}
		e.gateway.Subscribe(code, cmd.ConnID)
		e.gateway.Send(cmd.ConnID, domain.Event{Type: domain.EventJoinedGame, Payload: joinedPayload(room, "player")})
		e.gateway.Send(cmd.ConnID, domain.Event{Type: domain.EventGameState, Payload: room.StateView()})
		e.gateway.Broadcast(code, domain.Event{
			Type: domain.EventPlayerJoined,
			Payload: domain.PlayerJoinedPayload{
				PlayerCount: len(room.Players),
				PlayerName:  player.Name,
				PlayerID:    player.ConnID,
			},
		})
		e.logger.Info("player joined",
			zap.String("room", code),
			zap.String("player", player.Name),
			zap.Bool("rebound", rebound),
		)
		return nil
	})
}

// Disconnect removes the connection from its room. A host disconnect ends the
// room; so does the last player leaving.
func (e *Engine) Disconnect(_ context.Context, cmd Disconnect) error {
	code := normalizeCode(cmd.RoomCode)
	return e.mutate(code, func(room *domain.Room) error {
		if room.IsHost(cmd.ConnID) {
			e.teardown(room, "Host has left the game")
			return nil
		}
		player, ok := room.Leave(cmd.ConnID)
		if !ok {
			return domain.ErrParticipantNotFound
		}
		delete(room.Submissions, player.Name)
		e.gateway.Unsubscribe(code, cmd.ConnID)
		e.logger.Info("player left", zap.String("room", code), zap.String("player", player.Name))

		if len(room.Players) == 0 {
			e.teardown(room, "All players have left the game")
			return nil
		}
		e.gateway.Broadcast(code, domain.Event{
			Type: domain.EventPlayerLeft,
			Payload: domain.PlayerLeftPayload{
				PlayerCount: len(room.Players),
				PlayerID:    cmd.ConnID,
				PlayerName:  player.Name,
				Players:     room.PlayerViews(),
			},
		})
		return nil
	})
}

// Reap closes finished rooms past their retention and rooms older than the
// maximum age. It returns the number of rooms closed.
func (e *Engine) Reap(now time.Time) int {
	reaped := 0
	for _, code := range e.store.Codes() {
		err := e.mutate(code, func(room *domain.Room) error {
			expired := e.cfg.MaxRoomAge > 0 && now.Sub(room.CreatedAt) > e.cfg.MaxRoomAge
			done := room.State == domain.StateFinished && now.Sub(room.UpdatedAt) > e.cfg.FinishedRetention
			if !expired && !done {
				return errNoChange
			}
			e.teardown(room, "Game room expired")
			reaped++
			return nil
		})
		if err != nil && !errors.Is(err, errNoChange) && !errors.Is(err, domain.ErrRoomNotFound) {
			e.logger.Warn("reap room failed", zap.String("room", code), zap.Error(err))
		}
	}
	if reaped > 0 {
		e.logger.Info("reaped rooms", zap.Int("count", reaped))
	}
	return reaped
}

// mutate is the single mutation funnel. It recovers handler panics and
// re-checks room invariants; a corrupt room is torn down.
func (e *Engine) mutate(code string, fn func(room *domain.Room) error) error {
	return e.store.Mutate(code, func(room *domain.Room) (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("%w: panic: %v", domain.ErrCorruptRoom, p)
			}
			if err == nil && !room.Closed {
				err = room.CheckInvariants()
			}
			if errors.Is(err, domain.ErrCorruptRoom) && !room.Closed {
				e.logger.Error("tearing down corrupt room", zap.String("room", code), zap.Error(err))
				e.teardown(room, "Game ended due to an internal error")
			}
		}()

		if err := fn(room); err != nil {
			return err
		}
		room.UpdatedAt = e.now()
		return nil
	})
}

// teardown closes the room; the store drops it when the mutation returns.
func (e *Engine) teardown(room *domain.Room, message string) {
	room.Closed = true
	room.TimerGeneration++
	e.scheduler.Cancel(room.Code)
	e.gateway.Broadcast(room.Code, domain.Event{
		Type:    domain.EventGameEnded,
		Payload: domain.MessagePayload{Message: message},
	})
	e.gateway.CloseRoom(room.Code)
	e.logger.Info("game ended", zap.String("room", room.Code), zap.String("reason", message))
}

func (e *Engine) loadQuiz(ctx context.Context, quizID, userID string) (domain.Quiz, error) {
	if e.quizzes == nil {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	quiz, err := e.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	if !quiz.IsPublished && quiz.UserID != userID {
		return domain.Quiz{}, domain.ErrUnauthorized
	}
	return quiz, nil
}

func (e *Engine) prepareQuestions(questions []domain.Question) ([]domain.Question, error) {
	for _, q := range questions {
		if err := q.Validate(); err != nil {
			return nil, err
		}
	}
	return domain.AssignIDs(questions, e.newID)
}

func (e *Engine) resolveSettings(requested *domain.Settings, current domain.Settings) (domain.Settings, error) {
	settings := current
	if requested != nil {
		if requested.TimeLimit < 0 || requested.TimeLimit > domain.MaxTimeLimit {
			return domain.Settings{}, fmt.Errorf("%w: time limit must be between 1 and %d seconds", domain.ErrValidation, domain.MaxTimeLimit)
		}
		if requested.TimeLimit > 0 {
			settings.TimeLimit = requested.TimeLimit
		}
	}
	if settings.TimeLimit <= 0 {
		settings.TimeLimit = e.cfg.DefaultTimeLimit
	}
	return settings, nil
}

func joinedPayload(room *domain.Room, role string) domain.JoinedGamePayload {
	return domain.JoinedGamePayload{
		RoomCode:    room.Code,
		Role:        role,
		PlayerCount: len(room.Players),
		Players:     room.PlayerViews(),
	}
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
