package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"live-quiz-service/internal/domain"
)

// SubmitResult is the outcome of a scored answer.
type SubmitResult struct {
	Submission   domain.Submission
	TotalScore   int
	Leaderboard  []domain.LeaderboardEntry
	Distribution []domain.OptionStat
}

// StartGame moves a waiting room into the countdown. Host only.
func (e *Engine) StartGame(_ context.Context, cmd StartGame) error {
	code := normalizeCode(cmd.RoomCode)
	var questions []domain.Question
	if len(cmd.Questions) > 0 {
		prepared, err := e.prepareQuestions(cmd.Questions)
		if err != nil {
			return err
		}
		questions = prepared
	}

	return e.mutate(code, func(room *domain.Room) error {
		if err := e.requireHost(room, cmd.ConnID, "start-game"); err != nil {
			return err
		}
		if room.State != domain.StateWaiting {
			return domain.ErrInvalidTransition
		}
		settings, err := e.resolveSettings(cmd.Settings, room.Settings)
		if err != nil {
			return err
		}
		if questions == nil && len(room.Questions) == 0 {
			return fmt.Errorf("%w: cannot start a game without questions", domain.ErrValidation)
		}

		if questions != nil {
			room.Questions = questions
		}
		room.Settings = settings
		room.CurrentQuestionIndex = 0
		room.TimeRemaining = settings.TimeLimit
		room.State = domain.StateCountdown
		room.Countdown = e.cfg.CountdownSeconds
		e.schedule(room, e.countdownTick)

		e.gateway.Broadcast(code, domain.Event{Type: domain.EventGameState, Payload: room.StateView()})
		e.gateway.Broadcast(code, domain.Event{Type: domain.EventCountdown, Payload: domain.CountdownPayload{Count: room.Countdown}})
		e.logger.Info("game starting",
			zap.String("room", code),
			zap.Int("questions", len(room.Questions)),
			zap.Int("time_limit", settings.TimeLimit),
		)
		return nil
	})
}

// countdownTick broadcasts the next countdown value and starts the first
// question when it reaches zero.
func (e *Engine) countdownTick(code string, gen uint64) {
	err := e.mutate(code, func(room *domain.Room) error {
		if room.TimerGeneration != gen || room.State != domain.StateCountdown {
			return errNoChange
		}
		room.Countdown--
		if room.Countdown < 0 {
			room.Countdown = 0
		}
		e.gateway.Broadcast(code, domain.Event{Type: domain.EventCountdown, Payload: domain.CountdownPayload{Count: room.Countdown}})
		if room.Countdown > 0 {
			return nil
		}

		e.beginQuestion(room, 0)
		e.gateway.Broadcast(code, domain.Event{Type: domain.EventGameState, Payload: room.StateView()})
		e.gateway.Broadcast(code, domain.Event{Type: domain.EventTimeUpdate, Payload: domain.TimeUpdatePayload{TimeRemaining: room.TimeRemaining}})
		return nil
	})
	e.logTickError(code, err)
}

// questionTick advances the question clock by one step.
func (e *Engine) questionTick(code string, gen uint64) {
	err := e.mutate(code, func(room *domain.Room) error {
		if room.TimerGeneration != gen || room.State != domain.StatePlaying {
			return errNoChange
		}
		if room.TimeRemaining > 0 {
			room.TimeRemaining--
		}
		e.gateway.Broadcast(code, domain.Event{Type: domain.EventTimeUpdate, Payload: domain.TimeUpdatePayload{TimeRemaining: room.TimeRemaining}})
		if room.TimeRemaining == 0 {
			e.reveal(room)
		}
		return nil
	})
	e.logTickError(code, err)
}

// SubmitAnswer scores a player's answer for the current question.
func (e *Engine) SubmitAnswer(_ context.Context, cmd SubmitAnswer) (SubmitResult, error) {
	code := normalizeCode(cmd.RoomCode)
	var result SubmitResult
	err := e.mutate(code, func(room *domain.Room) error {
		sub, total, err := scoreSubmission(room, cmd.ConnID, cmd.QuestionID, cmd.Answer, cmd.TimeLeft)
		if err != nil {
			return err
		}
		result = SubmitResult{
			Submission:   sub,
			TotalScore:   total,
			Leaderboard:  Leaderboard(room),
			Distribution: AnswerDistribution(room),
		}

		e.gateway.Send(cmd.ConnID, domain.Event{
			Type: domain.EventAnswerResult,
			Payload: domain.AnswerResultPayload{
				QuestionID: sub.QuestionID,
				Answer:     sub.Answer,
				IsCorrect:  sub.IsCorrect,
				Points:     sub.PointsAwarded,
				TotalScore: total,
			},
		})
		e.gateway.Broadcast(code, domain.Event{
			Type: domain.EventAnswerSubmitted,
			Payload: domain.AnswerSubmittedPayload{
				PlayerName:         sub.PlayerName,
				AnsweredCount:      len(room.Submissions),
				Leaderboard:        result.Leaderboard,
				AnswerDistribution: result.Distribution,
			},
		})
		e.logger.Debug("answer submitted",
			zap.String("room", code),
			zap.String("player", sub.PlayerName),
			zap.Bool("correct", sub.IsCorrect),
			zap.Int("points", sub.PointsAwarded),
		)
		return nil
	})
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrUnauthorized):
		e.logger.Warn("host answer ignored", zap.String("room", code), zap.String("conn", cmd.ConnID))
	case errors.Is(err, domain.ErrDuplicateSubmission), errors.Is(err, domain.ErrStaleSubmission):
		e.logger.Debug("answer ignored", zap.String("room", code), zap.String("conn", cmd.ConnID), zap.Error(err))
	}
	return result, err
}

// ShowLeaderboard reveals the standings. Host only; allowed while the question
// is playing or revealed.
func (e *Engine) ShowLeaderboard(_ context.Context, cmd ShowLeaderboard) error {
	code := normalizeCode(cmd.RoomCode)
	return e.mutate(code, func(room *domain.Room) error {
		if err := e.requireHost(room, cmd.ConnID, "show-leaderboard"); err != nil {
			return err
		}
		if room.State != domain.StatePlaying && room.State != domain.StateAnswerReveal {
			return domain.ErrInvalidTransition
		}
		e.cancelTimer(room)
		room.State = domain.StateLeaderboard
		e.gateway.Broadcast(code, domain.Event{
			Type: domain.EventShowLeaderboard,
			Payload: domain.ShowLeaderboardPayload{
				Leaderboard: Leaderboard(room),
				IsEndOfGame: room.IsLastQuestion(),
			},
		})
		return nil
	})
}

// NextQuestion advances to the next question or finishes the game. Host only.
func (e *Engine) NextQuestion(_ context.Context, cmd NextQuestion) error {
	code := normalizeCode(cmd.RoomCode)
	return e.mutate(code, func(room *domain.Room) error {
		if err := e.requireHost(room, cmd.ConnID, "next-question-host"); err != nil {
			return err
		}
		switch room.State {
		case domain.StatePlaying, domain.StateAnswerReveal, domain.StateLeaderboard:
		default:
			return domain.ErrInvalidTransition
		}

		next := room.CurrentQuestionIndex + 1
		if next >= len(room.Questions) {
			e.finish(room)
			return nil
		}

		e.beginQuestion(room, next)
		q, _ := room.CurrentQuestion()
		e.gateway.Broadcast(code, domain.Event{
			Type: domain.EventNextQuestion,
			Payload: domain.NextQuestionPayload{
				CurrentQuestion: room.CurrentQuestionIndex,
				TimeRemaining:   room.TimeRemaining,
				GameState:       room.State,
				Question:        q.View(),
			},
		})
		e.gateway.Broadcast(code, domain.Event{Type: domain.EventTimeUpdate, Payload: domain.TimeUpdatePayload{TimeRemaining: room.TimeRemaining}})
		return nil
	})
}

// beginQuestion resets per-question state and restarts the question clock.
func (e *Engine) beginQuestion(room *domain.Room, index int) {
	room.CurrentQuestionIndex = index
	room.ClearAnswers()
	room.TimeRemaining = room.Settings.TimeLimit
	room.State = domain.StatePlaying
	e.schedule(room, e.questionTick)
}

func (e *Engine) reveal(room *domain.Room) {
	e.cancelTimer(room)
	room.State = domain.StateAnswerReveal

	q, _ := room.CurrentQuestion()
	answers := make([]domain.RevealedAnswer, 0, len(room.Players))
	for _, p := range room.Players {
		answers = append(answers, domain.RevealedAnswer{
			PlayerID:   p.ConnID,
			PlayerName: p.Name,
			Answer:     p.CurrentAnswer,
		})
	}
	e.gateway.Broadcast(room.Code, domain.Event{
		Type: domain.EventAnswerReveal,
		Payload: domain.AnswerRevealPayload{
			QuestionID:         q.ID,
			CorrectAnswer:      q.CorrectAnswer,
			Answers:            answers,
			AnswerDistribution: AnswerDistribution(room),
		},
	})
}

func (e *Engine) finish(room *domain.Room) {
	e.cancelTimer(room)
	room.State = domain.StateFinished
	room.CurrentQuestionIndex = len(room.Questions)
	room.TimeRemaining = 0

	e.gateway.Broadcast(room.Code, domain.Event{
		Type: domain.EventShowLeaderboard,
		Payload: domain.ShowLeaderboardPayload{
			Leaderboard: Leaderboard(room),
			IsEndOfGame: true,
		},
	})
	e.gateway.Broadcast(room.Code, domain.Event{Type: domain.EventGameState, Payload: room.StateView()})
	e.logger.Info("game finished", zap.String("room", room.Code), zap.Int("players", len(room.Players)))

	if e.stats != nil && room.HostUserID != "" {
		go e.recordPlayers(room.Code, room.HostUserID, len(room.Players))
	}
}

func (e *Engine) recordPlayers(code, userID string, players int) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.stats.AddPlayers(ctx, userID, players); err != nil {
		e.logger.Warn("record dashboard players failed", zap.String("room", code), zap.Error(err))
	}
}

// schedule replaces the room's timer. The generation captured by the callback
// fences off ticks from any earlier timer.
func (e *Engine) schedule(room *domain.Room, tick func(code string, gen uint64)) {
	room.TimerGeneration++
	code, gen := room.Code, room.TimerGeneration
	e.scheduler.Schedule(code, e.cfg.TickInterval, func() { tick(code, gen) })
}

func (e *Engine) cancelTimer(room *domain.Room) {
	room.TimerGeneration++
	e.scheduler.Cancel(room.Code)
}

func (e *Engine) requireHost(room *domain.Room, connID, action string) error {
	if room.IsHost(connID) {
		return nil
	}
	e.logger.Warn("non-host issued host command",
		zap.String("room", room.Code),
		zap.String("conn", connID),
		zap.String("action", action),
	)
	return domain.ErrUnauthorized
}

func (e *Engine) logTickError(code string, err error) {
	if err == nil || errors.Is(err, errNoChange) {
		return
	}
	if errors.Is(err, domain.ErrRoomNotFound) {
		e.scheduler.Cancel(code)
		return
	}
	e.logger.Error("timer tick failed", zap.String("room", code), zap.Error(err))
}
