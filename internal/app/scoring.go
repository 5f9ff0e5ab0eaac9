package app

import (
	"fmt"
	"math/bits"
	"sort"
	"strings"

	"live-quiz-service/internal/domain"
)

const (
	BasePoints   = 1000
	MaxTimeBonus = 1000
)

// Points awards BasePoints plus a bonus proportional to the remaining time for
// correct answers, so the ceiling is BasePoints+MaxTimeBonus.
func Points(correct bool, timeLeft, timeLimit int) int {
	if !correct {
		return 0
	}
	if timeLimit <= 0 {
		return BasePoints
	}
	timeLeft = clamp(timeLeft, 0, timeLimit)
	// timeLeft <= timeLimit keeps the quotient within MaxTimeBonus, so the
	// 128-bit division cannot overflow.
	hi, lo := bits.Mul64(uint64(timeLeft), MaxTimeBonus)
	bonus, _ := bits.Div64(hi, lo, uint64(timeLimit))
	return BasePoints + int(bonus)
}

// Leaderboard ranks the room's players by descending score. Ties keep join order.
func Leaderboard(room *domain.Room) []domain.LeaderboardEntry {
	entries := make([]domain.LeaderboardEntry, 0, len(room.Players))
	for _, p := range room.Players {
		if room.IsHost(p.ConnID) {
			continue
		}
		entries = append(entries, domain.LeaderboardEntry{Name: p.Name, Score: p.Score})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
	for i := range entries {
		entries[i].Position = i + 1
	}
	return entries
}

// AnswerDistribution counts the current answers of non-host players per option.
func AnswerDistribution(room *domain.Room) []domain.OptionStat {
	q, ok := room.CurrentQuestion()
	if !ok {
		return []domain.OptionStat{}
	}

	counts := make(map[string]int, len(q.Options))
	total := 0
	for _, p := range room.Players {
		if room.IsHost(p.ConnID) || p.CurrentAnswer == "" {
			continue
		}
		counts[p.CurrentAnswer]++
		total++
	}

	stats := make([]domain.OptionStat, 0, len(q.Options))
	for _, opt := range q.Options {
		stat := domain.OptionStat{Option: opt, Count: counts[opt]}
		if total > 0 {
			stat.Percentage = float64(stat.Count) / float64(total) * 100
		}
		stats = append(stats, stat)
	}
	return stats
}

// scoreSubmission validates and records one answer for the current question.
// It mutates room only once every guard has passed.
func scoreSubmission(room *domain.Room, connID, questionID, answer string, timeLeft int) (domain.Submission, int, error) {
	if room.IsHost(connID) {
		return domain.Submission{}, 0, domain.ErrUnauthorized
	}
	i := room.PlayerIndex(connID)
	if i < 0 {
		return domain.Submission{}, 0, domain.ErrParticipantNotFound
	}
	if room.State != domain.StatePlaying {
		return domain.Submission{}, 0, domain.ErrQuestionClosed
	}
	q, ok := room.CurrentQuestion()
	if !ok {
		return domain.Submission{}, 0, domain.ErrQuestionClosed
	}
	if questionID != q.ID {
		return domain.Submission{}, 0, domain.ErrStaleSubmission
	}
	if strings.TrimSpace(answer) == "" {
		return domain.Submission{}, 0, fmt.Errorf("%w: answer is empty", domain.ErrValidation)
	}
	player := &room.Players[i]
	if room.Submissions == nil {
		room.Submissions = make(map[string]domain.Submission)
	}
	if _, done := room.Submissions[player.Name]; done {
		return domain.Submission{}, 0, domain.ErrDuplicateSubmission
	}

	limit := room.Settings.TimeLimit
	remaining := clamp(timeLeft, 0, room.TimeRemaining)
	correct := q.IsCorrect(answer)
	points := Points(correct, remaining, limit)

	player.Score += points
	room.RecordAnswer(connID, answer)
	sub := domain.Submission{
		PlayerName:    player.Name,
		QuestionID:    q.ID,
		Answer:        answer,
		IsCorrect:     correct,
		PointsAwarded: points,
		TimeTaken:     clamp(limit-remaining, 0, limit),
	}
	room.Submissions[player.Name] = sub
	return sub, player.Score, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
