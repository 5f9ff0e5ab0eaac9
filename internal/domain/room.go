package domain

import (
	"fmt"
	"time"
)

// GameState is the lifecycle state of a room.
type GameState string

const (
	StateWaiting      GameState = "waiting"
	StateCountdown    GameState = "countdown"
	StatePlaying      GameState = "playing"
	StateAnswerReveal GameState = "answer_reveal"
	StateLeaderboard  GameState = "leaderboard"
	StateFinished     GameState = "finished"
)

// Settings are the per-room tunables chosen by the host.
type Settings struct {
	TimeLimit int `json:"timeLimit"` // seconds per question
}

// MaxTimeLimit caps the seconds a host may give each question.
const MaxTimeLimit = 3600

// Player is a competitor in a room. Name is the durable identity; ConnID is
// rebound when the same name joins again from a new connection.
type Player struct {
	Name          string    `json:"name"`
	ConnID        string    `json:"id"`
	Score         int       `json:"score"`
	CurrentAnswer string    `json:"currentAnswer,omitempty"`
	JoinedAt      time.Time `json:"joinedAt"`
}

// Submission is the scored answer of one player for the current question.
type Submission struct {
	PlayerName    string `json:"playerName"`
	QuestionID    string `json:"questionId"`
	Answer        string `json:"answer"`
	IsCorrect     bool   `json:"isCorrect"`
	PointsAwarded int    `json:"pointsAwarded"`
	TimeTaken     int    `json:"timeTaken"`
}

// Room is one live quiz session. The host is tracked by HostID only and never
// appears in Players.
type Room struct {
	Code                 string                `json:"roomCode"`
	HostID               string                `json:"hostId"`
	HostToken            string                `json:"hostToken"`
	HostUserID           string                `json:"hostUserId,omitempty"`
	QuizID               string                `json:"quizId,omitempty"`
	Questions            []Question            `json:"questions"`
	CurrentQuestionIndex int                   `json:"currentQuestion"`
	TimeRemaining        int                   `json:"timeRemaining"`
	Countdown            int                   `json:"countdown"`
	State                GameState             `json:"gameState"`
	Settings             Settings              `json:"settings"`
	Players              []Player              `json:"players"`
	Submissions          map[string]Submission `json:"submissions"`
	TimerGeneration      uint64                `json:"timerGeneration"`
	Closed               bool                  `json:"closed"`
	CreatedAt            time.Time             `json:"createdAt"`
	UpdatedAt            time.Time             `json:"updatedAt"`
}

// Clone returns a deep copy safe to hand to other goroutines.
func (r *Room) Clone() Room {
	cp := *r
	cp.Questions = make([]Question, len(r.Questions))
	for i, q := range r.Questions {
		q.Options = append([]string(nil), q.Options...)
		cp.Questions[i] = q
	}
	cp.Players = append([]Player(nil), r.Players...)
	cp.Submissions = make(map[string]Submission, len(r.Submissions))
	for k, v := range r.Submissions {
		cp.Submissions[k] = v
	}
	return cp
}

// IsHost reports whether connID currently holds the host role.
func (r *Room) IsHost(connID string) bool {
	return connID != "" && connID == r.HostID
}

// CurrentQuestion returns the question under play, if any.
func (r *Room) CurrentQuestion() (Question, bool) {
	if r.CurrentQuestionIndex < 0 || r.CurrentQuestionIndex >= len(r.Questions) {
		return Question{}, false
	}
	return r.Questions[r.CurrentQuestionIndex], true
}

// IsLastQuestion reports whether the current question is the final one.
func (r *Room) IsLastQuestion() bool {
	return r.CurrentQuestionIndex >= len(r.Questions)-1
}

// Join adds a player or, when the name is already taken, rebinds that player's
// connection. For a rebind it also returns the connection id it replaced.
func (r *Room) Join(name, connID string, now time.Time) (p Player, previousConnID string, rebound bool) {
	if i := r.playerIndexByName(name); i >= 0 {
		previousConnID = r.Players[i].ConnID
		r.Players[i].ConnID = connID
		return r.Players[i], previousConnID, true
	}
	p = Player{Name: name, ConnID: connID, JoinedAt: now}
	r.Players = append(r.Players, p)
	return p, "", false
}

// Leave removes the player bound to connID.
func (r *Room) Leave(connID string) (Player, bool) {
	i := r.PlayerIndex(connID)
	if i < 0 {
		return Player{}, false
	}
	p := r.Players[i]
	r.Players = append(r.Players[:i], r.Players[i+1:]...)
	return p, true
}

// RecordAnswer stores the player's current answer. Unknown connections and the
// host are ignored.
func (r *Room) RecordAnswer(connID, answer string) bool {
	if r.IsHost(connID) {
		return false
	}
	i := r.PlayerIndex(connID)
	if i < 0 {
		return false
	}
	r.Players[i].CurrentAnswer = answer
	return true
}

// ClearAnswers resets per-question answer state.
func (r *Room) ClearAnswers() {
	for i := range r.Players {
		r.Players[i].CurrentAnswer = ""
	}
	r.Submissions = make(map[string]Submission)
}

// PlayerIndex returns the index of the player bound to connID, or -1.
func (r *Room) PlayerIndex(connID string) int {
	if connID == "" {
		return -1
	}
	for i := range r.Players {
		if r.Players[i].ConnID == connID {
			return i
		}
	}
	return -1
}

func (r *Room) playerIndexByName(name string) int {
	for i := range r.Players {
		if r.Players[i].Name == name {
			return i
		}
	}
	return -1
}

// CheckInvariants verifies the structural rules every mutation must preserve.
func (r *Room) CheckInvariants() error {
	switch r.State {
	case StateWaiting, StateCountdown:
	case StatePlaying, StateAnswerReveal, StateLeaderboard:
		if r.CurrentQuestionIndex < 0 || r.CurrentQuestionIndex >= len(r.Questions) {
			return fmt.Errorf("%w: question index %d out of range in state %s", ErrCorruptRoom, r.CurrentQuestionIndex, r.State)
		}
	case StateFinished:
		if r.CurrentQuestionIndex < 0 || r.CurrentQuestionIndex > len(r.Questions) {
			return fmt.Errorf("%w: question index %d out of range", ErrCorruptRoom, r.CurrentQuestionIndex)
		}
	default:
		return fmt.Errorf("%w: unknown state %q", ErrCorruptRoom, r.State)
	}
	if r.TimeRemaining < 0 {
		return fmt.Errorf("%w: negative time remaining", ErrCorruptRoom)
	}
	names := make(map[string]struct{}, len(r.Players))
	conns := make(map[string]struct{}, len(r.Players))
	for _, p := range r.Players {
		if _, dup := names[p.Name]; dup {
			return fmt.Errorf("%w: duplicate player %q", ErrCorruptRoom, p.Name)
		}
		names[p.Name] = struct{}{}
		if _, dup := conns[p.ConnID]; dup {
			return fmt.Errorf("%w: connection %q bound to more than one player", ErrCorruptRoom, p.ConnID)
		}
		conns[p.ConnID] = struct{}{}
		if p.Score < 0 {
			return fmt.Errorf("%w: negative score for %q", ErrCorruptRoom, p.Name)
		}
		if r.IsHost(p.ConnID) {
			return fmt.Errorf("%w: host listed as player", ErrCorruptRoom)
		}
	}
	return nil
}
