package domain

// Server-to-client event names.
const (
	EventGameCreated     = "game-created"
	EventJoinedGame      = "joined-game"
	EventJoinError       = "join-error"
	EventPlayerJoined    = "player-joined"
	EventPlayerLeft      = "player-left"
	EventCountdown       = "countdown"
	EventGameState       = "game-state"
	EventTimeUpdate      = "time-update"
	EventAnswerSubmitted = "answer-submitted"
	EventAnswerResult    = "answer-result"
	EventAnswerReveal    = "answer-reveal"
	EventShowLeaderboard = "show-leaderboard"
	EventNextQuestion    = "next-question"
	EventGameEnded       = "game-ended"
	EventError           = "error"
)

type GameCreatedPayload struct {
	RoomCode  string `json:"roomCode"`
	HostToken string `json:"hostToken"`
}

type PlayerView struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Score int    `json:"score"`
}

type JoinedGamePayload struct {
	RoomCode    string       `json:"roomCode"`
	Role        string       `json:"role"`
	PlayerCount int          `json:"playerCount"`
	Players     []PlayerView `json:"players"`
}

type PlayerJoinedPayload struct {
	PlayerCount int    `json:"playerCount"`
	PlayerName  string `json:"playerName"`
	PlayerID    string `json:"playerId"`
}

type PlayerLeftPayload struct {
	PlayerCount int          `json:"playerCount"`
	PlayerID    string       `json:"playerId"`
	PlayerName  string       `json:"playerName"`
	Players     []PlayerView `json:"players"`
}

type CountdownPayload struct {
	Count int `json:"count"`
}

// QuestionView is a question without its correct answer.
type QuestionView struct {
	ID      string       `json:"id"`
	Text    string       `json:"question"`
	Kind    QuestionKind `json:"type"`
	Options []string     `json:"options"`
}

type GameStatePayload struct {
	GameState       GameState     `json:"gameState"`
	CurrentQuestion int           `json:"currentQuestion"`
	QuestionCount   int           `json:"questionCount"`
	TimeRemaining   int           `json:"timeRemaining"`
	Question        *QuestionView `json:"question,omitempty"`
	Players         []PlayerView  `json:"players"`
}

type TimeUpdatePayload struct {
	TimeRemaining int `json:"timeRemaining"`
}

type AnswerSubmittedPayload struct {
	PlayerName         string             `json:"playerName"`
	AnsweredCount      int                `json:"answeredCount"`
	Leaderboard        []LeaderboardEntry `json:"leaderboard"`
	AnswerDistribution []OptionStat       `json:"answerDistribution"`
}

type AnswerResultPayload struct {
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
	IsCorrect  bool   `json:"isCorrect"`
	Points     int    `json:"points"`
	TotalScore int    `json:"totalScore"`
}

type RevealedAnswer struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	Answer     string `json:"answer,omitempty"`
}

type AnswerRevealPayload struct {
	QuestionID         string           `json:"questionId"`
	CorrectAnswer      string           `json:"correctAnswer"`
	Answers            []RevealedAnswer `json:"answers"`
	AnswerDistribution []OptionStat     `json:"answerDistribution"`
}

type ShowLeaderboardPayload struct {
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
	IsEndOfGame bool               `json:"isEndOfGame"`
}

type NextQuestionPayload struct {
	CurrentQuestion int          `json:"currentQuestion"`
	TimeRemaining   int          `json:"timeRemaining"`
	GameState       GameState    `json:"gameState"`
	Question        QuestionView `json:"question"`
}

type MessagePayload struct {
	Message string `json:"message"`
}

// View strips the correct answer from a question.
func (q Question) View() QuestionView {
	return QuestionView{
		ID:      q.ID,
		Text:    q.Text,
		Kind:    q.Kind,
		Options: append([]string(nil), q.Options...),
	}
}

// PlayerViews lists the room's players for broadcast.
func (r *Room) PlayerViews() []PlayerView {
	views := make([]PlayerView, 0, len(r.Players))
	for _, p := range r.Players {
		views = append(views, PlayerView{ID: p.ConnID, Name: p.Name, Score: p.Score})
	}
	return views
}

// StateView is the game-state payload for the room.
func (r *Room) StateView() GameStatePayload {
	payload := GameStatePayload{
		GameState:       r.State,
		CurrentQuestion: r.CurrentQuestionIndex,
		QuestionCount:   len(r.Questions),
		TimeRemaining:   r.TimeRemaining,
		Players:         r.PlayerViews(),
	}
	if r.State == StatePlaying || r.State == StateAnswerReveal || r.State == StateLeaderboard {
		if q, ok := r.CurrentQuestion(); ok {
			view := q.View()
			payload.Question = &view
		}
	}
	return payload
}
