package domain

import "time"

// LeaderboardEntry is a ranked, host-free view of a player.
type LeaderboardEntry struct {
	Name     string `json:"name"`
	Score    int    `json:"score"`
	Position int    `json:"position"`
}

// OptionStat is the answer distribution for one option of the current question.
type OptionStat struct {
	Option     string  `json:"option"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// Event is a server-to-client message.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Quiz is a saved question set owned by a user.
type Quiz struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	UserID      string     `json:"user_id"`
	Questions   []Question `json:"questions"`
	IsPublished bool       `json:"is_published"`
	CreatedAt   time.Time  `json:"created_at"`
}

// CreditKind selects which credit balance an operation touches.
type CreditKind string

const (
	CreditsNormal CreditKind = "normal"
	CreditsFile   CreditKind = "file"
)

// Credits is a user's quiz generation allowance.
type Credits struct {
	UserID                string    `json:"user_id"`
	NormalQuizCredits     int       `json:"normal_quiz_credits"`
	FileQuizCredits       int       `json:"file_quiz_credits"`
	TotalPurchasedCredits int       `json:"total_purchased_credits"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// DefaultCredits are granted the first time a user's credits are read.
func DefaultCredits(userID string) Credits {
	return Credits{
		UserID:            userID,
		NormalQuizCredits: 10,
		FileQuizCredits:   5,
	}
}

// DashboardStats aggregates a host's activity.
type DashboardStats struct {
	UserID       string `json:"user_id"`
	TotalQuizzes int    `json:"total_quizzes"`
	TotalPlayers int    `json:"total_players"`
}

// RecentQuiz is a dashboard row.
type RecentQuiz struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Players int    `json:"players"`
	Date    string `json:"date"`
}

// Dashboard is the response of the dashboard use case.
type Dashboard struct {
	TotalQuizzes  int          `json:"totalQuizzes"`
	TotalPlayers  int          `json:"totalPlayers"`
	RecentQuizzes []RecentQuiz `json:"recentQuizzes"`
}
