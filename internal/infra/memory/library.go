package memory

import (
	"context"
	"sync"
	"time"

	"live-quiz-service/internal/domain"
)

// Library is an in-memory quiz library, credits and dashboard store used when
// no Postgres DSN is configured.
type Library struct {
	now func() time.Time

	mu      sync.RWMutex
	quizzes map[string]domain.Quiz
	credits map[string]domain.Credits
	stats   map[string]domain.DashboardStats
}

func NewLibrary() *Library {
	return &Library{
		now:     time.Now,
		quizzes: make(map[string]domain.Quiz),
		credits: make(map[string]domain.Credits),
		stats:   make(map[string]domain.DashboardStats),
	}
}

func (l *Library) SaveQuiz(_ context.Context, quiz domain.Quiz) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.quizzes[quiz.ID] = quiz
	return nil
}

func (l *Library) ListQuizzes(_ context.Context, userID string) ([]domain.Quiz, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.Quiz, 0)
	for _, q := range l.quizzes {
		if q.UserID == userID {
			out = append(out, q)
		}
	}
	return out, nil
}

func (l *Library) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	quiz, ok := l.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return quiz, nil
}

// DeleteQuiz only removes quizzes owned by userID.
func (l *Library) DeleteQuiz(_ context.Context, quizID, userID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	quiz, ok := l.quizzes[quizID]
	if !ok || quiz.UserID != userID {
		return domain.ErrQuizNotFound
	}
	delete(l.quizzes, quizID)
	return nil
}

func (l *Library) GetCredits(_ context.Context, userID string) (domain.Credits, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.creditsLocked(userID), nil
}

func (l *Library) DeductCredit(_ context.Context, userID string, kind domain.CreditKind) (domain.Credits, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c := l.creditsLocked(userID)
	balance := creditField(&c, kind)
	if *balance <= 0 {
		return c, domain.ErrNoCredits
	}
	*balance--
	c.UpdatedAt = l.now()
	l.credits[userID] = c
	return c, nil
}

func (l *Library) AddCredits(_ context.Context, userID string, kind domain.CreditKind, amount int) (domain.Credits, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c := l.creditsLocked(userID)
	*creditField(&c, kind) += amount
	c.TotalPurchasedCredits += amount
	c.UpdatedAt = l.now()
	l.credits[userID] = c
	return c, nil
}

func (l *Library) GetStats(_ context.Context, userID string) (domain.DashboardStats, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	stats, ok := l.stats[userID]
	if !ok {
		return domain.DashboardStats{UserID: userID}, nil
	}
	return stats, nil
}

func (l *Library) AddQuizzes(_ context.Context, userID string, n int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	stats := l.stats[userID]
	stats.UserID = userID
	stats.TotalQuizzes = max(stats.TotalQuizzes+n, 0)
	l.stats[userID] = stats
	return nil
}

func (l *Library) AddPlayers(_ context.Context, userID string, players int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	stats := l.stats[userID]
	stats.UserID = userID
	stats.TotalPlayers += players
	l.stats[userID] = stats
	return nil
}

func (l *Library) creditsLocked(userID string) domain.Credits {
	c, ok := l.credits[userID]
	if !ok {
		c = domain.DefaultCredits(userID)
		c.UpdatedAt = l.now()
		l.credits[userID] = c
	}
	return c
}

func creditField(c *domain.Credits, kind domain.CreditKind) *int {
	if kind == domain.CreditsFile {
		return &c.FileQuizCredits
	}
	return &c.NormalQuizCredits
}
