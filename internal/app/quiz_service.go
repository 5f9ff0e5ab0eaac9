package app

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"live-quiz-service/internal/domain"
)

// QuizLibrary abstracts where saved quizzes live (in-memory, Postgres).
type QuizLibrary interface {
	SaveQuiz(ctx context.Context, quiz domain.Quiz) error
	ListQuizzes(ctx context.Context, userID string) ([]domain.Quiz, error)
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	DeleteQuiz(ctx context.Context, quizID, userID string) error
}

// CreditsStore keeps per-user generation credits. GetCredits initializes the
// defaults for unknown users.
type CreditsStore interface {
	GetCredits(ctx context.Context, userID string) (domain.Credits, error)
	DeductCredit(ctx context.Context, userID string, kind domain.CreditKind) (domain.Credits, error)
	AddCredits(ctx context.Context, userID string, kind domain.CreditKind, amount int) (domain.Credits, error)
}

// StatsStore keeps the dashboard counters.
type StatsStore interface {
	GetStats(ctx context.Context, userID string) (domain.DashboardStats, error)
	AddQuizzes(ctx context.Context, userID string, n int) error
	AddPlayers(ctx context.Context, userID string, players int) error
}

// QuizCache is implemented by caching quiz repositories so deletions are not
// served from a stale entry.
type QuizCache interface {
	Invalidate(ctx context.Context, quizID string) error
}

const recentQuizLimit = 5

// QuizService contains the quiz library, credits and dashboard use cases.
type QuizService struct {
	library QuizLibrary
	credits CreditsStore
	stats   StatsStore
	cache   QuizCache
	logger  *zap.Logger
	now     func() time.Time
}

func NewQuizService(library QuizLibrary, credits CreditsStore, stats StatsStore, cache QuizCache, logger *zap.Logger) *QuizService {
	return &QuizService{
		library: library,
		credits: credits,
		stats:   stats,
		cache:   cache,
		logger:  logger,
		now:     time.Now,
	}
}

// NewQuizServiceWithClock is test-only for deterministic timestamps.
func NewQuizServiceWithClock(library QuizLibrary, credits CreditsStore, stats StatsStore, logger *zap.Logger, now func() time.Time) *QuizService {
	s := NewQuizService(library, credits, stats, nil, logger)
	s.now = now
	return s
}

// CreateQuiz saves a new unpublished quiz for the user. The title defaults to
// the first question.
func (s *QuizService) CreateQuiz(ctx context.Context, userID, title string, questions []domain.Question) (domain.Quiz, error) {
	quiz, err := s.newQuiz(userID, title, questions)
	if err != nil {
		return domain.Quiz{}, err
	}
	return quiz, s.save(ctx, quiz)
}

// ImportQuiz parses a generated question array (optionally fenced as Markdown
// JSON) and saves it, consuming one credit of the given kind. Input that would
// not be saved is rejected before the credit is taken.
func (s *QuizService) ImportQuiz(ctx context.Context, userID, title string, kind domain.CreditKind, raw []byte) (domain.Quiz, error) {
	if kind != domain.CreditsNormal && kind != domain.CreditsFile {
		return domain.Quiz{}, fmt.Errorf("%w: unknown credit type %q", domain.ErrValidation, kind)
	}
	questions, err := domain.ParseQuestionArray(raw)
	if err != nil {
		return domain.Quiz{}, err
	}
	quiz, err := s.newQuiz(userID, title, questions)
	if err != nil {
		return domain.Quiz{}, err
	}
	if _, err := s.credits.DeductCredit(ctx, userID, kind); err != nil {
		return domain.Quiz{}, err
	}
	return quiz, s.save(ctx, quiz)
}

func (s *QuizService) newQuiz(userID, title string, questions []domain.Question) (domain.Quiz, error) {
	if len(questions) == 0 {
		return domain.Quiz{}, fmt.Errorf("%w: invalid questions data", domain.ErrValidation)
	}
	for _, q := range questions {
		if err := q.Validate(); err != nil {
			return domain.Quiz{}, err
		}
	}
	questions, err := domain.AssignIDs(questions, uuid.NewString)
	if err != nil {
		return domain.Quiz{}, err
	}

	title = strings.TrimSpace(title)
	if title == "" {
		title = questions[0].Text
	}
	return domain.Quiz{
		ID:        uuid.NewString(),
		Title:     title,
		UserID:    userID,
		Questions: questions,
		CreatedAt: s.now().UTC(),
	}, nil
}

func (s *QuizService) save(ctx context.Context, quiz domain.Quiz) error {
	if err := s.library.SaveQuiz(ctx, quiz); err != nil {
		return fmt.Errorf("save quiz: %w", err)
	}
	if err := s.stats.AddQuizzes(ctx, quiz.UserID, 1); err != nil {
		s.logger.Warn("update dashboard quiz count failed", zap.String("user", quiz.UserID), zap.Error(err))
	}
	s.logger.Info("quiz saved", zap.String("quiz", quiz.ID), zap.String("user", quiz.UserID), zap.Int("questions", len(quiz.Questions)))
	return nil
}

// ListQuizzes returns the user's quizzes, newest first.
func (s *QuizService) ListQuizzes(ctx context.Context, userID string) ([]domain.Quiz, error) {
	quizzes, err := s.library.ListQuizzes(ctx, userID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(quizzes, func(i, j int) bool {
		return quizzes[i].CreatedAt.After(quizzes[j].CreatedAt)
	})
	return quizzes, nil
}

// GetQuiz returns a quiz owned by the user or published by anyone.
func (s *QuizService) GetQuiz(ctx context.Context, userID, quizID string) (domain.Quiz, error) {
	quiz, err := s.library.LoadQuiz(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	if quiz.UserID != userID && !quiz.IsPublished {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return quiz, nil
}

// DeleteQuiz removes one of the user's own quizzes.
func (s *QuizService) DeleteQuiz(ctx context.Context, userID, quizID string) error {
	if err := s.library.DeleteQuiz(ctx, quizID, userID); err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, quizID); err != nil {
			s.logger.Warn("invalidate quiz cache failed", zap.String("quiz", quizID), zap.Error(err))
		}
	}
	if err := s.stats.AddQuizzes(ctx, userID, -1); err != nil {
		s.logger.Warn("update dashboard quiz count failed", zap.String("user", userID), zap.Error(err))
	}
	return nil
}

func (s *QuizService) Credits(ctx context.Context, userID string) (domain.Credits, error) {
	return s.credits.GetCredits(ctx, userID)
}

// AddCredits tops up a balance and the purchased total.
func (s *QuizService) AddCredits(ctx context.Context, userID string, kind domain.CreditKind, amount int) (domain.Credits, error) {
	if kind != domain.CreditsNormal && kind != domain.CreditsFile {
		return domain.Credits{}, fmt.Errorf("%w: unknown credit type %q", domain.ErrValidation, kind)
	}
	if amount <= 0 {
		return domain.Credits{}, fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	}
	return s.credits.AddCredits(ctx, userID, kind, amount)
}

// Dashboard aggregates the stats counters with the most recent quizzes.
func (s *QuizService) Dashboard(ctx context.Context, userID string) (domain.Dashboard, error) {
	stats, err := s.stats.GetStats(ctx, userID)
	if err != nil {
		return domain.Dashboard{}, err
	}
	quizzes, err := s.ListQuizzes(ctx, userID)
	if err != nil {
		return domain.Dashboard{}, err
	}

	recent := make([]domain.RecentQuiz, 0, recentQuizLimit)
	for i, q := range quizzes {
		if i == recentQuizLimit {
			break
		}
		recent = append(recent, domain.RecentQuiz{
			ID:    q.ID,
			Title: q.Title,
			Date:  q.CreatedAt.Format("2006-01-02"),
		})
	}

	total := stats.TotalQuizzes
	if total == 0 {
		total = len(quizzes)
	}
	return domain.Dashboard{
		TotalQuizzes:  total,
		TotalPlayers:  stats.TotalPlayers,
		RecentQuizzes: recent,
	}, nil
}
