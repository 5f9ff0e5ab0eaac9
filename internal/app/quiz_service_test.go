package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
)

func newQuizService(t *testing.T) (*app.QuizService, *memory.Library, *time.Time) {
	t.Helper()
	lib := memory.NewLibrary()
	now := time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)
	svc := app.NewQuizServiceWithClock(lib, lib, lib, zaptest.NewLogger(t), func() time.Time { return now })
	return svc, lib, &now
}

func TestCreateQuizAssignsIDsAndDefaultTitle(t *testing.T) {
	ctx := context.Background()
	svc, lib, _ := newQuizService(t)

	quiz, err := svc.CreateQuiz(ctx, "u1", "  ", sampleQuestions(t))
	require.NoError(t, err)
	assert.NotEmpty(t, quiz.ID)
	assert.Equal(t, "Capital of France?", quiz.Title)
	assert.False(t, quiz.IsPublished)
	for _, q := range quiz.Questions {
		assert.NotEmpty(t, q.ID)
	}

	stored, err := lib.LoadQuiz(ctx, quiz.ID)
	require.NoError(t, err)
	assert.Equal(t, quiz.Questions, stored.Questions)

	stats, err := lib.GetStats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalQuizzes)
}

func TestCreateQuizRejectsInvalidQuestions(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newQuizService(t)

	_, err := svc.CreateQuiz(ctx, "u1", "empty", nil)
	assert.ErrorIs(t, err, domain.ErrValidation)

	bad := domain.Question{ID: "q1", Text: "Pick", Kind: domain.KindMultipleChoice, Options: []string{"a", "b"}, CorrectAnswer: "c"}
	_, err = svc.CreateQuiz(ctx, "u1", "bad", []domain.Question{bad})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestImportQuizConsumesCredit(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newQuizService(t)

	raw := []byte("```json\n[{\"question\":\"Sky is blue\",\"correctAnswer\":true}]\n```")
	quiz, err := svc.ImportQuiz(ctx, "u1", "Generated", domain.CreditsFile, raw)
	require.NoError(t, err)
	require.Len(t, quiz.Questions, 1)
	assert.Equal(t, domain.KindTrueFalse, quiz.Questions[0].Kind)
	assert.Equal(t, domain.AnswerTrue, quiz.Questions[0].CorrectAnswer)

	credits, err := svc.Credits(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 4, credits.FileQuizCredits)
	assert.Equal(t, 10, credits.NormalQuizCredits)
}

func TestImportQuizWithoutCredits(t *testing.T) {
	ctx := context.Background()
	svc, lib, _ := newQuizService(t)
	raw := []byte(`[{"question":"2+2","options":["3","4"],"correctAnswer":"4"}]`)

	for i := 0; i < 5; i++ {
		_, err := lib.DeductCredit(ctx, "u1", domain.CreditsFile)
		require.NoError(t, err)
	}
	_, err := svc.ImportQuiz(ctx, "u1", "", domain.CreditsFile, raw)
	assert.ErrorIs(t, err, domain.ErrNoCredits)

	quizzes, err := svc.ListQuizzes(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, quizzes)
}

func TestImportQuizRejectsMalformedInputBeforeCharging(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newQuizService(t)

	_, err := svc.ImportQuiz(ctx, "u1", "", domain.CreditsNormal, []byte("not json"))
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = svc.ImportQuiz(ctx, "u1", "", "premium", []byte("[]"))
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = svc.ImportQuiz(ctx, "u1", "", domain.CreditsNormal, []byte("[]"))
	assert.ErrorIs(t, err, domain.ErrValidation)
	duplicate := `[{"id":"a","question":"Go is fun","correctAnswer":true},{"id":"a","question":"Go is slow","correctAnswer":false}]`
	_, err = svc.ImportQuiz(ctx, "u1", "", domain.CreditsNormal, []byte(duplicate))
	assert.ErrorIs(t, err, domain.ErrValidation)

	credits, err := svc.Credits(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 10, credits.NormalQuizCredits)
}

func TestGetQuizVisibility(t *testing.T) {
	ctx := context.Background()
	svc, lib, _ := newQuizService(t)

	quiz, err := svc.CreateQuiz(ctx, "owner", "Mine", sampleQuestions(t))
	require.NoError(t, err)

	_, err = svc.GetQuiz(ctx, "owner", quiz.ID)
	assert.NoError(t, err)
	_, err = svc.GetQuiz(ctx, "stranger", quiz.ID)
	assert.ErrorIs(t, err, domain.ErrQuizNotFound)

	quiz.IsPublished = true
	require.NoError(t, lib.SaveQuiz(ctx, quiz))
	_, err = svc.GetQuiz(ctx, "stranger", quiz.ID)
	assert.NoError(t, err)
}

func TestDeleteQuizInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	lib := memory.NewLibrary()
	cache := memory.NewQuizRepository(lib, time.Minute)
	svc := app.NewQuizService(lib, lib, lib, cache, zaptest.NewLogger(t))

	quiz, err := svc.CreateQuiz(ctx, "u1", "Doomed", sampleQuestions(t))
	require.NoError(t, err)
	_, err = cache.GetQuiz(ctx, quiz.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.DeleteQuiz(ctx, "u2", quiz.ID), domain.ErrQuizNotFound)
	require.NoError(t, svc.DeleteQuiz(ctx, "u1", quiz.ID))

	_, err = cache.GetQuiz(ctx, quiz.ID)
	assert.ErrorIs(t, err, domain.ErrQuizNotFound)
	stats, err := lib.GetStats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalQuizzes)
}

func TestAddCredits(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newQuizService(t)

	credits, err := svc.AddCredits(ctx, "u1", domain.CreditsNormal, 15)
	require.NoError(t, err)
	assert.Equal(t, 25, credits.NormalQuizCredits)
	assert.Equal(t, 15, credits.TotalPurchasedCredits)

	_, err = svc.AddCredits(ctx, "u1", domain.CreditsNormal, 0)
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = svc.AddCredits(ctx, "u1", "gold", 1)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestDashboardListsRecentQuizzes(t *testing.T) {
	ctx := context.Background()
	svc, lib, now := newQuizService(t)

	var last domain.Quiz
	for i := 0; i < 7; i++ {
		*now = now.Add(24 * time.Hour)
		quiz, err := svc.CreateQuiz(ctx, "u1", "", sampleQuestions(t))
		require.NoError(t, err)
		last = quiz
	}
	require.NoError(t, lib.AddPlayers(ctx, "u1", 12))

	dash, err := svc.Dashboard(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 7, dash.TotalQuizzes)
	assert.Equal(t, 12, dash.TotalPlayers)
	require.Len(t, dash.RecentQuizzes, 5)
	assert.Equal(t, last.ID, dash.RecentQuizzes[0].ID)
	assert.Equal(t, "2024-11-29", dash.RecentQuizzes[0].Date)
}

func TestDashboardForNewUser(t *testing.T) {
	svc, _, _ := newQuizService(t)
	dash, err := svc.Dashboard(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Zero(t, dash.TotalQuizzes)
	assert.Zero(t, dash.TotalPlayers)
	assert.Empty(t, dash.RecentQuizzes)
}

func sampleQuestions(t *testing.T) []domain.Question {
	t.Helper()
	mc, err := domain.NewMultipleChoice("", "Capital of France?", []string{"Paris", "Rome", "Madrid"}, "Paris")
	require.NoError(t, err)
	return []domain.Question{mc, domain.NewTrueFalse("", "Go compiles to native code", true)}
}
