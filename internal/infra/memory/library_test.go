package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"live-quiz-service/internal/domain"
)

func TestLibraryQuizOwnership(t *testing.T) {
	ctx := context.Background()
	lib := NewLibrary()
	require.NoError(t, lib.SaveQuiz(ctx, sampleQuiz()))

	mine, err := lib.ListQuizzes(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	theirs, err := lib.ListQuizzes(ctx, "user-2")
	require.NoError(t, err)
	assert.Empty(t, theirs)

	assert.ErrorIs(t, lib.DeleteQuiz(ctx, "quiz-1", "user-2"), domain.ErrQuizNotFound)
	require.NoError(t, lib.DeleteQuiz(ctx, "quiz-1", "user-1"))
	_, err = lib.LoadQuiz(ctx, "quiz-1")
	assert.ErrorIs(t, err, domain.ErrQuizNotFound)
}

func TestLibraryCredits(t *testing.T) {
	ctx := context.Background()
	lib := NewLibrary()

	c, err := lib.GetCredits(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 10, c.NormalQuizCredits)
	assert.Equal(t, 5, c.FileQuizCredits)

	c, err = lib.DeductCredit(ctx, "user-1", domain.CreditsFile)
	require.NoError(t, err)
	assert.Equal(t, 4, c.FileQuizCredits)

	c, err = lib.AddCredits(ctx, "user-1", domain.CreditsNormal, 3)
	require.NoError(t, err)
	assert.Equal(t, 13, c.NormalQuizCredits)
	assert.Equal(t, 3, c.TotalPurchasedCredits)

	for i := 0; i < 4; i++ {
		_, err = lib.DeductCredit(ctx, "user-1", domain.CreditsFile)
		require.NoError(t, err)
	}
	_, err = lib.DeductCredit(ctx, "user-1", domain.CreditsFile)
	assert.ErrorIs(t, err, domain.ErrNoCredits)
}

func TestLibraryStats(t *testing.T) {
	ctx := context.Background()
	lib := NewLibrary()

	stats, err := lib.GetStats(ctx, "user-1")
	require.NoError(t, err)
	assert.Zero(t, stats.TotalQuizzes)

	require.NoError(t, lib.AddQuizzes(ctx, "user-1", 2))
	require.NoError(t, lib.AddQuizzes(ctx, "user-1", -5))
	require.NoError(t, lib.AddPlayers(ctx, "user-1", 7))

	stats, err = lib.GetStats(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalQuizzes)
	assert.Equal(t, 7, stats.TotalPlayers)
}
