package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"live-quiz-service/internal/domain"
)

// AccountStore keeps per-user credits and dashboard counters.
type AccountStore struct {
	pool *pgxpool.Pool
}

func NewAccountStore(pool *pgxpool.Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

const creditColumns = `user_id, normal_quiz_credits, file_quiz_credits, total_purchased_credits, updated_at`

// GetCredits returns the user's credits, creating the default row on first use.
func (s *AccountStore) GetCredits(ctx context.Context, userID string) (domain.Credits, error) {
	def := domain.DefaultCredits(userID)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO user_credits (user_id, normal_quiz_credits, file_quiz_credits, total_purchased_credits)
		VALUES ($1, $2, $3, 0)
		ON CONFLICT (user_id) DO NOTHING`,
		userID, def.NormalQuizCredits, def.FileQuizCredits,
	)
	if err != nil {
		return domain.Credits{}, fmt.Errorf("init credits: %w", err)
	}
	c, err := scanCredits(s.pool.QueryRow(ctx, `SELECT `+creditColumns+` FROM user_credits WHERE user_id=$1`, userID))
	if err != nil {
		return domain.Credits{}, fmt.Errorf("get credits: %w", err)
	}
	return c, nil
}

// DeductCredit takes one credit of the given kind, failing with ErrNoCredits at zero.
func (s *AccountStore) DeductCredit(ctx context.Context, userID string, kind domain.CreditKind) (domain.Credits, error) {
	if _, err := s.GetCredits(ctx, userID); err != nil {
		return domain.Credits{}, err
	}
	col := creditColumn(kind)
	c, err := scanCredits(s.pool.QueryRow(ctx, `
		UPDATE user_credits SET `+col+` = `+col+` - 1, updated_at = now()
		WHERE user_id=$1 AND `+col+` > 0
		RETURNING `+creditColumns, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Credits{}, domain.ErrNoCredits
	}
	if err != nil {
		return domain.Credits{}, fmt.Errorf("deduct credit: %w", err)
	}
	return c, nil
}

func (s *AccountStore) AddCredits(ctx context.Context, userID string, kind domain.CreditKind, amount int) (domain.Credits, error) {
	if _, err := s.GetCredits(ctx, userID); err != nil {
		return domain.Credits{}, err
	}
	col := creditColumn(kind)
	c, err := scanCredits(s.pool.QueryRow(ctx, `
		UPDATE user_credits
		SET `+col+` = `+col+` + $2, total_purchased_credits = total_purchased_credits + $2, updated_at = now()
		WHERE user_id=$1
		RETURNING `+creditColumns, userID, amount))
	if err != nil {
		return domain.Credits{}, fmt.Errorf("add credits: %w", err)
	}
	return c, nil
}

func (s *AccountStore) GetStats(ctx context.Context, userID string) (domain.DashboardStats, error) {
	stats := domain.DashboardStats{UserID: userID}
	err := s.pool.QueryRow(ctx,
		`SELECT total_quizzes, total_players FROM dashboard_stats WHERE user_id=$1`, userID,
	).Scan(&stats.TotalQuizzes, &stats.TotalPlayers)
	if errors.Is(err, pgx.ErrNoRows) {
		return stats, nil
	}
	if err != nil {
		return domain.DashboardStats{}, fmt.Errorf("get dashboard stats: %w", err)
	}
	return stats, nil
}

func (s *AccountStore) AddQuizzes(ctx context.Context, userID string, n int) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO dashboard_stats (user_id, total_quizzes) VALUES ($1, GREATEST($2::int, 0))
		ON CONFLICT (user_id) DO UPDATE
		SET total_quizzes = GREATEST(dashboard_stats.total_quizzes + $2::int, 0), updated_at = now()`,
		userID, n,
	)
	if err != nil {
		return fmt.Errorf("update quiz count: %w", err)
	}
	return nil
}

func (s *AccountStore) AddPlayers(ctx context.Context, userID string, players int) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO dashboard_stats (user_id, total_players) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET total_players = dashboard_stats.total_players + $2, updated_at = now()`,
		userID, players,
	)
	if err != nil {
		return fmt.Errorf("update player count: %w", err)
	}
	return nil
}

func creditColumn(kind domain.CreditKind) string {
	if kind == domain.CreditsFile {
		return "file_quiz_credits"
	}
	return "normal_quiz_credits"
}

func scanCredits(row pgx.Row) (domain.Credits, error) {
	var c domain.Credits
	err := row.Scan(&c.UserID, &c.NormalQuizCredits, &c.FileQuizCredits, &c.TotalPurchasedCredits, &c.UpdatedAt)
	return c, err
}
