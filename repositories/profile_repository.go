package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Nurbek02/brainduel/models"
)

var ErrProfileNotFound = errors.New("profile not found")

type ProfileRepository interface {
	Create(ctx context.Context, profile *models.Profile) error
	GetByUserID(ctx context.Context, userID int) (*models.Profile, error)
	// ApplyDelta adjusts the counters in one statement. rank_score is floored
	// at zero in SQL so a concurrent reader never observes a negative score.
	ApplyDelta(ctx context.Context, exec SQLExecutor, userID, rankDelta, winDelta, loseDelta int) error
}

type postgresProfileRepository struct {
	db *sql.DB
}

func NewPostgresProfileRepository(db *sql.DB) ProfileRepository {
	return &postgresProfileRepository{db: db}
}

func (r *postgresProfileRepository) Create(ctx context.Context, profile *models.Profile) error {
	// ON CONFLICT keeps Google re-logins idempotent.
	query := `
		INSERT INTO profiles (user_id, rank_score, win_count, lose_count)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO NOTHING`

	_, err := r.db.ExecContext(ctx, query,
		profile.UserID,
		profile.RankScore,
		profile.WinCount,
		profile.LoseCount,
	)
	if err != nil {
		return fmt.Errorf("failed to insert profile for user %d: %w", profile.UserID, err)
	}
	return nil
}

func (r *postgresProfileRepository) GetByUserID(ctx context.Context, userID int) (*models.Profile, error) {
	query := `
		SELECT user_id, rank_score, win_count, lose_count
		FROM profiles
		WHERE user_id = $1`

	profile := &models.Profile{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&profile.UserID,
		&profile.RankScore,
		&profile.WinCount,
		&profile.LoseCount,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to scan profile for user %d: %w", userID, err)
	}
	return profile, nil
}

func (r *postgresProfileRepository) ApplyDelta(ctx context.Context, exec SQLExecutor, userID, rankDelta, winDelta, loseDelta int) error {
	query := `
		UPDATE profiles
		SET rank_score = GREATEST(rank_score + $2, 0),
		    win_count  = win_count + $3,
		    lose_count = lose_count + $4
		WHERE user_id = $1`

	result, err := exec.ExecContext(ctx, query, userID, rankDelta, winDelta, loseDelta)
	if err != nil {
		return fmt.Errorf("failed to apply profile delta for user %d: %w", userID, err)
	}
	return checkAffectedRows(result, ErrProfileNotFound)
}
