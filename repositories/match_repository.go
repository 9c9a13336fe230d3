package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Nurbek02/brainduel/models"
	"github.com/lib/pq"
)

var (
	ErrMatchNotFound      = errors.New("match not found")
	ErrMatchPlayerInvalid = errors.New("match player conflict or invalid")
)

type MatchRepository interface {
	Create(ctx context.Context, exec SQLExecutor, match *models.Match) error
	GetByID(ctx context.Context, id int) (*models.Match, error)
	// GetByIDForUpdate locks the match row for the rest of the transaction,
	// serializing answer submission and forfeit against each other.
	GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Match, error)
	// FindOngoingByUser returns the single ongoing match the user plays in,
	// or ErrMatchNotFound. At most one can exist; the game service maintains
	// that invariant.
	FindOngoingByUser(ctx context.Context, exec SQLExecutor, userID int) (*models.Match, error)
	ListByUser(ctx context.Context, userID int) ([]*models.Match, error)
	// UpdateResult persists a state transition. winnerID stays nil for
	// forfeits and draws.
	UpdateResult(ctx context.Context, exec SQLExecutor, id int, status models.MatchStatus, winnerID *int, endedAt time.Time) error
}

type postgresMatchRepository struct {
	db *sql.DB
}

func NewPostgresMatchRepository(db *sql.DB) MatchRepository {
	return &postgresMatchRepository{db: db}
}

const matchColumns = `
	m.id, m.player1_id, m.player2_id, m.problem_id, m.winner_id,
	m.status, m.started_at, m.ended_at, p.id, p.question`

func (r *postgresMatchRepository) Create(ctx context.Context, exec SQLExecutor, match *models.Match) error {
	query := `
		INSERT INTO matches (player1_id, player2_id, problem_id, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, started_at`

	err := exec.QueryRowContext(ctx, query,
		match.Player1ID,
		match.Player2ID,
		match.ProblemID,
		match.Status,
	).Scan(&match.ID, &match.StartedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23503" {
			return ErrMatchPlayerInvalid
		}
		return fmt.Errorf("failed to insert match: %w", err)
	}
	return nil
}

func (r *postgresMatchRepository) GetByID(ctx context.Context, id int) (*models.Match, error) {
	query := `
		SELECT ` + matchColumns + `
		FROM matches m
		LEFT JOIN problems p ON m.problem_id = p.id
		WHERE m.id = $1`

	return scanMatch(r.db.QueryRowContext(ctx, query, id))
}

func (r *postgresMatchRepository) GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Match, error) {
	// FOR UPDATE OF m: the joined problem row stays unlocked.
	query := `
		SELECT ` + matchColumns + `
		FROM matches m
		LEFT JOIN problems p ON m.problem_id = p.id
		WHERE m.id = $1
		FOR UPDATE OF m`

	return scanMatch(exec.QueryRowContext(ctx, query, id))
}

func (r *postgresMatchRepository) FindOngoingByUser(ctx context.Context, exec SQLExecutor, userID int) (*models.Match, error) {
	query := `
		SELECT ` + matchColumns + `
		FROM matches m
		LEFT JOIN problems p ON m.problem_id = p.id
		WHERE (m.player1_id = $1 OR m.player2_id = $1) AND m.status = $2
		ORDER BY m.started_at DESC, m.id DESC
		LIMIT 1`

	return scanMatch(exec.QueryRowContext(ctx, query, userID, models.MatchStatusOngoing))
}

func (r *postgresMatchRepository) ListByUser(ctx context.Context, userID int) ([]*models.Match, error) {
	query := `
		SELECT ` + matchColumns + `
		FROM matches m
		LEFT JOIN problems p ON m.problem_id = p.id
		WHERE m.player1_id = $1 OR m.player2_id = $1
		ORDER BY m.started_at DESC, m.id DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches for user %d: %w", userID, err)
	}
	defer rows.Close()

	matches := make([]*models.Match, 0)
	for rows.Next() {
		match, scanErr := scanMatchRow(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		matches = append(matches, match)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during match rows iteration: %w", err)
	}
	return matches, nil
}

func (r *postgresMatchRepository) UpdateResult(ctx context.Context, exec SQLExecutor, id int, status models.MatchStatus, winnerID *int, endedAt time.Time) error {
	query := `
		UPDATE matches
		SET status = $1, winner_id = $2, ended_at = $3
		WHERE id = $4`

	result, err := exec.ExecContext(ctx, query, status, winnerID, endedAt, id)
	if err != nil {
		return fmt.Errorf("failed to update result for match %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func scanMatch(row *sql.Row) (*models.Match, error) {
	match := &models.Match{}
	var problemID sql.NullInt64
	var problemQuestion sql.NullString

	err := row.Scan(
		&match.ID,
		&match.Player1ID,
		&match.Player2ID,
		&match.ProblemID,
		&match.WinnerID,
		&match.Status,
		&match.StartedAt,
		&match.EndedAt,
		&problemID,
		&problemQuestion,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to scan match: %w", err)
	}
	attachProblem(match, problemID, problemQuestion)
	return match, nil
}

func scanMatchRow(rows *sql.Rows) (*models.Match, error) {
	match := &models.Match{}
	var problemID sql.NullInt64
	var problemQuestion sql.NullString

	err := rows.Scan(
		&match.ID,
		&match.Player1ID,
		&match.Player2ID,
		&match.ProblemID,
		&match.WinnerID,
		&match.Status,
		&match.StartedAt,
		&match.EndedAt,
		&problemID,
		&problemQuestion,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan match row: %w", err)
	}
	attachProblem(match, problemID, problemQuestion)
	return match, nil
}

// attachProblem projects the joined problem without its answer. Services
// that need the answer fetch it through ProblemRepository inside their
// transaction.
func attachProblem(match *models.Match, id sql.NullInt64, question sql.NullString) {
	if id.Valid {
		match.Problem = &models.Problem{
			ID:       int(id.Int64),
			Question: question.String,
		}
	}
}
