package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Nurbek02/brainduel/models"
)

var ErrProblemNotFound = errors.New("problem not found")

type ProblemRepository interface {
	// Random picks one problem uniformly. Returns ErrProblemNotFound when
	// the bank is empty; callers decide whether that is fatal.
	Random(ctx context.Context, exec SQLExecutor) (*models.Problem, error)
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Problem, error)
}

type postgresProblemRepository struct {
	db *sql.DB
}

func NewPostgresProblemRepository(db *sql.DB) ProblemRepository {
	return &postgresProblemRepository{db: db}
}

func (r *postgresProblemRepository) Random(ctx context.Context, exec SQLExecutor) (*models.Problem, error) {
	query := `
		SELECT id, question, answer
		FROM problems
		ORDER BY random()
		LIMIT 1`

	return r.scanProblem(exec.QueryRowContext(ctx, query))
}

func (r *postgresProblemRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Problem, error) {
	query := `
		SELECT id, question, answer
		FROM problems
		WHERE id = $1`

	return r.scanProblem(exec.QueryRowContext(ctx, query, id))
}

func (r *postgresProblemRepository) scanProblem(row *sql.Row) (*models.Problem, error) {
	problem := &models.Problem{}
	err := row.Scan(&problem.ID, &problem.Question, &problem.Answer)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProblemNotFound
		}
		return nil, fmt.Errorf("failed to scan problem: %w", err)
	}
	return problem, nil
}
