package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Nurbek02/brainduel/models"
	"github.com/lib/pq"
)

var (
	ErrQueueEntryNotFound = errors.New("queue entry not found")
	ErrQueueEntryConflict = errors.New("user is already in the queue")
)

type QueueRepository interface {
	Create(ctx context.Context, exec SQLExecutor, entry *models.QueueEntry) error
	// FindByUserForUpdate locks the caller's own entry so two concurrent
	// requests by the same user serialize on it.
	FindByUserForUpdate(ctx context.Context, exec SQLExecutor, userID int) (*models.QueueEntry, error)
	// FindOldestWaiting picks the entry that has waited longest, excluding
	// the given user. FIFO on created_at, ties broken by id (insertion
	// order). The row is locked; a blocked competitor re-evaluates the
	// predicate after commit and skips a deleted entry.
	FindOldestWaiting(ctx context.Context, exec SQLExecutor, excludeUserID int) (*models.QueueEntry, error)
	DeleteByUser(ctx context.Context, exec SQLExecutor, userID int) error
}

type postgresQueueRepository struct {
	db *sql.DB
}

func NewPostgresQueueRepository(db *sql.DB) QueueRepository {
	return &postgresQueueRepository{db: db}
}

func (r *postgresQueueRepository) Create(ctx context.Context, exec SQLExecutor, entry *models.QueueEntry) error {
	query := `
		INSERT INTO queue_entries (user_id, match_id)
		VALUES ($1, $2)
		RETURNING id, created_at`

	err := exec.QueryRowContext(ctx, query, entry.UserID, entry.MatchID).
		Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			// queue_entries_user_id_key: the single-entry-per-user invariant.
			return ErrQueueEntryConflict
		}
		return fmt.Errorf("failed to insert queue entry for user %d: %w", entry.UserID, err)
	}
	return nil
}

func (r *postgresQueueRepository) FindByUserForUpdate(ctx context.Context, exec SQLExecutor, userID int) (*models.QueueEntry, error) {
	query := `
		SELECT id, user_id, match_id, created_at
		FROM queue_entries
		WHERE user_id = $1
		FOR UPDATE`

	return scanQueueEntry(exec.QueryRowContext(ctx, query, userID))
}

func (r *postgresQueueRepository) FindOldestWaiting(ctx context.Context, exec SQLExecutor, excludeUserID int) (*models.QueueEntry, error) {
	query := `
		SELECT id, user_id, match_id, created_at
		FROM queue_entries
		WHERE user_id <> $1 AND match_id IS NULL
		ORDER BY created_at ASC, id ASC
		LIMIT 1
		FOR UPDATE`

	return scanQueueEntry(exec.QueryRowContext(ctx, query, excludeUserID))
}

func (r *postgresQueueRepository) DeleteByUser(ctx context.Context, exec SQLExecutor, userID int) error {
	query := `DELETE FROM queue_entries WHERE user_id = $1`
	result, err := exec.ExecContext(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("failed to delete queue entry for user %d: %w", userID, err)
	}
	return checkAffectedRows(result, ErrQueueEntryNotFound)
}

func scanQueueEntry(row *sql.Row) (*models.QueueEntry, error) {
	entry := &models.QueueEntry{}
	err := row.Scan(&entry.ID, &entry.UserID, &entry.MatchID, &entry.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQueueEntryNotFound
		}
		return nil, fmt.Errorf("failed to scan queue entry: %w", err)
	}
	return entry, nil
}
