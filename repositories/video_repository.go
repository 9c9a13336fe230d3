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
	ErrVideoNotFound = errors.New("video not found")
	ErrVideoConflict = errors.New("video id already tracked")
)

type VideoRepository interface {
	Create(ctx context.Context, video *models.Video) error
	ListAll(ctx context.Context) ([]*models.Video, error)
	ListByVideoIDs(ctx context.Context, videoIDs []string) ([]*models.Video, error)
	ListTrending(ctx context.Context, limit int) ([]*models.Video, error)
	UpdateStats(ctx context.Context, video *models.Video) error
	InsertHistory(ctx context.Context, history *models.VideoStatsHistory) error
}

type postgresVideoRepository struct {
	db *sql.DB
}

func NewPostgresVideoRepository(db *sql.DB) VideoRepository {
	return &postgresVideoRepository{db: db}
}

const videoColumns = `
	id, video_id, title, description, published_at,
	view_count, like_count, view_diff, like_diff, trend_score`

func (r *postgresVideoRepository) Create(ctx context.Context, video *models.Video) error {
	query := `
		INSERT INTO videos
			(video_id, title, description, published_at, view_count, like_count, view_diff, like_diff, trend_score)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	err := r.db.QueryRowContext(ctx, query,
		video.VideoID,
		video.Title,
		video.Description,
		video.PublishedAt,
		video.ViewCount,
		video.LikeCount,
		video.ViewDiff,
		video.LikeDiff,
		video.TrendScore,
	).Scan(&video.ID)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrVideoConflict
		}
		return fmt.Errorf("failed to insert video %s: %w", video.VideoID, err)
	}
	return nil
}

func (r *postgresVideoRepository) ListAll(ctx context.Context) ([]*models.Video, error) {
	query := `
		SELECT ` + videoColumns + `
		FROM videos
		ORDER BY published_at DESC, id DESC`

	return r.queryVideos(ctx, query)
}

func (r *postgresVideoRepository) ListByVideoIDs(ctx context.Context, videoIDs []string) ([]*models.Video, error) {
	if len(videoIDs) == 0 {
		return []*models.Video{}, nil
	}
	query := `
		SELECT ` + videoColumns + `
		FROM videos
		WHERE video_id = ANY($1)`

	return r.queryVideos(ctx, query, pq.Array(videoIDs))
}

func (r *postgresVideoRepository) ListTrending(ctx context.Context, limit int) ([]*models.Video, error) {
	query := `
		SELECT ` + videoColumns + `
		FROM videos
		ORDER BY trend_score DESC, id ASC
		LIMIT $1`

	return r.queryVideos(ctx, query, limit)
}

func (r *postgresVideoRepository) UpdateStats(ctx context.Context, video *models.Video) error {
	query := `
		UPDATE videos
		SET title = $1, description = $2, view_count = $3, like_count = $4,
		    view_diff = $5, like_diff = $6, trend_score = $7
		WHERE id = $8`

	result, err := r.db.ExecContext(ctx, query,
		video.Title,
		video.Description,
		video.ViewCount,
		video.LikeCount,
		video.ViewDiff,
		video.LikeDiff,
		video.TrendScore,
		video.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update stats for video %s: %w", video.VideoID, err)
	}
	return checkAffectedRows(result, ErrVideoNotFound)
}

func (r *postgresVideoRepository) InsertHistory(ctx context.Context, history *models.VideoStatsHistory) error {
	query := `
		INSERT INTO video_stats_history (video_id, view_count, like_count, trend_score)
		VALUES ($1, $2, $3, $4)
		RETURNING id, collected_at`

	err := r.db.QueryRowContext(ctx, query,
		history.VideoID,
		history.ViewCount,
		history.LikeCount,
		history.TrendScore,
	).Scan(&history.ID, &history.CollectedAt)
	if err != nil {
		return fmt.Errorf("failed to insert stats history for video %d: %w", history.VideoID, err)
	}
	return nil
}

func (r *postgresVideoRepository) queryVideos(ctx context.Context, query string, args ...interface{}) ([]*models.Video, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query videos: %w", err)
	}
	defer rows.Close()

	videos := make([]*models.Video, 0)
	for rows.Next() {
		video := &models.Video{}
		if scanErr := rows.Scan(
			&video.ID,
			&video.VideoID,
			&video.Title,
			&video.Description,
			&video.PublishedAt,
			&video.ViewCount,
			&video.LikeCount,
			&video.ViewDiff,
			&video.LikeDiff,
			&video.TrendScore,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan video row: %w", scanErr)
		}
		videos = append(videos, video)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during video rows iteration: %w", err)
	}
	return videos, nil
}
