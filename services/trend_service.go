package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/Nurbek02/brainduel/models"
	"github.com/Nurbek02/brainduel/repositories"
	"github.com/redis/go-redis/v9"
)

// TrendKey is the Redis sorted set holding video trend scores, written by
// the stats worker and read by the trending endpoint.
const TrendKey = "videos:trend"

const defaultTrendLimit = 20

// TrendScore ranks a video by its recent growth, discounted by age:
// (view_diff * 1.0 + like_diff * 2.0) / sqrt(age_hours), age clamped to
// at least one hour.
func TrendScore(viewDiff, likeDiff int64, ageHours float64) float64 {
	if ageHours <= 0 {
		ageHours = 1
	}
	return (float64(viewDiff)*1.0 + float64(likeDiff)*2.0) / math.Sqrt(ageHours)
}

type TrendService interface {
	ListVideos(ctx context.Context) ([]*models.Video, error)
	// Trending returns the top videos by trend score, from the Redis
	// leaderboard when it is populated, falling back to Postgres.
	Trending(ctx context.Context, limit int) ([]*models.Video, error)
}

type trendService struct {
	videoRepo repositories.VideoRepository
	redis     *redis.Client
	logger    *slog.Logger
}

func NewTrendService(videoRepo repositories.VideoRepository, redisClient *redis.Client, logger *slog.Logger) TrendService {
	return &trendService{
		videoRepo: videoRepo,
		redis:     redisClient,
		logger:    logger,
	}
}

func (s *trendService) ListVideos(ctx context.Context) ([]*models.Video, error) {
	videos, err := s.videoRepo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list videos: %w", err)
	}
	return videos, nil
}

func (s *trendService) Trending(ctx context.Context, limit int) ([]*models.Video, error) {
	if limit <= 0 {
		limit = defaultTrendLimit
	}

	if videos, ok := s.trendingFromRedis(ctx, limit); ok {
		return videos, nil
	}

	videos, err := s.videoRepo.ListTrending(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list trending videos: %w", err)
	}
	return videos, nil
}

func (s *trendService) trendingFromRedis(ctx context.Context, limit int) ([]*models.Video, bool) {
	if s.redis == nil {
		return nil, false
	}

	ids, err := s.redis.ZRevRange(ctx, TrendKey, 0, int64(limit-1)).Result()
	if err != nil || len(ids) == 0 {
		if err != nil {
			s.logger.Warn("trend leaderboard unavailable, falling back to database", slog.Any("error", err))
		}
		return nil, false
	}

	videos, err := s.videoRepo.ListByVideoIDs(ctx, ids)
	if err != nil {
		s.logger.Warn("failed to load leaderboard videos, falling back to database", slog.Any("error", err))
		return nil, false
	}

	// Restore leaderboard order: ListByVideoIDs does not guarantee it.
	byID := make(map[string]*models.Video, len(videos))
	for _, v := range videos {
		byID[v.VideoID] = v
	}
	ordered := make([]*models.Video, 0, len(ids))
	for _, id := range ids {
		if v, ok := byID[id]; ok {
			ordered = append(ordered, v)
		}
	}
	return ordered, true
}
