// Package workers contains the background jobs. The YouTube stats worker
// periodically refreshes statistics for tracked videos, records history
// rows, recomputes trend scores and discovers newly published shorts.
package workers

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Nurbek02/brainduel/models"
	"github.com/Nurbek02/brainduel/repositories"
	"github.com/Nurbek02/brainduel/services"
	"github.com/Nurbek02/brainduel/youtube"
	"github.com/go-co-op/gocron/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// statsFetchParallelism bounds concurrent YouTube API calls per run.
const statsFetchParallelism = 4

const runTimeout = 5 * time.Minute

type YouTubeWorkerConfig struct {
	Interval      time.Duration
	Region        string
	SearchResults int
}

type YouTubeWorker struct {
	client    *youtube.Client
	videoRepo repositories.VideoRepository
	redis     *redis.Client
	cfg       YouTubeWorkerConfig
	logger    *slog.Logger
	scheduler gocron.Scheduler
}

func NewYouTubeWorker(
	client *youtube.Client,
	videoRepo repositories.VideoRepository,
	redisClient *redis.Client,
	cfg YouTubeWorkerConfig,
	logger *slog.Logger,
) *YouTubeWorker {
	return &YouTubeWorker{
		client:    client,
		videoRepo: videoRepo,
		redis:     redisClient,
		cfg:       cfg,
		logger:    logger,
	}
}

// Start schedules the periodic job; the first run fires immediately.
func (w *YouTubeWorker) Start() error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return err
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(w.cfg.Interval),
		gocron.NewTask(w.runOnce),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return err
	}

	scheduler.Start()
	w.scheduler = scheduler
	w.logger.Info("youtube stats worker started", slog.Duration("interval", w.cfg.Interval))
	return nil
}

func (w *YouTubeWorker) Stop() {
	if w.scheduler != nil {
		if err := w.scheduler.Shutdown(); err != nil {
			w.logger.Error("failed to shut down youtube worker scheduler", slog.Any("error", err))
		}
	}
}

func (w *YouTubeWorker) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	if err := w.RefreshTracked(ctx); err != nil {
		w.logger.Error("youtube stats refresh failed", slog.Any("error", err))
	}
	if err := w.DiscoverNew(ctx); err != nil {
		w.logger.Error("youtube shorts discovery failed", slog.Any("error", err))
	}
}

// RefreshTracked updates statistics for every tracked video. Per-video
// failures are logged and skipped; the run only fails on listing errors.
func (w *YouTubeWorker) RefreshTracked(ctx context.Context) error {
	videos, err := w.videoRepo.ListAll(ctx)
	if err != nil {
		return err
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(statsFetchParallelism)

	for _, video := range videos {
		video := video
		g.Go(func() error {
			if err := w.refreshVideo(gCtx, video); err != nil {
				w.logger.Warn("failed to refresh video stats",
					slog.String("video_id", video.VideoID), slog.Any("error", err))
			}
			return nil
		})
	}
	return g.Wait()
}

func (w *YouTubeWorker) refreshVideo(ctx context.Context, video *models.Video) error {
	stats, err := w.client.GetVideoStats(ctx, video.VideoID)
	if err != nil {
		if errors.Is(err, youtube.ErrVideoNotFound) {
			w.logger.Warn("tracked video no longer available", slog.String("video_id", video.VideoID))
			return nil
		}
		return err
	}

	video.ViewDiff = stats.ViewCount - video.ViewCount
	video.LikeDiff = stats.LikeCount - video.LikeCount
	video.ViewCount = stats.ViewCount
	video.LikeCount = stats.LikeCount
	video.Title = stats.Title
	video.Description = stats.Description

	ageHours := time.Since(video.PublishedAt).Hours()
	video.TrendScore = services.TrendScore(video.ViewDiff, video.LikeDiff, ageHours)

	if err := w.videoRepo.UpdateStats(ctx, video); err != nil {
		return err
	}
	if err := w.videoRepo.InsertHistory(ctx, &models.VideoStatsHistory{
		VideoID:    video.ID,
		ViewCount:  video.ViewCount,
		LikeCount:  video.LikeCount,
		TrendScore: video.TrendScore,
	}); err != nil {
		return err
	}

	w.updateLeaderboard(ctx, video)
	return nil
}

// DiscoverNew inserts videos found by the shorts search that are not yet
// tracked.
func (w *YouTubeWorker) DiscoverNew(ctx context.Context) error {
	results, err := w.client.SearchRecentShorts(ctx, w.cfg.Region, w.cfg.SearchResults)
	if err != nil {
		return err
	}

	for _, result := range results {
		stats, err := w.client.GetVideoStats(ctx, result.VideoID)
		if err != nil {
			w.logger.Warn("failed to fetch initial stats for discovered video",
				slog.String("video_id", result.VideoID), slog.Any("error", err))
			continue
		}

		ageHours := time.Since(result.PublishedAt).Hours()
		video := &models.Video{
			VideoID:     result.VideoID,
			Title:       result.Title,
			Description: result.Description,
			PublishedAt: result.PublishedAt,
			ViewCount:   stats.ViewCount,
			LikeCount:   stats.LikeCount,
			TrendScore:  services.TrendScore(stats.ViewCount, stats.LikeCount, ageHours),
		}
		if err := w.videoRepo.Create(ctx, video); err != nil {
			if errors.Is(err, repositories.ErrVideoConflict) {
				continue // discovered concurrently or already tracked
			}
			w.logger.Warn("failed to insert discovered video",
				slog.String("video_id", result.VideoID), slog.Any("error", err))
			continue
		}
		if err := w.videoRepo.InsertHistory(ctx, &models.VideoStatsHistory{
			VideoID:    video.ID,
			ViewCount:  video.ViewCount,
			LikeCount:  video.LikeCount,
			TrendScore: video.TrendScore,
		}); err != nil {
			w.logger.Warn("failed to insert initial stats history",
				slog.String("video_id", result.VideoID), slog.Any("error", err))
		}
		w.updateLeaderboard(ctx, video)

		w.logger.Info("tracking new video", slog.String("video_id", video.VideoID), slog.String("title", video.Title))
	}
	return nil
}

// updateLeaderboard is best effort: Redis being down never fails a run.
func (w *YouTubeWorker) updateLeaderboard(ctx context.Context, video *models.Video) {
	if w.redis == nil {
		return
	}
	err := w.redis.ZAdd(ctx, services.TrendKey, redis.Z{
		Score:  video.TrendScore,
		Member: video.VideoID,
	}).Err()
	if err != nil {
		w.logger.Warn("failed to update trend leaderboard",
			slog.String("video_id", video.VideoID), slog.Any("error", err))
	}
}
