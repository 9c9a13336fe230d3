package models

import "time"

// Video holds the latest collected statistics for a tracked YouTube short.
type Video struct {
	ID          int       `json:"id"`
	VideoID     string    `json:"video_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	PublishedAt time.Time `json:"published_at"`
	ViewCount   int64     `json:"view_count"`
	LikeCount   int64     `json:"like_count"`
	ViewDiff    int64     `json:"view_diff"`
	LikeDiff    int64     `json:"like_diff"`
	TrendScore  float64   `json:"trend_score"`
}

// VideoStatsHistory is one collection sample; a row is appended on every
// polling run.
type VideoStatsHistory struct {
	ID          int       `json:"id"`
	VideoID     int       `json:"video_id"`
	CollectedAt time.Time `json:"collected_at"`
	ViewCount   int64     `json:"view_count"`
	LikeCount   int64     `json:"like_count"`
	TrendScore  float64   `json:"trend_score"`
}
