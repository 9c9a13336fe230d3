package models

import "time"

type User struct {
	ID           int       `json:"id"`
	Nickname     string    `json:"nickname"`
	Email        string    `json:"email"`
	PasswordHash *string   `json:"-"`
	AvatarKey    *string   `json:"-"`
	AvatarURL    *string   `json:"avatar_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Profile keeps the ranked-play counters for a user. rank_score is
// never allowed to go below zero.
type Profile struct {
	UserID    int `json:"user_id"`
	RankScore int `json:"rank_score"`
	WinCount  int `json:"win_count"`
	LoseCount int `json:"lose_count"`
}
