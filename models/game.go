package models

import "time"

type MatchStatus string

const (
	MatchStatusOngoing   MatchStatus = "ongoing"
	MatchStatusFinished  MatchStatus = "finished"
	MatchStatusForfeited MatchStatus = "forfeited"
	MatchStatusDraw      MatchStatus = "draw"
)

// Terminal reports whether no further transitions are allowed out of s.
func (s MatchStatus) Terminal() bool {
	return s == MatchStatusFinished || s == MatchStatusForfeited || s == MatchStatusDraw
}

// Problem is a single quiz question. The answer never reaches the client:
// it is excluded from JSON and compared only on the server.
type Problem struct {
	ID       int    `json:"id"`
	Question string `json:"question"`
	Answer   string `json:"-"`
}

type Match struct {
	ID        int         `json:"id"`
	Player1ID int         `json:"player1_id"`
	Player2ID int         `json:"player2_id"`
	ProblemID *int        `json:"-"`
	Problem   *Problem    `json:"problem,omitempty"`
	WinnerID  *int        `json:"winner_id,omitempty"`
	Status    MatchStatus `json:"status"`
	StartedAt time.Time   `json:"started_at"`
	EndedAt   *time.Time  `json:"ended_at,omitempty"`
}

// HasParticipant reports whether userID plays in this match.
func (m *Match) HasParticipant(userID int) bool {
	return m.Player1ID == userID || m.Player2ID == userID
}

// Opponent returns the other participant's ID.
func (m *Match) Opponent(userID int) int {
	if m.Player1ID == userID {
		return m.Player2ID
	}
	return m.Player1ID
}

// QueueEntry marks a user as waiting for an opponent. MatchID is the
// transitional "already paired, waiting for pickup" pointer; the entry is
// deleted on pairing, pickup or explicit leave.
type QueueEntry struct {
	ID        int       `json:"id"`
	UserID    int       `json:"user_id"`
	MatchID   *int      `json:"match_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
