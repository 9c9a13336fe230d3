package services

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Nurbek02/brainduel/models"
	"github.com/Nurbek02/brainduel/repositories"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Тесты игрового ядра гоняются против настоящего Postgres: блокировки строк
// и ограничения уникальности не воспроизводятся ин-мемори заглушками.
// TEST_DATABASE_URL должен указывать на пустую тестовую базу.
func setupGameDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL is not set, skipping database-backed tests")
	}

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	require.NoError(t, db.PingContext(ctx))

	_, err = db.ExecContext(ctx, `
		DROP TABLE IF EXISTS video_stats_history, videos, queue_entries,
			matches, problems, profiles, users CASCADE`)
	require.NoError(t, err)

	schema, err := os.ReadFile(filepath.Join("..", "db", "schema.sql"))
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, string(schema))
	require.NoError(t, err)

	return db
}

func newGameService(t *testing.T, db *sql.DB, cfg GameServiceConfig) GameService {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewGameService(
		db,
		repositories.NewPostgresMatchRepository(db),
		repositories.NewPostgresQueueRepository(db),
		repositories.NewPostgresProblemRepository(db),
		repositories.NewPostgresProfileRepository(db),
		cfg,
		logger,
	)
}

func createPlayer(t *testing.T, db *sql.DB, nickname string, rankScore int) int {
	t.Helper()
	var id int
	err := db.QueryRow(
		`INSERT INTO users (nickname, email) VALUES ($1, $2) RETURNING id`,
		nickname, nickname+"@example.com",
	).Scan(&id)
	require.NoError(t, err)
	_, err = db.Exec(
		`INSERT INTO profiles (user_id, rank_score) VALUES ($1, $2)`,
		id, rankScore,
	)
	require.NoError(t, err)
	return id
}

func createProblem(t *testing.T, db *sql.DB, question, answer string) int {
	t.Helper()
	var id int
	err := db.QueryRow(
		`INSERT INTO problems (question, answer) VALUES ($1, $2) RETURNING id`,
		question, answer,
	).Scan(&id)
	require.NoError(t, err)
	return id
}

func getProfile(t *testing.T, db *sql.DB, userID int) *models.Profile {
	t.Helper()
	profile, err := repositories.NewPostgresProfileRepository(db).GetByUserID(context.Background(), userID)
	require.NoError(t, err)
	return profile
}

func TestEnqueueOrMatch_FirstUserWaits(t *testing.T) {
	db := setupGameDB(t)
	svc := newGameService(t, db, GameServiceConfig{})
	ctx := context.Background()

	alice := createPlayer(t, db, "alice", 0)

	result, err := svc.EnqueueOrMatch(ctx, alice)
	require.NoError(t, err)
	assert.False(t, result.Matched)
	assert.Nil(t, result.Match)

	var count int
	require.NoError(t, db.QueryRow(`SELECT count(*) FROM queue_entries WHERE user_id = $1`, alice).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestEnqueueOrMatch_DuplicateEnqueueRejected(t *testing.T) {
	db := setupGameDB(t)
	svc := newGameService(t, db, GameServiceConfig{})
	ctx := context.Background()

	alice := createPlayer(t, db, "alice", 0)

	_, err := svc.EnqueueOrMatch(ctx, alice)
	require.NoError(t, err)

	_, err = svc.EnqueueOrMatch(ctx, alice)
	assert.ErrorIs(t, err, ErrAlreadyInQueue)
}

func TestEnqueueOrMatch_SecondUserGetsPaired(t *testing.T) {
	db := setupGameDB(t)
	svc := newGameService(t, db, GameServiceConfig{})
	ctx := context.Background()

	problemID := createProblem(t, db, "Capital of France?", "Paris")
	alice := createPlayer(t, db, "alice", 0)
	bob := createPlayer(t, db, "bob", 0)

	_, err := svc.EnqueueOrMatch(ctx, alice)
	require.NoError(t, err)

	result, err := svc.EnqueueOrMatch(ctx, bob)
	require.NoError(t, err)
	require.True(t, result.Matched)
	require.NotNil(t, result.Match)

	match := result.Match
	assert.Equal(t, alice, match.Player1ID)
	assert.Equal(t, bob, match.Player2ID)
	assert.Equal(t, models.MatchStatusOngoing, match.Status)
	require.NotNil(t, match.ProblemID)
	assert.Equal(t, problemID, *match.ProblemID)

	// Оба участника вычищены из очереди.
	var count int
	require.NoError(t, db.QueryRow(`SELECT count(*) FROM queue_entries`).Scan(&count))
	assert.Equal(t, 0, count)
}

func TestEnqueueOrMatch_FIFOPicksLongestWaiting(t *testing.T) {
	db := setupGameDB(t)
	svc := newGameService(t, db, GameServiceConfig{})
	ctx := context.Background()

	createProblem(t, db, "2+2?", "4")
	first := createPlayer(t, db, "first", 0)
	second := createPlayer(t, db, "second", 0)
	third := createPlayer(t, db, "third", 0)

	_, err := svc.EnqueueOrMatch(ctx, first)
	require.NoError(t, err)
	// created_at может совпасть до микросекунды, очередность добивается id.
	time.Sleep(5 * time.Millisecond)
	_, err = svc.EnqueueOrMatch(ctx, second)
	require.NoError(t, err)

	result, err := svc.EnqueueOrMatch(ctx, third)
	require.NoError(t, err)
	require.True(t, result.Matched)
	assert.Equal(t, first, result.Match.Player1ID)
	assert.Equal(t, third, result.Match.Player2ID)
}

func TestEnqueueOrMatch_RepollReturnsOngoingMatch(t *testing.T) {
	db := setupGameDB(t)
	svc := newGameService(t, db, GameServiceConfig{})
	ctx := context.Background()

	createProblem(t, db, "2+2?", "4")
	alice := createPlayer(t, db, "alice", 0)
	bob := createPlayer(t, db, "bob", 0)

	_, err := svc.EnqueueOrMatch(ctx, alice)
	require.NoError(t, err)
	paired, err := svc.EnqueueOrMatch(ctx, bob)
	require.NoError(t, err)

	// Алиса опрашивает очередь снова и получает уже созданный матч.
	repoll, err := svc.EnqueueOrMatch(ctx, alice)
	require.NoError(t, err)
	require.True(t, repoll.Matched)
	assert.Equal(t, paired.Match.ID, repoll.Match.ID)
}

func TestEnqueueOrMatch_ConcurrentUsersPairExactlyOnce(t *testing.T) {
	db := setupGameDB(t)
	svc := newGameService(t, db, GameServiceConfig{})
	ctx := context.Background()

	createProblem(t, db, "2+2?", "4")

	const players = 8
	ids := make([]int, players)
	for i := range ids {
		ids[i] = createPlayer(t, db, fmt.Sprintf("player%d", i), 0)
	}

	var wg sync.WaitGroup
	errs := make([]error, players)
	for i, id := range ids {
		wg.Add(1)
		go func(i, id int) {
			defer wg.Done()
			_, errs[i] = svc.EnqueueOrMatch(ctx, id)
		}(i, id)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "player %d", i)
	}

	// Каждый игрок либо в ровно одном ongoing-матче, либо ждёт в очереди;
	// вместе они покрывают всех ровно по одному разу.
	var matched, waiting int
	require.NoError(t, db.QueryRow(`SELECT count(*) FROM matches WHERE status = 'ongoing'`).Scan(&matched))
	require.NoError(t, db.QueryRow(`SELECT count(*) FROM queue_entries WHERE match_id IS NULL`).Scan(&waiting))
	assert.Equal(t, players, matched*2+waiting)

	var dupes int
	require.NoError(t, db.QueryRow(`
		SELECT count(*) FROM (
			SELECT player FROM (
				SELECT player1_id AS player FROM matches WHERE status = 'ongoing'
				UNION ALL
				SELECT player2_id FROM matches WHERE status = 'ongoing'
			) p GROUP BY player HAVING count(*) > 1
		) d`).Scan(&dupes))
	assert.Equal(t, 0, dupes)
}

func TestEnqueueOrMatch_PicksUpLinkedMatch(t *testing.T) {
	db := setupGameDB(t)
	svc := newGameService(t, db, GameServiceConfig{})
	ctx := context.Background()

	alice := createPlayer(t, db, "alice", 0)
	bob := createPlayer(t, db, "bob", 0)

	// Переходное состояние «спарен, но матч ещё не забран»: запись в
	// очереди ссылается на уже завершённый матч.
	var matchID int
	require.NoError(t, db.QueryRow(`
		INSERT INTO matches (player1_id, player2_id, status, ended_at)
		VALUES ($1, $2, 'forfeited', now())
		RETURNING id`, bob, alice).Scan(&matchID))
	_, err := db.Exec(`INSERT INTO queue_entries (user_id, match_id) VALUES ($1, $2)`, alice, matchID)
	require.NoError(t, err)

	result, err := svc.EnqueueOrMatch(ctx, alice)
	require.NoError(t, err)
	require.True(t, result.Matched)
	assert.Equal(t, matchID, result.Match.ID)

	// Запись забрана и удалена, повторный вызов встаёт в очередь заново.
	var count int
	require.NoError(t, db.QueryRow(`SELECT count(*) FROM queue_entries WHERE user_id = $1`, alice).Scan(&count))
	assert.Equal(t, 0, count)

	repoll, err := svc.EnqueueOrMatch(ctx, alice)
	require.NoError(t, err)
	assert.False(t, repoll.Matched)
}

func TestSubmitAnswer_CorrectAnswerFinishesAndScores(t *testing.T) {
	db := setupGameDB(t)
	svc := newGameService(t, db, GameServiceConfig{})
	ctx := context.Background()

	createProblem(t, db, "Capital of France?", "Paris")
	alice := createPlayer(t, db, "alice", 100)
	bob := createPlayer(t, db, "bob", 100)

	_, err := svc.EnqueueOrMatch(ctx, alice)
	require.NoError(t, err)
	paired, err := svc.EnqueueOrMatch(ctx, bob)
	require.NoError(t, err)

	// Регистр и пробелы по краям не должны влиять на сравнение.
	result, err := svc.SubmitAnswer(ctx, paired.Match.ID, bob, "  pArIs ")
	require.NoError(t, err)
	assert.True(t, result.Correct)
	assert.Equal(t, models.MatchStatusFinished, result.Match.Status)
	require.NotNil(t, result.Match.WinnerID)
	assert.Equal(t, bob, *result.Match.WinnerID)

	winner := getProfile(t, db, bob)
	assert.Equal(t, 120, winner.RankScore)
	assert.Equal(t, 1, winner.WinCount)
	assert.Equal(t, 0, winner.LoseCount)

	loser := getProfile(t, db, alice)
	assert.Equal(t, 80, loser.RankScore)
	assert.Equal(t, 0, loser.WinCount)
	assert.Equal(t, 1, loser.LoseCount)
}

func TestSubmitAnswer_LoserScoreFlooredAtZero(t *testing.T) {
	db := setupGameDB(t)
	svc := newGameService(t, db, GameServiceConfig{})
	ctx := context.Background()

	createProblem(t, db, "2+2?", "4")
	alice := createPlayer(t, db, "alice", 5)
	bob := createPlayer(t, db, "bob", 0)

	_, err := svc.EnqueueOrMatch(ctx, alice)
	require.NoError(t, err)
	paired, err := svc.EnqueueOrMatch(ctx, bob)
	require.NoError(t, err)

	_, err = svc.SubmitAnswer(ctx, paired.Match.ID, bob, "4")
	require.NoError(t, err)

	assert.Equal(t, 0, getProfile(t, db, alice).RankScore)
}

func TestSubmitAnswer_WrongAnswerKeepsMatchOngoing(t *testing.T) {
	db := setupGameDB(t)
	svc := newGameService(t, db, GameServiceConfig{})
	ctx := context.Background()

	createProblem(t, db, "Capital of France?", "Paris")
	alice := createPlayer(t, db, "alice", 0)
	bob := createPlayer(t, db, "bob", 0)

	_, err := svc.EnqueueOrMatch(ctx, alice)
	require.NoError(t, err)
	paired, err := svc.EnqueueOrMatch(ctx, bob)
	require.NoError(t, err)

	result, err := svc.SubmitAnswer(ctx, paired.Match.ID, alice, "London")
	require.NoError(t, err)
	assert.False(t, result.Correct)
	assert.Equal(t, models.MatchStatusOngoing, result.Match.Status)

	// Счёт не тронут.
	assert.Equal(t, 0, getProfile(t, db, alice).WinCount)
	assert.Equal(t, 0, getProfile(t, db, bob).LoseCount)
}

func TestSubmitAnswer_ValidationAndAccessErrors(t *testing.T) {
	db := setupGameDB(t)
	svc := newGameService(t, db, GameServiceConfig{})
	ctx := context.Background()

	createProblem(t, db, "2+2?", "4")
	alice := createPlayer(t, db, "alice", 0)
	bob := createPlayer(t, db, "bob", 0)
	carol := createPlayer(t, db, "carol", 0)

	_, err := svc.EnqueueOrMatch(ctx, alice)
	require.NoError(t, err)
	paired, err := svc.EnqueueOrMatch(ctx, bob)
	require.NoError(t, err)
	matchID := paired.Match.ID

	_, err = svc.SubmitAnswer(ctx, matchID, alice, "   ")
	assert.ErrorIs(t, err, ErrAnswerRequired)

	_, err = svc.SubmitAnswer(ctx, matchID, carol, "4")
	assert.ErrorIs(t, err, ErrNotParticipant)

	_, err = svc.SubmitAnswer(ctx, matchID+1000, alice, "4")
	assert.ErrorIs(t, err, ErrMatchNotFound)
}

func TestSubmitAnswer_DecidedMatchIsImmutable(t *testing.T) {
	db := setupGameDB(t)
	svc := newGameService(t, db, GameServiceConfig{})
	ctx := context.Background()

	createProblem(t, db, "2+2?", "4")
	alice := createPlayer(t, db, "alice", 0)
	bob := createPlayer(t, db, "bob", 0)

	_, err := svc.EnqueueOrMatch(ctx, alice)
	require.NoError(t, err)
	paired, err := svc.EnqueueOrMatch(ctx, bob)
	require.NoError(t, err)

	_, err = svc.SubmitAnswer(ctx, paired.Match.ID, alice, "4")
	require.NoError(t, err)

	// Проигравший с правильным ответом опоздал: исход уже зафиксирован.
	_, err = svc.SubmitAnswer(ctx, paired.Match.ID, bob, "4")
	assert.ErrorIs(t, err, ErrMatchAlreadyDecided)

	winner := getProfile(t, db, alice)
	assert.Equal(t, 1, winner.WinCount)
	assert.Equal(t, 20, winner.RankScore)
}

func TestSubmitAnswer_MatchWithoutProblemNeverWinnable(t *testing.T) {
	db := setupGameDB(t)
	svc := newGameService(t, db, GameServiceConfig{})
	ctx := context.Background()

	// Банк задач пуст: матч создаётся без задачи.
	alice := createPlayer(t, db, "alice", 0)
	bob := createPlayer(t, db, "bob", 0)

	_, err := svc.EnqueueOrMatch(ctx, alice)
	require.NoError(t, err)
	paired, err := svc.EnqueueOrMatch(ctx, bob)
	require.NoError(t, err)
	assert.Nil(t, paired.Match.ProblemID)

	result, err := svc.SubmitAnswer(ctx, paired.Match.ID, alice, "anything")
	require.NoError(t, err)
	assert.False(t, result.Correct)
	assert.Equal(t, models.MatchStatusOngoing, result.Match.Status)
}

func TestSubmitAnswer_ScoringFailureRollsBackResult(t *testing.T) {
	db := setupGameDB(t)
	svc := newGameService(t, db, GameServiceConfig{})
	ctx := context.Background()

	createProblem(t, db, "2+2?", "4")
	alice := createPlayer(t, db, "alice", 0)
	bob := createPlayer(t, db, "bob", 0)

	_, err := svc.EnqueueOrMatch(ctx, alice)
	require.NoError(t, err)
	paired, err := svc.EnqueueOrMatch(ctx, bob)
	require.NoError(t, err)

	// Профиль проигравшего исчез: победа не должна записаться наполовину.
	_, err = db.Exec(`DELETE FROM profiles WHERE user_id = $1`, bob)
	require.NoError(t, err)

	_, err = svc.SubmitAnswer(ctx, paired.Match.ID, alice, "4")
	require.ErrorIs(t, err, ErrScoringFailed)

	match, err := svc.GetMatch(ctx, paired.Match.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusOngoing, match.Status)
	assert.Nil(t, match.WinnerID)
	assert.Equal(t, 0, getProfile(t, db, alice).WinCount)
}

func TestForfeit(t *testing.T) {
	db := setupGameDB(t)
	svc := newGameService(t, db, GameServiceConfig{})
	ctx := context.Background()

	createProblem(t, db, "2+2?", "4")
	alice := createPlayer(t, db, "alice", 50)
	bob := createPlayer(t, db, "bob", 50)

	_, err := svc.EnqueueOrMatch(ctx, alice)
	require.NoError(t, err)
	paired, err := svc.EnqueueOrMatch(ctx, bob)
	require.NoError(t, err)

	match, err := svc.Forfeit(ctx, paired.Match.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusForfeited, match.Status)
	assert.Nil(t, match.WinnerID)
	require.NotNil(t, match.EndedAt)

	// Сдача не трогает счёт.
	assert.Equal(t, 50, getProfile(t, db, alice).RankScore)
	assert.Equal(t, 50, getProfile(t, db, bob).RankScore)

	_, err = svc.Forfeit(ctx, paired.Match.ID, bob)
	assert.ErrorIs(t, err, ErrMatchAlreadyEnded)

	_, err = svc.SubmitAnswer(ctx, paired.Match.ID, bob, "4")
	assert.ErrorIs(t, err, ErrMatchAlreadyDecided)
}

func TestForfeit_ParticipantsOnly(t *testing.T) {
	db := setupGameDB(t)
	svc := newGameService(t, db, GameServiceConfig{ForfeitParticipantsOnly: true})
	ctx := context.Background()

	createProblem(t, db, "2+2?", "4")
	alice := createPlayer(t, db, "alice", 0)
	bob := createPlayer(t, db, "bob", 0)
	carol := createPlayer(t, db, "carol", 0)

	_, err := svc.EnqueueOrMatch(ctx, alice)
	require.NoError(t, err)
	paired, err := svc.EnqueueOrMatch(ctx, bob)
	require.NoError(t, err)

	_, err = svc.Forfeit(ctx, paired.Match.ID, carol)
	assert.ErrorIs(t, err, ErrNotParticipant)

	_, err = svc.Forfeit(ctx, paired.Match.ID, bob)
	assert.NoError(t, err)
}

func TestLeaveQueue(t *testing.T) {
	db := setupGameDB(t)
	svc := newGameService(t, db, GameServiceConfig{})
	ctx := context.Background()

	alice := createPlayer(t, db, "alice", 0)

	assert.ErrorIs(t, svc.LeaveQueue(ctx, alice), ErrNotInQueue)

	_, err := svc.EnqueueOrMatch(ctx, alice)
	require.NoError(t, err)
	require.NoError(t, svc.LeaveQueue(ctx, alice))

	// После выхода можно встать в очередь заново.
	result, err := svc.EnqueueOrMatch(ctx, alice)
	require.NoError(t, err)
	assert.False(t, result.Matched)
}

func TestListUserMatches_NewestFirst(t *testing.T) {
	db := setupGameDB(t)
	svc := newGameService(t, db, GameServiceConfig{})
	ctx := context.Background()

	createProblem(t, db, "2+2?", "4")
	alice := createPlayer(t, db, "alice", 0)
	bob := createPlayer(t, db, "bob", 0)

	_, err := svc.EnqueueOrMatch(ctx, alice)
	require.NoError(t, err)
	first, err := svc.EnqueueOrMatch(ctx, bob)
	require.NoError(t, err)
	_, err = svc.Forfeit(ctx, first.Match.ID, alice)
	require.NoError(t, err)

	_, err = svc.EnqueueOrMatch(ctx, alice)
	require.NoError(t, err)
	second, err := svc.EnqueueOrMatch(ctx, bob)
	require.NoError(t, err)

	matches, err := svc.ListUserMatches(ctx, alice)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, second.Match.ID, matches[0].ID)
	assert.Equal(t, first.Match.ID, matches[1].ID)
}
