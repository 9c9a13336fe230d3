package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Nurbek02/brainduel/models"
	"github.com/Nurbek02/brainduel/repositories"
)

const (
	winnerRankDelta = 20
	loserRankDelta  = -20
)

// QueueResult is the outcome of an enqueue attempt. Matched is true both
// for a freshly created pairing and for an idempotent re-poll that found
// an existing ongoing match.
type QueueResult struct {
	Matched bool          `json:"matched"`
	Match   *models.Match `json:"match,omitempty"`
}

// AnswerResult reports a submission that was accepted (correct or wrong).
// State conflicts surface as errors instead.
type AnswerResult struct {
	Correct bool          `json:"correct"`
	Match   *models.Match `json:"match"`
}

type GameService interface {
	EnqueueOrMatch(ctx context.Context, userID int) (*QueueResult, error)
	LeaveQueue(ctx context.Context, userID int) error
	GetMatch(ctx context.Context, matchID int) (*models.Match, error)
	ListUserMatches(ctx context.Context, userID int) ([]*models.Match, error)
	SubmitAnswer(ctx context.Context, matchID, userID int, answer string) (*AnswerResult, error)
	Forfeit(ctx context.Context, matchID, userID int) (*models.Match, error)
}

type GameServiceConfig struct {
	// ForfeitParticipantsOnly restricts forfeit to the two players of the
	// match. Off by default.
	ForfeitParticipantsOnly bool
}

type gameService struct {
	db          *sql.DB
	matchRepo   repositories.MatchRepository
	queueRepo   repositories.QueueRepository
	problemRepo repositories.ProblemRepository
	profileRepo repositories.ProfileRepository
	cfg         GameServiceConfig
	logger      *slog.Logger
}

func NewGameService(
	db *sql.DB,
	matchRepo repositories.MatchRepository,
	queueRepo repositories.QueueRepository,
	problemRepo repositories.ProblemRepository,
	profileRepo repositories.ProfileRepository,
	cfg GameServiceConfig,
	logger *slog.Logger,
) GameService {
	return &gameService{
		db:          db,
		matchRepo:   matchRepo,
		queueRepo:   queueRepo,
		problemRepo: problemRepo,
		profileRepo: profileRepo,
		cfg:         cfg,
		logger:      logger,
	}
}

// EnqueueOrMatch either pairs the caller with the longest-waiting user or
// registers the caller in the queue. The whole decision runs in a single
// transaction under row locks: the waiting entry is taken FOR UPDATE, so
// two pairing attempts can never consume the same entry, and the unique
// index on queue_entries.user_id rejects a duplicate self-enqueue that
// slipped past the checks.
func (s *gameService) EnqueueOrMatch(ctx context.Context, userID int) (result *QueueResult, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer s.finishTx(tx, &err)

	// Идемпотентный повторный опрос: матч уже идёт.
	ongoing, err := s.matchRepo.FindOngoingByUser(ctx, tx, userID)
	if err == nil {
		return &QueueResult{Matched: true, Match: ongoing}, nil
	}
	if !errors.Is(err, repositories.ErrMatchNotFound) {
		return nil, err
	}
	err = nil

	entry, err := s.queueRepo.FindByUserForUpdate(ctx, tx, userID)
	if err != nil && !errors.Is(err, repositories.ErrQueueEntryNotFound) {
		return nil, err
	}
	if entry != nil {
		if entry.MatchID != nil {
			// Paired earlier, the match is being picked up now; the
			// transitional entry has served its purpose.
			match, getErr := s.matchRepo.GetByID(ctx, *entry.MatchID)
			if getErr != nil {
				err = getErr
				return nil, err
			}
			if err = s.queueRepo.DeleteByUser(ctx, tx, userID); err != nil {
				return nil, err
			}
			return &QueueResult{Matched: true, Match: match}, nil
		}
		err = ErrAlreadyInQueue
		return nil, err
	}

	waiting, err := s.queueRepo.FindOldestWaiting(ctx, tx, userID)
	if err != nil && !errors.Is(err, repositories.ErrQueueEntryNotFound) {
		return nil, err
	}
	err = nil

	if waiting != nil {
		match, pairErr := s.pairWithWaiting(ctx, tx, waiting, userID)
		if pairErr != nil {
			err = pairErr
			return nil, err
		}
		return &QueueResult{Matched: true, Match: match}, nil
	}

	// Nobody is waiting. Re-check the ongoing match before enqueueing: a
	// concurrent pairer may have consumed this user's entry and created a
	// match between the first check and now.
	ongoing, err = s.matchRepo.FindOngoingByUser(ctx, tx, userID)
	if err == nil {
		return &QueueResult{Matched: true, Match: ongoing}, nil
	}
	if !errors.Is(err, repositories.ErrMatchNotFound) {
		return nil, err
	}

	newEntry := &models.QueueEntry{UserID: userID}
	if err = s.queueRepo.Create(ctx, tx, newEntry); err != nil {
		if errors.Is(err, repositories.ErrQueueEntryConflict) {
			err = ErrAlreadyInQueue
		}
		return nil, err
	}
	return &QueueResult{Matched: false}, nil
}

func (s *gameService) pairWithWaiting(ctx context.Context, tx *sql.Tx, waiting *models.QueueEntry, userID int) (*models.Match, error) {
	problem, err := s.problemRepo.Random(ctx, tx)
	if err != nil && !errors.Is(err, repositories.ErrProblemNotFound) {
		return nil, err
	}
	if problem == nil {
		// Пустой банк задач: матч создаётся без задачи и может
		// закончиться только сдачей.
		s.logger.Warn("problem bank is empty, creating match without a problem",
			slog.Int("player1_id", waiting.UserID), slog.Int("player2_id", userID))
	}

	match := &models.Match{
		Player1ID: waiting.UserID,
		Player2ID: userID,
		Status:    models.MatchStatusOngoing,
	}
	if problem != nil {
		match.ProblemID = &problem.ID
		match.Problem = &models.Problem{ID: problem.ID, Question: problem.Question}
	}
	if err := s.matchRepo.Create(ctx, tx, match); err != nil {
		return nil, err
	}

	if err := s.queueRepo.DeleteByUser(ctx, tx, waiting.UserID); err != nil {
		return nil, err
	}
	// Defensive: the caller should not have an entry at this point, but a
	// stale one must not survive the pairing.
	if err := s.queueRepo.DeleteByUser(ctx, tx, userID); err != nil &&
		!errors.Is(err, repositories.ErrQueueEntryNotFound) {
		return nil, err
	}

	s.logger.Info("matched players",
		slog.Int("match_id", match.ID),
		slog.Int("player1_id", match.Player1ID),
		slog.Int("player2_id", match.Player2ID))
	return match, nil
}

// LeaveQueue removes the caller's waiting entry. Added so an abandoned
// client does not leave a stale entry behind forever.
func (s *gameService) LeaveQueue(ctx context.Context, userID int) error {
	err := s.queueRepo.DeleteByUser(ctx, s.db, userID)
	if errors.Is(err, repositories.ErrQueueEntryNotFound) {
		return ErrNotInQueue
	}
	return err
}

func (s *gameService) GetMatch(ctx context.Context, matchID int) (*models.Match, error) {
	match, err := s.matchRepo.GetByID(ctx, matchID)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return nil, ErrMatchNotFound
		}
		return nil, err
	}
	return match, nil
}

func (s *gameService) ListUserMatches(ctx context.Context, userID int) ([]*models.Match, error) {
	matches, err := s.matchRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches for user %d: %w", userID, err)
	}
	return matches, nil
}

// SubmitAnswer checks the submission against the stored answer and, on the
// first correct one, finishes the match and applies the score updates in
// the same transaction. The match row is locked FOR UPDATE for the whole
// decision, so a second correct submission arriving concurrently observes
// the finished status and is rejected.
func (s *gameService) SubmitAnswer(ctx context.Context, matchID, userID int, answer string) (result *AnswerResult, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer s.finishTx(tx, &err)

	match, err := s.matchRepo.GetByIDForUpdate(ctx, tx, matchID)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			err = ErrMatchNotFound
		}
		return nil, err
	}
	if match.Status != models.MatchStatusOngoing {
		err = ErrMatchAlreadyDecided
		return nil, err
	}
	if !match.HasParticipant(userID) {
		err = ErrNotParticipant
		return nil, err
	}
	if strings.TrimSpace(answer) == "" {
		err = ErrAnswerRequired
		return nil, err
	}

	if !s.answerCorrect(ctx, tx, match, answer) {
		return &AnswerResult{Correct: false, Match: match}, nil
	}

	now := time.Now()
	match.WinnerID = &userID
	match.Status = models.MatchStatusFinished
	match.EndedAt = &now
	if err = s.matchRepo.UpdateResult(ctx, tx, match.ID, match.Status, match.WinnerID, now); err != nil {
		return nil, err
	}

	// Обновление счёта в той же транзакции: матч не может стать finished
	// без изменения очков.
	loserID := match.Opponent(userID)
	if err = s.profileRepo.ApplyDelta(ctx, tx, userID, winnerRankDelta, 1, 0); err != nil {
		err = s.wrapScoringError(err, userID)
		return nil, err
	}
	if err = s.profileRepo.ApplyDelta(ctx, tx, loserID, loserRankDelta, 0, 1); err != nil {
		err = s.wrapScoringError(err, loserID)
		return nil, err
	}

	s.logger.Info("match finished",
		slog.Int("match_id", match.ID),
		slog.Int("winner_id", userID),
		slog.Int("loser_id", loserID))
	return &AnswerResult{Correct: true, Match: match}, nil
}

// answerCorrect compares after trimming whitespace, case-insensitively.
// A match without a problem can never be answered correctly.
func (s *gameService) answerCorrect(ctx context.Context, exec repositories.SQLExecutor, match *models.Match, answer string) bool {
	if match.ProblemID == nil {
		return false
	}
	problem, err := s.problemRepo.GetByID(ctx, exec, *match.ProblemID)
	if err != nil {
		s.logger.Error("failed to load problem for answer check",
			slog.Int("match_id", match.ID), slog.Any("error", err))
		return false
	}
	return strings.EqualFold(strings.TrimSpace(answer), strings.TrimSpace(problem.Answer))
}

func (s *gameService) wrapScoringError(err error, userID int) error {
	if errors.Is(err, repositories.ErrProfileNotFound) {
		return fmt.Errorf("%w: profile of user %d not found: %w", ErrScoringFailed, userID, ErrProfileNotFound)
	}
	return fmt.Errorf("%w: %w", ErrScoringFailed, err)
}

// Forfeit ends an ongoing match without a winner. Repeated calls are safe:
// the second one observes the terminal status and gets ErrMatchAlreadyEnded.
func (s *gameService) Forfeit(ctx context.Context, matchID, userID int) (match *models.Match, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer s.finishTx(tx, &err)

	match, err = s.matchRepo.GetByIDForUpdate(ctx, tx, matchID)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			err = ErrMatchNotFound
		}
		return nil, err
	}
	if s.cfg.ForfeitParticipantsOnly && !match.HasParticipant(userID) {
		err = ErrNotParticipant
		return nil, err
	}
	if match.Status != models.MatchStatusOngoing {
		err = ErrMatchAlreadyEnded
		return nil, err
	}

	now := time.Now()
	match.Status = models.MatchStatusForfeited
	match.EndedAt = &now
	if err = s.matchRepo.UpdateResult(ctx, tx, match.ID, match.Status, nil, now); err != nil {
		return nil, err
	}

	s.logger.Info("match forfeited",
		slog.Int("match_id", match.ID), slog.Int("user_id", userID))
	return match, nil
}

// finishTx commits when *errp is nil and rolls back otherwise. Sentinel
// outcomes (already in queue, already decided, ...) also roll back; none
// of those paths have uncommitted writes.
func (s *gameService) finishTx(tx *sql.Tx, errp *error) {
	if p := recover(); p != nil {
		_ = tx.Rollback()
		panic(p)
	}
	if *errp != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Error("failed to roll back transaction",
				slog.Any("error", rbErr), slog.Any("cause", *errp))
		}
		return
	}
	if cErr := tx.Commit(); cErr != nil {
		*errp = fmt.Errorf("failed to commit transaction: %w", cErr)
	}
}
