package services

import "errors"

// Общие ошибки сервисного слоя, маппятся на HTTP в handlers.
var (
	// Аутентификация
	ErrAuthInvalidCredentials = errors.New("invalid email or password")
	ErrAuthEmailTaken         = errors.New("email is already taken")
	ErrGoogleTokenInvalid     = errors.New("google id token is invalid")
	ErrPasswordTooShort       = errors.New("password is too short")

	// Профили
	ErrUserNotFound             = errors.New("user not found")
	ErrProfileNotFound          = errors.New("profile not found")
	ErrUnsupportedImageType     = errors.New("unsupported image content type")
	ErrAvatarStorageUnavailable = errors.New("avatar storage is not configured")

	// Игровое ядро: состояние очереди
	ErrAlreadyInQueue = errors.New("user is already waiting in the queue")
	ErrNotInQueue     = errors.New("user is not in the queue")

	// Игровое ядро: состояние матча
	ErrMatchNotFound       = errors.New("match not found")
	ErrMatchAlreadyDecided = errors.New("match has already been decided")
	ErrMatchAlreadyEnded   = errors.New("match has already ended")
	ErrNotParticipant      = errors.New("user is not a participant of this match")
	ErrAnswerRequired      = errors.New("answer field is required")

	// Целостность: выигрыш без обновления счёта невозможен, транзакция
	// откатывается целиком.
	ErrScoringFailed = errors.New("failed to apply score updates")
)
