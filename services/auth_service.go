package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Nurbek02/brainduel/models"
	"github.com/Nurbek02/brainduel/repositories"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

// GoogleTokenVerifier validates a Google ID token and returns the e-mail it
// asserts. Implemented in the auth package against the tokeninfo endpoint.
type GoogleTokenVerifier interface {
	Verify(ctx context.Context, idToken string) (email string, err error)
}

type AuthService interface {
	Register(ctx context.Context, input RegisterInput) (*models.User, error)
	Login(ctx context.Context, input LoginInput) (*models.User, error)
	// LoginWithGoogle verifies the ID token and finds or creates the user
	// behind its e-mail. A profile row is ensured on first login.
	LoginWithGoogle(ctx context.Context, idToken string) (*models.User, error)
}

type RegisterInput struct {
	Nickname string `json:"nickname"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authService struct {
	userRepo       repositories.UserRepository
	profileRepo    repositories.ProfileRepository
	googleVerifier GoogleTokenVerifier
}

func NewAuthService(
	userRepo repositories.UserRepository,
	profileRepo repositories.ProfileRepository,
	googleVerifier GoogleTokenVerifier,
) AuthService {
	return &authService{
		userRepo:       userRepo,
		profileRepo:    profileRepo,
		googleVerifier: googleVerifier,
	}
}

func (s *authService) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	if len(input.Password) < minPasswordLength {
		return nil, ErrPasswordTooShort
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("ошибка хеширования пароля: %w", err)
	}
	hash := string(hashedPassword)

	user := &models.User{
		Nickname:     input.Nickname,
		Email:        input.Email,
		PasswordHash: &hash,
	}
	if err := s.createUserWithProfile(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *authService) Login(ctx context.Context, input LoginInput) (*models.User, error) {
	user, err := s.userRepo.GetByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, ErrAuthInvalidCredentials
		}
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}

	if user.PasswordHash == nil {
		// Google-only account, no password to compare.
		return nil, ErrAuthInvalidCredentials
	}
	err = bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(input.Password))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, ErrAuthInvalidCredentials
		}
		return nil, fmt.Errorf("failed to compare password hash: %w", err)
	}

	user.PasswordHash = nil
	return user, nil
}

func (s *authService) LoginWithGoogle(ctx context.Context, idToken string) (*models.User, error) {
	email, err := s.googleVerifier.Verify(ctx, idToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGoogleTokenInvalid, err)
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err == nil {
		user.PasswordHash = nil
		return user, nil
	}
	if !errors.Is(err, repositories.ErrUserNotFound) {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}

	// Первый вход через Google: создаём пользователя без пароля.
	user = &models.User{
		Nickname: nicknameFromEmail(email),
		Email:    email,
	}
	if err := s.createUserWithProfile(ctx, user); err != nil {
		if errors.Is(err, ErrAuthEmailTaken) {
			// Lost a race against a concurrent first login; the user row
			// exists now.
			return s.userRepo.GetByEmail(ctx, email)
		}
		return nil, err
	}
	return user, nil
}

func (s *authService) createUserWithProfile(ctx context.Context, user *models.User) error {
	// Note: user and profile are inserted without a shared transaction; the
	// profile insert is idempotent and re-run on the next Google login.
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrUserEmailConflict) {
			return ErrAuthEmailTaken
		}
		return fmt.Errorf("ошибка создания пользователя: %w", err)
	}
	profile := &models.Profile{UserID: user.ID}
	if err := s.profileRepo.Create(ctx, profile); err != nil {
		return fmt.Errorf("ошибка создания профиля: %w", err)
	}
	return nil
}

func nicknameFromEmail(email string) string {
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return email
}
