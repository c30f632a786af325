package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/frahmantamala/timecard-management/internal"
	"github.com/frahmantamala/timecard-management/internal/core/events"
	"github.com/frahmantamala/timecard-management/internal/mail"
	"github.com/frahmantamala/timecard-management/internal/user"
	"golang.org/x/crypto/bcrypt"
)

type RepositoryAPI interface {
	FindUserByEmail(ctx context.Context, email string) (*user.User, error)
	GetUserByID(ctx context.Context, id int64) (*user.User, error)
	// ReplaceResetToken deletes every token of token.UserID and stores the new one.
	ReplaceResetToken(ctx context.Context, token *ResetToken) error
	FindUnusedResetToken(ctx context.Context, token string) (*ResetToken, error)
	// ConsumeResetToken writes the new hash, marks the token used and deletes all tokens of the user.
	ConsumeResetToken(ctx context.Context, token *ResetToken, passwordHash string) error
	// ResetPassword writes the new hash and deletes all tokens of the user.
	ResetPassword(ctx context.Context, userID int64, passwordHash string) error
}

type Options struct {
	BCryptCost          int
	ResetTokenTTL       time.Duration
	FrontendURL         string
	IdentitySyncEnabled bool
	IdentitySyncKey     string
}

// Service is the main auth service with dependencies
type Service struct {
	repo           RepositoryAPI
	tokenGenerator TokenGenerator
	mailer         mail.Mailer
	publisher      events.Publisher
	logger         *slog.Logger
	opts           Options
	now            func() time.Time
	background     sync.WaitGroup
}

// NewService creates a new auth service
func NewService(repo RepositoryAPI, tokenGen TokenGenerator, mailer mail.Mailer, publisher events.Publisher, logger *slog.Logger, opts Options) *Service {
	if opts.BCryptCost == 0 {
		opts.BCryptCost = bcrypt.DefaultCost
	}
	if opts.ResetTokenTTL <= 0 {
		opts.ResetTokenTTL = time.Hour
	}
	return &Service{
		repo:           repo,
		tokenGenerator: tokenGen,
		mailer:         mailer,
		publisher:      publisher,
		logger:         logger,
		opts:           opts,
		now:            time.Now,
	}
}

// Authenticate verifies credentials and issues a bearer token.
// Unknown emails are reported distinctly from bad passwords.
func (s *Service) Authenticate(ctx context.Context, dto LoginDTO) (*LoginResult, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	u, err := s.repo.FindUserByEmail(ctx, user.NormalizeEmail(dto.Email))
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(dto.Password)); err != nil {
		s.logger.Info("login rejected: invalid password", "user_id", u.ID)
		return nil, ErrInvalidPassword
	}

	if !u.IsActive {
		s.logger.Info("login rejected: account deactivated", "user_id", u.ID)
		return nil, ErrAccountDeactivated
	}

	if dto.SelectedRole != "" {
		if selected, _ := internal.ParseRole(dto.SelectedRole); selected != u.Role {
			s.logger.Info("login rejected: role mismatch", "user_id", u.ID, "selected_role", dto.SelectedRole)
			return nil, ErrRoleMismatch
		}
	}

	token, err := s.tokenGenerator.GenerateAccessToken(u.ID, u.Email, u.Role)
	if err != nil {
		return nil, internal.NewInternalError("failed to issue token", err)
	}

	s.logger.Info("user authenticated", "user_id", u.ID, "role", u.Role)
	return &LoginResult{Token: token, User: u}, nil
}

// RequestPasswordReset has no observable outcome. The lookup, token and mail run after it
// returns, so every email costs the caller the same; failures are only logged.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) {
	bctx := context.WithoutCancel(ctx)
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		s.issueResetToken(bctx, email)
	}()
}

// Wait blocks until in-flight password reset requests finish.
func (s *Service) Wait() {
	s.background.Wait()
}

func (s *Service) issueResetToken(ctx context.Context, email string) {
	normalized := user.NormalizeEmail(email)
	if normalized == "" {
		return
	}

	u, err := s.repo.FindUserByEmail(ctx, normalized)
	if err != nil {
		if !errors.Is(err, user.ErrUserNotFound) {
			s.logger.Error("password reset lookup failed", "error", err)
		}
		return
	}
	if !u.IsActive {
		s.logger.Info("password reset skipped: account deactivated", "user_id", u.ID)
		return
	}

	raw, err := GenerateRandomToken()
	if err != nil {
		s.logger.Error("failed to generate reset token", "user_id", u.ID, "error", err)
		return
	}

	token := &ResetToken{
		UserID:    u.ID,
		Token:     raw,
		ExpiresAt: s.now().Add(s.opts.ResetTokenTTL),
	}
	if err := s.repo.ReplaceResetToken(ctx, token); err != nil {
		s.logger.Error("failed to store reset token", "user_id", u.ID, "error", err)
		return
	}

	msg := mail.PasswordResetMessage{
		To:        u.Email,
		Name:      u.Name,
		ResetURL:  mail.BuildResetURL(s.opts.FrontendURL, raw),
		ExpiresAt: token.ExpiresAt,
	}
	if err := s.mailer.SendPasswordReset(ctx, msg); err != nil {
		s.logger.Error("failed to send password reset email", "user_id", u.ID, "error", err)
	}

	s.publish(ctx, events.NewResetRequestedEvent(u.ID))
}

// VerifyResetToken returns the email of the token owner.
func (s *Service) VerifyResetToken(ctx context.Context, raw string) (string, error) {
	token, err := s.lookupResetToken(ctx, raw)
	if err != nil {
		return "", err
	}

	u, err := s.repo.GetUserByID(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return "", ErrResetTokenInvalid
		}
		return "", err
	}
	return u.Email, nil
}

// CompletePasswordReset sets a new password either by token or, in sync mode, by email.
// syncKey is the shared secret presented by the caller; it is only consulted in sync mode.
func (s *Service) CompletePasswordReset(ctx context.Context, dto ResetPasswordDTO, syncKey string) error {
	if dto.SupabaseSync {
		return s.syncPassword(ctx, dto, syncKey)
	}

	if err := dto.Validate(); err != nil {
		return err
	}

	token, err := s.lookupResetToken(ctx, dto.Token)
	if err != nil {
		return err
	}

	hash, err := s.HashPassword(dto.Password)
	if err != nil {
		return internal.NewInternalError("failed to hash password", err)
	}

	if err := s.repo.ConsumeResetToken(ctx, token, hash); err != nil {
		if errors.Is(err, ErrResetTokenInvalid) {
			return err
		}
		if errors.Is(err, user.ErrUserNotFound) {
			return ErrResetTokenInvalid
		}
		s.logger.Error("failed to complete password reset", "user_id", token.UserID, "error", err)
		return err
	}

	s.logger.Info("password reset completed", "user_id", token.UserID)
	s.publish(ctx, events.NewPasswordResetEvent(token.UserID, ResetModeToken))
	return nil
}

func (s *Service) syncPassword(ctx context.Context, dto ResetPasswordDTO, syncKey string) error {
	if !s.opts.IdentitySyncEnabled || s.opts.IdentitySyncKey == "" ||
		subtle.ConstantTimeCompare([]byte(syncKey), []byte(s.opts.IdentitySyncKey)) != 1 {
		s.logger.Warn("password sync rejected: caller not trusted")
		return ErrSyncNotAllowed
	}

	if err := dto.Validate(); err != nil {
		return err
	}

	u, err := s.repo.FindUserByEmail(ctx, user.NormalizeEmail(dto.Email))
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return ErrSyncAccount
		}
		return err
	}
	if !u.IsActive {
		return ErrSyncAccount
	}

	hash, err := s.HashPassword(dto.Password)
	if err != nil {
		return internal.NewInternalError("failed to hash password", err)
	}

	if err := s.repo.ResetPassword(ctx, u.ID, hash); err != nil {
		s.logger.Error("failed to sync password", "user_id", u.ID, "error", err)
		return err
	}

	s.logger.Info("password synced from identity provider", "user_id", u.ID)
	s.publish(ctx, events.NewPasswordResetEvent(u.ID, ResetModeSync))
	return nil
}

func (s *Service) lookupResetToken(ctx context.Context, raw string) (*ResetToken, error) {
	if raw == "" {
		return nil, ErrResetTokenInvalid
	}
	token, err := s.repo.FindUnusedResetToken(ctx, raw)
	if err != nil {
		return nil, err
	}
	if token.Expired(s.now()) {
		return nil, ErrResetTokenExpired
	}
	return token, nil
}

// ValidateAccessToken validates access token and returns claims
func (s *Service) ValidateAccessToken(tokenString string) (*Claims, error) {
	return s.tokenGenerator.ValidateToken(tokenString)
}

func (s *Service) GetCurrentUser(ctx context.Context, userID int64) (*user.User, error) {
	return s.repo.GetUserByID(ctx, userID)
}

// HashPassword creates a bcrypt hash of the password
func (s *Service) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.opts.BCryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (s *Service) publish(ctx context.Context, evt events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.Warn("failed to publish event", "event_type", evt.EventType(), "error", err)
	}
}
