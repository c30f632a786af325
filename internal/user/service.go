package user

import (
	"context"
	"errors"
	"log/slog"

	"github.com/frahmantamala/timecard-management/internal"
	"github.com/frahmantamala/timecard-management/internal/core/events"
)

type RepositoryAPI interface {
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context) ([]*User, error)
	Create(ctx context.Context, u *User) error
	SetActive(ctx context.Context, id int64, active bool) error
	// DeleteAndDetach removes the user and clears employer_id on its employees, returning how many were detached.
	DeleteAndDetach(ctx context.Context, id int64) (int64, error)
}

type PasswordHasher interface {
	HashPassword(password string) (string, error)
}

type Service struct {
	repo      RepositoryAPI
	hasher    PasswordHasher
	publisher events.Publisher
	logger    *slog.Logger
}

func NewService(repo RepositoryAPI, hasher PasswordHasher, publisher events.Publisher, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		hasher:    hasher,
		publisher: publisher,
		logger:    logger,
	}
}

func (s *Service) GetByID(ctx context.Context, id int64) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]*User, error) {
	return s.repo.List(ctx)
}

// Create is the only way accounts come into existence.
func (s *Service) Create(ctx context.Context, actorID int64, dto CreateUserDTO) (*User, error) {
	dto.Normalize()
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	role := internal.Role(dto.Role)
	var employerID *int64
	if role == internal.RoleEmployee && dto.EmployerID != nil {
		employer, err := s.repo.GetByID(ctx, *dto.EmployerID)
		if err != nil {
			if errors.Is(err, ErrUserNotFound) {
				return nil, ErrInvalidEmployer
			}
			return nil, err
		}
		if employer.Role != internal.RoleEmployer || !employer.IsActive {
			return nil, ErrInvalidEmployer
		}
		employerID = &employer.ID
	}

	if _, err := s.repo.GetByEmail(ctx, dto.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	hash, err := s.hasher.HashPassword(dto.Password)
	if err != nil {
		return nil, internal.NewInternalError("failed to hash password", err)
	}

	u := &User{
		Email:        dto.Email,
		Name:         dto.Name,
		PasswordHash: hash,
		Role:         role,
		EmployerID:   employerID,
		Designation:  dto.Designation,
		Department:   dto.Department,
		IsActive:     true,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		s.logger.Error("failed to create user", "email", dto.Email, "error", err)
		return nil, err
	}

	s.logger.Info("user created", "user_id", u.ID, "role", u.Role, "actor_id", actorID)
	s.publish(ctx, events.NewUserCreatedEvent(u.ID, actorID, string(u.Role)))
	return u, nil
}

func (s *Service) SetActive(ctx context.Context, actorID, id int64, active bool) (*User, error) {
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return nil, err
	}
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user status changed", "user_id", id, "is_active", active, "actor_id", actorID)
	s.publish(ctx, events.NewUserStatusChangedEvent(id, actorID, active))
	return u, nil
}

func (s *Service) Delete(ctx context.Context, actorID, id int64) error {
	if actorID == id {
		return ErrCannotDeleteSelf
	}
	detached, err := s.repo.DeleteAndDetach(ctx, id)
	if err != nil {
		return err
	}
	s.logger.Info("user deleted", "user_id", id, "detached_employees", detached, "actor_id", actorID)
	s.publish(ctx, events.NewUserDeletedEvent(id, actorID, detached))
	return nil
}

func (s *Service) publish(ctx context.Context, evt events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.Warn("failed to publish event", "event_type", evt.EventType(), "error", err)
	}
}
