package timecard

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/frahmantamala/timecard-management/internal"
	"github.com/frahmantamala/timecard-management/internal/core/events"
	"github.com/frahmantamala/timecard-management/internal/user"
)

type RepositoryAPI interface {
	GetByID(ctx context.Context, id int64) (*TimeCard, error)
	FindByEmployeeAndDate(ctx context.Context, employeeID int64, date time.Time) (*TimeCard, error)
	// Upsert inserts or overwrites the (employee, date) row unless it is locked, in which case ErrEntryLocked is returned.
	Upsert(ctx context.Context, tc *TimeCard) error
	// DeleteUnlocked removes the entry only while it is unlocked and owned by employeeID.
	DeleteUnlocked(ctx context.Context, id, employeeID int64) (int64, error)
	Lock(ctx context.Context, id int64) error
	List(ctx context.Context, filter ListFilter) ([]*TimeCard, error)
}

type UserLookup interface {
	GetByID(ctx context.Context, id int64) (*user.User, error)
}

type Service struct {
	repo      RepositoryAPI
	users     UserLookup
	publisher events.Publisher
	logger    *slog.Logger
}

func NewService(repo RepositoryAPI, users UserLookup, publisher events.Publisher, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		users:     users,
		publisher: publisher,
		logger:    logger,
	}
}

// SubmitEntry records hours for the actor on a calendar date. A second submission for the same
// date overwrites the first. The returned bool is true when a new row was created.
func (s *Service) SubmitEntry(ctx context.Context, actor *internal.User, dto SubmitEntryDTO) (*TimeCard, bool, error) {
	input, err := dto.Parse()
	if err != nil {
		return nil, false, err
	}
	if actor == nil {
		return nil, false, internal.ErrUnauthenticated
	}

	employerID, err := s.resolveEmployer(ctx, actor)
	if err != nil {
		return nil, false, err
	}

	existing, err := s.repo.FindByEmployeeAndDate(ctx, actor.ID, input.Date)
	if err != nil && !errors.Is(err, ErrEntryNotFound) {
		return nil, false, err
	}
	if existing != nil && existing.IsLocked {
		return nil, false, ErrEntryLocked
	}

	tc := &TimeCard{
		EmployeeID:  actor.ID,
		EmployerID:  employerID,
		Date:        input.Date,
		HoursWorked: input.HoursWorked,
		Notes:       input.Notes,
	}
	if err := s.repo.Upsert(ctx, tc); err != nil {
		return nil, false, err
	}

	saved, err := s.repo.FindByEmployeeAndDate(ctx, actor.ID, input.Date)
	if err != nil {
		return nil, false, err
	}

	created := existing == nil
	s.logger.Info("time entry saved",
		"entry_id", saved.ID,
		"employee_id", saved.EmployeeID,
		"date", saved.Date.Format(DateLayout),
		"created", created)
	s.publish(ctx, events.NewTimecardSavedEvent(saved.ID, saved.EmployeeID, saved.Date, saved.HoursWorked.StringFixed(2), created))

	return saved, created, nil
}

// Employees bill to their assigned employer; employers bill to themselves.
func (s *Service) resolveEmployer(ctx context.Context, actor *internal.User) (*int64, error) {
	switch actor.Role {
	case internal.RoleEmployer:
		id := actor.ID
		return &id, nil
	case internal.RoleEmployee:
		u, err := s.users.GetByID(ctx, actor.ID)
		if err != nil {
			if errors.Is(err, user.ErrUserNotFound) {
				return nil, internal.ErrUnauthenticated
			}
			return nil, err
		}
		if u.EmployerID == nil {
			return nil, ErrEmployerNotAssigned
		}
		return u.EmployerID, nil
	default:
		return nil, internal.ErrForbidden
	}
}

func (s *Service) DeleteEntry(ctx context.Context, actorID, entryID int64) error {
	tc, err := s.repo.GetByID(ctx, entryID)
	if err != nil {
		return err
	}
	if tc.EmployeeID != actorID {
		return ErrNotEntryOwner
	}
	if tc.IsLocked {
		return ErrEntryLocked
	}

	n, err := s.repo.DeleteUnlocked(ctx, entryID, actorID)
	if err != nil {
		return err
	}
	if n == 0 {
		// changed underneath us: gone or locked
		if _, err := s.repo.GetByID(ctx, entryID); errors.Is(err, ErrEntryNotFound) {
			return ErrEntryNotFound
		}
		return ErrEntryLocked
	}

	s.logger.Info("time entry deleted", "entry_id", entryID, "employee_id", actorID)
	s.publish(ctx, events.NewTimecardDeletedEvent(entryID, actorID))
	return nil
}

// ListEntries returns entries visible in scope, newest date first.
func (s *Service) ListEntries(ctx context.Context, scope Scope, actorID int64, q ListQuery) ([]*TimeCard, error) {
	filter := ListFilter{StartDate: q.StartDate, EndDate: q.EndDate}
	switch scope {
	case ScopeEmployee:
		filter.EmployeeID = &actorID
	case ScopeEmployer:
		filter.EmployerID = &actorID
	case ScopeAdmin:
		filter.EmployeeID = q.EmployeeID
		filter.EmployerID = q.EmployerID
	default:
		return nil, internal.ErrForbidden
	}
	return s.repo.List(ctx, filter)
}

// LockEntry freezes an entry against further edits and deletion. Locking twice is a no-op.
func (s *Service) LockEntry(ctx context.Context, actorID, entryID int64) (*TimeCard, error) {
	if err := s.repo.Lock(ctx, entryID); err != nil {
		return nil, err
	}
	tc, err := s.repo.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("time entry locked", "entry_id", entryID, "actor_id", actorID)
	s.publish(ctx, events.NewTimecardLockedEvent(entryID, actorID))
	return tc, nil
}

func (s *Service) publish(ctx context.Context, evt events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.Warn("failed to publish event", "event_type", evt.EventType(), "error", err)
	}
}
