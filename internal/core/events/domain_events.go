package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeResetRequested   = "credential.reset_requested"
	EventTypePasswordReset    = "credential.password_reset"
	EventTypeTimecardSaved    = "timecard.submitted"
	EventTypeTimecardDeleted  = "timecard.deleted"
	EventTypeTimecardLocked   = "timecard.locked"
	EventTypeUserCreated      = "user.created"
	EventTypeUserDeleted      = "user.deleted"
	EventTypeUserStatusChange = "user.status_changed"
)

// AllTypes lists every event the application publishes.
var AllTypes = []string{
	EventTypeResetRequested,
	EventTypePasswordReset,
	EventTypeTimecardSaved,
	EventTypeTimecardDeleted,
	EventTypeTimecardLocked,
	EventTypeUserCreated,
	EventTypeUserDeleted,
	EventTypeUserStatusChange,
}

// DomainEvent names the entity it concerns and the user who caused it.
type DomainEvent struct {
	BaseEvent
	Entity   string `json:"entity"`
	EntityID int64  `json:"entity_id"`
	ActorID  int64  `json:"actor_id"`
}

func NewDomainEvent(eventType, entity string, entityID, actorID int64, data map[string]interface{}) *DomainEvent {
	if data == nil {
		data = map[string]interface{}{}
	}
	return &DomainEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      eventType,
			Timestamp: time.Now(),
			Data:      data,
		},
		Entity:   entity,
		EntityID: entityID,
		ActorID:  actorID,
	}
}

func NewResetRequestedEvent(userID int64) *DomainEvent {
	return NewDomainEvent(EventTypeResetRequested, "user", userID, userID, nil)
}

func NewPasswordResetEvent(userID int64, mode string) *DomainEvent {
	return NewDomainEvent(EventTypePasswordReset, "user", userID, userID, map[string]interface{}{
		"mode": mode,
	})
}

func NewTimecardSavedEvent(entryID, employeeID int64, date time.Time, hours string, created bool) *DomainEvent {
	return NewDomainEvent(EventTypeTimecardSaved, "time_card", entryID, employeeID, map[string]interface{}{
		"date":         date.Format("2006-01-02"),
		"hours_worked": hours,
		"created":      created,
	})
}

func NewTimecardDeletedEvent(entryID, actorID int64) *DomainEvent {
	return NewDomainEvent(EventTypeTimecardDeleted, "time_card", entryID, actorID, nil)
}

func NewTimecardLockedEvent(entryID, actorID int64) *DomainEvent {
	return NewDomainEvent(EventTypeTimecardLocked, "time_card", entryID, actorID, nil)
}

func NewUserCreatedEvent(userID, actorID int64, role string) *DomainEvent {
	return NewDomainEvent(EventTypeUserCreated, "user", userID, actorID, map[string]interface{}{
		"role": role,
	})
}

func NewUserDeletedEvent(userID, actorID int64, detached int64) *DomainEvent {
	return NewDomainEvent(EventTypeUserDeleted, "user", userID, actorID, map[string]interface{}{
		"detached_employees": detached,
	})
}

func NewUserStatusChangedEvent(userID, actorID int64, active bool) *DomainEvent {
	return NewDomainEvent(EventTypeUserStatusChange, "user", userID, actorID, map[string]interface{}{
		"is_active": active,
	})
}
