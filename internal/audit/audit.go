package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/frahmantamala/timecard-management/internal/core/events"
)

type Entry struct {
	EventID   string
	Action    string
	Entity    string
	EntityID  *int64
	ActorID   *int64
	Details   string
	CreatedAt time.Time
}

type Store interface {
	// Save is idempotent per EventID.
	Save(ctx context.Context, entry *Entry) error
}

// Recorder persists every published domain event as an audit log row.
type Recorder struct {
	store  Store
	logger *slog.Logger
}

func NewRecorder(store Store, logger *slog.Logger) *Recorder {
	return &Recorder{
		store:  store,
		logger: logger,
	}
}

func (r *Recorder) Register(bus *events.EventBus) {
	for _, eventType := range events.AllTypes {
		bus.Subscribe(eventType, r.Handle)
	}
}

func (r *Recorder) Handle(ctx context.Context, evt events.Event) error {
	entry := &Entry{
		EventID:   evt.EventID(),
		Action:    evt.EventType(),
		Entity:    "unknown",
		Details:   "{}",
		CreatedAt: evt.OccurredAt(),
	}

	if de, ok := evt.(*events.DomainEvent); ok {
		entry.Entity = de.Entity
		if de.EntityID != 0 {
			id := de.EntityID
			entry.EntityID = &id
		}
		if de.ActorID != 0 {
			id := de.ActorID
			entry.ActorID = &id
		}
	}

	if payload := evt.Payload(); payload != nil {
		if b, err := json.Marshal(payload); err == nil && string(b) != "null" {
			entry.Details = string(b)
		} else if err != nil {
			r.logger.Warn("audit details not serializable", "event_id", entry.EventID, "error", err)
		}
	}

	if err := r.store.Save(ctx, entry); err != nil {
		return err
	}
	r.logger.Debug("audit entry recorded", "action", entry.Action, "event_id", entry.EventID)
	return nil
}
