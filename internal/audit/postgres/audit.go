package postgres

import (
	"context"

	"github.com/frahmantamala/timecard-management/internal/audit"
	auditDatamodel "github.com/frahmantamala/timecard-management/internal/core/datamodel/audit"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Save(ctx context.Context, entry *audit.Entry) error {
	row := &auditDatamodel.AuditLog{
		EventID:   entry.EventID,
		Action:    entry.Action,
		Entity:    entry.Entity,
		EntityID:  entry.EntityID,
		ActorID:   entry.ActorID,
		Details:   entry.Details,
		CreatedAt: entry.CreatedAt,
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(row).Error
}
