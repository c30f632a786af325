package audit

import "time"

type AuditLog struct {
	ID        int64     `gorm:"primaryKey"`
	EventID   string    `gorm:"column:event_id;size:36;uniqueIndex;not null"`
	Action    string    `gorm:"column:action;not null;index"`
	Entity    string    `gorm:"column:entity;not null"`
	EntityID  *int64    `gorm:"column:entity_id"`
	ActorID   *int64    `gorm:"column:actor_id;index"`
	Details   string    `gorm:"column:details"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}
