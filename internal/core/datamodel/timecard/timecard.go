package timecard

import (
	"time"

	userDatamodel "github.com/frahmantamala/timecard-management/internal/core/datamodel/user"
	"github.com/shopspring/decimal"
)

type TimeCard struct {
	ID          int64           `gorm:"primaryKey"`
	EmployeeID  int64           `gorm:"column:employee_id;not null;uniqueIndex:idx_time_cards_employee_date,priority:1"`
	EmployerID  *int64          `gorm:"column:employer_id;index"`
	Date        time.Time       `gorm:"column:date;type:date;not null;uniqueIndex:idx_time_cards_employee_date,priority:2"`
	HoursWorked decimal.Decimal `gorm:"column:hours_worked;type:numeric(5,2);not null"`
	Notes       *string         `gorm:"column:notes"`
	IsLocked    bool            `gorm:"column:is_locked;not null"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime"`

	Employee *userDatamodel.User `gorm:"foreignKey:EmployeeID"`
	Employer *userDatamodel.User `gorm:"foreignKey:EmployerID"`
}

func (TimeCard) TableName() string {
	return "time_cards"
}
