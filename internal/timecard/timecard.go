package timecard

import (
	"time"

	"github.com/frahmantamala/timecard-management/internal"
	timecardDatamodel "github.com/frahmantamala/timecard-management/internal/core/datamodel/timecard"
	userDatamodel "github.com/frahmantamala/timecard-management/internal/core/datamodel/user"
	"github.com/shopspring/decimal"
)

const DateLayout = "2006-01-02"

var (
	MinHours = decimal.Zero
	MaxHours = decimal.NewFromInt(24)
)

type TimeCard struct {
	ID          int64
	EmployeeID  int64
	EmployerID  *int64
	Date        time.Time
	HoursWorked decimal.Decimal
	Notes       *string
	IsLocked    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Employee *Party
	Employer *Party
}

// Party is the denormalized name/email of an employee or employer attached to an entry.
type Party struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type View struct {
	ID          int64     `json:"id"`
	EmployeeID  int64     `json:"employeeId"`
	EmployerID  *int64    `json:"employerId"`
	Date        string    `json:"date"`
	HoursWorked float64   `json:"hoursWorked"`
	Notes       *string   `json:"notes"`
	IsLocked    bool      `json:"isLocked"`
	Employee    *Party    `json:"employee,omitempty"`
	Employer    *Party    `json:"employer,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (t *TimeCard) ToView() View {
	return View{
		ID:          t.ID,
		EmployeeID:  t.EmployeeID,
		EmployerID:  t.EmployerID,
		Date:        t.Date.Format(DateLayout),
		HoursWorked: t.HoursWorked.InexactFloat64(),
		Notes:       t.Notes,
		IsLocked:    t.IsLocked,
		Employee:    t.Employee,
		Employer:    t.Employer,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

// NormalizeDate drops the time of day, keeping the calendar date as written by the submitter.
func NormalizeDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate accepts YYYY-MM-DD or an RFC 3339 timestamp.
func ParseDate(s string) (time.Time, bool) {
	if t, err := time.Parse(DateLayout, s); err == nil {
		return NormalizeDate(t), true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return NormalizeDate(t), true
	}
	return time.Time{}, false
}

var (
	ErrEntryNotFound       = internal.NewNotFoundError("Time entry not found", internal.ErrCodeEntryNotFound)
	ErrEntryLocked         = internal.NewForbiddenError("This time entry is locked and cannot be modified", internal.ErrCodeEntryLocked)
	ErrNotEntryOwner       = internal.NewForbiddenError("You can only delete your own time entries", internal.ErrCodeNotEntryOwner)
	ErrEmployerNotAssigned = internal.NewValidationError("No employer is assigned to your account", internal.ErrCodeEmployerNotAssigned)
)

func ToDataModel(t *TimeCard) *timecardDatamodel.TimeCard {
	return &timecardDatamodel.TimeCard{
		ID:          t.ID,
		EmployeeID:  t.EmployeeID,
		EmployerID:  t.EmployerID,
		Date:        NormalizeDate(t.Date),
		HoursWorked: t.HoursWorked,
		Notes:       t.Notes,
		IsLocked:    t.IsLocked,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func FromDataModel(row *timecardDatamodel.TimeCard) *TimeCard {
	return &TimeCard{
		ID:          row.ID,
		EmployeeID:  row.EmployeeID,
		EmployerID:  row.EmployerID,
		Date:        NormalizeDate(row.Date),
		HoursWorked: row.HoursWorked,
		Notes:       row.Notes,
		IsLocked:    row.IsLocked,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
		Employee:    toParty(row.Employee),
		Employer:    toParty(row.Employer),
	}
}

func toParty(u *userDatamodel.User) *Party {
	if u == nil {
		return nil
	}
	return &Party{ID: u.ID, Name: u.Name, Email: u.Email}
}
