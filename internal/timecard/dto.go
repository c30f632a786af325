package timecard

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/frahmantamala/timecard-management/internal"
	"github.com/frahmantamala/timecard-management/internal/core/common/validation"
	"github.com/shopspring/decimal"
)

const MaxNotesLength = 2000

type SubmitEntryDTO struct {
	Date        string   `json:"date"`
	HoursWorked *float64 `json:"hoursWorked"`
	Notes       *string  `json:"notes,omitempty"`
}

// EntryInput is a validated submission.
type EntryInput struct {
	Date        time.Time
	HoursWorked decimal.Decimal
	Notes       *string
}

func (d SubmitEntryDTO) Parse() (*EntryInput, error) {
	v := validation.NewValidator()

	date, dateOK := ParseDate(strings.TrimSpace(d.Date))
	v.Field("date", d.Date).Required().Custom(func(interface{}) *internal.AppError {
		if !dateOK {
			return internal.NewValidationFieldError("date", "date must be a valid calendar date (YYYY-MM-DD)", internal.ErrCodeInvalidDate)
		}
		return nil
	})

	var hours decimal.Decimal
	if d.HoursWorked != nil {
		hours = decimal.NewFromFloat(*d.HoursWorked)
	}
	v.Field("hoursWorked", d.HoursWorked).Required()
	v.Field("hoursWorked", hours).DecimalRange(MinHours, MaxHours, internal.ErrCodeInvalidHours)
	v.Field("notes", d.Notes).MaxLength(MaxNotesLength)

	if err := v.Validate(); err != nil {
		return nil, err
	}

	var notes *string
	if d.Notes != nil {
		if trimmed := strings.TrimSpace(*d.Notes); trimmed != "" {
			notes = &trimmed
		}
	}

	return &EntryInput{
		Date:        date,
		HoursWorked: hours.Round(2),
		Notes:       notes,
	}, nil
}

type Scope string

const (
	ScopeEmployee Scope = "employee"
	ScopeEmployer Scope = "employer"
	ScopeAdmin    Scope = "admin"
)

type ListFilter struct {
	EmployeeID *int64
	EmployerID *int64
	StartDate  *time.Time
	EndDate    *time.Time
}

// ListQuery holds the optional query string filters. EmployeeID and EmployerID only apply to the admin scope.
type ListQuery struct {
	StartDate  *time.Time
	EndDate    *time.Time
	EmployeeID *int64
	EmployerID *int64
}

func ParseListQuery(values url.Values) (ListQuery, error) {
	var q ListQuery
	var errs []internal.ValidationError

	parseDate := func(field string) *time.Time {
		raw := strings.TrimSpace(values.Get(field))
		if raw == "" {
			return nil
		}
		d, ok := ParseDate(raw)
		if !ok {
			errs = append(errs, internal.ValidationError{Field: field, Message: field + " must be a valid date (YYYY-MM-DD)", Code: string(internal.ErrCodeInvalidDate)})
			return nil
		}
		return &d
	}
	parseID := func(field string) *int64 {
		raw := strings.TrimSpace(values.Get(field))
		if raw == "" {
			return nil
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			errs = append(errs, internal.ValidationError{Field: field, Message: field + " must be a positive integer", Code: string(internal.ErrCodeValidationFailed)})
			return nil
		}
		return &id
	}

	q.StartDate = parseDate("startDate")
	q.EndDate = parseDate("endDate")
	q.EmployeeID = parseID("employeeId")
	q.EmployerID = parseID("employerId")

	if q.StartDate != nil && q.EndDate != nil && q.StartDate.After(*q.EndDate) {
		errs = append(errs, internal.ValidationError{Field: "startDate", Message: "startDate must not be after endDate", Code: string(internal.ErrCodeInvalidDate)})
	}

	if len(errs) > 0 {
		return ListQuery{}, internal.NewValidationErrors(errs)
	}
	return q, nil
}

type EntryResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Entry   View   `json:"entry"`
}

type EntriesResponse struct {
	Success bool   `json:"success"`
	Count   int    `json:"count"`
	Entries []View `json:"entries"`
}
