package postgres

import (
	"context"
	"errors"
	"time"

	timecardDatamodel "github.com/frahmantamala/timecard-management/internal/core/datamodel/timecard"
	"github.com/frahmantamala/timecard-management/internal/timecard"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		db: db,
	}
}

func (r *Repository) withParties(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Preload("Employee").Preload("Employer")
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*timecard.TimeCard, error) {
	var row timecardDatamodel.TimeCard
	if err := r.withParties(ctx).First(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, timecard.ErrEntryNotFound
		}
		return nil, err
	}
	return timecard.FromDataModel(&row), nil
}

func (r *Repository) FindByEmployeeAndDate(ctx context.Context, employeeID int64, date time.Time) (*timecard.TimeCard, error) {
	var row timecardDatamodel.TimeCard
	err := r.withParties(ctx).
		Where("employee_id = ? AND date = ?", employeeID, timecard.NormalizeDate(date)).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, timecard.ErrEntryNotFound
		}
		return nil, err
	}
	return timecard.FromDataModel(&row), nil
}

// Upsert relies on the (employee_id, date) unique index. The conflict update is guarded by
// is_locked so a row locked between read and write is left untouched.
func (r *Repository) Upsert(ctx context.Context, tc *timecard.TimeCard) error {
	row := timecard.ToDataModel(tc)
	res := r.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "employee_id"}, {Name: "date"}},
			DoUpdates: clause.AssignmentColumns([]string{"hours_worked", "notes", "employer_id", "updated_at"}),
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Eq{Column: clause.Column{Table: "time_cards", Name: "is_locked"}, Value: false},
			}},
		}).
		Create(row)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return timecard.ErrEntryLocked
	}
	tc.ID = row.ID
	return nil
}

func (r *Repository) DeleteUnlocked(ctx context.Context, id, employeeID int64) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND employee_id = ? AND is_locked = ?", id, employeeID, false).
		Delete(&timecardDatamodel.TimeCard{})
	return res.RowsAffected, res.Error
}

func (r *Repository) Lock(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).
		Model(&timecardDatamodel.TimeCard{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_locked":  true,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return timecard.ErrEntryNotFound
	}
	return nil
}

func (r *Repository) List(ctx context.Context, filter timecard.ListFilter) ([]*timecard.TimeCard, error) {
	query := r.withParties(ctx).Model(&timecardDatamodel.TimeCard{})
	if filter.EmployeeID != nil {
		query = query.Where("employee_id = ?", *filter.EmployeeID)
	}
	if filter.EmployerID != nil {
		query = query.Where("employer_id = ?", *filter.EmployerID)
	}
	if filter.StartDate != nil {
		query = query.Where("date >= ?", timecard.NormalizeDate(*filter.StartDate))
	}
	if filter.EndDate != nil {
		query = query.Where("date <= ?", timecard.NormalizeDate(*filter.EndDate))
	}

	var rows []timecardDatamodel.TimeCard
	if err := query.Order("date DESC").Order("id DESC").Find(&rows).Error; err != nil {
		return nil, err
	}

	entries := make([]*timecard.TimeCard, 0, len(rows))
	for i := range rows {
		entries = append(entries, timecard.FromDataModel(&rows[i]))
	}
	return entries, nil
}
