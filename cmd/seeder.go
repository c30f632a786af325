package cmd

import (
	"errors"
	"fmt"
	"log"
	"time"

	timecardDatamodel "github.com/frahmantamala/timecard-management/internal/core/datamodel/timecard"
	userDatamodel "github.com/frahmantamala/timecard-management/internal/core/datamodel/user"
	"github.com/frahmantamala/timecard-management/internal"
	"github.com/frahmantamala/timecard-management/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const seedPassword = "password"

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with an admin, an employer with two employees, and a week of time entries for development and testing purposes.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		sqlDB, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer sqlDB.Close()

		db, err := initGorm(sqlDB.DB, logger.LoggerWrapper())
		if err != nil {
			log.Fatalf("failed to init gorm: %v", err)
		}

		if clearData {
			if err := clearSeedData(db); err != nil {
				log.Fatalf("failed to clear data: %v", err)
			}
			fmt.Println("Cleared existing users, time cards and reset tokens")
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(seedPassword), cfg.Security.BCryptCost)
		if err != nil {
			log.Fatalf("failed to hash seed password: %v", err)
		}

		admin := ensureUser(db, &userDatamodel.User{
			Email: "admin@timecard.local", Name: "Site Admin", Role: internal.RoleAdmin.String(),
		}, string(hash))

		employer := ensureUser(db, &userDatamodel.User{
			Email: "employer@timecard.local", Name: "Acme Supervisor", Role: internal.RoleEmployer.String(),
			Department: strPtr("Operations"),
		}, string(hash))

		employees := []*userDatamodel.User{
			ensureUser(db, &userDatamodel.User{
				Email: "alice@timecard.local", Name: "Alice Worker", Role: internal.RoleEmployee.String(),
				EmployerID: &employer.ID, Designation: strPtr("Technician"), Department: strPtr("Operations"),
			}, string(hash)),
			ensureUser(db, &userDatamodel.User{
				Email: "bob@timecard.local", Name: "Bob Worker", Role: internal.RoleEmployee.String(),
				EmployerID: &employer.ID, Designation: strPtr("Driver"), Department: strPtr("Logistics"),
			}, string(hash)),
		}

		seeded := 0
		today := time.Now().UTC().Truncate(24 * time.Hour)
		for _, emp := range employees {
			for day := 1; day <= 5; day++ {
				card := &timecardDatamodel.TimeCard{
					EmployeeID:  emp.ID,
					EmployerID:  emp.EmployerID,
					Date:        today.AddDate(0, 0, -day),
					HoursWorked: decimal.NewFromFloat(7.5 + float64(day%3)*0.25),
					Notes:       strPtr(fmt.Sprintf("Seeded shift %d", day)),
					// the oldest entry arrives locked so the lock path can be exercised right away
					IsLocked: day == 5,
				}
				res := db.Clauses(clause.OnConflict{DoNothing: true}).Omit(clause.Associations).Create(card)
				if res.Error != nil {
					log.Fatalf("failed to seed time card for %s: %v", emp.Email, res.Error)
				}
				seeded += int(res.RowsAffected)
			}
		}

		fmt.Println("Seeded admin user:", admin.Email)
		fmt.Println("Seeded employer user:", employer.Email)
		for _, emp := range employees {
			fmt.Println("Seeded employee user:", emp.Email)
		}
		fmt.Printf("Seeded %d time cards. All accounts use password %q\n", seeded, seedPassword)
	},
}

// ensureUser inserts u unless the email is taken and returns the stored row either way.
func ensureUser(db *gorm.DB, u *userDatamodel.User, hash string) *userDatamodel.User {
	var existing userDatamodel.User
	err := db.Where("email = ?", u.Email).Take(&existing).Error
	if err == nil {
		fmt.Println("user already exists:", u.Email)
		return &existing
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Fatalf("failed to look up %s: %v", u.Email, err)
	}

	u.PasswordHash = hash
	u.IsActive = true
	if err := db.Create(u).Error; err != nil {
		log.Fatalf("failed to insert %s: %v", u.Email, err)
	}
	return u
}

func clearSeedData(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		for _, table := range []string{"time_cards", "password_reset_tokens", "audit_logs", "users"} {
			if err := tx.Exec("DELETE FROM " + table).Error; err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		return nil
	})
}

func strPtr(s string) *string { return &s }
