package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/frahmantamala/timecard-management/internal/auth"
	resetDatamodel "github.com/frahmantamala/timecard-management/internal/core/datamodel/passwordreset"
	userDatamodel "github.com/frahmantamala/timecard-management/internal/core/datamodel/user"
	"github.com/frahmantamala/timecard-management/internal/user"
	"gorm.io/gorm"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		db: db,
	}
}

func (r *Repository) FindUserByEmail(ctx context.Context, email string) (*user.User, error) {
	var row userDatamodel.User
	err := r.db.WithContext(ctx).Where("email = ?", email).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, user.ErrUserNotFound
		}
		return nil, err
	}
	return user.FromDataModel(&row), nil
}

func (r *Repository) GetUserByID(ctx context.Context, id int64) (*user.User, error) {
	var row userDatamodel.User
	if err := r.db.WithContext(ctx).First(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, user.ErrUserNotFound
		}
		return nil, err
	}
	return user.FromDataModel(&row), nil
}

func (r *Repository) ReplaceResetToken(ctx context.Context, token *auth.ResetToken) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", token.UserID).Delete(&resetDatamodel.PasswordResetToken{}).Error; err != nil {
			return err
		}

		row := &resetDatamodel.PasswordResetToken{
			UserID:    token.UserID,
			Token:     token.Token,
			ExpiresAt: token.ExpiresAt.UTC(),
			Used:      false,
		}
		if err := tx.Create(row).Error; err != nil {
			return err
		}

		token.ID = row.ID
		token.CreatedAt = row.CreatedAt
		return nil
	})
}

func (r *Repository) FindUnusedResetToken(ctx context.Context, token string) (*auth.ResetToken, error) {
	var row resetDatamodel.PasswordResetToken
	err := r.db.WithContext(ctx).
		Where("token = ? AND used = ?", token, false).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, auth.ErrResetTokenInvalid
		}
		return nil, err
	}
	return toResetToken(&row), nil
}

func (r *Repository) ConsumeResetToken(ctx context.Context, token *auth.ResetToken, passwordHash string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// a concurrent reset with the same token loses here
		res := tx.Model(&resetDatamodel.PasswordResetToken{}).
			Where("id = ? AND used = ?", token.ID, false).
			Update("used", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return auth.ErrResetTokenInvalid
		}

		if err := updatePassword(tx, token.UserID, passwordHash); err != nil {
			return err
		}

		return tx.Where("user_id = ?", token.UserID).Delete(&resetDatamodel.PasswordResetToken{}).Error
	})
}

func (r *Repository) ResetPassword(ctx context.Context, userID int64, passwordHash string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := updatePassword(tx, userID, passwordHash); err != nil {
			return err
		}
		return tx.Where("user_id = ?", userID).Delete(&resetDatamodel.PasswordResetToken{}).Error
	})
}

func updatePassword(tx *gorm.DB, userID int64, passwordHash string) error {
	res := tx.Model(&userDatamodel.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"password_hash": passwordHash,
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return user.ErrUserNotFound
	}
	return nil
}

func toResetToken(row *resetDatamodel.PasswordResetToken) *auth.ResetToken {
	return &auth.ResetToken{
		ID:        row.ID,
		UserID:    row.UserID,
		Token:     row.Token,
		ExpiresAt: row.ExpiresAt,
		Used:      row.Used,
		CreatedAt: row.CreatedAt,
	}
}
