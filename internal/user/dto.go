package user

import (
	"github.com/frahmantamala/timecard-management/internal"
	"github.com/frahmantamala/timecard-management/internal/core/common/validation"
)

// bcrypt ignores input past 72 bytes.
const (
	MinPasswordLength = 6
	MaxPasswordLength = 72
)

type CreateUserDTO struct {
	Email       string  `json:"email"`
	Password    string  `json:"password"`
	Name        string  `json:"name"`
	Role        string  `json:"role"`
	EmployerID  *int64  `json:"employerId,omitempty"`
	Designation *string `json:"designation,omitempty"`
	Department  *string `json:"department,omitempty"`
}

func (d *CreateUserDTO) Normalize() {
	d.Email = NormalizeEmail(d.Email)
	role, _ := internal.ParseRole(d.Role)
	d.Role = string(role)
}

func (d CreateUserDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("email", d.Email).Required().Email()
	v.Field("password", d.Password).Required().MinLength(MinPasswordLength).MaxLength(MaxPasswordLength)
	v.Field("name", d.Name).Required().MaxLength(255)
	v.Field("role", d.Role).Required().OneOf([]string{
		string(internal.RoleAdmin), string(internal.RoleEmployer), string(internal.RoleEmployee),
	}, internal.ErrCodeInvalidRole)
	v.Field("designation", d.Designation).MaxLength(255)
	v.Field("department", d.Department).MaxLength(255)
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type UpdateStatusDTO struct {
	IsActive *bool `json:"isActive"`
}

func (d UpdateStatusDTO) Validate() error {
	if d.IsActive == nil {
		return internal.NewValidationFieldError("isActive", "isActive is required", internal.ErrCodeValidationFailed)
	}
	return nil
}

type UserResponse struct {
	Success bool    `json:"success"`
	User    Profile `json:"user"`
}

type UsersResponse struct {
	Success bool      `json:"success"`
	Users   []Profile `json:"users"`
}
