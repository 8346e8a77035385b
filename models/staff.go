package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/shop_backend/config"
	"bitbucket.org/mmdatafocus/shop_backend/utils"
)

type Staff struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Username  string    `gorm:"size:100;uniqueIndex;not null" json:"username" binding:"required"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	Password  string    `gorm:"size:255;not null" json:"-"`
	Role      StaffRole `gorm:"type:enum('Admin','Manager','Staff');default:Staff" json:"role"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewStaff struct {
	Username string    `json:"username" binding:"required"`
	Name     string    `json:"name" binding:"required"`
	Password string    `json:"password" binding:"required,min=8"`
	Role     StaffRole `json:"role"`
}

func CreateStaff(ctx context.Context, input *NewStaff) (*Staff, error) {
	if err := utils.ValidateUnique[Staff](ctx, "username", input.Username, 0); err != nil {
		return nil, err
	}

	hashed, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	role := input.Role
	if role == "" {
		role = StaffRoleStaff
	}

	staff := Staff{
		Username: input.Username,
		Name:     input.Name,
		Password: hashed,
		Role:     role,
		IsActive: utils.NewTrue(),
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&staff).Error; err != nil {
		return nil, err
	}
	return &staff, nil
}

// StaffLogin verifies credentials and returns a signed JWT.
func StaffLogin(ctx context.Context, username, password string) (string, error) {
	db := config.GetDB()
	var staff Staff
	if err := db.WithContext(ctx).Where("username = ?", username).First(&staff).Error; err != nil {
		return "", errors.New("invalid username or password")
	}
	if staff.IsActive != nil && !*staff.IsActive {
		return "", errors.New("account is disabled")
	}
	if err := utils.ComparePassword(staff.Password, password); err != nil {
		return "", errors.New("invalid username or password")
	}
	return utils.JwtGenerate(staff.ID, string(staff.Role))
}
