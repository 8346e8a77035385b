package models

import (
	"context"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/shop_backend/config"
	"bitbucket.org/mmdatafocus/shop_backend/utils"
)

type Supplier struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Email     string    `gorm:"size:100" json:"email"`
	Phone     string    `gorm:"size:20" json:"phone"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewSupplier struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

func (input *NewSupplier) validate(ctx context.Context) error {
	if err := utils.ValidateUnique[Supplier](ctx, "name", input.Name, 0); err != nil {
		return err
	}
	if len(strings.TrimSpace(input.Email)) > 0 && !utils.IsValidEmail(input.Email) {
		return utils.NewValidationError("email", "invalid email address")
	}
	if len(strings.TrimSpace(input.Phone)) > 0 {
		if err := utils.ValidatePhoneNumber(input.Phone, utils.CountryCode); err != nil {
			return utils.NewValidationError("phone", err.Error())
		}
	}
	return nil
}

func CreateSupplier(ctx context.Context, input *NewSupplier) (*Supplier, error) {
	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	supplier := Supplier{
		Name:     input.Name,
		Email:    input.Email,
		Phone:    input.Phone,
		IsActive: utils.NewTrue(),
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&supplier).Error; err != nil {
		return nil, err
	}
	return &supplier, nil
}
