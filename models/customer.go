package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/shop_backend/config"
	"bitbucket.org/mmdatafocus/shop_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Customer struct {
	ID         int             `gorm:"primary_key" json:"id"`
	Name       string          `gorm:"size:100;not null" json:"name" binding:"required"`
	Email      string          `gorm:"size:100;uniqueIndex;not null" json:"email" binding:"required"`
	Phone      string          `gorm:"size:20" json:"phone"`
	Tier       CustomerTier    `gorm:"type:enum('Bronze','Silver','Gold','Platinum');default:Bronze" json:"tier"`
	TotalSpend decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_spend"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCustomer struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email" binding:"required"`
	Phone string `json:"phone"`
}

var tierThresholds = []struct {
	tier CustomerTier
	min  decimal.Decimal
}{
	{CustomerTierPlatinum, decimal.NewFromInt(10_000_000)},
	{CustomerTierGold, decimal.NewFromInt(3_000_000)},
	{CustomerTierSilver, decimal.NewFromInt(1_000_000)},
	{CustomerTierBronze, decimal.Zero},
}

// TierForSpend maps cumulative spend to a loyalty tier.
func TierForSpend(spend decimal.Decimal) CustomerTier {
	for _, t := range tierThresholds {
		if spend.GreaterThanOrEqual(t.min) {
			return t.tier
		}
	}
	return CustomerTierBronze
}

func CreateCustomer(ctx context.Context, input *NewCustomer) (*Customer, error) {
	if !utils.IsValidEmail(input.Email) {
		return nil, utils.NewValidationError("email", "invalid email address")
	}
	if err := utils.ValidateUnique[Customer](ctx, "email", input.Email, 0); err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(input.Phone)) > 0 {
		if err := utils.ValidatePhoneNumber(input.Phone, utils.CountryCode); err != nil {
			return nil, utils.NewValidationError("phone", err.Error())
		}
	}

	customer := Customer{
		Name:       input.Name,
		Email:      input.Email,
		Phone:      input.Phone,
		Tier:       CustomerTierBronze,
		TotalSpend: decimal.Zero,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&customer).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

func GetCustomer(ctx context.Context, id int) (*Customer, error) {
	return utils.FetchModel[Customer](ctx, id)
}

// CreditCustomerSpend adds a completed order's amount to the customer's
// lifetime spend and re-evaluates the tier. Runs inside the caller's
// transaction.
func CreditCustomerSpend(tx *gorm.DB, ctx context.Context, customerId int, amount decimal.Decimal) error {
	return adjustCustomerSpend(tx, ctx, customerId, amount)
}

// ReverseCustomerSpend removes a returned order's amount from the
// customer's lifetime spend (floored at zero) and re-evaluates the tier.
func ReverseCustomerSpend(tx *gorm.DB, ctx context.Context, customerId int, amount decimal.Decimal) error {
	return adjustCustomerSpend(tx, ctx, customerId, amount.Neg())
}

func adjustCustomerSpend(tx *gorm.DB, ctx context.Context, customerId int, delta decimal.Decimal) error {
	if tx == nil {
		return errors.New("tx is nil")
	}

	var customer Customer
	if err := tx.WithContext(ctx).First(&customer, customerId).Error; err != nil {
		return utils.NewNotFoundError("customer", customerId)
	}

	spend := customer.TotalSpend.Add(delta)
	if spend.IsNegative() {
		spend = decimal.Zero
	}

	return tx.WithContext(ctx).Model(&Customer{}).Where("id = ?", customerId).
		Updates(map[string]interface{}{
			"total_spend": spend,
			"tier":        TierForSpend(spend),
		}).Error
}
