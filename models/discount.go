package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/shop_backend/config"
	"bitbucket.org/mmdatafocus/shop_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Discount struct {
	ID                int             `gorm:"primary_key" json:"id"`
	Code              string          `gorm:"size:100;uniqueIndex;not null" json:"code" binding:"required"`
	Value             decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"value" binding:"required"`
	Type              DiscountType    `gorm:"type:enum('P','A');not null" json:"type" binding:"required"`
	StartDate         time.Time       `gorm:"index;not null" json:"start_date" binding:"required"`
	EndDate           time.Time       `gorm:"index;not null" json:"end_date" binding:"required"`
	Status            DiscountStatus  `gorm:"type:enum('Inactive','Active','Expired');default:Inactive" json:"status"`
	UsageLimit        int             `gorm:"not null;default:0" json:"usage_limit"`
	UsageCount        int             `gorm:"not null;default:0" json:"usage_count"`
	MinOrderValue     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"min_order_value"`
	MaxDiscountAmount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"max_discount_amount"`
	RequiredTier      *CustomerTier   `gorm:"type:enum('Bronze','Silver','Gold','Platinum');default:null" json:"required_tier"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// DiscountAssignment entitles one customer to use one discount once.
// The (discount, customer) pair is unique; the used flag flips at most
// once, and the discount's usage count moves with it.
type DiscountAssignment struct {
	ID         int        `gorm:"primary_key" json:"id"`
	DiscountId int        `gorm:"uniqueIndex:idx_discount_customer;not null" json:"discount_id"`
	CustomerId int        `gorm:"uniqueIndex:idx_discount_customer;not null" json:"customer_id"`
	Used       *bool      `gorm:"not null;default:false" json:"used"`
	UsedAt     *time.Time `json:"used_at"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

type NewDiscount struct {
	Code              string          `json:"code" binding:"required"`
	Value             decimal.Decimal `json:"value" binding:"required"`
	Type              DiscountType    `json:"type" binding:"required"`
	StartDate         time.Time       `json:"start_date" binding:"required"`
	EndDate           time.Time       `json:"end_date" binding:"required"`
	UsageLimit        int             `json:"usage_limit"`
	MinOrderValue     decimal.Decimal `json:"min_order_value"`
	MaxDiscountAmount decimal.Decimal `json:"max_discount_amount"`
	RequiredTier      *CustomerTier   `json:"required_tier"`
}

// DiscountWindowContains reports whether now falls inside [start, end).
func DiscountWindowContains(now, start, end time.Time) bool {
	return !now.Before(start) && now.Before(end)
}

// NextDiscountStatus is the sweep decision for a single discount.
// Expired is terminal: an EXPIRED discount never reactivates even if its
// window is edited back into validity.
func NextDiscountStatus(now time.Time, current DiscountStatus, start, end time.Time) DiscountStatus {
	if current == DiscountStatusExpired {
		return DiscountStatusExpired
	}
	if !now.Before(end) {
		return DiscountStatusExpired
	}
	if current == DiscountStatusInactive && DiscountWindowContains(now, start, end) {
		return DiscountStatusActive
	}
	return current
}

// CalculateDiscountAmount computes the deduction a discount yields on a
// subtotal: percentage discounts are capped by MaxDiscountAmount (when
// set), and no discount ever exceeds the subtotal itself.
func CalculateDiscountAmount(subtotal decimal.Decimal, d *Discount) decimal.Decimal {
	var amount decimal.Decimal
	switch d.Type {
	case DiscountTypePercentage:
		amount = subtotal.Mul(d.Value).Div(decimal.NewFromInt(100))
		if d.MaxDiscountAmount.IsPositive() && amount.GreaterThan(d.MaxDiscountAmount) {
			amount = d.MaxDiscountAmount
		}
	case DiscountTypeAmount:
		amount = d.Value
	}
	if amount.GreaterThan(subtotal) {
		amount = subtotal
	}
	return amount
}

func (input *NewDiscount) validate(ctx context.Context) error {
	if err := utils.ValidateUnique[Discount](ctx, "code", input.Code, 0); err != nil {
		return err
	}
	if !input.EndDate.After(input.StartDate) {
		return utils.NewValidationError("end_date", "end date must be after start date")
	}
	if !input.Value.IsPositive() {
		return utils.NewValidationError("value", "value must be positive")
	}
	if input.Type == DiscountTypePercentage && input.Value.GreaterThan(decimal.NewFromInt(100)) {
		return utils.NewValidationError("value", "percentage cannot exceed 100")
	}
	if input.UsageLimit < 0 {
		return utils.NewValidationError("usage_limit", "usage limit cannot be negative")
	}
	return nil
}

func CreateDiscount(ctx context.Context, input *NewDiscount) (*Discount, error) {
	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	status := DiscountStatusInactive
	if DiscountWindowContains(now, input.StartDate, input.EndDate) {
		status = DiscountStatusActive
	}

	discount := Discount{
		Code:              input.Code,
		Value:             input.Value,
		Type:              input.Type,
		StartDate:         input.StartDate,
		EndDate:           input.EndDate,
		Status:            status,
		UsageLimit:        input.UsageLimit,
		MinOrderValue:     input.MinOrderValue,
		MaxDiscountAmount: input.MaxDiscountAmount,
		RequiredTier:      input.RequiredTier,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&discount).Error; err != nil {
		return nil, err
	}
	return &discount, nil
}

// AssignDiscount entitles the given customers to the discount. Existing
// (customer, discount) pairs are skipped, so re-running an assignment is
// a no-op for them.
func AssignDiscount(ctx context.Context, discountId int, customerIds []int) error {
	if err := utils.ValidateResourceId[Discount](ctx, discountId); err != nil {
		return utils.NewNotFoundError("discount", discountId)
	}
	if err := utils.ValidateResourcesId[Customer](ctx, customerIds); err != nil {
		return utils.NewNotFoundError("customer", nil)
	}

	assignments := make([]DiscountAssignment, 0, len(customerIds))
	for _, customerId := range utils.UniqueSlice(customerIds) {
		assignments = append(assignments, DiscountAssignment{
			DiscountId: discountId,
			CustomerId: customerId,
			Used:       utils.NewFalse(),
		})
	}
	if len(assignments) == 0 {
		return nil
	}

	db := config.GetDB()
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&assignments).Error
}

func UnassignDiscount(ctx context.Context, discountId int, customerId int) error {
	db := config.GetDB()
	result := db.WithContext(ctx).
		Where("discount_id = ? AND customer_id = ?", discountId, customerId).
		Delete(&DiscountAssignment{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return utils.NewNotFoundError("discount assignment", nil)
	}
	return nil
}

// CheckDiscountEligibility reports whether the customer may apply the
// code to an order with the given subtotal. All conditions are checked
// read-only; consumption happens later inside the order transaction.
func CheckDiscountEligibility(ctx context.Context, customerId int, code string, subtotal decimal.Decimal) (*Discount, error) {
	db := config.GetDB()

	var discount Discount
	if err := db.WithContext(ctx).Where("code = ?", code).First(&discount).Error; err != nil {
		return nil, utils.NewNotFoundError("discount", code)
	}

	now := time.Now().UTC()
	if discount.Status != DiscountStatusActive || !DiscountWindowContains(now, discount.StartDate, discount.EndDate) {
		return nil, utils.NewBusinessRuleViolation("discount", "discount is not currently active")
	}
	if discount.MinOrderValue.IsPositive() && subtotal.LessThan(discount.MinOrderValue) {
		return nil, utils.NewBusinessRuleViolation("discount", "order subtotal is below the discount minimum")
	}

	var assignment DiscountAssignment
	if err := db.WithContext(ctx).
		Where("discount_id = ? AND customer_id = ?", discount.ID, customerId).
		First(&assignment).Error; err != nil {
		return nil, utils.NewBusinessRuleViolation("discount", "discount is not assigned to this customer")
	}
	if assignment.Used != nil && *assignment.Used {
		return nil, utils.NewBusinessRuleViolation("discount", "discount has already been used")
	}

	if discount.RequiredTier != nil {
		customer, err := GetCustomer(ctx, customerId)
		if err != nil {
			return nil, err
		}
		if tierRank(customer.Tier) < tierRank(*discount.RequiredTier) {
			return nil, utils.NewBusinessRuleViolation("discount", "customer tier does not qualify")
		}
	}

	return &discount, nil
}

// ConsumeDiscount marks the customer's assignment used and increments the
// discount's usage count. Runs inside the caller's transaction so that a
// failed order creation rolls the consumption back. When the usage count
// reaches the limit the discount flips to Inactive immediately, without
// waiting for the next sweep.
func ConsumeDiscount(tx *gorm.DB, ctx context.Context, code string, customerId int) (*Discount, error) {
	var discount Discount
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("code = ?", code).First(&discount).Error; err != nil {
		return nil, utils.NewNotFoundError("discount", code)
	}

	if discount.UsageLimit > 0 && discount.UsageCount >= discount.UsageLimit {
		return nil, utils.NewBusinessRuleViolation("discount", "usage limit reached")
	}

	var assignment DiscountAssignment
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("discount_id = ? AND customer_id = ?", discount.ID, customerId).
		First(&assignment).Error; err != nil {
		return nil, utils.NewBusinessRuleViolation("discount", "discount is not assigned to this customer")
	}
	if assignment.Used != nil && *assignment.Used {
		return nil, utils.NewBusinessRuleViolation("discount", "discount has already been used")
	}

	now := time.Now().UTC()
	if err := tx.Model(&DiscountAssignment{}).Where("id = ?", assignment.ID).
		Updates(map[string]interface{}{
			"used":    true,
			"used_at": now,
		}).Error; err != nil {
		return nil, err
	}

	discount.UsageCount++
	updates := map[string]interface{}{
		"usage_count": discount.UsageCount,
	}
	if discount.UsageLimit > 0 && discount.UsageCount >= discount.UsageLimit {
		// fast path: exhausted discounts deactivate without waiting for
		// the campaign sweep
		discount.Status = DiscountStatusInactive
		updates["status"] = DiscountStatusInactive
	}
	if err := tx.Model(&Discount{}).Where("id = ?", discount.ID).
		Updates(updates).Error; err != nil {
		return nil, err
	}

	return &discount, nil
}
