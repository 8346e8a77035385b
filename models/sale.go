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

type Sale struct {
	ID        int             `gorm:"primary_key" json:"id"`
	Name      string          `gorm:"size:100;not null" json:"name" binding:"required"`
	Value     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"value" binding:"required"`
	Type      DiscountType    `gorm:"type:enum('P','A');not null" json:"type" binding:"required"`
	StartDate time.Time       `gorm:"index;not null" json:"start_date" binding:"required"`
	EndDate   time.Time       `gorm:"index;not null" json:"end_date" binding:"required"`
	Status    SaleStatus      `gorm:"type:enum('Inactive','Active','Expired');default:Inactive" json:"status"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	Products  []SaleEligibility `gorm:"foreignKey:SaleId" json:"products"`
}

// SaleEligibility joins a sale to one eligible product.
type SaleEligibility struct {
	ID        int       `gorm:"primary_key" json:"id"`
	SaleId    int       `gorm:"uniqueIndex:idx_sale_product;not null" json:"sale_id"`
	ProductId int       `gorm:"uniqueIndex:idx_sale_product;not null" json:"product_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type NewSale struct {
	Name       string          `json:"name" binding:"required"`
	Value      decimal.Decimal `json:"value" binding:"required"`
	Type       DiscountType    `json:"type" binding:"required"`
	StartDate  time.Time       `json:"start_date" binding:"required"`
	EndDate    time.Time       `json:"end_date" binding:"required"`
	ProductIds []int           `json:"product_ids" binding:"required"`
}

// NextSaleStatus is the sweep decision for a single sale. Unlike
// discounts, an expired sale revives when its end date is edited back
// into the future while the start date has already passed.
func NextSaleStatus(now time.Time, current SaleStatus, start, end time.Time) SaleStatus {
	switch current {
	case SaleStatusActive:
		if !now.Before(end) {
			return SaleStatusExpired
		}
	case SaleStatusExpired:
		if now.Before(end) && !now.Before(start) {
			return SaleStatusActive
		}
	case SaleStatusInactive:
		if !now.Before(end) {
			return SaleStatusExpired
		}
		if DiscountWindowContains(now, start, end) {
			return SaleStatusActive
		}
	}
	return current
}

func CreateSale(ctx context.Context, input *NewSale) (*Sale, error) {
	if !input.EndDate.After(input.StartDate) {
		return nil, utils.NewValidationError("end_date", "end date must be after start date")
	}
	if !input.Value.IsPositive() {
		return nil, utils.NewValidationError("value", "value must be positive")
	}
	if len(input.ProductIds) == 0 {
		return nil, utils.NewValidationError("product_ids", "at least one product is required")
	}
	if err := utils.ValidateResourcesId[Product](ctx, input.ProductIds); err != nil {
		return nil, utils.NewNotFoundError("product", nil)
	}

	now := time.Now().UTC()
	status := SaleStatusInactive
	if DiscountWindowContains(now, input.StartDate, input.EndDate) {
		status = SaleStatusActive
	}

	eligibilities := make([]SaleEligibility, 0, len(input.ProductIds))
	for _, productId := range utils.UniqueSlice(input.ProductIds) {
		eligibilities = append(eligibilities, SaleEligibility{ProductId: productId})
	}

	sale := Sale{
		Name:      input.Name,
		Value:     input.Value,
		Type:      input.Type,
		StartDate: input.StartDate,
		EndDate:   input.EndDate,
		Status:    status,
		Products:  eligibilities,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&sale).Error; err != nil {
		return nil, err
	}
	return &sale, nil
}

// UpdateSaleWindow edits a sale's validity window. The status itself is
// corrected by the next campaign sweep (expired sales may revive).
func UpdateSaleWindow(ctx context.Context, saleId int, start, end time.Time) (*Sale, error) {
	if !end.After(start) {
		return nil, utils.NewValidationError("end_date", "end date must be after start date")
	}

	sale, err := utils.FetchModel[Sale](ctx, saleId)
	if err != nil {
		return nil, utils.NewNotFoundError("sale", saleId)
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(&Sale{}).Where("id = ?", saleId).
		Updates(map[string]interface{}{
			"start_date": start,
			"end_date":   end,
		}).Error; err != nil {
		return nil, err
	}
	sale.StartDate = start
	sale.EndDate = end
	return sale, nil
}

// AddSaleProducts extends an existing sale; duplicate pairs are skipped.
func AddSaleProducts(ctx context.Context, saleId int, productIds []int) error {
	if err := utils.ValidateResourceId[Sale](ctx, saleId); err != nil {
		return utils.NewNotFoundError("sale", saleId)
	}
	if err := utils.ValidateResourcesId[Product](ctx, productIds); err != nil {
		return utils.NewNotFoundError("product", nil)
	}

	eligibilities := make([]SaleEligibility, 0, len(productIds))
	for _, productId := range utils.UniqueSlice(productIds) {
		eligibilities = append(eligibilities, SaleEligibility{SaleId: saleId, ProductId: productId})
	}
	if len(eligibilities) == 0 {
		return nil
	}

	db := config.GetDB()
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&eligibilities).Error
}

// ReconcileSaleEligibility removes products with zero sellable stock from
// active sales. Historically this happened as a hidden side effect of a
// listing query; here it is an explicit step invoked by the campaign
// sweep.
func ReconcileSaleEligibility(tx *gorm.DB, ctx context.Context) (int64, error) {
	subquery := tx.Model(&StockLevel{}).
		Select("COALESCE(SUM(stock_levels.qty), 0)").
		Joins("JOIN variations ON variations.id = stock_levels.variation_id").
		Where("variations.product_id = sale_eligibilities.product_id").
		Where("stock_levels.qty <> ?", RetiredStockSentinel)

	result := tx.WithContext(ctx).
		Where("sale_id IN (?)", tx.Model(&Sale{}).Select("id").Where("status = ?", SaleStatusActive)).
		Where("(?) <= 0", subquery).
		Delete(&SaleEligibility{})
	return result.RowsAffected, result.Error
}
