package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/shop_backend/config"
	"bitbucket.org/mmdatafocus/shop_backend/utils"
	"gorm.io/gorm"
)

// RetiredStockSentinel marks a StockLevel row as retired. Distinct from 0
// ("in stock, temporarily empty"): retired levels are excluded from
// availability sums and must never be restocked.
const RetiredStockSentinel = -1

type StockLocation struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:100;uniqueIndex;not null" json:"name" binding:"required"`
	Address   string    `gorm:"type:text" json:"address"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewStockLocation struct {
	Name    string `json:"name" binding:"required"`
	Address string `json:"address"`
}

// StockLevel is the current quantity of one variation at one location.
type StockLevel struct {
	ID          int       `gorm:"primary_key" json:"id"`
	VariationId int       `gorm:"uniqueIndex:idx_variation_location;not null" json:"variation_id"`
	LocationId  int       `gorm:"uniqueIndex:idx_variation_location;not null" json:"location_id"`
	Qty         int       `gorm:"not null;default:0" json:"qty"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// InventoryTransaction is an append-only ledger row. Rows are never
// mutated or deleted: a level's balance equals cumulative IN minus
// cumulative OUT minus sentinel adjustments.
type InventoryTransaction struct {
	ID          int            `gorm:"primary_key" json:"id"`
	Direction   StockDirection `gorm:"type:enum('IN','OUT');not null" json:"direction"`
	VariationId int            `gorm:"index;not null" json:"variation_id"`
	LocationId  int            `gorm:"index;not null" json:"location_id"`
	Qty         int            `gorm:"not null" json:"qty"`
	OrderId     *int           `gorm:"index" json:"order_id"`
	SupplierId  *int           `gorm:"index" json:"supplier_id"`
	StaffId     *int           `gorm:"index" json:"staff_id"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

type NewStockIntake struct {
	SupplierId int             `json:"supplier_id" binding:"required"`
	LocationId int             `json:"location_id" binding:"required"`
	Lines      []NewIntakeLine `json:"lines" binding:"required,dive"`
}

type NewIntakeLine struct {
	VariationId int `json:"variation_id" binding:"required"`
	Qty         int `json:"qty" binding:"required,gt=0"`
}

func CreateStockLocation(ctx context.Context, input *NewStockLocation) (*StockLocation, error) {
	if err := utils.ValidateUnique[StockLocation](ctx, "name", input.Name, 0); err != nil {
		return nil, err
	}
	location := StockLocation{
		Name:     input.Name,
		Address:  input.Address,
		IsActive: utils.NewTrue(),
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&location).Error; err != nil {
		return nil, err
	}
	return &location, nil
}

// AvailableStock sums a variation's stock over all locations, excluding
// retired sentinel rows.
func AvailableStock(tx *gorm.DB, ctx context.Context, variationId int) (int, error) {
	var total *int
	err := tx.WithContext(ctx).Model(&StockLevel{}).
		Where("variation_id = ? AND qty <> ?", variationId, RetiredStockSentinel).
		Select("SUM(qty)").Scan(&total).Error
	if err != nil {
		return 0, err
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}

// RecordStockIntake appends supplier-tagged IN transactions and
// increments (or creates) the matching stock levels. The first intake for
// a product also advances its catalog status out of ComingSoon; that
// callback is deliberate cross-component behavior, not a hidden side
// effect.
func RecordStockIntake(ctx context.Context, input *NewStockIntake) ([]*InventoryTransaction, error) {
	staffId, ok := utils.GetStaffIdFromContext(ctx)
	if !ok {
		return nil, utils.NewValidationError("staff", "staff id is required")
	}

	if err := utils.ValidateResourceId[Supplier](ctx, input.SupplierId); err != nil {
		return nil, utils.NewNotFoundError("supplier", input.SupplierId)
	}
	if err := utils.ValidateResourceId[StockLocation](ctx, input.LocationId); err != nil {
		return nil, utils.NewNotFoundError("stock location", input.LocationId)
	}
	if len(input.Lines) == 0 {
		return nil, utils.NewValidationError("lines", "at least one intake line is required")
	}

	db := config.GetDB()
	transactions := make([]*InventoryTransaction, 0, len(input.Lines))

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, line := range input.Lines {
			detail, err := GetVariationDetail(tx, ctx, line.VariationId)
			if err != nil {
				return err
			}

			var level StockLevel
			err = tx.Where("variation_id = ? AND location_id = ?", line.VariationId, input.LocationId).
				First(&level).Error
			switch {
			case err == gorm.ErrRecordNotFound:
				level = StockLevel{
					VariationId: line.VariationId,
					LocationId:  input.LocationId,
					Qty:         line.Qty,
				}
				if err := tx.Create(&level).Error; err != nil {
					return err
				}
			case err != nil:
				return err
			case level.Qty == RetiredStockSentinel:
				return utils.NewBusinessRuleViolation("stock intake",
					"variation has been retired and cannot be restocked")
			default:
				if err := tx.Model(&StockLevel{}).Where("id = ?", level.ID).
					Update("qty", gorm.Expr("qty + ?", line.Qty)).Error; err != nil {
					return err
				}
			}

			transaction := InventoryTransaction{
				Direction:   StockDirectionIn,
				VariationId: line.VariationId,
				LocationId:  input.LocationId,
				Qty:         line.Qty,
				SupplierId:  &input.SupplierId,
				StaffId:     &staffId,
			}
			if err := tx.Create(&transaction).Error; err != nil {
				return err
			}
			transactions = append(transactions, &transaction)

			if err := AdvanceProductIntroStatus(tx, ctx, detail.ProductId); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return transactions, nil
}

// RetireVariation sets every stock level of the variation to the retired
// sentinel. The rows are kept (history stays reconstructable), only the
// availability contribution is removed.
func RetireVariation(ctx context.Context, variationId int) error {
	db := config.GetDB()

	var variation Variation
	if err := db.WithContext(ctx).First(&variation, variationId).Error; err != nil {
		return utils.NewNotFoundError("variation", variationId)
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&StockLevel{}).
			Where("variation_id = ?", variationId).
			Update("qty", RetiredStockSentinel).Error; err != nil {
			return err
		}
		return tx.Model(&Variation{}).Where("id = ?", variationId).
			Update("is_active", false).Error
	})
	if err != nil {
		return err
	}
	return config.RemoveRedisKey("Product:" + fmt.Sprint(variation.ProductId))
}

// OrderLedgerRows returns the ledger rows recorded for one order,
// oldest first.
func OrderLedgerRows(ctx context.Context, orderId int) ([]*InventoryTransaction, error) {
	db := config.GetDB()
	var rows []*InventoryTransaction
	err := db.WithContext(ctx).
		Where("order_id = ?", orderId).
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}
