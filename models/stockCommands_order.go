package models

import (
	"context"
	"errors"

	"bitbucket.org/mmdatafocus/shop_backend/utils"
	"gorm.io/gorm"
)

// ReserveOrderUnit takes one unit of a variation out of stock for an
// order. The decrement is conditional on qty >= 1 so concurrent orders
// can never drive a level negative; a zero-row update means someone
// else won the last unit.
func ReserveOrderUnit(tx *gorm.DB, ctx context.Context, orderId int, variationId int, detail *VariationDetail) error {
	var level StockLevel
	err := tx.WithContext(ctx).
		Where("variation_id = ? AND qty <> ?", variationId, RetiredStockSentinel).
		First(&level).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// No live stock row at all: never stocked, or retired.
		return &utils.InsufficientStockError{
			Product:   detail.ProductName,
			Color:     detail.Color,
			Size:      detail.Size,
			Available: 0,
		}
	}
	if err != nil {
		return err
	}

	result := tx.WithContext(ctx).Model(&StockLevel{}).
		Where("id = ? AND qty >= 1", level.ID).
		Update("qty", gorm.Expr("qty - 1"))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		available, err := AvailableStock(tx, ctx, variationId)
		if err != nil {
			return err
		}
		return &utils.InsufficientStockError{
			Product:   detail.ProductName,
			Color:     detail.Color,
			Size:      detail.Size,
			Available: available,
		}
	}

	transaction := InventoryTransaction{
		Direction:   StockDirectionOut,
		VariationId: variationId,
		LocationId:  level.LocationId,
		Qty:         1,
		OrderId:     &orderId,
	}
	return tx.Create(&transaction).Error
}

// ledgerBalance groups an order's ledger rows by variation and location.
type ledgerBalance struct {
	VariationId int
	LocationId  int
	Qty         int
}

// releaseOrderStock returns everything the order still holds back to
// stock: one IN row per outstanding OUT balance, mirrored by a level
// increment. Levels retired after the reservation keep the sentinel and
// only receive the ledger row, so the audit trail stays exact.
func releaseOrderStock(tx *gorm.DB, ctx context.Context, order *Order) error {
	var balances []ledgerBalance
	err := tx.WithContext(ctx).Model(&InventoryTransaction{}).
		Select("variation_id, location_id, "+
			"SUM(CASE WHEN direction = ? THEN qty ELSE -qty END) AS qty",
			StockDirectionOut).
		Where("order_id = ?", order.ID).
		Group("variation_id, location_id").
		Scan(&balances).Error
	if err != nil {
		return err
	}

	for _, balance := range balances {
		if balance.Qty <= 0 {
			continue
		}
		transaction := InventoryTransaction{
			Direction:   StockDirectionIn,
			VariationId: balance.VariationId,
			LocationId:  balance.LocationId,
			Qty:         balance.Qty,
			OrderId:     &order.ID,
		}
		if err := tx.Create(&transaction).Error; err != nil {
			return err
		}
		err := tx.WithContext(ctx).Model(&StockLevel{}).
			Where("variation_id = ? AND location_id = ? AND qty <> ?",
				balance.VariationId, balance.LocationId, RetiredStockSentinel).
			Update("qty", gorm.Expr("qty + ?", balance.Qty)).Error
		if err != nil {
			return err
		}
	}
	return nil
}

// ApplyOrderStockForStatusTransition performs the stock side effect of
// an order status change. Reserved units flow back into stock when the
// order is cancelled before delivery or when returned goods pass
// inspection; every other transition leaves the ledger untouched.
func ApplyOrderStockForStatusTransition(tx *gorm.DB, ctx context.Context, order *Order, oldStatus OrderStatus, newStatus OrderStatus) error {
	switch newStatus {
	case OrderStatusCancelled:
		return releaseOrderStock(tx, ctx, order)
	case OrderStatusReturned:
		return releaseOrderStock(tx, ctx, order)
	default:
		return nil
	}
}
