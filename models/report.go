package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/shop_backend/config"
	"github.com/xuri/excelize/v2"
)

type ledgerExportRow struct {
	Id          int
	CreatedAt   time.Time
	Direction   StockDirection
	ProductName string
	Sku         string
	Color       string
	Size        string
	Location    string
	Qty         int
	OrderId     *int
	SupplierId  *int
}

var ledgerExportHeaders = []string{
	"Txn Id", "Date", "Direction", "Product", "SKU", "Color", "Size",
	"Location", "Qty", "Order Id", "Supplier Id",
}

// ExportInventoryLedger renders the inventory ledger between two dates
// as an xlsx workbook for the back office.
func ExportInventoryLedger(ctx context.Context, from time.Time, to time.Time) (*excelize.File, error) {
	db := config.GetDB()

	var rows []ledgerExportRow
	err := db.WithContext(ctx).Model(&InventoryTransaction{}).
		Select("inventory_transactions.id, inventory_transactions.created_at, "+
			"inventory_transactions.direction, products.name AS product_name, "+
			"products.sku, variations.color, variations.size, "+
			"stock_locations.name AS location, inventory_transactions.qty, "+
			"inventory_transactions.order_id, inventory_transactions.supplier_id").
		Joins("JOIN variations ON variations.id = inventory_transactions.variation_id").
		Joins("JOIN products ON products.id = variations.product_id").
		Joins("JOIN stock_locations ON stock_locations.id = inventory_transactions.location_id").
		Where("inventory_transactions.created_at >= ? AND inventory_transactions.created_at < ?", from, to).
		Order("inventory_transactions.id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	file := excelize.NewFile()
	sheet := "Ledger"
	index, err := file.NewSheet(sheet)
	if err != nil {
		return nil, err
	}
	file.SetActiveSheet(index)
	file.DeleteSheet("Sheet1")

	for col, header := range ledgerExportHeaders {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, err
		}
		if err := file.SetCellValue(sheet, cell, header); err != nil {
			return nil, err
		}
	}

	for i, row := range rows {
		values := []interface{}{
			row.Id,
			row.CreatedAt.Format("2006-01-02 15:04:05"),
			string(row.Direction),
			row.ProductName,
			row.Sku,
			row.Color,
			row.Size,
			row.Location,
			row.Qty,
			refCell(row.OrderId),
			refCell(row.SupplierId),
		}
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return nil, err
			}
			if err := file.SetCellValue(sheet, cell, value); err != nil {
				return nil, err
			}
		}
	}

	return file, nil
}

func refCell(id *int) string {
	if id == nil {
		return ""
	}
	return fmt.Sprintf("%d", *id)
}
