package models

import (
	"log"

	"bitbucket.org/mmdatafocus/shop_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Product{}, &Variation{},
		&StockLocation{}, &StockLevel{}, &InventoryTransaction{},
		&Supplier{},
		&Customer{}, &Staff{},
		&Discount{}, &DiscountAssignment{},
		&Sale{}, &SaleEligibility{},
		&Order{}, &OrderUnit{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
