// seed-admin creates or updates the back-office admin user (username: shopAdmin).
//
// Usage (from backend directory):
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-admin
package main

import (
	"context"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/shop_backend/config"
	"bitbucket.org/mmdatafocus/shop_backend/models"
	"bitbucket.org/mmdatafocus/shop_backend/utils"
	"gorm.io/gorm"
)

const (
	adminUsername = "shopAdmin"
	adminPassword = "Sh0p@dmin!"
	adminName     = "Shop Admin"
)

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	hashed, err := utils.HashPassword(adminPassword)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to hash password: %v\n", err)
		os.Exit(1)
	}

	var existing models.Staff
	err = db.WithContext(ctx).Model(&models.Staff{}).Where("username = ?", adminUsername).First(&existing).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			fmt.Fprintf(os.Stderr, "failed to lookup staff: %v\n", err)
			os.Exit(1)
		}
		s := models.Staff{
			Username: adminUsername,
			Name:     adminName,
			Password: hashed,
			Role:     models.StaffRoleAdmin,
			IsActive: utils.NewTrue(),
		}
		if err := db.WithContext(ctx).Create(&s).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to create admin user: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Created admin user: username=%q (role=Admin)\n", adminUsername)
		return
	}

	// Update existing user: ensure password and admin role.
	if err := db.WithContext(ctx).Model(&models.Staff{}).Where("username = ?", adminUsername).Updates(map[string]any{
		"password":  hashed,
		"name":      adminName,
		"is_active": utils.NewTrue(),
		"role":      models.StaffRoleAdmin,
	}).Error; err != nil {
		fmt.Fprintf(os.Stderr, "failed to update admin user: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Updated admin user: username=%q (role=Admin)\n", adminUsername)
}
