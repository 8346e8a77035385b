package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/shop_backend/config"
	"bitbucket.org/mmdatafocus/shop_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Product struct {
	ID          int           `gorm:"primary_key" json:"id"`
	Name        string        `gorm:"size:100;not null" json:"name" binding:"required"`
	Sku         string        `gorm:"size:100;uniqueIndex;not null" json:"sku" binding:"required"`
	Description string        `gorm:"type:text" json:"description"`
	Status      ProductStatus `gorm:"type:enum('ComingSoon','OnSale','Discontinued');default:ComingSoon" json:"status"`
	CreatedAt   time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
	Variations  []Variation   `gorm:"foreignKey:ProductId" json:"variations"`
}

// Variation is one sellable size/color configuration of a product.
type Variation struct {
	ID        int             `gorm:"primary_key" json:"id"`
	ProductId int             `gorm:"index;not null" json:"product_id" binding:"required"`
	Color     string          `gorm:"size:50;not null" json:"color"`
	Size      string          `gorm:"size:50;not null" json:"size"`
	Price     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"price"`
	IsActive  *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewProduct struct {
	Name        string         `json:"name" binding:"required"`
	Sku         string         `json:"sku" binding:"required"`
	Description string         `json:"description"`
	Variations  []NewVariation `json:"variations"`
}

type NewVariation struct {
	Color string          `json:"color" binding:"required"`
	Size  string          `json:"size" binding:"required"`
	Price decimal.Decimal `json:"price" binding:"required"`
}

// VariationDetail is the catalog read model the fulfillment side works
// with: enough to price a unit and derive its serial.
type VariationDetail struct {
	VariationId int             `json:"variation_id"`
	ProductId   int             `json:"product_id"`
	ProductName string          `json:"product_name"`
	Sku         string          `json:"sku"`
	Color       string          `json:"color"`
	Size        string          `json:"size"`
	Price       decimal.Decimal `json:"price"`
}

func CreateProduct(ctx context.Context, input *NewProduct) (*Product, error) {
	if err := utils.ValidateUnique[Product](ctx, "sku", input.Sku, 0); err != nil {
		return nil, err
	}
	if len(input.Variations) == 0 {
		return nil, utils.NewValidationError("variations", "at least one variation is required")
	}

	variations := make([]Variation, 0, len(input.Variations))
	for _, v := range input.Variations {
		if v.Price.IsNegative() {
			return nil, utils.NewValidationError("price", "price cannot be negative")
		}
		variations = append(variations, Variation{
			Color:    v.Color,
			Size:     v.Size,
			Price:    v.Price,
			IsActive: utils.NewTrue(),
		})
	}

	product := Product{
		Name:        input.Name,
		Sku:         input.Sku,
		Description: input.Description,
		Status:      ProductStatusComingSoon,
		Variations:  variations,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func GetProduct(ctx context.Context, id int) (*Product, error) {
	var product Product

	exists, err := config.GetRedisObject("Product:"+fmt.Sprint(id), &product)
	if err != nil {
		return nil, err
	}
	if !exists {
		fetched, err := utils.FetchModel[Product](ctx, id, "Variations")
		if err != nil {
			return nil, err
		}
		product = *fetched
		if err := config.SetRedisObject("Product:"+fmt.Sprint(id), &product, time.Hour); err != nil {
			return nil, err
		}
	}
	return &product, nil
}

// GetVariationDetail resolves a variation to its product name, sku,
// color, size and current price.
func GetVariationDetail(tx *gorm.DB, ctx context.Context, variationId int) (*VariationDetail, error) {
	var detail VariationDetail
	err := tx.WithContext(ctx).Model(&Variation{}).
		Select("variations.id AS variation_id, variations.product_id, products.name AS product_name, products.sku, variations.color, variations.size, variations.price").
		Joins("JOIN products ON products.id = variations.product_id").
		Where("variations.id = ?", variationId).
		Scan(&detail).Error
	if err != nil {
		return nil, err
	}
	if detail.VariationId == 0 {
		return nil, utils.NewNotFoundError("variation", variationId)
	}
	return &detail, nil
}

// AdvanceProductIntroStatus moves a product from ComingSoon to OnSale.
// Called by the inventory side the first time stock is received; a no-op
// for products already past their introductory state.
func AdvanceProductIntroStatus(tx *gorm.DB, ctx context.Context, productId int) error {
	if tx == nil {
		return errors.New("tx is nil")
	}
	err := tx.WithContext(ctx).Model(&Product{}).
		Where("id = ? AND status = ?", productId, ProductStatusComingSoon).
		Update("status", ProductStatusOnSale).Error
	if err != nil {
		return err
	}
	return config.RemoveRedisKey("Product:" + fmt.Sprint(productId))
}
