package models

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/shop_backend/config"
	"bitbucket.org/mmdatafocus/shop_backend/utils"
	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Order struct {
	ID             int             `gorm:"primary_key" json:"id"`
	CustomerId     int             `gorm:"index;not null" json:"customer_id" binding:"required"`
	Status         OrderStatus     `gorm:"type:enum('Pending','Processing','Shipping','Completed','Cancelled','Returning','Inspection','Returned');not null" json:"status"`
	StaffId        *int            `gorm:"index" json:"staff_id"`
	TrackingNumber string          `gorm:"size:100;uniqueIndex;not null" json:"tracking_number"`
	Subtotal       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"subtotal"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"discount_amount"`
	TotalAmount    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	PaymentMethod  PaymentMethod   `gorm:"type:enum('CashOnDelivery','BankTransfer','Card','Wallet');not null" json:"payment_method"`
	PaymentStatus  PaymentStatus   `gorm:"type:enum('Pending','Settled','Failed');default:Pending" json:"payment_status"`
	ShippingMethod ShippingMethod  `gorm:"type:enum('Standard','Express','Pickup');not null" json:"shipping_method"`
	DiscountId     *int            `gorm:"index" json:"discount_id"`
	BillingName    string          `gorm:"size:100;not null" json:"billing_name"`
	BillingPhone   string          `gorm:"size:20;not null" json:"billing_phone"`
	BillingAddress string          `gorm:"type:text;not null" json:"billing_address"`
	BillingCity    string          `gorm:"size:100" json:"billing_city"`
	Note           string          `gorm:"type:text" json:"note"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	Units          []OrderUnit     `gorm:"foreignKey:OrderId" json:"units"`
}

// OrderUnit is one physical, individually serialized item sold within an
// order. Immutable once created; the unit price is captured at purchase
// time so later catalog price edits never change historical orders.
type OrderUnit struct {
	ID           int             `gorm:"primary_key" json:"id"`
	OrderId      int             `gorm:"index;not null" json:"order_id"`
	VariationId  int             `gorm:"index;not null" json:"variation_id"`
	SerialNumber string          `gorm:"size:100;uniqueIndex;not null" json:"serial_number"`
	UnitPrice    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_price"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type NewOrder struct {
	CustomerId     int            `json:"customer_id" binding:"required"`
	Lines          []NewOrderLine `json:"lines" binding:"required,dive"`
	PaymentMethod  PaymentMethod  `json:"payment_method" binding:"required"`
	ShippingMethod ShippingMethod `json:"shipping_method" binding:"required"`
	DiscountCode   *string        `json:"discount_code"`
	BillingName    string         `json:"billing_name" binding:"required"`
	BillingPhone   string         `json:"billing_phone" binding:"required"`
	BillingAddress string         `json:"billing_address" binding:"required"`
	BillingCity    string         `json:"billing_city"`
	Note           string         `json:"note"`
}

type NewOrderLine struct {
	VariationId int `json:"variation_id" binding:"required"`
	Qty         int `json:"qty" binding:"required,gt=0"`
}

func (input *NewOrder) validate(ctx context.Context) error {
	if err := utils.ValidateResourceId[Customer](ctx, input.CustomerId); err != nil {
		return utils.NewNotFoundError("customer", input.CustomerId)
	}
	if len(input.Lines) == 0 {
		return utils.NewValidationError("lines", "at least one order line is required")
	}
	for _, line := range input.Lines {
		if line.Qty <= 0 {
			return utils.NewValidationError("qty", "quantity must be positive")
		}
	}
	if err := utils.ValidatePhoneNumber(input.BillingPhone, utils.CountryCode); err != nil {
		return utils.NewValidationError("billing_phone", err.Error())
	}
	if strings.TrimSpace(input.BillingAddress) == "" {
		return utils.NewValidationError("billing_address", "billing address is required")
	}
	return nil
}

// CreateOrder validates stock for every line up front, reserves all units
// through the inventory ledger, optionally consumes a discount, and
// persists the order as Pending. Everything commits as one transaction:
// a failure on any line leaves no trace.
// reservationLockKey derives the stock-lock key from the order's
// variation set, sorted so that two orders over the same variations
// always contend on the same key.
func reservationLockKey(lines []NewOrderLine) string {
	ids := make([]int, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.VariationId)
	}
	ids = utils.UniqueSlice(ids)
	sort.Ints(ids)

	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return "variations:" + strings.Join(parts, ":")
}

func CreateOrder(ctx context.Context, input *NewOrder) (*Order, error) {
	db := config.GetDB()

	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	// Resolve catalog details and price the order before touching stock.
	details := make(map[int]*VariationDetail, len(input.Lines))
	subtotal := decimal.Zero
	for _, line := range input.Lines {
		detail, err := GetVariationDetail(db, ctx, line.VariationId)
		if err != nil {
			return nil, err
		}
		details[line.VariationId] = detail
		subtotal = subtotal.Add(detail.Price.Mul(decimal.NewFromInt(int64(line.Qty))))
	}

	discountAmount := decimal.Zero
	var discountCode string
	if input.DiscountCode != nil && *input.DiscountCode != "" {
		discountCode = *input.DiscountCode
		discount, err := CheckDiscountEligibility(ctx, input.CustomerId, discountCode, subtotal)
		if err != nil {
			return nil, err
		}
		discountAmount = CalculateDiscountAmount(subtotal, discount)
	}

	// Best-effort serialization of concurrent reservations; the
	// conditional decrement in ReserveOrderUnit is the real guard.
	lock, err := utils.StockLock(ctx, reservationLockKey(input.Lines), "order.go", "CreateOrder")
	if err != nil {
		return nil, err
	}
	defer utils.ReleaseLock(ctx, lock)

	var order *Order
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// All-or-nothing availability check before any reservation.
		for _, line := range input.Lines {
			available, err := AvailableStock(tx, ctx, line.VariationId)
			if err != nil {
				return err
			}
			if available < line.Qty {
				detail := details[line.VariationId]
				return &utils.InsufficientStockError{
					Product:   detail.ProductName,
					Color:     detail.Color,
					Size:      detail.Size,
					Available: available,
				}
			}
		}

		order = &Order{
			CustomerId:     input.CustomerId,
			Status:         OrderStatusPending,
			Subtotal:       subtotal,
			DiscountAmount: discountAmount,
			TotalAmount:    subtotal.Sub(discountAmount),
			PaymentMethod:  input.PaymentMethod,
			PaymentStatus:  PaymentStatusPending,
			ShippingMethod: input.ShippingMethod,
			BillingName:    input.BillingName,
			BillingPhone:   input.BillingPhone,
			BillingAddress: input.BillingAddress,
			BillingCity:    input.BillingCity,
			Note:           input.Note,
		}
		if err := createOrderWithTrackingNumber(tx, order); err != nil {
			return err
		}

		for _, line := range input.Lines {
			detail := details[line.VariationId]
			for i := 0; i < line.Qty; i++ {
				if err := ReserveOrderUnit(tx, ctx, order.ID, line.VariationId, detail); err != nil {
					return err
				}
				unit := OrderUnit{
					OrderId:      order.ID,
					VariationId:  line.VariationId,
					SerialNumber: utils.GenerateUnitSerial(detail.Sku, detail.Color, detail.Size),
					UnitPrice:    detail.Price,
				}
				if err := tx.Create(&unit).Error; err != nil {
					return err
				}
				order.Units = append(order.Units, unit)
			}
		}

		if discountCode != "" {
			discount, err := ConsumeDiscount(tx, ctx, discountCode, input.CustomerId)
			if err != nil {
				return err
			}
			if err := tx.Model(&Order{}).Where("id = ?", order.ID).
				Update("discount_id", discount.ID).Error; err != nil {
				return err
			}
			order.DiscountId = &discount.ID
		}

		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// createOrderWithTrackingNumber inserts the order, regenerating the
// tracking number on a duplicate-key collision.
func createOrderWithTrackingNumber(tx *gorm.DB, order *Order) error {
	const maxAttempts = 3
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		order.TrackingNumber = utils.GenerateTrackingNumber()
		err = tx.Create(order).Error
		if err == nil {
			return nil
		}
		if !isDuplicateKeyError(err) {
			return err
		}
	}
	return err
}

func isDuplicateKeyError(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

func GetOrder(ctx context.Context, id int) (*Order, error) {
	order, err := utils.FetchModel[Order](ctx, id, "Units")
	if err != nil {
		return nil, utils.NewNotFoundError("order", id)
	}
	return order, nil
}

func GetOrderByTrackingNumber(ctx context.Context, trackingNumber string) (*Order, error) {
	db := config.GetDB()
	var order Order
	err := db.WithContext(ctx).Preload("Units").
		Where("tracking_number = ?", trackingNumber).First(&order).Error
	if err != nil {
		return nil, utils.NewNotFoundError("order", trackingNumber)
	}
	return &order, nil
}

func GetCustomerOrders(ctx context.Context, customerId int) ([]*Order, error) {
	db := config.GetDB()
	var orders []*Order
	err := db.WithContext(ctx).Preload("Units").
		Where("customer_id = ?", customerId).
		Order("created_at DESC").
		Find(&orders).Error
	return orders, err
}

// lockOrderForUpdate fetches an order with its units under a row lock so
// that concurrent transitions serialize on the order row.
func lockOrderForUpdate(tx *gorm.DB, ctx context.Context, orderId int) (*Order, error) {
	var order Order
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&order, orderId).Error
	if err != nil {
		return nil, utils.NewNotFoundError("order", orderId)
	}
	if err := tx.WithContext(ctx).Where("order_id = ?", orderId).Find(&order.Units).Error; err != nil {
		return nil, err
	}
	return &order, nil
}
