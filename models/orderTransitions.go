package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/shop_backend/config"
	"bitbucket.org/mmdatafocus/shop_backend/utils"
	"gorm.io/gorm"
)

// ReturnWindow is how long after purchase a customer may open a return.
const ReturnWindow = 30 * 24 * time.Hour

// WithinReturnWindow reports whether an order created at createdAt may
// still be returned at now.
func WithinReturnWindow(createdAt, now time.Time) bool {
	return now.Sub(createdAt) <= ReturnWindow
}

// orderTransitions is the full set of legal status edges. Anything not
// listed here is rejected, so every caller goes through the same gate.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipping, OrderStatusCancelled},
	OrderStatusShipping:   {OrderStatusCompleted, OrderStatusReturning, OrderStatusReturned},
	OrderStatusCompleted:  {OrderStatusReturning},
	OrderStatusReturning:  {OrderStatusInspection},
	OrderStatusInspection: {OrderStatusReturned},
}

func CanTransition(from OrderStatus, to OrderStatus) bool {
	for _, allowed := range orderTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// setOrderStatus moves a locked order along one status edge and applies
// the stock side effect of that edge. Must run inside the caller's
// transaction.
func setOrderStatus(tx *gorm.DB, ctx context.Context, order *Order, to OrderStatus) error {
	if !CanTransition(order.Status, to) {
		return &utils.InvalidStateTransitionError{
			From: string(order.Status),
			To:   string(to),
		}
	}
	oldStatus := order.Status
	err := tx.WithContext(ctx).Model(&Order{}).Where("id = ?", order.ID).
		Update("status", to).Error
	if err != nil {
		return err
	}
	order.Status = to
	return ApplyOrderStockForStatusTransition(tx, ctx, order, oldStatus, to)
}

// ApproveOrder advances an order one step along the fulfillment path:
// Pending becomes Processing, Processing becomes Shipping. The acting
// staff member is recorded on first approval.
func ApproveOrder(ctx context.Context, orderId int, staffId int) (*Order, error) {
	db := config.GetDB()
	var order *Order
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = lockOrderForUpdate(tx, ctx, orderId)
		if err != nil {
			return err
		}
		var next OrderStatus
		switch order.Status {
		case OrderStatusPending:
			next = OrderStatusProcessing
		case OrderStatusProcessing:
			next = OrderStatusShipping
		default:
			return &utils.InvalidStateTransitionError{
				From: string(order.Status),
				To:   string(OrderStatusProcessing),
			}
		}
		// The most recent acting staff owns the order.
		if err := tx.Model(&Order{}).Where("id = ?", order.ID).
			Update("staff_id", staffId).Error; err != nil {
			return err
		}
		order.StaffId = &staffId
		return setOrderStatus(tx, ctx, order, next)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// RejectOrder cancels a not-yet-shipped order and releases its stock.
func RejectOrder(ctx context.Context, orderId int, staffId int) (*Order, error) {
	db := config.GetDB()
	var order *Order
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = lockOrderForUpdate(tx, ctx, orderId)
		if err != nil {
			return err
		}
		if err := tx.Model(&Order{}).Where("id = ?", order.ID).
			Update("staff_id", staffId).Error; err != nil {
			return err
		}
		order.StaffId = &staffId
		return setOrderStatus(tx, ctx, order, OrderStatusCancelled)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// CancelOrder is the customer-side cancellation. Before shipment it
// lands on Cancelled; a parcel already on the road skips straight to
// Returned, since the goods come back without an inspection cycle.
func CancelOrder(ctx context.Context, orderId int, customerId int) (*Order, error) {
	db := config.GetDB()
	var order *Order
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = lockOrderForUpdate(tx, ctx, orderId)
		if err != nil {
			return err
		}
		if order.CustomerId != customerId {
			return utils.NewNotFoundError("order", orderId)
		}
		switch order.Status {
		case OrderStatusPending, OrderStatusProcessing:
			return setOrderStatus(tx, ctx, order, OrderStatusCancelled)
		case OrderStatusShipping:
			return setOrderStatus(tx, ctx, order, OrderStatusReturned)
		default:
			return &utils.InvalidStateTransitionError{
				From: string(order.Status),
				To:   string(OrderStatusCancelled),
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// RequestReturn opens a return for a shipped or delivered order, as
// long as the order is still inside the return window.
func RequestReturn(ctx context.Context, orderId int, customerId int) (*Order, error) {
	db := config.GetDB()
	var order *Order
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = lockOrderForUpdate(tx, ctx, orderId)
		if err != nil {
			return err
		}
		if order.CustomerId != customerId {
			return utils.NewNotFoundError("order", orderId)
		}
		if !WithinReturnWindow(order.CreatedAt, time.Now()) {
			return utils.NewBusinessRuleViolation("return_window",
				"orders older than 30 days cannot be returned")
		}
		return setOrderStatus(tx, ctx, order, OrderStatusReturning)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// InspectReturn marks returned goods as received and under inspection.
func InspectReturn(ctx context.Context, orderId int, staffId int) (*Order, error) {
	db := config.GetDB()
	var order *Order
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = lockOrderForUpdate(tx, ctx, orderId)
		if err != nil {
			return err
		}
		return setOrderStatus(tx, ctx, order, OrderStatusInspection)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// CompleteReturn closes an inspected return: units flow back to stock
// and the customer's lifetime spend is unwound so their tier reflects
// what they actually kept.
func CompleteReturn(ctx context.Context, orderId int, staffId int) (*Order, error) {
	db := config.GetDB()
	var order *Order
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = lockOrderForUpdate(tx, ctx, orderId)
		if err != nil {
			return err
		}
		if err := setOrderStatus(tx, ctx, order, OrderStatusReturned); err != nil {
			return err
		}
		return ReverseCustomerSpend(tx, ctx, order.CustomerId, order.TotalAmount)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// SettleOrderPayment records a successful payment. Settling twice is a
// no-op, so gateway callback retries are safe. The returned flag tells
// the caller whether this call actually changed anything.
func SettleOrderPayment(ctx context.Context, orderId int) (*Order, bool, error) {
	db := config.GetDB()
	var order *Order
	changed := false
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = lockOrderForUpdate(tx, ctx, orderId)
		if err != nil {
			return err
		}
		if order.PaymentStatus == PaymentStatusSettled {
			return nil
		}
		err = tx.WithContext(ctx).Model(&Order{}).Where("id = ?", order.ID).
			Update("payment_status", PaymentStatusSettled).Error
		if err != nil {
			return err
		}
		order.PaymentStatus = PaymentStatusSettled
		changed = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return order, changed, nil
}

// FailOrderPayment records a failed payment. An order still waiting in
// Pending is cancelled and its units go back to stock; an order that
// already moved on keeps its status and only the payment flag flips.
func FailOrderPayment(ctx context.Context, orderId int) (*Order, error) {
	db := config.GetDB()
	var order *Order
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = lockOrderForUpdate(tx, ctx, orderId)
		if err != nil {
			return err
		}
		err = tx.WithContext(ctx).Model(&Order{}).Where("id = ?", order.ID).
			Update("payment_status", PaymentStatusFailed).Error
		if err != nil {
			return err
		}
		order.PaymentStatus = PaymentStatusFailed
		if order.Status == OrderStatusPending {
			return setOrderStatus(tx, ctx, order, OrderStatusCancelled)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// ConfirmReceived records delivery. The order total is credited to the
// customer's lifetime spend, which may bump their tier.
func ConfirmReceived(ctx context.Context, orderId int, customerId int) (*Order, error) {
	db := config.GetDB()
	var order *Order
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = lockOrderForUpdate(tx, ctx, orderId)
		if err != nil {
			return err
		}
		if order.CustomerId != customerId {
			return utils.NewNotFoundError("order", orderId)
		}
		if err := setOrderStatus(tx, ctx, order, OrderStatusCompleted); err != nil {
			return err
		}
		return CreditCustomerSpend(tx, ctx, order.CustomerId, order.TotalAmount)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}
