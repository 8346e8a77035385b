package workflow

import (
	"context"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/shop_backend/models"
	"bitbucket.org/mmdatafocus/shop_backend/utils"
)

// PaymentInitiation is what the storefront needs after an order is
// placed: either a redirect to a hosted payment page, or confirmation
// that payment will be collected out of band.
type PaymentInitiation struct {
	RedirectURL string `json:"redirect_url,omitempty"`
	OutOfBand   bool   `json:"out_of_band"`
}

type PaymentGateway interface {
	Initiate(ctx context.Context, order *models.Order) (*PaymentInitiation, error)
}

// OfflineGateway covers cash on delivery and bank transfer: nothing to
// redirect to, settlement is recorded by staff later.
type OfflineGateway struct{}

func (OfflineGateway) Initiate(ctx context.Context, order *models.Order) (*PaymentInitiation, error) {
	return &PaymentInitiation{OutOfBand: true}, nil
}

// HostedGateway redirects the customer to an external payment page;
// the provider reports the outcome through the payment callback.
type HostedGateway struct {
	BaseURL string
}

func (g HostedGateway) Initiate(ctx context.Context, order *models.Order) (*PaymentInitiation, error) {
	base := g.BaseURL
	if base == "" {
		base = os.Getenv("PAYMENT_GATEWAY_URL")
	}
	if base == "" {
		return nil, utils.NewBusinessRuleViolation("payment_gateway",
			"PAYMENT_GATEWAY_URL is not configured")
	}
	return &PaymentInitiation{
		RedirectURL: fmt.Sprintf("%s/pay/%s", base, order.TrackingNumber),
	}, nil
}

func GatewayFor(method models.PaymentMethod) PaymentGateway {
	if method.IsSynchronous() {
		return OfflineGateway{}
	}
	return HostedGateway{}
}

// InitiatePayment hands a freshly created order to the gateway matching
// its payment method. Synchronous methods have no callback, so their
// settlement is recorded here.
func InitiatePayment(ctx context.Context, order *models.Order) (*PaymentInitiation, error) {
	initiation, err := GatewayFor(order.PaymentMethod).Initiate(ctx, order)
	if err != nil {
		return nil, err
	}
	if order.PaymentMethod.IsSynchronous() {
		settled, _, err := models.SettleOrderPayment(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		order.PaymentStatus = settled.PaymentStatus
	}
	return initiation, nil
}

// CompletePayment handles the gateway callback. A failed payment on a
// still-Pending order cancels it and returns its units to stock; a
// success settles the payment. Either way the customer is told what
// happened.
func CompletePayment(ctx context.Context, sender NotificationSender, orderId int, success bool) (*models.Order, error) {
	if success {
		order, changed, err := models.SettleOrderPayment(ctx, orderId)
		if err != nil {
			return nil, err
		}
		if changed {
			NotifyOrderEvent(ctx, sender, order, "payment_settled")
		}
		return order, nil
	}

	order, err := models.FailOrderPayment(ctx, orderId)
	if err != nil {
		return nil, err
	}
	if order.Status == models.OrderStatusCancelled {
		NotifyOrderEvent(ctx, sender, order, "order_cancelled")
	} else {
		NotifyOrderEvent(ctx, sender, order, "payment_failed")
	}
	return order, nil
}
