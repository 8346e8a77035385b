package workflow

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/shop_backend/config"
	"bitbucket.org/mmdatafocus/shop_backend/models"
	"bitbucket.org/mmdatafocus/shop_backend/utils"
)

// NotificationSender delivers customer-facing messages. Delivery is
// best effort: a send failure is logged and never fails the operation
// that triggered it.
type NotificationSender interface {
	Send(ctx context.Context, msg config.NotificationMessage) error
}

// PubSubSender publishes notifications to the notification topic,
// where a downstream service fans them out to SMS and email.
type PubSubSender struct{}

func (PubSubSender) Send(ctx context.Context, msg config.NotificationMessage) error {
	_, err := config.PublishNotification(ctx, msg)
	return err
}

// LogSender is used when PubSub is not configured (local development,
// tests): messages only hit the log.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, msg config.NotificationMessage) error {
	logger := config.GetLogger()
	if logger != nil {
		logger.Info(fmt.Sprintf("notification [%s] to %s", msg.Template, msg.Recipient))
	}
	return nil
}

func DefaultSender() NotificationSender {
	if config.PubSubConfigured() {
		return PubSubSender{}
	}
	return LogSender{}
}

// NotifyOrderEvent tells the order's customer about a lifecycle event.
// Called after the surrounding transaction has committed; failures are
// logged and swallowed.
func NotifyOrderEvent(ctx context.Context, sender NotificationSender, order *models.Order, template string) {
	if sender == nil || order == nil {
		return
	}
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	msg := config.NotificationMessage{
		Recipient: order.BillingPhone,
		Template:  template,
		Data: map[string]interface{}{
			"tracking_number": order.TrackingNumber,
			"status":          string(order.Status),
			"total_amount":    order.TotalAmount.String(),
		},
		CorrelationId: correlationId,
		CreatedAt:     time.Now().UTC(),
	}
	if err := sender.Send(ctx, msg); err != nil {
		config.LogError(config.GetLogger(), "notificationWorkflow.go", "NotifyOrderEvent",
			template, order.TrackingNumber, err)
	}
}
