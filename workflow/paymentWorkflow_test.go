package workflow

import (
	"context"
	"testing"

	"bitbucket.org/mmdatafocus/shop_backend/models"
)

func TestGatewayFor(t *testing.T) {
	offline := []models.PaymentMethod{
		models.PaymentMethodCashOnDelivery,
		models.PaymentMethodBankTransfer,
	}
	for _, m := range offline {
		if _, ok := GatewayFor(m).(OfflineGateway); !ok {
			t.Errorf("%s: expected OfflineGateway", m)
		}
	}
	hosted := []models.PaymentMethod{
		models.PaymentMethodCard,
		models.PaymentMethodWallet,
	}
	for _, m := range hosted {
		if _, ok := GatewayFor(m).(HostedGateway); !ok {
			t.Errorf("%s: expected HostedGateway", m)
		}
	}
}

func TestOfflineGateway_OutOfBand(t *testing.T) {
	init, err := OfflineGateway{}.Initiate(context.Background(), &models.Order{})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if !init.OutOfBand || init.RedirectURL != "" {
		t.Errorf("offline initiation should be out-of-band with no redirect, got %+v", init)
	}
}

func TestHostedGateway_RedirectURL(t *testing.T) {
	g := HostedGateway{BaseURL: "https://pay.example.com"}
	init, err := g.Initiate(context.Background(), &models.Order{TrackingNumber: "TRK-20260301-ABCDEF1234"})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	want := "https://pay.example.com/pay/TRK-20260301-ABCDEF1234"
	if init.RedirectURL != want {
		t.Errorf("redirect url: got %q, want %q", init.RedirectURL, want)
	}
	if init.OutOfBand {
		t.Error("hosted initiation must not be out-of-band")
	}
}

func TestHostedGateway_MissingConfig(t *testing.T) {
	t.Setenv("PAYMENT_GATEWAY_URL", "")
	if _, err := (HostedGateway{}).Initiate(context.Background(), &models.Order{TrackingNumber: "TRK"}); err == nil {
		t.Fatal("expected error when gateway url is not configured")
	}
}
