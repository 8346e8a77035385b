package models_test

import (
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/shop_backend/models"
	"github.com/shopspring/decimal"
)

var (
	windowStart = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	windowEnd   = time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
)

func TestDiscountWindowContains(t *testing.T) {
	cases := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"before start", windowStart.Add(-time.Second), false},
		{"exactly at start", windowStart, true},
		{"inside", windowStart.AddDate(0, 0, 10), true},
		{"exactly at end", windowEnd, false},
		{"after end", windowEnd.Add(time.Second), false},
	}
	for _, tc := range cases {
		if got := models.DiscountWindowContains(tc.now, windowStart, windowEnd); got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestNextDiscountStatus_ExpiredIsTerminal(t *testing.T) {
	// Window fully in the future, yet an expired discount stays expired.
	now := windowStart.AddDate(0, 0, 5)
	got := models.NextDiscountStatus(now, models.DiscountStatusExpired, windowStart, windowEnd)
	if got != models.DiscountStatusExpired {
		t.Errorf("expired discount must stay expired, got %s", got)
	}
}

func TestNextDiscountStatus_Transitions(t *testing.T) {
	cases := []struct {
		name    string
		now     time.Time
		current models.DiscountStatus
		want    models.DiscountStatus
	}{
		{"inactive before window", windowStart.Add(-time.Hour), models.DiscountStatusInactive, models.DiscountStatusInactive},
		{"inactive inside window activates", windowStart.Add(time.Hour), models.DiscountStatusInactive, models.DiscountStatusActive},
		{"active inside window stays", windowStart.Add(time.Hour), models.DiscountStatusActive, models.DiscountStatusActive},
		{"active past end expires", windowEnd, models.DiscountStatusActive, models.DiscountStatusExpired},
		{"inactive past end expires", windowEnd.Add(time.Hour), models.DiscountStatusInactive, models.DiscountStatusExpired},
	}
	for _, tc := range cases {
		if got := models.NextDiscountStatus(tc.now, tc.current, windowStart, windowEnd); got != tc.want {
			t.Errorf("%s: got %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestNextDiscountStatus_SweepIsIdempotent(t *testing.T) {
	// Applying the decision twice with the same clock changes nothing.
	for _, current := range []models.DiscountStatus{
		models.DiscountStatusInactive, models.DiscountStatusActive, models.DiscountStatusExpired,
	} {
		for _, now := range []time.Time{
			windowStart.Add(-time.Hour), windowStart.Add(time.Hour), windowEnd.Add(time.Hour),
		} {
			once := models.NextDiscountStatus(now, current, windowStart, windowEnd)
			twice := models.NextDiscountStatus(now, once, windowStart, windowEnd)
			if once != twice {
				t.Errorf("not idempotent: %s at %v gave %s then %s", current, now, once, twice)
			}
		}
	}
}

func TestNextSaleStatus_ExpiredSaleRevives(t *testing.T) {
	// A sale whose end date was pushed into the future comes back,
	// unlike a discount in the same situation.
	now := windowStart.AddDate(0, 0, 5)
	got := models.NextSaleStatus(now, models.SaleStatusExpired, windowStart, windowEnd)
	if got != models.SaleStatusActive {
		t.Errorf("expired sale inside window must revive, got %s", got)
	}

	// But not before its start date has passed.
	early := windowStart.Add(-time.Hour)
	got = models.NextSaleStatus(early, models.SaleStatusExpired, windowStart, windowEnd)
	if got != models.SaleStatusExpired {
		t.Errorf("expired sale before start must stay expired, got %s", got)
	}
}

func TestNextSaleStatus_Transitions(t *testing.T) {
	cases := []struct {
		name    string
		now     time.Time
		current models.SaleStatus
		want    models.SaleStatus
	}{
		{"active inside window stays", windowStart.Add(time.Hour), models.SaleStatusActive, models.SaleStatusActive},
		{"active past end expires", windowEnd, models.SaleStatusActive, models.SaleStatusExpired},
		{"inactive inside window activates", windowStart.Add(time.Hour), models.SaleStatusInactive, models.SaleStatusActive},
		{"inactive past end expires", windowEnd.Add(time.Hour), models.SaleStatusInactive, models.SaleStatusExpired},
		{"inactive before window stays", windowStart.Add(-time.Hour), models.SaleStatusInactive, models.SaleStatusInactive},
	}
	for _, tc := range cases {
		if got := models.NextSaleStatus(tc.now, tc.current, windowStart, windowEnd); got != tc.want {
			t.Errorf("%s: got %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestNextSaleStatus_SweepIsIdempotent(t *testing.T) {
	for _, current := range []models.SaleStatus{
		models.SaleStatusInactive, models.SaleStatusActive, models.SaleStatusExpired,
	} {
		for _, now := range []time.Time{
			windowStart.Add(-time.Hour), windowStart.Add(time.Hour), windowEnd.Add(time.Hour),
		} {
			once := models.NextSaleStatus(now, current, windowStart, windowEnd)
			twice := models.NextSaleStatus(now, once, windowStart, windowEnd)
			if once != twice {
				t.Errorf("not idempotent: %s at %v gave %s then %s", current, now, once, twice)
			}
		}
	}
}

func TestCalculateDiscountAmount_Percentage(t *testing.T) {
	d := &models.Discount{
		Type:  models.DiscountTypePercentage,
		Value: decimal.NewFromInt(10),
	}
	got := models.CalculateDiscountAmount(decimal.NewFromInt(50000), d)
	if !got.Equal(decimal.NewFromInt(5000)) {
		t.Errorf("10%% of 50000: got %s, want 5000", got)
	}
}

func TestCalculateDiscountAmount_PercentageCappedByMax(t *testing.T) {
	d := &models.Discount{
		Type:              models.DiscountTypePercentage,
		Value:             decimal.NewFromInt(20),
		MaxDiscountAmount: decimal.NewFromInt(3000),
	}
	got := models.CalculateDiscountAmount(decimal.NewFromInt(50000), d)
	if !got.Equal(decimal.NewFromInt(3000)) {
		t.Errorf("capped percentage: got %s, want 3000", got)
	}
}

func TestCalculateDiscountAmount_AmountNeverExceedsSubtotal(t *testing.T) {
	d := &models.Discount{
		Type:  models.DiscountTypeAmount,
		Value: decimal.NewFromInt(10000),
	}
	got := models.CalculateDiscountAmount(decimal.NewFromInt(2500), d)
	if !got.Equal(decimal.NewFromInt(2500)) {
		t.Errorf("fixed amount above subtotal: got %s, want 2500", got)
	}
}
