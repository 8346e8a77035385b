package models_test

import (
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/shop_backend/config"
	"bitbucket.org/mmdatafocus/shop_backend/models"
	"bitbucket.org/mmdatafocus/shop_backend/workflow"
	"github.com/shopspring/decimal"
)

// A sale whose window is edited into the past is expired by the next
// sweep, and edited back into validity it revives. Discounts do not get
// the revival half of this behavior; that split is covered by the
// decision tests in campaign_decision_test.go.
func TestCampaignSweep_SaleExpiryAndRevival(t *testing.T) {
	ctx := setupIntegrationEnv(t)
	variationId, _ := seedCatalog(t, ctx, "SWEEP-TEE-01", 2)

	db := config.GetDB()
	var variation models.Variation
	if err := db.First(&variation, variationId).Error; err != nil {
		t.Fatalf("load variation: %v", err)
	}

	now := time.Now().UTC()
	sale, err := models.CreateSale(ctx, &models.NewSale{
		Name:       "Season Opener",
		Value:      decimal.NewFromInt(10),
		Type:       models.DiscountTypePercentage,
		StartDate:  now.Add(-time.Hour),
		EndDate:    now.Add(time.Hour),
		ProductIds: []int{variation.ProductId},
	})
	if err != nil {
		t.Fatalf("CreateSale: %v", err)
	}
	if sale.Status != models.SaleStatusActive {
		t.Fatalf("initial status: got %s, want %s", sale.Status, models.SaleStatusActive)
	}

	sweeper := workflow.NewCampaignSweeper(db, config.GetLogger())

	if _, err := models.UpdateSaleWindow(ctx, sale.ID, now.Add(-3*time.Hour), now.Add(-2*time.Hour)); err != nil {
		t.Fatalf("UpdateSaleWindow (past): %v", err)
	}
	sweeper.SweepOnce(ctx)
	if got := reloadSaleStatus(t, sale.ID); got != models.SaleStatusExpired {
		t.Fatalf("after expiry sweep: got %s, want %s", got, models.SaleStatusExpired)
	}

	if _, err := models.UpdateSaleWindow(ctx, sale.ID, now.Add(-time.Hour), now.Add(time.Hour)); err != nil {
		t.Fatalf("UpdateSaleWindow (revive): %v", err)
	}
	sweeper.SweepOnce(ctx)
	if got := reloadSaleStatus(t, sale.ID); got != models.SaleStatusActive {
		t.Fatalf("after revival sweep: got %s, want %s", got, models.SaleStatusActive)
	}

	// A second sweep over unchanged state is a no-op.
	sweeper.SweepOnce(ctx)
	if got := reloadSaleStatus(t, sale.ID); got != models.SaleStatusActive {
		t.Fatalf("after repeat sweep: got %s, want %s", got, models.SaleStatusActive)
	}
}

func reloadSaleStatus(t *testing.T, saleId int) models.SaleStatus {
	t.Helper()
	var sale models.Sale
	if err := config.GetDB().First(&sale, saleId).Error; err != nil {
		t.Fatalf("load sale: %v", err)
	}
	return sale.Status
}
