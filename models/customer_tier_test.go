package models_test

import (
	"testing"

	"bitbucket.org/mmdatafocus/shop_backend/models"
	"github.com/shopspring/decimal"
)

func TestTierForSpend(t *testing.T) {
	cases := []struct {
		spend int64
		want  models.CustomerTier
	}{
		{0, models.CustomerTierBronze},
		{999999, models.CustomerTierBronze},
		{1000000, models.CustomerTierSilver},
		{2999999, models.CustomerTierSilver},
		{3000000, models.CustomerTierGold},
		{9999999, models.CustomerTierGold},
		{10000000, models.CustomerTierPlatinum},
		{50000000, models.CustomerTierPlatinum},
	}
	for _, tc := range cases {
		if got := models.TierForSpend(decimal.NewFromInt(tc.spend)); got != tc.want {
			t.Errorf("spend %d: got %s, want %s", tc.spend, got, tc.want)
		}
	}
}

func TestTierForSpend_NegativeClampsToBronze(t *testing.T) {
	if got := models.TierForSpend(decimal.NewFromInt(-100)); got != models.CustomerTierBronze {
		t.Errorf("negative spend: got %s, want Bronze", got)
	}
}
