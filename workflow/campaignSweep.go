package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"bitbucket.org/mmdatafocus/shop_backend/config"
	"bitbucket.org/mmdatafocus/shop_backend/models"
	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var tracer trace.Tracer = otel.Tracer("shop-backend")

// CampaignSweeper periodically reconciles discount and sale statuses
// against their time windows. The sweep is idempotent: once statuses
// match the clock, running it again changes nothing.
type CampaignSweeper struct {
	DB        *gorm.DB
	Logger    *logrus.Logger
	SweeperID string

	SweepInterval time.Duration

	running int32
}

func NewCampaignSweeper(db *gorm.DB, logger *logrus.Logger) *CampaignSweeper {
	interval := 60 * time.Second
	if raw := os.Getenv("CAMPAIGN_SWEEP_SECONDS"); raw != "" {
		if seconds, err := strconv.Atoi(raw); err == nil && seconds > 0 {
			interval = time.Duration(seconds) * time.Second
		}
	}
	return &CampaignSweeper{
		DB:            db,
		Logger:        logger,
		SweeperID:     uuid.NewString(),
		SweepInterval: interval,
	}
}

func (s *CampaignSweeper) Run(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		s.SweepOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.SweepInterval):
		}
	}
}

// tryBegin claims the sweeper for one pass; a pass still in flight when
// the ticker fires again is skipped rather than stacked.
func (s *CampaignSweeper) tryBegin() bool {
	return atomic.CompareAndSwapInt32(&s.running, 0, 1)
}

func (s *CampaignSweeper) end() {
	atomic.StoreInt32(&s.running, 0)
}

func (s *CampaignSweeper) SweepOnce(ctx context.Context) {
	if !s.tryBegin() {
		return
	}
	defer s.end()
	if s.DB == nil {
		return
	}

	// Single-flight across replicas; a lost lock just means another
	// instance is sweeping, which is fine.
	locker := config.GetRedisLock()
	if locker != nil {
		lock, err := locker.Obtain(ctx, "campaign-sweep", s.SweepInterval, nil)
		if err == redislock.ErrNotObtained {
			return
		}
		if err == nil {
			defer lock.Release(ctx)
		}
	}

	ctx, span := tracer.Start(ctx, "campaign-sweep")
	defer span.End()

	now := time.Now().UTC()
	discountChanges, err := s.sweepDiscounts(ctx, now)
	if err != nil {
		config.LogError(s.Logger, "campaignSweep.go", "SweepOnce", "sweepDiscounts", "", err)
	}
	saleChanges, removed, err := s.sweepSales(ctx, now)
	if err != nil {
		config.LogError(s.Logger, "campaignSweep.go", "SweepOnce", "sweepSales", "", err)
	}

	if discountChanges+saleChanges+removed > 0 && s.Logger != nil {
		s.Logger.WithFields(logrus.Fields{
			"field":             "CampaignSweeper",
			"sweeper_id":        s.SweeperID,
			"discount_changes":  discountChanges,
			"sale_changes":      saleChanges,
			"products_delisted": removed,
		}).Info("campaign sweep applied changes")
	}
}

// sweepDiscounts moves every live discount to the status its window
// dictates. Expired is terminal, so those rows are never re-read.
func (s *CampaignSweeper) sweepDiscounts(ctx context.Context, now time.Time) (int, error) {
	changes := 0
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var discounts []models.Discount
		err := tx.
			Where("status <> ?", models.DiscountStatusExpired).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Find(&discounts).Error
		if err != nil {
			return err
		}
		for i := range discounts {
			d := &discounts[i]
			next := models.NextDiscountStatus(now, d.Status, d.StartDate, d.EndDate)
			// A discount that ran out of uses stays inactive even
			// inside its window.
			if next == models.DiscountStatusActive &&
				d.UsageLimit > 0 && d.UsageCount >= d.UsageLimit {
				next = models.DiscountStatusInactive
			}
			if next == d.Status {
				continue
			}
			err := tx.Model(&models.Discount{}).Where("id = ?", d.ID).
				Update("status", next).Error
			if err != nil {
				return err
			}
			changes++
		}
		return nil
	})
	return changes, err
}

// sweepSales applies window transitions to every sale, including the
// revival of an expired sale whose end date was pushed into the
// future, then delists zero-stock products from active sales.
func (s *CampaignSweeper) sweepSales(ctx context.Context, now time.Time) (int, int, error) {
	changes := 0
	var removed int64
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sales []models.Sale
		err := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Find(&sales).Error
		if err != nil {
			return err
		}
		for i := range sales {
			sale := &sales[i]
			next := models.NextSaleStatus(now, sale.Status, sale.StartDate, sale.EndDate)
			if next == sale.Status {
				continue
			}
			err := tx.Model(&models.Sale{}).Where("id = ?", sale.ID).
				Update("status", next).Error
			if err != nil {
				return err
			}
			changes++
		}

		removed, err = models.ReconcileSaleEligibility(tx, ctx)
		return err
	})
	return changes, int(removed), err
}

// SweepSummary reports current campaign counts for the manager report
// endpoint.
func (s *CampaignSweeper) SweepSummary(ctx context.Context) (string, error) {
	if s.DB == nil {
		return "", errors.New("database not ready")
	}
	var activeDiscounts, activeSales int64
	err := s.DB.WithContext(ctx).Model(&models.Discount{}).
		Where("status = ?", models.DiscountStatusActive).Count(&activeDiscounts).Error
	if err != nil {
		return "", err
	}
	err = s.DB.WithContext(ctx).Model(&models.Sale{}).
		Where("status = ?", models.SaleStatusActive).Count(&activeSales).Error
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("active_discounts=%d active_sales=%d", activeDiscounts, activeSales), nil
}
