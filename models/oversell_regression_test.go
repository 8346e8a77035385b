package models_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/shop_backend/config"
	"bitbucket.org/mmdatafocus/shop_backend/models"
	"bitbucket.org/mmdatafocus/shop_backend/utils"
	"github.com/shopspring/decimal"
)

// Regression: two concurrent orders for the last unit of a variation
// must not both succeed. The conditional decrement on stock_levels is
// the guard; this exercises it end to end.
func TestConcurrentOrders_LastUnitSellsOnce(t *testing.T) {
	ctx := setupIntegrationEnv(t)

	variation, customerA := seedCatalog(t, ctx, "TSHIRT-001", 1)
	customerB, err := models.CreateCustomer(ctx, &models.NewCustomer{
		Name:  "Second Buyer",
		Email: "second@buyer.test",
	})
	if err != nil {
		t.Fatalf("CreateCustomer: %v", err)
	}

	orderFor := func(customerId int) (*models.Order, error) {
		return models.CreateOrder(ctx, &models.NewOrder{
			CustomerId:     customerId,
			Lines:          []models.NewOrderLine{{VariationId: variation, Qty: 1}},
			PaymentMethod:  models.PaymentMethodCashOnDelivery,
			ShippingMethod: models.ShippingMethodStandard,
			BillingName:    "Buyer",
			BillingPhone:   "+959791000001",
			BillingAddress: "No. 1, Test Street, Yangon",
		})
	}

	var wg sync.WaitGroup
	results := make([]error, 2)
	orders := make([]*models.Order, 2)
	for i, customerId := range []int{customerA, customerB.ID} {
		wg.Add(1)
		go func(i, customerId int) {
			defer wg.Done()
			orders[i], results[i] = orderFor(customerId)
		}(i, customerId)
	}
	wg.Wait()

	var won, lost int
	for i, err := range results {
		if err == nil {
			won++
			continue
		}
		lost++
		var stockErr *utils.InsufficientStockError
		if !errors.As(err, &stockErr) {
			t.Errorf("loser %d: expected InsufficientStockError, got %v", i, err)
		}
	}
	if won != 1 || lost != 1 {
		t.Fatalf("expected exactly one winner, got %d winners / %d losers", won, lost)
	}

	available, err := models.AvailableStock(config.GetDB(), ctx, variation)
	if err != nil {
		t.Fatalf("AvailableStock: %v", err)
	}
	if available != 0 {
		t.Fatalf("available after sellout: got %d, want 0", available)
	}

	// The losing order must leave no trace: exactly one order exists.
	var orderCount int64
	if err := config.GetDB().WithContext(ctx).Model(&models.Order{}).Count(&orderCount).Error; err != nil {
		t.Fatalf("count orders: %v", err)
	}
	if orderCount != 1 {
		t.Fatalf("order count after race: got %d, want 1", orderCount)
	}
}

// Regression: releasing a cancelled order appends IN rows instead of
// mutating the OUT rows, and restores availability exactly.
func TestCancelledOrder_ReleasesStockViaLedger(t *testing.T) {
	ctx := setupIntegrationEnv(t)

	variation, customerId := seedCatalog(t, ctx, "HOODIE-001", 3)

	order, err := models.CreateOrder(ctx, &models.NewOrder{
		CustomerId:     customerId,
		Lines:          []models.NewOrderLine{{VariationId: variation, Qty: 2}},
		PaymentMethod:  models.PaymentMethodCashOnDelivery,
		ShippingMethod: models.ShippingMethodExpress,
		BillingName:    "Buyer",
		BillingPhone:   "+959791000001",
		BillingAddress: "No. 1, Test Street, Yangon",
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if len(order.Units) != 2 {
		t.Fatalf("unit count: got %d, want 2", len(order.Units))
	}
	if order.Units[0].SerialNumber == order.Units[1].SerialNumber {
		t.Fatalf("unit serials collided: %q", order.Units[0].SerialNumber)
	}

	available, err := models.AvailableStock(config.GetDB(), ctx, variation)
	if err != nil {
		t.Fatalf("AvailableStock: %v", err)
	}
	if available != 1 {
		t.Fatalf("available after reservation: got %d, want 1", available)
	}

	outRows, err := models.OrderLedgerRows(ctx, order.ID)
	if err != nil {
		t.Fatalf("OrderLedgerRows: %v", err)
	}
	if len(outRows) != 2 {
		t.Fatalf("ledger rows after reservation: got %d, want 2", len(outRows))
	}

	if _, err := models.CancelOrder(ctx, order.ID, customerId); err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}

	available, err = models.AvailableStock(config.GetDB(), ctx, variation)
	if err != nil {
		t.Fatalf("AvailableStock: %v", err)
	}
	if available != 3 {
		t.Fatalf("available after cancel: got %d, want 3", available)
	}

	allRows, err := models.OrderLedgerRows(ctx, order.ID)
	if err != nil {
		t.Fatalf("OrderLedgerRows: %v", err)
	}
	if len(allRows) != 3 {
		t.Fatalf("ledger rows after release: got %d, want 3 (2 OUT + 1 IN)", len(allRows))
	}
	var inQty, outQty int
	for _, row := range allRows {
		switch row.Direction {
		case models.StockDirectionIn:
			inQty += row.Qty
		case models.StockDirectionOut:
			outQty += row.Qty
		}
	}
	if inQty != outQty {
		t.Fatalf("ledger out of balance after release: IN=%d OUT=%d", inQty, outQty)
	}

	// A terminal order rejects further transitions.
	if _, err := models.ApproveOrder(ctx, order.ID, 1); err == nil {
		t.Fatal("expected transition from Cancelled to fail")
	}
}

// Regression: a single-use assigned discount consumed by one order must
// reject a second consumption by the same customer.
func TestAssignedDiscount_SecondUseRejected(t *testing.T) {
	ctx := setupIntegrationEnv(t)

	variation, customerId := seedCatalog(t, ctx, "CAP-001", 4)

	discount, err := models.CreateDiscount(ctx, &models.NewDiscount{
		Code:       "WELCOME10",
		Type:       models.DiscountTypePercentage,
		Value:      decimal.NewFromInt(10),
		StartDate:  time.Now().UTC().Add(-time.Hour),
		EndDate:    time.Now().UTC().Add(24 * time.Hour),
		UsageLimit: 1,
	})
	if err != nil {
		t.Fatalf("CreateDiscount: %v", err)
	}
	if err := models.AssignDiscount(ctx, discount.ID, []int{customerId}); err != nil {
		t.Fatalf("AssignDiscount: %v", err)
	}
	// Assigning twice is idempotent.
	if err := models.AssignDiscount(ctx, discount.ID, []int{customerId}); err != nil {
		t.Fatalf("AssignDiscount (repeat): %v", err)
	}

	code := "WELCOME10"
	newOrder := func() (*models.Order, error) {
		return models.CreateOrder(ctx, &models.NewOrder{
			CustomerId:     customerId,
			Lines:          []models.NewOrderLine{{VariationId: variation, Qty: 1}},
			PaymentMethod:  models.PaymentMethodCashOnDelivery,
			ShippingMethod: models.ShippingMethodStandard,
			DiscountCode:   &code,
			BillingName:    "Buyer",
			BillingPhone:   "+959791000001",
			BillingAddress: "No. 1, Test Street, Yangon",
		})
	}

	first, err := newOrder()
	if err != nil {
		t.Fatalf("first discounted order: %v", err)
	}
	if !first.DiscountAmount.IsPositive() {
		t.Fatalf("first order should carry a discount, got %s", first.DiscountAmount)
	}
	wantTotal := first.Subtotal.Sub(first.DiscountAmount)
	if !first.TotalAmount.Equal(wantTotal) {
		t.Fatalf("total: got %s, want %s", first.TotalAmount, wantTotal)
	}

	// Consuming the last use bumps the count and deactivates the
	// discount immediately, ahead of the next sweep.
	var consumed models.Discount
	if err := config.GetDB().WithContext(ctx).First(&consumed, discount.ID).Error; err != nil {
		t.Fatalf("reload discount: %v", err)
	}
	if consumed.UsageCount != 1 {
		t.Fatalf("usage count after first use: got %d, want 1", consumed.UsageCount)
	}
	if consumed.Status != models.DiscountStatusInactive {
		t.Fatalf("status after limit reached: got %s, want %s",
			consumed.Status, models.DiscountStatusInactive)
	}

	if _, err := newOrder(); err == nil {
		t.Fatal("second use of a single-use discount must fail")
	}

	// The failed second order must not have reserved anything.
	available, err := models.AvailableStock(config.GetDB(), ctx, variation)
	if err != nil {
		t.Fatalf("AvailableStock: %v", err)
	}
	if available != 3 {
		t.Fatalf("available after rejected order: got %d, want 3", available)
	}
}

// setupIntegrationEnv gates on INTEGRATION_TESTS, boots MySQL and Redis
// in docker, connects, migrates, and returns a staff-scoped context.
func setupIntegrationEnv(t *testing.T) context.Context {
	t.Helper()
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "shop_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	ctx := context.Background()
	staff, err := models.CreateStaff(ctx, &models.NewStaff{
		Username: "warehouse",
		Name:     "Warehouse Staff",
		Password: "testpw-123",
		Role:     models.StaffRoleStaff,
	})
	if err != nil {
		t.Fatalf("CreateStaff: %v", err)
	}
	return utils.SetStaffIdInContext(ctx, staff.ID)
}

// seedCatalog creates a supplier, a location, a customer and a one-
// variation product with qty units in stock; returns the variation and
// customer ids.
func seedCatalog(t *testing.T, ctx context.Context, sku string, qty int) (variationId, customerId int) {
	t.Helper()

	supplier, err := models.CreateSupplier(ctx, &models.NewSupplier{
		Name:  "Main Supplier",
		Email: "supplier@test.local",
	})
	if err != nil {
		t.Fatalf("CreateSupplier: %v", err)
	}
	location, err := models.CreateStockLocation(ctx, &models.NewStockLocation{
		Name: "Main Warehouse",
	})
	if err != nil {
		t.Fatalf("CreateStockLocation: %v", err)
	}
	customer, err := models.CreateCustomer(ctx, &models.NewCustomer{
		Name:  "First Buyer",
		Email: "first@buyer.test",
	})
	if err != nil {
		t.Fatalf("CreateCustomer: %v", err)
	}

	product, err := models.CreateProduct(ctx, &models.NewProduct{
		Name: "Test Product " + sku,
		Sku:  sku,
		Variations: []models.NewVariation{
			{Color: "Black", Size: "M", Price: decimal.NewFromInt(15000)},
		},
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	if len(product.Variations) != 1 {
		t.Fatalf("variation count: got %d, want 1", len(product.Variations))
	}
	variation := product.Variations[0].ID

	if _, err := models.RecordStockIntake(ctx, &models.NewStockIntake{
		SupplierId: supplier.ID,
		LocationId: location.ID,
		Lines:      []models.NewIntakeLine{{VariationId: variation, Qty: qty}},
	}); err != nil {
		t.Fatalf("RecordStockIntake: %v", err)
	}

	// First intake advances the product out of ComingSoon.
	fresh, err := models.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if fresh.Status != models.ProductStatusOnSale {
		t.Fatalf("product status after intake: got %s, want OnSale", fresh.Status)
	}

	return variation, customer.ID
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("shop-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("shop-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=shop_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
