package main

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/shop_backend/config"
	"bitbucket.org/mmdatafocus/shop_backend/models"
	"bitbucket.org/mmdatafocus/shop_backend/utils"
	"bitbucket.org/mmdatafocus/shop_backend/workflow"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

func decimalFromFloat(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// writeBindingError reports request-body binding failures field by
// field so clients see which inputs were rejected.
func writeBindingError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":  "invalid request body",
		"fields": utils.ProcessValidationErrors(err),
	})
}

// writeError translates the model error taxonomy into HTTP statuses.
func writeError(c *gin.Context, err error) {
	var validationErr *utils.ValidationError
	var notFoundErr *utils.NotFoundError
	var transitionErr *utils.InvalidStateTransitionError
	var stockErr *utils.InsufficientStockError
	var ruleErr *utils.BusinessRuleViolationError

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Error()})
	case errors.As(err, &notFoundErr) || errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &transitionErr):
		c.JSON(http.StatusConflict, gin.H{"error": transitionErr.Error()})
	case errors.As(err, &stockErr):
		c.JSON(http.StatusConflict, gin.H{
			"error":     stockErr.Error(),
			"product":   stockErr.Product,
			"color":     stockErr.Color,
			"size":      stockErr.Size,
			"available": stockErr.Available,
		})
	case errors.As(err, &ruleErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": ruleErr.Error()})
	default:
		config.LogError(config.GetLogger(), "handlers.go", "writeError", c.FullPath(), nil, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func pathId(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid %s", name)})
		return 0, false
	}
	return id, true
}

func staffId(c *gin.Context) (int, bool) {
	id, ok := utils.GetStaffIdFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "staff authentication required"})
	}
	return id, ok
}

func loginHandler() gin.HandlerFunc {
	type loginRequest struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeBindingError(c, err)
			return
		}
		token, err := models.StaffLogin(c.Request.Context(), req.Username, req.Password)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token})
	}
}

func createStaffHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewStaff
		if err := c.ShouldBindJSON(&input); err != nil {
			writeBindingError(c, err)
			return
		}
		staff, err := models.CreateStaff(c.Request.Context(), &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, staff)
	}
}

func createProductHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewProduct
		if err := c.ShouldBindJSON(&input); err != nil {
			writeBindingError(c, err)
			return
		}
		product, err := models.CreateProduct(c.Request.Context(), &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, product)
	}
}

func getProductHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		product, err := models.GetProduct(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, product)
	}
}

func createCustomerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewCustomer
		if err := c.ShouldBindJSON(&input); err != nil {
			writeBindingError(c, err)
			return
		}
		customer, err := models.CreateCustomer(c.Request.Context(), &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, customer)
	}
}

func getCustomerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		customer, err := models.GetCustomer(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, customer)
	}
}

func createSupplierHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewSupplier
		if err := c.ShouldBindJSON(&input); err != nil {
			writeBindingError(c, err)
			return
		}
		supplier, err := models.CreateSupplier(c.Request.Context(), &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, supplier)
	}
}

func createStockLocationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewStockLocation
		if err := c.ShouldBindJSON(&input); err != nil {
			writeBindingError(c, err)
			return
		}
		location, err := models.CreateStockLocation(c.Request.Context(), &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, location)
	}
}

func stockIntakeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewStockIntake
		if err := c.ShouldBindJSON(&input); err != nil {
			writeBindingError(c, err)
			return
		}
		transactions, err := models.RecordStockIntake(c.Request.Context(), &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"transactions": transactions})
	}
}

func retireVariationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		if err := models.RetireVariation(c.Request.Context(), id); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func availableStockHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		available, err := models.AvailableStock(config.GetDB(), c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"variation_id": id, "available": available})
	}
}

func createOrderHandler(sender workflow.NotificationSender) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewOrder
		if err := c.ShouldBindJSON(&input); err != nil {
			writeBindingError(c, err)
			return
		}
		order, err := models.CreateOrder(c.Request.Context(), &input)
		if err != nil {
			writeError(c, err)
			return
		}
		payment, err := workflow.InitiatePayment(c.Request.Context(), order)
		if err != nil {
			writeError(c, err)
			return
		}
		workflow.NotifyOrderEvent(c.Request.Context(), sender, order, "order_placed")
		c.JSON(http.StatusCreated, gin.H{"order": order, "payment": payment})
	}
}

func getOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		order, err := models.GetOrder(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, order)
	}
}

func trackOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		order, err := models.GetOrderByTrackingNumber(c.Request.Context(), c.Param("trackingNumber"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, order)
	}
}

func customerOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		orders, err := models.GetCustomerOrders(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"orders": orders})
	}
}

func orderLedgerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		rows, err := models.OrderLedgerRows(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"transactions": rows})
	}
}

// staffTransitionHandler wraps the staff-side order transitions that
// share a (orderId, staffId) shape.
func staffTransitionHandler(sender workflow.NotificationSender, template string,
	transition func(c *gin.Context, orderId, staffId int) (*models.Order, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		orderId, ok := pathId(c, "id")
		if !ok {
			return
		}
		actorId, ok := staffId(c)
		if !ok {
			return
		}
		order, err := transition(c, orderId, actorId)
		if err != nil {
			writeError(c, err)
			return
		}
		workflow.NotifyOrderEvent(c.Request.Context(), sender, order, template)
		c.JSON(http.StatusOK, order)
	}
}

// customerTransitionHandler wraps the customer-side transitions, which
// authenticate by customer id in the request body.
func customerTransitionHandler(sender workflow.NotificationSender, template string,
	transition func(c *gin.Context, orderId, customerId int) (*models.Order, error)) gin.HandlerFunc {
	type request struct {
		CustomerId int `json:"customer_id" binding:"required"`
	}
	return func(c *gin.Context) {
		orderId, ok := pathId(c, "id")
		if !ok {
			return
		}
		var req request
		if err := c.ShouldBindJSON(&req); err != nil {
			writeBindingError(c, err)
			return
		}
		order, err := transition(c, orderId, req.CustomerId)
		if err != nil {
			writeError(c, err)
			return
		}
		workflow.NotifyOrderEvent(c.Request.Context(), sender, order, template)
		c.JSON(http.StatusOK, order)
	}
}

func paymentCallbackHandler(sender workflow.NotificationSender) gin.HandlerFunc {
	type request struct {
		OrderId int   `json:"order_id" binding:"required"`
		Success *bool `json:"success" binding:"required"`
	}
	return func(c *gin.Context) {
		var req request
		if err := c.ShouldBindJSON(&req); err != nil {
			writeBindingError(c, err)
			return
		}
		order, err := workflow.CompletePayment(c.Request.Context(), sender, req.OrderId, *req.Success)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, order)
	}
}

func createDiscountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewDiscount
		if err := c.ShouldBindJSON(&input); err != nil {
			writeBindingError(c, err)
			return
		}
		discount, err := models.CreateDiscount(c.Request.Context(), &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, discount)
	}
}

func assignDiscountHandler() gin.HandlerFunc {
	type request struct {
		CustomerIds []int `json:"customer_ids" binding:"required,min=1"`
	}
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		var req request
		if err := c.ShouldBindJSON(&req); err != nil {
			writeBindingError(c, err)
			return
		}
		if err := models.AssignDiscount(c.Request.Context(), id, req.CustomerIds); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func unassignDiscountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		customerId, ok := pathId(c, "customerId")
		if !ok {
			return
		}
		if err := models.UnassignDiscount(c.Request.Context(), id, customerId); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func checkDiscountHandler() gin.HandlerFunc {
	type request struct {
		CustomerId int     `json:"customer_id" binding:"required"`
		Code       string  `json:"code" binding:"required"`
		Subtotal   float64 `json:"subtotal" binding:"required"`
	}
	return func(c *gin.Context) {
		var req request
		if err := c.ShouldBindJSON(&req); err != nil {
			writeBindingError(c, err)
			return
		}
		subtotal := decimalFromFloat(req.Subtotal)
		discount, err := models.CheckDiscountEligibility(c.Request.Context(), req.CustomerId, req.Code, subtotal)
		if err != nil {
			writeError(c, err)
			return
		}
		amount := models.CalculateDiscountAmount(subtotal, discount)
		c.JSON(http.StatusOK, gin.H{"discount": discount, "amount": amount})
	}
}

func createSaleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewSale
		if err := c.ShouldBindJSON(&input); err != nil {
			writeBindingError(c, err)
			return
		}
		sale, err := models.CreateSale(c.Request.Context(), &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, sale)
	}
}

func updateSaleWindowHandler() gin.HandlerFunc {
	type request struct {
		StartDate time.Time `json:"start_date" binding:"required"`
		EndDate   time.Time `json:"end_date" binding:"required"`
	}
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		var req request
		if err := c.ShouldBindJSON(&req); err != nil {
			writeBindingError(c, err)
			return
		}
		sale, err := models.UpdateSaleWindow(c.Request.Context(), id, req.StartDate, req.EndDate)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, sale)
	}
}

func addSaleProductsHandler() gin.HandlerFunc {
	type request struct {
		ProductIds []int `json:"product_ids" binding:"required,min=1"`
	}
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		var req request
		if err := c.ShouldBindJSON(&req); err != nil {
			writeBindingError(c, err)
			return
		}
		if err := models.AddSaleProducts(c.Request.Context(), id, req.ProductIds); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func campaignSummaryHandler(sweeper *workflow.CampaignSweeper) gin.HandlerFunc {
	return func(c *gin.Context) {
		summary, err := sweeper.SweepSummary(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"summary": summary})
	}
}

func exportLedgerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		from, err := time.Parse("2006-01-02", c.Query("from"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from must be YYYY-MM-DD"})
			return
		}
		to, err := time.Parse("2006-01-02", c.Query("to"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "to must be YYYY-MM-DD"})
			return
		}
		// The range is inclusive of the whole "to" day.
		file, err := models.ExportInventoryLedger(c.Request.Context(), from, to.Add(24*time.Hour))
		if err != nil {
			writeError(c, err)
			return
		}
		filename := fmt.Sprintf("inventory-ledger-%s-%s.xlsx",
			from.Format("20060102"), to.Format("20060102"))
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		if err := file.Write(c.Writer); err != nil {
			config.LogError(config.GetLogger(), "handlers.go", "exportLedgerHandler", "Write", nil, err)
		}
	}
}
