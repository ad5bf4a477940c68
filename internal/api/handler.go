package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"affiliate-service/internal/models"
	"affiliate-service/internal/service"
	"affiliate-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	affiliates  *service.AffiliateService
	products    *service.ProductService
	sales       *service.SaleService
	commissions *service.CommissionService
	reports     *service.ReportService
}

// NewHandler creates a new HTTP handler
func NewHandler(
	affiliates *service.AffiliateService,
	products *service.ProductService,
	sales *service.SaleService,
	commissions *service.CommissionService,
	reports *service.ReportService,
) *Handler {
	return &Handler{
		affiliates:  affiliates,
		products:    products,
		sales:       sales,
		commissions: commissions,
		reports:     reports,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/affiliates", h.createAffiliate)
		v1.GET("/affiliates", h.listAffiliates)
		v1.GET("/affiliates/:id", h.getAffiliate)
		v1.PUT("/affiliates/:id", h.updateAffiliate)
		v1.DELETE("/affiliates/:id", h.deleteAffiliate)
		v1.GET("/affiliates/:id/balance", h.getAffiliateBalance)

		v1.POST("/products", h.createProduct)
		v1.GET("/products", h.listProducts)
		v1.GET("/products/:code", h.getProduct)
		v1.PUT("/products/:code", h.updateProduct)
		v1.DELETE("/products/:code", h.deleteProduct)

		v1.POST("/sales", h.recordSale)
		v1.GET("/sales", h.listSales)
		v1.GET("/sales/:id", h.getSale)
		v1.PUT("/sales/:id", h.updateSale)
		v1.DELETE("/sales/:id", h.deleteSale)

		v1.POST("/commissions/generate", h.generateCommissions)
		v1.GET("/commissions", h.listCommissions)
		v1.POST("/commissions/settle", h.settleCommissions)

		v1.GET("/reports/sales", h.salesReport)
		v1.GET("/reports/financial", h.financialReport)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// errorResponse maps domain errors to HTTP statuses
func errorResponse(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrInvalidValue):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrBusinessRule):
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (h *Handler) createAffiliate(c *gin.Context) {
	var req service.CreateAffiliateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	affiliate, err := h.affiliates.CreateAffiliate(c.Request.Context(), &req)
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusCreated, affiliate)
}

func (h *Handler) listAffiliates(c *gin.Context) {
	affiliates, err := h.affiliates.ListAffiliates(c.Request.Context())
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"affiliates": affiliates})
}

func (h *Handler) getAffiliate(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	affiliate, err := h.affiliates.GetAffiliate(c.Request.Context(), id)
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, affiliate)
}

func (h *Handler) updateAffiliate(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.UpdateAffiliateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	affiliate, err := h.affiliates.UpdateAffiliate(c.Request.Context(), id, &req)
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, affiliate)
}

func (h *Handler) deleteAffiliate(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.affiliates.DeleteAffiliate(c.Request.Context(), id); err != nil {
		errorResponse(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) getAffiliateBalance(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	balance, err := h.affiliates.GetBalance(c.Request.Context(), id)
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"affiliate_id": id, "balance": balance})
}

func (h *Handler) createProduct(c *gin.Context) {
	var req service.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	product, err := h.products.CreateProduct(c.Request.Context(), &req)
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.products.ListProducts(c.Request.Context())
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

func (h *Handler) getProduct(c *gin.Context) {
	product, err := h.products.GetProduct(c.Request.Context(), c.Param("code"))
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) updateProduct(c *gin.Context) {
	var req service.UpdateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	product, err := h.products.UpdateProduct(c.Request.Context(), c.Param("code"), &req)
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) deleteProduct(c *gin.Context) {
	if err := h.products.DeleteProduct(c.Request.Context(), c.Param("code")); err != nil {
		errorResponse(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) recordSale(c *gin.Context) {
	var req service.RecordSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	sale, err := h.sales.RecordSale(c.Request.Context(), &req)
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusCreated, sale)
}

func (h *Handler) listSales(c *gin.Context) {
	sales, err := h.sales.ListSales(c.Request.Context())
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sales": sales})
}

func (h *Handler) getSale(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	sale, err := h.sales.GetSale(c.Request.Context(), id)
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, sale)
}

func (h *Handler) updateSale(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.UpdateSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	sale, err := h.sales.UpdateSale(c.Request.Context(), id, &req)
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, sale)
}

func (h *Handler) deleteSale(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.sales.DeleteSale(c.Request.Context(), id); err != nil {
		errorResponse(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) generateCommissions(c *gin.Context) {
	run, err := h.commissions.Generate(c.Request.Context())
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (h *Handler) listCommissions(c *gin.Context) {
	views, err := h.commissions.List(c.Request.Context())
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"commissions": views})
}

func (h *Handler) settleCommissions(c *gin.Context) {
	result, err := h.commissions.Settle(c.Request.Context())
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) salesReport(c *gin.Context) {
	affiliateID, err := strconv.ParseInt(c.Query("affiliate_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid affiliate_id"})
		return
	}
	from, to, ok := periodParams(c)
	if !ok {
		return
	}
	report, err := h.reports.GenerateSalesReport(c.Request.Context(), affiliateID, from, to)
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) financialReport(c *gin.Context) {
	from, to, ok := periodParams(c)
	if !ok {
		return
	}
	var affiliateID *int64
	if raw := c.Query("affiliate_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid affiliate_id"})
			return
		}
		affiliateID = &id
	}
	report, err := h.reports.GenerateFinancialReport(c.Request.Context(), from, to, affiliateID)
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// pathID parses the :id path parameter, writing the 400 itself on failure
func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID"})
		return 0, false
	}
	return id, true
}

// periodParams parses from/to query parameters as YYYY-MM-DD dates
func periodParams(c *gin.Context) (time.Time, time.Time, bool) {
	from, err := time.Parse("2006-01-02", c.Query("from"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid from date, expected YYYY-MM-DD"})
		return time.Time{}, time.Time{}, false
	}
	to, err := time.Parse("2006-01-02", c.Query("to"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid to date, expected YYYY-MM-DD"})
		return time.Time{}, time.Time{}, false
	}
	// Make the bound inclusive of the whole end day.
	to = to.Add(24*time.Hour - time.Nanosecond)
	return from, to, true
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
