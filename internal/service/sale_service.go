package service

import (
	"context"
	"fmt"
	"time"

	"affiliate-service/internal/models"
	"affiliate-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SaleStore is the slice of the record store the sale service needs.
type SaleStore interface {
	GetAffiliateByID(ctx context.Context, id int64) (*models.Affiliate, error)
	GetProductByCode(ctx context.Context, code string) (*models.Product, error)
	CreateSale(ctx context.Context, sale *models.Sale) error
	GetSaleByID(ctx context.Context, id int64) (*models.Sale, error)
	GetSales(ctx context.Context) ([]models.Sale, error)
	UpdateSale(ctx context.Context, sale *models.Sale) error
	DeleteSale(ctx context.Context, id int64) error
}

// SalePublisher is the slice of the event publisher the sale service needs.
type SalePublisher interface {
	PublishSaleRecorded(ctx context.Context, event *models.SaleRecordedEvent) error
	PublishSaleUpdated(ctx context.Context, event *models.SaleUpdatedEvent) error
}

// SaleRunStore drops pending commissions when a sale changes under them.
type SaleRunStore interface {
	ClearPendingRun(ctx context.Context) error
}

// SaleService handles sale recording and editing. A settled sale is
// frozen: it can no longer be edited or deleted, and any edit to an
// unsettled sale resets its status so commissions get regenerated.
type SaleService struct {
	store          SaleStore
	runs           SaleRunStore
	eventPublisher SalePublisher
	logger         *zap.Logger
}

// NewSaleService creates a new sale service
func NewSaleService(store SaleStore, runs SaleRunStore, eventPublisher SalePublisher) *SaleService {
	return &SaleService{
		store:          store,
		runs:           runs,
		eventPublisher: eventPublisher,
		logger:         util.GetLogger(),
	}
}

// RecordSaleRequest represents a request to record a sale
type RecordSaleRequest struct {
	Date        time.Time `json:"date" binding:"required"`
	AffiliateID int64     `json:"affiliate_id" binding:"required"`
	ProductCode string    `json:"product_code" binding:"required"`
	Quantity    int       `json:"quantity" binding:"required,min=1"`
}

// UpdateSaleRequest represents a sale edit
type UpdateSaleRequest struct {
	Date        time.Time `json:"date" binding:"required"`
	AffiliateID int64     `json:"affiliate_id" binding:"required"`
	ProductCode string    `json:"product_code" binding:"required"`
	Quantity    int       `json:"quantity" binding:"required,min=1"`
}

// RecordSale validates the referenced affiliate and product, derives the
// total and stores the sale as UNPAID
func (s *SaleService) RecordSale(ctx context.Context, req *RecordSaleRequest) (*models.Sale, error) {
	ctx, span := util.StartSpan(ctx, "SaleService.RecordSale")
	defer span.End()

	if req.Quantity < 1 {
		util.SalesFailedTotal.WithLabelValues("invalid_quantity").Inc()
		return nil, fmt.Errorf("quantity must be at least 1: %w", models.ErrInvalidValue)
	}

	if _, err := s.store.GetAffiliateByID(ctx, req.AffiliateID); err != nil {
		util.SalesFailedTotal.WithLabelValues("affiliate_not_found").Inc()
		return nil, err
	}

	product, err := s.store.GetProductByCode(ctx, req.ProductCode)
	if err != nil {
		util.SalesFailedTotal.WithLabelValues("product_not_found").Inc()
		return nil, err
	}

	sale := &models.Sale{
		Date:        req.Date,
		AffiliateID: req.AffiliateID,
		ProductCode: req.ProductCode,
		Quantity:    req.Quantity,
		Total:       saleTotal(product.Price, req.Quantity),
		Status:      models.SaleStatusUnpaid,
	}

	if err := s.store.CreateSale(ctx, sale); err != nil {
		util.SalesFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to create sale: %w", err)
	}

	util.SalesRecordedTotal.Inc()
	s.logger.Info("Sale recorded",
		zap.Int64("sale_id", sale.ID),
		zap.Int64("affiliate_id", sale.AffiliateID),
		zap.String("total", sale.Total.String()))

	event := &models.SaleRecordedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeSaleRecorded,
			Timestamp: time.Now(),
		},
		SaleID:      sale.ID,
		AffiliateID: sale.AffiliateID,
		ProductCode: sale.ProductCode,
		Quantity:    sale.Quantity,
		Total:       sale.Total,
	}
	if err := s.eventPublisher.PublishSaleRecorded(ctx, event); err != nil {
		s.logger.Error("Failed to publish SaleRecorded event", zap.Error(err))
	}

	return sale, nil
}

// GetSale retrieves a sale by ID
func (s *SaleService) GetSale(ctx context.Context, id int64) (*models.Sale, error) {
	return s.store.GetSaleByID(ctx, id)
}

// ListSales retrieves all sales
func (s *SaleService) ListSales(ctx context.Context) ([]models.Sale, error) {
	return s.store.GetSales(ctx)
}

// UpdateSale edits a sale. The edit recomputes the total from the
// current product price, resets the status to UNPAID and drops any
// pending commission run, so commissions for the pre-edit sale can
// never be settled.
func (s *SaleService) UpdateSale(ctx context.Context, id int64, req *UpdateSaleRequest) (*models.Sale, error) {
	ctx, span := util.StartSpan(ctx, "SaleService.UpdateSale")
	defer span.End()

	sale, err := s.store.GetSaleByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sale.Status == models.SaleStatusSettled {
		util.SalesFailedTotal.WithLabelValues("sale_settled").Inc()
		return nil, fmt.Errorf("sale %d is settled: %w", id, models.ErrBusinessRule)
	}

	if req.Quantity < 1 {
		return nil, fmt.Errorf("quantity must be at least 1: %w", models.ErrInvalidValue)
	}
	if _, err := s.store.GetAffiliateByID(ctx, req.AffiliateID); err != nil {
		return nil, err
	}
	product, err := s.store.GetProductByCode(ctx, req.ProductCode)
	if err != nil {
		return nil, err
	}

	sale.Date = req.Date
	sale.AffiliateID = req.AffiliateID
	sale.ProductCode = req.ProductCode
	sale.Quantity = req.Quantity
	sale.Total = saleTotal(product.Price, req.Quantity)
	sale.Status = models.SaleStatusUnpaid

	if err := s.store.UpdateSale(ctx, sale); err != nil {
		return nil, fmt.Errorf("failed to update sale: %w", err)
	}

	// The pending run may still carry this sale's pre-edit commissions.
	// Dropping the run forces regeneration before the next settlement.
	if err := s.runs.ClearPendingRun(ctx); err != nil {
		return nil, fmt.Errorf("failed to invalidate pending commissions: %w", err)
	}

	event := &models.SaleUpdatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeSaleUpdated,
			Timestamp: time.Now(),
		},
		SaleID: sale.ID,
		Total:  sale.Total,
		Status: sale.Status,
	}
	if err := s.eventPublisher.PublishSaleUpdated(ctx, event); err != nil {
		s.logger.Error("Failed to publish SaleUpdated event", zap.Error(err))
	}

	return sale, nil
}

// DeleteSale removes a sale unless it is settled
func (s *SaleService) DeleteSale(ctx context.Context, id int64) error {
	ctx, span := util.StartSpan(ctx, "SaleService.DeleteSale")
	defer span.End()

	sale, err := s.store.GetSaleByID(ctx, id)
	if err != nil {
		return err
	}
	if sale.Status == models.SaleStatusSettled {
		return fmt.Errorf("sale %d is settled: %w", id, models.ErrBusinessRule)
	}

	if err := s.store.DeleteSale(ctx, id); err != nil {
		return fmt.Errorf("failed to delete sale: %w", err)
	}

	if err := s.runs.ClearPendingRun(ctx); err != nil {
		return fmt.Errorf("failed to invalidate pending commissions: %w", err)
	}

	s.logger.Info("Sale deleted", zap.Int64("sale_id", id))
	return nil
}

func saleTotal(price decimal.Decimal, quantity int) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(int64(quantity)))
}
