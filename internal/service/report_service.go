package service

import (
	"context"
	"fmt"
	"time"

	"affiliate-service/internal/models"
	"affiliate-service/internal/store"
	"affiliate-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ReportService produces period reports over sales and payments
type ReportService struct {
	store  *store.Store
	logger *zap.Logger
}

// NewReportService creates a new report service
func NewReportService(store *store.Store) *ReportService {
	return &ReportService{
		store:  store,
		logger: util.GetLogger(),
	}
}

// SalesReport lists one affiliate's sales within a period
type SalesReport struct {
	AffiliateID   int64           `json:"affiliate_id"`
	AffiliateName string          `json:"affiliate_name"`
	From          time.Time       `json:"from"`
	To            time.Time       `json:"to"`
	Sales         []models.Sale   `json:"sales"`
	TotalSold     decimal.Decimal `json:"total_sold"`
}

// FinancialReport lists payments within a period, optionally for one affiliate
type FinancialReport struct {
	AffiliateID *int64           `json:"affiliate_id,omitempty"`
	From        time.Time        `json:"from"`
	To          time.Time        `json:"to"`
	Payments    []models.Payment `json:"payments"`
	TotalPaid   decimal.Decimal  `json:"total_paid"`
}

// GenerateSalesReport builds the sales report for an affiliate and period
func (s *ReportService) GenerateSalesReport(ctx context.Context, affiliateID int64, from, to time.Time) (*SalesReport, error) {
	ctx, span := util.StartSpan(ctx, "ReportService.GenerateSalesReport")
	defer span.End()

	if err := validatePeriod(from, to); err != nil {
		return nil, err
	}

	affiliate, err := s.store.GetAffiliateByID(ctx, affiliateID)
	if err != nil {
		return nil, err
	}

	sales, err := s.store.GetSalesByAffiliatePeriod(ctx, affiliateID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load sales: %w", err)
	}

	total := decimal.Zero
	for i := range sales {
		total = total.Add(sales[i].Total)
	}

	s.logger.Debug("Sales report generated",
		zap.Int64("affiliate_id", affiliateID),
		zap.Int("sales", len(sales)))

	return &SalesReport{
		AffiliateID:   affiliate.ID,
		AffiliateName: affiliate.Name,
		From:          from,
		To:            to,
		Sales:         sales,
		TotalSold:     total,
	}, nil
}

// GenerateFinancialReport builds the payment report for a period. When
// affiliateID is non-nil, only that affiliate's payments are included.
func (s *ReportService) GenerateFinancialReport(ctx context.Context, from, to time.Time, affiliateID *int64) (*FinancialReport, error) {
	ctx, span := util.StartSpan(ctx, "ReportService.GenerateFinancialReport")
	defer span.End()

	if err := validatePeriod(from, to); err != nil {
		return nil, err
	}

	if affiliateID != nil {
		if _, err := s.store.GetAffiliateByID(ctx, *affiliateID); err != nil {
			return nil, err
		}
	}

	payments, err := s.store.GetPaymentsByPeriod(ctx, from, to, affiliateID)
	if err != nil {
		return nil, fmt.Errorf("failed to load payments: %w", err)
	}

	total := decimal.Zero
	for i := range payments {
		total = total.Add(payments[i].Amount)
	}

	return &FinancialReport{
		AffiliateID: affiliateID,
		From:        from,
		To:          to,
		Payments:    payments,
		TotalPaid:   total,
	}, nil
}

func validatePeriod(from, to time.Time) error {
	if from.IsZero() || to.IsZero() {
		return fmt.Errorf("period bounds are required: %w", models.ErrInvalidValue)
	}
	if to.Before(from) {
		return fmt.Errorf("period end before start: %w", models.ErrInvalidValue)
	}
	return nil
}
