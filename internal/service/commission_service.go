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

// Commission rates. These are fixed by the payout scheme, not
// configuration: 5% of the sale total to the seller, 1% to the seller's
// referring parent.
var (
	DirectRate   = decimal.New(5, -2)
	IndirectRate = decimal.New(1, -2)
)

const engineLockKey = "commission-engine"

// CommissionStore is the slice of the record store the engine needs.
type CommissionStore interface {
	GetUnsettledSales(ctx context.Context) ([]models.Sale, error)
	GetAffiliatesByIDs(ctx context.Context, ids []int64) ([]models.Affiliate, error)
	UpdateSaleStatus(ctx context.Context, saleID int64, status string) error
	GetMaxPaymentID(ctx context.Context) (int64, error)
	CreatePayment(ctx context.Context, payment *models.Payment) error
}

// RunStore holds the pending commission run between generation and
// settlement and provides the mutual-exclusion lock around both passes.
type RunStore interface {
	SavePendingRun(ctx context.Context, run *models.CommissionRun) error
	GetPendingRun(ctx context.Context) (*models.CommissionRun, error)
	ClearPendingRun(ctx context.Context) error
	AcquireLock(ctx context.Context, lockKey, token string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey, token string) error
}

// EnginePublisher is the slice of the event publisher the engine needs.
type EnginePublisher interface {
	PublishCommissionsGenerated(ctx context.Context, event *models.CommissionsGeneratedEvent) error
	PublishCommissionsSettled(ctx context.Context, event *models.CommissionsSettledEvent) error
	PublishPaymentCreated(ctx context.Context, event *models.PaymentCreatedEvent) error
}

// CommissionService derives commissions from unsettled sales and
// settles them into payments
type CommissionService struct {
	store     CommissionStore
	runs      RunStore
	publisher EnginePublisher
	lockTTL   time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewCommissionService creates a new commission service
func NewCommissionService(store CommissionStore, runs RunStore, publisher EnginePublisher, lockTTL time.Duration) *CommissionService {
	return &CommissionService{
		store:     store,
		runs:      runs,
		publisher: publisher,
		lockTTL:   lockTTL,
		logger:    util.GetLogger(),
		now:       time.Now,
	}
}

// CommissionView is the display projection of a pending commission
type CommissionView struct {
	Kind         string          `json:"kind"`
	SellerID     int64           `json:"seller_id"`
	SellerName   string          `json:"seller_name"`
	ReceiverID   int64           `json:"receiver_id"`
	ReceiverName string          `json:"receiver_name"`
	SaleID       int64           `json:"sale_id"`
	Amount       decimal.Decimal `json:"amount"`
}

// SettlementResult summarizes a completed settlement pass
type SettlementResult struct {
	RunID    string           `json:"run_id"`
	Payments []models.Payment `json:"payments"`
}

// commissionsForSale computes the commissions one unsettled sale
// accrues: an indirect cut for the seller's parent when one exists,
// always followed by the seller's direct cut. Amounts are fixed from the
// sale total at generation time.
func commissionsForSale(sale *models.Sale, parentID *int64) []models.Commission {
	out := make([]models.Commission, 0, 2)

	if parentID != nil {
		out = append(out, models.Commission{
			Kind:       models.CommissionKindIndirect,
			SellerID:   sale.AffiliateID,
			ReceiverID: *parentID,
			SaleID:     sale.ID,
			Amount:     sale.Total.Mul(IndirectRate),
		})
	}

	out = append(out, models.Commission{
		Kind:       models.CommissionKindDirect,
		SellerID:   sale.AffiliateID,
		ReceiverID: sale.AffiliateID,
		SaleID:     sale.ID,
		Amount:     sale.Total.Mul(DirectRate),
	})

	return out
}

// Generate scans all sales not yet settled and rebuilds the pending
// commission run from scratch, replacing any previous pending run. Every
// sale that accrued a commission is moved to AWAITING_SETTLEMENT.
func (s *CommissionService) Generate(ctx context.Context) (*models.CommissionRun, error) {
	ctx, span := util.StartSpan(ctx, "CommissionService.Generate")
	defer span.End()

	start := time.Now()
	defer func() {
		util.CommissionGenerationLatency.Observe(time.Since(start).Seconds())
	}()

	token := uuid.New().String()
	locked, err := s.runs.AcquireLock(ctx, engineLockKey, token, s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire engine lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("commission engine busy: %w", models.ErrBusinessRule)
	}
	defer func() {
		if err := s.runs.ReleaseLock(ctx, engineLockKey, token); err != nil {
			s.logger.Error("Failed to release engine lock", zap.Error(err))
		}
	}()

	sales, err := s.store.GetUnsettledSales(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load unsettled sales: %w", err)
	}

	affiliates, err := s.affiliateIndex(ctx, sales)
	if err != nil {
		return nil, err
	}

	// Build the full commission list before touching any sale so a
	// missing affiliate aborts with no partial mutation.
	commissions := make([]models.Commission, 0, len(sales)*2)
	for i := range sales {
		seller, ok := affiliates[sales[i].AffiliateID]
		if !ok {
			return nil, fmt.Errorf("affiliate %d for sale %d: %w",
				sales[i].AffiliateID, sales[i].ID, models.ErrNotFound)
		}
		commissions = append(commissions, commissionsForSale(&sales[i], seller.ParentID)...)
	}

	run := &models.CommissionRun{
		ID:          uuid.New().String(),
		GeneratedAt: s.now(),
		Commissions: commissions,
	}

	// Persist the run before flipping any status: a failed save then
	// leaves the sales untouched, and a failed status write leaves a
	// run the next Generate replaces wholesale.
	if err := s.runs.SavePendingRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to save pending run: %w", err)
	}

	for i := range sales {
		if err := s.store.UpdateSaleStatus(ctx, sales[i].ID, models.SaleStatusAwaitingSettlement); err != nil {
			return nil, fmt.Errorf("failed to update sale %d status: %w", sales[i].ID, err)
		}
	}

	util.CommissionRunsTotal.Inc()
	for i := range commissions {
		util.CommissionsGeneratedTotal.WithLabelValues(commissions[i].Kind).Inc()
	}

	s.logger.Info("Commissions generated",
		zap.String("run_id", run.ID),
		zap.Int("sales", len(sales)),
		zap.Int("commissions", len(commissions)))

	event := &models.CommissionsGeneratedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeCommissionsGenerated,
			Timestamp: time.Now(),
		},
		RunID:           run.ID,
		SalesProcessed:  len(sales),
		CommissionCount: len(commissions),
	}
	if err := s.publisher.PublishCommissionsGenerated(ctx, event); err != nil {
		s.logger.Error("Failed to publish CommissionsGenerated event", zap.Error(err))
	}

	return run, nil
}

// List projects the current pending run for display. No side effects.
func (s *CommissionService) List(ctx context.Context) ([]CommissionView, error) {
	ctx, span := util.StartSpan(ctx, "CommissionService.List")
	defer span.End()

	run, err := s.runs.GetPendingRun(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending run: %w", err)
	}
	if run == nil {
		return []CommissionView{}, nil
	}

	ids := make([]int64, 0, len(run.Commissions)*2)
	for i := range run.Commissions {
		ids = append(ids, run.Commissions[i].SellerID, run.Commissions[i].ReceiverID)
	}
	affiliates, err := s.store.GetAffiliatesByIDs(ctx, dedupe(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to load affiliates: %w", err)
	}
	names := make(map[int64]string, len(affiliates))
	for i := range affiliates {
		names[affiliates[i].ID] = affiliates[i].Name
	}

	views := make([]CommissionView, 0, len(run.Commissions))
	for i := range run.Commissions {
		c := &run.Commissions[i]
		views = append(views, CommissionView{
			Kind:         c.Kind,
			SellerID:     c.SellerID,
			SellerName:   names[c.SellerID],
			ReceiverID:   c.ReceiverID,
			ReceiverName: names[c.ReceiverID],
			SaleID:       c.SaleID,
			Amount:       c.Amount,
		})
	}
	return views, nil
}

// Settle converts every pending commission into a persisted payment, in
// run order, marking each originating sale SETTLED. Payment ids continue
// from the highest existing id. A mid-loop persistence failure leaves
// earlier payments committed and the unprocessed tail pending.
func (s *CommissionService) Settle(ctx context.Context) (*SettlementResult, error) {
	ctx, span := util.StartSpan(ctx, "CommissionService.Settle")
	defer span.End()

	start := time.Now()
	defer func() {
		util.SettlementLatency.Observe(time.Since(start).Seconds())
	}()

	token := uuid.New().String()
	locked, err := s.runs.AcquireLock(ctx, engineLockKey, token, s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire engine lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("commission engine busy: %w", models.ErrBusinessRule)
	}
	defer func() {
		if err := s.runs.ReleaseLock(ctx, engineLockKey, token); err != nil {
			s.logger.Error("Failed to release engine lock", zap.Error(err))
		}
	}()

	run, err := s.runs.GetPendingRun(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending run: %w", err)
	}
	if run == nil || len(run.Commissions) == 0 {
		return &SettlementResult{Payments: []models.Payment{}}, nil
	}

	maxID, err := s.store.GetMaxPaymentID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read max payment id: %w", err)
	}
	nextID := maxID + 1

	settledAt := s.now()
	payments := make([]models.Payment, 0, len(run.Commissions))
	totalPaid := decimal.Zero

	for i := range run.Commissions {
		c := &run.Commissions[i]

		payment := models.Payment{
			ID:          nextID,
			Date:        settledAt,
			AffiliateID: c.ReceiverID,
			Amount:      c.Amount,
		}
		if err := s.store.CreatePayment(ctx, &payment); err != nil {
			util.SettlementsFailedTotal.WithLabelValues("payment_write").Inc()
			return nil, s.abortSettlement(ctx, run, i,
				fmt.Errorf("payment %d for commission %d: %v: %w", nextID, i, err, models.ErrPartialSettlement))
		}

		if err := s.store.UpdateSaleStatus(ctx, c.SaleID, models.SaleStatusSettled); err != nil {
			// The payment is committed, so this commission must not be
			// retried. Only the tail after it stays pending.
			util.SettlementsFailedTotal.WithLabelValues("status_write").Inc()
			return nil, s.abortSettlement(ctx, run, i+1,
				fmt.Errorf("sale %d status for commission %d: %v: %w", c.SaleID, i, err, models.ErrPartialSettlement))
		}

		nextID++
		payments = append(payments, payment)
		totalPaid = totalPaid.Add(payment.Amount)
		util.PaymentsCreatedTotal.Inc()

		event := &models.PaymentCreatedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypePaymentCreated,
				Timestamp: time.Now(),
			},
			PaymentID:   payment.ID,
			AffiliateID: payment.AffiliateID,
			SaleID:      c.SaleID,
			Kind:        c.Kind,
			Amount:      payment.Amount,
		}
		if err := s.publisher.PublishPaymentCreated(ctx, event); err != nil {
			s.logger.Error("Failed to publish PaymentCreated event", zap.Error(err))
		}
	}

	if err := s.runs.ClearPendingRun(ctx); err != nil {
		return nil, fmt.Errorf("failed to clear pending run: %w", err)
	}

	util.SettlementsTotal.Inc()
	s.logger.Info("Commissions settled",
		zap.String("run_id", run.ID),
		zap.Int("payments", len(payments)),
		zap.String("total_paid", totalPaid.String()))

	event := &models.CommissionsSettledEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeCommissionsSettled,
			Timestamp: time.Now(),
		},
		RunID:        run.ID,
		PaymentCount: len(payments),
		TotalPaid:    totalPaid,
	}
	if err := s.publisher.PublishCommissionsSettled(ctx, event); err != nil {
		s.logger.Error("Failed to publish CommissionsSettled event", zap.Error(err))
	}

	return &SettlementResult{RunID: run.ID, Payments: payments}, nil
}

// abortSettlement persists the unprocessed tail of the run back as the
// pending batch so a later settlement pass picks up where this one
// stopped, then returns cause.
func (s *CommissionService) abortSettlement(ctx context.Context, run *models.CommissionRun, from int, cause error) error {
	remainder := &models.CommissionRun{
		ID:          run.ID,
		GeneratedAt: run.GeneratedAt,
		Commissions: run.Commissions[from:],
	}
	if err := s.runs.SavePendingRun(ctx, remainder); err != nil {
		s.logger.Error("Failed to persist settlement remainder",
			zap.String("run_id", run.ID), zap.Error(err))
	}
	s.logger.Error("Settlement aborted",
		zap.String("run_id", run.ID),
		zap.Int("processed", from),
		zap.Int("remaining", len(remainder.Commissions)),
		zap.Error(cause))
	return cause
}

// affiliateIndex loads the selling affiliates for a batch of sales
func (s *CommissionService) affiliateIndex(ctx context.Context, sales []models.Sale) (map[int64]*models.Affiliate, error) {
	ids := make([]int64, 0, len(sales))
	for i := range sales {
		ids = append(ids, sales[i].AffiliateID)
	}

	affiliates, err := s.store.GetAffiliatesByIDs(ctx, dedupe(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to load affiliates: %w", err)
	}

	index := make(map[int64]*models.Affiliate, len(affiliates))
	for i := range affiliates {
		index[affiliates[i].ID] = &affiliates[i]
	}
	return index, nil
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
