package service

import (
	"context"
	"fmt"
	"strings"

	"affiliate-service/internal/models"
	"affiliate-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// maxReferralDepth bounds the parent-chain walk during cycle checks.
// The referral tree is one level deep in practice, but the parent column
// admits longer chains.
const maxReferralDepth = 64

// AffiliateStore is the slice of the record store the affiliate
// service needs.
type AffiliateStore interface {
	CreateAffiliate(ctx context.Context, affiliate *models.Affiliate) error
	GetAffiliateByID(ctx context.Context, id int64) (*models.Affiliate, error)
	GetAffiliates(ctx context.Context) ([]models.Affiliate, error)
	UpdateAffiliate(ctx context.Context, affiliate *models.Affiliate) error
	DeleteAffiliate(ctx context.Context, id int64) error
	AffiliateHasReferrals(ctx context.Context, id int64) (bool, error)
	AffiliateHasSales(ctx context.Context, id int64) (bool, error)
}

// BalanceStore reads the payout balance cache maintained by the worker.
type BalanceStore interface {
	GetBalance(ctx context.Context, affiliateID int64) (decimal.Decimal, error)
}

// AffiliateService handles affiliate management
type AffiliateService struct {
	store    AffiliateStore
	balances BalanceStore
	logger   *zap.Logger
}

// NewAffiliateService creates a new affiliate service
func NewAffiliateService(store AffiliateStore, balances BalanceStore) *AffiliateService {
	return &AffiliateService{
		store:    store,
		balances: balances,
		logger:   util.GetLogger(),
	}
}

// CreateAffiliateRequest represents a request to register an affiliate
type CreateAffiliateRequest struct {
	Name     string `json:"name" binding:"required"`
	Contact  string `json:"contact" binding:"required"`
	ParentID *int64 `json:"parent_id,omitempty"`
}

// UpdateAffiliateRequest represents an affiliate update
type UpdateAffiliateRequest struct {
	Name     string `json:"name" binding:"required"`
	Contact  string `json:"contact" binding:"required"`
	ParentID *int64 `json:"parent_id,omitempty"`
}

// CreateAffiliate registers a new affiliate, optionally under a referring parent
func (s *AffiliateService) CreateAffiliate(ctx context.Context, req *CreateAffiliateRequest) (*models.Affiliate, error) {
	ctx, span := util.StartSpan(ctx, "AffiliateService.CreateAffiliate")
	defer span.End()

	if err := validateAffiliateFields(req.Name, req.Contact); err != nil {
		return nil, err
	}

	if req.ParentID != nil {
		if _, err := s.store.GetAffiliateByID(ctx, *req.ParentID); err != nil {
			return nil, fmt.Errorf("parent affiliate: %w", err)
		}
	}

	affiliate := &models.Affiliate{
		Name:     strings.TrimSpace(req.Name),
		Contact:  strings.TrimSpace(req.Contact),
		ParentID: req.ParentID,
	}

	if err := s.store.CreateAffiliate(ctx, affiliate); err != nil {
		return nil, fmt.Errorf("failed to create affiliate: %w", err)
	}

	s.logger.Info("Affiliate registered",
		zap.Int64("affiliate_id", affiliate.ID),
		zap.Bool("has_parent", affiliate.ParentID != nil))

	return affiliate, nil
}

// GetAffiliate retrieves an affiliate by ID
func (s *AffiliateService) GetAffiliate(ctx context.Context, id int64) (*models.Affiliate, error) {
	return s.store.GetAffiliateByID(ctx, id)
}

// ListAffiliates retrieves all affiliates
func (s *AffiliateService) ListAffiliates(ctx context.Context) ([]models.Affiliate, error) {
	return s.store.GetAffiliates(ctx)
}

// UpdateAffiliate updates an affiliate's name, contact and parent
func (s *AffiliateService) UpdateAffiliate(ctx context.Context, id int64, req *UpdateAffiliateRequest) (*models.Affiliate, error) {
	ctx, span := util.StartSpan(ctx, "AffiliateService.UpdateAffiliate")
	defer span.End()

	if err := validateAffiliateFields(req.Name, req.Contact); err != nil {
		return nil, err
	}

	affiliate, err := s.store.GetAffiliateByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.ParentID != nil {
		if err := s.checkReferralCycle(ctx, id, *req.ParentID); err != nil {
			return nil, err
		}
	}

	affiliate.Name = strings.TrimSpace(req.Name)
	affiliate.Contact = strings.TrimSpace(req.Contact)
	affiliate.ParentID = req.ParentID

	if err := s.store.UpdateAffiliate(ctx, affiliate); err != nil {
		return nil, fmt.Errorf("failed to update affiliate: %w", err)
	}

	return affiliate, nil
}

// DeleteAffiliate deletes an affiliate unless another affiliate refers
// to it as parent
func (s *AffiliateService) DeleteAffiliate(ctx context.Context, id int64) error {
	ctx, span := util.StartSpan(ctx, "AffiliateService.DeleteAffiliate")
	defer span.End()

	if _, err := s.store.GetAffiliateByID(ctx, id); err != nil {
		return err
	}

	referred, err := s.store.AffiliateHasReferrals(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to check referrals: %w", err)
	}
	if referred {
		return fmt.Errorf("affiliate %d is a referral parent: %w", id, models.ErrBusinessRule)
	}

	hasSales, err := s.store.AffiliateHasSales(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to check sales: %w", err)
	}
	if hasSales {
		return fmt.Errorf("affiliate %d has recorded sales: %w", id, models.ErrBusinessRule)
	}

	if err := s.store.DeleteAffiliate(ctx, id); err != nil {
		return fmt.Errorf("failed to delete affiliate: %w", err)
	}

	s.logger.Info("Affiliate deleted", zap.Int64("affiliate_id", id))
	return nil
}

// GetBalance retrieves an affiliate's lifetime payout balance from the
// cache maintained by the payout worker
func (s *AffiliateService) GetBalance(ctx context.Context, id int64) (decimal.Decimal, error) {
	if _, err := s.store.GetAffiliateByID(ctx, id); err != nil {
		return decimal.Decimal{}, err
	}
	return s.balances.GetBalance(ctx, id)
}

// checkReferralCycle walks the parent chain upward from parentID and
// fails if it reaches affiliateID. The chain must stay a forest.
func (s *AffiliateService) checkReferralCycle(ctx context.Context, affiliateID, parentID int64) error {
	if parentID == affiliateID {
		return fmt.Errorf("affiliate %d cannot be its own parent: %w", affiliateID, models.ErrBusinessRule)
	}

	current := parentID
	for depth := 0; depth < maxReferralDepth; depth++ {
		parent, err := s.store.GetAffiliateByID(ctx, current)
		if err != nil {
			return fmt.Errorf("parent affiliate: %w", err)
		}
		if parent.ParentID == nil {
			return nil
		}
		if *parent.ParentID == affiliateID {
			return fmt.Errorf("referral cycle through affiliate %d: %w", affiliateID, models.ErrBusinessRule)
		}
		current = *parent.ParentID
	}
	return fmt.Errorf("referral chain too deep: %w", models.ErrBusinessRule)
}

func validateAffiliateFields(name, contact string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("name must not be empty: %w", models.ErrInvalidValue)
	}
	if strings.TrimSpace(contact) == "" {
		return fmt.Errorf("contact must not be empty: %w", models.ErrInvalidValue)
	}
	return nil
}
