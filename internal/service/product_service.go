package service

import (
	"context"
	"fmt"
	"strings"

	"affiliate-service/internal/models"
	"affiliate-service/internal/store"
	"affiliate-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ProductService handles product catalog management
type ProductService struct {
	store  *store.Store
	logger *zap.Logger
}

// NewProductService creates a new product service
func NewProductService(store *store.Store) *ProductService {
	return &ProductService{
		store:  store,
		logger: util.GetLogger(),
	}
}

// CreateProductRequest represents a request to create a product
type CreateProductRequest struct {
	Code        string          `json:"code" binding:"required"`
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
}

// UpdateProductRequest represents a product update
type UpdateProductRequest struct {
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
}

// CreateProduct adds a product to the catalog
func (s *ProductService) CreateProduct(ctx context.Context, req *CreateProductRequest) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.CreateProduct")
	defer span.End()

	code := strings.TrimSpace(req.Code)
	if code == "" {
		return nil, fmt.Errorf("product code must not be empty: %w", models.ErrInvalidValue)
	}
	if err := validatePrice(req.Price); err != nil {
		return nil, err
	}

	product := &models.Product{
		Code:        code,
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Price:       req.Price,
	}

	if err := s.store.CreateProduct(ctx, product); err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	s.logger.Info("Product created", zap.String("code", product.Code))
	return product, nil
}

// GetProduct retrieves a product by code
func (s *ProductService) GetProduct(ctx context.Context, code string) (*models.Product, error) {
	return s.store.GetProductByCode(ctx, code)
}

// ListProducts retrieves all products
func (s *ProductService) ListProducts(ctx context.Context) ([]models.Product, error) {
	return s.store.GetProducts(ctx)
}

// UpdateProduct updates a product's name, description and price
func (s *ProductService) UpdateProduct(ctx context.Context, code string, req *UpdateProductRequest) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.UpdateProduct")
	defer span.End()

	if err := validatePrice(req.Price); err != nil {
		return nil, err
	}

	product, err := s.store.GetProductByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	product.Name = strings.TrimSpace(req.Name)
	product.Description = req.Description
	product.Price = req.Price

	if err := s.store.UpdateProduct(ctx, product); err != nil {
		return nil, fmt.Errorf("failed to update product: %w", err)
	}

	return product, nil
}

// DeleteProduct removes a product unless a sale references it
func (s *ProductService) DeleteProduct(ctx context.Context, code string) error {
	ctx, span := util.StartSpan(ctx, "ProductService.DeleteProduct")
	defer span.End()

	if _, err := s.store.GetProductByCode(ctx, code); err != nil {
		return err
	}

	referenced, err := s.store.ProductHasSales(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to check product sales: %w", err)
	}
	if referenced {
		return fmt.Errorf("product %s has recorded sales: %w", code, models.ErrBusinessRule)
	}

	if err := s.store.DeleteProduct(ctx, code); err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}

	s.logger.Info("Product deleted", zap.String("code", code))
	return nil
}

func validatePrice(price decimal.Decimal) error {
	if price.IsNegative() {
		return fmt.Errorf("price must not be negative: %w", models.ErrInvalidValue)
	}
	return nil
}
