package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"affiliate-service/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

//go:embed schema.sql
var schema string

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// InitSchema creates the tables if they do not exist yet
func (s *Store) InitSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to init schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// CreateAffiliate creates a new affiliate
func (s *Store) CreateAffiliate(ctx context.Context, affiliate *models.Affiliate) error {
	query := `
		INSERT INTO affiliates (name, contact, parent_id)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	return s.db.GetContext(ctx, affiliate, query,
		affiliate.Name, affiliate.Contact, affiliate.ParentID)
}

// GetAffiliateByID retrieves an affiliate by ID
func (s *Store) GetAffiliateByID(ctx context.Context, id int64) (*models.Affiliate, error) {
	var affiliate models.Affiliate
	err := s.db.GetContext(ctx, &affiliate, "SELECT * FROM affiliates WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("affiliate %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &affiliate, nil
}

// GetAffiliates retrieves all affiliates
func (s *Store) GetAffiliates(ctx context.Context) ([]models.Affiliate, error) {
	var affiliates []models.Affiliate
	err := s.db.SelectContext(ctx, &affiliates, "SELECT * FROM affiliates ORDER BY id")
	return affiliates, err
}

// GetAffiliatesByIDs retrieves multiple affiliates by IDs
func (s *Store) GetAffiliatesByIDs(ctx context.Context, ids []int64) ([]models.Affiliate, error) {
	if len(ids) == 0 {
		return []models.Affiliate{}, nil
	}

	query, args, err := sqlx.In("SELECT * FROM affiliates WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var affiliates []models.Affiliate
	err = s.db.SelectContext(ctx, &affiliates, query, args...)
	return affiliates, err
}

// UpdateAffiliate updates an affiliate's mutable fields
func (s *Store) UpdateAffiliate(ctx context.Context, affiliate *models.Affiliate) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE affiliates SET name = $1, contact = $2, parent_id = $3 WHERE id = $4",
		affiliate.Name, affiliate.Contact, affiliate.ParentID, affiliate.ID)
	return err
}

// AffiliateHasReferrals reports whether any other affiliate points at
// this one as parent
func (s *Store) AffiliateHasReferrals(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM affiliates WHERE parent_id = $1)", id)
	return exists, err
}

// AffiliateHasSales reports whether any sale references this affiliate
func (s *Store) AffiliateHasSales(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM sales WHERE affiliate_id = $1)", id)
	return exists, err
}

// DeleteAffiliate deletes an affiliate by ID
func (s *Store) DeleteAffiliate(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM affiliates WHERE id = $1", id)
	return err
}

// CreateProduct creates a new product
func (s *Store) CreateProduct(ctx context.Context, product *models.Product) error {
	query := `
		INSERT INTO products (code, name, description, price)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`

	return s.db.GetContext(ctx, &product.CreatedAt, query,
		product.Code, product.Name, product.Description, product.Price)
}

// GetProductByCode retrieves a product by code
func (s *Store) GetProductByCode(ctx context.Context, code string) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE code = $1", code)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("product %s: %w", code, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetProducts retrieves all products
func (s *Store) GetProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := s.db.SelectContext(ctx, &products, "SELECT * FROM products ORDER BY code")
	return products, err
}

// UpdateProduct updates a product's mutable fields
func (s *Store) UpdateProduct(ctx context.Context, product *models.Product) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE products SET name = $1, description = $2, price = $3 WHERE code = $4",
		product.Name, product.Description, product.Price, product.Code)
	return err
}

// ProductHasSales reports whether any sale references this product
func (s *Store) ProductHasSales(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM sales WHERE product_code = $1)", code)
	return exists, err
}

// DeleteProduct deletes a product by code
func (s *Store) DeleteProduct(ctx context.Context, code string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM products WHERE code = $1", code)
	return err
}
