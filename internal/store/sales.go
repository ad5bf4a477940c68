package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"affiliate-service/internal/models"
)

// CreateSale creates a new sale
func (s *Store) CreateSale(ctx context.Context, sale *models.Sale) error {
	query := `
		INSERT INTO sales (date, affiliate_id, product_code, quantity, total, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, sale, query,
		sale.Date, sale.AffiliateID, sale.ProductCode, sale.Quantity, sale.Total, sale.Status)
}

// GetSaleByID retrieves a sale by ID
func (s *Store) GetSaleByID(ctx context.Context, id int64) (*models.Sale, error) {
	var sale models.Sale
	err := s.db.GetContext(ctx, &sale, "SELECT * FROM sales WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("sale %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

// GetSales retrieves all sales
func (s *Store) GetSales(ctx context.Context) ([]models.Sale, error) {
	var sales []models.Sale
	err := s.db.SelectContext(ctx, &sales, "SELECT * FROM sales ORDER BY id")
	return sales, err
}

// GetUnsettledSales retrieves sales whose status is not SETTLED, in id
// order. Generation iterates this set, so the order must be stable.
func (s *Store) GetUnsettledSales(ctx context.Context) ([]models.Sale, error) {
	var sales []models.Sale
	err := s.db.SelectContext(ctx, &sales,
		"SELECT * FROM sales WHERE status <> $1 ORDER BY id", models.SaleStatusSettled)
	return sales, err
}

// UpdateSale updates a sale's mutable fields
func (s *Store) UpdateSale(ctx context.Context, sale *models.Sale) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sales
		SET date = $1, affiliate_id = $2, product_code = $3,
		    quantity = $4, total = $5, status = $6, updated_at = NOW()
		WHERE id = $7`,
		sale.Date, sale.AffiliateID, sale.ProductCode,
		sale.Quantity, sale.Total, sale.Status, sale.ID)
	return err
}

// UpdateSaleStatus updates sale status
func (s *Store) UpdateSaleStatus(ctx context.Context, saleID int64, status string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE sales SET status = $1, updated_at = NOW() WHERE id = $2",
		status, saleID)
	return err
}

// DeleteSale deletes a sale by ID
func (s *Store) DeleteSale(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM sales WHERE id = $1", id)
	return err
}

// GetSalesByAffiliatePeriod retrieves an affiliate's sales within [from, to]
func (s *Store) GetSalesByAffiliatePeriod(ctx context.Context, affiliateID int64, from, to time.Time) ([]models.Sale, error) {
	var sales []models.Sale
	err := s.db.SelectContext(ctx, &sales, `
		SELECT * FROM sales
		WHERE affiliate_id = $1 AND date >= $2 AND date <= $3
		ORDER BY date, id`,
		affiliateID, from, to)
	return sales, err
}

// CreatePayment inserts a payment with an explicit id. Settlement
// assigns ids itself (max existing + 1, in pending order), so unlike the
// other tables this one does not use a serial column.
func (s *Store) CreatePayment(ctx context.Context, payment *models.Payment) error {
	query := `
		INSERT INTO payments (id, date, affiliate_id, amount)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`

	return s.db.GetContext(ctx, &payment.CreatedAt, query,
		payment.ID, payment.Date, payment.AffiliateID, payment.Amount)
}

// GetMaxPaymentID returns the highest payment id, 0 when none exist
func (s *Store) GetMaxPaymentID(ctx context.Context) (int64, error) {
	var max int64
	err := s.db.GetContext(ctx, &max, "SELECT COALESCE(MAX(id), 0) FROM payments")
	return max, err
}

// GetPaymentByID retrieves a payment by ID
func (s *Store) GetPaymentByID(ctx context.Context, id int64) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.GetContext(ctx, &payment, "SELECT * FROM payments WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("payment %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetPayments retrieves all payments
func (s *Store) GetPayments(ctx context.Context) ([]models.Payment, error) {
	var payments []models.Payment
	err := s.db.SelectContext(ctx, &payments, "SELECT * FROM payments ORDER BY id")
	return payments, err
}

// GetPaymentsByPeriod retrieves payments within [from, to], optionally
// restricted to one affiliate
func (s *Store) GetPaymentsByPeriod(ctx context.Context, from, to time.Time, affiliateID *int64) ([]models.Payment, error) {
	var payments []models.Payment
	if affiliateID != nil {
		err := s.db.SelectContext(ctx, &payments, `
			SELECT * FROM payments
			WHERE date >= $1 AND date <= $2 AND affiliate_id = $3
			ORDER BY id`,
			from, to, *affiliateID)
		return payments, err
	}
	err := s.db.SelectContext(ctx, &payments,
		"SELECT * FROM payments WHERE date >= $1 AND date <= $2 ORDER BY id", from, to)
	return payments, err
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
