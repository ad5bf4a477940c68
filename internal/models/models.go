package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Affiliate represents a selling party in the referral tree.
// ParentID is a nullable foreign key into the same table; the referral
// chain is resolved by lookup, never by an embedded pointer.
type Affiliate struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Contact   string    `db:"contact" json:"contact"`
	ParentID  *int64    `db:"parent_id" json:"parent_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Product represents a sellable product
type Product struct {
	Code        string          `db:"code" json:"code"`
	Name        string          `db:"name" json:"name"`
	Description string          `db:"description" json:"description"`
	Price       decimal.Decimal `db:"price" json:"price"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// Sale represents a recorded sale by an affiliate.
// Total is always quantity * product price as of the last mutation.
type Sale struct {
	ID          int64           `db:"id" json:"id"`
	Date        time.Time       `db:"date" json:"date"`
	AffiliateID int64           `db:"affiliate_id" json:"affiliate_id"`
	ProductCode string          `db:"product_code" json:"product_code"`
	Quantity    int             `db:"quantity" json:"quantity"`
	Total       decimal.Decimal `db:"total" json:"total"`
	Status      string          `db:"status" json:"status"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// Commission is an ephemeral accrual derived from an unsettled sale.
// It is never persisted to the database; a batch of commissions lives in
// a CommissionRun until the run is settled or regenerated.
type Commission struct {
	Kind       string          `json:"kind"`
	SellerID   int64           `json:"seller_id"`
	ReceiverID int64           `json:"receiver_id"`
	SaleID     int64           `json:"sale_id"`
	Amount     decimal.Decimal `json:"amount"`
}

// CommissionRun is the pending batch produced by one generation pass.
// Settlement consumes commissions in slice order.
type CommissionRun struct {
	ID          string       `json:"id"`
	GeneratedAt time.Time    `json:"generated_at"`
	Commissions []Commission `json:"commissions"`
}

// Payment is a settled commission payout. Immutable once created.
type Payment struct {
	ID          int64           `db:"id" json:"id"`
	Date        time.Time       `db:"date" json:"date"`
	AffiliateID int64           `db:"affiliate_id" json:"affiliate_id"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// Sale statuses
const (
	SaleStatusUnpaid             = "UNPAID"
	SaleStatusAwaitingSettlement = "AWAITING_SETTLEMENT"
	SaleStatusSettled            = "SETTLED"
)

// Commission kinds
const (
	CommissionKindDirect   = "DIRECT"
	CommissionKindIndirect = "INDIRECT"
)

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
