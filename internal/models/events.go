package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeSaleRecorded         = "SALE_RECORDED"
	EventTypeSaleUpdated          = "SALE_UPDATED"
	EventTypeCommissionsGenerated = "COMMISSIONS_GENERATED"
	EventTypeCommissionsSettled   = "COMMISSIONS_SETTLED"
	EventTypePaymentCreated       = "PAYMENT_CREATED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// SaleRecordedEvent published when a sale is recorded
type SaleRecordedEvent struct {
	BaseEvent
	SaleID      int64           `json:"sale_id"`
	AffiliateID int64           `json:"affiliate_id"`
	ProductCode string          `json:"product_code"`
	Quantity    int             `json:"quantity"`
	Total       decimal.Decimal `json:"total"`
}

// SaleUpdatedEvent published when a sale edit resets its status
type SaleUpdatedEvent struct {
	BaseEvent
	SaleID int64           `json:"sale_id"`
	Total  decimal.Decimal `json:"total"`
	Status string          `json:"status"`
}

// CommissionsGeneratedEvent published after a generation pass
type CommissionsGeneratedEvent struct {
	BaseEvent
	RunID           string `json:"run_id"`
	SalesProcessed  int    `json:"sales_processed"`
	CommissionCount int    `json:"commission_count"`
}

// CommissionsSettledEvent published after a settlement pass completes
type CommissionsSettledEvent struct {
	BaseEvent
	RunID        string          `json:"run_id"`
	PaymentCount int             `json:"payment_count"`
	TotalPaid    decimal.Decimal `json:"total_paid"`
}

// PaymentCreatedEvent published for each payment emitted by settlement
type PaymentCreatedEvent struct {
	BaseEvent
	PaymentID   int64           `json:"payment_id"`
	AffiliateID int64           `json:"affiliate_id"`
	SaleID      int64           `json:"sale_id"`
	Kind        string          `json:"kind"`
	Amount      decimal.Decimal `json:"amount"`
}
