package models

import "errors"

// Domain error kinds. Services wrap these with fmt.Errorf("...: %w", ...)
// so callers can classify with errors.Is while keeping the detail message.
var (
	// ErrNotFound is returned when a referenced affiliate, product, sale
	// or payment does not exist in the store.
	ErrNotFound = errors.New("not found")

	// ErrInvalidValue is returned when an input value fails validation
	// before any mutation happens.
	ErrInvalidValue = errors.New("invalid value")

	// ErrBusinessRule is returned when an operation would violate a
	// domain rule: editing or deleting a settled sale, deleting an
	// affiliate that is someone's parent, deleting a product with sales.
	ErrBusinessRule = errors.New("business rule violation")

	// ErrPartialSettlement is returned when settlement fails after some
	// payments were already persisted. Payments created before the
	// failure stay committed; the unprocessed commissions remain pending.
	ErrPartialSettlement = errors.New("partial settlement failure")
)
