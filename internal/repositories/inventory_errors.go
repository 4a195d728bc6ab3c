package repositories

import "fmt"

// InventoryErrorCode enumerates repository error causes for stock movements.
type InventoryErrorCode string

const (
	// InventoryErrorUnknown represents an unspecified failure.
	InventoryErrorUnknown InventoryErrorCode = "inventory_unknown"
	// InventoryErrorInsufficientStock indicates requested quantity exceeds availability.
	InventoryErrorInsufficientStock InventoryErrorCode = "inventory_insufficient_stock"
	// InventoryErrorProductNotFound indicates a line item references a missing product.
	InventoryErrorProductNotFound InventoryErrorCode = "inventory_product_not_found"
	// InventoryErrorOrderNotFound indicates the order document is missing.
	InventoryErrorOrderNotFound InventoryErrorCode = "inventory_order_not_found"
	// InventoryErrorInvalidState indicates the order's reservation flag forbids the operation.
	InventoryErrorInvalidState InventoryErrorCode = "inventory_invalid_state"
)

// InventoryError wraps stock-movement failures with machine readable codes.
// ItemName carries the display name of the offending line item so callers can
// surface it to the operator.
type InventoryError struct {
	Op       string
	Code     InventoryErrorCode
	Message  string
	ItemName string
	Err      error
}

// Error implements the error interface.
func (e *InventoryError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *InventoryError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewInventoryError constructs a typed inventory error.
func NewInventoryError(code InventoryErrorCode, message string, err error) *InventoryError {
	if message == "" {
		message = string(code)
	}
	return &InventoryError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithItem annotates the error with the offending line item's name.
func (e *InventoryError) WithItem(name string) *InventoryError {
	if e == nil {
		return nil
	}
	e.ItemName = name
	return e
}
