package utils

import (
	"errors"
	"fmt"
)

var ErrorRecordNotFound = errors.New("record not found")

// Error taxonomy for the fulfillment core. All of these are rejected
// pre-mutation: a caller seeing one of them can assume nothing changed.

// ValidationError reports malformed or out-of-range input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFoundError reports a reference to a record that does not exist.
type NotFoundError struct {
	Resource string
	Id       interface{}
}

func (e *NotFoundError) Error() string {
	if e.Id == nil {
		return e.Resource + " not found"
	}
	return fmt.Sprintf("%s %v not found", e.Resource, e.Id)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrorRecordNotFound
}

func NewNotFoundError(resource string, id interface{}) error {
	return &NotFoundError{Resource: resource, Id: id}
}

// InvalidStateTransitionError reports an order status edge that is not in
// the declared transition table.
type InvalidStateTransitionError struct {
	From string
	To   string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("invalid state transition %s -> %s", e.From, e.To)
}

// InsufficientStockError reports an order line whose requested quantity
// exceeds the available quantity. Raised before any reservation occurs.
type InsufficientStockError struct {
	Product   string
	Color     string
	Size      string
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s (%s/%s): %d available", e.Product, e.Color, e.Size, e.Available)
}

// BusinessRuleViolationError reports an operation that is structurally valid
// but violates a business rule (discount already used, usage limit reached,
// return window expired, ...).
type BusinessRuleViolationError struct {
	Rule   string
	Reason string
}

func (e *BusinessRuleViolationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Rule, e.Reason)
}

func NewBusinessRuleViolation(rule, reason string) error {
	return &BusinessRuleViolationError{Rule: rule, Reason: reason}
}
