package app

import (
	"errors"
	"fmt"
	"strings"

	"boxcard-ledger/internal/core"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// AssignCardRequest is the input for binding a card product to a customer.
type AssignCardRequest struct {
	CustomerID    int    `json:"customer_id" validate:"required,gt=0"`
	CardProductID int    `json:"card_product_id" validate:"required,gt=0"`
	AssignedDate  string `json:"assigned_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// ApplyPaymentRequest carries exactly one of AmountPaid or BoxesToCheck.
// ActorID is the authenticated worker and is never taken from the request body.
type ApplyPaymentRequest struct {
	CardID       int              `json:"-" validate:"required,gt=0"`
	AmountPaid   *decimal.Decimal `json:"amount_paid,omitempty"`
	BoxesToCheck *int             `json:"boxes_to_check,omitempty"`
	Method       string           `json:"payment_method,omitempty" validate:"max=32"`
	Notes        string           `json:"notes,omitempty" validate:"max=500"`
	PaymentDate  string           `json:"payment_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	ActorID      int              `json:"-" validate:"required,gt=0"`
}

// ReversePaymentRequest is the input for reversing a payment.
type ReversePaymentRequest struct {
	PaymentID int `json:"-" validate:"required,gt=0"`
	ActorID   int `json:"-" validate:"required,gt=0"`
}

// AdjustPaymentRequest is the input for correcting a payment's amount.
type AdjustPaymentRequest struct {
	PaymentID int             `json:"-" validate:"required,gt=0"`
	NewAmount decimal.Decimal `json:"new_amount"`
	Notes     string          `json:"notes,omitempty" validate:"max=500"`
	ActorID   int             `json:"-" validate:"required,gt=0"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// validateRequest runs struct tag validation and reports failures as ledger
// validation errors so every adapter maps them the same way.
func validateRequest(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return core.NewError(core.KindValidation, "invalid request: %v", err)
	}
	fields := make([]string, 0, len(ve))
	for _, fe := range ve {
		fields = append(fields, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return core.NewError(core.KindValidation, "invalid request: %s", strings.Join(fields, "; "))
}
