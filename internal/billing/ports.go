// Package billing declares the collaborator ports the engine consumes:
// invoice lookup/patch, the external payment-charge capability and
// fire-and-forget reminder dispatch. Implementations live outside the engine.
package billing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus mirrors the billing collaborator's invoice status.
type PaymentStatus string

const (
	InvoicePending   PaymentStatus = "pending"
	InvoicePaid      PaymentStatus = "paid"
	InvoicePartial   PaymentStatus = "partial"
	InvoiceCancelled PaymentStatus = "cancelled"
)

// Invoice is the snapshot the engine reads. The engine only ever writes the
// active-plan bookkeeping and the payment status when a plan completes.
type Invoice struct {
	ID            string
	StudentID     string
	Total         decimal.Decimal
	Balance       decimal.Decimal
	Status        PaymentStatus
	HasActivePlan bool
}

// InvoiceStore is the invoice lookup/patch collaborator keyed by invoice id.
type InvoiceStore interface {
	GetInvoice(ctx context.Context, id string) (*Invoice, error)
	// SetActivePlan toggles the "has an active plan" bookkeeping flag.
	SetActivePlan(ctx context.Context, invoiceID string, active bool) error
	SetPaymentStatus(ctx context.Context, invoiceID string, status PaymentStatus) error
}

// ChargeRequest describes one charge attempt against the gateway.
type ChargeRequest struct {
	Method    string
	Amount    decimal.Decimal
	Reference string
}

// ChargeResult reports a successful charge.
type ChargeResult struct {
	TransactionID string
	ChargedAt     time.Time
}

// ChargeGateway is the external payment capability. Callers bound each call
// with a context timeout; the gateway never retries on its own.
type ChargeGateway interface {
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
}

// Reminder is a due-date notice the engine decides to send. Delivery is a
// collaborator concern.
type Reminder struct {
	Recipient string
	Channel   string
	Message   string
}

// ReminderDispatcher delivers reminders fire-and-forget.
type ReminderDispatcher interface {
	Dispatch(ctx context.Context, reminder Reminder) error
}
