package plans

import (
	"github.com/shopspring/decimal"

	"github.com/qistas/qistas/internal/billing"
	"github.com/qistas/qistas/internal/shared"
)

// CheckEligibility validates that an invoice is a legal target for a new plan
// and returns its outstanding balance. An invoice qualifies when it is not
// fully paid, carries a positive balance and has no active plan yet.
func CheckEligibility(inv *billing.Invoice) (decimal.Decimal, error) {
	if inv == nil {
		return decimal.Zero, shared.NewError(shared.KindInvoiceNotFound)
	}
	if inv.Status == billing.InvoicePaid {
		return decimal.Zero, shared.NewError(shared.KindAlreadyPaid)
	}
	if inv.Balance.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, shared.NewError(shared.KindNoOutstandingBalance)
	}
	if inv.HasActivePlan {
		return decimal.Zero, shared.NewError(shared.KindPlanAlreadyExists)
	}
	return inv.Balance, nil
}
