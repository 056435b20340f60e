package plans

import (
	"time"

	"github.com/shopspring/decimal"
)

// createPlanRequest is the create-plan payload. Domain rules (count bounds,
// frequency enum, future start date, amount sums, terms acceptance) are
// enforced by the engine so their rejections carry the bilingual messages;
// the validator only guards structural fields.
type createPlanRequest struct {
	InvoiceID     string            `json:"invoice_id" validate:"required"`
	StudentID     string            `json:"student_id"`
	Total         decimal.Decimal   `json:"total"`
	Installments  int               `json:"installments"`
	Frequency     string            `json:"frequency"`
	StartDate     string            `json:"start_date" validate:"required,datetime=2006-01-02"`
	FirstAmount   *decimal.Decimal  `json:"first_amount,omitempty"`
	CustomAmounts []decimal.Decimal `json:"custom_amounts,omitempty"`
	TermsAccepted bool              `json:"terms_accepted"`
	AutoPay       bool              `json:"auto_pay"`
	AutoPayMethod string            `json:"auto_pay_method" validate:"required_with=AutoPay"`
	LateFees      lateFeePolicyDTO  `json:"late_fees"`
	Reminders     reminderPolicyDTO `json:"reminders"`
}

type lateFeePolicyDTO struct {
	Enabled   bool            `json:"enabled"`
	FeeAmount decimal.Decimal `json:"fee_amount"`
	GraceDays int             `json:"grace_days" validate:"gte=0"`
}

type reminderPolicyDTO struct {
	OffsetDays []int    `json:"offset_days"`
	Channels   []string `json:"channels" validate:"dive,oneof=email sms chat"`
}

type modifyPlanRequest struct {
	Entries  []scheduleEntryDTO `json:"entries" validate:"required,min=1,dive"`
	ReasonAR string             `json:"reason_ar" validate:"required"`
	ReasonEN string             `json:"reason_en" validate:"required"`
	Actor    string             `json:"actor" validate:"required"`
}

type scheduleEntryDTO struct {
	Sequence int             `json:"sequence" validate:"required,gte=1"`
	Amount   decimal.Decimal `json:"amount"`
	DueDate  string          `json:"due_date" validate:"required,datetime=2006-01-02"`
}

type recordPaymentRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	Method         string          `json:"method" validate:"required"`
	TransactionRef string          `json:"transaction_ref"`
}

type installmentResponse struct {
	ID             string          `json:"id"`
	Sequence       int             `json:"sequence"`
	Amount         decimal.Decimal `json:"amount"`
	DueDate        string          `json:"due_date"`
	Status         string          `json:"status"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	PaidAt         *time.Time      `json:"paid_at,omitempty"`
	Method         string          `json:"method,omitempty"`
	TransactionRef string          `json:"transaction_ref,omitempty"`
	LateFeeApplied bool            `json:"late_fee_applied"`
	LateFeeAmount  decimal.Decimal `json:"late_fee_amount"`
}

type planResponse struct {
	ID           string                `json:"id"`
	InvoiceID    string                `json:"invoice_id"`
	StudentID    string                `json:"student_id"`
	Total        decimal.Decimal       `json:"total"`
	Count        int                   `json:"installment_count"`
	Frequency    string                `json:"frequency"`
	StartDate    string                `json:"start_date"`
	Status       string                `json:"status"`
	AutoPay      bool                  `json:"auto_pay"`
	Installments []installmentResponse `json:"installments,omitempty"`
}

type dashboardRowResponse struct {
	PlanID       string          `json:"plan_id"`
	InvoiceID    string          `json:"invoice_id"`
	StudentID    string          `json:"student_id"`
	Total        decimal.Decimal `json:"total"`
	Status       string          `json:"status"`
	AutoPay      bool            `json:"auto_pay"`
	Installments int             `json:"installments"`
	Paid         int             `json:"paid"`
	Overdue      int             `json:"overdue"`
	PaidAmount   decimal.Decimal `json:"paid_amount"`
	NextDueDate  *string         `json:"next_due_date,omitempty"`
}

const dateLayout = "2006-01-02"

func toPlanResponse(plan *PaymentPlan, installments []Installment) planResponse {
	resp := planResponse{
		ID:        plan.ID.String(),
		InvoiceID: plan.InvoiceID,
		StudentID: plan.StudentID,
		Total:     plan.Total,
		Count:     plan.InstallmentCount,
		Frequency: string(plan.Frequency),
		StartDate: plan.StartDate.Format(dateLayout),
		Status:    string(plan.Status),
		AutoPay:   plan.AutoPay,
	}
	for _, inst := range installments {
		resp.Installments = append(resp.Installments, toInstallmentResponse(inst))
	}
	return resp
}

func toInstallmentResponse(inst Installment) installmentResponse {
	return installmentResponse{
		ID:             inst.ID.String(),
		Sequence:       inst.Sequence,
		Amount:         inst.Amount,
		DueDate:        inst.DueDate.Format(dateLayout),
		Status:         string(inst.Status),
		PaidAmount:     inst.PaidAmount,
		PaidAt:         inst.PaidAt,
		Method:         inst.Method,
		TransactionRef: inst.TransactionRef,
		LateFeeApplied: inst.LateFeeApplied,
		LateFeeAmount:  inst.LateFeeAmount,
	}
}

func toDashboardRowResponse(row DashboardRow) dashboardRowResponse {
	resp := dashboardRowResponse{
		PlanID:       row.Plan.ID.String(),
		InvoiceID:    row.Plan.InvoiceID,
		StudentID:    row.Plan.StudentID,
		Total:        row.Plan.Total,
		Status:       string(row.Plan.Status),
		AutoPay:      row.Plan.AutoPay,
		Installments: row.Installments,
		Paid:         row.Paid,
		Overdue:      row.Overdue,
		PaidAmount:   row.PaidAmount,
	}
	if row.NextDueDate != nil {
		due := row.NextDueDate.Format(dateLayout)
		resp.NextDueDate = &due
	}
	return resp
}
