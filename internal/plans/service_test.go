package plans

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/qistas/qistas/internal/billing"
	"github.com/qistas/qistas/internal/shared"
)

type memRepo struct {
	plans            map[uuid.UUID]*PaymentPlan
	installments     map[uuid.UUID][]Installment
	modifications    []Modification
	failInstallments bool
	deleteCalls      int
}

func newMemRepo() *memRepo {
	return &memRepo{
		plans:        make(map[uuid.UUID]*PaymentPlan),
		installments: make(map[uuid.UUID][]Installment),
	}
}

func (m *memRepo) CreatePlan(_ context.Context, plan *PaymentPlan) error {
	cp := *plan
	m.plans[plan.ID] = &cp
	return nil
}

func (m *memRepo) CreateInstallments(_ context.Context, planID uuid.UUID, installments []Installment) error {
	if m.failInstallments {
		return errors.New("insert failed")
	}
	m.installments[planID] = append([]Installment(nil), installments...)
	return nil
}

func (m *memRepo) DeletePlan(_ context.Context, planID uuid.UUID) error {
	m.deleteCalls++
	delete(m.plans, planID)
	delete(m.installments, planID)
	return nil
}

// txMemRepo adds the single-transaction creation capability on top of memRepo,
// mirroring what the postgres repository offers.
type txMemRepo struct {
	*memRepo
	atomicCalls int
}

func (m *txMemRepo) CreatePlanWithInstallments(_ context.Context, plan *PaymentPlan, installments []Installment) error {
	m.atomicCalls++
	if m.failInstallments {
		return errors.New("insert failed")
	}
	cp := *plan
	m.plans[plan.ID] = &cp
	m.installments[plan.ID] = append([]Installment(nil), installments...)
	return nil
}

type stubInvalidator struct {
	calls int
}

func (s *stubInvalidator) Invalidate(context.Context) error {
	s.calls++
	return nil
}

func (m *memRepo) GetPlan(_ context.Context, id uuid.UUID) (*PaymentPlan, error) {
	plan, ok := m.plans[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *plan
	return &cp, nil
}

func (m *memRepo) UpdatePlanStatus(_ context.Context, id uuid.UUID, status PlanStatus, at time.Time) error {
	plan, ok := m.plans[id]
	if !ok {
		return ErrNotFound
	}
	plan.Status = status
	plan.UpdatedAt = at
	return nil
}

func (m *memRepo) ListInstallments(_ context.Context, planID uuid.UUID) ([]Installment, error) {
	return append([]Installment(nil), m.installments[planID]...), nil
}

func (m *memRepo) GetInstallmentBySequence(_ context.Context, planID uuid.UUID, sequence int) (*Installment, error) {
	for _, inst := range m.installments[planID] {
		if inst.Sequence == sequence {
			cp := inst
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memRepo) UpdateInstallmentSchedule(_ context.Context, planID uuid.UUID, sequence int, amount decimal.Decimal, dueDate, at time.Time) error {
	set := m.installments[planID]
	for i := range set {
		if set[i].Sequence == sequence && set[i].Status != InstallmentPaid {
			set[i].Amount = amount
			set[i].DueDate = dueDate
			set[i].UpdatedAt = at
			return nil
		}
	}
	return ErrNotFound
}

func (m *memRepo) UpdateInstallmentPayment(_ context.Context, inst *Installment) error {
	for planID, set := range m.installments {
		for i := range set {
			if set[i].ID == inst.ID {
				if set[i].Status == InstallmentPaid {
					return ErrNotFound
				}
				m.installments[planID][i] = *inst
				return nil
			}
		}
	}
	return ErrNotFound
}

func (m *memRepo) CreateModification(_ context.Context, mod *Modification) error {
	m.modifications = append(m.modifications, *mod)
	return nil
}

func (m *memRepo) ListDashboardRows(_ context.Context) ([]DashboardRow, error) {
	var out []DashboardRow
	for _, plan := range m.plans {
		row := DashboardRow{Plan: *plan}
		for _, inst := range m.installments[plan.ID] {
			row.Installments++
			if inst.Status == InstallmentPaid {
				row.Paid++
			}
			row.PaidAmount = row.PaidAmount.Add(inst.PaidAmount)
		}
		out = append(out, row)
	}
	return out, nil
}

func (m *memRepo) ListOverdue(_ context.Context, asOf time.Time) ([]Installment, error) {
	var out []Installment
	for planID, set := range m.installments {
		if m.plans[planID] == nil || m.plans[planID].Status != PlanActive {
			continue
		}
		for _, inst := range set {
			if inst.Status != InstallmentPaid && inst.DueDate.Before(asOf) {
				out = append(out, inst)
			}
		}
	}
	return out, nil
}

type memInvoices struct {
	invoices map[string]*billing.Invoice
	getErr   error
}

func newMemInvoices(invs ...*billing.Invoice) *memInvoices {
	m := &memInvoices{invoices: make(map[string]*billing.Invoice)}
	for _, inv := range invs {
		m.invoices[inv.ID] = inv
	}
	return m
}

func (m *memInvoices) GetInvoice(_ context.Context, id string) (*billing.Invoice, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	inv, ok := m.invoices[id]
	if !ok {
		return nil, billing.ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (m *memInvoices) SetActivePlan(_ context.Context, invoiceID string, active bool) error {
	inv, ok := m.invoices[invoiceID]
	if !ok {
		return billing.ErrNotFound
	}
	inv.HasActivePlan = active
	return nil
}

func (m *memInvoices) SetPaymentStatus(_ context.Context, invoiceID string, status billing.PaymentStatus) error {
	inv, ok := m.invoices[invoiceID]
	if !ok {
		return billing.ErrNotFound
	}
	inv.Status = status
	return nil
}

func testInvoice() *billing.Invoice {
	return &billing.Invoice{
		ID:        "INV-1",
		StudentID: "STU-1",
		Total:     dec("1200.00"),
		Balance:   dec("1200.00"),
		Status:    billing.InvoicePending,
	}
}

func newTestService(repo *memRepo, invoices *memInvoices) *Service {
	return NewService(repo, invoices, nil, slog.Default(), shared.FixedClock(testNow))
}

func validInput() CreatePlanInput {
	return CreatePlanInput{
		InvoiceID:     "INV-1",
		Count:         3,
		Frequency:     FrequencyMonthly,
		StartDate:     testNow.AddDate(0, 0, 10),
		TermsAccepted: true,
	}
}

func TestCreatePlanPersistsPlanAndInstallments(t *testing.T) {
	repo := newMemRepo()
	invoices := newMemInvoices(testInvoice())
	svc := newTestService(repo, invoices)

	plan, installments, err := svc.CreatePlan(context.Background(), validInput())
	require.NoError(t, err)
	require.Len(t, installments, 3)
	require.Equal(t, PlanActive, plan.Status)
	require.True(t, plan.Total.Equal(dec("1200.00")), "zero total schedules the full balance")

	stored, ok := repo.plans[plan.ID]
	require.True(t, ok)
	require.Equal(t, "STU-1", stored.StudentID)
	require.Len(t, repo.installments[plan.ID], 3)

	sum := decimal.Zero
	for _, inst := range installments {
		require.Equal(t, InstallmentPending, inst.Status)
		sum = sum.Add(inst.Amount)
	}
	require.True(t, sum.Equal(plan.Total))

	require.True(t, invoices.invoices["INV-1"].HasActivePlan)
}

func TestCreatePlanEligibility(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*billing.Invoice)
		kind   shared.Kind
	}{
		{"already paid", func(inv *billing.Invoice) { inv.Status = billing.InvoicePaid }, shared.KindAlreadyPaid},
		{"zero balance", func(inv *billing.Invoice) { inv.Balance = decimal.Zero }, shared.KindNoOutstandingBalance},
		{"active plan exists", func(inv *billing.Invoice) { inv.HasActivePlan = true }, shared.KindPlanAlreadyExists},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			inv := testInvoice()
			tc.mutate(inv)
			repo := newMemRepo()
			svc := newTestService(repo, newMemInvoices(inv))

			_, _, err := svc.CreatePlan(context.Background(), validInput())
			require.True(t, shared.IsKind(err, tc.kind), "want %s, got %v", tc.kind, err)
			require.Empty(t, repo.plans, "nothing may persist on rejection")
		})
	}
}

func TestCreatePlanUnknownInvoice(t *testing.T) {
	svc := newTestService(newMemRepo(), newMemInvoices())
	in := validInput()
	in.InvoiceID = "INV-MISSING"
	_, _, err := svc.CreatePlan(context.Background(), in)
	require.True(t, shared.IsKind(err, shared.KindInvoiceNotFound))
}

func TestCreatePlanInvoiceLookupFailure(t *testing.T) {
	invoices := newMemInvoices(testInvoice())
	invoices.getErr = errors.New("connection reset")
	svc := newTestService(newMemRepo(), invoices)

	_, _, err := svc.CreatePlan(context.Background(), validInput())
	require.True(t, shared.IsKind(err, shared.KindStorageFailure),
		"an infrastructure failure must not read as a missing invoice: %v", err)
}

func TestCreatePlanInvalidCountPersistsNothing(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, newMemInvoices(testInvoice()))

	in := validInput()
	in.Count = 0
	_, _, err := svc.CreatePlan(context.Background(), in)
	require.True(t, shared.IsKind(err, shared.KindInvalidInstallmentCount))

	engineErr, ok := shared.AsError(err)
	require.True(t, ok)
	require.NotEmpty(t, engineErr.MessageAR)
	require.NotEmpty(t, engineErr.MessageEN)

	require.Empty(t, repo.plans)
	require.Empty(t, repo.installments)
}

func TestCreatePlanTotalAboveBalanceRejected(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, newMemInvoices(testInvoice()))

	in := validInput()
	in.Total = dec("2000.00")
	_, _, err := svc.CreatePlan(context.Background(), in)
	require.True(t, shared.IsKind(err, shared.KindAmountMismatch))
	require.Empty(t, repo.plans)
}

func TestCreatePlanRollsBackOnInstallmentFailure(t *testing.T) {
	repo := newMemRepo()
	repo.failInstallments = true
	invoices := newMemInvoices(testInvoice())
	svc := newTestService(repo, invoices)

	_, _, err := svc.CreatePlan(context.Background(), validInput())
	require.True(t, shared.IsKind(err, shared.KindInstallmentCreationFailed))
	require.Empty(t, repo.plans, "compensating delete must remove the plan row")
	require.False(t, invoices.invoices["INV-1"].HasActivePlan)
}

func TestCreatePlanUsesAtomicRepository(t *testing.T) {
	repo := &txMemRepo{memRepo: newMemRepo()}
	invoices := newMemInvoices(testInvoice())
	svc := NewService(repo, invoices, nil, slog.Default(), shared.FixedClock(testNow))

	plan, installments, err := svc.CreatePlan(context.Background(), validInput())
	require.NoError(t, err)
	require.Equal(t, 1, repo.atomicCalls)
	require.Len(t, repo.installments[plan.ID], len(installments))
}

func TestCreatePlanAtomicFailureNeedsNoCompensation(t *testing.T) {
	repo := &txMemRepo{memRepo: newMemRepo()}
	repo.failInstallments = true
	svc := NewService(repo, newMemInvoices(testInvoice()), nil, slog.Default(), shared.FixedClock(testNow))

	_, _, err := svc.CreatePlan(context.Background(), validInput())
	require.True(t, shared.IsKind(err, shared.KindInstallmentCreationFailed))
	require.Empty(t, repo.plans)
	require.Zero(t, repo.deleteCalls, "the transaction rolls back on its own")
}

func createTestPlan(t *testing.T, svc *Service) (*PaymentPlan, []Installment) {
	t.Helper()
	plan, installments, err := svc.CreatePlan(context.Background(), validInput())
	require.NoError(t, err)
	return plan, installments
}

func TestModifyPlanSkipsPaidInstallments(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, newMemInvoices(testInvoice()))
	plan, installments := createTestPlan(t, svc)

	// Settle the first installment.
	_, err := svc.RecordPayment(context.Background(), plan.ID, 1, installments[0].Amount, "card", "txn-1")
	require.NoError(t, err)

	newDue := installments[1].DueDate.AddDate(0, 1, 0)
	err = svc.ModifyPlan(context.Background(), ModificationInput{
		PlanID: plan.ID,
		Entries: []ScheduleEntry{
			{Sequence: 1, Amount: dec("1.00"), DueDate: newDue},
			{Sequence: 2, Amount: dec("500.00"), DueDate: newDue},
			{Sequence: 99, Amount: dec("1.00"), DueDate: newDue},
		},
		ReasonEN: "hardship adjustment",
		Actor:    "ops",
	})
	require.NoError(t, err)

	stored := repo.installments[plan.ID]
	require.True(t, stored[0].Amount.Equal(installments[0].Amount), "paid installment must be untouched")
	require.True(t, stored[1].Amount.Equal(dec("500.00")))
	require.Equal(t, newDue, stored[1].DueDate)

	require.Len(t, repo.modifications, 1)
	require.Len(t, repo.modifications[0].Proposed, 3, "the full proposal is recorded")
}

func TestModifyPlanRequiresActivePlan(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, newMemInvoices(testInvoice()))
	plan, _ := createTestPlan(t, svc)

	require.NoError(t, svc.CancelPlan(context.Background(), plan.ID))

	err := svc.ModifyPlan(context.Background(), ModificationInput{
		PlanID:  plan.ID,
		Entries: []ScheduleEntry{{Sequence: 1, Amount: dec("10.00"), DueDate: testNow.AddDate(0, 1, 0)}},
	})
	require.True(t, shared.IsKind(err, shared.KindPlanNotActive))
	require.Empty(t, repo.modifications)
}

func TestModifyPlanRejectsNonPositiveAmounts(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, newMemInvoices(testInvoice()))
	plan, installments := createTestPlan(t, svc)

	err := svc.ModifyPlan(context.Background(), ModificationInput{
		PlanID: plan.ID,
		Entries: []ScheduleEntry{
			{Sequence: 1, Amount: dec("600.00"), DueDate: installments[0].DueDate},
			{Sequence: 2, Amount: decimal.Zero, DueDate: installments[1].DueDate},
		},
	})
	require.True(t, shared.IsKind(err, shared.KindAmountMismatch))
	require.Empty(t, repo.modifications, "a rejected proposal leaves no modification entry")
	stored := repo.installments[plan.ID]
	require.True(t, stored[0].Amount.Equal(installments[0].Amount), "amounts must be untouched")
}

func TestModifyPlanUnknownPlan(t *testing.T) {
	svc := newTestService(newMemRepo(), newMemInvoices())
	err := svc.ModifyPlan(context.Background(), ModificationInput{PlanID: uuid.New()})
	require.True(t, shared.IsKind(err, shared.KindPlanNotFound))
}

func TestRecordPaymentPartialThenFull(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, newMemInvoices(testInvoice()))
	plan, installments := createTestPlan(t, svc)

	half := installments[0].Amount.Div(dec("2")).RoundDown(2)
	inst, err := svc.RecordPayment(context.Background(), plan.ID, 1, half, "cash", "")
	require.NoError(t, err)
	require.Equal(t, InstallmentPartial, inst.Status)
	require.Nil(t, inst.PaidAt)

	rest := installments[0].Amount.Sub(half)
	inst, err = svc.RecordPayment(context.Background(), plan.ID, 1, rest, "cash", "")
	require.NoError(t, err)
	require.Equal(t, InstallmentPaid, inst.Status)
	require.NotNil(t, inst.PaidAt)
	require.True(t, inst.PaidAmount.Equal(installments[0].Amount))

	_, err = svc.RecordPayment(context.Background(), plan.ID, 1, dec("1.00"), "cash", "")
	require.True(t, shared.IsKind(err, shared.KindInstallmentAlreadyPaid))
}

func TestRecordPaymentRejectsNonPositiveAmount(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, newMemInvoices(testInvoice()))
	plan, _ := createTestPlan(t, svc)

	_, err := svc.RecordPayment(context.Background(), plan.ID, 1, decimal.Zero, "cash", "")
	require.True(t, shared.IsKind(err, shared.KindInvalidAmount))
}

func TestRecordPaymentCompletesPlan(t *testing.T) {
	repo := newMemRepo()
	invoices := newMemInvoices(testInvoice())
	svc := newTestService(repo, invoices)
	plan, installments := createTestPlan(t, svc)

	for _, inst := range installments {
		_, err := svc.RecordPayment(context.Background(), plan.ID, inst.Sequence, inst.Amount, "card", "txn")
		require.NoError(t, err)
	}

	require.Equal(t, PlanCompleted, repo.plans[plan.ID].Status)
	require.False(t, invoices.invoices["INV-1"].HasActivePlan)
	require.Equal(t, billing.InvoicePaid, invoices.invoices["INV-1"].Status)
}

func TestCancelPlan(t *testing.T) {
	repo := newMemRepo()
	invoices := newMemInvoices(testInvoice())
	svc := newTestService(repo, invoices)
	plan, _ := createTestPlan(t, svc)

	require.NoError(t, svc.CancelPlan(context.Background(), plan.ID))
	require.Equal(t, PlanCancelled, repo.plans[plan.ID].Status)
	require.False(t, invoices.invoices["INV-1"].HasActivePlan)

	err := svc.CancelPlan(context.Background(), plan.ID)
	require.True(t, shared.IsKind(err, shared.KindPlanNotActive))
}

func TestPlanWritesInvalidateAnalytics(t *testing.T) {
	repo := newMemRepo()
	inval := &stubInvalidator{}
	svc := NewService(repo, newMemInvoices(testInvoice()), inval, slog.Default(), shared.FixedClock(testNow))

	plan, installments, err := svc.CreatePlan(context.Background(), validInput())
	require.NoError(t, err)
	require.Equal(t, 1, inval.calls)

	_, err = svc.RecordPayment(context.Background(), plan.ID, 1, installments[0].Amount, "card", "txn-1")
	require.NoError(t, err)
	require.Equal(t, 2, inval.calls)

	err = svc.ModifyPlan(context.Background(), ModificationInput{
		PlanID:  plan.ID,
		Entries: []ScheduleEntry{{Sequence: 2, Amount: dec("500.00"), DueDate: installments[1].DueDate}},
		Actor:   "ops",
	})
	require.NoError(t, err)
	require.Equal(t, 3, inval.calls)

	require.NoError(t, svc.CancelPlan(context.Background(), plan.ID))
	require.Equal(t, 4, inval.calls)
}
