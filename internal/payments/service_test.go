package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/dealdesk/internal/fx"
	"github.com/odyssey-erp/dealdesk/internal/shared"
)

type memoryLedger struct {
	specs      map[int64]SpecRef
	payments   []Payment
	schedule   map[int64]ScheduleEntry
	counters   map[string]int
	failInsert bool
	nextID     int64
}

type memoryLedgerTx struct {
	repo *memoryLedger
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{
		specs:    map[int64]SpecRef{1: {ID: 1, OrgID: 10}, 2: {ID: 2, OrgID: 10}, 3: {ID: 3, OrgID: 11}},
		schedule: map[int64]ScheduleEntry{},
		counters: map[string]int{},
	}
}

// WithTx discards counter increments when fn fails, as a rollback would.
func (r *memoryLedger) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	saved := make(map[string]int, len(r.counters))
	for k, v := range r.counters {
		saved[k] = v
	}
	if err := fn(ctx, &memoryLedgerTx{repo: r}); err != nil {
		r.counters = saved
		return err
	}
	return nil
}

func (r *memoryLedger) GetSpecification(_ context.Context, id int64) (SpecRef, error) {
	s, ok := r.specs[id]
	if !ok {
		return SpecRef{}, &shared.ReferentialError{Entity: "specification", ID: id}
	}
	return s, nil
}

func (r *memoryLedger) ListPayments(_ context.Context, specificationID int64, category Category) ([]Payment, error) {
	var out []Payment
	for _, p := range r.payments {
		if p.SpecificationID == specificationID && (category == "" || p.Category == category) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memoryLedger) ListSchedule(_ context.Context, specificationID int64) ([]ScheduleEntry, error) {
	var out []ScheduleEntry
	for id := int64(1); id <= r.nextID; id++ {
		if e, ok := r.schedule[id]; ok && e.SpecificationID == specificationID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memoryLedger) GetSchedule(_ context.Context, id int64) (ScheduleEntry, error) {
	e, ok := r.schedule[id]
	if !ok {
		return ScheduleEntry{}, shared.NotFound("payment schedule entry", id)
	}
	return e, nil
}

func (t *memoryLedgerTx) LockSpecification(ctx context.Context, id int64) (SpecRef, error) {
	return t.repo.GetSpecification(ctx, id)
}

func (t *memoryLedgerTx) NextNumber(_ context.Context, scope, key string) (int, error) {
	t.repo.counters[scope+"/"+key]++
	return t.repo.counters[scope+"/"+key], nil
}

func (t *memoryLedgerTx) InsertPayment(_ context.Context, p Payment) (int64, error) {
	if t.repo.failInsert {
		return 0, errors.New("insert failed")
	}
	t.repo.nextID++
	p.ID = t.repo.nextID
	t.repo.payments = append(t.repo.payments, p)
	return p.ID, nil
}

func (t *memoryLedgerTx) InsertSchedule(_ context.Context, e ScheduleEntry) (int64, error) {
	t.repo.nextID++
	e.ID = t.repo.nextID
	t.repo.schedule[e.ID] = e
	return e.ID, nil
}

func (t *memoryLedgerTx) LockSchedule(ctx context.Context, id int64) (ScheduleEntry, error) {
	return t.repo.GetSchedule(ctx, id)
}

func (t *memoryLedgerTx) SetActualDate(_ context.Context, id int64, date time.Time) error {
	e := t.repo.schedule[id]
	e.ActualDate = &date
	t.repo.schedule[id] = e
	return nil
}

type memoryKeys map[string]bool

func (m memoryKeys) CheckAndInsert(_ context.Context, key, _ string) error {
	if m[key] {
		return shared.ErrIdempotencyConflict
	}
	m[key] = true
	return nil
}

func (m memoryKeys) Delete(_ context.Context, key string) error {
	delete(m, key)
	return nil
}

type staticRates map[string]decimal.Decimal

func (s staticRates) RateOnOrBefore(_ context.Context, currency string, date time.Time) (fx.Rate, bool, error) {
	r, ok := s[currency]
	return fx.Rate{Date: date, Currency: currency, Rate: r}, ok, nil
}

var (
	accountant = shared.Actor{UserID: 3, OrgID: 10, Role: shared.RoleFinance}
	controller = shared.Actor{UserID: 4, OrgID: 10, Role: shared.RoleController}
	salesRep   = shared.Actor{UserID: 5, OrgID: 10, Role: shared.RoleSales}
	paidOn     = time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC)
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func newLedgerFixture() (*Service, *memoryLedger, memoryKeys) {
	repo := newMemoryLedger()
	keys := memoryKeys{}
	rates := staticRates{"USD": d("90"), "EUR": d("100")}
	return NewService(repo, fx.NewConverter(rates), keys, nil), repo, keys
}

func payment(spec int64, category Category, amount, currency string) PaymentInput {
	return PaymentInput{SpecificationID: spec, Category: category, Amount: d(amount), Currency: currency, PaidOn: paidOn}
}

func TestRecordPaymentNumbersPerSpecificationAndCategory(t *testing.T) {
	svc, _, _ := newLedgerFixture()
	ctx := context.Background()

	var numbers []int
	for _, in := range []PaymentInput{
		payment(1, CategoryIncome, "1000", "USD"),
		payment(1, CategoryIncome, "500", "USD"),
		payment(1, CategoryExpense, "300", "USD"),
		payment(2, CategoryIncome, "100", "USD"),
		payment(1, CategoryExpense, "200", "USD"),
	} {
		p, err := svc.RecordPayment(ctx, accountant, in)
		require.NoError(t, err)
		numbers = append(numbers, p.PaymentNumber)
	}
	assert.Equal(t, []int{1, 2, 1, 1, 2}, numbers)

	income, err := svc.ListPayments(ctx, controller, 1, CategoryIncome)
	require.NoError(t, err)
	assert.Len(t, income, 2)
}

func TestRecordPaymentNormalizesToUSD(t *testing.T) {
	svc, _, _ := newLedgerFixture()
	p, err := svc.RecordPayment(context.Background(), accountant, payment(1, CategoryIncome, "900", "eur"))
	require.NoError(t, err)
	assert.Equal(t, "EUR", p.Currency)
	assert.True(t, d("1000").Equal(p.AmountUSD), p.AmountUSD.String())
	assert.Equal(t, paidOn, p.PaidOn)
}

func TestRecordPaymentRejectsBadInput(t *testing.T) {
	svc, repo, _ := newLedgerFixture()
	ctx := context.Background()

	_, err := svc.RecordPayment(ctx, accountant, payment(1, CategoryIncome, "0", "USD"))
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.RecordPayment(ctx, accountant, payment(1, "refund", "10", "USD"))
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.RecordPayment(ctx, accountant, payment(1, CategoryIncome, "10", "usd1"))
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.RecordPayment(ctx, accountant, payment(99, CategoryIncome, "10", "USD"))
	require.ErrorIs(t, err, shared.ErrReferential)
	_, err = svc.RecordPayment(ctx, accountant, payment(1, CategoryIncome, "10", "CNY"))
	require.ErrorIs(t, err, fx.ErrMissingRate)
	_, err = svc.RecordPayment(ctx, salesRep, payment(1, CategoryIncome, "10", "USD"))
	require.ErrorIs(t, err, shared.ErrForbidden)
	_, err = svc.RecordPayment(ctx, accountant, payment(3, CategoryIncome, "10", "USD"))
	require.ErrorIs(t, err, shared.ErrForbidden)

	assert.Empty(t, repo.payments)
	assert.Empty(t, repo.counters)
}

func TestSubCentAmountsRejectedBeforeAnyWrite(t *testing.T) {
	svc, repo, keys := newLedgerFixture()
	ctx := context.Background()
	in := payment(1, CategoryIncome, "0.004", "USD")
	in.IdempotencyKey = "bank-ref-dust"

	_, err := svc.RecordPayment(ctx, accountant, in)
	var invalid *shared.ValidationError
	require.True(t, errors.As(err, &invalid), "got %v", err)
	assert.Equal(t, "amount", invalid.Field)
	assert.Empty(t, keys)
	assert.Empty(t, repo.payments)
	assert.Empty(t, repo.counters)

	_, err = svc.SchedulePayment(ctx, controller, ScheduleInput{
		SpecificationID: 1, Basis: BasisFromAgreementDate, Days: 5, Amount: d("0.001"), Currency: "USD", Purpose: PurposeAdvance,
	})
	require.ErrorIs(t, err, shared.ErrValidation)
	assert.Empty(t, repo.schedule)

	p, err := svc.RecordPayment(ctx, accountant, payment(1, CategoryIncome, "0.005", "USD"))
	require.NoError(t, err)
	assert.True(t, p.Amount.Equal(d("0.01")), p.Amount.String())
}

func TestRecordPaymentIdempotencyKey(t *testing.T) {
	svc, repo, keys := newLedgerFixture()
	ctx := context.Background()
	in := payment(1, CategoryIncome, "100", "USD")
	in.IdempotencyKey = "bank-ref-77"

	repo.failInsert = true
	_, err := svc.RecordPayment(ctx, accountant, in)
	require.Error(t, err)
	assert.False(t, keys["bank-ref-77"])

	repo.failInsert = false
	first, err := svc.RecordPayment(ctx, accountant, in)
	require.NoError(t, err)
	assert.Equal(t, 1, first.PaymentNumber)

	_, err = svc.RecordPayment(ctx, accountant, in)
	require.ErrorIs(t, err, shared.ErrConflict)
	assert.Len(t, repo.payments, 1)
}

func TestScheduleAndMarkActual(t *testing.T) {
	svc, _, _ := newLedgerFixture()
	ctx := context.Background()
	expected := time.Date(2025, 5, 10, 13, 0, 0, 0, time.UTC)

	advance, err := svc.SchedulePayment(ctx, controller, ScheduleInput{
		SpecificationID: 1, Basis: BasisFromAgreementDate, Days: 5, ExpectedDate: &expected,
		Amount: d("1000"), Currency: "USD", Purpose: PurposeAdvance,
	})
	require.NoError(t, err)
	final, err := svc.SchedulePayment(ctx, accountant, ScheduleInput{
		SpecificationID: 1, Basis: BasisFromShipmentDate, Days: 10, Amount: d("1000"), Currency: "USD", Purpose: PurposeFinal,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, advance.PaymentNumber)
	assert.Equal(t, 2, final.PaymentNumber)
	assert.Equal(t, time.Date(2025, 5, 10, 0, 0, 0, 0, time.UTC), *advance.ExpectedDate)

	_, err = svc.SchedulePayment(ctx, controller, ScheduleInput{
		SpecificationID: 1, Basis: "whenever", Amount: d("1"), Currency: "USD", Purpose: PurposeFinal,
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	marked, err := svc.MarkScheduleActual(ctx, accountant, advance.ID, time.Date(2025, 5, 12, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, marked.ActualDate)

	_, err = svc.MarkScheduleActual(ctx, salesRep, advance.ID, time.Date(2025, 5, 12, 0, 0, 0, 0, time.UTC))
	require.ErrorIs(t, err, shared.ErrForbidden)

	entries, err := svc.ListSchedule(ctx, salesRep, 1)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, PurposeAdvance, entries[0].Purpose)
}
