package erps

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/odyssey-erp/dealdesk/internal/payments"
	"github.com/odyssey-erp/dealdesk/internal/shared"
)

type memorySource struct {
	specs       map[int64][]SpecRow
	paid        map[int64][]PaymentFact
	planned     map[int64][]PlannedFact
	paymentsErr error
}

func (m *memorySource) SignedSpecifications(_ context.Context, orgID int64) ([]SpecRow, error) {
	return m.specs[orgID], nil
}

func (m *memorySource) PaymentFacts(_ context.Context, orgID int64) ([]PaymentFact, error) {
	if m.paymentsErr != nil {
		return nil, m.paymentsErr
	}
	return m.paid[orgID], nil
}

func (m *memorySource) PlannedFacts(_ context.Context, orgID int64) ([]PlannedFact, error) {
	return m.planned[orgID], nil
}

var financeUser = shared.Actor{UserID: 2, OrgID: 10, Role: shared.RoleFinance}

func newRegistryFixture() (*Service, *memorySource) {
	second := signedRow()
	second.SpecificationID = 2
	second.Number = "SP-2025-0002"
	idn := "Q-2025-00007"
	second.QuoteIDN = &idn
	src := &memorySource{
		specs: map[int64][]SpecRow{10: {signedRow(), second}},
		paid: map[int64][]PaymentFact{10: {
			{SpecificationID: 1, Category: payments.CategoryIncome, AmountUSD: d("1000")},
			{SpecificationID: 1, Category: payments.CategoryExpense, AmountUSD: d("600")},
			{SpecificationID: 2, Category: payments.CategoryIncome, AmountUSD: d("2000")},
		}},
		planned: map[int64][]PlannedFact{},
	}
	svc := NewService(src)
	svc.now = func() time.Time { return date(2025, 3, 21) }
	return svc, src
}

func TestRegistryRecomputesFromLedger(t *testing.T) {
	svc, src := newRegistryFixture()
	ctx := context.Background()

	entries, err := svc.Registry(ctx, financeUser, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, d("400").Equal(entries[0].ActualProfit))
	assert.True(t, entries[1].Remaining.IsZero())

	src.paid[10] = append(src.paid[10], PaymentFact{SpecificationID: 1, Category: payments.CategoryIncome, AmountUSD: d("1000")})
	entries, err = svc.Registry(ctx, financeUser, 10)
	require.NoError(t, err)
	assert.True(t, entries[0].Remaining.IsZero(), "registry must reflect the latest payment")
}

func TestRegistryAuthorizationAndFailures(t *testing.T) {
	svc, src := newRegistryFixture()
	ctx := context.Background()

	_, err := svc.Registry(ctx, financeUser, 11)
	require.ErrorIs(t, err, shared.ErrForbidden)
	_, err = svc.Registry(ctx, shared.Actor{UserID: 3, OrgID: 10, Role: shared.RoleLogistics}, 10)
	require.ErrorIs(t, err, shared.ErrForbidden)

	src.paymentsErr = errors.New("connection refused")
	_, err = svc.Registry(ctx, financeUser, 10)
	require.ErrorContains(t, err, "connection refused")
}

func TestExportXLSX(t *testing.T) {
	svc, _ := newRegistryFixture()
	entries, err := svc.Registry(context.Background(), financeUser, 10)
	require.NoError(t, err)

	data, err := ExportXLSX(entries)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	rows, err := f.GetRows(registrySheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Specification", rows[0][0])
	assert.Equal(t, "SP-2025-0002", rows[2][0])
	assert.Equal(t, "Q-2025-00007", rows[2][1])
	assert.Equal(t, "2025-04-10", rows[1][5])
	assert.Equal(t, "400", rows[1][15])
}
