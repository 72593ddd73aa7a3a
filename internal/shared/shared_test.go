package shared

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypedErrorsUnwrapToKinds(t *testing.T) {
	cases := []struct {
		err  error
		kind error
	}{
		{Invalid("amount", "must be greater than zero"), ErrValidation},
		{&ReferentialError{Entity: "supplier", ID: 9}, ErrReferential},
		{&WorkflowViolationError{Entity: "invoice", ID: 1, From: "logistics", Action: "complete procurement"}, ErrWorkflowViolation},
		{&ConflictError{Entity: "payment", Detail: "duplicate number"}, ErrConflict},
		{NotFound("quote", 3), ErrNotFound},
		{ErrIdempotencyConflict, ErrConflict},
	}
	for _, tc := range cases {
		wrapped := fmt.Errorf("op: %w", tc.err)
		assert.ErrorIs(t, wrapped, tc.kind, tc.err.Error())
		assert.True(t, IsClientError(wrapped))
	}
	assert.False(t, IsClientError(errors.New("connection reset")))

	var wf *WorkflowViolationError
	require.ErrorAs(t, fmt.Errorf("op: %w", cases[2].err), &wf)
	assert.Equal(t, "logistics", wf.From)
}

func TestNormalizeCurrency(t *testing.T) {
	code, err := NormalizeCurrency("currency", " eur ")
	require.NoError(t, err)
	assert.Equal(t, "EUR", code)

	for _, bad := range []string{"", "EURO", "E1R", "QQQ"} {
		_, err := NormalizeCurrency("currency", bad)
		assert.ErrorIs(t, err, ErrValidation, bad)
	}
}

func TestMoneyHelpers(t *testing.T) {
	assert.ErrorIs(t, RequirePositive("amount", decimal.Zero), ErrValidation)
	assert.NoError(t, RequirePositive("amount", decimal.RequireFromString("0.01")))
	assert.True(t, Round2(decimal.RequireFromString("2.345")).Equal(decimal.RequireFromString("2.35")))
	assert.True(t, Round2(decimal.RequireFromString("-2.345")).Equal(decimal.RequireFromString("-2.35")))

	_, err := RequireText("note", "   ")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestActorContext(t *testing.T) {
	_, ok := ActorFromContext(context.Background())
	assert.False(t, ok)

	ctx := ContextWithActor(context.Background(), Actor{UserID: 4, OrgID: 1, Role: ParseRole(" Finance ")})
	actor, ok := ActorFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, RoleFinance, actor.Role)

	_, ok = ActorFromContext(ContextWithActor(context.Background(), Actor{}))
	assert.False(t, ok)
}

func TestPagination(t *testing.T) {
	p := NewPagination(3, 20, 45)
	assert.Equal(t, 3, p.TotalPages)
	assert.Equal(t, 40, p.Offset())

	p = NewPagination(0, 0, 0)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 20, p.PerPage)
}

func TestNilStoresAreSafe(t *testing.T) {
	var store *IdempotencyStore
	assert.Error(t, store.CheckAndInsert(context.Background(), "k", "payments"))
	assert.NoError(t, store.Delete(context.Background(), "k"))

	var audit *AuditLogger
	assert.Error(t, audit.Record(context.Background(), AuditLog{Action: "a", Entity: "e", EntityID: "1"}))
}
