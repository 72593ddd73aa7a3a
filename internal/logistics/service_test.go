package logistics

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/dealdesk/internal/masterdata"
	"github.com/odyssey-erp/dealdesk/internal/rbac"
	"github.com/odyssey-erp/dealdesk/internal/shared"
)

type memoryStageRepo struct {
	deals    map[int64]DealRef
	stages   map[int64]Stage
	expenses map[int64]Expense
	broken   map[int64]bool
	nextID   int64
}

type memoryStageTx struct {
	repo *memoryStageRepo
}

func newMemoryStageRepo() *memoryStageRepo {
	return &memoryStageRepo{
		deals:    map[int64]DealRef{},
		stages:   map[int64]Stage{},
		expenses: map[int64]Expense{},
		broken:   map[int64]bool{},
	}
}

func (r *memoryStageRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryStageTx{repo: r})
}

func (r *memoryStageRepo) GetDeal(_ context.Context, dealID int64) (DealRef, error) {
	d, ok := r.deals[dealID]
	if !ok {
		return DealRef{}, shared.NotFound("deal", dealID)
	}
	return d, nil
}

func (r *memoryStageRepo) GetStage(_ context.Context, id int64) (Stage, error) {
	s, ok := r.stages[id]
	if !ok {
		return Stage{}, shared.NotFound("logistics stage", id)
	}
	return s, nil
}

// ListStages returns rows in insertion-independent map order on purpose.
func (r *memoryStageRepo) ListStages(_ context.Context, dealID int64) ([]Stage, error) {
	var out []Stage
	for _, s := range r.stages {
		if s.DealID == dealID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *memoryStageRepo) ListExpenses(_ context.Context, stageID int64) ([]Expense, error) {
	var out []Expense
	for _, e := range r.expenses {
		if e.StageID == stageID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryStageRepo) DealsMissingStages(_ context.Context, limit int) ([]int64, error) {
	counts := map[int64]int{}
	for _, s := range r.stages {
		counts[s.DealID]++
	}
	var ids []int64
	for id := range r.deals {
		if counts[id] < len(Codes) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (t *memoryStageTx) LockDeal(ctx context.Context, dealID int64) (DealRef, error) {
	if t.repo.broken[dealID] {
		return DealRef{}, errors.New("deal row unreadable")
	}
	return t.repo.GetDeal(ctx, dealID)
}

func (t *memoryStageTx) InsertMissingStages(_ context.Context, dealID int64, codes []StageCode) (int, error) {
	have := map[StageCode]bool{}
	for _, s := range t.repo.stages {
		if s.DealID == dealID {
			have[s.Code] = true
		}
	}
	created := 0
	for _, c := range codes {
		if have[c] {
			continue
		}
		t.repo.nextID++
		t.repo.stages[t.repo.nextID] = Stage{ID: t.repo.nextID, DealID: dealID, Code: c, Status: StageStatusPending}
		created++
	}
	return created, nil
}

func (t *memoryStageTx) LockStage(ctx context.Context, id int64) (Stage, error) {
	return t.repo.GetStage(ctx, id)
}

func (t *memoryStageTx) TransitionStage(_ context.Context, id int64, from, to StageStatus, at time.Time) (bool, error) {
	s := t.repo.stages[id]
	if s.Status != from {
		return false, nil
	}
	s.Status = to
	if to == StageStatusInProgress {
		s.StartedAt = &at
	}
	if to == StageStatusCompleted {
		s.CompletedAt = &at
	}
	t.repo.stages[id] = s
	return true, nil
}

func (t *memoryStageTx) SetResponsible(_ context.Context, id int64, userID *int64) error {
	s := t.repo.stages[id]
	s.ResponsiblePerson = userID
	t.repo.stages[id] = s
	return nil
}

func (t *memoryStageTx) SetWarehouse(_ context.Context, id int64, warehouseID *int64) error {
	s := t.repo.stages[id]
	s.WarehouseID = warehouseID
	t.repo.stages[id] = s
	return nil
}

func (t *memoryStageTx) SetNotes(_ context.Context, id int64, notes string) error {
	s := t.repo.stages[id]
	s.Notes = notes
	t.repo.stages[id] = s
	return nil
}

func (t *memoryStageTx) InsertExpense(_ context.Context, e Expense) (int64, error) {
	t.repo.nextID++
	e.ID = t.repo.nextID
	t.repo.expenses[e.ID] = e
	return e.ID, nil
}

type memoryWarehouses map[int64]masterdata.Warehouse

func (m memoryWarehouses) Warehouse(_ context.Context, id int64) (masterdata.Warehouse, error) {
	w, ok := m[id]
	if !ok {
		return masterdata.Warehouse{}, shared.NotFound("warehouse", id)
	}
	return w, nil
}

var (
	logisticsUser = shared.Actor{UserID: 3, OrgID: 10, Role: shared.RoleLogistics}
	financeUser   = shared.Actor{UserID: 4, OrgID: 10, Role: shared.RoleFinance}
)

func newStageFixture(t *testing.T) (*Service, *memoryStageRepo) {
	t.Helper()
	repo := newMemoryStageRepo()
	repo.deals[1] = DealRef{ID: 1, OrgID: 10}
	repo.deals[2] = DealRef{ID: 2, OrgID: 10}
	warehouses := memoryWarehouses{7: {ID: 7, OrgID: 10, Name: "Hub A"}, 8: {ID: 8, OrgID: 11, Name: "Foreign"}}
	svc := NewService(repo, warehouses, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC) }
	return svc, repo
}

func stageByCode(t *testing.T, stages []Stage, code StageCode) Stage {
	t.Helper()
	for _, s := range stages {
		if s.Code == code {
			return s
		}
	}
	t.Fatalf("stage %s not found", code)
	return Stage{}
}

func TestEnsureStagesIsIdempotentAndOrdered(t *testing.T) {
	svc, _ := newStageFixture(t)
	ctx := context.Background()

	created, err := svc.EnsureStages(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 7, created)

	created, err = svc.EnsureStages(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, created)

	stages, err := svc.ListStages(ctx, logisticsUser, 1)
	require.NoError(t, err)
	require.Len(t, stages, len(Codes))
	for i, s := range stages {
		assert.Equal(t, Codes[i], s.Code)
		assert.Equal(t, StageStatusPending, s.Status)
	}

	_, err = svc.EnsureStages(ctx, 404)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestStageTransitions(t *testing.T) {
	svc, _ := newStageFixture(t)
	ctx := context.Background()
	_, err := svc.EnsureStages(ctx, 1)
	require.NoError(t, err)
	stages, err := svc.ListStages(ctx, logisticsUser, 1)
	require.NoError(t, err)
	first := stageByCode(t, stages, StageFirstMile)

	_, err = svc.CompleteStage(ctx, logisticsUser, first.ID)
	var wf *shared.WorkflowViolationError
	require.True(t, errors.As(err, &wf))
	assert.Equal(t, "pending", wf.From)

	_, err = svc.StartStage(ctx, financeUser, first.ID)
	require.ErrorIs(t, err, shared.ErrForbidden)

	started, err := svc.StartStage(ctx, logisticsUser, first.ID)
	require.NoError(t, err)
	assert.Equal(t, StageStatusInProgress, started.Status)
	require.NotNil(t, started.StartedAt)

	_, err = svc.StartStage(ctx, logisticsUser, first.ID)
	require.ErrorIs(t, err, shared.ErrWorkflowViolation)

	done, err := svc.CompleteStage(ctx, logisticsUser, first.ID)
	require.NoError(t, err)
	assert.Equal(t, StageStatusCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)

	_, err = svc.CompleteStage(ctx, logisticsUser, first.ID)
	require.ErrorIs(t, err, shared.ErrWorkflowViolation)
}

func TestSetWarehouseOnlyOnHubStages(t *testing.T) {
	svc, _ := newStageFixture(t)
	ctx := context.Background()
	_, err := svc.EnsureStages(ctx, 1)
	require.NoError(t, err)
	stages, err := svc.ListStages(ctx, logisticsUser, 1)
	require.NoError(t, err)
	wh := int64(7)

	_, err = svc.SetWarehouse(ctx, logisticsUser, stageByCode(t, stages, StageTransit).ID, &wh)
	require.ErrorIs(t, err, shared.ErrValidation)

	hub, err := svc.SetWarehouse(ctx, logisticsUser, stageByCode(t, stages, StageHub).ID, &wh)
	require.NoError(t, err)
	assert.Equal(t, wh, *hub.WarehouseID)

	_, err = svc.SetWarehouse(ctx, logisticsUser, stageByCode(t, stages, StageHubHub).ID, &wh)
	require.NoError(t, err)

	foreign := int64(8)
	_, err = svc.SetWarehouse(ctx, logisticsUser, stageByCode(t, stages, StageHub).ID, &foreign)
	require.ErrorIs(t, err, shared.ErrReferential)

	cleared, err := svc.SetWarehouse(ctx, logisticsUser, stageByCode(t, stages, StageTransit).ID, nil)
	require.NoError(t, err)
	assert.Nil(t, cleared.WarehouseID)
}

func TestAddExpenseAndResponsible(t *testing.T) {
	svc, _ := newStageFixture(t)
	ctx := context.Background()
	_, err := svc.EnsureStages(ctx, 1)
	require.NoError(t, err)
	stages, err := svc.ListStages(ctx, logisticsUser, 1)
	require.NoError(t, err)
	transit := stageByCode(t, stages, StageTransit)

	_, err = svc.AddExpense(ctx, logisticsUser, transit.ID, ExpenseInput{Amount: decimal.Zero, Currency: "USD"})
	require.ErrorIs(t, err, shared.ErrValidation)

	e, err := svc.AddExpense(ctx, logisticsUser, transit.ID, ExpenseInput{Amount: decimal.NewFromInt(250), Currency: "eur", Note: " rail "})
	require.NoError(t, err)
	assert.Equal(t, "EUR", e.Currency)
	assert.Equal(t, "rail", e.Note)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), e.IncurredOn)

	expenses, err := svc.ListExpenses(ctx, financeUser, transit.ID)
	require.NoError(t, err)
	require.Len(t, expenses, 1)

	person := int64(42)
	updated, err := svc.AssignResponsible(ctx, logisticsUser, transit.ID, &person)
	require.NoError(t, err)
	assert.Equal(t, person, *updated.ResponsiblePerson)
}

func TestBackfillSkipsFailingDeals(t *testing.T) {
	svc, repo := newStageFixture(t)
	repo.deals[3] = DealRef{ID: 3, OrgID: 10}
	repo.broken[3] = true
	ctx := context.Background()
	_, err := svc.EnsureStages(ctx, 1)
	require.NoError(t, err)

	res, err := svc.Backfill(ctx, 1)
	require.Error(t, err)
	assert.Equal(t, BackfillResult{Deals: 1, Stages: 7}, res)

	delete(repo.broken, 3)
	res, err = svc.Backfill(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, BackfillResult{Deals: 1, Stages: 7}, res)

	res, err = svc.Backfill(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, res.Deals)
}

func TestHandlerRequiresStageRole(t *testing.T) {
	svc, _ := newStageFixture(t)
	_, err := svc.EnsureStages(context.Background(), 1)
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mw := rbac.Middleware{Logger: logger}
	router := chi.NewRouter()
	router.Use(mw.Actor)
	NewHandler(logger, svc, mw).MountRoutes(router)

	req := httptest.NewRequest(http.MethodGet, "/deals/1/stages", nil)
	req.Header.Set(rbac.HeaderUserID, "4")
	req.Header.Set(rbac.HeaderOrgID, "10")
	req.Header.Set(rbac.HeaderRole, "finance")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/deals/1/stages", nil)
	req.Header.Set(rbac.HeaderUserID, "4")
	req.Header.Set(rbac.HeaderOrgID, "10")
	req.Header.Set(rbac.HeaderRole, "finance")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/deals/1/stages", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
