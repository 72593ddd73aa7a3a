package specifications

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/dealdesk/internal/masterdata"
	"github.com/odyssey-erp/dealdesk/internal/sales"
	"github.com/odyssey-erp/dealdesk/internal/shared"
)

type memorySpecRepo struct {
	quotes   map[int64]QuoteRef
	specs    map[int64]Specification
	deals    map[int64]Deal
	lines    map[int64][]Line
	counters map[string]int64
	nextID   int64
}

type memorySpecTx struct {
	repo *memorySpecRepo
}

func newMemorySpecRepo() *memorySpecRepo {
	return &memorySpecRepo{
		quotes:   map[int64]QuoteRef{},
		specs:    map[int64]Specification{},
		deals:    map[int64]Deal{},
		lines:    map[int64][]Line{},
		counters: map[string]int64{},
	}
}

func (r *memorySpecRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memorySpecTx{repo: r})
}

func (r *memorySpecRepo) Get(_ context.Context, id int64) (Specification, error) {
	s, ok := r.specs[id]
	if !ok {
		return Specification{}, shared.NotFound("specification", id)
	}
	s.Status = s.Status.Normalize()
	return s, nil
}

func (r *memorySpecRepo) List(_ context.Context, orgID int64, filter ListFilter) ([]Specification, error) {
	var out []Specification
	for _, s := range r.specs {
		s.Status = s.Status.Normalize()
		if s.OrgID == orgID && (filter.Status == "" || s.Status == filter.Status) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *memorySpecRepo) GetQuote(_ context.Context, quoteID int64) (QuoteRef, error) {
	q, ok := r.quotes[quoteID]
	if !ok {
		return QuoteRef{}, shared.NotFound("quote", quoteID)
	}
	return q, nil
}

func (r *memorySpecRepo) GetDeal(_ context.Context, specificationID int64) (Deal, error) {
	for _, d := range r.deals {
		if d.SpecificationID == specificationID {
			return d, nil
		}
	}
	return Deal{}, &shared.NotFoundError{Entity: "deal for specification", ID: specificationID}
}

func (r *memorySpecRepo) ListLines(_ context.Context, quoteID int64) ([]Line, error) {
	return r.lines[quoteID], nil
}

func (t *memorySpecTx) LockQuote(ctx context.Context, quoteID int64) (QuoteRef, error) {
	return t.repo.GetQuote(ctx, quoteID)
}

func (t *memorySpecTx) FindByQuote(_ context.Context, quoteID int64) (Specification, bool, error) {
	for _, s := range t.repo.specs {
		if s.QuoteID == quoteID {
			return s, true, nil
		}
	}
	return Specification{}, false, nil
}

func (t *memorySpecTx) NextSequence(_ context.Context, scope, key string) (int64, error) {
	t.repo.counters[scope+"/"+key]++
	return t.repo.counters[scope+"/"+key], nil
}

func (t *memorySpecTx) Insert(_ context.Context, s Specification) (int64, error) {
	t.repo.nextID++
	s.ID = t.repo.nextID
	s.Status = s.Status.Normalize()
	t.repo.specs[s.ID] = s
	return s.ID, nil
}

func (t *memorySpecTx) Lock(ctx context.Context, id int64) (Specification, error) {
	return t.repo.Get(ctx, id)
}

func (t *memorySpecTx) Update(_ context.Context, s Specification) error {
	s.Status = s.Status.Normalize()
	t.repo.specs[s.ID] = s
	return nil
}

func (t *memorySpecTx) SetStatus(_ context.Context, id int64, from, to Status) (bool, error) {
	s := t.repo.specs[id]
	if !slices.Contains(from.Stored(), string(s.Status)) {
		return false, nil
	}
	s.Status = to.Normalize()
	t.repo.specs[id] = s
	return true, nil
}

func (t *memorySpecTx) Sign(_ context.Context, id int64, signDate time.Time) (bool, error) {
	s := t.repo.specs[id]
	if s.Status != StatusApproved {
		return false, nil
	}
	s.Status = StatusSigned
	s.SignDate = &signDate
	t.repo.specs[id] = s
	return true, nil
}

func (t *memorySpecTx) InsertDeal(_ context.Context, d Deal) (int64, error) {
	t.repo.nextID++
	d.ID = t.repo.nextID
	t.repo.deals[d.ID] = d
	return d.ID, nil
}

type memoryDirectory struct {
	customers map[int64]masterdata.Customer
	contacts  map[int64]masterdata.Contact
}

func (d memoryDirectory) Customer(_ context.Context, id int64) (masterdata.Customer, error) {
	c, ok := d.customers[id]
	if !ok {
		return masterdata.Customer{}, shared.NotFound("customer", id)
	}
	return c, nil
}

func (d memoryDirectory) Signatory(_ context.Context, customerID int64, preferredID *int64) (masterdata.Contact, error) {
	for _, c := range d.contacts {
		if c.CustomerID != customerID || !c.IsSignatory {
			continue
		}
		if preferredID == nil || *preferredID == c.ID {
			return c, nil
		}
	}
	return masterdata.Contact{}, shared.Invalid("signatory_contact_id", "is not a signatory")
}

type recordingStages struct {
	deals []int64
	err   error
}

func (s *recordingStages) EnsureStages(_ context.Context, dealID int64) (int, error) {
	s.deals = append(s.deals, dealID)
	if s.err != nil {
		return 0, s.err
	}
	return 7, nil
}

type capturingRenderer struct {
	html []byte
}

func (r *capturingRenderer) RenderHTML(_ context.Context, html []byte) ([]byte, error) {
	r.html = html
	return []byte("%PDF-1.7"), nil
}

var (
	controller = shared.Actor{UserID: 5, OrgID: 10, Role: shared.RoleController}
	finance    = shared.Actor{UserID: 6, OrgID: 10, Role: shared.RoleFinance}
	salesRep   = shared.Actor{UserID: 7, OrgID: 10, Role: shared.RoleSales}
)

type specFixture struct {
	svc      *Service
	repo     *memorySpecRepo
	stages   *recordingStages
	renderer *capturingRenderer
}

func newSpecFixture(t *testing.T) specFixture {
	t.Helper()
	repo := newMemorySpecRepo()
	customerID := int64(300)
	idn := "Q-2025-00004"
	repo.quotes[1] = QuoteRef{ID: 1, OrgID: 10, Status: sales.QuoteStatusApproved, CustomerID: &customerID, IDN: &idn,
		Currency: "USD", TotalAmount: decimal.RequireFromString("2000")}
	repo.quotes[2] = QuoteRef{ID: 2, OrgID: 10, Status: sales.QuoteStatusPriced, CustomerID: &customerID, Currency: "USD"}
	sku := "Q-2025-00004-001"
	repo.lines[1] = []Line{{Position: 1, SKU: &sku, Description: "Centrifugal pump", Quantity: decimal.NewFromInt(2)}}
	dir := memoryDirectory{
		customers: map[int64]masterdata.Customer{300: {ID: 300, OrgID: 10, Name: "Nord Mining"}},
		contacts: map[int64]masterdata.Contact{
			400: {ID: 400, CustomerID: 300, Name: "A. Volkova", Position: "CEO", IsSignatory: true},
			401: {ID: 401, CustomerID: 300, Name: "B. Orlov", Position: "Engineer"},
		},
	}
	stages := &recordingStages{}
	renderer := &capturingRenderer{}
	svc := NewService(repo, dir, stages, renderer, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC) }
	return specFixture{svc: svc, repo: repo, stages: stages, renderer: renderer}
}

func defaultTerms() TermsInput {
	return TermsInput{
		ValidityPeriod:            "30 days",
		PaymentTerms:              "50% advance, balance after delivery",
		AdvancePercent:            decimal.NewFromInt(50),
		DeliveryPeriodDays:        60,
		DaysFromDeliveryToAdvance: 10,
	}
}

func TestCreateFromQuoteRequiresApprovedQuote(t *testing.T) {
	f := newSpecFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateFromQuote(ctx, controller, 2, defaultTerms())
	var wf *shared.WorkflowViolationError
	require.ErrorAs(t, err, &wf)
	assert.Equal(t, "priced", wf.From)

	spec, err := f.svc.CreateFromQuote(ctx, finance, 1, defaultTerms())
	require.NoError(t, err)
	assert.Equal(t, "SP-2025-0001", spec.Number)
	assert.Equal(t, StatusDraft, spec.Status)
	assert.Equal(t, int64(6), spec.CreatedBy)

	_, err = f.svc.CreateFromQuote(ctx, finance, 1, defaultTerms())
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestCreateFromQuoteValidatesTerms(t *testing.T) {
	f := newSpecFixture(t)
	ctx := context.Background()

	terms := defaultTerms()
	terms.AdvancePercent = decimal.NewFromInt(120)
	_, err := f.svc.CreateFromQuote(ctx, controller, 1, terms)
	require.ErrorIs(t, err, shared.ErrValidation)

	terms = defaultTerms()
	notSignatory := int64(401)
	terms.SignatoryContactID = &notSignatory
	_, err = f.svc.CreateFromQuote(ctx, controller, 1, terms)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.CreateFromQuote(ctx, salesRep, 1, defaultTerms())
	require.ErrorIs(t, err, shared.ErrForbidden)
	assert.Empty(t, f.repo.specs)
}

func TestPendingReviewReadsAsDraft(t *testing.T) {
	f := newSpecFixture(t)
	ctx := context.Background()
	f.repo.specs[50] = Specification{ID: 50, OrgID: 10, QuoteID: 9, Number: "SP-2024-0099", Status: StatusPendingReview}

	spec, err := f.svc.Get(ctx, controller, 50)
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, spec.Status)

	drafts, err := f.svc.List(ctx, controller, ListFilter{Status: StatusPendingReview})
	require.NoError(t, err)
	require.Len(t, drafts, 1)

	updated, err := f.svc.Update(ctx, controller, 50, defaultTerms())
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, updated.Status)
	assert.Equal(t, StatusDraft, f.repo.specs[50].Status)
}

func TestApproveAcceptsLegacyPendingReview(t *testing.T) {
	f := newSpecFixture(t)
	ctx := context.Background()
	f.repo.specs[50] = Specification{ID: 50, OrgID: 10, QuoteID: 9, Number: "SP-2024-0099", Status: StatusPendingReview}

	approved, err := f.svc.Approve(ctx, controller, 50)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, approved.Status)
	assert.Equal(t, StatusApproved, f.repo.specs[50].Status)

	_, err = f.svc.Approve(ctx, controller, 50)
	var wf *shared.WorkflowViolationError
	require.True(t, errors.As(err, &wf))
	assert.Equal(t, "approved", wf.From)
}

func TestStoredStatusValues(t *testing.T) {
	assert.Equal(t, []string{"draft", "pending_review"}, StatusDraft.Stored())
	assert.Equal(t, []string{"draft", "pending_review"}, StatusPendingReview.Stored())
	assert.Equal(t, []string{"approved"}, StatusApproved.Stored())
}

func TestSignOpensDealAndProvisionsStages(t *testing.T) {
	f := newSpecFixture(t)
	ctx := context.Background()
	spec, err := f.svc.CreateFromQuote(ctx, controller, 1, defaultTerms())
	require.NoError(t, err)

	signDate := time.Date(2025, 3, 5, 15, 30, 0, 0, time.UTC)
	_, err = f.svc.Sign(ctx, controller, spec.ID, signDate)
	require.ErrorIs(t, err, shared.ErrWorkflowViolation)

	_, err = f.svc.Approve(ctx, finance, spec.ID)
	require.ErrorIs(t, err, shared.ErrForbidden)
	_, err = f.svc.Approve(ctx, controller, spec.ID)
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, controller, spec.ID, defaultTerms())
	require.ErrorIs(t, err, shared.ErrWorkflowViolation)

	_, err = f.svc.Sign(ctx, controller, spec.ID, time.Time{})
	require.ErrorIs(t, err, shared.ErrValidation)

	result, err := f.svc.Sign(ctx, controller, spec.ID, signDate)
	require.NoError(t, err)
	assert.Equal(t, StatusSigned, result.Specification.Status)
	require.NotNil(t, result.Specification.SignDate)
	assert.Equal(t, time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC), *result.Specification.SignDate)
	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", result.Deal.Reference.String())
	assert.Equal(t, []int64{result.Deal.ID}, f.stages.deals)
	assert.Equal(t, 7, result.StagesCreated)

	_, err = f.svc.Sign(ctx, controller, spec.ID, signDate)
	require.ErrorIs(t, err, shared.ErrWorkflowViolation)
	assert.Len(t, f.repo.deals, 1)
}

func TestSignSurvivesStageProvisioningFailure(t *testing.T) {
	f := newSpecFixture(t)
	f.stages.err = errors.New("connection reset")
	ctx := context.Background()
	spec, err := f.svc.CreateFromQuote(ctx, controller, 1, defaultTerms())
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, controller, spec.ID)
	require.NoError(t, err)

	result, err := f.svc.Sign(ctx, controller, spec.ID, time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Zero(t, result.StagesCreated)
	assert.Equal(t, StatusSigned, result.Specification.Status)
}

func TestRenderDocumentUsesSignatory(t *testing.T) {
	f := newSpecFixture(t)
	ctx := context.Background()
	spec, err := f.svc.CreateFromQuote(ctx, controller, 1, defaultTerms())
	require.NoError(t, err)

	pdf, err := f.svc.RenderDocument(ctx, finance, spec.ID)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(pdf))
	html := string(f.renderer.html)
	assert.Contains(t, html, "A. Volkova, CEO")
	assert.Contains(t, html, "Nord Mining")
	assert.Contains(t, html, "Q-2025-00004-001")
	assert.Contains(t, html, "2000.00 USD")

	outsider := shared.Actor{UserID: 9, OrgID: 11, Role: shared.RoleFinance}
	_, err = f.svc.RenderDocument(ctx, outsider, spec.ID)
	require.ErrorIs(t, err, shared.ErrForbidden)
}
