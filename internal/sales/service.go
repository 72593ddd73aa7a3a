package sales

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/dealdesk/internal/fx"
	"github.com/odyssey-erp/dealdesk/internal/masterdata"
	"github.com/odyssey-erp/dealdesk/internal/rbac"
	"github.com/odyssey-erp/dealdesk/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetQuote(ctx context.Context, id int64) (Quote, error)
	GetItem(ctx context.Context, id int64) (Item, error)
	ListItems(ctx context.Context, quoteID int64) ([]Item, error)
	ListQuotes(ctx context.Context, orgID int64, filter QuoteFilter) ([]Quote, int, error)
}

// CustomerLookup resolves customer references.
type CustomerLookup interface {
	Customer(ctx context.Context, id int64) (masterdata.Customer, error)
}

// Converter normalizes amounts between currencies.
type Converter interface {
	Convert(ctx context.Context, amount decimal.Decimal, currency string, date time.Time, target string) (decimal.Decimal, error)
}

// Service orchestrates the quote lifecycle.
type Service struct {
	repo      RepositoryPort
	customers CustomerLookup
	fx        Converter
	audit     shared.AuditPort
	now       func() time.Time
}

// NewService constructs a sales service.
func NewService(repo RepositoryPort, customers CustomerLookup, converter Converter, audit shared.AuditPort) *Service {
	return &Service{repo: repo, customers: customers, fx: converter, audit: audit, now: time.Now}
}

// CreateQuoteInput describes a new quote.
type CreateQuoteInput struct {
	CustomerID    *int64
	Currency      string
	DeliveryTerms string
}

// ItemInput describes a new line item. Position is assigned when nil.
type ItemInput struct {
	Position       *int
	Description    string
	Quantity       decimal.Decimal
	RequestedPrice *decimal.Decimal
}

// UpdateItemInput changes the requested side of an item. Nil fields are left as-is.
type UpdateItemInput struct {
	Description    *string
	Quantity       *decimal.Decimal
	RequestedPrice *decimal.Decimal
	IsAvailable    *bool
}

// ChecklistInput is the sales handoff checklist.
type ChecklistInput struct {
	IsEstimate           bool
	IsTender             bool
	DirectRequest        bool
	TradingOrgRequest    bool
	EquipmentDescription string
}

// QuoteWithItems bundles a quote and its lines.
type QuoteWithItems struct {
	Quote Quote  `json:"quote"`
	Items []Item `json:"items"`
}

// CreateQuote opens a draft quote for the actor's organization.
func (s *Service) CreateQuote(ctx context.Context, actor shared.Actor, input CreateQuoteInput) (Quote, error) {
	if err := rbac.Authorize(actor, rbac.ActionQuoteCreate, rbac.Resource{OrgID: actor.OrgID}); err != nil {
		return Quote{}, err
	}
	currency, err := shared.NormalizeCurrency("currency", input.Currency)
	if err != nil {
		return Quote{}, err
	}
	if input.CustomerID != nil {
		if err := s.checkCustomer(ctx, actor.OrgID, *input.CustomerID); err != nil {
			return Quote{}, err
		}
	}
	q := Quote{
		OrgID:         actor.OrgID,
		CustomerID:    input.CustomerID,
		Currency:      currency,
		DeliveryTerms: strings.TrimSpace(input.DeliveryTerms),
		Status:        QuoteStatusDraft,
		CreatedBy:     actor.UserID,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.CreateQuote(ctx, q)
		if err != nil {
			return err
		}
		q.ID = id
		return nil
	})
	if err != nil {
		return Quote{}, fmt.Errorf("create quote: %w", err)
	}
	s.recordAudit(ctx, actor, "QUOTE_CREATE", q.ID, map[string]any{"currency": q.Currency})
	return s.repo.GetQuote(ctx, q.ID)
}

// GetQuote returns a quote with its items.
func (s *Service) GetQuote(ctx context.Context, actor shared.Actor, id int64) (QuoteWithItems, error) {
	q, err := s.repo.GetQuote(ctx, id)
	if err != nil {
		return QuoteWithItems{}, err
	}
	if err := rbac.Authorize(actor, rbac.ActionRead, rbac.Resource{OrgID: q.OrgID}); err != nil {
		return QuoteWithItems{}, err
	}
	items, err := s.repo.ListItems(ctx, id)
	if err != nil {
		return QuoteWithItems{}, err
	}
	return QuoteWithItems{Quote: q, Items: items}, nil
}

// ListQuotes pages through the actor's organization quotes.
func (s *Service) ListQuotes(ctx context.Context, actor shared.Actor, filter QuoteFilter) ([]Quote, shared.Pagination, error) {
	if err := rbac.Authorize(actor, rbac.ActionRead, rbac.Resource{OrgID: actor.OrgID}); err != nil {
		return nil, shared.Pagination{}, err
	}
	quotes, total, err := s.repo.ListQuotes(ctx, actor.OrgID, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return quotes, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// AddItem appends a line. Without an explicit position the next free one is
// taken under the quote row lock.
func (s *Service) AddItem(ctx context.Context, actor shared.Actor, quoteID int64, input ItemInput) (Item, error) {
	description, err := shared.RequireText("description", input.Description)
	if err != nil {
		return Item{}, err
	}
	if err := shared.RequirePositive("quantity", input.Quantity); err != nil {
		return Item{}, err
	}
	if input.RequestedPrice != nil {
		if err := shared.RequirePositive("requested_price", *input.RequestedPrice); err != nil {
			return Item{}, err
		}
	}
	if input.Position != nil && *input.Position <= 0 {
		return Item{}, shared.Invalid("position", "must be positive")
	}
	var item Item
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := tx.LockQuote(ctx, quoteID)
		if err != nil {
			return err
		}
		if err := rbac.Authorize(actor, rbac.ActionQuoteEdit, rbac.Resource{OrgID: q.OrgID}); err != nil {
			return err
		}
		if !q.Status.Editable() {
			return &shared.WorkflowViolationError{Entity: "quote", ID: q.ID, From: string(q.Status), Action: "add_item"}
		}
		position := 0
		if input.Position != nil {
			position = *input.Position
		} else {
			position, err = tx.NextItemPosition(ctx, quoteID)
			if err != nil {
				return err
			}
		}
		item = Item{
			QuoteID:        quoteID,
			Position:       position,
			Description:    description,
			Quantity:       input.Quantity,
			RequestedPrice: input.RequestedPrice,
			IsAvailable:    true,
			TotalPrice:     decimal.Zero,
		}
		if q.IDN != nil {
			sku := ItemSKU(*q.IDN, position)
			item.IDNSKU = &sku
		}
		id, err := tx.InsertItem(ctx, item)
		if err != nil {
			return err
		}
		item.ID = id
		return nil
	})
	if err != nil {
		return Item{}, fmt.Errorf("add item: %w", err)
	}
	s.recordAudit(ctx, actor, "QUOTE_ITEM_ADD", quoteID, map[string]any{"item_id": item.ID, "position": item.Position})
	return item, nil
}

// UpdateItem edits the requested side of a line. Quantity changes on an item
// already grouped into an invoice are refused so invoice totals only move
// through the grouping engine.
func (s *Service) UpdateItem(ctx context.Context, actor shared.Actor, itemID int64, input UpdateItemInput) (Item, error) {
	var item Item
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockItem(ctx, itemID)
		if err != nil {
			return err
		}
		q, err := tx.LockQuote(ctx, current.QuoteID)
		if err != nil {
			return err
		}
		if err := rbac.Authorize(actor, rbac.ActionQuoteEdit, rbac.Resource{OrgID: q.OrgID}); err != nil {
			return err
		}
		if !q.Status.Editable() {
			return &shared.WorkflowViolationError{Entity: "quote", ID: q.ID, From: string(q.Status), Action: "update_item"}
		}
		if input.Description != nil {
			d, err := shared.RequireText("description", *input.Description)
			if err != nil {
				return err
			}
			current.Description = d
		}
		if input.Quantity != nil {
			if err := shared.RequirePositive("quantity", *input.Quantity); err != nil {
				return err
			}
			if current.InvoiceID != nil && !input.Quantity.Equal(current.Quantity) {
				return shared.Invalid("quantity", "cannot change while the item is grouped into an invoice")
			}
			current.Quantity = *input.Quantity
		}
		if input.RequestedPrice != nil {
			if err := shared.RequirePositive("requested_price", *input.RequestedPrice); err != nil {
				return err
			}
			current.RequestedPrice = input.RequestedPrice
		}
		if input.IsAvailable != nil {
			current.IsAvailable = *input.IsAvailable
		}
		current.TotalPrice = ItemTotal(current.Quantity, current.PurchasePrice)
		if err := tx.UpdateItemRequested(ctx, current); err != nil {
			return err
		}
		item = current
		return nil
	})
	if err != nil {
		return Item{}, fmt.Errorf("update item: %w", err)
	}
	s.recordAudit(ctx, actor, "QUOTE_ITEM_UPDATE", item.QuoteID, map[string]any{"item_id": item.ID})
	return item, nil
}

// CompleteChecklist stores the handoff checklist and passes the quote to procurement.
func (s *Service) CompleteChecklist(ctx context.Context, actor shared.Actor, quoteID int64, input ChecklistInput) (Quote, error) {
	description, err := shared.RequireText("equipment_description", input.EquipmentDescription)
	if err != nil {
		return Quote{}, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := tx.LockQuote(ctx, quoteID)
		if err != nil {
			return err
		}
		if err := rbac.Authorize(actor, rbac.ActionChecklistComplete, rbac.Resource{OrgID: q.OrgID}); err != nil {
			return err
		}
		if q.Status != QuoteStatusDraft {
			return &shared.WorkflowViolationError{Entity: "quote", ID: q.ID, From: string(q.Status), Action: "complete_checklist"}
		}
		if q.CustomerID == nil {
			return shared.Invalid("customer_id", "must be assigned before handoff")
		}
		items, err := tx.ListItems(ctx, quoteID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return shared.Invalid("items", "quote has no items")
		}
		at := s.now().UTC()
		by := actor.UserID
		checklist := Checklist{
			IsEstimate:           input.IsEstimate,
			IsTender:             input.IsTender,
			DirectRequest:        input.DirectRequest,
			TradingOrgRequest:    input.TradingOrgRequest,
			EquipmentDescription: description,
			CompletedAt:          &at,
			CompletedBy:          &by,
		}
		return tx.SaveChecklist(ctx, quoteID, checklist, QuoteStatusPendingProcurement)
	})
	if err != nil {
		return Quote{}, fmt.Errorf("complete checklist: %w", err)
	}
	s.recordAudit(ctx, actor, "QUOTE_CHECKLIST", quoteID, nil)
	return s.repo.GetQuote(ctx, quoteID)
}

// MarkPriced closes procurement pricing: every available item must carry a
// selected price. Totals are recomputed on the way.
func (s *Service) MarkPriced(ctx context.Context, actor shared.Actor, quoteID int64) (Quote, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := tx.LockQuote(ctx, quoteID)
		if err != nil {
			return err
		}
		if err := rbac.Authorize(actor, rbac.ActionQuotePrice, rbac.Resource{OrgID: q.OrgID}); err != nil {
			return err
		}
		if q.Status != QuoteStatusPendingProcurement {
			return &shared.WorkflowViolationError{Entity: "quote", ID: q.ID, From: string(q.Status), Action: "mark_priced"}
		}
		items, err := tx.ListItems(ctx, quoteID)
		if err != nil {
			return err
		}
		for _, it := range items {
			if it.IsAvailable && !it.Priced() {
				return shared.Invalid("items", fmt.Sprintf("item at position %d has no selected offer", it.Position))
			}
		}
		if err := s.applyTotals(ctx, tx, q, items); err != nil {
			return err
		}
		return tx.UpdateStatus(ctx, quoteID, QuoteStatusPriced)
	})
	if err != nil {
		return Quote{}, fmt.Errorf("mark priced: %w", err)
	}
	s.recordAudit(ctx, actor, "QUOTE_PRICED", quoteID, nil)
	return s.repo.GetQuote(ctx, quoteID)
}

// Approve is the controller's commercial sign-off. Totals are recomputed under
// the quote lock so offer changes made after pricing reach the approved figures.
func (s *Service) Approve(ctx context.Context, actor shared.Actor, quoteID int64) (Quote, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := tx.LockQuote(ctx, quoteID)
		if err != nil {
			return err
		}
		if err := rbac.Authorize(actor, rbac.ActionQuoteApprove, rbac.Resource{OrgID: q.OrgID}); err != nil {
			return err
		}
		if q.Status != QuoteStatusPriced {
			return &shared.WorkflowViolationError{Entity: "quote", ID: q.ID, From: string(q.Status), Action: "approve"}
		}
		items, err := tx.ListItems(ctx, quoteID)
		if err != nil {
			return err
		}
		if err := s.applyTotals(ctx, tx, q, items); err != nil {
			return err
		}
		return tx.SetApproval(ctx, quoteID, actor.UserID, s.now().UTC())
	})
	if err != nil {
		return Quote{}, fmt.Errorf("approve quote: %w", err)
	}
	s.recordAudit(ctx, actor, "QUOTE_APPROVE", quoteID, nil)
	return s.repo.GetQuote(ctx, quoteID)
}

// Reject closes the quote with a reason. Rejected and approved quotes are final.
func (s *Service) Reject(ctx context.Context, actor shared.Actor, quoteID int64, reason string) (Quote, error) {
	reason, err := shared.RequireText("reason", reason)
	if err != nil {
		return Quote{}, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := tx.LockQuote(ctx, quoteID)
		if err != nil {
			return err
		}
		if err := rbac.Authorize(actor, rbac.ActionQuoteReject, rbac.Resource{OrgID: q.OrgID}); err != nil {
			return err
		}
		if q.Status == QuoteStatusApproved || q.Status == QuoteStatusRejected {
			return &shared.WorkflowViolationError{Entity: "quote", ID: q.ID, From: string(q.Status), Action: "reject"}
		}
		return tx.SetRejection(ctx, quoteID, actor.UserID, s.now().UTC(), reason)
	})
	if err != nil {
		return Quote{}, fmt.Errorf("reject quote: %w", err)
	}
	s.recordAudit(ctx, actor, "QUOTE_REJECT", quoteID, map[string]any{"reason": reason})
	return s.repo.GetQuote(ctx, quoteID)
}

// Finalize assigns the quote IDN from the organization's yearly counter and
// derives every item's sequence code. A quote that already has an IDN is
// returned unchanged.
func (s *Service) Finalize(ctx context.Context, actor shared.Actor, quoteID int64) (Quote, error) {
	assigned := ""
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := tx.LockQuote(ctx, quoteID)
		if err != nil {
			return err
		}
		if err := rbac.Authorize(actor, rbac.ActionQuoteFinalize, rbac.Resource{OrgID: q.OrgID}); err != nil {
			return err
		}
		if q.IDN != nil {
			return nil
		}
		if q.Status != QuoteStatusPriced && q.Status != QuoteStatusApproved {
			return &shared.WorkflowViolationError{Entity: "quote", ID: q.ID, From: string(q.Status), Action: "finalize"}
		}
		year := s.now().UTC().Year()
		seq, err := tx.NextSequence(ctx, "quote_idn", strconv.FormatInt(q.OrgID, 10)+":"+strconv.Itoa(year))
		if err != nil {
			return err
		}
		idn := FormatIDN(year, seq)
		if err := tx.AssignIDN(ctx, quoteID, idn); err != nil {
			return err
		}
		items, err := tx.ListItems(ctx, quoteID)
		if err != nil {
			return err
		}
		for _, it := range items {
			if err := tx.SetItemSKU(ctx, it.ID, ItemSKU(idn, it.Position)); err != nil {
				return err
			}
		}
		assigned = idn
		return nil
	})
	if err != nil {
		return Quote{}, fmt.Errorf("finalize quote: %w", err)
	}
	if assigned != "" {
		s.recordAudit(ctx, actor, "QUOTE_FINALIZE", quoteID, map[string]any{"idn": assigned})
	}
	return s.repo.GetQuote(ctx, quoteID)
}

// RecalculateTotals recomputes the quote total in its own currency and in USD.
func (s *Service) RecalculateTotals(ctx context.Context, actor shared.Actor, quoteID int64) (Quote, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := tx.LockQuote(ctx, quoteID)
		if err != nil {
			return err
		}
		if err := rbac.Authorize(actor, rbac.ActionQuotePrice, rbac.Resource{OrgID: q.OrgID}); err != nil {
			return err
		}
		items, err := tx.ListItems(ctx, quoteID)
		if err != nil {
			return err
		}
		return s.applyTotals(ctx, tx, q, items)
	})
	if err != nil {
		return Quote{}, fmt.Errorf("recalculate totals: %w", err)
	}
	return s.repo.GetQuote(ctx, quoteID)
}

// applyTotals converts every priced item into the quote currency and USD at
// today's rates. A missing rate aborts the whole operation.
func (s *Service) applyTotals(ctx context.Context, tx TxRepository, q Quote, items []Item) error {
	if s.fx == nil {
		return errors.New("sales: currency converter not configured")
	}
	today := fx.DateOnly(s.now())
	total := decimal.Zero
	totalUSD := decimal.Zero
	for _, it := range items {
		if !it.Priced() || it.TotalPrice.IsZero() {
			continue
		}
		inQuote, err := s.fx.Convert(ctx, it.TotalPrice, *it.PurchaseCurrency, today, q.Currency)
		if err != nil {
			return err
		}
		inUSD, err := s.fx.Convert(ctx, it.TotalPrice, *it.PurchaseCurrency, today, shared.CurrencyUSD)
		if err != nil {
			return err
		}
		total = total.Add(inQuote)
		totalUSD = totalUSD.Add(inUSD)
	}
	return tx.SetTotals(ctx, q.ID, shared.Round2(total), shared.Round2(totalUSD))
}

func (s *Service) checkCustomer(ctx context.Context, orgID, customerID int64) error {
	if s.customers == nil {
		return nil
	}
	c, err := s.customers.Customer(ctx, customerID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return &shared.ReferentialError{Entity: "customer", ID: customerID}
		}
		return err
	}
	if c.OrgID != orgID {
		return &shared.ReferentialError{Entity: "customer", ID: customerID}
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Actor, action string, quoteID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: actor.UserID, OrgID: actor.OrgID, Action: action, Entity: "quote", EntityID: strconv.FormatInt(quoteID, 10), Meta: meta})
}
