package procurement

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/dealdesk/internal/fx"
	"github.com/odyssey-erp/dealdesk/internal/rbac"
	"github.com/odyssey-erp/dealdesk/internal/sales"
	"github.com/odyssey-erp/dealdesk/internal/shared"
)

// GroupingInput identifies an invoice and carries the metadata fixed at creation.
type GroupingInput struct {
	QuoteID        int64
	SupplierID     int64
	BuyerCompanyID int64
	PickupLocation string
	Currency       string
	Number         string
}

// DimensionsInput sets invoice shipping dimensions.
type DimensionsInput struct {
	WeightKg *decimal.Decimal
	VolumeM3 *decimal.Decimal
}

// CostInput describes a logistics cost entry.
type CostInput struct {
	Kind       string
	Amount     decimal.Decimal
	Currency   string
	IncurredOn time.Time
	Note       string
}

// GroupQuoteInput drives automatic grouping of a quote's priced items.
// Pickups maps supplier id to pickup location; DefaultPickup covers the rest.
type GroupQuoteInput struct {
	BuyerCompanyID int64
	DefaultPickup  string
	Pickups        map[int64]string
}

// GetOrCreateInvoice returns the invoice for the grouping key, creating it
// in pending_procurement when absent. Number and currency are fixed by the
// first call; a later call that disagrees fails with a conflict.
func (s *Service) GetOrCreateInvoice(ctx context.Context, actor shared.Actor, input GroupingInput) (Invoice, error) {
	pickup, err := shared.RequireText("pickup_location", input.PickupLocation)
	if err != nil {
		return Invoice{}, err
	}
	number, err := shared.RequireText("number", input.Number)
	if err != nil {
		return Invoice{}, err
	}
	currency, err := shared.NormalizeCurrency("currency", input.Currency)
	if err != nil {
		return Invoice{}, err
	}
	if _, err := s.supplier(ctx, actor.OrgID, input.SupplierID); err != nil {
		return Invoice{}, err
	}
	if err := s.buyer(ctx, actor.OrgID, input.BuyerCompanyID); err != nil {
		return Invoice{}, err
	}
	key := GroupingKey{QuoteID: input.QuoteID, SupplierID: input.SupplierID, BuyerCompanyID: input.BuyerCompanyID, PickupLocation: pickup}
	var (
		inv     Invoice
		created bool
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := authorizeQuote(ctx, tx, actor, rbac.ActionInvoiceGroup, input.QuoteID)
		if err != nil {
			return err
		}
		if !groupable(q.Status) {
			return &shared.WorkflowViolationError{Entity: "quote", ID: q.ID, From: string(q.Status), Action: "group_invoice"}
		}
		inv, created, err = getOrCreate(ctx, tx, key, number, currency)
		return err
	})
	if err != nil {
		return Invoice{}, fmt.Errorf("get or create invoice: %w", err)
	}
	if created {
		s.recordAudit(ctx, actor, "INVOICE_CREATE", "invoice", inv.ID, map[string]any{"quote_id": key.QuoteID, "supplier_id": key.SupplierID})
	}
	return inv, nil
}

func getOrCreate(ctx context.Context, tx TxRepository, key GroupingKey, number, currency string) (Invoice, bool, error) {
	existing, ok, err := tx.FindInvoice(ctx, key)
	if err != nil {
		return Invoice{}, false, err
	}
	if !ok {
		id, created, err := tx.InsertInvoice(ctx, Invoice{
			QuoteID:        key.QuoteID,
			SupplierID:     key.SupplierID,
			BuyerCompanyID: key.BuyerCompanyID,
			PickupLocation: key.PickupLocation,
			InvoiceNumber:  number,
			Currency:       currency,
		})
		if err != nil {
			return Invoice{}, false, err
		}
		if created {
			inv, err := tx.LockInvoice(ctx, id)
			return inv, true, err
		}
		existing, ok, err = tx.FindInvoice(ctx, key)
		if err != nil {
			return Invoice{}, false, err
		}
		if !ok {
			return Invoice{}, false, &shared.ConflictError{Entity: "invoice", Detail: "concurrent grouping, retry the operation"}
		}
	}
	if existing.InvoiceNumber != number || existing.Currency != currency {
		return Invoice{}, false, &shared.ConflictError{
			Entity: "invoice",
			Detail: fmt.Sprintf("grouping key already holds invoice %s in %s", existing.InvoiceNumber, existing.Currency),
		}
	}
	return existing, false, nil
}

// AssignItem moves an item into invoiceID. Both the invoice it leaves and the
// one it joins are recomputed in the same transaction.
func (s *Service) AssignItem(ctx context.Context, actor shared.Actor, itemID, invoiceID int64) (Invoice, error) {
	var inv Invoice
	var previous *int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		target, err := tx.LockInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}
		if _, err := authorizeQuote(ctx, tx, actor, rbac.ActionInvoiceGroup, target.QuoteID); err != nil {
			return err
		}
		item, err := tx.LockItem(ctx, itemID)
		if err != nil {
			return err
		}
		if item.QuoteID != target.QuoteID {
			return shared.Invalid("item_id", "belongs to another quote")
		}
		if item.InvoiceID != nil && *item.InvoiceID == invoiceID {
			inv = target
			return nil
		}
		if target.Status != InvoiceStatusPendingProcurement {
			return &shared.WorkflowViolationError{Entity: "invoice", ID: target.ID, From: string(target.Status), Action: "assign_item"}
		}
		if item.InvoiceID != nil {
			old, err := tx.LockInvoice(ctx, *item.InvoiceID)
			if err != nil {
				return err
			}
			if old.Status != InvoiceStatusPendingProcurement {
				return &shared.WorkflowViolationError{Entity: "invoice", ID: old.ID, From: string(old.Status), Action: "release_item"}
			}
			previous = item.InvoiceID
		}
		if err := tx.SetItemInvoice(ctx, itemID, &invoiceID); err != nil {
			return err
		}
		if previous != nil {
			if _, err := tx.RecalculateTotal(ctx, *previous); err != nil {
				return err
			}
		}
		total, err := tx.RecalculateTotal(ctx, invoiceID)
		if err != nil {
			return err
		}
		target.TotalAmount = total
		inv = target
		return nil
	})
	if err != nil {
		return Invoice{}, fmt.Errorf("assign item: %w", err)
	}
	meta := map[string]any{"item_id": itemID}
	if previous != nil {
		meta["from_invoice_id"] = *previous
	}
	s.recordAudit(ctx, actor, "INVOICE_ASSIGN_ITEM", "invoice", invoiceID, meta)
	return inv, nil
}

// UnassignItem clears the item's invoice and recomputes that invoice.
func (s *Service) UnassignItem(ctx context.Context, actor shared.Actor, itemID int64) error {
	var released int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.LockItem(ctx, itemID)
		if err != nil {
			return err
		}
		if _, err := authorizeQuote(ctx, tx, actor, rbac.ActionInvoiceGroup, item.QuoteID); err != nil {
			return err
		}
		if item.InvoiceID == nil {
			return nil
		}
		inv, err := tx.LockInvoice(ctx, *item.InvoiceID)
		if err != nil {
			return err
		}
		if inv.Status != InvoiceStatusPendingProcurement {
			return &shared.WorkflowViolationError{Entity: "invoice", ID: inv.ID, From: string(inv.Status), Action: "release_item"}
		}
		if err := tx.SetItemInvoice(ctx, itemID, nil); err != nil {
			return err
		}
		if _, err := tx.RecalculateTotal(ctx, inv.ID); err != nil {
			return err
		}
		released = inv.ID
		return nil
	})
	if err != nil {
		return fmt.Errorf("unassign item: %w", err)
	}
	if released != 0 {
		s.recordAudit(ctx, actor, "INVOICE_RELEASE_ITEM", "invoice", released, map[string]any{"item_id": itemID})
	}
	return nil
}

// GroupQuote assigns every priced, available, ungrouped item of the quote to
// the invoice of its (supplier, buyer, pickup) key, creating invoices as
// needed. New invoices take the item's purchase currency and a provisional
// number derived from the quote and supplier.
func (s *Service) GroupQuote(ctx context.Context, actor shared.Actor, quoteID int64, input GroupQuoteInput) ([]Invoice, error) {
	if err := s.buyer(ctx, actor.OrgID, input.BuyerCompanyID); err != nil {
		return nil, err
	}
	defaultPickup := strings.TrimSpace(input.DefaultPickup)
	pickupFor := func(supplierID int64) string {
		if p := strings.TrimSpace(input.Pickups[supplierID]); p != "" {
			return p
		}
		return defaultPickup
	}
	touched := map[int64]Invoice{}
	var order []int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := authorizeQuote(ctx, tx, actor, rbac.ActionInvoiceGroup, quoteID)
		if err != nil {
			return err
		}
		if !groupable(q.Status) {
			return &shared.WorkflowViolationError{Entity: "quote", ID: q.ID, From: string(q.Status), Action: "group_invoice"}
		}
		items, err := tx.ListQuoteItems(ctx, quoteID)
		if err != nil {
			return err
		}
		for _, it := range items {
			if !it.IsAvailable || !it.Priced() || it.SupplierID == nil || it.InvoiceID != nil {
				continue
			}
			pickup := pickupFor(*it.SupplierID)
			if pickup == "" {
				return shared.Invalid("pickup_location", fmt.Sprintf("missing for supplier %d", *it.SupplierID))
			}
			key := GroupingKey{QuoteID: quoteID, SupplierID: *it.SupplierID, BuyerCompanyID: input.BuyerCompanyID, PickupLocation: pickup}
			inv, ok, err := tx.FindInvoice(ctx, key)
			if err != nil {
				return err
			}
			if !ok {
				inv, _, err = getOrCreate(ctx, tx, key, provisionalNumber(quoteID, *it.SupplierID, pickup), *it.PurchaseCurrency)
				if err != nil {
					return err
				}
			}
			if inv.Status != InvoiceStatusPendingProcurement {
				return &shared.WorkflowViolationError{Entity: "invoice", ID: inv.ID, From: string(inv.Status), Action: "assign_item"}
			}
			id := inv.ID
			if err := tx.SetItemInvoice(ctx, it.ID, &id); err != nil {
				return err
			}
			if _, seen := touched[inv.ID]; !seen {
				order = append(order, inv.ID)
			}
			touched[inv.ID] = inv
		}
		for _, id := range order {
			total, err := tx.RecalculateTotal(ctx, id)
			if err != nil {
				return err
			}
			inv := touched[id]
			inv.TotalAmount = total
			touched[id] = inv
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("group quote: %w", err)
	}
	out := make([]Invoice, 0, len(order))
	for _, id := range order {
		out = append(out, touched[id])
	}
	s.recordAudit(ctx, actor, "QUOTE_GROUP", "quote", quoteID, map[string]any{"invoices": order})
	return out, nil
}

func provisionalNumber(quoteID, supplierID int64, pickup string) string {
	return fmt.Sprintf("Q%d-S%d-%s", quoteID, supplierID, strings.ToUpper(strings.ReplaceAll(pickup, " ", "_")))
}

// SetDimensions records the invoice shipping weight and volume.
func (s *Service) SetDimensions(ctx context.Context, actor shared.Actor, invoiceID int64, input DimensionsInput) (Invoice, error) {
	if input.WeightKg != nil {
		if err := shared.RequirePositive("total_weight_kg", *input.WeightKg); err != nil {
			return Invoice{}, err
		}
	}
	if input.VolumeM3 != nil {
		if err := shared.RequirePositive("total_volume_m3", *input.VolumeM3); err != nil {
			return Invoice{}, err
		}
	}
	var inv Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}
		if _, err := authorizeQuote(ctx, tx, actor, rbac.ActionInvoiceDimensions, current.QuoteID); err != nil {
			return err
		}
		if current.Status == InvoiceStatusCompleted {
			return &shared.WorkflowViolationError{Entity: "invoice", ID: current.ID, From: string(current.Status), Action: "set_dimensions"}
		}
		if input.WeightKg != nil {
			current.TotalWeightKg = input.WeightKg
		}
		if input.VolumeM3 != nil {
			current.TotalVolumeM3 = input.VolumeM3
		}
		if err := tx.SetDimensions(ctx, invoiceID, current.TotalWeightKg, current.TotalVolumeM3); err != nil {
			return err
		}
		inv = current
		return nil
	})
	if err != nil {
		return Invoice{}, fmt.Errorf("set dimensions: %w", err)
	}
	return inv, nil
}

// AddCost books a logistics cost against the invoice.
func (s *Service) AddCost(ctx context.Context, actor shared.Actor, invoiceID int64, input CostInput) (Cost, error) {
	kind, err := shared.RequireText("kind", input.Kind)
	if err != nil {
		return Cost{}, err
	}
	if err := shared.RequirePositive("amount", input.Amount); err != nil {
		return Cost{}, err
	}
	currency, err := shared.NormalizeCurrency("currency", input.Currency)
	if err != nil {
		return Cost{}, err
	}
	incurred := input.IncurredOn
	if incurred.IsZero() {
		incurred = s.now()
	}
	cost := Cost{
		InvoiceID:  invoiceID,
		Kind:       kind,
		Amount:     input.Amount,
		Currency:   currency,
		IncurredOn: fx.DateOnly(incurred),
		Note:       strings.TrimSpace(input.Note),
		CreatedBy:  actor.UserID,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.LockInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}
		if _, err := authorizeQuote(ctx, tx, actor, rbac.ActionInvoiceCostAdd, inv.QuoteID); err != nil {
			return err
		}
		id, err := tx.InsertCost(ctx, cost)
		if err != nil {
			return err
		}
		cost.ID = id
		return nil
	})
	if err != nil {
		return Cost{}, fmt.Errorf("add cost: %w", err)
	}
	s.recordAudit(ctx, actor, "INVOICE_COST_ADD", "invoice", invoiceID, map[string]any{"amount": cost.Amount.String(), "currency": cost.Currency})
	return cost, nil
}

// ListCosts returns the invoice's cost entries.
func (s *Service) ListCosts(ctx context.Context, actor shared.Actor, invoiceID int64) ([]Cost, error) {
	if _, err := s.readInvoice(ctx, actor, invoiceID); err != nil {
		return nil, err
	}
	return s.repo.ListCosts(ctx, invoiceID)
}

// LogisticsCostTotal sums the invoice's cost entries in target at the rate of date.
func (s *Service) LogisticsCostTotal(ctx context.Context, actor shared.Actor, invoiceID int64, target string, date time.Time) (decimal.Decimal, error) {
	if _, err := s.readInvoice(ctx, actor, invoiceID); err != nil {
		return decimal.Zero, err
	}
	costs, err := s.repo.ListCosts(ctx, invoiceID)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, c := range costs {
		v, err := s.fx.Convert(ctx, c.Amount, c.Currency, date, target)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(v)
	}
	return shared.Round2(total), nil
}

// GetInvoice returns an invoice with its items.
func (s *Service) GetInvoice(ctx context.Context, actor shared.Actor, invoiceID int64) (InvoiceWithItems, error) {
	inv, err := s.readInvoice(ctx, actor, invoiceID)
	if err != nil {
		return InvoiceWithItems{}, err
	}
	items, err := s.repo.ListInvoiceItems(ctx, invoiceID)
	if err != nil {
		return InvoiceWithItems{}, err
	}
	return InvoiceWithItems{Invoice: inv, Items: items}, nil
}

// ListInvoices returns the invoices of a quote.
func (s *Service) ListInvoices(ctx context.Context, actor shared.Actor, quoteID int64) ([]Invoice, error) {
	q, err := s.repo.GetQuote(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	if err := rbac.Authorize(actor, rbac.ActionRead, rbac.Resource{OrgID: q.OrgID}); err != nil {
		return nil, err
	}
	return s.repo.ListInvoices(ctx, quoteID)
}

func (s *Service) readInvoice(ctx context.Context, actor shared.Actor, invoiceID int64) (Invoice, error) {
	inv, err := s.repo.GetInvoice(ctx, invoiceID)
	if err != nil {
		return Invoice{}, err
	}
	q, err := s.repo.GetQuote(ctx, inv.QuoteID)
	if err != nil {
		return Invoice{}, err
	}
	if err := rbac.Authorize(actor, rbac.ActionRead, rbac.Resource{OrgID: q.OrgID}); err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

// itemsPriced reports whether every item grouped into the invoice carries a price.
func itemsPriced(items []sales.Item) bool {
	for _, it := range items {
		if !it.Priced() {
			return false
		}
	}
	return true
}
