package procurement

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/dealdesk/internal/rbac"
	"github.com/odyssey-erp/dealdesk/internal/sales"
	"github.com/odyssey-erp/dealdesk/internal/shared"
)

// OfferInput describes a supplier price for an item.
type OfferInput struct {
	ItemID       int64
	SupplierID   int64
	Price        decimal.Decimal
	Currency     string
	LeadTimeDays *int
}

// CreateOffer records a supplier offer. Offers never touch the item until selected.
func (s *Service) CreateOffer(ctx context.Context, actor shared.Actor, input OfferInput) (Offer, error) {
	if err := shared.RequirePositive("price", input.Price); err != nil {
		return Offer{}, err
	}
	currency, err := shared.NormalizeCurrency("currency", input.Currency)
	if err != nil {
		return Offer{}, err
	}
	if input.LeadTimeDays != nil && *input.LeadTimeDays < 0 {
		return Offer{}, shared.Invalid("lead_time_days", "must not be negative")
	}
	if _, err := s.supplier(ctx, actor.OrgID, input.SupplierID); err != nil {
		return Offer{}, err
	}
	offer := Offer{
		QuoteItemID:  input.ItemID,
		SupplierID:   input.SupplierID,
		Price:        input.Price,
		Currency:     currency,
		LeadTimeDays: input.LeadTimeDays,
		CreatedBy:    actor.UserID,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.LockItem(ctx, input.ItemID)
		if err != nil {
			return err
		}
		q, err := authorizeQuote(ctx, tx, actor, rbac.ActionOfferManage, item.QuoteID)
		if err != nil {
			return err
		}
		if !workable(q.Status) {
			return &shared.WorkflowViolationError{Entity: "quote", ID: q.ID, From: string(q.Status), Action: "add_offer"}
		}
		id, err := tx.InsertOffer(ctx, offer)
		if err != nil {
			return err
		}
		offer.ID = id
		return nil
	})
	if err != nil {
		return Offer{}, fmt.Errorf("create offer: %w", err)
	}
	s.recordAudit(ctx, actor, "OFFER_CREATE", "quote_item", input.ItemID, map[string]any{"offer_id": offer.ID, "supplier_id": offer.SupplierID})
	return offer, nil
}

// ListOffers returns the offers recorded for an item.
func (s *Service) ListOffers(ctx context.Context, actor shared.Actor, itemID int64) ([]Offer, error) {
	item, err := s.repo.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	q, err := s.repo.GetQuote(ctx, item.QuoteID)
	if err != nil {
		return nil, err
	}
	if err := rbac.Authorize(actor, rbac.ActionRead, rbac.Resource{OrgID: q.OrgID}); err != nil {
		return nil, err
	}
	return s.repo.ListOffers(ctx, itemID)
}

// SelectOffer makes offerID the item's single selected offer and copies its
// terms onto the item. The item row stays locked for the whole exchange so
// concurrent selections serialize. A grouped item can only be repriced while
// its invoice is still in procurement; switching to another supplier releases
// it from that invoice so it can be regrouped under the new key.
func (s *Service) SelectOffer(ctx context.Context, actor shared.Actor, offerID int64) (sales.Item, error) {
	offer, err := s.repo.GetOffer(ctx, offerID)
	if err != nil {
		return sales.Item{}, err
	}
	sup, err := s.supplier(ctx, actor.OrgID, offer.SupplierID)
	if err != nil {
		return sales.Item{}, err
	}
	var (
		updated  sales.Item
		released int64
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		offer, err := tx.GetOffer(ctx, offerID)
		if err != nil {
			return err
		}
		item, err := tx.LockItem(ctx, offer.QuoteItemID)
		if err != nil {
			return err
		}
		q, err := authorizeQuote(ctx, tx, actor, rbac.ActionOfferSelect, item.QuoteID)
		if err != nil {
			return err
		}
		if !workable(q.Status) {
			return &shared.WorkflowViolationError{Entity: "quote", ID: q.ID, From: string(q.Status), Action: "select_offer"}
		}
		var current *Invoice
		if item.InvoiceID != nil {
			inv, err := tx.LockInvoice(ctx, *item.InvoiceID)
			if err != nil {
				return err
			}
			if inv.Status != InvoiceStatusPendingProcurement {
				return &shared.WorkflowViolationError{Entity: "invoice", ID: inv.ID, From: string(inv.Status), Action: "select_offer"}
			}
			current = &inv
		}
		if err := tx.DeselectOffers(ctx, item.ID); err != nil {
			return err
		}
		if err := tx.MarkOfferSelected(ctx, offer.ID); err != nil {
			return err
		}
		country := item.SupplierCountry
		if country == nil && sup.Country != "" {
			c := sup.Country
			country = &c
		}
		total := sales.ItemTotal(item.Quantity, &offer.Price)
		if err := tx.ApplyOffer(ctx, item.ID, offer, country, total); err != nil {
			return err
		}
		if current != nil {
			if current.SupplierID != offer.SupplierID {
				if err := tx.SetItemInvoice(ctx, item.ID, nil); err != nil {
					return err
				}
				item.InvoiceID = nil
				released = current.ID
			}
			if _, err := tx.RecalculateTotal(ctx, current.ID); err != nil {
				return err
			}
		}
		price, currency, supplierID := offer.Price, offer.Currency, offer.SupplierID
		item.PurchasePrice = &price
		item.PurchaseCurrency = &currency
		item.SupplierID = &supplierID
		item.SupplierCountry = country
		item.LeadTimeDays = offer.LeadTimeDays
		item.TotalPrice = total
		updated = item
		return nil
	})
	if err != nil {
		return sales.Item{}, fmt.Errorf("select offer: %w", err)
	}
	meta := map[string]any{"offer_id": offerID}
	if released != 0 {
		meta["released_invoice_id"] = released
	}
	s.recordAudit(ctx, actor, "OFFER_SELECT", "quote_item", updated.ID, meta)
	return updated, nil
}
