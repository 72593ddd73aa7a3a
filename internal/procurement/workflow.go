package procurement

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/dealdesk/internal/rbac"
	"github.com/odyssey-erp/dealdesk/internal/shared"
)

// CompleteProcurement hands the invoice to logistics. The invoice needs a
// weight, at least one item, and a price on every item.
func (s *Service) CompleteProcurement(ctx context.Context, actor shared.Actor, invoiceID int64) (Invoice, error) {
	return s.advance(ctx, actor, invoiceID, stepProcurement, rbac.ActionInvoiceCompleteProcurement, func(ctx context.Context, tx TxRepository, inv Invoice) error {
		if inv.TotalWeightKg == nil {
			return shared.Invalid("total_weight_kg", "is required before procurement completes")
		}
		items, err := tx.ListInvoiceItems(ctx, inv.ID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return shared.Invalid("items", "invoice has no items")
		}
		if !itemsPriced(items) {
			return shared.Invalid("items", "every item needs a selected offer")
		}
		return nil
	})
}

// CompleteLogistics hands the invoice to customs.
func (s *Service) CompleteLogistics(ctx context.Context, actor shared.Actor, invoiceID int64) (Invoice, error) {
	return s.advance(ctx, actor, invoiceID, stepLogistics, rbac.ActionInvoiceCompleteLogistics, nil)
}

// CompleteCustoms closes the invoice workflow.
func (s *Service) CompleteCustoms(ctx context.Context, actor shared.Actor, invoiceID int64) (Invoice, error) {
	return s.advance(ctx, actor, invoiceID, stepCustoms, rbac.ActionInvoiceCompleteCustoms, nil)
}

type precondition func(ctx context.Context, tx TxRepository, inv Invoice) error

// advance moves the invoice exactly one step. The update is conditional on
// the expected status so a concurrent completion cannot skip or repeat a step.
func (s *Service) advance(ctx context.Context, actor shared.Actor, invoiceID int64, st step, action rbac.Action, check precondition) (Invoice, error) {
	var inv Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}
		if _, err := authorizeQuote(ctx, tx, actor, action, current.QuoteID); err != nil {
			return err
		}
		if current.Status != st.from {
			return &shared.WorkflowViolationError{Entity: "invoice", ID: current.ID, From: string(current.Status), Action: st.action}
		}
		if check != nil {
			if err := check(ctx, tx, current); err != nil {
				return err
			}
		}
		at := s.now().UTC()
		ok, err := tx.AdvanceStatus(ctx, invoiceID, st, actor.UserID, at)
		if err != nil {
			return err
		}
		if !ok {
			return &shared.WorkflowViolationError{Entity: "invoice", ID: current.ID, From: string(current.Status), Action: st.action}
		}
		inv, err = tx.LockInvoice(ctx, invoiceID)
		return err
	})
	if err != nil {
		return Invoice{}, fmt.Errorf("%s: %w", st.action, err)
	}
	s.recordAudit(ctx, actor, "INVOICE_"+string(st.to), "invoice", invoiceID, map[string]any{"from": string(st.from)})
	return inv, nil
}

// OverrideStatus forces an invoice into any status. Administrators only; the
// reason is kept in the audit trail.
func (s *Service) OverrideStatus(ctx context.Context, actor shared.Actor, invoiceID int64, status InvoiceStatus, reason string) (Invoice, error) {
	if !status.Valid() {
		return Invoice{}, shared.Invalid("status", "is not an invoice status")
	}
	reason, err := shared.RequireText("reason", reason)
	if err != nil {
		return Invoice{}, err
	}
	var (
		inv  Invoice
		from InvoiceStatus
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}
		if _, err := authorizeQuote(ctx, tx, actor, rbac.ActionInvoiceOverride, current.QuoteID); err != nil {
			return err
		}
		from = current.Status
		if err := tx.OverrideStatus(ctx, invoiceID, status); err != nil {
			return err
		}
		current.Status = status
		inv = current
		return nil
	})
	if err != nil {
		return Invoice{}, fmt.Errorf("override invoice status: %w", err)
	}
	s.recordAudit(ctx, actor, "INVOICE_OVERRIDE", "invoice", invoiceID, map[string]any{"from": string(from), "to": string(status), "reason": reason})
	return inv, nil
}
