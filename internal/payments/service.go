package payments

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/dealdesk/internal/fx"
	"github.com/odyssey-erp/dealdesk/internal/rbac"
	"github.com/odyssey-erp/dealdesk/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetSpecification(ctx context.Context, id int64) (SpecRef, error)
	ListPayments(ctx context.Context, specificationID int64, category Category) ([]Payment, error)
	ListSchedule(ctx context.Context, specificationID int64) ([]ScheduleEntry, error)
	GetSchedule(ctx context.Context, id int64) (ScheduleEntry, error)
}

// Converter normalizes amounts into the calculation currency.
type Converter interface {
	Convert(ctx context.Context, amount decimal.Decimal, currency string, date time.Time, target string) (decimal.Decimal, error)
}

// IdempotencyPort guards manual entry against double submission.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

const idempotencyModule = "payments"

// Service books payments and maintains the payment schedule.
type Service struct {
	repo        RepositoryPort
	converter   Converter
	idempotency IdempotencyPort
	audit       shared.AuditPort
}

// NewService constructs the ledger service. idempotency may be nil.
func NewService(repo RepositoryPort, converter Converter, idempotency IdempotencyPort, audit shared.AuditPort) *Service {
	return &Service{repo: repo, converter: converter, idempotency: idempotency, audit: audit}
}

// PaymentInput describes a booked payment. Numbers are assigned by the ledger.
type PaymentInput struct {
	SpecificationID int64
	Category        Category
	Amount          decimal.Decimal
	Currency        string
	PaidOn          time.Time
	Description     string
	IdempotencyKey  string
}

// ScheduleInput describes a planned payment.
type ScheduleInput struct {
	SpecificationID int64
	Basis           Basis
	Days            int
	ExpectedDate    *time.Time
	Amount          decimal.Decimal
	Currency        string
	Purpose         Purpose
	Comment         string
}

// RecordPayment books a payment under the next number of its specification
// and category, with the amount normalized to USD on the payment date.
func (s *Service) RecordPayment(ctx context.Context, actor shared.Actor, input PaymentInput) (Payment, error) {
	if !input.Category.Valid() {
		return Payment{}, shared.Invalid("category", "must be income or expense")
	}
	amount := shared.Round2(input.Amount)
	if err := shared.RequirePositive("amount", amount); err != nil {
		return Payment{}, err
	}
	currency, err := shared.NormalizeCurrency("currency", input.Currency)
	if err != nil {
		return Payment{}, err
	}
	if input.PaidOn.IsZero() {
		return Payment{}, shared.Invalid("paid_on", "is required")
	}
	paidOn := fx.DateOnly(input.PaidOn)

	spec, err := s.repo.GetSpecification(ctx, input.SpecificationID)
	if err != nil {
		return Payment{}, err
	}
	if err := rbac.Authorize(actor, rbac.ActionPaymentRecord, rbac.Resource{OrgID: spec.OrgID}); err != nil {
		return Payment{}, err
	}
	amountUSD, err := s.converter.Convert(ctx, amount, currency, paidOn, shared.CurrencyUSD)
	if err != nil {
		return Payment{}, fmt.Errorf("record payment: %w", err)
	}

	key := strings.TrimSpace(input.IdempotencyKey)
	if key != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, idempotencyModule); err != nil {
			return Payment{}, err
		}
	}

	payment := Payment{
		SpecificationID: spec.ID,
		Category:        input.Category,
		Amount:          amount,
		Currency:        currency,
		AmountUSD:       amountUSD,
		PaidOn:          paidOn,
		Description:     strings.TrimSpace(input.Description),
		CreatedBy:       actor.UserID,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.LockSpecification(ctx, spec.ID); err != nil {
			return err
		}
		number, err := tx.NextNumber(ctx, "payment_number", numberKey(spec.ID, input.Category))
		if err != nil {
			return err
		}
		payment.PaymentNumber = number
		id, err := tx.InsertPayment(ctx, payment)
		if err != nil {
			return err
		}
		payment.ID = id
		return nil
	})
	if err != nil {
		if key != "" && s.idempotency != nil {
			_ = s.idempotency.Delete(ctx, key)
		}
		return Payment{}, fmt.Errorf("record payment: %w", err)
	}
	s.recordAudit(ctx, actor, "PAYMENT_RECORD", spec.ID, map[string]any{
		"category": string(payment.Category), "number": payment.PaymentNumber, "amount": payment.Amount.String(), "currency": currency,
	})
	return payment, nil
}

// SchedulePayment plans a payment under the next schedule number of the specification.
func (s *Service) SchedulePayment(ctx context.Context, actor shared.Actor, input ScheduleInput) (ScheduleEntry, error) {
	if !input.Basis.Valid() {
		return ScheduleEntry{}, shared.Invalid("basis", "is not a known basis")
	}
	if !input.Purpose.Valid() {
		return ScheduleEntry{}, shared.Invalid("purpose", "must be advance, additional or final")
	}
	if input.Days < 0 {
		return ScheduleEntry{}, shared.Invalid("days", "must not be negative")
	}
	amount := shared.Round2(input.Amount)
	if err := shared.RequirePositive("amount", amount); err != nil {
		return ScheduleEntry{}, err
	}
	currency, err := shared.NormalizeCurrency("currency", input.Currency)
	if err != nil {
		return ScheduleEntry{}, err
	}
	entry := ScheduleEntry{
		SpecificationID: input.SpecificationID,
		Basis:           input.Basis,
		Days:            input.Days,
		Amount:          amount,
		Currency:        currency,
		Purpose:         input.Purpose,
		Comment:         strings.TrimSpace(input.Comment),
		CreatedBy:       actor.UserID,
	}
	if input.ExpectedDate != nil {
		d := fx.DateOnly(*input.ExpectedDate)
		entry.ExpectedDate = &d
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		spec, err := tx.LockSpecification(ctx, input.SpecificationID)
		if err != nil {
			return err
		}
		if err := rbac.Authorize(actor, rbac.ActionPaymentSchedule, rbac.Resource{OrgID: spec.OrgID}); err != nil {
			return err
		}
		number, err := tx.NextNumber(ctx, "schedule_number", numberKey(spec.ID, ""))
		if err != nil {
			return err
		}
		entry.PaymentNumber = number
		id, err := tx.InsertSchedule(ctx, entry)
		if err != nil {
			return err
		}
		entry.ID = id
		return nil
	})
	if err != nil {
		return ScheduleEntry{}, fmt.Errorf("schedule payment: %w", err)
	}
	s.recordAudit(ctx, actor, "PAYMENT_SCHEDULE", entry.SpecificationID, map[string]any{"number": entry.PaymentNumber, "purpose": string(entry.Purpose)})
	return entry, nil
}

// MarkScheduleActual stamps the date a planned payment actually happened.
func (s *Service) MarkScheduleActual(ctx context.Context, actor shared.Actor, entryID int64, date time.Time) (ScheduleEntry, error) {
	if date.IsZero() {
		return ScheduleEntry{}, shared.Invalid("actual_date", "is required")
	}
	date = fx.DateOnly(date)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		entry, err := tx.LockSchedule(ctx, entryID)
		if err != nil {
			return err
		}
		spec, err := tx.LockSpecification(ctx, entry.SpecificationID)
		if err != nil {
			return err
		}
		if err := rbac.Authorize(actor, rbac.ActionPaymentSchedule, rbac.Resource{OrgID: spec.OrgID}); err != nil {
			return err
		}
		return tx.SetActualDate(ctx, entryID, date)
	})
	if err != nil {
		return ScheduleEntry{}, fmt.Errorf("mark schedule actual: %w", err)
	}
	entry, err := s.repo.GetSchedule(ctx, entryID)
	if err != nil {
		return ScheduleEntry{}, err
	}
	s.recordAudit(ctx, actor, "PAYMENT_SCHEDULE_ACTUAL", entry.SpecificationID, map[string]any{"number": entry.PaymentNumber, "date": date.Format(time.DateOnly)})
	return entry, nil
}

// ListPayments returns the ledger of a specification.
func (s *Service) ListPayments(ctx context.Context, actor shared.Actor, specificationID int64, category Category) ([]Payment, error) {
	if category != "" && !category.Valid() {
		return nil, shared.Invalid("category", "must be income or expense")
	}
	if err := s.authorizeRead(ctx, actor, specificationID); err != nil {
		return nil, err
	}
	return s.repo.ListPayments(ctx, specificationID, category)
}

// ListSchedule returns the planned payments of a specification.
func (s *Service) ListSchedule(ctx context.Context, actor shared.Actor, specificationID int64) ([]ScheduleEntry, error) {
	if err := s.authorizeRead(ctx, actor, specificationID); err != nil {
		return nil, err
	}
	return s.repo.ListSchedule(ctx, specificationID)
}

func (s *Service) authorizeRead(ctx context.Context, actor shared.Actor, specificationID int64) error {
	spec, err := s.repo.GetSpecification(ctx, specificationID)
	if err != nil {
		return err
	}
	return rbac.Authorize(actor, rbac.ActionRead, rbac.Resource{OrgID: spec.OrgID})
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Actor, action string, specificationID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: actor.UserID, OrgID: actor.OrgID, Action: action, Entity: "specification", EntityID: strconv.FormatInt(specificationID, 10), Meta: meta})
}
