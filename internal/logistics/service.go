package logistics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
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
	GetDeal(ctx context.Context, dealID int64) (DealRef, error)
	GetStage(ctx context.Context, id int64) (Stage, error)
	ListStages(ctx context.Context, dealID int64) ([]Stage, error)
	ListExpenses(ctx context.Context, stageID int64) ([]Expense, error)
	DealsMissingStages(ctx context.Context, limit int) ([]int64, error)
}

// WarehouseLookup resolves warehouses.
type WarehouseLookup interface {
	Warehouse(ctx context.Context, id int64) (masterdata.Warehouse, error)
}

// Service advances deal stages and books stage expenses.
type Service struct {
	repo       RepositoryPort
	warehouses WarehouseLookup
	audit      shared.AuditPort
	logger     *slog.Logger
	now        func() time.Time
}

// NewService constructs the stage tracker.
func NewService(repo RepositoryPort, warehouses WarehouseLookup, audit shared.AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, warehouses: warehouses, audit: audit, logger: logger, now: time.Now}
}

// ExpenseInput describes a stage expense.
type ExpenseInput struct {
	Amount     decimal.Decimal
	Currency   string
	IncurredOn time.Time
	Note       string
}

// EnsureStages inserts every missing stage of the deal as pending and returns
// how many rows were created. Calling it again is a no-op.
func (s *Service) EnsureStages(ctx context.Context, dealID int64) (int, error) {
	created := 0
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.LockDeal(ctx, dealID); err != nil {
			return err
		}
		n, err := tx.InsertMissingStages(ctx, dealID, Codes)
		created = n
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("ensure stages: %w", err)
	}
	return created, nil
}

// ProvisionStages is EnsureStages on behalf of a user.
func (s *Service) ProvisionStages(ctx context.Context, actor shared.Actor, dealID int64) ([]Stage, error) {
	deal, err := s.repo.GetDeal(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if err := rbac.Authorize(actor, rbac.ActionStageProvision, rbac.Resource{OrgID: deal.OrgID}); err != nil {
		return nil, err
	}
	created, err := s.EnsureStages(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if created > 0 {
		s.recordAudit(ctx, actor, "STAGES_PROVISION", dealID, map[string]any{"created": created})
	}
	return s.repo.ListStages(ctx, dealID)
}

// ListStages returns the deal's stages in the fixed code order.
func (s *Service) ListStages(ctx context.Context, actor shared.Actor, dealID int64) ([]Stage, error) {
	deal, err := s.repo.GetDeal(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if err := rbac.Authorize(actor, rbac.ActionRead, rbac.Resource{OrgID: deal.OrgID}); err != nil {
		return nil, err
	}
	stages, err := s.repo.ListStages(ctx, dealID)
	if err != nil {
		return nil, err
	}
	sortStages(stages)
	return stages, nil
}

// StartStage moves a pending stage to in_progress.
func (s *Service) StartStage(ctx context.Context, actor shared.Actor, stageID int64) (Stage, error) {
	return s.transition(ctx, actor, stageID, StageStatusPending, StageStatusInProgress, "start")
}

// CompleteStage moves an in_progress stage to completed.
func (s *Service) CompleteStage(ctx context.Context, actor shared.Actor, stageID int64) (Stage, error) {
	return s.transition(ctx, actor, stageID, StageStatusInProgress, StageStatusCompleted, "complete")
}

func (s *Service) transition(ctx context.Context, actor shared.Actor, stageID int64, from, to StageStatus, action string) (Stage, error) {
	var stage Stage
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := s.lockForWrite(ctx, tx, actor, stageID)
		if err != nil {
			return err
		}
		if current.Status != from {
			return &shared.WorkflowViolationError{Entity: "logistics stage", ID: stageID, From: string(current.Status), Action: action}
		}
		at := s.now().UTC()
		ok, err := tx.TransitionStage(ctx, stageID, from, to, at)
		if err != nil {
			return err
		}
		if !ok {
			return &shared.WorkflowViolationError{Entity: "logistics stage", ID: stageID, From: string(current.Status), Action: action}
		}
		current.Status = to
		if to == StageStatusInProgress {
			current.StartedAt = &at
		} else {
			current.CompletedAt = &at
		}
		stage = current
		return nil
	})
	if err != nil {
		return Stage{}, fmt.Errorf("%s stage: %w", action, err)
	}
	s.recordAudit(ctx, actor, "STAGE_"+strings.ToUpper(string(to)), stage.DealID, map[string]any{"stage": string(stage.Code)})
	return stage, nil
}

// AssignResponsible sets or clears the person in charge of the stage.
func (s *Service) AssignResponsible(ctx context.Context, actor shared.Actor, stageID int64, userID *int64) (Stage, error) {
	if userID != nil && *userID <= 0 {
		return Stage{}, shared.Invalid("responsible_person", "must be positive")
	}
	var stage Stage
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := s.lockForWrite(ctx, tx, actor, stageID)
		if err != nil {
			return err
		}
		if err := tx.SetResponsible(ctx, stageID, userID); err != nil {
			return err
		}
		current.ResponsiblePerson = userID
		stage = current
		return nil
	})
	if err != nil {
		return Stage{}, fmt.Errorf("assign responsible: %w", err)
	}
	return stage, nil
}

// SetWarehouse attaches a warehouse to a hub stage. Other stages reject it.
func (s *Service) SetWarehouse(ctx context.Context, actor shared.Actor, stageID int64, warehouseID *int64) (Stage, error) {
	if warehouseID != nil {
		if err := s.checkWarehouse(ctx, actor.OrgID, *warehouseID); err != nil {
			return Stage{}, err
		}
	}
	var stage Stage
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := s.lockForWrite(ctx, tx, actor, stageID)
		if err != nil {
			return err
		}
		if warehouseID != nil && !current.Code.AcceptsWarehouse() {
			return shared.Invalid("warehouse_id", fmt.Sprintf("stage %s does not take a warehouse", current.Code))
		}
		if err := tx.SetWarehouse(ctx, stageID, warehouseID); err != nil {
			return err
		}
		current.WarehouseID = warehouseID
		stage = current
		return nil
	})
	if err != nil {
		return Stage{}, fmt.Errorf("set warehouse: %w", err)
	}
	return stage, nil
}

// UpdateNotes replaces the stage notes.
func (s *Service) UpdateNotes(ctx context.Context, actor shared.Actor, stageID int64, notes string) (Stage, error) {
	var stage Stage
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := s.lockForWrite(ctx, tx, actor, stageID)
		if err != nil {
			return err
		}
		current.Notes = strings.TrimSpace(notes)
		if err := tx.SetNotes(ctx, stageID, current.Notes); err != nil {
			return err
		}
		stage = current
		return nil
	})
	if err != nil {
		return Stage{}, fmt.Errorf("update notes: %w", err)
	}
	return stage, nil
}

// AddExpense books a cost against the stage.
func (s *Service) AddExpense(ctx context.Context, actor shared.Actor, stageID int64, input ExpenseInput) (Expense, error) {
	if err := shared.RequirePositive("amount", input.Amount); err != nil {
		return Expense{}, err
	}
	currency, err := shared.NormalizeCurrency("currency", input.Currency)
	if err != nil {
		return Expense{}, err
	}
	incurred := input.IncurredOn
	if incurred.IsZero() {
		incurred = s.now()
	}
	expense := Expense{
		StageID:    stageID,
		Amount:     input.Amount,
		Currency:   currency,
		IncurredOn: fx.DateOnly(incurred),
		Note:       strings.TrimSpace(input.Note),
		CreatedBy:  actor.UserID,
	}
	var dealID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		stage, err := s.lockForWrite(ctx, tx, actor, stageID)
		if err != nil {
			return err
		}
		dealID = stage.DealID
		id, err := tx.InsertExpense(ctx, expense)
		if err != nil {
			return err
		}
		expense.ID = id
		return nil
	})
	if err != nil {
		return Expense{}, fmt.Errorf("add expense: %w", err)
	}
	s.recordAudit(ctx, actor, "STAGE_EXPENSE_ADD", dealID, map[string]any{"stage_id": stageID, "amount": expense.Amount.String(), "currency": expense.Currency})
	return expense, nil
}

// ListExpenses returns the stage's expenses.
func (s *Service) ListExpenses(ctx context.Context, actor shared.Actor, stageID int64) ([]Expense, error) {
	stage, err := s.repo.GetStage(ctx, stageID)
	if err != nil {
		return nil, err
	}
	deal, err := s.repo.GetDeal(ctx, stage.DealID)
	if err != nil {
		return nil, err
	}
	if err := rbac.Authorize(actor, rbac.ActionRead, rbac.Resource{OrgID: deal.OrgID}); err != nil {
		return nil, err
	}
	return s.repo.ListExpenses(ctx, stageID)
}

// Backfill ensures stages for every deal missing some, in batches. A failing
// deal is logged and skipped so one bad row does not block the rest.
func (s *Service) Backfill(ctx context.Context, batch int) (BackfillResult, error) {
	if batch <= 0 {
		batch = 100
	}
	var res BackfillResult
	failed := map[int64]bool{}
	for {
		ids, err := s.repo.DealsMissingStages(ctx, batch+len(failed))
		if err != nil {
			return res, fmt.Errorf("backfill stages: %w", err)
		}
		progressed := false
		for _, id := range ids {
			if failed[id] {
				continue
			}
			if err := ctx.Err(); err != nil {
				return res, err
			}
			n, err := s.EnsureStages(ctx, id)
			if err != nil {
				failed[id] = true
				s.logger.Error("backfill deal stages", slog.Int64("deal_id", id), slog.Any("error", err))
				continue
			}
			progressed = true
			res.Deals++
			res.Stages += n
		}
		if !progressed {
			break
		}
	}
	if len(failed) > 0 {
		return res, fmt.Errorf("backfill stages: %d deals failed", len(failed))
	}
	return res, nil
}

func (s *Service) lockForWrite(ctx context.Context, tx TxRepository, actor shared.Actor, stageID int64) (Stage, error) {
	stage, err := tx.LockStage(ctx, stageID)
	if err != nil {
		return Stage{}, err
	}
	deal, err := tx.LockDeal(ctx, stage.DealID)
	if err != nil {
		return Stage{}, err
	}
	if err := rbac.Authorize(actor, rbac.ActionStageManage, rbac.Resource{OrgID: deal.OrgID}); err != nil {
		return Stage{}, err
	}
	return stage, nil
}

func (s *Service) checkWarehouse(ctx context.Context, orgID, id int64) error {
	if s.warehouses == nil {
		return nil
	}
	wh, err := s.warehouses.Warehouse(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return &shared.ReferentialError{Entity: "warehouse", ID: id}
		}
		return err
	}
	if wh.OrgID != orgID {
		return &shared.ReferentialError{Entity: "warehouse", ID: id}
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Actor, action string, dealID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: actor.UserID, OrgID: actor.OrgID, Action: action, Entity: "deal", EntityID: strconv.FormatInt(dealID, 10), Meta: meta})
}

func sortStages(stages []Stage) {
	sort.SliceStable(stages, func(i, j int) bool { return stages[i].Code.Order() < stages[j].Code.Order() })
}
