package logistics

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/dealdesk/internal/platform/db"
	"github.com/odyssey-erp/dealdesk/internal/shared"
)

// Repository provides PostgreSQL backed persistence for stages.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	LockDeal(ctx context.Context, dealID int64) (DealRef, error)
	InsertMissingStages(ctx context.Context, dealID int64, codes []StageCode) (int, error)
	LockStage(ctx context.Context, id int64) (Stage, error)
	TransitionStage(ctx context.Context, id int64, from, to StageStatus, at time.Time) (bool, error)
	SetResponsible(ctx context.Context, id int64, userID *int64) error
	SetWarehouse(ctx context.Context, id int64, warehouseID *int64) error
	SetNotes(ctx context.Context, id int64, notes string) error
	InsertExpense(ctx context.Context, e Expense) (int64, error)
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const stageColumns = `id, deal_id, stage_code, status, started_at, completed_at, responsible_person, warehouse_id, notes`

func scanStage(row pgx.Row) (Stage, error) {
	var s Stage
	err := row.Scan(&s.ID, &s.DealID, &s.Code, &s.Status, &s.StartedAt, &s.CompletedAt, &s.ResponsiblePerson, &s.WarehouseID, &s.Notes)
	if errors.Is(err, pgx.ErrNoRows) {
		return Stage{}, shared.ErrNotFound
	}
	return s, err
}

func stageCodes(codes []StageCode) []string {
	out := make([]string, len(codes))
	for i, c := range codes {
		out[i] = string(c)
	}
	return out
}

// GetDeal loads the deal reference.
func (r *Repository) GetDeal(ctx context.Context, dealID int64) (DealRef, error) {
	return getDeal(ctx, r.pool, dealID, "")
}

func getDeal(ctx context.Context, q db.Querier, dealID int64, lock string) (DealRef, error) {
	var d DealRef
	err := q.QueryRow(ctx, `SELECT d.id, s.org_id FROM deals d JOIN specifications s ON s.id = d.specification_id
WHERE d.id = $1`+lock, dealID).Scan(&d.ID, &d.OrgID)
	if errors.Is(err, pgx.ErrNoRows) {
		return DealRef{}, shared.NotFound("deal", dealID)
	}
	return d, err
}

// GetStage loads one stage.
func (r *Repository) GetStage(ctx context.Context, id int64) (Stage, error) {
	s, err := scanStage(r.pool.QueryRow(ctx, `SELECT `+stageColumns+` FROM logistics_stages WHERE id = $1`, id))
	if errors.Is(err, shared.ErrNotFound) {
		return Stage{}, shared.NotFound("logistics stage", id)
	}
	return s, err
}

// ListStages returns a deal's stages in the fixed code order.
func (r *Repository) ListStages(ctx context.Context, dealID int64) ([]Stage, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+stageColumns+` FROM logistics_stages WHERE deal_id = $1
ORDER BY array_position($2::text[], stage_code), id`, dealID, stageCodes(Codes))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Stage
	for rows.Next() {
		s, err := scanStage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListExpenses returns a stage's expenses.
func (r *Repository) ListExpenses(ctx context.Context, stageID int64) ([]Expense, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, stage_id, amount, currency, incurred_on, note, created_by
FROM stage_expenses WHERE stage_id = $1 ORDER BY incurred_on, id`, stageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Expense
	for rows.Next() {
		var e Expense
		if err := rows.Scan(&e.ID, &e.StageID, &e.Amount, &e.Currency, &e.IncurredOn, &e.Note, &e.CreatedBy); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DealsMissingStages lists deals with fewer stage rows than codes.
func (r *Repository) DealsMissingStages(ctx context.Context, limit int) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT d.id FROM deals d
LEFT JOIN logistics_stages ls ON ls.deal_id = d.id
GROUP BY d.id HAVING COUNT(ls.id) < $1
ORDER BY d.id LIMIT $2`, len(Codes), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (t *txRepo) LockDeal(ctx context.Context, dealID int64) (DealRef, error) {
	return getDeal(ctx, t.tx, dealID, " FOR UPDATE OF d")
}

func (t *txRepo) InsertMissingStages(ctx context.Context, dealID int64, codes []StageCode) (int, error) {
	tag, err := t.tx.Exec(ctx, `INSERT INTO logistics_stages (deal_id, stage_code, status)
SELECT $1, code, 'pending' FROM unnest($2::text[]) AS code
ON CONFLICT ON CONSTRAINT logistics_stages_deal_code_key DO NOTHING`, dealID, stageCodes(codes))
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (t *txRepo) LockStage(ctx context.Context, id int64) (Stage, error) {
	s, err := scanStage(t.tx.QueryRow(ctx, `SELECT `+stageColumns+` FROM logistics_stages WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, shared.ErrNotFound) {
		return Stage{}, shared.NotFound("logistics stage", id)
	}
	return s, err
}

// TransitionStage stamps started_at when entering in_progress and
// completed_at when entering completed. It only fires from the expected status.
func (t *txRepo) TransitionStage(ctx context.Context, id int64, from, to StageStatus, at time.Time) (bool, error) {
	tag, err := t.tx.Exec(ctx, `UPDATE logistics_stages SET status = $3,
started_at = CASE WHEN $3 = 'in_progress' THEN $4 ELSE started_at END,
completed_at = CASE WHEN $3 = 'completed' THEN $4 ELSE completed_at END
WHERE id = $1 AND status = $2`, id, from, to, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (t *txRepo) SetResponsible(ctx context.Context, id int64, userID *int64) error {
	_, err := t.tx.Exec(ctx, `UPDATE logistics_stages SET responsible_person = $2 WHERE id = $1`, id, userID)
	return err
}

func (t *txRepo) SetWarehouse(ctx context.Context, id int64, warehouseID *int64) error {
	_, err := t.tx.Exec(ctx, `UPDATE logistics_stages SET warehouse_id = $2 WHERE id = $1`, id, warehouseID)
	return err
}

func (t *txRepo) SetNotes(ctx context.Context, id int64, notes string) error {
	_, err := t.tx.Exec(ctx, `UPDATE logistics_stages SET notes = $2 WHERE id = $1`, id, notes)
	return err
}

func (t *txRepo) InsertExpense(ctx context.Context, e Expense) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO stage_expenses (stage_id, amount, currency, incurred_on, note, created_by)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`, e.StageID, e.Amount, e.Currency, e.IncurredOn, e.Note, e.CreatedBy).Scan(&id)
	return id, err
}
