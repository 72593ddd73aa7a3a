// Package logistics tracks the fixed chain of shipping stages of a deal.
package logistics

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/dealdesk/internal/platform/db"
)

// ============================================================================
// STAGE CODES
// ============================================================================

// StageCode names one leg of the shipment.
type StageCode string

const (
	StageFirstMile   StageCode = "first_mile"
	StageHub         StageCode = "hub"
	StageHubHub      StageCode = "hub_hub"
	StageTransit     StageCode = "transit"
	StagePostTransit StageCode = "post_transit"
	StageGTDUpload   StageCode = "gtd_upload"
	StageLastMile    StageCode = "last_mile"
)

// Codes is the fixed stage order of every deal.
var Codes = []StageCode{
	StageFirstMile, StageHub, StageHubHub, StageTransit, StagePostTransit, StageGTDUpload, StageLastMile,
}

// Order returns the position of c in Codes, or -1.
func (c StageCode) Order() int {
	for i, code := range Codes {
		if code == c {
			return i
		}
	}
	return -1
}

// AcceptsWarehouse reports whether a warehouse may be attached to the stage.
func (c StageCode) AcceptsWarehouse() bool {
	return c == StageHub || c == StageHubHub
}

// ============================================================================
// STAGE STATUS
// ============================================================================

// StageStatus is the lifecycle of one stage.
type StageStatus string

const (
	StageStatusPending    StageStatus = "pending"
	StageStatusInProgress StageStatus = "in_progress"
	StageStatusCompleted  StageStatus = "completed"
)

// CanStart checks if the stage can be started.
func (s StageStatus) CanStart() bool {
	return s == StageStatusPending
}

// CanComplete checks if the stage can be completed.
func (s StageStatus) CanComplete() bool {
	return s == StageStatusInProgress
}

// ============================================================================
// ENTITIES
// ============================================================================

// Stage is one leg of a deal's shipment.
type Stage struct {
	ID                int64       `json:"id"`
	DealID            int64       `json:"deal_id"`
	Code              StageCode   `json:"stage_code"`
	Status            StageStatus `json:"status"`
	StartedAt         *time.Time  `json:"started_at,omitempty"`
	CompletedAt       *time.Time  `json:"completed_at,omitempty"`
	ResponsiblePerson *int64      `json:"responsible_person,omitempty"`
	WarehouseID       *int64      `json:"warehouse_id,omitempty"`
	Notes             string      `json:"notes"`
}

// Expense is a cost incurred on a stage.
type Expense struct {
	ID         int64           `json:"id"`
	StageID    int64           `json:"stage_id"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	IncurredOn time.Time       `json:"incurred_on"`
	Note       string          `json:"note"`
	CreatedBy  int64           `json:"created_by"`
}

// DealRef is the slice of a deal the tracker needs for tenancy.
type DealRef struct {
	ID    int64
	OrgID int64
}

// BackfillResult summarizes a backfill run.
type BackfillResult struct {
	Deals  int `json:"deals"`
	Stages int `json:"stages"`
}

// Tables lists the columns the logistics repository reads and writes.
var Tables = []db.TableSpec{
	{Table: "logistics_stages", Columns: []string{"id", "deal_id", "stage_code", "status", "started_at", "completed_at",
		"responsible_person", "warehouse_id", "notes"}},
	{Table: "stage_expenses", Columns: []string{"id", "stage_id", "amount", "currency", "incurred_on", "note", "created_by"}},
}
