// Package ledger is the append-only audit store: runs, orders, equity
// episodes, and persisted settings, backed by Gorm + SQLite.
package ledger

import (
	"gorm.io/datatypes"
)

// Run outcomes. A run row is created as RunInProgress and finalized exactly
// once into one of the terminal outcomes.
const (
	RunInProgress = "in-progress"
	RunExecuted   = "executed"
	RunSkipped    = "skipped"
	RunFailed     = "failed"
)

// Skip reasons recorded on a Run.
const (
	SkipDisabled       = "disabled"
	SkipMarketClosed   = "market-closed"
	SkipMacroDay       = "macro-day"
	SkipOutsideWindow  = "outside-window"
	SkipAlreadyRun     = "already-run-this-window"
	SkipLowTurnover    = "low-turnover"
	SkipEarningsWindow = "earnings-window"
)

// Order statuses. Rows are written on submission attempt, before the broker
// confirms, so a crash mid-batch leaves a recoverable partial record.
const (
	OrderSubmitted = "submitted"
	OrderAccepted  = "accepted"
	OrderFilled    = "filled"
	OrderRejected  = "rejected"
	OrderError     = "error"
)

type RunModel struct {
	ID            string         `gorm:"column:id;primaryKey"`
	TriggerUnix   int64          `gorm:"column:trigger_time;index"`
	TriggerDay    string         `gorm:"column:trigger_day;index"` // exchange-local YYYY-MM-DD
	Window        string         `gorm:"column:window"`            // empty for manual triggers
	Manual        bool           `gorm:"column:manual"`
	Outcome       string         `gorm:"column:outcome;index"`
	SkipReason    string         `gorm:"column:skip_reason"`
	RegimeJSON    datatypes.JSON `gorm:"column:regime_json;type:TEXT"`
	SettingsJSON  datatypes.JSON `gorm:"column:settings_json;type:TEXT"`
	Notes         string         `gorm:"column:notes"`
	CreatedAtUnix int64          `gorm:"column:created_at"`
	UpdatedAtUnix int64          `gorm:"column:updated_at"`
}

func (RunModel) TableName() string { return "runs" }

type OrderModel struct {
	ID            int64   `gorm:"column:id;primaryKey;autoIncrement"`
	RunID         string  `gorm:"column:run_id;index"`
	Symbol        string  `gorm:"column:instrument"`
	Side          string  `gorm:"column:side"`
	Qty           float64 `gorm:"column:qty"`
	Notional      float64 `gorm:"column:notional"`
	Status        string  `gorm:"column:status"`
	BrokerOrderID string  `gorm:"column:broker_order_id"`
	Reason        string  `gorm:"column:reason"` // broker rejection/error detail
	SubmittedUnix int64   `gorm:"column:submitted_at"`
	UpdatedUnix   int64   `gorm:"column:updated_at"`
}

func (OrderModel) TableName() string { return "orders" }

type EpisodeModel struct {
	ID              int64   `gorm:"column:id;primaryKey;autoIncrement"`
	TsUnix          int64   `gorm:"column:ts;index"`
	WindowTag       string  `gorm:"column:window_tag"` // am/pm half-day
	Equity          float64 `gorm:"column:equity"`
	Cash            float64 `gorm:"column:cash"`
	BenchmarkEquity float64 `gorm:"column:benchmark_equity"`
	Notes           string  `gorm:"column:notes"`
}

func (EpisodeModel) TableName() string { return "episodes" }

type SettingModel struct {
	Key         string `gorm:"column:key;primaryKey"`
	Value       string `gorm:"column:value"`
	UpdatedUnix int64  `gorm:"column:updated_at"`
}

func (SettingModel) TableName() string { return "settings" }
