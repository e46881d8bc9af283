package config

import (
	"fmt"
	"strings"
	"time"

	"alphatrade/internal/window"
)

// validate runs the startup configuration checks. Anything rejected here is a
// configuration error surfaced before a Run exists, never a Run outcome.
func validate(c *Config) error {
	if err := c.Schedule.validate(); err != nil {
		return err
	}
	if err := c.Trading.validate(); err != nil {
		return err
	}
	if err := c.Model.validate(); err != nil {
		return err
	}
	if err := c.Store.validate(); err != nil {
		return err
	}
	return nil
}

func (s *ScheduleConfig) validate() error {
	if s.WindowToleranceMin < 0 {
		return fmt.Errorf("schedule.window_tolerance_min must be >= 0")
	}
	ws, err := window.Parse(s.WindowsET)
	if err != nil {
		return fmt.Errorf("schedule.windows_et: %w", err)
	}
	tol := time.Duration(s.WindowToleranceMin) * time.Minute
	if err := window.ValidateNoOverlap(ws, tol); err != nil {
		return fmt.Errorf("schedule.windows_et: %w", err)
	}
	for _, d := range strings.Split(s.MacroDates, ",") {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return fmt.Errorf("schedule.macro_dates contains invalid date %q", d)
		}
	}
	if s.AvoidNearOpenCloseMin < 0 {
		return fmt.Errorf("schedule.avoid_near_open_close_min must be >= 0")
	}
	if s.PollSeconds <= 0 {
		return fmt.Errorf("schedule.poll_seconds must be > 0")
	}
	return nil
}

func (t *TradingConfig) validate() error {
	if t.TargetPositions <= 0 {
		return fmt.Errorf("trading.target_positions must be > 0")
	}
	if t.MaxWeight <= 0 || t.MaxWeight > 1 {
		return fmt.Errorf("trading.max_weight must be in (0,1]")
	}
	if t.MaxGrossExposure <= 0 || t.MaxGrossExposure > 1 {
		return fmt.Errorf("trading.max_gross_exposure must be in (0,1]")
	}
	if t.VolTarget <= 0 {
		return fmt.Errorf("trading.vol_target must be > 0")
	}
	if t.AIWeight < 0 || t.AIWeight > 1 {
		return fmt.Errorf("trading.ai_weight must be in [0,1]")
	}
	if t.MinOrderNotional < 0 {
		return fmt.Errorf("trading.min_order_notional must be >= 0")
	}
	if t.MinTurnover < 0 || t.MinTurnover >= 1 {
		return fmt.Errorf("trading.min_turnover must be in [0,1)")
	}
	if t.CashBuffer < 0 || t.CashBuffer >= 1 {
		return fmt.Errorf("trading.cash_buffer must be in [0,1)")
	}
	if t.RiskOffScalar <= 0 || t.RiskOffScalar > 1 {
		return fmt.Errorf("trading.risk_off_scalar must be in (0,1]")
	}
	if strings.TrimSpace(t.ReferenceSymbol) == "" {
		return fmt.Errorf("trading.reference_symbol cannot be empty")
	}
	if t.LookbackDays < 70 {
		return fmt.Errorf("trading.lookback_days must be >= 70 for the feature windows")
	}
	return nil
}

func (m *ModelConfig) validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("model.name cannot be empty")
	}
	if strings.TrimSpace(m.APIURL) == "" {
		return fmt.Errorf("model.api_url cannot be empty")
	}
	if m.TimeoutSeconds <= 0 {
		return fmt.Errorf("model.timeout_seconds must be > 0")
	}
	if m.MaxRetries < 0 {
		return fmt.Errorf("model.max_retries must be >= 0")
	}
	switch strings.ToLower(strings.TrimSpace(m.ReasoningEffort)) {
	case "", "minimal", "low", "medium", "high":
	default:
		return fmt.Errorf("model.reasoning_effort must be one of minimal/low/medium/high")
	}
	return nil
}

func (s *StoreConfig) validate() error {
	if strings.TrimSpace(s.Path) == "" {
		return fmt.Errorf("store.path cannot be empty")
	}
	return nil
}
