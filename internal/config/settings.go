package config

import (
	"encoding/json"
	"strconv"
	"strings"

	"alphatrade/internal/logger"
)

// Settings is the per-run effective configuration: code defaults, overridden
// by environment/file (already folded into Config), overridden by persisted
// settings rows. The resolved snapshot is attached to every Run record.
type Settings struct {
	Enabled               bool     `json:"enabled"`
	WindowsET             string   `json:"windows_et"`
	WindowToleranceMin    int      `json:"window_tolerance_min"`
	MacroDates            []string `json:"macro_dates,omitempty"`
	AvoidNearOpenCloseMin int      `json:"avoid_near_open_close_min"`

	TargetPositions  int     `json:"target_positions"`
	MaxWeight        float64 `json:"max_weight"`
	MaxGrossExposure float64 `json:"max_gross_exposure"`
	VolTarget        float64 `json:"vol_target"`
	AIWeight         float64 `json:"ai_weight"`
	MinOrderNotional float64 `json:"min_order_notional"`
	MinTurnover      float64 `json:"min_turnover"`
	CashBuffer       float64 `json:"cash_buffer"`
	RegimeFilter     bool    `json:"regime_filter"`
	RiskOffScalar    float64 `json:"risk_off_scalar"`
	ReferenceSymbol  string  `json:"reference_symbol"`
	LookbackDays     int     `json:"lookback_days"`

	ModelName       string `json:"model_name"`
	ReasoningEffort string `json:"reasoning_effort"`
	DryRun          bool   `json:"dry_run"`
}

// SettingsFromConfig seeds the snapshot from the loaded configuration.
func SettingsFromConfig(c *Config) Settings {
	return Settings{
		Enabled:               c.Schedule.Enabled,
		WindowsET:             c.Schedule.WindowsET,
		WindowToleranceMin:    c.Schedule.WindowToleranceMin,
		MacroDates:            splitCSV(c.Schedule.MacroDates),
		AvoidNearOpenCloseMin: c.Schedule.AvoidNearOpenCloseMin,
		TargetPositions:       c.Trading.TargetPositions,
		MaxWeight:             c.Trading.MaxWeight,
		MaxGrossExposure:      c.Trading.MaxGrossExposure,
		VolTarget:             c.Trading.VolTarget,
		AIWeight:              c.Trading.AIWeight,
		MinOrderNotional:      c.Trading.MinOrderNotional,
		MinTurnover:           c.Trading.MinTurnover,
		CashBuffer:            c.Trading.CashBuffer,
		RegimeFilter:          c.Trading.RegimeFilter,
		RiskOffScalar:         c.Trading.RiskOffScalar,
		ReferenceSymbol:       c.Trading.ReferenceSymbol,
		LookbackDays:          c.Trading.LookbackDays,
		ModelName:             c.Model.Name,
		ReasoningEffort:       c.Model.ReasoningEffort,
		DryRun:                c.Trading.DryRun,
	}
}

// Apply layers persisted key/value overrides on top. Values are weakly typed
// (settings rows are stored as strings); invalid values are skipped with a
// warning rather than failing the run.
func (s *Settings) Apply(overrides map[string]string) {
	for key, raw := range overrides {
		key = strings.ToLower(strings.TrimSpace(key))
		raw = strings.TrimSpace(raw)
		if key == "" || raw == "" {
			continue
		}
		if !s.applyOne(key, raw) {
			logger.Warnf("settings: ignoring override %s=%q", key, raw)
		}
	}
}

func (s *Settings) applyOne(key, raw string) bool {
	switch key {
	case "enabled":
		return parseBool(raw, &s.Enabled)
	case "windows_et":
		s.WindowsET = raw
		return true
	case "window_tolerance_min":
		return parseNonNegInt(raw, &s.WindowToleranceMin)
	case "macro_dates":
		s.MacroDates = splitCSV(raw)
		return true
	case "avoid_near_open_close_min":
		return parseNonNegInt(raw, &s.AvoidNearOpenCloseMin)
	case "target_positions":
		return parsePosInt(raw, &s.TargetPositions)
	case "max_weight":
		return parseUnitFloat(raw, &s.MaxWeight)
	case "max_gross_exposure":
		return parseUnitFloat(raw, &s.MaxGrossExposure)
	case "vol_target":
		return parsePosFloat(raw, &s.VolTarget)
	case "ai_weight":
		return parseFracFloat(raw, &s.AIWeight)
	case "min_order_notional":
		return parseNonNegFloat(raw, &s.MinOrderNotional)
	case "min_turnover":
		return parseFracFloat(raw, &s.MinTurnover)
	case "cash_buffer":
		return parseFracFloat(raw, &s.CashBuffer)
	case "regime_filter":
		return parseBool(raw, &s.RegimeFilter)
	case "risk_off_scalar":
		return parseUnitFloat(raw, &s.RiskOffScalar)
	case "reference_symbol":
		s.ReferenceSymbol = strings.ToUpper(raw)
		return true
	case "lookback_days":
		return parsePosInt(raw, &s.LookbackDays)
	case "model_name":
		s.ModelName = raw
		return true
	case "reasoning_effort":
		s.ReasoningEffort = raw
		return true
	case "dry_run":
		return parseBool(raw, &s.DryRun)
	default:
		return false
	}
}

// JSON renders the snapshot for the Run record.
func (s Settings) JSON() []byte {
	b, err := json.Marshal(s)
	if err != nil {
		return []byte("{}")
	}
	return b
}

// MacroDateSet returns the flagged dates keyed by YYYY-MM-DD.
func (s Settings) MacroDateSet() map[string]bool {
	out := make(map[string]bool, len(s.MacroDates))
	for _, d := range s.MacroDates {
		out[d] = true
	}
	return out
}

func splitCSV(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseBool(raw string, dst *bool) bool {
	v, err := strconv.ParseBool(strings.ToLower(raw))
	if err != nil {
		return false
	}
	*dst = v
	return true
}

func parsePosInt(raw string, dst *int) bool {
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return false
	}
	*dst = v
	return true
}

func parseNonNegInt(raw string, dst *int) bool {
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return false
	}
	*dst = v
	return true
}

func parsePosFloat(raw string, dst *float64) bool {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		return false
	}
	*dst = v
	return true
}

func parseNonNegFloat(raw string, dst *float64) bool {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		return false
	}
	*dst = v
	return true
}

// parseUnitFloat accepts (0,1].
func parseUnitFloat(raw string, dst *float64) bool {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 || v > 1 {
		return false
	}
	*dst = v
	return true
}

// parseFracFloat accepts [0,1).
func parseFracFloat(raw string, dst *float64) bool {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 || v >= 1 {
		return false
	}
	*dst = v
	return true
}
