package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "11:50,14:35", cfg.Schedule.WindowsET)
	assert.Equal(t, 30, cfg.Schedule.WindowToleranceMin)
	assert.Equal(t, 10, cfg.Trading.TargetPositions)
	assert.Equal(t, 0.20, cfg.Trading.MaxWeight)
	assert.Equal(t, 0.15, cfg.Trading.VolTarget)
	assert.Equal(t, "SPY", cfg.Trading.ReferenceSymbol)
	assert.Equal(t, "gpt-5", cfg.Model.Name)
	assert.Equal(t, "data/alphatrade.db", cfg.Store.Path)
}

func TestLoadFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
schedule:
  windows_et: "10:30,15:00"
  window_tolerance_min: 15
trading:
  target_positions: 5
  min_turnover: 0.05
  dry_run: true
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "10:30,15:00", cfg.Schedule.WindowsET)
	assert.Equal(t, 15, cfg.Schedule.WindowToleranceMin)
	assert.Equal(t, 5, cfg.Trading.TargetPositions)
	assert.Equal(t, 0.05, cfg.Trading.MinTurnover)
	assert.True(t, cfg.Trading.DryRun)
	// untouched keys keep defaults
	assert.Equal(t, 0.20, cfg.Trading.MaxWeight)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ALPHATRADE_TRADING_MIN_TURNOVER", "0.08")
	t.Setenv("APCA_API_KEY_ID", "key-from-env")
	t.Setenv("APCA_API_SECRET_KEY", "secret-from-env")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 0.08, cfg.Trading.MinTurnover)
	assert.Equal(t, "key-from-env", cfg.Broker.APIKey)
	assert.Equal(t, "secret-from-env", cfg.Broker.APISecret)
}

func TestLoadRejectsBadConfig(t *testing.T) {
	write := func(t *testing.T, body string) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		return path
	}

	t.Run("overlapping windows", func(t *testing.T) {
		_, err := Load(write(t, "schedule:\n  windows_et: \"11:00,11:30\"\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "overlap")
	})

	t.Run("bad macro date", func(t *testing.T) {
		_, err := Load(write(t, "schedule:\n  macro_dates: \"2026-13-99\"\n"))
		assert.Error(t, err)
	})

	t.Run("turnover minimum out of range", func(t *testing.T) {
		_, err := Load(write(t, "trading:\n  min_turnover: 1.5\n"))
		assert.Error(t, err)
	})

	t.Run("unknown reasoning effort", func(t *testing.T) {
		_, err := Load(write(t, "model:\n  reasoning_effort: extreme\n"))
		assert.Error(t, err)
	})
}

func TestSettingsApply(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	s := SettingsFromConfig(cfg)

	t.Run("typed overrides", func(t *testing.T) {
		s := s
		s.Apply(map[string]string{
			"enabled":       "false",
			"min_turnover":  "0.04",
			"vol_target":    "0.25",
			"macro_dates":   "2026-03-18,2026-04-29",
			"model_name":    "gpt-5-mini",
			"lookback_days": "120",
		})
		assert.False(t, s.Enabled)
		assert.Equal(t, 0.04, s.MinTurnover)
		assert.Equal(t, 0.25, s.VolTarget)
		assert.Equal(t, []string{"2026-03-18", "2026-04-29"}, s.MacroDates)
		assert.Equal(t, "gpt-5-mini", s.ModelName)
		assert.Equal(t, 120, s.LookbackDays)
	})

	t.Run("invalid values are skipped", func(t *testing.T) {
		s := s
		before := s.MinTurnover
		s.Apply(map[string]string{
			"min_turnover":     "not-a-number",
			"target_positions": "-3",
			"max_weight":       "2.5",
		})
		assert.Equal(t, before, s.MinTurnover)
		assert.Equal(t, 10, s.TargetPositions)
		assert.Equal(t, 0.20, s.MaxWeight)
	})

	t.Run("unknown keys are ignored", func(t *testing.T) {
		s := s
		s.Apply(map[string]string{"warp_speed": "9"})
		assert.True(t, s.Enabled)
	})
}

func TestMacroDateSet(t *testing.T) {
	s := Settings{MacroDates: []string{"2026-03-18", "2026-04-29"}}
	set := s.MacroDateSet()
	assert.True(t, set["2026-03-18"])
	assert.True(t, set["2026-04-29"])
	assert.False(t, set["2026-05-01"])
}
