// Package universe loads the tradable symbol list.
package universe

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"alphatrade/internal/logger"
)

const (
	ModeSP500ETFs = "sp500_etfs"
	ModeETFsOnly  = "etfs_only"
)

// defaultETFs is the fallback basket when no universe file is configured.
// Broad sector and asset-class ETFs, all fractionable at the broker.
var defaultETFs = []string{
	"SPY", "QQQ", "IWM", "DIA",
	"XLK", "XLF", "XLV", "XLE", "XLI", "XLY", "XLP", "XLU", "XLB",
	"GLD", "TLT", "IEF", "HYG", "LQD",
	"EFA", "EEM",
}

type fileFormat struct {
	Stocks []string `yaml:"stocks"`
	ETFs   []string `yaml:"etfs"`
}

// Load returns the symbol universe for the given mode. When path is empty
// the built-in ETF basket is used. The result is uppercased, deduplicated
// and sorted.
func Load(path, mode string) ([]string, error) {
	var f fileFormat
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read universe file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("parse universe file: %w", err)
		}
	}
	if len(f.ETFs) == 0 {
		f.ETFs = defaultETFs
	}

	var symbols []string
	switch mode {
	case ModeETFsOnly:
		symbols = f.ETFs
	case ModeSP500ETFs, "":
		symbols = append(append([]string{}, f.Stocks...), f.ETFs...)
	default:
		return nil, fmt.Errorf("unknown universe mode %q", mode)
	}

	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("universe is empty")
	}
	sort.Strings(out)
	logger.Infof("universe loaded: %d symbols (mode=%s)", len(out), modeOrDefault(mode))
	return out, nil
}

func modeOrDefault(mode string) string {
	if mode == "" {
		return ModeSP500ETFs
	}
	return mode
}

// Contains reports whether symbol is part of the universe. Symbols outside
// the universe are never traded, whatever the model suggests.
func Contains(universe []string, symbol string) bool {
	i := sort.SearchStrings(universe, symbol)
	return i < len(universe) && universe[i] == symbol
}
