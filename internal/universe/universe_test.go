package universe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadBuiltinBasket(t *testing.T) {
	syms, err := Load("", ModeETFsOnly)
	require.NoError(t, err)
	assert.Contains(t, syms, "SPY")
	assert.Contains(t, syms, "QQQ")
	assert.True(t, len(syms) >= 10)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "universe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
stocks:
  - aapl
  - MSFT
  - aapl
etfs:
  - spy
`), 0o644))

	t.Run("stocks and etfs", func(t *testing.T) {
		syms, err := Load(path, ModeSP500ETFs)
		require.NoError(t, err)
		assert.Equal(t, []string{"AAPL", "MSFT", "SPY"}, syms, "uppercased, deduplicated, sorted")
	})

	t.Run("etfs only", func(t *testing.T) {
		syms, err := Load(path, ModeETFsOnly)
		require.NoError(t, err)
		assert.Equal(t, []string{"SPY"}, syms)
	})

	t.Run("unknown mode", func(t *testing.T) {
		_, err := Load(path, "everything")
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), ModeSP500ETFs)
		assert.Error(t, err)
	})
}

func TestContains(t *testing.T) {
	syms, err := Load("", ModeETFsOnly)
	require.NoError(t, err)
	assert.True(t, Contains(syms, "SPY"))
	assert.False(t, Contains(syms, "DOGE"))
}
