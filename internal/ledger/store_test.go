package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newRun(window string) *RunModel {
	return &RunModel{
		ID:          uuid.NewString(),
		TriggerUnix: time.Now().Unix(),
		TriggerDay:  "2026-03-09",
		Window:      window,
	}
}

func TestRunLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run := newRun("11:50")
	require.NoError(t, store.CreateRun(ctx, run))
	assert.Equal(t, RunInProgress, run.Outcome)

	require.NoError(t, store.FinalizeRun(ctx, run.ID, RunExecuted, "", "2 orders", []byte(`{"breadth":0.6}`)))

	runs, err := store.RecentRuns(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, RunExecuted, runs[0].Outcome)
	assert.Equal(t, "2 orders", runs[0].Notes)
	assert.JSONEq(t, `{"breadth":0.6}`, string(runs[0].RegimeJSON))

	t.Run("second finalize refused", func(t *testing.T) {
		err := store.FinalizeRun(ctx, run.ID, RunFailed, "", "late", nil)
		assert.Error(t, err)
	})

	t.Run("missing run id refused", func(t *testing.T) {
		assert.Error(t, store.CreateRun(ctx, &RunModel{}))
	})
}

func TestHasRunForWindow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("empty ledger", func(t *testing.T) {
		ok, err := store.HasRunForWindow(ctx, "2026-03-09", "11:50")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("executed run blocks the window", func(t *testing.T) {
		run := newRun("11:50")
		require.NoError(t, store.CreateRun(ctx, run))
		require.NoError(t, store.FinalizeRun(ctx, run.ID, RunExecuted, "", "", nil))

		ok, err := store.HasRunForWindow(ctx, "2026-03-09", "11:50")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("other window and day unaffected", func(t *testing.T) {
		ok, err := store.HasRunForWindow(ctx, "2026-03-09", "14:35")
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = store.HasRunForWindow(ctx, "2026-03-10", "11:50")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("skipped runs do not block", func(t *testing.T) {
		run := newRun("14:35")
		require.NoError(t, store.CreateRun(ctx, run))
		require.NoError(t, store.FinalizeRun(ctx, run.ID, RunSkipped, SkipLowTurnover, "", nil))

		ok, err := store.HasRunForWindow(ctx, "2026-03-09", "14:35")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("fresh in-progress run blocks", func(t *testing.T) {
		require.NoError(t, store.CreateRun(ctx, newRun("15:00")))
		ok, err := store.HasRunForWindow(ctx, "2026-03-09", "15:00")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("stale in-progress run does not block", func(t *testing.T) {
		run := newRun("15:30")
		require.NoError(t, store.CreateRun(ctx, run))
		// age the row past the stale cutoff
		old := time.Now().Add(-staleRunCutoff - time.Hour).Unix()
		require.NoError(t, store.db.Model(&RunModel{}).Where("id = ?", run.ID).
			Update("updated_at", old).Error)

		ok, err := store.HasRunForWindow(ctx, "2026-03-09", "15:30")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("manual runs carry no window", func(t *testing.T) {
		ok, err := store.HasRunForWindow(ctx, "2026-03-09", "")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestOrders(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run := newRun("11:50")
	require.NoError(t, store.CreateRun(ctx, run))

	order := &OrderModel{RunID: run.ID, Symbol: "AAPL", Side: "buy", Notional: 1500, Status: OrderSubmitted}
	require.NoError(t, store.AppendOrder(ctx, order))
	require.NotZero(t, order.ID)

	require.NoError(t, store.UpdateOrderStatus(ctx, order.ID, OrderFilled, "bo-123", ""))

	orders, err := store.OrdersForRun(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, OrderFilled, orders[0].Status)
	assert.Equal(t, "bo-123", orders[0].BrokerOrderID)
	assert.Equal(t, 1500.0, orders[0].Notional)

	t.Run("order without run refused", func(t *testing.T) {
		assert.Error(t, store.AppendOrder(ctx, &OrderModel{Symbol: "MSFT"}))
	})

	t.Run("unknown order id refused", func(t *testing.T) {
		assert.Error(t, store.UpdateOrderStatus(ctx, 9999, OrderFilled, "", ""))
	})
}

func TestEpisodesOrdering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-3 * time.Hour)
	for i := 0; i < 3; i++ {
		require.NoError(t, store.AppendEpisode(ctx, &EpisodeModel{
			TsUnix: base.Add(time.Duration(i) * time.Hour).Unix(),
			Equity: 100000 + float64(i)*100,
		}))
	}

	eps, err := store.Episodes(ctx, 2)
	require.NoError(t, err)
	require.Len(t, eps, 2)
	// last two snapshots, oldest first
	assert.Equal(t, 100100.0, eps[0].Equity)
	assert.Equal(t, 100200.0, eps[1].Equity)
}

func TestSettingsUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetSetting(ctx, "Min_Turnover", "0.02"))
	require.NoError(t, store.SetSetting(ctx, "min_turnover", "0.03"))

	got, err := store.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"min_turnover": "0.03"}, got)

	assert.Error(t, store.SetSetting(ctx, "  ", "x"))
}

func TestMemoryContext(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("empty", func(t *testing.T) {
		got, err := store.MemoryContext(ctx, 5)
		require.NoError(t, err)
		assert.Equal(t, "No prior episodes.", got)
	})

	t.Run("recap includes orders and skip reasons", func(t *testing.T) {
		run := newRun("11:50")
		require.NoError(t, store.CreateRun(ctx, run))
		require.NoError(t, store.AppendOrder(ctx, &OrderModel{RunID: run.ID, Symbol: "AAPL", Side: "buy", Notional: 1000}))
		require.NoError(t, store.FinalizeRun(ctx, run.ID, RunExecuted, "", "", nil))

		skipped := newRun("14:35")
		skipped.TriggerUnix = run.TriggerUnix + 60
		require.NoError(t, store.CreateRun(ctx, skipped))
		require.NoError(t, store.FinalizeRun(ctx, skipped.ID, RunSkipped, SkipLowTurnover, "", nil))

		got, err := store.MemoryContext(ctx, 5)
		require.NoError(t, err)
		assert.Contains(t, got, "buy AAPL")
		assert.Contains(t, got, "skipped/"+SkipLowTurnover)
		assert.Contains(t, got, "Recent episodes ->")
	})
}
