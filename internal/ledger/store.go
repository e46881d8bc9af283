package ledger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// staleRunCutoff bounds how long an unfinalized run can block its window.
// Anything older is treated as a crashed invocation, not an active one.
const staleRunCutoff = 6 * time.Hour

type Store struct {
	db *gorm.DB
}

// NewStore opens (and migrates) the ledger database at path.
func NewStore(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("ledger: store path cannot be empty")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&RunModel{}, &OrderModel{}, &EpisodeModel{}, &SettingModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: keep contention low, the pipeline is single-writer.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db}, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// --------------------- Runs -------------------------

// CreateRun appends a new run row in the in-progress state.
func (s *Store) CreateRun(ctx context.Context, run *RunModel) error {
	if run.ID == "" {
		return fmt.Errorf("ledger: run id required")
	}
	now := time.Now().Unix()
	run.Outcome = RunInProgress
	run.CreatedAtUnix = now
	run.UpdatedAtUnix = now
	return s.db.WithContext(ctx).Create(run).Error
}

// FinalizeRun records the terminal outcome. Runs are append-only from the
// caller's perspective: the only mutation ever applied is this one
// finalization, and it refuses to touch an already-finalized row.
func (s *Store) FinalizeRun(ctx context.Context, id, outcome, skipReason, notes string, regimeJSON []byte) error {
	updates := map[string]any{
		"outcome":     outcome,
		"skip_reason": skipReason,
		"notes":       notes,
		"updated_at":  time.Now().Unix(),
	}
	if len(regimeJSON) > 0 {
		updates["regime_json"] = regimeJSON
	}
	res := s.db.WithContext(ctx).Model(&RunModel{}).
		Where("id = ? AND outcome = ?", id, RunInProgress).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("ledger: run %s already finalized", id)
	}
	return nil
}

// HasRunForWindow reports whether the window already has an executed or
// still-active run on the given exchange day. This is the restart-safe
// dedup query behind the already-run-this-window gate.
func (s *Store) HasRunForWindow(ctx context.Context, day, windowName string) (bool, error) {
	if windowName == "" {
		return false, nil
	}
	cutoff := time.Now().Add(-staleRunCutoff).Unix()
	var count int64
	err := s.db.WithContext(ctx).Model(&RunModel{}).
		Where("trigger_day = ? AND window = ?", day, windowName).
		Where("outcome = ? OR (outcome = ? AND updated_at >= ?)", RunExecuted, RunInProgress, cutoff).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// RecentRuns returns the latest n runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, n int) ([]RunModel, error) {
	if n <= 0 {
		n = 5
	}
	var runs []RunModel
	err := s.db.WithContext(ctx).
		Order("trigger_time DESC").
		Limit(n).
		Find(&runs).Error
	return runs, err
}

// --------------------- Orders -------------------------

// AppendOrder writes the submission-attempt row and fills in the generated id.
func (s *Store) AppendOrder(ctx context.Context, order *OrderModel) error {
	if order.RunID == "" {
		return fmt.Errorf("ledger: order requires run_id")
	}
	now := time.Now().Unix()
	if order.SubmittedUnix == 0 {
		order.SubmittedUnix = now
	}
	order.UpdatedUnix = now
	return s.db.WithContext(ctx).Create(order).Error
}

// UpdateOrderStatus records a status transition without touching the rest of
// the row, so the decision that produced the order stays traceable.
func (s *Store) UpdateOrderStatus(ctx context.Context, id int64, status, brokerOrderID, reason string) error {
	updates := map[string]any{
		"status":     status,
		"updated_at": time.Now().Unix(),
	}
	if brokerOrderID != "" {
		updates["broker_order_id"] = brokerOrderID
	}
	if reason != "" {
		updates["reason"] = reason
	}
	res := s.db.WithContext(ctx).Model(&OrderModel{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("ledger: order %d not found", id)
	}
	return nil
}

// OrdersForRun lists the orders attached to one run.
func (s *Store) OrdersForRun(ctx context.Context, runID string) ([]OrderModel, error) {
	var orders []OrderModel
	err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("id ASC").Find(&orders).Error
	return orders, err
}

// --------------------- Episodes -------------------------

func (s *Store) AppendEpisode(ctx context.Context, ep *EpisodeModel) error {
	if ep.TsUnix == 0 {
		ep.TsUnix = time.Now().Unix()
	}
	return s.db.WithContext(ctx).Create(ep).Error
}

// Episodes returns the last n equity snapshots, oldest first.
func (s *Store) Episodes(ctx context.Context, n int) ([]EpisodeModel, error) {
	if n <= 0 {
		n = 300
	}
	var eps []EpisodeModel
	err := s.db.WithContext(ctx).Order("ts DESC").Limit(n).Find(&eps).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(eps)-1; i < j; i, j = i+1, j-1 {
		eps[i], eps[j] = eps[j], eps[i]
	}
	return eps, nil
}

// --------------------- Settings -------------------------

// Settings reads all persisted overrides.
func (s *Store) Settings(ctx context.Context) (map[string]string, error) {
	var rows []SettingModel
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.Key] = r.Value
	}
	return out, nil
}

// SetSetting upserts one override row.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return fmt.Errorf("ledger: setting key required")
	}
	row := SettingModel{Key: key, Value: value, UpdatedUnix: time.Now().Unix()}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&row).Error
}

// --------------------- Memory context -------------------------

// MemoryContext renders a compact recap of recent runs for the reasoning
// prompt, oldest first.
func (s *Store) MemoryContext(ctx context.Context, n int) (string, error) {
	runs, err := s.RecentRuns(ctx, n)
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "No prior episodes.", nil
	}
	var lines []string
	for i := len(runs) - 1; i >= 0; i-- {
		run := runs[i]
		when := time.Unix(run.TriggerUnix, 0).UTC().Format("2006-01-02 15:04")
		windowName := run.Window
		if windowName == "" {
			windowName = "manual"
		}
		desc := run.Outcome
		if run.SkipReason != "" {
			desc += "/" + run.SkipReason
		}
		orders, oerr := s.OrdersForRun(ctx, run.ID)
		if oerr == nil && len(orders) > 0 {
			var parts []string
			for _, o := range orders {
				parts = append(parts, fmt.Sprintf("%s %s", o.Side, o.Symbol))
			}
			desc += ": " + strings.Join(parts, ", ")
		}
		lines = append(lines, fmt.Sprintf("%s (%s): %s", when, windowName, desc))
	}
	return "Recent episodes -> " + strings.Join(lines, " | "), nil
}
