package config

// Config is the main configuration carrier for AlphaTrade.
type Config struct {
	App      AppConfig      `toml:"app"`
	Schedule ScheduleConfig `toml:"schedule"`
	Trading  TradingConfig  `toml:"trading"`
	Model    ModelConfig    `toml:"model"`
	Broker   BrokerConfig   `toml:"broker"`
	Store    StoreConfig    `toml:"store"`
	Universe UniverseConfig `toml:"universe"`
	Notify   NotifyConfig   `toml:"notify"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	LogPath  string `toml:"log_path"`
	LLMLog   string `toml:"llm_log_path"`
	LLMDump  bool   `toml:"llm_dump_payload"`
}

// ScheduleConfig controls when the decision cycle is allowed to run.
// Times are wall-clock in the exchange time zone (America/New_York).
type ScheduleConfig struct {
	Enabled               bool   `toml:"enabled"`
	WindowsET             string `toml:"windows_et"`               // "11:50,14:35"
	WindowToleranceMin    int    `toml:"window_tolerance_min"`     // tolerance band around each window center
	MacroDates            string `toml:"macro_dates"`              // csv of YYYY-MM-DD to stand aside
	AvoidNearOpenCloseMin int    `toml:"avoid_near_open_close_min"`
	PollSeconds           int    `toml:"poll_seconds"` // schedule-mode loop cadence
}

// TradingConfig holds the sizing and turnover knobs.
type TradingConfig struct {
	TargetPositions  int     `toml:"target_positions"`
	MaxWeight        float64 `toml:"max_weight"`         // per-name cap 0~1
	MaxGrossExposure float64 `toml:"max_gross_exposure"` // whole-book cap, 1.0 = fully invested
	VolTarget        float64 `toml:"vol_target"`         // annualized target volatility
	AIWeight         float64 `toml:"ai_weight"`          // blend between model weights and risk weights
	MinOrderNotional float64 `toml:"min_order_notional"` // no-trade band per order, USD
	MinTurnover      float64 `toml:"min_turnover"`       // whole-portfolio minimum turnover fraction
	CashBuffer       float64 `toml:"cash_buffer"`
	RegimeFilter     bool    `toml:"regime_filter"`
	RiskOffScalar    float64 `toml:"risk_off_scalar"`
	ReferenceSymbol  string  `toml:"reference_symbol"`
	LookbackDays     int     `toml:"lookback_days"`
	DryRun           bool    `toml:"dry_run"`
}

// ModelConfig describes the reasoning source.
type ModelConfig struct {
	APIURL          string `toml:"api_url"`
	APIKey          string `toml:"api_key"`
	Name            string `toml:"name"`
	ReasoningEffort string `toml:"reasoning_effort"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
	MaxRetries      int    `toml:"max_retries"`
}

// BrokerConfig describes the brokerage API access.
type BrokerConfig struct {
	APIURL         string `toml:"api_url"`
	DataURL        string `toml:"data_url"`
	APIKey         string `toml:"api_key"`
	APISecret      string `toml:"api_secret"`
	DataFeed       string `toml:"data_feed"` // "iex" | "sip"
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type StoreConfig struct {
	Path string `toml:"path"`
}

type UniverseConfig struct {
	Path string `toml:"path"`
	Mode string `toml:"mode"` // "sp500_etfs" | "etfs_only"
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}
