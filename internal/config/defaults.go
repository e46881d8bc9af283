package config

const (
	defaultAppEnv          = "dev"
	defaultAppLogLevel     = "info"
	defaultAppLogPath      = ""
	defaultAppLLMLogPath   = ""
	defaultWindowsET       = "11:50,14:35"
	defaultWindowTolMin    = 30
	defaultNearOpenClose   = 15
	defaultPollSeconds     = 30
	defaultTargetPositions = 10
	defaultMaxWeight       = 0.20
	defaultMaxGross        = 1.0
	defaultVolTarget       = 0.15
	defaultAIWeight        = 0.5
	defaultMinNotional     = 25.0
	defaultMinTurnover     = 0.01
	defaultCashBuffer      = 0.05
	defaultRiskOffScalar   = 0.5
	defaultReferenceSymbol = "SPY"
	defaultLookbackDays    = 250
	defaultModelAPIURL     = "https://api.openai.com/v1"
	defaultModelName       = "gpt-5"
	defaultReasoningEffort = "medium"
	defaultModelTimeoutSec = 120
	defaultModelRetries    = 2
	defaultBrokerAPIURL    = "https://paper-api.alpaca.markets"
	defaultBrokerDataURL   = "https://data.alpaca.markets"
	defaultBrokerFeed      = "iex"
	defaultBrokerTimeout   = 15
	defaultStorePath       = "data/alphatrade.db"
	defaultUniversePath    = "configs/universe.yaml"
	defaultUniverseMode    = "sp500_etfs"
)

// setDefaults registers every known key so env overrides are honored on
// Unmarshal even without a config file.
func setDefaults(set func(key string, value any)) {
	set("app.env", defaultAppEnv)
	set("app.log_level", defaultAppLogLevel)
	set("app.log_path", defaultAppLogPath)
	set("app.llm_log_path", defaultAppLLMLogPath)
	set("app.llm_dump_payload", false)

	set("schedule.enabled", true)
	set("schedule.windows_et", defaultWindowsET)
	set("schedule.window_tolerance_min", defaultWindowTolMin)
	set("schedule.macro_dates", "")
	set("schedule.avoid_near_open_close_min", defaultNearOpenClose)
	set("schedule.poll_seconds", defaultPollSeconds)

	set("trading.target_positions", defaultTargetPositions)
	set("trading.max_weight", defaultMaxWeight)
	set("trading.max_gross_exposure", defaultMaxGross)
	set("trading.vol_target", defaultVolTarget)
	set("trading.ai_weight", defaultAIWeight)
	set("trading.min_order_notional", defaultMinNotional)
	set("trading.min_turnover", defaultMinTurnover)
	set("trading.cash_buffer", defaultCashBuffer)
	set("trading.regime_filter", true)
	set("trading.risk_off_scalar", defaultRiskOffScalar)
	set("trading.reference_symbol", defaultReferenceSymbol)
	set("trading.lookback_days", defaultLookbackDays)
	set("trading.dry_run", false)

	set("model.api_url", defaultModelAPIURL)
	set("model.api_key", "")
	set("model.name", defaultModelName)
	set("model.reasoning_effort", defaultReasoningEffort)
	set("model.timeout_seconds", defaultModelTimeoutSec)
	set("model.max_retries", defaultModelRetries)

	set("broker.api_url", defaultBrokerAPIURL)
	set("broker.data_url", defaultBrokerDataURL)
	set("broker.api_key", "")
	set("broker.api_secret", "")
	set("broker.data_feed", defaultBrokerFeed)
	set("broker.timeout_seconds", defaultBrokerTimeout)

	set("store.path", defaultStorePath)

	set("universe.path", defaultUniversePath)
	set("universe.mode", defaultUniverseMode)

	set("notify.telegram.enabled", false)
	set("notify.telegram.bot_token", "")
	set("notify.telegram.chat_id", "")
}
