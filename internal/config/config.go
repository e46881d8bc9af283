package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load reads configuration in layers: code defaults, then the optional yaml
// file at path, then ALPHATRADE_* environment variables. Persisted settings
// from the ledger are layered on top per run (see Settings).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v.SetDefault)
	v.SetEnvPrefix("ALPHATRADE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	applyEnvCredentials(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvCredentials honors the brokerage's conventional variable names so a
// deployment does not have to duplicate secrets under the ALPHATRADE prefix.
func applyEnvCredentials(cfg *Config) {
	if cfg.Broker.APIKey == "" {
		cfg.Broker.APIKey = firstEnv("APCA_API_KEY_ID", "ALPACA_API_KEY")
	}
	if cfg.Broker.APISecret == "" {
		cfg.Broker.APISecret = firstEnv("APCA_API_SECRET_KEY", "ALPACA_SECRET_KEY")
	}
	if cfg.Model.APIKey == "" {
		cfg.Model.APIKey = firstEnv("OPENAI_API_KEY")
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}
