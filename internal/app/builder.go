package app

import (
	"fmt"
	"time"

	"alphatrade/internal/config"
	"alphatrade/internal/engine"
	"alphatrade/internal/gate"
	"alphatrade/internal/gateway/alpaca"
	"alphatrade/internal/gateway/broker"
	"alphatrade/internal/ledger"
	"alphatrade/internal/notify"
	"alphatrade/internal/pkg/circuit"
	"alphatrade/internal/policy"
	"alphatrade/internal/universe"
)

// Builder assembles the application. Every collaborator is constructed
// through a hook so tests can swap in paper brokers and stub chat clients.
type Builder struct {
	cfg *config.Config

	storeFn    func(path string) (*ledger.Store, error)
	brokerFn   func(cfg config.BrokerConfig) (broker.Broker, error)
	chatFn     func(cfg config.ModelConfig) policy.ChatClient
	universeFn func(cfg config.UniverseConfig) ([]string, error)
	notifierFn func(cfg config.NotifyConfig) notify.TextNotifier
	filterFn   func() gate.PickFilter
}

type BuilderOption func(*Builder)

// WithBroker overrides the brokerage gateway.
func WithBroker(b broker.Broker) BuilderOption {
	return func(bd *Builder) {
		bd.brokerFn = func(config.BrokerConfig) (broker.Broker, error) { return b, nil }
	}
}

// WithChatClient overrides the reasoning source transport.
func WithChatClient(c policy.ChatClient) BuilderOption {
	return func(bd *Builder) {
		bd.chatFn = func(config.ModelConfig) policy.ChatClient { return c }
	}
}

// WithStore overrides the ledger store.
func WithStore(s *ledger.Store) BuilderOption {
	return func(bd *Builder) {
		bd.storeFn = func(string) (*ledger.Store, error) { return s, nil }
	}
}

func NewBuilder(cfg *config.Config, opts ...BuilderOption) *Builder {
	b := &Builder{
		cfg:        cfg,
		storeFn:    ledger.NewStore,
		brokerFn:   buildAlpacaBroker,
		chatFn:     buildChatClient,
		universeFn: buildUniverse,
		notifierFn: buildNotifier,
		filterFn:   func() gate.PickFilter { return gate.EarningsFilter{} },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *Builder) Build() (*App, error) {
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	store, err := b.storeFn(b.cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	brk, err := b.brokerFn(b.cfg.Broker)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("init broker: %w", err)
	}
	syms, err := b.universeFn(b.cfg.Universe)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("load universe: %w", err)
	}

	acquirer := &policy.Acquirer{
		Client:   b.chatFn(b.cfg.Model),
		Breaker:  circuit.NewBreaker("model", 3, 2*time.Minute),
		Timeout:  time.Duration(b.cfg.Model.TimeoutSeconds) * time.Second,
		MaxPicks: b.cfg.Trading.TargetPositions,
	}

	runner := &engine.Runner{
		Cfg:      b.cfg,
		Store:    store,
		Broker:   brk,
		Acquirer: acquirer,
		Universe: syms,
		Filter:   b.filterFn(),
		Notifier: b.notifierFn(b.cfg.Notify),
	}
	return &App{cfg: b.cfg, store: store, runner: runner}, nil
}

func buildAlpacaBroker(cfg config.BrokerConfig) (broker.Broker, error) {
	return alpaca.NewClient(cfg)
}

func buildChatClient(cfg config.ModelConfig) policy.ChatClient {
	return &policy.OpenAIChatClient{
		BaseURL:         cfg.APIURL,
		APIKey:          cfg.APIKey,
		Model:           cfg.Name,
		ReasoningEffort: cfg.ReasoningEffort,
		Timeout:         time.Duration(cfg.TimeoutSeconds) * time.Second,
		MaxRetries:      cfg.MaxRetries,
	}
}

func buildUniverse(cfg config.UniverseConfig) ([]string, error) {
	return universe.Load(cfg.Path, cfg.Mode)
}

func buildNotifier(cfg config.NotifyConfig) notify.TextNotifier {
	if cfg.Telegram.Enabled {
		return notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
	}
	return notify.Nop{}
}
