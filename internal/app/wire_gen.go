//go:generate go run -mod=mod github.com/google/wire/cmd/wire
//go:build !wireinject

package app

import (
	"alphatrade/internal/config"
)

func buildAppWithWire(cfg *config.Config, opts []BuilderOption) (*App, error) {
	builder := provideBuilder(cfg, opts)
	app, err := provideAppFromBuilder(builder)
	if err != nil {
		return nil, err
	}
	return app, nil
}

type appBuilderDeps interface {
	Build() (*App, error)
}

func provideAppFromBuilder(b appBuilderDeps) (*App, error) {
	return b.Build()
}

func provideBuilder(cfg *config.Config, opts []BuilderOption) *Builder {
	return NewBuilder(cfg, opts...)
}
