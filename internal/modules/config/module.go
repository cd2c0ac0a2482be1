package config

import "go.uber.org/fx"

// Module отдаёт в граф уже загруженный *Config: CLI читает его раньше fx,
// чтобы поднять логгер и применить флаги.
func Module(cfg *Config) fx.Option {
	return fx.Module("config",
		fx.Supply(cfg),
	)
}
