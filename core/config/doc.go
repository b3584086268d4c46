// Package config provides environment variable loading with per-type
// caching. Each configuration struct type is parsed once and cached for
// subsequent calls.
//
// The package automatically loads .env files on first use and uses the
// caarlos0/env library for parsing environment variables into struct fields.
//
// Basic usage:
//
//	type LedgerConfig struct {
//		DatabaseURL string        `env:"IDEMPOTENCY_DATABASE_URL,required"`
//		Retention   time.Duration `env:"IDEMPOTENCY_RETENTION" envDefault:"24h"`
//	}
//
//	var cfg LedgerConfig
//	if err := config.Load(&cfg); err != nil {
//		log.Fatal(err)
//	}
//
//	// Or panic on failure (useful for startup)
//	config.MustLoad(&cfg)
package config
