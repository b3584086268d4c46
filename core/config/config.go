package config

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	// cache holds one parsed value per configuration type.
	cache sync.Map // reflect.Type -> any

	// dotenvOnce loads .env files a single time per process.
	dotenvOnce sync.Once
)

// Load parses environment variables into cfg, which must be a non-nil
// pointer to a struct. The first call for a given struct type parses the
// environment; subsequent calls return the cached value.
func Load(cfg any) error {
	v := reflect.ValueOf(cfg)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("config: target must be a non-nil struct pointer, got %T", cfg)
	}

	dotenvOnce.Do(func() {
		// Missing .env files are fine; explicit environment wins anyway.
		_ = godotenv.Load()
	})

	t := v.Elem().Type()
	if cached, ok := cache.Load(t); ok {
		v.Elem().Set(reflect.ValueOf(cached))
		return nil
	}

	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", t, err)
	}

	// First writer wins so concurrent loads observe one consistent value.
	actual, _ := cache.LoadOrStore(t, v.Elem().Interface())
	v.Elem().Set(reflect.ValueOf(actual))
	return nil
}

// MustLoad is like Load but panics on failure. Intended for process startup.
func MustLoad(cfg any) {
	if err := Load(cfg); err != nil {
		panic(err)
	}
}
