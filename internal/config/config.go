package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/vetledger/vetledger/internal/domain/resolver"
)

type Config struct {
	DBPath             string  `mapstructure:"DB_PATH"`
	Env                string  `mapstructure:"ENV"`
	Port               string  `mapstructure:"PORT"`
	LogLevel           string  `mapstructure:"LOG_LEVEL"`
	SyncURL            string  `mapstructure:"SYNC_URL"`
	SyncTimeoutSeconds int     `mapstructure:"SYNC_TIMEOUT_SECONDS"`
	NameWeight         float64 `mapstructure:"NAME_WEIGHT"`
	SpeciesWeight      float64 `mapstructure:"SPECIES_WEIGHT"`
	RouteWeight        float64 `mapstructure:"ROUTE_WEIGHT"`
	DoseWeight         float64 `mapstructure:"DOSE_WEIGHT"`
	SystemID           string  `mapstructure:"SYSTEM_ID"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	def := resolver.DefaultWeights()
	v.SetDefault("DB_PATH", "vetledger.db")
	v.SetDefault("ENV", "development")
	v.SetDefault("PORT", "8600")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("SYNC_TIMEOUT_SECONDS", 30)
	v.SetDefault("NAME_WEIGHT", def.Name)
	v.SetDefault("SPECIES_WEIGHT", def.Species)
	v.SetDefault("ROUTE_WEIGHT", def.Route)
	v.SetDefault("DOSE_WEIGHT", def.Dose)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("DB_PATH")
	v.BindEnv("ENV")
	v.BindEnv("PORT")
	v.BindEnv("LOG_LEVEL")
	v.BindEnv("SYNC_URL")
	v.BindEnv("SYNC_TIMEOUT_SECONDS")
	v.BindEnv("NAME_WEIGHT")
	v.BindEnv("SPECIES_WEIGHT")
	v.BindEnv("ROUTE_WEIGHT")
	v.BindEnv("DOSE_WEIGHT")
	v.BindEnv("SYSTEM_ID")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) SyncTimeout() time.Duration {
	return time.Duration(c.SyncTimeoutSeconds) * time.Second
}

// Weights returns the resolver weights from configuration. Normalization
// and validation happen in the resolver.
func (c *Config) Weights() resolver.Weights {
	return resolver.Weights{
		Name:    c.NameWeight,
		Species: c.SpeciesWeight,
		Route:   c.RouteWeight,
		Dose:    c.DoseWeight,
	}
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH is required")
	}
	if c.SyncTimeoutSeconds <= 0 {
		return fmt.Errorf("SYNC_TIMEOUT_SECONDS must be positive, got %d", c.SyncTimeoutSeconds)
	}
	if _, err := c.Weights().Normalized(); err != nil {
		return fmt.Errorf("resolver weights: %w", err)
	}
	return nil
}
