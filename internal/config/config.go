// Package config loads the vault engine's runtime settings from an optional
// YAML file, with connection strings overridable from the environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/vaultkit/vault-engine/internal/collateral"
	"github.com/vaultkit/vault-engine/internal/model"
	"github.com/vaultkit/vault-engine/internal/vaultmath"
)

// Config captures the runtime settings of the vault engine.
type Config struct {
	Service         ServiceConfig          `yaml:"service"`
	Postgres        PostgresConfig         `yaml:"postgres"`
	Redis           RedisConfig            `yaml:"redis"`
	NATS            NATSConfig             `yaml:"nats"`
	Oracle          OracleConfig           `yaml:"oracle"`
	Policy          PolicyConfig           `yaml:"policy"`
	Ceiling         CeilingConfig          `yaml:"ceiling"`
	CollateralTypes []CollateralTypeConfig `yaml:"collateral_types"`
}

// ServiceConfig names the process and its listen port.
type ServiceConfig struct {
	Name string `yaml:"name"`
	Env  string `yaml:"env"`
	Port string `yaml:"port"`
}

// PostgresConfig holds the source-of-truth database. An empty URL selects
// the in-memory store.
type PostgresConfig struct {
	URL     string `yaml:"url"`
	Migrate bool   `yaml:"migrate"`
}

// RedisConfig enables the read-through cache and the shared price feed.
type RedisConfig struct {
	URL      string        `yaml:"url"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// NATSConfig enables alert publishing. An empty URL logs alerts instead.
type NATSConfig struct {
	URL string `yaml:"url"`
}

// OracleConfig bounds how old a price may be before it is treated as stale.
// Zero disables the age check.
type OracleConfig struct {
	MaxPriceAge time.Duration `yaml:"max_price_age"`
}

// PolicyConfig is the calculator policy. Floors are keyed by token kind
// ("native", "pegged").
type PolicyConfig struct {
	BufferPercent    float64            `yaml:"buffer_percent"`
	Floors           map[string]float64 `yaml:"floors"`
	NativeFeeReserve float64            `yaml:"native_fee_reserve"`
}

// CeilingConfig sets the global debt ceiling in USD. Zero disables it.
type CeilingConfig struct {
	MaxGlobalDebt float64 `yaml:"max_global_debt"`
}

// CollateralTypeConfig seeds collateral type parameters at startup.
type CollateralTypeConfig struct {
	Name                  string  `yaml:"name"`
	LiquidationRatio      float64 `yaml:"liquidation_ratio"`
	LiquidationPenalty    float64 `yaml:"liquidation_penalty"`
	CollateralToDebtRatio float64 `yaml:"collateral_to_debt_ratio"`
	StabilityFeeApy       float64 `yaml:"stability_fee_apy"`
	MaximumDebt           int64   `yaml:"maximum_debt"` // micro-USD
	URL                   string  `yaml:"url"`
}

// Default returns the settings used when no file is given.
func Default() Config {
	p := vaultmath.DefaultPolicy()
	floors := make(map[string]float64, len(p.Floors))
	for kind, floor := range p.Floors {
		floors[kind.String()] = floor.InexactFloat64()
	}
	return Config{
		Service: ServiceConfig{Name: "vault-engine", Env: "development", Port: "8080"},
		Redis:   RedisConfig{CacheTTL: 30 * time.Second},
		Oracle:  OracleConfig{MaxPriceAge: 10 * time.Minute},
		Policy: PolicyConfig{
			BufferPercent:    p.BufferPercent.InexactFloat64(),
			Floors:           floors,
			NativeFeeReserve: p.NativeFeeReserve.InexactFloat64(),
		},
	}
}

// Load reads the YAML configuration at path, expanding ${VAR} references,
// then applies environment overrides and validates the result. An empty
// path yields the defaults plus environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
			return Config{}, fmt.Errorf("decode config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv lets the deployment override connection settings.
func (cfg *Config) applyEnv() {
	for env, dst := range map[string]*string{
		"PORT":         &cfg.Service.Port,
		"DATABASE_URL": &cfg.Postgres.URL,
		"REDIS_URL":    &cfg.Redis.URL,
		"NATS_URL":     &cfg.NATS.URL,
	} {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
}

func (cfg *Config) normalize() {
	cfg.Service.Name = strings.TrimSpace(cfg.Service.Name)
	if cfg.Service.Name == "" {
		cfg.Service.Name = "vault-engine"
	}
	cfg.Service.Env = strings.TrimSpace(cfg.Service.Env)
	cfg.Service.Port = strings.TrimPrefix(strings.TrimSpace(cfg.Service.Port), ":")
	if cfg.Service.Port == "" {
		cfg.Service.Port = "8080"
	}
	cfg.Postgres.URL = strings.TrimSpace(cfg.Postgres.URL)
	cfg.Redis.URL = strings.TrimSpace(cfg.Redis.URL)
	cfg.NATS.URL = strings.TrimSpace(cfg.NATS.URL)
	for i := range cfg.CollateralTypes {
		cfg.CollateralTypes[i].Name = strings.ToUpper(strings.TrimSpace(cfg.CollateralTypes[i].Name))
	}
}

func (cfg *Config) validate() error {
	if cfg.Redis.CacheTTL < 0 {
		return fmt.Errorf("redis: cache_ttl must not be negative")
	}
	if cfg.Oracle.MaxPriceAge < 0 {
		return fmt.Errorf("oracle: max_price_age must not be negative")
	}
	if cfg.Ceiling.MaxGlobalDebt < 0 {
		return fmt.Errorf("ceiling: max_global_debt must not be negative")
	}
	p, err := cfg.CalculatorPolicy()
	if err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	if _, err := vaultmath.NewCalculator(p); err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	if _, err := cfg.SeedCollateralTypes(time.Time{}); err != nil {
		return fmt.Errorf("collateral_types: %w", err)
	}
	return nil
}

// CalculatorPolicy converts the policy section into a vaultmath.Policy.
func (cfg Config) CalculatorPolicy() (vaultmath.Policy, error) {
	buffer, err := vaultmath.FromFloat(cfg.Policy.BufferPercent)
	if err != nil {
		return vaultmath.Policy{}, fmt.Errorf("buffer_percent: %w", err)
	}
	reserve, err := vaultmath.FromFloat(cfg.Policy.NativeFeeReserve)
	if err != nil {
		return vaultmath.Policy{}, fmt.Errorf("native_fee_reserve: %w", err)
	}
	floors := make(map[collateral.Kind]decimal.Decimal, len(cfg.Policy.Floors))
	for name, v := range cfg.Policy.Floors {
		kind, err := collateral.ParseKind(name)
		if err != nil {
			return vaultmath.Policy{}, fmt.Errorf("floors: %w", err)
		}
		floor, err := vaultmath.FromFloat(v)
		if err != nil {
			return vaultmath.Policy{}, fmt.Errorf("floors.%s: %w", name, err)
		}
		floors[kind] = floor
	}
	return vaultmath.Policy{
		BufferPercent:    buffer,
		Floors:           floors,
		NativeFeeReserve: reserve,
	}, nil
}

// MaxGlobalDebt returns the global ceiling in USD.
func (cfg Config) MaxGlobalDebt() decimal.Decimal {
	d, err := vaultmath.FromFloat(cfg.Ceiling.MaxGlobalDebt)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// SeedCollateralTypes converts the configured collateral types, stamped
// with updatedAt.
func (cfg Config) SeedCollateralTypes(updatedAt time.Time) ([]model.CollateralType, error) {
	out := make([]model.CollateralType, 0, len(cfg.CollateralTypes))
	seen := make(map[string]bool, len(cfg.CollateralTypes))
	for _, c := range cfg.CollateralTypes {
		parsed, err := collateral.ParseTypeName(c.Name)
		if err != nil {
			return nil, err
		}
		if seen[parsed.Name] {
			return nil, fmt.Errorf("duplicate collateral type %s", parsed.Name)
		}
		seen[parsed.Name] = true

		ct := model.CollateralType{
			Name:        parsed.Name,
			Token:       parsed.Token,
			TokenType:   parsed.Name,
			URL:         c.URL,
			MaximumDebt: c.MaximumDebt,
			UpdatedAt:   updatedAt,
		}
		for field, dst := range map[string]struct {
			v   float64
			out *decimal.Decimal
		}{
			"liquidation_ratio":        {c.LiquidationRatio, &ct.LiquidationRatio},
			"liquidation_penalty":      {c.LiquidationPenalty, &ct.LiquidationPenalty},
			"collateral_to_debt_ratio": {c.CollateralToDebtRatio, &ct.CollateralToDebtRatio},
			"stability_fee_apy":        {c.StabilityFeeApy, &ct.StabilityFeeApy},
		} {
			v, err := vaultmath.FromFloat(dst.v)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", parsed.Name, field, err)
			}
			if v.IsNegative() {
				return nil, fmt.Errorf("%s.%s must not be negative", parsed.Name, field)
			}
			*dst.out = v
		}
		if !ct.LiquidationRatio.IsPositive() {
			return nil, fmt.Errorf("%s.liquidation_ratio must be positive", parsed.Name)
		}
		if ct.MaximumDebt < 0 {
			return nil, fmt.Errorf("%s.maximum_debt must not be negative", parsed.Name)
		}
		out = append(out, ct)
	}
	return out, nil
}
