// Package config loads the vaultledger process configuration: built-in
// defaults, then a TOML or YAML file, then VAULT_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	fpmath "VaultLedger/internal/math"
	"VaultLedger/internal/state"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	LogLevel string         `toml:"log_level" yaml:"log_level"`
	Server   ServerConfig   `toml:"server" yaml:"server"`
	Postgres PostgresConfig `toml:"postgres" yaml:"postgres"`
	NATS     NATSConfig     `toml:"nats" yaml:"nats"`
	Redis    RedisConfig    `toml:"redis" yaml:"redis"`
	Oracle   OracleConfig   `toml:"oracle" yaml:"oracle"`
	Vault    VaultConfig    `toml:"vault" yaml:"vault"`
	Service  ServiceConfig  `toml:"service" yaml:"service"`
	Persist  PersistConfig  `toml:"persist" yaml:"persist"`
	Snapshot SnapshotConfig `toml:"snapshot" yaml:"snapshot"`
	Tokens   TokensConfig   `toml:"tokens" yaml:"tokens"`
}

type ServerConfig struct {
	GRPCAddr string `toml:"grpc_addr" yaml:"grpc_addr"`
	HTTPAddr string `toml:"http_addr" yaml:"http_addr"`
}

type PostgresConfig struct {
	DSN             string        `toml:"dsn" yaml:"dsn"`
	MaxOpenConns    int           `toml:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `toml:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `toml:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	MigrationsDir   string        `toml:"migrations_dir" yaml:"migrations_dir"`
}

// NATSConfig configures the event stream and the price feed. An empty URL
// disables both; events are then only logged.
type NATSConfig struct {
	URL           string        `toml:"url" yaml:"url"`
	EventBuffer   int           `toml:"event_buffer" yaml:"event_buffer"`
	StreamMaxAge  time.Duration `toml:"stream_max_age" yaml:"stream_max_age"`
	PriceConsumer string        `toml:"price_consumer" yaml:"price_consumer"`
}

// RedisConfig configures the price cache and the receipt store. An empty
// Addr disables both.
type RedisConfig struct {
	Addr       string        `toml:"addr" yaml:"addr"`
	Password   string        `toml:"password" yaml:"password"`
	DB         int           `toml:"db" yaml:"db"`
	ReceiptTTL time.Duration `toml:"receipt_ttl" yaml:"receipt_ttl"`
}

// Oracle sources.
const (
	OracleStatic = "static" // fixed StaticPrice, for local runs
	OracleMemory = "memory" // in-process cache fed from NATS
	OracleRedis  = "redis"  // Redis cache fed from NATS
)

type OracleConfig struct {
	Source      string `toml:"source" yaml:"source"`
	Asset       string `toml:"asset" yaml:"asset"`
	StaticPrice string `toml:"static_price" yaml:"static_price"`
}

// VaultConfig holds the launch risk parameters in human units: percentages
// ("150", "12.5%"), a decimal debt ceiling ("0" for unlimited) and a
// duration for the price age.
type VaultConfig struct {
	MinCollateralRatio   string        `toml:"min_collateral_ratio" yaml:"min_collateral_ratio"`
	LiquidationThreshold string        `toml:"liquidation_threshold" yaml:"liquidation_threshold"`
	LiquidationPenalty   string        `toml:"liquidation_penalty" yaml:"liquidation_penalty"`
	StabilityFee         string        `toml:"stability_fee" yaml:"stability_fee"`
	DebtCeiling          string        `toml:"debt_ceiling" yaml:"debt_ceiling"`
	MaxPriceAge          time.Duration `toml:"max_price_age" yaml:"max_price_age"`
	Admins               []string      `toml:"admins" yaml:"admins"`
}

type ServiceConfig struct {
	QueueSize     int   `toml:"queue_size" yaml:"queue_size"`
	DedupCapacity int   `toml:"dedup_capacity" yaml:"dedup_capacity"`
	NodeID        int64 `toml:"node_id" yaml:"node_id"`
}

type PersistConfig struct {
	ChanSize     int           `toml:"chan_size" yaml:"chan_size"`
	BatchSize    int           `toml:"batch_size" yaml:"batch_size"`
	FlushTimeout time.Duration `toml:"flush_timeout" yaml:"flush_timeout"`
}

type SnapshotConfig struct {
	Interval   int64         `toml:"interval" yaml:"interval"` // sequences between snapshots
	CheckEvery time.Duration `toml:"check_every" yaml:"check_every"`
	Keep       int           `toml:"keep" yaml:"keep"`
}

// TokensConfig configures the in-process token wallets. Faucet is the
// largest collateral top-up granted per deposit, "0" to disable.
type TokensConfig struct {
	Faucet string `toml:"faucet" yaml:"faucet"`
}

// Default returns a configuration for a local run against the docker
// compose services.
func Default() Config {
	return Config{
		LogLevel: "info",
		Server: ServerConfig{
			GRPCAddr: ":9090",
			HTTPAddr: ":8080",
		},
		Postgres: PostgresConfig{
			DSN:             "postgres://localhost:5432/vaultledger?sslmode=disable",
			MaxOpenConns:    20,
			MaxIdleConns:    10,
			ConnMaxLifetime: 5 * time.Minute,
			MigrationsDir:   "migrations",
		},
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			EventBuffer:   4096,
			StreamMaxAge:  7 * 24 * time.Hour,
			PriceConsumer: "vaultledger-oracle",
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			ReceiptTTL: 24 * time.Hour,
		},
		Oracle: OracleConfig{
			Source:      OracleRedis,
			Asset:       "ETH",
			StaticPrice: "2000",
		},
		Vault: VaultConfig{
			MinCollateralRatio:   "150",
			LiquidationThreshold: "120",
			LiquidationPenalty:   "10",
			StabilityFee:         "2",
			DebtCeiling:          "0",
			MaxPriceAge:          time.Hour,
		},
		Service: ServiceConfig{
			QueueSize:     1024,
			DedupCapacity: 100_000,
			NodeID:        1,
		},
		Persist: PersistConfig{
			ChanSize:     4096,
			BatchSize:    500,
			FlushTimeout: 100 * time.Millisecond,
		},
		Snapshot: SnapshotConfig{
			Interval:   10_000,
			CheckEvery: 30 * time.Second,
			Keep:       5,
		},
		Tokens: TokensConfig{
			Faucet: "0",
		},
	}
}

// Load builds the configuration. A .env file in the working directory is
// loaded first when present; path may be empty to run on defaults and
// environment alone. The result is normalized and validated.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}
	applyEnvOverrides(&cfg)
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("%w: unknown keys in %s: %v", ErrInvalidConfig, path, undecoded)
		}
		return nil
	case ".yaml", ".yml":
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
		return nil
	default:
		return fmt.Errorf("%w: unsupported config extension %q", ErrInvalidConfig, ext)
	}
}

func (c *Config) normalize() {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.Oracle.Source = strings.ToLower(strings.TrimSpace(c.Oracle.Source))
	c.Oracle.Asset = strings.TrimSpace(c.Oracle.Asset)

	admins := c.Vault.Admins[:0]
	for _, a := range c.Vault.Admins {
		if a = strings.TrimSpace(a); a != "" {
			admins = append(admins, a)
		}
	}
	c.Vault.Admins = admins
}

// Validate checks the configuration, including the risk parameters.
func (c *Config) Validate() error {
	if c.Postgres.DSN == "" {
		return fmt.Errorf("%w: postgres.dsn is required", ErrInvalidConfig)
	}
	if c.Server.GRPCAddr == "" || c.Server.HTTPAddr == "" {
		return fmt.Errorf("%w: server.grpc_addr and server.http_addr are required", ErrInvalidConfig)
	}
	if c.Oracle.Asset == "" {
		return fmt.Errorf("%w: oracle.asset is required", ErrInvalidConfig)
	}
	switch c.Oracle.Source {
	case OracleStatic:
		if _, err := c.StaticPrice(); err != nil {
			return err
		}
	case OracleMemory:
		if c.NATS.URL == "" {
			return fmt.Errorf("%w: oracle.source %q needs nats.url", ErrInvalidConfig, c.Oracle.Source)
		}
	case OracleRedis:
		if c.NATS.URL == "" || c.Redis.Addr == "" {
			return fmt.Errorf("%w: oracle.source %q needs nats.url and redis.addr", ErrInvalidConfig, c.Oracle.Source)
		}
	default:
		return fmt.Errorf("%w: unknown oracle.source %q", ErrInvalidConfig, c.Oracle.Source)
	}
	if c.Service.NodeID < 0 || c.Service.NodeID > 1023 {
		return fmt.Errorf("%w: service.node_id must be in [0, 1023], got %d", ErrInvalidConfig, c.Service.NodeID)
	}
	if c.Persist.BatchSize <= 0 || c.Persist.FlushTimeout <= 0 {
		return fmt.Errorf("%w: persist.batch_size and persist.flush_timeout must be > 0", ErrInvalidConfig)
	}
	if c.Snapshot.Interval <= 0 || c.Snapshot.CheckEvery <= 0 || c.Snapshot.Keep <= 0 {
		return fmt.Errorf("%w: snapshot.interval, snapshot.check_every and snapshot.keep must be > 0", ErrInvalidConfig)
	}
	if _, err := c.FaucetLimit(); err != nil {
		return err
	}
	if _, err := c.AdminIDs(); err != nil {
		return err
	}
	if _, err := c.Params(); err != nil {
		return err
	}
	return nil
}

// Params converts the human-unit risk parameters and validates them.
func (c *Config) Params() (state.VaultParams, error) {
	var p state.VaultParams
	var err error
	percent := []struct {
		name string
		raw  string
		dst  *int64
	}{
		{state.ParamMinCollateralRatio, c.Vault.MinCollateralRatio, &p.MinCollateralRatio},
		{state.ParamLiquidationThreshold, c.Vault.LiquidationThreshold, &p.LiquidationThreshold},
		{state.ParamLiquidationPenalty, c.Vault.LiquidationPenalty, &p.LiquidationPenalty},
		{state.ParamStabilityFee, c.Vault.StabilityFee, &p.StabilityFee},
	}
	for _, f := range percent {
		if *f.dst, err = fpmath.ParsePercent(f.raw); err != nil {
			return p, fmt.Errorf("%w: vault.%s: %v", ErrInvalidConfig, f.name, err)
		}
	}
	if p.DebtCeiling, err = fpmath.ParseAmount(c.Vault.DebtCeiling); err != nil {
		return p, fmt.Errorf("%w: vault.debt_ceiling: %v", ErrInvalidConfig, err)
	}
	p.MaxPriceAge = c.Vault.MaxPriceAge
	if err := state.ValidateVaultParams(p); err != nil {
		return p, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return p, nil
}

// AdminIDs parses vault.admins.
func (c *Config) AdminIDs() ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(c.Vault.Admins))
	for _, a := range c.Vault.Admins {
		id, err := uuid.Parse(a)
		if err != nil {
			return nil, fmt.Errorf("%w: vault.admins: %q is not a uuid", ErrInvalidConfig, a)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// StaticPrice parses oracle.static_price at the price scale.
func (c *Config) StaticPrice() (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(c.Oracle.StaticPrice))
	if err != nil || !d.IsPositive() {
		return 0, fmt.Errorf("%w: oracle.static_price must be a positive decimal, got %q", ErrInvalidConfig, c.Oracle.StaticPrice)
	}
	price, err := fpmath.FromDecimal(d, fpmath.PriceConfig)
	if err != nil || price <= 0 {
		return 0, fmt.Errorf("%w: oracle.static_price must be a positive decimal, got %q", ErrInvalidConfig, c.Oracle.StaticPrice)
	}
	return price, nil
}

// FaucetLimit parses tokens.faucet at the amount scale.
func (c *Config) FaucetLimit() (int64, error) {
	limit, err := fpmath.ParseAmount(c.Tokens.Faucet)
	if err != nil || limit < 0 {
		return 0, fmt.Errorf("%w: tokens.faucet must be a decimal >= 0, got %q", ErrInvalidConfig, c.Tokens.Faucet)
	}
	return limit, nil
}
