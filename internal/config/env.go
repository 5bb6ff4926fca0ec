package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// applyEnvOverrides lets deployments inject addresses and secrets without
// touching the file. Unset or empty variables leave the field alone.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.LogLevel, "VAULT_LOG_LEVEL")

	setStr(&cfg.Server.GRPCAddr, "VAULT_GRPC_ADDR")
	setStr(&cfg.Server.HTTPAddr, "VAULT_HTTP_ADDR")

	setStr(&cfg.Postgres.DSN, "VAULT_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "POSTGRES_URL") // shared with cmd/migrate
	setInt(&cfg.Postgres.MaxOpenConns, "VAULT_POSTGRES_MAX_OPEN_CONNS")
	setStr(&cfg.Postgres.MigrationsDir, "VAULT_MIGRATIONS_DIR")

	setStr(&cfg.NATS.URL, "VAULT_NATS_URL")
	setStr(&cfg.NATS.PriceConsumer, "VAULT_NATS_PRICE_CONSUMER")

	setStr(&cfg.Redis.Addr, "VAULT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "VAULT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "VAULT_REDIS_DB")
	setDuration(&cfg.Redis.ReceiptTTL, "VAULT_RECEIPT_TTL")

	setStr(&cfg.Oracle.Source, "VAULT_ORACLE_SOURCE")
	setStr(&cfg.Oracle.Asset, "VAULT_ORACLE_ASSET")
	setStr(&cfg.Oracle.StaticPrice, "VAULT_ORACLE_STATIC_PRICE")

	setStr(&cfg.Vault.MinCollateralRatio, "VAULT_MIN_COLLATERAL_RATIO")
	setStr(&cfg.Vault.LiquidationThreshold, "VAULT_LIQUIDATION_THRESHOLD")
	setStr(&cfg.Vault.LiquidationPenalty, "VAULT_LIQUIDATION_PENALTY")
	setStr(&cfg.Vault.StabilityFee, "VAULT_STABILITY_FEE")
	setStr(&cfg.Vault.DebtCeiling, "VAULT_DEBT_CEILING")
	setDuration(&cfg.Vault.MaxPriceAge, "VAULT_MAX_PRICE_AGE")
	setStringSlice(&cfg.Vault.Admins, "VAULT_ADMINS")

	setStr(&cfg.Tokens.Faucet, "VAULT_FAUCET")

	setInt64(&cfg.Service.NodeID, "VAULT_NODE_ID")
	setInt64(&cfg.Snapshot.Interval, "VAULT_SNAPSHOT_INTERVAL")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// setStringSlice splits a comma-separated value.
func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = strings.Split(v, ",")
	}
}
