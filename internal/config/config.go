package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	DB        DBConfig        `mapstructure:"db"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Cron      CronConfig      `mapstructure:"cron"`
	Chain     ChainConfig     `mapstructure:"chain"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Resolver  ResolverConfig  `mapstructure:"resolver"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Scoring   ScoringConfig   `mapstructure:"scoring"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Identity  IdentityConfig  `mapstructure:"identity"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
	// APIKey protects operator endpoints (system state, failed job requeue).
	APIKey string `mapstructure:"api_key"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
	File              string `mapstructure:"file"`
	MaxSizeMB         int    `mapstructure:"max_size_mb"`
	MaxBackups        int    `mapstructure:"max_backups"`
	MaxAgeDays        int    `mapstructure:"max_age_days"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type CronConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Reconcile      string `mapstructure:"reconcile"`
	ProfileRefresh string `mapstructure:"profile_refresh"`
	StatsLog       string `mapstructure:"stats_log"`
}

type ChainConfig struct {
	ID uint64 `mapstructure:"id"`
	// Network is the provider-side chain slug (coingecko platform id, dexscreener chain id).
	Network             string `mapstructure:"network"`
	DeploymentTimestamp int64  `mapstructure:"deployment_timestamp"`
}

type ProvidersConfig struct {
	CoinGecko   ProviderConfig `mapstructure:"coingecko"`
	DexScreener ProviderConfig `mapstructure:"dexscreener"`
	Neynar      ProviderConfig `mapstructure:"neynar"`
}

type ProviderConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	MinInterval time.Duration `mapstructure:"min_interval"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Cooldown    time.Duration `mapstructure:"cooldown"`
}

type ResolverConfig struct {
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	SeriesWindow    time.Duration `mapstructure:"series_window"`
	DexFreshWindow  time.Duration `mapstructure:"dex_fresh_window"`
	DexMaxLookback  time.Duration `mapstructure:"dex_max_lookback"`
	PlaceholderName string        `mapstructure:"placeholder_name"`
}

type SchedulerConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	Concurrency      int           `mapstructure:"concurrency"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	BaseBackoff      time.Duration `mapstructure:"base_backoff"`
	JobTimeout       time.Duration `mapstructure:"job_timeout"`
	Lease            time.Duration `mapstructure:"lease"`
	GraceAfterExpiry time.Duration `mapstructure:"grace_after_expiry"`
	ReconcileLimit   int           `mapstructure:"reconcile_limit"`
}

type LedgerConfig struct {
	MaxConflictRetries int           `mapstructure:"max_conflict_retries"`
	ConflictBackoff    time.Duration `mapstructure:"conflict_backoff"`
}

type ScoringConfig struct {
	Policy     string  `mapstructure:"policy"`
	Win        int64   `mapstructure:"win"`
	Loss       int64   `mapstructure:"loss"`
	Base       int64   `mapstructure:"base"`
	PerPercent float64 `mapstructure:"per_percent"`
	Cap        int64   `mapstructure:"cap"`
	LossFactor float64 `mapstructure:"loss_factor"`
}

type IngestConfig struct {
	APIKey          string        `mapstructure:"api_key"`
	StreamURL       string        `mapstructure:"stream_url"`
	StreamReconnect time.Duration `mapstructure:"stream_reconnect"`
	MaxBatch        int           `mapstructure:"max_batch"`
}

type IdentityConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	RefreshBatch int  `mapstructure:"refresh_batch"`
}

// LoadDotEnv loads .env style files into the process environment. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	setDefaults(v)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.api_key", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 14)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "mfs")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.reconcile", "@every 5m")
	v.SetDefault("cron.profile_refresh", "@every 6h")
	v.SetDefault("cron.stats_log", "@every 1m")

	v.SetDefault("chain.id", 8453)
	v.SetDefault("chain.network", "base")
	v.SetDefault("chain.deployment_timestamp", 1735689600)

	v.SetDefault("providers.coingecko.enabled", true)
	v.SetDefault("providers.coingecko.base_url", "https://pro-api.coingecko.com/api/v3")
	v.SetDefault("providers.coingecko.api_key", "")
	v.SetDefault("providers.coingecko.min_interval", "1200ms")
	v.SetDefault("providers.coingecko.timeout", "15s")
	v.SetDefault("providers.coingecko.cooldown", "5s")
	v.SetDefault("providers.dexscreener.enabled", true)
	v.SetDefault("providers.dexscreener.base_url", "https://api.dexscreener.com")
	v.SetDefault("providers.dexscreener.min_interval", "250ms")
	v.SetDefault("providers.dexscreener.timeout", "15s")
	v.SetDefault("providers.dexscreener.cooldown", "5s")
	v.SetDefault("providers.neynar.enabled", true)
	v.SetDefault("providers.neynar.base_url", "https://api.neynar.com")
	v.SetDefault("providers.neynar.api_key", "")
	v.SetDefault("providers.neynar.min_interval", "200ms")
	v.SetDefault("providers.neynar.timeout", "10s")
	v.SetDefault("providers.neynar.cooldown", "5s")

	v.SetDefault("resolver.cache_ttl", "10m")
	v.SetDefault("resolver.series_window", "1h")
	v.SetDefault("resolver.dex_fresh_window", "3m")
	v.SetDefault("resolver.dex_max_lookback", "24h")
	v.SetDefault("resolver.placeholder_name", "Unknown Token")

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.poll_interval", "1s")
	v.SetDefault("scheduler.concurrency", 4)
	v.SetDefault("scheduler.max_attempts", 3)
	v.SetDefault("scheduler.base_backoff", "2s")
	v.SetDefault("scheduler.job_timeout", "60s")
	v.SetDefault("scheduler.lease", "2m")
	v.SetDefault("scheduler.grace_after_expiry", "2m")
	v.SetDefault("scheduler.reconcile_limit", 500)

	v.SetDefault("ledger.max_conflict_retries", 5)
	v.SetDefault("ledger.conflict_backoff", "20ms")

	v.SetDefault("scoring.policy", "fixed")
	v.SetDefault("scoring.win", 10)
	v.SetDefault("scoring.loss", -5)
	v.SetDefault("scoring.base", 10)
	v.SetDefault("scoring.per_percent", 0.2)
	v.SetDefault("scoring.cap", 50)
	v.SetDefault("scoring.loss_factor", 0.5)

	v.SetDefault("ingest.api_key", "")
	v.SetDefault("ingest.stream_url", "")
	v.SetDefault("ingest.stream_reconnect", "5s")
	v.SetDefault("ingest.max_batch", 1000)

	v.SetDefault("identity.enabled", true)
	v.SetDefault("identity.refresh_batch", 100)
}
