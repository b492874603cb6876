// Package config loads the YAML configuration shared by the daemons,
// fills defaults, applies environment overrides for secrets and
// validates the result.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"optionflow/internal/stream"
)

// Config is the full configuration tree. Secrets are normally injected
// through the environment, never committed in the YAML file.
type Config struct {
	Environment string `yaml:"environment" default:"dev"`

	Log struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"json" validate:"oneof=json console"`
	} `yaml:"log"`

	Metrics struct {
		Addr string `yaml:"addr" default:":9090"`
		Path string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`

	Postgres struct {
		DSN string `yaml:"dsn" validate:"required"`
	} `yaml:"postgres"`

	Redis struct {
		Addr      string        `yaml:"addr" default:"localhost:6379"`
		Password  string        `yaml:"password"`
		DB        int           `yaml:"db"`
		KeyPrefix string        `yaml:"key_prefix" default:"quote:"`
		TTL       time.Duration `yaml:"ttl" default:"15s"`
	} `yaml:"redis"`

	ClickHouse struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr" default:"localhost:9000"`
		Database string `yaml:"database" default:"optionflow"`
		User     string `yaml:"user" default:"default"`
		Password string `yaml:"password"`
	} `yaml:"clickhouse"`

	Brokerage struct {
		MarketDataURL    string        `yaml:"market_data_url" validate:"required,url"`
		AuthURL          string        `yaml:"auth_url" validate:"required,url"`
		ClientID         string        `yaml:"client_id" validate:"required"`
		ClientSecret     string        `yaml:"client_secret"`
		RequestTimeout   time.Duration `yaml:"request_timeout" default:"10s"`
		RefreshTokenLife time.Duration `yaml:"refresh_token_life" default:"168h"`
	} `yaml:"brokerage"`

	Auth struct {
		DataProfile      string        `yaml:"data_profile" default:"schwab_data"`
		TradeProfile     string        `yaml:"trade_profile" default:"schwab_trade"`
		RefreshThreshold time.Duration `yaml:"refresh_threshold" default:"5m"`
		SweepInterval    time.Duration `yaml:"sweep_interval" default:"1m"`
		FailureLimit     int           `yaml:"failure_limit" default:"3"`
	} `yaml:"auth"`

	Stream struct {
		UnderlyingSymbol string        `yaml:"underlying_symbol" default:"$SPX"`
		OptionRoot       string        `yaml:"option_root" default:"SPXW"`
		StrikeStep       float64       `yaml:"strike_step" default:"5"`
		StrikeRange      float64       `yaml:"strike_range" default:"100"`
		AdjustThreshold  float64       `yaml:"adjust_threshold" default:"30"`
		NoDataThreshold  time.Duration `yaml:"no_data_threshold" default:"30s"`
		WatchdogInterval time.Duration `yaml:"watchdog_interval" default:"30s"`
		Backoff          time.Duration `yaml:"backoff" default:"10s"`
		LoginSettle      time.Duration `yaml:"login_settle" default:"500ms"`
		// Fields pins the feed's positional field numbers; the contract
		// can renumber them without a rebuild.
		Fields stream.FieldMap `yaml:"fields"`
	} `yaml:"stream"`

	Session struct {
		Type         string        `yaml:"type" default:"REGULAR"`
		Market       string        `yaml:"market" default:"option"`
		Timezone     string        `yaml:"timezone" default:"America/Los_Angeles"`
		PreOpenPad   time.Duration `yaml:"pre_open_pad" default:"5m"`
		PollInterval time.Duration `yaml:"poll_interval" default:"30s"`
	} `yaml:"session"`

	Monitor struct {
		PollInterval time.Duration `yaml:"poll_interval" default:"1m"`
		StartupGrace time.Duration `yaml:"startup_grace" default:"2m"`
		StaleLimit   time.Duration `yaml:"stale_limit" default:"2m"`
		FailureLimit int           `yaml:"failure_limit" default:"2"`
	} `yaml:"monitor"`

	Sink struct {
		LogDir     string        `yaml:"log_dir" default:"./data"`
		CacheDepth int           `yaml:"cache_depth" default:"1024"`
		LogDepth   int           `yaml:"log_depth" default:"4096"`
		LogTimeout time.Duration `yaml:"log_timeout" default:"2s"`
	} `yaml:"sink"`

	Transform struct {
		Width            float64       `yaml:"width" default:"5"`
		GridStep         time.Duration `yaml:"grid_step" default:"1s"`
		NeighborsBefore  int           `yaml:"neighbors_before" default:"5"`
		NeighborsAfter   int           `yaml:"neighbors_after" default:"5"`
		OutlierThreshold float64       `yaml:"outlier_threshold" default:"0.5"`
		RollingWindow    int           `yaml:"rolling_window" default:"10"`
	} `yaml:"transform"`
}

var validate = validator.New()

// Load reads the YAML file at path, fills defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("apply config defaults: %w", err)
	}
	cfg.applyEnv()

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// applyEnv overrides secrets and connection strings from the
// environment.
func (c *Config) applyEnv() {
	if v := os.Getenv("OPTIONFLOW_POSTGRES_DSN"); v != "" {
		c.Postgres.DSN = v
	}
	if v := os.Getenv("OPTIONFLOW_REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("OPTIONFLOW_CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("OPTIONFLOW_CLIENT_ID"); v != "" {
		c.Brokerage.ClientID = v
	}
	if v := os.Getenv("OPTIONFLOW_CLIENT_SECRET"); v != "" {
		c.Brokerage.ClientSecret = v
	}
}

// Location resolves the configured session timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Session.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load session timezone %q: %w", c.Session.Timezone, err)
	}
	return loc, nil
}
