// Package config holds every tunable of yspy and loads it from YAML, .env and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	PortfolioDir  string `yaml:"portfolio_dir"`
	PortfolioFile string `yaml:"portfolio_file"`
	HistoricalDir string `yaml:"historical_dir"`

	Market     MarketConfig     `yaml:"market"`
	Historical HistoricalConfig `yaml:"historical"`
	Currency   CurrencyConfig   `yaml:"currency"`
	Cache      CacheConfig      `yaml:"cache"`
	Correlate  CorrelateConfig  `yaml:"correlation"`
	Shorts     ShortsConfig     `yaml:"shorts"`
	Funds      FundsConfig      `yaml:"funds"`
	Log        LogConfig        `yaml:"log"`
	Assistant  AssistantConfig  `yaml:"assistant"`

	// PriceScale multiplies quotes of some tickers, e.g. copper futures quoted per pound.
	PriceScale map[string]float64 `yaml:"price_scale"`
}

// MarketConfig configures the market-data client and the realtime poller.
type MarketConfig struct {
	BaseURL        string        `yaml:"base_url"`
	TickInterval   time.Duration `yaml:"tick_interval"`
	Timeout        time.Duration `yaml:"timeout"`
	RequestsPerSec float64       `yaml:"requests_per_sec"`
	Concurrency    int           `yaml:"concurrency"`
	DiskCache      bool          `yaml:"disk_cache"`
}

// HistoricalConfig configures historical data loading and refresh.
type HistoricalConfig struct {
	Period         string        `yaml:"period"`
	Interval       string        `yaml:"interval"`
	BulkPeriod     string        `yaml:"bulk_period"`
	Mode           string        `yaml:"mode"` // eager, background, skip
	UpdateInterval time.Duration `yaml:"update_interval"`
	StaleThreshold time.Duration `yaml:"stale_threshold"`
	ProblemEvery   int           `yaml:"problem_every"`
	Retries        int           `yaml:"retries"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
}

// CurrencyConfig configures exchange rates.
type CurrencyConfig struct {
	RateURLs     []string `yaml:"rate_urls"`
	OnlineLookup bool     `yaml:"online_lookup"`
}

// CacheConfig configures the stock prices table cache.
type CacheConfig struct {
	PricesTTL     time.Duration `yaml:"prices_ttl"`
	PriceThrottle time.Duration `yaml:"price_throttle"`
}

// CorrelateConfig holds correlation defaults.
type CorrelateConfig struct {
	Period string `yaml:"period"`
	Method string `yaml:"method"`
}

// ShortsConfig configures the short-selling feed.
type ShortsConfig struct {
	Location     string        `yaml:"location"` // path, http(s):// or s3:// URL; empty disables
	CacheTTL     time.Duration `yaml:"cache_ttl"`
	MaxAge       time.Duration `yaml:"max_age"`
	HighInterest float64       `yaml:"high_interest"`
	Schedule     string        `yaml:"schedule"`
}

// FundsConfig configures the NAV source of managed funds.
type FundsConfig struct {
	BaseURL  string        `yaml:"base_url"`
	Timeout  time.Duration `yaml:"timeout"`
	NAVTTL   time.Duration `yaml:"nav_ttl"`
	InfoTTL  time.Duration `yaml:"info_ttl"`
	HistDays int           `yaml:"history_days"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	File   string `yaml:"file"`
	Format string `yaml:"format"` // console or json
}

// AssistantConfig configures the optional LLM assistant.
type AssistantConfig struct {
	Model    string        `yaml:"model"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// Default returns the configuration used when no file overrides it.
func Default() *Config {
	return &Config{
		PortfolioDir:  "portfolio",
		PortfolioFile: "stockPortfolio.json",
		HistoricalDir: "historical",
		Market: MarketConfig{
			BaseURL:        "https://query1.finance.yahoo.com",
			TickInterval:   10 * time.Second,
			Timeout:        10 * time.Second,
			RequestsPerSec: 5,
			Concurrency:    8,
			DiskCache:      true,
		},
		Historical: HistoricalConfig{
			Period:         "2y",
			Interval:       "1d",
			BulkPeriod:     "130d",
			Mode:           "background",
			UpdateInterval: 300 * time.Second,
			StaleThreshold: time.Hour,
			ProblemEvery:   5,
			Retries:        3,
			RetryDelay:     500 * time.Millisecond,
		},
		Currency: CurrencyConfig{
			RateURLs: []string{
				"https://api.exchangerate-api.com/v4/latest/SEK",
				"https://api.fixer.io/latest?base=SEK",
			},
			OnlineLookup: true,
		},
		Cache: CacheConfig{
			PricesTTL:     120 * time.Second,
			PriceThrottle: 500 * time.Millisecond,
		},
		Correlate: CorrelateConfig{Period: "6mo", Method: "pearson"},
		Shorts: ShortsConfig{
			CacheTTL:     6 * time.Hour,
			MaxAge:       24 * time.Hour,
			HighInterest: 5.0,
			Schedule:     "0 0 5 * * *",
		},
		Funds: FundsConfig{
			BaseURL:  "https://www.avanza.se",
			Timeout:  10 * time.Second,
			NAVTTL:   5 * time.Minute,
			InfoTTL:  time.Hour,
			HistDays: 375,
		},
		Log:        LogConfig{Level: "info", File: "yspy.log", Format: "console"},
		Assistant:  AssistantConfig{Model: "gemini-2.5-pro", CacheTTL: time.Hour},
		PriceScale: map[string]float64{"HG=F": 2204.62},
	}
}

// Load reads the optional YAML file at path on top of the defaults.
// A .env file next to the working directory is loaded first so that ${VAR} references
// and YSPY_* overrides can come from it.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// no file, defaults only
		case err != nil:
			return nil, fmt.Errorf("read config file: %w", err)
		default:
			expanded := os.ExpandEnv(string(data))
			if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
				return nil, fmt.Errorf("parse config yaml: %w", err)
			}
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("YSPY_PORTFOLIO_DIR"); v != "" {
		c.PortfolioDir = v
	}
	if v := os.Getenv("YSPY_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("YSPY_SHORTS_LOCATION"); v != "" {
		c.Shorts.Location = v
	}
	if v := os.Getenv("YSPY_HISTORICAL_MODE"); v != "" {
		c.Historical.Mode = v
	}
	if v := os.Getenv("YSPY_TICK_SECONDS"); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil && n > 0 {
			c.Market.TickInterval = time.Duration(n * float64(time.Second))
		}
	}
}

// applyDefaults fills zero values left by a partial YAML file.
func (c *Config) applyDefaults() {
	d := Default()
	if c.PortfolioDir == "" {
		c.PortfolioDir = d.PortfolioDir
	}
	if c.PortfolioFile == "" {
		c.PortfolioFile = d.PortfolioFile
	}
	if c.HistoricalDir == "" {
		c.HistoricalDir = d.HistoricalDir
	}
	if c.Market.BaseURL == "" {
		c.Market.BaseURL = d.Market.BaseURL
	}
	if c.Market.Concurrency <= 0 {
		c.Market.Concurrency = d.Market.Concurrency
	}
	if c.Market.RequestsPerSec <= 0 {
		c.Market.RequestsPerSec = d.Market.RequestsPerSec
	}
	if c.Historical.Retries <= 0 {
		c.Historical.Retries = d.Historical.Retries
	}
	if c.Historical.ProblemEvery <= 0 {
		c.Historical.ProblemEvery = d.Historical.ProblemEvery
	}
	if c.Historical.Period == "" {
		c.Historical.Period = d.Historical.Period
	}
	if c.Historical.Interval == "" {
		c.Historical.Interval = d.Historical.Interval
	}
	if c.Historical.BulkPeriod == "" {
		c.Historical.BulkPeriod = d.Historical.BulkPeriod
	}
	if len(c.Currency.RateURLs) == 0 {
		c.Currency.RateURLs = d.Currency.RateURLs
	}
	if c.Correlate.Method == "" {
		c.Correlate.Method = d.Correlate.Method
	}
	if c.Correlate.Period == "" {
		c.Correlate.Period = d.Correlate.Period
	}
	if c.Funds.BaseURL == "" {
		c.Funds.BaseURL = d.Funds.BaseURL
	}
	if c.Funds.HistDays <= 0 {
		c.Funds.HistDays = d.Funds.HistDays
	}
	if c.Log.File == "" {
		c.Log.File = d.Log.File
	}
	if c.PriceScale == nil {
		c.PriceScale = map[string]float64{}
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Market.TickInterval <= 0 {
		return fmt.Errorf("market.tick_interval must be positive, got %v", c.Market.TickInterval)
	}
	if c.Market.Timeout <= 0 {
		return fmt.Errorf("market.timeout must be positive, got %v", c.Market.Timeout)
	}
	if c.Historical.UpdateInterval <= 0 {
		return fmt.Errorf("historical.update_interval must be positive, got %v", c.Historical.UpdateInterval)
	}
	if c.Historical.StaleThreshold <= 0 {
		return fmt.Errorf("historical.stale_threshold must be positive, got %v", c.Historical.StaleThreshold)
	}
	switch c.Historical.Mode {
	case "eager", "background", "skip":
	default:
		return fmt.Errorf("historical.mode must be eager, background or skip, got %q", c.Historical.Mode)
	}
	switch c.Correlate.Method {
	case "pearson", "spearman":
	default:
		return fmt.Errorf("correlation.method must be pearson or spearman, got %q", c.Correlate.Method)
	}
	return nil
}

// PortfolioPath returns the path of the portfolio (name to ticker) file.
func (c *Config) PortfolioPath() string { return filepath.Join(c.PortfolioDir, c.PortfolioFile) }

// HistoricalPath returns the directory of the historical CSV cache.
func (c *Config) HistoricalPath() string { return filepath.Join(c.PortfolioDir, c.HistoricalDir) }

// LogPath returns the log file path. Relative names live in the portfolio directory.
func (c *Config) LogPath() string {
	if filepath.IsAbs(c.Log.File) {
		return c.Log.File
	}
	return filepath.Join(c.PortfolioDir, c.Log.File)
}

// Scale returns the price scale factor for ticker, 1 when none is configured.
func (c *Config) Scale(ticker string) float64 {
	if s, ok := c.PriceScale[ticker]; ok && s != 0 {
		return s
	}
	return 1
}
