package infra

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	AppName    = "alpaca-markets-terminal"
	AppVersion = "0.3.0"

	// DefaultUserAgent identifies this client on REST and WebSocket calls.
	DefaultUserAgent = AppName + "/" + AppVersion
)

// Trading modes derived from credentials and the paper flag.
const (
	ModeLive  = "live"
	ModePaper = "paper"
	ModeLocal = "local" // no credentials: offline simulator
)

// Config holds every application setting. Credentials are overridden from
// the environment after the file is parsed; the file should not carry them.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Trading struct {
		// Mode is live, paper or local. Empty derives from credentials:
		// keys present means paper, none means local. Live is never implied.
		Mode string `yaml:"mode"`
	} `yaml:"trading"`

	Alpaca struct {
		KeyID     string `yaml:"key_id"`
		SecretKey string `yaml:"secret_key"`
		Feed      string `yaml:"feed"` // market data feed: iex or sip
	} `yaml:"alpaca"`

	Chart struct {
		Symbols   []string `yaml:"symbols"`
		Timeframe string   `yaml:"timeframe"`
		BarLimit  int      `yaml:"bar_limit"`
	} `yaml:"chart"`

	Stream struct {
		ReconnectDelaySec int `yaml:"reconnect_delay_sec"`
		ConnectTimeoutSec int `yaml:"connect_timeout_sec"`
		ReadTimeoutSec    int `yaml:"read_timeout_sec"`
		PingIntervalSec   int `yaml:"ping_interval_sec"`
		InboxSize         int `yaml:"inbox_size"`
	} `yaml:"stream"`

	Journal struct {
		Enabled          bool `yaml:"enabled"`
		SnapshotInterval int  `yaml:"snapshot_interval"` // events between state snapshots
		SnapshotKeep     int  `yaml:"snapshot_keep"`
	} `yaml:"journal"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // text or json
	} `yaml:"logging"`
}

// LoadConfig reads and parses the config file, then applies environment
// overrides, defaults and validation. An empty path yields a default
// config driven entirely by environment variables.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	}

	overrideWithEnv(&cfg)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = AppName
	}
	if c.App.Version == "" {
		c.App.Version = AppVersion
	}
	if c.Alpaca.Feed == "" {
		c.Alpaca.Feed = "iex"
	}
	if len(c.Chart.Symbols) == 0 {
		c.Chart.Symbols = []string{"AAPL"}
	}
	if c.Chart.Timeframe == "" {
		c.Chart.Timeframe = "1Min"
	}
	if c.Chart.BarLimit <= 0 {
		c.Chart.BarLimit = 100
	}
	if c.Stream.ReconnectDelaySec <= 0 {
		c.Stream.ReconnectDelaySec = 5
	}
	if c.Stream.ConnectTimeoutSec <= 0 {
		c.Stream.ConnectTimeoutSec = 10
	}
	if c.Stream.ReadTimeoutSec <= 0 {
		c.Stream.ReadTimeoutSec = 60
	}
	if c.Stream.PingIntervalSec <= 0 {
		c.Stream.PingIntervalSec = 30
	}
	if c.Stream.InboxSize <= 0 {
		c.Stream.InboxSize = 1024
	}
	if c.Journal.SnapshotInterval <= 0 {
		c.Journal.SnapshotInterval = 500
	}
	if c.Journal.SnapshotKeep <= 0 {
		c.Journal.SnapshotKeep = 3
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks configuration validity. Missing credentials are not an
// error: the terminal degrades to the local simulator.
func (c *Config) Validate() error {
	switch c.Alpaca.Feed {
	case "iex", "sip":
	default:
		return fmt.Errorf("unknown market data feed: %s", c.Alpaca.Feed)
	}

	switch c.Chart.Timeframe {
	case "1Min", "5Min", "15Min", "1Hour", "1Day", "1Week", "1Month":
	default:
		return fmt.Errorf("unknown chart timeframe: %s", c.Chart.Timeframe)
	}

	for _, s := range c.Chart.Symbols {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("empty chart symbol")
		}
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown logging format: %s", c.Logging.Format)
	}

	switch c.Trading.Mode {
	case "", ModeLive, ModePaper, ModeLocal:
	default:
		return fmt.Errorf("unknown trading mode: %s", c.Trading.Mode)
	}

	if (c.Alpaca.KeyID == "") != (c.Alpaca.SecretKey == "") {
		return fmt.Errorf("both APCA_API_KEY_ID and APCA_API_SECRET_KEY must be set, or neither")
	}

	return nil
}

// HasCredentials reports whether broker API keys are configured.
func (c *Config) HasCredentials() bool {
	return c.Alpaca.KeyID != "" && c.Alpaca.SecretKey != ""
}

// Mode resolves the effective trading mode. Without credentials the
// terminal always runs the local simulator, whatever the file says.
func (c *Config) Mode() string {
	if !c.HasCredentials() {
		return ModeLocal
	}
	switch c.Trading.Mode {
	case ModeLive:
		return ModeLive
	case ModeLocal:
		return ModeLocal
	default:
		return ModePaper
	}
}

// APIBaseURL is the trading REST endpoint for the effective mode.
func (c *Config) APIBaseURL() string {
	if c.Mode() == ModeLive {
		return "https://api.alpaca.markets"
	}
	return "https://paper-api.alpaca.markets"
}

// DataBaseURL is the market data REST endpoint (mode-independent).
func (c *Config) DataBaseURL() string {
	return "https://data.alpaca.markets"
}

// TradingStreamURL is the order update stream endpoint.
func (c *Config) TradingStreamURL() string {
	if c.Mode() == ModeLive {
		return "wss://api.alpaca.markets/stream"
	}
	return "wss://paper-api.alpaca.markets/stream"
}

// MarketStreamURL is the market data stream endpoint for the configured feed.
func (c *Config) MarketStreamURL() string {
	return "wss://stream.data.alpaca.markets/v2/" + c.Alpaca.Feed
}

// overrideWithEnv applies environment variables over file values.
// Environment always wins: keys belong in the environment, not on disk.
func overrideWithEnv(cfg *Config) {
	// Security warning if secrets were committed to the file.
	if cfg.Alpaca.KeyID != "" || cfg.Alpaca.SecretKey != "" {
		// fmt instead of slog: the logger is not configured yet.
		fmt.Println("⚠️  SECURITY WARNING: API credentials found in config file.")
		fmt.Println("   Recommendation: use environment variables instead:")
		fmt.Println("   - APCA_API_KEY_ID, APCA_API_SECRET_KEY")
	}

	if key := os.Getenv("APCA_API_KEY_ID"); key != "" {
		cfg.Alpaca.KeyID = key
	}
	if secret := os.Getenv("APCA_API_SECRET_KEY"); secret != "" {
		cfg.Alpaca.SecretKey = secret
	}
	if feed := os.Getenv("ALPACA_DATA_FEED"); feed != "" {
		cfg.Alpaca.Feed = feed
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}
