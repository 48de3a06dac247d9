package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

type Config struct {
	Database DatabaseConfig `toml:"database"`
	Server   ServerConfig   `toml:"server"`
	Logging  LoggingConfig  `toml:"logging"`
	Summary  SummaryConfig  `toml:"summary"`
	TUI      TUIConfig      `toml:"tui"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type ServerConfig struct {
	HTTPBind     string `toml:"http_bind"`
	APIEndpoint  string `toml:"api_endpoint"`
	MCPEndpoint  string `toml:"mcp_endpoint"`
	LiveEndpoint string `toml:"live_endpoint"`
}

type LoggingConfig struct {
	Level   string        `toml:"level"`
	DevFile DevFileConfig `toml:"dev_file"`
}

type DevFileConfig struct {
	Enabled    bool   `toml:"enabled"`
	Dir        string `toml:"dir"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

type SummaryConfig struct {
	IncludeOngoing  bool   `toml:"include_ongoing"`
	DefaultLookback string `toml:"default_lookback"`
	WindowEnd       string `toml:"window_end"` // end_of_day | now
}

type TUIConfig struct {
	RefreshInterval string `toml:"refresh_interval"`
}

func Default(dbPath string) Config {
	return Config{
		Database: DatabaseConfig{
			Path: dbPath,
		},
		Server: ServerConfig{
			HTTPBind:     "127.0.0.1:8080",
			APIEndpoint:  "/api/v1",
			MCPEndpoint:  "/mcp",
			LiveEndpoint: "/live",
		},
		Logging: LoggingConfig{
			Level: "info",
			DevFile: DevFileConfig{
				Enabled:    true,
				Dir:        ".stamp/log",
				MaxSizeMB:  10,
				MaxBackups: 3,
				MaxAgeDays: 14,
			},
		},
		Summary: SummaryConfig{
			IncludeOngoing:  true,
			DefaultLookback: "168h",
			WindowEnd:       "end_of_day",
		},
		TUI: TUIConfig{
			RefreshInterval: "1s",
		},
	}
}

func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}
	if strings.TrimSpace(cfg.Database.Path) == "" {
		cfg.Database.Path = defaults.Database.Path
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database path is required")
	}

	if strings.TrimSpace(c.Server.HTTPBind) == "" {
		return errors.New("server.http_bind is required")
	}
	for name, endpoint := range map[string]string{
		"api_endpoint":  c.Server.APIEndpoint,
		"mcp_endpoint":  c.Server.MCPEndpoint,
		"live_endpoint": c.Server.LiveEndpoint,
	} {
		endpoint = strings.TrimSpace(endpoint)
		if endpoint != "" && !strings.HasPrefix(endpoint, "/") {
			return fmt.Errorf("server.%s must start with '/': %q", name, endpoint)
		}
	}

	switch strings.TrimSpace(strings.ToLower(c.Logging.Level)) {
	case "", "debug", "info", "warn", "error", "fatal":
	default:
		return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
	}
	if c.Logging.DevFile.MaxSizeMB < 0 || c.Logging.DevFile.MaxBackups < 0 || c.Logging.DevFile.MaxAgeDays < 0 {
		return errors.New("logging.dev_file limits must be >= 0")
	}

	if _, err := c.Summary.Lookback(); err != nil {
		return err
	}
	switch strings.TrimSpace(c.Summary.WindowEnd) {
	case "", "end_of_day", "now":
	default:
		return fmt.Errorf("invalid summary.window_end: %q", c.Summary.WindowEnd)
	}

	if _, err := c.TUI.Refresh(); err != nil {
		return err
	}
	return nil
}

// Lookback parses default_lookback. Empty means seven days.
func (s SummaryConfig) Lookback() (time.Duration, error) {
	raw := strings.TrimSpace(s.DefaultLookback)
	if raw == "" {
		return 7 * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid summary.default_lookback: %q", s.DefaultLookback)
	}
	return d, nil
}

// Refresh parses refresh_interval. Empty means one second.
func (t TUIConfig) Refresh() (time.Duration, error) {
	raw := strings.TrimSpace(t.RefreshInterval)
	if raw == "" {
		return time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 100*time.Millisecond {
		return 0, fmt.Errorf("invalid tui.refresh_interval: %q", t.RefreshInterval)
	}
	return d, nil
}

func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
