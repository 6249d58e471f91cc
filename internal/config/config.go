package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

type DeleteMode string

const (
	DeleteModeArchive DeleteMode = "archive"
	DeleteModeHard    DeleteMode = "hard"
)

var (
	validLogLevels       = []string{"debug", "info", "warn", "error"}
	validDependencyTypes = []string{"FS", "SS", "FF", "SF"}
)

// maxExecutionWindowDays caps the default read window at roughly one year.
const maxExecutionWindowDays = 366

type Config struct {
	Database DatabaseConfig `toml:"database"`
	Delete   DeleteConfig   `toml:"delete"`
	Logging  LoggingConfig  `toml:"logging"`
	Server   ServerConfig   `toml:"server"`
	Engine   EngineConfig   `toml:"engine"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type DeleteConfig struct {
	DefaultMode DeleteMode `toml:"default_mode"`
}

// LoggingConfig controls the runtime log sinks.
type LoggingConfig struct {
	Level   string        `toml:"level"`
	DevFile DevFileConfig `toml:"dev_file"`
}

// DevFileConfig controls the workspace-local logfmt sink used in dev mode.
type DevFileConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

// ServerConfig holds `tempo serve` endpoint defaults.
type ServerConfig struct {
	HTTPBind    string `toml:"http_bind"`
	APIEndpoint string `toml:"api_endpoint"`
	MCPEndpoint string `toml:"mcp_endpoint"`
}

// EngineConfig holds analysis and dependency defaults.
type EngineConfig struct {
	DefaultDependencyType string `toml:"default_dependency_type"`
	ExecutionWindowDays   int    `toml:"execution_window_days"`
}

func Default(dbPath string) Config {
	return Config{
		Database: DatabaseConfig{
			Path: dbPath,
		},
		Delete: DeleteConfig{
			DefaultMode: DeleteModeArchive,
		},
		Logging: LoggingConfig{
			Level: "info",
			DevFile: DevFileConfig{
				Enabled: true,
				Dir:     ".tempo/log",
			},
		},
		Server: ServerConfig{
			HTTPBind:    "127.0.0.1:8080",
			APIEndpoint: "/api/v1",
			MCPEndpoint: "/mcp",
		},
		Engine: EngineConfig{
			DefaultDependencyType: "FS",
			ExecutionWindowDays:   7,
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
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// normalize canonicalizes case-insensitive enum fields after decoding.
func (c *Config) normalize() {
	c.Database.Path = strings.TrimSpace(c.Database.Path)
	c.Delete.DefaultMode = DeleteMode(strings.TrimSpace(strings.ToLower(string(c.Delete.DefaultMode))))
	c.Logging.Level = strings.TrimSpace(strings.ToLower(c.Logging.Level))
	c.Engine.DefaultDependencyType = strings.TrimSpace(strings.ToUpper(c.Engine.DefaultDependencyType))
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database path is required")
	}

	switch c.Delete.DefaultMode {
	case DeleteModeArchive, DeleteModeHard:
	default:
		return fmt.Errorf("invalid delete.default_mode: %q", c.Delete.DefaultMode)
	}

	if !slices.Contains(validLogLevels, c.Logging.Level) {
		return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
	}

	api := endpointKey(c.Server.APIEndpoint)
	if api != "" && api == endpointKey(c.Server.MCPEndpoint) {
		return fmt.Errorf("server.api_endpoint and server.mcp_endpoint must differ: %q", c.Server.APIEndpoint)
	}

	if !slices.Contains(validDependencyTypes, c.Engine.DefaultDependencyType) {
		return fmt.Errorf("invalid engine.default_dependency_type: %q", c.Engine.DefaultDependencyType)
	}
	if c.Engine.ExecutionWindowDays < 1 || c.Engine.ExecutionWindowDays > maxExecutionWindowDays {
		return fmt.Errorf("engine.execution_window_days must be between 1 and %d", maxExecutionWindowDays)
	}

	return nil
}

// ExecutionWindow returns the default execution-window length.
func (c Config) ExecutionWindow() time.Duration {
	return time.Duration(c.Engine.ExecutionWindowDays) * 24 * time.Hour
}

// endpointKey reduces an endpoint path to its comparable form.
func endpointKey(path string) string {
	return strings.Trim(strings.TrimSpace(path), "/")
}

func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// WriteDefault writes cfg as TOML to path unless a file already exists there.
// It reports whether a file was written.
func WriteDefault(path string, cfg Config) (bool, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return false, errors.New("config path is required")
	}
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("stat config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return false, err
	}
	encoded, err := toml.Marshal(cfg)
	if err != nil {
		return false, fmt.Errorf("encode toml: %w", err)
	}
	if err := EnsureConfigDir(path); err != nil {
		return false, fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return false, fmt.Errorf("write config: %w", err)
	}
	return true, nil
}
