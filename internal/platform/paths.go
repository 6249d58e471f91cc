package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// DefaultAppName names the config and data directories when no override is set.
const DefaultAppName = "tempo"

// Environment variables consulted during path resolution.
const (
	EnvConfigPath = "TEMPO_CONFIG"
	EnvDBPath     = "TEMPO_DB_PATH"
	EnvDevMode    = "TEMPO_DEV_MODE"
	EnvAppName    = "TEMPO_APP_NAME"
)

// Paths holds the resolved config file, data directory, and sqlite database locations.
type Paths struct {
	ConfigPath string
	DataDir    string
	DBPath     string
	// DBFromEnv is set when DBPath came from TEMPO_DB_PATH.
	DBFromEnv bool
}

// Options defines optional settings for configuration.
type Options struct {
	AppName string
	DevMode bool
}

// LookupFunc reads one environment variable.
type LookupFunc func(string) string

// OptionsFromEnv derives app name and dev mode from the environment.
// devDefault applies when TEMPO_DEV_MODE is unset or unparseable.
func OptionsFromEnv(lookup LookupFunc, devDefault bool) Options {
	if lookup == nil {
		lookup = os.Getenv
	}
	opts := Options{AppName: DefaultAppName, DevMode: devDefault}
	if v := strings.TrimSpace(lookup(EnvAppName)); v != "" {
		opts.AppName = v
	}
	if v, err := strconv.ParseBool(strings.TrimSpace(lookup(EnvDevMode))); err == nil {
		opts.DevMode = v
	}
	return opts
}

// WithEnv applies TEMPO_CONFIG and TEMPO_DB_PATH on top of resolved defaults.
func (p Paths) WithEnv(lookup LookupFunc) Paths {
	if lookup == nil {
		lookup = os.Getenv
	}
	if v := strings.TrimSpace(lookup(EnvConfigPath)); v != "" {
		p.ConfigPath = v
	}
	if v := strings.TrimSpace(lookup(EnvDBPath)); v != "" {
		p.DBPath = v
		p.DBFromEnv = true
	}
	return p
}

// DefaultPaths returns default paths.
func DefaultPaths() (Paths, error) {
	return DefaultPathsWithOptions(Options{AppName: DefaultAppName})
}

// DefaultPathsWithOptions returns default paths with options.
func DefaultPathsWithOptions(opts Options) (Paths, error) {
	appName := strings.TrimSpace(opts.AppName)
	if appName == "" {
		appName = DefaultAppName
	}
	if opts.DevMode {
		appName += "-dev"
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		return Paths{}, fmt.Errorf("user config dir: %w", err)
	}
	dataDir := configDir
	if runtime.GOOS == "linux" {
		home, homeErr := os.UserHomeDir()
		if homeErr != nil {
			return Paths{}, fmt.Errorf("user home dir: %w", homeErr)
		}
		dataDir = filepath.Join(home, ".local", "share")
	}
	if runtime.GOOS == "windows" {
		if v := strings.TrimSpace(os.Getenv("LOCALAPPDATA")); v != "" {
			dataDir = v
		}
	}

	env := map[string]string{
		"XDG_CONFIG_HOME": os.Getenv("XDG_CONFIG_HOME"),
		"XDG_DATA_HOME":   os.Getenv("XDG_DATA_HOME"),
		"APPDATA":         os.Getenv("APPDATA"),
		"LOCALAPPDATA":    os.Getenv("LOCALAPPDATA"),
	}
	return PathsFor(runtime.GOOS, env, configDir, dataDir, appName)
}

// PathsFor resolves paths for one platform from explicit base dirs and env values.
func PathsFor(goos string, env map[string]string, userConfigDir, userDataDir, appName string) (Paths, error) {
	if userConfigDir == "" || userDataDir == "" {
		return Paths{}, fmt.Errorf("empty base dirs")
	}
	appName = strings.TrimSpace(appName)
	if appName == "" {
		return Paths{}, fmt.Errorf("empty app name")
	}

	configBase := userConfigDir
	dataBase := userDataDir

	switch goos {
	case "linux":
		if v := env["XDG_CONFIG_HOME"]; v != "" {
			configBase = v
		}
		if v := env["XDG_DATA_HOME"]; v != "" {
			dataBase = v
		}
	case "windows":
		if v := env["APPDATA"]; v != "" {
			configBase = v
		}
		if v := env["LOCALAPPDATA"]; v != "" {
			dataBase = v
		}
	case "darwin":
		// Keep os.UserConfigDir/UserCacheDir defaults for macOS.
	default:
		// Fallback for other platforms.
	}

	appConfigDir := filepath.Join(configBase, appName)
	appDataDir := filepath.Join(dataBase, appName)
	dbName := appName + ".db"
	return Paths{
		ConfigPath: filepath.Join(appConfigDir, "config.toml"),
		DataDir:    appDataDir,
		DBPath:     filepath.Join(appDataDir, dbName),
	}, nil
}
