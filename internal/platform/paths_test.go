package platform

import (
	"path/filepath"
	"testing"
)

// TestPathsForLinuxWithXDG verifies behavior for the covered scenario.
func TestPathsForLinuxWithXDG(t *testing.T) {
	p, err := PathsFor("linux", map[string]string{
		"XDG_CONFIG_HOME": "/xdg/config",
		"XDG_DATA_HOME":   "/xdg/data",
	}, "/fallback/config", "/fallback/data", "tempo")
	if err != nil {
		t.Fatalf("PathsFor() error = %v", err)
	}
	wantConfig := filepath.Join("/xdg/config", "tempo", "config.toml")
	wantDB := filepath.Join("/xdg/data", "tempo", "tempo.db")
	if p.ConfigPath != wantConfig {
		t.Fatalf("unexpected config path %q", p.ConfigPath)
	}
	if p.DBPath != wantDB {
		t.Fatalf("unexpected db path %q", p.DBPath)
	}
}

// TestPathsForWindowsUsesAppData verifies behavior for the covered scenario.
func TestPathsForWindowsUsesAppData(t *testing.T) {
	p, err := PathsFor("windows", map[string]string{
		"APPDATA":      `C:\Users\me\AppData\Roaming`,
		"LOCALAPPDATA": `C:\Users\me\AppData\Local`,
	}, `C:\fallback\config`, `C:\fallback\data`, "tempo")
	if err != nil {
		t.Fatalf("PathsFor() error = %v", err)
	}

	wantConfig := filepath.Join(`C:\Users\me\AppData\Roaming`, "tempo", "config.toml")
	wantDB := filepath.Join(`C:\Users\me\AppData\Local`, "tempo", "tempo.db")
	if p.ConfigPath != wantConfig {
		t.Fatalf("unexpected config path %q", p.ConfigPath)
	}
	if p.DBPath != wantDB {
		t.Fatalf("unexpected db path %q", p.DBPath)
	}
}

// TestPathsForEmptyDirsFails verifies behavior for the covered scenario.
func TestPathsForEmptyDirsFails(t *testing.T) {
	_, err := PathsFor("darwin", nil, "", "/tmp/data", "tempo")
	if err == nil {
		t.Fatal("expected error for empty dirs")
	}
}

// TestPathsForDarwinFallback verifies behavior for the covered scenario.
func TestPathsForDarwinFallback(t *testing.T) {
	p, err := PathsFor("darwin", map[string]string{
		"XDG_CONFIG_HOME": "/ignored",
		"XDG_DATA_HOME":   "/ignored",
	}, "/Users/me/Library/Application Support", "/Users/me/Library/Application Support", "tempo")
	if err != nil {
		t.Fatalf("PathsFor() error = %v", err)
	}
	wantConfig := filepath.Join("/Users/me/Library/Application Support", "tempo", "config.toml")
	wantDB := filepath.Join("/Users/me/Library/Application Support", "tempo", "tempo.db")
	if p.ConfigPath != wantConfig {
		t.Fatalf("unexpected config path %q", p.ConfigPath)
	}
	if p.DBPath != wantDB {
		t.Fatalf("unexpected db path %q", p.DBPath)
	}
}

// TestPathsForUnknownFallback verifies behavior for the covered scenario.
func TestPathsForUnknownFallback(t *testing.T) {
	p, err := PathsFor("freebsd", map[string]string{}, "/cfg", "/data", "tempo")
	if err != nil {
		t.Fatalf("PathsFor() error = %v", err)
	}
	wantConfig := filepath.Join("/cfg", "tempo", "config.toml")
	wantData := filepath.Join("/data", "tempo")
	if p.ConfigPath != wantConfig {
		t.Fatalf("unexpected config path %q", p.ConfigPath)
	}
	if p.DataDir != wantData {
		t.Fatalf("unexpected data dir %q", p.DataDir)
	}
}

// TestPathsForLinuxFallbackWithoutXDG verifies behavior for the covered scenario.
func TestPathsForLinuxFallbackWithoutXDG(t *testing.T) {
	p, err := PathsFor("linux", map[string]string{}, "/home/me/.config", "/home/me/.local/share", "tempo")
	if err != nil {
		t.Fatalf("PathsFor() error = %v", err)
	}
	wantConfig := filepath.Join("/home/me/.config", "tempo", "config.toml")
	wantDB := filepath.Join("/home/me/.local/share", "tempo", "tempo.db")
	if p.ConfigPath != wantConfig {
		t.Fatalf("unexpected config path %q", p.ConfigPath)
	}
	if p.DBPath != wantDB {
		t.Fatalf("unexpected db path %q", p.DBPath)
	}
}

// TestDefaultPathsSmoke verifies behavior for the covered scenario.
func TestDefaultPathsSmoke(t *testing.T) {
	p, err := DefaultPaths()
	if err != nil {
		t.Fatalf("DefaultPaths() error = %v", err)
	}
	if p.ConfigPath == "" || p.DBPath == "" || p.DataDir == "" {
		t.Fatalf("expected non-empty paths, got %#v", p)
	}
}

// TestDefaultPathsWithOptionsDevMode verifies behavior for the covered scenario.
func TestDefaultPathsWithOptionsDevMode(t *testing.T) {
	p, err := DefaultPathsWithOptions(Options{AppName: "tempo", DevMode: true})
	if err != nil {
		t.Fatalf("DefaultPathsWithOptions() error = %v", err)
	}
	if filepath.Base(filepath.Dir(p.ConfigPath)) != "tempo-dev" {
		t.Fatalf("expected dev config dir suffix, got %q", p.ConfigPath)
	}
	if filepath.Base(p.DBPath) != "tempo-dev.db" {
		t.Fatalf("expected dev db name, got %q", p.DBPath)
	}
}

// TestOptionsFromEnv verifies app name and dev-mode overrides.
func TestOptionsFromEnv(t *testing.T) {
	env := map[string]string{EnvAppName: " tempo-ci ", EnvDevMode: "false"}
	opts := OptionsFromEnv(func(key string) string { return env[key] }, true)
	if opts.AppName != "tempo-ci" || opts.DevMode {
		t.Fatalf("unexpected options %#v", opts)
	}

	opts = OptionsFromEnv(func(string) string { return "" }, true)
	if opts.AppName != DefaultAppName || !opts.DevMode {
		t.Fatalf("expected defaults, got %#v", opts)
	}

	env = map[string]string{EnvDevMode: "maybe"}
	opts = OptionsFromEnv(func(key string) string { return env[key] }, false)
	if opts.DevMode {
		t.Fatal("expected unparseable dev mode to keep the default")
	}
}

// TestPathsWithEnv verifies config and database overrides.
func TestPathsWithEnv(t *testing.T) {
	base := Paths{ConfigPath: "/cfg/tempo/config.toml", DataDir: "/data/tempo", DBPath: "/data/tempo/tempo.db"}

	same := base.WithEnv(func(string) string { return "" })
	if same != base {
		t.Fatalf("expected unchanged paths, got %#v", same)
	}

	env := map[string]string{EnvConfigPath: "/etc/tempo.toml", EnvDBPath: "/var/lib/tempo.db"}
	got := base.WithEnv(func(key string) string { return env[key] })
	if got.ConfigPath != "/etc/tempo.toml" || got.DBPath != "/var/lib/tempo.db" || !got.DBFromEnv {
		t.Fatalf("unexpected overridden paths %#v", got)
	}
	if got.DataDir != base.DataDir {
		t.Fatalf("expected data dir untouched, got %q", got.DataDir)
	}
}
