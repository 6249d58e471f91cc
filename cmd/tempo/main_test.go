package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	serveradapter "github.com/hylla/tempo/internal/adapters/server"
	"github.com/hylla/tempo/internal/config"
)

// TestMain sets deterministic environment defaults for CLI tests.
func TestMain(m *testing.M) {
	_ = os.Setenv("TEMPO_DEV_MODE", "false")
	os.Exit(m.Run())
}

// cliEnv points one test at an isolated database and config file.
type cliEnv struct {
	dbPath  string
	cfgPath string
}

// newCLIEnv returns isolated paths under a temp dir.
func newCLIEnv(t *testing.T) cliEnv {
	t.Helper()
	tmp := t.TempDir()
	return cliEnv{
		dbPath:  filepath.Join(tmp, "tempo.db"),
		cfgPath: filepath.Join(tmp, "config.toml"),
	}
}

// run executes one CLI invocation and returns stdout.
func (e cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	full := append([]string{"--db", e.dbPath, "--config", e.cfgPath, "--quiet"}, args...)
	err := run(context.Background(), full, &out, io.Discard)
	return out.String(), err
}

// mustRun executes one CLI invocation and fails the test on error.
func (e cliEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, args...)
	if err != nil {
		t.Fatalf("run(%v) error = %v", args, err)
	}
	return out
}

// createdID runs a --json create command and returns the new record id.
func (e cliEnv) createdID(t *testing.T, args ...string) string {
	t.Helper()
	out := e.mustRun(t, append([]string{"--json"}, args...)...)
	var payload struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("decode create output %q: %v", out, err)
	}
	if payload.ID == "" {
		t.Fatalf("expected id in %q", out)
	}
	return payload.ID
}

// fixture holds one seeded project with a design -> build -> ship chain.
type fixture struct {
	projectID string
	design    string
	build     string
	ship      string
}

// seedChain creates a project and three chained items assigned to a non-member.
func seedChain(t *testing.T, e cliEnv) fixture {
	t.Helper()
	f := fixture{projectID: e.createdID(t, "project", "add", "Launch", "--description", "q3 launch")}
	f.design = e.createdID(t, "item", "add", "--project", f.projectID, "--title", "design", "--assignee", "dana", "--estimate", "60")
	f.build = e.createdID(t, "item", "add", "--project", f.projectID, "--title", "build", "--assignee", "dana", "--estimate", "120")
	f.ship = e.createdID(t, "item", "add", "--project", f.projectID, "--title", "ship", "--assignee", "dana", "--estimate", "30")
	e.mustRun(t, "dep", "add", f.build, f.design, "--lag", "30")
	e.mustRun(t, "dep", "add", f.ship, f.build)
	return f
}

// TestRunVersion verifies the version subcommand.
func TestRunVersion(t *testing.T) {
	var out strings.Builder
	if err := run(context.Background(), []string{"version"}, &out, io.Discard); err != nil {
		t.Fatalf("run(version) error = %v", err)
	}
	if !strings.Contains(out.String(), "tempo dev") {
		t.Fatalf("expected version output, got %q", out.String())
	}
}

// TestRunPathsCommand verifies app-name and dev-mode path resolution output.
func TestRunPathsCommand(t *testing.T) {
	var out strings.Builder
	err := run(context.Background(), []string{"--app", "tempox", "--dev", "paths"}, &out, io.Discard)
	if err != nil {
		t.Fatalf("run(paths) error = %v", err)
	}
	output := out.String()
	if !strings.Contains(output, "app: tempox") {
		t.Fatalf("expected app name in paths output, got %q", output)
	}
	if !strings.Contains(output, "dev_mode: true") {
		t.Fatalf("expected dev mode in paths output, got %q", output)
	}
	if !strings.Contains(output, "tempox-dev.db") {
		t.Fatalf("expected dev db name in paths output, got %q", output)
	}
}

// TestRunUnknownCommand verifies unknown subcommands fail.
func TestRunUnknownCommand(t *testing.T) {
	e := newCLIEnv(t)
	if _, err := e.run(t, "frobnicate"); err == nil {
		t.Fatal("expected unknown command error")
	}
}

// TestRunInvalidFlag verifies flag parse failures surface as errors.
func TestRunInvalidFlag(t *testing.T) {
	e := newCLIEnv(t)
	if _, err := e.run(t, "view", "list", "--bogus"); err == nil {
		t.Fatal("expected invalid flag error")
	}
}

// TestRunDependencyFlowAndViews verifies cycle rejection and the analyzed views end to end.
func TestRunDependencyFlowAndViews(t *testing.T) {
	e := newCLIEnv(t)
	f := seedChain(t, e)

	_, err := e.run(t, "dep", "add", f.design, f.ship)
	if err == nil {
		t.Fatal("expected cycle rejection")
	}
	if !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("expected cycle error, got %v", err)
	}
	if _, err := e.run(t, "dep", "add", f.build, f.design); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected duplicate dependency error, got %v", err)
	}

	listOut := e.mustRun(t, "view", "list", "--project", f.projectID)
	for _, title := range []string{"design", "build", "ship"} {
		if !strings.Contains(listOut, title) {
			t.Fatalf("expected %q in list output:\n%s", title, listOut)
		}
	}

	blockedOut := e.mustRun(t, "--json", "view", "blocked", "--project", f.projectID)
	var blocked struct {
		Items []struct {
			ID              string `json:"id"`
			UnmetDependency bool   `json:"unmet_dependency"`
		} `json:"items"`
	}
	if err := json.Unmarshal([]byte(blockedOut), &blocked); err != nil {
		t.Fatalf("decode blocked output: %v", err)
	}
	if len(blocked.Items) != 2 {
		t.Fatalf("expected build and ship blocked, got %#v", blocked.Items)
	}
	for _, item := range blocked.Items {
		if !item.UnmetDependency {
			t.Fatalf("expected unmet dependency on %s", item.ID)
		}
	}

	e.mustRun(t, "item", "status", f.design, "done")
	blockedOut = e.mustRun(t, "--json", "view", "blocked", "--project", f.projectID)
	if err := json.Unmarshal([]byte(blockedOut), &blocked); err != nil {
		t.Fatalf("decode blocked output: %v", err)
	}
	if len(blocked.Items) != 1 || blocked.Items[0].ID != f.ship {
		t.Fatalf("expected only ship blocked after design is done, got %#v", blocked.Items)
	}

	if _, err := e.run(t, "view", "list", "--project", f.projectID, "--assignee", "dana"); err == nil {
		t.Fatal("expected scope exclusivity error")
	}
	userOut := e.mustRun(t, "--json", "view", "list", "--assignee", "dana")
	if strings.Count(userOut, `"assignee_id": "dana"`) != 3 {
		t.Fatalf("expected three items in user scope, got\n%s", userOut)
	}
}

// TestRunItemDetailsAndWindow verifies blocks, time entries, and the execution window.
func TestRunItemDetailsAndWindow(t *testing.T) {
	e := newCLIEnv(t)
	f := seedChain(t, e)

	e.createdID(t, "block", "add", f.design, "--start", "2026-03-02T09:00:00Z", "--minutes", "60")
	e.createdID(t, "block", "add", f.build, "--start", "2026-03-02T10:00:00Z", "--minutes", "120")
	e.createdID(t, "time", "log", f.design, "--minutes", "45", "--started", "2026-03-02T09:00:00Z", "--note", "sketch")
	e.createdID(t, "blocker", "raise", f.build, "waiting on vendor")

	detailsOut := e.mustRun(t, "--json", "view", "item", f.build)
	var details struct {
		Item struct {
			ScheduledMinutes int `json:"scheduled_minutes"`
			BlockedBy        []struct {
				ItemID string `json:"item_id"`
				Status string `json:"status"`
			} `json:"blocked_by"`
		} `json:"item"`
		Blocks   []json.RawMessage `json:"blocks"`
		Blockers []json.RawMessage `json:"blockers"`
	}
	if err := json.Unmarshal([]byte(detailsOut), &details); err != nil {
		t.Fatalf("decode details: %v", err)
	}
	if details.Item.ScheduledMinutes != 120 || len(details.Blocks) != 1 || len(details.Blockers) != 1 {
		t.Fatalf("unexpected details %s", detailsOut)
	}
	// build starts at 10:00, design ends 10:00, lag 30 requires 10:30.
	if len(details.Item.BlockedBy) != 1 || details.Item.BlockedBy[0].ItemID != f.design || details.Item.BlockedBy[0].Status != "violated" {
		t.Fatalf("expected violated FS edge from design, got %#v", details.Item.BlockedBy)
	}

	textOut := e.mustRun(t, "view", "item", f.design)
	if !strings.Contains(textOut, "sketch") {
		t.Fatalf("expected time entry note in details:\n%s", textOut)
	}

	windowOut := e.mustRun(t, "--json", "view", "window", "--project", f.projectID, "--from", "2026-03-02T09:30:00Z", "--to", "2026-03-02T10:30:00Z")
	var window struct {
		Items []struct {
			ID string `json:"id"`
		} `json:"items"`
	}
	if err := json.Unmarshal([]byte(windowOut), &window); err != nil {
		t.Fatalf("decode window: %v", err)
	}
	if len(window.Items) != 2 {
		t.Fatalf("expected design and build in window, got %s", windowOut)
	}

	if _, err := e.run(t, "view", "window", "--project", f.projectID, "--from", "2026-03-02T10:00:00Z", "--to", "2026-03-02T09:00:00Z"); err == nil {
		t.Fatal("expected inverted window error")
	}
	if _, err := e.run(t, "block", "add", f.ship, "--start", "tomorrow", "--minutes", "30"); err == nil {
		t.Fatal("expected malformed start error")
	}
}

// TestRunIntegrityReport verifies the rendered and JSON integrity report.
func TestRunIntegrityReport(t *testing.T) {
	e := newCLIEnv(t)
	f := seedChain(t, e)

	out := e.mustRun(t, "report", "integrity", "--project", f.projectID)
	if !strings.Contains(out, "Integrity report") || !strings.Contains(out, "dana") {
		t.Fatalf("expected rendered report naming the non-member assignee:\n%s", out)
	}

	e.mustRun(t, "project", "member", f.projectID, "dana", "--role", "owner")
	jsonOut := e.mustRun(t, "--json", "report", "integrity", "--project", f.projectID)
	var report struct {
		Counts struct {
			NonMemberAssignees int `json:"non_member_assignees"`
		} `json:"counts"`
	}
	if err := json.Unmarshal([]byte(jsonOut), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Counts.NonMemberAssignees != 0 {
		t.Fatalf("expected clean membership after adding dana, got %s", jsonOut)
	}
}

// TestRunBatchReportsPerOpResults verifies one failing op does not abort its siblings.
func TestRunBatchReportsPerOpResults(t *testing.T) {
	e := newCLIEnv(t)
	f := seedChain(t, e)

	batchPath := filepath.Join(t.TempDir(), "batch.json")
	content := fmt.Sprintf(`{"ops": [
  {"op": "add_dependency", "item_id": %q, "depends_on_id": %q},
  {"op": "add_dependency", "item_id": %q, "depends_on_id": %q},
  {"op": "schedule_block", "item_id": %q, "start_at": "2026-03-03T09:00:00Z", "duration_minutes": 30},
  {"op": "set_status", "item_id": %q, "status": "sideways"}
]}`, f.ship, f.design, f.design, f.ship, f.ship, f.build)
	if err := os.WriteFile(batchPath, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	out := e.mustRun(t, "batch", "--in", batchPath)
	if !strings.Contains(out, "4 ops, 2 failed") {
		t.Fatalf("expected per-op summary, got\n%s", out)
	}
	if !strings.Contains(out, "#1 add_dependency failed dependency_cycle") {
		t.Fatalf("expected cycle failure on op 1, got\n%s", out)
	}
	if !strings.Contains(out, "#3 set_status failed invalid_request") {
		t.Fatalf("expected status failure on op 3, got\n%s", out)
	}
}

// TestRunEventsAttributesActor verifies the change ledger records the CLI actor.
func TestRunEventsAttributesActor(t *testing.T) {
	e := newCLIEnv(t)
	projectID := e.createdID(t, "project", "add", "Ops")
	e.createdID(t, "--actor", "robin", "item", "add", "--project", projectID, "--title", "rotate keys")

	out := e.mustRun(t, "--json", "events", projectID, "--limit", "5")
	var events struct {
		Events []struct {
			Operation string `json:"operation"`
			ActorID   string `json:"actor_id"`
		} `json:"events"`
	}
	if err := json.Unmarshal([]byte(out), &events); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if len(events.Events) == 0 || events.Events[0].ActorID != "robin" {
		t.Fatalf("expected latest event by robin, got %s", out)
	}
}

// TestRunExportImportYAMLRoundTrip verifies snapshots move records between databases.
func TestRunExportImportYAMLRoundTrip(t *testing.T) {
	src := newCLIEnv(t)
	f := seedChain(t, src)

	snapPath := filepath.Join(t.TempDir(), "out", "snapshot.yaml")
	src.mustRun(t, "export", "--out", snapPath)
	content, err := os.ReadFile(snapPath)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(content), "version: tempo.snapshot.v1") {
		t.Fatalf("expected yaml snapshot, got\n%s", content)
	}

	dst := newCLIEnv(t)
	dst.mustRun(t, "import", "--in", snapPath)
	out := dst.mustRun(t, "--json", "view", "list", "--project", f.projectID)
	for _, id := range []string{f.design, f.build, f.ship} {
		if !strings.Contains(out, id) {
			t.Fatalf("expected imported item %s in\n%s", id, out)
		}
	}

	stdoutSnap := src.mustRun(t, "export")
	if !strings.Contains(stdoutSnap, `"version": "tempo.snapshot.v1"`) {
		t.Fatalf("expected json snapshot on stdout, got %q", stdoutSnap)
	}
	if _, err := dst.run(t, "import"); err == nil {
		t.Fatal("expected missing --in error")
	}
	if _, err := dst.run(t, "import", "--in", filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected missing file error")
	}
}

// TestRunServeUsesConfigAndFlags verifies serve wiring without binding a port.
func TestRunServeUsesConfigAndFlags(t *testing.T) {
	orig := serveCommandRunner
	t.Cleanup(func() { serveCommandRunner = orig })

	var (
		gotCfg  serveradapter.Config
		gotDeps serveradapter.Dependencies
	)
	serveCommandRunner = func(_ context.Context, cfg serveradapter.Config, deps serveradapter.Dependencies) error {
		gotCfg = cfg
		gotDeps = deps
		return nil
	}

	e := newCLIEnv(t)
	cfgContent := "[server]\nhttp_bind = \"127.0.0.1:9191\"\napi_endpoint = \"/api/v9\"\n"
	if err := os.WriteFile(e.cfgPath, []byte(cfgContent), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	e.mustRun(t, "serve", "--mcp-endpoint", "/tools")

	if gotCfg.HTTPBind != "127.0.0.1:9191" || gotCfg.APIEndpoint != "/api/v9" || gotCfg.MCPEndpoint != "/tools" {
		t.Fatalf("unexpected serve config %#v", gotCfg)
	}
	if gotCfg.ServerName != "tempo" || gotCfg.ServerVersion != version {
		t.Fatalf("unexpected server identity %#v", gotCfg)
	}
	if gotDeps.Service == nil || gotDeps.Events == nil || gotDeps.Logger == nil {
		t.Fatalf("expected service, events, and logger deps, got %#v", gotDeps)
	}
}

// TestRunConfigAndDBEnvOverrides verifies TEMPO_CONFIG and TEMPO_DB_PATH.
func TestRunConfigAndDBEnvOverrides(t *testing.T) {
	tmp := t.TempDir()
	dbPath := filepath.Join(tmp, "env.db")
	cfgPath := filepath.Join(tmp, "env.toml")
	cfgContent := "[database]\npath = \"/tmp/ignore-me.db\"\n"
	if err := os.WriteFile(cfgPath, []byte(cfgContent), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	t.Setenv("TEMPO_CONFIG", cfgPath)
	t.Setenv("TEMPO_DB_PATH", dbPath)

	err := run(context.Background(), []string{"--quiet", "export", "--out", filepath.Join(tmp, "out.json")}, io.Discard, io.Discard)
	if err != nil {
		t.Fatalf("run(export with env paths) error = %v", err)
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("expected db created at env path, stat error %v", err)
	}
}

// TestRunConfigInitWritesDefaults verifies config init is idempotent.
func TestRunConfigInitWritesDefaults(t *testing.T) {
	e := newCLIEnv(t)
	out := e.mustRun(t, "config", "init")
	if !strings.Contains(out, "wrote") {
		t.Fatalf("expected write message, got %q", out)
	}
	cfg, err := config.Load(e.cfgPath, config.Default("/unused.db"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != e.dbPath {
		t.Fatalf("expected db path %q in written config, got %q", e.dbPath, cfg.Database.Path)
	}
	out = e.mustRun(t, "config", "init")
	if !strings.Contains(out, "kept existing") {
		t.Fatalf("expected keep message, got %q", out)
	}
}

// TestRunRejectsInvalidLoggingLevelFromConfig verifies config validation runs before commands.
func TestRunRejectsInvalidLoggingLevelFromConfig(t *testing.T) {
	e := newCLIEnv(t)
	if err := os.WriteFile(e.cfgPath, []byte("[logging]\nlevel = \"verbose\"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	_, err := e.run(t, "project", "list")
	if err == nil {
		t.Fatal("expected invalid logging level error")
	}
	if !strings.Contains(err.Error(), "invalid logging.level") {
		t.Fatalf("expected logging level validation error, got %v", err)
	}
}

// TestRunDevModeCreatesWorkspaceLogFile verifies the dev logfmt sink lands under the workspace.
func TestRunDevModeCreatesWorkspaceLogFile(t *testing.T) {
	workspace := t.TempDir()
	t.Chdir(workspace)

	dbPath := filepath.Join(workspace, "tempo.db")
	cfgPath := filepath.Join(workspace, "config.toml")
	if err := run(context.Background(), []string{"--dev", "--quiet", "--db", dbPath, "--config", cfgPath, "project", "list"}, io.Discard, io.Discard); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	logDir := filepath.Join(workspace, ".tempo", "log")
	entries, err := os.ReadDir(logDir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	foundLog := false
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".log") {
			content, readErr := os.ReadFile(filepath.Join(logDir, entry.Name()))
			if readErr != nil {
				t.Fatalf("ReadFile() error = %v", readErr)
			}
			if strings.Contains(string(content), "command flow complete") {
				foundLog = true
			}
		}
	}
	if !foundLog {
		t.Fatalf("expected a .log file with command flow entries in %s, got %v", logDir, entries)
	}
}

// TestWorkspaceRootFromUsesNearestMarker verifies marker discovery walks up.
func TestWorkspaceRootFromUsesNearestMarker(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "go.mod"), []byte("module example.com/test\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	nested := filepath.Join(root, "cmd", "tempo")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	got := workspaceRootFrom(nested)
	if filepath.Clean(got) != filepath.Clean(root) {
		t.Fatalf("expected workspace root %q, got %q", root, got)
	}
}

// TestDevLogFilePathUsesDayStamp verifies absolute dirs and file naming.
func TestDevLogFilePathUsesDayStamp(t *testing.T) {
	dir := t.TempDir()
	got, err := devLogFilePath(dir, "tempo/ci", time.Date(2026, 2, 22, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("devLogFilePath() error = %v", err)
	}
	want := filepath.Join(dir, "tempo-ci-20260222.log")
	if got != want {
		t.Fatalf("devLogFilePath() = %q, want %q", got, want)
	}
	if sanitizeLogFileStem("  ") != "tempo" {
		t.Fatal("expected blank app names to fall back to tempo")
	}
}

// TestRuntimeLoggerCanMuteConsoleSink verifies console muting and level filtering.
func TestRuntimeLoggerCanMuteConsoleSink(t *testing.T) {
	var console bytes.Buffer
	cfg := config.Default("/tmp/tempo.db").Logging

	logger, err := newRuntimeLogger(&console, "tempo", false, cfg, func() time.Time {
		return time.Date(2026, 2, 23, 12, 0, 0, 0, time.UTC)
	})
	if err != nil {
		t.Fatalf("newRuntimeLogger() error = %v", err)
	}

	logger.Info("before")
	logger.Debug("hidden")
	logger.SetConsoleEnabled(false)
	logger.Warn("during")
	logger.SetConsoleEnabled(true)
	logger.Error("after")

	out := console.String()
	if !strings.Contains(out, "before") || !strings.Contains(out, "after") {
		t.Fatalf("expected console log to include before and after, got %q", out)
	}
	if strings.Contains(out, "during") {
		t.Fatalf("expected muted console log to omit 'during', got %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Fatalf("expected info level to drop debug output, got %q", out)
	}
}

// TestRuntimeLoggerRejectsUnknownLevel verifies level parsing errors.
func TestRuntimeLoggerRejectsUnknownLevel(t *testing.T) {
	if _, err := newRuntimeLogger(io.Discard, "tempo", false, config.LoggingConfig{Level: "loud"}, nil); err == nil {
		t.Fatal("expected parse error for unknown level")
	}
}
