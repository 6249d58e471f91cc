package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/fang"
	"github.com/google/uuid"
	serveradapter "github.com/hylla/tempo/internal/adapters/server"
	servercommon "github.com/hylla/tempo/internal/adapters/server/common"
	"github.com/hylla/tempo/internal/adapters/storage/sqlite"
	"github.com/hylla/tempo/internal/app"
	"github.com/hylla/tempo/internal/config"
	"github.com/hylla/tempo/internal/domain"
	"github.com/hylla/tempo/internal/platform"
	"github.com/spf13/cobra"
)

// version stores a package-level helper value.
var version = "dev"

// brokerBuffer sizes each live change subscriber's queue.
const brokerBuffer = 64

// serveCommandRunner starts the HTTP+MCP serve flow.
var serveCommandRunner = func(ctx context.Context, cfg serveradapter.Config, deps serveradapter.Dependencies) error {
	return serveradapter.Run(ctx, cfg, deps)
}

// main handles main.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// run runs the requested command flow.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	root := newRootCommand(&cli{stdout: stdout, stderr: stderr})
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return fang.Execute(ctx, root,
		fang.WithVersion(version),
		fang.WithoutManpage(),
		fang.WithoutCompletions(),
	)
}

// cli holds global flag state shared by every subcommand.
type cli struct {
	stdout     io.Writer
	stderr     io.Writer
	configPath string
	dbPath     string
	appName    string
	actor      string
	devMode    bool
	quiet      bool
	jsonOut    bool
}

// newRootCommand builds the command tree.
func newRootCommand(c *cli) *cobra.Command {
	opts := platform.OptionsFromEnv(os.Getenv, version == "dev")

	root := &cobra.Command{
		Use:           "tempo",
		Short:         "Schedule-aware work tracker with dependency analysis",
		Long:          "tempo tracks projects, work items, precedence edges, and time blocks, and derives\nblocked, slack, and rollup signals from them.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "path to config TOML")
	flags.StringVar(&c.dbPath, "db", "", "path to sqlite database")
	flags.StringVar(&c.appName, "app", opts.AppName, "application name for config/data path resolution")
	flags.BoolVar(&c.devMode, "dev", opts.DevMode, "use dev mode paths (<app>-dev)")
	flags.StringVar(&c.actor, "actor", "", "actor id recorded on mutations")
	flags.BoolVar(&c.quiet, "quiet", false, "suppress console logs")
	flags.BoolVar(&c.jsonOut, "json", false, "print machine-readable JSON")

	root.AddCommand(
		newVersionCommand(c),
		newPathsCommand(c),
		newConfigCommand(c),
		newServeCommand(c),
		newProjectCommand(c),
		newItemCommand(c),
		newDependencyCommand(c),
		newBlockCommand(c),
		newTimeCommand(c),
		newBlockerCommand(c),
		newViewCommand(c),
		newReportCommand(c),
		newEventsCommand(c),
		newBatchCommand(c),
		newExportCommand(c),
		newImportCommand(c),
	)
	return root
}

// newVersionCommand prints the build version.
func newVersionCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the tempo version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(c.stdout, "tempo %s\n", version)
			return err
		},
	}
}

// newPathsCommand prints resolved config and data paths.
func newPathsCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print resolved config and data paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			paths, err := c.resolvePaths()
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(c.stdout, "app: %s\n", c.appName)
			_, _ = fmt.Fprintf(c.stdout, "dev_mode: %t\n", c.devMode)
			_, _ = fmt.Fprintf(c.stdout, "config: %s\n", paths.ConfigPath)
			_, _ = fmt.Fprintf(c.stdout, "data_dir: %s\n", paths.DataDir)
			_, _ = fmt.Fprintf(c.stdout, "db: %s\n", paths.DBPath)
			return nil
		},
	}
}

// newConfigCommand groups config file helpers.
func newConfigCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the tempo config file",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default config file when none exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			paths, err := c.resolvePaths()
			if err != nil {
				return err
			}
			wrote, err := config.WriteDefault(paths.ConfigPath, config.Default(paths.DBPath))
			if err != nil {
				return fmt.Errorf("write default config: %w", err)
			}
			if wrote {
				_, _ = fmt.Fprintf(c.stdout, "wrote %s\n", paths.ConfigPath)
				return nil
			}
			_, _ = fmt.Fprintf(c.stdout, "kept existing %s\n", paths.ConfigPath)
			return nil
		},
	})
	return cmd
}

// resolvePaths applies flag, environment, and platform defaults in that order.
func (c *cli) resolvePaths() (platform.Paths, error) {
	paths, err := platform.DefaultPathsWithOptions(platform.Options{
		AppName: c.appName,
		DevMode: c.devMode,
	})
	if err != nil {
		return platform.Paths{}, err
	}
	paths = paths.WithEnv(os.Getenv)
	if v := strings.TrimSpace(c.configPath); v != "" {
		paths.ConfigPath = v
	}
	if v := strings.TrimSpace(c.dbPath); v != "" {
		paths.DBPath = v
		paths.DBFromEnv = true
	}
	return paths, nil
}

// session is one opened runtime: config, logger, storage, and service.
type session struct {
	cfg     config.Config
	logger  *runtimeLogger
	repo    *sqlite.Repository
	broker  *app.Broker
	svc     *app.Service
	adapter *servercommon.AppServiceAdapter
}

// open resolves config, starts logging, and opens the sqlite repository.
func (c *cli) open(command string) (*session, error) {
	paths, err := c.resolvePaths()
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(paths.ConfigPath, config.Default(paths.DBPath))
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", paths.ConfigPath, err)
	}
	if paths.DBFromEnv {
		cfg.Database.Path = paths.DBPath
	}

	logger, err := newRuntimeLogger(c.stderr, c.appName, c.devMode, cfg.Logging, time.Now)
	if err != nil {
		return nil, fmt.Errorf("configure runtime logger: %w", err)
	}
	if c.quiet {
		logger.SetConsoleEnabled(false)
	}
	logger.Debug("startup configuration resolved", "app", c.appName, "dev_mode", c.devMode, "command", command)
	logger.Debug("configuration loaded", "config_path", paths.ConfigPath, "db_path", cfg.Database.Path, "log_level", cfg.Logging.Level)
	if devPath := logger.DevLogPath(); devPath != "" {
		logger.Debug("dev file logging enabled", "path", devPath)
	}

	repo, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		logger.Error("sqlite open failed", "db_path", cfg.Database.Path, "err", err)
		_ = logger.Close()
		return nil, fmt.Errorf("open sqlite repository: %w", err)
	}
	logger.Debug("sqlite repository ready", "db_path", cfg.Database.Path, "migrations", "ensured")

	broker := app.NewBroker(brokerBuffer)
	svc := app.NewService(repo, uuid.NewString, nil, app.ServiceConfig{
		DefaultDeleteMode:     app.DeleteMode(cfg.Delete.DefaultMode),
		DefaultDependencyType: domain.DependencyType(cfg.Engine.DefaultDependencyType),
		ExecutionWindow:       cfg.ExecutionWindow(),
		Logger:                logger,
		Publisher:             broker,
	})
	return &session{
		cfg:     cfg,
		logger:  logger,
		repo:    repo,
		broker:  broker,
		svc:     svc,
		adapter: servercommon.NewAppServiceAdapter(svc),
	}, nil
}

// Close releases the repository and log sinks.
func (s *session) Close() {
	if err := s.repo.Close(); err != nil {
		s.logger.Warn("sqlite close failed", "db_path", s.cfg.Database.Path, "err", err)
	}
	if err := s.logger.Close(); err != nil && s.logger.shouldLogToSink(s.logger.consoleSink) {
		_, _ = fmt.Fprintf(s.logger.consoleWriter, "warning: close runtime log sink: %v\n", err)
	}
}

// withSession runs one command flow against an opened session.
func (c *cli) withSession(cmd *cobra.Command, name string, fn func(context.Context, *session) error) error {
	s, err := c.open(name)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if actor := strings.TrimSpace(c.actor); actor != "" {
		ctx = app.WithMutationActor(ctx, app.MutationActor{ActorID: actor})
	}

	s.logger.Debug("command flow start", "command", name)
	if err := fn(ctx, s); err != nil {
		s.logger.Error("command flow failed", "command", name, "err", err)
		return fmt.Errorf("run %s command: %w", name, err)
	}
	s.logger.Debug("command flow complete", "command", name)
	return nil
}
