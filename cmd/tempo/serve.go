package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	serveradapter "github.com/hylla/tempo/internal/adapters/server"
	servercommon "github.com/hylla/tempo/internal/adapters/server/common"
	"github.com/hylla/tempo/internal/app"
	"github.com/spf13/cobra"
)

// newServeCommand starts the HTTP API and MCP transports.
func newServeCommand(c *cli) *cobra.Command {
	var (
		httpBind    string
		apiEndpoint string
		mcpEndpoint string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API, live change stream, and MCP tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withSession(cmd, "serve", func(ctx context.Context, s *session) error {
				cfg := serveradapter.Config{
					HTTPBind:      firstNonEmpty(httpBind, s.cfg.Server.HTTPBind),
					APIEndpoint:   firstNonEmpty(apiEndpoint, s.cfg.Server.APIEndpoint),
					MCPEndpoint:   firstNonEmpty(mcpEndpoint, s.cfg.Server.MCPEndpoint),
					ServerName:    c.appName,
					ServerVersion: version,
				}
				return serveCommandRunner(ctx, cfg, serveradapter.Dependencies{
					Service: s.adapter,
					Events:  servercommon.NewBrokerEventSource(s.broker),
					Logger:  s.logger,
				})
			})
		},
	}
	cmd.Flags().StringVar(&httpBind, "http", "", "listen address; defaults to config")
	cmd.Flags().StringVar(&apiEndpoint, "api-endpoint", "", "HTTP API base path; defaults to config")
	cmd.Flags().StringVar(&mcpEndpoint, "mcp-endpoint", "", "MCP endpoint path; defaults to config")
	return cmd
}

// newBatchCommand applies a JSON batch of independent operations.
func newBatchCommand(c *cli) *cobra.Command {
	var inPath string
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Apply a JSON batch of add_dependency, remove_dependency, schedule_block, and set_status ops",
		Long:  "Reads {\"ops\": [...]} from --in (or stdin with '-'). Each op succeeds or fails on its own.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := readBatchRequest(cmd.InOrStdin(), inPath)
			if err != nil {
				return err
			}
			if strings.TrimSpace(req.Actor) == "" {
				req.Actor = c.actor
			}
			return c.withSession(cmd, "batch", func(ctx context.Context, s *session) error {
				results, err := s.adapter.ApplyBatch(ctx, req)
				if err != nil {
					return err
				}
				failed := 0
				for _, result := range results {
					if !result.OK {
						failed++
					}
				}
				if c.jsonOut {
					return writeJSON(c.stdout, map[string]any{"results": results, "failed": failed})
				}
				for _, result := range results {
					if result.OK {
						_, _ = fmt.Fprintf(c.stdout, "#%d %s ok %s\n", result.Index, result.Op, result.ID)
						continue
					}
					_, _ = fmt.Fprintf(c.stdout, "#%d %s failed %s: %s\n", result.Index, result.Op, result.Error.Code, result.Error.Message)
				}
				_, err = fmt.Fprintf(c.stdout, "%d ops, %d failed\n", len(results), failed)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&inPath, "in", "-", "batch JSON file ('-' for stdin)")
	return cmd
}

// readBatchRequest decodes a batch request from a file or stdin.
func readBatchRequest(stdin io.Reader, path string) (servercommon.BatchRequest, error) {
	var r io.Reader = stdin
	if path = strings.TrimSpace(path); path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return servercommon.BatchRequest{}, fmt.Errorf("open batch file: %w", err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}
	var req servercommon.BatchRequest
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return servercommon.BatchRequest{}, fmt.Errorf("decode batch json: %w", err)
	}
	return req, nil
}

// newExportCommand writes a snapshot of every record.
func newExportCommand(c *cli) *cobra.Command {
	var (
		outPath         string
		format          string
		includeArchived bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a JSON or YAML snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withSession(cmd, "export", func(ctx context.Context, s *session) error {
				snap, err := s.svc.ExportSnapshot(ctx, includeArchived)
				if err != nil {
					return fmt.Errorf("export snapshot: %w", err)
				}
				snapFormat := resolveSnapshotFormat(format, outPath)
				if outPath == "-" {
					return app.EncodeSnapshot(c.stdout, snap, snapFormat)
				}
				if err := ensureParentDir(outPath); err != nil {
					return fmt.Errorf("create export output dir: %w", err)
				}
				f, err := os.Create(outPath)
				if err != nil {
					return fmt.Errorf("create export file: %w", err)
				}
				if err := app.EncodeSnapshot(f, snap, snapFormat); err != nil {
					_ = f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return fmt.Errorf("close export file: %w", err)
				}
				s.logger.Info("snapshot exported", "path", outPath, "format", snapFormat, "items", len(snap.Items))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "-", "output file path ('-' for stdout)")
	cmd.Flags().StringVar(&format, "format", "", "snapshot format (json|yaml); defaults from the file extension")
	cmd.Flags().BoolVar(&includeArchived, "include-archived", true, "include archived projects and items")
	return cmd
}

// newImportCommand loads a snapshot into the database.
func newImportCommand(c *cli) *cobra.Command {
	var (
		inPath string
		format string
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a JSON or YAML snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(inPath) == "" {
				return fmt.Errorf("--in is required")
			}
			return c.withSession(cmd, "import", func(ctx context.Context, s *session) error {
				f, err := os.Open(inPath)
				if err != nil {
					return fmt.Errorf("read import file: %w", err)
				}
				defer func() { _ = f.Close() }()
				snap, err := app.DecodeSnapshot(f, resolveSnapshotFormat(format, inPath))
				if err != nil {
					return err
				}
				if err := s.svc.ImportSnapshot(ctx, snap); err != nil {
					return fmt.Errorf("import snapshot: %w", err)
				}
				s.logger.Info("snapshot imported", "path", inPath, "items", len(snap.Items))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&inPath, "in", "", "input snapshot file")
	cmd.Flags().StringVar(&format, "format", "", "snapshot format (json|yaml); defaults from the file extension")
	return cmd
}

// resolveSnapshotFormat prefers an explicit format over the path extension.
func resolveSnapshotFormat(format, path string) app.SnapshotFormat {
	switch app.SnapshotFormat(strings.ToLower(strings.TrimSpace(format))) {
	case app.SnapshotYAML:
		return app.SnapshotYAML
	case app.SnapshotJSON:
		return app.SnapshotJSON
	}
	return app.SnapshotFormatForPath(path)
}

// firstNonEmpty returns the first non-blank value.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
