// Package main provides the Program Engine CLI entrypoint.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/spherical-ai/spherical/libs/program-engine/internal/cache"
	"github.com/spherical-ai/spherical/libs/program-engine/internal/classify"
	"github.com/spherical-ai/spherical/libs/program-engine/internal/config"
	"github.com/spherical-ai/spherical/libs/program-engine/internal/ingest"
	"github.com/spherical-ai/spherical/libs/program-engine/internal/monitoring"
	"github.com/spherical-ai/spherical/libs/program-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/program-engine/internal/storage"
)

// Version is stamped at build time with -ldflags "-X main.Version=...".
var Version = "0.1.0"

var (
	// Global flags
	cfgFile    string
	outputJSON bool
	verbose    bool
	noColor    bool

	// Configuration and logger
	cfg    *config.Config
	logger *observability.Logger
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "program-engine-cli",
		Short: "Program Engine CLI for conference program imports",
		Long: `Program Engine CLI imports conference program spreadsheets into an event.

Use this tool to:
- Import a CSV or XLSX program into an event
- Dry-run a file to see detected columns, conflicts and a schedule summary
- List the sessions stored for an event
- Run database migrations

All commands support --json for automation.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			logFormat := "console"
			if outputJSON {
				logFormat = "json"
			}
			// Pipeline logs stay quiet unless asked for; results go to stdout.
			level := "warn"
			if verbose {
				level = "debug"
			}

			logger = observability.NewLogger(observability.LogConfig{
				Level:       level,
				Format:      logFormat,
				Output:      cmd.ErrOrStderr(),
				ServiceName: "program-engine-cli",
			})
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default: uses env vars)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	// Add subcommands
	rootCmd.AddCommand(newImportCmd())
	rootCmd.AddCommand(newAnalyzeCmd())
	rootCmd.AddCommand(newSessionsCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newImportCmd creates the import subcommand.
func newImportCmd() *cobra.Command {
	var (
		event    string
		file     string
		dryRun   bool
		issues   int
		operator string
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a program file into an event",
		Long: `Import parses a CSV or XLSX program, detects its columns, builds sessions,
faculty and tracks, reports scheduling conflicts and writes everything new to
the event in one transaction. Sessions already stored for the event are
skipped and known faculty only gain missing contact details.

Use --dry-run to analyze the file without writing.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
			defer cancel()

			content, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read program file: %w", err)
			}

			if operator == "" {
				operator = os.Getenv("USER")
				if operator == "" {
					operator = "cli"
				}
			}

			eventID := storage.ResolveEventID(event)
			ui := NewUI(cmd.OutOrStdout(), outputJSON, noColor)
			defer ui.Close()

			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			backend, err := cache.New(cfg.Cache)
			if err != nil {
				return fmt.Errorf("create cache: %w", err)
			}
			defer backend.Close()

			audit := monitoring.NewAuditLogger(logger, backend, cfg.Import.AuditChannel)
			pipeline := newPipeline(issues, store, backend, backend, audit)

			ui.Step("Importing %s (%s) into event %s", filepath.Base(file), FormatBytes(int64(len(content))), event)

			req := ingest.Request{
				EventID:  eventID,
				FileName: filepath.Base(file),
				Content:  content,
				Operator: operator,
				OnStage:  func(stage string) { ui.StartSpinner(stage + "...") },
			}

			var result *ingest.Result
			if dryRun {
				result, err = pipeline.Analyze(ctx, req)
			} else {
				req.OnProgress = commitProgress(ui)
				result, err = pipeline.Import(ctx, req)
			}
			ui.StopSpinner()
			if err != nil {
				ui.Error("Import failed: %v", err)
				return fmt.Errorf("import failed: %w", err)
			}

			return writeResult(cmd.OutOrStdout(), ui, result)
		},
	}

	cmd.Flags().StringVar(&event, "event", "", "event ID or name (required)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "path to the CSV or XLSX program (required)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "analyze without writing")
	cmd.Flags().IntVar(&issues, "issues", 0, "number of issues to list (default from config)")
	cmd.Flags().StringVar(&operator, "operator", "", "operator name for audit trail")

	_ = cmd.MarkFlagRequired("event")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

// newAnalyzeCmd creates the analyze subcommand.
func newAnalyzeCmd() *cobra.Command {
	var (
		file   string
		issues int
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze a program file without a database",
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read program file: %w", err)
			}

			ui := NewUI(cmd.OutOrStdout(), outputJSON, noColor)
			defer ui.Close()

			pipeline := newPipeline(issues, nil, nil, nil, nil)
			result, err := pipeline.Analyze(cmd.Context(), ingest.Request{
				FileName: filepath.Base(file),
				Content:  content,
				OnStage:  func(stage string) { ui.StartSpinner(stage + "...") },
			})
			ui.StopSpinner()
			if err != nil {
				ui.Error("Analysis failed: %v", err)
				return fmt.Errorf("analysis failed: %w", err)
			}

			return writeResult(cmd.OutOrStdout(), ui, result)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "path to the CSV or XLSX program (required)")
	cmd.Flags().IntVar(&issues, "issues", 0, "number of issues to list (default from config)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

// newSessionsCmd creates the sessions subcommand.
func newSessionsCmd() *cobra.Command {
	var event string

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List the sessions stored for an event",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			sessions, err := store.ListSessions(ctx, storage.ResolveEventID(event))
			if err != nil {
				return fmt.Errorf("list sessions: %w", err)
			}

			if outputJSON {
				return encodeJSON(cmd.OutOrStdout(), sessions)
			}

			ui := NewUI(cmd.OutOrStdout(), false, noColor)
			if len(sessions) == 0 {
				ui.Info("No sessions stored for event %s", event)
				return nil
			}
			ui.Table(sessionHeaders, sessionRows(sessions))
			ui.Success("%d sessions", len(sessions))
			return nil
		},
	}

	cmd.Flags().StringVar(&event, "event", "", "event ID or name (required)")
	_ = cmd.MarkFlagRequired("event")

	return cmd
}

// newMigrateCmd creates the migrate subcommand.
func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := storage.Open(cfg.Database, logger)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer store.Close()

			status, err := store.Migrate(cmd.Context())
			if err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}

			if outputJSON {
				return encodeJSON(cmd.OutOrStdout(), status)
			}

			ui := NewUI(cmd.OutOrStdout(), false, noColor)
			if len(status.Applied) == 0 {
				ui.Success("Schema up to date on %s (%d migrations)", cfg.Database.Driver, status.Total)
				return nil
			}
			for _, name := range status.Applied {
				ui.Step("Applied %s", name)
			}
			ui.Success("Migrations applied on %s", cfg.Database.Driver)
			return nil
		},
	}
}

// newVersionCmd creates the version subcommand.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			if outputJSON {
				return encodeJSON(cmd.OutOrStdout(), map[string]string{"version": Version})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "program-engine-cli v%s\n", Version)
			return nil
		},
	}
}

// openStore opens the configured database and brings its schema up to date.
func openStore(ctx context.Context) (*storage.Store, error) {
	store, err := storage.Open(cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

func newPipeline(issues int, store ingest.Store, client cache.Client, locker cache.Locker, audit *monitoring.AuditLogger) *ingest.Pipeline {
	opts := ingest.OptionsFromConfig(cfg)
	if issues > 0 {
		opts.IssueLimit = issues
	}
	pipeline := ingest.NewPipeline(logger, opts, store, client, locker, audit)

	if adv := cfg.Classifier.Advisor; adv.Enabled {
		advisor := classify.NewOpenAIAdvisor(adv.APIKey, adv.Model, adv.BaseURL).WithTimeout(adv.Timeout)
		pipeline.WithAdvisor(advisor, adv.MaxConfidence)
	}
	return pipeline
}

// commitProgress draws a progress bar for the batched session insert.
func commitProgress(ui *UI) func(done, total int) {
	var last int
	return func(done, total int) {
		if ui.progress == nil {
			return
		}
		ui.StopSpinner()
		bar := ui.commitBar
		if bar == nil {
			bar = ui.ProgressBar("Sessions", int64(total))
			ui.commitBar = bar
		}
		if bar != nil {
			bar.IncrBy(done - last)
		}
		last = done
	}
}

func encodeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
