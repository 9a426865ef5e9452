package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dyike/tsladash/config"
	"github.com/dyike/tsladash/internal/chart"
	"github.com/dyike/tsladash/internal/dataflows"
	"github.com/dyike/tsladash/internal/logger"
	"github.com/dyike/tsladash/internal/service"
	"github.com/dyike/tsladash/internal/storage"
	"github.com/dyike/tsladash/internal/storage/sqlite"
)

// Version is set at build time with -ldflags "-X .../internal/cli.Version=...".
var Version = "dev"

// app carries what the subcommands share once flags are parsed.
type app struct {
	cfg     *config.Config
	manager *config.Manager
	log     *logrus.Logger

	// dataFile is the --data override, kept across config reloads.
	dataFile string
	debug    bool
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "tsladash",
		Short: "tsladash - TSLA support/resistance dashboard",
		Long: `tsladash loads daily TSLA bars, derives rolling support and resistance zones,
labels each bar LONG, SHORT or NEUTRAL, draws a candlestick chart and answers
questions about the data through Gemini.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSummary(cmd.Context(), cmd, a)
		},
	}

	// Add subcommands
	rootCmd.AddCommand(newServeCmd(a))
	rootCmd.AddCommand(newSummaryCmd(a))
	rootCmd.AddCommand(newChartCmd(a))
	rootCmd.AddCommand(newAskCmd(a))
	rootCmd.AddCommand(newFetchCmd(a))
	rootCmd.AddCommand(newHistoryCmd(a))
	rootCmd.AddCommand(newConfigCmd(a))
	rootCmd.AddCommand(newVersionCmd())

	// Global flags
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("config", "", "Configuration file path (JSON)")
	rootCmd.PersistentFlags().String("data", "", "CSV data file (overrides the configured one)")

	return rootCmd
}

func (a *app) init(cmd *cobra.Command) error {
	cfg := config.DefaultConfig()
	a.debug, _ = cmd.Flags().GetBool("debug")
	a.log = logger.New(logger.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Debug:  a.debug || cfg.Debug,
	})

	if data, _ := cmd.Flags().GetString("data"); data != "" {
		abs, err := filepath.Abs(data)
		if err != nil {
			return err
		}
		a.dataFile = abs
	}
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		m, err := a.newManager(path, cfg)
		if err != nil {
			return err
		}
		loaded := m.Get()
		cfg = &loaded
	}
	a.overlay(cfg)
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil && !cfg.Debug {
		a.log.SetLevel(level)
	}
	a.cfg = cfg

	// Ensure directories exist
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}
	return nil
}

// overlay applies what outranks the config file: the environment, then flags.
func (a *app) overlay(cfg *config.Config) {
	cfg.ApplyEnv()
	if a.dataFile != "" {
		cfg.DataFile = a.dataFile
	}
	if a.debug {
		cfg.Debug = true
	}
}

// attachDefaultConfig loads the config file at the default location for
// serve. A missing file is left alone so cwd-rooted paths are never persisted.
func (a *app) attachDefaultConfig() error {
	path, err := config.DefaultConfigPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			a.log.WithField("path", path).Info("no config file; config hot reload disabled")
			return nil
		}
		return fmt.Errorf("stat config: %w", err)
	}
	m, err := a.newManager(path, a.cfg)
	if err != nil {
		return err
	}
	loaded := m.Get()
	a.overlay(&loaded)
	a.cfg = &loaded
	return nil
}

// newManager loads the JSON config file at path, or the default location when
// path is empty, creating it from base if missing.
func (a *app) newManager(path string, base *config.Config) (*config.Manager, error) {
	opts := []config.ManagerOption{config.WithBaseConfig(base), config.WithLogger(a.log)}
	if path != "" {
		opts = append(opts, config.WithConfigPath(path))
	}
	m, err := config.NewManager(opts...)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	a.manager = m
	return m, nil
}

// openHistory opens the history store. A store that cannot be opened only
// disables recording.
func (a *app) openHistory() (*sqlite.Store, *storage.Recorder) {
	store, err := storage.Open(a.cfg)
	if err != nil {
		a.log.WithError(err).Warn("chat history disabled")
		return nil, nil
	}
	return store, storage.NewRecorder(store, a.log)
}

// loadDashboard builds a dashboard and loads the data once.
func (a *app) loadDashboard(ctx context.Context, opts ...service.Option) (*service.Dashboard, error) {
	opts = append([]service.Option{service.WithLogger(a.log)}, opts...)
	dash := service.New(a.cfg, opts...)
	if _, err := dash.Reload(ctx); err != nil {
		return nil, fmt.Errorf("could not load or process %s: %w", a.cfg.DataFile, err)
	}
	return dash, nil
}

// newVersionCmd creates the version command
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tsladash %s\n", Version)
		},
	}
}

func newSummaryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Print the data summary and signal counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSummary(cmd.Context(), cmd, a)
		},
	}
}

func runSummary(ctx context.Context, cmd *cobra.Command, a *app) error {
	dash, err := a.loadDashboard(ctx, service.WithAssistant(nil))
	if err != nil {
		return err
	}
	snap, _ := dash.Snapshot()
	out := cmd.OutOrStdout()
	DisplayTitle(out, a.cfg.Ticker)
	DisplaySummary(out, snap.Summary)
	return nil
}

func newChartCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chart",
		Short: "Render the candlestick chart to an HTML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("out")
			rows, _ := cmd.Flags().GetInt("rows")
			return runChart(cmd, a, out, rows)
		},
	}
	cmd.Flags().String("out", "chart.html", "Output HTML file")
	cmd.Flags().Int("rows", 0, "Rows to overlay (configured max_chart_rows if 0)")
	return cmd
}

func runChart(cmd *cobra.Command, a *app, out string, rows int) error {
	dash, err := a.loadDashboard(cmd.Context(), service.WithAssistant(nil))
	if err != nil {
		return err
	}
	if rows <= 0 {
		rows = a.cfg.MaxChartRows
	}
	snap, _ := dash.Snapshot()

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("create %s: %w", out, err)
	}
	opts := chart.Options{Symbol: a.cfg.Ticker, MaxRows: rows}
	if err := chart.Render(f, snap.Bars, opts); err != nil {
		f.Close()
		return fmt.Errorf("render chart: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	DisplaySuccess(cmd.OutOrStdout(), fmt.Sprintf("%s written to %s", chart.Title(opts), out))
	return nil
}

func newFetchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download daily bars into the CSV data file",
		Long: `Download daily bars from Yahoo Finance or Longport and write them in the
dashboard's CSV layout. Support, resistance and direction are left empty and are
derived when the file is loaded.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			days, _ := cmd.Flags().GetInt("days")
			source, _ := cmd.Flags().GetString("source")
			out, _ := cmd.Flags().GetString("out")
			yes, _ := cmd.Flags().GetBool("yes")
			return runFetch(cmd, a, source, days, out, yes)
		},
	}
	cmd.Flags().Int("days", 0, "Calendar days to fetch (configured lookback_days if 0)")
	cmd.Flags().String("source", config.SourceYahoo, "Data source: yahoo or longport")
	cmd.Flags().String("out", "", "Output CSV (the data file if empty)")
	cmd.Flags().BoolP("yes", "y", false, "Overwrite without asking")
	return cmd
}

func runFetch(cmd *cobra.Command, a *app, source string, days int, out string, yes bool) error {
	if days <= 0 {
		days = a.cfg.LookbackDays
	}
	if out == "" {
		out = a.cfg.DataFile
	}
	if _, err := os.Stat(out); err == nil && !yes {
		ok, err := PromptForOverwrite(out)
		if err != nil {
			return err
		}
		if !ok {
			DisplayInfo(cmd.OutOrStdout(), "Fetch cancelled.")
			return nil
		}
	}

	flow := dataflows.NewDataFlow(a.cfg, a.log)
	bars, err := flow.Fetch(cmd.Context(), strings.ToLower(source), days, out)
	if err != nil {
		return err
	}
	DisplaySuccess(cmd.OutOrStdout(), fmt.Sprintf("%d %s bars written to %s", len(bars), a.cfg.Ticker, out))
	return nil
}

func newHistoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded questions and answers",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			store, rec := a.openHistory()
			if store == nil {
				return storage.ErrDBPathNotConfigured
			}
			defer store.Close()

			items, err := rec.History(cmd.Context(), 0, limit)
			if err != nil {
				return err
			}
			DisplayHistory(cmd.OutOrStdout(), items)
			return nil
		},
	}
	cmd.Flags().Int("limit", 10, "Number of exchanges to show")
	return cmd
}

// newConfigCmd creates the config command
func newConfigCmd(a *app) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "Show and validate tsladash configuration settings",
	}

	// config show subcommand
	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Run: func(cmd *cobra.Command, args []string) {
			path := ""
			if a.manager != nil {
				path = a.manager.Path()
			}
			DisplayConfig(cmd.OutOrStdout(), a.cfg, path)
		},
	})

	// config validate subcommand
	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration and dependencies",
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateConfig(cmd, a.cfg)
		},
	})

	return configCmd
}

// validateConfig validates the configuration and dependencies
func validateConfig(cmd *cobra.Command, cfg *config.Config) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "🔍 Validating tsladash Configuration...")

	fmt.Fprint(out, "⚙️  Checking configuration values... ")
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(out, "❌")
		return err
	}
	fmt.Fprintln(out, "✅")

	fmt.Fprint(out, "📂 Checking data file... ")
	if cfg.DataSource == config.SourceCSV {
		if _, err := os.Stat(cfg.DataFile); err != nil {
			fmt.Fprintln(out, "❌")
			return fmt.Errorf("data file: %w", err)
		}
	}
	fmt.Fprintln(out, "✅")

	var warnings []string
	fmt.Fprint(out, "🔑 Checking API keys... ")
	if cfg.GeminiAPIKey == "" {
		warnings = append(warnings, "GEMINI_API_KEY not configured: set it in the environment or in "+cfg.SecretsFile)
	}
	if cfg.DataSource == config.SourceLongport && cfg.LongportAccessToken == "" {
		warnings = append(warnings, "Longport credentials not configured")
	}
	if len(warnings) > 0 {
		fmt.Fprintln(out, "⚠️")
		for _, warning := range warnings {
			fmt.Fprintf(out, "  ⚠️  %s\n", warning)
		}
		fmt.Fprintf(out, "⚠️  Configuration validation completed with %d warnings.\n", len(warnings))
		return nil
	}
	fmt.Fprintln(out, "✅")
	fmt.Fprintln(out, "✅ Configuration validation completed successfully!")
	return nil
}
