package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/warp/timeclock/api"
	"github.com/warp/timeclock/config"
	"github.com/warp/timeclock/store/sqlite"
	"github.com/warp/timeclock/worklog"
)

// App holds the CLI application state.
type App struct {
	root       *cobra.Command
	configPath string
	dbPath     string
	port       int
	cfg        *config.Config
}

// NewApp creates the root command and its subcommands.
func NewApp() *App {
	a := &App{}

	a.root = &cobra.Command{
		Use:           "timeclock",
		Short:         "Work-interval time clock",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.loadConfig(cmd)
		},
	}

	a.root.PersistentFlags().StringVar(&a.configPath, "config", config.DefaultConfigPath(), "TOML config file")
	a.root.PersistentFlags().StringVar(&a.dbPath, "db", "", "SQLite database path (\":memory:\" for in-memory)")

	a.root.AddCommand(a.serveCmd())
	a.root.AddCommand(a.mergeCmd())
	a.root.AddCommand(a.computeCmd())

	return a
}

// Execute runs the CLI application.
func (a *App) Execute() error {
	return a.root.Execute()
}

func (a *App) loadConfig(cmd *cobra.Command) error {
	cfg, err := config.LoadFrom(a.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cmd.Flags().Changed("db") {
		cfg.Storage.DBPath = a.dbPath
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = a.port
	}
	a.cfg = cfg
	return nil
}

// openEngine opens the store, seeds the schedule and builds the engine.
func (a *App) openEngine(ctx context.Context) (*worklog.Engine, *sqlite.Store, error) {
	loc, err := a.cfg.Location()
	if err != nil {
		return nil, nil, err
	}

	store, err := sqlite.New(a.cfg.Storage.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := store.SeedSchedule(ctx, a.cfg.Schedule); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("failed to seed schedule: %w", err)
	}

	engine := worklog.NewEngine(store, store,
		worklog.WithLocation(loc),
		worklog.WithEarlyMorningHour(a.cfg.Clock.EarlyMorningHour),
	)
	return engine, store, nil
}

// =============================================================================
// SERVE
// =============================================================================

func (a *App) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
	cmd.Flags().IntVar(&a.port, "port", 8080, "HTTP server port")
	return cmd
}

func (a *App) serve(ctx context.Context) error {
	engine, store, err := a.openEngine(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	router := api.NewRouter(api.NewHandler(engine, store), a.cfg.Server.AllowedOrigins)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	errc := make(chan error, 1)
	go func() {
		log.Printf("Server starting on http://localhost:%d (day offset %s)", a.cfg.Server.Port, a.cfg.Clock.UTCOffset)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errc:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	}

	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("Server stopped")
	return nil
}

// =============================================================================
// MERGE
// =============================================================================

func (a *App) mergeCmd() *cobra.Command {
	var (
		user   string
		date   string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge a user's fragmented intervals for one day",
		Long: `Merge consecutive intervals with the same project, category and content
that are at most one minute apart and have no other work between them.

With --dry-run the clusters are printed and nothing is written.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			engine, store, err := a.openEngine(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			day := engine.Day(engine.Now())
			if date != "" {
				if day, err = worklog.ParseDay(date, engine.Location()); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if dryRun {
				previews, err := engine.PreviewMerge(ctx, worklog.UserID(user), day)
				if err != nil {
					return err
				}
				if len(previews) == 0 {
					fmt.Fprintf(out, "Nothing to merge on %s.\n", day)
					return nil
				}
				for _, p := range previews {
					fmt.Fprintf(out, "%s  %s-%s  %d intervals  %s/%s/%s\n",
						day, worklog.ClockOf(p.Start.In(engine.Location())), worklog.ClockOf(p.End.In(engine.Location())),
						p.Count, p.Signature.ProjectCode, p.Signature.Category, p.Signature.Content)
				}
				return nil
			}

			reports, err := engine.MergeDay(ctx, worklog.UserID(user), day)
			if err != nil {
				return err
			}
			merged := 0
			for _, r := range reports {
				merged += r.OriginalCount
			}
			fmt.Fprintf(out, "Merged %d intervals into %d on %s.\n", merged, len(reports), day)
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "User id (required)")
	cmd.Flags().StringVar(&date, "date", "", "Day to merge, YYYY-MM-DD (default today)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Preview without writing")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

// =============================================================================
// COMPUTE
// =============================================================================

func (a *App) computeCmd() *cobra.Command {
	var start, end string

	cmd := &cobra.Command{
		Use:   "compute",
		Short: "Print normal and overtime minutes for a start/end pair",
		Long: `Compute normal and overtime minutes for "HH:mm" clock times using the
stored daily schedule. An end before the start crosses midnight.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			engine, store, err := a.openEngine(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			wt, err := engine.ComputeWorkTime(ctx, start, end)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "normal: %d min (%s h)\novertime: %d min (%s h)\n",
				wt.NormalMinutes, worklog.MinutesToHours(wt.NormalMinutes),
				wt.OvertimeMinutes, worklog.MinutesToHours(wt.OvertimeMinutes))
			return nil
		},
	}

	cmd.Flags().StringVar(&start, "start", "", "Start time HH:mm (required)")
	cmd.Flags().StringVar(&end, "end", "", "End time HH:mm (required)")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}
