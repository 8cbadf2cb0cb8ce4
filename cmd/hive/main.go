package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"taskhive/internal/cache"
	"taskhive/internal/complexity"
	"taskhive/internal/config"
	"taskhive/internal/facts"
	"taskhive/internal/logging"
	"taskhive/internal/registry"
	"taskhive/internal/scheduler"
	"taskhive/internal/verification"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose   bool
	workspace string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "hive",
	Short: "taskhive - assistant coordination hub",
	Long: `taskhive coordinates work across a fixed pool of assistant workers.

It scores every worker against a submitted work description, balances
queued load across the roster, memoizes assignments through a fingerprinted
response cache, and wraps outputs in a tamper-evident VBH confirmation
envelope so consumers can verify which facts a response was generated
against.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if workspace == "" {
			workspace, _ = os.Getwd()
		}
		if err := logging.Initialize(workspace); err != nil {
			logger.Warn("file logging unavailable", zap.Error(err))
		}
		return nil
	},
	SilenceUsage: true,
}

// hub holds the wired core components for one invocation.
type hub struct {
	cfg       *config.Config
	facts     *facts.Store
	cache     *cache.Cache
	codec     *verification.Codec
	tracker   *complexity.Tracker
	scheduler *scheduler.Scheduler
}

// buildHub loads config and wires the core components. An empty worker
// roster is a fatal configuration error.
func buildHub() (*hub, error) {
	cfg, err := config.Load(filepath.Join(workspace, ".hive", "config.yaml"))
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	factStore := facts.NewStore(filepath.Join(workspace, ".hive", "facts.json"))
	respCache := cache.New(cache.NewJSONStore(resolvePath(cfg.Cache.Path)), cfg.GetCacheRetention())
	codec := verification.NewCodec(factStore)

	var history complexity.HistoryStore
	if cfg.Complexity.Backend == "sqlite" {
		sqlStore, err := complexity.NewSQLiteHistoryStore(resolvePath(cfg.Complexity.Path))
		if err != nil {
			logger.Warn("sqlite history unavailable, using json", zap.Error(err))
			history = complexity.NewJSONHistoryStore(resolvePath(cfg.Complexity.Path) + ".json")
		} else {
			history = sqlStore
		}
	} else {
		history = complexity.NewJSONHistoryStore(resolvePath(cfg.Complexity.Path))
	}
	tracker := complexity.NewTracker(history, factStore)

	reg := registry.FromConfig(cfg.Workers)
	scorer := scheduler.NewKeywordScorer(cfg.GetIdleBonusWindow())
	sched := scheduler.New(reg, respCache, factStore, scorer, cfg.Scheduler.RebalanceThreshold)

	return &hub{
		cfg:       cfg,
		facts:     factStore,
		cache:     respCache,
		codec:     codec,
		tracker:   tracker,
		scheduler: sched,
	}, nil
}

func resolvePath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(workspace, p)
}

// distributeCmd submits one work description to the scheduler.
var distributeCmd = &cobra.Command{
	Use:   "distribute [description]",
	Short: "Assign a work description to the best-matching worker",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDistribute,
}

var (
	distPriority string
	distAgent    string
	distPurpose  string
	distBypass   bool
)

func runDistribute(cmd *cobra.Command, args []string) error {
	h, err := buildHub()
	if err != nil {
		return err
	}

	description := args[0]
	result, err := h.scheduler.Distribute(description, scheduler.Priority(distPriority), scheduler.Options{
		Agent:       distAgent,
		Purpose:     distPurpose,
		BypassCache: distBypass,
	})
	if err != nil {
		return err
	}

	if result.Cached {
		fmt.Printf("cached assignment: worker=%s\n", result.AssignedWorkerID)
		return nil
	}
	fmt.Printf("task %s assigned to %s (estimate %.1fs)\n", result.TaskID, result.AssignedWorkerID, result.EstimatedTimeSeconds)
	return nil
}

// rebalanceCmd runs one rebalancing pass.
var rebalanceCmd = &cobra.Command{
	Use:   "rebalance",
	Short: "Shift one queued task from the most-loaded to the least-loaded worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := buildHub()
		if err != nil {
			return err
		}
		res := h.scheduler.Redistribute()
		if !res.Redistributed {
			fmt.Println("queues balanced, nothing moved")
			return nil
		}
		fmt.Printf("moved task %s: %s -> %s\n", res.TaskID, res.From, res.To)
		return nil
	},
}

// statusCmd prints scheduler and cache state.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show worker, queue and cache status",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := buildHub()
		if err != nil {
			return err
		}
		st := h.scheduler.Status()
		cs := h.cache.CacheStats()
		fmt.Printf("workers:  %d active / %d total\n", st.ActiveWorkerCount, st.TotalWorkerCount)
		fmt.Printf("pending:  %d tasks\n", st.PendingTaskCount)
		fmt.Printf("cache:    %d valid / %d expired / %d total\n", cs.ValidEntries, cs.ExpiredEntries, cs.TotalEntries)
		if !st.LastEventTimestamp.IsZero() {
			fmt.Printf("last event: %s\n", st.LastEventTimestamp.Format(time.RFC3339))
		}
		return nil
	},
}

// wrapCmd wraps stdin or a file in a VBH confirmation envelope.
var wrapCmd = &cobra.Command{
	Use:   "wrap [file]",
	Short: "Wrap content in a VBH confirmation envelope",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := buildHub()
		if err != nil {
			return err
		}
		content, err := readInput(args)
		if err != nil {
			return err
		}
		fmt.Print(h.codec.Wrap(string(content), h.facts.Load(), nil))
		return nil
	},
}

// verifyCmd validates a VBH envelope against the live fact store.
var verifyCmd = &cobra.Command{
	Use:   "verify [file]",
	Short: "Validate a VBH envelope against the current facts",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runVerify,
}

// runVerify returns an error on an invalid envelope rather than exiting
// directly, so log teardown in main still runs.
func runVerify(cmd *cobra.Command, args []string) error {
	h, err := buildHub()
	if err != nil {
		return err
	}
	content, err := readInput(args)
	if err != nil {
		return err
	}
	result := h.codec.Validate(string(content), h.facts.Load())
	if !result.Valid {
		return fmt.Errorf("invalid envelope: %s (%s)", result.Error, result.Kind)
	}
	fmt.Printf("valid (counter=%d)\n", result.Counter)
	return nil
}

// serveCmd keeps the hub resident: the rebalancer loop runs on the
// configured interval and config edits are picked up without a restart.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the hub with periodic rebalancing and config hot reload",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	h, err := buildHub()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	configPath := filepath.Join(workspace, ".hive", "config.yaml")
	watcher, err := config.NewWatcher(configPath, func(cfg *config.Config) {
		logger.Info("configuration reloaded", zap.String("name", cfg.Name), zap.Int("workers", len(cfg.Workers)))
	})
	if err != nil {
		logger.Warn("config watcher unavailable", zap.Error(err))
	} else {
		if err := watcher.Start(ctx); err != nil {
			logger.Warn("config watcher failed to start", zap.Error(err))
		}
		defer watcher.Stop()
	}

	interval := h.cfg.GetRebalanceInterval()
	stopRebalancer := h.scheduler.StartRebalancer(ctx, interval)
	defer stopRebalancer()

	logger.Info("hive serving",
		zap.Duration("rebalance_interval", interval),
		zap.Int("workers", len(h.cfg.Workers)))

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

// complexityCmd groups the complexity-tracking subcommands.
var complexityCmd = &cobra.Command{
	Use:   "complexity",
	Short: "Score and track description complexity",
}

var complexityScoreCmd = &cobra.Command{
	Use:   "score [file]",
	Short: "Score content without recording it",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := readInput(args)
		if err != nil {
			return err
		}
		m := complexity.Score(string(content))
		fmt.Printf("bytes=%.0f lines=%.0f entropy=%.2f structural=%.2f composite=%.2f\n",
			m.ByteLength, m.LineCount, m.ShannonEntropy, m.StructuralComplexity, m.CompositeScore)
		return nil
	},
}

var complexityRecordCmd = &cobra.Command{
	Use:   "record [file]",
	Short: "Score content and append it to the rolling history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := buildHub()
		if err != nil {
			return err
		}
		content, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		rec := h.tracker.Record(args[0], string(content), nil)
		fmt.Printf("recorded %s composite=%.2f (history %d/%d)\n",
			rec.SubjectID, rec.Metrics.CompositeScore, h.tracker.Len(), complexity.HistoryCap)
		return nil
	},
}

var trendWindow int

var complexityTrendCmd = &cobra.Command{
	Use:   "trend",
	Short: "Classify the complexity trend over the recent window",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := buildHub()
		if err != nil {
			return err
		}
		tr := h.tracker.TrendOver(trendWindow)
		fmt.Printf("direction=%s change=%.2f%% recent=%.2f older=%.2f\n",
			tr.Direction, tr.PercentChange, tr.RecentAverage, tr.OlderAverage)
		return nil
	},
}

var summaryLimit int

var complexitySummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Summarize the most recent complexity records",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := buildHub()
		if err != nil {
			return err
		}
		sum := h.tracker.Summarize(summaryLimit)
		fmt.Printf("total=%d recent=%d avgComposite=%.2f trend=%s\n",
			sum.TotalCount, sum.RecentCount, sum.Averages.CompositeScore, sum.Trend.Direction)
		for _, rec := range sum.RecentEntries {
			fmt.Printf("  %s  %s  composite=%.2f\n",
				rec.Timestamp.Format(time.RFC3339), rec.SubjectID, rec.Metrics.CompositeScore)
		}
		return nil
	},
}

// cacheCmd groups response-cache subcommands.
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the response cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache occupancy",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := buildHub()
		if err != nil {
			return err
		}
		cs := h.cache.CacheStats()
		fmt.Printf("total=%d valid=%d expired=%d\n", cs.TotalEntries, cs.ValidEntries, cs.ExpiredEntries)
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop every cached entry",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := buildHub()
		if err != nil {
			return err
		}
		h.cache.Clear()
		fmt.Println("cache cleared")
		return nil
	},
}

// factsCmd shows the live fact set.
var factsCmd = &cobra.Command{
	Use:   "facts",
	Short: "Show the current fact set and header counter",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := buildHub()
		if err != nil {
			return err
		}
		fs := h.facts.Load()
		fmt.Printf("scope=%s site=%s provider=%s open_tasks=%d counter=%d\n",
			fs.Scope, fs.Site, fs.Provider, fs.OpenTasks, h.facts.Counter())
		return nil
	},
}

func readInput(args []string) ([]byte, error) {
	if len(args) == 1 && args[0] != "-" {
		return os.ReadFile(args[0])
	}
	return os.ReadFile("/dev/stdin")
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "workspace directory (default: cwd)")

	distributeCmd.Flags().StringVar(&distPriority, "priority", "normal", "task priority (low|normal|high)")
	distributeCmd.Flags().StringVar(&distAgent, "agent", "", "pin the target worker, skipping scoring")
	distributeCmd.Flags().StringVar(&distPurpose, "purpose", "", "cache fingerprint hint")
	distributeCmd.Flags().BoolVar(&distBypass, "bypass-cache", false, "skip the response cache")

	complexityTrendCmd.Flags().IntVar(&trendWindow, "window", complexity.DefaultTrendWindow, "trend window size")
	complexitySummaryCmd.Flags().IntVar(&summaryLimit, "limit", 10, "records to summarize")

	complexityCmd.AddCommand(complexityScoreCmd, complexityRecordCmd, complexityTrendCmd, complexitySummaryCmd)
	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd)

	rootCmd.AddCommand(distributeCmd, rebalanceCmd, statusCmd, serveCmd, wrapCmd, verifyCmd, complexityCmd, cacheCmd, factsCmd)
}

func main() {
	err := rootCmd.Execute()

	// Teardown runs here rather than in a PostRun hook so it happens on
	// the failure path too.
	logging.CloseAll()
	if logger != nil {
		_ = logger.Sync()
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
