package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/blazeapi/blaze/internal/adminserver"
	"github.com/blazeapi/blaze/internal/config"
	"github.com/blazeapi/blaze/internal/dispatch"
	"github.com/blazeapi/blaze/internal/inputs"
	"github.com/blazeapi/blaze/internal/logging"
	"github.com/blazeapi/blaze/internal/ratelimit"
	"github.com/blazeapi/blaze/internal/sink"
	"github.com/blazeapi/blaze/internal/stats"
)

type runFlags struct {
	input       string
	output      string
	errors      string
	configPath  string
	rate        int
	maxAttempts int
	workers     int
	timeout     time.Duration
	verbose     bool
	jsonLogs    bool
	noProgress  bool
	dryRun      bool
	adminAddr   string
}

func newRunCommand() *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process a JSON-lines request file through the dispatch engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDispatch(flags)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.input, "input", "", "path to the JSON-lines input file (required)")
	f.StringVar(&flags.output, "output", "", "path to write successful responses (JSON lines)")
	f.StringVar(&flags.errors, "errors", "errors.jsonl", "path to write failed requests (JSON lines)")
	f.StringVar(&flags.configPath, "config", "", "path to an endpoints configuration file")
	f.IntVar(&flags.rate, "rate", 0, "requests per second ceiling (overrides config)")
	f.IntVar(&flags.maxAttempts, "max-attempts", 0, "maximum attempts per request (overrides config)")
	f.IntVar(&flags.workers, "workers", 0, "number of concurrent workers (overrides config)")
	f.DurationVar(&flags.timeout, "timeout", 0, "per-attempt request timeout (overrides config)")
	f.BoolVar(&flags.verbose, "verbose", false, "print configuration summary and debug logs")
	f.BoolVar(&flags.jsonLogs, "json-logs", false, "emit JSON logs and a single JSON summary line")
	f.BoolVar(&flags.noProgress, "no-progress", false, "disable the live progress display")
	f.BoolVar(&flags.dryRun, "dry-run", false, "validate configuration and exit without sending requests")
	f.StringVar(&flags.adminAddr, "admin-addr", "", "address for the admin/monitoring HTTP server (empty disables it)")

	_ = cmd.MarkFlagRequired("input")

	return cmd
}

func runDispatch(flags *runFlags) error {
	if _, err := os.Stat(flags.input); err != nil {
		return fmt.Errorf("input file not found: %s", flags.input)
	}

	cfg, err := loadRunConfig(flags)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	if flags.dryRun {
		fmt.Println("\nDRY RUN MODE")
		fmt.Println("Configuration validated successfully.")
		fmt.Println()
		fmt.Println(cfg.Summary())
		return nil
	}

	if !flags.jsonLogs {
		printBanner()
	}
	if flags.verbose && !flags.jsonLogs {
		fmt.Println(cfg.Summary())
	}

	logger, err := logging.New(cfg.LogLevel, cfg.JSONLogs)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	requests, err := inputs.ReadFile(flags.input)
	if err != nil {
		return err
	}

	successSink, err := sink.Open(flags.output, logger)
	if err != nil {
		return err
	}
	failureSink, err := sink.Open(flags.errors, logger)
	if err != nil {
		return err
	}

	lb := dispatch.NewLoadBalancerFromConfig(cfg, logger)
	tracker := stats.New(len(requests))

	var admin *adminserver.Server
	if cfg.AdminAddr != "" {
		admin = adminserver.New(cfg.AdminAddr, lb, tracker, logger)
		admin.Start()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Warn("shutdown signal received, cancelling in-flight requests")
		cancel()
	}()

	d := &dispatch.Dispatcher{
		LoadBalancer: lb,
		RateLimiter:  ratelimit.New(cfg.Request.RateLimit),
		Sender:       dispatch.NewSender(dispatch.NewHTTPClient(cfg.Request.Workers, cfg.Request.Timeout), cfg.Retry, logger),
		Stats:        tracker,
		Success:      successSink,
		Failure:      failureSink,
		Workers:      cfg.Request.Workers,
		Timeout:      cfg.Request.Timeout,
		Cooldown:     cfg.Cooldown,
		Logger:       logger,
	}

	logger.Info("starting processing", zap.String("input", flags.input), zap.Int("requests", len(requests)))

	start := time.Now()
	if err := d.Run(ctx, requests); err != nil {
		return fmt.Errorf("dispatch run: %w", err)
	}
	elapsed := time.Since(start)

	if admin != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = admin.Shutdown(shutdownCtx)
	}

	snap := tracker.Snapshot()
	printResultSummary(flags, snap, elapsed)

	if snap.FailureCount > 0 && snap.SuccessCount == 0 {
		os.Exit(1)
	}
	return nil
}

func loadRunConfig(flags *runFlags) (config.Config, error) {
	var cfg config.Config
	var err error

	if flags.configPath != "" {
		cfg, err = config.LoadFile(flags.configPath)
	} else {
		cfg = config.FromEnv()
	}
	if err != nil {
		return config.Config{}, err
	}

	cfg.AdminAddr = flags.adminAddr
	if flags.verbose {
		cfg.LogLevel = "debug"
	}
	cfg.JSONLogs = flags.jsonLogs

	cfg.ApplyOverrides(flags.rate, flags.maxAttempts, flags.workers, flags.timeout)
	return cfg, nil
}

func printResultSummary(flags *runFlags, snap stats.Snapshot, elapsed time.Duration) {
	if flags.jsonLogs {
		fmt.Printf(
			`{"status":"complete","total_processed":%d,"success_count":%d,"failure_count":%d,"elapsed_seconds":%.3f,"avg_latency_ms":%.3f,"throughput_rps":%.3f}`+"\n",
			snap.TotalProcessed, snap.SuccessCount, snap.FailureCount, elapsed.Seconds(), snap.AvgLatencyMs, snap.OverallRPS,
		)
		return
	}

	fmt.Println()
	fmt.Println("Results:")
	fmt.Printf("  Total:      %d\n", snap.TotalProcessed)
	fmt.Printf("  Success:    %d\n", snap.SuccessCount)
	fmt.Printf("  Failure:    %d\n", snap.FailureCount)
	fmt.Printf("  Elapsed:    %s\n", elapsed)
	fmt.Printf("  Avg latency:%.2f ms\n", snap.AvgLatencyMs)
	fmt.Printf("  Throughput: %.2f req/s\n", snap.OverallRPS)

	if flags.output != "" {
		fmt.Printf("\n  Results saved to: %s\n", flags.output)
	}
	if snap.FailureCount > 0 {
		fmt.Printf("  Errors saved to: %s\n", flags.errors)
	}
}
