package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/shopspring/decimal"

	"github.com/zombor/bill-reconciler/internal/bill"
	"github.com/zombor/bill-reconciler/internal/reconcile"
	"github.com/zombor/bill-reconciler/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("bill-reconciler")
	var (
		port           = fs.IntLong("port", 8080, "HTTP server port")
		dbPath         = fs.StringLong("db", "bill-reconciler.db", "Database file path")
		storagePath    = fs.StringLong("storage", "./bills", "Storage directory path")
		scannerType    = fs.StringLong("scanner", "gemini", "Scanner type: 'gemini' or 'ollama'")
		geminiKey      = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel    = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL      = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel    = fs.StringLong("ollama-model", "qwen2-vl", "Ollama vision model name")
		dedupWindow    = fs.IntLong("dedup-window", 3, "Items compared across each page boundary")
		tolerance      = fs.StringLong("tolerance", "0.01", "Per-item arithmetic tolerance")
		totalTolerance = fs.StringLong("total-tolerance-pct", "0.001", "Stated total tolerance as a fraction of the total")
		minTotalTol    = fs.StringLong("min-total-tolerance", "0.01", "Minimum stated total tolerance")
		workers        = fs.IntLong("workers", 4, "Pages scanned and validated concurrently per bill")
		retries        = fs.IntLong("retries", 3, "Attempts per page scan")
		breakerFails   = fs.IntLong("breaker-failures", 5, "Consecutive failed pages that open the scanner circuit breaker")
		breakerTimeout = fs.StringLong("breaker-timeout", "30s", "How long the scanner circuit breaker stays open")
		scanRPS        = fs.StringLong("scan-rps", "0", "Model calls per second across all pages, 0 for no limit")
		scanBurst      = fs.IntLong("scan-burst", 1, "Model calls allowed in a burst when --scan-rps is set")
		maxDownloadMB  = fs.IntLong("max-download-mb", 50, "Largest document fetched from a URL, in MB")
		authUser       = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass       = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		logLevel       = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		logFormat      = fs.StringLong("log-format", "text", "Log format: 'text' or 'json'")
		showVersion    = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("BILL_RECONCILER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	logger, err := newLogger(os.Stderr, *logLevel, *logFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	cfg, err := reconcileConfig(*dedupWindow, *tolerance, *totalTolerance, *minTotalTol, *workers)
	if err != nil {
		slog.Error("Invalid reconciliation settings", "error", err)
		os.Exit(1)
	}
	engine, err := reconcile.NewReconciler(cfg)
	if err != nil {
		slog.Error("Invalid reconciliation settings", "error", err)
		os.Exit(1)
	}

	openFor, err := time.ParseDuration(*breakerTimeout)
	if err != nil {
		slog.Error("Invalid breaker timeout", "value", *breakerTimeout, "error", err)
		os.Exit(1)
	}

	rps, err := strconv.ParseFloat(*scanRPS, 64)
	if err != nil || rps < 0 {
		slog.Error("Invalid scan rate", "value", *scanRPS, "error", err)
		os.Exit(1)
	}

	// Initialize database
	slog.Info("Initializing database...", "path", *dbPath)
	db, err := bill.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize scanner based on type
	var scanner scanning.Scanner
	switch *scannerType {
	case "gemini":
		// Get Gemini API key from flag or environment
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini scanner...", "model", *geminiModel)
		scanner, err = scanning.NewGemini(apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	case "ollama":
		slog.Info("Initializing Ollama scanner...", "url", *ollamaURL, "model", *ollamaModel)
		scanner, err = scanning.NewOllama(*ollamaURL, *ollamaModel)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid scanner type", "type", *scannerType, "valid", "gemini or ollama")
		os.Exit(1)
	}

	resilience := scanning.DefaultResilienceConfig()
	resilience.MaxAttempts = *retries
	resilience.BreakerFailures = uint32(max(*breakerFails, 1))
	resilience.BreakerTimeout = openFor
	resilience.RequestsPerSecond = rps
	resilience.Burst = *scanBurst
	scanner = scanning.NewResilient(scanner, *scannerType, resilience)
	defer scanner.Close()

	// Initialize storage
	slog.Info("Initializing storage...", "path", *storagePath)
	store, err := bill.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	metrics := bill.NewMetrics()
	billService := bill.NewService(db, scanner, store, engine, bill.Options{
		Workers: *workers,
		Fetcher: bill.NewDownloader(nil, int64(*maxDownloadMB)<<20),
		Metrics: metrics,
	})

	basicAuth := bill.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := bill.NewServer(billService, metrics, basicAuth)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started",
		"address", fmt.Sprintf("http://localhost%s", addr),
		"version", version,
		"dedup_window", cfg.DedupWindow,
		"tolerance", cfg.Tolerance.String(),
	)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server shutdown error", "error", err)
	}
}

// reconcileConfig builds the reconciliation policy from flag values
func reconcileConfig(window int, tolerance, totalPct, minTotal string, workers int) (reconcile.Config, error) {
	cfg := reconcile.DefaultConfig()
	cfg.DedupWindow = window
	cfg.Workers = workers

	for _, f := range []struct {
		name  string
		value string
		dst   *decimal.Decimal
	}{
		{"tolerance", tolerance, &cfg.Tolerance},
		{"total-tolerance-pct", totalPct, &cfg.TotalTolerancePct},
		{"min-total-tolerance", minTotal, &cfg.MinTotalTolerance},
	} {
		d, err := decimal.NewFromString(f.value)
		if err != nil {
			return cfg, fmt.Errorf("parsing --%s: %w", f.name, err)
		}
		*f.dst = d
	}

	return cfg, cfg.Validate()
}
