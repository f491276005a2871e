package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/0x-b4r47h/project-guardian/internal/audit"
	"github.com/0x-b4r47h/project-guardian/internal/batch"
	"github.com/0x-b4r47h/project-guardian/internal/cache"
	"github.com/0x-b4r47h/project-guardian/internal/config"
	"github.com/0x-b4r47h/project-guardian/internal/logger"
	"github.com/0x-b4r47h/project-guardian/internal/pii"
)

func main() {
	var (
		configPath = flag.String("config", "", "Configuration file path")
		inputFile  = flag.String("input", "", "Input dataset file (CSV, NDJSON, or Parquet)")
		outputFile = flag.String("output", "", "Output file (defaults to batch.output_file)")
		batchSize  = flag.Int("batch-size", 0, "Batch size for processing (overrides config)")
		workers    = flag.Int("workers", 0, "Number of worker goroutines (overrides config)")
		skipCache  = flag.Bool("skip-cache", false, "Skip the Redis verdict cache")
		skipAudit  = flag.Bool("skip-audit", false, "Skip the Postgres audit log")
		dryRun     = flag.Bool("dry-run", false, "Analyze without writing output")
		showStats  = flag.Bool("stats", false, "Show audit log statistics and exit")
	)
	flag.Parse()

	if *inputFile == "" && !*showStats {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --input dataset.csv --output redacted.csv\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --input dataset.parquet --workers 8\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --stats\n", os.Args[0])
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Tag every log line of this run so concurrent runs stay separable.
	log = log.WithRunID(uuid.NewString()[:8])

	log.Info("Starting Project Guardian batch processor",
		zap.String("input", *inputFile))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, cancelling operations...")
		cancel()
	}()

	services, err := initializeServices(cfg, *skipCache, *skipAudit, log)
	if err != nil {
		log.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.cleanup()

	if *showStats {
		if err := showAuditStats(ctx, services); err != nil {
			log.Fatal("Failed to show stats", zap.Error(err))
		}
		return
	}

	if _, err := os.Stat(*inputFile); os.IsNotExist(err) {
		log.Fatal("Input file does not exist", zap.String("file", *inputFile))
	}

	batchConfig := &batch.Config{
		BatchSize:      cfg.Batch.BatchSize,
		Workers:        cfg.Batch.Workers,
		ProgressReport: cfg.Batch.ProgressReport,
		DryRun:         *dryRun,
		UpdateCache:    services.verdictCache != nil,
		UpdateAudit:    services.auditStore != nil,
	}
	if *batchSize > 0 {
		batchConfig.BatchSize = *batchSize
	}
	if *workers > 0 {
		batchConfig.Workers = *workers
	}

	output := *outputFile
	if output == "" {
		output = cfg.Batch.OutputFile
	}

	pipeline := batch.NewPipeline(
		services.analyzer,
		services.verdictCache,
		services.auditStore,
		batchConfig,
		log.Logger,
	)

	result, err := pipeline.ProcessFile(ctx, *inputFile, output)
	if err != nil {
		log.Fatal("Batch processing failed", zap.Error(err))
	}

	log.Info("Dataset processing completed",
		zap.String("input", *inputFile),
		zap.String("output", output),
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("processed_ok", result.ProcessedOK),
		zap.Int64("parse_failed", result.ParseFailed),
		zap.Int64("flagged_pii", result.FlaggedPII),
		zap.Int64("cache_hits", result.CacheHits),
		zap.Duration("total_duration", result.Duration),
		zap.Duration("analysis_time", result.AnalysisTime),
		zap.Duration("database_time", result.DatabaseTime),
		zap.Duration("cache_time", result.CacheTime))

	if len(result.Errors) > 0 {
		log.Warn("Processing completed with errors", zap.Strings("errors", result.Errors))
		os.Exit(1)
	}
}

// services holds the initialized processing dependencies.
type services struct {
	analyzer     *pii.Analyzer
	verdictCache *cache.VerdictCache
	auditStore   *audit.Store
}

func (s *services) cleanup() {
	if s.verdictCache != nil {
		s.verdictCache.Close()
	}
	if s.auditStore != nil {
		s.auditStore.Close()
	}
}

// initializeServices wires the analyzer plus the optional cache and
// audit backends.
func initializeServices(cfg *config.Config, skipCache, skipAudit bool, log *logger.Logger) (*services, error) {
	analyzer, err := pii.NewAnalyzer(cfg.Detection.Detectors, log.WithComponent("pii"))
	if err != nil {
		return nil, fmt.Errorf("failed to create analyzer: %w", err)
	}
	services := &services{analyzer: analyzer}

	if cfg.Cache.Enabled && !skipCache {
		log.Info("Initializing verdict cache...")
		verdictCache, err := cache.NewVerdictCache(&cache.Config{
			RedisURL:       cfg.Cache.RedisURL,
			MaxConnections: cfg.Cache.MaxConnections,
			MinIdleConns:   cfg.Cache.MinIdleConns,
			DefaultTTL:     cfg.Cache.DefaultTTL,
			KeyPrefix:      cfg.Cache.KeyPrefix,
		}, log.WithComponent("cache").Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize verdict cache: %w", err)
		}
		services.verdictCache = verdictCache
	}

	if cfg.Audit.Enabled && !skipAudit {
		log.Info("Initializing audit store...")
		auditStore, err := audit.NewStore(&audit.Config{
			DatabaseURL:     cfg.Audit.DatabaseURL,
			MaxOpenConns:    cfg.Audit.MaxOpenConns,
			MaxIdleConns:    cfg.Audit.MaxIdleConns,
			ConnMaxLifetime: cfg.Audit.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Audit.ConnMaxIdleTime,
		}, log.WithComponent("audit").Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize audit store: %w", err)
		}
		services.auditStore = auditStore
	}

	return services, nil
}

// showAuditStats displays current audit log statistics.
func showAuditStats(ctx context.Context, services *services) error {
	if services.auditStore == nil {
		return fmt.Errorf("audit store is not enabled")
	}

	stats, err := services.auditStore.GetStats(ctx)
	if err != nil {
		return fmt.Errorf("failed to get audit stats: %w", err)
	}

	fmt.Printf("\n=== Project Guardian Audit Statistics ===\n")
	fmt.Printf("Total Records:   %d\n", stats.TotalRecords)
	fmt.Printf("Flagged (PII):   %d (%.1f%%)\n", stats.FlaggedCount, stats.FlaggedRate)
	fmt.Printf("Clean:           %d\n", stats.CleanCount)

	if services.verdictCache != nil {
		cacheStats, err := services.verdictCache.GetStats(ctx)
		if err == nil {
			fmt.Printf("\n=== Cache Statistics ===\n")
			fmt.Printf("Cache Hits:      %d\n", cacheStats.Hits)
			fmt.Printf("Cache Misses:    %d\n", cacheStats.Misses)
			fmt.Printf("Hit Rate:        %.1f%%\n", cacheStats.HitRate)
			fmt.Printf("Total Keys:      %d\n", cacheStats.TotalKeys)
			fmt.Printf("Memory Usage:    %.2f MB\n", float64(cacheStats.MemoryUsage)/1024/1024)
		}
	}

	return nil
}
