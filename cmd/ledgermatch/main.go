package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/mkessler-dev/ledgermatch/internal/cache"
	"github.com/mkessler-dev/ledgermatch/internal/classify"
	"github.com/mkessler-dev/ledgermatch/internal/infrastructure/config"
	"github.com/mkessler-dev/ledgermatch/internal/infrastructure/logging"
	"github.com/mkessler-dev/ledgermatch/internal/infrastructure/storage"
	"github.com/mkessler-dev/ledgermatch/internal/pipeline"
	"github.com/mkessler-dev/ledgermatch/internal/sources"
	"github.com/mkessler-dev/ledgermatch/internal/textgen"
)

func main() {
	var (
		configFile = flag.String("config", "config.yaml", "Configuration file path")
		days       = flag.Int("days", 0, "Days to look back (0 = config default)")
		dryRun     = flag.Bool("dry-run", true, "Preview changes without applying")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	cfg := config.LoadOrEnvWithPath(*configFile)
	if *verbose {
		cfg.Observability.Logging.Level = "debug"
	}

	logger := logging.NewLoggerWithScope(cfg.Observability.Logging, "reconcile")

	if err := run(cfg, *days, *dryRun, logger); err != nil {
		logger.Error("run failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, days int, dryRun bool, logger *slog.Logger) error {
	ctx := context.Background()

	store, err := storage.NewStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	txSource := sources.NewFileTransactionSource(
		cfg.Sources.TransactionsPath,
		cfg.Sources.CategoriesPath,
		cfg.Sources.UpdatesPath,
	)

	recordSources := make(map[string]sources.RecordSource, len(cfg.Sources.Records))
	for name, path := range cfg.Sources.Records {
		recordSources[name] = sources.NewFileRecordSource(name, path)
	}
	domains := pipeline.BuildDomains(recordSources)

	apiKey := cfg.GetAPIKey(cfg.TextGen.APIKey, "OPENAI_API_KEY")
	gen, err := textgen.NewClient(textgen.Config{
		APIKey:      apiKey,
		BaseURL:     cfg.TextGen.BaseURL,
		Model:       cfg.TextGen.Model,
		Temperature: cfg.TextGen.Temperature,
		MaxTokens:   cfg.TextGen.MaxTokens,
	})
	if err != nil {
		return fmt.Errorf("initializing text generation client: %w", err)
	}

	usage := classify.NewUsageTracker()
	client := classify.NewClient(gen, usage, logger)
	classifier := classify.NewClassifier(client)

	blobStore, err := cache.NewFileStore(cfg.Cache.Dir)
	if err != nil {
		return fmt.Errorf("initializing cache: %w", err)
	}
	recordCache := cache.NewRecordCache(blobStore, "records.json", logger)
	periodCache := cache.NewPeriodCache(blobStore, "periods.json", logger)

	if days <= 0 {
		days = cfg.Pipeline.LookbackDays
	}
	now := time.Now().UTC()
	window := sources.FetchRange{
		Start: now.AddDate(0, 0, -days),
		End:   now,
	}

	options := pipeline.Options{
		BatchSize:     cfg.Pipeline.BatchSize,
		MaxConcurrent: cfg.Pipeline.MaxConcurrent,
	}
	pipe := pipeline.New(txSource, domains, classifier, recordCache, periodCache, options, logger)

	runID, err := store.StartRun(
		window.Start.Format("2006-01-02"),
		window.End.Format("2006-01-02"),
		dryRun,
	)
	if err != nil {
		return fmt.Errorf("recording run start: %w", err)
	}

	logger.Info("starting run",
		slog.String("run_id", runID),
		slog.Int("days", days),
		slog.Bool("dry_run", dryRun),
		slog.Int("domains", len(domains)),
	)

	result, err := pipe.Run(ctx, window)
	if err != nil {
		_ = store.FailRun(runID, err.Error())
		return err
	}

	changeRecords := make([]storage.ChangeRecord, len(result.Changes))
	for i, c := range result.Changes {
		changeRecords[i] = storage.ChangeRecord{
			TransactionID: c.TransactionID,
			ChangeType:    c.Type,
			Category:      c.Category,
			Splits:        c.Splits,
			Confidence:    c.Confidence,
			Reason:        c.Reason,
		}
	}
	if err := store.SaveChanges(runID, changeRecords); err != nil {
		return fmt.Errorf("saving changes: %w", err)
	}

	applied := 0
	if !dryRun {
		applied, err = pipeline.Apply(ctx, txSource, result.Changes, logger)
		if markErr := store.MarkApplied(runID, applied); markErr != nil {
			logger.Error("marking applied changes", slog.String("error", markErr.Error()))
		}
		if err != nil {
			_ = store.FailRun(runID, err.Error())
			return fmt.Errorf("applying changes (%d applied before failure): %w", applied, err)
		}
	}

	totals, calls := usage.Totals()
	if err := store.CompleteRun(runID, storage.RunOutcome{
		TransactionCount: result.TransactionCount,
		MatchedCount:     result.MatchedCount,
		UnmatchedCount:   result.UnmatchedCount,
		ChangeCount:      len(result.Changes),
		AppliedCount:     applied,
		FailedBuckets:    len(result.BucketErrors),
		InputTokens:      int64(totals.InputTokens),
		OutputTokens:     int64(totals.OutputTokens),
	}); err != nil {
		return fmt.Errorf("recording run completion: %w", err)
	}

	printSummary(result, applied, dryRun, calls, logger)

	for _, be := range result.BucketErrors {
		logger.Warn("bucket failed", slog.String("bucket", be.Bucket), slog.String("error", be.Err.Error()))
	}
	return nil
}

func printSummary(result pipeline.Result, applied int, dryRun bool, calls int, logger *slog.Logger) {
	recategorized, splits, flagged := 0, 0, 0
	for _, c := range result.Changes {
		switch c.Type {
		case pipeline.ChangeRecategorize:
			recategorized++
		case pipeline.ChangeSplit:
			splits++
		case pipeline.ChangeFlag:
			flagged++
		}
	}

	logger.Info("run complete",
		slog.Int("transactions", result.TransactionCount),
		slog.Int("matched", result.MatchedCount),
		slog.Int("unmatched", result.UnmatchedCount),
		slog.Int("recategorized", recategorized),
		slog.Int("splits", splits),
		slog.Int("flagged", flagged),
		slog.Int("applied", applied),
		slog.Bool("dry_run", dryRun),
		slog.Int("service_calls", calls),
	)

	if dryRun && len(result.Changes) > 0 {
		logger.Info("dry run: no changes were applied, rerun with -dry-run=false to apply")
	}
}
