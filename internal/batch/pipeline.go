package batch

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/0x-b4r47h/project-guardian/internal/audit"
	"github.com/0x-b4r47h/project-guardian/internal/cache"
	"github.com/0x-b4r47h/project-guardian/internal/pii"
)

// outputColumns is the fixed output container schema.
var outputColumns = []string{"record_id", "redacted_data_json", "is_pii"}

// Pipeline drives a dataset through the analyzer: it decodes the input
// container, fans records out to a worker pool, and re-associates results
// with their record identifiers in input order. The analyzer itself is
// stateless across records, so workers share it read-only.
type Pipeline struct {
	analyzer     *pii.Analyzer
	verdictCache *cache.VerdictCache // optional
	auditStore   *audit.Store        // optional
	config       *Config
	logger       *zap.Logger
	startTime    time.Time
}

// NewPipeline creates a new batch pipeline. Cache and audit store may be
// nil, in which case those stages are skipped.
func NewPipeline(
	analyzer *pii.Analyzer,
	verdictCache *cache.VerdictCache,
	auditStore *audit.Store,
	config *Config,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		analyzer:     analyzer,
		verdictCache: verdictCache,
		auditStore:   auditStore,
		config:       config,
		logger:       logger,
	}
}

// ProcessFile processes a dataset file (CSV, NDJSON, or Parquet) and
// writes the redacted output container.
func (p *Pipeline) ProcessFile(ctx context.Context, inputPath, outputPath string) (*ProcessingResult, error) {
	p.startTime = time.Now()
	result := &ProcessingResult{}

	format := DetectFileFormat(inputPath)
	p.logger.Info("Starting batch pipeline",
		zap.String("file", inputPath),
		zap.String("format", string(format)),
		zap.Int("batch_size", p.config.BatchSize),
		zap.Int("workers", p.config.Workers))

	reader, closeReader, err := p.openReader(inputPath, format)
	if err != nil {
		return result, err
	}
	if closeReader != nil {
		defer closeReader()
	}

	writer, closeWriter, err := p.openWriter(outputPath)
	if err != nil {
		return result, err
	}
	defer closeWriter()

	if err := p.processBatches(ctx, reader, writer, result); err != nil {
		return result, err
	}

	if err := writer.Error(); err != nil {
		return result, fmt.Errorf("failed to write output: %w", err)
	}

	result.Duration = time.Since(p.startTime)
	p.logger.Info("Batch pipeline completed",
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("processed_ok", result.ProcessedOK),
		zap.Int64("parse_failed", result.ParseFailed),
		zap.Int64("flagged_pii", result.FlaggedPII),
		zap.Int64("cache_hits", result.CacheHits),
		zap.Duration("total_duration", result.Duration),
		zap.Float64("records_per_sec", float64(result.TotalRecords)/result.Duration.Seconds()))

	return result, nil
}

// openReader builds the row reader for the detected format.
func (p *Pipeline) openReader(path string, format FileFormat) (rowReader, func() error, error) {
	switch format {
	case FormatCSV:
		r, err := newCSVReader(path, p.logger)
		return r, nil, err
	case FormatJSON:
		r, err := newJSONReader(path, p.logger)
		return r, nil, err
	case FormatParquet:
		r, err := newParquetReader(path, p.logger)
		if err != nil {
			return nil, nil, err
		}
		return r, r.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported file format: %s", format)
	}
}

// openWriter opens the output CSV and writes the header. Dry runs write
// nowhere.
func (p *Pipeline) openWriter(path string) (*csv.Writer, func(), error) {
	if p.config.DryRun {
		writer := csv.NewWriter(io.Discard)
		return writer, writer.Flush, nil
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}

	writer := csv.NewWriter(file)
	if err := writer.Write(outputColumns); err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("failed to write output header: %w", err)
	}

	return writer, func() {
		writer.Flush()
		file.Close()
	}, nil
}

// processBatches reads and analyzes the input in batches until EOF.
func (p *Pipeline) processBatches(ctx context.Context, reader rowReader, writer *csv.Writer, result *ProcessingResult) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rows, err := p.readBatch(reader)
		if err != nil {
			return fmt.Errorf("failed to read batch: %w", err)
		}
		if len(rows) == 0 {
			break
		}

		if err := p.processBatch(ctx, rows, writer, result); err != nil {
			p.logger.Error("Batch processing failed", zap.Error(err))
			result.Errors = append(result.Errors, err.Error())
			continue
		}

		if p.config.ProgressReport > 0 && result.TotalRecords%int64(p.config.ProgressReport) == 0 {
			p.reportProgress(result)
		}
	}
	return nil
}

// readBatch pulls up to BatchSize rows from the reader.
func (p *Pipeline) readBatch(reader rowReader) ([]InputRow, error) {
	var rows []InputRow
	for len(rows) < p.config.BatchSize {
		row, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// batchOutcome carries one row's analysis through re-association.
type batchOutcome struct {
	row      InputRow
	verdict  pii.Verdict
	cacheHit bool
}

// processBatch analyzes one batch concurrently and writes results in
// input order.
func (p *Pipeline) processBatch(ctx context.Context, rows []InputRow, writer *csv.Writer, result *ProcessingResult) error {
	analysisStart := time.Now()
	outcomes := make([]batchOutcome, len(rows))

	var cacheHits int64
	indexes := make(chan int)
	var wg sync.WaitGroup

	workers := p.config.Workers
	if workers > len(rows) {
		workers = len(rows)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				outcomes[i] = p.analyzeRow(ctx, rows[i], &cacheHits)
			}
		}()
	}
	for i := range rows {
		indexes <- i
	}
	close(indexes)
	wg.Wait()

	result.AnalysisTime += time.Since(analysisStart)
	result.CacheHits += cacheHits

	// Emit results in input order, re-associated by record identifier.
	for _, out := range outcomes {
		result.TotalRecords++
		row := out.row

		if row.ParseFailed {
			result.ParseFailed++
			if err := writer.Write([]string{row.RecordID, row.RawPayload, "false"}); err != nil {
				return fmt.Errorf("failed to write result row: %w", err)
			}
			continue
		}

		redactedJSON, err := json.Marshal(out.verdict.Redacted)
		if err != nil {
			return fmt.Errorf("failed to serialize redacted record: %w", err)
		}

		result.ProcessedOK++
		if out.verdict.HasPII {
			result.FlaggedPII++
		}

		if err := writer.Write([]string{row.RecordID, string(redactedJSON), strconv.FormatBool(out.verdict.HasPII)}); err != nil {
			return fmt.Errorf("failed to write result row: %w", err)
		}
	}

	p.storeBatch(ctx, outcomes, result)
	return nil
}

// analyzeRow resolves one row through the cache or the analyzer.
func (p *Pipeline) analyzeRow(ctx context.Context, row InputRow, cacheHits *int64) batchOutcome {
	if row.ParseFailed {
		return batchOutcome{row: row}
	}

	if p.verdictCache != nil {
		if lookup, err := p.verdictCache.Lookup(ctx, row.Payload); err == nil && lookup.CacheHit {
			atomic.AddInt64(cacheHits, 1)
			return batchOutcome{row: row, verdict: *lookup.Verdict, cacheHit: true}
		}
	}

	return batchOutcome{row: row, verdict: p.analyzer.Analyze(row.Payload)}
}

// storeBatch updates the verdict cache and the audit log for the batch.
// Both stages are best-effort; failures are logged, not fatal.
func (p *Pipeline) storeBatch(ctx context.Context, outcomes []batchOutcome, result *ProcessingResult) {
	var recordIDs []string
	var records []pii.Record
	var verdicts []pii.Verdict
	var freshRecords []pii.Record
	var freshVerdicts []pii.Verdict

	for _, out := range outcomes {
		if out.row.ParseFailed {
			continue
		}
		recordIDs = append(recordIDs, out.row.RecordID)
		records = append(records, out.row.Payload)
		verdicts = append(verdicts, out.verdict)
		if !out.cacheHit {
			freshRecords = append(freshRecords, out.row.Payload)
			freshVerdicts = append(freshVerdicts, out.verdict)
		}
	}

	if p.config.UpdateCache && p.verdictCache != nil && len(freshRecords) > 0 {
		start := time.Now()
		if err := p.verdictCache.StoreBatch(ctx, freshRecords, freshVerdicts); err != nil {
			p.logger.Warn("Failed to update verdict cache", zap.Error(err))
		}
		result.CacheTime += time.Since(start)
	}

	if p.config.UpdateAudit && p.auditStore != nil && len(records) > 0 {
		start := time.Now()
		if _, err := p.auditStore.BatchInsert(ctx, recordIDs, records, verdicts); err != nil {
			p.logger.Warn("Failed to update audit log", zap.Error(err))
		}
		result.DatabaseTime += time.Since(start)
	}
}

// reportProgress reports current processing progress.
func (p *Pipeline) reportProgress(result *ProcessingResult) {
	elapsed := time.Since(p.startTime)
	rate := float64(result.TotalRecords) / elapsed.Seconds()

	p.logger.Info("Processing progress",
		zap.Int64("records_processed", result.TotalRecords),
		zap.Int64("flagged_pii", result.FlaggedPII),
		zap.Int64("parse_failed", result.ParseFailed),
		zap.Float64("rate_per_sec", rate),
		zap.Duration("elapsed", elapsed))
}
