package batch

import (
	"strings"
	"time"

	"github.com/0x-b4r47h/project-guardian/internal/pii"
)

// InputRow is a single row of the input dataset. When the payload column
// could not be parsed the row carries ParseFailed and passes through
// untouched; malformed payloads never reach the analyzer.
type InputRow struct {
	RecordID    string
	Payload     pii.Record
	RawPayload  string
	ParseFailed bool
}

// ResultRow is the per-record output: the caller-supplied identifier, the
// re-serialized redacted payload, and the verdict.
type ResultRow struct {
	RecordID     string `json:"record_id"`
	RedactedJSON string `json:"redacted_data_json"`
	HasPII       bool   `json:"is_pii"`
}

// Config contains batch pipeline configuration.
type Config struct {
	BatchSize      int  `yaml:"batch_size" mapstructure:"batch_size"`
	Workers        int  `yaml:"workers" mapstructure:"workers"`
	ProgressReport int  `yaml:"progress_report" mapstructure:"progress_report"`
	DryRun         bool `yaml:"dry_run" mapstructure:"dry_run"`
	UpdateCache    bool `yaml:"update_cache" mapstructure:"update_cache"`
	UpdateAudit    bool `yaml:"update_audit" mapstructure:"update_audit"`
}

// ProcessingResult summarizes one pipeline run.
type ProcessingResult struct {
	TotalRecords int64         `json:"total_records"`
	ProcessedOK  int64         `json:"processed_ok"`
	ParseFailed  int64         `json:"parse_failed"`
	FlaggedPII   int64         `json:"flagged_pii"`
	CacheHits    int64         `json:"cache_hits"`
	Duration     time.Duration `json:"duration"`
	AnalysisTime time.Duration `json:"analysis_time"`
	DatabaseTime time.Duration `json:"database_time"`
	CacheTime    time.Duration `json:"cache_time"`
	Errors       []string      `json:"errors,omitempty"`
}

// FileFormat represents supported input formats.
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatParquet FileFormat = "parquet"
	FormatJSON    FileFormat = "json"
)

// DetectFileFormat detects the input format from the file extension.
func DetectFileFormat(filename string) FileFormat {
	switch {
	case strings.HasSuffix(filename, ".parquet"):
		return FormatParquet
	case strings.HasSuffix(filename, ".json") || strings.HasSuffix(filename, ".jsonl") || strings.HasSuffix(filename, ".ndjson"):
		return FormatJSON
	default:
		return FormatCSV
	}
}
