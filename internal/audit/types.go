package audit

import (
	"time"
)

// Entry is one audited verdict row.
type Entry struct {
	ID          int64     `db:"id" json:"id"`
	RecordID    string    `db:"record_id" json:"record_id"`
	PayloadHash string    `db:"payload_hash" json:"payload_hash"`
	HasPII      bool      `db:"is_pii" json:"is_pii"`
	Categories  string    `db:"categories" json:"categories"` // comma-joined category names
	ProcessedAt time.Time `db:"processed_at" json:"processed_at"`
}

// BatchInsertResult summarizes a batch insert.
type BatchInsertResult struct {
	Inserted int64         `json:"inserted"`
	Failed   int64         `json:"failed"`
	Duration time.Duration `json:"duration"`
	Errors   []error       `json:"-"`
}

// Stats summarizes the audit log.
type Stats struct {
	TotalRecords int64   `json:"total_records"`
	FlaggedCount int64   `json:"flagged_count"`
	CleanCount   int64   `json:"clean_count"`
	FlaggedRate  float64 `json:"flagged_rate"`
}

// Config contains database configuration.
type Config struct {
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
}
