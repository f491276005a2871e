package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/0x-b4r47h/project-guardian/internal/pii"
)

// Store persists analysis verdicts to PostgreSQL for auditing.
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS verdicts (
	id           BIGSERIAL PRIMARY KEY,
	record_id    TEXT NOT NULL,
	payload_hash TEXT NOT NULL UNIQUE,
	is_pii       BOOLEAN NOT NULL,
	categories   TEXT NOT NULL DEFAULT '',
	processed_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// NewStore creates a new audit store instance.
func NewStore(config *Config, logger *zap.Logger) (*Store, error) {
	db, err := sqlx.Connect("postgres", config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	store := &Store{db: db, logger: logger}

	if err := store.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	logger.Info("Audit store initialized",
		zap.String("database_url", maskDatabaseURL(config.DatabaseURL)),
		zap.Int("max_open_conns", config.MaxOpenConns),
		zap.Int("max_idle_conns", config.MaxIdleConns))

	return store, nil
}

// initialize checks the connection and ensures the verdicts table.
func (s *Store) initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure verdicts table: %w", err)
	}

	return nil
}

// Insert records a single verdict.
func (s *Store) Insert(ctx context.Context, recordID string, rec pii.Record, verdict pii.Verdict) error {
	hash, err := payloadHash(rec)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO verdicts (record_id, payload_hash, is_pii, categories)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (payload_hash) DO NOTHING`

	if _, err := s.db.ExecContext(ctx, query, recordID, hash, verdict.HasPII, joinCategories(verdict.Categories)); err != nil {
		s.logger.Error("Failed to insert verdict",
			zap.Error(err),
			zap.String("record_id", recordID))
		return fmt.Errorf("failed to insert verdict: %w", err)
	}

	return nil
}

// BatchInsert records multiple verdicts efficiently.
func (s *Store) BatchInsert(ctx context.Context, recordIDs []string, records []pii.Record, verdicts []pii.Verdict) (*BatchInsertResult, error) {
	if len(recordIDs) != len(records) || len(records) != len(verdicts) {
		return nil, fmt.Errorf("record IDs, records and verdicts length mismatch")
	}
	if len(records) == 0 {
		return &BatchInsertResult{}, nil
	}

	start := time.Now()
	result := &BatchInsertResult{}

	valueStrings := make([]string, 0, len(records))
	valueArgs := make([]interface{}, 0, len(records)*4)

	for i := range records {
		hash, err := payloadHash(records[i])
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, err)
			continue
		}
		n := len(valueStrings)
		valueStrings = append(valueStrings, fmt.Sprintf("($%d, $%d, $%d, $%d)", n*4+1, n*4+2, n*4+3, n*4+4))
		valueArgs = append(valueArgs, recordIDs[i], hash, verdicts[i].HasPII, joinCategories(verdicts[i].Categories))
	}

	if len(valueStrings) == 0 {
		return result, nil
	}

	query := fmt.Sprintf(`
		INSERT INTO verdicts (record_id, payload_hash, is_pii, categories)
		VALUES %s
		ON CONFLICT (payload_hash) DO NOTHING`,
		strings.Join(valueStrings, ","))

	res, err := s.db.ExecContext(ctx, query, valueArgs...)
	if err != nil {
		result.Failed = int64(len(records))
		result.Errors = append(result.Errors, err)
		s.logger.Error("Batch insert failed", zap.Error(err))
		return result, fmt.Errorf("batch insert failed: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		s.logger.Warn("Could not get rows affected", zap.Error(err))
		inserted = int64(len(valueStrings))
	}

	result.Inserted = inserted
	result.Duration = time.Since(start)

	s.logger.Info("Batch insert completed",
		zap.Int64("inserted", result.Inserted),
		zap.Int64("duplicates_skipped", int64(len(valueStrings))-inserted),
		zap.Int64("failed", result.Failed),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// GetStats returns audit log statistics.
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	query := `
		SELECT
			COUNT(*) as total,
			COUNT(CASE WHEN is_pii THEN 1 END) as flagged,
			COUNT(CASE WHEN NOT is_pii THEN 1 END) as clean
		FROM verdicts`

	if err := s.db.QueryRowContext(ctx, query).Scan(
		&stats.TotalRecords,
		&stats.FlaggedCount,
		&stats.CleanCount,
	); err != nil {
		return nil, fmt.Errorf("failed to get verdict stats: %w", err)
	}

	if stats.TotalRecords > 0 {
		stats.FlaggedRate = float64(stats.FlaggedCount) / float64(stats.TotalRecords) * 100
	}

	return stats, nil
}

// RecentFlagged returns the most recent flagged entries, newest first.
func (s *Store) RecentFlagged(ctx context.Context, limit int) ([]Entry, error) {
	var entries []Entry
	query := `
		SELECT id, record_id, payload_hash, is_pii, categories, processed_at
		FROM verdicts
		WHERE is_pii
		ORDER BY processed_at DESC
		LIMIT $1`

	if err := s.db.SelectContext(ctx, &entries, query, limit); err != nil {
		return nil, fmt.Errorf("failed to query flagged entries: %w", err)
	}
	return entries, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// payloadHash hashes the canonical record JSON, matching the cache key.
func payloadHash(rec pii.Record) (string, error) {
	canonical, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize record: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

func joinCategories(categories []pii.Category) string {
	parts := make([]string, len(categories))
	for i, c := range categories {
		parts[i] = string(c)
	}
	return strings.Join(parts, ",")
}

// maskDatabaseURL masks credentials in a database URL for logging.
func maskDatabaseURL(url string) string {
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) >= 2 {
			userPart := parts[0]
			if strings.Contains(userPart, ":") {
				userParts := strings.Split(userPart, ":")
				if len(userParts) >= 3 {
					userParts[len(userParts)-1] = "***"
					parts[0] = strings.Join(userParts, ":")
				}
			}
			return strings.Join(parts, "@")
		}
	}
	return url
}
