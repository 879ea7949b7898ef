package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lockwhz/ai-scan-service/internal/logger"
	"github.com/lockwhz/ai-scan-service/models"
)

// RDSStore implementa os stores de cache, rate limit e uso sobre um PostgreSQL (RDS).
type RDSStore struct {
	DB  *sql.DB
	now func() time.Time
}

func NewRDSStore(db *sql.DB) *RDSStore {
	return &RDSStore{DB: db, now: time.Now}
}

/* ============================== Cache ============================== */

// GetCacheEntry devolve nil, nil quando não há entrada para (repoHash, commitSHA).
func (r *RDSStore) GetCacheEntry(ctx context.Context, repoHash, commitSHA string) (*models.CacheEntry, error) {
	start := time.Now()
	defer logger.Trace("GetCacheEntry", start)

	const query = `SELECT results, security_score, files_scanned, scan_metadata
		FROM scan_cache WHERE repo_hash = $1 AND commit_sha = $2 LIMIT 1`

	var results, score, metadata []byte
	entry := models.CacheEntry{RepoHash: repoHash, CommitSHA: commitSHA}
	err := r.DB.QueryRowContext(ctx, query, repoHash, commitSHA).Scan(&results, &score, &entry.FilesScanned, &metadata)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select scan_cache: %w", err)
	}

	if err := json.Unmarshal(results, &entry.Results); err != nil {
		return nil, fmt.Errorf("decode results: %w", err)
	}
	if err := json.Unmarshal(score, &entry.SecurityScore); err != nil {
		return nil, fmt.Errorf("decode security_score: %w", err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &entry.ScanMetadata); err != nil {
			return nil, fmt.Errorf("decode scan_metadata: %w", err)
		}
	}
	return &entry, nil
}

// UpsertCacheEntry grava a entrada, substituindo a existente com a mesma chave.
func (r *RDSStore) UpsertCacheEntry(ctx context.Context, entry models.CacheEntry) error {
	start := time.Now()
	defer logger.Trace("UpsertCacheEntry", start)

	results := entry.Results
	if results == nil {
		results = []models.Finding{}
	}
	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	scoreJSON, err := json.Marshal(entry.SecurityScore)
	if err != nil {
		return fmt.Errorf("encode security_score: %w", err)
	}
	metadataJSON, err := json.Marshal(entry.ScanMetadata)
	if err != nil {
		return fmt.Errorf("encode scan_metadata: %w", err)
	}

	const query = `INSERT INTO scan_cache (
			id, repo_hash, commit_sha, results, security_score, files_scanned, scan_metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (repo_hash, commit_sha) DO UPDATE SET
			results = EXCLUDED.results,
			security_score = EXCLUDED.security_score,
			files_scanned = EXCLUDED.files_scanned,
			scan_metadata = EXCLUDED.scan_metadata,
			created_at = EXCLUDED.created_at`

	_, err = r.DB.ExecContext(ctx, query,
		uuid.New().String(),
		entry.RepoHash,
		entry.CommitSHA,
		resultsJSON,
		scoreJSON,
		entry.FilesScanned,
		metadataJSON,
		r.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert scan_cache: %w", err)
	}
	return nil
}

/* ============================ Rate limit ============================ */

// WindowUsage soma request_count desde since e devolve o window_start mais antigo
// (zero quando não há linhas).
func (r *RDSStore) WindowUsage(ctx context.Context, userID, function string, since time.Time) (int, time.Time, error) {
	start := time.Now()
	defer logger.Trace("WindowUsage", start)

	const query = `SELECT COALESCE(SUM(request_count), 0), MIN(window_start)
		FROM edge_function_rate_limits
		WHERE user_id = $1 AND function_name = $2 AND window_start >= $3`

	var count int
	var oldest sql.NullTime
	if err := r.DB.QueryRowContext(ctx, query, userID, function, since.UTC()).Scan(&count, &oldest); err != nil {
		return 0, time.Time{}, fmt.Errorf("select rate limits: %w", err)
	}
	if !oldest.Valid {
		return count, time.Time{}, nil
	}
	return count, oldest.Time, nil
}

// InsertRateLimit acrescenta uma linha; linhas duplicadas apenas somam.
func (r *RDSStore) InsertRateLimit(ctx context.Context, rec models.RateLimitRecord) error {
	start := time.Now()
	defer logger.Trace("InsertRateLimit", start)

	const query = `INSERT INTO edge_function_rate_limits (id, user_id, function_name, request_count, window_start)
		VALUES ($1, $2, $3, $4, $5)`

	if _, err := r.DB.ExecContext(ctx, query,
		uuid.New().String(),
		rec.UserID,
		rec.FunctionName,
		rec.RequestCount,
		rec.WindowStart.UTC(),
	); err != nil {
		return fmt.Errorf("insert rate limit: %w", err)
	}
	return nil
}

/* =============================== Uso =============================== */

// SubscriptionTier devolve "" quando o usuário não tem assinatura registrada.
func (r *RDSStore) SubscriptionTier(ctx context.Context, userID string) (string, error) {
	start := time.Now()
	defer logger.Trace("SubscriptionTier", start)

	const query = `SELECT COALESCE(subscription_tier, '') FROM subscribers WHERE user_id = $1 LIMIT 1`

	var tier string
	err := r.DB.QueryRowContext(ctx, query, userID).Scan(&tier)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("select subscriber: %w", err)
	}
	return tier, nil
}

// MonthlyScanCount devolve scan_count do mês "YYYY-MM"; zero quando não há linha.
func (r *RDSStore) MonthlyScanCount(ctx context.Context, userID, monthYear string) (int, error) {
	start := time.Now()
	defer logger.Trace("MonthlyScanCount", start)

	const query = `SELECT scan_count FROM scan_usage WHERE user_id = $1 AND month_year = $2 LIMIT 1`

	var count int
	err := r.DB.QueryRowContext(ctx, query, userID, monthYear).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("select scan_usage: %w", err)
	}
	return count, nil
}
