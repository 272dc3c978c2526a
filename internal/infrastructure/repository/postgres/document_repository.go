package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/medical-evidence-rag/internal/core/domain"
	"github.com/kirillkom/medical-evidence-rag/internal/infrastructure/resilience"
)

// Postgres caps bind parameters per statement; stay far below it.
const maxIDsPerQuery = 500

// DocumentMetadataRepository serves review-level metadata (title, DOI,
// evidence grade) keyed by the document_id stored on every chunk.
type DocumentMetadataRepository struct {
	db       *sql.DB
	executor *resilience.Executor
}

func NewDocumentMetadataRepository(db *sql.DB, executor *resilience.Executor) *DocumentMetadataRepository {
	return &DocumentMetadataRepository{db: db, executor: executor}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *DocumentMetadataRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101601)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS document_metadata (
	document_id TEXT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	url TEXT NOT NULL DEFAULT '',
	doi TEXT NOT NULL DEFAULT '',
	topic_name TEXT NOT NULL DEFAULT '',
	quality_grade TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_document_metadata_topic ON document_metadata(topic_name);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// BatchFetchDocumentMetadata returns metadata for the known ids; unknown ids
// are simply absent from the map.
func (r *DocumentMetadataRepository) BatchFetchDocumentMetadata(ctx context.Context, documentIDs []string) (map[string]domain.DocumentMetadata, error) {
	out := make(map[string]domain.DocumentMetadata, len(documentIDs))
	for start := 0; start < len(documentIDs); start += maxIDsPerQuery {
		end := start + maxIDsPerQuery
		if end > len(documentIDs) {
			end = len(documentIDs)
		}
		batch := documentIDs[start:end]
		err := r.executor.Execute(ctx, "postgres.document_metadata", func(ctx context.Context) error {
			return r.fetchBatch(ctx, batch, out)
		}, classifyDBError)
		if err != nil {
			return nil, resilience.MarkTemporary("fetch document metadata", err, classifyDBError)
		}
	}
	return out, nil
}

func (r *DocumentMetadataRepository) fetchBatch(ctx context.Context, ids []string, out map[string]domain.DocumentMetadata) error {
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT document_id, title, url, doi, topic_name, quality_grade
FROM document_metadata
WHERE document_id IN (`+strings.Join(placeholders, ",")+`)
`, args...)
	if err != nil {
		return fmt.Errorf("query document metadata: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var meta domain.DocumentMetadata
		if err := rows.Scan(&id, &meta.Title, &meta.URL, &meta.DOI, &meta.TopicName, &meta.QualityGrade); err != nil {
			return fmt.Errorf("scan document metadata: %w", err)
		}
		meta.QualityGrade = strings.ToUpper(strings.TrimSpace(meta.QualityGrade))
		out[id] = meta
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate document metadata: %w", err)
	}
	return nil
}

func (r *DocumentMetadataRepository) Upsert(ctx context.Context, documentID string, meta domain.DocumentMetadata) error {
	if strings.TrimSpace(documentID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "upsert document metadata", fmt.Errorf("document_id is required"))
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO document_metadata (document_id, title, url, doi, topic_name, quality_grade, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (document_id) DO UPDATE
SET title = EXCLUDED.title, url = EXCLUDED.url, doi = EXCLUDED.doi,
	topic_name = EXCLUDED.topic_name, quality_grade = EXCLUDED.quality_grade, updated_at = EXCLUDED.updated_at
`, documentID, meta.Title, meta.URL, meta.DOI, meta.TopicName, strings.ToUpper(meta.QualityGrade), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert document metadata: %w", err)
	}
	return nil
}

func (r *DocumentMetadataRepository) Ready(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// classifyDBError retries only connection-level failures; query errors are
// deterministic.
func classifyDBError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	class := resilience.ClassifyHTTPError(err)
	if strings.Contains(err.Error(), "bad connection") || strings.Contains(err.Error(), "connection refused") {
		class.Retryable = true
		class.RecordFailure = true
	}
	return class
}
