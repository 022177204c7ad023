package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"custodia/pkg/platform/sentinel"
)

// PostgresStore persists projections in PostgreSQL. Membership sets are JSONB
// arrays on each document row, mirroring the document-store shape the case
// linker expects: the two sides of a link are two independent single-row
// writes.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres opens a connection pool against the given DSN using the pgx
// stdlib driver.
func NewPostgres(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// EnsureSchema creates the projection tables when absent.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS evidence_projections (
    evidence_id   BIGINT PRIMARY KEY,
    content_id    TEXT NOT NULL,
    original_name TEXT NOT NULL,
    mime_type     TEXT NOT NULL,
    display_name  TEXT NOT NULL,
    description   TEXT NOT NULL DEFAULT '',
    owner         TEXT NOT NULL,
    version       INT NOT NULL DEFAULT 1,
    case_ids      JSONB NOT NULL DEFAULT '[]',
    registered_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_evidence_projections_owner ON evidence_projections(owner);

CREATE TABLE IF NOT EXISTS cases (
    case_id      TEXT PRIMARY KEY,
    title        TEXT NOT NULL,
    description  TEXT NOT NULL DEFAULT '',
    owner        TEXT NOT NULL,
    evidence_ids JSONB NOT NULL DEFAULT '[]',
    created_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cases_owner ON cases(owner);`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure index schema: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) UpsertEvidence(ctx context.Context, projection EvidenceProjection) error {
	const query = `
INSERT INTO evidence_projections
    (evidence_id, content_id, original_name, mime_type, display_name, description, owner, version, case_ids, registered_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, 1, '[]', $8)
ON CONFLICT (evidence_id) DO UPDATE SET
    content_id    = EXCLUDED.content_id,
    original_name = EXCLUDED.original_name,
    mime_type     = EXCLUDED.mime_type,
    display_name  = EXCLUDED.display_name,
    description   = EXCLUDED.description,
    owner         = EXCLUDED.owner,
    version       = evidence_projections.version + 1,
    registered_at = EXCLUDED.registered_at`
	_, err := s.db.ExecContext(ctx, query,
		projection.EvidenceID, projection.ContentID, projection.OriginalName,
		projection.MimeType, projection.DisplayName, projection.Description,
		projection.Owner, projection.RegisteredAt)
	if err != nil {
		return fmt.Errorf("upsert evidence projection: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindEvidence(ctx context.Context, evidenceID int64) (EvidenceProjection, error) {
	const query = `
SELECT evidence_id, content_id, original_name, mime_type, display_name, description, owner, version, case_ids, registered_at
FROM evidence_projections WHERE evidence_id = $1`
	return scanEvidence(s.db.QueryRowContext(ctx, query, evidenceID))
}

func (s *PostgresStore) ListEvidenceByOwner(ctx context.Context, owner string) ([]EvidenceProjection, error) {
	const query = `
SELECT evidence_id, content_id, original_name, mime_type, display_name, description, owner, version, case_ids, registered_at
FROM evidence_projections WHERE owner = $1 ORDER BY evidence_id`
	rows, err := s.db.QueryContext(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("list evidence by owner: %w", err)
	}
	defer rows.Close()

	var out []EvidenceProjection
	for rows.Next() {
		projection, err := scanEvidence(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, projection)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteEvidence(ctx context.Context, evidenceID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM evidence_projections WHERE evidence_id = $1`, evidenceID)
	if err != nil {
		return fmt.Errorf("delete evidence projection: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) SaveCase(ctx context.Context, c Case) error {
	evidenceIDs, err := json.Marshal(emptyIfNilInt64(c.EvidenceIDs))
	if err != nil {
		return fmt.Errorf("marshal case membership: %w", err)
	}
	const query = `
INSERT INTO cases (case_id, title, description, owner, evidence_ids, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (case_id) DO UPDATE SET
    title        = EXCLUDED.title,
    description  = EXCLUDED.description,
    owner        = EXCLUDED.owner,
    evidence_ids = EXCLUDED.evidence_ids`
	if _, err := s.db.ExecContext(ctx, query, c.CaseID, c.Title, c.Description, c.Owner, evidenceIDs, c.CreatedAt); err != nil {
		return fmt.Errorf("save case: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindCase(ctx context.Context, caseID string) (Case, error) {
	const query = `
SELECT case_id, title, description, owner, evidence_ids, created_at FROM cases WHERE case_id = $1`
	return scanCase(s.db.QueryRowContext(ctx, query, caseID))
}

func (s *PostgresStore) ListCasesByOwner(ctx context.Context, owner string) ([]Case, error) {
	const query = `
SELECT case_id, title, description, owner, evidence_ids, created_at
FROM cases WHERE owner = $1 ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("list cases by owner: %w", err)
	}
	defer rows.Close()

	var out []Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteCase(ctx context.Context, caseID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cases WHERE case_id = $1`, caseID)
	if err != nil {
		return fmt.Errorf("delete case: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) AddEvidenceIDToCase(ctx context.Context, caseID string, evidenceID int64) error {
	const query = `
UPDATE cases
SET evidence_ids = CASE
    WHEN evidence_ids @> to_jsonb($2::bigint) THEN evidence_ids
    ELSE evidence_ids || to_jsonb($2::bigint)
END
WHERE case_id = $1`
	res, err := s.db.ExecContext(ctx, query, caseID, evidenceID)
	if err != nil {
		return fmt.Errorf("link evidence to case: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) AddCaseIDToEvidence(ctx context.Context, evidenceID int64, caseID string) error {
	const query = `
UPDATE evidence_projections
SET case_ids = CASE
    WHEN case_ids @> to_jsonb($2::text) THEN case_ids
    ELSE case_ids || to_jsonb($2::text)
END
WHERE evidence_id = $1`
	res, err := s.db.ExecContext(ctx, query, evidenceID, caseID)
	if err != nil {
		return fmt.Errorf("link case to evidence: %w", err)
	}
	return requireRow(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvidence(row rowScanner) (EvidenceProjection, error) {
	var projection EvidenceProjection
	var caseIDs []byte
	err := row.Scan(&projection.EvidenceID, &projection.ContentID, &projection.OriginalName,
		&projection.MimeType, &projection.DisplayName, &projection.Description,
		&projection.Owner, &projection.Version, &caseIDs, &projection.RegisteredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return EvidenceProjection{}, sentinel.ErrNotFound
	}
	if err != nil {
		return EvidenceProjection{}, fmt.Errorf("scan evidence projection: %w", err)
	}
	if err := json.Unmarshal(caseIDs, &projection.CaseIDs); err != nil {
		return EvidenceProjection{}, fmt.Errorf("unmarshal case membership: %w", err)
	}
	return projection, nil
}

func scanCase(row rowScanner) (Case, error) {
	var c Case
	var evidenceIDs []byte
	err := row.Scan(&c.CaseID, &c.Title, &c.Description, &c.Owner, &evidenceIDs, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Case{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Case{}, fmt.Errorf("scan case: %w", err)
	}
	if err := json.Unmarshal(evidenceIDs, &c.EvidenceIDs); err != nil {
		return Case{}, fmt.Errorf("unmarshal evidence membership: %w", err)
	}
	return c, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func emptyIfNilInt64(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
