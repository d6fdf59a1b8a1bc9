package recordrepo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yanqian/support-copilot/internal/domain/support"
	"github.com/yanqian/support-copilot/pkg/util"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS support_records (
	id         TEXT PRIMARY KEY,
	subject    TEXT NOT NULL DEFAULT '',
	question   TEXT NOT NULL,
	answer     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS support_records_created_at_idx ON support_records (created_at DESC, id);
`

// PostgresRepository implements support.Repository using pgx.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository constructs the repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// EnsureSchema creates the records table when it does not exist yet.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure support_records schema: %w", err)
	}
	return nil
}

// ListAll returns every record, newest first.
func (r *PostgresRepository) ListAll(ctx context.Context) ([]support.Record, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, subject, question, answer, created_at, updated_at
		FROM support_records
		ORDER BY created_at DESC, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]support.Record, 0)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

// Upsert inserts the record or replaces the content of an existing row with the same id.
func (r *PostgresRepository) Upsert(ctx context.Context, record support.Record) (support.Record, error) {
	if err := record.Validate(); err != nil {
		return support.Record{}, err
	}
	record = record.Normalize(util.NowUTC())
	row := r.pool.QueryRow(ctx, `
		INSERT INTO support_records (id, subject, question, answer, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET subject = EXCLUDED.subject,
		    question = EXCLUDED.question,
		    answer = EXCLUDED.answer,
		    updated_at = EXCLUDED.updated_at
		RETURNING id, subject, question, answer, created_at, updated_at
	`, record.ID, record.Subject, record.Question, record.Answer, record.CreatedAt, record.UpdatedAt)
	return scanRecord(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (support.Record, error) {
	var record support.Record
	if err := row.Scan(&record.ID, &record.Subject, &record.Question, &record.Answer, &record.CreatedAt, &record.UpdatedAt); err != nil {
		return support.Record{}, err
	}
	record.CreatedAt = record.CreatedAt.UTC()
	record.UpdatedAt = record.UpdatedAt.UTC()
	return record, nil
}

var (
	_ support.Repository = (*PostgresRepository)(nil)
	_ rowScanner         = (pgx.Row)(nil)
)
