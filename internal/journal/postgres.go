package journal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultListLimit = 128
	maxListLimit     = 1024
)

const (
	journalInsertSQL = `
INSERT INTO fee_journal (
    id,
    pass_id,
    project_id,
    action,
    line_key,
    quantity,
    delta,
    editor_total,
    shopify_line,
    created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
`

	journalListSQL = `
SELECT
    id,
    pass_id,
    project_id,
    action,
    line_key,
    quantity,
    delta,
    editor_total,
    shopify_line,
    created_at
FROM fee_journal
WHERE ($1 = '' OR project_id = $1)
ORDER BY created_at DESC, id DESC
LIMIT $2;
`
)

// PostgresStore persists the fee journal in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs a journal backed by the provided pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Record appends one entry.
func (s *PostgresStore) Record(ctx context.Context, entry Entry) error {
	if strings.TrimSpace(entry.ProjectID) == "" {
		return fmt.Errorf("journal record: project id required")
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, journalInsertSQL,
		entry.ID,
		entry.PassID,
		entry.ProjectID,
		string(entry.Action),
		entry.LineKey,
		entry.Quantity,
		entry.Delta,
		entry.EditorTotal,
		entry.ShopifyLine,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("journal insert: %w", err)
	}
	return nil
}

// List returns entries newest-first, optionally scoped to a project.
func (s *PostgresStore) List(ctx context.Context, query Query) ([]Entry, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	rows, err := s.pool.Query(ctx, journalListSQL, query.ProjectID, limit)
	if err != nil {
		return nil, fmt.Errorf("journal list: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var entry Entry
		var action string
		if err := rows.Scan(
			&entry.ID,
			&entry.PassID,
			&entry.ProjectID,
			&action,
			&entry.LineKey,
			&entry.Quantity,
			&entry.Delta,
			&entry.EditorTotal,
			&entry.ShopifyLine,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("journal scan: %w", err)
		}
		entry.Action = Action(action)
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal rows: %w", err)
	}
	return out, nil
}
