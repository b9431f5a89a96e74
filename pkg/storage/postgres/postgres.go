// Package postgres provides a PostgreSQL implementation of transport.AnswerStore.
// It uses pgx/v5 for connection pooling. Deleted answers are soft-deleted.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/askdocs/pkg/api"
	"github.com/rhuss/askdocs/pkg/debug"
	"github.com/rhuss/askdocs/pkg/storage"
	"github.com/rhuss/askdocs/pkg/transport"
)

// uniqueViolation is the PostgreSQL SQLSTATE for duplicate keys.
const uniqueViolation = "23505"

const selectColumns = `
	SELECT id, status, model, question, answer, sources,
	       usage_input_tokens, usage_output_tokens, usage_total_tokens,
	       error, created_at
	FROM answers`

// Store is a PostgreSQL-backed AnswerStore.
type Store struct {
	pool *pgxpool.Pool
}

// Ensure Store implements transport.AnswerStore at compile time.
var _ transport.AnswerStore = (*Store)(nil)

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	poolCfg, err := cfg.poolConfig()
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Verify connectivity.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// SaveAnswer persists a finished answer.
func (s *Store) SaveAnswer(ctx context.Context, a *api.Answer) error {
	var errorJSON []byte
	if a.Error != nil {
		var err error
		errorJSON, err = json.Marshal(a.Error)
		if err != nil {
			return fmt.Errorf("marshaling error: %w", err)
		}
	}

	var usageIn, usageOut, usageTotal int
	if a.Usage != nil {
		usageIn = a.Usage.InputTokens
		usageOut = a.Usage.OutputTokens
		usageTotal = a.Usage.TotalTokens
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO answers (
			id, tenant_id, status, model, question, answer, sources,
			usage_input_tokens, usage_output_tokens, usage_total_tokens,
			error, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		a.ID, storage.GetTenant(ctx), string(a.Status), a.Model, a.Question, a.Answer, a.Sources,
		usageIn, usageOut, usageTotal,
		nullJSON(errorJSON), a.CreatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting answer: %w", err)
	}

	debug.Log("storage", "saved answer", "answer_id", a.ID, "status", a.Status)
	return nil
}

// GetAnswer retrieves an answer by ID, excluding soft-deleted answers.
func (s *Store) GetAnswer(ctx context.Context, id string) (*api.Answer, error) {
	q := newQuery(selectColumns)
	q.where("id = " + q.arg(id))
	q.where("deleted_at IS NULL")
	q.tenant(ctx)

	a, err := scanAnswer(s.pool.QueryRow(ctx, q.String(), q.args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying answer: %w", err)
	}
	return a, nil
}

// DeleteAnswer soft-deletes an answer by setting deleted_at.
func (s *Store) DeleteAnswer(ctx context.Context, id string) error {
	q := newQuery("UPDATE answers SET deleted_at = $1")
	q.args = append(q.args, time.Now())
	q.where("id = " + q.arg(id))
	q.where("deleted_at IS NULL")
	q.tenant(ctx)

	result, err := s.pool.Exec(ctx, q.String(), q.args...)
	if err != nil {
		return fmt.Errorf("deleting answer: %w", err)
	}

	if result.RowsAffected() == 0 {
		return storage.ErrNotFound
	}

	return nil
}

// ListAnswers returns a page of answers ordered by creation time, then ID.
// A cursor that does not match a visible answer yields an empty page.
func (s *Store) ListAnswers(ctx context.Context, opts transport.ListOptions) (*api.AnswerList, error) {
	asc := opts.Order == "asc"
	limit := storage.EffectiveLimit(opts.Limit)

	q := newQuery(selectColumns)
	q.where("deleted_at IS NULL")
	q.tenant(ctx)
	if opts.Model != "" {
		q.where("model = " + q.arg(opts.Model))
	}

	// "after" moves forward in the listing order, "before" backward.
	cursor, forward := opts.After, true
	if cursor == "" && opts.Before != "" {
		cursor, forward = opts.Before, false
	}
	if cursor != "" {
		op := "<"
		if asc == forward {
			op = ">"
		}
		q.where(fmt.Sprintf("(created_at, id) %s (SELECT created_at, id FROM answers WHERE id = %s AND deleted_at IS NULL)", op, q.arg(cursor)))
	}

	dir := "DESC"
	if asc {
		dir = "ASC"
	}
	query := fmt.Sprintf("%s ORDER BY created_at %s, id %s LIMIT %s", q.String(), dir, dir, q.arg(limit+1))

	rows, err := s.pool.Query(ctx, query, q.args...)
	if err != nil {
		return nil, fmt.Errorf("listing answers: %w", err)
	}
	answers, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*api.Answer, error) {
		return scanAnswer(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scanning answers: %w", err)
	}

	result := &api.AnswerList{Object: "list", Data: answers}
	if len(answers) > limit {
		result.HasMore = true
		result.Data = answers[:limit]
	}
	if result.Data == nil {
		result.Data = []*api.Answer{}
	}
	if n := len(result.Data); n > 0 {
		result.FirstID = result.Data[0].ID
		result.LastID = result.Data[n-1].ID
	}
	return result, nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// scanAnswer reads one row selected with selectColumns.
func scanAnswer(row pgx.Row) (*api.Answer, error) {
	var a api.Answer
	var status string
	var errorJSON []byte
	var usage api.Usage

	if err := row.Scan(
		&a.ID, &status, &a.Model, &a.Question, &a.Answer, &a.Sources,
		&usage.InputTokens, &usage.OutputTokens, &usage.TotalTokens,
		&errorJSON, &a.CreatedAt,
	); err != nil {
		return nil, err
	}

	a.Object = "answer"
	a.Status = api.AnswerStatus(status)
	if usage != (api.Usage{}) {
		a.Usage = &usage
	}

	if errorJSON != nil {
		var apiErr api.APIError
		if err := json.Unmarshal(errorJSON, &apiErr); err == nil {
			a.Error = &apiErr
		}
	}

	return &a, nil
}

// query builds a statement with positional arguments.
type query struct {
	base       string
	conditions []string
	args       []any
}

func newQuery(base string) *query {
	return &query{base: base}
}

// arg appends v and returns its placeholder.
func (q *query) arg(v any) string {
	q.args = append(q.args, v)
	return fmt.Sprintf("$%d", len(q.args))
}

func (q *query) where(cond string) {
	q.conditions = append(q.conditions, cond)
}

// tenant scopes the statement to the tenant in ctx, if any.
func (q *query) tenant(ctx context.Context) {
	if tenantID := storage.GetTenant(ctx); tenantID != "" {
		q.where("tenant_id = " + q.arg(tenantID))
	}
}

func (q *query) String() string {
	if len(q.conditions) == 0 {
		return q.base
	}
	return q.base + " WHERE " + strings.Join(q.conditions, " AND ")
}

// nullJSON converts nil/empty byte slices to nil for nullable JSONB columns.
func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

// isDuplicateKey checks if the error is a PostgreSQL unique violation.
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
