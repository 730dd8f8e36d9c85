// Package postgres stores transcripts in a PostgreSQL table with JSONB
// columns for the conversation, the raw response and the parsed value.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/KamdynS/go-structured/llm"
	"github.com/KamdynS/go-structured/transcript"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const defaultTable = "structured_transcripts"

// Querier is the subset of pgx used by the store. *pgxpool.Pool, *pgx.Conn
// and pgx.Tx all satisfy it.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	db    Querier
	table string
}

// Option configures a Store.
type Option func(*Store)

// WithTable overrides the table name. The name is quoted before use.
func WithTable(name string) Option {
	return func(s *Store) {
		s.table = pgx.Identifier{name}.Sanitize()
	}
}

func New(db Querier, opts ...Option) *Store {
	s := &Store{db: db, table: defaultTable}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

const createTableSQL = `CREATE TABLE IF NOT EXISTS %s (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    method      TEXT NOT NULL,
    schema_kind TEXT NOT NULL DEFAULT '',
    provider    TEXT NOT NULL DEFAULT '',
    model       TEXT NOT NULL DEFAULT '',
    messages    JSONB NOT NULL,
    response    JSONB,
    parsed      JSONB,
    error       TEXT NOT NULL DEFAULT '',
    started_at  TIMESTAMPTZ NOT NULL,
    duration_ms BIGINT NOT NULL DEFAULT 0
)`

const createStartedIndexSQL = `CREATE INDEX IF NOT EXISTS idx_structured_transcripts_started ON %s (started_at DESC)`

// EnsureSchema creates the table and its index if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, fmt.Sprintf(createTableSQL, s.table)); err != nil {
		return fmt.Errorf("transcript: create table: %w", err)
	}
	if _, err := s.db.Exec(ctx, fmt.Sprintf(createStartedIndexSQL, s.table)); err != nil {
		return fmt.Errorf("transcript: create index: %w", err)
	}
	return nil
}

const selectColumns = `id, name, method, schema_kind, provider, model, messages, response, parsed, error, started_at, duration_ms`

func (s *Store) Save(ctx context.Context, r transcript.Record) error {
	if r.ID == "" {
		r.ID = transcript.NewID()
	}
	messages, err := json.Marshal(r.Messages)
	if err != nil {
		return fmt.Errorf("transcript: encode messages: %w", err)
	}
	response, err := marshalNullable(r.Response)
	if err != nil {
		return fmt.Errorf("transcript: encode response: %w", err)
	}
	parsed, err := marshalNullable(r.Parsed)
	if err != nil {
		return fmt.Errorf("transcript: encode parsed: %w", err)
	}

	query := fmt.Sprintf(`INSERT INTO %s (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name, method = excluded.method, schema_kind = excluded.schema_kind,
			provider = excluded.provider, model = excluded.model, messages = excluded.messages,
			response = excluded.response, parsed = excluded.parsed, error = excluded.error,
			started_at = excluded.started_at, duration_ms = excluded.duration_ms`, s.table, selectColumns)

	_, err = s.db.Exec(ctx, query,
		r.ID, r.Name, r.Method, r.SchemaKind, r.Provider, r.Model,
		messages, response, parsed, r.Error,
		r.StartedAt, r.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("transcript: save %s: %w", r.ID, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (transcript.Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, selectColumns, s.table)
	r, err := scanRecord(s.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return transcript.Record{}, transcript.ErrNotFound
	}
	if err != nil {
		return transcript.Record{}, fmt.Errorf("transcript: get %s: %w", id, err)
	}
	return r, nil
}

func (s *Store) List(ctx context.Context, limit int) ([]transcript.Record, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if limit > 0 {
		rows, err = s.db.Query(ctx, fmt.Sprintf(`SELECT %s FROM %s ORDER BY started_at DESC, id DESC LIMIT $1`, selectColumns, s.table), limit)
	} else {
		rows, err = s.db.Query(ctx, fmt.Sprintf(`SELECT %s FROM %s ORDER BY started_at DESC, id DESC`, selectColumns, s.table))
	}
	if err != nil {
		return nil, fmt.Errorf("transcript: list: %w", err)
	}
	defer rows.Close()

	var out []transcript.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("transcript: list: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("transcript: list: %w", err)
	}
	return out, nil
}

func scanRecord(row pgx.Row) (transcript.Record, error) {
	var (
		r                          transcript.Record
		messages, response, parsed []byte
		durationMS                 int64
	)
	err := row.Scan(&r.ID, &r.Name, &r.Method, &r.SchemaKind, &r.Provider, &r.Model,
		&messages, &response, &parsed, &r.Error, &r.StartedAt, &durationMS)
	if err != nil {
		return transcript.Record{}, err
	}
	r.Duration = time.Duration(durationMS) * time.Millisecond

	if err := json.Unmarshal(messages, &r.Messages); err != nil {
		return transcript.Record{}, fmt.Errorf("decode messages: %w", err)
	}
	if len(response) > 0 {
		r.Response = &llm.Response{}
		if err := json.Unmarshal(response, r.Response); err != nil {
			return transcript.Record{}, fmt.Errorf("decode response: %w", err)
		}
	}
	if len(parsed) > 0 {
		if err := json.Unmarshal(parsed, &r.Parsed); err != nil {
			return transcript.Record{}, fmt.Errorf("decode parsed: %w", err)
		}
	}
	return r, nil
}

// marshalNullable encodes v, mapping nil pointers and maps to SQL NULL.
func marshalNullable[T any](v T) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(b) == "null" {
		return nil, nil
	}
	return b, nil
}

var _ transcript.Store = (*Store)(nil)
