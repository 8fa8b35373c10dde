package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// PG stores every collection in the records table as JSONB documents.
type PG struct {
	pool *pgxpool.Pool
	db   queryable
}

func NewPG(pool *pgxpool.Pool) *PG {
	return &PG{pool: pool, db: pool}
}

func (s *PG) Create(ctx context.Context, collection, id string, doc interface{}) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO records (collection, id, doc) VALUES ($1, $2, $3)`,
		collection, id, b)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%s/%s: %w", collection, id, ErrAlreadyExists)
		}
		return err
	}
	return nil
}

func (s *PG) Get(ctx context.Context, collection, id string, out interface{}) error {
	var raw []byte
	err := s.db.QueryRow(ctx,
		`SELECT doc FROM records WHERE collection = $1 AND id = $2`,
		collection, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (s *PG) Update(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	b, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE records SET doc = doc || $3::jsonb, updated_at = NOW()
		 WHERE collection = $1 AND id = $2`,
		collection, id, b)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return nil
}

func (s *PG) Query(ctx context.Context, collection string, q Query) ([]json.RawMessage, error) {
	sql, args, err := buildQuery(collection, q)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []json.RawMessage
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		out = append(out, json.RawMessage(raw))
	}
	return out, rows.Err()
}

func (s *PG) Delete(ctx context.Context, collection, id string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM records WHERE collection = $1 AND id = $2`, collection, id)
	return err
}

func (s *PG) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const rfc3339Pattern = `^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})$`

// buildQuery renders q as SQL. Field names are bound as parameters, so only
// the operator shape is interpolated.
func buildQuery(collection string, q Query) (string, []interface{}, error) {
	if err := validateQuery(q); err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	args := []interface{}{collection}
	sb.WriteString(`SELECT doc FROM records WHERE collection = $1`)

	next := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	for _, f := range q.Filters {
		key := next(f.Field)
		switch f.Op {
		case OpEq:
			fmt.Fprintf(&sb, " AND doc->>%s = %s", key, next(textValue(f.Value)))
		case OpIn:
			fmt.Fprintf(&sb, " AND doc->>%s = ANY(%s)", key, next(textValues(f.Value)))
		case OpLt:
			switch v := f.Value.(type) {
			case time.Time:
				fmt.Fprintf(&sb, " AND (doc->>%s)::timestamptz < %s", key, next(v))
			case int, int32, int64, float32, float64:
				fmt.Fprintf(&sb, " AND (doc->>%s)::numeric < %s", key, next(v))
			default:
				fmt.Fprintf(&sb, " AND doc->>%s < %s", key, next(textValue(v)))
			}
		}
	}

	if q.OrderBy != "" {
		dir := "ASC"
		if q.Desc {
			dir = "DESC"
		}
		key := next(q.OrderBy)
		// Same ordering as Memory: numbers numerically, RFC 3339 strings
		// chronologically, the rest as text.
		fmt.Fprintf(&sb, " ORDER BY CASE WHEN jsonb_typeof(doc->%[1]s) = 'number' THEN (doc->>%[1]s)::numeric END %[2]s,"+
			" CASE WHEN doc->>%[1]s ~ '%[3]s' THEN (doc->>%[1]s)::timestamptz END %[2]s,"+
			" doc->>%[1]s %[2]s", key, dir, rfc3339Pattern)
	}
	if q.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %s", next(q.Limit))
	}
	return sb.String(), args, nil
}

// textValue renders v the way Postgres ->> renders the stored JSON value.
func textValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case time.Time:
		return t.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return t.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return strings.Trim(string(b), `"`)
}

func textValues(v interface{}) []string {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []string{textValue(v)}
	}
	out := make([]string, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = textValue(rv.Index(i).Interface())
	}
	return out
}
