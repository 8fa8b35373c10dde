// Package store is the record store adapter: a collection-scoped document
// store with create/get/update/query/delete. Each call is independently
// atomic; nothing spans collections.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
)

// Op is a query filter operator.
type Op string

const (
	OpEq Op = "=="
	OpIn Op = "in"
	OpLt Op = "<"
)

// Filter restricts a query to documents whose top-level Field matches Value.
type Filter struct {
	Field string
	Op    Op
	Value interface{}
}

// Eq is shorthand for an equality filter.
func Eq(field string, value interface{}) Filter {
	return Filter{Field: field, Op: OpEq, Value: value}
}

// In matches when the field equals any element of values (a slice).
func In(field string, values interface{}) Filter {
	return Filter{Field: field, Op: OpIn, Value: values}
}

// Lt matches when the field is strictly less than value. Times compare
// chronologically, numbers numerically, everything else as text.
func Lt(field string, value interface{}) Filter {
	return Filter{Field: field, Op: OpLt, Value: value}
}

// Query describes a collection query. A zero Limit means no limit.
type Query struct {
	Filters []Filter
	OrderBy string
	Desc    bool
	Limit   int
}

// Store is implemented by PG and Memory.
type Store interface {
	Create(ctx context.Context, collection, id string, doc interface{}) error
	Get(ctx context.Context, collection, id string, out interface{}) error
	// Update merges fields into the top level of the stored document.
	Update(ctx context.Context, collection, id string, fields map[string]interface{}) error
	Query(ctx context.Context, collection string, q Query) ([]json.RawMessage, error)
	// Delete removes a record; deleting a missing record is not an error.
	Delete(ctx context.Context, collection, id string) error
	Ping(ctx context.Context) error
}

var fieldPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

func validateQuery(q Query) error {
	for _, f := range q.Filters {
		if !fieldPattern.MatchString(f.Field) {
			return fmt.Errorf("invalid filter field %q", f.Field)
		}
		switch f.Op {
		case OpEq, OpIn, OpLt:
		default:
			return fmt.Errorf("unsupported filter operator %q", f.Op)
		}
	}
	if q.OrderBy != "" && !fieldPattern.MatchString(q.OrderBy) {
		return fmt.Errorf("invalid order field %q", q.OrderBy)
	}
	if q.Limit < 0 {
		return fmt.Errorf("limit must not be negative")
	}
	return nil
}

// QueryAll runs q and decodes every document into T.
func QueryAll[T any](ctx context.Context, s Store, collection string, q Query) ([]T, error) {
	raws, err := s.Query(ctx, collection, q)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(raws))
	for _, raw := range raws {
		var item T
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, fmt.Errorf("decode %s record: %w", collection, err)
		}
		out = append(out, item)
	}
	return out, nil
}

// ToFields converts a struct into the top-level field map used by Update.
func ToFields(v interface{}) (map[string]interface{}, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}
