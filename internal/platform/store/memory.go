package store

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process Store. It backs the development driver and is the
// record store double in tests.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]interface{}
}

func NewMemory() *Memory {
	return &Memory{collections: make(map[string]map[string]map[string]interface{})}
}

func normalize(v interface{}) (interface{}, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *Memory) Create(_ context.Context, collection, id string, doc interface{}) error {
	n, err := normalize(doc)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	fields, ok := n.(map[string]interface{})
	if !ok {
		return fmt.Errorf("encode %s/%s: document must be an object", collection, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[collection]
	if !ok {
		c = make(map[string]map[string]interface{})
		m.collections[collection] = c
	}
	if _, exists := c[id]; exists {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrAlreadyExists)
	}
	c[id] = fields
	return nil
}

func (m *Memory) Get(_ context.Context, collection, id string, out interface{}) error {
	m.mu.RLock()
	doc, ok := m.collections[collection][id]
	var b []byte
	var err error
	if ok {
		b, err = json.Marshal(doc)
	}
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func (m *Memory) Update(_ context.Context, collection, id string, fields map[string]interface{}) error {
	n, err := normalize(fields)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	patch, _ := n.(map[string]interface{})

	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.collections[collection][id]
	if !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	for k, v := range patch {
		doc[k] = v
	}
	return nil
}

func (m *Memory) Query(_ context.Context, collection string, q Query) ([]json.RawMessage, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}
	filters := make([]Filter, len(q.Filters))
	for i, f := range q.Filters {
		v, err := normalize(f.Value)
		if err != nil {
			return nil, fmt.Errorf("encode filter %s: %w", f.Field, err)
		}
		filters[i] = Filter{Field: f.Field, Op: f.Op, Value: v}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []map[string]interface{}
	for _, doc := range m.collections[collection] {
		if matchAll(doc, filters) {
			matched = append(matched, doc)
		}
	}

	if q.OrderBy != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			c := compare(matched[i][q.OrderBy], matched[j][q.OrderBy])
			if q.Desc {
				return c > 0
			}
			return c < 0
		})
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	out := make([]json.RawMessage, 0, len(matched))
	for _, doc := range matched {
		b, err := json.Marshal(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func (m *Memory) Delete(_ context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.collections[collection], id)
	return nil
}

func (m *Memory) Ping(context.Context) error { return nil }

// Count returns the number of records in a collection.
func (m *Memory) Count(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.collections[collection])
}

func matchAll(doc map[string]interface{}, filters []Filter) bool {
	for _, f := range filters {
		v, ok := doc[f.Field]
		if !ok {
			return false
		}
		switch f.Op {
		case OpEq:
			if !reflect.DeepEqual(v, f.Value) {
				return false
			}
		case OpIn:
			list, _ := f.Value.([]interface{})
			found := false
			for _, candidate := range list {
				if reflect.DeepEqual(v, candidate) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		case OpLt:
			if compare(v, f.Value) >= 0 {
				return false
			}
		}
	}
	return true
}

// compare orders two normalized JSON values. Strings that parse as RFC 3339
// timestamps compare chronologically.
func compare(a, b interface{}) int {
	switch av := a.(type) {
	case float64:
		bv, ok := b.(float64)
		if !ok {
			break
		}
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case string:
		bv, ok := b.(string)
		if !ok {
			break
		}
		at, aerr := time.Parse(time.RFC3339Nano, av)
		bt, berr := time.Parse(time.RFC3339Nano, bv)
		if aerr == nil && berr == nil {
			return at.Compare(bt)
		}
		return strings.Compare(av, bv)
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}
