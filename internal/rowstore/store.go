// Package rowstore persists schemaless entities addressed by table,
// partition key and row key.
package rowstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"academy/internal/domain"
)

// Entity is a single stored row. Properties round-trip through JSON, so
// numbers come back as float64 regardless of the backing store.
type Entity struct {
	PartitionKey string
	RowKey       string
	Properties   map[string]any
	UpdatedAt    time.Time
}

// Store is the persistence contract used by the course services.
type Store interface {
	Upsert(ctx context.Context, table string, e Entity) (Entity, error)
	Get(ctx context.Context, table, partitionKey, rowKey string) (Entity, error)
	Query(ctx context.Context, table, partitionKey string) ([]Entity, error)
	Delete(ctx context.Context, table, partitionKey, rowKey string) error
}

// String returns the property as a string, or "" when absent.
func (e Entity) String(key string) string {
	v, _ := e.Properties[key].(string)
	return v
}

// Int returns a numeric property truncated to int.
func (e Entity) Int(key string) int {
	switch v := e.Properties[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return 0
}

// Strings returns a list property, skipping non-string members.
func (e Entity) Strings(key string) []string {
	switch v := e.Properties[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Time parses an RFC3339 property.
func (e Entity) Time(key string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, e.String(key))
	return t
}

func validateKeys(table, partitionKey, rowKey string) error {
	if strings.TrimSpace(table) == "" || strings.TrimSpace(partitionKey) == "" || strings.TrimSpace(rowKey) == "" {
		return fmt.Errorf("rowstore: table, partition key and row key are required: %w", domain.ErrInvalidInput)
	}
	return nil
}

func encodeProperties(props map[string]any) ([]byte, error) {
	if props == nil {
		props = map[string]any{}
	}
	raw, err := json.Marshal(props)
	if err != nil {
		return nil, fmt.Errorf("rowstore: encode properties: %w", err)
	}
	return raw, nil
}

func decodeProperties(raw []byte) (map[string]any, error) {
	props := map[string]any{}
	if len(raw) == 0 {
		return props, nil
	}
	if err := json.Unmarshal(raw, &props); err != nil {
		return nil, fmt.Errorf("rowstore: decode properties: %w", err)
	}
	return props, nil
}

// MemoryStore keeps entities in process memory. Properties are stored in
// their encoded form so reads behave exactly like PGStore.
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[string]map[string]memoryRow
	now    func() time.Time
}

type memoryRow struct {
	partitionKey string
	rowKey       string
	raw          []byte
	updatedAt    time.Time
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tables: map[string]map[string]memoryRow{}, now: time.Now}
}

func memoryKey(partitionKey, rowKey string) string {
	return partitionKey + "\x00" + rowKey
}

func (m *MemoryStore) Upsert(ctx context.Context, table string, e Entity) (Entity, error) {
	if err := ctx.Err(); err != nil {
		return Entity{}, err
	}
	if err := validateKeys(table, e.PartitionKey, e.RowKey); err != nil {
		return Entity{}, err
	}
	raw, err := encodeProperties(e.Properties)
	if err != nil {
		return Entity{}, err
	}
	row := memoryRow{partitionKey: e.PartitionKey, rowKey: e.RowKey, raw: raw, updatedAt: m.now().UTC()}

	m.mu.Lock()
	rows, ok := m.tables[table]
	if !ok {
		rows = map[string]memoryRow{}
		m.tables[table] = rows
	}
	rows[memoryKey(e.PartitionKey, e.RowKey)] = row
	m.mu.Unlock()

	return row.entity()
}

func (m *MemoryStore) Get(ctx context.Context, table, partitionKey, rowKey string) (Entity, error) {
	if err := ctx.Err(); err != nil {
		return Entity{}, err
	}
	m.mu.RLock()
	row, ok := m.tables[table][memoryKey(partitionKey, rowKey)]
	m.mu.RUnlock()
	if !ok {
		return Entity{}, fmt.Errorf("rowstore: %s/%s/%s: %w", table, partitionKey, rowKey, domain.ErrNotFound)
	}
	return row.entity()
}

func (m *MemoryStore) Query(ctx context.Context, table, partitionKey string) ([]Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	var rows []memoryRow
	for _, row := range m.tables[table] {
		if row.partitionKey == partitionKey {
			rows = append(rows, row)
		}
	}
	m.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool { return rows[i].rowKey < rows[j].rowKey })
	out := make([]Entity, 0, len(rows))
	for _, row := range rows {
		e, err := row.entity()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *MemoryStore) Delete(ctx context.Context, table, partitionKey, rowKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := memoryKey(partitionKey, rowKey)
	if _, ok := m.tables[table][key]; !ok {
		return fmt.Errorf("rowstore: %s/%s/%s: %w", table, partitionKey, rowKey, domain.ErrNotFound)
	}
	delete(m.tables[table], key)
	return nil
}

func (r memoryRow) entity() (Entity, error) {
	props, err := decodeProperties(r.raw)
	if err != nil {
		return Entity{}, err
	}
	return Entity{PartitionKey: r.partitionKey, RowKey: r.rowKey, Properties: props, UpdatedAt: r.updatedAt}, nil
}

var _ Store = (*MemoryStore)(nil)
