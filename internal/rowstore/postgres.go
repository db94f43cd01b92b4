package rowstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"academy/internal/domain"
	"academy/internal/infra"
	"academy/internal/sqlinline"
)

// PGStore stores entities in the shared entities table.
type PGStore struct {
	SQL infra.SQLExecutor
}

// NewPGStore wraps an executor, normally an *infra.SQLRunner.
func NewPGStore(sql infra.SQLExecutor) *PGStore {
	return &PGStore{SQL: sql}
}

// EnsureSchema creates the entities table when missing.
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.SQL.Exec(ctx, sqlinline.QEnsureEntitiesTable); err != nil {
		return fmt.Errorf("rowstore: ensure schema: %w", err)
	}
	return nil
}

func (s *PGStore) Upsert(ctx context.Context, table string, e Entity) (Entity, error) {
	if err := validateKeys(table, e.PartitionKey, e.RowKey); err != nil {
		return Entity{}, err
	}
	raw, err := encodeProperties(e.Properties)
	if err != nil {
		return Entity{}, err
	}
	var updatedAt time.Time
	row := s.SQL.QueryRow(ctx, sqlinline.QUpsertEntity, table, e.PartitionKey, e.RowKey, json.RawMessage(raw))
	if err := row.Scan(&updatedAt); err != nil {
		return Entity{}, fmt.Errorf("rowstore: upsert %s/%s/%s: %w", table, e.PartitionKey, e.RowKey, err)
	}
	props, err := decodeProperties(raw)
	if err != nil {
		return Entity{}, err
	}
	return Entity{PartitionKey: e.PartitionKey, RowKey: e.RowKey, Properties: props, UpdatedAt: updatedAt}, nil
}

func (s *PGStore) Get(ctx context.Context, table, partitionKey, rowKey string) (Entity, error) {
	var (
		e   Entity
		raw []byte
	)
	row := s.SQL.QueryRow(ctx, sqlinline.QSelectEntity, table, partitionKey, rowKey)
	if err := row.Scan(&e.PartitionKey, &e.RowKey, &raw, &e.UpdatedAt); err != nil {
		if infra.IsNoRows(err) {
			return Entity{}, fmt.Errorf("rowstore: %s/%s/%s: %w", table, partitionKey, rowKey, domain.ErrNotFound)
		}
		return Entity{}, fmt.Errorf("rowstore: get %s/%s/%s: %w", table, partitionKey, rowKey, err)
	}
	props, err := decodeProperties(raw)
	if err != nil {
		return Entity{}, err
	}
	e.Properties = props
	return e, nil
}

func (s *PGStore) Query(ctx context.Context, table, partitionKey string) ([]Entity, error) {
	rows, err := s.SQL.Query(ctx, sqlinline.QListEntitiesByPartition, table, partitionKey)
	if err != nil {
		return nil, fmt.Errorf("rowstore: query %s/%s: %w", table, partitionKey, err)
	}
	defer rows.Close()

	var out []Entity
	for rows.Next() {
		var (
			e   Entity
			raw []byte
		)
		if err := rows.Scan(&e.PartitionKey, &e.RowKey, &raw, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("rowstore: scan %s/%s: %w", table, partitionKey, err)
		}
		if e.Properties, err = decodeProperties(raw); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rowstore: iterate %s/%s: %w", table, partitionKey, err)
	}
	return out, nil
}

func (s *PGStore) Delete(ctx context.Context, table, partitionKey, rowKey string) error {
	tag, err := s.SQL.Exec(ctx, sqlinline.QDeleteEntity, table, partitionKey, rowKey)
	if err != nil {
		return fmt.Errorf("rowstore: delete %s/%s/%s: %w", table, partitionKey, rowKey, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("rowstore: %s/%s/%s: %w", table, partitionKey, rowKey, domain.ErrNotFound)
	}
	return nil
}

var _ Store = (*PGStore)(nil)
