package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UpsertMonitoredEntity activates an entity or overwrites its priority and
// reason if a row already exists. The row never flips to inactive here;
// deactivation is an explicit operation.
func (s *SQLiteStore) UpsertMonitoredEntity(ctx context.Context, me *MonitoredEntity) error {
	if me.UpdatedAt.IsZero() {
		me.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO monitored_entities (entity_type, entity_id, is_active, priority, reason, triggered_by, updated_at)
		VALUES (?, ?, 1, ?, ?, ?, ?)
		ON CONFLICT(entity_type, entity_id) DO UPDATE SET
			is_active = 1,
			priority = excluded.priority,
			reason = excluded.reason,
			triggered_by = excluded.triggered_by,
			updated_at = excluded.updated_at
	`, me.EntityType, me.EntityID, me.Priority, me.Reason, me.TriggeredBy, me.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert monitored entity %s/%d: %w", me.EntityType, me.EntityID, err)
	}
	return nil
}

func (s *SQLiteStore) GetMonitoredEntity(ctx context.Context, et EntityType, id int64) (*MonitoredEntity, error) {
	var me MonitoredEntity
	err := s.db.GetContext(ctx, &me,
		"SELECT * FROM monitored_entities WHERE entity_type = ? AND entity_id = ?", et, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get monitored entity %s/%d: %w", et, id, err)
	}
	return &me, nil
}

// ListActiveEntities returns active registry rows, highest priority first.
func (s *SQLiteStore) ListActiveEntities(ctx context.Context) ([]MonitoredEntity, error) {
	var out []MonitoredEntity
	err := s.db.SelectContext(ctx, &out,
		"SELECT * FROM monitored_entities WHERE is_active = 1 ORDER BY priority DESC, entity_type, entity_id")
	if err != nil {
		return nil, fmt.Errorf("list active entities: %w", err)
	}
	return out, nil
}

// DeactivateEntity turns tracking off but keeps the row for audit and
// idempotent re-activation.
func (s *SQLiteStore) DeactivateEntity(ctx context.Context, et EntityType, id int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE monitored_entities SET is_active = 0, updated_at = ?
		WHERE entity_type = ? AND entity_id = ?
	`, time.Now().UTC(), et, id)
	if err != nil {
		return fmt.Errorf("deactivate entity %s/%d: %w", et, id, err)
	}
	return nil
}

// DeactivateTriggeredBy bulk-deactivates every entity the given candidate's
// subscription caused to be tracked. Returns the number of rows affected.
func (s *SQLiteStore) DeactivateTriggeredBy(ctx context.Context, candidateID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE monitored_entities SET is_active = 0, updated_at = ?
		WHERE triggered_by = ? AND is_active = 1
	`, time.Now().UTC(), candidateID)
	if err != nil {
		return 0, fmt.Errorf("deactivate triggered by %d: %w", candidateID, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// SeedKeywords inserts search keywords for an entity. Duplicate keywords are
// ignored, so seeding is idempotent.
func (s *SQLiteStore) SeedKeywords(ctx context.Context, et EntityType, id int64, words []string, priority int) error {
	for _, w := range words {
		if w == "" {
			continue
		}
		_, err := s.db.ExecContext(ctx, `
			INSERT OR IGNORE INTO keywords (keyword, entity_type, entity_id, is_active, priority)
			VALUES (?, ?, ?, 1, ?)
		`, w, et, id, priority)
		if err != nil {
			return fmt.Errorf("seed keyword %q for %s/%d: %w", w, et, id, err)
		}
	}
	return nil
}

func (s *SQLiteStore) ListActiveKeywords(ctx context.Context, et EntityType, id int64) ([]Keyword, error) {
	var out []Keyword
	err := s.db.SelectContext(ctx, &out, `
		SELECT * FROM keywords
		WHERE entity_type = ? AND entity_id = ? AND is_active = 1
		ORDER BY priority DESC, id
	`, et, id)
	if err != nil {
		return nil, fmt.Errorf("list keywords %s/%d: %w", et, id, err)
	}
	return out, nil
}
