package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

func (s *SQLiteStore) InsertAlert(ctx context.Context, a *Alert) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (user_id, geo_unit_id, type, message, is_read, created_at)
		VALUES (?, ?, ?, ?, 0, ?)
	`, a.UserID, a.GeoUnitID, a.Type, a.Message, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert alert for user %d: %w", a.UserID, err)
	}
	a.ID, _ = res.LastInsertId()
	return nil
}

// AlertMessageContains reports whether any of the user's alerts already
// carries the fragment as a substring of its message. This is the
// detector-side dedup check; it is content-based, not keyed.
func (s *SQLiteStore) AlertMessageContains(ctx context.Context, userID int64, fragment string) (bool, error) {
	pattern := "%" + escapeLike(fragment) + "%"
	var n int
	err := s.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM alerts WHERE user_id = ? AND message LIKE ? ESCAPE '\'
	`, userID, pattern)
	if err != nil {
		return false, fmt.Errorf("scan alerts for user %d: %w", userID, err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) ListAlerts(ctx context.Context, userID int64, limit int) ([]Alert, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []Alert
	err := s.db.SelectContext(ctx, &out, `
		SELECT * FROM alerts WHERE user_id = ? ORDER BY created_at DESC LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list alerts for user %d: %w", userID, err)
	}
	return out, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
