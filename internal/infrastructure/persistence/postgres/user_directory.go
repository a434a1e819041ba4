package postgres

import (
	"context"
	"encoding/json"
	"fmt"
)

// ══════════════════════════════════════════════════════════════════════════════
// USER DIRECTORY
// ══════════════════════════════════════════════════════════════════════════════

// UserDirectory implements planner.UserDirectory on the planner_users table.
// The whole metadata bag lives in one JSONB column.
type UserDirectory struct {
	conn *Connection
}

// NewUserDirectory creates a new UserDirectory.
func NewUserDirectory(conn *Connection) *UserDirectory {
	return &UserDirectory{conn: conn}
}

// GetMetadata returns the user's bag, or an empty bag for an unknown user.
func (d *UserDirectory) GetMetadata(ctx context.Context, userID string) (map[string]any, error) {
	var raw []byte
	err := d.conn.Pool().QueryRow(ctx, `SELECT metadata FROM planner_users WHERE id = $1`, userID).Scan(&raw)
	if err != nil {
		if IsNoRows(err) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	meta := make(map[string]any)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &meta); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
	}
	return meta, nil
}

// UpdateMetadata upserts the bag. The write is confirmed only when the
// server returns the row it stored.
func (d *UserDirectory) UpdateMetadata(ctx context.Context, userID string, merged map[string]any) (bool, error) {
	raw, err := json.Marshal(merged)
	if err != nil {
		return false, fmt.Errorf("failed to encode metadata: %w", err)
	}

	query := `
		INSERT INTO planner_users (id, metadata, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET
			metadata = EXCLUDED.metadata,
			updated_at = NOW()
		RETURNING id
	`

	var id string
	if err := d.conn.Pool().QueryRow(ctx, query, userID, raw).Scan(&id); err != nil {
		if IsNoRows(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to write metadata: %w", err)
	}
	return id == userID, nil
}
