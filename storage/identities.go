package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"roomsync/models"
)

// Identity resolves one identity by id.
func (s *SQLiteStore) Identity(ctx context.Context, id string) (models.Identity, error) {
	if id == "" {
		return models.Identity{}, errors.New("identity id is required")
	}

	var identity models.Identity
	err := s.db.QueryRowContext(ctx,
		`SELECT id, display_name, email FROM identities WHERE id = ?`, id).
		Scan(&identity.ID, &identity.DisplayName, &identity.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Identity{}, ErrNotFound
	}
	if err != nil {
		return models.Identity{}, fmt.Errorf("get identity %q: %w", id, err)
	}

	return identity, nil
}

// Identities resolves a set of identity ids in one query. Ids with no
// matching row are absent from the result map.
func (s *SQLiteStore) Identities(ctx context.Context, ids []string) (map[string]models.Identity, error) {
	result := make(map[string]models.Identity, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, display_name, email FROM identities WHERE id IN (`+placeholders+`)`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("get identities: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var identity models.Identity
		if err := rows.Scan(&identity.ID, &identity.DisplayName, &identity.Email); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		result[identity.ID] = identity
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get identities: %w", err)
	}

	return result, nil
}

// UpsertIdentity inserts or updates an identity row.
func (s *SQLiteStore) UpsertIdentity(ctx context.Context, identity models.Identity) error {
	if identity.ID == "" {
		return errors.New("identity id is required")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO identities (id, display_name, email) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET display_name = excluded.display_name, email = excluded.email`,
		identity.ID, identity.DisplayName, identity.Email)
	if err != nil {
		return fmt.Errorf("upsert identity %q: %w", identity.ID, err)
	}

	return nil
}
