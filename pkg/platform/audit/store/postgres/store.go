package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	audit "crummey/pkg/platform/audit"
)

// Store implements audit.Store on the audit_entries table. Rows are only
// ever inserted.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Append(ctx context.Context, entry audit.Entry) error {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}
	query := `
		INSERT INTO audit_entries (
			id, actor_id, action, category, entity_type, entity_id,
			details, ip, user_agent, request_id, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`
	_, err = s.db.ExecContext(ctx, query,
		entry.ID,
		entry.ActorID,
		string(entry.Action),
		string(entry.Action.Category()),
		string(entry.EntityType),
		entry.EntityID,
		details,
		entry.IP,
		entry.UserAgent,
		entry.RequestID,
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *Store) ListByEntity(ctx context.Context, entityType audit.EntityType, entityID uuid.UUID) ([]audit.Entry, error) {
	query := `
		SELECT id, actor_id, action, entity_type, entity_id,
			   details, ip, user_agent, request_id, created_at
		FROM audit_entries
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, string(entityType), entityID)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		var (
			entry   audit.Entry
			actor   uuid.NullUUID
			action  string
			etype   string
			details []byte
		)
		if err := rows.Scan(
			&entry.ID,
			&actor,
			&action,
			&etype,
			&entry.EntityID,
			&details,
			&entry.IP,
			&entry.UserAgent,
			&entry.RequestID,
			&entry.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.Action = audit.Action(action)
		entry.EntityType = audit.EntityType(etype)
		if actor.Valid {
			id := actor.UUID
			entry.ActorID = &id
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &entry.Details); err != nil {
				return nil, fmt.Errorf("unmarshal audit details: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}
