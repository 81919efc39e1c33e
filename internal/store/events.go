package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// LoadConfigRows returns every scoring config override as key -> JSON.
func (s *Store) LoadConfigRows() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT key, value_json FROM scoring_config`)
	if err != nil {
		return nil, fmt.Errorf("query scoring config: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var key, valueJSON string
		if err := rows.Scan(&key, &valueJSON); err != nil {
			return nil, fmt.Errorf("scan scoring config row: %w", err)
		}
		out[key] = valueJSON
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scoring config: %w", err)
	}
	return out, nil
}

// SaveConfigRow upserts a scoring config override and returns the
// previous JSON value, empty when the key had no override.
func (s *Store) SaveConfigRow(key, valueJSON, valueType, actor string, now time.Time) (string, error) {
	var prev string
	err := s.db.QueryRow(`SELECT value_json FROM scoring_config WHERE key = ?`, key).Scan(&prev)
	if err != nil && err != sql.ErrNoRows {
		return "", fmt.Errorf("load previous config value: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO scoring_config (key, value_json, value_type, updated_at, updated_by)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value_json = excluded.value_json,
			value_type = excluded.value_type,
			updated_at = excluded.updated_at,
			updated_by = excluded.updated_by
	`, key, valueJSON, valueType, encodeTime(now), actor)
	if err != nil {
		return "", fmt.Errorf("save config value: %w", err)
	}
	return prev, nil
}

// RecordedEvent is a domain event observed by the engine, matched
// against event wake triggers.
type RecordedEvent struct {
	ID          string    `json:"id"`
	EventKey    string    `json:"event_key"`
	PayloadJSON string    `json:"payload_json,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// RecordEvent stores a domain event occurrence.
func (s *Store) RecordEvent(eventKey, payloadJSON string, now time.Time) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(`
		INSERT INTO recorded_events (id, event_key, payload_json, occurred_at)
		VALUES (?, ?, ?, ?)
	`, id, eventKey, payloadJSON, encodeTime(now))
	if err != nil {
		return "", fmt.Errorf("record event: %w", err)
	}
	return id, nil
}

// HasEventSince reports whether an event with the key occurred at or
// after since.
func (s *Store) HasEventSince(eventKey string, since time.Time) (bool, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(1) FROM recorded_events
		WHERE event_key = ? AND occurred_at >= ?
	`, eventKey, encodeTime(since)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check recorded events: %w", err)
	}
	return count > 0, nil
}

// ListEvents returns up to limit recorded events, newest first. An
// empty key lists every event.
func (s *Store) ListEvents(eventKey string, limit int) ([]RecordedEvent, error) {
	query := `SELECT id, event_key, payload_json, occurred_at FROM recorded_events`
	args := []any{}
	if eventKey != "" {
		query += ` WHERE event_key = ?`
		args = append(args, eventKey)
	}
	query += ` ORDER BY occurred_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recorded events: %w", err)
	}
	defer rows.Close()

	var events []RecordedEvent
	for rows.Next() {
		var e RecordedEvent
		var payload sql.NullString
		var occurredAt string
		if err := rows.Scan(&e.ID, &e.EventKey, &payload, &occurredAt); err != nil {
			return nil, fmt.Errorf("scan recorded event: %w", err)
		}
		if payload.Valid {
			e.PayloadJSON = payload.String
		}
		e.OccurredAt = decodeTime(occurredAt)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recorded events: %w", err)
	}
	return events, nil
}
