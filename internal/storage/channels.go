package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"aigateway-go/internal/models"
)

const channelColumns = `id, name, type, models, model_mapping, priority, weight,
	enabled, total_requests, failed_requests, total_latency_ms, updated_at`

// CreateChannel inserts a routing channel and fills in its ID.
func (s *Store) CreateChannel(ctx context.Context, c *models.Channel) error {
	modelsJSON, mappingJSON, err := encodeChannelLists(c)
	if err != nil {
		return err
	}
	c.UpdatedAt = time.Now().UTC()
	err = s.db.QueryRowContext(ctx, s.q(`
		INSERT INTO channels
			(name, type, models, model_mapping, priority, weight, enabled,
			 total_requests, failed_requests, total_latency_ms, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, 0, 0, ?)
		RETURNING id`),
		c.Name, c.Type, modelsJSON, mappingJSON, c.Priority, c.Weight,
		c.Enabled, c.UpdatedAt.Unix()).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("storage: create channel: %w", err)
	}
	return nil
}

// GetChannel fetches a channel by ID.
func (s *Store) GetChannel(ctx context.Context, id int64) (*models.Channel, error) {
	row := s.db.QueryRowContext(ctx,
		s.q(`SELECT `+channelColumns+` FROM channels WHERE id = ?`), id)
	c, err := scanChannel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &ErrNotFound{Key: "channel " + strconv.FormatInt(id, 10)}
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get channel: %w", err)
	}
	return c, nil
}

// ListChannels returns channels ordered by priority descending so callers
// see the preferred routes first.
func (s *Store) ListChannels(ctx context.Context, enabledOnly bool) ([]models.Channel, error) {
	query := `SELECT ` + channelColumns + ` FROM channels`
	var args []interface{}
	if enabledOnly {
		query += ` WHERE enabled = ?`
		args = append(args, true)
	}
	query += ` ORDER BY priority DESC, id`

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("storage: query channels: %w", err)
	}
	defer rows.Close()

	var out []models.Channel
	for rows.Next() {
		c, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan channel: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// UpdateChannel persists the routing fields; rolling stats are only touched
// through RecordChannelResult.
func (s *Store) UpdateChannel(ctx context.Context, c *models.Channel) error {
	modelsJSON, mappingJSON, err := encodeChannelLists(c)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE channels SET
			name = ?, type = ?, models = ?, model_mapping = ?,
			priority = ?, weight = ?, enabled = ?, updated_at = ?
		WHERE id = ?`),
		c.Name, c.Type, modelsJSON, mappingJSON,
		c.Priority, c.Weight, c.Enabled, time.Now().Unix(), c.ID)
	if err != nil {
		return fmt.Errorf("storage: update channel: %w", err)
	}
	return requireRow(res, "channel "+strconv.FormatInt(c.ID, 10))
}

// DeleteChannel removes a channel.
func (s *Store) DeleteChannel(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM channels WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("storage: delete channel: %w", err)
	}
	return requireRow(res, "channel "+strconv.FormatInt(id, 10))
}

// RecordChannelResult folds one relay outcome into the rolling stats.
func (s *Store) RecordChannelResult(ctx context.Context, id int64, failed bool, latencyMS int64) error {
	failedDelta := 0
	if failed {
		failedDelta = 1
	}
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE channels SET
			total_requests = total_requests + 1,
			failed_requests = failed_requests + ?,
			total_latency_ms = total_latency_ms + ?,
			updated_at = ?
		WHERE id = ?`),
		failedDelta, latencyMS, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("storage: record channel result: %w", err)
	}
	return requireRow(res, "channel "+strconv.FormatInt(id, 10))
}

func encodeChannelLists(c *models.Channel) (string, string, error) {
	ms := c.Models
	if ms == nil {
		ms = []string{}
	}
	modelsJSON, err := json.Marshal(ms)
	if err != nil {
		return "", "", fmt.Errorf("storage: encode channel models: %w", err)
	}
	mappingJSON := ""
	if len(c.ModelMapping) > 0 {
		buf, err := json.Marshal(c.ModelMapping)
		if err != nil {
			return "", "", fmt.Errorf("storage: encode model mapping: %w", err)
		}
		mappingJSON = string(buf)
	}
	return string(modelsJSON), mappingJSON, nil
}

func scanChannel(r rowScanner) (*models.Channel, error) {
	var (
		c           models.Channel
		modelsJSON  string
		mappingJSON string
		updatedAt   int64
	)
	err := r.Scan(&c.ID, &c.Name, &c.Type, &modelsJSON, &mappingJSON,
		&c.Priority, &c.Weight, &c.Enabled, &c.TotalRequests,
		&c.FailedRequests, &c.TotalLatencyMS, &updatedAt)
	if err != nil {
		return nil, err
	}
	if modelsJSON != "" {
		if err := json.Unmarshal([]byte(modelsJSON), &c.Models); err != nil {
			return nil, fmt.Errorf("decode channel models: %w", err)
		}
	}
	if mappingJSON != "" {
		if err := json.Unmarshal([]byte(mappingJSON), &c.ModelMapping); err != nil {
			return nil, fmt.Errorf("decode model mapping: %w", err)
		}
	}
	if updatedAt > 0 {
		c.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	}
	return &c, nil
}
