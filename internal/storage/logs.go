package storage

import (
	"context"
	"fmt"
	"time"

	"aigateway-go/internal/models"
)

// InsertRequestLog appends one completed relay call.
func (s *Store) InsertRequestLog(ctx context.Context, l *models.RequestLog) error {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	err := s.db.QueryRowContext(ctx, s.q(`
		INSERT INTO request_logs
			(user_id, channel_id, provider_type, model, input_tokens,
			 output_tokens, cache_read_tokens, cache_creation_tokens,
			 duration_ms, status, error, context_compressed,
			 original_tokens, compressed_tokens, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		l.UserID, l.ChannelID, l.ProviderType, l.Model, l.InputTokens,
		l.OutputTokens, l.CacheReadTokens, l.CacheCreationTokens,
		l.DurationMS, l.Status, l.Error, l.ContextCompressed,
		l.OriginalTokens, l.CompressedTokens, l.CreatedAt.Unix()).Scan(&l.ID)
	if err != nil {
		return fmt.Errorf("storage: insert request log: %w", err)
	}
	return nil
}

// ListRequestLogs pages through logs newest first.
func (s *Store) ListRequestLogs(ctx context.Context, f LogFilter) ([]models.RequestLog, error) {
	query := `SELECT id, user_id, channel_id, provider_type, model, input_tokens,
		output_tokens, cache_read_tokens, cache_creation_tokens, duration_ms,
		status, error, context_compressed, original_tokens, compressed_tokens,
		created_at
	FROM request_logs WHERE 1 = 1`
	var args []interface{}
	if f.UserID != 0 {
		query += ` AND user_id = ?`
		args = append(args, f.UserID)
	}
	if f.ChannelID != 0 {
		query += ` AND channel_id = ?`
		args = append(args, f.ChannelID)
	}
	if f.Model != "" {
		query += ` AND model = ?`
		args = append(args, f.Model)
	}
	if f.ErrorOnly {
		query += ` AND status >= 400`
	}
	if !f.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, f.Since.Unix())
	}
	query += ` ORDER BY id DESC`
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)
	if f.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("storage: query request logs: %w", err)
	}
	defer rows.Close()

	var out []models.RequestLog
	for rows.Next() {
		var (
			l         models.RequestLog
			createdAt int64
		)
		err := rows.Scan(&l.ID, &l.UserID, &l.ChannelID, &l.ProviderType, &l.Model,
			&l.InputTokens, &l.OutputTokens, &l.CacheReadTokens, &l.CacheCreationTokens,
			&l.DurationMS, &l.Status, &l.Error, &l.ContextCompressed,
			&l.OriginalTokens, &l.CompressedTokens, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("storage: scan request log: %w", err)
		}
		l.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, l)
	}
	return out, rows.Err()
}

// UsageStats aggregates the window since `since` for one user, or for
// everyone when userID is zero.
func (s *Store) UsageStats(ctx context.Context, userID int64, since time.Time) (*models.UsageStats, error) {
	query := `SELECT COUNT(*),
		COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0),
		COALESCE(SUM(cache_read_tokens), 0), COALESCE(SUM(cache_creation_tokens), 0),
		COALESCE(AVG(duration_ms), 0),
		COALESCE(SUM(CASE WHEN status >= 400 THEN 1 ELSE 0 END), 0)
	FROM request_logs WHERE created_at >= ?`
	args := []interface{}{since.Unix()}
	if userID != 0 {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}

	var st models.UsageStats
	err := s.db.QueryRowContext(ctx, s.q(query), args...).Scan(
		&st.TotalRequests, &st.TotalInputTokens, &st.TotalOutputTokens,
		&st.CacheReadTokens, &st.CacheCreationTokens, &st.AvgDurationMS,
		&st.ErrorCount)
	if err != nil {
		return nil, fmt.Errorf("storage: usage stats: %w", err)
	}
	st.ComputeCacheHitRate()
	return &st, nil
}

// ModelStats groups the window by model, busiest first.
func (s *Store) ModelStats(ctx context.Context, userID int64, since time.Time) ([]models.ModelStat, error) {
	query := `SELECT model, COUNT(*),
		COALESCE(SUM(input_tokens + output_tokens), 0),
		COALESCE(SUM(cache_read_tokens), 0), COALESCE(SUM(cache_creation_tokens), 0)
	FROM request_logs WHERE created_at >= ?`
	args := []interface{}{since.Unix()}
	if userID != 0 {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}
	query += ` GROUP BY model ORDER BY COUNT(*) DESC`

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("storage: model stats: %w", err)
	}
	defer rows.Close()

	var out []models.ModelStat
	for rows.Next() {
		var m models.ModelStat
		if err := rows.Scan(&m.Model, &m.Count, &m.TotalTokens,
			&m.CacheReadTokens, &m.CacheCreationTokens); err != nil {
			return nil, fmt.Errorf("storage: scan model stat: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// HourlyStats buckets the window into hours for the dashboard chart. The
// bucket math runs on the stored unix seconds so it is dialect-neutral.
func (s *Store) HourlyStats(ctx context.Context, userID int64, since time.Time) ([]models.HourlyStat, error) {
	query := `SELECT (created_at / 3600) * 3600, COUNT(*),
		COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0),
		COALESCE(SUM(cache_read_tokens), 0), COALESCE(SUM(cache_creation_tokens), 0)
	FROM request_logs WHERE created_at >= ?`
	args := []interface{}{since.Unix()}
	if userID != 0 {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}
	query += ` GROUP BY (created_at / 3600) * 3600 ORDER BY 1`

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("storage: hourly stats: %w", err)
	}
	defer rows.Close()

	var out []models.HourlyStat
	for rows.Next() {
		var (
			h      models.HourlyStat
			bucket int64
		)
		err := rows.Scan(&bucket, &h.Requests, &h.InputTokens, &h.OutputTokens,
			&h.CacheReadTokens, &h.CacheCreationTokens)
		if err != nil {
			return nil, fmt.Errorf("storage: scan hourly stat: %w", err)
		}
		h.Hour = time.Unix(bucket, 0).UTC().Format("2006-01-02 15:00")
		h.TotalTokens = h.InputTokens + h.OutputTokens
		out = append(out, h)
	}
	return out, rows.Err()
}

// TrimRequestLogs drops log rows older than `before`, returning the number
// removed. Run periodically from the scheduler.
func (s *Store) TrimRequestLogs(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		s.q(`DELETE FROM request_logs WHERE created_at < ?`), before.Unix())
	if err != nil {
		return 0, fmt.Errorf("storage: trim request logs: %w", err)
	}
	return res.RowsAffected()
}
