package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"aigateway-go/internal/models"
)

const tokenColumns = `id, user_id, "key", name, status, unlimited_quota,
	remain_quota, used_quota, created_time, accessed_time, expired_time,
	model_limits_enabled, model_limits, ip_whitelist, "group", cross_group_retry,
	rpm_limit, tpm_limit, input_tokens, output_tokens, total_tokens, request_count`

// CreateToken inserts a client key. A missing key is generated and a missing
// status defaults to enabled.
func (s *Store) CreateToken(ctx context.Context, t *models.APIToken) error {
	if t.Key == "" {
		t.Key = models.NewTokenKey()
	}
	if t.Status == 0 {
		t.Status = models.TokenStatusEnabled
	}
	if t.CreatedTime == 0 {
		t.CreatedTime = time.Now().Unix()
	}
	if t.ExpiredTime == 0 {
		t.ExpiredTime = models.NeverExpires
	}
	err := s.db.QueryRowContext(ctx, s.q(`
		INSERT INTO tokens
			(user_id, "key", name, status, unlimited_quota, remain_quota,
			 used_quota, created_time, accessed_time, expired_time,
			 model_limits_enabled, model_limits, ip_whitelist, "group",
			 cross_group_retry, rpm_limit, tpm_limit)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		t.UserID, t.Key, t.Name, t.Status, t.UnlimitedQuota, t.RemainQuota,
		t.UsedQuota, t.CreatedTime, t.AccessedTime, t.ExpiredTime,
		t.ModelLimitsEnabled, t.ModelLimits, t.IPWhitelist, t.Group,
		t.CrossGroupRetry, t.RPMLimit, t.TPMLimit).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("storage: create token: %w", err)
	}
	return nil
}

// GetToken fetches a token by ID.
func (s *Store) GetToken(ctx context.Context, id int64) (*models.APIToken, error) {
	row := s.db.QueryRowContext(ctx,
		s.q(`SELECT `+tokenColumns+` FROM tokens WHERE id = ?`), id)
	t, err := scanToken(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &ErrNotFound{Key: "token " + strconv.FormatInt(id, 10)}
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get token: %w", err)
	}
	return t, nil
}

// GetTokenByKey is the auth hot path: one lookup per request.
func (s *Store) GetTokenByKey(ctx context.Context, key string) (*models.APIToken, error) {
	row := s.db.QueryRowContext(ctx,
		s.q(`SELECT `+tokenColumns+` FROM tokens WHERE "key" = ?`), key)
	t, err := scanToken(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &ErrNotFound{Key: "token key"}
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get token by key: %w", err)
	}
	return t, nil
}

// ListTokens returns a user's tokens, or every token when userID is zero.
func (s *Store) ListTokens(ctx context.Context, userID int64) ([]models.APIToken, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens`
	var args []interface{}
	if userID != 0 {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("storage: query tokens: %w", err)
	}
	defer rows.Close()

	var out []models.APIToken
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan token: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// UpdateToken persists the mutable token fields. The key itself never
// changes after creation.
func (s *Store) UpdateToken(ctx context.Context, t *models.APIToken) error {
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE tokens SET
			name = ?, status = ?, unlimited_quota = ?, remain_quota = ?,
			expired_time = ?, model_limits_enabled = ?, model_limits = ?,
			ip_whitelist = ?, "group" = ?, cross_group_retry = ?,
			rpm_limit = ?, tpm_limit = ?
		WHERE id = ?`),
		t.Name, t.Status, t.UnlimitedQuota, t.RemainQuota,
		t.ExpiredTime, t.ModelLimitsEnabled, t.ModelLimits,
		t.IPWhitelist, t.Group, t.CrossGroupRetry,
		t.RPMLimit, t.TPMLimit, t.ID)
	if err != nil {
		return fmt.Errorf("storage: update token: %w", err)
	}
	return requireRow(res, "token "+strconv.FormatInt(t.ID, 10))
}

// DeleteToken removes a token, scoped to its owner so one user cannot
// delete another's key. A zero userID skips the ownership check (admin).
func (s *Store) DeleteToken(ctx context.Context, id, userID int64) error {
	query := `DELETE FROM tokens WHERE id = ?`
	args := []interface{}{id}
	if userID != 0 {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}
	res, err := s.db.ExecContext(ctx, s.q(query), args...)
	if err != nil {
		return fmt.Errorf("storage: delete token: %w", err)
	}
	return requireRow(res, "token "+strconv.FormatInt(id, 10))
}

// RecordTokenUsage charges a completed call against the token: quota down
// (unless unlimited), counters up, accessed_time stamped. A token that runs
// out of quota flips to exhausted in the same statement.
func (s *Store) RecordTokenUsage(ctx context.Context, id, quotaDelta, inputTokens, outputTokens int64) error {
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE tokens SET
			remain_quota = CASE WHEN unlimited_quota = ? THEN remain_quota
				ELSE remain_quota - ? END,
			used_quota = used_quota + ?,
			input_tokens = input_tokens + ?,
			output_tokens = output_tokens + ?,
			total_tokens = total_tokens + ?,
			request_count = request_count + 1,
			accessed_time = ?,
			status = CASE WHEN unlimited_quota = ? AND remain_quota - ? <= 0 AND status = ?
				THEN ? ELSE status END
		WHERE id = ?`),
		true, quotaDelta, quotaDelta, inputTokens, outputTokens,
		inputTokens+outputTokens, time.Now().Unix(),
		false, quotaDelta, models.TokenStatusEnabled, models.TokenStatusExhausted, id)
	if err != nil {
		return fmt.Errorf("storage: record token usage: %w", err)
	}
	return requireRow(res, "token "+strconv.FormatInt(id, 10))
}

// SweepTokenStatus marks enabled tokens that have expired or run dry,
// returning how many rows changed. Run periodically from the scheduler.
func (s *Store) SweepTokenStatus(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE tokens SET status = CASE
			WHEN expired_time <> ? AND expired_time < ? THEN ?
			ELSE ? END
		WHERE status = ?
		  AND ((expired_time <> ? AND expired_time < ?)
		    OR (unlimited_quota = ? AND remain_quota <= 0))`),
		models.NeverExpires, now.Unix(), models.TokenStatusExpired,
		models.TokenStatusExhausted, models.TokenStatusEnabled,
		models.NeverExpires, now.Unix(), false)
	if err != nil {
		return 0, fmt.Errorf("storage: sweep token status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.WithField("tokens", n).Info("Swept expired or exhausted tokens")
	}
	return n, nil
}

func scanToken(r rowScanner) (*models.APIToken, error) {
	var t models.APIToken
	err := r.Scan(&t.ID, &t.UserID, &t.Key, &t.Name, &t.Status, &t.UnlimitedQuota,
		&t.RemainQuota, &t.UsedQuota, &t.CreatedTime, &t.AccessedTime, &t.ExpiredTime,
		&t.ModelLimitsEnabled, &t.ModelLimits, &t.IPWhitelist, &t.Group,
		&t.CrossGroupRetry, &t.RPMLimit, &t.TPMLimit,
		&t.InputTokens, &t.OutputTokens, &t.TotalTokens, &t.RequestCount)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
