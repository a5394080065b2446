package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"aigateway-go/internal/models"
)

const accountColumns = `id, provider_type, name, api_key, "usage", "limit",
	input_tokens, output_tokens, total_tokens, last_used_at, enabled, created_by, created_at`

// CreateAccount inserts a new upstream credential and fills in its ID.
func (s *Store) CreateAccount(ctx context.Context, a *models.Account) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	err := s.db.QueryRowContext(ctx, s.q(`
		INSERT INTO accounts
			(provider_type, name, api_key, "usage", "limit", input_tokens,
			 output_tokens, total_tokens, last_used_at, enabled, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		a.ProviderType, a.Name, a.APIKey, a.Usage, a.Limit, a.InputTokens,
		a.OutputTokens, a.TotalTokens, unixOrNil(a.LastUsedAt), a.Enabled,
		a.CreatedBy, a.CreatedAt.Unix()).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("storage: create account: %w", err)
	}
	return nil
}

// GetAccount fetches a single account by ID.
func (s *Store) GetAccount(ctx context.Context, id int64) (*models.Account, error) {
	row := s.db.QueryRowContext(ctx,
		s.q(`SELECT `+accountColumns+` FROM accounts WHERE id = ?`), id)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &ErrNotFound{Key: "account " + strconv.FormatInt(id, 10)}
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get account: %w", err)
	}
	return a, nil
}

// ListAccounts returns all accounts, optionally restricted to one provider.
func (s *Store) ListAccounts(ctx context.Context, providerType string) ([]models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts`
	var args []interface{}
	if providerType != "" {
		query += ` WHERE provider_type = ?`
		args = append(args, providerType)
	}
	query += ` ORDER BY id`
	return s.queryAccounts(ctx, query, args...)
}

// EnabledAccounts returns the enabled, under-limit accounts of a provider in
// random order; the health monitor reorders them by penalty afterwards.
func (s *Store) EnabledAccounts(ctx context.Context, providerType string) ([]models.Account, error) {
	return s.queryAccounts(ctx, `
		SELECT `+accountColumns+` FROM accounts
		WHERE provider_type = ? AND enabled = ? AND ("limit" <= 0 OR "usage" < "limit")
		ORDER BY RANDOM()`, providerType, true)
}

// UpdateAccount persists every mutable field of a.
func (s *Store) UpdateAccount(ctx context.Context, a *models.Account) error {
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE accounts SET
			provider_type = ?, name = ?, api_key = ?, "usage" = ?, "limit" = ?,
			input_tokens = ?, output_tokens = ?, total_tokens = ?,
			last_used_at = ?, enabled = ?
		WHERE id = ?`),
		a.ProviderType, a.Name, a.APIKey, a.Usage, a.Limit,
		a.InputTokens, a.OutputTokens, a.TotalTokens,
		unixOrNil(a.LastUsedAt), a.Enabled, a.ID)
	if err != nil {
		return fmt.Errorf("storage: update account: %w", err)
	}
	return requireRow(res, "account "+strconv.FormatInt(a.ID, 10))
}

// DeleteAccount removes an account.
func (s *Store) DeleteAccount(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM accounts WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("storage: delete account: %w", err)
	}
	return requireRow(res, "account "+strconv.FormatInt(id, 10))
}

// RecordAccountUsage adds a completed call's spend to the account counters
// and stamps last_used_at.
func (s *Store) RecordAccountUsage(ctx context.Context, id, usageDelta, inputTokens, outputTokens int64) error {
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE accounts SET
			"usage" = "usage" + ?,
			input_tokens = input_tokens + ?,
			output_tokens = output_tokens + ?,
			total_tokens = total_tokens + ?,
			last_used_at = ?
		WHERE id = ?`),
		usageDelta, inputTokens, outputTokens, inputTokens+outputTokens,
		time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("storage: record account usage: %w", err)
	}
	return requireRow(res, "account "+strconv.FormatInt(id, 10))
}

func (s *Store) queryAccounts(ctx context.Context, query string, args ...interface{}) ([]models.Account, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("storage: query accounts: %w", err)
	}
	defer rows.Close()

	var out []models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan account: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(r rowScanner) (*models.Account, error) {
	var (
		a         models.Account
		lastUsed  sql.NullInt64
		createdBy sql.NullInt64
		createdAt int64
	)
	err := r.Scan(&a.ID, &a.ProviderType, &a.Name, &a.APIKey, &a.Usage, &a.Limit,
		&a.InputTokens, &a.OutputTokens, &a.TotalTokens, &lastUsed, &a.Enabled,
		&createdBy, &createdAt)
	if err != nil {
		return nil, err
	}
	a.LastUsedAt = timePtr(lastUsed)
	if createdBy.Valid {
		a.CreatedBy = &createdBy.Int64
	}
	a.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &a, nil
}

// requireRow converts a zero-row UPDATE/DELETE into ErrNotFound.
func requireRow(res sql.Result, key string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &ErrNotFound{Key: key}
	}
	return nil
}
