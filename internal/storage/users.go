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

const userColumns = `id, email, password_hash, api_key, name, role, email_verified,
	quota, used_quota, input_tokens, output_tokens, total_tokens, enabled,
	last_login_at, created_at`

// CreateUser inserts a user and fills in its ID. A missing API key is
// generated; a missing role defaults to user.
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	if u.APIKey == "" {
		u.APIKey = models.NewTokenKey()
	}
	if u.Role == "" {
		u.Role = models.RoleUser
	}
	if u.Quota == 0 {
		u.Quota = models.UnlimitedQuota
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	var email interface{}
	if u.Email != "" {
		email = u.Email
	}
	err := s.db.QueryRowContext(ctx, s.q(`
		INSERT INTO users
			(email, password_hash, api_key, name, role, email_verified,
			 quota, used_quota, enabled, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		email, u.PasswordHash, u.APIKey, u.Name, u.Role, u.EmailVerified,
		u.Quota, u.UsedQuota, u.Enabled, u.CreatedAt.Unix()).Scan(&u.ID)
	if err != nil {
		return fmt.Errorf("storage: create user: %w", err)
	}
	return nil
}

// GetUser fetches a user by ID.
func (s *Store) GetUser(ctx context.Context, id int64) (*models.User, error) {
	return s.getUser(ctx, `id = ?`, "user "+strconv.FormatInt(id, 10), id)
}

// GetUserByAPIKey resolves a user-level API key.
func (s *Store) GetUserByAPIKey(ctx context.Context, key string) (*models.User, error) {
	return s.getUser(ctx, `api_key = ?`, "user key", key)
}

// GetUserByEmail resolves a console login.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, `email = ?`, "user "+email, email)
}

func (s *Store) getUser(ctx context.Context, where, key string, arg interface{}) (*models.User, error) {
	row := s.db.QueryRowContext(ctx,
		s.q(`SELECT `+userColumns+` FROM users WHERE `+where), arg)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &ErrNotFound{Key: key}
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get user: %w", err)
	}
	return u, nil
}

// ListUsers returns all users ordered by ID.
func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT `+userColumns+` FROM users ORDER BY id`))
	if err != nil {
		return nil, fmt.Errorf("storage: query users: %w", err)
	}
	defer rows.Close()

	var out []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan user: %w", err)
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

// UpdateUser persists every mutable field of u.
func (s *Store) UpdateUser(ctx context.Context, u *models.User) error {
	var email interface{}
	if u.Email != "" {
		email = u.Email
	}
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE users SET
			email = ?, password_hash = ?, name = ?, role = ?, email_verified = ?,
			quota = ?, used_quota = ?, enabled = ?, last_login_at = ?
		WHERE id = ?`),
		email, u.PasswordHash, u.Name, u.Role, u.EmailVerified,
		u.Quota, u.UsedQuota, u.Enabled, unixOrNil(u.LastLoginAt), u.ID)
	if err != nil {
		return fmt.Errorf("storage: update user: %w", err)
	}
	return requireRow(res, "user "+strconv.FormatInt(u.ID, 10))
}

// DeleteUser removes a user together with their tokens and sessions.
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin delete user: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM tokens WHERE user_id = ?`), id); err != nil {
		return fmt.Errorf("storage: delete user tokens: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM sessions WHERE user_id = ?`), id); err != nil {
		return fmt.Errorf("storage: delete user sessions: %w", err)
	}
	res, err := tx.ExecContext(ctx, s.q(`DELETE FROM users WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("storage: delete user: %w", err)
	}
	if err := requireRow(res, "user "+strconv.FormatInt(id, 10)); err != nil {
		return err
	}
	return tx.Commit()
}

// RecordUserUsage charges a completed call against the user's quota and
// token counters.
func (s *Store) RecordUserUsage(ctx context.Context, id, quotaDelta, inputTokens, outputTokens int64) error {
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE users SET
			used_quota = used_quota + ?,
			input_tokens = input_tokens + ?,
			output_tokens = output_tokens + ?,
			total_tokens = total_tokens + ?
		WHERE id = ?`),
		quotaDelta, inputTokens, outputTokens, inputTokens+outputTokens, id)
	if err != nil {
		return fmt.Errorf("storage: record user usage: %w", err)
	}
	return requireRow(res, "user "+strconv.FormatInt(id, 10))
}

func scanUser(r rowScanner) (*models.User, error) {
	var (
		u         models.User
		email     sql.NullString
		lastLogin sql.NullInt64
		createdAt int64
	)
	err := r.Scan(&u.ID, &email, &u.PasswordHash, &u.APIKey, &u.Name, &u.Role,
		&u.EmailVerified, &u.Quota, &u.UsedQuota, &u.InputTokens, &u.OutputTokens,
		&u.TotalTokens, &u.Enabled, &lastLogin, &createdAt)
	if err != nil {
		return nil, err
	}
	u.Email = email.String
	u.LastLoginAt = timePtr(lastLogin)
	u.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &u, nil
}

// CreateSession stores a console login.
func (s *Store) CreateSession(ctx context.Context, sess *models.Session) error {
	if sess.Token == "" {
		sess.Token = models.NewSessionToken()
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now().UTC()
	}
	if sess.ExpiresAt.IsZero() {
		sess.ExpiresAt = sess.CreatedAt.Add(models.SessionDuration)
	}
	err := s.db.QueryRowContext(ctx, s.q(`
		INSERT INTO sessions (user_id, token, expires_at, created_at)
		VALUES (?, ?, ?, ?)
		RETURNING id`),
		sess.UserID, sess.Token, sess.ExpiresAt.Unix(), sess.CreatedAt.Unix()).Scan(&sess.ID)
	if err != nil {
		return fmt.Errorf("storage: create session: %w", err)
	}
	return nil
}

// GetSession resolves a session token. Expiry is the caller's concern so a
// stale cookie can still be reported distinctly from an unknown one.
func (s *Store) GetSession(ctx context.Context, token string) (*models.Session, error) {
	var (
		sess      models.Session
		expiresAt int64
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT id, user_id, token, expires_at, created_at
		FROM sessions WHERE token = ?`), token).
		Scan(&sess.ID, &sess.UserID, &sess.Token, &expiresAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &ErrNotFound{Key: "session"}
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get session: %w", err)
	}
	sess.ExpiresAt = time.Unix(expiresAt, 0).UTC()
	sess.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &sess, nil
}

// DeleteSession logs a console session out.
func (s *Store) DeleteSession(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM sessions WHERE token = ?`), token)
	if err != nil {
		return fmt.Errorf("storage: delete session: %w", err)
	}
	return requireRow(res, "session")
}

// PurgeExpiredSessions drops stale logins, returning how many were removed.
func (s *Store) PurgeExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		s.q(`DELETE FROM sessions WHERE expires_at < ?`), now.Unix())
	if err != nil {
		return 0, fmt.Errorf("storage: purge sessions: %w", err)
	}
	return res.RowsAffected()
}

// CreateInviteCode stores a referral code.
func (s *Store) CreateInviteCode(ctx context.Context, ic *models.InviteCode) error {
	if ic.Code == "" {
		ic.Code = models.NewInviteCode()
	}
	if ic.CreatedAt.IsZero() {
		ic.CreatedAt = time.Now().UTC()
	}
	err := s.db.QueryRowContext(ctx, s.q(`
		INSERT INTO invite_codes (code, created_by, created_at)
		VALUES (?, ?, ?)
		RETURNING id`),
		ic.Code, ic.CreatedBy, ic.CreatedAt.Unix()).Scan(&ic.ID)
	if err != nil {
		return fmt.Errorf("storage: create invite code: %w", err)
	}
	return nil
}

// GetInviteCode looks a referral code up.
func (s *Store) GetInviteCode(ctx context.Context, code string) (*models.InviteCode, error) {
	var (
		ic        models.InviteCode
		usedBy    sql.NullInt64
		usedAt    sql.NullInt64
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT id, code, created_by, used_by, used_at, created_at
		FROM invite_codes WHERE code = ?`), code).
		Scan(&ic.ID, &ic.Code, &ic.CreatedBy, &usedBy, &usedAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &ErrNotFound{Key: "invite code " + code}
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get invite code: %w", err)
	}
	if usedBy.Valid {
		ic.UsedBy = &usedBy.Int64
	}
	ic.UsedAt = timePtr(usedAt)
	ic.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &ic, nil
}

// UseInviteCode atomically claims a code for a registering user. An already
// claimed or unknown code comes back as ErrNotFound.
func (s *Store) UseInviteCode(ctx context.Context, code string, userID int64, now time.Time) error {
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE invite_codes SET used_by = ?, used_at = ?
		WHERE code = ? AND used_by IS NULL`),
		userID, now.Unix(), code)
	if err != nil {
		return fmt.Errorf("storage: use invite code: %w", err)
	}
	return requireRow(res, "invite code "+code)
}
