package storage

import (
	"context"
	"errors"
	"time"

	"aigateway-go/internal/models"
)

// Backend defines the interface for storage implementations
type Backend interface {
	// Initialize sets up the storage backend
	Initialize(ctx context.Context) error

	// Close closes the storage backend
	Close() error

	// Health checks if the storage backend is healthy
	Health(ctx context.Context) error

	// Account operations
	CreateAccount(ctx context.Context, a *models.Account) error
	GetAccount(ctx context.Context, id int64) (*models.Account, error)
	ListAccounts(ctx context.Context, providerType string) ([]models.Account, error)
	EnabledAccounts(ctx context.Context, providerType string) ([]models.Account, error)
	UpdateAccount(ctx context.Context, a *models.Account) error
	DeleteAccount(ctx context.Context, id int64) error
	RecordAccountUsage(ctx context.Context, id, usageDelta, inputTokens, outputTokens int64) error

	// Channel operations
	CreateChannel(ctx context.Context, c *models.Channel) error
	GetChannel(ctx context.Context, id int64) (*models.Channel, error)
	ListChannels(ctx context.Context, enabledOnly bool) ([]models.Channel, error)
	UpdateChannel(ctx context.Context, c *models.Channel) error
	DeleteChannel(ctx context.Context, id int64) error
	RecordChannelResult(ctx context.Context, id int64, failed bool, latencyMS int64) error

	// API token operations
	CreateToken(ctx context.Context, t *models.APIToken) error
	GetToken(ctx context.Context, id int64) (*models.APIToken, error)
	GetTokenByKey(ctx context.Context, key string) (*models.APIToken, error)
	ListTokens(ctx context.Context, userID int64) ([]models.APIToken, error)
	UpdateToken(ctx context.Context, t *models.APIToken) error
	DeleteToken(ctx context.Context, id, userID int64) error
	RecordTokenUsage(ctx context.Context, id, quotaDelta, inputTokens, outputTokens int64) error
	SweepTokenStatus(ctx context.Context, now time.Time) (int64, error)

	// User operations
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id int64) (*models.User, error)
	GetUserByAPIKey(ctx context.Context, key string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	UpdateUser(ctx context.Context, u *models.User) error
	DeleteUser(ctx context.Context, id int64) error
	RecordUserUsage(ctx context.Context, id, quotaDelta, inputTokens, outputTokens int64) error

	// Session operations
	CreateSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, token string) (*models.Session, error)
	DeleteSession(ctx context.Context, token string) error
	PurgeExpiredSessions(ctx context.Context, now time.Time) (int64, error)

	// Invite code operations
	CreateInviteCode(ctx context.Context, ic *models.InviteCode) error
	GetInviteCode(ctx context.Context, code string) (*models.InviteCode, error)
	UseInviteCode(ctx context.Context, code string, userID int64, now time.Time) error

	// Request log operations
	InsertRequestLog(ctx context.Context, l *models.RequestLog) error
	ListRequestLogs(ctx context.Context, f LogFilter) ([]models.RequestLog, error)
	UsageStats(ctx context.Context, userID int64, since time.Time) (*models.UsageStats, error)
	ModelStats(ctx context.Context, userID int64, since time.Time) ([]models.ModelStat, error)
	HourlyStats(ctx context.Context, userID int64, since time.Time) ([]models.HourlyStat, error)
	TrimRequestLogs(ctx context.Context, before time.Time) (int64, error)

	// Runtime settings rows
	CacheSettings(ctx context.Context) (models.CacheSettings, error)
	UpdateCacheSettings(ctx context.Context, s models.CacheSettings) error
	RiskControlSettings(ctx context.Context) (models.RiskControlSettings, error)
	UpdateRiskControlSettings(ctx context.Context, s models.RiskControlSettings) error

	// Storage metrics and monitoring
	GetStorageStats(ctx context.Context) (StorageStats, error)
}

// LogFilter narrows ListRequestLogs. Zero values mean "any".
type LogFilter struct {
	UserID    int64
	ChannelID int64
	Model     string
	ErrorOnly bool
	Since     time.Time
	Limit     int
	Offset    int
}

// ErrNotFound is returned when a record is not found
type ErrNotFound struct {
	Key string
}

func (e *ErrNotFound) Error() string {
	return "record not found: " + e.Key
}

// ErrNotSupported is returned when an operation is not supported
type ErrNotSupported struct {
	Operation string
}

func (e *ErrNotSupported) Error() string {
	return "operation not supported: " + e.Operation
}

// IsNotFound reports whether err wraps an ErrNotFound.
func IsNotFound(err error) bool {
	var nf *ErrNotFound
	return errors.As(err, &nf)
}

// StorageStats provides storage backend statistics
type StorageStats struct {
	Backend      string                 `json:"backend"`
	Healthy      bool                   `json:"healthy"`
	AccountCount int                    `json:"account_count"`
	ChannelCount int                    `json:"channel_count"`
	UserCount    int                    `json:"user_count"`
	TokenCount   int                    `json:"token_count"`
	LogCount     int                    `json:"log_count"`
	Details      map[string]interface{} `json:"details,omitempty"`
}
