package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"aigateway-go/internal/migrations"
	"aigateway-go/internal/models"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

func (d dialect) String() string {
	if d == dialectPostgres {
		return "postgres"
	}
	return "sqlite"
}

// Config selects and tunes the storage backend.
type Config struct {
	Backend         string        `yaml:"backend" json:"backend"` // "sqlite" (default) or "postgres"
	SQLitePath      string        `yaml:"sqlite_path" json:"sqlite_path"`
	PostgresDSN     string        `yaml:"postgres_dsn" json:"postgres_dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
}

// Store is the SQL-backed Backend implementation. The same DML runs against
// sqlite and postgres; placeholders are rebound per dialect.
type Store struct {
	db      *sql.DB
	dialect dialect
}

var _ Backend = (*Store)(nil)

// New opens the backend named by cfg without touching the schema yet;
// call Initialize before first use.
func New(cfg Config) (*Store, error) {
	switch cfg.Backend {
	case "", "sqlite":
		path := cfg.SQLitePath
		if path == "" {
			path = "aigateway.db"
		}
		return OpenSQLite(path)
	case "postgres", "postgresql":
		s, err := OpenPostgres(cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if cfg.MaxOpenConns > 0 {
			s.db.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			s.db.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		if cfg.ConnMaxLifetime > 0 {
			s.db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", cfg.Backend)
	}
}

// OpenSQLite opens (or creates) a sqlite database at path. ":memory:" gives
// an in-process database, used by tests.
func OpenSQLite(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite: %w", err)
	}
	// modernc sqlite serializes writers; a single connection avoids
	// SQLITE_BUSY on the in-memory database as well.
	db.SetMaxOpenConns(1)
	return &Store{db: db, dialect: dialectSQLite}, nil
}

// OpenPostgres connects with the given DSN.
func OpenPostgres(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("storage: postgres backend requires a DSN")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open postgres: %w", err)
	}
	return &Store{db: db, dialect: dialectPostgres}, nil
}

// Initialize creates the schema and seeds the singleton settings rows.
func (s *Store) Initialize(ctx context.Context) error {
	switch s.dialect {
	case dialectPostgres:
		if err := s.db.PingContext(ctx); err != nil {
			return fmt.Errorf("storage: postgres ping: %w", err)
		}
		if err := migrations.PostgresUp(s.db); err != nil {
			return fmt.Errorf("storage: run migrations: %w", err)
		}
	default:
		if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
			return fmt.Errorf("storage: create schema: %w", err)
		}
	}
	if err := s.seedSettings(ctx); err != nil {
		return err
	}
	log.WithField("backend", s.dialect.String()).Info("Storage initialized")
	return nil
}

// Close closes the underlying pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Health pings the database.
func (s *Store) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetStorageStats reports row counts for the admin dashboard.
func (s *Store) GetStorageStats(ctx context.Context) (StorageStats, error) {
	stats := StorageStats{Backend: s.dialect.String()}
	stats.Healthy = s.db.PingContext(ctx) == nil

	counts := []struct {
		table string
		dst   *int
	}{
		{"accounts", &stats.AccountCount},
		{"channels", &stats.ChannelCount},
		{"users", &stats.UserCount},
		{"tokens", &stats.TokenCount},
		{"request_logs", &stats.LogCount},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+c.table).Scan(c.dst); err != nil {
			return stats, fmt.Errorf("storage: count %s: %w", c.table, err)
		}
	}
	return stats, nil
}

func (s *Store) seedSettings(ctx context.Context) error {
	cache := models.DefaultCacheSettings()
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO cache_config
			(id, prompt_cache_enabled, compression_enabled, compression_threshold,
			 compression_target, compression_strategy, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`),
		cache.PromptCacheEnabled, cache.CompressionEnabled, cache.CompressionThreshold,
		cache.CompressionTarget, cache.CompressionStrategy, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("storage: seed cache_config: %w", err)
	}

	risk := models.DefaultRiskControlSettings()
	_, err = s.db.ExecContext(ctx, s.q(`
		INSERT INTO risk_control_config
			(id, proxy_pool_enabled, proxy_pool_strategy, rate_limit_enabled,
			 rate_limit_global_rpm, rate_limit_global_tpm, health_monitor_enabled,
			 health_monitor_interval, fingerprint_enabled, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`),
		risk.ProxyPoolEnabled, risk.ProxyPoolStrategy, risk.RateLimitEnabled,
		risk.RateLimitGlobalRPM, risk.RateLimitGlobalTPM, risk.HealthMonitorEnabled,
		risk.HealthMonitorInterval, risk.FingerprintEnabled, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("storage: seed risk_control_config: %w", err)
	}
	return nil
}

// q rewrites ? placeholders to $N for postgres. Queries are written once
// in sqlite style and shared between the two dialects.
func (s *Store) q(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// unixOrNil converts an optional time to its stored representation.
func unixOrNil(t *time.Time) interface{} {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.Unix()
}

// timePtr converts a stored unix-seconds value back to an optional time.
func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid || v.Int64 == 0 {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}
