package respcache

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"audiothek/internal/logging"
	"audiothek/internal/services"
)

//go:embed schema.sql
var schemaSQL string

// FileName is the database file created inside the cache directory.
const FileName = "graphql_cache.sqlite3"

// DefaultTTL is how long an entry is served before it counts as a miss.
const DefaultTTL = 6 * time.Hour

// connectionPragmas are applied by the driver to every pooled connection.
const connectionPragmas = "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Options configures Open.
type Options struct {
	TTL      time.Duration
	Disabled bool
	Logger   *slog.Logger
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Cache is a SQLite-backed response store. A nil or disabled Cache misses on
// every Get and ignores every Put.
type Cache struct {
	db     *sql.DB
	path   string
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// Open creates or connects to the cache database in dir.
func Open(dir string, opts Options) (*Cache, error) {
	logger := logging.NewComponentLogger(opts.Logger, "respcache")
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	cache := &Cache{ttl: ttl, now: now, logger: logger}
	if opts.Disabled {
		logger.Debug("response cache disabled")
		return cache, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrCache, "respcache", "open", "create cache directory", err)
	}
	dbPath := filepath.Join(dir, FileName)
	db, err := sql.Open("sqlite", dbPath+"?"+connectionPragmas)
	if err != nil {
		return nil, services.Wrap(services.ErrCache, "respcache", "open", "open sqlite db", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, services.Wrap(services.ErrCache, "respcache", "open", "create schema", err)
	}

	cache.db = db
	cache.path = dbPath
	logger.Debug("response cache opened", logging.String("path", dbPath), logging.Duration("ttl", ttl))
	return cache, nil
}

// Enabled reports whether the cache is backed by a database.
func (c *Cache) Enabled() bool {
	return c != nil && c.db != nil
}

// Path returns the database file location, or "" when disabled.
func (c *Cache) Path() string {
	if c == nil {
		return ""
	}
	return c.path
}

// Close closes the underlying database connection.
func (c *Cache) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.db.Close()
}

// Get returns the stored payload for req when it is younger than the TTL.
// Expired entries are evicted on read.
func (c *Cache) Get(ctx context.Context, req Request) ([]byte, bool) {
	if !c.Enabled() {
		return nil, false
	}
	key := req.Key()
	var (
		payload   string
		updatedAt float64
	)
	err := retryOnBusy(ctx, func() error {
		return c.db.QueryRowContext(ctx,
			`SELECT response, updated_at FROM graphql_cache WHERE cache_key = ?`, key,
		).Scan(&payload, &updatedAt)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false
	}
	if err != nil {
		c.warn("read", key, err)
		return nil, false
	}

	age := c.now().Sub(fromUnixSeconds(updatedAt))
	if age > c.ttl {
		c.evict(ctx, key)
		return nil, false
	}
	return []byte(payload), true
}

// Put stores payload under the request's key, replacing any previous entry.
func (c *Cache) Put(ctx context.Context, req Request, payload []byte) {
	if !c.Enabled() {
		return
	}
	key := req.Key()
	err := retryOnBusy(ctx, func() error {
		_, execErr := c.db.ExecContext(ctx, `
			INSERT INTO graphql_cache(cache_key, query_name, query, variables, response, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(cache_key) DO UPDATE SET
				query_name = excluded.query_name,
				query = excluded.query,
				variables = excluded.variables,
				response = excluded.response,
				updated_at = excluded.updated_at`,
			key, req.QueryName, req.Query, req.variablesJSON(), string(payload), toUnixSeconds(c.now()))
		return execErr
	})
	if err != nil {
		c.warn("write", key, err)
	}
}

// PurgeExpired deletes every entry older than the TTL and reports how many
// were removed.
func (c *Cache) PurgeExpired(ctx context.Context) (int64, error) {
	if !c.Enabled() {
		return 0, nil
	}
	cutoff := toUnixSeconds(c.now().Add(-c.ttl))
	return c.deleteWhere(ctx, `DELETE FROM graphql_cache WHERE updated_at < ?`, cutoff)
}

// Clear deletes every entry.
func (c *Cache) Clear(ctx context.Context) (int64, error) {
	if !c.Enabled() {
		return 0, nil
	}
	return c.deleteWhere(ctx, `DELETE FROM graphql_cache`)
}

// Stats reports the number of live and expired entries.
func (c *Cache) Stats(ctx context.Context) (live, expired int, err error) {
	if !c.Enabled() {
		return 0, 0, nil
	}
	cutoff := toUnixSeconds(c.now().Add(-c.ttl))
	err = retryOnBusy(ctx, func() error {
		return c.db.QueryRowContext(ctx, `
			SELECT
				COALESCE(SUM(CASE WHEN updated_at >= ? THEN 1 ELSE 0 END), 0),
				COALESCE(SUM(CASE WHEN updated_at < ? THEN 1 ELSE 0 END), 0)
			FROM graphql_cache`, cutoff, cutoff).Scan(&live, &expired)
	})
	if err != nil {
		return 0, 0, services.Wrap(services.ErrCache, "respcache", "stats", "", err)
	}
	return live, expired, nil
}

func (c *Cache) deleteWhere(ctx context.Context, query string, args ...any) (int64, error) {
	var res sql.Result
	err := retryOnBusy(ctx, func() error {
		var execErr error
		res, execErr = c.db.ExecContext(ctx, query, args...)
		return execErr
	})
	if err != nil {
		return 0, services.Wrap(services.ErrCache, "respcache", "delete", "", err)
	}
	return res.RowsAffected()
}

func (c *Cache) evict(ctx context.Context, key string) {
	err := retryOnBusy(ctx, func() error {
		_, execErr := c.db.ExecContext(ctx, `DELETE FROM graphql_cache WHERE cache_key = ?`, key)
		return execErr
	})
	if err != nil {
		c.warn("evict", key, err)
	}
}

func (c *Cache) warn(operation, key string, err error) {
	logging.WarnWithContext(c.logger, "response cache "+operation+" failed", "cache_error",
		logging.String("operation", operation),
		logging.String("cache_key", key),
		logging.Error(err),
		logging.String(logging.FieldImpact, "request served from the network"),
	)
}

func toUnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func fromUnixSeconds(v float64) time.Time {
	return time.Unix(0, int64(v*float64(time.Second)))
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := range busyRetryAttempts {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		if err := services.SleepWithContext(ctx, delay); err != nil {
			return err
		}
		delay = min(delay*2, busyRetryMaxBackoff)
	}
	return lastErr
}
