// Package store implements the durable state layer on SQLite: bot settings,
// per-user cooldown timestamps, and the append-only reading log.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/user/arcana/internal/types"
	_ "modernc.org/sqlite"
)

// Setting keys.
const (
	SettingCooldownMinutes = "cooldown_minutes"
	SettingTestMode        = "test_mode"
	SettingLogRejected     = "log_rejected"
)

// MinCooldown is the smallest cooldown an administrator may configure.
const MinCooldown = time.Minute

// defaults are the built-in setting values used when a key is absent or the
// store is unreadable.
var defaults = map[string]string{
	SettingCooldownMinutes: "1440", // 24 hours
	SettingTestMode:        "false",
	SettingLogRejected:     "false",
}

// SQLiteStore implements types.Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ types.Store = (*SQLiteStore)(nil)

// Open creates or opens the SQLite database at dbPath and ensures the schema.
func Open(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL mode for better concurrency between sessions and stats queries.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS bot_settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER,
		updated_by INTEGER
	);

	CREATE TABLE IF NOT EXISTS user_cooldowns (
		user_id INTEGER PRIMARY KEY,
		last_request INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS reading_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		user_id INTEGER NOT NULL,
		username TEXT,
		question TEXT NOT NULL,
		cards TEXT NOT NULL,
		at INTEGER NOT NULL,
		success INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_reading_log_at ON reading_log(at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	// Seed defaults without clobbering administrative changes.
	for key, value := range defaults {
		if _, err := s.db.Exec(
			`INSERT OR IGNORE INTO bot_settings (key, value) VALUES (?, ?)`,
			key, value,
		); err != nil {
			return fmt.Errorf("seed setting %s: %w", key, err)
		}
	}
	return nil
}

// Setting returns the stored value for name, or its built-in default when the
// key is absent or the store is unreadable. It never fails the caller.
func (s *SQLiteStore) Setting(ctx context.Context, name string) string {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM bot_settings WHERE key = ?`, name,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return defaults[name]
	}
	if err != nil {
		slog.Error("read setting failed, using default", "key", name, "error", err)
		return defaults[name]
	}
	return value
}

// SetSetting upserts a setting value, recording who changed it and when.
func (s *SQLiteStore) SetSetting(ctx context.Context, name, value string, changedBy types.UserID) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bot_settings (key, value, updated_at, updated_by)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at,
			updated_by = excluded.updated_by`,
		name, value, time.Now().Unix(), int64(changedBy),
	)
	if err != nil {
		return fmt.Errorf("set setting %s: %w", name, err)
	}
	return nil
}

// CooldownDuration returns the configured cooldown, clamped to MinCooldown.
func (s *SQLiteStore) CooldownDuration(ctx context.Context) time.Duration {
	raw := s.Setting(ctx, SettingCooldownMinutes)
	minutes, err := strconv.Atoi(raw)
	if err != nil || minutes < 1 {
		slog.Warn("invalid cooldown setting, using default", "value", raw)
		minutes, _ = strconv.Atoi(defaults[SettingCooldownMinutes])
	}
	d := time.Duration(minutes) * time.Minute
	if d < MinCooldown {
		d = MinCooldown
	}
	return d
}

// SetCooldownDuration stores a new cooldown. Durations below MinCooldown are
// rejected.
func (s *SQLiteStore) SetCooldownDuration(ctx context.Context, d time.Duration, changedBy types.UserID) error {
	if d < MinCooldown {
		return fmt.Errorf("cooldown must be at least %s", MinCooldown)
	}
	minutes := int(d / time.Minute)
	return s.SetSetting(ctx, SettingCooldownMinutes, strconv.Itoa(minutes), changedBy)
}

// TestMode reports whether the interpretation bypass is active.
func (s *SQLiteStore) TestMode(ctx context.Context) bool {
	return strings.EqualFold(s.Setting(ctx, SettingTestMode), "true")
}

// ToggleTestMode flips the test mode flag and returns the new state.
func (s *SQLiteStore) ToggleTestMode(ctx context.Context, changedBy types.UserID) (bool, error) {
	next := !s.TestMode(ctx)
	if err := s.SetSetting(ctx, SettingTestMode, strconv.FormatBool(next), changedBy); err != nil {
		return false, err
	}
	return next, nil
}

// LastActivity returns the timestamp of the user's last accepted request.
// The second return value is false when the user has never been accepted.
func (s *SQLiteStore) LastActivity(ctx context.Context, userID types.UserID) (time.Time, bool, error) {
	var unix int64
	err := s.db.QueryRowContext(ctx,
		`SELECT last_request FROM user_cooldowns WHERE user_id = ?`, int64(userID),
	).Scan(&unix)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query last activity: %w", err)
	}
	return time.Unix(unix, 0), true, nil
}

// RecordActivity upserts the user's last-accepted timestamp. A retry with the
// same or an earlier timestamp is a no-op, so the call is idempotent.
func (s *SQLiteStore) RecordActivity(ctx context.Context, userID types.UserID, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_cooldowns (user_id, last_request)
		VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			last_request = excluded.last_request
		WHERE excluded.last_request >= user_cooldowns.last_request`,
		int64(userID), at.Unix(),
	)
	if err != nil {
		return fmt.Errorf("record activity: %w", err)
	}
	return nil
}

// AppendLog inserts one reading log entry. Callers on the user-visible path
// swallow the error and report it through slog only.
func (s *SQLiteStore) AppendLog(ctx context.Context, entry *types.LogEntry) error {
	var username any
	if entry.Username != "" {
		username = entry.Username
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reading_log (session_id, user_id, username, question, cards, at, success)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(entry.SessionID), int64(entry.UserID), username,
		entry.Question, strings.Join(entry.Cards, ","),
		entry.At.Unix(), entry.Success,
	)
	if err != nil {
		return fmt.Errorf("append log entry: %w", err)
	}
	return nil
}

// QueryStats aggregates the reading log over the trailing window. An empty
// window yields a zero-valued aggregate, not an error.
func (s *SQLiteStore) QueryStats(ctx context.Context, window time.Duration) (*types.Stats, error) {
	cutoff := time.Now().Add(-window).Unix()
	stats := &types.Stats{Window: window}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(DISTINCT user_id),
		       COALESCE(SUM(CASE WHEN success THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN NOT success THEN 1 ELSE 0 END), 0)
		FROM reading_log WHERE at > ?`, cutoff,
	).Scan(&stats.Total, &stats.UniqueUsers, &stats.Success, &stats.Failure)
	if err != nil {
		return nil, fmt.Errorf("query totals: %w", err)
	}

	// MIN(id) breaks count ties by first appearance in the log.
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, COUNT(*) AS n
		FROM reading_log
		WHERE at > ? AND username IS NOT NULL
		GROUP BY username
		ORDER BY n DESC, MIN(id) ASC
		LIMIT 5`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query top users: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var uc types.UserCount
		if err := rows.Scan(&uc.Username, &uc.Count); err != nil {
			return nil, fmt.Errorf("scan top user: %w", err)
		}
		stats.TopUsers = append(stats.TopUsers, uc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate top users: %w", err)
	}

	qrows, err := s.db.QueryContext(ctx, `
		SELECT question, COUNT(*) AS n
		FROM reading_log
		WHERE at > ?
		GROUP BY question
		ORDER BY n DESC, MIN(id) ASC
		LIMIT 5`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query top questions: %w", err)
	}
	defer qrows.Close()
	for qrows.Next() {
		var qc types.QuestionCount
		if err := qrows.Scan(&qc.Question, &qc.Count); err != nil {
			return nil, fmt.Errorf("scan top question: %w", err)
		}
		stats.TopQuestions = append(stats.TopQuestions, qc)
	}
	if err := qrows.Err(); err != nil {
		return nil, fmt.Errorf("iterate top questions: %w", err)
	}

	return stats, nil
}

// PurgeOlderThan deletes cooldown records and log entries older than age.
// Returns how many rows were removed from each table.
func (s *SQLiteStore) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, int64, error) {
	cutoff := time.Now().Add(-age).Unix()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM user_cooldowns WHERE last_request < ?`, cutoff)
	if err != nil {
		return 0, 0, fmt.Errorf("purge cooldowns: %w", err)
	}
	cooldowns, err := res.RowsAffected()
	if err != nil {
		return 0, 0, fmt.Errorf("purged cooldown count: %w", err)
	}

	res, err = s.db.ExecContext(ctx,
		`DELETE FROM reading_log WHERE at < ?`, cutoff)
	if err != nil {
		return cooldowns, 0, fmt.Errorf("purge log entries: %w", err)
	}
	entries, err := res.RowsAffected()
	if err != nil {
		return cooldowns, 0, fmt.Errorf("purged log count: %w", err)
	}

	return cooldowns, entries, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
