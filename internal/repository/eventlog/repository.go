package eventlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	// Registers the "sqlite" driver.
	_ "modernc.org/sqlite"

	domain "github.com/oshokin/alarm-monitor/internal/domain/alarm"
)

// memoryPath opens a private in-memory database.
const memoryPath = ":memory:"

// timeLayout stores UTC times at a fixed width so they sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var (
	// ErrInvalidCredentials is returned for an unknown user or a wrong PIN.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidUser is returned for an empty name, an empty PIN or an unknown role.
	ErrInvalidUser = errors.New("username, pin and a known role are required")
)

// Entry is one log row.
type Entry struct {
	ID    int64
	Time  time.Time
	Event string
}

// Repository is the SQLite store. All methods are safe for concurrent use.
type Repository struct {
	db       *sql.DB
	hashCost int
	// mu serialises writers; SQLite allows one at a time anyway.
	mu sync.Mutex
}

// Option configures a Repository.
type Option func(*Repository)

// WithHashCost sets the bcrypt cost used for new PINs.
func WithHashCost(cost int) Option {
	return func(r *Repository) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			r.hashCost = cost
		}
	}
}

// Open opens or creates the database at path and applies the schema.
// ":memory:" opens a private in-memory database.
func Open(ctx context.Context, path string, opts ...Option) (*Repository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Every connection to :memory: would get its own database.
	if path == memoryPath {
		db.SetMaxOpenConns(1)
	}

	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if path != memoryPath {
		if _, err = db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	r := &Repository{
		db:       db,
		hashCost: bcrypt.DefaultCost,
	}

	for _, opt := range opts {
		opt(r)
	}

	if err = r.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return r, nil
}

// createTables creates the required tables and indexes if they don't exist.
func (r *Repository) createTables(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		hashed_pin TEXT NOT NULL,
		role TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		time TEXT NOT NULL,
		event TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_logs_time ON logs(time DESC);
	`

	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}

	return nil
}

// Close closes the database.
func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.db.Close()
}

// Append records event at the given time.
func (r *Repository) Append(ctx context.Context, event string, at time.Time) (Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	at = at.UTC()

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO logs (time, event) VALUES (?, ?)`,
		at.Format(timeLayout), event)
	if err != nil {
		return Entry{}, fmt.Errorf("insert log: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return Entry{}, fmt.Errorf("insert log: %w", err)
	}

	return Entry{ID: id, Time: at, Event: event}, nil
}

// Latest returns at most limit rows, newest first.
func (r *Repository) Latest(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, time, event FROM logs ORDER BY time DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query logs: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	entries := make([]Entry, 0, limit)

	for rows.Next() {
		var (
			entry Entry
			raw   string
		)

		if err = rows.Scan(&entry.ID, &raw, &entry.Event); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}

		if entry.Time, err = time.Parse(timeLayout, raw); err != nil {
			return nil, fmt.Errorf("parse log time %q: %w", raw, err)
		}

		entries = append(entries, entry)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate logs: %w", err)
	}

	return entries, nil
}

// PutUser creates the user or replaces its PIN and role.
func (r *Repository) PutUser(ctx context.Context, username, pin string, role domain.Role) error {
	username = strings.TrimSpace(username)
	if username == "" || pin == "" || !role.Valid() {
		return ErrInvalidUser
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(pin), r.hashCost)
	if err != nil {
		return fmt.Errorf("hash pin: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO users (username, hashed_pin, role) VALUES (?, ?, ?)
		ON CONFLICT(username) DO UPDATE SET hashed_pin = excluded.hashed_pin, role = excluded.role`,
		username, string(hash), string(role))
	if err != nil {
		return fmt.Errorf("store user: %w", err)
	}

	return nil
}

// Authenticate checks the PIN of username and returns the matching actor.
func (r *Repository) Authenticate(ctx context.Context, username, pin string) (*domain.Actor, error) {
	var hash, role string

	err := r.db.QueryRowContext(ctx,
		`SELECT hashed_pin, role FROM users WHERE username = ?`, username).Scan(&hash, &role)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrInvalidCredentials
	case err != nil:
		return nil, fmt.Errorf("query user: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)) != nil {
		return nil, ErrInvalidCredentials
	}

	return &domain.Actor{Username: username, Role: domain.Role(role)}, nil
}

// CountUsers returns the number of stored users.
func (r *Repository) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}

	return n, nil
}
