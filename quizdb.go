package personaquiz

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// DB is a SQLite-backed session store. Besides the session snapshot it keeps
// a history of finished results.
type DB struct {
	db     *sql.DB
	logger *zap.Logger
}

// ResultRecord is one finished quiz in the history table
type ResultRecord struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Type      string         `json:"type"`
	Scores    map[string]int `json:"scores"`
	CreatedAt time.Time      `json:"created_at"`
}

// ResultRecorder is implemented by stores that keep a result history
type ResultRecorder interface {
	RecordResult(ctx context.Context, rec ResultRecord) error
}

// OpenDB opens the database at dbPath and creates missing tables
func OpenDB(dbPath string, logger *zap.Logger) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	d := &DB{db: db, logger: orNop(logger)}
	if err := d.CreateTables(); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

// CloseDB closes the database connection
func (db *DB) CloseDB() error {
	return db.db.Close()
}

// CreateTables creates the necessary tables if they don't exist
func (db *DB) CreateTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			key TEXT PRIMARY KEY,
			data TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS results (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			scores TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
	}

	for _, query := range queries {
		if _, err := db.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute %s: %w", query, err)
		}
	}
	return nil
}

// Load reads the snapshot stored under the fixed key
func (db *DB) Load(ctx context.Context) (*SessionState, error) {
	var data string
	err := db.db.QueryRowContext(ctx, "SELECT data FROM sessions WHERE key = ?", StorageKey).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return DecodeState([]byte(data), db.logger), nil
}

// Save overwrites the snapshot stored under the fixed key
func (db *DB) Save(ctx context.Context, state *SessionState) error {
	data, err := EncodeState(state)
	if err != nil {
		return err
	}
	_, err = db.db.ExecContext(ctx,
		`INSERT INTO sessions (key, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		StorageKey, string(data), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Clear deletes the snapshot. The result history is kept.
func (db *DB) Clear(ctx context.Context) error {
	if _, err := db.db.ExecContext(ctx, "DELETE FROM sessions WHERE key = ?", StorageKey); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// RecordResult appends a finished quiz to the history
func (db *DB) RecordResult(ctx context.Context, rec ResultRecord) error {
	scores, err := json.Marshal(rec.Scores)
	if err != nil {
		return fmt.Errorf("failed to marshal scores: %w", err)
	}
	_, err = db.db.ExecContext(ctx,
		"INSERT INTO results (id, name, type, scores, created_at) VALUES (?, ?, ?, ?, ?)",
		rec.ID, rec.Name, rec.Type, string(scores), rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record result: %w", err)
	}
	return nil
}

// Results retrieves finished quizzes, newest first, optionally limited by count
func (db *DB) Results(ctx context.Context, limit int) ([]ResultRecord, error) {
	query := "SELECT id, name, type, scores, created_at FROM results ORDER BY created_at DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := db.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get results: %w", err)
	}
	defer rows.Close()

	var results []ResultRecord
	for rows.Next() {
		var rec ResultRecord
		var scores string
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Type, &scores, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		if err := json.Unmarshal([]byte(scores), &rec.Scores); err != nil {
			return nil, fmt.Errorf("failed to unmarshal scores of %s: %w", rec.ID, err)
		}
		results = append(results, rec)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating results: %w", err)
	}

	return results, nil
}
