package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    name TEXT,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    current_render_id TEXT,
    model TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS renders (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    parent_id TEXT,
    operation TEXT NOT NULL,
    prompt TEXT NOT NULL,
    model TEXT NOT NULL,
    mime_type TEXT NOT NULL,
    image_path TEXT NOT NULL,
    byte_size INTEGER NOT NULL DEFAULT 0,
    timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    metadata_json TEXT,
    FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_renders_session_id ON renders(session_id);
CREATE INDEX IF NOT EXISTS idx_renders_operation ON renders(operation);
CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at);
`

const dbName = "journal.db"

var ErrNotFound = errors.New("not found")

type Store struct {
	db *sql.DB
}

// NewStore opens the journal database inside dataDir.
func NewStore(dataDir string) (*Store, error) {
	return NewStoreWithPath(filepath.Join(dataDir, dbName))
}

func NewStoreWithPath(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer; the HTTP server records from several goroutines
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateSession(ctx context.Context, sess *Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, name, created_at, updated_at, current_render_id, model)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID, nullString(sess.Name), sess.CreatedAt, sess.UpdatedAt, nullString(sess.CurrentRenderID), sess.Model)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	sess := &Session{}
	var name, current sql.NullString
	if err := row.Scan(&sess.ID, &name, &sess.CreatedAt, &sess.UpdatedAt, &current, &sess.Model); err != nil {
		return nil, err
	}
	sess.Name = name.String
	sess.CurrentRenderID = current.String
	return sess, nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at, updated_at, current_render_id, model
		 FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return sess, err
}

func (s *Store) UpdateSession(ctx context.Context, sess *Session) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET name = ?, updated_at = ?, current_render_id = ?, model = ?
		 WHERE id = ?`,
		nullString(sess.Name), sess.UpdatedAt, nullString(sess.CurrentRenderID), sess.Model, sess.ID)
	return err
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	return err
}

func (s *Store) ListSessions(ctx context.Context) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, created_at, updated_at, current_render_id, model
		 FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func (s *Store) CreateRender(ctx context.Context, r *Render) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO renders (id, session_id, parent_id, operation, prompt, model, mime_type, image_path, byte_size, timestamp, metadata_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.SessionID, nullString(r.ParentID), r.Operation, r.Prompt, r.Model,
		r.MIMEType, r.ImagePath, r.ByteSize, r.Timestamp, r.Metadata.ToJSON())
	return err
}

const renderColumns = `id, session_id, parent_id, operation, prompt, model, mime_type, image_path, byte_size, timestamp, metadata_json`

func scanRender(row scanner) (*Render, error) {
	r := &Render{}
	var parentID, metadataJSON sql.NullString
	if err := row.Scan(&r.ID, &r.SessionID, &parentID, &r.Operation, &r.Prompt, &r.Model,
		&r.MIMEType, &r.ImagePath, &r.ByteSize, &r.Timestamp, &metadataJSON); err != nil {
		return nil, err
	}
	r.ParentID = parentID.String
	r.Metadata = ParseRenderMetadata(metadataJSON.String)
	return r, nil
}

func (s *Store) GetRender(ctx context.Context, id string) (*Render, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+renderColumns+` FROM renders WHERE id = ?`, id)
	r, err := scanRender(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("render %s: %w", id, ErrNotFound)
	}
	return r, err
}

func (s *Store) ListRenders(ctx context.Context, sessionID string) ([]*Render, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+renderColumns+` FROM renders WHERE session_id = ? ORDER BY timestamp ASC, rowid ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var renders []*Render
	for rows.Next() {
		r, err := scanRender(rows)
		if err != nil {
			return nil, err
		}
		renders = append(renders, r)
	}
	return renders, rows.Err()
}

func (s *Store) CountRenders(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM renders WHERE session_id = ?`, sessionID).Scan(&count)
	return count, err
}

// Stats groups renders by operation. An empty sessionID covers every session.
func (s *Store) Stats(ctx context.Context, sessionID string) ([]OperationStats, error) {
	query := `SELECT operation, COUNT(*), COALESCE(SUM(byte_size), 0) FROM renders`
	var args []any
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` GROUP BY operation ORDER BY operation`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []OperationStats
	for rows.Next() {
		var st OperationStats
		if err := rows.Scan(&st.Operation, &st.Count, &st.TotalBytes); err != nil {
			return nil, err
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func FormatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}
