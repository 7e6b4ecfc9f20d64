// Package artifact stores uploaded and generated files on disk with a
// SQLite index, and hands out the download references the response
// envelope carries.
package artifact

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/mezzofy/mz-ai-assistant-sub001/internal/domain"
)

const defaultMaxSize = 50 * 1024 * 1024

// StoreConfig configures the artifact store.
type StoreConfig struct {
	DBPath       string
	ArtifactDir  string
	MaxSizeBytes int64
	BaseURL      string // public base for download links, e.g. "http://127.0.0.1:8080"
	Logger       *slog.Logger
}

// Store persists artifacts: bytes on disk, metadata in SQLite.
type Store struct {
	db      *sql.DB
	dir     string
	maxSize int64
	baseURL string
	logger  *slog.Logger
}

// Record is the stored metadata for one artifact.
type Record struct {
	ID        string
	SessionID string
	Name      string
	Type      string
	Size      int64
	Path      string
	CreatedAt time.Time
}

func NewStore(cfg StoreConfig) (*Store, error) {
	if err := os.MkdirAll(cfg.ArtifactDir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DBPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	maxSize := cfg.MaxSizeBytes
	if maxSize <= 0 {
		maxSize = defaultMaxSize
	}

	s := &Store{
		db:      db,
		dir:     cfg.ArtifactDir,
		maxSize: maxSize,
		baseURL: cfg.BaseURL,
		logger:  cfg.Logger,
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS artifacts (
		id         TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		name       TEXT NOT NULL,
		type       TEXT NOT NULL,
		size       INTEGER NOT NULL,
		path       TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_artifacts_session ON artifacts(session_id, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Save writes the artifact bytes to disk and records it. artifactType is a
// coarse classification ("image", "audio", "video", "file").
func (s *Store) Save(ctx context.Context, sessionID, name, artifactType string, r io.Reader) (*Record, error) {
	id := uuid.NewString()
	path := filepath.Join(s.dir, id+filepath.Ext(name))

	out, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create artifact file: %w", err)
	}
	written, err := io.Copy(out, io.LimitReader(r, s.maxSize+1))
	out.Close()
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("write artifact: %w", err)
	}
	if written > s.maxSize {
		os.Remove(path)
		return nil, fmt.Errorf("artifact too large: %d bytes (max: %d)", written, s.maxSize)
	}

	rec := &Record{
		ID:        id,
		SessionID: sessionID,
		Name:      name,
		Type:      artifactType,
		Size:      written,
		Path:      path,
		CreatedAt: time.Now(),
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO artifacts (id, session_id, name, type, size, path) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SessionID, rec.Name, rec.Type, rec.Size, rec.Path,
	)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("record artifact: %w", err)
	}

	s.logger.Info("artifact stored", "id", id, "name", name, "type", artifactType, "size", written)
	return rec, nil
}

// Get looks up one artifact by ID.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, name, type, size, path, created_at FROM artifacts WHERE id = ?`, id)
	var rec Record
	if err := row.Scan(&rec.ID, &rec.SessionID, &rec.Name, &rec.Type, &rec.Size, &rec.Path, &rec.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("artifact %s not found", id)
		}
		return nil, err
	}
	return &rec, nil
}

// List returns the artifacts of one session, newest first.
func (s *Store) List(ctx context.Context, sessionID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, name, type, size, path, created_at
		 FROM artifacts WHERE session_id = ? ORDER BY created_at DESC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Name, &rec.Type, &rec.Size, &rec.Path, &rec.CreatedAt); err != nil {
			continue
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Ref projects a record to the wire shape referenced in response envelopes.
func (s *Store) Ref(rec *Record) domain.Artifact {
	return domain.Artifact{
		ID:          rec.ID,
		Type:        rec.Type,
		Name:        rec.Name,
		DownloadURL: s.baseURL + "/api/v1/artifacts/" + rec.ID,
	}
}

func (s *Store) Close() error { return s.db.Close() }
