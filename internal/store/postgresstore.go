package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	log "github.com/sirupsen/logrus"
)

const defaultSessionTable = "session_store"

// PostgresStoreConfig captures configuration required to initialize a Postgres-backed store.
type PostgresStoreConfig struct {
	DSN      string
	Schema   string
	Table    string
	SpoolDir string
	Profile  string
}

// PostgresStore persists the session in PostgreSQL while mirroring it to a local file.
type PostgresStore struct {
	db        *sql.DB
	cfg       PostgresStoreConfig
	localPath string
	now       func() time.Time
	mu        sync.Mutex
}

// NewPostgresStore connects to PostgreSQL and prepares the local mirror directory.
func NewPostgresStore(ctx context.Context, cfg PostgresStoreConfig) (*PostgresStore, error) {
	cfg.DSN = strings.TrimSpace(cfg.DSN)
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres store: DSN is required")
	}
	if strings.TrimSpace(cfg.Table) == "" {
		cfg.Table = defaultSessionTable
	}
	cfg.Profile = normalizeProfile(cfg.Profile)

	spool, err := resolveSpoolDir(cfg.SpoolDir, "pgstore")
	if err != nil {
		return nil, fmt.Errorf("postgres store: %w", err)
	}

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres store: open database connection: %w", err)
	}
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres store: ping database: %w", err)
	}

	return &PostgresStore{
		db:        db,
		cfg:       cfg,
		localPath: filepath.Join(spool, SessionFileName),
		now:       time.Now,
	}, nil
}

// Close releases the underlying database connection.
func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the local mirror of the stored session.
func (s *PostgresStore) Path() string {
	if s == nil {
		return ""
	}
	return s.localPath
}

// EnsureSchema creates the session table (and schema when provided).
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("postgres store: not initialized")
	}
	if schema := strings.TrimSpace(s.cfg.Schema); schema != "" {
		query := fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", quoteIdentifier(schema))
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("postgres store: create schema: %w", err)
		}
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			content JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`, s.fullTableName())); err != nil {
		return fmt.Errorf("postgres store: create session table: %w", err)
	}
	return nil
}

// Bootstrap creates the schema and syncs the stored session into the local mirror.
func (s *PostgresStore) Bootstrap(ctx context.Context) error {
	if err := s.EnsureSchema(ctx); err != nil {
		return err
	}
	_, err := s.Load(ctx)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

// Load reads the session row and refreshes the local mirror from it.
func (s *PostgresStore) Load(ctx context.Context) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := fmt.Sprintf("SELECT content FROM %s WHERE id = $1", s.fullTableName())
	var content string
	err := s.db.QueryRowContext(ctx, query, s.cfg.Profile).Scan(&content)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if errRemove := removeFile(s.localPath); errRemove != nil {
			log.WithError(errRemove).Warn("postgres store: failed to clear local mirror")
		}
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("postgres store: load session: %w", err)
	}

	record, err := unmarshalRecord([]byte(content))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("postgres store: %w", err)
	}
	if _, errWrite := writeFileAtomic(s.localPath, []byte(content)); errWrite != nil {
		log.WithError(errWrite).Warn("postgres store: failed to refresh local mirror")
	}
	return record, nil
}

// Save writes the local mirror and upserts the session row.
func (s *PostgresStore) Save(ctx context.Context, record *Record) (string, error) {
	if record == nil {
		return "", fmt.Errorf("postgres store: record is nil")
	}
	record.Profile = s.cfg.Profile
	if record.SavedAt.IsZero() {
		record.SavedAt = s.now().UTC()
	}
	data, err := marshalRecord(record)
	if err != nil {
		return "", fmt.Errorf("postgres store: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err = writeFileAtomic(s.localPath, data); err != nil {
		return "", fmt.Errorf("postgres store: write local mirror: %w", err)
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (id, content, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (id)
		DO UPDATE SET content = EXCLUDED.content, updated_at = NOW()
	`, s.fullTableName())
	if _, err = s.db.ExecContext(ctx, query, s.cfg.Profile, json.RawMessage(data)); err != nil {
		return "", fmt.Errorf("postgres store: upsert session: %w", err)
	}
	return s.localPath, nil
}

// Delete removes the session row and the local mirror.
func (s *PostgresStore) Delete(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := removeFile(s.localPath); err != nil {
		return fmt.Errorf("postgres store: delete local mirror: %w", err)
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", s.fullTableName())
	if _, err := s.db.ExecContext(ctx, query, s.cfg.Profile); err != nil {
		return fmt.Errorf("postgres store: delete session: %w", err)
	}
	return nil
}

func (s *PostgresStore) fullTableName() string {
	return qualifiedTableName(s.cfg.Schema, s.cfg.Table)
}

func qualifiedTableName(schema, table string) string {
	if strings.TrimSpace(schema) == "" {
		return quoteIdentifier(table)
	}
	return quoteIdentifier(schema) + "." + quoteIdentifier(table)
}

func quoteIdentifier(identifier string) string {
	replaced := strings.ReplaceAll(identifier, "\"", "\"\"")
	return "\"" + replaced + "\""
}

// resolveSpoolDir returns an absolute mirror directory, created with 0700.
func resolveSpoolDir(dir, fallback string) (string, error) {
	root := strings.TrimSpace(dir)
	if root == "" {
		if cwd, err := os.Getwd(); err == nil {
			root = filepath.Join(cwd, fallback)
		} else {
			root = filepath.Join(os.TempDir(), fallback)
		}
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve spool directory: %w", err)
	}
	if err = os.MkdirAll(abs, 0o700); err != nil {
		return "", fmt.Errorf("create spool directory: %w", err)
	}
	return abs, nil
}
