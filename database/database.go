package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// Server is a known Plex Media Server instance.
type Server struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	URL       string    `db:"url" json:"url"`
	Token     string    `db:"token" json:"-"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Directory lists the known servers.
type Directory interface {
	ListServers(ctx context.Context) ([]Server, error)
}

// Manager defines the interface for database operations.
type Manager interface {
	Directory
	Initialize() error
	UpsertServer(ctx context.Context, server *Server) error
	GetServer(ctx context.Context, id string) (*Server, error)
	RemoveServer(ctx context.Context, id string) (bool, error)
	Close() error
}

// SqliteDatabase is the SQLite implementation of the Manager interface.
type SqliteDatabase struct {
	db *sqlx.DB
}

// NewSqliteDatabase creates a new SQLite database connection.
func NewSqliteDatabase(dbPath string) (*SqliteDatabase, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sqlx.Connect("sqlite3", dbPath+"?_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	// the server table is tiny; one connection avoids SQLITE_BUSY between writers
	db.SetMaxOpenConns(1)

	return &SqliteDatabase{db: db}, nil
}

// Close closes the database connection.
func (s *SqliteDatabase) Close() error {
	return s.db.Close()
}

// Initialize creates the database schema.
func (s *SqliteDatabase) Initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS plex_servers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL,
		token TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// UpsertServer inserts a server or updates the existing row with the same id.
func (s *SqliteDatabase) UpsertServer(ctx context.Context, server *Server) error {
	if strings.TrimSpace(server.ID) == "" || strings.TrimSpace(server.URL) == "" {
		return fmt.Errorf("server id and url are required")
	}
	server.URL = strings.TrimRight(server.URL, "/")

	now := time.Now().UTC()
	if server.CreatedAt.IsZero() {
		server.CreatedAt = now
	}
	server.UpdatedAt = now

	query := `INSERT INTO plex_servers (id, name, url, token, created_at, updated_at)
	VALUES (:id, :name, :url, :token, :created_at, :updated_at)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		url = excluded.url,
		token = excluded.token,
		updated_at = excluded.updated_at`
	_, err := s.db.NamedExecContext(ctx, query, server)
	return err
}

// GetServer retrieves a server by id. It returns nil, nil when absent.
func (s *SqliteDatabase) GetServer(ctx context.Context, id string) (*Server, error) {
	var server Server
	err := s.db.GetContext(ctx, &server, "SELECT * FROM plex_servers WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &server, nil
}

// ListServers returns all known servers ordered by id.
func (s *SqliteDatabase) ListServers(ctx context.Context) ([]Server, error) {
	var servers []Server
	err := s.db.SelectContext(ctx, &servers, "SELECT * FROM plex_servers ORDER BY id")
	return servers, err
}

// RemoveServer deletes a server by id.
func (s *SqliteDatabase) RemoveServer(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM plex_servers WHERE id = ?", id)
	if err != nil {
		return false, err
	}
	rowsAffected, err := res.RowsAffected()
	return rowsAffected > 0, err
}
