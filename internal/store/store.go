// Package store is the relational metadata store: groups, documents,
// summaries and mind-maps, persisted with gorm on Postgres or SQLite.
//
// Store methods run on the shared connection pool. A pipeline job opens a
// Session instead, which pins one dedicated connection for the job and
// releases it on Close.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/fyrsmithlabs/docmind/internal/config"
	"github.com/fyrsmithlabs/docmind/internal/logging"
)

var (
	// ErrGroupNotFound is returned when a referenced group does not exist.
	ErrGroupNotFound = errors.New("group not found")

	// ErrGroupExists is returned when creating a group whose name is taken.
	ErrGroupExists = errors.New("group already exists")

	// ErrMindMapNotFound is returned when a group has no mind-map yet, or an
	// update matched no row.
	ErrMindMapNotFound = errors.New("mindmap not found")

	// ErrMindMapExists is returned when creating a mind-map for a group that
	// already has one.
	ErrMindMapExists = errors.New("mindmap already exists")
)

// Store owns the gorm connection pool.
type Store struct {
	Queries
	db     *gorm.DB
	logger *logging.Logger
}

// Open connects to the configured database and migrates the schema.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN.Value())
	case "sqlite", "":
		dialector = sqlite.Open(sqliteDSN(cfg.DSN.Value()))
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         newGormLogger(logger, cfg.LogLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	s := New(db, logger)
	if err := s.Migrate(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an already opened gorm handle. The schema is not migrated.
func New(db *gorm.DB, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Store{Queries: Queries{db: db}, db: db, logger: logger}
}

// sqliteDSN enables foreign keys (needed for cascading deletes) and a busy
// timeout on every pooled connection unless the DSN sets its own pragmas.
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// Migrate creates or updates the tables.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&Group{}, &Document{}, &Summary{}, &MindMap{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Session pins one connection from the pool for the duration of a job.
type Session struct {
	Queries
	conn *sql.Conn
}

// Session acquires a dedicated connection. The caller must Close it.
func (s *Store) Session(ctx context.Context) (*Session, error) {
	sqlDB, err := s.db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}

	db := s.db.Session(&gorm.Session{NewDB: true, Context: ctx})
	db.Statement.ConnPool = conn
	return &Session{Queries: Queries{db: db}, conn: conn}, nil
}

// Close returns the connection to the pool. Safe to call more than once.
func (s *Session) Close() error {
	err := s.conn.Close()
	if errors.Is(err, sql.ErrConnDone) {
		return nil
	}
	return err
}
