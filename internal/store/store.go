// Package store persists SalesPipe sessions, transcripts, thought logs and
// background jobs.
//
// Three backends share the Store interface: an in-memory store for tests and
// demos, SQLite for single-node deployments and PostgreSQL.
package store

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/BTreeMap/SalesPipe/internal/models"
)

// ErrNotFound is returned by updates that target a missing row.
var ErrNotFound = errors.New("store: record not found")

// Store is the persistence contract used by the conversation flow and the API.
// Getters return nil, nil when the record does not exist.
type Store interface {
	CreateSession(s models.Session) error
	GetSession(id string) (*models.Session, error)
	UpdateSession(s models.Session) error
	// ListSessions returns every session, most recent first.
	ListSessions() ([]models.Session, error)

	AddMessage(m models.Message) error
	// ListMessages returns a session transcript in the order it was written.
	ListMessages(sessionID string) ([]models.Message, error)

	AddThoughtLog(l models.ThoughtLog) error
	ListThoughtLogs(sessionID string) ([]models.ThoughtLog, error)

	JobRepo

	Close() error
}

// Opts holds configuration for database-backed stores.
type Opts struct {
	DSN string
}

// Option configures a store.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType reports "postgres" for PostgreSQL URLs and key/value
// connection strings, and "sqlite" for everything else.
func DetectDSNType(dsn string) string {
	d := strings.TrimSpace(dsn)
	lower := strings.ToLower(d)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return "postgres"
	}
	if strings.Contains(d, "host=") || strings.Contains(d, "dbname=") || strings.Contains(d, "user=") {
		return "postgres"
	}
	return "sqlite"
}

// Open returns a store for dsn. An empty dsn selects the in-memory store.
func Open(dsn string) (Store, error) {
	switch {
	case strings.TrimSpace(dsn) == "":
		slog.Info("store.Open: using in-memory store")
		return NewInMemoryStore(), nil
	case DetectDSNType(dsn) == "postgres":
		slog.Info("store.Open: using PostgreSQL store")
		return NewPostgresStore(WithPostgresDSN(dsn))
	default:
		slog.Info("store.Open: using SQLite store", "path", dsn)
		return NewSQLiteStore(WithSQLiteDSN(dsn))
	}
}
