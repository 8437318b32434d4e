package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	otelmetric "go.opentelemetry.io/otel/metric"
)

type Store struct {
	DB *sql.DB
}

// Roles and post statuses persisted by the schema.
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"

	StatusDraft     = "DRAFT"
	StatusPublished = "PUBLISHED"
	StatusScheduled = "SCHEDULED"
	StatusArchived  = "ARCHIVED"
)

var (
	// ErrNotFound is returned when the addressed row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateEmail is returned by CreateUser for an email already registered.
	ErrDuplicateEmail = errors.New("email already registered")
)

// ValidStatus reports whether s is a known post status.
func ValidStatus(s string) bool {
	switch s {
	case StatusDraft, StatusPublished, StatusScheduled, StatusArchived:
		return true
	}
	return false
}

var (
	metricsOnce      sync.Once
	publishedCounter otelmetric.Int64Counter
	postsCounter     otelmetric.Int64Counter
	metricsInitErr   error
)

func initStoreMetrics() {
	meter := otel.Meter("store")
	var err error
	publishedCounter, err = meter.Int64Counter("posts_published_total")
	if err != nil {
		metricsInitErr = err
		return
	}
	postsCounter, err = meter.Int64Counter("posts_created_total")
	if err != nil {
		metricsInitErr = err
	}
}

func recordCount(ctx context.Context, counter *otelmetric.Int64Counter, n int64) {
	metricsOnce.Do(initStoreMetrics)
	if metricsInitErr != nil || *counter == nil || n == 0 {
		return
	}
	(*counter).Add(ctx, n)
}

// New wraps an open pool.
func New(db *sql.DB) *Store {
	return &Store{DB: db}
}

// NewWithDSN constructs the Store using an explicit Postgres DSN
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return New(db), nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
