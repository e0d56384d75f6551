package database

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/nl2sql-gateway/internal/config"
	"github.com/GoogleCloudPlatform/nl2sql-gateway/internal/result"
	"github.com/GoogleCloudPlatform/nl2sql-gateway/internal/sqlguard"
)

// DBAdapter defines the database operations needed by the gateway and the catalog.
type DBAdapter interface {
	Query(ctx context.Context, query string) (*result.RowSet, error)
	ListColumns(ctx context.Context, tableName string) ([]ColumnInfo, error)
	GetColumnMetadata(ctx context.Context, tableName string, columnName string) (*ColumnMetadata, error)
	TestConnection(ctx context.Context) (string, error)
	Ping(ctx context.Context) error
	Close() error
	GetConfig() config.DatabaseConfig
}

var _ DBAdapter = (*DB)(nil)

// DB holds the database connection pool and dialect handler.
type DB struct {
	Pool    *sql.DB
	Handler DialectHandler
	Config  config.DatabaseConfig
	Options ExecOptions
}

// ExecOptions bounds every statement run through Query.
type ExecOptions struct {
	StatementTimeout time.Duration // enforced by the server session
	Grace            time.Duration // extra client-side allowance on top of StatementTimeout
	MaxRows          int           // rows read back before the result is marked capped
}

// OptionsFromPolicy derives execution bounds from the guardrail policy.
func OptionsFromPolicy(p sqlguard.Policy) ExecOptions {
	return ExecOptions{
		StatementTimeout: p.QueryTimeout,
		Grace:            2 * time.Second,
		MaxRows:          p.MaxRowsReturn,
	}
}

// ColumnInfo holds basic information about a database column.
type ColumnInfo struct {
	Name     string
	DataType string
}

// ColumnMetadata holds profile statistics for one column.
type ColumnMetadata struct {
	DistinctCount int64 // -1 when it could not be computed
	NullCount     int64
	ExampleValues []string
}

// DialectHandler hides the SQL and driver differences between supported stores.
type DialectHandler interface {
	CreateCloudSQLPool(cfg config.DatabaseConfig) (*sql.DB, error)
	CreateStandardPool(cfg config.DatabaseConfig) (*sql.DB, error)
	QuoteIdentifier(name string) string
	// StatementTimeoutSQL returns the statement that bounds execution time for
	// the current transaction or session, or "" when unsupported.
	StatementTimeoutSQL(timeout time.Duration) string
	IsTimeout(err error) bool
	ErrorCode(err error) string
	VersionQuery() string
	ListColumns(ctx context.Context, db *DB, tableName string) ([]ColumnInfo, error)
	GetColumnMetadata(ctx context.Context, db *DB, tableName string, columnName string) (*ColumnMetadata, error)
}

var (
	dialectHandlers = make(map[string]DialectHandler)
	mu              sync.RWMutex
)

func RegisterDialectHandler(dialect string, handler DialectHandler) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := dialectHandlers[dialect]; exists {
		zap.L().Warn("dialect handler is being overwritten", zap.String("dialect", dialect))
	}
	dialectHandlers[dialect] = handler
}

func GetDialectHandler(dialect string) (DialectHandler, error) {
	mu.RLock()
	defer mu.RUnlock()
	handler, ok := dialectHandlers[dialect]
	if !ok {
		return nil, fmt.Errorf("unsupported database dialect: %s", dialect)
	}
	return handler, nil
}

// SupportedDialects lists the registered dialect names in sorted order.
func SupportedDialects() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(dialectHandlers))
	for name := range dialectHandlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New opens and verifies a connection pool for cfg.Dialect.
func New(ctx context.Context, cfg config.DatabaseConfig, opts ExecOptions) (*DB, error) {
	handler, err := GetDialectHandler(cfg.Dialect)
	if err != nil {
		return nil, err
	}

	var pool *sql.DB
	if strings.HasPrefix(cfg.Dialect, "cloudsql") {
		pool, err = handler.CreateCloudSQLPool(cfg)
	} else {
		pool, err = handler.CreateStandardPool(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool for dialect %s: %w", cfg.Dialect, err)
	}
	configurePool(pool, cfg)

	if err := pool.PingContext(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database (ping failed) for dialect %s: %w", cfg.Dialect, maskedError(err))
	}

	return &DB{
		Pool:    pool,
		Handler: handler,
		Config:  cfg,
		Options: opts,
	}, nil
}

func configurePool(pool *sql.DB, cfg config.DatabaseConfig) {
	if cfg.PoolSize > 0 {
		pool.SetMaxIdleConns(cfg.PoolSize)
		pool.SetMaxOpenConns(cfg.PoolSize + cfg.MaxOverflow)
	}
	pool.SetConnMaxIdleTime(5 * time.Minute)
}

func (db *DB) GetConfig() config.DatabaseConfig {
	return db.Config
}

func (db *DB) Ping(ctx context.Context) error {
	if db.Pool == nil {
		return fmt.Errorf("database connection pool is not initialized")
	}
	return db.Pool.PingContext(ctx)
}

func (db *DB) Close() error {
	if db.Pool != nil {
		return db.Pool.Close()
	}
	zap.L().Warn("attempted to close a nil database connection pool")
	return nil
}

// TestConnection pings the store and returns its version string.
func (db *DB) TestConnection(ctx context.Context) (string, error) {
	if err := db.Ping(ctx); err != nil {
		return "", fmt.Errorf("ping failed: %w", maskedError(err))
	}
	if db.Handler == nil {
		return "", fmt.Errorf("dialect handler not initialized")
	}
	var version string
	if err := db.Pool.QueryRowContext(ctx, db.Handler.VersionQuery()).Scan(&version); err != nil {
		return "", fmt.Errorf("failed to read server version: %w", maskedError(err))
	}
	return version, nil
}

func (db *DB) ListColumns(ctx context.Context, tableName string) ([]ColumnInfo, error) {
	if db.Handler == nil {
		return nil, fmt.Errorf("dialect handler not initialized")
	}
	return db.Handler.ListColumns(ctx, db, tableName)
}

func (db *DB) GetColumnMetadata(ctx context.Context, tableName string, columnName string) (*ColumnMetadata, error) {
	if db.Handler == nil {
		return nil, fmt.Errorf("dialect handler not initialized")
	}
	return db.Handler.GetColumnMetadata(ctx, db, tableName, columnName)
}
