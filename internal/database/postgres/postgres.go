/*
 * Copyright 2025 Google LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *    https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"cloud.google.com/go/cloudsqlconn"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/nl2sql-gateway/internal/config"
	"github.com/GoogleCloudPlatform/nl2sql-gateway/internal/database"
)

// SQLSTATE raised when statement_timeout (or a cancel request) stops a query.
const codeQueryCanceled = "57014"

// postgresHandler struct implements database.DialectHandler for PostgreSQL.
type postgresHandler struct{}

var _ database.DialectHandler = (*postgresHandler)(nil)

// CreateCloudSQLPool for PostgreSQL
func (h postgresHandler) CreateCloudSQLPool(cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.User == "" || cfg.DBName == "" || cfg.CloudSQLInstanceConnectionName == "" {
		return nil, fmt.Errorf("missing required CloudSQL connection parameter (user, db, instance)")
	}

	dsn := fmt.Sprintf("user=%s password=%s database=%s", cfg.User, cfg.Password, cfg.DBName)
	connConfig, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	var opts []cloudsqlconn.Option
	if cfg.UsePrivateIP {
		opts = append(opts, cloudsqlconn.WithDefaultDialOptions(cloudsqlconn.WithPrivateIP()))
	}
	d, err := cloudsqlconn.NewDialer(context.Background(), opts...)
	if err != nil {
		return nil, err
	}
	instance := cfg.CloudSQLInstanceConnectionName
	connConfig.DialFunc = func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, dialErr := d.Dial(ctx, instance)
		if dialErr != nil {
			zap.L().Error("cloud sql dial failed", zap.String("instance", instance), zap.Error(dialErr))
		}
		return conn, dialErr
	}
	dbURI := stdlib.RegisterConnConfig(connConfig)
	dbPool, err := sql.Open("pgx", dbURI)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("sql.Open: %w", err)
	}

	return dbPool, nil
}

// CreateStandardPool creates a standard PostgreSQL connection pool
func (h postgresHandler) CreateStandardPool(cfg config.DatabaseConfig) (*sql.DB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s application_name=nl2sql-gateway",
		cfg.Host, cfg.Port, cfg.User, quoteConnValue(cfg.Password), cfg.DBName, cfg.SSLMode,
	)

	dbPool, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	return dbPool, nil
}

// quoteConnValue quotes a libpq keyword value when it is empty or contains
// spaces or quotes.
func quoteConnValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// QuoteIdentifier for PostgreSQL
func (h postgresHandler) QuoteIdentifier(name string) string {
	return pq.QuoteIdentifier(name)
}

// StatementTimeoutSQL bounds the current transaction only.
func (h postgresHandler) StatementTimeoutSQL(timeout time.Duration) string {
	return fmt.Sprintf("SET LOCAL statement_timeout = %d", timeout.Milliseconds())
}

// IsTimeout recognizes query_canceled from either driver.
func (h postgresHandler) IsTimeout(err error) bool {
	return h.ErrorCode(err) == codeQueryCanceled
}

// ErrorCode returns the SQLSTATE carried by err, if any.
func (h postgresHandler) ErrorCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func (h postgresHandler) VersionQuery() string {
	return "SELECT version()"
}

// ListColumns for PostgreSQL
func (h postgresHandler) ListColumns(ctx context.Context, db *database.DB, tableName string) ([]database.ColumnInfo, error) {
	query := `
		SELECT column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = current_schema()
		AND table_name = $1
		ORDER BY ordinal_position;`

	rows, err := db.Pool.QueryContext(ctx, query, tableName)
	if err != nil {
		return nil, fmt.Errorf("error querying columns for table %s: %w", tableName, err)
	}
	defer rows.Close()

	var columns []database.ColumnInfo
	for rows.Next() {
		var colInfo database.ColumnInfo
		if err := rows.Scan(&colInfo.Name, &colInfo.DataType); err != nil {
			return nil, fmt.Errorf("error scanning column name and data type: %w", err)
		}
		columns = append(columns, colInfo)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating column rows: %w", err)
	}

	return columns, nil
}

// GetColumnMetadata for PostgreSQL
func (h postgresHandler) GetColumnMetadata(ctx context.Context, db *database.DB, tableName string, columnName string) (*database.ColumnMetadata, error) {
	quotedTable := h.QuoteIdentifier(tableName)
	quotedColumn := h.QuoteIdentifier(columnName)

	meta := &database.ColumnMetadata{}

	distinctQuery := fmt.Sprintf("SELECT COUNT(DISTINCT %s) FROM %s", quotedColumn, quotedTable)
	if err := db.Pool.QueryRowContext(ctx, distinctQuery).Scan(&meta.DistinctCount); err != nil {
		zap.L().Warn("failed to get distinct count, reporting -1",
			zap.String("table", tableName), zap.String("column", columnName), zap.Error(err))
		meta.DistinctCount = -1
	}

	nullQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s IS NULL", quotedTable, quotedColumn)
	if err := db.Pool.QueryRowContext(ctx, nullQuery).Scan(&meta.NullCount); err != nil {
		return nil, fmt.Errorf("failed to get null count for %s.%s: %w", tableName, columnName, err)
	}

	exampleQuery := fmt.Sprintf("SELECT DISTINCT %s::text FROM %s WHERE %s IS NOT NULL LIMIT 3",
		quotedColumn, quotedTable, quotedColumn)
	rows, err := db.Pool.QueryContext(ctx, exampleQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to get example values for %s.%s: %w", tableName, columnName, err)
	}
	defer rows.Close()

	for rows.Next() {
		var value sql.NullString
		if err := rows.Scan(&value); err != nil {
			return nil, fmt.Errorf("error scanning example value: %w", err)
		}
		if value.Valid {
			meta.ExampleValues = append(meta.ExampleValues, value.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating example values for %s.%s: %w", tableName, columnName, err)
	}

	return meta, nil
}

func init() {
	database.RegisterDialectHandler("postgres", postgresHandler{})
	database.RegisterDialectHandler("cloudsqlpostgres", postgresHandler{})
}
