package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/cloudsqlconn"
	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/nl2sql-gateway/internal/config"
	"github.com/GoogleCloudPlatform/nl2sql-gateway/internal/database"
)

// ER_QUERY_TIMEOUT: execution stopped by max_execution_time.
const errQueryTimeout = 3024

type mysqlHandler struct{}

var _ database.DialectHandler = (*mysqlHandler)(nil)

func (h mysqlHandler) CreateCloudSQLPool(cfg config.DatabaseConfig) (*sql.DB, error) {
	instanceConnectionName := cfg.CloudSQLInstanceConnectionName
	if cfg.User == "" || cfg.Password == "" || cfg.DBName == "" || instanceConnectionName == "" {
		return nil, fmt.Errorf("missing required CloudSQL connection parameter (user, pass, db, instance)")
	}

	d, err := cloudsqlconn.NewDialer(context.Background())
	if err != nil {
		return nil, fmt.Errorf("cloudsqlconn.NewDialer: %w", err)
	}

	var opts []cloudsqlconn.DialOption
	if cfg.UsePrivateIP {
		opts = append(opts, cloudsqlconn.WithPrivateIP())
	}

	network := fmt.Sprintf("cloudsql-%s", instanceConnectionName)

	mysql.RegisterDialContext(network,
		func(ctx context.Context, addr string) (net.Conn, error) {
			conn, dialErr := d.Dial(ctx, instanceConnectionName, opts...)
			if dialErr != nil {
				zap.L().Error("cloud sql dial failed", zap.String("instance", instanceConnectionName), zap.Error(dialErr))
			}
			return conn, dialErr
		})

	mysqlCfg := baseConfig(cfg)
	mysqlCfg.Net = network
	mysqlCfg.Addr = instanceConnectionName

	dbPool, err := sql.Open("mysql", mysqlCfg.FormatDSN())
	if err != nil {
		mysql.DeregisterDialContext(network)
		d.Close()
		return nil, fmt.Errorf("sql.Open failed for CloudSQL MySQL: %w", err)
	}
	return dbPool, nil
}

func (h mysqlHandler) CreateStandardPool(cfg config.DatabaseConfig) (*sql.DB, error) {
	mysqlCfg := baseConfig(cfg)
	mysqlCfg.Net = "tcp"
	mysqlCfg.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	dbPool, err := sql.Open("mysql", mysqlCfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("sql.Open (standard mysql): %w", err)
	}
	return dbPool, nil
}

// baseConfig enables ANSI_QUOTES so double-quoted identifiers in generated
// SQL resolve to columns rather than string literals.
func baseConfig(cfg config.DatabaseConfig) *mysql.Config {
	c := mysql.NewConfig()
	c.User = cfg.User
	c.Passwd = cfg.Password
	c.DBName = cfg.DBName
	c.AllowNativePasswords = true
	c.ParseTime = true
	c.Params = map[string]string{"sql_mode": "'ANSI_QUOTES,ONLY_FULL_GROUP_BY'"}
	return c
}

func (h mysqlHandler) QuoteIdentifier(name string) string {
	name = strings.ReplaceAll(name, "`", "``")
	return fmt.Sprintf("`%s`", name)
}

// StatementTimeoutSQL bounds SELECT execution for the session that runs the
// statement. Every Query sets it again, so pooled sessions never carry a stale value.
func (h mysqlHandler) StatementTimeoutSQL(timeout time.Duration) string {
	return fmt.Sprintf("SET SESSION max_execution_time = %d", timeout.Milliseconds())
}

func (h mysqlHandler) IsTimeout(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == errQueryTimeout
}

func (h mysqlHandler) ErrorCode(err error) string {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return strconv.Itoa(int(myErr.Number))
	}
	return ""
}

func (h mysqlHandler) VersionQuery() string {
	return "SELECT VERSION()"
}

func (h mysqlHandler) ListColumns(ctx context.Context, db *database.DB, tableName string) ([]database.ColumnInfo, error) {
	query := `
		  SELECT COLUMN_NAME, COLUMN_TYPE
		  FROM information_schema.COLUMNS
		  WHERE TABLE_SCHEMA = DATABASE()
			AND TABLE_NAME = ?
		  ORDER BY ORDINAL_POSITION;`

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

func (h mysqlHandler) GetColumnMetadata(ctx context.Context, db *database.DB, tableName string, columnName string) (*database.ColumnMetadata, error) {
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

	exampleQuery := fmt.Sprintf("SELECT DISTINCT CAST(%s AS CHAR) FROM %s WHERE %s IS NOT NULL LIMIT 3",
		quotedColumn, quotedTable, quotedColumn)
	rows, err := db.Pool.QueryContext(ctx, exampleQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to get example values for %s.%s: %w", tableName, columnName, err)
	}
	defer rows.Close()

	for rows.Next() {
		var value sql.NullString
		if err := rows.Scan(&value); err != nil {
			return nil, fmt.Errorf("error scanning example value for %s.%s: %w", tableName, columnName, err)
		}
		if value.Valid {
			meta.ExampleValues = append(meta.ExampleValues, value.String)
		}
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("error iterating example values for %s.%s: %w", tableName, columnName, rows.Err())
	}

	return meta, nil
}

func init() {
	database.RegisterDialectHandler("mysql", mysqlHandler{})
	database.RegisterDialectHandler("cloudsqlmysql", mysqlHandler{})
}
