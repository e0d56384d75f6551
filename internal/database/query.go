package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/GoogleCloudPlatform/nl2sql-gateway/internal/result"
)

// Query runs one already validated statement inside a read-only transaction
// bounded by the session statement timeout. At most Options.MaxRows rows are
// read; the transaction is always rolled back.
func (db *DB) Query(ctx context.Context, query string) (*result.RowSet, error) {
	if db.Pool == nil {
		return nil, fmt.Errorf("database connection pool is not initialized")
	}
	if db.Handler == nil {
		return nil, fmt.Errorf("dialect handler not initialized")
	}
	if strings.TrimSpace(query) == "" {
		return nil, &QueryError{Msg: "empty statement"}
	}

	if limit := db.Options.StatementTimeout + db.Options.Grace; limit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, limit)
		defer cancel()
	}

	tx, err := db.Pool.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, db.classify(ctx, "failed to begin read-only transaction", err)
	}
	defer tx.Rollback()

	if db.Options.StatementTimeout > 0 {
		if stmt := db.Handler.StatementTimeoutSQL(db.Options.StatementTimeout); stmt != "" {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return nil, db.classify(ctx, "failed to set statement timeout", err)
			}
		}
	}

	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, db.classify(ctx, "query failed", err)
	}
	defer rows.Close()

	set, err := scanRows(rows, db.Options.MaxRows)
	if err != nil {
		return nil, db.classify(ctx, "failed reading results", err)
	}
	return set, nil
}

func (db *DB) classify(ctx context.Context, msg string, err error) *QueryError {
	qe := &QueryError{
		Code: db.Handler.ErrorCode(err),
		Msg:  msg,
		Err:  err,
	}
	if db.Handler.IsTimeout(err) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(ctx.Err(), context.DeadlineExceeded) {
		qe.Timeout = true
	}
	return qe
}

func scanRows(rows *sql.Rows, maxRows int) (*result.RowSet, error) {
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	columns := make([]string, len(colTypes))
	kinds := make([]columnKind, len(colTypes))
	for i, ct := range colTypes {
		columns[i] = ct.Name()
		kinds[i] = kindOf(ct.DatabaseTypeName())
	}

	set := &result.RowSet{Columns: columns, Rows: []result.Row{}}
	dest := make([]any, len(columns))
	for rows.Next() {
		if maxRows > 0 && len(set.Rows) >= maxRows {
			set.Capped = true
			break
		}
		for i, k := range kinds {
			if k == kindDecimal {
				dest[i] = new(sql.NullString)
			} else {
				dest[i] = new(any)
			}
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		values := make([]any, len(columns))
		for i, k := range kinds {
			v, err := convertValue(dest[i], k)
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", columns[i], err)
			}
			values[i] = v
		}
		set.Rows = append(set.Rows, result.Row{Columns: columns, Values: values})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return set, nil
}

type columnKind int

const (
	kindPlain columnKind = iota
	kindDecimal
	kindBinary
)

func kindOf(typeName string) columnKind {
	switch strings.ToUpper(typeName) {
	case "NUMERIC", "DECIMAL", "UNSIGNED DECIMAL":
		return kindDecimal
	case "BYTEA", "BLOB", "TINYBLOB", "MEDIUMBLOB", "LONGBLOB", "BINARY", "VARBINARY":
		return kindBinary
	default:
		return kindPlain
	}
}

func convertValue(scanned any, kind columnKind) (any, error) {
	switch v := scanned.(type) {
	case *sql.NullString:
		if !v.Valid {
			return nil, nil
		}
		n, err := result.ParseDecimal(v.String)
		if err != nil {
			return nil, err
		}
		return n, nil
	case *any:
		if b, ok := (*v).([]byte); ok && kind != kindBinary {
			return string(b), nil
		}
		return *v, nil
	default:
		return scanned, nil
	}
}
