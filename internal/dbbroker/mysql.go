package dbbroker

import (
	"context"
	"database/sql"

	_ "github.com/go-sql-driver/mysql"
	"github.com/oriys/raikiri/internal/errkind"
)

// mysqlConn adapts database/sql (driven by go-sql-driver/mysql, the
// de facto standard pure-Go MySQL driver; no repo in the example pack
// touches MySQL, so this is an out-of-pack ecosystem dependency) to
// Connection.
type mysqlConn struct {
	db *sql.DB
}

// DialMySQL is the Dialer for domain.ConnectionMySQL.
func DialMySQL(ctx context.Context, dsn string) (Connection, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, errkind.Wrap(errkind.Storage, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errkind.Wrap(errkind.Storage, err)
	}
	return &mysqlConn{db: db}, nil
}

func (c *mysqlConn) ExecuteCommand(ctx context.Context, command string, params []any) (int64, error) {
	res, err := c.db.ExecContext(ctx, command, params...)
	if err != nil {
		return 0, errkind.Wrap(errkind.Storage, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errkind.Wrap(errkind.Storage, err)
	}
	return n, nil
}

func (c *mysqlConn) FetchRows(ctx context.Context, query string, params []any) ([]Row, error) {
	rows, err := c.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, errkind.Wrap(errkind.Storage, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, errkind.Wrap(errkind.Storage, err)
	}

	var out []Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errkind.Wrap(errkind.Storage, err)
		}
		row := make(Row, len(cols))
		for i, col := range cols {
			row[col] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errkind.Wrap(errkind.Storage, err)
	}
	return out, nil
}

func (c *mysqlConn) Close() error {
	return c.db.Close()
}
