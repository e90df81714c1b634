package dbbroker

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oriys/raikiri/internal/errkind"
)

// pgConn adapts a pgx pool to Connection. pgx is the teacher's own
// postgres driver (internal/dbaccess, internal/store both build on it).
type pgConn struct {
	pool *pgxpool.Pool
}

// DialPostgres is the Dialer for domain.ConnectionPostgreSQL.
func DialPostgres(ctx context.Context, dsn string) (Connection, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errkind.Wrap(errkind.Storage, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errkind.Wrap(errkind.Storage, err)
	}
	return &pgConn{pool: pool}, nil
}

func (c *pgConn) ExecuteCommand(ctx context.Context, command string, params []any) (int64, error) {
	tag, err := c.pool.Exec(ctx, command, params...)
	if err != nil {
		return 0, errkind.Wrap(errkind.Storage, err)
	}
	return tag.RowsAffected(), nil
}

func (c *pgConn) FetchRows(ctx context.Context, query string, params []any) ([]Row, error) {
	rows, err := c.pool.Query(ctx, query, params...)
	if err != nil {
		return nil, errkind.Wrap(errkind.Storage, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, errkind.Wrap(errkind.Storage, err)
		}
		row := make(Row, len(fields))
		for i, f := range fields {
			row[string(f.Name)] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errkind.Wrap(errkind.Storage, err)
	}
	return out, nil
}

func (c *pgConn) Close() error {
	c.pool.Close()
	return nil
}
