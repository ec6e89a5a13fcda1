package sink

import (
	"context"
	"errors"
	"fmt"

	"aboproducts/internal/listing"

	"github.com/jackc/pgx/v5"
)

// PostgresTable is the default table name for the Postgres mirror.
const PostgresTable = "abo_products"

var postgresColumns = []string{"seq", "product_id", "title", "description", "image_path"}

// Postgres buffers the run's rows and replaces the table contents with them
// on Close, so readers never observe a half-loaded table.
type Postgres struct {
	conn  *pgx.Conn
	table string
	rows  [][]any
}

func OpenPostgres(ctx context.Context, connString, table string) (*Postgres, error) {
	if connString == "" {
		return nil, errors.New("postgres connection string is required")
	}
	if table == "" {
		table = PostgresTable
	}
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	ident := pgx.Identifier{table}.Sanitize()
	_, err = conn.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+ident+` (
		seq BIGINT NOT NULL,
		product_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL,
		image_path TEXT NOT NULL
	)`)
	if err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("create table %s: %w", table, err)
	}
	return &Postgres{conn: conn, table: table}, nil
}

func (p *Postgres) Write(_ context.Context, rec listing.Record) error {
	p.rows = append(p.rows, []any{int64(len(p.rows) + 1), rec.ProductID, rec.Title, rec.Description, rec.ImagePath})
	return nil
}

func (p *Postgres) Close(ctx context.Context) error {
	defer p.conn.Close(ctx)

	tx, err := p.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `TRUNCATE `+pgx.Identifier{p.table}.Sanitize()); err != nil {
		return fmt.Errorf("truncate %s: %w", p.table, err)
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{p.table}, postgresColumns, pgx.CopyFromRows(p.rows)); err != nil {
		return fmt.Errorf("copy into %s: %w", p.table, err)
	}
	return tx.Commit(ctx)
}

// Abort drops the buffered rows without touching the table.
func (p *Postgres) Abort(ctx context.Context) error {
	p.rows = nil
	return p.conn.Close(ctx)
}
