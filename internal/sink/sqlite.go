package sink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"aboproducts/internal/listing"

	_ "modernc.org/sqlite"
)

// SQLiteTable is the table the SQLite mirror writes and the catalog reads.
const SQLiteTable = "products"

// SQLite mirrors the output table into a fresh SQLite database. The database
// is built next to path in one transaction and renamed over path on Close;
// Abort leaves any previous database at path untouched.
type SQLite struct {
	path    string
	tmpPath string
	db      *sql.DB
	tx      *sql.Tx
	stmt    *sql.Stmt
}

func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := removeIfExists(tmpPath); err != nil {
		return nil, fmt.Errorf("remove stale sqlite build: %w", err)
	}
	db, err := sql.Open("sqlite", tmpPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	discard := func() {
		_ = db.Close()
		_ = removeIfExists(tmpPath)
	}

	_, err = db.ExecContext(ctx, `CREATE TABLE "products" (
		"seq" INTEGER PRIMARY KEY,
		"product_id" TEXT NOT NULL,
		"title" TEXT NOT NULL,
		"description" TEXT NOT NULL,
		"image_path" TEXT NOT NULL
	)`)
	if err != nil {
		discard()
		return nil, fmt.Errorf("prepare sqlite schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		discard()
		return nil, err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO "products" ("product_id", "title", "description", "image_path") VALUES (?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		discard()
		return nil, err
	}
	return &SQLite{path: path, tmpPath: tmpPath, db: db, tx: tx, stmt: stmt}, nil
}

func (s *SQLite) Write(ctx context.Context, rec listing.Record) error {
	_, err := s.stmt.ExecContext(ctx, rec.ProductID, rec.Title, rec.Description, rec.ImagePath)
	return err
}

func (s *SQLite) Close(ctx context.Context) error {
	var errs []error
	errs = append(errs, s.stmt.Close())
	if err := s.tx.Commit(); err != nil {
		errs = append(errs, fmt.Errorf("commit: %w", err))
	} else if _, err := s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_products_product_id ON products(product_id)`); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, s.db.Close())
	if err := errors.Join(errs...); err != nil {
		_ = removeIfExists(s.tmpPath)
		return err
	}
	if err := os.Rename(s.tmpPath, s.path); err != nil {
		_ = removeIfExists(s.tmpPath)
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}

// Abort rolls back the run's rows and discards the partial database.
func (s *SQLite) Abort(context.Context) error {
	return errors.Join(
		s.stmt.Close(),
		s.tx.Rollback(),
		s.db.Close(),
		removeIfExists(s.tmpPath),
	)
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
