// Package catalog serves the SQLite mirror of the extracted product table.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	_ "modernc.org/sqlite"
)

const table = "products"

var requiredColumns = []string{"seq", "product_id", "title", "description", "image_path"}

var ErrNotFound = errors.New("product not found")

type Product struct {
	ProductID   string `json:"product_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ImagePath   string `json:"image_path"`
}

type SearchResult struct {
	Query      string    `json:"query"`
	Page       int       `json:"page"`
	PerPage    int       `json:"per_page"`
	Offset     int       `json:"offset"`
	Total      int       `json:"total"`
	TotalPages int       `json:"total_pages"`
	Items      []Product `json:"items"`
}

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("sqlite path error: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	cols, err := tableColumns(db, table)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("load columns: %w", err)
	}
	for _, c := range requiredColumns {
		if !contains(cols, c) {
			_ = db.Close()
			return nil, fmt.Errorf("column %q not found in table %q", c, table)
		}
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Get returns the first row written for id.
func (s *Store) Get(ctx context.Context, id string) (Product, error) {
	var p Product
	err := s.db.QueryRowContext(ctx,
		`SELECT product_id, title, description, image_path FROM products WHERE product_id = ? ORDER BY seq LIMIT 1`, id,
	).Scan(&p.ProductID, &p.Title, &p.Description, &p.ImagePath)
	if errors.Is(err, sql.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	return p, err
}

// Count is the number of distinct non-empty product ids.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT product_id) FROM products WHERE TRIM(product_id) != ''`,
	).Scan(&n)
	return n, err
}

func (s *Store) IDs(ctx context.Context, limit, offset int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT product_id FROM products
		 WHERE TRIM(product_id) != ''
		 ORDER BY product_id
		 LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]string, 0, limit)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Search matches query as a substring of title, description or product id.
// Title prefix matches rank first.
func (s *Store) Search(ctx context.Context, query string, page, perPage int) (SearchResult, error) {
	offset, ok := pageOffset(page, perPage)
	if !ok {
		return SearchResult{}, fmt.Errorf("page %d out of range", page)
	}
	escaped := escapeLikePattern(query)
	pattern := "%" + escaped + "%"
	where := `title LIKE ? ESCAPE '\' OR description LIKE ? ESCAPE '\' OR product_id LIKE ? ESCAPE '\'`
	args := []any{pattern, pattern, pattern}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products WHERE (`+where+`)`, args...).Scan(&total); err != nil {
		return SearchResult{}, err
	}

	q := `SELECT product_id, title, description, image_path FROM products
		 WHERE (` + where + `)
		 ORDER BY CASE WHEN title LIKE ? ESCAPE '\' THEN 0 ELSE 1 END, title ASC, seq ASC
		 LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, q, append(args, escaped+"%", perPage, offset)...)
	if err != nil {
		return SearchResult{}, err
	}
	defer rows.Close()

	items := []Product{}
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ProductID, &p.Title, &p.Description, &p.ImagePath); err != nil {
			return SearchResult{}, err
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return SearchResult{}, err
	}

	totalPages := 0
	if total > 0 {
		totalPages = (total + perPage - 1) / perPage
	}
	return SearchResult{
		Query:      query,
		Page:       page,
		PerPage:    perPage,
		Offset:     offset,
		Total:      total,
		TotalPages: totalPages,
		Items:      items,
	}, nil
}

func tableColumns(db *sql.DB, table string) ([]string, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dflt sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("no columns found for table %q", table)
	}
	return cols, nil
}

func escapeLikePattern(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(s)
}

func pageOffset(page, perPage int) (int, bool) {
	if page < 1 || perPage < 1 {
		return 0, false
	}
	p := int64(page - 1)
	sz := int64(perPage)
	if p > maxIntValue()/sz {
		return 0, false
	}
	return int(p * sz), true
}

func maxIntValue() int64 {
	return int64(^uint(0) >> 1)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
