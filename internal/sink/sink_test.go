package sink

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"aboproducts/internal/listing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testRecords = []listing.Record{
	{ProductID: "B001", Title: "Widget", Description: "", ImagePath: "images/img1.jpg"},
	{ProductID: "B002", Title: "Chair, oak", Description: `18" seat`, ImagePath: "images/img2.jpg"},
	{ProductID: "B001", Title: "Widget again", Description: "dup", ImagePath: "images/img3.jpg"},
}

func TestCSV_WritesHeaderAndRows(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "out", "products.csv")

	c, err := CreateCSV(path)
	require.NoError(t, err)
	for _, rec := range testRecords {
		require.NoError(t, c.Write(ctx, rec))
	}
	require.NoError(t, c.Close(ctx))
	assert.Equal(t, 3, c.Rows())
	assert.Equal(t, path, c.Path())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	want := "product_id,title,description,image_path\r\n" +
		"B001,Widget,,images/img1.jpg\r\n" +
		"B002,\"Chair, oak\",\"18\"\" seat\",images/img2.jpg\r\n" +
		"B001,Widget again,dup,images/img3.jpg\r\n"
	assert.Equal(t, want, string(b))
}

func TestCSV_TruncatesPreviousContent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "products.csv")
	require.NoError(t, os.WriteFile(path, []byte("stale,content\r\nfrom,last run\r\n"), 0o644))

	c, err := CreateCSV(path)
	require.NoError(t, err)
	require.NoError(t, c.Close(ctx))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "product_id,title,description,image_path\r\n", string(b))
}

func TestCSV_UnwritableDestinationFails(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	_, err := CreateCSV(filepath.Join(blocker, "products.csv"))
	assert.Error(t, err)
}

func TestSQLite_MirrorsRowsInOrder(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "products.sqlite")

	s, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	for _, rec := range testRecords {
		require.NoError(t, s.Write(ctx, rec))
	}
	require.NoError(t, s.Close(ctx))

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	rows, err := db.Query(`SELECT product_id, title, description, image_path FROM products ORDER BY seq`)
	require.NoError(t, err)
	defer rows.Close()
	var got []listing.Record
	for rows.Next() {
		var r listing.Record
		require.NoError(t, rows.Scan(&r.ProductID, &r.Title, &r.Description, &r.ImagePath))
		got = append(got, r)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, testRecords, got)
}

func TestSQLite_RecreatedEachRun(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "products.sqlite")

	for run := 0; run < 2; run++ {
		s, err := OpenSQLite(ctx, path)
		require.NoError(t, err)
		require.NoError(t, s.Write(ctx, testRecords[0]))
		require.NoError(t, s.Close(ctx))
	}

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM products`).Scan(&n))
	assert.Equal(t, 1, n)
}

type recordingSink struct {
	records  []listing.Record
	writeErr error
	// failAfter, when positive, fails every write after that many succeeded.
	failAfter int
	closeErr  error
	closed    bool
	aborted   bool
}

func (r *recordingSink) Write(_ context.Context, rec listing.Record) error {
	if r.writeErr != nil && (r.failAfter == 0 || len(r.records) >= r.failAfter) {
		return r.writeErr
	}
	r.records = append(r.records, rec)
	return nil
}

func (r *recordingSink) Close(context.Context) error {
	r.closed = true
	return r.closeErr
}

func (r *recordingSink) Abort(context.Context) error {
	r.aborted = true
	return nil
}

func countProducts(t *testing.T, path string) int {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM products`).Scan(&n))
	return n
}

func TestMulti_FansOutAndClosesAll(t *testing.T) {
	ctx := context.Background()
	a, b := &recordingSink{}, &recordingSink{closeErr: errors.New("boom")}
	m := Multi(a, b)

	require.NoError(t, m.Write(ctx, testRecords[0]))
	assert.Equal(t, []listing.Record{testRecords[0]}, a.records)
	assert.Equal(t, []listing.Record{testRecords[0]}, b.records)

	err := m.Close(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "close sink 1: boom")
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}

func TestMulti_WriteStopsAtFirstFailure(t *testing.T) {
	failing := &recordingSink{writeErr: errors.New("disk full")}
	after := &recordingSink{}

	err := Multi(failing, after).Write(context.Background(), testRecords[0])

	require.Error(t, err)
	assert.Empty(t, after.records)
}

func TestMulti_AbortReachesEverySink(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}

	require.NoError(t, Multi(a, b).Abort(context.Background()))
	assert.True(t, a.aborted)
	assert.True(t, b.aborted)
	assert.False(t, a.closed)
}

func TestSQLite_AbortAfterFailedWriteKeepsPreviousDatabase(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "products.sqlite")

	s, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	for _, rec := range testRecords {
		require.NoError(t, s.Write(ctx, rec))
	}
	require.NoError(t, s.Close(ctx))

	s, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	m := Multi(s, &recordingSink{writeErr: errors.New("disk full"), failAfter: 1})
	require.NoError(t, m.Write(ctx, testRecords[0]))
	require.Error(t, m.Write(ctx, testRecords[1]))
	require.NoError(t, m.Abort(ctx))

	assert.Equal(t, len(testRecords), countProducts(t, path))
	assert.NoFileExists(t, path+".tmp")
}

func TestSQLite_AbortWithoutPreviousDatabaseLeavesNothing(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "products.sqlite")

	s, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Write(ctx, testRecords[0]))
	require.NoError(t, s.Abort(ctx))

	assert.NoFileExists(t, path)
	assert.NoFileExists(t, path+".tmp")
}

func TestOpenSQLite_StaleBuildThatCannotBeRemovedFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.sqlite")
	require.NoError(t, os.MkdirAll(filepath.Join(path+".tmp", "busy"), 0o755))

	_, err := OpenSQLite(context.Background(), path)
	assert.ErrorContains(t, err, "remove stale sqlite build")
}

func TestPostgres_ReplacesTableContents(t *testing.T) {
	url := os.Getenv("ABO_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("ABO_TEST_POSTGRES_URL not set")
	}
	ctx := context.Background()
	table := "abo_products_test"

	for run := 0; run < 2; run++ {
		p, err := OpenPostgres(ctx, url, table)
		require.NoError(t, err)
		for _, rec := range testRecords {
			require.NoError(t, p.Write(ctx, rec))
		}
		require.NoError(t, p.Close(ctx))
	}

	conn, err := pgx.Connect(ctx, url)
	require.NoError(t, err)
	defer conn.Close(ctx)
	defer conn.Exec(ctx, `DROP TABLE IF EXISTS `+pgx.Identifier{table}.Sanitize())

	var n int
	require.NoError(t, conn.QueryRow(ctx, `SELECT COUNT(*) FROM `+pgx.Identifier{table}.Sanitize()).Scan(&n))
	assert.Equal(t, len(testRecords), n)

	var title string
	require.NoError(t, conn.QueryRow(ctx, `SELECT title FROM `+pgx.Identifier{table}.Sanitize()+` WHERE seq = 2`).Scan(&title))
	assert.Equal(t, "Chair, oak", title)
}

func TestPostgres_AbortLeavesTableUntouched(t *testing.T) {
	url := os.Getenv("ABO_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("ABO_TEST_POSTGRES_URL not set")
	}
	ctx := context.Background()
	table := "abo_products_abort_test"

	p, err := OpenPostgres(ctx, url, table)
	require.NoError(t, err)
	require.NoError(t, p.Write(ctx, testRecords[0]))
	require.NoError(t, p.Close(ctx))

	p, err = OpenPostgres(ctx, url, table)
	require.NoError(t, err)
	require.NoError(t, p.Write(ctx, testRecords[1]))
	require.NoError(t, p.Write(ctx, testRecords[2]))
	require.NoError(t, p.Abort(ctx))

	conn, err := pgx.Connect(ctx, url)
	require.NoError(t, err)
	defer conn.Close(ctx)
	defer conn.Exec(ctx, `DROP TABLE IF EXISTS `+pgx.Identifier{table}.Sanitize())

	var n int
	require.NoError(t, conn.QueryRow(ctx, `SELECT COUNT(*) FROM `+pgx.Identifier{table}.Sanitize()).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestOpenPostgres_RequiresConnString(t *testing.T) {
	_, err := OpenPostgres(context.Background(), "", "")
	assert.Error(t, err)
}
