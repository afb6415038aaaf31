// Package index stores file records in SQLite and answers the duplicate,
// unique and cluster queries over them.
//
// A single connection backs every Index, so each mutation is atomic with
// respect to readers and an in-memory database lives as long as the Index.
// Query results are lazy; finish (or break out of) an iteration before
// issuing the next call on the same Index.
package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/ivoronin/dupescan/internal/types"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Memory is the database name that keeps the index in memory.
const Memory = ":memory:"

const columns = `full_name, size, hash, scan_root, absolute_path, canonical_path`

// Index persists file records.
type Index struct {
	db *sql.DB
}

// Open initializes (or reuses) an index at path. An empty path or ":memory:"
// keeps the index in memory.
func Open(path string) (*Index, error) {
	memory := strings.TrimSpace(path) == "" || path == Memory
	dsn := path
	if memory {
		dsn = Memory
	} else if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{"PRAGMA busy_timeout=5000;"}
	if !memory {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL;", "PRAGMA synchronous=NORMAL;")
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	idx := &Index{db: db}
	if err := idx.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return idx, nil
}

// Close releases the underlying database resources.
func (x *Index) Close() error {
	if x == nil || x.db == nil {
		return nil
	}
	return x.db.Close()
}

func (x *Index) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS files (
        full_name TEXT PRIMARY KEY,
        size INTEGER,
        hash TEXT,
        scan_root TEXT NOT NULL,
        absolute_path TEXT NOT NULL,
        canonical_path TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_files_size ON files(size);
CREATE INDEX IF NOT EXISTS idx_files_hash_size ON files(hash, size);
CREATE INDEX IF NOT EXISTS idx_files_absolute_path ON files(absolute_path);
CREATE INDEX IF NOT EXISTS idx_files_canonical_path ON files(canonical_path);
`
	if _, err := x.db.Exec(schema); err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}
	return nil
}

// Reset removes every record.
func (x *Index) Reset(ctx context.Context) error {
	if _, err := x.db.ExecContext(ctx, `DELETE FROM files`); err != nil {
		return fmt.Errorf("reset index: %w", err)
	}
	return nil
}

// AddFile inserts one record.
func (x *Index) AddFile(ctx context.Context, r *types.FileRecord) error {
	return x.AddFiles(ctx, []*types.FileRecord{r})
}

// AddFiles inserts records in one transaction. A full name that is already
// indexed fails the whole batch with *types.DuplicateKeyError.
func (x *Index) AddFiles(ctx context.Context, records []*types.FileRecord) (err error) {
	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO files(`+columns+`) VALUES(?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range records {
		if _, err = stmt.ExecContext(ctx, r.FullName, nullInt64(r.Size), nullString(r.Hash),
			r.ScanRoot, r.AbsolutePath, r.CanonicalPath); err != nil {
			if isConstraint(err) {
				return &types.DuplicateKeyError{FullName: r.FullName}
			}
			return fmt.Errorf("insert %s: %w", r.FullName, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit insert: %w", err)
	}
	return nil
}

// UpdateHash sets the hash of the record named fullName.
func (x *Index) UpdateHash(ctx context.Context, fullName, hash string) error {
	res, err := x.db.ExecContext(ctx, `UPDATE files SET hash = ? WHERE full_name = ?`, hash, fullName)
	if err != nil {
		return fmt.Errorf("update hash of %s: %w", fullName, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update hash of %s: %w", fullName, types.ErrNotIndexed)
	}
	return nil
}

// FindDuplicateSizeGroups yields records whose size is shared with a record
// of a different canonical path: the hashing work-list.
func (x *Index) FindDuplicateSizeGroups(ctx context.Context) iter.Seq2[*types.FileRecord, error] {
	return x.query(ctx, `
SELECT `+columns+` FROM files f
WHERE f.size IS NOT NULL AND EXISTS (
        SELECT 1 FROM files g
        WHERE g.size = f.size AND g.canonical_path <> f.canonical_path
)
ORDER BY f.size, f.full_name`)
}

// FindDuplicateClusters yields records sharing size and hash with a record of
// a different canonical path, ordered so that clusters are contiguous.
func (x *Index) FindDuplicateClusters(ctx context.Context) iter.Seq2[*types.FileRecord, error] {
	return x.query(ctx, `
SELECT `+columns+` FROM files f
WHERE f.size IS NOT NULL AND f.hash IS NOT NULL AND EXISTS (
        SELECT 1 FROM files g
        WHERE g.size = f.size AND g.hash = f.hash AND g.canonical_path <> f.canonical_path
)
ORDER BY f.hash, f.size, f.full_name`)
}

// FindUniqueFiles yields every record that is not in a duplicate cluster.
func (x *Index) FindUniqueFiles(ctx context.Context) iter.Seq2[*types.FileRecord, error] {
	return x.query(ctx, `
SELECT `+columns+` FROM files f
WHERE f.size IS NULL OR f.hash IS NULL OR NOT EXISTS (
        SELECT 1 FROM files g
        WHERE g.size = f.size AND g.hash = f.hash AND g.canonical_path <> f.canonical_path
)
ORDER BY f.hash, f.size, f.full_name`)
}

// FindClusterMembers yields every record with exactly this hash and size.
func (x *Index) FindClusterMembers(ctx context.Context, hash string, size int64) iter.Seq2[*types.FileRecord, error] {
	return x.query(ctx, `
SELECT `+columns+` FROM files
WHERE hash = ? AND size = ?
ORDER BY full_name`, hash, size)
}

// FindDuplicateClusterSummaries returns one page of duplicate clusters,
// largest first. A cluster counts only if it spans two canonical paths.
func (x *Index) FindDuplicateClusterSummaries(ctx context.Context, limit, offset int) ([]types.ClusterSummary, error) {
	rows, err := x.db.QueryContext(ctx, `
SELECT hash, size, COUNT(*) FROM files
WHERE hash IS NOT NULL AND size IS NOT NULL
GROUP BY hash, size
HAVING COUNT(DISTINCT canonical_path) > 1
ORDER BY COUNT(*) DESC, hash, size
LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query clusters: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var clusters []types.ClusterSummary
	for rows.Next() {
		var c types.ClusterSummary
		if err := rows.Scan(&c.Hash, &c.Size, &c.Count); err != nil {
			return nil, fmt.Errorf("scan cluster: %w", err)
		}
		clusters = append(clusters, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clusters: %w", err)
	}
	return clusters, nil
}

// Lookup returns the record whose absolute path or full name is path.
// Returns types.ErrNotIndexed when there is none.
func (x *Index) Lookup(ctx context.Context, path string) (*types.FileRecord, error) {
	return lookup(ctx, x.db, path)
}

// DeleteFile removes the file at path from disk and from the index, provided
// another file with the same content is confirmed to exist.
//
// Checks happen in one transaction, in order:
//   - path is not indexed: types.ErrNotIndexed
//   - an indexed peer (same hash and size, different canonical path) is
//     missing on disk: *types.IndexInconsistencyError
//   - no peer: *types.NoDuplicateError
//
// On any error neither the filesystem nor the index is changed. On success
// every record naming the deleted file's canonical path is removed.
func (x *Index) DeleteFile(ctx context.Context, path string) (err error) {
	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	target, err := lookup(ctx, tx, path)
	if err != nil {
		return err
	}
	hash, hasHash := target.HashValue()
	size, hasSize := target.SizeValue()
	if !hasHash || !hasSize {
		return &types.NoDuplicateError{Path: path}
	}

	peers, err := collect(queryRecords(ctx, tx, `
SELECT `+columns+` FROM files
WHERE hash = ? AND size = ? AND canonical_path <> ?
ORDER BY full_name`, hash, size, target.CanonicalPath))
	if err != nil {
		return err
	}
	for _, peer := range peers {
		if _, statErr := os.Stat(peer.CanonicalPath); statErr != nil {
			return &types.IndexInconsistencyError{Path: peer.CanonicalPath}
		}
	}
	if len(peers) == 0 {
		return &types.NoDuplicateError{Path: path}
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM files WHERE canonical_path = ?`, target.CanonicalPath); err != nil {
		return fmt.Errorf("delete %s from index: %w", target.FullName, err)
	}
	if err = os.Remove(target.AbsolutePath); err != nil {
		return fmt.Errorf("delete %s: %w", target.AbsolutePath, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	return nil
}

// querier is the subset of *sql.DB and *sql.Tx used by shared helpers.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func lookup(ctx context.Context, q querier, path string) (*types.FileRecord, error) {
	row := q.QueryRowContext(ctx, `
SELECT `+columns+` FROM files
WHERE absolute_path = ? OR full_name = ?
ORDER BY absolute_path = ? DESC, full_name
LIMIT 1`, path, path, path)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", path, types.ErrNotIndexed)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", path, err)
	}
	return r, nil
}

func (x *Index) query(ctx context.Context, query string, args ...any) iter.Seq2[*types.FileRecord, error] {
	return queryRecords(ctx, x.db, query, args...)
}

func queryRecords(ctx context.Context, q querier, query string, args ...any) iter.Seq2[*types.FileRecord, error] {
	return func(yield func(*types.FileRecord, error) bool) {
		rows, err := q.QueryContext(ctx, query, args...)
		if err != nil {
			yield(nil, fmt.Errorf("query records: %w", err))
			return
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			r, err := scanRecord(rows)
			if err != nil {
				yield(nil, fmt.Errorf("scan record: %w", err))
				return
			}
			if !yield(r, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, fmt.Errorf("iterate records: %w", err))
		}
	}
}

// Collect drains a record sequence into a slice, stopping at the first error.
func Collect(seq iter.Seq2[*types.FileRecord, error]) ([]*types.FileRecord, error) {
	return collect(seq)
}

func collect(seq iter.Seq2[*types.FileRecord, error]) ([]*types.FileRecord, error) {
	var records []*types.FileRecord
	for r, err := range seq {
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*types.FileRecord, error) {
	var (
		r    types.FileRecord
		size sql.NullInt64
		hash sql.NullString
	)
	if err := s.Scan(&r.FullName, &size, &hash, &r.ScanRoot, &r.AbsolutePath, &r.CanonicalPath); err != nil {
		return nil, err
	}
	if size.Valid {
		r.Size = types.Int64(size.Int64)
	}
	if hash.Valid {
		r.Hash = types.String(hash.String)
	}
	return &r, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func isConstraint(err error) bool {
	var sqliteErr *sqlite.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
}
