// Package dbftsqlite provides SQLite-backed implementations of
// [dbftstore.BlockStore] and [dbftstore.SnapshotStore],
// using the pure-Go modernc.org/sqlite driver.
package dbftsqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"

	"github.com/r3e-network/neodbft/dbft/dbftcodec"
	"github.com/r3e-network/neodbft/dbft/dbftconsensus"
	"github.com/r3e-network/neodbft/dbft/dbftstore"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

// Store is a single SQLite database holding both finalized blocks
// and the latest consensus snapshot.
type Store struct {
	log *slog.Logger
	db  *sql.DB
}

var (
	_ dbftstore.BlockStore    = (*Store)(nil)
	_ dbftstore.SnapshotStore = (*Store)(nil)
)

// NewOnDiskStore opens or creates the database at path.
func NewOnDiskStore(ctx context.Context, log *slog.Logger, path string) (*Store, error) {
	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Set("_txlock", "immediate")

	return open(ctx, log, "file:"+path+"?"+q.Encode())
}

// NewInMemStore returns a store backed by a private in-memory database.
// Its contents are lost on [Store.Close].
func NewInMemStore(ctx context.Context, log *slog.Logger) (*Store, error) {
	return open(ctx, log, ":memory:")
}

func open(ctx context.Context, log *slog.Logger, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection serializes writers,
	// and keeps an in-memory database alive for the life of the store.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Debug("Opened SQLite store", "dsn", dsn)
	return &Store{log: log, db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CommitBlock(ctx context.Context, blk dbftconsensus.Block) (err error) {
	h := blk.Height()
	if h > math.MaxInt64 {
		return fmt.Errorf("block height %d out of range", h)
	}
	hash := blk.Hash()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var have []byte
	err = tx.QueryRowContext(ctx, `SELECT hash FROM blocks WHERE height = ?`, int64(h)).Scan(&have)
	switch {
	case err == nil:
		if string(have) != string(hash[:]) {
			var existing dbftconsensus.Hash
			copy(existing[:], have)
			return dbftstore.BlockConflictError{Height: h, Existing: existing, Attempted: hash}
		}
		// Already stored.
		return tx.Rollback()
	case errors.Is(err, sql.ErrNoRows):
		// Continue below.
	default:
		return fmt.Errorf("failed to query block at height %d: %w", h, err)
	}

	var last sql.NullInt64
	if err = tx.QueryRowContext(ctx, `SELECT MAX(height) FROM blocks`).Scan(&last); err != nil {
		return fmt.Errorf("failed to query last height: %w", err)
	}
	if last.Valid && uint64(last.Int64)+1 != h {
		return dbftstore.NonContiguousHeightError{Last: uint64(last.Int64), Attempted: h}
	}

	if _, err = tx.ExecContext(
		ctx,
		`INSERT INTO blocks(height, hash, data) VALUES(?, ?, ?)`,
		int64(h), hash[:], dbftcodec.EncodeBlock(blk),
	); err != nil {
		return fmt.Errorf("failed to insert block at height %d: %w", h, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit block at height %d: %w", h, err)
	}
	return nil
}

func (s *Store) LoadBlock(ctx context.Context, height uint64) (dbftconsensus.Block, error) {
	if height > math.MaxInt64 {
		return dbftconsensus.Block{}, dbftstore.BlockNotFoundError{Height: height}
	}

	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM blocks WHERE height = ?`, int64(height)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return dbftconsensus.Block{}, dbftstore.BlockNotFoundError{Height: height}
	}
	if err != nil {
		return dbftconsensus.Block{}, fmt.Errorf("failed to load block at height %d: %w", height, err)
	}
	return decodeBlock(height, data)
}

func (s *Store) LastBlock(ctx context.Context) (dbftconsensus.Block, error) {
	var height int64
	var data []byte
	err := s.db.QueryRowContext(
		ctx, `SELECT height, data FROM blocks ORDER BY height DESC LIMIT 1`,
	).Scan(&height, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return dbftconsensus.Block{}, dbftstore.ErrNoBlocks
	}
	if err != nil {
		return dbftconsensus.Block{}, fmt.Errorf("failed to load last block: %w", err)
	}
	return decodeBlock(uint64(height), data)
}

func decodeBlock(height uint64, data []byte) (dbftconsensus.Block, error) {
	blk, err := dbftcodec.DecodeBlock(data)
	if err != nil {
		return dbftconsensus.Block{}, fmt.Errorf("corrupt block at height %d: %w", height, err)
	}
	return blk, nil
}

func (s *Store) SaveSnapshot(ctx context.Context, height uint64, b []byte) error {
	if height > math.MaxInt64 {
		return fmt.Errorf("snapshot height %d out of range", height)
	}
	if b == nil {
		b = []byte{}
	}

	if _, err := s.db.ExecContext(
		ctx,
		`INSERT INTO snapshot(id, height, data) VALUES(0, ?, ?)
ON CONFLICT(id) DO UPDATE SET height = excluded.height, data = excluded.data`,
		int64(height), b,
	); err != nil {
		return fmt.Errorf("failed to save snapshot at height %d: %w", height, err)
	}
	return nil
}

func (s *Store) LoadSnapshot(ctx context.Context) (uint64, []byte, error) {
	var height int64
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT height, data FROM snapshot WHERE id = 0`).Scan(&height, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil, dbftstore.ErrSnapshotNotFound
	}
	if err != nil {
		return 0, nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return uint64(height), data, nil
}
