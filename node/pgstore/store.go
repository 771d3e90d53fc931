// Package pgstore keeps height to header-hash bindings in PostgreSQL.
package pgstore

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"btcspv.dev/spv/node/store"
)

const (
	insertHashSQL = `INSERT INTO header_hashes (height, hash, header) VALUES ($1, $2, $3) ON CONFLICT (height) DO NOTHING`
	selectHashSQL = `SELECT hash FROM header_hashes WHERE height = $1`
	fillHeaderSQL = `UPDATE header_hashes SET header = $2 WHERE height = $1 AND header IS NULL`
	selectHdrSQL  = `SELECT header FROM header_hashes WHERE height = $1`
	selectTipSQL  = `SELECT height, hash FROM header_hashes ORDER BY height DESC LIMIT 1`
)

type Store struct {
	db      *sql.DB
	timeout time.Duration
}

// Open connects through the pgx stdlib driver and applies migrations.
func Open(dsn string, timeout time.Duration) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	s := New(db, timeout)
	ctx, cancel := s.ctx()
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an already-migrated database handle.
func New(db *sql.DB, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Store{db: db, timeout: timeout}
}

func (s *Store) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// execQuerier is satisfied by both *sql.DB and *sql.Tx.
type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PutHeader records hash at height. It follows the same append-only and
// header rules as the bbolt store and returns store.ErrHeightConflict on a
// differing hash.
func (s *Store) PutHeader(height uint64, hash [32]byte, header []byte) error {
	if err := store.CheckHeader(hash, header); err != nil {
		return err
	}
	ctx, cancel := s.ctx()
	defer cancel()
	return putHeader(ctx, s.db, height, hash, header)
}

// PutHeaders records entries at heights from, from+1, ... in one SQL
// transaction. Either every binding is written or none is.
func (s *Store) PutHeaders(from uint64, entries []store.HeaderEntry) (err error) {
	for i, e := range entries {
		if err := store.CheckHeader(e.Hash, e.Header); err != nil {
			return fmt.Errorf("height %d: %w", from+uint64(i), err)
		}
	}
	ctx, cancel := s.ctx()
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for i, e := range entries {
		if err = putHeader(ctx, tx, from+uint64(i), e.Hash, e.Header); err != nil {
			return err
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func putHeader(ctx context.Context, q execQuerier, height uint64, hash [32]byte, header []byte) error {
	h, err := sqlHeight(height)
	if err != nil {
		return err
	}
	var hdr any
	if header != nil {
		hdr = header
	}

	res, err := q.ExecContext(ctx, insertHashSQL, h, hash[:], hdr)
	if err != nil {
		return fmt.Errorf("insert height %d: %w", height, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 1 {
		return nil
	}

	var prev []byte
	if err := q.QueryRowContext(ctx, selectHashSQL, h).Scan(&prev); err != nil {
		return fmt.Errorf("read height %d: %w", height, err)
	}
	if !bytes.Equal(prev, hash[:]) {
		return fmt.Errorf("%w: height %d has %x", store.ErrHeightConflict, height, prev)
	}
	if hdr == nil {
		return nil
	}
	if _, err := q.ExecContext(ctx, fillHeaderSQL, h, hdr); err != nil {
		return fmt.Errorf("fill header %d: %w", height, err)
	}
	return nil
}

func (s *Store) HeaderHash(height uint64) ([32]byte, bool, error) {
	var out [32]byte
	h, err := sqlHeight(height)
	if err != nil {
		return out, false, err
	}
	ctx, cancel := s.ctx()
	defer cancel()

	var v []byte
	err = s.db.QueryRowContext(ctx, selectHashSQL, h).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return out, false, nil
	}
	if err != nil {
		return out, false, fmt.Errorf("read height %d: %w", height, err)
	}
	if len(v) != 32 {
		return out, false, fmt.Errorf("height %d: stored hash length %d", height, len(v))
	}
	copy(out[:], v)
	return out, true, nil
}

func (s *Store) Header(height uint64) ([]byte, bool, error) {
	h, err := sqlHeight(height)
	if err != nil {
		return nil, false, err
	}
	ctx, cancel := s.ctx()
	defer cancel()

	var v []byte
	err = s.db.QueryRowContext(ctx, selectHdrSQL, h).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read header %d: %w", height, err)
	}
	if v == nil {
		return nil, false, nil
	}
	return v, true, nil
}

func (s *Store) Tip() (uint64, [32]byte, bool, error) {
	var hash [32]byte
	ctx, cancel := s.ctx()
	defer cancel()

	var h int64
	var v []byte
	err := s.db.QueryRowContext(ctx, selectTipSQL).Scan(&h, &v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, hash, false, nil
	}
	if err != nil {
		return 0, hash, false, fmt.Errorf("read tip: %w", err)
	}
	if h < 0 || len(v) != 32 {
		return 0, hash, false, fmt.Errorf("tip: malformed row")
	}
	copy(hash[:], v)
	return uint64(h), hash, true, nil
}

func sqlHeight(height uint64) (int64, error) {
	if height > math.MaxInt64 {
		return 0, fmt.Errorf("height %d exceeds BIGINT", height)
	}
	return int64(height), nil
}
