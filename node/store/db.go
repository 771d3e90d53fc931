package store

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"btcspv.dev/spv/spv"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketHashByHeight   = []byte("header_hash_by_height")
	bucketHeaderByHeight = []byte("header_by_height")
)

// ErrHeightConflict is returned when a different hash is already recorded at a
// height. Bindings are append-only.
var ErrHeightConflict = errors.New("store: conflicting header hash at height")

// ErrHeaderMismatch is returned when a raw header does not hash to the hash it
// is recorded under.
var ErrHeaderMismatch = errors.New("store: header does not match hash")

// CheckHeader holds every backend to the same rule: a header, when given, is
// 80 bytes and hashes to the display-order hash.
func CheckHeader(hash [32]byte, header []byte) error {
	if header == nil {
		return nil
	}
	if len(header) != spv.BlockHeaderBytes {
		return fmt.Errorf("%w: length %d", ErrHeaderMismatch, len(header))
	}
	got, err := spv.BlockHash(header)
	if err != nil {
		return err
	}
	if got != hash {
		return fmt.Errorf("%w: header hashes to %s, not %s", ErrHeaderMismatch, hex32(got), hex32(hash))
	}
	return nil
}

type DB struct {
	networkDir string
	db         *bolt.DB
	manifest   *Manifest
}

func Open(datadir string, network string) (*DB, error) {
	if datadir == "" {
		return nil, fmt.Errorf("datadir required")
	}
	if network == "" {
		return nil, fmt.Errorf("network required")
	}

	networkDir := NetworkDir(datadir, network)
	if err := ensureDir(filepath.Join(networkDir, "db")); err != nil {
		return nil, err
	}

	path := filepath.Join(networkDir, "db", "headers.db")
	bdb, err := bolt.Open(path, 0o600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("open bbolt: %w", err)
	}

	d := &DB{networkDir: networkDir, db: bdb}

	if err := d.db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketHashByHeight, bucketHeaderByHeight} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", string(b), err)
			}
		}
		return nil
	}); err != nil {
		_ = bdb.Close()
		return nil, err
	}

	m, err := readManifest(networkDir)
	if err != nil {
		if !os.IsNotExist(err) {
			_ = bdb.Close()
			return nil, fmt.Errorf("read manifest: %w", err)
		}
		m = &Manifest{SchemaVersion: SchemaVersionV1, Network: network}
		if err := writeManifestAtomic(networkDir, m); err != nil {
			_ = bdb.Close()
			return nil, err
		}
	}
	if m.SchemaVersion > SchemaVersionV1 {
		_ = bdb.Close()
		return nil, fmt.Errorf("manifest schema_version %d > supported %d", m.SchemaVersion, SchemaVersionV1)
	}
	if m.Network != network {
		_ = bdb.Close()
		return nil, fmt.Errorf("manifest network %q, opened as %q", m.Network, network)
	}
	d.manifest = m
	return d, nil
}

func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

func (d *DB) NetworkDir() string { return d.networkDir }

func (d *DB) Manifest() *Manifest {
	if d == nil {
		return nil
	}
	return d.manifest
}

func (d *DB) SetManifest(m *Manifest) error {
	if d == nil {
		return fmt.Errorf("db: nil")
	}
	if err := writeManifestAtomic(d.networkDir, m); err != nil {
		return err
	}
	d.manifest = m
	return nil
}

// HeaderEntry is one height's binding in a PutHeaders batch.
type HeaderEntry struct {
	Hash   [32]byte // display order
	Header []byte   // optional raw header
}

// PutHeader records the display-order hash for height along with the raw
// header. Re-recording the same hash is a no-op; a different hash is
// ErrHeightConflict.
func (d *DB) PutHeader(height uint64, hash [32]byte, header []byte) error {
	return d.PutHeaders(height, []HeaderEntry{{Hash: hash, Header: header}})
}

// PutHeaders records entries at heights from, from+1, ... in one transaction.
// Either every binding is written or none is.
func (d *DB) PutHeaders(from uint64, entries []HeaderEntry) error {
	for i, e := range entries {
		if err := CheckHeader(e.Hash, e.Header); err != nil {
			return fmt.Errorf("height %d: %w", from+uint64(i), err)
		}
	}
	return d.db.Update(func(tx *bolt.Tx) error {
		hb := tx.Bucket(bucketHashByHeight)
		hdrb := tx.Bucket(bucketHeaderByHeight)
		for i, e := range entries {
			height := from + uint64(i)
			key := heightKey(height)
			if prev := hb.Get(key); prev != nil {
				if !bytes.Equal(prev, e.Hash[:]) {
					return fmt.Errorf("%w: height %d has %x", ErrHeightConflict, height, prev)
				}
			} else if err := hb.Put(key, e.Hash[:]); err != nil {
				return err
			}
			if e.Header == nil {
				continue
			}
			if err := hdrb.Put(key, e.Header); err != nil {
				return err
			}
		}
		return nil
	})
}

// HeaderHash returns the recorded display-order hash for height.
func (d *DB) HeaderHash(height uint64) ([32]byte, bool, error) {
	var out [32]byte
	var ok bool
	err := d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketHashByHeight).Get(heightKey(height))
		if v == nil {
			return nil
		}
		if len(v) != 32 {
			return fmt.Errorf("height %d: stored hash length %d", height, len(v))
		}
		copy(out[:], v)
		ok = true
		return nil
	})
	return out, ok, err
}

func (d *DB) Header(height uint64) ([]byte, bool, error) {
	var out []byte
	err := d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketHeaderByHeight).Get(heightKey(height))
		if v == nil {
			return nil
		}
		out = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if out == nil {
		return nil, false, nil
	}
	return out, true, nil
}

// Tip returns the highest recorded height. Keys are big-endian so the last
// cursor entry is the highest.
func (d *DB) Tip() (uint64, [32]byte, bool, error) {
	var height uint64
	var hash [32]byte
	var ok bool
	err := d.db.View(func(tx *bolt.Tx) error {
		k, v := tx.Bucket(bucketHashByHeight).Cursor().Last()
		if k == nil {
			return nil
		}
		if len(k) != 8 || len(v) != 32 {
			return fmt.Errorf("tip: malformed entry")
		}
		height = binary.BigEndian.Uint64(k)
		copy(hash[:], v)
		ok = true
		return nil
	})
	return height, hash, ok, err
}

func heightKey(height uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], height)
	return k[:]
}

func hex32(b32 [32]byte) string {
	return hex.EncodeToString(b32[:])
}

// RecordSync notes a completed sync range in the manifest.
func (d *DB) RecordSync(from, to uint64, tipHash [32]byte) error {
	m := Manifest{SchemaVersion: SchemaVersionV1}
	if d.manifest != nil {
		m = *d.manifest
	}
	m.LastSyncFrom = from
	m.LastSyncTo = to
	m.LastSyncHashHex = hex32(tipHash)
	m.LastSyncUnix = time.Now().Unix()
	return d.SetManifest(&m)
}
