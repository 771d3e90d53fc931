//go:build spvdebug

package store

import bolt "go.etcd.io/bbolt"

// DebugInsertHeaderHash overwrites the binding at height without the
// append-only check. Test builds only.
func (d *DB) DebugInsertHeaderHash(height uint64, hash [32]byte) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketHashByHeight).Put(heightKey(height), hash[:])
	})
}
