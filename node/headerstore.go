package node

import (
	"fmt"

	"btcspv.dev/spv/node/pgstore"
	"btcspv.dev/spv/node/store"
	"btcspv.dev/spv/spv"
)

// HeaderStore owns the height to header-hash bindings. The verifier only
// reads it; the indexer is the only writer.
type HeaderStore interface {
	spv.HeaderHashSource
	PutHeader(height uint64, hash [32]byte, header []byte) error
	// PutHeaders writes a run of heights starting at from, all or nothing.
	PutHeaders(from uint64, entries []store.HeaderEntry) error
	Header(height uint64) ([]byte, bool, error)
	Tip() (uint64, [32]byte, bool, error)
	Close() error
}

// syncRecorder is implemented by stores that keep a record of completed syncs.
type syncRecorder interface {
	RecordSync(from, to uint64, tipHash [32]byte) error
}

// OpenHeaderStore opens the backend selected by cfg.StoreBackend.
func OpenHeaderStore(cfg Config) (HeaderStore, error) {
	switch cfg.StoreBackend {
	case StoreBolt:
		return store.Open(cfg.DataDir, cfg.Network)
	case StorePostgres:
		return pgstore.Open(cfg.PostgresDSN, cfg.RequestTimeout)
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}
