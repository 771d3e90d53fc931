package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	"btcspv.dev/spv/node/metrics"
	"btcspv.dev/spv/node/store"
	"btcspv.dev/spv/spv"
)

type IndexerOptions struct {
	MaxConcurrency int
	Logger         *slog.Logger
	// Progress receives a progress bar when non-nil.
	Progress io.Writer
}

// Indexer populates a HeaderStore from an untrusted ChainSource. Every header
// is checked against its claimed hash, its own proof of work and its parent
// before anything is recorded.
type Indexer struct {
	source      ChainSource
	store       HeaderStore
	concurrency int
	logger      *slog.Logger
	progress    io.Writer
}

type SyncResult struct {
	From     uint64
	To       uint64
	Recorded int
	TipHash  [32]byte
}

func NewIndexer(source ChainSource, st HeaderStore, opts IndexerOptions) (*Indexer, error) {
	if source == nil {
		return nil, errors.New("nil chain source")
	}
	if st == nil {
		return nil, errors.New("nil header store")
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 1
	}
	if opts.Logger == nil {
		opts.Logger = discardLogger()
	}
	return &Indexer{
		source:      source,
		store:       st,
		concurrency: opts.MaxConcurrency,
		logger:      opts.Logger,
		progress:    opts.Progress,
	}, nil
}

type fetchedHeader struct {
	hash   [32]byte
	header []byte
	parsed spv.BlockHeader
}

// Sync records heights [from, to]. Nothing is written unless the whole range
// fetches, verifies and links, and the range is then written in a single store
// transaction.
func (ix *Indexer) Sync(ctx context.Context, from, to uint64) (*SyncResult, error) {
	if from > to {
		return nil, fmt.Errorf("invalid range [%d, %d]", from, to)
	}
	ix.logger.Info("Syncing headers", "range", fmt.Sprintf("[%d, %d]", from, to))

	bar, err := ix.newBar(to - from + 1)
	if err != nil {
		return nil, err
	}

	fetched, err := ix.fetchRange(ctx, from, to, bar)
	if err != nil {
		metrics.SyncErrors.Inc()
		return nil, err
	}
	if err := ix.checkLinks(from, fetched); err != nil {
		metrics.SyncErrors.Inc()
		return nil, err
	}

	entries := make([]store.HeaderEntry, 0, len(fetched))
	for _, f := range fetched {
		entries = append(entries, store.HeaderEntry{Hash: f.hash, Header: f.header})
	}
	if err := ix.store.PutHeaders(from, entries); err != nil {
		metrics.SyncErrors.Inc()
		return nil, fmt.Errorf("record [%d, %d]: %w", from, to, err)
	}
	recorded := len(entries)
	metrics.HeadersRecorded.Add(float64(recorded))
	tip := fetched[len(fetched)-1].hash
	metrics.SyncedHeight.Set(float64(to))

	if rec, ok := ix.store.(syncRecorder); ok {
		if err := rec.RecordSync(from, to, tip); err != nil {
			return nil, fmt.Errorf("record sync: %w", err)
		}
	}
	if bar != nil {
		if err := bar.Finish(); err != nil {
			ix.logger.Warn("Failed to finish progress bar", "error", err)
		}
	}
	ix.logger.Info("Sync complete", "from", from, "to", to, "recorded", recorded)
	return &SyncResult{From: from, To: to, Recorded: recorded, TipHash: tip}, nil
}

func (ix *Indexer) newBar(n uint64) (*progressbar.ProgressBar, error) {
	if ix.progress == nil || n < 2 {
		return nil, nil
	}
	bar := progressbar.NewOptions64(
		int64(n), // #nosec G115 -- range length bounded by block heights.
		progressbar.OptionSetWriter(ix.progress),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetDescription("Syncing headers..."),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
	if err := bar.RenderBlank(); err != nil {
		return nil, fmt.Errorf("failed to render progress bar: %w", err)
	}
	return bar, nil
}

func (ix *Indexer) fetchRange(parent context.Context, from, to uint64, bar *progressbar.ProgressBar) ([]fetchedHeader, error) {
	out := make([]fetchedHeader, to-from+1)
	eg, ctx := errgroup.WithContext(parent)
	sem := make(chan struct{}, ix.concurrency)

	for height := from; height <= to; height++ {
		if ctx.Err() != nil {
			break
		}
		h := height
		sem <- struct{}{}
		eg.Go(func() error {
			defer func() { <-sem }()
			f, err := ix.fetchOne(ctx, h)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					ix.logger.Error("Header fetch failed", "height", h, "error", err)
				}
				return fmt.Errorf("height %d: %w", h, err)
			}
			out[h-from] = f
			if bar != nil {
				if err := bar.Add(1); err != nil {
					ix.logger.Warn("Failed to update progress bar", "error", err)
				}
			}
			return nil
		})
		if height == to {
			break
		}
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	if err := parent.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (ix *Indexer) fetchOne(ctx context.Context, height uint64) (fetchedHeader, error) {
	hash, err := ix.source.BlockHash(ctx, height)
	if err != nil {
		return fetchedHeader{}, err
	}
	header, err := ix.source.BlockHeader(ctx, hash)
	if err != nil {
		return fetchedHeader{}, err
	}
	got, err := spv.BlockHash(header)
	if err != nil {
		return fetchedHeader{}, err
	}
	if got != hash {
		return fetchedHeader{}, fmt.Errorf("header hashes to %x, source claimed %x", got, hash)
	}
	if err := spv.CheckProofOfWork(header); err != nil {
		return fetchedHeader{}, err
	}
	parsed, err := spv.ParseBlockHeader(header)
	if err != nil {
		return fetchedHeader{}, err
	}
	return fetchedHeader{hash: hash, header: header, parsed: parsed}, nil
}

// checkLinks requires each header to commit to its predecessor, including the
// already-recorded height just below the range when there is one.
func (ix *Indexer) checkLinks(from uint64, fetched []fetchedHeader) error {
	if from > 0 {
		prev, ok, err := ix.store.HeaderHash(from - 1)
		if err != nil {
			return fmt.Errorf("read height %d: %w", from-1, err)
		}
		if ok && spv.Reverse32(fetched[0].parsed.PrevBlockHash) != prev {
			return fmt.Errorf("height %d does not extend recorded height %d", from, from-1)
		}
	}
	for i := 1; i < len(fetched); i++ {
		if spv.Reverse32(fetched[i].parsed.PrevBlockHash) != fetched[i-1].hash {
			return fmt.Errorf("height %d does not extend height %d", from+uint64(i), from+uint64(i)-1)
		}
	}
	return nil
}
