package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"btcspv.dev/spv/node"
	"btcspv.dev/spv/node/metrics"
	"btcspv.dev/spv/spv"
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// report prints a verification outcome. Malformed input and mismatches are
// answers; store or transport failures are errors.
func (a *app) report(ok bool, err error) error {
	if err != nil && spv.CodeOf(err) == "" {
		return err
	}
	out := newVerifyOutput(ok, err)
	if perr := a.printJSON(out); perr != nil {
		return perr
	}
	if !out.Verified {
		return errNotVerified
	}
	return nil
}

func newSyncCmd(a *app) *cobra.Command {
	var from, to uint64
	var progress bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Record verified height to header-hash bindings from the chain source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext()
			defer stop()

			source, err := a.esplora()
			if err != nil {
				return err
			}
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			if !cmd.Flags().Changed("from") {
				if tip, _, ok, err := st.Tip(); err != nil {
					return err
				} else if ok {
					from = tip + 1
				}
			}
			if !cmd.Flags().Changed("to") {
				if to, err = source.TipHeight(ctx); err != nil {
					return err
				}
			}
			if from > to {
				a.logger.Info("Store is up to date", "tip", to)
				return a.printJSON(map[string]uint64{"from": from, "to": to, "recorded": 0})
			}
			opts := node.IndexerOptions{MaxConcurrency: a.cfg.MaxConcurrency, Logger: a.logger}
			if progress {
				opts.Progress = a.stderr
			}
			ix, err := node.NewIndexer(source, st, opts)
			if err != nil {
				return err
			}
			res, err := ix.Sync(ctx, from, to)
			if err != nil {
				return err
			}
			return a.printJSON(map[string]any{
				"from":     res.From,
				"to":       res.To,
				"recorded": res.Recorded,
				"tip_hash": displayHex(res.TipHash),
			})
		},
	}
	cmd.Flags().Uint64Var(&from, "from", 0, "first height (default: store tip + 1)")
	cmd.Flags().Uint64Var(&to, "to", 0, "last height (default: source tip)")
	cmd.Flags().BoolVar(&progress, "progress", false, "show a progress bar on stderr")
	return cmd
}

func newTipCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tip",
		Short: "Print the highest recorded height",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			height, hash, ok, err := st.Tip()
			if err != nil {
				return err
			}
			if !ok {
				return a.printJSON(map[string]any{"empty": true})
			}
			return a.printJSON(map[string]any{"height": height, "hash": displayHex(hash)})
		},
	}
}

func newVerifyHeaderCmd(a *app) *cobra.Command {
	var height uint64
	var headerHex string
	cmd := &cobra.Command{
		Use:   "verify-header",
		Short: "Check a header against the hash recorded at a height",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			header, err := parseHeaderHex(headerHex)
			if err != nil {
				return err
			}
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			c, err := node.NewChecker(st, nil, a.logger)
			if err != nil {
				return err
			}
			return a.report(c.VerifyBlockHeader(header, height))
		},
	}
	cmd.Flags().Uint64Var(&height, "height", 0, "block height")
	cmd.Flags().StringVar(&headerHex, "header", "", "80-byte header, hex")
	_ = cmd.MarkFlagRequired("height")
	_ = cmd.MarkFlagRequired("header")
	return cmd
}

type proofFlags struct {
	txid   string
	header string
	index  uint64
	path   []string
}

func (p *proofFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&p.txid, "txid", "", "transaction id, display order hex")
	cmd.Flags().StringVar(&p.header, "header", "", "80-byte block header, hex")
	cmd.Flags().Uint64Var(&p.index, "index", 0, "transaction index in the block")
	cmd.Flags().StringSliceVar(&p.path, "path", nil, "sibling hashes leaf to root, display order hex")
	_ = cmd.MarkFlagRequired("txid")
}

func (p *proofFlags) parse() ([32]byte, []byte, spv.MerkleProof, error) {
	txid, err := parseDisplayHash("txid", p.txid)
	if err != nil {
		return txid, nil, spv.MerkleProof{}, err
	}
	var header []byte
	if p.header != "" {
		if header, err = parseHeaderHex(p.header); err != nil {
			return txid, nil, spv.MerkleProof{}, err
		}
	}
	proof, err := parseProof(p.index, p.path)
	return txid, header, proof, err
}

func newVerifyProofCmd(a *app) *cobra.Command {
	var pf proofFlags
	cmd := &cobra.Command{
		Use:   "verify-proof",
		Short: "Check a Merkle path from a txid to the root in a header",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			txid, header, proof, err := pf.parse()
			if err != nil {
				return err
			}
			root, err := spv.ExtractMerkleRoot(header)
			if err != nil {
				return a.report(false, err)
			}
			ok, err := spv.VerifyMerkleProof(spv.Reverse32(txid), root, proof)
			metrics.ObserveVerification("verify_merkle_proof", ok, err)
			return a.report(ok, err)
		},
	}
	pf.register(cmd)
	_ = cmd.MarkFlagRequired("header")
	return cmd
}

func newWasMinedCmd(a *app) *cobra.Command {
	var pf proofFlags
	var height uint64
	cmd := &cobra.Command{
		Use:   "was-mined",
		Short: "Prove a transaction was mined at a recorded height",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			txid, header, proof, err := pf.parse()
			if err != nil {
				return err
			}
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			if header == nil {
				stored, ok, err := st.Header(height)
				if err != nil {
					return err
				}
				if !ok {
					return usageErr("no header recorded at height %d; pass --header", height)
				}
				header = stored
			}
			c, err := node.NewChecker(st, nil, a.logger)
			if err != nil {
				return err
			}
			return a.report(c.WasTxMined(height, txid, header, proof))
		},
	}
	pf.register(cmd)
	cmd.Flags().Uint64Var(&height, "height", 0, "block height (--header defaults to the header recorded there)")
	_ = cmd.MarkFlagRequired("height")
	return cmd
}

func newCheckTxCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check-tx TXID",
		Short: "Fetch a transaction's Merkle path from the chain source and prove it against the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			txid, err := parseDisplayHash("txid", args[0])
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()

			source, err := a.esplora()
			if err != nil {
				return err
			}
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			c, err := node.NewChecker(st, source, a.logger)
			if err != nil {
				return err
			}
			res, err := c.CheckTx(ctx, txid)
			if res == nil {
				return err
			}
			out := struct {
				verifyOutput
				BlockHeight uint64   `json:"block_height"`
				BlockHash   string   `json:"block_hash"`
				TxIndex     uint64   `json:"tx_index"`
				Path        []string `json:"path"`
			}{
				verifyOutput: newVerifyOutput(res.Mined, err),
				BlockHeight:  res.BlockHeight,
				BlockHash:    displayHex(res.BlockHash),
				TxIndex:      res.Proof.LeafIndex,
				Path:         displayPath(res.Proof),
			}
			if err != nil && spv.CodeOf(err) == "" {
				return err
			}
			if perr := a.printJSON(out); perr != nil {
				return perr
			}
			if !out.Verified {
				return errNotVerified
			}
			return nil
		},
	}
}

func newProofCmd(a *app) *cobra.Command {
	var height uint64
	var txidHex, blockFile string
	cmd := &cobra.Command{
		Use:   "proof",
		Short: "Build proof data for a transaction from its full block",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			txid, err := parseDisplayHash("txid", txidHex)
			if err != nil {
				return err
			}
			var pd *spv.ProofData
			if blockFile != "" {
				block, err := node.LoadBlockFile(blockFile)
				if err != nil {
					return err
				}
				if !cmd.Flags().Changed("height") {
					committed, ok, err := block.BIP34Height()
					if err != nil {
						return err
					}
					if !ok {
						return usageErr("--height required: block predates BIP34")
					}
					height = committed
				}
				if pd, err = spv.ProofDataForTxID(block, height, txid); err != nil {
					return err
				}
			} else {
				if !cmd.Flags().Changed("height") {
					return usageErr("--height required without --block-file")
				}
				ctx, stop := signalContext()
				defer stop()
				source, err := a.esplora()
				if err != nil {
					return err
				}
				if pd, err = node.BuildProof(ctx, source, height, txid); err != nil {
					return err
				}
			}
			return a.printJSON(newProofOutput(pd))
		},
	}
	cmd.Flags().Uint64Var(&height, "height", 0, "block height (default with --block-file: the coinbase BIP34 height)")
	cmd.Flags().StringVar(&txidHex, "txid", "", "transaction id, display order hex")
	cmd.Flags().StringVar(&blockFile, "block-file", "", "read the block from a file (raw or hex) instead of the chain source")
	_ = cmd.MarkFlagRequired("txid")
	return cmd
}

func newServeCmd(a *app) *cobra.Command {
	var interval time.Duration
	var follow bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose metrics and optionally follow the chain tip",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.MetricsAddr == "" {
				return usageErr("metrics_addr is required for serve")
			}
			ctx, stop := signalContext()
			defer stop()

			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			srv := &http.Server{Addr: a.cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("Serving metrics", "addr", a.cfg.MetricsAddr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			var followErr error
			if follow {
				followErr = a.follow(ctx, interval)
			} else {
				<-ctx.Done()
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
			if err := <-errCh; err != nil {
				return err
			}
			return followErr
		},
	}
	cmd.Flags().BoolVar(&follow, "follow", false, "sync new heights as the chain source reports them")
	cmd.Flags().DurationVar(&interval, "interval", time.Minute, "poll interval when following")
	return cmd
}

// follow polls the source tip and syncs anything new until ctx ends.
func (a *app) follow(ctx context.Context, interval time.Duration) error {
	source, err := a.esplora()
	if err != nil {
		return err
	}
	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	ix, err := node.NewIndexer(source, st, node.IndexerOptions{MaxConcurrency: a.cfg.MaxConcurrency, Logger: a.logger})
	if err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		tip, err := source.TipHeight(ctx)
		if err != nil {
			a.logger.Warn("Tip poll failed", "error", err)
		} else {
			var from uint64
			if h, _, ok, err := st.Tip(); err != nil {
				return err
			} else if ok {
				from = h + 1
			} else {
				from = tip
			}
			if from <= tip {
				if _, err := ix.Sync(ctx, from, tip); err != nil && ctx.Err() == nil {
					a.logger.Error("Sync failed", "from", from, "to", tip, "error", err)
				}
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
