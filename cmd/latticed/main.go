// Command latticed is the node binary: it builds one Config, opens one
// Store, and wires every subsystem into a single bootstrap function, per
// spec.md §9's "no implicit singleton" rule — there is exactly one call
// site that constructs each root object, and everything downstream
// receives its dependencies by injection rather than reaching for a
// package-level global.
//
// The flag surface and dry-run/config-dump behavior follow
// cmd/rubin-node/main.go's shape, generalized from its UTXO
// chainstate/blockstore bring-up to this module's GhostDAG DAG store,
// executor, mempool, and model registry.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"lattice.dev/node/internal/chainselect"
	"lattice.dev/node/internal/config"
	"lattice.dev/node/internal/dagstore"
	"lattice.dev/node/internal/executor"
	"lattice.dev/node/internal/ghostdag"
	"lattice.dev/node/internal/logging"
	"lattice.dev/node/internal/mempool"
	"lattice.dev/node/internal/nodeerrors"
	"lattice.dev/node/internal/p2p"
	"lattice.dev/node/internal/primitives"
	"lattice.dev/node/internal/storage"
	"lattice.dev/node/internal/tipselect"
)

type multiStringFlag []string

func (m *multiStringFlag) String() string {
	if m == nil {
		return ""
	}
	return strings.Join(*m, ",")
}

func (m *multiStringFlag) Set(value string) error {
	*m = append(*m, value)
	return nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	defaults := config.Default()
	var peers multiStringFlag

	cfg := defaults
	fs := flag.NewFlagSet("latticed", flag.ContinueOnError)
	fs.SetOutput(stderr)

	peerCSV := fs.String("peers", "", "bootstrap peers, comma-separated host:port")
	fs.Var(&peers, "peer", "single bootstrap peer host:port (repeatable)")
	fs.StringVar(&cfg.Network, "network", defaults.Network, "network name (devnet/testnet/mainnet)")
	fs.StringVar(&cfg.DataDir, "datadir", defaults.DataDir, "node data directory")
	fs.StringVar(&cfg.BindAddr, "bind", defaults.BindAddr, "bind address host:port")
	fs.StringVar(&cfg.LogLevel, "log-level", defaults.LogLevel, "log level: debug|info|warn|error")
	fs.IntVar(&cfg.MaxPeers, "max-peers", defaults.MaxPeers, "max connected peers")
	fs.Uint64Var(&cfg.ChainID, "chain-id", defaults.ChainID, "chain id stamped on executed transactions")
	dryRun := fs.Bool("dry-run", false, "print effective config and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.Peers = config.NormalizePeers(append([]string{*peerCSV}, peers...)...)
	if err := config.Validate(cfg); err != nil {
		_, _ = fmt.Fprintf(stderr, "invalid config: %v\n", err)
		return 3
	}
	if err := printConfig(stdout, cfg); err != nil {
		_, _ = fmt.Fprintf(stderr, "config encode failed: %v\n", err)
		return 1
	}
	if *dryRun {
		return 0
	}

	log := logging.New(cfg.LogLevel, "latticed")

	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		_, _ = fmt.Fprintf(stderr, "datadir create failed: %v\n", err)
		return 2
	}

	n, err := bootstrap(cfg, log)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "bootstrap failed: %v\n", err)
		return 2
	}
	defer n.store.Close()

	_, _ = fmt.Fprintf(stdout, "latticed: genesis=%s tips=%d\n", n.genesisHash, len(mustTips(n.store)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("latticed running", "network", cfg.Network, "bind", cfg.BindAddr)
	<-ctx.Done()
	log.Info("latticed stopped")
	return 0
}

// node holds every root object bootstrap constructs, so callers (tests,
// future RPC front ends) can reach any subsystem without a second
// construction path.
type node struct {
	store       *storage.Store
	dag         *dagstore.Store
	engine      *ghostdag.Engine
	tips        *tipselect.Selector
	chain       *chainselect.Selector
	pool        *mempool.Pool
	state       *executor.State
	registry    *executor.ModelRegistry
	exec        *executor.BlockExecutor
	peers       *p2p.Manager
	genesisHash primitives.Hash
}

// bootstrap is the single construction site spec.md §9 requires: every
// subsystem is built here, in dependency order, and wired into the
// returned node rather than being reachable through a package global.
func bootstrap(cfg config.Config, log interface {
	Info(msg string, args ...any)
}) (*node, error) {
	store, err := storage.Open(storagePath(cfg.DataDir))
	if err != nil {
		return nil, err
	}

	dag := dagstore.New(int(cfg.MaxQueueMemory))

	genesis := genesisHeader(cfg)
	genesisHash := primitives.HeaderHash(genesis)

	if existingGenesisHash, hasGenesis, err := store.GetBlockByHeight(0); err != nil {
		store.Close()
		return nil, err
	} else if hasGenesis {
		// Restarting against a non-empty data directory: reload every
		// block durably reachable from the stored genesis instead of
		// re-inserting a fresh genesis into an otherwise-empty dagstore,
		// which would strand everything persisted beyond it.
		genesisHash = existingGenesisHash
		if err := reloadDAG(store, dag, genesisHash); err != nil {
			store.Close()
			return nil, err
		}
	} else {
		genesisBlock := primitives.Block{Header: genesis, GhostDAGParams: cfg.GhostDAGParams()}
		genesisBytes := p2p.EncodeBlock(genesisBlock)

		if err := store.PutBlock(genesisHash, genesis, genesisBytes); err != nil {
			store.Close()
			return nil, err
		}
		if err := dag.StoreBlock(genesisHash, genesis, genesisBytes); err != nil {
			store.Close()
			return nil, err
		}
	}

	engine := ghostdag.New(dag, ghostdag.Params{K: cfg.K, PruningWindow: cfg.PruningWindow})

	tips := tipselect.New(dag, engine, tipselect.HighestBlueScoreWithTieBreak, 0)

	chain, err := chainselect.New(dag, engine, genesisHash, cfg.MaxReorgDepth)
	if err != nil {
		store.Close()
		return nil, err
	}

	state, err := executor.Open(store)
	if err != nil {
		store.Close()
		return nil, err
	}

	pool := mempool.New(cfg.MempoolConfig(), func(sender [32]byte) uint64 {
		return state.GetAccount(primitives.DeriveAddress(sender)).Nonce
	})

	registry := executor.NewModelRegistry()
	exec := executor.NewBlockExecutor(store, registry, cfg.ChainID)

	peers := p2p.NewManager(p2p.DefaultRuntimeConfig(cfg.Network))

	log.Info("bootstrap complete", "genesis", genesisHash.String())

	return &node{
		store:       store,
		dag:         dag,
		engine:      engine,
		tips:        tips,
		chain:       chain,
		pool:        pool,
		state:       state,
		registry:    registry,
		exec:        exec,
		peers:       peers,
		genesisHash: genesisHash,
	}, nil
}

// reloadDAG repopulates dag, the in-memory DAG working set, from every
// block durably reachable from genesisHash via store's child-pointer
// index, so a restarted node doesn't lose DAG state beyond genesis
// (internal/storage holding it durably is useless if nothing reads it
// back on the next boot). Blocks are replayed in height order so a
// child is never offered to dagstore.Store.StoreBlock before its
// parents are already present.
func reloadDAG(store *storage.Store, dag *dagstore.Store, genesisHash primitives.Hash) error {
	type reachable struct {
		hash   primitives.Hash
		header primitives.Header
	}

	genesis, ok, err := store.GetHeader(genesisHash)
	if err != nil {
		return err
	}
	if !ok {
		return nodeerrors.MissingData("BOOTSTRAP_GENESIS_MISSING", genesisHash.String())
	}

	seen := map[primitives.Hash]struct{}{genesisHash: {}}
	all := []reachable{{hash: genesisHash, header: genesis}}
	queue := []primitives.Hash{genesisHash}

	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]
		children, err := store.GetChildren(parent)
		if err != nil {
			return err
		}
		for _, child := range children {
			if _, dup := seen[child]; dup {
				continue
			}
			seen[child] = struct{}{}
			header, ok, err := store.GetHeader(child)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			all = append(all, reachable{hash: child, header: header})
			queue = append(queue, child)
		}
	}

	sort.Slice(all, func(i, j int) bool { return all[i].header.Height < all[j].header.Height })

	for _, r := range all {
		body, ok, err := store.GetBlock(r.hash)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := dag.StoreBlock(r.hash, r.header, body); err != nil {
			return err
		}
	}
	return nil
}

// genesisHeader builds the height-0 header every node constructs
// identically from Config, so independently bootstrapped nodes on the
// same network agree on the starting point without a bundled snapshot.
func genesisHeader(cfg config.Config) primitives.Header {
	return primitives.Header{
		Version:      1,
		Timestamp:    0,
		Height:       0,
		BlueScore:    0,
		BlueWork:     []byte{0x00},
		StateRoot:    primitives.ZeroHash,
		TxRoot:       primitives.ZeroHash,
		ReceiptRoot:  primitives.ZeroHash,
		ArtifactRoot: primitives.ZeroHash,
	}
}

func mustTips(store *storage.Store) []primitives.Hash {
	tips, err := store.GetTips()
	if err != nil {
		return nil
	}
	return tips
}

func storagePath(dataDir string) string {
	return dataDir + "/chaindata"
}

func printConfig(w io.Writer, cfg config.Config) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(cfg)
}
