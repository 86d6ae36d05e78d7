// Package config is the recognized-options surface of spec.md §6:
// GhostDAG and chain-selection tunables, mempool quotas, and model CAS
// parameters, all validated before any subsystem touches them.
// Grounded on the teacher's node/config.go field-and-validator shape
// (DefaultConfig/ValidateConfig/NormalizePeers), generalized from a
// single-chain UTXO config to this module's GhostDAG/EVM/model-CAS
// settings.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"lattice.dev/node/internal/mempool"
	"lattice.dev/node/internal/nodeerrors"
	"lattice.dev/node/internal/primitives"
)

// Config holds every recognized option from spec.md §6 plus the
// node-identity/network fields every example repo's config carries
// (data directory, bind address, peer list, log level).
type Config struct {
	Network  string   `json:"network"`
	DataDir  string   `json:"data_dir"`
	BindAddr string   `json:"bind_addr"`
	LogLevel string   `json:"log_level"`
	Peers    []string `json:"peers"`
	MaxPeers int      `json:"max_peers"`

	// GhostDAG / chain-selection tunables (spec.md §6).
	K             uint32 `json:"k"`
	MaxReorgDepth uint64 `json:"max_reorg_depth"`
	MinParents    int    `json:"min_parents"`
	MaxParents    int    `json:"max_parents"`
	PruningWindow uint64 `json:"pruning_window"`

	// Mempool admission (spec.md §6, §4.6).
	MempoolQuotaBytes  map[mempool.Class]uint64 `json:"mempool_quota_bytes"`
	MempoolMinGasPrice map[mempool.Class]uint64 `json:"mempool_min_gas_price"`
	MempoolNonceGapLimit uint64                 `json:"mempool_nonce_gap_limit"`

	ChainID uint64 `json:"chain_id"`

	ModelChunkSize int `json:"model_chunk_size"`
	MaxQueueMemory uint64 `json:"max_queue_memory"`
}

var allowedLogLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".lattice"
	}
	return filepath.Join(home, ".lattice")
}

// Default returns the recommended devnet configuration: k=18 (spec.md's
// worked example parameter), a conservative reorg ceiling, 1..8 parents
// per block, and the spec's stated model_chunk_size default of 256 MiB.
func Default() Config {
	return Config{
		Network:       "devnet",
		DataDir:       DefaultDataDir(),
		BindAddr:      "0.0.0.0:29111",
		Peers:         nil,
		LogLevel:      "info",
		MaxPeers:      64,
		K:             18,
		MaxReorgDepth: 1000,
		MinParents:    1,
		MaxParents:    8,
		PruningWindow: 100_000,
		MempoolQuotaBytes: map[mempool.Class]uint64{
			mempool.ClassStandard:    64 << 20,
			mempool.ClassAIInference: 32 << 20,
			mempool.ClassModelDeploy: 32 << 20,
		},
		MempoolMinGasPrice: map[mempool.Class]uint64{
			mempool.ClassStandard:    1,
			mempool.ClassAIInference: 1,
			mempool.ClassModelDeploy: 1,
		},
		ChainID:              1,
		ModelChunkSize:       256 << 20,
		MaxQueueMemory:       512 << 20,
		MempoolNonceGapLimit: 64,
	}
}

func NormalizePeers(raw ...string) []string {
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, token := range raw {
		for _, p := range strings.Split(token, ",") {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}

// Validate checks every recognized option, returning a KindInvalid
// nodeerrors.Error (spec.md §6's "configuration error" exit code 3)
// describing the first problem found.
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Network) == "" {
		return nodeerrors.Invalid("CONFIG_MISSING_NETWORK", "network is required")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return nodeerrors.Invalid("CONFIG_MISSING_DATA_DIR", "data_dir is required")
	}
	if err := validateAddr(cfg.BindAddr); err != nil {
		return nodeerrors.Wrap(nodeerrors.KindInvalid, "CONFIG_BAD_BIND_ADDR", "invalid bind_addr", err)
	}
	for _, peer := range cfg.Peers {
		if err := validateAddr(peer); err != nil {
			return nodeerrors.Wrap(nodeerrors.KindInvalid, "CONFIG_BAD_PEER_ADDR", fmt.Sprintf("invalid peer %q", peer), err)
		}
	}
	logLevel := strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if _, ok := allowedLogLevels[logLevel]; !ok {
		return nodeerrors.Invalid("CONFIG_BAD_LOG_LEVEL", fmt.Sprintf("invalid log_level %q", cfg.LogLevel))
	}
	if cfg.MaxPeers <= 0 || cfg.MaxPeers > 4096 {
		return nodeerrors.Invalid("CONFIG_BAD_MAX_PEERS", "max_peers must be in (0, 4096]")
	}
	if cfg.K == 0 {
		return nodeerrors.Invalid("CONFIG_BAD_K", "k must be > 0")
	}
	if cfg.MinParents < 1 || cfg.MinParents > cfg.MaxParents {
		return nodeerrors.Invalid("CONFIG_BAD_PARENT_BOUNDS", "require 1 <= min_parents <= max_parents")
	}
	if cfg.PruningWindow == 0 {
		return nodeerrors.Invalid("CONFIG_BAD_PRUNING_WINDOW", "pruning_window must be > 0")
	}
	if cfg.ChainID == 0 {
		return nodeerrors.Invalid("CONFIG_BAD_CHAIN_ID", "chain_id must be > 0")
	}
	if cfg.ModelChunkSize <= 0 {
		return nodeerrors.Invalid("CONFIG_BAD_MODEL_CHUNK_SIZE", "model_chunk_size must be > 0")
	}
	if cfg.MaxQueueMemory == 0 {
		return nodeerrors.Invalid("CONFIG_BAD_MAX_QUEUE_MEMORY", "max_queue_memory must be > 0")
	}
	return nil
}

func validateAddr(addr string) error {
	if strings.TrimSpace(addr) == "" {
		return errors.New("empty address")
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	if strings.TrimSpace(port) == "" {
		return errors.New("missing port")
	}
	if strings.Contains(host, " ") {
		return errors.New("invalid host")
	}
	return nil
}

// GhostDAGParams projects the subset of Config that primitives.Block
// carries per-block, per spec.md's "params carried per block" rule.
func (cfg Config) GhostDAGParams() primitives.GhostDAGParams {
	return primitives.GhostDAGParams{
		K:             cfg.K,
		PruningWindow: cfg.PruningWindow,
		MaxParents:    uint32(cfg.MaxParents),
	}
}

// MempoolConfig projects the subset of Config internal/mempool.New needs.
func (cfg Config) MempoolConfig() mempool.Config {
	minGas := make(map[mempool.Class]*primitives.U256, len(cfg.MempoolMinGasPrice))
	for class, price := range cfg.MempoolMinGasPrice {
		minGas[class] = primitives.NewU256(price)
	}
	return mempool.Config{
		QuotaBytes:    cfg.MempoolQuotaBytes,
		MinGasPrice:   minGas,
		NonceGapLimit: cfg.MempoolNonceGapLimit,
	}
}
