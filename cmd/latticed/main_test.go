package main

import (
	"bytes"
	"testing"

	"lattice.dev/node/internal/config"
	"lattice.dev/node/internal/p2p"
	"lattice.dev/node/internal/primitives"
)

type testLogger struct{}

func (testLogger) Info(msg string, args ...any) {}

func testConfig(dataDir string) config.Config {
	cfg := config.Default()
	cfg.DataDir = dataDir
	return cfg
}

func TestRunDryRunOK(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	var errOut bytes.Buffer

	code := run([]string{"--dry-run", "--datadir", dir, "--log-level", "info"}, &out, &errOut)
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d (stderr=%q)", code, errOut.String())
	}
	if out.Len() == 0 {
		t.Fatalf("expected stdout config dump")
	}
}

func TestRunRejectsBadLogLevel(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	var errOut bytes.Buffer

	code := run([]string{"--dry-run", "--datadir", dir, "--log-level", "shout"}, &out, &errOut)
	if code != 3 {
		t.Fatalf("expected exit code 3 for invalid log level, got %d", code)
	}
}

func TestMultiStringFlagSetAppends(t *testing.T) {
	var m multiStringFlag
	if err := m.Set("a"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := m.Set("b"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got := m.String(); got != "a,b" {
		t.Fatalf("string=%q, want %q", got, "a,b")
	}
}

func TestBootstrapWiresGenesis(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)

	n, err := bootstrap(cfg, testLogger{})
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	defer n.store.Close()

	if n.genesisHash.IsZero() {
		t.Fatal("expected non-zero genesis hash")
	}
	has, err := n.store.HasBlock(n.genesisHash)
	if err != nil {
		t.Fatalf("HasBlock: %v", err)
	}
	if !has {
		t.Fatal("expected genesis block to be persisted")
	}
}

// TestBootstrapReloadsPersistedDAGOnRestart confirms a second bootstrap
// against the same data directory rebuilds dagstore from what was
// durably persisted, rather than stranding everything beyond genesis
// behind a freshly emptied in-memory working set.
func TestBootstrapReloadsPersistedDAGOnRestart(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)

	n1, err := bootstrap(cfg, testLogger{})
	if err != nil {
		t.Fatalf("bootstrap (first boot): %v", err)
	}

	child := primitives.Header{
		Version:        1,
		SelectedParent: n1.genesisHash,
		Timestamp:      1,
		Height:         1,
		BlueScore:      1,
		BlueWork:       []byte{0x01},
		StateRoot:      primitives.ZeroHash,
		TxRoot:         primitives.ZeroHash,
		ReceiptRoot:    primitives.ZeroHash,
		ArtifactRoot:   primitives.ZeroHash,
	}
	childHash := primitives.HeaderHash(child)
	childBlock := primitives.Block{Header: child}
	childBytes := p2p.EncodeBlock(childBlock)

	if err := n1.store.PutBlock(childHash, child, childBytes); err != nil {
		t.Fatalf("PutBlock: %v", err)
	}
	if err := n1.dag.StoreBlock(childHash, child, childBytes); err != nil {
		t.Fatalf("dag.StoreBlock: %v", err)
	}
	n1.store.Close()

	n2, err := bootstrap(cfg, testLogger{})
	if err != nil {
		t.Fatalf("bootstrap (restart): %v", err)
	}
	defer n2.store.Close()

	if n2.genesisHash != n1.genesisHash {
		t.Fatalf("genesis hash changed across restart: %s != %s", n2.genesisHash, n1.genesisHash)
	}
	if !n2.dag.Has(n1.genesisHash) {
		t.Fatal("expected reloaded dagstore to contain genesis")
	}
	if !n2.dag.Has(childHash) {
		t.Fatal("expected reloaded dagstore to contain the block persisted before restart")
	}
}
