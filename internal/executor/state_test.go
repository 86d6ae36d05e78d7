package executor

import (
	"path/filepath"
	"testing"

	"lattice.dev/node/internal/primitives"
	"lattice.dev/node/internal/storage"
)

func openTestState(t *testing.T) (*State, *storage.Store) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.Open(filepath.Join(dir, "state.db"))
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	state, err := Open(store)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return state, store
}

func TestStateSetGetAccountRoundtrip(t *testing.T) {
	state, _ := openTestState(t)
	var addr primitives.Address
	addr[0] = 1

	state.SetAccount(addr, primitives.AccountState{Nonce: 3, Balance: primitives.NewU256(500)})
	got := state.GetAccount(addr)
	if got.Nonce != 3 || got.Balance.Uint64() != 500 {
		t.Fatalf("got %+v", got)
	}
}

func TestStateCommitPersistsAcrossReopen(t *testing.T) {
	state, store := openTestState(t)
	var addr primitives.Address
	addr[0] = 2
	state.SetAccount(addr, primitives.AccountState{Nonce: 1, Balance: primitives.NewU256(42)})
	root, err := state.Commit()
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if root.IsZero() {
		t.Fatal("expected non-zero root with one account")
	}

	reopened, err := Open(store)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got := reopened.GetAccount(addr)
	if got.Nonce != 1 || got.Balance.Uint64() != 42 {
		t.Fatalf("got %+v after reopen", got)
	}
	if reopened.Root() != root {
		t.Fatal("root mismatch after reopen")
	}
}

// TestStateRevertToSnapshot confirms a call-frame's writes (storage and
// account mutations alike) are fully undone by reverting to a snapshot
// taken before them, matching the EVM REVERT-discards-journal contract.
func TestStateRevertToSnapshot(t *testing.T) {
	state, _ := openTestState(t)
	var addr primitives.Address
	addr[0] = 3
	var slot, value primitives.Hash
	slot[0] = 1
	value[0] = 0xFF

	state.SetAccount(addr, primitives.AccountState{Nonce: 1, Balance: primitives.NewU256(100)})
	snap := state.Snapshot()

	state.SetAccount(addr, primitives.AccountState{Nonce: 2, Balance: primitives.NewU256(999)})
	state.SetStorage(addr, slot, value)

	state.RevertToSnapshot(snap)

	got := state.GetAccount(addr)
	if got.Nonce != 1 || got.Balance.Uint64() != 100 {
		t.Fatalf("expected pre-snapshot account state, got %+v", got)
	}
	if state.GetStorage(addr, slot) != (primitives.Hash{}) {
		t.Fatal("expected storage write to be reverted")
	}
}

func TestStateCodeRoundtrip(t *testing.T) {
	state, _ := openTestState(t)
	var addr primitives.Address
	addr[0] = 4
	code := []byte{0x60, 0x01, 0x60, 0x02, 0x01}

	codeHash, err := state.SetCode(addr, code)
	if err != nil {
		t.Fatalf("SetCode: %v", err)
	}
	if codeHash.IsZero() {
		t.Fatal("expected non-zero code hash")
	}
	got := state.GetCode(addr)
	if string(got) != string(code) {
		t.Fatalf("got %x, want %x", got, code)
	}
}
