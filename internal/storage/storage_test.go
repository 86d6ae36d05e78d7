package storage

import (
	"path/filepath"
	"testing"

	"lattice.dev/node/internal/primitives"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "kv.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func genesisHeader() primitives.Header {
	return primitives.Header{Version: 1, Height: 0}
}

func childHeader(parent primitives.Hash, height uint64, blueScore uint64) primitives.Header {
	return primitives.Header{
		Version:        1,
		SelectedParent: parent,
		Height:         height,
		BlueScore:      blueScore,
		Timestamp:      uint64(height) * 10,
	}
}

// TestPutBlockRoundTrip is spec.md §8 invariant 1.
func TestPutBlockRoundTrip(t *testing.T) {
	s := openTestStore(t)
	h := genesisHeader()
	hash := primitives.HeaderHash(h)
	blockBytes := []byte("genesis-block-bytes")

	if err := s.PutBlock(hash, h, blockBytes); err != nil {
		t.Fatalf("PutBlock: %v", err)
	}
	got, ok, err := s.GetBlock(hash)
	if err != nil || !ok {
		t.Fatalf("GetBlock: ok=%v err=%v", ok, err)
	}
	if string(got) != string(blockBytes) {
		t.Fatalf("block bytes mismatch")
	}
	has, err := s.HasBlock(hash)
	if err != nil || !has {
		t.Fatalf("HasBlock: has=%v err=%v", has, err)
	}
}

func TestPutBlockIdempotent(t *testing.T) {
	s := openTestStore(t)
	h := genesisHeader()
	hash := primitives.HeaderHash(h)
	blockBytes := []byte("same-bytes")

	if err := s.PutBlock(hash, h, blockBytes); err != nil {
		t.Fatalf("first PutBlock: %v", err)
	}
	if err := s.PutBlock(hash, h, blockBytes); err != nil {
		t.Fatalf("re-insert should be a no-op, got: %v", err)
	}
}

func TestPutBlockCollisionIsIntegrityError(t *testing.T) {
	s := openTestStore(t)
	h := genesisHeader()
	hash := primitives.HeaderHash(h)

	if err := s.PutBlock(hash, h, []byte("a")); err != nil {
		t.Fatalf("PutBlock: %v", err)
	}
	err := s.PutBlock(hash, h, []byte("b"))
	if err == nil {
		t.Fatalf("expected collision error")
	}
}

// TestParentChildSymmetry is spec.md §8 invariant 2.
func TestParentChildSymmetry(t *testing.T) {
	s := openTestStore(t)
	gh := genesisHeader()
	gHash := primitives.HeaderHash(gh)
	if err := s.PutBlock(gHash, gh, []byte("g")); err != nil {
		t.Fatalf("PutBlock genesis: %v", err)
	}

	ch := childHeader(gHash, 1, 1)
	cHash := primitives.HeaderHash(ch)
	if err := s.PutBlock(cHash, ch, []byte("c")); err != nil {
		t.Fatalf("PutBlock child: %v", err)
	}

	children, err := s.GetChildren(gHash)
	if err != nil {
		t.Fatalf("GetChildren: %v", err)
	}
	found := false
	for _, c := range children {
		if c == cHash {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected child %s in parent's child list", cHash)
	}
}

func TestTipSetUpdatesOnInsert(t *testing.T) {
	s := openTestStore(t)
	gh := genesisHeader()
	gHash := primitives.HeaderHash(gh)
	if err := s.PutBlock(gHash, gh, []byte("g")); err != nil {
		t.Fatalf("PutBlock: %v", err)
	}
	tips, err := s.GetTips()
	if err != nil {
		t.Fatalf("GetTips: %v", err)
	}
	if len(tips) != 1 || tips[0] != gHash {
		t.Fatalf("expected genesis to be the sole tip, got %v", tips)
	}

	ch := childHeader(gHash, 1, 1)
	cHash := primitives.HeaderHash(ch)
	if err := s.PutBlock(cHash, ch, []byte("c")); err != nil {
		t.Fatalf("PutBlock: %v", err)
	}
	tips, err = s.GetTips()
	if err != nil {
		t.Fatalf("GetTips: %v", err)
	}
	if len(tips) != 1 || tips[0] != cHash {
		t.Fatalf("expected child to replace genesis as sole tip, got %v", tips)
	}
}

func TestGetBlockByHeight(t *testing.T) {
	s := openTestStore(t)
	gh := genesisHeader()
	gHash := primitives.HeaderHash(gh)
	if err := s.PutBlock(gHash, gh, []byte("g")); err != nil {
		t.Fatalf("PutBlock: %v", err)
	}
	got, ok, err := s.GetBlockByHeight(0)
	if err != nil || !ok || got != gHash {
		t.Fatalf("GetBlockByHeight(0): got=%s ok=%v err=%v", got, ok, err)
	}
}

func TestDeleteBlockRepairsRelations(t *testing.T) {
	s := openTestStore(t)
	gh := genesisHeader()
	gHash := primitives.HeaderHash(gh)
	if err := s.PutBlock(gHash, gh, []byte("g")); err != nil {
		t.Fatalf("PutBlock: %v", err)
	}
	ch := childHeader(gHash, 1, 1)
	cHash := primitives.HeaderHash(ch)
	if err := s.PutBlock(cHash, ch, []byte("c")); err != nil {
		t.Fatalf("PutBlock: %v", err)
	}

	if err := s.DeleteBlock(cHash); err != nil {
		t.Fatalf("DeleteBlock: %v", err)
	}
	has, err := s.HasBlock(cHash)
	if err != nil || has {
		t.Fatalf("expected child to be gone, has=%v err=%v", has, err)
	}
	tips, err := s.GetTips()
	if err != nil {
		t.Fatalf("GetTips: %v", err)
	}
	if len(tips) != 1 || tips[0] != gHash {
		t.Fatalf("expected genesis to become the tip again, got %v", tips)
	}
}
