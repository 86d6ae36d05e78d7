package dagstore

import (
	"testing"

	"lattice.dev/node/internal/nodeerrors"
	"lattice.dev/node/internal/primitives"
)

func genesisHeader() primitives.Header {
	return primitives.Header{Version: 1, Height: 0}
}

func childHeader(parent primitives.Hash, height, blueScore uint64) primitives.Header {
	return primitives.Header{
		Version:        1,
		SelectedParent: parent,
		Height:         height,
		BlueScore:      blueScore,
	}
}

func TestStoreBlockRejectsMissingParent(t *testing.T) {
	s := New(0)
	ch := childHeader(primitives.Hash{0xAB}, 1, 1)
	hash := primitives.HeaderHash(ch)

	err := s.StoreBlock(hash, ch, []byte("body"))
	if err == nil {
		t.Fatalf("expected missing-parent error")
	}
	if nodeerrors.KindOf(err) != nodeerrors.KindMissingData {
		t.Fatalf("expected KindMissingData, got %v", nodeerrors.KindOf(err))
	}
	if s.Has(hash) {
		t.Fatalf("block should not have been stored")
	}
}

func TestStoreBlockGenesisHasNoParents(t *testing.T) {
	s := New(0)
	gh := genesisHeader()
	gHash := primitives.HeaderHash(gh)
	if err := s.StoreBlock(gHash, gh, []byte("g")); err != nil {
		t.Fatalf("StoreBlock genesis: %v", err)
	}
	if !s.Has(gHash) {
		t.Fatalf("expected genesis present")
	}
	tips := s.Tips()
	if len(tips) != 1 || tips[0] != gHash {
		t.Fatalf("expected genesis as sole tip, got %v", tips)
	}
}

func TestStoreBlockIsIdempotent(t *testing.T) {
	s := New(0)
	gh := genesisHeader()
	gHash := primitives.HeaderHash(gh)
	if err := s.StoreBlock(gHash, gh, []byte("g")); err != nil {
		t.Fatalf("first StoreBlock: %v", err)
	}
	if err := s.StoreBlock(gHash, gh, []byte("g")); err != nil {
		t.Fatalf("re-insert should be a no-op, got: %v", err)
	}
}

func TestTipSetAdvancesAndParentChildSymmetry(t *testing.T) {
	s := New(0)
	gh := genesisHeader()
	gHash := primitives.HeaderHash(gh)
	if err := s.StoreBlock(gHash, gh, []byte("g")); err != nil {
		t.Fatalf("StoreBlock genesis: %v", err)
	}

	ch := childHeader(gHash, 1, 1)
	cHash := primitives.HeaderHash(ch)
	if err := s.StoreBlock(cHash, ch, []byte("c")); err != nil {
		t.Fatalf("StoreBlock child: %v", err)
	}

	tips := s.Tips()
	if len(tips) != 1 || tips[0] != cHash {
		t.Fatalf("expected child to replace genesis as sole tip, got %v", tips)
	}

	children := s.Children(gHash)
	if len(children) != 1 || children[0] != cHash {
		t.Fatalf("expected genesis's children to contain %s, got %v", cHash, children)
	}
	parents := s.Parents(cHash)
	if len(parents) != 1 || parents[0] != gHash {
		t.Fatalf("expected child's parents to contain %s, got %v", gHash, parents)
	}
}

func TestIsAncestorWalksSelectedParentChain(t *testing.T) {
	s := New(0)
	gh := genesisHeader()
	gHash := primitives.HeaderHash(gh)
	_ = s.StoreBlock(gHash, gh, []byte("g"))

	ch1 := childHeader(gHash, 1, 1)
	c1Hash := primitives.HeaderHash(ch1)
	_ = s.StoreBlock(c1Hash, ch1, []byte("c1"))

	ch2 := childHeader(c1Hash, 2, 2)
	c2Hash := primitives.HeaderHash(ch2)
	_ = s.StoreBlock(c2Hash, ch2, []byte("c2"))

	if !s.IsAncestor(gHash, c2Hash, 10) {
		t.Fatalf("expected genesis to be an ancestor of c2")
	}
	if s.IsAncestor(c2Hash, gHash, 10) {
		t.Fatalf("did not expect c2 to be an ancestor of genesis")
	}
}

func TestBlueScoreIndex(t *testing.T) {
	s := New(0)
	gh := genesisHeader()
	gHash := primitives.HeaderHash(gh)
	_ = s.StoreBlock(gHash, gh, []byte("g"))

	s.SetBlueScore(gHash, 42)
	score, ok := s.BlueScore(gHash)
	if !ok || score != 42 {
		t.Fatalf("expected blue score 42, got %d ok=%v", score, ok)
	}
}

func TestMemoryBudgetEvictsOldestBody(t *testing.T) {
	s := New(10) // tiny budget forces eviction
	gh := genesisHeader()
	gHash := primitives.HeaderHash(gh)
	_ = s.StoreBlock(gHash, gh, []byte("0123456789")) // exactly fills budget

	ch := childHeader(gHash, 1, 1)
	cHash := primitives.HeaderHash(ch)
	_ = s.StoreBlock(cHash, ch, []byte("abcdefghij"))

	if _, ok := s.GetBody(gHash); ok {
		t.Fatalf("expected genesis body to have been evicted")
	}
	if _, ok := s.GetBody(cHash); !ok {
		t.Fatalf("expected most recent body to remain cached")
	}
}
