package tipselect

import (
	"testing"

	"lattice.dev/node/internal/dagstore"
	"lattice.dev/node/internal/ghostdag"
	"lattice.dev/node/internal/primitives"
)

func mustStore(t *testing.T, s *dagstore.Store, header primitives.Header) primitives.Hash {
	t.Helper()
	hash := primitives.HeaderHash(header)
	if err := s.StoreBlock(hash, header, nil); err != nil {
		t.Fatalf("StoreBlock: %v", err)
	}
	return hash
}

func TestSelectTipNoTips(t *testing.T) {
	s := dagstore.New(0)
	e := ghostdag.New(s, ghostdag.Params{K: 3, PruningWindow: 100})
	sel := New(s, e, HighestBlueScore, 1)

	if _, err := sel.SelectTip(); err == nil {
		t.Fatalf("expected NoTips error on empty store")
	}
}

func TestSelectTipHighestBlueScore(t *testing.T) {
	s := dagstore.New(0)
	e := ghostdag.New(s, ghostdag.Params{K: 3, PruningWindow: 100})
	g := mustStore(t, s, primitives.Header{Version: 1, Height: 0})
	a := mustStore(t, s, primitives.Header{Version: 1, SelectedParent: g, Height: 1})
	b := mustStore(t, s, primitives.Header{Version: 1, SelectedParent: a, Height: 2})

	sel := New(s, e, HighestBlueScore, 1)
	tip, err := sel.SelectTip()
	if err != nil {
		t.Fatalf("SelectTip: %v", err)
	}
	if tip != b {
		t.Fatalf("expected deepest tip %s, got %s", b, tip)
	}
}

func TestSelectParentsRespectsBounds(t *testing.T) {
	s := dagstore.New(0)
	e := ghostdag.New(s, ghostdag.Params{K: 3, PruningWindow: 100})
	g := mustStore(t, s, primitives.Header{Version: 1, Height: 0})
	mustStore(t, s, primitives.Header{Version: 1, SelectedParent: g, Height: 1})

	sel := New(s, e, HighestBlueScoreWithTieBreak, 1)
	selected, merge, err := sel.SelectParents(1, 2)
	if err != nil {
		t.Fatalf("SelectParents: %v", err)
	}
	if selected == (primitives.Hash{}) {
		t.Fatalf("expected a non-zero selected parent")
	}
	if len(merge) > 1 {
		t.Fatalf("expected at most 1 merge parent, got %d", len(merge))
	}
}

func TestSelectParentsFailsBelowMin(t *testing.T) {
	s := dagstore.New(0)
	e := ghostdag.New(s, ghostdag.Params{K: 3, PruningWindow: 100})
	mustStore(t, s, primitives.Header{Version: 1, Height: 0})

	sel := New(s, e, HighestBlueScore, 1)
	if _, _, err := sel.SelectParents(2, 3); err == nil {
		t.Fatalf("expected failure: only one tip available but min_parents=2")
	}
}
