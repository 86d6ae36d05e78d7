package chainselect

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

func chain(t *testing.T, s *dagstore.Store, from primitives.Hash, n int, salt uint64) []primitives.Hash {
	t.Helper()
	out := make([]primitives.Hash, 0, n)
	cur := from
	height, ok := headerHeight(s, from)
	if !ok {
		t.Fatalf("unknown starting block")
	}
	for i := 1; i <= n; i++ {
		h := mustStore(t, s, primitives.Header{
			Version:        1,
			SelectedParent: cur,
			Height:         height + uint64(i),
			Timestamp:      salt + uint64(i),
		})
		out = append(out, h)
		cur = h
	}
	return out
}

func headerHeight(s *dagstore.Store, h primitives.Hash) (uint64, bool) {
	hdr, ok := s.Header(h)
	if !ok {
		return 0, false
	}
	return hdr.Height, true
}

// TestReorgAtDepth3 is spec.md's S4 scenario: chain A g->a1->a2->a3
// (blue_score 3), competing chain B g->b1->b2->b3->b4 (blue_score 4).
// Inserting b1..b4 in order should move the tip to b4 with one
// ReorgEvent of depth 3.
func TestReorgAtDepth3(t *testing.T) {
	s := dagstore.New(0)
	e := ghostdag.New(s, ghostdag.Params{K: 3, PruningWindow: 1000})
	g := mustStore(t, s, primitives.Header{Version: 1, Height: 0})

	sel, err := New(s, e, g, 10)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	aChain := chain(t, s, g, 3, 100)
	for _, h := range aChain {
		if err := sel.Observe(h); err != nil {
			t.Fatalf("Observe(a): %v", err)
		}
	}
	if sel.State().Tip != aChain[2] {
		t.Fatalf("expected tip a3, got %s", sel.State().Tip)
	}

	bChain := chain(t, s, g, 4, 200)
	for _, h := range bChain {
		if err := sel.Observe(h); err != nil {
			t.Fatalf("Observe(b): %v", err)
		}
	}

	if sel.State().Tip != bChain[3] {
		t.Fatalf("expected tip to become b4, got %s", sel.State().Tip)
	}
	events := sel.ReorgEvents()
	if len(events) != 1 {
		t.Fatalf("expected exactly one reorg event, got %d", len(events))
	}
	if events[0].Depth != 3 {
		t.Fatalf("expected reorg depth 3, got %d", events[0].Depth)
	}
	if events[0].OldTip != aChain[2] || events[0].NewTip != bChain[3] {
		t.Fatalf("unexpected reorg event endpoints: %+v", events[0])
	}
}

func TestReorgDepthExceededIsRejected(t *testing.T) {
	s := dagstore.New(0)
	e := ghostdag.New(s, ghostdag.Params{K: 3, PruningWindow: 1000})
	g := mustStore(t, s, primitives.Header{Version: 1, Height: 0})

	sel, err := New(s, e, g, 2) // max_reorg_depth=2, but S4 needs depth 3
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	aChain := chain(t, s, g, 3, 100)
	for _, h := range aChain {
		if err := sel.Observe(h); err != nil {
			t.Fatalf("Observe(a): %v", err)
		}
	}

	bChain := chain(t, s, g, 4, 200)
	var lastErr error
	for _, h := range bChain {
		lastErr = sel.Observe(h)
	}
	if lastErr == nil {
		t.Fatalf("expected ReorgDepthExceeded on final block")
	}
	// Tip should remain on chain A since the reorg was rejected.
	if sel.State().Tip != aChain[2] {
		t.Fatalf("expected tip to remain a3 after rejected reorg, got %s", sel.State().Tip)
	}
}

func TestExtendAppendsToSelectedChain(t *testing.T) {
	s := dagstore.New(0)
	e := ghostdag.New(s, ghostdag.Params{K: 3, PruningWindow: 1000})
	g := mustStore(t, s, primitives.Header{Version: 1, Height: 0})

	sel, err := New(s, e, g, 10)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c1 := mustStore(t, s, primitives.Header{Version: 1, SelectedParent: g, Height: 1})
	if err := sel.Observe(c1); err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if len(sel.State().SelectedChain) != 2 {
		t.Fatalf("expected selected_chain of length 2, got %d", len(sel.State().SelectedChain))
	}
	if sel.State().SelectedChain[1] != c1 {
		t.Fatalf("expected selected_chain to end in c1")
	}
}
