// Package chainselect maintains the canonical ChainState and decides
// whether a newly-colored block extends it or triggers a reorg
// (spec.md §4.5). The common-ancestor walk is adapted from the
// teacher's findForkPoint/pathFromAncestor pair in
// node/store/reorg.go — same parallel height-walk-then-lockstep
// algorithm, generalized from single-parent PrevHash links to
// GhostDAG's SelectedParent pointer.
package chainselect

import (
	"lattice.dev/node/internal/dagstore"
	"lattice.dev/node/internal/ghostdag"
	"lattice.dev/node/internal/nodeerrors"
	"lattice.dev/node/internal/primitives"
)

type ReorgEvent struct {
	OldTip primitives.Hash
	NewTip primitives.Hash
	Depth  uint64
	Reason string
}

type ChainState struct {
	Tip           primitives.Hash
	Height        uint64
	BlueScore     uint64
	BlueWork      uint64
	SelectedChain []primitives.Hash
}

type Selector struct {
	store         *dagstore.Store
	engine        *ghostdag.Engine
	maxReorgDepth uint64

	state       ChainState
	reorgEvents []ReorgEvent
}

// New seeds the selector on genesis; genesis must already be stored.
func New(store *dagstore.Store, engine *ghostdag.Engine, genesis primitives.Hash, maxReorgDepth uint64) (*Selector, error) {
	score, err := engine.BlueScore(genesis)
	if err != nil {
		return nil, err
	}
	work, err := engine.BlueWork(genesis)
	if err != nil {
		return nil, err
	}
	return &Selector{
		store:         store,
		engine:        engine,
		maxReorgDepth: maxReorgDepth,
		state: ChainState{
			Tip:           genesis,
			Height:        0,
			BlueScore:     score,
			BlueWork:      work,
			SelectedChain: []primitives.Hash{genesis},
		},
	}, nil
}

func (s *Selector) State() ChainState {
	return s.state
}

func (s *Selector) ReorgEvents() []ReorgEvent {
	return append([]ReorgEvent(nil), s.reorgEvents...)
}

// Observe applies spec.md §4.5's decision procedure for a newly-seen
// block hash, whose header (and GhostDAG coloring) are already stored.
func (s *Selector) Observe(hash primitives.Hash) error {
	header, ok := s.store.Header(hash)
	if !ok {
		return nodeerrors.MissingData("CHAINSELECT_MISSING_BLOCK", hash.String())
	}
	score, err := s.engine.BlueScore(hash)
	if err != nil {
		return err
	}

	if score <= s.state.BlueScore && !s.extendsTip(hash, header) {
		return nil // step 1: no action
	}

	if s.extendsTip(hash, header) {
		return s.extend(hash, score)
	}

	return s.reorg(hash, score)
}

func (s *Selector) extendsTip(hash primitives.Hash, header primitives.Header) bool {
	if header.SelectedParent == s.state.Tip {
		return true
	}
	for _, p := range s.store.Parents(hash) {
		if p == s.state.Tip {
			return true
		}
	}
	return false
}

func (s *Selector) extend(hash primitives.Hash, score uint64) error {
	work, err := s.engine.BlueWork(hash)
	if err != nil {
		return err
	}
	s.state.Tip = hash
	s.state.Height++
	s.state.BlueScore = score
	s.state.BlueWork = work
	s.state.SelectedChain = append(s.state.SelectedChain, hash)
	return nil
}

func (s *Selector) reorg(newTip primitives.Hash, newScore uint64) error {
	oldTip := s.state.Tip
	ancestor, depth, err := s.findForkPoint(oldTip, newTip)
	if err != nil {
		return err
	}
	if depth > s.maxReorgDepth {
		return nodeerrors.Policy("CHAINSELECT_REORG_DEPTH_EXCEEDED", "reorg depth exceeds max_reorg_depth")
	}

	path, err := s.pathFromAncestor(ancestor, newTip)
	if err != nil {
		return err
	}

	ancestorIdx := indexOf(s.state.SelectedChain, ancestor)
	if ancestorIdx < 0 {
		return nodeerrors.Integrity("CHAINSELECT_ANCESTOR_NOT_IN_CHAIN", ancestor.String())
	}
	newChain := append(append([]primitives.Hash(nil), s.state.SelectedChain[:ancestorIdx+1]...), path...)

	work, err := s.engine.BlueWork(newTip)
	if err != nil {
		return err
	}

	s.reorgEvents = append(s.reorgEvents, ReorgEvent{
		OldTip: oldTip,
		NewTip: newTip,
		Depth:  depth,
		Reason: "higher_blue_score",
	})

	s.state = ChainState{
		Tip:           newTip,
		Height:        uint64(len(newChain) - 1),
		BlueScore:     newScore,
		BlueWork:      work,
		SelectedChain: newChain,
	}
	return nil
}

func indexOf(chain []primitives.Hash, h primitives.Hash) int {
	for i, c := range chain {
		if c == h {
			return i
		}
	}
	return -1
}

// findForkPoint walks both selected-parent chains back to a common
// height, then in lockstep until the hashes meet, mirroring the
// teacher's findForkPoint. depth is measured from oldTip.
func (s *Selector) findForkPoint(oldTip, newTip primitives.Hash) (primitives.Hash, uint64, error) {
	a, b := oldTip, newTip
	ha, ok := s.store.Header(a)
	if !ok {
		return primitives.Hash{}, 0, nodeerrors.MissingData("CHAINSELECT_MISSING_BLOCK", a.String())
	}
	hb, ok := s.store.Header(b)
	if !ok {
		return primitives.Hash{}, 0, nodeerrors.MissingData("CHAINSELECT_MISSING_BLOCK", b.String())
	}

	var depth uint64
	for ha.Height > hb.Height {
		a = ha.SelectedParent
		depth++
		ha, ok = s.store.Header(a)
		if !ok {
			return primitives.Hash{}, 0, nodeerrors.MissingData("CHAINSELECT_MISSING_BLOCK", a.String())
		}
	}
	for hb.Height > ha.Height {
		b = hb.SelectedParent
		hb, ok = s.store.Header(b)
		if !ok {
			return primitives.Hash{}, 0, nodeerrors.MissingData("CHAINSELECT_MISSING_BLOCK", b.String())
		}
	}
	for a != b {
		a = ha.SelectedParent
		b = hb.SelectedParent
		depth++
		ha, ok = s.store.Header(a)
		if !ok {
			return primitives.Hash{}, 0, nodeerrors.MissingData("CHAINSELECT_MISSING_BLOCK", a.String())
		}
		hb, ok = s.store.Header(b)
		if !ok {
			return primitives.Hash{}, 0, nodeerrors.MissingData("CHAINSELECT_MISSING_BLOCK", b.String())
		}
	}
	return a, depth, nil
}

// pathFromAncestor returns the selected-parent-chain hashes from
// ancestor's child up to tip, in ascending-height order.
func (s *Selector) pathFromAncestor(ancestor, tip primitives.Hash) ([]primitives.Hash, error) {
	if ancestor == tip {
		return nil, nil
	}
	cur := tip
	out := make([]primitives.Hash, 0, 16)
	for cur != ancestor {
		out = append(out, cur)
		h, ok := s.store.Header(cur)
		if !ok {
			return nil, nodeerrors.MissingData("CHAINSELECT_MISSING_BLOCK", cur.String())
		}
		if h.Height == 0 {
			return nil, nodeerrors.Integrity("CHAINSELECT_ANCESTOR_NOT_FOUND", ancestor.String())
		}
		cur = h.SelectedParent
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
