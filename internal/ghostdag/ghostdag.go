// Package ghostdag computes blue-set coloring, blue-score, and blue-work
// for a block given its parents and the network's k parameter
// (spec.md §4.3), grounded on the tip-scoring contract in
// original_source/lattice-v3/core/consensus/src/tip_selection.rs (which
// calls into a ghostdag module for calculate_blue_score/get_blue_score)
// and on the teacher's "anticone size bounded by k" coloring rule.
package ghostdag

import (
	"sort"

	"lattice.dev/node/internal/dagstore"
	"lattice.dev/node/internal/nodeerrors"
	"lattice.dev/node/internal/primitives"
)

// Params mirrors primitives.GhostDAGParams; K bounds anticone size and
// PruningWindow bounds traversal depth, per spec.md §4.3's edge cases.
type Params struct {
	K             uint32
	PruningWindow uint64
}

// Result is the coloring outcome for a single block: its full blue set
// (including itself), the newly-blue members contributed by this block's
// merge region, blue_score, and blue_work.
type Result struct {
	BlueSet   map[primitives.Hash]struct{}
	NewlyBlue []primitives.Hash
	BlueScore uint64
	BlueWork  uint64
}

// Engine computes coloring against a dagstore.Store. It caches each
// block's blue set by hash so repeated queries (tip selection, chain
// selection) don't re-walk the DAG.
type Engine struct {
	store  *dagstore.Store
	params Params

	cache map[primitives.Hash]Result
}

func New(store *dagstore.Store, params Params) *Engine {
	return &Engine{
		store:  store,
		params: params,
		cache:  make(map[primitives.Hash]Result),
	}
}

// Color computes the GhostDAG coloring for block hash, whose header is
// already present in the store (StoreBlock's missing-parent contract
// guarantees ancestors precede descendants).
//
// Genesis (height 0, no parents) is the base case: blue_set = {genesis},
// blue_score = 0, blue_work = 0, per spec.md §4.3's edge case.
func (e *Engine) Color(hash primitives.Hash) (Result, error) {
	if r, ok := e.cache[hash]; ok {
		return r, nil
	}

	header, ok := e.store.Header(hash)
	if !ok {
		return Result{}, nodeerrors.MissingData("GHOSTDAG_MISSING_BLOCK", hash.String())
	}

	if header.Height == 0 {
		r := Result{
			BlueSet:   map[primitives.Hash]struct{}{hash: {}},
			NewlyBlue: []primitives.Hash{hash},
			BlueScore: 0,
			BlueWork:  0,
		}
		e.cache[hash] = r
		return r, nil
	}

	parents := e.store.Parents(hash)
	if len(parents) == 0 {
		return Result{}, nodeerrors.Integrity("GHOSTDAG_NONGENESIS_NO_PARENTS", hash.String())
	}
	selectedParent := header.SelectedParent

	parentResult, err := e.Color(selectedParent)
	if err != nil {
		return Result{}, err
	}

	// Structural contradiction: the selected parent's blue set must not
	// already contain this block (a cycle, which cannot happen in a
	// well-formed DAG but is checked defensively per spec.md §4.3).
	if _, cyclic := parentResult.BlueSet[hash]; cyclic {
		return Result{}, nodeerrors.Integrity("GHOSTDAG_CYCLE", hash.String())
	}

	blueSet := make(map[primitives.Hash]struct{}, len(parentResult.BlueSet)+len(parents))
	for h := range parentResult.BlueSet {
		blueSet[h] = struct{}{}
	}
	blueSet[hash] = struct{}{}

	candidates := e.mergeRegionCandidates(hash, parents, selectedParent)

	var newlyBlue []primitives.Hash
	for _, c := range candidates {
		if _, already := blueSet[c]; already {
			continue
		}
		anticoneSize := e.anticoneSizeAgainst(c, blueSet)
		if anticoneSize <= int(e.params.K) {
			blueSet[c] = struct{}{}
			newlyBlue = append(newlyBlue, c)
		}
	}

	r := Result{
		BlueSet:   blueSet,
		NewlyBlue: newlyBlue,
		// Genesis scores 0, so each block adds 1 for itself plus its
		// newly-blue blocks: the blue set's size less one.
		BlueScore: parentResult.BlueScore + 1 + uint64(len(newlyBlue)),
		BlueWork:  parentResult.BlueWork + uint64(len(newlyBlue)),
	}
	e.cache[hash] = r
	return r, nil
}

// mergeRegionCandidates collects the merge-parents (and, transitively,
// their non-selected-parent ancestors within pruning_window) in
// deterministic ascending-hash order, matching spec.md §4.3's "walk
// candidates from B's merge region in a deterministic order (by hash
// ascending)".
func (e *Engine) mergeRegionCandidates(self primitives.Hash, parents []primitives.Hash, selectedParent primitives.Hash) []primitives.Hash {
	seen := map[primitives.Hash]struct{}{self: {}, selectedParent: {}}
	var out []primitives.Hash

	var walk func(h primitives.Hash, depth uint64)
	walk = func(h primitives.Hash, depth uint64) {
		if _, ok := seen[h]; ok {
			return
		}
		seen[h] = struct{}{}
		out = append(out, h)
		if e.params.PruningWindow > 0 && depth >= e.params.PruningWindow {
			// Beyond the pruning window ancestors are assumed blue and
			// are not walked further (spec.md §4.3).
			return
		}
		for _, p := range e.store.Parents(h) {
			walk(p, depth+1)
		}
	}

	for _, p := range parents {
		if p == selectedParent {
			continue
		}
		walk(p, 0)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// anticoneSizeAgainst counts how many members of blueSet are NOT
// ancestors of candidate and candidate is not an ancestor of them —
// i.e. the portion of candidate's anticone already colored blue. The
// traversal is bounded by pruning_window.
func (e *Engine) anticoneSizeAgainst(candidate primitives.Hash, blueSet map[primitives.Hash]struct{}) int {
	maxDepth := int(e.params.PruningWindow)
	if maxDepth <= 0 {
		maxDepth = 1 << 20
	}
	count := 0
	for blue := range blueSet {
		if blue == candidate {
			continue
		}
		if e.store.IsAncestor(candidate, blue, maxDepth) || e.store.IsAncestor(blue, candidate, maxDepth) {
			continue
		}
		count++
	}
	return count
}

// BlueScore is a convenience accessor used by tip/chain selection; it
// colors the block (using the cache) and returns just the score.
func (e *Engine) BlueScore(hash primitives.Hash) (uint64, error) {
	r, err := e.Color(hash)
	if err != nil {
		return 0, err
	}
	return r.BlueScore, nil
}

func (e *Engine) BlueWork(hash primitives.Hash) (uint64, error) {
	r, err := e.Color(hash)
	if err != nil {
		return 0, err
	}
	return r.BlueWork, nil
}

// InvalidateFrom drops cached colorings for hash and is a safe default
// whenever the caller suspects the DAG changed upstream of it (e.g.
// after a pruning pass); Color will simply recompute on next access.
func (e *Engine) InvalidateFrom(hash primitives.Hash) {
	delete(e.cache, hash)
}
