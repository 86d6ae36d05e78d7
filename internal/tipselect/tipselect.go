// Package tipselect chooses chain tips and block parents (spec.md §4.4),
// ported from original_source/lattice-v3/core/consensus/src/tip_selection.rs:
// the same three strategies (HighestBlueScore, HighestBlueScoreWithTieBreak,
// WeightedRandom) and the same selected-parent/merge-parents split in
// select_parents, adapted to the teacher's synchronous, error-returning
// style rather than async/await.
package tipselect

import (
	"math/rand"
	"sort"

	"lattice.dev/node/internal/dagstore"
	"lattice.dev/node/internal/ghostdag"
	"lattice.dev/node/internal/nodeerrors"
	"lattice.dev/node/internal/primitives"
)

type Strategy int

const (
	HighestBlueScore Strategy = iota
	HighestBlueScoreWithTieBreak
	WeightedRandom
)

type Selector struct {
	store    *dagstore.Store
	engine   *ghostdag.Engine
	strategy Strategy
	rng      *rand.Rand
}

// New constructs a Selector. rngSeed fixes WeightedRandom's draw so a
// given proposer can reproduce its own choice deterministically, per
// spec.md §4.4's "deterministic seed per block proposer allowed".
func New(store *dagstore.Store, engine *ghostdag.Engine, strategy Strategy, rngSeed int64) *Selector {
	return &Selector{
		store:    store,
		engine:   engine,
		strategy: strategy,
		rng:      rand.New(rand.NewSource(rngSeed)),
	}
}

type tipInfo struct {
	hash      primitives.Hash
	blueScore uint64
}

func (s *Selector) tipInfos() ([]tipInfo, error) {
	tips := s.store.Tips()
	if len(tips) == 0 {
		return nil, nodeerrors.ResourceExhaustion("TIPSELECT_NO_TIPS", "no tips available")
	}
	infos := make([]tipInfo, 0, len(tips))
	for _, h := range tips {
		score, err := s.engine.BlueScore(h)
		if err != nil {
			return nil, err
		}
		infos = append(infos, tipInfo{hash: h, blueScore: score})
	}
	return infos, nil
}

// SelectTip picks the single best current tip according to the
// configured strategy.
func (s *Selector) SelectTip() (primitives.Hash, error) {
	infos, err := s.tipInfos()
	if err != nil {
		return primitives.Hash{}, err
	}
	switch s.strategy {
	case HighestBlueScoreWithTieBreak:
		return selectHighestWithTieBreak(infos), nil
	case WeightedRandom:
		return s.selectWeightedRandom(infos), nil
	default:
		return selectHighest(infos), nil
	}
}

func selectHighest(infos []tipInfo) primitives.Hash {
	best := infos[0]
	for _, info := range infos[1:] {
		if info.blueScore > best.blueScore {
			best = info
		}
	}
	return best.hash
}

func selectHighestWithTieBreak(infos []tipInfo) primitives.Hash {
	maxScore := uint64(0)
	var candidates []primitives.Hash
	for _, info := range infos {
		switch {
		case info.blueScore > maxScore:
			maxScore = info.blueScore
			candidates = []primitives.Hash{info.hash}
		case info.blueScore == maxScore:
			candidates = append(candidates, info.hash)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Less(candidates[j]) })
	return candidates[0]
}

func (s *Selector) selectWeightedRandom(infos []tipInfo) primitives.Hash {
	total := 0.0
	for _, info := range infos {
		total += float64(info.blueScore)
	}
	if total == 0 {
		return infos[s.rng.Intn(len(infos))].hash
	}
	draw := s.rng.Float64() * total
	cumulative := 0.0
	for _, info := range infos {
		cumulative += float64(info.blueScore)
		if cumulative >= draw {
			return info.hash
		}
	}
	return infos[len(infos)-1].hash
}

// SelectParents implements spec.md §4.4's select_parents: tips sorted
// by blue_score desc / hash asc, the first becomes selected_parent, the
// next (maxParents-1) not already in the selected parent's past become
// merge_parents, and minParents <= 1+len(merge_parents) <= maxParents
// is enforced.
func (s *Selector) SelectParents(minParents, maxParents int) (primitives.Hash, []primitives.Hash, error) {
	infos, err := s.tipInfos()
	if err != nil {
		return primitives.Hash{}, nil, err
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].blueScore != infos[j].blueScore {
			return infos[i].blueScore > infos[j].blueScore
		}
		return infos[i].hash.Less(infos[j].hash)
	})

	selectedParent := infos[0].hash

	var mergeParents []primitives.Hash
	for _, info := range infos[1:] {
		if len(mergeParents) >= maxParents-1 {
			break
		}
		if s.store.IsAncestor(info.hash, selectedParent, 1<<20) {
			continue
		}
		mergeParents = append(mergeParents, info.hash)
	}

	total := 1 + len(mergeParents)
	if total < minParents || total > maxParents {
		return primitives.Hash{}, nil, nodeerrors.ResourceExhaustion("TIPSELECT_NO_TIPS", "parent count out of bounds")
	}
	return selectedParent, mergeParents, nil
}
