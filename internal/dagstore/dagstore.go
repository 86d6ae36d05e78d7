// Package dagstore is the in-memory DAG working set (spec.md §4.2): a
// memory-budgeted cache of block bodies (evicted oldest-stored first;
// reads do not refresh an entry) plus the live tip set and blue-score
// index, backed by two plain maps (parents, children) keyed by hash —
// "never by reference", per spec.md §9, so the graph stays serializable
// and free of ownership cycles.
package dagstore

import (
	"sync"

	"lattice.dev/node/internal/nodeerrors"
	"lattice.dev/node/internal/primitives"
)

type Entry struct {
	Header    primitives.Header
	BlueScore uint64
}

// Store is the concurrent, read-write-locked DAG index. Readers run
// concurrently; writes (single block insert or tip update) are short
// and serialized by mu, matching spec.md §5's shared-resource policy.
type Store struct {
	mu sync.RWMutex

	entries  map[primitives.Hash]Entry
	parents  map[primitives.Hash][]primitives.Hash
	children map[primitives.Hash][]primitives.Hash
	tips     map[primitives.Hash]struct{}

	memBudget int
	bodies    map[primitives.Hash][]byte
	lruOrder  []primitives.Hash
}

func New(memBudgetBytes int) *Store {
	return &Store{
		entries:   make(map[primitives.Hash]Entry),
		parents:   make(map[primitives.Hash][]primitives.Hash),
		children:  make(map[primitives.Hash][]primitives.Hash),
		tips:      make(map[primitives.Hash]struct{}),
		memBudget: memBudgetBytes,
		bodies:    make(map[primitives.Hash][]byte),
	}
}

// StoreBlock rejects blocks whose parents are not already present; the
// caller is expected to re-queue such blocks until their parents arrive
// (spec.md §4.2's MissingParent contract, shared with GhostDAG).
func (s *Store) StoreBlock(hash primitives.Hash, header primitives.Header, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[hash]; ok {
		return nil // idempotent
	}

	parents := collectParents(header)
	for _, p := range parents {
		if _, ok := s.entries[p]; !ok {
			return nodeerrors.MissingData("DAGSTORE_MISSING_PARENT", p.String())
		}
	}

	s.entries[hash] = Entry{Header: header, BlueScore: header.BlueScore}
	s.parents[hash] = parents
	for _, p := range parents {
		s.children[p] = append(s.children[p], hash)
		delete(s.tips, p)
	}
	s.tips[hash] = struct{}{}

	s.evictIfOverBudget(hash, body)
	return nil
}

func collectParents(h primitives.Header) []primitives.Hash {
	if h.Height == 0 {
		return nil
	}
	out := make([]primitives.Hash, 0, 1+len(h.MergeParents))
	out = append(out, h.SelectedParent)
	out = append(out, h.MergeParents...)
	return out
}

func (s *Store) evictIfOverBudget(hash primitives.Hash, body []byte) {
	if s.memBudget <= 0 {
		return
	}
	s.bodies[hash] = body
	s.lruOrder = append(s.lruOrder, hash)

	total := 0
	for _, b := range s.bodies {
		total += len(b)
	}
	for total > s.memBudget && len(s.lruOrder) > 1 {
		oldest := s.lruOrder[0]
		s.lruOrder = s.lruOrder[1:]
		total -= len(s.bodies[oldest])
		delete(s.bodies, oldest)
	}
}

func (s *Store) GetBody(hash primitives.Hash) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bodies[hash]
	return b, ok
}

func (s *Store) Has(hash primitives.Hash) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[hash]
	return ok
}

func (s *Store) Header(hash primitives.Hash) (primitives.Header, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[hash]
	return e.Header, ok
}

func (s *Store) Parents(hash primitives.Hash) []primitives.Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]primitives.Hash(nil), s.parents[hash]...)
}

func (s *Store) Children(hash primitives.Hash) []primitives.Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]primitives.Hash(nil), s.children[hash]...)
}

func (s *Store) Tips() []primitives.Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]primitives.Hash, 0, len(s.tips))
	for h := range s.tips {
		out = append(out, h)
	}
	return out
}

func (s *Store) BlueScore(hash primitives.Hash) (uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[hash]
	return e.BlueScore, ok
}

// SetBlueScore updates the cached blue-score index after GhostDAG
// computes it for a newly-stored block.
func (s *Store) SetBlueScore(hash primitives.Hash, score uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entries[hash]
	e.BlueScore = score
	s.entries[hash] = e
}

// IsAncestor reports whether anc is a selected-parent-chain or
// merge-parent ancestor of desc, bounded by the given depth to avoid
// unbounded traversal on pathological inputs.
func (s *Store) IsAncestor(anc, desc primitives.Hash, maxDepth int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	visited := map[primitives.Hash]bool{desc: true}
	frontier := []primitives.Hash{desc}
	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		next := make([]primitives.Hash, 0, len(frontier))
		for _, h := range frontier {
			if h == anc {
				return true
			}
			for _, p := range s.parents[h] {
				if !visited[p] {
					visited[p] = true
					next = append(next, p)
				}
			}
		}
		frontier = next
	}
	return visited[anc]
}
