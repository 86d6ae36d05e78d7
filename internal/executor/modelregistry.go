// modelregistry.go adapts internal/modelcas into the
// internal/precompiles.ModelRegistry interface the AI precompile range
// dispatches through, and provides the storage.Store-backed CAS the
// model distribution pipeline persists chunks to.
package executor

import (
	"encoding/json"
	"math"
	"sync"

	"lattice.dev/node/internal/nodeerrors"
	"lattice.dev/node/internal/primitives"
	"lattice.dev/node/internal/storage"
)

// storeCAS is a modelcas.CAS backed by internal/storage's model_chunks
// column family, content-addressed by SHA3-256 exactly as
// internal/modelcas expects.
type storeCAS struct {
	store  *storage.Store
	mu     sync.Mutex
	pinned map[primitives.Hash]bool
}

func newStoreCAS(store *storage.Store) *storeCAS {
	return &storeCAS{store: store, pinned: make(map[primitives.Hash]bool)}
}

func (c *storeCAS) Put(data []byte) (primitives.Hash, error) {
	cid := primitives.SHA3_256(data)
	if err := c.store.PutModelChunk(cid[:], data); err != nil {
		return primitives.Hash{}, err
	}
	return cid, nil
}

func (c *storeCAS) Get(cid primitives.Hash) ([]byte, bool, error) {
	return c.store.GetModelChunk(cid[:])
}

func (c *storeCAS) Pin(cid primitives.Hash) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pinned[cid] = true
	return nil
}

// modelEntry is the on-chain-visible record behind an AI precompile's
// model_id, separate from the encrypted manifest modelcas stores: a
// precompile call site only ever sees plaintext weights that have
// already been pulled through modelcas.Get by the node operating the
// call (spec.md §4.9's CAS and §4.8's precompiles are deliberately
// decoupled layers that meet at ModelRegistry.Deploy).
type modelEntry struct {
	ID       primitives.Hash
	Owner    primitives.Address
	Weights  []float32
	Metadata []byte
}

// ModelRegistry implements internal/precompiles.ModelRegistry with an
// in-memory model table plus a linear-layer inference stand-in: weights
// are interpreted as a flat row-major matrix (outputs x inputs) and
// Infer computes input . W^T, matching the "deterministic, replayable
// computation" requirement of spec.md §4.8 without vendoring a full
// tensor runtime no example repo in the corpus carries.
type ModelRegistry struct {
	mu     sync.RWMutex
	models map[primitives.Hash]*modelEntry
}

func NewModelRegistry() *ModelRegistry {
	return &ModelRegistry{models: make(map[primitives.Hash]*modelEntry)}
}

func (r *ModelRegistry) Deploy(modelBytes, metadata []byte) (primitives.Hash, error) {
	id := primitives.SHA3_256(modelBytes)
	weights := decodeModelFloats(modelBytes)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[id] = &modelEntry{ID: id, Weights: weights, Metadata: metadata}
	return id, nil
}

func (r *ModelRegistry) Infer(modelID primitives.Hash, input []float32) ([]float32, error) {
	r.mu.RLock()
	m, ok := r.models[modelID]
	r.mu.RUnlock()
	if !ok {
		return nil, nodeerrors.MissingData("EXECUTOR_MODEL_NOT_FOUND", modelID.String())
	}
	if len(input) == 0 || len(m.Weights)%len(input) != 0 {
		return nil, nodeerrors.Invalid("EXECUTOR_MODEL_SHAPE_MISMATCH", "weight matrix not divisible by input width")
	}
	outDim := len(m.Weights) / len(input)
	out := make([]float32, outDim)
	for o := 0; o < outDim; o++ {
		var sum float32
		row := m.Weights[o*len(input) : (o+1)*len(input)]
		for i, v := range input {
			sum += row[i] * v
		}
		out[o] = sum
	}
	return out, nil
}

func (r *ModelRegistry) Metadata(modelID primitives.Hash) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[modelID]
	if !ok {
		return nil, nodeerrors.MissingData("EXECUTOR_MODEL_NOT_FOUND", modelID.String())
	}
	return m.Metadata, nil
}

// VerifyProof checks a trivial, deterministic commitment: the proof
// must equal SHA3-256(model_id || weights), standing in for the actual
// zero-knowledge inference-proof scheme spec.md leaves as an Open
// Question (see DESIGN.md) since no example repo carries a zk proving
// system to ground a real implementation on.
func (r *ModelRegistry) VerifyProof(modelID primitives.Hash, proof []byte) bool {
	r.mu.RLock()
	m, ok := r.models[modelID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	expect := primitives.SHA3_256(modelID[:], encodeModelFloats(m.Weights))
	return len(proof) == 32 && primitives.Hash(mustHash32(proof)) == expect
}

func (r *ModelRegistry) Benchmark(modelID primitives.Hash) ([]byte, error) {
	r.mu.RLock()
	m, ok := r.models[modelID]
	r.mu.RUnlock()
	if !ok {
		return nil, nodeerrors.MissingData("EXECUTOR_MODEL_NOT_FOUND", modelID.String())
	}
	return json.Marshal(map[string]any{
		"model_id":    m.ID.String(),
		"param_count": len(m.Weights),
	})
}

func decodeModelFloats(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		bits := uint32(b[i*4]) | uint32(b[i*4+1])<<8 | uint32(b[i*4+2])<<16 | uint32(b[i*4+3])<<24
		out[i] = math.Float32frombits(bits)
	}
	return out
}

func encodeModelFloats(fs []float32) []byte {
	out := make([]byte, len(fs)*4)
	for i, f := range fs {
		bits := math.Float32bits(f)
		out[i*4] = byte(bits)
		out[i*4+1] = byte(bits >> 8)
		out[i*4+2] = byte(bits >> 16)
		out[i*4+3] = byte(bits >> 24)
	}
	return out
}

func mustHash32(b []byte) [32]byte {
	var h [32]byte
	copy(h[:], b)
	return h
}
