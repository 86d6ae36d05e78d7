// Package storage is the durable, column-family-isolated KV layer
// (spec.md §4.1). It is backed by go.etcd.io/bbolt, one bucket per
// column family, following the teacher's bucket-per-concern layout
// (node/store/db.go) generalized from a single UTXO chain to a
// GhostDAG block DAG.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"lattice.dev/node/internal/nodeerrors"
	"lattice.dev/node/internal/p2p"
	"lattice.dev/node/internal/primitives"
)

var (
	cfBlocks       = []byte("blocks")
	cfHeaders      = []byte("headers")
	cfState        = []byte("state")
	cfCode         = []byte("code")
	cfDAGRelations = []byte("dag_relations")
	cfBlueSet      = []byte("blue_set")
	cfMetadata     = []byte("metadata")
	cfModelChunks  = []byte("model_chunks")

	allColumnFamilies = [][]byte{
		cfBlocks, cfHeaders, cfState, cfCode, cfDAGRelations, cfBlueSet, cfMetadata, cfModelChunks,
	}

	keySchemaVersion = []byte("schema_version")
)

const SchemaVersion uint32 = 1

// sub-key prefixes within cfDAGRelations and cfMetadata, disambiguating
// the several logical maps that share one bucket.
const (
	prefixChildren   = "children/"   // children/<parent-hash>      -> concatenated child hashes
	prefixTips       = "tips/"       // tips/<hash>                 -> presence marker
	prefixHeightIdx  = "height/"     // height/<height-be64>        -> hash
	prefixBlueScore  = "bluescore/"  // bluescore/<score-be64>/<hash> -> presence marker
)

type Store struct {
	db *bolt.DB
}

// Open opens (creating if absent) the bbolt database at path and
// ensures all column families exist. It stamps/validates the schema
// version the same way the teacher's DB.Open validates its MANIFEST.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("storage: mkdir: %w", err)
	}
	bdb, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("storage: open bbolt: %w", err)
	}
	s := &Store{db: bdb}

	if err := s.db.Update(func(tx *bolt.Tx) error {
		for _, cf := range allColumnFamilies {
			if _, err := tx.CreateBucketIfNotExists(cf); err != nil {
				return fmt.Errorf("storage: create bucket %s: %w", cf, err)
			}
		}
		meta := tx.Bucket(cfMetadata)
		existing := meta.Get(keySchemaVersion)
		if existing == nil {
			return meta.Put(keySchemaVersion, primitives.AppendU32LE(nil, SchemaVersion))
		}
		var cur [4]byte
		copy(cur[:], existing)
		gotVersion := leU32(cur[:])
		if gotVersion > SchemaVersion {
			return fmt.Errorf("storage: schema_version %d newer than supported %d", gotVersion, SchemaVersion)
		}
		return nil
	}); err != nil {
		_ = bdb.Close()
		return nil, err
	}
	return s, nil
}

func leU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// PutBlock atomically writes a block's body, header, height index, blue
// score index, and updates every parent's child list and the tip set
// (spec.md §4.1). Re-inserting an identical block is a no-op; inserting
// a different block under the same hash fails with KindIntegrity.
func (s *Store) PutBlock(hash primitives.Hash, header primitives.Header, blockBytes []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		blocks := tx.Bucket(cfBlocks)
		headers := tx.Bucket(cfHeaders)
		relations := tx.Bucket(cfDAGRelations)
		metadata := tx.Bucket(cfMetadata)

		if existing := blocks.Get(hash[:]); existing != nil {
			if bytesEqual(existing, blockBytes) {
				return nil // idempotent re-insert
			}
			return nodeerrors.Integrity("STORAGE_HASH_COLLISION", fmt.Sprintf("different block already stored at %s", hash))
		}

		if err := blocks.Put(hash[:], blockBytes); err != nil {
			return err
		}
		headerBytes := primitives.HeaderPreimage(header)
		if err := headers.Put(hash[:], headerBytes); err != nil {
			return err
		}

		heightKey := append([]byte(prefixHeightIdx), beU64(header.Height)...)
		if err := metadata.Put(heightKey, hash[:]); err != nil {
			return err
		}

		scoreKey := append(append([]byte(prefixBlueScore), beU64(header.BlueScore)...), hash[:]...)
		if err := tx.Bucket(cfBlueSet).Put(scoreKey, []byte{1}); err != nil {
			return err
		}

		parents := allParents(header)
		for _, p := range parents {
			childKey := append([]byte(prefixChildren), p[:]...)
			existingChildren := relations.Get(childKey)
			if !containsHash(existingChildren, hash) {
				if err := relations.Put(childKey, append(append([]byte{}, existingChildren...), hash[:]...)); err != nil {
					return err
				}
			}
			// A parent with a child is no longer a tip.
			if err := relations.Delete(append([]byte(prefixTips), p[:]...)); err != nil {
				return err
			}
		}
		// The new block is a tip until something references it as a parent.
		return relations.Put(append([]byte(prefixTips), hash[:]...), []byte{1})
	})
}

func allParents(h primitives.Header) []primitives.Hash {
	if h.Height == 0 {
		return nil
	}
	out := make([]primitives.Hash, 0, 1+len(h.MergeParents))
	out = append(out, h.SelectedParent)
	out = append(out, h.MergeParents...)
	return out
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func containsHash(buf []byte, h primitives.Hash) bool {
	for i := 0; i+32 <= len(buf); i += 32 {
		if bytesEqual(buf[i:i+32], h[:]) {
			return true
		}
	}
	return false
}

func beU64(v uint64) []byte {
	out := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		out[i] = byte(v)
		v >>= 8
	}
	return out
}

func (s *Store) GetBlock(hash primitives.Hash) ([]byte, bool, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(cfBlocks).Get(hash[:])
		if v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	return out, out != nil, err
}

func (s *Store) HasBlock(hash primitives.Hash) (bool, error) {
	var ok bool
	err := s.db.View(func(tx *bolt.Tx) error {
		ok = tx.Bucket(cfBlocks).Get(hash[:]) != nil
		return nil
	})
	return ok, err
}

func (s *Store) GetHeaderBytes(hash primitives.Hash) ([]byte, bool, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(cfHeaders).Get(hash[:])
		if v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	return out, out != nil, err
}

// GetHeader is the typed counterpart to GetHeaderBytes, decoding via
// internal/p2p's wire codec so callers get a ready-to-use
// primitives.Header instead of having to know the on-disk encoding
// themselves, matching the teacher's node/store/loaders.go decode-on-
// read pattern (GetHeader there returns *consensus.BlockHeader, not
// raw bytes).
func (s *Store) GetHeader(hash primitives.Hash) (primitives.Header, bool, error) {
	raw, ok, err := s.GetHeaderBytes(hash)
	if err != nil || !ok {
		return primitives.Header{}, ok, err
	}
	header, err := p2p.DecodeHeader(primitives.NewCursor(raw))
	if err != nil {
		return primitives.Header{}, false, nodeerrors.Wrap(nodeerrors.KindIntegrity, "STORAGE_HEADER_DECODE", "stored header bytes failed to decode", err)
	}
	return header, true, nil
}

// GetBlockTyped is the typed counterpart to GetBlock, decoding the
// stored block bytes via internal/p2p's wire codec.
func (s *Store) GetBlockTyped(hash primitives.Hash) (primitives.Block, bool, error) {
	raw, ok, err := s.GetBlock(hash)
	if err != nil || !ok {
		return primitives.Block{}, ok, err
	}
	block, err := p2p.DecodeBlock(raw)
	if err != nil {
		return primitives.Block{}, false, nodeerrors.Wrap(nodeerrors.KindIntegrity, "STORAGE_BLOCK_DECODE", "stored block bytes failed to decode", err)
	}
	return block, true, nil
}

func (s *Store) GetBlockByHeight(height uint64) (primitives.Hash, bool, error) {
	var h primitives.Hash
	var ok bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(cfMetadata).Get(append([]byte(prefixHeightIdx), beU64(height)...))
		if v != nil {
			copy(h[:], v)
			ok = true
		}
		return nil
	})
	return h, ok, err
}

func (s *Store) GetChildren(parent primitives.Hash) ([]primitives.Hash, error) {
	var out []primitives.Hash
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(cfDAGRelations).Get(append([]byte(prefixChildren), parent[:]...))
		for i := 0; i+32 <= len(v); i += 32 {
			var h primitives.Hash
			copy(h[:], v[i:i+32])
			out = append(out, h)
		}
		return nil
	})
	return out, err
}

// GetTips returns the current tip set sorted by height descending, then
// hash descending for ties (spec.md §4.1).
func (s *Store) GetTips() ([]primitives.Hash, error) {
	var tips []primitives.Hash
	err := s.db.View(func(tx *bolt.Tx) error {
		relations := tx.Bucket(cfDAGRelations)
		headers := tx.Bucket(cfHeaders)
		c := relations.Cursor()
		prefix := []byte(prefixTips)
		for k, _ := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, _ = c.Next() {
			var h primitives.Hash
			copy(h[:], k[len(prefix):])
			tips = append(tips, h)
			_ = headers
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	heights := make(map[primitives.Hash]uint64, len(tips))
	for _, t := range tips {
		hdrBytes, ok, err := s.GetHeaderBytes(t)
		if err != nil {
			return nil, err
		}
		if ok {
			heights[t] = decodeHeightFromHeaderBytes(hdrBytes)
		}
	}
	sort.Slice(tips, func(i, j int) bool {
		hi, hj := heights[tips[i]], heights[tips[j]]
		if hi != hj {
			return hi > hj
		}
		return tips[j].Less(tips[i])
	})
	return tips, nil
}

// decodeHeightFromHeaderBytes reads the Height field back out of the
// fixed prefix of HeaderPreimage without a full header parse: version
// (4) + selected_parent (32) + varint merge-parent count. Since
// merge-parent count is variable-length, this walks the cursor.
func decodeHeightFromHeaderBytes(b []byte) uint64 {
	c := primitives.NewCursor(b)
	_, _ = c.ReadU32LE()
	_, _ = c.ReadHash()
	n, err := c.ReadVarint()
	if err != nil {
		return 0
	}
	for i := uint64(0); i < n; i++ {
		_, _ = c.ReadHash()
	}
	_, _ = c.ReadU64LE() // timestamp
	height, _ := c.ReadU64LE()
	return height
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}

// DeleteBlock removes a block and repairs parent->children. The caller
// (chain selector) is responsible for verifying the block is not an
// ancestor of the current tip (spec.md §4.1).
func (s *Store) DeleteBlock(hash primitives.Hash) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		headerBytes := tx.Bucket(cfHeaders).Get(hash[:])
		if headerBytes == nil {
			return nodeerrors.MissingData("STORAGE_BLOCK_NOT_FOUND", hash.String())
		}
		relations := tx.Bucket(cfDAGRelations)
		// Remove hash from each parent's child list.
		selectedParentHash, merges := parentsFromHeaderBytes(headerBytes)
		for _, p := range append([]primitives.Hash{selectedParentHash}, merges...) {
			if p.IsZero() {
				continue
			}
			key := append([]byte(prefixChildren), p[:]...)
			existing := relations.Get(key)
			updated := removeHash(existing, hash)
			if len(updated) == 0 {
				if err := relations.Delete(key); err != nil {
					return err
				}
				if err := relations.Put(append([]byte(prefixTips), p[:]...), []byte{1}); err != nil {
					return err
				}
			} else if err := relations.Put(key, updated); err != nil {
				return err
			}
		}
		if err := relations.Delete(append([]byte(prefixTips), hash[:]...)); err != nil {
			return err
		}
		if err := tx.Bucket(cfBlocks).Delete(hash[:]); err != nil {
			return err
		}
		return tx.Bucket(cfHeaders).Delete(hash[:])
	})
}

func parentsFromHeaderBytes(b []byte) (primitives.Hash, []primitives.Hash) {
	c := primitives.NewCursor(b)
	_, _ = c.ReadU32LE()
	sp, _ := c.ReadHash()
	n, _ := c.ReadVarint()
	merges := make([]primitives.Hash, 0, n)
	for i := uint64(0); i < n; i++ {
		h, _ := c.ReadHash()
		merges = append(merges, h)
	}
	return sp, merges
}

func removeHash(buf []byte, h primitives.Hash) []byte {
	out := make([]byte, 0, len(buf))
	for i := 0; i+32 <= len(buf); i += 32 {
		if !bytesEqual(buf[i:i+32], h[:]) {
			out = append(out, buf[i:i+32]...)
		}
	}
	return out
}

// PutState / GetState / PutCode / GetCode give the execution layer a
// direct column-family handle for account state and contract code, kept
// intentionally simple (key->value) since the state layout is internal
// to the caller (internal/executor's flat account state).
func (s *Store) PutState(key, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error { return tx.Bucket(cfState).Put(key, value) })
}

func (s *Store) GetState(key []byte) ([]byte, bool, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(cfState).Get(key)
		if v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	return out, out != nil, err
}

func (s *Store) PutCode(hash primitives.Hash, code []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error { return tx.Bucket(cfCode).Put(hash[:], code) })
}

func (s *Store) GetCode(hash primitives.Hash) ([]byte, bool, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(cfCode).Get(hash[:])
		if v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	return out, out != nil, err
}

// PutModelChunk / GetModelChunk give the encrypted model CAS a durable
// backing store keyed by CID, distinct from the CAS's pluggable
// put/get/pin interface (internal/modelcas.CAS) used for the
// network-visible content-addressable layer.
func (s *Store) PutModelChunk(cid []byte, data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error { return tx.Bucket(cfModelChunks).Put(cid, data) })
}

func (s *Store) GetModelChunk(cid []byte) ([]byte, bool, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(cfModelChunks).Get(cid)
		if v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	return out, out != nil, err
}
