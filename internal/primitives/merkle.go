package primitives

import "fmt"

// MerkleRoot computes a tagged binary Merkle root over ids, used for both
// tx_root and receipt_root. Leaf and node hashes are domain-separated by
// a one-byte tag so a leaf hash can never collide with an internal-node
// hash. An odd level's final element is carried forward unchanged rather
// than duplicated, avoiding the duplicate-leaf second-preimage issue of
// the naive Bitcoin-style tree.
func MerkleRoot(ids []Hash) (Hash, error) {
	if len(ids) == 0 {
		return Hash{}, fmt.Errorf("primitives: merkle root of empty set")
	}

	const leafTag, nodeTag = 0x00, 0x01

	level := make([]Hash, len(ids))
	var leafPreimage [1 + 32]byte
	leafPreimage[0] = leafTag
	for i, id := range ids {
		copy(leafPreimage[1:], id[:])
		level[i] = SHA3_256(leafPreimage[:])
	}

	var nodePreimage [1 + 32 + 32]byte
	nodePreimage[0] = nodeTag
	for len(level) > 1 {
		next := make([]Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); {
			if i == len(level)-1 {
				next = append(next, level[i])
				i++
				continue
			}
			copy(nodePreimage[1:33], level[i][:])
			copy(nodePreimage[33:], level[i+1][:])
			next = append(next, SHA3_256(nodePreimage[:]))
			i += 2
		}
		level = next
	}

	return level[0], nil
}
