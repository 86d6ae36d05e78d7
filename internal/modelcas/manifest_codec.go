// manifest_codec.go gives Manifest a deterministic byte encoding, the
// same varint-prefixed cursor style internal/primitives uses for header
// and transaction preimages, so two manifests with identical fields
// always produce the same CID.
package modelcas

import (
	"fmt"

	"lattice.dev/node/internal/primitives"
)

func encodeManifest(m Manifest) []byte {
	out := make([]byte, 0, 256)
	out = append(out, m.ModelID[:]...)
	out = append(out, m.Owner[:]...) // 20 bytes
	out = append(out, m.PlaintextHash[:]...)

	out = primitives.AppendVarint(out, uint64(len(m.ChunkCIDs)))
	for i, cid := range m.ChunkCIDs {
		out = append(out, cid[:]...)
		out = append(out, m.ChunkNonces[i][:]...)
		out = append(out, m.ChunkTags[i][:]...)
	}

	out = primitives.AppendVarint(out, uint64(len(m.AccessList)))
	for _, a := range m.AccessList {
		out = append(out, a[:]...) // 20 bytes
	}

	out = primitives.AppendVarint(out, uint64(len(m.EncryptedKeys)))
	for _, ek := range m.EncryptedKeys {
		out = append(out, ek.RecipientAddr[:]...) // 20 bytes
		out = append(out, ek.EphemeralPub[:]...)
		out = append(out, ek.Nonce[:]...)
		out = primitives.AppendVarint(out, uint64(len(ek.Ciphertext)))
		out = append(out, ek.Ciphertext...)
	}
	return out
}

func decodeManifest(b []byte) (Manifest, error) {
	c := primitives.NewCursor(b)
	modelID, err := c.ReadHash()
	if err != nil {
		return Manifest{}, fmt.Errorf("modelcas: decode model_id: %w", err)
	}
	ownerBytes, err := c.ReadExact(20)
	if err != nil {
		return Manifest{}, fmt.Errorf("modelcas: decode owner: %w", err)
	}
	var owner primitives.Address
	copy(owner[:], ownerBytes)
	plaintextHash, err := c.ReadHash()
	if err != nil {
		return Manifest{}, fmt.Errorf("modelcas: decode plaintext_hash: %w", err)
	}

	nChunks, err := c.ReadVarint()
	if err != nil {
		return Manifest{}, fmt.Errorf("modelcas: decode chunk count: %w", err)
	}
	cids := make([]primitives.Hash, nChunks)
	nonces := make([][12]byte, nChunks)
	tags := make([][16]byte, nChunks)
	for i := uint64(0); i < nChunks; i++ {
		cid, err := c.ReadHash()
		if err != nil {
			return Manifest{}, fmt.Errorf("modelcas: decode chunk %d cid: %w", i, err)
		}
		nonceBytes, err := c.ReadExact(12)
		if err != nil {
			return Manifest{}, fmt.Errorf("modelcas: decode chunk %d nonce: %w", i, err)
		}
		tagBytes, err := c.ReadExact(16)
		if err != nil {
			return Manifest{}, fmt.Errorf("modelcas: decode chunk %d tag: %w", i, err)
		}
		cids[i] = cid
		copy(nonces[i][:], nonceBytes)
		copy(tags[i][:], tagBytes)
	}

	nAccess, err := c.ReadVarint()
	if err != nil {
		return Manifest{}, fmt.Errorf("modelcas: decode access list count: %w", err)
	}
	accessList := make([]primitives.Address, nAccess)
	for i := uint64(0); i < nAccess; i++ {
		addrBytes, err := c.ReadExact(20)
		if err != nil {
			return Manifest{}, fmt.Errorf("modelcas: decode access list entry %d: %w", i, err)
		}
		copy(accessList[i][:], addrBytes)
	}

	nKeys, err := c.ReadVarint()
	if err != nil {
		return Manifest{}, fmt.Errorf("modelcas: decode encrypted key count: %w", err)
	}
	encKeys := make([]EncryptedKey, nKeys)
	for i := uint64(0); i < nKeys; i++ {
		recipientBytes, err := c.ReadExact(20)
		if err != nil {
			return Manifest{}, fmt.Errorf("modelcas: decode key %d recipient: %w", i, err)
		}
		ephPub, err := c.ReadExact(33)
		if err != nil {
			return Manifest{}, fmt.Errorf("modelcas: decode key %d ephemeral pubkey: %w", i, err)
		}
		nonce, err := c.ReadExact(12)
		if err != nil {
			return Manifest{}, fmt.Errorf("modelcas: decode key %d nonce: %w", i, err)
		}
		ctLen, err := c.ReadVarint()
		if err != nil {
			return Manifest{}, fmt.Errorf("modelcas: decode key %d ciphertext length: %w", i, err)
		}
		ct, err := c.ReadExact(int(ctLen))
		if err != nil {
			return Manifest{}, fmt.Errorf("modelcas: decode key %d ciphertext: %w", i, err)
		}
		var ek EncryptedKey
		copy(ek.RecipientAddr[:], recipientBytes)
		copy(ek.EphemeralPub[:], ephPub)
		copy(ek.Nonce[:], nonce)
		ek.Ciphertext = append([]byte(nil), ct...)
		encKeys[i] = ek
	}

	return Manifest{
		ModelID:       modelID,
		ChunkCIDs:     cids,
		ChunkNonces:   nonces,
		ChunkTags:     tags,
		PlaintextHash: plaintextHash,
		AccessList:    accessList,
		EncryptedKeys: encKeys,
		Owner:         owner,
	}, nil
}
