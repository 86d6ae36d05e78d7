// Package modelcas is the encrypted, content-addressed model
// distribution substrate of spec.md §4.9: chunking, AES-256-GCM
// encryption, an ECIES-like per-recipient key wrap over secp256k1
// (grounded on the same curve internal/primitives already uses for
// transaction signatures and ECRECOVER), and Shamir's Secret Sharing
// threshold keys. The CAS interface mirrors the teacher's column-family
// storage contract (internal/storage): put/get/pin are content-addressed
// by the hash of what they store, never by caller-chosen key.
package modelcas

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"

	"lattice.dev/node/internal/nodeerrors"
	"lattice.dev/node/internal/primitives"
)

const DefaultChunkSize = 256 << 20 // 256 MiB, per spec.md §4.9

// CAS is the byte-addressable content store backing model distribution.
// A storage.Store-backed implementation is expected in production; a
// bbolt "model_chunks" column family (internal/storage) already
// reserves the space.
type CAS interface {
	Put(data []byte) (primitives.Hash, error)
	Get(cid primitives.Hash) ([]byte, bool, error)
	Pin(cid primitives.Hash) error
}

type EncryptedKey struct {
	RecipientAddr primitives.Address
	EphemeralPub  [33]byte // compressed secp256k1 point
	Ciphertext    []byte   // AES-GCM(K) under the ECDH-derived key
	Nonce         [12]byte
}

type Manifest struct {
	ModelID       primitives.Hash
	ChunkCIDs     []primitives.Hash
	ChunkNonces   [][12]byte
	ChunkTags     [][16]byte
	PlaintextHash primitives.Hash
	AccessList    []primitives.Address
	EncryptedKeys []EncryptedKey
	Owner         primitives.Address
}

// chunk splits plaintext into contiguous segments of at most chunkSize
// bytes; the last segment may be short, per spec.md §4.9 step 1.
func chunk(plaintext []byte, chunkSize int) [][]byte {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	var out [][]byte
	for offset := 0; offset < len(plaintext); offset += chunkSize {
		end := offset + chunkSize
		if end > len(plaintext) {
			end = len(plaintext)
		}
		out = append(out, plaintext[offset:end])
	}
	if len(out) == 0 {
		out = [][]byte{{}}
	}
	return out
}

// Put runs spec.md §4.9's put pipeline: chunk, derive a per-model
// symmetric key, AES-256-GCM encrypt each chunk with a nonce whose
// first two bytes carry the chunk index, store ciphertexts on the CAS,
// wrap the key for every recipient (owner included), and assemble the
// manifest.
func Put(cas CAS, keyDeriver KeyDeriver, modelID primitives.Hash, plaintext []byte, owner primitives.Address, accessList []primitives.Address, chunkSize int) (Manifest, error) {
	key := keyDeriver.DeriveModelKey(modelID)

	chunks := chunk(plaintext, chunkSize)
	cids := make([]primitives.Hash, len(chunks))
	nonces := make([][12]byte, len(chunks))
	tags := make([][16]byte, len(chunks))

	for i, c := range chunks {
		var nonce [12]byte
		if _, err := rand.Read(nonce[:]); err != nil {
			return Manifest{}, nodeerrors.Wrap(nodeerrors.KindIntegrity, "MODELCAS_RAND_FAILURE", "nonce generation failed", err)
		}
		nonce[0] = byte(i)
		nonce[1] = byte(i >> 8)

		ciphertext, tag, err := encryptChunk(key, nonce, c)
		if err != nil {
			return Manifest{}, err
		}
		cid, err := cas.Put(ciphertext)
		if err != nil {
			return Manifest{}, nodeerrors.Wrap(nodeerrors.KindIntegrity, "MODELCAS_PUT_FAILED", "chunk put failed", err)
		}
		cids[i] = cid
		nonces[i] = nonce
		tags[i] = tag
	}

	recipients := append([]primitives.Address{owner}, accessList...)
	recipients = dedupeAddrs(recipients)

	encKeys := make([]EncryptedKey, 0, len(recipients))
	for _, r := range recipients {
		ek, err := wrapKeyForRecipient(keyDeriver, r, key)
		if err != nil {
			return Manifest{}, err
		}
		encKeys = append(encKeys, ek)
	}

	plaintextHash := primitives.SHA3_256(plaintext)

	// Owner is always present in access_list, per spec.md §3's manifest
	// invariant, even when the caller passes an access list that omits it.
	m := Manifest{
		ModelID:       modelID,
		ChunkCIDs:     cids,
		ChunkNonces:   nonces,
		ChunkTags:     tags,
		PlaintextHash: plaintextHash,
		AccessList:    recipients,
		EncryptedKeys: encKeys,
		Owner:         owner,
	}

	manifestCID, err := cas.Put(EncodeManifest(m))
	if err != nil {
		return Manifest{}, nodeerrors.Wrap(nodeerrors.KindIntegrity, "MODELCAS_MANIFEST_PUT_FAILED", "manifest put failed", err)
	}
	if err := cas.Pin(manifestCID); err != nil {
		return Manifest{}, err
	}
	for _, cid := range cids {
		if err := cas.Pin(cid); err != nil {
			return Manifest{}, err
		}
	}
	return m, nil
}

// Get runs spec.md §4.9's get pipeline: verify the recipient holds an
// encrypted key, decrypt it, fetch and decrypt each chunk, and verify
// the reassembled plaintext against manifest.PlaintextHash.
func Get(cas CAS, keyDeriver KeyDeriver, m Manifest, recipient primitives.Address) ([]byte, error) {
	ek, found := findEncryptedKey(m, recipient)
	if !found {
		return nil, nodeerrors.Policy("MODELCAS_ACCESS_DENIED", recipient.String())
	}
	key, err := unwrapKeyForRecipient(keyDeriver, recipient, ek)
	if err != nil {
		return nil, err
	}

	var plaintext []byte
	for i, cid := range m.ChunkCIDs {
		ciphertext, ok, err := cas.Get(cid)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nodeerrors.MissingData("MODELCAS_CHUNK_MISSING", cid.String())
		}
		chunkPlain, err := decryptChunk(key, m.ChunkNonces[i], m.ChunkTags[i], ciphertext)
		if err != nil {
			return nil, nodeerrors.Wrap(nodeerrors.KindIntegrity, "MODELCAS_DECRYPT_FAILED", "chunk decryption failed", err)
		}
		plaintext = append(plaintext, chunkPlain...)
	}

	if primitives.SHA3_256(plaintext) != m.PlaintextHash {
		return nil, nodeerrors.Integrity("MODELCAS_PLAINTEXT_HASH_MISMATCH", "reassembled plaintext does not match manifest")
	}
	return plaintext, nil
}

// GrantAccess appends a new recipient to the manifest's access list
// without re-encrypting chunk data: the caller (who must already hold
// access) decrypts K and re-wraps it for the new recipient.
func GrantAccess(keyDeriver KeyDeriver, m Manifest, caller, newRecipient primitives.Address) (Manifest, error) {
	ek, found := findEncryptedKey(m, caller)
	if !found {
		return Manifest{}, nodeerrors.Policy("MODELCAS_ACCESS_DENIED", caller.String())
	}
	key, err := unwrapKeyForRecipient(keyDeriver, caller, ek)
	if err != nil {
		return Manifest{}, err
	}
	if _, already := findEncryptedKey(m, newRecipient); already {
		return m, nil
	}
	newEK, err := wrapKeyForRecipient(keyDeriver, newRecipient, key)
	if err != nil {
		return Manifest{}, err
	}
	out := m
	out.AccessList = append(append([]primitives.Address(nil), m.AccessList...), newRecipient)
	out.EncryptedKeys = append(append([]EncryptedKey(nil), m.EncryptedKeys...), newEK)
	return out, nil
}

// RevokeAccess requires re-encryption per spec.md §4.9: fetch the
// plaintext under the full access list, then re-run Put with the
// smaller access list (fresh chunk nonces and CIDs; Put derives the key
// from modelID, so the key itself is the same).
func RevokeAccess(cas CAS, keyDeriver KeyDeriver, m Manifest, caller, revoked primitives.Address, chunkSize int) (Manifest, error) {
	plaintext, err := Get(cas, keyDeriver, m, caller)
	if err != nil {
		return Manifest{}, err
	}
	newAccessList := make([]primitives.Address, 0, len(m.AccessList))
	for _, a := range m.AccessList {
		if a != revoked {
			newAccessList = append(newAccessList, a)
		}
	}
	return Put(cas, keyDeriver, m.ModelID, plaintext, m.Owner, newAccessList, chunkSize)
}

func findEncryptedKey(m Manifest, recipient primitives.Address) (EncryptedKey, bool) {
	for _, ek := range m.EncryptedKeys {
		if ek.RecipientAddr == recipient {
			return ek, true
		}
	}
	return EncryptedKey{}, false
}

func dedupeAddrs(addrs []primitives.Address) []primitives.Address {
	seen := make(map[primitives.Address]bool, len(addrs))
	out := make([]primitives.Address, 0, len(addrs))
	for _, a := range addrs {
		if !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	return out
}

func encryptChunk(key [32]byte, nonce [12]byte, plaintext []byte) (ciphertext []byte, tag [16]byte, err error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, tag, err
	}
	gcm, err := cipher.NewGCMWithTagSize(block, 16)
	if err != nil {
		return nil, tag, err
	}
	sealed := gcm.Seal(nil, nonce[:], plaintext, nil)
	ctLen := len(sealed) - 16
	copy(tag[:], sealed[ctLen:])
	return sealed[:ctLen], tag, nil
}

func decryptChunk(key [32]byte, nonce [12]byte, tag [16]byte, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCMWithTagSize(block, 16)
	if err != nil {
		return nil, err
	}
	sealed := append(append([]byte(nil), ciphertext...), tag[:]...)
	return gcm.Open(nil, nonce[:], sealed, nil)
}

// EncodeManifest produces a deterministic byte encoding of m for
// CAS storage and hashing; see manifest_codec.go.
func EncodeManifest(m Manifest) []byte { return encodeManifest(m) }

// DecodeManifest is the inverse of EncodeManifest.
func DecodeManifest(b []byte) (Manifest, error) { return decodeManifest(b) }
