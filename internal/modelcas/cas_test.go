package modelcas

import (
	"bytes"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"lattice.dev/node/internal/primitives"
)

type memCAS struct {
	objects map[primitives.Hash][]byte
	pinned  map[primitives.Hash]bool
}

func newMemCAS() *memCAS {
	return &memCAS{objects: make(map[primitives.Hash][]byte), pinned: make(map[primitives.Hash]bool)}
}

func (m *memCAS) Put(data []byte) (primitives.Hash, error) {
	cid := primitives.SHA3_256(data)
	m.objects[cid] = append([]byte(nil), data...)
	return cid, nil
}

func (m *memCAS) Get(cid primitives.Hash) ([]byte, bool, error) {
	v, ok := m.objects[cid]
	return v, ok, nil
}

func (m *memCAS) Pin(cid primitives.Hash) error {
	m.pinned[cid] = true
	return nil
}

func newTestKeyManager(t *testing.T) (*HDKeyManager, primitives.Address, primitives.Address) {
	t.Helper()
	var seed [64]byte
	seed[0] = 1
	km := NewHDKeyManager(seed)

	ownerPriv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("owner keygen: %v", err)
	}
	userPriv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("user keygen: %v", err)
	}
	owner := km.Register(ownerPriv)
	user := km.Register(userPriv)
	return km, owner, user
}

// TestModelCASGrantThenRevoke implements spec.md S6: encrypt a multi-
// chunk model with an empty access list, confirm owner-only access,
// grant the new user access, confirm they can now read it, then revoke
// and confirm the new manifest denies them.
func TestModelCASGrantThenRevoke(t *testing.T) {
	cas := newMemCAS()
	km, owner, user := newTestKeyManager(t)

	plaintext := bytes.Repeat([]byte{0xAB}, 300) // small stand-in for "300 MiB, 2 chunks"
	const chunkSize = 128

	modelID := primitives.SHA3_256([]byte("test-model"))
	manifest, err := Put(cas, km, modelID, plaintext, owner, nil, chunkSize)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if len(manifest.ChunkCIDs) != 3 {
		t.Fatalf("expected 3 chunks of 128 bytes over 300 bytes, got %d", len(manifest.ChunkCIDs))
	}

	got, err := Get(cas, km, manifest, owner)
	if err != nil {
		t.Fatalf("owner Get: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatal("owner roundtrip mismatch")
	}

	if _, err := Get(cas, km, manifest, user); err == nil {
		t.Fatal("expected access denied for user before grant")
	}

	granted, err := GrantAccess(km, manifest, owner, user)
	if err != nil {
		t.Fatalf("GrantAccess: %v", err)
	}
	got, err = Get(cas, km, granted, user)
	if err != nil {
		t.Fatalf("user Get after grant: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatal("user roundtrip mismatch after grant")
	}

	revoked, err := RevokeAccess(cas, km, granted, owner, user, chunkSize)
	if err != nil {
		t.Fatalf("RevokeAccess: %v", err)
	}
	if _, err := Get(cas, km, revoked, user); err == nil {
		t.Fatal("expected access denied for user after revoke")
	}
	got, err = Get(cas, km, revoked, owner)
	if err != nil {
		t.Fatalf("owner Get after revoke: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatal("owner roundtrip mismatch after revoke")
	}
}

func TestManifestCodecRoundtrip(t *testing.T) {
	cas := newMemCAS()
	km, owner, user := newTestKeyManager(t)

	modelID := primitives.SHA3_256([]byte("codec-model"))
	m, err := Put(cas, km, modelID, []byte("hello world"), owner, []primitives.Address{user}, DefaultChunkSize)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	encoded := EncodeManifest(m)
	decoded, err := DecodeManifest(encoded)
	if err != nil {
		t.Fatalf("DecodeManifest: %v", err)
	}
	if decoded.ModelID != m.ModelID || decoded.Owner != m.Owner || decoded.PlaintextHash != m.PlaintextHash {
		t.Fatal("decoded manifest header fields mismatch")
	}
	if len(decoded.EncryptedKeys) != len(m.EncryptedKeys) {
		t.Fatalf("decoded %d encrypted keys, want %d", len(decoded.EncryptedKeys), len(m.EncryptedKeys))
	}
}
