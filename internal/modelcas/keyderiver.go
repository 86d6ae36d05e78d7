// keyderiver.go implements the master-seeded HD key manager of spec.md
// §4.9 step 2 ("derive per-model symmetric key K from a master-seeded HD
// key manager at path m/model/<model_id>") and the ECIES-like
// per-recipient key wrap of step 5. Grounded on crypto/provider.go's
// CryptoProvider interface shape (a narrow, swappable crypto boundary)
// and on crypto/aeskw.go's AES key-wrap idiom, adapted here to an
// ECDH-derived wrapping key instead of a shared KEK since recipients
// are identified by independent secp256k1 keypairs, not a common secret.
package modelcas

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"io"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/hkdf"

	"lattice.dev/node/internal/nodeerrors"
	"lattice.dev/node/internal/primitives"
)

// KeyDeriver is the narrow interface the CAS pipeline needs from the
// node's key management layer: deriving per-model keys, and wrapping/
// unwrapping those keys for a specific recipient identity.
type KeyDeriver interface {
	// DeriveModelKey derives K for modelID from the master seed at HD
	// path m/model/<model_id>.
	DeriveModelKey(modelID primitives.Hash) [32]byte
	// RecipientPubKey resolves a recipient address to the secp256k1
	// public key encryption should target.
	RecipientPubKey(recipient primitives.Address) (*secp256k1.PublicKey, bool)
	// RecipientPrivKey resolves a recipient address to its private key,
	// available only when the caller holds it (the local node's own
	// identity, or a key explicitly imported for testing).
	RecipientPrivKey(recipient primitives.Address) (*secp256k1.PrivateKey, bool)
}

// HDKeyManager derives model keys from a single master seed via HKDF,
// and resolves recipient keys from a small in-memory keyring. Production
// deployments are expected to back RecipientPrivKey with an external
// signer; the keyring here covers the node's own identity plus any keys
// explicitly registered (e.g. during testing or local multi-identity runs).
type HDKeyManager struct {
	masterSeed [64]byte
	keyring    map[primitives.Address]*secp256k1.PrivateKey
}

func NewHDKeyManager(masterSeed [64]byte) *HDKeyManager {
	return &HDKeyManager{masterSeed: masterSeed, keyring: make(map[primitives.Address]*secp256k1.PrivateKey)}
}

// Register adds a known private key to the keyring, keyed by the
// address it derives to (internal/primitives.DeriveAddress over its
// x-only public key commitment).
func (m *HDKeyManager) Register(priv *secp256k1.PrivateKey) primitives.Address {
	pub := priv.PubKey().SerializeCompressed()
	var x [32]byte
	copy(x[:], pub[1:])
	addr := primitives.DeriveAddress(x)
	m.keyring[addr] = priv
	return addr
}

// DeriveModelKey implements HD path m/model/<model_id>: HKDF-SHA256
// (extract then expand) over the master seed with no salt, using
// "m/model/" followed by the raw model_id bytes as the info string, read
// out as a 32-byte AES-256-GCM key.
func (m *HDKeyManager) DeriveModelKey(modelID primitives.Hash) [32]byte {
	info := append([]byte("m/model/"), modelID[:]...)
	r := hkdf.New(sha256.New, m.masterSeed[:], nil, info)
	var out [32]byte
	_, _ = io.ReadFull(r, out[:])
	return out
}

func (m *HDKeyManager) RecipientPubKey(recipient primitives.Address) (*secp256k1.PublicKey, bool) {
	priv, ok := m.keyring[recipient]
	if !ok {
		return nil, false
	}
	return priv.PubKey(), true
}

func (m *HDKeyManager) RecipientPrivKey(recipient primitives.Address) (*secp256k1.PrivateKey, bool) {
	priv, ok := m.keyring[recipient]
	return priv, ok
}

// wrapKeyForRecipient implements spec.md §4.9 step 5: an ECIES-like
// scheme over the recipient's secp256k1 public key. An ephemeral
// keypair is generated, ECDH'd against the recipient's public key, and
// the shared point's X-coordinate is HKDF'd into an AES-256-GCM key
// that seals K. The ephemeral public key travels alongside the
// ciphertext so the recipient can reproduce the same ECDH shared
// secret without ever seeing the ephemeral private key.
func wrapKeyForRecipient(kd KeyDeriver, recipient primitives.Address, key [32]byte) (EncryptedKey, error) {
	recipientPub, ok := kd.RecipientPubKey(recipient)
	if !ok {
		return EncryptedKey{}, nodeerrors.Policy("MODELCAS_UNKNOWN_RECIPIENT", recipient.String())
	}

	ephPriv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return EncryptedKey{}, nodeerrors.Wrap(nodeerrors.KindIntegrity, "MODELCAS_EPHEMERAL_KEYGEN_FAILED", "ephemeral keypair generation failed", err)
	}
	shared := ecdhSharedSecret(ephPriv, recipientPub)

	var nonce [12]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return EncryptedKey{}, nodeerrors.Wrap(nodeerrors.KindIntegrity, "MODELCAS_RAND_FAILURE", "nonce generation failed", err)
	}
	ciphertext, err := aesGCMSeal(shared, nonce, key[:])
	if err != nil {
		return EncryptedKey{}, err
	}

	var ephPub [33]byte
	copy(ephPub[:], ephPriv.PubKey().SerializeCompressed())
	return EncryptedKey{
		RecipientAddr: recipient,
		EphemeralPub:  ephPub,
		Ciphertext:    ciphertext,
		Nonce:         nonce,
	}, nil
}

// unwrapKeyForRecipient is the inverse: recompute the ECDH shared
// secret using the recipient's own private key and the ephemeral
// public key carried in ek, then open the AES-GCM seal.
func unwrapKeyForRecipient(kd KeyDeriver, recipient primitives.Address, ek EncryptedKey) ([32]byte, error) {
	priv, ok := kd.RecipientPrivKey(recipient)
	if !ok {
		return [32]byte{}, nodeerrors.Policy("MODELCAS_NO_PRIVATE_KEY", recipient.String())
	}
	ephPub, err := secp256k1.ParsePubKey(ek.EphemeralPub[:])
	if err != nil {
		return [32]byte{}, nodeerrors.Invalid("MODELCAS_BAD_EPHEMERAL_PUBKEY", err.Error())
	}
	shared := ecdhSharedSecret(priv, ephPub)

	plain, err := aesGCMOpen(shared, ek.Nonce, ek.Ciphertext)
	if err != nil {
		return [32]byte{}, nodeerrors.Wrap(nodeerrors.KindPolicy, "MODELCAS_KEY_UNWRAP_FAILED", "key unwrap failed (wrong recipient or corrupted manifest)", err)
	}
	var key [32]byte
	copy(key[:], plain)
	return key, nil
}

// ecdhSharedSecret multiplies the recipient's public point by the
// local private scalar (ECDH) and HKDF-expands the resulting point's
// X-coordinate into a 32-byte symmetric key.
func ecdhSharedSecret(priv *secp256k1.PrivateKey, pub *secp256k1.PublicKey) [32]byte {
	var point secp256k1.JacobianPoint
	pub.AsJacobian(&point)

	var result secp256k1.JacobianPoint
	secp256k1.ScalarMultNonConst(&priv.Key, &point, &result)
	result.ToAffine()

	xBytes := result.X.Bytes()
	r := hkdf.New(sha256.New, xBytes[:], nil, []byte("lattice-modelcas-ecies"))
	var out [32]byte
	_, _ = io.ReadFull(r, out[:])
	return out
}

func aesGCMSeal(key [32]byte, nonce [12]byte, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return gcm.Seal(nil, nonce[:], plaintext, nil), nil
}

func aesGCMOpen(key [32]byte, nonce [12]byte, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return gcm.Open(nil, nonce[:], ciphertext, nil)
}
