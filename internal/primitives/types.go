package primitives

// Header is the GhostDAG block header (spec.md §3). BlockHash is not
// stored on the wire form; it is computed by HeaderHash from the rest
// of the fields and compared against whatever the caller expected.
type Header struct {
	Version        uint32
	SelectedParent Hash
	MergeParents   []Hash
	Timestamp      uint64
	Height         uint64
	BlueScore      uint64
	BlueWork       []byte // big-endian, unbounded accumulator
	PruningPoint   Hash
	ProposerPubkey [32]byte
	VRFProof       []byte

	StateRoot    Hash
	TxRoot       Hash
	ReceiptRoot  Hash
	ArtifactRoot Hash
}

// GhostDAGParams is carried per-block so historical blocks remain
// self-describing even if network-wide defaults change later.
type GhostDAGParams struct {
	K              uint32
	PruningWindow  uint64
	FinalityDepth  uint64
	MaxParents     uint32
}

type Block struct {
	Header          Header
	GhostDAGParams  GhostDAGParams
	Transactions    []Transaction
	ProposerSig     []byte
}

// TxType tags the variant of a Transaction's payload (spec.md §3).
// The zero value TxTransfer means "legacy transfer", matching the
// spec's "absence means legacy transfer" rule.
type TxType byte

const (
	TxTransfer TxType = iota
	TxDeploy
	TxCall
	TxModelRegister
	TxModelUpdate
	TxInferenceRequest
	TxGradientSubmit
)

type Transaction struct {
	Hash      Hash
	Nonce     uint64
	From      [32]byte // sender pubkey
	To        *Address // nil for contract creation
	Value     *U256
	Data      []byte
	GasLimit  uint64
	GasPrice  *U256
	Signature []byte
	TxType    TxType
}

// AccountState is the per-address account record (spec.md §3).
type AccountState struct {
	Nonce             uint64
	Balance           *U256
	StorageRoot       Hash
	CodeHash          Hash
	ModelPermissions  []Hash
}

// HeaderPreimage returns the canonical byte encoding of h used both to
// compute its hash and as the signed preimage for proposer signatures.
// The layout mirrors the teacher's hand-rolled wire encoding
// (version | fixed hashes | varint-prefixed variable fields), adapted
// from single-parent Bitcoin headers to GhostDAG's multi-parent form.
func HeaderPreimage(h Header) []byte {
	out := make([]byte, 0, 256)
	out = AppendU32LE(out, h.Version)
	out = append(out, h.SelectedParent[:]...)
	out = AppendVarint(out, uint64(len(h.MergeParents)))
	for _, p := range h.MergeParents {
		out = append(out, p[:]...)
	}
	out = AppendU64LE(out, h.Timestamp)
	out = AppendU64LE(out, h.Height)
	out = AppendU64LE(out, h.BlueScore)
	out = AppendVarint(out, uint64(len(h.BlueWork)))
	out = append(out, h.BlueWork...)
	out = append(out, h.PruningPoint[:]...)
	out = append(out, h.ProposerPubkey[:]...)
	out = AppendVarint(out, uint64(len(h.VRFProof)))
	out = append(out, h.VRFProof...)
	out = append(out, h.StateRoot[:]...)
	out = append(out, h.TxRoot[:]...)
	out = append(out, h.ReceiptRoot[:]...)
	out = append(out, h.ArtifactRoot[:]...)
	return out
}

// HeaderHash computes the content hash of a header. Block identity is
// this value: two headers with the same field values hash identically
// and are treated as the same block by storage's idempotent insert.
func HeaderHash(h Header) Hash {
	return Keccak256(HeaderPreimage(h))
}

// TxPreimage returns the canonical preimage over every field of tx
// except its own Hash and Signature, matching spec.md §3's "Hash is
// canonical over all other fields".
func TxPreimage(tx Transaction) []byte {
	out := make([]byte, 0, 128)
	out = AppendU64LE(out, tx.Nonce)
	out = append(out, tx.From[:]...)
	if tx.To != nil {
		out = append(out, 0x01)
		out = append(out, tx.To[:]...)
	} else {
		out = append(out, 0x00)
	}
	if tx.Value != nil {
		vb := tx.Value.Bytes32()
		out = append(out, vb[:]...)
	} else {
		var zero [32]byte
		out = append(out, zero[:]...)
	}
	out = AppendVarint(out, uint64(len(tx.Data)))
	out = append(out, tx.Data...)
	out = AppendU64LE(out, tx.GasLimit)
	if tx.GasPrice != nil {
		gp := tx.GasPrice.Bytes32()
		out = append(out, gp[:]...)
	} else {
		var zero [32]byte
		out = append(out, zero[:]...)
	}
	out = append(out, byte(tx.TxType))
	return out
}

func ComputeTxHash(tx Transaction) Hash {
	return Keccak256(TxPreimage(tx))
}
