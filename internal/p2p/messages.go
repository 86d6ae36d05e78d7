package p2p

import (
	"fmt"

	"lattice.dev/node/internal/primitives"
)

// Kind identifies a payload's message type. The zero value KindUnknown
// is never sent; it is what Frame.Kind decodes to for any byte this
// package's Session doesn't recognize, so ReadFrame can report
// ok=false without erroring.
type Kind byte

const (
	KindUnknown Kind = iota
	KindGetBlocks
	KindBlocks
	KindNewTransaction
	KindModelAnnounce
	KindInferenceRequest
	KindInferenceResponse
	KindTrainingJobAnnounce
	KindGradientSubmission
	KindWeightSync
	kindSentinel // one past the last recognized kind
)

func (k Kind) Known() bool { return k > KindUnknown && k < kindSentinel }

func (k Kind) String() string {
	switch k {
	case KindGetBlocks:
		return "GetBlocks"
	case KindBlocks:
		return "Blocks"
	case KindNewTransaction:
		return "NewTransaction"
	case KindModelAnnounce:
		return "ModelAnnounce"
	case KindInferenceRequest:
		return "InferenceRequest"
	case KindInferenceResponse:
		return "InferenceResponse"
	case KindTrainingJobAnnounce:
		return "TrainingJobAnnounce"
	case KindGradientSubmission:
		return "GradientSubmission"
	case KindWeightSync:
		return "WeightSync"
	default:
		return fmt.Sprintf("Unknown(%d)", byte(k))
	}
}

// GetBlocks requests up to Count headers-and-bodies starting at From,
// every Step'th block (Step=1 for a contiguous run), matching the
// locator-less range request shape spec.md §6 describes for DAG sync.
type GetBlocks struct {
	From  primitives.Hash
	Count uint32
	Step  uint32
}

func (m GetBlocks) Encode() []byte {
	out := make([]byte, 0, 40)
	out = append(out, m.From[:]...)
	out = primitives.AppendU32LE(out, m.Count)
	out = primitives.AppendU32LE(out, m.Step)
	return out
}

func DecodeGetBlocks(b []byte) (GetBlocks, error) {
	c := primitives.NewCursor(b)
	from, err := c.ReadHash()
	if err != nil {
		return GetBlocks{}, err
	}
	count, err := c.ReadU32LE()
	if err != nil {
		return GetBlocks{}, err
	}
	step, err := c.ReadU32LE()
	if err != nil {
		return GetBlocks{}, err
	}
	return GetBlocks{From: from, Count: count, Step: step}, nil
}

// Blocks answers a GetBlocks with the full blocks found, in the order
// requested. A short slice (fewer than Count) means the peer ran out
// of DAG to hand back, not an error.
type Blocks struct {
	Blocks []primitives.Block
}

func (m Blocks) Encode() []byte {
	out := make([]byte, 0, 256)
	out = primitives.AppendVarint(out, uint64(len(m.Blocks)))
	for _, blk := range m.Blocks {
		enc := EncodeBlock(blk)
		out = primitives.AppendVarint(out, uint64(len(enc)))
		out = append(out, enc...)
	}
	return out
}

func DecodeBlocks(b []byte) (Blocks, error) {
	c := primitives.NewCursor(b)
	n, err := c.ReadVarint()
	if err != nil {
		return Blocks{}, err
	}
	out := Blocks{Blocks: make([]primitives.Block, 0, n)}
	for i := uint64(0); i < n; i++ {
		l, err := c.ReadVarint()
		if err != nil {
			return Blocks{}, err
		}
		raw, err := c.ReadExact(int(l))
		if err != nil {
			return Blocks{}, err
		}
		blk, err := DecodeBlock(raw)
		if err != nil {
			return Blocks{}, err
		}
		out.Blocks = append(out.Blocks, blk)
	}
	return out, nil
}

// NewTransaction relays a single mempool-admitted transaction to peers.
type NewTransaction struct {
	Tx primitives.Transaction
}

func (m NewTransaction) Encode() []byte { return EncodeTx(m.Tx) }

func DecodeNewTransaction(b []byte) (NewTransaction, error) {
	tx, err := DecodeTx(primitives.NewCursor(b))
	if err != nil {
		return NewTransaction{}, err
	}
	return NewTransaction{Tx: tx}, nil
}

// ModelAnnounce advertises a deployed model's identity and where its
// encrypted weight manifest can be fetched from the model CAS.
type ModelAnnounce struct {
	ModelID   primitives.Hash
	ModelHash primitives.Hash
	Owner     primitives.Address
	Metadata  []byte
	WeightCID primitives.Hash
}

func (m ModelAnnounce) Encode() []byte {
	out := make([]byte, 0, 128)
	out = append(out, m.ModelID[:]...)
	out = append(out, m.ModelHash[:]...)
	out = append(out, m.Owner[:]...)
	out = primitives.AppendVarint(out, uint64(len(m.Metadata)))
	out = append(out, m.Metadata...)
	out = append(out, m.WeightCID[:]...)
	return out
}

func DecodeModelAnnounce(b []byte) (ModelAnnounce, error) {
	c := primitives.NewCursor(b)
	var m ModelAnnounce
	var err error
	if m.ModelID, err = c.ReadHash(); err != nil {
		return ModelAnnounce{}, err
	}
	if m.ModelHash, err = c.ReadHash(); err != nil {
		return ModelAnnounce{}, err
	}
	ownerB, err := c.ReadExact(20)
	if err != nil {
		return ModelAnnounce{}, err
	}
	m.Owner, _ = primitives.AddressFromBytes(ownerB)
	metaLen, err := c.ReadVarint()
	if err != nil {
		return ModelAnnounce{}, err
	}
	if m.Metadata, err = c.ReadExact(int(metaLen)); err != nil {
		return ModelAnnounce{}, err
	}
	m.Metadata = append([]byte(nil), m.Metadata...)
	if m.WeightCID, err = c.ReadHash(); err != nil {
		return ModelAnnounce{}, err
	}
	return m, nil
}

// InferenceRequest asks a peer serving ModelID to run Input through it,
// correlated to its InferenceResponse by RequestID.
type InferenceRequest struct {
	RequestID primitives.Hash
	ModelID   primitives.Hash
	Input     []byte
}

func (m InferenceRequest) Encode() []byte {
	out := make([]byte, 0, 96)
	out = append(out, m.RequestID[:]...)
	out = append(out, m.ModelID[:]...)
	out = primitives.AppendVarint(out, uint64(len(m.Input)))
	out = append(out, m.Input...)
	return out
}

func DecodeInferenceRequest(b []byte) (InferenceRequest, error) {
	c := primitives.NewCursor(b)
	var m InferenceRequest
	var err error
	if m.RequestID, err = c.ReadHash(); err != nil {
		return InferenceRequest{}, err
	}
	if m.ModelID, err = c.ReadHash(); err != nil {
		return InferenceRequest{}, err
	}
	n, err := c.ReadVarint()
	if err != nil {
		return InferenceRequest{}, err
	}
	if m.Input, err = c.ReadExact(int(n)); err != nil {
		return InferenceRequest{}, err
	}
	m.Input = append([]byte(nil), m.Input...)
	return m, nil
}

// InferenceResponse carries the output (or error text) for a prior
// InferenceRequest.
type InferenceResponse struct {
	RequestID primitives.Hash
	Output    []byte
	Err       string
}

func (m InferenceResponse) Encode() []byte {
	out := make([]byte, 0, 96)
	out = append(out, m.RequestID[:]...)
	out = primitives.AppendVarint(out, uint64(len(m.Output)))
	out = append(out, m.Output...)
	out = primitives.AppendVarint(out, uint64(len(m.Err)))
	out = append(out, []byte(m.Err)...)
	return out
}

func DecodeInferenceResponse(b []byte) (InferenceResponse, error) {
	c := primitives.NewCursor(b)
	var m InferenceResponse
	var err error
	if m.RequestID, err = c.ReadHash(); err != nil {
		return InferenceResponse{}, err
	}
	n, err := c.ReadVarint()
	if err != nil {
		return InferenceResponse{}, err
	}
	if m.Output, err = c.ReadExact(int(n)); err != nil {
		return InferenceResponse{}, err
	}
	m.Output = append([]byte(nil), m.Output...)
	el, err := c.ReadVarint()
	if err != nil {
		return InferenceResponse{}, err
	}
	errBytes, err := c.ReadExact(int(el))
	if err != nil {
		return InferenceResponse{}, err
	}
	m.Err = string(errBytes)
	return m, nil
}

// TrainingJobAnnounce advertises a federated gradient-submission round
// open on ModelID.
type TrainingJobAnnounce struct {
	JobID    primitives.Hash
	ModelID  primitives.Hash
	Owner    primitives.Address
	Metadata []byte
}

func (m TrainingJobAnnounce) Encode() []byte {
	out := make([]byte, 0, 96)
	out = append(out, m.JobID[:]...)
	out = append(out, m.ModelID[:]...)
	out = append(out, m.Owner[:]...)
	out = primitives.AppendVarint(out, uint64(len(m.Metadata)))
	out = append(out, m.Metadata...)
	return out
}

func DecodeTrainingJobAnnounce(b []byte) (TrainingJobAnnounce, error) {
	c := primitives.NewCursor(b)
	var m TrainingJobAnnounce
	var err error
	if m.JobID, err = c.ReadHash(); err != nil {
		return TrainingJobAnnounce{}, err
	}
	if m.ModelID, err = c.ReadHash(); err != nil {
		return TrainingJobAnnounce{}, err
	}
	ownerB, err := c.ReadExact(20)
	if err != nil {
		return TrainingJobAnnounce{}, err
	}
	m.Owner, _ = primitives.AddressFromBytes(ownerB)
	n, err := c.ReadVarint()
	if err != nil {
		return TrainingJobAnnounce{}, err
	}
	if m.Metadata, err = c.ReadExact(int(n)); err != nil {
		return TrainingJobAnnounce{}, err
	}
	m.Metadata = append([]byte(nil), m.Metadata...)
	return m, nil
}

// GradientSubmission references a submitted gradient artifact by its
// model CAS identifier, rather than shipping the (potentially large)
// gradient payload inline.
type GradientSubmission struct {
	JobID       primitives.Hash
	Submitter   primitives.Address
	GradientCID primitives.Hash
}

func (m GradientSubmission) Encode() []byte {
	out := make([]byte, 0, 72)
	out = append(out, m.JobID[:]...)
	out = append(out, m.Submitter[:]...)
	out = append(out, m.GradientCID[:]...)
	return out
}

func DecodeGradientSubmission(b []byte) (GradientSubmission, error) {
	c := primitives.NewCursor(b)
	var m GradientSubmission
	var err error
	if m.JobID, err = c.ReadHash(); err != nil {
		return GradientSubmission{}, err
	}
	subB, err := c.ReadExact(20)
	if err != nil {
		return GradientSubmission{}, err
	}
	m.Submitter, _ = primitives.AddressFromBytes(subB)
	if m.GradientCID, err = c.ReadHash(); err != nil {
		return GradientSubmission{}, err
	}
	return m, nil
}

// WeightSync announces that ModelID's weights have advanced to Version,
// newly retrievable at WeightCID — the gossip trigger for peers serving
// stale weights to re-fetch.
type WeightSync struct {
	ModelID   primitives.Hash
	WeightCID primitives.Hash
	Version   uint64
}

func (m WeightSync) Encode() []byte {
	out := make([]byte, 0, 72)
	out = append(out, m.ModelID[:]...)
	out = append(out, m.WeightCID[:]...)
	out = primitives.AppendU64LE(out, m.Version)
	return out
}

func DecodeWeightSync(b []byte) (WeightSync, error) {
	c := primitives.NewCursor(b)
	var m WeightSync
	var err error
	if m.ModelID, err = c.ReadHash(); err != nil {
		return WeightSync{}, err
	}
	if m.WeightCID, err = c.ReadHash(); err != nil {
		return WeightSync{}, err
	}
	if m.Version, err = c.ReadU64LE(); err != nil {
		return WeightSync{}, err
	}
	return m, nil
}
