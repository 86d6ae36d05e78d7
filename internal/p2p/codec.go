package p2p

import (
	"lattice.dev/node/internal/primitives"
)

// EncodeTx is the full wire form of a transaction: TxPreimage's fields
// plus the Hash and Signature that preimage deliberately excludes, so a
// received transaction can be verified without recomputing anything the
// sender already committed to.
func EncodeTx(tx primitives.Transaction) []byte {
	out := make([]byte, 0, 160)
	out = append(out, tx.Hash[:]...)
	out = primitives.AppendU64LE(out, tx.Nonce)
	out = append(out, tx.From[:]...)
	if tx.To != nil {
		out = append(out, 0x01)
		out = append(out, tx.To[:]...)
	} else {
		out = append(out, 0x00)
	}
	out = appendU256(out, tx.Value)
	out = primitives.AppendVarint(out, uint64(len(tx.Data)))
	out = append(out, tx.Data...)
	out = primitives.AppendU64LE(out, tx.GasLimit)
	out = appendU256(out, tx.GasPrice)
	out = primitives.AppendVarint(out, uint64(len(tx.Signature)))
	out = append(out, tx.Signature...)
	out = append(out, byte(tx.TxType))
	return out
}

func DecodeTx(c *primitives.Cursor) (primitives.Transaction, error) {
	var tx primitives.Transaction
	var err error
	if tx.Hash, err = c.ReadHash(); err != nil {
		return primitives.Transaction{}, err
	}
	if tx.Nonce, err = c.ReadU64LE(); err != nil {
		return primitives.Transaction{}, err
	}
	fromB, err := c.ReadExact(32)
	if err != nil {
		return primitives.Transaction{}, err
	}
	copy(tx.From[:], fromB)
	hasTo, err := c.ReadU8()
	if err != nil {
		return primitives.Transaction{}, err
	}
	if hasTo == 0x01 {
		toB, err := c.ReadExact(20)
		if err != nil {
			return primitives.Transaction{}, err
		}
		addr, _ := primitives.AddressFromBytes(toB)
		tx.To = &addr
	}
	if tx.Value, err = readU256(c); err != nil {
		return primitives.Transaction{}, err
	}
	dataLen, err := c.ReadVarint()
	if err != nil {
		return primitives.Transaction{}, err
	}
	data, err := c.ReadExact(int(dataLen))
	if err != nil {
		return primitives.Transaction{}, err
	}
	tx.Data = append([]byte(nil), data...)
	if tx.GasLimit, err = c.ReadU64LE(); err != nil {
		return primitives.Transaction{}, err
	}
	if tx.GasPrice, err = readU256(c); err != nil {
		return primitives.Transaction{}, err
	}
	sigLen, err := c.ReadVarint()
	if err != nil {
		return primitives.Transaction{}, err
	}
	sig, err := c.ReadExact(int(sigLen))
	if err != nil {
		return primitives.Transaction{}, err
	}
	tx.Signature = append([]byte(nil), sig...)
	txType, err := c.ReadU8()
	if err != nil {
		return primitives.Transaction{}, err
	}
	tx.TxType = primitives.TxType(txType)
	return tx, nil
}

func appendU256(out []byte, v *primitives.U256) []byte {
	if v == nil {
		var zero [32]byte
		return append(out, zero[:]...)
	}
	b := v.Bytes32()
	return append(out, b[:]...)
}

func readU256(c *primitives.Cursor) (*primitives.U256, error) {
	b, err := c.ReadExact(32)
	if err != nil {
		return nil, err
	}
	return primitives.U256FromBig(b), nil
}

// EncodeHeader reuses HeaderPreimage: a header's wire form and its
// hash-preimage are the same bytes, since nothing about a header is
// kept secret from peers.
func EncodeHeader(h primitives.Header) []byte { return primitives.HeaderPreimage(h) }

func DecodeHeader(c *primitives.Cursor) (primitives.Header, error) {
	var h primitives.Header
	var err error
	if h.Version, err = c.ReadU32LE(); err != nil {
		return primitives.Header{}, err
	}
	if h.SelectedParent, err = c.ReadHash(); err != nil {
		return primitives.Header{}, err
	}
	n, err := c.ReadVarint()
	if err != nil {
		return primitives.Header{}, err
	}
	h.MergeParents = make([]primitives.Hash, 0, n)
	for i := uint64(0); i < n; i++ {
		p, err := c.ReadHash()
		if err != nil {
			return primitives.Header{}, err
		}
		h.MergeParents = append(h.MergeParents, p)
	}
	if h.Timestamp, err = c.ReadU64LE(); err != nil {
		return primitives.Header{}, err
	}
	if h.Height, err = c.ReadU64LE(); err != nil {
		return primitives.Header{}, err
	}
	if h.BlueScore, err = c.ReadU64LE(); err != nil {
		return primitives.Header{}, err
	}
	bwLen, err := c.ReadVarint()
	if err != nil {
		return primitives.Header{}, err
	}
	bw, err := c.ReadExact(int(bwLen))
	if err != nil {
		return primitives.Header{}, err
	}
	h.BlueWork = append([]byte(nil), bw...)
	if h.PruningPoint, err = c.ReadHash(); err != nil {
		return primitives.Header{}, err
	}
	ppk, err := c.ReadExact(32)
	if err != nil {
		return primitives.Header{}, err
	}
	copy(h.ProposerPubkey[:], ppk)
	vrfLen, err := c.ReadVarint()
	if err != nil {
		return primitives.Header{}, err
	}
	vrf, err := c.ReadExact(int(vrfLen))
	if err != nil {
		return primitives.Header{}, err
	}
	h.VRFProof = append([]byte(nil), vrf...)
	if h.StateRoot, err = c.ReadHash(); err != nil {
		return primitives.Header{}, err
	}
	if h.TxRoot, err = c.ReadHash(); err != nil {
		return primitives.Header{}, err
	}
	if h.ReceiptRoot, err = c.ReadHash(); err != nil {
		return primitives.Header{}, err
	}
	if h.ArtifactRoot, err = c.ReadHash(); err != nil {
		return primitives.Header{}, err
	}
	return h, nil
}

func encodeGhostDAGParams(p primitives.GhostDAGParams) []byte {
	out := make([]byte, 0, 24)
	out = primitives.AppendU32LE(out, p.K)
	out = primitives.AppendU64LE(out, p.PruningWindow)
	out = primitives.AppendU64LE(out, p.FinalityDepth)
	out = primitives.AppendU32LE(out, p.MaxParents)
	return out
}

func decodeGhostDAGParams(c *primitives.Cursor) (primitives.GhostDAGParams, error) {
	var p primitives.GhostDAGParams
	var err error
	if p.K, err = c.ReadU32LE(); err != nil {
		return p, err
	}
	if p.PruningWindow, err = c.ReadU64LE(); err != nil {
		return p, err
	}
	if p.FinalityDepth, err = c.ReadU64LE(); err != nil {
		return p, err
	}
	if p.MaxParents, err = c.ReadU32LE(); err != nil {
		return p, err
	}
	return p, nil
}

// EncodeBlock is the full wire form of a block: header, its GhostDAG
// params, every transaction, and the proposer signature.
func EncodeBlock(b primitives.Block) []byte {
	out := make([]byte, 0, 512)
	hdr := EncodeHeader(b.Header)
	out = primitives.AppendVarint(out, uint64(len(hdr)))
	out = append(out, hdr...)
	out = append(out, encodeGhostDAGParams(b.GhostDAGParams)...)
	out = primitives.AppendVarint(out, uint64(len(b.Transactions)))
	for _, tx := range b.Transactions {
		enc := EncodeTx(tx)
		out = primitives.AppendVarint(out, uint64(len(enc)))
		out = append(out, enc...)
	}
	out = primitives.AppendVarint(out, uint64(len(b.ProposerSig)))
	out = append(out, b.ProposerSig...)
	return out
}

func DecodeBlock(raw []byte) (primitives.Block, error) {
	c := primitives.NewCursor(raw)
	hdrLen, err := c.ReadVarint()
	if err != nil {
		return primitives.Block{}, err
	}
	hdrBytes, err := c.ReadExact(int(hdrLen))
	if err != nil {
		return primitives.Block{}, err
	}
	header, err := DecodeHeader(primitives.NewCursor(hdrBytes))
	if err != nil {
		return primitives.Block{}, err
	}
	params, err := decodeGhostDAGParams(c)
	if err != nil {
		return primitives.Block{}, err
	}
	txCount, err := c.ReadVarint()
	if err != nil {
		return primitives.Block{}, err
	}
	txs := make([]primitives.Transaction, 0, txCount)
	for i := uint64(0); i < txCount; i++ {
		l, err := c.ReadVarint()
		if err != nil {
			return primitives.Block{}, err
		}
		txBytes, err := c.ReadExact(int(l))
		if err != nil {
			return primitives.Block{}, err
		}
		tx, err := DecodeTx(primitives.NewCursor(txBytes))
		if err != nil {
			return primitives.Block{}, err
		}
		txs = append(txs, tx)
	}
	sigLen, err := c.ReadVarint()
	if err != nil {
		return primitives.Block{}, err
	}
	sig, err := c.ReadExact(int(sigLen))
	if err != nil {
		return primitives.Block{}, err
	}
	return primitives.Block{
		Header:         header,
		GhostDAGParams: params,
		Transactions:   txs,
		ProposerSig:    append([]byte(nil), sig...),
	}, nil
}
