package primitives

import "github.com/ethereum/go-ethereum/rlp"

// Log is an EVM event log entry, RLP-encoded for inclusion in the
// receipt root the same way go-ethereum shapes its transaction receipts.
type Log struct {
	Address Address
	Topics  []Hash
	Data    []byte
}

type ReceiptStatus uint8

const (
	ReceiptStatusFailed ReceiptStatus = iota
	ReceiptStatusSuccess
)

type Receipt struct {
	TxHash      Hash
	BlockHash   Hash
	BlockNumber uint64
	From        Address
	To          *Address
	GasUsed     uint64
	Status      ReceiptStatus
	Logs        []Log
	Output      []byte
}

// rlpLog/rlpReceipt mirror the public types field-for-field; go-ethereum's
// rlp package requires concrete, non-pointer-slice-of-pointer shapes for
// deterministic encoding, so pointers are flattened here.
type rlpLog struct {
	Address [20]byte
	Topics  [][32]byte
	Data    []byte
}

type rlpReceipt struct {
	TxHash      [32]byte
	BlockHash   [32]byte
	BlockNumber uint64
	From        [20]byte
	HasTo       bool
	To          [20]byte
	GasUsed     uint64
	Status      uint8
	Logs        []rlpLog
	Output      []byte
}

// EncodeRLP produces the canonical RLP encoding of r, used both to hash
// the receipt for the receipt root and to persist it in the block
// store's receipts column family.
func (r Receipt) EncodeRLP() ([]byte, error) {
	rr := rlpReceipt{
		TxHash:      r.TxHash,
		BlockHash:   r.BlockHash,
		BlockNumber: r.BlockNumber,
		From:        r.From,
		GasUsed:     r.GasUsed,
		Status:      uint8(r.Status),
		Output:      r.Output,
	}
	if r.To != nil {
		rr.HasTo = true
		rr.To = *r.To
	}
	rr.Logs = make([]rlpLog, len(r.Logs))
	for i, l := range r.Logs {
		topics := make([][32]byte, len(l.Topics))
		for j, t := range l.Topics {
			topics[j] = t
		}
		rr.Logs[i] = rlpLog{Address: l.Address, Topics: topics, Data: l.Data}
	}
	return rlp.EncodeToBytes(rr)
}

// DecodeReceiptRLP is the inverse of EncodeRLP.
func DecodeReceiptRLP(b []byte) (Receipt, error) {
	var rr rlpReceipt
	if err := rlp.DecodeBytes(b, &rr); err != nil {
		return Receipt{}, err
	}
	r := Receipt{
		TxHash:      rr.TxHash,
		BlockHash:   rr.BlockHash,
		BlockNumber: rr.BlockNumber,
		From:        rr.From,
		GasUsed:     rr.GasUsed,
		Status:      ReceiptStatus(rr.Status),
		Output:      rr.Output,
	}
	if rr.HasTo {
		to := Address(rr.To)
		r.To = &to
	}
	r.Logs = make([]Log, len(rr.Logs))
	for i, l := range rr.Logs {
		topics := make([]Hash, len(l.Topics))
		for j, t := range l.Topics {
			topics[j] = t
		}
		r.Logs[i] = Log{Address: l.Address, Topics: topics, Data: l.Data}
	}
	return r, nil
}

// ReceiptHash is the content hash used as a merkle leaf for receipt_root.
func ReceiptHash(r Receipt) (Hash, error) {
	b, err := r.EncodeRLP()
	if err != nil {
		return Hash{}, err
	}
	return Keccak256(b), nil
}
