package p2p

import (
	"bytes"
	"testing"

	"lattice.dev/node/internal/primitives"
)

func TestEncodeDecodeTxRoundtrip(t *testing.T) {
	to := primitives.Address{1, 2, 3}
	tx := primitives.Transaction{
		Nonce:     7,
		To:        &to,
		Value:     primitives.NewU256(100),
		Data:      []byte("payload"),
		GasLimit:  21_000,
		GasPrice:  primitives.NewU256(1),
		Signature: []byte{0xAA, 0xBB},
		TxType:    primitives.TxCall,
	}
	tx.Hash = primitives.ComputeTxHash(tx)

	enc := EncodeTx(tx)
	got, err := DecodeTx(primitives.NewCursor(enc))
	if err != nil {
		t.Fatalf("DecodeTx: %v", err)
	}
	if got.Hash != tx.Hash || got.Nonce != tx.Nonce || got.GasLimit != tx.GasLimit {
		t.Fatalf("got %+v, want %+v", got, tx)
	}
	if got.To == nil || *got.To != to {
		t.Fatalf("To mismatch: got %v", got.To)
	}
	if !bytes.Equal(got.Data, tx.Data) || !bytes.Equal(got.Signature, tx.Signature) {
		t.Fatal("Data/Signature mismatch")
	}
	if got.TxType != primitives.TxCall {
		t.Fatalf("got TxType %v, want TxCall", got.TxType)
	}
}

func TestEncodeDecodeTxNilTo(t *testing.T) {
	tx := primitives.Transaction{
		Nonce:    1,
		Value:    primitives.NewU256(0),
		GasLimit: 21_000,
		GasPrice: primitives.NewU256(1),
		TxType:   primitives.TxDeploy,
	}
	enc := EncodeTx(tx)
	got, err := DecodeTx(primitives.NewCursor(enc))
	if err != nil {
		t.Fatalf("DecodeTx: %v", err)
	}
	if got.To != nil {
		t.Fatalf("expected nil To, got %v", got.To)
	}
}

func TestEncodeDecodeBlockRoundtrip(t *testing.T) {
	to := primitives.Address{9}
	tx := primitives.Transaction{
		Nonce: 1, To: &to, Value: primitives.NewU256(5),
		GasLimit: 21_000, GasPrice: primitives.NewU256(1),
	}
	tx.Hash = primitives.ComputeTxHash(tx)

	block := primitives.Block{
		Header: primitives.Header{
			Version:      1,
			MergeParents: []primitives.Hash{{1}, {2}},
			Timestamp:    1000,
			Height:       5,
			BlueScore:    42,
			BlueWork:     []byte{0x01, 0x02},
		},
		GhostDAGParams: primitives.GhostDAGParams{K: 18, PruningWindow: 100_000, MaxParents: 8},
		Transactions:   []primitives.Transaction{tx},
		ProposerSig:    []byte{0xDE, 0xAD},
	}

	enc := EncodeBlock(block)
	got, err := DecodeBlock(enc)
	if err != nil {
		t.Fatalf("DecodeBlock: %v", err)
	}
	if got.Header.Height != 5 || got.Header.BlueScore != 42 {
		t.Fatalf("header mismatch: %+v", got.Header)
	}
	if len(got.Transactions) != 1 || got.Transactions[0].Hash != tx.Hash {
		t.Fatalf("transactions mismatch: %+v", got.Transactions)
	}
	if !bytes.Equal(got.ProposerSig, block.ProposerSig) {
		t.Fatal("ProposerSig mismatch")
	}
	if got.GhostDAGParams.K != 18 {
		t.Fatalf("params mismatch: %+v", got.GhostDAGParams)
	}
}

func TestModelAnnounceRoundtrip(t *testing.T) {
	m := ModelAnnounce{
		ModelID:   primitives.Hash{1},
		ModelHash: primitives.Hash{2},
		Owner:     primitives.Address{3},
		Metadata:  []byte(`{"name":"test"}`),
		WeightCID: primitives.Hash{4},
	}
	got, err := DecodeModelAnnounce(m.Encode())
	if err != nil {
		t.Fatalf("DecodeModelAnnounce: %v", err)
	}
	if got.ModelID != m.ModelID || got.Owner != m.Owner || string(got.Metadata) != string(m.Metadata) {
		t.Fatalf("got %+v, want %+v", got, m)
	}
}

func TestInferenceRequestResponseRoundtrip(t *testing.T) {
	req := InferenceRequest{RequestID: primitives.Hash{1}, ModelID: primitives.Hash{2}, Input: []byte{1, 2, 3}}
	gotReq, err := DecodeInferenceRequest(req.Encode())
	if err != nil {
		t.Fatalf("DecodeInferenceRequest: %v", err)
	}
	if gotReq.RequestID != req.RequestID || !bytes.Equal(gotReq.Input, req.Input) {
		t.Fatalf("got %+v, want %+v", gotReq, req)
	}

	resp := InferenceResponse{RequestID: req.RequestID, Output: []byte{9, 9}}
	gotResp, err := DecodeInferenceResponse(resp.Encode())
	if err != nil {
		t.Fatalf("DecodeInferenceResponse: %v", err)
	}
	if gotResp.RequestID != resp.RequestID || !bytes.Equal(gotResp.Output, resp.Output) || gotResp.Err != "" {
		t.Fatalf("got %+v, want %+v", gotResp, resp)
	}
}

func TestWeightSyncAndGradientSubmissionRoundtrip(t *testing.T) {
	ws := WeightSync{ModelID: primitives.Hash{1}, WeightCID: primitives.Hash{2}, Version: 3}
	gotWS, err := DecodeWeightSync(ws.Encode())
	if err != nil {
		t.Fatalf("DecodeWeightSync: %v", err)
	}
	if gotWS != ws {
		t.Fatalf("got %+v, want %+v", gotWS, ws)
	}

	gs := GradientSubmission{JobID: primitives.Hash{1}, Submitter: primitives.Address{2}, GradientCID: primitives.Hash{3}}
	gotGS, err := DecodeGradientSubmission(gs.Encode())
	if err != nil {
		t.Fatalf("DecodeGradientSubmission: %v", err)
	}
	if gotGS != gs {
		t.Fatalf("got %+v, want %+v", gotGS, gs)
	}
}
