// executor.go implements the block executor of spec.md §4.10: open the
// state view at the parent's committed root, apply every transaction in
// order, and return the state/tx/receipt roots the block header must
// match. Grounded on the same per-tx apply-then-receipt loop the
// go-ethereum-family core/state_processor.go example uses, adapted to
// this module's account model and multi-tx-type dispatch instead of a
// single "call" transaction kind.
package executor

import (
	"lattice.dev/node/internal/evm"
	"lattice.dev/node/internal/nodeerrors"
	"lattice.dev/node/internal/precompiles"
	"lattice.dev/node/internal/primitives"
	"lattice.dev/node/internal/storage"
)

// intrinsicGas is the flat per-transaction charge before any code runs,
// matching spec.md §4.10's "deduct intrinsic gas before dispatch" step.
const intrinsicGas uint64 = 21_000

// BlockExecutor applies blocks against a storage-backed account state,
// routing CALL/CREATE-shaped transactions through the EVM interpreter
// and standard/AI precompiles, and AI-domain transaction types
// (TxModelRegister, TxModelUpdate, TxInferenceRequest, TxGradientSubmit)
// through the same AI precompile range via a synthetic call.
type BlockExecutor struct {
	store    *storage.Store
	registry *ModelRegistry
	chainID  uint64
}

func NewBlockExecutor(store *storage.Store, registry *ModelRegistry, chainID uint64) *BlockExecutor {
	return &BlockExecutor{store: store, registry: registry, chainID: chainID}
}

// ExecuteResult carries everything the caller needs to populate a
// Header's commitment fields and persist receipts.
type ExecuteResult struct {
	StateRoot   primitives.Hash
	TxRoot      primitives.Hash
	ReceiptRoot primitives.Hash
	Receipts    []primitives.Receipt
}

// ExecuteBlock runs spec.md §4.10's three steps: open state, apply each
// transaction in order (signature/nonce check, intrinsic gas, dispatch
// by tx_type, receipt), then compute and return the commitment roots.
func (ex *BlockExecutor) ExecuteBlock(header primitives.Header, txs []primitives.Transaction) (ExecuteResult, error) {
	state, err := Open(ex.store)
	if err != nil {
		return ExecuteResult{}, err
	}

	receipts := make([]primitives.Receipt, 0, len(txs))
	txHashes := make([]primitives.Hash, 0, len(txs))

	for _, tx := range txs {
		receipt, err := ex.applyTx(state, header, tx)
		if err != nil {
			return ExecuteResult{}, err
		}
		receipts = append(receipts, receipt)
		txHashes = append(txHashes, tx.Hash)
	}

	stateRoot, err := state.Commit()
	if err != nil {
		return ExecuteResult{}, err
	}

	var txRoot, receiptRoot primitives.Hash
	if len(txHashes) > 0 {
		txRoot, err = primitives.MerkleRoot(txHashes)
		if err != nil {
			return ExecuteResult{}, err
		}
		receiptHashes := make([]primitives.Hash, len(receipts))
		for i, r := range receipts {
			h, err := primitives.ReceiptHash(r)
			if err != nil {
				return ExecuteResult{}, err
			}
			receiptHashes[i] = h
		}
		receiptRoot, err = primitives.MerkleRoot(receiptHashes)
		if err != nil {
			return ExecuteResult{}, err
		}
	}

	return ExecuteResult{
		StateRoot:   stateRoot,
		TxRoot:      txRoot,
		ReceiptRoot: receiptRoot,
		Receipts:    receipts,
	}, nil
}

// applyTx verifies and applies a single transaction, always returning a
// receipt and a nil error: any validation or dispatch error, including a
// storage error raised while dispatching, yields a receipt with Status
// failed rather than an error from applyTx.
func (ex *BlockExecutor) applyTx(state *State, header primitives.Header, tx primitives.Transaction) (primitives.Receipt, error) {
	from := primitives.DeriveAddress(tx.From)

	receipt := primitives.Receipt{
		TxHash:      tx.Hash,
		BlockHash:   primitives.HeaderHash(header),
		BlockNumber: header.Height,
		From:        from,
		To:          tx.To,
		Status:      primitives.ReceiptStatusFailed,
	}

	if !primitives.VerifyTxSignature(tx) {
		receipt.GasUsed = intrinsicGas
		return receipt, nil
	}

	account := state.GetAccount(from)
	if tx.Nonce != account.Nonce {
		receipt.GasUsed = intrinsicGas
		return receipt, nil
	}
	if tx.GasLimit < intrinsicGas {
		receipt.GasUsed = intrinsicGas
		return receipt, nil
	}

	gasPrice := tx.GasPrice
	if gasPrice == nil {
		gasPrice = primitives.NewU256(0)
	}
	maxCost := new(primitives.U256).Mul(primitives.NewU256(tx.GasLimit), gasPrice)
	if account.Balance == nil || account.Balance.Lt(maxCost) {
		receipt.GasUsed = intrinsicGas
		return receipt, nil
	}

	// Deduct the full gas allowance up front; unused gas is refunded
	// after dispatch, matching the teacher's pay-then-refund gas idiom.
	account.Balance = new(primitives.U256).Sub(account.Balance, maxCost)
	account.Nonce++
	state.SetAccount(from, account)

	snapshot := state.Snapshot()
	gasLimitAfterIntrinsic := tx.GasLimit - intrinsicGas
	gasUsed, output, logs, dispatchErr := ex.dispatch(state, header, tx, from, gasLimitAfterIntrinsic)
	totalGasUsed := intrinsicGas + gasUsed

	if dispatchErr != nil {
		// Reverting only undoes journal entries recorded after the
		// up-front gas debit and nonce bump above: a failed call still
		// consumes gas and advances the nonce, matching spec.md §4.10.
		state.RevertToSnapshot(snapshot)
	}

	refund := new(primitives.U256).Mul(primitives.NewU256(tx.GasLimit-totalGasUsed), gasPrice)
	refundAcct := state.GetAccount(from)
	refundAcct.Balance = new(primitives.U256).Add(refundAcct.Balance, refund)
	state.SetAccount(from, refundAcct)

	receipt.GasUsed = totalGasUsed
	receipt.Output = output
	receipt.Logs = logs
	if dispatchErr == nil {
		receipt.Status = primitives.ReceiptStatusSuccess
	}
	return receipt, nil
}

// dispatch routes a transaction to the right execution path by tx_type,
// per spec.md §4.10's per-type semantics.
func (ex *BlockExecutor) dispatch(state *State, header primitives.Header, tx primitives.Transaction, from primitives.Address, gasLimit uint64) (gasUsed uint64, output []byte, logs []primitives.Log, err error) {
	switch tx.TxType {
	case primitives.TxTransfer:
		return ex.applyTransfer(state, tx, from, gasLimit)
	case primitives.TxDeploy:
		return ex.applyDeploy(state, header, tx, from, gasLimit)
	case primitives.TxCall:
		return ex.applyCall(state, header, tx, from, gasLimit)
	case primitives.TxModelRegister, primitives.TxModelUpdate, primitives.TxInferenceRequest, primitives.TxGradientSubmit:
		return ex.applyAI(tx, gasLimit)
	default:
		return 0, nil, nil, nodeerrors.Invalid("EXECUTOR_UNKNOWN_TX_TYPE", "unrecognized tx_type")
	}
}

// applyTransfer moves tx.Value from the sender to tx.To. The intrinsic
// charge applyTx already took equals evm.GasTransfer, so a plain transfer
// uses no gas beyond it.
func (ex *BlockExecutor) applyTransfer(state *State, tx primitives.Transaction, from primitives.Address, gasLimit uint64) (uint64, []byte, []primitives.Log, error) {
	if tx.To == nil {
		return 0, nil, nil, nodeerrors.Invalid("EXECUTOR_TRANSFER_NO_RECIPIENT", "transfer requires a recipient")
	}
	value := tx.Value
	if value == nil {
		value = primitives.NewU256(0)
	}
	sender := state.GetAccount(from)
	if sender.Balance.Lt(value) {
		return 0, nil, nil, nodeerrors.Invalid("EXECUTOR_INSUFFICIENT_BALANCE", "transfer value exceeds balance")
	}
	sender.Balance = new(primitives.U256).Sub(sender.Balance, value)
	state.SetAccount(from, sender)

	recipient := state.GetAccount(*tx.To)
	recipient.Balance = new(primitives.U256).Add(recipient.Balance, value)
	state.SetAccount(*tx.To, recipient)

	return 0, nil, nil, nil
}

// applyDeploy runs tx.Data as init code via the EVM interpreter and
// stores whatever it returns as the new contract's code, at the
// CREATE2-style deterministic address Keccak256(from || nonce || data)[12:].
func (ex *BlockExecutor) applyDeploy(state *State, header primitives.Header, tx primitives.Transaction, from primitives.Address, gasLimit uint64) (uint64, []byte, []primitives.Log, error) {
	contractAddr := deployAddress(from, tx.Nonce, tx.Data)

	ctx := evm.CallContext{
		Address:   contractAddr,
		Caller:    from,
		CallValue: valueOrZero(tx.Value),
		CallData:  nil,
		Code:      tx.Data,
		GasPrice:  valueOrZero(tx.GasPrice),
		Timestamp: header.Timestamp,
		Number:    header.Height,
		ChainID:   ex.chainID,
	}
	interp := evm.NewInterpreterWithHost(state, ex.hostFor(state, header, tx.GasPrice, 0), 0)
	result, err := interp.Run(ctx, gasLimit)
	if err != nil {
		return result.GasUsed, nil, nil, err
	}
	if _, err := state.SetCode(contractAddr, result.ReturnData); err != nil {
		return result.GasUsed, nil, nil, err
	}
	return result.GasUsed, contractAddr[:], nil, nil
}

// applyCall runs a standard/AI precompile if tx.To names one, otherwise
// runs the target account's stored code through the EVM interpreter.
func (ex *BlockExecutor) applyCall(state *State, header primitives.Header, tx primitives.Transaction, from primitives.Address, gasLimit uint64) (uint64, []byte, []primitives.Log, error) {
	if tx.To == nil {
		return 0, nil, nil, nodeerrors.Invalid("EXECUTOR_CALL_NO_RECIPIENT", "call requires a target address")
	}
	if out, ok := precompiles.Run(*tx.To, tx.Data); ok {
		return chargeOrFail(gasLimit, out)
	}
	if out, ok := precompiles.RunAI(ex.registry, *tx.To, tx.Data); ok {
		return chargeOrFail(gasLimit, out)
	}

	code := state.GetCode(*tx.To)
	ctx := evm.CallContext{
		Address:   *tx.To,
		Caller:    from,
		CallValue: valueOrZero(tx.Value),
		CallData:  tx.Data,
		Code:      code,
		GasPrice:  valueOrZero(tx.GasPrice),
		Timestamp: header.Timestamp,
		Number:    header.Height,
		ChainID:   ex.chainID,
	}
	if tx.Value != nil && !tx.Value.IsZero() {
		sender := state.GetAccount(from)
		if sender.Balance.Lt(tx.Value) {
			return 0, nil, nil, nodeerrors.Invalid("EXECUTOR_INSUFFICIENT_BALANCE", "call value exceeds balance")
		}
		sender.Balance = new(primitives.U256).Sub(sender.Balance, tx.Value)
		state.SetAccount(from, sender)
		recipient := state.GetAccount(*tx.To)
		recipient.Balance = new(primitives.U256).Add(recipient.Balance, tx.Value)
		state.SetAccount(*tx.To, recipient)
	}
	interp := evm.NewInterpreterWithHost(state, ex.hostFor(state, header, tx.GasPrice, 0), 0)
	result, err := interp.Run(ctx, gasLimit)
	return result.GasUsed, result.ReturnData, nil, err
}

// applyAI dispatches the AI-domain transaction types to the AI
// precompile range using the conventional addresses spec.md §4.8
// assigns them, letting the registry's Deploy/Infer/etc. do the work
// without requiring callers to hand-construct a precompile call.
func (ex *BlockExecutor) applyAI(tx primitives.Transaction, gasLimit uint64) (uint64, []byte, []primitives.Log, error) {
	var addr primitives.Address
	switch tx.TxType {
	case primitives.TxModelRegister, primitives.TxModelUpdate:
		addr = precompiles.AddrModelDeploy
	case primitives.TxInferenceRequest:
		addr = precompiles.AddrModelInference
	case primitives.TxGradientSubmit:
		addr = precompiles.AddrModelBenchmark
	}
	out, ok := precompiles.RunAI(ex.registry, addr, tx.Data)
	if !ok {
		return 0, nil, nil, nodeerrors.Invalid("EXECUTOR_AI_DISPATCH_FAILED", "no AI precompile matched tx_type")
	}
	return chargeOrFail(gasLimit, out)
}

func chargeOrFail(gasLimit uint64, out precompiles.Output) (uint64, []byte, []primitives.Log, error) {
	if out.GasUsed > gasLimit {
		return gasLimit, nil, nil, nodeerrors.ResourceExhaustion("EXECUTOR_OUT_OF_GAS", "precompile gas exceeds limit")
	}
	return out.GasUsed, out.Data, nil, nil
}

func valueOrZero(v *primitives.U256) *primitives.U256 {
	if v == nil {
		return primitives.NewU256(0)
	}
	return v
}

func deployAddress(from primitives.Address, nonce uint64, initCode []byte) primitives.Address {
	nonceBytes := primitives.AppendU64LE(nil, nonce)
	digest := primitives.Keccak256(from[:], nonceBytes, initCode)
	addr, _ := primitives.AddressFromBytes(digest[12:])
	return addr
}
