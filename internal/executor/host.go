// host.go wires internal/evm's Host callback interface to this
// package's per-call-frame state view, so CALL/STATICCALL/DELEGATECALL/
// CREATE/CREATE2 inside a contract's bytecode actually recurse into the
// executor instead of being unreachable opcodes. Grounded on the same
// apply-then-snapshot-then-revert shape applyTx already uses for
// top-level transactions (see executor.go), one call-frame deeper.
package executor

import (
	"lattice.dev/node/internal/evm"
	"lattice.dev/node/internal/nodeerrors"
	"lattice.dev/node/internal/precompiles"
	"lattice.dev/node/internal/primitives"
)

// evmHost implements evm.Host against a single block's open State,
// closing over the header/chainID/gas-price facts every nested
// CallContext needs and the call-stack depth the next frame runs at.
type evmHost struct {
	ex       *BlockExecutor
	state    *State
	header   primitives.Header
	gasPrice *primitives.U256
	depth    int
}

func (ex *BlockExecutor) hostFor(state *State, header primitives.Header, gasPrice *primitives.U256, depth int) *evmHost {
	return &evmHost{ex: ex, state: state, header: header, gasPrice: valueOrZero(gasPrice), depth: depth}
}

func (h *evmHost) child() *evmHost {
	return h.ex.hostFor(h.state, h.header, h.gasPrice, h.depth+1)
}

// Call runs codeAddr's code (or a standard/AI precompile, if codeAddr
// names one) as a nested frame observing execAddr's own storage and
// balance, journaling the value transfer and every state change the
// nested frame makes so a failure unwinds exactly that frame.
func (h *evmHost) Call(caller, codeAddr, execAddr primitives.Address, value *primitives.U256, input []byte, gas uint64, static bool) ([]byte, uint64, error) {
	snapshot := h.state.Snapshot()

	if value != nil && !value.IsZero() {
		if static {
			return nil, 0, nodeerrors.Invalid("EVM_STATIC_VALUE_TRANSFER", "value transfer inside a static call")
		}
		sender := h.state.GetAccount(caller)
		if sender.Balance.Lt(value) {
			return nil, 0, nodeerrors.Invalid("EXECUTOR_INSUFFICIENT_BALANCE", "call value exceeds balance")
		}
		sender.Balance = new(primitives.U256).Sub(sender.Balance, value)
		h.state.SetAccount(caller, sender)
		recipient := h.state.GetAccount(execAddr)
		recipient.Balance = new(primitives.U256).Add(recipient.Balance, value)
		h.state.SetAccount(execAddr, recipient)
	}

	if out, ok := precompiles.Run(codeAddr, input); ok {
		return h.settlePrecompile(out, gas, snapshot)
	}
	if out, ok := precompiles.RunAI(h.ex.registry, codeAddr, input); ok {
		return h.settlePrecompile(out, gas, snapshot)
	}

	code := h.state.GetCode(codeAddr)
	ctx := evm.CallContext{
		Address:   execAddr,
		Caller:    caller,
		CallValue: valueOrZero(value),
		CallData:  input,
		Code:      code,
		GasPrice:  h.gasPrice,
		Timestamp: h.header.Timestamp,
		Number:    h.header.Height,
		ChainID:   h.ex.chainID,
	}
	interp := evm.NewInterpreterWithHost(h.state, h.child(), h.depth+1)
	result, err := interp.Run(ctx, gas)
	if err != nil {
		h.state.RevertToSnapshot(snapshot)
		return result.ReturnData, result.GasUsed, err
	}
	return result.ReturnData, result.GasUsed, nil
}

func (h *evmHost) settlePrecompile(out precompiles.Output, gas uint64, snapshot int) ([]byte, uint64, error) {
	if out.GasUsed > gas {
		h.state.RevertToSnapshot(snapshot)
		return nil, gas, nodeerrors.ResourceExhaustion("EXECUTOR_OUT_OF_GAS", "precompile gas exceeds forwarded gas")
	}
	return out.Data, out.GasUsed, nil
}

// Create deploys initCode as a new contract's code, deriving its
// address the CREATE way (Keccak256(caller || nonce || initCode)[12:],
// the same derivation TxDeploy uses) or, for
// CREATE2 (salt != nil), the CREATE2 way (Keccak256(0xff || caller ||
// salt || Keccak256(initCode))[12:]).
func (h *evmHost) Create(caller primitives.Address, value *primitives.U256, initCode []byte, gas uint64, salt *primitives.U256) (primitives.Address, []byte, uint64, error) {
	creator := h.state.GetAccount(caller)
	var contractAddr primitives.Address
	if salt != nil {
		contractAddr = create2Address(caller, *salt, initCode)
	} else {
		contractAddr = deployAddress(caller, creator.Nonce, initCode)
	}
	creator.Nonce++
	h.state.SetAccount(caller, creator)

	snapshot := h.state.Snapshot()

	if value != nil && !value.IsZero() {
		sender := h.state.GetAccount(caller)
		if sender.Balance.Lt(value) {
			h.state.RevertToSnapshot(snapshot)
			return contractAddr, nil, 0, nodeerrors.Invalid("EXECUTOR_INSUFFICIENT_BALANCE", "create value exceeds balance")
		}
		sender.Balance = new(primitives.U256).Sub(sender.Balance, value)
		h.state.SetAccount(caller, sender)
		recipient := h.state.GetAccount(contractAddr)
		recipient.Balance = new(primitives.U256).Add(recipient.Balance, value)
		h.state.SetAccount(contractAddr, recipient)
	}

	ctx := evm.CallContext{
		Address:   contractAddr,
		Caller:    caller,
		CallValue: valueOrZero(value),
		CallData:  nil,
		Code:      initCode,
		GasPrice:  h.gasPrice,
		Timestamp: h.header.Timestamp,
		Number:    h.header.Height,
		ChainID:   h.ex.chainID,
	}
	interp := evm.NewInterpreterWithHost(h.state, h.child(), h.depth+1)
	result, err := interp.Run(ctx, gas)
	if err != nil {
		h.state.RevertToSnapshot(snapshot)
		return contractAddr, result.ReturnData, result.GasUsed, err
	}
	if _, err := h.state.SetCode(contractAddr, result.ReturnData); err != nil {
		h.state.RevertToSnapshot(snapshot)
		return contractAddr, nil, result.GasUsed, err
	}
	return contractAddr, result.ReturnData, result.GasUsed, nil
}

func create2Address(caller primitives.Address, salt primitives.U256, initCode []byte) primitives.Address {
	initCodeHash := primitives.Keccak256(initCode)
	saltBytes := salt.Bytes32()
	digest := primitives.Keccak256([]byte{0xff}, caller[:], saltBytes[:], initCodeHash[:])
	addr, _ := primitives.AddressFromBytes(digest[12:])
	return addr
}
