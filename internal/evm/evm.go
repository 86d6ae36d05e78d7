// Package evm implements the stack-machine interpreter described in
// spec.md §4.7: 256-bit big-endian words via github.com/holiman/uint256,
// a byte-addressable memory, persistent storage keyed by (address, key),
// and the exact gas schedule spec.md requires implementers to match.
// The interpreter core is a hand-written opcode switch (see DESIGN.md's
// stdlib-justification entry: no example repo carries a general-purpose
// bytecode interpreter to adapt, so this is grounded on the spec's own
// opcode table rather than on teacher code), but every numeric type
// flowing through it is holiman/uint256, matching the rest of the module.
package evm

import (
	"lattice.dev/node/internal/nodeerrors"
	"lattice.dev/node/internal/primitives"
)

type FailureKind string

const (
	FailOutOfGas                FailureKind = "OutOfGas"
	FailStackOverflow            FailureKind = "StackOverflow"
	FailStackUnderflow           FailureKind = "StackUnderflow"
	FailInvalidOpcode            FailureKind = "InvalidOpcode"
	FailInvalidJumpDestination   FailureKind = "InvalidJumpDestination"
	FailReverted                FailureKind = "Reverted"
	// FailNoHost fires when CALL/STATICCALL/DELEGATECALL/CREATE/CREATE2
	// run against an Interpreter built without a Host (e.g. the bare
	// NewInterpreter used by package tests and precompile sandboxes):
	// rather than pushing a plausible-looking failure sentinel for an
	// opcode that silently can never recurse, the machine halts loudly.
	FailNoHost FailureKind = "NoHost"
	// FailCallDepthExceeded is the ordinary (gas-preserving) failure mode
	// when a nested CALL/CREATE would exceed maxCallDepth, mirroring the
	// EVM convention that hitting the depth limit fails the call without
	// burning the caller's remaining gas.
	FailCallDepthExceeded FailureKind = "CallDepthExceeded"
)

// maxCallDepth bounds CALL/CREATE recursion, matching the conventional
// EVM call-depth limit.
const maxCallDepth = 1024

type Failure struct {
	Kind FailureKind
	Data []byte
}

func (f *Failure) Error() string { return string(f.Kind) }

const maxStackDepth = 1024

// Gas schedule constants, authoritative per spec.md §4.7.
const (
	GasTransfer  uint64 = 21_000
	GasSStore    uint64 = 20_000
	GasSLoad     uint64 = 800
	GasCreate    uint64 = 32_000
	GasCall      uint64 = 700
	GasSHA3      uint64 = 30
	GasSHA3Word  uint64 = 6
	GasAdd       uint64 = 3
	GasSub       uint64 = 3
	GasMul       uint64 = 5
	GasDiv       uint64 = 5
	GasExpBase   uint64 = 10
)

// StateAccess is the narrow view the interpreter needs from account
// storage and code; the executor supplies a trie-backed implementation.
type StateAccess interface {
	GetStorage(addr primitives.Address, key primitives.Hash) primitives.Hash
	SetStorage(addr primitives.Address, key, value primitives.Hash)
	GetBalance(addr primitives.Address) *primitives.U256
	GetCode(addr primitives.Address) []byte
}

// Host is the callback surface CALL/STATICCALL/DELEGATECALL/CREATE/
// CREATE2 use to re-enter the executor's per-call-frame state view
// instead of the interpreter recursing into itself: the executor owns
// account balances, code storage, and the journaled snapshot/revert
// the nested frame must run under.
//
// Call covers CALL, STATICCALL, CALLCODE, and DELEGATECALL alike:
// codeAddr names whose code runs, execAddr names whose
// storage/balance/address the running code observes as its own
// (identical to codeAddr for CALL/STATICCALL/CALLCODE, the current
// frame's own address for DELEGATECALL), caller is CALLER's return
// value inside the nested frame, and value is the balance moved from
// caller to execAddr before the nested frame runs (zero and
// non-transferring for DELEGATECALL/STATICCALL).
type Host interface {
	Call(caller, codeAddr, execAddr primitives.Address, value *primitives.U256, input []byte, gas uint64, static bool) (ret []byte, gasUsed uint64, err error)
	// Create deploys initCode as a new contract's init code at an
	// address derived from caller (and, for CREATE2, salt and the
	// init code's hash), returning the deployed address alongside the
	// usual return-data/gas-used/error triple.
	Create(caller primitives.Address, value *primitives.U256, initCode []byte, gas uint64, salt *primitives.U256) (addr primitives.Address, ret []byte, gasUsed uint64, err error)
}

// CallContext carries the transaction/block facts exposed to CALLER,
// CALLVALUE, GASPRICE, TIMESTAMP, NUMBER, CHAINID, ADDRESS.
type CallContext struct {
	Address   primitives.Address
	Caller    primitives.Address
	CallValue *primitives.U256
	CallData  []byte
	Code      []byte
	GasPrice  *primitives.U256
	Timestamp uint64
	Number    uint64
	ChainID   uint64
}

type Result struct {
	ReturnData []byte
	GasUsed    uint64
}

type Interpreter struct {
	state StateAccess
	host  Host
	depth int
}

// NewInterpreter builds a Host-less interpreter: CALL/STATICCALL/
// DELEGATECALL/CREATE/CREATE2 fail loudly with FailNoHost rather than
// silently no-oping. Used by package tests and any sandboxed run (e.g.
// a precompile's internal scratch execution) that has no per-call-frame
// state view to recurse into.
func NewInterpreter(state StateAccess) *Interpreter {
	return &Interpreter{state: state}
}

// NewInterpreterWithHost builds an interpreter whose CALL/CREATE family
// opcodes recurse through host at the given call-stack depth (0 for a
// top-level transaction's own frame).
func NewInterpreterWithHost(state StateAccess, host Host, depth int) *Interpreter {
	return &Interpreter{state: state, host: host, depth: depth}
}

type machine struct {
	ctx       CallContext
	state     StateAccess
	host      Host
	depth     int
	stack     []*primitives.U256
	memory    []byte
	pc        int
	gasLimit  uint64
	gasUsed   uint64
	jumpdests map[int]bool
}

// Run executes ctx.Code against gasLimit, returning Result or a *Failure
// wrapped as a nodeerrors.Error so callers can dispatch on Kind.
func (in *Interpreter) Run(ctx CallContext, gasLimit uint64) (Result, error) {
	m := &machine{
		ctx:      ctx,
		state:    in.state,
		host:     in.host,
		depth:    in.depth,
		gasLimit: gasLimit,
		jumpdests: findJumpdests(ctx.Code),
	}

	for m.pc < len(ctx.Code) {
		op := opcode(ctx.Code[m.pc])
		ret, halt, err := m.step(op)
		if err != nil {
			return Result{GasUsed: m.gasUsed}, toNodeErr(err)
		}
		if halt {
			return Result{ReturnData: ret, GasUsed: m.gasUsed}, nil
		}
	}
	return Result{GasUsed: m.gasUsed}, nil
}

func toNodeErr(err error) error {
	f, ok := err.(*Failure)
	if !ok {
		return err
	}
	switch f.Kind {
	case FailReverted:
		return nodeerrors.Wrap(nodeerrors.KindInvalid, "EVM_REVERTED", "execution reverted", f)
	case FailOutOfGas:
		return nodeerrors.Wrap(nodeerrors.KindResourceExhaustion, "EVM_OUT_OF_GAS", "out of gas", f)
	default:
		return nodeerrors.Wrap(nodeerrors.KindInvalid, "EVM_"+string(f.Kind), string(f.Kind), f)
	}
}

func findJumpdests(code []byte) map[int]bool {
	dests := make(map[int]bool)
	for i := 0; i < len(code); i++ {
		op := opcode(code[i])
		if op == opJUMPDEST {
			dests[i] = true
		}
		if op >= opPUSH1 && op <= opPUSH32 {
			i += int(op-opPUSH1) + 1
		}
	}
	return dests
}

func (m *machine) charge(gas uint64) error {
	if m.gasUsed+gas > m.gasLimit {
		m.gasUsed = m.gasLimit
		return &Failure{Kind: FailOutOfGas}
	}
	m.gasUsed += gas
	return nil
}

func (m *machine) push(v *primitives.U256) error {
	if len(m.stack) >= maxStackDepth {
		return &Failure{Kind: FailStackOverflow}
	}
	m.stack = append(m.stack, v)
	return nil
}

func (m *machine) pop() (*primitives.U256, error) {
	if len(m.stack) == 0 {
		return nil, &Failure{Kind: FailStackUnderflow}
	}
	v := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	return v, nil
}

func (m *machine) peek(depth int) (*primitives.U256, error) {
	if depth >= len(m.stack) {
		return nil, &Failure{Kind: FailStackUnderflow}
	}
	return m.stack[len(m.stack)-1-depth], nil
}

// ensureMemory grows memory (word-aligned) to cover [offset, offset+size)
// and charges quadratic expansion gas, matching spec.md's "memory
// expansion: quadratic in word-count as per EVM".
func (m *machine) ensureMemory(offset, size uint64) error {
	if size == 0 {
		return nil
	}
	newWords := (offset + size + 31) / 32
	oldWords := uint64(len(m.memory)) / 32
	if newWords <= oldWords {
		return nil
	}
	gasCost := memExpansionGas(newWords) - memExpansionGas(oldWords)
	if err := m.charge(gasCost); err != nil {
		return err
	}
	grown := make([]byte, newWords*32)
	copy(grown, m.memory)
	m.memory = grown
	return nil
}

func memExpansionGas(words uint64) uint64 {
	return 3*words + (words*words)/512
}
