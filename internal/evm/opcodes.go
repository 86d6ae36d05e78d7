package evm

import "lattice.dev/node/internal/primitives"

type opcode byte

const (
	opSTOP       opcode = 0x00
	opADD        opcode = 0x01
	opMUL        opcode = 0x02
	opSUB        opcode = 0x03
	opDIV        opcode = 0x04
	opMOD        opcode = 0x06
	opEXP        opcode = 0x0A
	opLT         opcode = 0x10
	opGT         opcode = 0x11
	opEQ         opcode = 0x14
	opISZERO     opcode = 0x15
	opAND        opcode = 0x16
	opOR         opcode = 0x17
	opXOR        opcode = 0x18
	opNOT        opcode = 0x19
	opSHL        opcode = 0x1B
	opSHR        opcode = 0x1C
	opSHA3       opcode = 0x20
	opADDRESS    opcode = 0x30
	opBALANCE    opcode = 0x31
	opCALLER     opcode = 0x33
	opCALLVALUE  opcode = 0x34
	opCALLDATALOAD opcode = 0x35
	opCALLDATASIZE opcode = 0x36
	opCALLDATACOPY opcode = 0x37
	opCODESIZE   opcode = 0x38
	opCODECOPY   opcode = 0x39
	opGASPRICE   opcode = 0x3A
	opTIMESTAMP  opcode = 0x42
	opNUMBER     opcode = 0x43
	opCHAINID    opcode = 0x46
	opMLOAD      opcode = 0x51
	opMSTORE     opcode = 0x52
	opMSTORE8    opcode = 0x53
	opSLOAD      opcode = 0x54
	opSSTORE     opcode = 0x55
	opJUMP       opcode = 0x56
	opJUMPI      opcode = 0x57
	opPC         opcode = 0x58
	opGAS        opcode = 0x5A
	opJUMPDEST   opcode = 0x5B
	opPUSH1      opcode = 0x60
	opPUSH32     opcode = 0x7F
	opDUP1       opcode = 0x80
	opDUP16      opcode = 0x8F
	opSWAP1      opcode = 0x90
	opSWAP16     opcode = 0x9F
	opRETURN     opcode = 0xF3
	opREVERT     opcode = 0xFD
	opCALL       opcode = 0xF1
	opCALLCODE   opcode = 0xF2
	opDELEGATECALL opcode = 0xF4
	opSTATICCALL opcode = 0xFA
	opCREATE     opcode = 0xF0
	opCREATE2    opcode = 0xF5
	opPOP        opcode = 0x50
)

// step executes one instruction, returning (returnData, halted, error).
// halted is true for STOP/RETURN/REVERT; error is a *Failure on any
// abnormal condition.
func (m *machine) step(op opcode) ([]byte, bool, error) {
	switch {
	case op == opSTOP:
		return nil, true, nil
	case op == opADD:
		return nil, false, m.binOp(GasAdd, func(a, b *primitives.U256) *primitives.U256 { return new(primitives.U256).Add(a, b) })
	case op == opMUL:
		return nil, false, m.binOp(GasMul, func(a, b *primitives.U256) *primitives.U256 { return new(primitives.U256).Mul(a, b) })
	case op == opSUB:
		return nil, false, m.binOp(GasSub, func(a, b *primitives.U256) *primitives.U256 { return new(primitives.U256).Sub(a, b) })
	case op == opDIV:
		return nil, false, m.binOp(GasDiv, func(a, b *primitives.U256) *primitives.U256 {
			if b.IsZero() {
				return primitives.NewU256(0)
			}
			return new(primitives.U256).Div(a, b)
		})
	case op == opMOD:
		return nil, false, m.binOp(GasDiv, func(a, b *primitives.U256) *primitives.U256 {
			if b.IsZero() {
				return primitives.NewU256(0)
			}
			return new(primitives.U256).Mod(a, b)
		})
	case op == opEXP:
		return nil, false, m.expOp()
	case op == opLT:
		return nil, false, m.boolOp(GasAdd, func(a, b *primitives.U256) bool { return a.Lt(b) })
	case op == opGT:
		return nil, false, m.boolOp(GasAdd, func(a, b *primitives.U256) bool { return a.Gt(b) })
	case op == opEQ:
		return nil, false, m.boolOp(GasAdd, func(a, b *primitives.U256) bool { return a.Eq(b) })
	case op == opISZERO:
		return nil, false, m.unaryBoolOp(GasAdd, func(a *primitives.U256) bool { return a.IsZero() })
	case op == opAND:
		return nil, false, m.binOp(GasAdd, func(a, b *primitives.U256) *primitives.U256 { return new(primitives.U256).And(a, b) })
	case op == opOR:
		return nil, false, m.binOp(GasAdd, func(a, b *primitives.U256) *primitives.U256 { return new(primitives.U256).Or(a, b) })
	case op == opXOR:
		return nil, false, m.binOp(GasAdd, func(a, b *primitives.U256) *primitives.U256 { return new(primitives.U256).Xor(a, b) })
	case op == opNOT:
		return nil, false, m.unaryOp(GasAdd, func(a *primitives.U256) *primitives.U256 { return new(primitives.U256).Not(a) })
	case op == opSHL:
		return nil, false, m.binOp(GasAdd, func(a, b *primitives.U256) *primitives.U256 {
			return new(primitives.U256).Lsh(b, uint(a.Uint64()))
		})
	case op == opSHR:
		return nil, false, m.binOp(GasAdd, func(a, b *primitives.U256) *primitives.U256 {
			return new(primitives.U256).Rsh(b, uint(a.Uint64()))
		})
	case op == opSHA3:
		return nil, false, m.sha3Op()
	case op == opADDRESS:
		return nil, false, m.pushAddress(m.ctx.Address)
	case op == opBALANCE:
		return nil, false, m.balanceOp()
	case op == opCALLER:
		return nil, false, m.pushAddress(m.ctx.Caller)
	case op == opCALLVALUE:
		return nil, false, m.pushConst(m.ctx.CallValue)
	case op == opCALLDATALOAD:
		return nil, false, m.callDataLoad()
	case op == opCALLDATASIZE:
		return nil, false, m.pushConst(primitives.NewU256(uint64(len(m.ctx.CallData))))
	case op == opCALLDATACOPY:
		return nil, false, m.dataCopy(m.ctx.CallData)
	case op == opCODESIZE:
		return nil, false, m.pushConst(primitives.NewU256(uint64(len(m.ctx.Code))))
	case op == opCODECOPY:
		return nil, false, m.dataCopy(m.ctx.Code)
	case op == opGASPRICE:
		return nil, false, m.pushConst(m.ctx.GasPrice)
	case op == opTIMESTAMP:
		return nil, false, m.pushConst(primitives.NewU256(m.ctx.Timestamp))
	case op == opNUMBER:
		return nil, false, m.pushConst(primitives.NewU256(m.ctx.Number))
	case op == opCHAINID:
		return nil, false, m.pushConst(primitives.NewU256(m.ctx.ChainID))
	case op == opMLOAD:
		return nil, false, m.mload()
	case op == opMSTORE:
		return nil, false, m.mstore(32)
	case op == opMSTORE8:
		return nil, false, m.mstore(1)
	case op == opSLOAD:
		return nil, false, m.sload()
	case op == opSSTORE:
		return nil, false, m.sstore()
	case op == opJUMP:
		return nil, false, m.jump(false)
	case op == opJUMPI:
		return nil, false, m.jump(true)
	case op == opPC:
		if err := m.charge(2); err != nil {
			return nil, false, err
		}
		err := m.push(primitives.NewU256(uint64(m.pc)))
		m.pc++
		return nil, false, err
	case op == opGAS:
		if err := m.charge(2); err != nil {
			return nil, false, err
		}
		err := m.push(primitives.NewU256(m.gasLimit - m.gasUsed))
		m.pc++
		return nil, false, err
	case op == opJUMPDEST:
		if err := m.charge(1); err != nil {
			return nil, false, err
		}
		m.pc++
		return nil, false, nil
	case op == opPOP:
		if err := m.charge(2); err != nil {
			return nil, false, err
		}
		_, err := m.pop()
		m.pc++
		return nil, false, err
	case op >= opPUSH1 && op <= opPUSH32:
		return nil, false, m.pushN(int(op-opPUSH1) + 1)
	case op >= opDUP1 && op <= opDUP16:
		return nil, false, m.dup(int(op-opDUP1) + 1)
	case op >= opSWAP1 && op <= opSWAP16:
		return nil, false, m.swap(int(op-opSWAP1) + 1)
	case op == opRETURN:
		return m.returnData()
	case op == opREVERT:
		return m.revertData()
	case op == opCALL, op == opSTATICCALL, op == opDELEGATECALL, op == opCALLCODE:
		return nil, false, m.callOp(op)
	case op == opCREATE, op == opCREATE2:
		return nil, false, m.createOp(op)
	default:
		return nil, false, &Failure{Kind: FailInvalidOpcode}
	}
}
