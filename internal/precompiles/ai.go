// ai.go implements spec.md §4.8's AI precompile range: addresses whose
// first 18 bytes are zero and 19th byte is 0x01, with the 20th byte
// selecting the operation.
package precompiles

import (
	"encoding/binary"
	"encoding/json"
	"math"

	"lattice.dev/node/internal/primitives"
)

type ModelRegistry interface {
	Deploy(modelBytes, metadata []byte) (primitives.Hash, error)
	Infer(modelID primitives.Hash, input []float32) ([]float32, error)
	Metadata(modelID primitives.Hash) ([]byte, error)
	VerifyProof(modelID primitives.Hash, proof []byte) bool
	Benchmark(modelID primitives.Hash) ([]byte, error)
}

func aiAddr(n byte) Address {
	var a Address
	a[18] = 0x01
	a[19] = n
	return a
}

var (
	AddrModelDeploy     = aiAddr(0x00)
	AddrModelInference  = aiAddr(0x01)
	AddrBatchInference  = aiAddr(0x02)
	AddrModelMetadata   = aiAddr(0x03)
	AddrProofVerify     = aiAddr(0x04)
	AddrModelBenchmark  = aiAddr(0x05)
)

const (
	aiGasBase           = 1000
	inferenceBase       = 50_000
	inferencePerMB      = 10_000
	modelRegisterGas    = 100_000
	trainingSubmitGas   = 200_000
	batchDiscountNumer  = 80 // 20% discount: 80/100
	batchDiscountDenom  = 100
)

// RunAI dispatches an AI precompile call; ok is false if addr is not
// in the AI range.
func RunAI(registry ModelRegistry, addr Address, input []byte) (Output, bool) {
	if addr[18] != 0x01 {
		return Output{}, false
	}
	for _, b := range addr[:18] {
		if b != 0 {
			return Output{}, false
		}
	}
	switch addr[19] {
	case 0x00:
		return modelDeploy(registry, input), true
	case 0x01:
		return modelInference(registry, input), true
	case 0x02:
		return batchInference(registry, input), true
	case 0x03:
		return modelMetadata(registry, input), true
	case 0x04:
		return proofVerify(registry, input), true
	case 0x05:
		return modelBenchmark(registry, input), true
	default:
		return Output{}, false
	}
}

func inputGas(size int) uint64 { return aiGasBase + uint64(size) }

// modelDeploy parses len||metadata_len||model_bytes||metadata, where
// len and metadata_len are each 8-byte big-endian lengths.
func modelDeploy(registry ModelRegistry, input []byte) Output {
	if len(input) < 16 {
		return Output{Data: make([]byte, 32), GasUsed: modelRegisterGas}
	}
	modelLen := binary.BigEndian.Uint64(input[0:8])
	metaLen := binary.BigEndian.Uint64(input[8:16])
	rest := input[16:]
	if uint64(len(rest)) < modelLen+metaLen {
		return Output{Data: make([]byte, 32), GasUsed: modelRegisterGas}
	}
	modelBytes := rest[:modelLen]
	metadata := rest[modelLen : modelLen+metaLen]

	id, err := registry.Deploy(modelBytes, metadata)
	if err != nil {
		return Output{Data: make([]byte, 32), GasUsed: modelRegisterGas}
	}
	mb := float64(len(modelBytes)) / (1 << 20)
	gas := modelRegisterGas + uint64(mb*inferencePerMB)
	return Output{Data: id[:], GasUsed: gas}
}

func modelInference(registry ModelRegistry, input []byte) Output {
	if len(input) < 32 {
		return Output{Data: nil, GasUsed: inferenceBase}
	}
	var modelID primitives.Hash
	copy(modelID[:], input[:32])
	floats := decodeFloats(input[32:])

	out, err := registry.Infer(modelID, floats)
	gas := inferenceBase + uint64(float64(len(input))/(1<<20)*inferencePerMB)
	if err != nil {
		return Output{Data: nil, GasUsed: gas}
	}
	return Output{Data: encodeFloats(out), GasUsed: gas}
}

// batchInference applies a 20% discount vs. serial inference, per
// spec.md §4.8.
func batchInference(registry ModelRegistry, input []byte) Output {
	if len(input) < 64 {
		return Output{Data: nil, GasUsed: inferenceBase}
	}
	var modelID primitives.Hash
	copy(modelID[:], input[:32])
	batchSize := binary.BigEndian.Uint64(input[56:64])
	rest := input[64:]

	if batchSize == 0 || uint64(len(rest))%batchSize != 0 {
		return Output{Data: nil, GasUsed: inferenceBase}
	}
	itemSize := uint64(len(rest)) / batchSize

	var allOut []byte
	serialGas := uint64(0)
	for i := uint64(0); i < batchSize; i++ {
		chunk := rest[i*itemSize : (i+1)*itemSize]
		floats := decodeFloats(chunk)
		out, err := registry.Infer(modelID, floats)
		serialGas += inferenceBase + uint64(float64(len(chunk))/(1<<20)*inferencePerMB)
		if err != nil {
			continue
		}
		allOut = append(allOut, encodeFloats(out)...)
	}
	gas := serialGas * batchDiscountNumer / batchDiscountDenom
	return Output{Data: allOut, GasUsed: gas}
}

func modelMetadata(registry ModelRegistry, input []byte) Output {
	if len(input) < 32 {
		return Output{Data: nil, GasUsed: aiGasBase}
	}
	var modelID primitives.Hash
	copy(modelID[:], input[:32])
	meta, err := registry.Metadata(modelID)
	if err != nil {
		meta, _ = json.Marshal(map[string]string{"error": "not_found"})
	}
	return Output{Data: meta, GasUsed: inputGas(len(input))}
}

func proofVerify(registry ModelRegistry, input []byte) Output {
	if len(input) < 32 {
		return Output{Data: []byte{0x00}, GasUsed: aiGasBase}
	}
	var modelID primitives.Hash
	copy(modelID[:], input[:32])
	proof := input[32:]
	ok := registry.VerifyProof(modelID, proof)
	out := byte(0x00)
	if ok {
		out = 0x01
	}
	return Output{Data: []byte{out}, GasUsed: inputGas(len(input))}
}

func modelBenchmark(registry ModelRegistry, input []byte) Output {
	if len(input) < 32 {
		return Output{Data: nil, GasUsed: trainingSubmitGas}
	}
	var modelID primitives.Hash
	copy(modelID[:], input[:32])
	out, err := registry.Benchmark(modelID)
	if err != nil {
		out, _ = json.Marshal(map[string]string{"error": "not_found"})
	}
	return Output{Data: out, GasUsed: trainingSubmitGas}
}

func decodeFloats(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		bits := binary.BigEndian.Uint32(b[i*4:])
		out[i] = math.Float32frombits(bits)
	}
	return out
}

func encodeFloats(fs []float32) []byte {
	out := make([]byte, len(fs)*4)
	for i, f := range fs {
		binary.BigEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}
