// Package mempool is the class-aware transaction admission and
// ordering pool (spec.md §4.6): per-class byte quotas, per-sender
// nonce gap limits, replace-by-fee, and a fee-merge ordering across
// senders that still respects class quotas. One pool-wide RWMutex
// guards per-sender nonce maps; there is no ordered index, so eviction
// and GetTransactions scan every entry. Signature checking follows the
// CryptoProvider-style pluggable verification seen in crypto/provider.go.
package mempool

import (
	"sort"
	"sync"

	"lattice.dev/node/internal/nodeerrors"
	"lattice.dev/node/internal/primitives"
)

type Class string

const (
	ClassStandard    Class = "Standard"
	ClassAIInference Class = "AIInference"
	ClassModelDeploy Class = "ModelDeploy"
)

// ClassOf buckets a transaction's TxType into its admission class.
func ClassOf(t primitives.TxType) Class {
	switch t {
	case primitives.TxInferenceRequest, primitives.TxGradientSubmit:
		return ClassAIInference
	case primitives.TxModelRegister, primitives.TxModelUpdate:
		return ClassModelDeploy
	default:
		return ClassStandard
	}
}

// NonceSource resolves a sender's current state-nonce; the mempool
// asks the executor's account view rather than tracking balances itself.
type NonceSource func(sender [32]byte) uint64

type Config struct {
	QuotaBytes    map[Class]uint64
	MinGasPrice   map[Class]*primitives.U256
	ReplaceFactor float64 // e.g. 1.1 for a 10% fee bump requirement
	// NonceGapLimit bounds how far ahead of the sender's state nonce an
	// admitted transaction's nonce may sit (spec.md §4.6's per-sender
	// nonce gap limit). Zero means unbounded, matching the zero-value
	// Config used by callers that never set it explicitly.
	NonceGapLimit uint64
}

type entry struct {
	tx       primitives.Transaction
	class    Class
	size     uint64
	arrival  uint64 // monotonic sequence number, used as an arrival tiebreak
}

type Pool struct {
	mu     sync.RWMutex
	cfg    Config
	nonces NonceSource

	bySender map[[32]byte]map[uint64]*entry // sender -> nonce -> entry
	bytesByClass map[Class]uint64
	seq      uint64
}

func New(cfg Config, nonces NonceSource) *Pool {
	if cfg.ReplaceFactor == 0 {
		cfg.ReplaceFactor = 1.1
	}
	return &Pool{
		cfg:          cfg,
		nonces:       nonces,
		bySender:     make(map[[32]byte]map[uint64]*entry),
		bytesByClass: make(map[Class]uint64),
	}
}

// Admit applies spec.md §4.6's admission rule: signature valid,
// nonce >= state nonce, gas_price >= class min, and (after admission)
// the class stays within its byte quota — evicting lower-fee/older
// entries of the same class if it doesn't.
func (p *Pool) Admit(tx primitives.Transaction) error {
	if !primitives.VerifyTxSignature(tx) {
		return nodeerrors.Invalid("MEMPOOL_BAD_SIGNATURE", "signature does not verify")
	}
	stateNonce := p.nonces(tx.From)
	if tx.Nonce < stateNonce {
		return nodeerrors.Invalid("MEMPOOL_STALE_NONCE", "nonce below state nonce")
	}
	if p.cfg.NonceGapLimit > 0 && tx.Nonce-stateNonce > p.cfg.NonceGapLimit {
		return nodeerrors.Policy("MEMPOOL_NONCE_GAP_TOO_LARGE", "nonce too far ahead of state nonce")
	}
	class := ClassOf(tx.TxType)
	if min, ok := p.cfg.MinGasPrice[class]; ok && min != nil {
		if tx.GasPrice == nil || tx.GasPrice.Cmp(min) < 0 {
			return nodeerrors.Policy("MEMPOOL_GAS_PRICE_TOO_LOW", "gas_price below class minimum")
		}
	}

	size := uint64(len(primitives.TxPreimage(tx))) + uint64(len(tx.Signature))

	p.mu.Lock()
	defer p.mu.Unlock()

	senderTxs := p.bySender[tx.From]
	if senderTxs == nil {
		senderTxs = make(map[uint64]*entry)
		p.bySender[tx.From] = senderTxs
	}

	if existing, ok := senderTxs[tx.Nonce]; ok {
		if !replacesByFee(existing.tx, tx, p.cfg.ReplaceFactor) {
			return nodeerrors.Policy("MEMPOOL_REPLACE_UNDERPRICED", "replacement gas_price too low")
		}
		p.bytesByClass[existing.class] -= existing.size
		delete(senderTxs, tx.Nonce)
	}

	if quota, ok := p.cfg.QuotaBytes[class]; ok {
		for p.bytesByClass[class]+size > quota {
			if !p.evictLowestPriority(class) {
				return nodeerrors.ResourceExhaustion("MEMPOOL_CLASS_QUOTA_EXCEEDED", string(class))
			}
		}
	}

	p.seq++
	senderTxs[tx.Nonce] = &entry{tx: tx, class: class, size: size, arrival: p.seq}
	p.bytesByClass[class] += size
	return nil
}

func replacesByFee(old, next primitives.Transaction, factor float64) bool {
	if old.GasPrice == nil || next.GasPrice == nil {
		return false
	}
	// next.gas_price >= old.gas_price * factor, computed without floats
	// on the big values themselves: scale old by floor(factor*1000) and
	// compare against next scaled by 1000, avoiding precision loss on U256.
	scaledFactor := uint64(factor * 1000)
	oldScaled := new(primitives.U256).Mul(old.GasPrice, primitives.NewU256(scaledFactor))
	nextScaled := new(primitives.U256).Mul(next.GasPrice, primitives.NewU256(1000))
	return nextScaled.Cmp(oldScaled) >= 0
}

// evictLowestPriority drops the lowest-gas-price entry of class,
// breaking ties by oldest arrival, per spec.md §4.6's eviction rule.
func (p *Pool) evictLowestPriority(class Class) bool {
	var worstSender [32]byte
	var worstNonce uint64
	var worst *entry
	for sender, txs := range p.bySender {
		for nonce, e := range txs {
			if e.class != class {
				continue
			}
			if worst == nil || isLowerPriority(e, worst) {
				worst = e
				worstSender = sender
				worstNonce = nonce
			}
		}
	}
	if worst == nil {
		return false
	}
	p.bytesByClass[class] -= worst.size
	delete(p.bySender[worstSender], worstNonce)
	return true
}

func isLowerPriority(a, b *entry) bool {
	ag, bg := gasPriceOrZero(a.tx), gasPriceOrZero(b.tx)
	if c := ag.Cmp(bg); c != 0 {
		return c < 0
	}
	return a.arrival < b.arrival // on equal gas price the older entry is evicted first
}

func gasPriceOrZero(tx primitives.Transaction) *primitives.U256 {
	if tx.GasPrice == nil {
		return primitives.NewU256(0)
	}
	return tx.GasPrice
}

// PendingNonceCount returns the count used by get_transaction_count's
// "pending" view: state_nonce + the number of contiguous admitted
// nonces starting at state_nonce (spec.md S3).
func (p *Pool) PendingNonceCount(sender [32]byte) uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	stateNonce := p.nonces(sender)
	txs := p.bySender[sender]
	count := stateNonce
	for {
		if _, ok := txs[count]; !ok {
			break
		}
		count++
	}
	return count
}

// GetTransactions implements spec.md §4.6's ordering: group by sender,
// sort each group ascending by nonce, merge groups by descending
// gas_price (ties by earlier arrival), honoring per-class quotas by
// interleaving classes in the output so no class monopolizes the head.
func (p *Pool) GetTransactions(n int) []primitives.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()

	cursors := make([]*senderCursor, 0, len(p.bySender))
	for sender, txs := range p.bySender {
		nonces := make([]uint64, 0, len(txs))
		for nonce := range txs {
			nonces = append(nonces, nonce)
		}
		sort.Slice(nonces, func(i, j int) bool { return nonces[i] < nonces[j] })
		cursors = append(cursors, &senderCursor{nonces: nonces, sender: sender})
	}

	byClass := make(map[Class][]primitives.Transaction)
	var classOrder []Class
	seenClass := make(map[Class]bool)

	for anyRemaining(cursors) {
		var best *senderCursor
		var bestEntry *entry
		for _, c := range cursors {
			if c.pos >= len(c.nonces) {
				continue
			}
			e := p.bySender[c.sender][c.nonces[c.pos]]
			if bestEntry == nil || isHigherPriority(e, bestEntry) {
				bestEntry = e
				best = c
			}
		}
		if best == nil {
			break
		}
		best.pos++
		cls := bestEntry.class
		byClass[cls] = append(byClass[cls], bestEntry.tx)
		if !seenClass[cls] {
			seenClass[cls] = true
			classOrder = append(classOrder, cls)
		}
	}

	out := make([]primitives.Transaction, 0, n)
	idx := make(map[Class]int)
	for len(out) < n {
		progressed := false
		for _, cls := range classOrder {
			if len(out) >= n {
				break
			}
			i := idx[cls]
			if i >= len(byClass[cls]) {
				continue
			}
			out = append(out, byClass[cls][i])
			idx[cls] = i + 1
			progressed = true
		}
		if !progressed {
			break
		}
	}
	return out
}

type senderCursor struct {
	nonces []uint64
	pos    int
	sender [32]byte
}

func anyRemaining(cursors []*senderCursor) bool {
	for _, c := range cursors {
		if c.pos < len(c.nonces) {
			return true
		}
	}
	return false
}

func isHigherPriority(a, b *entry) bool {
	ag, bg := gasPriceOrZero(a.tx), gasPriceOrZero(b.tx)
	if c := ag.Cmp(bg); c != 0 {
		return c > 0
	}
	return a.arrival < b.arrival
}

type Stats struct {
	TotalTransactions int
	TotalSize         uint64
	ByClass           map[Class]uint64
}

func (p *Pool) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	total := 0
	for _, txs := range p.bySender {
		total += len(txs)
	}
	byClass := make(map[Class]uint64, len(p.bytesByClass))
	var totalSize uint64
	for cls, b := range p.bytesByClass {
		byClass[cls] = b
		totalSize += b
	}
	return Stats{TotalTransactions: total, TotalSize: totalSize, ByClass: byClass}
}
