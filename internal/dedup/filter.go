// Package dedup drops signals that were already dispatched successfully.
package dedup

import (
	"logMirrorBot/internal/domain"
)

// Result splits a batch by dispatch eligibility. Each slice keeps input order.
type Result struct {
	Fresh      []domain.TradeSignal
	Seen       []domain.TradeSignal // identity already in the seen set
	Duplicates []domain.TradeSignal // identity repeated earlier in the same batch
}

// Dropped is the number of signals that will not be dispatched.
func (r Result) Dropped() int {
	return len(r.Seen) + len(r.Duplicates)
}

// Partition classifies every signal of the batch. A repeated identity inside
// the batch is kept only once (first occurrence).
func Partition(signals []domain.TradeSignal, seen domain.IdentitySet) Result {
	res := Result{Fresh: make([]domain.TradeSignal, 0, len(signals))}
	batch := make(domain.IdentitySet, len(signals))
	for _, sig := range signals {
		id := sig.Identity()
		switch {
		case seen.Has(id):
			res.Seen = append(res.Seen, sig)
		case batch.Has(id):
			res.Duplicates = append(res.Duplicates, sig)
		default:
			batch[id] = struct{}{}
			res.Fresh = append(res.Fresh, sig)
		}
	}
	return res
}

// FilterNew returns the signals whose identity is not in seen, in input order.
func FilterNew(signals []domain.TradeSignal, seen domain.IdentitySet) []domain.TradeSignal {
	return Partition(signals, seen).Fresh
}
