package pipeline

import (
	"github.com/sells-group/compintel-cli/internal/model"
)

// dedupResult carries the surviving records and how many were collapsed.
type dedupResult[T any] struct {
	records   []T
	collapsed int
}

// keyed lets one dedupe routine serve both record types.
type keyed interface {
	Key() string
	OptionalFieldCount() int
	HasNumericSignal() bool
}

// DedupeProducts collapses duplicate product records within one competitor,
// keeping at most one record per uniqueness key. Returns the survivors in
// first-key-occurrence order plus the number of records collapsed.
func DedupeProducts(records []model.ProductRecord) ([]model.ProductRecord, int) {
	r := dedupe(records)
	return r.records, r.collapsed
}

// DedupePromotions collapses duplicate promotion records within one
// competitor.
func DedupePromotions(records []model.PromotionRecord) ([]model.PromotionRecord, int) {
	r := dedupe(records)
	return r.records, r.collapsed
}

// dedupe groups records by uniqueness key and keeps the winner of a total
// order per group. The winner is always a member of its group, never a
// merge of fields.
func dedupe[T keyed](records []T) dedupResult[T] {
	type entry struct {
		rec   T
		index int // first-seen position of the winning record
	}

	byKey := make(map[string]*entry, len(records))
	var order []string

	for i, rec := range records {
		key := rec.Key()
		cur, ok := byKey[key]
		if !ok {
			byKey[key] = &entry{rec: rec, index: i}
			order = append(order, key)
			continue
		}
		if betterRecord(rec, i, cur.rec, cur.index) {
			cur.rec = rec
			cur.index = i
		}
	}

	out := make([]T, 0, len(order))
	for _, key := range order {
		out = append(out, byKey[key].rec)
	}
	return dedupResult[T]{records: out, collapsed: len(records) - len(out)}
}

// betterRecord is the total order over duplicates: more populated optional
// fields wins, then presence of a parsed price/date, then the earlier
// first-seen record. Total because the final criterion never ties.
func betterRecord[T keyed](a T, aIdx int, b T, bIdx int) bool {
	ac, bc := a.OptionalFieldCount(), b.OptionalFieldCount()
	if ac != bc {
		return ac > bc
	}
	an, bn := a.HasNumericSignal(), b.HasNumericSignal()
	if an != bn {
		return an
	}
	return aIdx < bIdx
}
