package matrix

import (
	"reflect"

	"catalog-sync/internal/models"
)

// Candidate is one matrix entry carrying its transformed destination fields,
// ready to compare against the destination's current state.
type Candidate struct {
	Cell    Cell
	SKU     string
	Missing bool
	Fields  map[string]interface{}
}

// Update pairs a candidate with the destination variant it modifies.
type Update struct {
	Candidate Candidate
	VariantID string
}

// Plan partitions a matrix against existing destination state. The four
// sets plus Missing are disjoint and cover every cell exactly once.
type Plan struct {
	ToCreate        []Candidate
	ToUpdate        []Update
	ToSkip          []Candidate
	SkipNotExisting []Candidate
	Missing         []Candidate
}

// Total returns the number of cells the plan accounts for.
func (p *Plan) Total() int {
	return len(p.ToCreate) + len(p.ToUpdate) + len(p.ToSkip) + len(p.SkipNotExisting) + len(p.Missing)
}

// Empty reports whether the plan requires no writes.
func (p *Plan) Empty() bool {
	return len(p.ToCreate) == 0 && len(p.ToUpdate) == 0
}

// Diff classifies every candidate cell against the existing destination
// item (nil when the item does not exist yet). A cell is to-create when its
// SKU has no destination variant, to-update when it exists and any mapped
// field differs, to-skip when identical. Comparison runs on the transformed
// destination record, not the source record. Under update-only policy,
// creates are reclassified as skip-not-existing and never sent.
func Diff(candidates []Candidate, existing *models.TargetItem, updateOnly bool) Plan {
	var plan Plan

	for _, c := range candidates {
		if c.Missing {
			plan.Missing = append(plan.Missing, c)
			continue
		}

		var current *models.TargetVariant
		if existing != nil {
			current = existing.VariantBySKU(c.SKU)
		}

		if current == nil {
			if updateOnly {
				plan.SkipNotExisting = append(plan.SkipNotExisting, c)
			} else {
				plan.ToCreate = append(plan.ToCreate, c)
			}
			continue
		}

		if FieldsDiffer(c.Fields, current.Fields) {
			plan.ToUpdate = append(plan.ToUpdate, Update{Candidate: c, VariantID: current.ID})
		} else {
			plan.ToSkip = append(plan.ToSkip, c)
		}
	}

	return plan
}

// FieldsDiffer compares the mapped fields only: a destination field the
// mapping never writes cannot trigger an update.
func FieldsDiffer(mapped, current map[string]interface{}) bool {
	for key, want := range mapped {
		if !valueEqual(want, current[key]) {
			return true
		}
	}
	return false
}

// valueEqual compares field values with JSON number semantics: ints and
// floats carrying the same quantity are the same value, since decoded
// destination state always arrives as float64.
func valueEqual(a, b interface{}) bool {
	if af, ok := asFloat(a); ok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
