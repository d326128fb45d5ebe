// Package matrix expands a product's variant option axes into the full
// combinatorial SKU matrix and reconciles it against existing destination
// variants.
package matrix

import (
	"strings"

	"catalog-sync/internal/models"
)

// Cell is one concrete combination of axis values, ordered by axis. It is
// the unit of SKU identity.
type Cell []string

// Key returns a stable identity for the cell. Axis order is fixed by the
// source, so joining values positionally is unambiguous.
func (c Cell) Key() string {
	return strings.Join(c, "\x1f")
}

func (c Cell) String() string {
	return strings.Join(c, " / ")
}

// Entry is one cell of a built matrix: either backed by a concrete source
// variant or a missing combination nobody created in the source system.
type Entry struct {
	Cell    Cell
	SKU     string
	Missing bool
	Variant *models.SourceVariant
}

// Matrix is the expanded variant space of one product.
type Matrix struct {
	Product *models.SourceProduct
	Axes    []models.VariantAxis
	Entries []Entry
}

// Eligible returns the entries that have source data and may be synced.
// Missing combinations are reported, never synced.
func (m *Matrix) Eligible() []Entry {
	out := make([]Entry, 0, len(m.Entries))
	for _, e := range m.Entries {
		if !e.Missing {
			out = append(out, e)
		}
	}
	return out
}

// MissingCount returns how many cells lack a source SKU.
func (m *Matrix) MissingCount() int {
	n := 0
	for _, e := range m.Entries {
		if e.Missing {
			n++
		}
	}
	return n
}

// Build expands the cartesian product of the product's axes and joins each
// cell against the product's variants. The cell count is the product of axis
// cardinalities; it is checked against maxCells before any generation so a
// pathological product fails fast with MatrixSizeExceededError instead of
// exhausting memory. A product without axes yields a single cell keyed by
// the product's own SKU.
func Build(product *models.SourceProduct, maxCells int) (*Matrix, error) {
	if len(product.Axes) == 0 {
		return &Matrix{
			Product: product,
			Entries: []Entry{{Cell: Cell{}, SKU: product.SKU}},
		}, nil
	}

	cells := 1
	for _, axis := range product.Axes {
		if len(axis.Values) == 0 {
			return nil, &models.MappingError{Detail: "axis " + axis.Name + " has no values"}
		}
		cells *= len(axis.Values)
		if maxCells > 0 && cells > maxCells {
			return nil, &models.MatrixSizeExceededError{ProductID: product.ID, Cells: cells, Limit: maxCells}
		}
	}

	lookup := variantLookup(product)

	m := &Matrix{
		Product: product,
		Axes:    product.Axes,
		Entries: make([]Entry, 0, cells),
	}

	it := newIterator(product.Axes)
	for {
		cell, ok := it.next()
		if !ok {
			break
		}
		if variant := lookup[cell.Key()]; variant != nil {
			m.Entries = append(m.Entries, Entry{Cell: cell, SKU: variant.SKU, Variant: variant})
		} else {
			m.Entries = append(m.Entries, Entry{Cell: cell, Missing: true})
		}
	}

	return m, nil
}

// variantLookup indexes the product's variants by their position in the axis
// space. A variant missing a value for some axis cannot be placed and is
// left out; validation reports it separately.
func variantLookup(product *models.SourceProduct) map[string]*models.SourceVariant {
	lookup := make(map[string]*models.SourceVariant, len(product.Variants))
	for i := range product.Variants {
		v := &product.Variants[i]
		cell := make(Cell, 0, len(product.Axes))
		complete := true
		for _, axis := range product.Axes {
			value, ok := v.Attributes[axis.Name]
			if !ok {
				complete = false
				break
			}
			cell = append(cell, value)
		}
		if complete {
			lookup[cell.Key()] = v
		}
	}
	return lookup
}

// iterator walks the cartesian product lazily, odometer style: the last axis
// spins fastest. It never materializes more than one cell at a time.
type iterator struct {
	axes []models.VariantAxis
	idx  []int
	done bool
}

func newIterator(axes []models.VariantAxis) *iterator {
	return &iterator{axes: axes, idx: make([]int, len(axes))}
}

func (it *iterator) next() (Cell, bool) {
	if it.done {
		return nil, false
	}

	cell := make(Cell, len(it.axes))
	for i, axis := range it.axes {
		cell[i] = axis.Values[it.idx[i]]
	}

	// Advance the odometer.
	for i := len(it.idx) - 1; i >= 0; i-- {
		it.idx[i]++
		if it.idx[i] < len(it.axes[i].Values) {
			break
		}
		it.idx[i] = 0
		if i == 0 {
			it.done = true
		}
	}

	return cell, true
}

// ValidateVariants checks variant data consistency before matrix build:
// every variant needs a SKU, SKUs must be unique, and each variant must hold
// a value for every axis.
func ValidateVariants(product *models.SourceProduct) []string {
	var problems []string
	seen := make(map[string]bool, len(product.Variants))

	for _, v := range product.Variants {
		if v.SKU == "" {
			problems = append(problems, "variant "+v.ID+" has no SKU")
			continue
		}
		if seen[v.SKU] {
			problems = append(problems, "duplicate variant SKU "+v.SKU)
		}
		seen[v.SKU] = true

		for _, axis := range product.Axes {
			if _, ok := v.Attributes[axis.Name]; !ok {
				problems = append(problems, "variant "+v.SKU+" missing value for axis "+axis.Name)
			}
		}
	}

	return problems
}
