// Package mapping implements the declarative schema transform between the
// source and destination field sets. Mapping documents are pure data: a
// closed set of transform kinds, no executable code, safely exportable and
// importable across processes.
package mapping

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"catalog-sync/internal/models"
)

// Transform kinds. The set is closed on purpose; adding behavior means
// adding a kind here and in Engine.apply, never embedding code in documents.
const (
	KindPassthrough = "passthrough"
	KindFormat      = "format"
	KindTemplate    = "template"
	KindUnit        = "unit"
	KindImage       = "image"
)

var validKinds = map[string]bool{
	KindPassthrough: true,
	KindFormat:      true,
	KindTemplate:    true,
	KindUnit:        true,
	KindImage:       true,
}

// Rule maps one source field path to one destination field. Order matters
// only for conflicting destination writes: last rule wins.
type Rule struct {
	Source   string            `json:"source"`
	Dest     string            `json:"dest"`
	Kind     string            `json:"kind"`
	Args     map[string]string `json:"args,omitempty"`
	Default  interface{}       `json:"default,omitempty"`
	Required bool              `json:"required,omitempty"`
}

// Document is one versioned mapping configuration, loadable and exportable
// as a whole.
type Document struct {
	Version int    `json:"version"`
	Rules   []Rule `json:"rules"`
}

// Load parses and validates a mapping document. Invalid rule shapes are
// MappingError, reported with the offending destination field.
func Load(data []byte) (*Document, error) {
	var doc Document
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, &models.MappingError{Detail: "document is not valid JSON: " + err.Error()}
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Export renders the document in canonical form. Load(Export(d)) always
// yields d, and Export(Load(b)) == b for canonical b.
func Export(doc *Document) ([]byte, error) {
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to export mapping document: %w", err)
	}
	return append(out, '\n'), nil
}

// Validate checks every rule's shape.
func (d *Document) Validate() error {
	if d.Version <= 0 {
		return &models.MappingError{Detail: "version must be positive"}
	}
	for i, r := range d.Rules {
		at := "rule " + strconv.Itoa(i)
		if r.Dest == "" {
			return &models.MappingError{Detail: at + ": dest is required"}
		}
		if r.Source == "" && r.Default == nil {
			return &models.MappingError{Field: r.Dest, Detail: at + ": needs a source path or a default"}
		}
		if !validKinds[r.Kind] {
			return &models.MappingError{Field: r.Dest, Detail: at + ": unknown transform kind " + strconv.Quote(r.Kind)}
		}
		switch r.Kind {
		case KindUnit:
			factor := r.Args["factor"]
			if factor == "" {
				return &models.MappingError{Field: r.Dest, Detail: at + ": unit transform needs args.factor"}
			}
			if _, err := strconv.ParseFloat(factor, 64); err != nil {
				return &models.MappingError{Field: r.Dest, Detail: at + ": args.factor is not a number"}
			}
		case KindTemplate:
			if r.Args["template"] == "" {
				return &models.MappingError{Field: r.Dest, Detail: at + ": template transform needs args.template"}
			}
		}
	}
	return nil
}
