// Package schema describes the shape a structured response must take.
//
// A Schema is built either from a typed definition (a jsonschema.Definition, or
// a Go struct reflected through FromType) or from an already-converted JSON
// Schema document. Both normalize to the same internal document, which is what
// gets advertised to the model and what responses are validated against.
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/sashabaranov/go-openai/jsonschema"
)

// Kind identifies which representation a Schema was built from.
type Kind int

const (
	// KindTyped schemas come from a jsonschema.Definition or a Go type.
	KindTyped Kind = iota + 1
	// KindJSON schemas come from a JSON Schema document.
	KindJSON
)

func (k Kind) String() string {
	switch k {
	case KindTyped:
		return "typed"
	case KindJSON:
		return "json"
	default:
		return "unknown"
	}
}

// Schema is either a typed definition or a JSON Schema document. The zero
// value is invalid and fails normalization.
type Schema struct {
	kind Kind
	def  *jsonschema.Definition
	doc  map[string]any
	err  error
}

// Typed wraps a typed schema definition.
func Typed(def jsonschema.Definition) Schema {
	return Schema{kind: KindTyped, def: &def}
}

// FromType reflects T into a typed schema. Struct tags follow
// jsonschema.GenerateSchemaForType: json for names, description, enum
// (comma separated) and required.
func FromType[T any]() Schema {
	var zero T
	def, err := jsonschema.GenerateSchemaForType(zero)
	if err != nil {
		return Schema{kind: KindTyped, err: fmt.Errorf("reflect %T: %w", zero, err)}
	}
	return Schema{kind: KindTyped, def: def}
}

// JSON wraps a JSON Schema document, for example one produced by
// zod-to-json-schema. The document is copied at normalization time.
func JSON(doc map[string]any) Schema {
	return Schema{kind: KindJSON, doc: doc}
}

// JSONBytes parses an encoded JSON Schema document.
func JSONBytes(data []byte) Schema {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return Schema{kind: KindJSON, err: fmt.Errorf("decode schema document: %w", err)}
	}
	return Schema{kind: KindJSON, doc: doc}
}

// Kind reports the representation the schema was built from.
func (s Schema) Kind() Kind { return s.kind }

// IsZero reports whether s was never constructed.
func (s Schema) IsZero() bool { return s.kind == 0 }

// document returns a deep copy of the schema as a generic JSON document.
func (s Schema) document() (map[string]any, error) {
	if s.err != nil {
		return nil, s.err
	}

	var src any
	switch s.kind {
	case KindTyped:
		if s.def == nil {
			return nil, fmt.Errorf("typed schema has no definition")
		}
		src = s.def
	case KindJSON:
		if s.doc == nil {
			return nil, fmt.Errorf("schema document is nil")
		}
		src = s.doc
	default:
		return nil, fmt.Errorf("schema was not constructed")
	}

	// A JSON round trip gives both representations the same value types
	// (map[string]any, []any, float64), which keeps them comparable.
	raw, err := json.Marshal(src)
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	return doc, nil
}
