package schema

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Error reports a schema that cannot be normalized.
type Error struct {
	Path    string // JSON pointer-ish location, empty for the root
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	if e.Path == "" {
		return "schema: " + msg
	}
	return fmt.Sprintf("schema: %s: %s", e.Path, msg)
}

func (e *Error) Unwrap() error { return e.Err }

var supportedTypes = map[string]bool{
	"string":  true,
	"number":  true,
	"integer": true,
	"boolean": true,
	"array":   true,
	"object":  true,
	"null":    true,
}

// Normalized is the single internal form both schema representations reduce
// to. It is immutable; accessors return copies.
type Normalized struct {
	kind      Kind
	doc       map[string]any
	fields    []string
	required  map[string]bool
	validator *jsonschema.Schema
}

// Normalize converts s to its normalized document. The JSON Schema meta
// keyword $schema is stripped and a top-level $ref into definitions or $defs
// is resolved. The top level is closed: every declared property is required
// and no other key is allowed. Nested objects keep their own required and
// additionalProperties settings.
func Normalize(s Schema) (*Normalized, error) {
	doc, err := s.document()
	if err != nil {
		return nil, &Error{Err: err}
	}
	if len(doc) == 0 {
		return nil, &Error{Message: "schema is empty"}
	}

	delete(doc, "$schema")
	if doc, err = resolveRootRef(doc); err != nil {
		return nil, err
	}

	if t, ok := doc["type"]; ok {
		if t != "object" {
			return nil, &Error{Path: "type", Message: fmt.Sprintf("root type must be object, got %v", t)}
		}
	} else if _, ok := doc["properties"]; ok {
		doc["type"] = "object"
	} else {
		return nil, &Error{Message: "root schema must be an object with properties"}
	}

	props, ok := doc["properties"].(map[string]any)
	if !ok || len(props) == 0 {
		return nil, &Error{Path: "properties", Message: "at least one property is required"}
	}

	n := &Normalized{
		kind:     s.kind,
		doc:      doc,
		required: make(map[string]bool, len(props)),
	}

	for name, raw := range props {
		prop, ok := raw.(map[string]any)
		if !ok {
			return nil, &Error{Path: "properties." + name, Message: "property schema must be an object"}
		}
		if err := checkProperty("properties."+name, prop); err != nil {
			return nil, err
		}
		n.fields = append(n.fields, name)
	}
	sort.Strings(n.fields)

	if req, present := doc["required"]; present {
		list, ok := req.([]any)
		if !ok {
			return nil, &Error{Path: "required", Message: "required must be an array of property names"}
		}
		for _, item := range list {
			name, ok := item.(string)
			if !ok {
				return nil, &Error{Path: "required", Message: fmt.Sprintf("required entry %v is not a string", item)}
			}
			if _, declared := props[name]; !declared {
				return nil, &Error{Path: "required", Message: fmt.Sprintf("%q is not a declared property", name)}
			}
		}
	}

	// A result carries exactly the declared top-level fields, whatever the
	// document says. The advertised document is rewritten to match.
	required := make([]any, len(n.fields))
	for i, name := range n.fields {
		n.required[name] = true
		required[i] = name
	}
	doc["required"] = required
	doc["additionalProperties"] = false

	if n.validator, err = compileValidator(doc); err != nil {
		return nil, &Error{Message: "compile validator", Err: err}
	}

	return n, nil
}

// resolveRootRef inlines a root {"$ref": "#/definitions/x"} document, the
// shape zod-to-json-schema emits when given a name.
func resolveRootRef(doc map[string]any) (map[string]any, error) {
	ref, ok := doc["$ref"].(string)
	if !ok {
		return doc, nil
	}

	var container, key string
	switch {
	case strings.HasPrefix(ref, "#/definitions/"):
		container, key = "definitions", strings.TrimPrefix(ref, "#/definitions/")
	case strings.HasPrefix(ref, "#/$defs/"):
		container, key = "$defs", strings.TrimPrefix(ref, "#/$defs/")
	default:
		return nil, &Error{Path: "$ref", Message: fmt.Sprintf("unsupported reference %q", ref)}
	}

	defs, _ := doc[container].(map[string]any)
	target, ok := defs[key].(map[string]any)
	if !ok {
		return nil, &Error{Path: "$ref", Message: fmt.Sprintf("reference %q does not resolve", ref)}
	}

	resolved := make(map[string]any, len(target))
	for k, v := range target {
		resolved[k] = v
	}
	delete(resolved, "$schema")
	return resolved, nil
}

// checkProperty verifies a property schema and tidies keys that carry no
// constraint, such as a null properties map on a scalar.
func checkProperty(path string, prop map[string]any) *Error {
	if p, ok := prop["properties"]; ok && p == nil {
		delete(prop, "properties")
	}

	types, err := typeNames(prop["type"])
	if err != nil {
		return &Error{Path: path + ".type", Err: err}
	}
	if len(types) == 0 {
		if _, ok := prop["enum"]; ok {
			return nil
		}
		return &Error{Path: path, Message: "property needs a type or an enum"}
	}
	for _, t := range types {
		if !supportedTypes[t] {
			return &Error{Path: path + ".type", Message: fmt.Sprintf("unsupported type %q", t)}
		}
	}

	if !contains(types, "object") {
		if p, ok := prop["properties"].(map[string]any); ok && len(p) == 0 {
			delete(prop, "properties")
		}
	}

	if nested, ok := prop["properties"].(map[string]any); ok {
		for name, raw := range nested {
			child, ok := raw.(map[string]any)
			if !ok {
				return &Error{Path: path + ".properties." + name, Message: "property schema must be an object"}
			}
			if err := checkProperty(path+".properties."+name, child); err != nil {
				return err
			}
		}
	}
	if items, ok := prop["items"].(map[string]any); ok {
		if err := checkProperty(path+".items", items); err != nil {
			return err
		}
	}
	return nil
}

// typeNames accepts "type": "x" and "type": ["x", "null"].
func typeNames(v any) ([]string, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{t}, nil
	case []any:
		names := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("type entry %v is not a string", item)
			}
			names = append(names, s)
		}
		return names, nil
	default:
		return nil, fmt.Errorf("type must be a string or an array, got %T", v)
	}
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// Kind reports the representation the schema was built from.
func (n *Normalized) Kind() Kind { return n.kind }

// Document returns a deep copy of the normalized JSON Schema document.
func (n *Normalized) Document() map[string]any {
	return deepCopy(n.doc)
}

// Fields returns the declared top-level property names in sorted order.
func (n *Normalized) Fields() []string {
	return append([]string(nil), n.fields...)
}

// Required returns the top-level properties a value must carry, sorted.
func (n *Normalized) Required() []string {
	out := make([]string, 0, len(n.required))
	for _, name := range n.fields {
		if n.required[name] {
			out = append(out, name)
		}
	}
	return out
}

// MarshalJSON encodes the normalized document.
func (n *Normalized) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.doc)
}

func deepCopy(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopy(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = copyValue(item)
		}
		return out
	default:
		return v
	}
}
