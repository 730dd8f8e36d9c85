package schema

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// ValidationError is a single violation found while validating a value.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
}

func (e ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("%s: %s (value: %v)", e.Field, e.Message, e.Value)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every violation in a value.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, ve := range e {
		msgs[i] = ve.Error()
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

const resourceURL = "mem://structured/schema.json"

var printer = message.NewPrinter(language.English)

// compileValidator compiles doc after applying the rules structured output
// relies on: an object without a required list requires all its
// properties, and nullable adds null to the allowed types.
func compileValidator(doc map[string]any) (*jsonschema.Schema, error) {
	strict := deepCopy(doc)
	tighten(strict)

	c := jsonschema.NewCompiler()
	if err := c.AddResource(resourceURL, strict); err != nil {
		return nil, err
	}
	return c.Compile(resourceURL)
}

func tighten(node map[string]any) {
	if props, ok := node["properties"].(map[string]any); ok {
		if _, has := node["required"]; !has && len(props) > 0 {
			names := make([]string, 0, len(props))
			for name := range props {
				names = append(names, name)
			}
			sort.Strings(names)
			required := make([]any, len(names))
			for i, name := range names {
				required[i] = name
			}
			node["required"] = required
		}
		for _, raw := range props {
			if child, ok := raw.(map[string]any); ok {
				tighten(child)
			}
		}
	}
	if items, ok := node["items"].(map[string]any); ok {
		tighten(items)
	}

	if node["nullable"] != true {
		return
	}
	switch t := node["type"].(type) {
	case string:
		if t != "null" {
			node["type"] = []any{t, "null"}
		}
	case []any:
		if !containsValue(t, "null") {
			node["type"] = append(t, "null")
		}
	}
	if enum, ok := node["enum"].([]any); ok && !containsValue(enum, nil) {
		node["enum"] = append(enum, nil)
	}
}

func containsValue(list []any, v any) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// Validate checks v against the normalized schema. It returns nil or a
// ValidationErrors value sorted by field.
func (n *Normalized) Validate(v map[string]any) error {
	if v == nil {
		return ValidationErrors{{Message: "value is not an object"}}
	}

	err := n.validator.Validate(v)
	if err == nil {
		return nil
	}
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return ValidationErrors{{Message: err.Error()}}
	}

	var errs ValidationErrors
	flatten(verr, v, &errs)
	sort.SliceStable(errs, func(i, j int) bool { return errs[i].Field < errs[j].Field })
	return errs
}

// flatten turns the leaves of a validation error tree into field errors.
func flatten(e *jsonschema.ValidationError, root any, out *ValidationErrors) {
	if len(e.Causes) > 0 {
		for _, cause := range e.Causes {
			flatten(cause, root, out)
		}
		return
	}

	field, value := locate(root, e.InstanceLocation)
	switch k := e.ErrorKind.(type) {
	case *kind.Required:
		for _, name := range k.Missing {
			*out = append(*out, ValidationError{Field: join(field, name), Message: "required field is missing"})
		}
	case *kind.AdditionalProperties:
		obj, _ := value.(map[string]any)
		for _, name := range k.Properties {
			*out = append(*out, ValidationError{Field: join(field, name), Message: "undeclared field", Value: obj[name]})
		}
	default:
		*out = append(*out, ValidationError{Field: field, Message: e.ErrorKind.LocalizedString(printer), Value: value})
	}
}

// locate renders an instance location as a field path such as steps[1].op
// and returns the value found there.
func locate(root any, tokens []string) (string, any) {
	var sb strings.Builder
	cur := root
	for _, tok := range tokens {
		switch node := cur.(type) {
		case []any:
			sb.WriteString("[" + tok + "]")
			if i, err := strconv.Atoi(tok); err == nil && i >= 0 && i < len(node) {
				cur = node[i]
			} else {
				cur = nil
			}
		case map[string]any:
			if sb.Len() > 0 {
				sb.WriteByte('.')
			}
			sb.WriteString(tok)
			cur = node[tok]
		default:
			cur = nil
		}
	}
	return sb.String(), cur
}

func join(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}
