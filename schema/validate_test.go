package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustNormalize(t *testing.T, doc map[string]any) *Normalized {
	t.Helper()
	n, err := Normalize(JSON(doc))
	require.NoError(t, err)
	return n
}

func calculatorDoc() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"operation": map[string]any{"type": "string", "enum": []any{"add", "subtract", "multiply", "divide"}},
			"number1":   map[string]any{"type": "number"},
			"number2":   map[string]any{"type": "number"},
		},
		"required":             []any{"operation", "number1", "number2"},
		"additionalProperties": false,
	}
}

func TestValidateAcceptsConformingValue(t *testing.T) {
	n := mustNormalize(t, calculatorDoc())
	assert.NoError(t, n.Validate(map[string]any{"operation": "add", "number1": 2.0, "number2": 2.0}))
}

func TestValidateRejections(t *testing.T) {
	n := mustNormalize(t, calculatorDoc())

	tests := []struct {
		name  string
		value map[string]any
		field string
	}{
		{"missing field", map[string]any{"operation": "add", "number1": 2.0}, "number2"},
		{"undeclared field", map[string]any{"operation": "add", "number1": 2.0, "number2": 2.0, "result": 4.0}, "result"},
		{"wrong type", map[string]any{"operation": "add", "number1": "two", "number2": 2.0}, "number1"},
		{"enum violation", map[string]any{"operation": "modulo", "number1": 2.0, "number2": 2.0}, "operation"},
		{"null value", map[string]any{"operation": "add", "number1": nil, "number2": 2.0}, "number1"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := n.Validate(test.value)
			require.Error(t, err)
			verrs, ok := err.(ValidationErrors)
			require.True(t, ok, "expected ValidationErrors, got %T", err)
			require.Len(t, verrs, 1)
			assert.Equal(t, test.field, verrs[0].Field)
		})
	}

	assert.Error(t, n.Validate(nil))
}

func TestValidateTopLevelFieldSetIsExact(t *testing.T) {
	doc := calculatorDoc()
	doc["required"] = []any{"operation"}
	doc["additionalProperties"] = true
	n := mustNormalize(t, doc)

	assert.Equal(t, []string{"number1", "number2", "operation"}, n.Required())
	normalized := n.Document()
	assert.Equal(t, []any{"number1", "number2", "operation"}, normalized["required"])
	assert.Equal(t, false, normalized["additionalProperties"])

	err := n.Validate(map[string]any{"operation": "add", "extra": 1.0})
	require.Error(t, err)
	fields := []string{}
	for _, ve := range err.(ValidationErrors) {
		fields = append(fields, ve.Field)
	}
	assert.Equal(t, []string{"extra", "number1", "number2"}, fields)
	assert.NoError(t, n.Validate(map[string]any{"operation": "add", "number1": 2.0, "number2": 2.0}))
}

func TestValidateNestedOptionalAndOpen(t *testing.T) {
	n := mustNormalize(t, map[string]any{
		"type": "object",
		"properties": map[string]any{
			"person": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":     map[string]any{"type": "string"},
					"nickname": map[string]any{"type": "string"},
				},
				"required": []any{"name"},
			},
		},
	})
	assert.NoError(t, n.Validate(map[string]any{"person": map[string]any{"name": "Ada", "extra": 1.0}}))
	assert.Error(t, n.Validate(map[string]any{"person": map[string]any{"nickname": "A"}}))
}

func TestValidateIntegerAndNullable(t *testing.T) {
	n := mustNormalize(t, map[string]any{
		"type": "object",
		"properties": map[string]any{
			"count": map[string]any{"type": "integer"},
			"note":  map[string]any{"type": []any{"string", "null"}},
		},
	})
	assert.NoError(t, n.Validate(map[string]any{"count": 3.0, "note": nil}))
	assert.NoError(t, n.Validate(map[string]any{"count": 3.0, "note": "hi"}))
	assert.Error(t, n.Validate(map[string]any{"count": 3.5, "note": nil}))
}

func TestValidateNested(t *testing.T) {
	n := mustNormalize(t, map[string]any{
		"type": "object",
		"properties": map[string]any{
			"steps": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"op":    map[string]any{"type": "string", "enum": []any{"add", "subtract"}},
						"value": map[string]any{"type": "number"},
					},
					"additionalProperties": false,
				},
			},
		},
	})

	ok := map[string]any{"steps": []any{
		map[string]any{"op": "add", "value": 1.0},
		map[string]any{"op": "subtract", "value": 2.0},
	}}
	assert.NoError(t, n.Validate(ok))

	bad := map[string]any{"steps": []any{
		map[string]any{"op": "add", "value": 1.0},
		map[string]any{"op": "divide"},
	}}
	err := n.Validate(bad)
	require.Error(t, err)
	verrs := err.(ValidationErrors)
	fields := make([]string, len(verrs))
	for i, ve := range verrs {
		fields[i] = ve.Field
	}
	assert.ElementsMatch(t, []string{"steps[1].op", "steps[1].value"}, fields)
	assert.Contains(t, err.Error(), "validation failed")
}

func TestValidateNullableKeyword(t *testing.T) {
	n := mustNormalize(t, map[string]any{
		"type": "object",
		"properties": map[string]any{
			"alias": map[string]any{"type": "string", "nullable": true},
			"unit":  map[string]any{"type": "string", "enum": []any{"cm", "in"}, "nullable": true},
		},
	})
	assert.NoError(t, n.Validate(map[string]any{"alias": nil, "unit": nil}))
	assert.NoError(t, n.Validate(map[string]any{"alias": "Ada", "unit": "cm"}))

	err := n.Validate(map[string]any{"alias": 3.0, "unit": "ft"})
	require.Error(t, err)
	verrs := err.(ValidationErrors)
	require.Len(t, verrs, 2)
	assert.Equal(t, "alias", verrs[0].Field)
	assert.Equal(t, 3.0, verrs[0].Value)
	assert.Equal(t, "unit", verrs[1].Field)
	assert.Equal(t, "ft", verrs[1].Value)

	doc := n.Document()
	alias := doc["properties"].(map[string]any)["alias"].(map[string]any)
	assert.Equal(t, "string", alias["type"], "nullable is not rewritten in the advertised document")
}
