// Package calculator holds the calculator-shaped request used to exercise
// structured output: the model picks an operation and two operands, and the
// caller does the arithmetic.
package calculator

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/KamdynS/go-structured/schema"
)

// Name is the tool and schema name the calculator is advertised under.
const Name = "calculator"

// Operation is one of the four arithmetic operations.
type Operation string

const (
	Add      Operation = "add"
	Subtract Operation = "subtract"
	Multiply Operation = "multiply"
	Divide   Operation = "divide"
)

// SystemPrompt is the plain system message used with function calling.
const SystemPrompt = "You are VERY bad at math and must always use a calculator."

// Instructions is the system message used with JSON mode, where the schema is
// not sent to the model and the prompt has to describe the object instead.
const Instructions = `You are VERY bad at math and must always use a calculator.
Respond with a JSON object containing three keys:
'operation': the type of operation to execute, either 'add', 'subtract', 'multiply' or 'divide',
'number1': the first number to operate on,
'number2': the second number to operate on.
`

// Request is a single calculation.
type Request struct {
	Operation Operation `json:"operation" enum:"add,subtract,multiply,divide"`
	Number1   float64   `json:"number1"`
	Number2   float64   `json:"number2"`
}

// Schema returns the typed calculator schema.
func Schema() schema.Schema {
	return schema.FromType[Request]()
}

// JSONSchema returns the calculator schema as the JSON Schema document
// zod-to-json-schema produces for the equivalent zod object.
func JSONSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"operation": map[string]any{
				"type": "string",
				"enum": []any{"add", "subtract", "multiply", "divide"},
			},
			"number1": map[string]any{"type": "number"},
			"number2": map[string]any{"type": "number"},
		},
		"required":             []any{"operation", "number1", "number2"},
		"additionalProperties": false,
		"$schema":              "http://json-schema.org/draft-07/schema#",
	}
}

// ErrDivisionByZero is returned by Evaluate for a divide with a zero divisor.
var ErrDivisionByZero = errors.New("division by zero")

// Evaluate performs the calculation.
func (r Request) Evaluate() (float64, error) {
	switch r.Operation {
	case Add:
		return r.Number1 + r.Number2, nil
	case Subtract:
		return r.Number1 - r.Number2, nil
	case Multiply:
		return r.Number1 * r.Number2, nil
	case Divide:
		if r.Number2 == 0 {
			return 0, ErrDivisionByZero
		}
		return r.Number1 / r.Number2, nil
	default:
		return 0, fmt.Errorf("unknown operation %q", r.Operation)
	}
}

func (r Request) String() string {
	return fmt.Sprintf("%s %s %s", r.Operation, format(r.Number1), format(r.Number2))
}

func format(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// FormatResult renders an evaluated value the way String renders operands.
func FormatResult(f float64) string { return format(f) }
