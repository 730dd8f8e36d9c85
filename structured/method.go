package structured

import (
	"errors"
	"fmt"
)

// Method selects how the model is asked for structured output.
type Method int

const (
	// MethodFunctionCalling advertises the schema as a single forced tool
	// and reads the tool call arguments. It is the default.
	MethodFunctionCalling Method = iota
	// MethodJSONMode switches the model to JSON output and parses the
	// response text. The schema is not sent; the prompt must describe it.
	MethodJSONMode
)

// ErrUnknownMethod is returned for method names other than functionCalling
// and jsonMode.
var ErrUnknownMethod = errors.New("structured: unknown method")

func (m Method) String() string {
	switch m {
	case MethodFunctionCalling:
		return "functionCalling"
	case MethodJSONMode:
		return "jsonMode"
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

func (m Method) valid() bool {
	return m == MethodFunctionCalling || m == MethodJSONMode
}

// ParseMethod converts the wire form of a method. The empty string selects
// the default.
func ParseMethod(s string) (Method, error) {
	switch s {
	case "", "functionCalling":
		return MethodFunctionCalling, nil
	case "jsonMode":
		return MethodJSONMode, nil
	default:
		return 0, fmt.Errorf("%w %q", ErrUnknownMethod, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Method) MarshalText() ([]byte, error) {
	if !m.valid() {
		return nil, fmt.Errorf("%w %d", ErrUnknownMethod, int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Method) UnmarshalText(text []byte) error {
	parsed, err := ParseMethod(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
