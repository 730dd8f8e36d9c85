package structured

import (
	"errors"
	"fmt"
)

var (
	// ErrSchema matches every *SchemaError.
	ErrSchema = errors.New("structured: invalid schema")
	// ErrExtraction matches every *ExtractionError.
	ErrExtraction = errors.New("structured: extraction failed")
	// ErrMissingName is returned by Configure when Options.Name is empty.
	ErrMissingName = errors.New("structured: name is required")
	// ErrNilClient is returned by Configure without a transport.
	ErrNilClient = errors.New("structured: client is nil")
)

// SchemaError reports a schema that cannot be normalized. It is only
// returned by Configure.
type SchemaError struct {
	Err error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("structured: invalid schema: %v", e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

func (e *SchemaError) Is(target error) bool { return target == ErrSchema }

// Reason classifies why a response could not be turned into a value.
type Reason string

const (
	// ReasonNoToolCall means function calling got a response without tool calls.
	ReasonNoToolCall Reason = "no_tool_call"
	// ReasonToolNameMismatch means tool calls came back but none had the
	// configured name.
	ReasonToolNameMismatch Reason = "tool_name_mismatch"
	// ReasonEmptyContent means JSON mode got a response with no text.
	ReasonEmptyContent Reason = "empty_content"
	// ReasonInvalidJSON means the payload did not parse as a JSON object.
	ReasonInvalidJSON Reason = "invalid_json"
	// ReasonSchemaMismatch means the payload parsed but failed validation.
	ReasonSchemaMismatch Reason = "schema_mismatch"
)

// ExtractionError reports a response that did not yield a conforming
// object. Payload holds the text that was parsed, when there was one.
type ExtractionError struct {
	Method  Method
	Reason  Reason
	Name    string
	Payload string
	Err     error
}

func (e *ExtractionError) Error() string {
	msg := fmt.Sprintf("structured: %s extraction for %q failed: %s", e.Method, e.Name, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExtractionError) Unwrap() error { return e.Err }

func (e *ExtractionError) Is(target error) bool { return target == ErrExtraction }
