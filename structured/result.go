package structured

import (
	"encoding/json"
	"fmt"

	"github.com/KamdynS/go-structured/llm"
)

// ResultKind says which shape a Result has.
type ResultKind int

const (
	// ResultPlain carries only the parsed object.
	ResultPlain ResultKind = iota
	// ResultWithRaw carries the parsed object and the unaltered response.
	ResultWithRaw
)

func (k ResultKind) String() string {
	if k == ResultWithRaw {
		return "withRaw"
	}
	return "plain"
}

// Result is the outcome of a successful Invoke. Which shape it has is fixed
// by Options.IncludeRaw at configuration time.
type Result struct {
	kind   ResultKind
	parsed map[string]any
	raw    *llm.Response
}

// Kind reports the result shape.
func (r Result) Kind() ResultKind { return r.kind }

// Parsed returns the structured object. Its keys are exactly the schema's
// declared fields that the model supplied.
func (r Result) Parsed() map[string]any { return r.parsed }

// Raw returns the unaltered model response when the result carries one.
func (r Result) Raw() (*llm.Response, bool) {
	return r.raw, r.kind == ResultWithRaw
}

// Decode re-encodes the parsed object into v.
func (r Result) Decode(v any) error {
	b, err := json.Marshal(r.parsed)
	if err != nil {
		return fmt.Errorf("structured: encode parsed value: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("structured: decode into %T: %w", v, err)
	}
	return nil
}

// MarshalJSON encodes {"parsed": ...} or {"parsed": ..., "raw": ...}.
func (r Result) MarshalJSON() ([]byte, error) {
	if r.kind == ResultWithRaw {
		return json.Marshal(struct {
			Parsed map[string]any `json:"parsed"`
			Raw    *llm.Response  `json:"raw"`
		}{r.parsed, r.raw})
	}
	return json.Marshal(struct {
		Parsed map[string]any `json:"parsed"`
	}{r.parsed})
}

// Decode is the typed form of Result.Decode.
func Decode[T any](r Result) (T, error) {
	var out T
	err := r.Decode(&out)
	return out, err
}
