package structured

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/KamdynS/go-structured/llm"
	"github.com/kaptinlin/jsonrepair"
)

// fencePattern matches a markdown code block with an optional language tag.
var fencePattern = regexp.MustCompile("(?s)```([A-Za-z]*)[ \t]*\r?\n?(.*?)```")

func (m *Model) extract(resp *llm.Response) (map[string]any, *ExtractionError) {
	if m.opts.Method == MethodJSONMode {
		return m.extractJSONMode(resp)
	}
	return m.extractFunctionCall(resp)
}

// extractFunctionCall reads the arguments of the first tool call named after
// the schema. Other tool calls are ignored.
func (m *Model) extractFunctionCall(resp *llm.Response) (map[string]any, *ExtractionError) {
	fail := func(reason Reason, payload string, err error) *ExtractionError {
		return &ExtractionError{Method: MethodFunctionCalling, Reason: reason, Name: m.opts.Name, Payload: payload, Err: err}
	}

	if len(resp.ToolCalls) == 0 {
		return nil, fail(ReasonNoToolCall, resp.Content, nil)
	}

	var call *llm.ToolCall
	for i := range resp.ToolCalls {
		if resp.ToolCalls[i].Function.Name == m.opts.Name {
			call = &resp.ToolCalls[i]
			break
		}
	}
	if call == nil {
		names := make([]string, len(resp.ToolCalls))
		for i, tc := range resp.ToolCalls {
			names[i] = tc.Function.Name
		}
		return nil, fail(ReasonToolNameMismatch, "", fmt.Errorf("model called %s", strings.Join(names, ", ")))
	}

	args := call.Function.Arguments
	obj, err := decodeObject(args)
	if err != nil {
		return nil, fail(ReasonInvalidJSON, args, err)
	}
	if err := m.schema.Validate(obj); err != nil {
		return nil, fail(ReasonSchemaMismatch, args, err)
	}
	return obj, nil
}

// extractJSONMode parses the response text. Only text that is not already a
// JSON object is searched for a markdown code fence, so backticks inside
// string values are left alone.
func (m *Model) extractJSONMode(resp *llm.Response) (map[string]any, *ExtractionError) {
	fail := func(reason Reason, payload string, err error) *ExtractionError {
		return &ExtractionError{Method: MethodJSONMode, Reason: reason, Name: m.opts.Name, Payload: payload, Err: err}
	}

	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return nil, fail(ReasonEmptyContent, "", nil)
	}

	payload := text
	obj, err := decodeObject(text)
	if err != nil {
		payload = stripFence(text)
		if obj, err = parseObject(payload, m.opts.Repair); err != nil {
			return nil, fail(ReasonInvalidJSON, payload, err)
		}
	}
	if err := m.schema.Validate(obj); err != nil {
		return nil, fail(ReasonSchemaMismatch, payload, err)
	}
	return obj, nil
}

// stripFence returns the body of the first json or untagged code block in
// text, or text itself when there is none.
func stripFence(text string) string {
	for _, match := range fencePattern.FindAllStringSubmatch(text, -1) {
		lang := strings.ToLower(match[1])
		if lang != "" && lang != "json" {
			continue
		}
		return strings.TrimSpace(match[2])
	}
	return text
}

// parseObject decodes payload as a JSON object, running it through
// jsonrepair first when repair is set and plain decoding fails.
func parseObject(payload string, repair bool) (map[string]any, error) {
	obj, err := decodeObject(payload)
	if err == nil || !repair {
		return obj, err
	}

	repaired, repairErr := jsonrepair.JSONRepair(payload)
	if repairErr != nil {
		return nil, fmt.Errorf("%w (repair failed: %v)", err, repairErr)
	}
	return decodeObject(repaired)
}

func decodeObject(payload string) (map[string]any, error) {
	var v any
	if err := json.Unmarshal([]byte(payload), &v); err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected a JSON object, got %s", describe(v))
	}
	return obj, nil
}

func describe(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "an array"
	case string:
		return "a string"
	case float64:
		return "a number"
	case bool:
		return "a boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}
