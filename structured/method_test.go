package structured

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod("")
	require.NoError(t, err)
	assert.Equal(t, MethodFunctionCalling, m)

	m, err = ParseMethod("jsonMode")
	require.NoError(t, err)
	assert.Equal(t, MethodJSONMode, m)

	_, err = ParseMethod("JSONMODE")
	assert.ErrorIs(t, err, ErrUnknownMethod)
}

func TestMethodText(t *testing.T) {
	b, err := json.Marshal(struct {
		M Method `json:"m"`
	}{MethodJSONMode})
	require.NoError(t, err)
	assert.JSONEq(t, `{"m":"jsonMode"}`, string(b))

	var decoded struct {
		M Method `json:"m"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"m":"functionCalling"}`), &decoded))
	assert.Equal(t, MethodFunctionCalling, decoded.M)

	_, err = Method(9).MarshalText()
	assert.ErrorIs(t, err, ErrUnknownMethod)
	assert.Equal(t, "Method(9)", Method(9).String())
}

func TestStripFence(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```JSON\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"```{\"a\":1}```", `{"a":1}`},
		{"Here:\n```python\nprint(1)\n```\n```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```yaml\na: 1\n```", "```yaml\na: 1\n```"},
	}
	for _, test := range tests {
		assert.Equal(t, test.want, stripFence(test.in), "input %q", test.in)
	}
}
