package structured

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"testing"

	"github.com/KamdynS/go-structured/calculator"
	"github.com/KamdynS/go-structured/llm"
	"github.com/KamdynS/go-structured/observability"
	otelobs "github.com/KamdynS/go-structured/observability/otel"
	"github.com/KamdynS/go-structured/schema"
	"github.com/KamdynS/go-structured/transcript"
	"github.com/KamdynS/go-structured/transcript/inmemory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

const calculatorArgs = `{"operation":"add","number1":2,"number2":2}`

func calculatorPrompt(method Method) []llm.Message {
	system := calculator.SystemPrompt
	if method == MethodJSONMode {
		system = calculator.Instructions
	}
	return []llm.Message{
		llm.System(system),
		llm.Human("Please help me!! What is 2 + 2?"),
	}
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

var calculatorKeys = []string{"number1", "number2", "operation"}

func TestInvokeAllCombinations(t *testing.T) {
	schemas := map[string]schema.Schema{
		"typed": calculator.Schema(),
		"json":  schema.JSON(calculator.JSONSchema()),
	}
	for schemaName, s := range schemas {
		for _, method := range []Method{MethodFunctionCalling, MethodJSONMode} {
			t.Run(schemaName+"/"+method.String(), func(t *testing.T) {
				client := &fakeClient{resp: toolCallResponse(calculator.Name, calculatorArgs)}
				if method == MethodJSONMode {
					client.resp = textResponse(calculatorArgs)
				}

				model, err := Configure(client, s, Options{Name: calculator.Name, Method: method})
				require.NoError(t, err)

				result, err := model.Invoke(context.Background(), calculatorPrompt(method))
				require.NoError(t, err)
				assert.Equal(t, ResultPlain, result.Kind())
				assert.Equal(t, calculatorKeys, keys(result.Parsed()))
				_, hasRaw := result.Raw()
				assert.False(t, hasRaw)
				assert.Equal(t, 1, client.calls())

				req := client.lastRequest()
				if method == MethodFunctionCalling {
					require.Len(t, req.Tools, 1)
					assert.Equal(t, calculator.Name, req.Tools[0].Function.Name)
					assert.Equal(t, model.Schema().Document(), req.Tools[0].Function.Parameters)
					require.NotNil(t, req.ToolChoice)
					assert.Equal(t, calculator.Name, req.ToolChoice.Name)
					assert.Nil(t, req.ResponseFormat)
				} else {
					assert.Empty(t, req.Tools)
					assert.Nil(t, req.ToolChoice)
					require.NotNil(t, req.ResponseFormat)
					assert.Equal(t, llm.ResponseFormatJSONObject, req.ResponseFormat.Type)
				}
			})
		}
	}
}

func TestInvokeIncludeRaw(t *testing.T) {
	client := &fakeClient{resp: toolCallResponse(calculator.Name, calculatorArgs)}
	model, err := Configure(client, calculator.Schema(), Options{Name: calculator.Name, IncludeRaw: true})
	require.NoError(t, err)

	result, err := model.Invoke(context.Background(), calculatorPrompt(MethodFunctionCalling))
	require.NoError(t, err)
	assert.Equal(t, ResultWithRaw, result.Kind())
	assert.Equal(t, calculatorKeys, keys(result.Parsed()))

	raw, ok := result.Raw()
	require.True(t, ok)
	assert.Same(t, client.resp, raw)
	require.NotEmpty(t, raw.ToolCalls)
	assert.Equal(t, calculator.Name, raw.ToolCalls[0].Function.Name)

	var args map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw.ToolCalls[0].Function.Arguments), &args))
	assert.Equal(t, calculatorKeys, keys(args))
}

func TestTypedAndJSONSchemasAreEquivalent(t *testing.T) {
	for _, method := range []Method{MethodFunctionCalling, MethodJSONMode} {
		t.Run(method.String(), func(t *testing.T) {
			typedClient := &fakeClient{resp: toolCallResponse(calculator.Name, calculatorArgs)}
			jsonClient := &fakeClient{resp: toolCallResponse(calculator.Name, calculatorArgs)}
			if method == MethodJSONMode {
				typedClient.resp = textResponse(calculatorArgs)
				jsonClient.resp = textResponse(calculatorArgs)
			}

			typed, err := Configure(typedClient, calculator.Schema(), Options{Name: calculator.Name, Method: method})
			require.NoError(t, err)
			doc, err := Configure(jsonClient, schema.JSON(calculator.JSONSchema()), Options{Name: calculator.Name, Method: method})
			require.NoError(t, err)

			msgs := calculatorPrompt(method)
			typedResult, err := typed.Invoke(context.Background(), msgs)
			require.NoError(t, err)
			docResult, err := doc.Invoke(context.Background(), msgs)
			require.NoError(t, err)

			assert.Equal(t, typedClient.lastRequest(), jsonClient.lastRequest())
			assert.Equal(t, typedResult.Parsed(), docResult.Parsed())
			assert.Equal(t, typedResult.Kind(), docResult.Kind())
		})
	}
}

func TestInvokeFunctionCallingFailures(t *testing.T) {
	tests := []struct {
		name   string
		resp   *llm.Response
		reason Reason
	}{
		{"malformed arguments", toolCallResponse(calculator.Name, `{"operation":"add","number1":2,`), ReasonInvalidJSON},
		{"arguments not an object", toolCallResponse(calculator.Name, `[1,2]`), ReasonInvalidJSON},
		{"no tool call", textResponse("2 + 2 is 4"), ReasonNoToolCall},
		{"other tool", toolCallResponse("weather", `{"city":"Paris"}`), ReasonToolNameMismatch},
		{"missing field", toolCallResponse(calculator.Name, `{"operation":"add","number1":2}`), ReasonSchemaMismatch},
		{"extra field", toolCallResponse(calculator.Name, `{"operation":"add","number1":2,"number2":2,"result":4}`), ReasonSchemaMismatch},
		{"enum violation", toolCallResponse(calculator.Name, `{"operation":"modulo","number1":2,"number2":2}`), ReasonSchemaMismatch},
		{"wrong type", toolCallResponse(calculator.Name, `{"operation":"add","number1":"two","number2":2}`), ReasonSchemaMismatch},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			client := &fakeClient{resp: test.resp}
			model, err := Configure(client, calculator.Schema(), Options{Name: calculator.Name, IncludeRaw: true})
			require.NoError(t, err)

			result, err := model.Invoke(context.Background(), calculatorPrompt(MethodFunctionCalling))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrExtraction))
			assert.False(t, errors.Is(err, ErrSchema))

			var xerr *ExtractionError
			require.ErrorAs(t, err, &xerr)
			assert.Equal(t, test.reason, xerr.Reason)
			assert.Equal(t, MethodFunctionCalling, xerr.Method)
			assert.Equal(t, calculator.Name, xerr.Name)

			assert.Nil(t, result.Parsed(), "no partial object on failure")
			_, hasRaw := result.Raw()
			assert.False(t, hasRaw)
		})
	}
}

func TestSchemaMismatchExposesValidationErrors(t *testing.T) {
	client := &fakeClient{resp: toolCallResponse(calculator.Name, `{"operation":"add","number1":2}`)}
	model, err := Configure(client, calculator.Schema(), Options{Name: calculator.Name})
	require.NoError(t, err)

	_, err = model.Invoke(context.Background(), calculatorPrompt(MethodFunctionCalling))
	var verrs schema.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	require.Len(t, verrs, 1)
	assert.Equal(t, "number2", verrs[0].Field)
}

func TestResultKeysMatchDeclaredFieldsForLooseSchema(t *testing.T) {
	doc := calculator.JSONSchema()
	doc["required"] = []any{"operation"}
	doc["additionalProperties"] = true

	client := &fakeClient{resp: toolCallResponse(calculator.Name, `{"operation":"add","extra":1}`)}
	model, err := Configure(client, schema.JSON(doc), Options{Name: calculator.Name})
	require.NoError(t, err)

	params := model.Request(nil).Tools[0].Function.Parameters
	assert.Equal(t, []any{"number1", "number2", "operation"}, params["required"])
	assert.Equal(t, false, params["additionalProperties"])

	result, err := model.Invoke(context.Background(), calculatorPrompt(MethodFunctionCalling))
	var xerr *ExtractionError
	require.ErrorAs(t, err, &xerr)
	assert.Equal(t, ReasonSchemaMismatch, xerr.Reason)
	assert.Nil(t, result.Parsed())

	client.resp = toolCallResponse(calculator.Name, calculatorArgs)
	result, err = model.Invoke(context.Background(), calculatorPrompt(MethodFunctionCalling))
	require.NoError(t, err)
	assert.Equal(t, calculatorKeys, keys(result.Parsed()))
}

func TestFirstMatchingToolCallWins(t *testing.T) {
	resp := &llm.Response{ToolCalls: []llm.ToolCall{
		{ID: "a", Type: "function", Function: llm.Function{Name: "weather", Arguments: `{"city":"Paris"}`}},
		{ID: "b", Type: "function", Function: llm.Function{Name: calculator.Name, Arguments: `{"operation":"multiply","number1":3,"number2":4}`}},
		{ID: "c", Type: "function", Function: llm.Function{Name: calculator.Name, Arguments: calculatorArgs}},
	}}
	model, err := Configure(&fakeClient{resp: resp}, calculator.Schema(), Options{Name: calculator.Name})
	require.NoError(t, err)

	result, err := model.Invoke(context.Background(), calculatorPrompt(MethodFunctionCalling))
	require.NoError(t, err)
	assert.Equal(t, "multiply", result.Parsed()["operation"])
}

func TestInvokeJSONMode(t *testing.T) {
	tests := []struct {
		name    string
		content string
		repair  bool
		reason  Reason
	}{
		{name: "plain", content: calculatorArgs},
		{name: "fenced", content: "```json\n" + calculatorArgs + "\n```"},
		{name: "fenced with prose", content: "Sure! Here you go:\n```\n" + calculatorArgs + "\n```\nLet me know."},
		{name: "surrounding whitespace", content: "\n  " + calculatorArgs + "  \n"},
		{name: "trailing comma repaired", content: `{"operation":"add","number1":2,"number2":2,}`, repair: true},
		{name: "trailing comma rejected", content: `{"operation":"add","number1":2,"number2":2,}`, reason: ReasonInvalidJSON},
		{name: "prose", content: "The answer is 4.", reason: ReasonInvalidJSON},
		{name: "empty", content: "   ", reason: ReasonEmptyContent},
		{name: "null", content: "null", reason: ReasonInvalidJSON},
		{name: "missing field", content: `{"operation":"add","number1":2}`, reason: ReasonSchemaMismatch},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			client := &fakeClient{resp: textResponse(test.content)}
			model, err := Configure(client, schema.JSON(calculator.JSONSchema()), Options{
				Name:   calculator.Name,
				Method: MethodJSONMode,
				Repair: test.repair,
			})
			require.NoError(t, err)

			result, err := model.Invoke(context.Background(), calculatorPrompt(MethodJSONMode))
			if test.reason == "" {
				require.NoError(t, err)
				assert.Equal(t, calculatorKeys, keys(result.Parsed()))
				return
			}
			var xerr *ExtractionError
			require.ErrorAs(t, err, &xerr)
			assert.Equal(t, test.reason, xerr.Reason)
			assert.Equal(t, MethodJSONMode, xerr.Method)
		})
	}
}

func TestJSONModeKeepsBackticksInStrings(t *testing.T) {
	snippet := schema.JSON(map[string]any{
		"type":       "object",
		"properties": map[string]any{"code": map[string]any{"type": "string"}},
	})

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"fence inside value", "{\"code\": \"``` x ```\"}", "``` x ```"},
		{"fenced object with backticks", "```json\n{\"code\": \"use `go test`\"}\n```", "use `go test`"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			client := &fakeClient{resp: textResponse(test.content)}
			model, err := Configure(client, snippet, Options{Name: "snippet", Method: MethodJSONMode})
			require.NoError(t, err)

			result, err := model.Invoke(context.Background(), []llm.Message{llm.Human("Show me a code block.")})
			require.NoError(t, err)
			assert.Equal(t, test.want, result.Parsed()["code"])
		})
	}
}

func TestJSONModeDoesNotInjectInstructions(t *testing.T) {
	client := &fakeClient{resp: textResponse(calculatorArgs)}
	model, err := Configure(client, calculator.Schema(), Options{Name: calculator.Name, Method: MethodJSONMode})
	require.NoError(t, err)

	msgs := calculatorPrompt(MethodJSONMode)
	_, err = model.Invoke(context.Background(), msgs)
	require.NoError(t, err)
	assert.Equal(t, msgs, client.lastRequest().Messages)
	assert.Empty(t, client.lastRequest().SystemPrompt)
}

func TestTransportErrorPassesThrough(t *testing.T) {
	transportErr := llm.NewLLMError(llm.ProviderOpenAI, llm.ErrorTypeRateLimit, "slow down")
	client := &fakeClient{err: transportErr}
	model, err := Configure(client, calculator.Schema(), Options{Name: calculator.Name})
	require.NoError(t, err)

	_, err = model.Invoke(context.Background(), calculatorPrompt(MethodFunctionCalling))
	assert.True(t, err == error(transportErr), "expected the transport error value, got %v", err)
	assert.False(t, errors.Is(err, ErrExtraction))
	assert.Equal(t, 1, client.calls(), "no retries")
}

func TestInvokeHonorsContext(t *testing.T) {
	client := &fakeClient{resp: toolCallResponse(calculator.Name, calculatorArgs)}
	model, err := Configure(client, calculator.Schema(), Options{Name: calculator.Name})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = model.Invoke(ctx, calculatorPrompt(MethodFunctionCalling))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, client.calls())
}

func TestInvokeRejectsEmptyConversation(t *testing.T) {
	client := &fakeClient{resp: toolCallResponse(calculator.Name, calculatorArgs)}
	model, err := Configure(client, calculator.Schema(), Options{Name: calculator.Name})
	require.NoError(t, err)

	_, err = model.Invoke(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoMessages)
	assert.Equal(t, 0, client.calls())
}

func TestConfigureErrors(t *testing.T) {
	client := &fakeClient{}

	_, err := Configure(client, calculator.Schema(), Options{})
	assert.ErrorIs(t, err, ErrMissingName)

	_, err = Configure(nil, calculator.Schema(), Options{Name: "x"})
	assert.ErrorIs(t, err, ErrNilClient)

	_, err = Configure(client, calculator.Schema(), Options{Name: "x", Method: Method(7)})
	assert.ErrorIs(t, err, ErrUnknownMethod)

	_, err = Configure(client, schema.JSON(map[string]any{"type": "string"}), Options{Name: "x"})
	assert.ErrorIs(t, err, ErrSchema)
	assert.False(t, errors.Is(err, ErrExtraction))
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	var inner *schema.Error
	assert.ErrorAs(t, err, &inner)

	assert.Equal(t, 0, client.calls())
}

func TestToolDescription(t *testing.T) {
	client := &fakeClient{}
	model, err := Configure(client, calculator.Schema(), Options{Name: calculator.Name})
	require.NoError(t, err)
	assert.Equal(t, defaultToolDescription, model.Request(nil).Tools[0].Function.Description)

	doc := calculator.JSONSchema()
	doc["description"] = "Basic arithmetic"
	model, err = Configure(client, schema.JSON(doc), Options{Name: calculator.Name})
	require.NoError(t, err)
	assert.Equal(t, "Basic arithmetic", model.Request(nil).Tools[0].Function.Description)

	model, err = Configure(client, schema.JSON(doc), Options{Name: calculator.Name, Description: "override"})
	require.NoError(t, err)
	assert.Equal(t, "override", model.Request(nil).Tools[0].Function.Description)
}

func TestRequestDoesNotShareSchema(t *testing.T) {
	model, err := Configure(&fakeClient{}, calculator.Schema(), Options{Name: calculator.Name})
	require.NoError(t, err)

	first := model.Request(nil)
	first.Tools[0].Function.Parameters["type"] = "mutated"
	assert.Equal(t, "object", model.Request(nil).Tools[0].Function.Parameters["type"])
}

func TestDecodeIntoCalculatorRequest(t *testing.T) {
	client := &fakeClient{resp: toolCallResponse(calculator.Name, calculatorArgs)}
	model, err := Configure(client, calculator.Schema(), Options{Name: calculator.Name})
	require.NoError(t, err)

	result, err := model.Invoke(context.Background(), calculatorPrompt(MethodFunctionCalling))
	require.NoError(t, err)

	req, err := Decode[calculator.Request](result)
	require.NoError(t, err)
	assert.Equal(t, calculator.Request{Operation: calculator.Add, Number1: 2, Number2: 2}, req)

	answer, err := req.Evaluate()
	require.NoError(t, err)
	assert.Equal(t, 4.0, answer)
}

func TestResultMarshalJSON(t *testing.T) {
	plain := Result{kind: ResultPlain, parsed: map[string]any{"a": 1.0}}
	b, err := json.Marshal(plain)
	require.NoError(t, err)
	assert.JSONEq(t, `{"parsed":{"a":1}}`, string(b))

	withRaw := Result{kind: ResultWithRaw, parsed: map[string]any{"a": 1.0}, raw: &llm.Response{Content: "x", Model: "m", Provider: llm.ProviderOpenAI}}
	b, err = json.Marshal(withRaw)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Contains(t, decoded, "raw")
	assert.Equal(t, "x", decoded["raw"].(map[string]any)["content"])
}

func TestRecorderReceivesTranscripts(t *testing.T) {
	store := inmemory.NewStore()
	client := &fakeClient{resp: toolCallResponse(calculator.Name, calculatorArgs)}
	model, err := Configure(client, calculator.Schema(), Options{Name: calculator.Name, Recorder: store})
	require.NoError(t, err)

	_, err = model.Invoke(context.Background(), calculatorPrompt(MethodFunctionCalling))
	require.NoError(t, err)

	client.resp = textResponse("no tools today")
	_, err = model.Invoke(context.Background(), calculatorPrompt(MethodFunctionCalling))
	require.Error(t, err)

	records, err := store.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, records, 2)

	var ok, failed transcript.Record
	for _, r := range records {
		if r.Succeeded() {
			ok = r
		} else {
			failed = r
		}
	}
	assert.Equal(t, "functionCalling", ok.Method)
	assert.Equal(t, "typed", ok.SchemaKind)
	assert.Equal(t, "add", ok.Parsed["operation"])
	assert.Len(t, ok.Messages, 2)
	assert.NotEmpty(t, ok.ID)
	assert.Contains(t, failed.Error, string(ReasonNoToolCall))
	assert.NotNil(t, failed.Response)
}

type failingStore struct{ transcript.Store }

func (failingStore) Save(context.Context, transcript.Record) error {
	return fmt.Errorf("disk full")
}

func TestRecorderFailureIsLoggedNotReturned(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	client := &fakeClient{resp: toolCallResponse(calculator.Name, calculatorArgs)}
	model, err := Configure(client, calculator.Schema(), Options{
		Name:     calculator.Name,
		Recorder: failingStore{},
		Logger:   logger,
	})
	require.NoError(t, err)

	_, err = model.Invoke(context.Background(), calculatorPrompt(MethodFunctionCalling))
	require.NoError(t, err)
	assert.Contains(t, logs.String(), "structured transcript not saved")
	assert.Contains(t, logs.String(), "disk full")
}

func TestInvokeObservability(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	metrics, err := otelobs.NewMetricsAdapter("structured-test", mp)
	require.NoError(t, err)

	oldT, oldM := observability.TracerImpl, observability.MetricsImpl
	observability.SetTracer(otelobs.NewTracer("structured-test", tp))
	observability.SetMetrics(metrics)
	t.Cleanup(func() {
		observability.SetTracer(oldT)
		observability.SetMetrics(oldM)
	})

	client := &fakeClient{resp: toolCallResponse(calculator.Name, calculatorArgs)}
	model, err := Configure(client, calculator.Schema(), Options{Name: calculator.Name})
	require.NoError(t, err)
	_, err = model.Invoke(context.Background(), calculatorPrompt(MethodFunctionCalling))
	require.NoError(t, err)

	client.resp = toolCallResponse("weather", `{}`)
	_, err = model.Invoke(context.Background(), calculatorPrompt(MethodFunctionCalling))
	require.Error(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 2)
	attrs := func(s sdktrace.ReadOnlySpan) map[string]any {
		out := map[string]any{}
		for _, kv := range s.Attributes() {
			out[string(kv.Key)] = kv.Value.AsInterface()
		}
		return out
	}
	first, second := attrs(spans[0]), attrs(spans[1])
	assert.Equal(t, "structured.invoke", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Equal(t, calculator.Name, first[observability.AttrStructuredName])
	assert.Equal(t, "functionCalling", first[observability.AttrStructuredMethod])
	assert.Equal(t, int64(40), first[observability.AttrTokensInput])
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, string(ReasonToolNameMismatch), second[observability.AttrExtractionReason])

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}
	assert.Equal(t, int64(2), sums["structured.requests"])
	assert.Equal(t, int64(104), sums["structured.tokens"])
	assert.Equal(t, int64(1), sums["structured.errors"])
	assert.Equal(t, int64(0), sums["structured.in_flight"])
}

func TestConcurrentInvokes(t *testing.T) {
	client := &fakeClient{resp: toolCallResponse(calculator.Name, calculatorArgs)}
	model, err := Configure(client, calculator.Schema(), Options{Name: calculator.Name})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := model.Invoke(context.Background(), calculatorPrompt(MethodFunctionCalling))
			if err == nil && len(result.Parsed()) != 3 {
				err = fmt.Errorf("unexpected result %v", result.Parsed())
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 16, client.calls())
}
