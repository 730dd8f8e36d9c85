// Package gostructured documents the go-structured module. The module turns a
// chat-model client into one that returns objects conforming to a schema.
// The functionality lives in subpackages:
//
//   - `schema` normalizes typed and JSON Schema representations and validates values
//   - `structured` configures a model and negotiates output by function calling or JSON mode
//   - `llm`, `llm/openai` and `llm/anthropic` are the chat transports
//   - `transcript` records every negotiation in memory, Redis or Postgres
//   - `observability` carries tracing and metrics hooks
//   - `server/http` and `cmd/structctl` expose it over HTTP and the command line
//
// Typical use:
//
//	import (
//	  "github.com/KamdynS/go-structured/calculator"
//	  "github.com/KamdynS/go-structured/structured"
//	)
//
//	model, err := structured.Configure(client, calculator.Schema(), structured.Options{Name: "calculator"})
//	result, err := model.Invoke(ctx, msgs)
package gostructured
