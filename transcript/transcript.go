// Package transcript persists completed structured-output negotiations so
// they can be inspected after the fact.
package transcript

import (
	"context"
	"errors"
	"time"

	"github.com/KamdynS/go-structured/llm"
	"github.com/google/uuid"
)

// ErrNotFound is returned by Get when no record has the requested ID.
var ErrNotFound = errors.New("transcript: record not found")

// Record is one Invoke: what was asked, what came back, and what was parsed.
type Record struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Method     string         `json:"method"`
	SchemaKind string         `json:"schema_kind"`
	Provider   string         `json:"provider,omitempty"`
	Model      string         `json:"model,omitempty"`
	Messages   []llm.Message  `json:"messages"`
	Response   *llm.Response  `json:"response,omitempty"`
	Parsed     map[string]any `json:"parsed,omitempty"`
	Error      string         `json:"error,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	Duration   time.Duration  `json:"duration"`
}

// Succeeded reports whether the negotiation produced a parsed value.
func (r Record) Succeeded() bool { return r.Error == "" && r.Parsed != nil }

// Store saves and reads back records.
type Store interface {
	// Save writes r, replacing any record with the same ID.
	Save(ctx context.Context, r Record) error

	// Get returns the record with the given ID or ErrNotFound.
	Get(ctx context.Context, id string) (Record, error)

	// List returns up to limit records, newest first. A non-positive limit
	// means no limit.
	List(ctx context.Context, limit int) ([]Record, error)
}

// NewID returns a fresh record identifier.
func NewID() string { return uuid.NewString() }
