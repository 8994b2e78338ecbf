package types

import (
	"context"
	"errors"
)

var (
	// ErrGeneration wraps every text generation provider fault.
	ErrGeneration = errors.New("generation failed")

	// ErrNotFound is returned when an entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAgentLocked is returned when another invocation holds the agent lease.
	ErrAgentLocked = errors.New("agent locked by another invocation")

	// ErrJobFailed is returned by the research job service for protocol faults
	// (not for jobs that complete with an error).
	ErrJobFailed = errors.New("research job request failed")
)

// DocumentStore is the Memory Store contract.
type DocumentStore interface {
	// GetOrCreate returns the document, creating it with defaultContent if absent.
	GetOrCreate(ctx context.Context, ownerID, defaultContent, docID string) (*Document, error)
	// Get returns nil, nil when the document does not exist.
	Get(ctx context.Context, docID, ownerID string) (*Document, error)
	// Update archives the previous content before overwriting.
	Update(ctx context.Context, docID, content string) error
	// CreateReport stores a new report document under a fresh UUID.
	CreateReport(ctx context.Context, ownerID, content string) (*Document, error)
}

// KnowledgeIndex is semantic search over an owner's prior thoughts.
type KnowledgeIndex interface {
	// Search returns up to topK matches ordered by descending score.
	// Callers filter by threshold.
	Search(ctx context.Context, query, ownerID string, topK int) ([]Match, error)
	// Add indexes a thought.
	Add(ctx context.Context, thought *Thought) error
}

// JobService is the asynchronous research job service.
type JobService interface {
	Submit(ctx context.Context, query string) (string, error)
	Poll(ctx context.Context, jobID string) (*JobResult, error)
}

// Generator turns a prompt into text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Schema describes a structured output as a named JSON schema object.
type Schema struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// StructuredGenerator produces JSON conforming to a schema and decodes it into out.
type StructuredGenerator interface {
	GenerateStructured(ctx context.Context, prompt string, schema *Schema, out interface{}) error
}
