package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"submind/internal/logging"
	"submind/internal/types"
)

// Structured implements types.StructuredGenerator over an ordered provider
// list; the first provider whose output decodes wins.
type Structured struct {
	providers []Provider
}

var _ types.StructuredGenerator = (*Structured)(nil)

// NewStructured tries providers in order.
func NewStructured(providers ...Provider) *Structured {
	return &Structured{providers: providers}
}

const slowStructured = 45 * time.Second

// GenerateStructured asks for JSON matching schema and decodes it into out.
// A provider error or undecodable output falls through to the next provider.
func (s *Structured) GenerateStructured(ctx context.Context, prompt string, schema *types.Schema, out interface{}) error {
	timer := logging.StartTimer(logging.CategoryLLM, "GenerateStructured:"+schema.Name)
	defer timer.StopWithThreshold(slowStructured)

	var errs []error
	for i, p := range s.providers {
		raw, err := p.GenerateJSON(ctx, prompt, schema)
		if err == nil {
			if err = json.Unmarshal([]byte(raw), out); err != nil {
				logging.LLMWarn("Structured output for %s from %s did not decode: %v", schema.Name, p.Name(), err)
				err = fmt.Errorf("%s: decode: %w", p.Name(), err)
			}
		}
		if err == nil {
			if i > 0 {
				logging.LLM("Structured %s fell back to %s after %d failure(s)", schema.Name, p.Name(), i)
			}
			return nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
		if i+1 < len(s.providers) {
			logging.LLMWarn("Structured %s failed with %s, falling back to %s: %v", schema.Name, p.Name(), s.providers[i+1].Name(), err)
		}
	}
	return fmt.Errorf("%w: %s: all %d providers failed: %w", types.ErrGeneration, schema.Name, len(s.providers), errors.Join(errs...))
}

// extractJSON returns the first balanced {...} object in response, skipping
// braces inside strings.
func extractJSON(response string) string {
	start := strings.Index(response, "{")
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(response); i++ {
		ch := response[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return response[start : i+1]
			}
		}
	}
	return ""
}

func marshalSchema(schema *types.Schema) ([]byte, error) {
	return json.MarshalIndent(schema.Parameters, "", "  ")
}
