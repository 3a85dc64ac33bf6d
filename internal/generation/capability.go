// Package generation is the text-generation capability the dispatcher drives:
// one call per job, returning the model's JSON document.
package generation

import (
	"context"
	"encoding/json"

	"github.com/iago/assessment-dispatch/internal/domain"
)

type Capability interface {
	GenerateQuestions(ctx context.Context, payload *domain.VivaGeneratePayload, content string) (json.RawMessage, error)
	RegenerateQuestions(ctx context.Context, payload *domain.VivaRegeneratePayload, content string) (json.RawMessage, error)
	GenerateRubric(ctx context.Context, payload *domain.RubricGeneratePayload) (json.RawMessage, error)
	ConvertRubric(ctx context.Context, payload *domain.RubricConvertPayload, content string) (json.RawMessage, error)
}
