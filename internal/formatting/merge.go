package formatting

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/iago/assessment-dispatch/internal/domain"
)

type QuestionSet = domain.QuestionSet

var ErrMissingAIQuestions = errors.New("prior artifact has no ai_questions")

const regeneratedPrefix = "regenerated_"

// DecodeQuestionSet decodes a generation result into a QuestionSet, accepting
// either an object or a JSON string holding one.
func DecodeQuestionSet(raw json.RawMessage) (QuestionSet, error) {
	raw, err := unwrapString(raw)
	if err != nil {
		return nil, err
	}
	var set QuestionSet
	if err := json.Unmarshal(raw, &set); err != nil {
		return nil, fmt.Errorf("decode question set: %w", err)
	}
	if set == nil {
		return nil, errors.New("question set is null")
	}
	return set, nil
}

// PriorQuestions extracts ai_questions from a stored viva artifact.
func PriorQuestions(artifact []byte) (QuestionSet, error) {
	var document map[string]json.RawMessage
	if err := json.Unmarshal(artifact, &document); err != nil {
		return nil, fmt.Errorf("decode prior artifact: %w", err)
	}
	raw, ok := document["ai_questions"]
	if !ok || string(raw) == "null" {
		return nil, ErrMissingAIQuestions
	}
	return DecodeQuestionSet(raw)
}

// ZipperMerge overwrites prior question texts with their regenerated
// counterparts. A regenerated key names its original by the regenerated_
// prefix; entries without a prior counterpart are dropped and categories
// missing on either side stay as they were. prior is not modified.
func ZipperMerge(prior, regenerated QuestionSet) QuestionSet {
	merged := make(QuestionSet, len(prior))
	for category, questions := range prior {
		copied := make(map[string]string, len(questions))
		for key, text := range questions {
			copied[key] = text
		}
		merged[category] = copied
	}

	for _, category := range domain.CanonicalCategories {
		old, ok := merged[category]
		if !ok || old == nil {
			continue
		}
		for key, text := range regenerated[category] {
			original := strings.Replace(key, regeneratedPrefix, "", 1)
			if _, exists := old[original]; exists {
				old[original] = text
			}
		}
	}
	return merged
}

func unwrapString(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(trimmed, `"`) {
		return raw, nil
	}
	var inner string
	if err := json.Unmarshal([]byte(trimmed), &inner); err != nil {
		return nil, fmt.Errorf("decode encoded question set: %w", err)
	}
	return json.RawMessage(inner), nil
}
