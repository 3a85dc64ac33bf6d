package quality

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/iago/assessment-dispatch/internal/domain"
)

var ErrQualityRejected = errors.New("output failed quality checks")

const (
	minQuestionScore = 0.40
	maxQuestionLen   = 600
)

type OutputValidator struct{}

func NewOutputValidator() *OutputValidator {
	return &OutputValidator{}
}

// QuestionValidationResult carries the cleaned question set and a 0..1 quality score.
type QuestionValidationResult struct {
	Questions domain.QuestionSet
	Score     float64
	Corrected bool
}

// ValidateQuestions normalizes question texts, drops blank entries and scores
// how closely the set follows the requested per-category counts. A nil
// requested map skips the count check, as for regeneration output.
func (v *OutputValidator) ValidateQuestions(
	questions domain.QuestionSet,
	requested map[string]int,
) (QuestionValidationResult, error) {
	if len(questions) == 0 {
		return QuestionValidationResult{}, fmt.Errorf("%w: no question categories", ErrQualityRejected)
	}

	corrected := false
	penalty := 0.0
	total := 0
	output := make(domain.QuestionSet, len(questions))

	for category, entries := range questions {
		cleaned := make(map[string]string, len(entries))
		for key, text := range entries {
			text = normalizeText(text)
			if text == "" {
				corrected = true
				penalty += 0.05
				continue
			}
			if len(text) > maxQuestionLen {
				text = truncateAtWord(text, maxQuestionLen)
				corrected = true
				penalty += 0.02
			}
			cleaned[key] = text
		}
		total += len(cleaned)
		output[category] = cleaned
	}

	if total == 0 {
		return QuestionValidationResult{}, fmt.Errorf("%w: every question is empty", ErrQualityRejected)
	}

	for category, want := range requested {
		got := len(output[category])
		if want == got {
			continue
		}
		if want > 0 && got == 0 {
			penalty += 0.15
			continue
		}
		penalty += 0.05 * math.Min(float64(absInt(want-got)), 3)
	}

	score := clamp01(1.0 - penalty)
	if score < minQuestionScore {
		return QuestionValidationResult{}, fmt.Errorf("%w: low question quality score %.2f", ErrQualityRejected, score)
	}
	return QuestionValidationResult{Questions: output, Score: round2(score), Corrected: corrected}, nil
}

// ValidateRubric decodes a rubric document and checks that every grade band
// is present with numeric, ordered mark bounds and the same criteria count.
func (v *OutputValidator) ValidateRubric(body json.RawMessage) (domain.Rubric, error) {
	body, err := unwrapString(body)
	if err != nil {
		return domain.Rubric{}, err
	}

	var rubric domain.Rubric
	if err := json.Unmarshal(body, &rubric); err != nil {
		return domain.Rubric{}, fmt.Errorf("%w: decode rubric: %v", ErrQualityRejected, err)
	}
	if len(rubric.GradeDescriptors) == 0 {
		return domain.Rubric{}, fmt.Errorf("%w: grade_descriptors missing", ErrQualityRejected)
	}
	rubric.Title = normalizeText(rubric.Title)

	criteriaCount := -1
	previousMax := math.Inf(-1)
	for _, band := range domain.GradeBands {
		descriptor, ok := rubric.GradeDescriptors[band]
		if !ok {
			return domain.Rubric{}, fmt.Errorf("%w: grade band %s missing", ErrQualityRejected, band)
		}

		low, lowErr := strconv.ParseFloat(string(descriptor.MarkMin), 64)
		high, highErr := strconv.ParseFloat(string(descriptor.MarkMax), 64)
		if lowErr != nil || highErr != nil {
			return domain.Rubric{}, fmt.Errorf("%w: grade band %s has non-numeric marks", ErrQualityRejected, band)
		}
		if low > high || low < previousMax {
			return domain.Rubric{}, fmt.Errorf("%w: grade band %s marks %s-%s are out of order",
				ErrQualityRejected, band, descriptor.MarkMin, descriptor.MarkMax)
		}
		previousMax = high

		if len(descriptor.Criterion) == 0 {
			return domain.Rubric{}, fmt.Errorf("%w: grade band %s has no criteria", ErrQualityRejected, band)
		}
		if criteriaCount >= 0 && len(descriptor.Criterion) != criteriaCount {
			return domain.Rubric{}, fmt.Errorf("%w: grade band %s has %d criteria, want %d",
				ErrQualityRejected, band, len(descriptor.Criterion), criteriaCount)
		}
		criteriaCount = len(descriptor.Criterion)

		for i := range descriptor.Criterion {
			descriptor.Criterion[i].Name = normalizeText(descriptor.Criterion[i].Name)
			descriptor.Criterion[i].Description = normalizeText(descriptor.Criterion[i].Description)
			if descriptor.Criterion[i].Name == "" {
				return domain.Rubric{}, fmt.Errorf("%w: grade band %s criterion %d has no name", ErrQualityRejected, band, i+1)
			}
		}
		rubric.GradeDescriptors[band] = descriptor
	}
	return rubric, nil
}

func unwrapString(body json.RawMessage) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(body))
	if !strings.HasPrefix(trimmed, `"`) {
		return body, nil
	}
	var inner string
	if err := json.Unmarshal([]byte(trimmed), &inner); err != nil {
		return nil, fmt.Errorf("%w: decode encoded rubric: %v", ErrQualityRejected, err)
	}
	return json.RawMessage(inner), nil
}

func normalizeText(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	return strings.Join(strings.Fields(trimmed), " ")
}

func truncateAtWord(value string, maxLen int) string {
	if len(value) <= maxLen || maxLen <= 0 {
		return value
	}
	cut := value[:maxLen]
	lastSpace := strings.LastIndex(cut, " ")
	if lastSpace > maxLen/2 {
		cut = cut[:lastSpace]
	}
	return strings.TrimSpace(cut)
}

func absInt(value int) int {
	if value < 0 {
		return -value
	}
	return value
}

func clamp01(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
