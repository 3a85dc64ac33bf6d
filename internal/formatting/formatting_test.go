package formatting

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/iago/assessment-dispatch/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestDiffRatio(t *testing.T) {
	var sim DiffRatio
	assert.Equal(t, 1.0, sim.Score("factual_recall", "factual_recall"))
	assert.Equal(t, 1.0, sim.Score("factual_recal", "factual_recall"))
	assert.InDelta(t, 1-2.0/12.0, sim.Score("open_ended_q", "open_ended"), 1e-9)
	assert.Equal(t, 0.0, sim.Score("", "open_ended"))
	assert.Less(t, sim.Score("zzzz", "open_ended"), 0.01)
}

func TestLevenshteinRatio(t *testing.T) {
	var sim LevenshteinRatio
	assert.Equal(t, 1.0, sim.Score("open_ended", "open_ended"))
	assert.InDelta(t, 1-2.0/12.0, sim.Score("open_ended_q", "open_ended"), 1e-9)
	assert.Equal(t, 0.0, sim.Score("", ""))
}

func TestSimilarityByName(t *testing.T) {
	sim, ok := SimilarityByName("levenshtein")
	assert.True(t, ok)
	assert.IsType(t, LevenshteinRatio{}, sim)

	sim, ok = SimilarityByName("")
	assert.True(t, ok)
	assert.IsType(t, DiffRatio{}, sim)

	_, ok = SimilarityByName("cosine")
	assert.False(t, ok)
}

func canonicalResult() map[string]json.RawMessage {
	out := make(map[string]json.RawMessage)
	for i, category := range domain.CanonicalCategories {
		out[category] = json.RawMessage(`{"question_1":"q` + string(rune('a'+i)) + `"}`)
	}
	return out
}

func TestCorrectCategoriesIsIdentityOnCanonicalInput(t *testing.T) {
	for _, sim := range []Similarity{DiffRatio{}, LevenshteinRatio{}} {
		input := canonicalResult()
		assert.Equal(t, input, CorrectCategories(input, sim))
	}
}

func TestCorrectCategoriesRepairsMisspelledKeys(t *testing.T) {
	input := map[string]string{
		"factual_recal": "facts",
		"open_ended_q":  "open",
	}
	corrected := CorrectCategories(input, DiffRatio{})
	assert.Equal(t, map[string]string{
		domain.CategoryFactualRecall: "facts",
		domain.CategoryOpenEnded:     "open",
	}, corrected)
}

func TestCorrectCategoriesNormalizesCase(t *testing.T) {
	input := map[string]int{
		"Factual Recall":           1,
		"Analysis & Evaluation":    2,
		"CONCEPTUAL-UNDERSTANDING": 3,
	}
	corrected := CorrectCategories(input, nil)
	assert.Equal(t, map[string]int{
		domain.CategoryFactualRecall:           1,
		domain.CategoryAnalysisEvaluation:      2,
		domain.CategoryConceptualUnderstanding: 3,
	}, corrected)
}

func TestCorrectCategoriesNeverReusesKeys(t *testing.T) {
	input := map[string]int{"questions": 1, "extra": 2, "more": 3, "misc": 4, "other": 5, "spare": 6}
	corrected := CorrectCategories(input, DiffRatio{})
	require.Len(t, corrected, len(domain.CanonicalCategories))

	seen := make(map[int]bool)
	for _, value := range corrected {
		assert.False(t, seen[value], "value %d bound twice", value)
		seen[value] = true
	}
}

func TestCorrectCategoriesIsDeterministic(t *testing.T) {
	input := map[string]int{"aaa": 1, "bbb": 2, "ccc": 3}
	first := CorrectCategories(input, DiffRatio{})
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, CorrectCategories(input, DiffRatio{}))
	}
}

func TestZipperMerge(t *testing.T) {
	prior := QuestionSet{
		domain.CategoryFactualRecall: {"question_1": "A", "question_2": "B"},
		domain.CategoryOpenEnded:     {"question_1": "C"},
	}
	regenerated := QuestionSet{
		domain.CategoryFactualRecall:      {"regenerated_question_1": "A2", "regenerated_question_99": "Z"},
		domain.CategoryAnalysisEvaluation: {"regenerated_question_1": "ignored"},
	}

	merged := ZipperMerge(prior, regenerated)
	assert.Equal(t, QuestionSet{
		domain.CategoryFactualRecall: {"question_1": "A2", "question_2": "B"},
		domain.CategoryOpenEnded:     {"question_1": "C"},
	}, merged)
	assert.Equal(t, "A", prior[domain.CategoryFactualRecall]["question_1"], "prior must not be modified")
}

func TestPriorQuestions(t *testing.T) {
	plain := []byte(`{"submission_id":1,"ai_questions":{"factual_recall":{"question_1":"A"}}}`)
	set, err := PriorQuestions(plain)
	require.NoError(t, err)
	assert.Equal(t, "A", set[domain.CategoryFactualRecall]["question_1"])

	doubleEncoded := []byte(`{"ai_questions":"{\"open_ended\":{\"question_1\":\"B\"}}"}`)
	set, err = PriorQuestions(doubleEncoded)
	require.NoError(t, err)
	assert.Equal(t, "B", set[domain.CategoryOpenEnded]["question_1"])

	_, err = PriorQuestions([]byte(`{"submission_id":1}`))
	assert.ErrorIs(t, err, ErrMissingAIQuestions)

	_, err = PriorQuestions([]byte(`not json`))
	assert.Error(t, err)
}

func TestArtifactNames(t *testing.T) {
	at := time.Date(2026, 10, 19, 9, 5, 7, 0, time.UTC)
	assert.Equal(t, "Agile_generated_19102026_09:05:07.json", VivaArtifactName("Agile", at))
	assert.Equal(t, "OS Rubric_rubric_19102026_09:05:07.json", RubricArtifactName("OS Rubric", at))
	assert.Equal(t, "rubric_rubric_19102026_09:05:07.json", RubricArtifactName(" ", at))
}

func sampleRubric() domain.Rubric {
	bands := make(map[string]domain.GradeDescriptor)
	bounds := [][2]domain.Mark{{"0", "49"}, {"50", "64"}, {"65", "74"}, {"75", "84"}, {"85", "100"}}
	for i, band := range domain.GradeBands {
		bands[band] = domain.GradeDescriptor{
			MarkMin: bounds[i][0],
			MarkMax: bounds[i][1],
			Criterion: []domain.CriterionDescriptor{
				{Name: "Design", Description: band + " design"},
				{Name: "Testing", Description: band + " testing"},
			},
		}
	}
	return domain.Rubric{Title: "OS Rubric", GradeDescriptors: bands}
}

func TestRubricMarkdown(t *testing.T) {
	md := RubricMarkdown(sampleRubric())
	lines := strings.Split(strings.TrimSpace(md), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, "# OS Rubric", lines[0])
	assert.Equal(t, "|   | Fail | Pass | Credit | Distinction | High Distinction |", lines[1])
	assert.Equal(t, "| **Grade%** | 0-49% | 50-64% | 65-74% | 75-84% | 85-100% |", lines[3])
	assert.Equal(t, "| **Testing** | fail testing | pass_ testing | credit testing | distinction testing | high_distinction testing |", lines[5])

	assert.Equal(t, "# Untitled\n", RubricMarkdown(domain.Rubric{Title: "Untitled"}))
}

func TestRubricXLSX(t *testing.T) {
	data, err := RubricXLSX(sampleRubric())
	require.NoError(t, err)

	book, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer book.Close()

	sheet := book.GetSheetName(0)
	value, err := book.GetCellValue(sheet, "F1")
	require.NoError(t, err)
	assert.Equal(t, "High Distinction", value)

	value, err = book.GetCellValue(sheet, "B2")
	require.NoError(t, err)
	assert.Equal(t, "0-49%", value)

	value, err = book.GetCellValue(sheet, "A4")
	require.NoError(t, err)
	assert.Equal(t, "Testing", value)
}

func TestVivaMarkdown(t *testing.T) {
	artifact := domain.NewVivaArtifact(10, domain.ProjectQuestions{
		UnitCode:        "CS101",
		ProjectTitle:    "Agile Project",
		StaticQuestions: []string{"Who are you"},
		RandomQuestions: []domain.RandomQuestion{{Question: "q2"}},
	}, QuestionSet{
		domain.CategoryFactualRecall: {"question_1": "What is Scrum?", "question_2": "What is a sprint?"},
	})

	md := VivaMarkdown(artifact)
	assert.Contains(t, md, "# Agile Project\n## Submission ID #10 | CS101\n")
	assert.Contains(t, md, "## Static Questions\n1. Who are you\n")
	assert.Contains(t, md, "## Random Questions\n1. q2\n")
	assert.Contains(t, md, "### Factual Recall questions:\n1. What is Scrum?\n2. What is a sprint?\n")
	assert.NotContains(t, md, "Open-Ended")
}
