package domain

import (
	"encoding/json"
	"strings"
)

// QuestionSet maps a question category to question keys and their texts.
type QuestionSet map[string]map[string]string

type RandomQuestion struct {
	Question string `json:"question"`
}

// ProjectQuestions is the project-level question material for a submission.
type ProjectQuestions struct {
	UnitCode        string
	ProjectTitle    string
	StaticQuestions []string
	RandomQuestions []RandomQuestion
}

// VivaArtifact is the stored result of a viva generation or regeneration.
type VivaArtifact struct {
	SubmissionID    int64            `json:"submission_id"`
	UnitCode        string           `json:"unit_code"`
	ProjectTitle    string           `json:"project_title"`
	StaticQuestions []string         `json:"static_questions"`
	RandomQuestions []RandomQuestion `json:"random_questions"`
	AIQuestions     QuestionSet      `json:"ai_questions"`
}

func NewVivaArtifact(submissionID int64, project ProjectQuestions, questions QuestionSet) VivaArtifact {
	static := project.StaticQuestions
	if static == nil {
		static = []string{}
	}
	random := project.RandomQuestions
	if random == nil {
		random = []RandomQuestion{}
	}
	return VivaArtifact{
		SubmissionID:    submissionID,
		UnitCode:        project.UnitCode,
		ProjectTitle:    project.ProjectTitle,
		StaticQuestions: static,
		RandomQuestions: random,
		AIQuestions:     questions,
	}
}

var GradeBands = []string{"fail", "pass_", "credit", "distinction", "high_distinction"}

var GradeBandLabels = map[string]string{
	"fail":             "Fail",
	"pass_":            "Pass",
	"credit":           "Credit",
	"distinction":      "Distinction",
	"high_distinction": "High Distinction",
}

// Mark accepts a grade boundary written either as a JSON number or a string.
type Mark string

func (m *Mark) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*m = Mark(strings.TrimSpace(text))
		return nil
	}
	var number json.Number
	if err := json.Unmarshal(data, &number); err != nil {
		return err
	}
	*m = Mark(number.String())
	return nil
}

func (m Mark) MarshalJSON() ([]byte, error) {
	if _, err := json.Number(m).Float64(); err == nil {
		return []byte(m), nil
	}
	return json.Marshal(string(m))
}

type CriterionDescriptor struct {
	Name        string `json:"criteria_name"`
	Description string `json:"criteria_description"`
}

type GradeDescriptor struct {
	MarkMin   Mark                  `json:"mark_min"`
	MarkMax   Mark                  `json:"mark_max"`
	Criterion []CriterionDescriptor `json:"criterion"`
}

// Rubric is a marking rubric with one descriptor per grade band.
type Rubric struct {
	Title            string                     `json:"rubric_title,omitempty"`
	GradeDescriptors map[string]GradeDescriptor `json:"grade_descriptors"`
}
