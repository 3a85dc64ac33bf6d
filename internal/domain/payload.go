package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Canonical question categories in correction order.
const (
	CategoryAnalysisEvaluation        = "analysis_evaluation"
	CategoryApplicationProblemSolving = "application_problem_solving"
	CategoryFactualRecall             = "factual_recall"
	CategoryOpenEnded                 = "open_ended"
	CategoryConceptualUnderstanding   = "conceptual_understanding"
)

var CanonicalCategories = []string{
	CategoryAnalysisEvaluation,
	CategoryApplicationProblemSolving,
	CategoryFactualRecall,
	CategoryOpenEnded,
	CategoryConceptualUnderstanding,
}

// QuestionCounts is the number of questions requested per category.
type QuestionCounts struct {
	FactualRecall             int `json:"no_of_questions_factual_recall"`
	ConceptualUnderstanding   int `json:"no_of_questions_conceptual_understanding"`
	AnalysisEvaluation        int `json:"no_of_questions_analysis_evaluation"`
	ApplicationProblemSolving int `json:"no_of_questions_application_problem_solving"`
	OpenEnded                 int `json:"no_of_questions_open_ended"`
}

func (c QuestionCounts) Total() int {
	return c.FactualRecall + c.ConceptualUnderstanding + c.AnalysisEvaluation + c.ApplicationProblemSolving + c.OpenEnded
}

// ByCategory returns the counts keyed by canonical category name.
func (c QuestionCounts) ByCategory() map[string]int {
	return map[string]int{
		CategoryFactualRecall:             c.FactualRecall,
		CategoryConceptualUnderstanding:   c.ConceptualUnderstanding,
		CategoryAnalysisEvaluation:        c.AnalysisEvaluation,
		CategoryApplicationProblemSolving: c.ApplicationProblemSolving,
		CategoryOpenEnded:                 c.OpenEnded,
	}
}

func (c QuestionCounts) validate() error {
	for category, count := range c.ByCategory() {
		if count < 0 {
			return fmt.Errorf("question count for %s must not be negative", category)
		}
	}
	if c.Total() == 0 {
		return errors.New("at least one question must be requested")
	}
	return nil
}

type VivaGeneratePayload struct {
	SubmissionID       int64  `json:"submission_id"`
	SubmissionFilePath string `json:"file_path"`
	AssignmentTitle    string `json:"assignment_title"`
	UnitName           string `json:"unit_name"`
	StudentYearLevel   string `json:"student_year_level"`
	Difficulty         string `json:"question_challenging_level"`
	QuestionCounts
}

func (p *VivaGeneratePayload) JobType() JobType   { return JobTypeVivaGenerate }
func (p *VivaGeneratePayload) SourcePath() string { return p.SubmissionFilePath }

func (p *VivaGeneratePayload) Validate() error {
	if err := requireFields(map[string]string{
		"file_path":                  p.SubmissionFilePath,
		"assignment_title":           p.AssignmentTitle,
		"unit_name":                  p.UnitName,
		"question_challenging_level": p.Difficulty,
	}); err != nil {
		return err
	}
	return p.QuestionCounts.validate()
}

// RegenerationReason flags one prior question and explains why it should be replaced.
type RegenerationReason struct {
	Question string `json:"question"`
	Reason   string `json:"reason"`
}

type VivaRegeneratePayload struct {
	SubmissionID       int64                `json:"submission_id"`
	SubmissionFilePath string               `json:"file_path"`
	AssignmentTitle    string               `json:"assignment_title"`
	UnitName           string               `json:"unit_name"`
	Reasons            []RegenerationReason `json:"question_reason"`
	PriorArtifactPath  string               `json:"old_file_path"`
}

func (p *VivaRegeneratePayload) JobType() JobType   { return JobTypeVivaRegenerate }
func (p *VivaRegeneratePayload) SourcePath() string { return p.SubmissionFilePath }

func (p *VivaRegeneratePayload) Validate() error {
	if err := requireFields(map[string]string{
		"file_path":        p.SubmissionFilePath,
		"assignment_title": p.AssignmentTitle,
		"unit_name":        p.UnitName,
		"old_file_path":    p.PriorArtifactPath,
	}); err != nil {
		return err
	}
	if len(p.Reasons) == 0 {
		return errors.New("question_reason must list at least one question")
	}
	for i, reason := range p.Reasons {
		if strings.TrimSpace(reason.Question) == "" || strings.TrimSpace(reason.Reason) == "" {
			return fmt.Errorf("question_reason[%d] needs both a question and a reason", i)
		}
	}
	return nil
}

// RubricCriterion describes one criterion the generated rubric must assess.
type RubricCriterion struct {
	Keywords     []string `json:"keywords"`
	Competencies []string `json:"competencies"`
	Skills       []string `json:"skills"`
	Knowledge    []string `json:"knowledge"`
}

type RubricGeneratePayload struct {
	StaffEmail            string            `json:"staff_email"`
	RubricTitle           string            `json:"rubric_title,omitempty"`
	AssessmentDescription string            `json:"assessment_description"`
	Criteria              []RubricCriterion `json:"criteria"`
	LearningOutcomes      []string          `json:"ulos"`
}

func (p *RubricGeneratePayload) JobType() JobType { return JobTypeRubricGenerate }

func (p *RubricGeneratePayload) Validate() error {
	if err := requireFields(map[string]string{
		"staff_email":            p.StaffEmail,
		"assessment_description": p.AssessmentDescription,
	}); err != nil {
		return err
	}
	if len(p.LearningOutcomes) == 0 {
		return errors.New("ulos list cannot be empty")
	}
	return nil
}

type RubricConvertPayload struct {
	StaffEmail       string   `json:"staff_email"`
	MarkingGuidePath string   `json:"file_path"`
	MarkingGuideID   int64    `json:"marking_guide_id"`
	LearningOutcomes []string `json:"ulos"`
}

func (p *RubricConvertPayload) JobType() JobType   { return JobTypeRubricConvert }
func (p *RubricConvertPayload) SourcePath() string { return p.MarkingGuidePath }

func (p *RubricConvertPayload) Validate() error {
	if err := requireFields(map[string]string{
		"staff_email": p.StaffEmail,
		"file_path":   p.MarkingGuidePath,
	}); err != nil {
		return err
	}
	if len(p.LearningOutcomes) == 0 {
		return errors.New("ulos list cannot be empty")
	}
	return nil
}

func requireFields(fields map[string]string) error {
	missing := make([]string, 0)
	for name, value := range fields {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
}
