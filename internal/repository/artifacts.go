package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/iago/assessment-dispatch/internal/domain"
)

var ErrNotFound = errors.New("resource not found")

const (
	StatusGenerated = "GENERATED"
	StatusConverted = "CONVERTED"
)

// ArtifactRecorder records generated artifacts against their owning entities.
type ArtifactRecorder interface {
	RecordGeneratedVivaArtifact(ctx context.Context, submissionID int64, name, path, status string) error
	// RecordGeneratedRubric returns the ID of the new rubric record.
	RecordGeneratedRubric(ctx context.Context, record RubricRecord) (int64, error)
}

// QuestionCatalog supplies the project question material packaged with viva artifacts.
type QuestionCatalog interface {
	ProjectQuestions(ctx context.Context, submissionID int64) (domain.ProjectQuestions, error)
}

type RubricRecord struct {
	ID             int64
	StaffEmail     string
	Title          string
	Name           string
	Path           string
	Status         string
	MarkingGuideID *int64
	CreatedAt      time.Time
}

type VivaArtifactRecord struct {
	SubmissionID int64
	Name         string
	Path         string
	Status       string
	UpdatedAt    time.Time
}

// MemoryStore keeps catalog and artifact records in memory for local development and tests.
type MemoryStore struct {
	mu           sync.RWMutex
	projects     map[int64]domain.ProjectQuestions
	vivas        map[int64]VivaArtifactRecord
	rubrics      []RubricRecord
	nextRubricID int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		projects:     make(map[int64]domain.ProjectQuestions),
		vivas:        make(map[int64]VivaArtifactRecord),
		rubrics:      make([]RubricRecord, 0),
		nextRubricID: 1,
	}
}

// PutProject registers the project question material for a submission.
func (s *MemoryStore) PutProject(submissionID int64, project domain.ProjectQuestions) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[submissionID] = cloneProject(project)
}

func (s *MemoryStore) ProjectQuestions(_ context.Context, submissionID int64) (domain.ProjectQuestions, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	project, ok := s.projects[submissionID]
	if !ok {
		return domain.ProjectQuestions{}, ErrNotFound
	}
	return cloneProject(project), nil
}

func (s *MemoryStore) RecordGeneratedVivaArtifact(_ context.Context, submissionID int64, name, path, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projects[submissionID]; !ok {
		return ErrNotFound
	}
	s.vivas[submissionID] = VivaArtifactRecord{
		SubmissionID: submissionID,
		Name:         name,
		Path:         path,
		Status:       status,
		UpdatedAt:    time.Now().UTC(),
	}
	return nil
}

func (s *MemoryStore) RecordGeneratedRubric(_ context.Context, record RubricRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record.ID = s.nextRubricID
	s.nextRubricID++
	record.CreatedAt = time.Now().UTC()
	if record.MarkingGuideID != nil {
		id := *record.MarkingGuideID
		record.MarkingGuideID = &id
	}
	s.rubrics = append(s.rubrics, record)
	return record.ID, nil
}

func (s *MemoryStore) VivaArtifact(submissionID int64) (VivaArtifactRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.vivas[submissionID]
	return record, ok
}

func (s *MemoryStore) Rubrics() []RubricRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RubricRecord, len(s.rubrics))
	copy(out, s.rubrics)
	return out
}

func cloneProject(project domain.ProjectQuestions) domain.ProjectQuestions {
	clone := project
	clone.StaticQuestions = append([]string(nil), project.StaticQuestions...)
	clone.RandomQuestions = append([]domain.RandomQuestion(nil), project.RandomQuestions...)
	return clone
}
