package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/iago/assessment-dispatch/internal/domain"
	"github.com/iago/assessment-dispatch/internal/formatting"
	"github.com/iago/assessment-dispatch/internal/repository"
)

// generate invokes the one capability function that matches the job type.
func (d *Dispatcher) generate(ctx context.Context, job domain.PreparedJob) (json.RawMessage, error) {
	var (
		output json.RawMessage
		err    error
	)
	switch payload := job.Payload.(type) {
	case *domain.VivaGeneratePayload:
		output, err = d.generator.GenerateQuestions(ctx, payload, job.Content)
	case *domain.VivaRegeneratePayload:
		output, err = d.generator.RegenerateQuestions(ctx, payload, job.Content)
	case *domain.RubricGeneratePayload:
		output, err = d.generator.GenerateRubric(ctx, payload)
	case *domain.RubricConvertPayload:
		output, err = d.generator.ConvertRubric(ctx, payload, job.Content)
	default:
		return nil, domain.NewJobError(domain.KindUnknown, "generate", fmt.Errorf("unsupported job type %q", job.Type()))
	}
	if err != nil {
		return nil, domain.NewJobError(domain.KindGeneration, "generate", err)
	}
	if len(output) == 0 {
		return nil, domain.NewJobError(domain.KindGeneration, "generate", errors.New("empty generation output"))
	}
	return output, nil
}

func (d *Dispatcher) postprocess(ctx context.Context, job domain.PreparedJob, output json.RawMessage) (domain.Artifact, error) {
	switch payload := job.Payload.(type) {
	case *domain.VivaGeneratePayload:
		questions, err := d.correctedQuestions(output)
		if err != nil {
			return domain.Artifact{}, err
		}
		validated, err := d.validator.ValidateQuestions(questions, payload.ByCategory())
		if err != nil {
			return domain.Artifact{}, domain.NewJobError(domain.KindGeneration, "validate questions", err)
		}
		if validated.Corrected {
			d.log.Debugw("question output cleaned", "job_id", job.ID, "score", validated.Score)
		}
		return d.storeViva(ctx, payload.SubmissionID, payload.AssignmentTitle, validated.Questions)

	case *domain.VivaRegeneratePayload:
		regenerated, err := d.correctedQuestions(output)
		if err != nil {
			return domain.Artifact{}, err
		}
		prior, err := d.priorQuestions(ctx, payload.PriorArtifactPath)
		if err != nil {
			return domain.Artifact{}, err
		}
		merged := formatting.ZipperMerge(prior, regenerated)
		return d.storeViva(ctx, payload.SubmissionID, payload.AssignmentTitle, merged)

	case *domain.RubricGeneratePayload:
		rubric, err := d.validator.ValidateRubric(output)
		if err != nil {
			return domain.Artifact{}, domain.NewJobError(domain.KindGeneration, "validate rubric", err)
		}
		title := firstNonEmpty(rubric.Title, payload.RubricTitle, "rubric")
		return d.storeRubric(ctx, rubric, repository.RubricRecord{
			StaffEmail: payload.StaffEmail,
			Title:      title,
			Status:     repository.StatusGenerated,
		})

	case *domain.RubricConvertPayload:
		rubric, err := d.validator.ValidateRubric(output)
		if err != nil {
			return domain.Artifact{}, domain.NewJobError(domain.KindGeneration, "validate rubric", err)
		}
		guideID := payload.MarkingGuideID
		title := firstNonEmpty(rubric.Title, fileStem(payload.MarkingGuidePath), "rubric")
		return d.storeRubric(ctx, rubric, repository.RubricRecord{
			StaffEmail:     payload.StaffEmail,
			Title:          title,
			Status:         repository.StatusConverted,
			MarkingGuideID: &guideID,
		})
	}
	return domain.Artifact{}, domain.NewJobError(domain.KindUnknown, "postprocess", fmt.Errorf("unsupported job type %q", job.Type()))
}

func (d *Dispatcher) correctedQuestions(output json.RawMessage) (domain.QuestionSet, error) {
	questions, err := formatting.DecodeQuestionSet(output)
	if err != nil {
		return nil, domain.NewJobError(domain.KindGeneration, "decode questions", err)
	}
	return formatting.CorrectCategories(questions, d.similarity), nil
}

// priorQuestions loads ai_questions from the artifact being regenerated.
func (d *Dispatcher) priorQuestions(ctx context.Context, artifactPath string) (domain.QuestionSet, error) {
	body, err := d.storage.Get(ctx, artifactPath)
	if err != nil {
		return nil, domain.NewJobError(domain.KindFileSystem, "load prior artifact", err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, domain.NewJobError(domain.KindFileSystem, "load prior artifact", err)
	}
	questions, err := formatting.PriorQuestions(data)
	if err != nil {
		return nil, domain.NewJobError(domain.KindUnknown, "merge questions", err)
	}
	return questions, nil
}

func (d *Dispatcher) storeViva(
	ctx context.Context,
	submissionID int64,
	assignmentTitle string,
	questions domain.QuestionSet,
) (domain.Artifact, error) {
	project, err := d.catalog.ProjectQuestions(ctx, submissionID)
	if err != nil {
		return domain.Artifact{}, domain.NewJobError(domain.KindDatabase, "load project questions", err)
	}

	document := domain.NewVivaArtifact(submissionID, project, questions)
	name := formatting.VivaArtifactName(assignmentTitle, d.now())
	stored, err := d.storage.PutJSON(ctx, name, document, true)
	if err != nil {
		return domain.Artifact{}, domain.NewJobError(domain.KindFileSystem, "store viva artifact", err)
	}

	artifact := domain.Artifact{Name: path.Base(stored), Path: stored}
	if err := d.recorder.RecordGeneratedVivaArtifact(ctx, submissionID, artifact.Name, artifact.Path, repository.StatusGenerated); err != nil {
		return artifact, domain.NewJobError(domain.KindDatabase, "record viva artifact", err)
	}
	return artifact, nil
}

func (d *Dispatcher) storeRubric(ctx context.Context, rubric domain.Rubric, record repository.RubricRecord) (domain.Artifact, error) {
	name := formatting.RubricArtifactName(record.Title, d.now())
	stored, err := d.storage.PutJSON(ctx, name, rubric, true)
	if err != nil {
		return domain.Artifact{}, domain.NewJobError(domain.KindFileSystem, "store rubric", err)
	}

	artifact := domain.Artifact{Name: path.Base(stored), Path: stored}
	record.Name = artifact.Name
	record.Path = artifact.Path
	if _, err := d.recorder.RecordGeneratedRubric(ctx, record); err != nil {
		return artifact, domain.NewJobError(domain.KindDatabase, "record rubric", err)
	}
	return artifact, nil
}

func fileStem(artifactPath string) string {
	base := path.Base(artifactPath)
	if base == "." || base == "/" {
		return ""
	}
	return strings.TrimSuffix(base, path.Ext(base))
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
