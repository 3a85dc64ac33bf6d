package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/iago/assessment-dispatch/internal/domain"
	"github.com/iago/assessment-dispatch/internal/queue"
	"github.com/iago/assessment-dispatch/internal/repository"
	"github.com/iago/assessment-dispatch/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRubric = `{
	"rubric_title": "Systems Rubric",
	"grade_descriptors": {
		"fail":             {"mark_min": 0,  "mark_max": 49,  "criterion": [{"criteria_name": "Design", "criteria_description": "Missing"}]},
		"pass_":            {"mark_min": 50, "mark_max": 64,  "criterion": [{"criteria_name": "Design", "criteria_description": "Basic"}]},
		"credit":           {"mark_min": 65, "mark_max": 74,  "criterion": [{"criteria_name": "Design", "criteria_description": "Sound"}]},
		"distinction":      {"mark_min": 75, "mark_max": 84,  "criterion": [{"criteria_name": "Design", "criteria_description": "Strong"}]},
		"high_distinction": {"mark_min": 85, "mark_max": 100, "criterion": [{"criteria_name": "Design", "criteria_description": "Excellent"}]}
	}
}`

var fixedNow = time.Date(2026, 10, 19, 14, 3, 22, 0, time.UTC)

type fakeCapability struct {
	mu          sync.Mutex
	questions   string
	regenerated string
	rubric      string
	err         error
	calls       []domain.JobType
	contents    []string

	inFlight atomic.Bool
	overlap  atomic.Bool
}

func (f *fakeCapability) enter(jobType domain.JobType, content string) (string, error) {
	if !f.inFlight.CompareAndSwap(false, true) {
		f.overlap.Store(true)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, jobType)
	f.contents = append(f.contents, content)
	if f.err != nil {
		return "", f.err
	}
	switch jobType {
	case domain.JobTypeVivaGenerate:
		return f.questions, nil
	case domain.JobTypeVivaRegenerate:
		return f.regenerated, nil
	default:
		return f.rubric, nil
	}
}

func (f *fakeCapability) GenerateQuestions(_ context.Context, _ *domain.VivaGeneratePayload, content string) (json.RawMessage, error) {
	out, err := f.enter(domain.JobTypeVivaGenerate, content)
	return json.RawMessage(out), err
}

func (f *fakeCapability) RegenerateQuestions(_ context.Context, _ *domain.VivaRegeneratePayload, content string) (json.RawMessage, error) {
	out, err := f.enter(domain.JobTypeVivaRegenerate, content)
	return json.RawMessage(out), err
}

func (f *fakeCapability) GenerateRubric(_ context.Context, _ *domain.RubricGeneratePayload) (json.RawMessage, error) {
	out, err := f.enter(domain.JobTypeRubricGenerate, "")
	return json.RawMessage(out), err
}

func (f *fakeCapability) ConvertRubric(_ context.Context, _ *domain.RubricConvertPayload, content string) (json.RawMessage, error) {
	out, err := f.enter(domain.JobTypeRubricConvert, content)
	return json.RawMessage(out), err
}

func (f *fakeCapability) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// settlingRecorder releases the capability's in-flight flag once the last
// postprocessing step has returned.
type settlingRecorder struct {
	*repository.MemoryStore
	capability *fakeCapability
	delay      time.Duration
}

func (r *settlingRecorder) RecordGeneratedRubric(ctx context.Context, record repository.RubricRecord) (int64, error) {
	time.Sleep(r.delay)
	defer r.capability.inFlight.Store(false)
	return r.MemoryStore.RecordGeneratedRubric(ctx, record)
}

type failingRecorder struct {
	*repository.MemoryStore
}

func (failingRecorder) RecordGeneratedRubric(context.Context, repository.RubricRecord) (int64, error) {
	return 0, errors.New("connection refused")
}

type harness struct {
	dispatcher *Dispatcher
	capability *fakeCapability
	store      *repository.MemoryStore
	gateway    *storage.LocalGateway
	root       string
	snapshots  *queue.FileSnapshotStore
}

func newHarness(t *testing.T, configure func(*Dependencies)) *harness {
	t.Helper()
	root := filepath.Join(t.TempDir(), "bucket")
	gateway, err := storage.NewLocalGateway(root, t.TempDir())
	require.NoError(t, err)

	h := &harness{
		capability: &fakeCapability{
			questions: `{"factual_recal": {"question_1": "What is a sprint?"}, "open_ended_q": {"question_1": "Reflect on your role."}}`,
			rubric:    testRubric,
		},
		store:     repository.NewMemoryStore(),
		gateway:   gateway,
		root:      root,
		snapshots: queue.NewFileSnapshotStore(filepath.Join(t.TempDir(), ".queue")),
	}
	h.store.PutProject(7, domain.ProjectQuestions{
		UnitCode:        "COMP2000",
		ProjectTitle:    "Agile Project",
		StaticQuestions: []string{"Describe your contribution."},
		RandomQuestions: []domain.RandomQuestion{{Question: "What went wrong?"}},
	})

	deps := Dependencies{
		Storage:     gateway,
		Generator:   h.capability,
		Recorder:    h.store,
		Catalog:     h.store,
		Snapshots:   h.snapshots,
		StreamInput: true,
		Now:         func() time.Time { return fixedNow },
	}
	if configure != nil {
		configure(&deps)
	}
	h.dispatcher, err = New(deps)
	require.NoError(t, err)
	return h
}

func (h *harness) writeSource(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(h.root, name), []byte(content), 0o644))
}

func (h *harness) waitFor(t *testing.T, id domain.JobID) domain.JobResult {
	t.Helper()
	var result domain.JobResult
	require.Eventually(t, func() bool {
		var ok bool
		result, ok = h.dispatcher.Result(id)
		return ok && (result.Status == domain.JobStatusSucceeded || result.Status == domain.JobStatusFailed)
	}, 5*time.Second, 5*time.Millisecond)
	return result
}

func vivaPayload(sourcePath string) *domain.VivaGeneratePayload {
	return &domain.VivaGeneratePayload{
		SubmissionID:       7,
		SubmissionFilePath: sourcePath,
		AssignmentTitle:    "Agile Methods",
		UnitName:           "Software Engineering",
		StudentYearLevel:   "Second year",
		Difficulty:         "moderate",
		QuestionCounts:     domain.QuestionCounts{FactualRecall: 1, OpenEnded: 1},
	}
}

func rubricPayload() *domain.RubricGeneratePayload {
	return &domain.RubricGeneratePayload{
		StaffEmail:            "lecturer@uni.edu",
		AssessmentDescription: "Build a scheduler",
		LearningOutcomes:      []string{"ULO1"},
	}
}

func TestSubmitRejectedOutsideReadyStates(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	submits := map[string]func() (domain.JobID, error){
		"viva_generate": func() (domain.JobID, error) {
			return h.dispatcher.SubmitVivaGenerate(ctx, vivaPayload("s.txt"))
		},
		"viva_regenerate": func() (domain.JobID, error) {
			return h.dispatcher.SubmitVivaRegenerate(ctx, &domain.VivaRegeneratePayload{
				SubmissionFilePath: "s.txt", AssignmentTitle: "A", UnitName: "U", PriorArtifactPath: "old.json",
				Reasons: []domain.RegenerationReason{{Question: "q", Reason: "r"}},
			})
		},
		"rubric_generate": func() (domain.JobID, error) {
			return h.dispatcher.SubmitRubricGenerate(ctx, rubricPayload())
		},
		"rubric_convert": func() (domain.JobID, error) {
			return h.dispatcher.SubmitRubricConvert(ctx, &domain.RubricConvertPayload{
				StaffEmail: "s@uni.edu", MarkingGuidePath: "guide.txt", LearningOutcomes: []string{"ULO1"},
			})
		},
	}

	for name, submit := range submits {
		id, err := submit()
		assert.ErrorIs(t, err, domain.ErrNotInitialized, name)
		assert.Equal(t, NoJob, id, name)
	}
	assert.Equal(t, 0, h.dispatcher.QueueDepth())

	_, err := h.dispatcher.Initialize(ctx, Options{PollInterval: time.Hour})
	require.NoError(t, err)
	state, err := h.dispatcher.Shutdown(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, domain.StateShutdown, state)

	for name, submit := range submits {
		id, err := submit()
		assert.ErrorIs(t, err, domain.ErrShuttingDown, name)
		assert.Equal(t, NoJob, id, name)
	}
	assert.Equal(t, 0, h.dispatcher.QueueDepth())
}

func TestSubmitValidatesPayload(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	_, err := h.dispatcher.Initialize(ctx, Options{PollInterval: time.Hour})
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = h.dispatcher.Shutdown(ctx, false) })
	h.dispatcher.SetSuppressDispatch(true)

	_, err = h.dispatcher.SubmitRubricGenerate(ctx, &domain.RubricGeneratePayload{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	id, err := h.dispatcher.SubmitRubricGenerate(ctx, rubricPayload())
	require.NoError(t, err)
	assert.Equal(t, domain.JobID(0), id, "a rejected payload does not consume an ID")
}

func TestJobIDsIncreaseAndQueueIsFIFO(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	_, err := h.dispatcher.Initialize(ctx, Options{PollInterval: time.Hour})
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = h.dispatcher.Shutdown(ctx, false) })
	h.dispatcher.SetSuppressDispatch(true)

	for want := domain.JobID(0); want < 4; want++ {
		id, err := h.dispatcher.SubmitRubricGenerate(ctx, rubricPayload())
		require.NoError(t, err)
		assert.Equal(t, want, id)
	}
	assert.Equal(t, 4, h.dispatcher.QueueDepth())

	queued, ok := h.dispatcher.Result(2)
	require.True(t, ok)
	assert.Equal(t, domain.JobStatusQueued, queued.Status)
	assert.Equal(t, domain.JobTypeRubricGenerate, queued.Type)

	assert.Equal(t, 4, h.dispatcher.WipeQueue())
	assert.Equal(t, 0, h.dispatcher.QueueDepth())
	_, ok = h.dispatcher.Result(2)
	assert.False(t, ok)
}

func TestQueuePersistenceRoundTrip(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	_, err := h.dispatcher.Initialize(ctx, Options{PollInterval: time.Hour})
	require.NoError(t, err)
	h.dispatcher.SetSuppressDispatch(true)

	a, err := h.dispatcher.SubmitRubricGenerate(ctx, rubricPayload())
	require.NoError(t, err)
	b, err := h.dispatcher.SubmitVivaGenerate(ctx, vivaPayload("submission.txt"))
	require.NoError(t, err)

	state, err := h.dispatcher.Shutdown(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, domain.StateShutdown, state)

	restored, err := New(Dependencies{
		Storage:   h.gateway,
		Generator: h.capability,
		Recorder:  h.store,
		Catalog:   h.store,
		Snapshots: h.snapshots,
	})
	require.NoError(t, err)
	restored.SetSuppressDispatch(true)
	_, err = restored.Initialize(ctx, Options{PollInterval: time.Hour, Reload: true})
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = restored.Shutdown(ctx, false) })

	assert.Equal(t, 2, restored.QueueDepth())
	restored.mu.Lock()
	jobs := restored.queue.Snapshot()
	restored.mu.Unlock()
	require.Len(t, jobs, 2)
	assert.Equal(t, a, jobs[0].ID)
	assert.Equal(t, domain.JobTypeRubricGenerate, jobs[0].Type())
	assert.Equal(t, b, jobs[1].ID)
	assert.Equal(t, "submission.txt", jobs[1].Payload.(*domain.VivaGeneratePayload).SubmissionFilePath)

	next, err := restored.SubmitRubricGenerate(ctx, rubricPayload())
	require.NoError(t, err)
	assert.Equal(t, max(a, b)+1, next)
}

func TestInitializeTwiceIsRejected(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.dispatcher.Initialize(ctx, Options{PollInterval: -time.Second})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	state, err := h.dispatcher.Initialize(ctx, Options{PollInterval: time.Hour})
	require.NoError(t, err)
	assert.Equal(t, domain.StateReady, state)
	t.Cleanup(func() { _, _ = h.dispatcher.Shutdown(ctx, false) })

	_, err = h.dispatcher.Initialize(ctx, Options{})
	assert.ErrorIs(t, err, ErrAlreadyInitialized)
}

func TestSetPollIntervalRejectsNegative(t *testing.T) {
	h := newHarness(t, nil)
	assert.ErrorIs(t, h.dispatcher.SetPollInterval(-time.Millisecond), domain.ErrInvalidInput)
	require.NoError(t, h.dispatcher.SetPollInterval(250*time.Millisecond))
	assert.Equal(t, 250*time.Millisecond, h.dispatcher.Status().PollInterval)
}

func TestVivaGenerationStoresCorrectedArtifact(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.writeSource(t, "submission.txt", "Contact me at student@uni.edu about the sprint.")
	_, err := h.dispatcher.Initialize(ctx, Options{PollInterval: 10 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = h.dispatcher.Shutdown(ctx, false) })

	id, err := h.dispatcher.SubmitVivaGenerate(ctx, vivaPayload("submission.txt"))
	require.NoError(t, err)
	result := h.waitFor(t, id)
	require.Equal(t, domain.JobStatusSucceeded, result.Status, result.Error)
	assert.Equal(t, "Agile_Methods_generated_19102026_140322.json", result.ArtifactName)

	h.capability.mu.Lock()
	content := h.capability.contents[0]
	h.capability.mu.Unlock()
	assert.Contains(t, content, "sprint")
	assert.NotContains(t, content, "student@uni.edu")

	stored, err := os.ReadFile(filepath.Join(h.root, result.ArtifactPath))
	require.NoError(t, err)
	var artifact domain.VivaArtifact
	require.NoError(t, json.Unmarshal(stored, &artifact))
	assert.Equal(t, int64(7), artifact.SubmissionID)
	assert.Equal(t, "COMP2000", artifact.UnitCode)
	assert.Equal(t, []string{"Describe your contribution."}, artifact.StaticQuestions)
	assert.Equal(t, "What is a sprint?", artifact.AIQuestions[domain.CategoryFactualRecall]["question_1"])
	assert.Equal(t, "Reflect on your role.", artifact.AIQuestions[domain.CategoryOpenEnded]["question_1"])

	record, ok := h.store.VivaArtifact(7)
	require.True(t, ok)
	assert.Equal(t, result.ArtifactPath, record.Path)
	assert.Equal(t, repository.StatusGenerated, record.Status)
}

func TestVivaGenerationDownloadsWhenNotStreaming(t *testing.T) {
	h := newHarness(t, func(deps *Dependencies) { deps.StreamInput = false })
	ctx := context.Background()
	h.writeSource(t, "submission.md", "# Report\nKanban boards")
	_, err := h.dispatcher.Initialize(ctx, Options{Synchronous: true})
	require.NoError(t, err)

	_, err = h.dispatcher.SubmitVivaGenerate(ctx, vivaPayload("submission.md"))
	require.NoError(t, err)
	assert.Contains(t, h.capability.contents[0], "Kanban boards")
}

func TestRegenerationMergesIntoPriorArtifact(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.writeSource(t, "submission.txt", "text")
	h.writeSource(t, "prior.json", `{"ai_questions": "{\"factual_recall\": {\"question_1\": \"A\", \"question_2\": \"B\"}}"}`)
	h.capability.regenerated = `{"Factual Recall": {"regenerated_question_1": "A2", "regenerated_question_99": "Z"}}`
	_, err := h.dispatcher.Initialize(ctx, Options{Synchronous: true})
	require.NoError(t, err)

	id, err := h.dispatcher.SubmitVivaRegenerate(ctx, &domain.VivaRegeneratePayload{
		SubmissionID:       7,
		SubmissionFilePath: "submission.txt",
		AssignmentTitle:    "Agile Methods",
		UnitName:           "SE",
		PriorArtifactPath:  "prior.json",
		Reasons:            []domain.RegenerationReason{{Question: "A", Reason: "too easy"}},
	})
	require.NoError(t, err)

	result, ok := h.dispatcher.Result(id)
	require.True(t, ok)
	require.Equal(t, domain.JobStatusSucceeded, result.Status)

	stored, err := os.ReadFile(filepath.Join(h.root, result.ArtifactPath))
	require.NoError(t, err)
	var artifact domain.VivaArtifact
	require.NoError(t, json.Unmarshal(stored, &artifact))
	assert.Equal(t, map[string]string{"question_1": "A2", "question_2": "B"}, artifact.AIQuestions[domain.CategoryFactualRecall])
}

func TestRegenerationFailureKinds(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.writeSource(t, "submission.txt", "text")
	h.writeSource(t, "broken.json", `{"unit_code": "X"}`)
	h.capability.regenerated = `{"factual_recall": {"regenerated_question_1": "A2"}}`
	_, err := h.dispatcher.Initialize(ctx, Options{Synchronous: true})
	require.NoError(t, err)

	payload := func(prior string) *domain.VivaRegeneratePayload {
		return &domain.VivaRegeneratePayload{
			SubmissionID: 7, SubmissionFilePath: "submission.txt", AssignmentTitle: "A", UnitName: "U",
			PriorArtifactPath: prior, Reasons: []domain.RegenerationReason{{Question: "q", Reason: "r"}},
		}
	}

	_, err = h.dispatcher.SubmitVivaRegenerate(ctx, payload("missing.json"))
	assert.ErrorIs(t, err, domain.ErrFileSystem)

	_, err = h.dispatcher.SubmitVivaRegenerate(ctx, payload("broken.json"))
	assert.ErrorIs(t, err, domain.ErrUnknown)

	_, ok := h.store.VivaArtifact(7)
	assert.False(t, ok, "no record after a failed merge")
}

func TestRubricJobsRecordStatus(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.writeSource(t, "guide.csv", "criterion,weight\nDesign,40\n")
	_, err := h.dispatcher.Initialize(ctx, Options{Synchronous: true})
	require.NoError(t, err)

	_, err = h.dispatcher.SubmitRubricGenerate(ctx, rubricPayload())
	require.NoError(t, err)
	_, err = h.dispatcher.SubmitRubricConvert(ctx, &domain.RubricConvertPayload{
		StaffEmail: "lecturer@uni.edu", MarkingGuidePath: "guide.csv", MarkingGuideID: 12, LearningOutcomes: []string{"ULO1"},
	})
	require.NoError(t, err)

	rubrics := h.store.Rubrics()
	require.Len(t, rubrics, 2)
	assert.Equal(t, repository.StatusGenerated, rubrics[0].Status)
	assert.Equal(t, "Systems Rubric", rubrics[0].Title)
	assert.Equal(t, "Systems_Rubric_rubric_19102026_140322.json", rubrics[0].Name)
	assert.Nil(t, rubrics[0].MarkingGuideID)

	assert.Equal(t, repository.StatusConverted, rubrics[1].Status)
	assert.Equal(t, "Systems_Rubric_rubric_19102026_140322_1.json", rubrics[1].Name)
	require.NotNil(t, rubrics[1].MarkingGuideID)
	assert.Equal(t, int64(12), *rubrics[1].MarkingGuideID)
	assert.Contains(t, h.capability.contents[1], "Design")
}

func TestFailureKindsPerStage(t *testing.T) {
	ctx := context.Background()

	t.Run("generation", func(t *testing.T) {
		h := newHarness(t, nil)
		h.capability.err = errors.New("provider down")
		_, err := h.dispatcher.Initialize(ctx, Options{Synchronous: true})
		require.NoError(t, err)
		id, err := h.dispatcher.SubmitRubricGenerate(ctx, rubricPayload())
		assert.ErrorIs(t, err, domain.ErrGeneration)
		result, _ := h.dispatcher.Result(id)
		assert.Equal(t, domain.KindGeneration, result.ErrorKind)
	})

	t.Run("invalid rubric", func(t *testing.T) {
		h := newHarness(t, nil)
		h.capability.rubric = `{"grade_descriptors": {}}`
		_, err := h.dispatcher.Initialize(ctx, Options{Synchronous: true})
		require.NoError(t, err)
		_, err = h.dispatcher.SubmitRubricGenerate(ctx, rubricPayload())
		assert.ErrorIs(t, err, domain.ErrGeneration)
	})

	t.Run("database", func(t *testing.T) {
		h := newHarness(t, func(deps *Dependencies) {
			deps.Recorder = failingRecorder{repository.NewMemoryStore()}
		})
		_, err := h.dispatcher.Initialize(ctx, Options{Synchronous: true})
		require.NoError(t, err)
		id, err := h.dispatcher.SubmitRubricGenerate(ctx, rubricPayload())
		assert.ErrorIs(t, err, domain.ErrDatabase)

		result, _ := h.dispatcher.Result(id)
		assert.Equal(t, domain.JobStatusFailed, result.Status)
		assert.FileExists(t, filepath.Join(h.root, result.ArtifactPath), "artifact stays stored without its record")
	})

	t.Run("unknown submission", func(t *testing.T) {
		h := newHarness(t, nil)
		h.writeSource(t, "submission.txt", "text")
		_, err := h.dispatcher.Initialize(ctx, Options{Synchronous: true})
		require.NoError(t, err)
		payload := vivaPayload("submission.txt")
		payload.SubmissionID = 404
		_, err = h.dispatcher.SubmitVivaGenerate(ctx, payload)
		assert.ErrorIs(t, err, domain.ErrDatabase)
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})
}

func TestInputFailureDoesNotAffectNextJob(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.writeSource(t, "good.txt", "A working submission")
	_, err := h.dispatcher.Initialize(ctx, Options{PollInterval: 10 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = h.dispatcher.Shutdown(ctx, false) })
	h.dispatcher.SetSuppressDispatch(true)

	bad, err := h.dispatcher.SubmitVivaGenerate(ctx, vivaPayload("missing.txt"))
	require.NoError(t, err)
	good, err := h.dispatcher.SubmitVivaGenerate(ctx, vivaPayload("good.txt"))
	require.NoError(t, err)
	h.dispatcher.SetSuppressDispatch(false)

	badResult := h.waitFor(t, bad)
	assert.Equal(t, domain.JobStatusFailed, badResult.Status)
	assert.Equal(t, domain.KindFileSystem, badResult.ErrorKind)

	goodResult := h.waitFor(t, good)
	assert.Equal(t, domain.JobStatusSucceeded, goodResult.Status, goodResult.Error)
	assert.Equal(t, 1, h.capability.callCount(), "the failed job never reached generation")
}

func TestGenerationIsSerialized(t *testing.T) {
	var capability *fakeCapability
	h := newHarness(t, func(deps *Dependencies) {
		capability = deps.Generator.(*fakeCapability)
		deps.Recorder = &settlingRecorder{
			MemoryStore: repository.NewMemoryStore(),
			capability:  capability,
			delay:       5 * time.Millisecond,
		}
	})
	ctx := context.Background()
	_, err := h.dispatcher.Initialize(ctx, Options{PollInterval: time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = h.dispatcher.Shutdown(ctx, false) })
	h.dispatcher.SetSuppressDispatch(true)

	ids := make([]domain.JobID, 0, 6)
	for range 6 {
		id, err := h.dispatcher.SubmitRubricGenerate(ctx, rubricPayload())
		require.NoError(t, err)
		ids = append(ids, id)
	}
	h.dispatcher.SetSuppressDispatch(false)

	for _, id := range ids {
		result := h.waitFor(t, id)
		assert.Equal(t, domain.JobStatusSucceeded, result.Status, result.Error)
	}
	assert.Equal(t, 6, capability.callCount())
	assert.False(t, capability.overlap.Load(), "generation started before the previous job finished")
}

func TestShutdownWaitsForWorker(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	_, err := h.dispatcher.Initialize(ctx, Options{PollInterval: time.Hour})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return h.dispatcher.State() == domain.StateNoJobs
	}, time.Second, time.Millisecond)

	state, err := h.dispatcher.Shutdown(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, domain.StateShutdown, state)
	assert.Equal(t, domain.StateShutdown, h.dispatcher.State())

	state, err = h.dispatcher.Shutdown(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, domain.StateShutdown, state)
}

func TestShutdownBeforeInitialize(t *testing.T) {
	h := newHarness(t, nil)
	state, err := h.dispatcher.Shutdown(context.Background(), false)
	assert.ErrorIs(t, err, domain.ErrNotInitialized)
	assert.Equal(t, domain.StateUninitialized, state)
}

// gatedCapability holds every rubric generation until release is closed.
type gatedCapability struct {
	*fakeCapability
	started chan struct{}
	release chan struct{}
}

func (g *gatedCapability) GenerateRubric(ctx context.Context, payload *domain.RubricGeneratePayload) (json.RawMessage, error) {
	g.started <- struct{}{}
	<-g.release
	return g.fakeCapability.GenerateRubric(ctx, payload)
}

type panickingCapability struct {
	*fakeCapability
}

func (panickingCapability) GenerateRubric(context.Context, *domain.RubricGeneratePayload) (json.RawMessage, error) {
	panic("provider client bug")
}

func TestShutdownTimeoutStillPersistsQueue(t *testing.T) {
	gated := &gatedCapability{started: make(chan struct{}, 4), release: make(chan struct{})}
	h := newHarness(t, func(deps *Dependencies) {
		gated.fakeCapability = deps.Generator.(*fakeCapability)
		deps.Generator = gated
	})
	ctx := context.Background()
	_, err := h.dispatcher.Initialize(ctx, Options{PollInterval: time.Millisecond})
	require.NoError(t, err)

	inFlight, err := h.dispatcher.SubmitRubricGenerate(ctx, rubricPayload())
	require.NoError(t, err)
	select {
	case <-gated.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first job was never dispatched")
	}
	queued, err := h.dispatcher.SubmitRubricGenerate(ctx, rubricPayload())
	require.NoError(t, err)

	shutdownCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = h.dispatcher.Shutdown(shutdownCtx, true)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	saved, err := h.snapshots.Load(ctx)
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, queued, saved[0].ID)

	_, err = h.dispatcher.SubmitRubricGenerate(ctx, rubricPayload())
	assert.ErrorIs(t, err, domain.ErrShuttingDown)

	close(gated.release)
	result := h.waitFor(t, inFlight)
	assert.Equal(t, domain.JobStatusSucceeded, result.Status, result.Error)
	require.Eventually(t, func() bool {
		return h.dispatcher.State() == domain.StateShutdown
	}, 5*time.Second, time.Millisecond)
	assert.Equal(t, 0, h.dispatcher.QueueDepth())

	_, err = h.dispatcher.Initialize(ctx, Options{PollInterval: time.Millisecond, Reload: true})
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = h.dispatcher.Shutdown(ctx, false) })
	restored := h.waitFor(t, queued)
	assert.Equal(t, domain.JobStatusSucceeded, restored.Status, restored.Error)
}

func TestPanicFailsOnlyThatJob(t *testing.T) {
	t.Run("synchronous", func(t *testing.T) {
		h := newHarness(t, func(deps *Dependencies) {
			deps.Generator = panickingCapability{deps.Generator.(*fakeCapability)}
		})
		ctx := context.Background()
		_, err := h.dispatcher.Initialize(ctx, Options{Synchronous: true})
		require.NoError(t, err)

		id, err := h.dispatcher.SubmitRubricGenerate(ctx, rubricPayload())
		require.ErrorIs(t, err, domain.ErrUnknown)
		result, ok := h.dispatcher.Result(id)
		require.True(t, ok)
		assert.Equal(t, domain.JobStatusFailed, result.Status)
		assert.Equal(t, domain.KindUnknown, result.ErrorKind)
		assert.Contains(t, result.Error, "provider client bug")
	})

	t.Run("background", func(t *testing.T) {
		h := newHarness(t, func(deps *Dependencies) {
			deps.Generator = panickingCapability{deps.Generator.(*fakeCapability)}
		})
		h.writeSource(t, "submission.txt", "Sprint retrospective notes.")
		ctx := context.Background()
		_, err := h.dispatcher.Initialize(ctx, Options{PollInterval: time.Millisecond})
		require.NoError(t, err)
		t.Cleanup(func() { _, _ = h.dispatcher.Shutdown(ctx, false) })

		bad, err := h.dispatcher.SubmitRubricGenerate(ctx, rubricPayload())
		require.NoError(t, err)
		good, err := h.dispatcher.SubmitVivaGenerate(ctx, vivaPayload("submission.txt"))
		require.NoError(t, err)

		badResult := h.waitFor(t, bad)
		assert.Equal(t, domain.JobStatusFailed, badResult.Status)
		assert.Equal(t, domain.KindUnknown, badResult.ErrorKind)

		goodResult := h.waitFor(t, good)
		assert.Equal(t, domain.JobStatusSucceeded, goodResult.Status, goodResult.Error)
	})
}
