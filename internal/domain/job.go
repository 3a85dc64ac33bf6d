package domain

import (
	"encoding/json"
	"fmt"
)

// JobID is allocated from a process-wide counter and never reused.
type JobID int64

type JobType string

const (
	JobTypeVivaGenerate   JobType = "viva_generate"
	JobTypeVivaRegenerate JobType = "viva_regenerate"
	JobTypeRubricGenerate JobType = "rubric_generate"
	JobTypeRubricConvert  JobType = "rubric_convert"
)

func (t JobType) Valid() bool {
	switch t {
	case JobTypeVivaGenerate, JobTypeVivaRegenerate, JobTypeRubricGenerate, JobTypeRubricConvert:
		return true
	}
	return false
}

// Payload is the typed body of a job. Each job type has exactly one payload variant.
type Payload interface {
	JobType() JobType
	Validate() error
}

// SourcedPayload is implemented by payloads that reference a stored artifact
// which has to be fetched and extracted before generation.
type SourcedPayload interface {
	Payload
	SourcePath() string
}

// Job is one unit of generation work.
type Job struct {
	ID      JobID
	Payload Payload
}

func (j Job) Type() JobType {
	if j.Payload == nil {
		return ""
	}
	return j.Payload.JobType()
}

// PreparedJob is a job whose source artifact (if any) has been resolved into text.
type PreparedJob struct {
	Job
	Content string
}

// MarshalJSON encodes the job as a (id, type, payload) tuple.
func (j Job) MarshalJSON() ([]byte, error) {
	if j.Payload == nil {
		return nil, fmt.Errorf("job %d has no payload", j.ID)
	}
	return json.Marshal([]any{j.ID, j.Type(), j.Payload})
}

func (j *Job) UnmarshalJSON(data []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return fmt.Errorf("decode job tuple: %w", err)
	}
	if len(tuple) != 3 {
		return fmt.Errorf("job tuple has %d elements, want 3", len(tuple))
	}

	var id JobID
	if err := json.Unmarshal(tuple[0], &id); err != nil {
		return fmt.Errorf("decode job id: %w", err)
	}
	var jobType JobType
	if err := json.Unmarshal(tuple[1], &jobType); err != nil {
		return fmt.Errorf("decode job type: %w", err)
	}
	payload, err := DecodePayload(jobType, tuple[2])
	if err != nil {
		return fmt.Errorf("job %d: %w", id, err)
	}

	j.ID = id
	j.Payload = payload
	return nil
}

// DecodePayload selects the payload variant for jobType and decodes raw into it.
func DecodePayload(jobType JobType, raw json.RawMessage) (Payload, error) {
	var payload Payload
	switch jobType {
	case JobTypeVivaGenerate:
		payload = &VivaGeneratePayload{}
	case JobTypeVivaRegenerate:
		payload = &VivaRegeneratePayload{}
	case JobTypeRubricGenerate:
		payload = &RubricGeneratePayload{}
	case JobTypeRubricConvert:
		payload = &RubricConvertPayload{}
	default:
		return nil, fmt.Errorf("unknown job type %q", jobType)
	}
	if err := json.Unmarshal(raw, payload); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", jobType, err)
	}
	return payload, nil
}
