package dispatch

import (
	"context"
	"fmt"
	"os"

	"github.com/iago/assessment-dispatch/internal/domain"
	"github.com/iago/assessment-dispatch/internal/extract"
	"github.com/iago/assessment-dispatch/internal/policy"
)

// prepare resolves the job's source artifact into masked text. Jobs without
// a source artifact pass through with empty content.
func (d *Dispatcher) prepare(ctx context.Context, job domain.Job) (domain.PreparedJob, error) {
	prepared := domain.PreparedJob{Job: job}

	sourced, ok := job.Payload.(domain.SourcedPayload)
	if !ok {
		return prepared, nil
	}

	content, err := d.readSource(ctx, sourced.SourcePath())
	if err != nil {
		return prepared, domain.NewJobError(domain.KindFileSystem, "prepare input", err)
	}
	prepared.Content = policy.MaskPIIString(content)
	return prepared, nil
}

func (d *Dispatcher) readSource(ctx context.Context, sourcePath string) (string, error) {
	if d.streamInput {
		body, err := d.storage.Get(ctx, sourcePath)
		if err != nil {
			return "", fmt.Errorf("get %s: %w", sourcePath, err)
		}
		defer body.Close()
		return extract.Reader(body, sourcePath)
	}

	local, err := d.storage.Download(ctx, sourcePath)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", sourcePath, err)
	}
	defer func() {
		if err := os.Remove(local); err != nil && !os.IsNotExist(err) {
			d.log.Warnw("remove downloaded artifact", "path", local, "error", err)
		}
	}()
	return extract.File(local)
}
