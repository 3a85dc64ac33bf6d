package queue

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/iago/assessment-dispatch/internal/domain"
)

const DefaultQueueFile = ".queue"

// FileSnapshotStore keeps the queue snapshot in a single JSON file.
type FileSnapshotStore struct {
	path string
}

func NewFileSnapshotStore(path string) *FileSnapshotStore {
	if path == "" {
		path = DefaultQueueFile
	}
	return &FileSnapshotStore{path: path}
}

func (s *FileSnapshotStore) Path() string {
	return s.path
}

// Save writes to a temporary sibling and renames it over the target.
func (s *FileSnapshotStore) Save(_ context.Context, jobs []domain.Job) error {
	encoded, err := EncodeSnapshot(jobs)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create queue snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(encoded); err != nil {
		tmp.Close()
		return fmt.Errorf("write queue snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close queue snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace queue snapshot: %w", err)
	}
	return nil
}

func (s *FileSnapshotStore) Load(_ context.Context) ([]domain.Job, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []domain.Job{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read queue snapshot: %w", err)
	}
	if len(data) == 0 {
		return []domain.Job{}, nil
	}
	return DecodeSnapshot(data)
}
