package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// LocalGateway stores artifacts as files under a root directory. Paths are keys relative to the root.
type LocalGateway struct {
	root    string
	tempDir string
}

func NewLocalGateway(root, tempDir string) (*LocalGateway, error) {
	if root == "" {
		return nil, errors.New("storage root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &LocalGateway{root: root, tempDir: tempDir}, nil
}

func (g *LocalGateway) Get(_ context.Context, artifactPath string) (io.ReadCloser, error) {
	full, err := g.resolve(artifactPath)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrBadPath, artifactPath)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", artifactPath, err)
	}
	return file, nil
}

func (g *LocalGateway) Download(ctx context.Context, artifactPath string) (string, error) {
	source, err := g.Get(ctx, artifactPath)
	if err != nil {
		return "", err
	}
	defer source.Close()

	local := filepath.Join(g.tempDir, uuid.NewString()+filepath.Ext(artifactPath))
	target, err := os.Create(local)
	if err != nil {
		return "", fmt.Errorf("create download target: %w", err)
	}
	if _, err := io.Copy(target, source); err != nil {
		target.Close()
		os.Remove(local)
		return "", fmt.Errorf("copy %s: %w", artifactPath, err)
	}
	if err := target.Close(); err != nil {
		os.Remove(local)
		return "", fmt.Errorf("close download target: %w", err)
	}
	return local, nil
}

func (g *LocalGateway) PutJSON(ctx context.Context, name string, data any, renameOnConflict bool) (string, error) {
	if Extension(name) != "json" {
		return "", fmt.Errorf("%w: %q is not a json file", ErrBadExtension, name)
	}
	key := SecureName(name)
	if key == "" {
		return "", fmt.Errorf("%w: empty file name", ErrBadPath)
	}
	if renameOnConflict {
		unique, err := uniqueName(ctx, key, g.exists)
		if err != nil {
			return "", err
		}
		key = unique
	}

	body, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", key, err)
	}
	if err := os.WriteFile(filepath.Join(g.root, key), body, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", key, err)
	}
	return key, nil
}

func (g *LocalGateway) Delete(_ context.Context, artifactPath string) error {
	full, err := g.resolve(artifactPath)
	if err != nil {
		return err
	}
	err = os.Remove(full)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNoFile, artifactPath)
	}
	if err != nil {
		return fmt.Errorf("remove %s: %w", artifactPath, err)
	}
	return nil
}

func (g *LocalGateway) exists(_ context.Context, name string) (bool, error) {
	matches, err := filepath.Glob(filepath.Join(g.root, globEscape(name)+"*"))
	if err != nil {
		return false, err
	}
	return len(matches) > 0, nil
}

func (g *LocalGateway) resolve(artifactPath string) (string, error) {
	key := filepath.Clean(strings.TrimPrefix(strings.TrimSpace(artifactPath), "/"))
	if key == "." || key == "" || strings.HasPrefix(key, "..") {
		return "", fmt.Errorf("%w: %q", ErrBadPath, artifactPath)
	}
	if err := checkExtension(key); err != nil {
		return "", err
	}
	return filepath.Join(g.root, key), nil
}

func globEscape(name string) string {
	return strings.NewReplacer("*", `\*`, "?", `\?`, "[", `\[`).Replace(name)
}
