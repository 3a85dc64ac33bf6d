package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
)

var (
	ErrBadPath      = errors.New("path does not lead to a file")
	ErrBadExtension = errors.New("file has a disallowed extension")
	ErrNoFile       = errors.New("no such file")
)

var allowedExtensions = map[string]struct{}{
	"csv":  {},
	"pdf":  {},
	"md":   {},
	"json": {},
	"txt":  {},
}

// Gateway is the blob store consumed by the dispatcher.
type Gateway interface {
	// Get opens the artifact at path for streaming.
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	// Download copies the artifact to a local temporary file; the caller removes it.
	Download(ctx context.Context, path string) (string, error)
	// PutJSON stores data encoded as JSON under name and returns the stored path.
	// With renameOnConflict an existing name gets a numeric suffix instead of being overwritten.
	PutJSON(ctx context.Context, name string, data any, renameOnConflict bool) (string, error)
	Delete(ctx context.Context, path string) error
}

// Extension returns the lower-cased extension of name without the dot.
func Extension(name string) string {
	ext := path.Ext(name)
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

func checkExtension(name string) error {
	if _, ok := allowedExtensions[Extension(name)]; !ok {
		return fmt.Errorf("%w: %q", ErrBadExtension, name)
	}
	return nil
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// SecureName flattens name into a single safe object key: separators and
// whitespace become underscores, other unsafe characters are dropped.
func SecureName(name string) string {
	name = strings.NewReplacer("/", " ", "\\", " ").Replace(name)
	name = strings.Join(strings.Fields(name), "_")
	name = unsafeNameChars.ReplaceAllString(name, "")
	return strings.Trim(name, "._")
}

// uniqueName returns name, or name with _1, _2, ... inserted before the
// extension, whichever is the first that exists reports as free.
func uniqueName(ctx context.Context, name string, exists func(context.Context, string) (bool, error)) (string, error) {
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	candidate := name
	for i := 1; ; i++ {
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check for duplicates of %q: %w", name, err)
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s_%d%s", stem, i, ext)
	}
}
