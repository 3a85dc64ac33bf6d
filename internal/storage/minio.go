package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// TempDir receives downloaded artifacts; empty means os.TempDir().
	TempDir string
}

// MinioGateway stores artifacts in an S3-compatible bucket. Paths are s3://bucket/key URIs.
type MinioGateway struct {
	client  *minio.Client
	bucket  string
	tempDir string
	log     *zap.SugaredLogger
}

func NewMinioGateway(cfg MinioConfig, logger *zap.SugaredLogger) (*MinioGateway, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("storage endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	tempDir := cfg.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &MinioGateway{
		client:  client,
		bucket:  cfg.Bucket,
		tempDir: tempDir,
		log:     logger.Named("storage"),
	}, nil
}

func (g *MinioGateway) Get(ctx context.Context, artifactPath string) (io.ReadCloser, error) {
	key, err := g.objectKey(artifactPath)
	if err != nil {
		return nil, err
	}

	object, err := g.client.GetObject(ctx, g.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, g.translate(err, key)
	}
	// GetObject is lazy; Stat surfaces a missing key before the caller reads.
	if _, err := object.Stat(); err != nil {
		object.Close()
		return nil, g.translate(err, key)
	}
	return object, nil
}

func (g *MinioGateway) Download(ctx context.Context, artifactPath string) (string, error) {
	key, err := g.objectKey(artifactPath)
	if err != nil {
		return "", err
	}

	local := filepath.Join(g.tempDir, uuid.NewString()+path.Ext(key))
	if err := g.client.FGetObject(ctx, g.bucket, key, local, minio.GetObjectOptions{}); err != nil {
		os.Remove(local)
		return "", g.translate(err, key)
	}
	g.log.Debugw("downloaded artifact", "key", key, "local_path", local)
	return local, nil
}

func (g *MinioGateway) PutJSON(ctx context.Context, name string, data any, renameOnConflict bool) (string, error) {
	if Extension(name) != "json" {
		return "", fmt.Errorf("%w: %q is not a json file", ErrBadExtension, name)
	}
	key := SecureName(name)
	if key == "" {
		return "", fmt.Errorf("%w: empty object name", ErrBadPath)
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

	_, err = g.client.PutObject(ctx, g.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return g.uri(key), nil
}

func (g *MinioGateway) Delete(ctx context.Context, artifactPath string) error {
	key, err := g.objectKey(artifactPath)
	if err != nil {
		return err
	}
	if _, err := g.client.StatObject(ctx, g.bucket, key, minio.StatObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return fmt.Errorf("%w: %s", ErrNoFile, key)
		}
		return fmt.Errorf("stat object %s: %w", key, err)
	}
	if err := g.client.RemoveObject(ctx, g.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s: %w", key, err)
	}
	return nil
}

// exists reports whether any object key starts with name.
func (g *MinioGateway) exists(ctx context.Context, name string) (bool, error) {
	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for object := range g.client.ListObjects(listCtx, g.bucket, minio.ListObjectsOptions{Prefix: name, MaxKeys: 1}) {
		if object.Err != nil {
			return false, object.Err
		}
		return true, nil
	}
	return false, nil
}

func (g *MinioGateway) objectKey(artifactPath string) (string, error) {
	key, err := ParseS3Path(artifactPath, g.bucket)
	if err != nil {
		return "", err
	}
	if err := checkExtension(key); err != nil {
		return "", err
	}
	return key, nil
}

func (g *MinioGateway) uri(key string) string {
	return fmt.Sprintf("s3://%s/%s", g.bucket, key)
}

func (g *MinioGateway) translate(err error, key string) error {
	if isNoSuchKey(err) {
		return fmt.Errorf("%w: %s", ErrBadPath, key)
	}
	return fmt.Errorf("get object %s: %w", key, err)
}

func isNoSuchKey(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

// ParseS3Path returns the object key of an s3://bucket/key URI, or of a bare key.
// A URI naming a different bucket is rejected.
func ParseS3Path(artifactPath, bucket string) (string, error) {
	trimmed := strings.TrimSpace(artifactPath)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty path", ErrBadPath)
	}
	if !strings.Contains(trimmed, "://") {
		return strings.TrimPrefix(trimmed, "/"), nil
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadPath, err)
	}
	if parsed.Scheme != "s3" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrBadPath, parsed.Scheme)
	}
	if bucket != "" && parsed.Host != bucket {
		return "", fmt.Errorf("%w: bucket %q is not %q", ErrBadPath, parsed.Host, bucket)
	}
	key := strings.TrimPrefix(parsed.Path, "/")
	if key == "" {
		return "", fmt.Errorf("%w: missing object key", ErrBadPath)
	}
	return key, nil
}
