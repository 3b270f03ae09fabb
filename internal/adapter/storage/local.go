package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/semmidev/pgsentry/internal/domain"
)

// MetadataSuffix names the JSON sidecar holding an object's metadata.
const MetadataSuffix = ".metadata.json"

// LocalStorage mirrors the object key layout under a directory, for
// air-gapped hosts or a mounted backup volume.
type LocalStorage struct {
	basePath string
}

func NewLocal(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

func (l *LocalStorage) Upload(ctx context.Context, localPath string, record domain.BackupRecord) error {
	destPath := l.GetPath(record.Key)

	if err := l.copy(ctx, localPath, destPath); err != nil {
		return &domain.UploadError{Key: record.Key, Op: "upload", Err: err}
	}

	if err := writeMetadata(destPath+MetadataSuffix, objectMetadata(record)); err != nil {
		return &domain.UploadError{Key: record.Key, Op: "upload", Err: err}
	}

	stored, err := hashFile(destPath)
	if err != nil {
		return &domain.UploadError{Key: record.Key, Op: "verify", Err: err}
	}
	if !strings.EqualFold(stored, record.Checksum) {
		return &domain.IntegrityError{Key: record.Key, Expected: record.Checksum, Actual: stored}
	}
	return nil
}

// copy writes through a temporary file in the destination directory so a
// partial copy never appears under the final name.
func (l *LocalStorage) copy(ctx context.Context, localPath, destPath string) error {
	source, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer source.Close()

	if err := os.MkdirAll(filepath.Dir(destPath), 0o750); err != nil {
		return fmt.Errorf("failed to create dest directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".upload-")
	if err != nil {
		return fmt.Errorf("failed to create dest: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, &contextReader{ctx: ctx, r: source}); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to copy: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close dest: %w", err)
	}

	if err := os.Rename(tmp.Name(), destPath); err != nil {
		return fmt.Errorf("failed to move dest into place: %w", err)
	}
	return nil
}

func (l *LocalStorage) GetPath(key string) string {
	return filepath.Join(l.basePath, filepath.FromSlash(key))
}

func writeMetadata(path string, metadata map[string]string) error {
	data, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open stored copy: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to read stored copy: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
