package storage

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	appconfig "github.com/semmidev/pgsentry/internal/config"
	"github.com/semmidev/pgsentry/internal/domain"
)

type GDriveStorage struct {
	service       *drive.Service
	folderID      string
	uploadTimeout time.Duration
	verifyTimeout time.Duration
}

func NewGDrive(ctx context.Context, cfg *appconfig.StorageConfig) (*GDriveStorage, error) {
	data, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read drive credentials: %w", err)
	}

	// Service account only, limited to files this account creates.
	jwtConfig, err := google.JWTConfigFromJSON(data, drive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse drive credentials: %w", err)
	}

	service, err := drive.NewService(ctx, option.WithTokenSource(jwtConfig.TokenSource(ctx)))
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}

	return newGDrive(service, cfg.FolderID, cfg.UploadTimeout, cfg.VerifyTimeout), nil
}

func newGDrive(service *drive.Service, folderID string, uploadTimeout, verifyTimeout time.Duration) *GDriveStorage {
	return &GDriveStorage{
		service:       service,
		folderID:      folderID,
		uploadTimeout: uploadTimeout,
		verifyTimeout: verifyTimeout,
	}
}

// Upload creates a file named after record.Key in the configured folder and
// verifies the SHA-256 Drive computed for it.
func (g *GDriveStorage) Upload(ctx context.Context, localPath string, record domain.BackupRecord) error {
	file, err := os.Open(localPath)
	if err != nil {
		return &domain.UploadError{Key: record.Key, Op: "open", Err: err}
	}
	defer file.Close()

	fileID, err := g.create(ctx, file, record)
	if err != nil {
		return &domain.UploadError{Key: record.Key, Op: "upload", Err: err}
	}

	stored, err := g.storedChecksum(ctx, fileID)
	if err != nil {
		return &domain.UploadError{Key: record.Key, Op: "verify", Err: err}
	}

	if stored == "" || !strings.EqualFold(stored, record.Checksum) {
		return &domain.IntegrityError{Key: record.Key, Expected: record.Checksum, Actual: stored}
	}
	return nil
}

func (g *GDriveStorage) create(ctx context.Context, file *os.File, record domain.BackupRecord) (string, error) {
	ctx, cancel := withTimeout(ctx, g.uploadTimeout)
	defer cancel()

	fileMetadata := &drive.File{
		Name:          record.Key,
		Parents:       []string{g.folderID},
		AppProperties: map[string]string{"database": record.Database},
		Description:   record.Signature,
	}

	created, err := g.service.Files.Create(fileMetadata).
		Media(file).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("failed to upload to gdrive: %w", err)
	}
	return created.Id, nil
}

func (g *GDriveStorage) storedChecksum(ctx context.Context, fileID string) (string, error) {
	ctx, cancel := withTimeout(ctx, g.verifyTimeout)
	defer cancel()

	stored, err := g.service.Files.Get(fileID).
		Fields("id", "sha256Checksum").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("failed to fetch file %s: %w", fileID, err)
	}
	return stored.Sha256Checksum, nil
}
