package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/semmidev/pgsentry/internal/domain"
	"github.com/semmidev/pgsentry/internal/infrastructure/workspace"
)

// artifactSize renders the size of an artifact for logs.
func artifactSize(a *workspace.Artifact) string {
	size, err := a.Size()
	if err != nil {
		return "unknown"
	}
	return fmt.Sprintf("%.2f MB", float64(size)/(1024*1024))
}

// failedStage names the pipeline step an error came from, for metrics.
func failedStage(err error) string {
	var (
		stageErr      *domain.StageError
		encryptionErr *domain.EncryptionError
		integrityErr  *domain.IntegrityError
		uploadErr     *domain.UploadError
		connErr       *domain.ConnectionError
	)

	switch {
	case errors.As(err, &stageErr):
		return stageErr.Stage
	case errors.As(err, &encryptionErr):
		return "encrypt"
	case errors.As(err, &integrityErr):
		return "verify"
	case errors.As(err, &uploadErr):
		return uploadErr.Op
	case errors.As(err, &connErr):
		return "connect"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "other"
	}
}
