package usecase

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/semmidev/pgsentry/internal/domain"
	"github.com/semmidev/pgsentry/internal/infrastructure/workspace"
)

// Stages are the executors a backup runs in order. Signer is optional.
type Stages struct {
	Exporter    domain.Exporter
	Compressor  domain.Compressor
	Encryptor   domain.Encryptor
	Checksummer domain.Checksummer
	Signer      domain.Signer
}

type Backup struct {
	stages  Stages
	storage domain.Storage
	logger  Logger
	workDir string
	prefix  string
	now     func() time.Time
}

type Logger interface {
	Infof(template string, args ...interface{})
	Errorf(template string, args ...interface{})
	Warnf(template string, args ...interface{})
}

func NewBackup(
	stages Stages,
	storage domain.Storage,
	logger Logger,
	workDir string,
	prefix string,
) *Backup {
	return &Backup{
		stages:  stages,
		storage: storage,
		logger:  logger,
		workDir: workDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

// Execute backs up one database: export, compress, encrypt, checksum,
// optionally sign, then upload with verification. Each intermediate file is
// deleted as soon as the next stage has consumed it, and the scratch
// directory is removed on every return path.
func (uc *Backup) Execute(ctx context.Context, target domain.BackupTarget) error {
	start := time.Now()
	name := target.Name
	uc.logger.Infof("[%s] Starting backup...", name)

	ws, err := workspace.Open(uc.workDir)
	if err != nil {
		return fmt.Errorf("workspace: %w", err)
	}
	defer func() {
		if cerr := ws.Close(); cerr != nil {
			uc.logger.Warnf("[%s] Failed to clean scratch directory: %v", name, cerr)
		}
	}()

	dump := ws.Allocate("dump")
	if err := uc.stages.Exporter.Export(ctx, name, dump.Path); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	uc.logger.Infof("[%s] Dump created, size: %s", name, artifactSize(dump))

	compressed := ws.Allocate("compressed")
	if err := uc.stages.Compressor.Compress(ctx, dump.Path, compressed.Path); err != nil {
		return fmt.Errorf("compression: %w", err)
	}
	uc.release(name, dump)
	uc.logger.Infof("[%s] Compression complete, size: %s", name, artifactSize(compressed))

	encrypted := ws.Allocate("encrypted")
	if err := uc.stages.Encryptor.Encrypt(ctx, compressed.Path, encrypted.Path); err != nil {
		return fmt.Errorf("encryption: %w", err)
	}
	uc.release(name, compressed)

	checksum, err := uc.stages.Checksummer.Checksum(ctx, encrypted.Path)
	if err != nil {
		return fmt.Errorf("checksum: %w", err)
	}

	record := domain.NewBackupRecord(uc.prefix, uc.now(), name, checksum)

	if uc.stages.Signer != nil {
		signature, err := uc.stages.Signer.Sign(ctx, encrypted.Path)
		if err != nil {
			return fmt.Errorf("signing: %w", err)
		}
		record.Signature = base64.StdEncoding.EncodeToString(signature)
	}

	uc.logger.Infof("[%s] Uploading %s...", name, record.Key)
	if err := uc.storage.Upload(ctx, encrypted.Path, record); err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	uc.release(name, encrypted)

	uc.logger.Infof("[%s] Backup completed in %s: %s (sha256 %s)",
		name, time.Since(start).Round(time.Second), record.Key, record.Checksum)

	return nil
}

func (uc *Backup) release(name string, artifact *workspace.Artifact) {
	if err := artifact.Release(); err != nil {
		uc.logger.Warnf("[%s] Failed to remove %s: %v", name, artifact.Path, err)
	}
}
