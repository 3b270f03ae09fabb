package domain

import "context"

// Storage uploads a finished artifact under record.Key and verifies the
// stored bytes against record.Checksum.
type Storage interface {
	Upload(ctx context.Context, localPath string, record BackupRecord) error
}
