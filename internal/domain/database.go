package domain

import "context"

type Enumerator interface {
	ListTargets(ctx context.Context) ([]BackupTarget, error)
}

type Exporter interface {
	Export(ctx context.Context, database string, outputPath string) error
}
