package encryptor

import (
	"context"
	"time"

	"github.com/semmidev/pgsentry/internal/domain"
	"github.com/semmidev/pgsentry/internal/infrastructure/process"
)

// Age encrypts artifacts to one or more age recipients with the age tool.
type Age struct {
	runner     *process.Runner
	bin        string
	recipients []string
	timeout    time.Duration
}

func NewAge(runner *process.Runner, bin string, recipients []string, timeout time.Duration) *Age {
	return &Age{
		runner:     runner,
		bin:        bin,
		recipients: append([]string(nil), recipients...),
		timeout:    timeout,
	}
}

func (a *Age) Encrypt(ctx context.Context, sourcePath, destPath string) error {
	if len(a.recipients) == 0 {
		return &domain.EncryptionError{Err: domain.ErrNoRecipients}
	}

	args := []string{"--encrypt", "-o", destPath}
	for _, recipient := range a.recipients {
		args = append(args, "-r", recipient)
	}
	args = append(args, sourcePath)

	_, err := a.runner.Run(ctx, process.Command{
		Stage:   "encrypt",
		Path:    a.bin,
		Args:    args,
		Timeout: a.timeout,
	})
	return err
}
