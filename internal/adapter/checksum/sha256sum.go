package checksum

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/semmidev/pgsentry/internal/domain"
	"github.com/semmidev/pgsentry/internal/infrastructure/process"
)

const stage = "checksum"

// Sha256sum computes SHA-256 digests with the sha256sum tool.
type Sha256sum struct {
	runner  *process.Runner
	bin     string
	timeout time.Duration
}

func NewSha256sum(runner *process.Runner, bin string, timeout time.Duration) *Sha256sum {
	return &Sha256sum{runner: runner, bin: bin, timeout: timeout}
}

// Checksum returns the lowercase hex digest of path.
func (s *Sha256sum) Checksum(ctx context.Context, path string) (string, error) {
	out, err := s.runner.Run(ctx, process.Command{
		Stage:   stage,
		Path:    s.bin,
		Args:    []string{path},
		Timeout: s.timeout,
	})
	if err != nil {
		return "", err
	}

	digest, err := ParseOutput(string(out))
	if err != nil {
		return "", &domain.StageError{Stage: stage, ExitCode: 0, Output: strings.TrimSpace(string(out)), Err: err}
	}
	return digest, nil
}

// ParseOutput extracts the digest from "<hex>  <path>" output.
func ParseOutput(out string) (string, error) {
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return "", fmt.Errorf("empty checksum output")
	}

	digest := strings.TrimPrefix(strings.ToLower(fields[0]), `\`)
	raw, err := hex.DecodeString(digest)
	if err != nil || len(raw) != 32 {
		return "", fmt.Errorf("malformed sha256 digest %q", fields[0])
	}
	return digest, nil
}
