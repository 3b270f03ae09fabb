package signer

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/semmidev/pgsentry/internal/domain"
	"github.com/semmidev/pgsentry/internal/infrastructure/process"
)

const stage = "sign"

// SSHKeygen writes detached SSH signatures with ssh-keygen -Y sign. Verify
// with: ssh-keygen -Y verify -n <namespace> -f allowed_signers -I <id> -s <sig>.
type SSHKeygen struct {
	runner    *process.Runner
	bin       string
	keyPath   string
	namespace string
	timeout   time.Duration
}

func NewSSHKeygen(runner *process.Runner, bin, keyPath, namespace string, timeout time.Duration) *SSHKeygen {
	return &SSHKeygen{
		runner:    runner,
		bin:       bin,
		keyPath:   keyPath,
		namespace: namespace,
		timeout:   timeout,
	}
}

// Sign returns the armored signature over path. The .sig file ssh-keygen
// leaves next to path is removed.
func (s *SSHKeygen) Sign(ctx context.Context, path string) ([]byte, error) {
	sigPath := path + ".sig"
	defer os.Remove(sigPath)

	if _, err := s.runner.Run(ctx, process.Command{
		Stage:   stage,
		Path:    s.bin,
		Args:    []string{"-Y", "sign", "-f", s.keyPath, "-n", s.namespace, path},
		Timeout: s.timeout,
	}); err != nil {
		return nil, err
	}

	sig, err := os.ReadFile(sigPath)
	if err != nil {
		return nil, &domain.StageError{Stage: stage, ExitCode: 0, Err: fmt.Errorf("read signature: %w", err)}
	}
	return sig, nil
}
