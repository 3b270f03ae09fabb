package compressor

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/semmidev/pgsentry/internal/domain"
	"github.com/semmidev/pgsentry/internal/infrastructure/process"
)

const stage = "compress"

// ZstdCLI compresses with the zstd command line tool.
type ZstdCLI struct {
	runner  *process.Runner
	bin     string
	level   int
	timeout time.Duration
}

func NewZstdCLI(runner *process.Runner, bin string, level int, timeout time.Duration) *ZstdCLI {
	return &ZstdCLI{runner: runner, bin: bin, level: level, timeout: timeout}
}

func (z *ZstdCLI) Compress(ctx context.Context, sourcePath, destPath string) error {
	args := []string{"-q", "-f"}
	if z.level > 0 {
		args = append(args, "-"+strconv.Itoa(z.level))
	}
	args = append(args, sourcePath, "-o", destPath)

	_, err := z.runner.Run(ctx, process.Command{
		Stage:   stage,
		Path:    z.bin,
		Args:    args,
		Timeout: z.timeout,
	})
	return err
}

// Zstd compresses in-process. The output is a standard zstd frame, readable
// by the zstd tool.
type Zstd struct {
	level   zstd.EncoderLevel
	timeout time.Duration
}

func NewZstd(level int, timeout time.Duration) *Zstd {
	return &Zstd{level: zstd.EncoderLevelFromZstd(level), timeout: timeout}
}

func (z *Zstd) Compress(ctx context.Context, sourcePath, destPath string) error {
	if z.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, z.timeout)
		defer cancel()
	}

	if err := z.compress(ctx, sourcePath, destPath); err != nil {
		return &domain.StageError{Stage: stage, ExitCode: -1, Err: err}
	}
	return nil
}

func (z *Zstd) compress(ctx context.Context, sourcePath, destPath string) error {
	sourceFile, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer sourceFile.Close()

	destFile, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create dest file: %w", err)
	}
	defer destFile.Close()

	encoder, err := zstd.NewWriter(destFile, zstd.WithEncoderLevel(z.level))
	if err != nil {
		return fmt.Errorf("failed to create zstd encoder: %w", err)
	}

	if _, err := io.Copy(encoder, &contextReader{ctx: ctx, r: sourceFile}); err != nil {
		encoder.Close()
		return fmt.Errorf("failed to compress: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("failed to finish zstd frame: %w", err)
	}

	return destFile.Close()
}

// contextReader stops a copy once ctx is done.
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
