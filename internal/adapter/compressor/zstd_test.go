package compressor

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/semmidev/pgsentry/internal/domain"
	"github.com/semmidev/pgsentry/internal/infrastructure/process"
)

func TestZstd(t *testing.T) {
	Convey("Given the in-process Zstd compressor", t, func() {
		dir, err := os.MkdirTemp("", "zstd_test")
		So(err, ShouldBeNil)
		defer os.RemoveAll(dir)

		compressor := NewZstd(3, time.Minute)
		input := []byte(strings.Repeat("INSERT INTO t VALUES (1);\n", 500))
		source := filepath.Join(dir, "dump.sql")
		So(os.WriteFile(source, input, 0o600), ShouldBeNil)
		dest := filepath.Join(dir, "dump.sql.zst")

		Convey("When compressing a valid file", func() {
			err := compressor.Compress(context.Background(), source, dest)

			Convey("It should write a decodable, smaller zstd stream", func() {
				So(err, ShouldBeNil)

				compressed, err := os.ReadFile(dest)
				So(err, ShouldBeNil)
				So(len(compressed), ShouldBeLessThan, len(input))

				decoder, err := zstd.NewReader(nil)
				So(err, ShouldBeNil)
				defer decoder.Close()

				decoded, err := decoder.DecodeAll(compressed, nil)
				So(err, ShouldBeNil)
				So(bytes.Equal(decoded, input), ShouldBeTrue)
			})

			Convey("It should leave the input untouched", func() {
				content, err := os.ReadFile(source)
				So(err, ShouldBeNil)
				So(bytes.Equal(content, input), ShouldBeTrue)
			})
		})

		Convey("When the source file does not exist", func() {
			err := compressor.Compress(context.Background(), filepath.Join(dir, "missing.sql"), dest)

			Convey("It should return a compress StageError", func() {
				var stageErr *domain.StageError
				So(errors.As(err, &stageErr), ShouldBeTrue)
				So(stageErr.Stage, ShouldEqual, "compress")
				So(err.Error(), ShouldContainSubstring, "failed to open source file")
			})
		})

		Convey("When the context is already cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			err := compressor.Compress(ctx, source, dest)

			Convey("It should fail", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
			})
		})
	})
}

func TestZstdCLI(t *testing.T) {
	Convey("Given the ZstdCLI compressor with a stand-in binary", t, func() {
		dir, err := os.MkdirTemp("", "zstd_cli_test")
		So(err, ShouldBeNil)
		defer os.RemoveAll(dir)

		argsFile := filepath.Join(dir, "args")
		bin := filepath.Join(dir, "zstd")
		script := "#!/bin/sh\necho \"$@\" > " + argsFile + "\n"
		So(os.WriteFile(bin, []byte(script), 0o755), ShouldBeNil)

		compressor := NewZstdCLI(process.NewRunner(), bin, 19, time.Minute)

		Convey("It should invoke zstd with level, input and output", func() {
			So(compressor.Compress(context.Background(), "/in/dump", "/out/dump.zst"), ShouldBeNil)

			args, err := os.ReadFile(argsFile)
			So(err, ShouldBeNil)
			So(strings.TrimSpace(string(args)), ShouldEqual, "-q -f -19 /in/dump -o /out/dump.zst")
		})

		Convey("A non-zero exit becomes a StageError", func() {
			So(os.WriteFile(bin, []byte("#!/bin/sh\nexit 1\n"), 0o755), ShouldBeNil)

			err := compressor.Compress(context.Background(), "/in/dump", "/out/dump.zst")

			var stageErr *domain.StageError
			So(errors.As(err, &stageErr), ShouldBeTrue)
			So(stageErr.ExitCode, ShouldEqual, 1)
		})
	})
}
