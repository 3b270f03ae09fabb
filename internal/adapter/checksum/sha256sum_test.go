package checksum

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/semmidev/pgsentry/internal/domain"
	"github.com/semmidev/pgsentry/internal/infrastructure/process"
)

const emptyDigest = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

func TestParseOutput(t *testing.T) {
	Convey("Given sha256sum output", t, func() {
		Convey("It should return the first field", func() {
			digest, err := ParseOutput(emptyDigest + "  /tmp/encrypted-1234\n")
			So(err, ShouldBeNil)
			So(digest, ShouldEqual, emptyDigest)
		})

		Convey("It should lowercase upper-case digests", func() {
			digest, err := ParseOutput(strings.ToUpper(emptyDigest) + " *file")
			So(err, ShouldBeNil)
			So(digest, ShouldEqual, emptyDigest)
		})

		Convey("It should strip the escape marker for odd file names", func() {
			digest, err := ParseOutput(`\` + emptyDigest + `  /tmp/a\nb`)
			So(err, ShouldBeNil)
			So(digest, ShouldEqual, emptyDigest)
		})

		Convey("It should reject empty output", func() {
			_, err := ParseOutput("  \n")
			So(err, ShouldNotBeNil)
		})

		Convey("It should reject digests of the wrong length", func() {
			_, err := ParseOutput("abc123  file")
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "malformed sha256 digest")
		})
	})
}

func TestSha256sum(t *testing.T) {
	Convey("Given a Sha256sum stage with a stand-in binary", t, func() {
		dir, err := os.MkdirTemp("", "sha256sum_test")
		So(err, ShouldBeNil)
		defer os.RemoveAll(dir)

		bin := filepath.Join(dir, "sha256sum")

		Convey("When the tool prints a digest", func() {
			So(os.WriteFile(bin, []byte("#!/bin/sh\necho \""+emptyDigest+"  $1\"\n"), 0o755), ShouldBeNil)
			digest, err := NewSha256sum(process.NewRunner(), bin, time.Minute).Checksum(context.Background(), "/tmp/x")

			Convey("It should return it", func() {
				So(err, ShouldBeNil)
				So(digest, ShouldEqual, emptyDigest)
			})
		})

		Convey("When the tool prints garbage", func() {
			So(os.WriteFile(bin, []byte("#!/bin/sh\necho nope\n"), 0o755), ShouldBeNil)
			_, err := NewSha256sum(process.NewRunner(), bin, time.Minute).Checksum(context.Background(), "/tmp/x")

			Convey("It should return a checksum StageError", func() {
				var stageErr *domain.StageError
				So(errors.As(err, &stageErr), ShouldBeTrue)
				So(stageErr.Stage, ShouldEqual, "checksum")
			})
		})

		Convey("When the file cannot be read", func() {
			So(os.WriteFile(bin, []byte("#!/bin/sh\necho \"sha256sum: $1: No such file\" >&2\nexit 1\n"), 0o755), ShouldBeNil)
			_, err := NewSha256sum(process.NewRunner(), bin, time.Minute).Checksum(context.Background(), "/tmp/x")

			Convey("It should report the exit code", func() {
				var stageErr *domain.StageError
				So(errors.As(err, &stageErr), ShouldBeTrue)
				So(stageErr.ExitCode, ShouldEqual, 1)
			})
		})
	})
}
