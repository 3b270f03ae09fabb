package encryptor

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

func TestAge(t *testing.T) {
	Convey("Given an Age encryptor with a stand-in binary", t, func() {
		dir, err := os.MkdirTemp("", "age_test")
		So(err, ShouldBeNil)
		defer os.RemoveAll(dir)

		argsFile := filepath.Join(dir, "args")
		bin := filepath.Join(dir, "age")
		So(os.WriteFile(bin, []byte("#!/bin/sh\necho \"$@\" > "+argsFile+"\n"), 0o755), ShouldBeNil)

		Convey("When recipients are configured", func() {
			encryptor := NewAge(process.NewRunner(), bin, []string{"age1alice", "age1bob"}, time.Minute)
			err := encryptor.Encrypt(context.Background(), "/in/dump.zst", "/out/dump.age")

			Convey("It should address every recipient", func() {
				So(err, ShouldBeNil)
				args, err := os.ReadFile(argsFile)
				So(err, ShouldBeNil)
				So(strings.TrimSpace(string(args)), ShouldEqual,
					"--encrypt -o /out/dump.age -r age1alice -r age1bob /in/dump.zst")
			})
		})

		Convey("When no recipients are configured", func() {
			encryptor := NewAge(process.NewRunner(), bin, nil, time.Minute)
			err := encryptor.Encrypt(context.Background(), "/in/dump.zst", "/out/dump.age")

			Convey("It should fail with an EncryptionError without running age", func() {
				var encErr *domain.EncryptionError
				So(errors.As(err, &encErr), ShouldBeTrue)
				So(errors.Is(err, domain.ErrNoRecipients), ShouldBeTrue)
				_, statErr := os.Stat(argsFile)
				So(os.IsNotExist(statErr), ShouldBeTrue)
			})
		})

		Convey("When age exits non-zero", func() {
			So(os.WriteFile(bin, []byte("#!/bin/sh\necho 'malformed recipient' >&2\nexit 1\n"), 0o755), ShouldBeNil)
			encryptor := NewAge(process.NewRunner(), bin, []string{"bogus"}, time.Minute)
			err := encryptor.Encrypt(context.Background(), "/in", "/out")

			Convey("It should return an encrypt StageError", func() {
				var stageErr *domain.StageError
				So(errors.As(err, &stageErr), ShouldBeTrue)
				So(stageErr.Stage, ShouldEqual, "encrypt")
				So(stageErr.Output, ShouldEqual, "malformed recipient")
			})
		})
	})
}
