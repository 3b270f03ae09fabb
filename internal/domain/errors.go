package domain

import (
	"errors"
	"fmt"
)

// ErrNoRecipients is wrapped by EncryptionError when no age recipients exist.
var ErrNoRecipients = errors.New("no encryption recipients configured")

// ConnectionError means the database server could not be reached or queried.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("database connection: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// StageError is returned when a pipeline stage fails. ExitCode is -1 when the
// stage did not exit on its own (timeout, missing binary, in-process failure).
type StageError struct {
	Stage    string
	ExitCode int
	Output   string
	Err      error
}

func (e *StageError) Error() string {
	msg := fmt.Sprintf("stage %s failed (exit code %d)", e.Stage, e.ExitCode)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Output != "" {
		msg += ", output: " + e.Output
	}
	return msg
}

func (e *StageError) Unwrap() error {
	return e.Err
}

type EncryptionError struct {
	Err error
}

func (e *EncryptionError) Error() string {
	return fmt.Sprintf("encryption: %v", e.Err)
}

func (e *EncryptionError) Unwrap() error {
	return e.Err
}

// IntegrityError means the provider-reported digest of a stored object does
// not match the local checksum. The object stays in storage.
type IntegrityError struct {
	Key      string
	Expected string
	Actual   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("checksum mismatch for %s: local %s, stored %s", e.Key, e.Expected, e.Actual)
}

// UploadError is a transport-level failure talking to storage.
type UploadError struct {
	Key string
	Op  string
	Err error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Key, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}
