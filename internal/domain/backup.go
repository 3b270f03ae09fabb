package domain

import (
	"fmt"
	"time"
)

// ObjectSuffix records the transformation chain applied to every uploaded
// artifact: plain SQL dump, zstd, then age.
const ObjectSuffix = ".sql.zst.age"

type BackupTarget struct {
	Name string
}

// BackupRecord describes one uploaded backup. Nothing persists it; the object
// key is the catalog entry.
type BackupRecord struct {
	Database  string
	Timestamp time.Time
	Checksum  string
	Key       string
	Signature string
}

func NewBackupRecord(prefix string, timestamp time.Time, database, checksum string) BackupRecord {
	timestamp = timestamp.UTC()
	return BackupRecord{
		Database:  database,
		Timestamp: timestamp,
		Checksum:  checksum,
		Key:       ObjectKey(prefix, timestamp, database, checksum),
	}
}

// ObjectKey derives the storage key:
// <year>/<month>/<prefix>_<timestamp>_<database>_<checksum>.sql.zst.age
func ObjectKey(prefix string, timestamp time.Time, database, checksum string) string {
	return fmt.Sprintf("%d/%02d/%s_%s_%s_%s%s",
		timestamp.Year(),
		int(timestamp.Month()),
		prefix,
		FormatTimestamp(timestamp),
		database,
		checksum,
		ObjectSuffix,
	)
}

// FormatTimestamp renders an ISO-8601 timestamp without zone designator.
// Fractional seconds appear with microsecond precision only when non-zero.
func FormatTimestamp(t time.Time) string {
	if t.Nanosecond()/int(time.Microsecond) == 0 {
		return t.Format("2006-01-02T15:04:05")
	}
	return t.Format("2006-01-02T15:04:05.000000")
}

// BatchSummary is the outcome of one run over all enumerated databases.
// Err is set when the run failed before any database was attempted.
type BatchSummary struct {
	Started   time.Time
	Duration  time.Duration
	Succeeded []string
	Failed    map[string]error
	Err       error
}

func (s BatchSummary) Total() int {
	return len(s.Succeeded) + len(s.Failed)
}

func (s BatchSummary) OK() bool {
	return s.Err == nil && len(s.Failed) == 0
}
