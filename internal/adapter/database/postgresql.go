package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/semmidev/pgsentry/internal/domain"
	"github.com/semmidev/pgsentry/internal/infrastructure/process"
)

const listDatabasesQuery = "SELECT datname FROM pg_database WHERE datistemplate = false;"

// Open returns a pgx-backed handle for the administrative connection. No
// connection is made until the first query.
func Open(serverURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", serverURL)
	if err != nil {
		return nil, &domain.ConnectionError{Err: err}
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxIdleTime(time.Minute)
	return db, nil
}

// Enumerator lists backup targets from the server catalog.
type Enumerator struct {
	db      *sql.DB
	skip    map[string]struct{}
	timeout time.Duration
}

func NewEnumerator(db *sql.DB, skipDatabases []string, timeout time.Duration) *Enumerator {
	skip := make(map[string]struct{}, len(skipDatabases))
	for _, name := range skipDatabases {
		skip[name] = struct{}{}
	}
	return &Enumerator{db: db, skip: skip, timeout: timeout}
}

// ListTargets returns every non-template database not in the exclusion set,
// in catalog order. The whole result is read before returning so the
// connection is not held while backups run.
func (e *Enumerator) ListTargets(ctx context.Context) ([]domain.BackupTarget, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	rows, err := e.db.QueryContext(ctx, listDatabasesQuery)
	if err != nil {
		return nil, &domain.ConnectionError{Err: fmt.Errorf("list databases: %w", err)}
	}
	defer rows.Close()

	var targets []domain.BackupTarget
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, &domain.ConnectionError{Err: fmt.Errorf("scan database name: %w", err)}
		}
		if _, skipped := e.skip[name]; skipped {
			continue
		}
		targets = append(targets, domain.BackupTarget{Name: name})
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.ConnectionError{Err: fmt.Errorf("list databases: %w", err)}
	}

	return targets, nil
}

// Exporter dumps one database with pg_dump in plain SQL format.
type Exporter struct {
	runner    *process.Runner
	bin       string
	serverURL string
	timeout   time.Duration
}

func NewExporter(runner *process.Runner, bin, serverURL string, timeout time.Duration) *Exporter {
	return &Exporter{
		runner:    runner,
		bin:       bin,
		serverURL: serverURL,
		timeout:   timeout,
	}
}

func (e *Exporter) Export(ctx context.Context, database string, outputPath string) error {
	conn, password, err := ConnectionString(e.serverURL, database)
	if err != nil {
		return &domain.StageError{Stage: "export", ExitCode: -1, Err: err}
	}

	var env []string
	if password != "" {
		env = append(env, "PGPASSWORD="+password)
	}

	_, err = e.runner.Run(ctx, process.Command{
		Stage:   "export",
		Path:    e.bin,
		Args:    []string{"-d", conn, "-f", outputPath},
		Env:     env,
		Timeout: e.timeout,
	})
	return err
}

// ConnectionString points serverURL at database. For URLs the password is
// removed and returned separately so it never appears in a process listing.
// Keyword/value strings get a trailing dbname, which libpq lets override
// earlier settings.
func ConnectionString(serverURL, database string) (conn string, password string, err error) {
	if !strings.Contains(serverURL, "://") {
		return strings.TrimSpace(serverURL) + " dbname=" + quoteKeyword(database), "", nil
	}

	u, err := url.Parse(serverURL)
	if err != nil {
		return "", "", fmt.Errorf("parse connection url: %w", err)
	}

	if u.User != nil {
		if p, ok := u.User.Password(); ok {
			password = p
			u.User = url.User(u.User.Username())
		}
	}
	u.Path = "/" + database
	u.RawPath = ""

	return u.String(), password, nil
}

func quoteKeyword(value string) string {
	if value != "" && !strings.ContainsAny(value, ` '\`) {
		return value
	}
	value = strings.ReplaceAll(value, `\`, `\\`)
	value = strings.ReplaceAll(value, `'`, `\'`)
	return "'" + value + "'"
}
