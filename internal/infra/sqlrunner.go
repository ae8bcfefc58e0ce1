package infra

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

// SQLExecutor is the subset of pgx used by the credential store.
type SQLExecutor interface {
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, query string, args ...any) pgx.Row
}

var markerPattern = regexp.MustCompile(`^--sql ([0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})$`)

// SQLRunner executes marker-tagged statements (see package sqlinline) and
// logs each one by its marker instead of its text.
type SQLRunner struct {
	db  SQLExecutor
	log zerolog.Logger
}

// NewSQLRunner wraps db, usually a *pgxpool.Pool.
func NewSQLRunner(db SQLExecutor, logger zerolog.Logger) *SQLRunner {
	return &SQLRunner{db: db, log: logger.With().Str("component", "sql").Logger()}
}

func (r *SQLRunner) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	marker, stmt, err := splitMarker(query)
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	start := time.Now()
	tag, err := r.db.Exec(ctx, stmt, args...)
	r.done(marker, "exec", start, err)
	return tag, err
}

func (r *SQLRunner) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	marker, stmt, err := splitMarker(query)
	if err != nil {
		return errRow{err: err}
	}
	return &loggedRow{
		row:    r.db.QueryRow(ctx, stmt, args...),
		runner: r,
		marker: marker,
		start:  time.Now(),
	}
}

func (r *SQLRunner) done(marker, op string, start time.Time, err error) {
	ev := r.log.Debug()
	if err != nil && !IsNoRows(err) {
		ev = r.log.Error().Err(err)
	}
	ev.Str("marker", marker).Str("op", op).Dur("took", time.Since(start)).Msg("sql statement")
}

type loggedRow struct {
	row    pgx.Row
	runner *SQLRunner
	marker string
	start  time.Time
}

func (l *loggedRow) Scan(dest ...any) error {
	err := l.row.Scan(dest...)
	l.runner.done(l.marker, "query_row", l.start, err)
	return err
}

type errRow struct{ err error }

func (e errRow) Scan(...any) error { return e.err }

// splitMarker returns the marker uuid and the statement without it.
func splitMarker(query string) (string, string, error) {
	head, body, _ := strings.Cut(strings.TrimSpace(query), "\n")
	m := markerPattern.FindStringSubmatch(strings.TrimSpace(head))
	if m == nil {
		return "", "", errors.New("sql marker missing or invalid")
	}
	if strings.TrimSpace(body) == "" {
		return "", "", errors.New("empty statement")
	}
	return m[1], body, nil
}

var _ SQLExecutor = (*SQLRunner)(nil)
