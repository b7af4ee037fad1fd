// Package store persists ledger records in a relational database. SQLite
// (modernc.org/sqlite) and PostgreSQL (pgx or lib/pq) are supported through
// database/sql.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx"
	_ "github.com/lib/pq"              // registers "postgres"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // registers "sqlite"

	"github.com/cleared-dev/releve/internal/model"
)

// Supported database/sql driver names.
const (
	DriverSQLite   = "sqlite"
	DriverPgx      = "pgx"
	DriverPostgres = "postgres"
)

// ErrJobNotFound is returned when deleting an unknown job.
var ErrJobNotFound = errors.New("job not found")

// ErrRecordNotFound means an update targeted a sequence number the ledger
// does not hold.
var ErrRecordNotFound = errors.New("record not found")

// Store is a handle on the ledger database. It is opened once per run.
type Store struct {
	db  *sql.DB
	d   dialect
	log zerolog.Logger
}

// Open connects to the database and checks that it answers.
func Open(ctx context.Context, driver, dsn string, log zerolog.Logger) (*Store, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	if d.sqlite {
		dsn = sqlitePragmas(dsn)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", driver, err)
	}
	if d.sqlite {
		// One connection keeps the pragmas and avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging %s database: %w", driver, err)
	}
	log.Debug().Str("driver", driver).Msg("database connection established")
	return &Store{db: db, d: d, log: log}, nil
}

func sqlitePragmas(dsn string) string {
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)"
}

// Close releases the connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Driver returns the database/sql driver name in use.
func (s *Store) Driver() string {
	return s.d.driver
}

// Begin opens the transaction one reconciliation runs in.
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	return &Tx{tx: tx, d: s.d}, nil
}

// MaxSequence returns the highest sequence number in the ledger. ok is
// false when the ledger is empty.
func (s *Store) MaxSequence(ctx context.Context) (no int, ok bool, err error) {
	var n sql.NullInt64
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(no) FROM transactions").Scan(&n); err != nil {
		return 0, false, fmt.Errorf("reading max sequence: %w", err)
	}
	return int(n.Int64), n.Valid, nil
}

// LastInsertDate returns the latest insert date, for one account or for the
// whole ledger when account is empty.
func (s *Store) LastInsertDate(ctx context.Context, account string) (time.Time, bool, error) {
	q := "SELECT MAX(insert_date) FROM transactions"
	var args []any
	if account != "" {
		q += " WHERE account = ?"
		args = append(args, account)
	}
	var d nullDate
	if err := s.db.QueryRowContext(ctx, s.d.rebind(q), args...).Scan(&d); err != nil {
		return time.Time{}, false, fmt.Errorf("reading last insert date: %w", err)
	}
	return d.Time, d.Valid, nil
}

// AccountUpdate is the last insert date of one account.
type AccountUpdate struct {
	Account    string
	LastInsert time.Time
}

// LastUpdatesByAccount lists every account with its latest insert date.
func (s *Store) LastUpdatesByAccount(ctx context.Context) ([]AccountUpdate, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT account, MAX(insert_date) FROM transactions GROUP BY account ORDER BY account")
	if err != nil {
		return nil, fmt.Errorf("querying last updates: %w", err)
	}
	defer rows.Close()

	var out []AccountUpdate
	for rows.Next() {
		var (
			u AccountUpdate
			d nullDate
		)
		if err := rows.Scan(&u.Account, &d); err != nil {
			return nil, fmt.Errorf("scanning last update: %w", err)
		}
		u.LastInsert = d.Time
		out = append(out, u)
	}
	return out, rows.Err()
}

// MappingKind selects one of the keyword mapping tables.
type MappingKind string

const (
	Categories MappingKind = "categories"
	Organismes MappingKind = "organismes"
)

// ParseMappingKind validates a mapping kind name.
func ParseMappingKind(s string) (MappingKind, error) {
	k := MappingKind(s)
	if _, _, err := k.table(); err != nil {
		return "", err
	}
	return k, nil
}

func (k MappingKind) table() (name, target string, err error) {
	switch k {
	case Categories:
		return "map_categories", "category", nil
	case Organismes:
		return "map_organismes", "organisme", nil
	}
	return "", "", fmt.Errorf("unknown mapping kind %q", k)
}

// Mappings returns the mappings of kind in stored order.
func (s *Store) Mappings(ctx context.Context, kind MappingKind) ([]model.Mapping, error) {
	table, target, err := kind.table()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT keyword, %s FROM %s ORDER BY position", target, table))
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", kind, err)
	}
	defer rows.Close()

	var out []model.Mapping
	for rows.Next() {
		var m model.Mapping
		if err := rows.Scan(&m.Keyword, &m.Target); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", kind, err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ReplaceMappings overwrites the mappings of kind, keeping the given order.
func (s *Store) ReplaceMappings(ctx context.Context, kind MappingKind, mappings []model.Mapping) error {
	table, target, err := kind.table()
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
		return fmt.Errorf("clearing %s: %w", kind, err)
	}
	ins := s.d.rebind(fmt.Sprintf("INSERT INTO %s (position, keyword, %s) VALUES (?, ?, ?)", table, target))
	for i, m := range mappings {
		if _, err := tx.ExecContext(ctx, ins, i+1, m.Keyword, m.Target); err != nil {
			return fmt.Errorf("inserting %s %q: %w", kind, m.Keyword, err)
		}
	}
	return tx.Commit()
}

// JobSummary is a job with the number of records it owns.
type JobSummary struct {
	model.Job
	Records int
}

// Jobs lists import jobs, oldest first.
func (s *Store) Jobs(ctx context.Context) ([]JobSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT j.job_key, j.created_at, COUNT(t.no)
		FROM jobs j LEFT JOIN transactions t ON t.job_key = j.job_key
		GROUP BY j.job_key, j.created_at
		ORDER BY j.created_at, j.job_key`)
	if err != nil {
		return nil, fmt.Errorf("querying jobs: %w", err)
	}
	defer rows.Close()

	var out []JobSummary
	for rows.Next() {
		var (
			j  JobSummary
			ts timestamp
		)
		if err := rows.Scan(&j.Key, &ts, &j.Records); err != nil {
			return nil, fmt.Errorf("scanning job: %w", err)
		}
		j.CreatedAt = ts.Time
		out = append(out, j)
	}
	return out, rows.Err()
}

// DeleteJob removes a job. Its records go with it through the foreign key
// cascade. It returns the number of records removed.
func (s *Store) DeleteJob(ctx context.Context, key string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var n int
	if err := tx.QueryRowContext(ctx,
		s.d.rebind("SELECT COUNT(*) FROM transactions WHERE job_key = ?"), key).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting job records: %w", err)
	}
	res, err := tx.ExecContext(ctx, s.d.rebind("DELETE FROM jobs WHERE job_key = ?"), key)
	if err != nil {
		return 0, fmt.Errorf("deleting job %s: %w", key, err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return 0, fmt.Errorf("deleting job %s: %w", key, ErrJobNotFound)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing job deletion: %w", err)
	}
	s.log.Info().Str("job", key).Int("records", n).Msg("job deleted")
	return n, nil
}

// Records returns the whole ledger ordered by sequence number.
func (s *Store) Records(ctx context.Context) ([]*model.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+recordColumns+" FROM transactions ORDER BY no")
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	return scanRecords(rows)
}
