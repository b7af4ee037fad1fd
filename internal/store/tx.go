package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/cleared-dev/releve/internal/model"
)

const recordColumns = "no, date, description, expense, income, initial_expense, initial_income, " +
	"account, category, reference, organisme, month, insert_date, date_out_of_bound, " +
	"user_label, parent_no, job_key"

// Tx is one store transaction. Everything a reconciliation writes goes
// through a single Tx so that it commits or rolls back as a whole.
type Tx struct {
	tx *sql.Tx
	d  dialect
}

// FutureRecords returns the rows dated within [start, end], optionally for a
// single account, ordered by date then sequence number.
func (t *Tx) FutureRecords(ctx context.Context, start, end time.Time, account string) ([]*model.Transaction, error) {
	q := "SELECT " + recordColumns + " FROM transactions WHERE date >= ? AND date <= ?"
	args := []any{t.d.date(start), t.d.date(end)}
	if account != "" {
		q += " AND account = ?"
		args = append(args, account)
	}
	q += " ORDER BY date, no"

	rows, err := t.tx.QueryContext(ctx, t.d.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("querying future records: %w", err)
	}
	return scanRecords(rows)
}

// CreateJob registers the job that owns the records of this run.
func (t *Tx) CreateJob(ctx context.Context, job model.Job) error {
	_, err := t.tx.ExecContext(ctx,
		t.d.rebind("INSERT INTO jobs (job_key, created_at) VALUES (?, ?)"),
		job.Key, t.d.timestamp(job.CreatedAt))
	if err != nil {
		return fmt.Errorf("creating job %s: %w", job.Key, err)
	}
	return nil
}

// Insert writes new records. Rows without a job are tagged with jobKey. A
// sequence number already in the ledger fails the insert. It returns the
// number of rows written.
func (t *Tx) Insert(ctx context.Context, records []*model.Transaction, jobKey string) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	stmt, err := t.tx.PrepareContext(ctx, t.d.rebind(insertSQL))
	if err != nil {
		return 0, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range records {
		job := r.JobKey
		if job == "" {
			job = jobKey
		}
		if _, err := stmt.ExecContext(ctx, t.recordArgs(r, job)...); err != nil {
			return i, fmt.Errorf("inserting record %d: %w", r.No, err)
		}
	}
	return len(records), nil
}

// Update writes the reconciled fields of existing records. Amounts, account
// and job are left as stored. Every record must already exist.
func (t *Tx) Update(ctx context.Context, records []*model.Transaction) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	stmt, err := t.tx.PrepareContext(ctx, t.d.rebind(updateSQL))
	if err != nil {
		return 0, fmt.Errorf("preparing update: %w", err)
	}
	defer stmt.Close()

	for i, r := range records {
		res, err := stmt.ExecContext(ctx,
			t.d.date(r.Date), r.Description, nullString(r.UserLabel), r.DateOutOfBound, r.ParentNo, r.No)
		if err != nil {
			return i, fmt.Errorf("updating record %d: %w", r.No, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return i, fmt.Errorf("updating record %d: %w", r.No, ErrRecordNotFound)
		}
	}
	return len(records), nil
}

// Commit makes the transaction durable.
func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	return nil
}

// Rollback discards the transaction.
func (t *Tx) Rollback() error {
	if err := t.tx.Rollback(); err != nil {
		return fmt.Errorf("rolling back: %w", err)
	}
	return nil
}

var insertSQL = "INSERT INTO transactions (" + recordColumns + ") VALUES (" +
	strings.TrimSuffix(strings.Repeat("?, ", 17), ", ") + ")"

const updateSQL = `UPDATE transactions SET
		date = ?,
		description = ?,
		user_label = ?,
		date_out_of_bound = ?,
		parent_no = ?
	WHERE no = ?`

func (t *Tx) recordArgs(r *model.Transaction, job string) []any {
	return []any{
		r.No,
		t.d.date(r.Date),
		r.Description,
		r.Expense,
		r.Income,
		r.InitialExpense,
		r.InitialIncome,
		r.Account,
		nullString(r.Category),
		nullString(r.Reference),
		nullString(r.Organisme),
		t.d.date(r.Month),
		t.d.date(r.InsertDate),
		r.DateOutOfBound,
		nullString(r.UserLabel),
		r.ParentNo,
		nullString(job),
	}
}

func scanRecords(rows *sql.Rows) ([]*model.Transaction, error) {
	defer rows.Close()
	var out []*model.Transaction
	for rows.Next() {
		var (
			r                                 model.Transaction
			date, month, insert               nullDate
			category, ref, org, label, jobKey sql.NullString
			parent                            sql.NullInt64
		)
		err := rows.Scan(
			&r.No, &date, &r.Description,
			&r.Expense, &r.Income, &r.InitialExpense, &r.InitialIncome,
			&r.Account, &category, &ref, &org,
			&month, &insert, &r.DateOutOfBound,
			&label, &parent, &jobKey,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		r.Date, r.Month, r.InsertDate = date.Time, month.Time, insert.Time
		r.Category, r.Reference, r.Organisme = category.String, ref.String, org.String
		r.UserLabel, r.JobKey = label.String, jobKey.String
		if parent.Valid {
			p := int(parent.Int64)
			r.ParentNo = &p
		}
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading records: %w", err)
	}
	return out, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
