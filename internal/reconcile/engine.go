// Package reconcile matches freshly imported records against the rows the
// ledger already holds for the import window.
package reconcile

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/cleared-dev/releve/internal/model"
)

// Match records that a candidate corrected an existing future row.
type Match struct {
	Candidate   *model.Transaction
	Future      *model.Transaction
	ByReference bool
}

// Result is the outcome of one reconciliation.
type Result struct {
	// Inserts holds every candidate, numbered, in input order.
	Inserts []*model.Transaction
	// Updates holds matched future rows followed by shifted stragglers.
	Updates []*model.Transaction
	Matches []Match
	// Shifted are stragglers moved past the end of the window.
	Shifted []*model.Transaction
	// Inert are zero-net stragglers left untouched.
	Inert     []*model.Transaction
	NextIndex int
}

// Engine runs the matching algorithm. It holds no state between calls.
type Engine struct {
	log zerolog.Logger
}

// New creates an Engine.
func New(log zerolog.Logger) *Engine {
	return &Engine{log: log}
}

// Reconcile walks candidates in order and matches each one against the
// remaining future rows. Matched future rows are corrected in place. Every
// candidate is numbered from startIndex and inserted, matched or not.
// Unmatched future rows with a non-zero net are moved to the day after
// endDate.
//
// Both slices are mutated. Callers that need to replay a run must pass
// fresh copies.
func (e *Engine) Reconcile(candidates, future []*model.Transaction, startIndex int, endDate time.Time) Result {
	work := newPool(future)
	var res Result
	e.log.Debug().Int("candidates", len(candidates)).Int("future", len(future)).Msg("reconciliation started")

	for i, c := range candidates {
		var (
			f     *model.Transaction
			found bool
		)
		if c.IsCheque() {
			f, found = work.take(sameReference(c))
		} else {
			f, found = work.take(sameAmount(c))
		}

		if found {
			apply(c, f)
			res.Matches = append(res.Matches, Match{Candidate: c, Future: f, ByReference: c.IsCheque()})
			res.Updates = append(res.Updates, f)
			e.log.Debug().
				Int("candidate", i).
				Int("future_no", f.No).
				Bool("cheque", c.IsCheque()).
				Int("remaining", work.len()).
				Msg("future row matched")
		} else {
			e.log.Debug().Int("candidate", i).Str("reference", c.Reference).Msg("no match")
		}

		res.Inserts = append(res.Inserts, c)
	}
	res.NextIndex = Number(res.Inserts, startIndex)

	shiftTo := model.Day(endDate).AddDate(0, 0, 1)
	for _, f := range work.remaining() {
		if f.Net().IsZero() {
			res.Inert = append(res.Inert, f)
			continue
		}
		f.Date = shiftTo
		res.Shifted = append(res.Shifted, f)
		res.Updates = append(res.Updates, f)
	}

	e.log.Info().
		Int("inserts", len(res.Inserts)).
		Int("matches", len(res.Matches)).
		Int("shifted", len(res.Shifted)).
		Int("inert", len(res.Inert)).
		Int("next_index", res.NextIndex).
		Msg("reconciliation done")
	return res
}

func sameReference(c *model.Transaction) func(*model.Transaction) bool {
	return func(f *model.Transaction) bool {
		return f.Reference == c.Reference
	}
}

func sameAmount(c *model.Transaction) func(*model.Transaction) bool {
	net := round(c.Net())
	initial := round(c.InitialNet())
	return func(f *model.Transaction) bool {
		if f.Account != c.Account {
			return false
		}
		fn := round(f.Net())
		return fn.Equal(net) || fn.Equal(initial)
	}
}

func round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// apply copies what the bank reported onto the provisioned row.
func apply(c, f *model.Transaction) {
	f.Date = c.Date
	if f.UserLabel == "" {
		f.UserLabel = f.Description
	}
	f.Description = c.Description
	c.DateOutOfBound = true
}

// Number assigns consecutive sequence numbers from start and points every
// installment of a split at the first one. The first installment stands in
// for the split row, which is never stored, so it has no ParentNo. It
// returns the next free number.
func Number(rows []*model.Transaction, start int) int {
	next := start
	first := make(map[string]int)
	for _, r := range rows {
		r.No = next
		next++
		if r.SplitKey == "" {
			continue
		}
		no, ok := first[r.SplitKey]
		if !ok {
			first[r.SplitKey] = r.No
			continue
		}
		parent := no
		r.ParentNo = &parent
	}
	return next
}
