// Package commit runs a reconciliation inside one store transaction and
// either commits it or, in simulation, rolls it back.
package commit

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/cleared-dev/releve/internal/model"
	"github.com/cleared-dev/releve/internal/reconcile"
	"github.com/cleared-dev/releve/internal/store"
)

// Store opens the transaction a run writes through.
type Store interface {
	Begin(ctx context.Context) (*store.Tx, error)
}

// Request describes one commit.
type Request struct {
	Candidates []*model.Transaction
	StartIndex int
	// Window bounds the future rows fetched for matching. Stragglers move
	// to the day after Window.End.
	Window   model.Window
	Account  string // "" fetches future rows of every account
	Simulate bool
	Job      model.Job
}

// Report summarizes a commit.
type Report struct {
	Job       model.Job
	Inserted  int
	Updated   int
	Matched   int
	Shifted   int
	Inert     int
	NextIndex int
	Simulated bool
	Result    reconcile.Result
}

// Error is a failed commit. Nothing of the run was persisted.
type Error struct {
	Step string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("commit failed while %s: %v", e.Step, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Coordinator owns the transaction discipline around the engine.
type Coordinator struct {
	store  Store
	engine *reconcile.Engine
	log    zerolog.Logger
}

// New creates a Coordinator.
func New(st Store, engine *reconcile.Engine, log zerolog.Logger) *Coordinator {
	return &Coordinator{store: st, engine: engine, log: log}
}

// Run fetches the future rows, reconciles the candidates against them and
// writes updates then inserts, all in one transaction.
func (c *Coordinator) Run(ctx context.Context, req Request) (Report, error) {
	var rep Report
	err := c.inTx(ctx, req, func(tx *store.Tx) error {
		future, err := tx.FutureRecords(ctx, req.Window.Start, req.Window.End, req.Account)
		if err != nil {
			return &Error{Step: "fetching future records", Err: err}
		}
		c.log.Info().
			Str("window", req.Window.String()).
			Str("account", req.Account).
			Int("future", len(future)).
			Msg("future records loaded")

		res := c.engine.Reconcile(req.Candidates, future, req.StartIndex, req.Window.End)
		if verrs := Validate(res.Inserts, res.Updates); len(verrs) > 0 {
			return &Error{Step: "validating", Err: joinValidation(verrs)}
		}
		if err := tx.CreateJob(ctx, req.Job); err != nil {
			return &Error{Step: "creating job", Err: err}
		}
		updated, err := tx.Update(ctx, res.Updates)
		if err != nil {
			return &Error{Step: "updating future records", Err: err}
		}
		inserted, err := tx.Insert(ctx, res.Inserts, req.Job.Key)
		if err != nil {
			return &Error{Step: "inserting records", Err: err}
		}

		rep = Report{
			Job:       req.Job,
			Inserted:  inserted,
			Updated:   updated,
			Matched:   len(res.Matches),
			Shifted:   len(res.Shifted),
			Inert:     len(res.Inert),
			NextIndex: res.NextIndex,
			Result:    res,
		}
		return nil
	})
	rep.Simulated = req.Simulate && err == nil
	return rep, err
}

// Insert writes the candidates as new rows without looking for matches.
func (c *Coordinator) Insert(ctx context.Context, req Request) (Report, error) {
	var rep Report
	err := c.inTx(ctx, req, func(tx *store.Tx) error {
		next := reconcile.Number(req.Candidates, req.StartIndex)
		if verrs := Validate(req.Candidates, nil); len(verrs) > 0 {
			return &Error{Step: "validating", Err: joinValidation(verrs)}
		}
		if err := tx.CreateJob(ctx, req.Job); err != nil {
			return &Error{Step: "creating job", Err: err}
		}
		n, err := tx.Insert(ctx, req.Candidates, req.Job.Key)
		if err != nil {
			return &Error{Step: "inserting records", Err: err}
		}
		rep = Report{
			Job:       req.Job,
			Inserted:  n,
			NextIndex: next,
			Result:    reconcile.Result{Inserts: req.Candidates, NextIndex: next},
		}
		return nil
	})
	rep.Simulated = req.Simulate && err == nil
	return rep, err
}

// inTx runs fn in a transaction that is committed only when fn succeeds and
// the request is not a simulation.
func (c *Coordinator) inTx(ctx context.Context, req Request, fn func(*store.Tx) error) (err error) {
	tx, err := c.store.Begin(ctx)
	if err != nil {
		return &Error{Step: "beginning transaction", Err: err}
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil {
			c.log.Error().Err(rbErr).Msg("rollback failed")
		}
	}()

	if err := fn(tx); err != nil {
		c.log.Error().Err(err).Str("job", req.Job.Key).Msg("run rolled back")
		return err
	}
	if req.Simulate {
		c.log.Info().Str("job", req.Job.Key).Msg("simulation, changes rolled back")
		return nil
	}
	committed = true
	if err := tx.Commit(); err != nil {
		return &Error{Step: "committing", Err: err}
	}
	c.log.Info().Str("job", req.Job.Key).Msg("changes committed")
	return nil
}
