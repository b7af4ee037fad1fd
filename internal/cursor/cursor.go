// Package cursor finds where the next import starts: the next free sequence
// number and the first day not yet imported.
package cursor

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cleared-dev/releve/internal/ledger"
	"github.com/cleared-dev/releve/internal/model"
)

// Source is the part of the store the cursor reads.
type Source interface {
	MaxSequence(ctx context.Context) (int, bool, error)
	LastInsertDate(ctx context.Context, account string) (time.Time, bool, error)
}

// Position is where an import starts.
type Position struct {
	StartIndex int
	Window     model.Window
	// LastInsert is zero when no prior record was found.
	LastInsert time.Time
	// Miss is set when the lookup failed and defaults were used.
	Miss error
}

// MissError reports a cursor lookup that failed. It is never fatal.
type MissError struct {
	Source string
	Err    error
}

func (e *MissError) Error() string {
	return fmt.Sprintf("index cursor miss on %s: %v", e.Source, e.Err)
}

func (e *MissError) Unwrap() error { return e.Err }

// ErrNoRecords means the ledger holds nothing yet.
var ErrNoRecords = errors.New("no prior records")

// FromStore reads the cursor from the database. Unless pinned, the window
// starts the day after the last insert date (of account, or of the whole
// ledger when account is empty). A failure to read the sequence falls back
// to index 0 and the given window. When only the date lookup fails, the
// sequence already read is kept and only the window falls back.
func FromStore(ctx context.Context, src Source, window model.Window, pinned bool, account string, log zerolog.Logger) Position {
	pos := Position{Window: window}

	lastNo, ok, err := src.MaxSequence(ctx)
	if err != nil {
		return miss(pos, "store", err, log)
	}
	if !ok {
		return miss(pos, "store", ErrNoRecords, log)
	}
	pos.StartIndex = lastNo + 1

	last, ok, err := src.LastInsertDate(ctx, account)
	switch {
	case err != nil:
		return miss(pos, "store", err, log)
	case ok:
		pos.LastInsert = last
		if !pinned {
			pos.Window.Start = model.Day(last).AddDate(0, 0, 1)
		}
	}
	logPosition(pos, log)
	return pos
}

// FromFolder reads the cursor from the latest CSV ledger export in dir,
// using its no and insert_date columns.
func FromFolder(dir string, window model.Window, pinned bool, log zerolog.Logger) Position {
	pos := Position{Window: window}

	path, err := ledger.LatestFile(dir, ".csv")
	if err != nil {
		return miss(pos, dir, err, log)
	}
	f, err := os.Open(path)
	if err != nil {
		return miss(pos, path, err, log)
	}
	defer f.Close()

	lastNo, last, err := scanExport(f)
	if err != nil {
		return miss(pos, path, err, log)
	}
	pos.StartIndex = lastNo + 1
	pos.LastInsert = last
	if !pinned && !last.IsZero() {
		pos.Window.Start = last.AddDate(0, 0, 1)
	}
	logPosition(pos, log)
	return pos
}

func scanExport(r io.Reader) (maxNo int, lastInsert time.Time, err error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("reading header: %w", err)
	}
	noCol, dateCol := -1, -1
	for i, h := range header {
		switch strings.TrimSpace(h) {
		case "no":
			noCol = i
		case "insert_date":
			dateCol = i
		}
	}
	if noCol < 0 || dateCol < 0 {
		return 0, time.Time{}, errors.New("export lacks no or insert_date column")
	}

	seen := false
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, time.Time{}, fmt.Errorf("line %d: %w", line, err)
		}
		if noCol >= len(rec) || dateCol >= len(rec) {
			return 0, time.Time{}, fmt.Errorf("line %d: short row", line)
		}
		no, err := strconv.Atoi(strings.TrimSpace(rec[noCol]))
		if err != nil {
			return 0, time.Time{}, fmt.Errorf("line %d: parsing no: %w", line, err)
		}
		if !seen || no > maxNo {
			maxNo = no
		}
		seen = true
		if s := strings.TrimSpace(rec[dateCol]); s != "" {
			d, err := time.Parse(model.DateFormat, s)
			if err != nil {
				return 0, time.Time{}, fmt.Errorf("line %d: parsing insert_date: %w", line, err)
			}
			if d.After(lastInsert) {
				lastInsert = d
			}
		}
	}
	if !seen {
		return 0, time.Time{}, ErrNoRecords
	}
	return maxNo, lastInsert, nil
}

func miss(pos Position, source string, err error, log zerolog.Logger) Position {
	pos.Miss = &MissError{Source: source, Err: err}
	ev := log.Warn()
	if errors.Is(err, ErrNoRecords) {
		ev = log.Info()
	}
	ev.Err(err).
		Str("source", source).
		Int("start_index", pos.StartIndex).
		Str("window", pos.Window.String()).
		Msg("index cursor not found, using the default window")
	return pos
}

func logPosition(pos Position, log zerolog.Logger) {
	ev := log.Info()
	if pos.Window.Start.After(pos.Window.End) {
		ev = log.Warn()
	}
	ev.Int("start_index", pos.StartIndex).
		Str("window", pos.Window.String()).
		Msg("index cursor found")
}
