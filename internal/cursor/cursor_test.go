package cursor

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/releve/internal/ledger"
	"github.com/cleared-dev/releve/internal/model"
)

func date(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

type fakeSource struct {
	max      int
	hasMax   bool
	last     map[string]time.Time
	maxErr   error
	dateErr  error
	accounts []string
}

func (f *fakeSource) MaxSequence(context.Context) (int, bool, error) {
	return f.max, f.hasMax, f.maxErr
}

func (f *fakeSource) LastInsertDate(_ context.Context, account string) (time.Time, bool, error) {
	f.accounts = append(f.accounts, account)
	if f.dateErr != nil {
		return time.Time{}, false, f.dateErr
	}
	d, ok := f.last[account]
	return d, ok, nil
}

var window = model.Window{Start: date(2024, 5, 13), End: date(2024, 5, 19)}

func TestFromStore(t *testing.T) {
	src := &fakeSource{max: 41, hasMax: true, last: map[string]time.Time{"": date(2024, 5, 15), "A": date(2024, 5, 10)}}

	pos := FromStore(context.Background(), src, window, false, "", zerolog.Nop())
	assert.Equal(t, 42, pos.StartIndex)
	assert.Equal(t, date(2024, 5, 16), pos.Window.Start)
	assert.Equal(t, window.End, pos.Window.End)
	assert.Nil(t, pos.Miss)

	pos = FromStore(context.Background(), src, window, false, "A", zerolog.Nop())
	assert.Equal(t, date(2024, 5, 11), pos.Window.Start)
	assert.Equal(t, []string{"", "A"}, src.accounts)
}

func TestFromStore_Pinned(t *testing.T) {
	src := &fakeSource{max: 41, hasMax: true, last: map[string]time.Time{"": date(2024, 5, 15)}}
	pos := FromStore(context.Background(), src, window, true, "", zerolog.Nop())
	assert.Equal(t, 42, pos.StartIndex)
	assert.Equal(t, window, pos.Window)
	assert.Equal(t, date(2024, 5, 15), pos.LastInsert)
}

func TestFromStore_EmptyLedger(t *testing.T) {
	var buf bytes.Buffer
	pos := FromStore(context.Background(), &fakeSource{}, window, false, "", zerolog.New(&buf))
	assert.Equal(t, 0, pos.StartIndex)
	assert.Equal(t, window, pos.Window)

	var me *MissError
	require.ErrorAs(t, pos.Miss, &me)
	assert.True(t, errors.Is(pos.Miss, ErrNoRecords))
	assert.Contains(t, buf.String(), "index cursor not found")
}

func TestFromStore_ReadFailureIsSoft(t *testing.T) {
	var buf bytes.Buffer
	boom := errors.New("connection reset")
	pos := FromStore(context.Background(), &fakeSource{maxErr: boom}, window, false, "", zerolog.New(&buf))
	assert.Equal(t, 0, pos.StartIndex)
	assert.Equal(t, window, pos.Window)
	assert.True(t, errors.Is(pos.Miss, boom))
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), "connection reset")
}

func TestFromStore_DateFailureKeepsSequence(t *testing.T) {
	var buf bytes.Buffer
	src := &fakeSource{max: 3, hasMax: true, dateErr: errors.New("bad date")}
	pos := FromStore(context.Background(), src, window, false, "", zerolog.New(&buf))
	assert.Equal(t, 4, pos.StartIndex, "the sequence read before the failure is kept")
	assert.Equal(t, window, pos.Window)
	assert.True(t, pos.LastInsert.IsZero())
	assert.Error(t, pos.Miss)
	assert.Contains(t, buf.String(), `"start_index":4`)
	assert.Contains(t, buf.String(), `"level":"warn"`)
}

func writeExport(t *testing.T, dir, name string, records ...*model.Transaction) {
	t.Helper()
	f, err := os.Create(filepath.Join(dir, name))
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, ledger.WriteRecords(f, records))
}

func TestFromFolder(t *testing.T) {
	dir := t.TempDir()
	writeExport(t, dir, "20240501_ledger.csv", &model.Transaction{No: 99, InsertDate: date(2024, 5, 1)})
	writeExport(t, dir, "20240512_ledger.csv",
		&model.Transaction{No: 7, InsertDate: date(2024, 5, 12)},
		&model.Transaction{No: 9, InsertDate: date(2024, 5, 11)},
		&model.Transaction{No: 8},
	)

	pos := FromFolder(dir, window, false, zerolog.Nop())
	require.Nil(t, pos.Miss)
	assert.Equal(t, 10, pos.StartIndex)
	assert.Equal(t, date(2024, 5, 13), pos.Window.Start)
	assert.Equal(t, date(2024, 5, 12), pos.LastInsert)
}

func TestFromFolder_Missing(t *testing.T) {
	pos := FromFolder(t.TempDir(), window, false, zerolog.Nop())
	assert.Equal(t, 0, pos.StartIndex)
	assert.Equal(t, window, pos.Window)
	assert.True(t, errors.Is(pos.Miss, ledger.ErrNoFile))
}

func TestFromFolder_HeaderOnly(t *testing.T) {
	dir := t.TempDir()
	writeExport(t, dir, "20240512_ledger.csv")
	pos := FromFolder(dir, window, false, zerolog.Nop())
	assert.True(t, errors.Is(pos.Miss, ErrNoRecords))
}
