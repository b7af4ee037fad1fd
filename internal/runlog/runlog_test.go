package runlog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2024, 5, 19, 21, 4, 0, 0, time.UTC)

func testEntry() Entry {
	return Entry{
		Timestamp: testTime,
		JobKey:    "20240519-210400-1f0c3a9e",
		Mode:      "refined",
		Stage:     "commit",
		Current:   12,
		Excluded:  2,
		Anterior:  1,
		Inserted:  9,
		Updated:   3,
	}
}

func TestAppend_NewFile(t *testing.T) {
	dir := t.TempDir()
	err := Append(dir, []Entry{testEntry()})
	require.NoError(t, err)

	entries, err := Read(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, testEntry(), entries[0])
}

func TestAppend_ExistingFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Append(dir, []Entry{testEntry()}))

	e2 := testEntry()
	e2.Mode = "database"
	e2.Simulated = true
	e2.Error = "commit: creating job: duplicate key"
	require.NoError(t, Append(dir, []Entry{e2}))

	entries, err := Read(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "refined", entries[0].Mode)
	assert.Equal(t, "database", entries[1].Mode)
	assert.True(t, entries[1].Simulated)
	assert.Equal(t, e2.Error, entries[1].Error)

	data, err := os.ReadFile(filepath.Join(dir, "logs", "import-log.csv"))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), Header), "header written once")
}

func TestRead_NotFound(t *testing.T) {
	entries, err := Read(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, entries)
}

func TestRead_EmptyFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "logs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "logs", "import-log.csv"), []byte(Header+"\n"), 0o644))

	entries, err := Read(dir)
	require.NoError(t, err)
	assert.Nil(t, entries)
}

func TestUnmarshalEntry_BadFieldCount(t *testing.T) {
	_, err := UnmarshalEntry([]string{"one", "two"})
	assert.ErrorContains(t, err, "expected 11 fields")
}

func TestUnmarshalEntry_BadCount(t *testing.T) {
	row := MarshalEntry(testEntry())
	row[colInserted] = "many"
	_, err := UnmarshalEntry(row)
	assert.ErrorContains(t, err, `parsing count "many"`)
}

func TestTimestampFormat(t *testing.T) {
	row := MarshalEntry(testEntry())
	assert.Equal(t, "2024-05-19T21:04:00Z", row[colTimestamp])
	assert.Equal(t, "false", row[colSimulated])
}
