// Package runlog keeps the audit trail of import runs in logs/import-log.csv.
package runlog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Entry is one row in the import log.
type Entry struct {
	Timestamp time.Time
	JobKey    string
	Mode      string
	Stage     string // last stage reached
	Current   int
	Excluded  int
	Anterior  int
	Inserted  int
	Updated   int
	Simulated bool
	Error     string
}

// Header is the CSV header for import-log.csv.
const Header = "timestamp,job_key,mode,stage,current,excluded,anterior,inserted,updated,simulated,error"

const (
	numFields    = 11
	logDir       = "logs"
	logFile      = "logs/import-log.csv"
	colTimestamp = 0
	colJobKey    = 1
	colMode      = 2
	colStage     = 3
	colCurrent   = 4
	colExcluded  = 5
	colAnterior  = 6
	colInserted  = 7
	colUpdated   = 8
	colSimulated = 9
	colError     = 10
)

// MarshalEntry converts an Entry to a CSV row.
func MarshalEntry(e Entry) []string {
	row := make([]string, numFields)
	row[colTimestamp] = e.Timestamp.Format(time.RFC3339)
	row[colJobKey] = e.JobKey
	row[colMode] = e.Mode
	row[colStage] = e.Stage
	row[colCurrent] = strconv.Itoa(e.Current)
	row[colExcluded] = strconv.Itoa(e.Excluded)
	row[colAnterior] = strconv.Itoa(e.Anterior)
	row[colInserted] = strconv.Itoa(e.Inserted)
	row[colUpdated] = strconv.Itoa(e.Updated)
	row[colSimulated] = strconv.FormatBool(e.Simulated)
	row[colError] = e.Error
	return row
}

// UnmarshalEntry converts a CSV row to an Entry.
func UnmarshalEntry(record []string) (Entry, error) {
	if len(record) != numFields {
		return Entry{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}

	ts, err := time.Parse(time.RFC3339, record[colTimestamp])
	if err != nil {
		return Entry{}, fmt.Errorf("parsing timestamp %q: %w", record[colTimestamp], err)
	}
	e := Entry{
		Timestamp: ts,
		JobKey:    record[colJobKey],
		Mode:      record[colMode],
		Stage:     record[colStage],
		Error:     record[colError],
	}

	counts := []struct {
		col int
		dst *int
	}{
		{colCurrent, &e.Current},
		{colExcluded, &e.Excluded},
		{colAnterior, &e.Anterior},
		{colInserted, &e.Inserted},
		{colUpdated, &e.Updated},
	}
	for _, c := range counts {
		n, err := strconv.Atoi(record[c.col])
		if err != nil {
			return Entry{}, fmt.Errorf("parsing count %q: %w", record[c.col], err)
		}
		*c.dst = n
	}
	if e.Simulated, err = strconv.ParseBool(record[colSimulated]); err != nil {
		return Entry{}, fmt.Errorf("parsing simulated %q: %w", record[colSimulated], err)
	}
	return e, nil
}

// Append writes entries to <workDir>/logs/import-log.csv, creating the file and header if needed.
func Append(workDir string, entries []Entry) error {
	dir := filepath.Join(workDir, logDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating logs dir: %w", err)
	}

	path := filepath.Join(workDir, logFile)
	needsHeader := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		needsHeader = true
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening import log: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if needsHeader {
		if err := cw.Write(strings.Split(Header, ",")); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
	}
	for i, e := range entries {
		if err := cw.Write(MarshalEntry(e)); err != nil {
			return fmt.Errorf("writing entry %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Read returns all entries from <workDir>/logs/import-log.csv.
// Returns an empty slice if the file does not exist.
func Read(workDir string) ([]Entry, error) {
	f, err := os.Open(filepath.Join(workDir, logFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening import log: %w", err)
	}
	defer f.Close()

	return readEntries(f)
}

func readEntries(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading import log CSV: %w", err)
	}
	if len(records) <= 1 {
		return nil, nil
	}

	var entries []Entry
	for i, rec := range records[1:] {
		e, err := UnmarshalEntry(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
