package store

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cleared-dev/releve/internal/model"
)

// dialect covers the few places where SQLite and PostgreSQL differ: bind
// placeholders and how dates travel.
type dialect struct {
	driver string
	sqlite bool
}

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case DriverSQLite:
		return dialect{driver: driver, sqlite: true}, nil
	case DriverPgx, DriverPostgres:
		return dialect{driver: driver}, nil
	}
	return dialect{}, fmt.Errorf("unsupported database driver %q", driver)
}

// rebind turns ? placeholders into $1, $2... for PostgreSQL.
func (d dialect) rebind(q string) string {
	if d.sqlite {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// date encodes a calendar day. SQLite keeps ISO text so that range
// comparisons stay lexical.
func (d dialect) date(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	if d.sqlite {
		return t.Format(model.DateFormat)
	}
	return model.Day(t)
}

func (d dialect) timestamp(t time.Time) any {
	if d.sqlite {
		return t.UTC().Format(time.RFC3339)
	}
	return t
}

// nullDate scans a DATE column stored either as text or as a native date.
type nullDate struct {
	Time  time.Time
	Valid bool
}

func (n *nullDate) Scan(v any) error {
	*n = nullDate{}
	var s string
	switch x := v.(type) {
	case nil:
		return nil
	case time.Time:
		n.Time, n.Valid = model.Day(x), true
		return nil
	case string:
		s = x
	case []byte:
		s = string(x)
	default:
		return fmt.Errorf("cannot scan %T into a date", v)
	}
	if len(s) > len(model.DateFormat) {
		s = s[:len(model.DateFormat)]
	}
	t, err := time.Parse(model.DateFormat, s)
	if err != nil {
		return fmt.Errorf("parsing date %q: %w", s, err)
	}
	n.Time, n.Valid = t, true
	return nil
}

// timestamp scans a TIMESTAMPTZ or its RFC 3339 text form.
type timestamp struct {
	Time time.Time
}

func (ts *timestamp) Scan(v any) error {
	switch x := v.(type) {
	case nil:
		ts.Time = time.Time{}
	case time.Time:
		ts.Time = x
	case string:
		return ts.parse(x)
	case []byte:
		return ts.parse(string(x))
	default:
		return fmt.Errorf("cannot scan %T into a timestamp", v)
	}
	return nil
}

func (ts *timestamp) parse(s string) error {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	ts.Time = t
	return nil
}
