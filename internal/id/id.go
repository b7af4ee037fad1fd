package id

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	jobTimeLayout = "20060102-150405"
	jobSuffixLen  = 8
)

// NewJobKey returns a job key like "20240519-210400-1f0c3a9e": the run
// start time followed by a random suffix.
func NewJobKey(now time.Time) string {
	return FormatJobKey(now, uuid.NewString())
}

// FormatJobKey builds a job key from a start time and a uuid.
func FormatJobKey(now time.Time, u string) string {
	suffix := strings.ReplaceAll(u, "-", "")
	if len(suffix) > jobSuffixLen {
		suffix = suffix[:jobSuffixLen]
	}
	return now.UTC().Format(jobTimeLayout) + "-" + suffix
}

// ParseJobKey returns the start time encoded in a job key.
func ParseJobKey(key string) (time.Time, error) {
	if len(key) != len(jobTimeLayout)+1+jobSuffixLen || key[len(jobTimeLayout)] != '-' {
		return time.Time{}, fmt.Errorf("invalid job key format: %q", key)
	}
	ts, err := time.Parse(jobTimeLayout, key[:len(jobTimeLayout)])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time in job key %q: %w", key, err)
	}
	return ts, nil
}

// NewSplitKey returns the key shared by the installments of one split row.
func NewSplitKey() string {
	return uuid.NewString()
}
