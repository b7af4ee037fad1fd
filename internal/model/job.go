package model

import "time"

// Job is one import run. It owns the records it inserted.
type Job struct {
	Key       string
	CreatedAt time.Time
}

// Mapping assigns Target to any record whose description contains Keyword.
type Mapping struct {
	Keyword string
	Target  string
}
