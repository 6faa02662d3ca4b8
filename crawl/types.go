// Package crawl defines the core types shared across the SDK.
package crawl

import (
	"time"
)

// JobStatus represents the lifecycle state of a crawl job as reported
// by the API.
type JobStatus string

// Job status values returned by the status endpoint and status frames.
const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status can no longer change.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// OutputFormat selects the representation of extracted page content.
type OutputFormat string

// Output formats accepted by the crawl API.
const (
	FormatMarkdown OutputFormat = "markdown"
	FormatHTML     OutputFormat = "html"
	FormatText     OutputFormat = "text"
	FormatLinks    OutputFormat = "links"
)

// KnownFormat reports whether f is one of the accepted output formats.
func KnownFormat(f OutputFormat) bool {
	switch f {
	case FormatMarkdown, FormatHTML, FormatText, FormatLinks:
		return true
	default:
		return false
	}
}

// JobParameters captures the per-job options sent with a submission.
type JobParameters struct {
	URL          string            `json:"url"`
	Limit        int               `json:"limit,omitempty"`
	MaxDepth     int               `json:"max_depth,omitempty"`
	Formats      []OutputFormat    `json:"formats,omitempty"`
	IncludePaths []string          `json:"include_paths,omitempty"`
	ExcludePaths []string          `json:"exclude_paths,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
}

// Job is the server-assigned handle for a submitted crawl. It is
// immutable once Status is terminal.
type Job struct {
	ID         string        `json:"id"`
	Status     JobStatus     `json:"status"`
	Submitted  time.Time     `json:"submitted_at"`
	ErrorText  string        `json:"error_text,omitempty"`
	Parameters JobParameters `json:"parameters"`
}

// Page is a single extracted document within a job's output stream.
// Seq is assigned by the server, monotonic within a job, and is the
// ordering and dedup key. A Page is never mutated after receipt.
type Page struct {
	URL        string       `json:"url"`
	Format     OutputFormat `json:"format"`
	Content    []byte       `json:"content"`
	StatusCode int          `json:"status_code"`
	Seq        uint64       `json:"seq"`
	FetchedAt  time.Time    `json:"fetched_at"`
}

// FinalResult is the terminal outcome of a job: every accepted page in
// sequence order. Incomplete is set when pages were buffered behind an
// unresolved sequence gap or the job did not complete cleanly.
type FinalResult struct {
	JobID      string    `json:"job_id"`
	Status     JobStatus `json:"status"`
	Pages      []Page    `json:"pages"`
	Incomplete bool      `json:"incomplete"`
}
