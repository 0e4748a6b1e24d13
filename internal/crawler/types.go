package crawler

import (
	"net/http"
	"strings"
	"time"
)

// JobStatus represents the lifecycle state of a rebuild job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCanceled  JobStatus = "canceled"
)

// Terminal reports whether no further transitions are expected.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusCanceled:
		return true
	default:
		return false
	}
}

// JobParameters captures what a client asked to rebuild.
type JobParameters struct {
	BaseURL  string `json:"base_url"`
	MaxPages int    `json:"max_pages"`
}

// Job represents the metadata persisted for each submitted rebuild.
type Job struct {
	ID         string        `json:"id"`
	Status     JobStatus     `json:"status"`
	Submitted  time.Time     `json:"submitted_at"`
	Started    *time.Time    `json:"started_at,omitempty"`
	Finished   *time.Time    `json:"finished_at,omitempty"`
	ErrorText  string        `json:"error_text,omitempty"`
	Parameters JobParameters `json:"parameters"`
	Counters   JobCounters   `json:"counters"`
}

// JobCounters tracks rebuild progress.
type JobCounters struct {
	Pages       int `json:"pages"`
	Chunks      int `json:"chunks"`
	PagesFailed int `json:"pages_failed"`
	Deleted     int `json:"deleted"`
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Timeout time.Duration
	Headers http.Header
	// AllowedDomain, when set, rejects redirects that leave the domain or its
	// subdomains.
	AllowedDomain string
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// ContentType returns the response Content-Type header.
func (r FetchResponse) ContentType() string {
	return r.Headers.Get("Content-Type")
}

// IsHTML reports whether the response declares an HTML body.
func (r FetchResponse) IsHTML() bool {
	return strings.Contains(strings.ToLower(r.ContentType()), "text/html")
}
