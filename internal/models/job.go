package models

import (
	"time"
)

// JobStatus represents the state of a processing job
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusChunking   JobStatus = "chunking"
	JobStatusIndexing   JobStatus = "indexing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsValid reports whether the status is one of the known states
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusQueued, JobStatusProcessing, JobStatusChunking,
		JobStatusIndexing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether the status admits no further transitions
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanTransitionTo validates a status transition against the pipeline graph:
// queued -> processing -> chunking -> indexing -> completed, with failed
// reachable from any non-terminal state and absorbing.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if next == JobStatusFailed {
		return true
	}
	switch s {
	case JobStatusQueued:
		return next == JobStatusProcessing
	case JobStatusProcessing:
		return next == JobStatusChunking
	case JobStatusChunking:
		return next == JobStatusIndexing
	case JobStatusIndexing:
		return next == JobStatusCompleted
	}
	return false
}

// StatsBucket maps a status to its reporting bucket. The three active
// stages collapse into a single "processing" bucket.
func (s JobStatus) StatsBucket() string {
	switch s {
	case JobStatusProcessing, JobStatusChunking, JobStatusIndexing:
		return "processing"
	default:
		return string(s)
	}
}

// InputType identifies what kind of source a job ingests
type InputType string

const (
	InputTypeFile   InputType = "file"   // Single uploaded blob
	InputTypeURL    InputType = "url"    // Web crawl seed
	InputTypeFolder InputType = "folder" // Blob prefix expanded to many files
)

// ProcessingJob tracks one ingestion unit from submission to completion.
// Created by the upload stage; mutated only by stage handlers through
// merge-style partial updates so fields written by a different stage are
// never clobbered.
type ProcessingJob struct {
	ID          string    `json:"id" badgerhold:"key"`
	UserID      string    `json:"user_id" badgerhold:"index"`
	ProjectID   string    `json:"project_id" badgerhold:"index"`
	InputType   InputType `json:"input_type"`
	InputSource string    `json:"input_source"` // Blob name for files/folders, seed URL for crawls
	FileName    string    `json:"file_name,omitempty"`
	FileSize    int64     `json:"file_size,omitempty"`
	MimeType    string    `json:"mime_type,omitempty"`

	Status   JobStatus `json:"status" badgerhold:"index"`
	Progress int       `json:"progress"` // 0-100, reset at each stage start

	// ErrorMessage is populated only when the job fails. Format is a
	// human-readable classification followed by detail, suitable for
	// surfacing to the submitting user.
	ErrorMessage string      `json:"error_message,omitempty"`
	Results      *JobResults `json:"results,omitempty"`

	// Crawl carries crawl bounds for URL jobs so a stuck job's message can
	// be reconstructed from the record alone.
	Crawl *CrawlParams `json:"crawl,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JobResults accumulates per-stage outputs. Each stage merges only the
// fields it owns.
type JobResults struct {
	MarkdownFiles    []string     `json:"markdown_files,omitempty"`
	ChunkFiles       []string     `json:"chunk_files,omitempty"`
	IndexedDocuments int          `json:"indexed_documents,omitempty"`
	FailedDocuments  int          `json:"failed_documents,omitempty"`
	PagesCrawled     int          `json:"pages_crawled,omitempty"`
	CrawlErrors      []CrawlError `json:"crawl_errors,omitempty"`
	ProcessingTimeMs int64        `json:"processing_time_ms,omitempty"`
}

// JobUpdate is a merge-style partial update. Nil fields are left
// untouched; UpdatedAt always refreshes on apply.
type JobUpdate struct {
	Status       *JobStatus
	Progress     *int
	ErrorMessage *string
	Results      *JobResults
}

// JobStatusUpdate is the payload published to the event sink after every
// status transition
type JobStatusUpdate struct {
	JobID    string    `json:"job_id"`
	Status   JobStatus `json:"status"`
	Progress int       `json:"progress"`
	Error    string    `json:"error,omitempty"`
}

// JobStats aggregates job counts per reporting bucket
type JobStats struct {
	Total      int `json:"total"`
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}
