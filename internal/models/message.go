package models

// Stage messages are self-contained: a handler can resume purely from its
// message plus blob lookups, with no foreign-key chasing. Each stage
// enqueues its successor's message only after completing its own work,
// which is the sole ordering guarantee within a job.

// ProcessingJobMessage triggers the process stage for a newly created job
type ProcessingJobMessage struct {
	JobID       string       `json:"job_id"`
	UserID      string       `json:"user_id"`
	ProjectID   string       `json:"project_id"`
	InputType   InputType    `json:"input_type"`
	InputSource string       `json:"input_source"`
	FileName    string       `json:"file_name,omitempty"`
	FileSize    int64        `json:"file_size,omitempty"`
	MimeType    string       `json:"mime_type,omitempty"`
	Crawl       *CrawlParams `json:"crawl,omitempty"`
}

// ChunkingJobMessage triggers the chunk stage once markdown blobs exist
type ChunkingJobMessage struct {
	JobID         string   `json:"job_id"`
	ProjectID     string   `json:"project_id"`
	MarkdownFiles []string `json:"markdown_files"`
}

// IndexingJobMessage triggers the index stage once chunk blobs exist
type IndexingJobMessage struct {
	JobID      string   `json:"job_id"`
	ProjectID  string   `json:"project_id"`
	ChunkFiles []string `json:"chunk_files"`
}
