package models

// DocumentChunk is a bounded, overlapping slice of a converted document.
// Chunks are the unit handed to the search index and the unit carried in
// the JSONL transport format between the chunk and index stages.
type DocumentChunk struct {
	ID       string        `json:"id"`
	Content  string        `json:"content"`
	Metadata ChunkMetadata `json:"metadata"`
}

// ChunkMetadata tags a chunk with its source and sequence. For a given
// source document ChunkIndex is a zero-based, strictly increasing sequence
// with no gaps.
type ChunkMetadata struct {
	SourceFile   string `json:"source_file"`
	DocumentType string `json:"document_type"`
	ChunkIndex   int    `json:"chunk_index"`
	WordCount    int    `json:"word_count"`
	ProjectID    string `json:"project_id"`
	CrawlTime    string `json:"crawl_time,omitempty"`
	Title        string `json:"title,omitempty"`
	Created      string `json:"created,omitempty"`
	Modified     string `json:"modified,omitempty"`
}
