package models

import (
	"testing"
)

func TestJobStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		name    string
		from    JobStatus
		to      JobStatus
		allowed bool
	}{
		{"queued to processing", JobStatusQueued, JobStatusProcessing, true},
		{"processing to chunking", JobStatusProcessing, JobStatusChunking, true},
		{"chunking to indexing", JobStatusChunking, JobStatusIndexing, true},
		{"indexing to completed", JobStatusIndexing, JobStatusCompleted, true},
		{"queued to failed", JobStatusQueued, JobStatusFailed, true},
		{"processing to failed", JobStatusProcessing, JobStatusFailed, true},
		{"chunking to failed", JobStatusChunking, JobStatusFailed, true},
		{"indexing to failed", JobStatusIndexing, JobStatusFailed, true},
		{"queued skips to chunking", JobStatusQueued, JobStatusChunking, false},
		{"processing skips to indexing", JobStatusProcessing, JobStatusIndexing, false},
		{"processing skips to completed", JobStatusProcessing, JobStatusCompleted, false},
		{"chunking back to processing", JobStatusChunking, JobStatusProcessing, false},
		{"failed is absorbing", JobStatusFailed, JobStatusQueued, false},
		{"failed never completes", JobStatusFailed, JobStatusCompleted, false},
		{"completed is terminal", JobStatusCompleted, JobStatusProcessing, false},
		{"completed never fails", JobStatusCompleted, JobStatusFailed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.allowed {
				t.Errorf("CanTransitionTo(%s -> %s): got %v, want %v", tt.from, tt.to, got, tt.allowed)
			}
		})
	}
}

func TestJobStatus_FullPipelineSequence(t *testing.T) {
	// The happy path must be walkable end to end
	sequence := []JobStatus{
		JobStatusQueued,
		JobStatusProcessing,
		JobStatusChunking,
		JobStatusIndexing,
		JobStatusCompleted,
	}

	for i := 0; i < len(sequence)-1; i++ {
		if !sequence[i].CanTransitionTo(sequence[i+1]) {
			t.Errorf("pipeline sequence broken at %s -> %s", sequence[i], sequence[i+1])
		}
	}

	if !sequence[len(sequence)-1].IsTerminal() {
		t.Error("completed should be terminal")
	}
}

func TestJobStatus_StatsBucket(t *testing.T) {
	tests := []struct {
		status JobStatus
		bucket string
	}{
		{JobStatusQueued, "queued"},
		{JobStatusProcessing, "processing"},
		{JobStatusChunking, "processing"},
		{JobStatusIndexing, "processing"},
		{JobStatusCompleted, "completed"},
		{JobStatusFailed, "failed"},
	}

	for _, tt := range tests {
		if got := tt.status.StatsBucket(); got != tt.bucket {
			t.Errorf("StatsBucket(%s): got %s, want %s", tt.status, got, tt.bucket)
		}
	}
}

func TestJobStatus_IsValid(t *testing.T) {
	for _, s := range []JobStatus{
		JobStatusQueued, JobStatusProcessing, JobStatusChunking,
		JobStatusIndexing, JobStatusCompleted, JobStatusFailed,
	} {
		if !s.IsValid() {
			t.Errorf("%s should be valid", s)
		}
	}

	if JobStatus("running").IsValid() {
		t.Error("unknown status should not be valid")
	}
}
