package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/ternarybob/colligo/internal/queue"
	"github.com/ternarybob/colligo/internal/services/chunker"
	"github.com/ternarybob/colligo/internal/services/indexer"
	badgerstore "github.com/ternarybob/colligo/internal/storage/badger"
)

type testEnv struct {
	svc       *Service
	jobs      interfaces.JobStorage
	blobs     interfaces.BlobStorage
	queue     interfaces.QueueManager
	index     interfaces.SearchIndex
	converter *stubConverter
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := arbor.NewLogger()

	db, err := badgerstore.NewBadgerDB(logger, &common.BadgerConfig{Path: t.TempDir() + "/db"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	jobs := badgerstore.NewJobStorage(db, logger)
	blobs := badgerstore.NewBlobStorage(db, logger)
	index := badgerstore.NewIndexStorage(db, logger)

	qm, err := queue.NewManager(db.Badger(), &common.QueueConfig{
		PollInterval:      10 * time.Millisecond,
		Concurrency:       1,
		VisibilityTimeout: time.Minute,
		MaxReceive:        3,
	}, logger)
	require.NoError(t, err)

	chunkerSvc := chunker.NewService(&common.ChunkerConfig{
		MaxChunkSize:      500,
		OverlapSize:       50,
		RespectParagraphs: true,
	}, logger)
	publisher := indexer.NewPublisher(index, blobs, &common.IndexerConfig{BatchSize: 100}, logger)
	converter := &stubConverter{}

	svc := NewService(jobs, blobs, qm, converter, chunkerSvc, publisher, nil, &common.PipelineConfig{
		CleanupSchedule:   "0 3 * * *",
		RetentionDays:     30,
		StuckJobThreshold: 30 * time.Minute,
	}, logger)

	return &testEnv{
		svc:       svc,
		jobs:      jobs,
		blobs:     blobs,
		queue:     qm,
		index:     index,
		converter: converter,
	}
}

// stubConverter fabricates conversion results without touching real
// documents or the network
type stubConverter struct {
	fileErr    error
	urlResults []*models.ConversionResult
}

func (c *stubConverter) ConvertFile(ctx context.Context, fileName, mimeType string, data []byte) (*models.ConversionResult, error) {
	if c.fileErr != nil {
		return nil, c.fileErr
	}
	markdown := "---\ndocument_type: text\nsource_file: \"" + fileName + "\"\ntitle: \"" + fileName + "\"\n---\n\n" + string(data) + "\n"
	return &models.ConversionResult{
		Markdown: markdown,
		Metadata: models.DocumentMetadata{
			Title:        fileName,
			DocumentType: models.KindText,
			SourceFile:   fileName,
		},
	}, nil
}

func (c *stubConverter) ConvertURL(ctx context.Context, jobID, seedURL string, params models.CrawlParams) ([]*models.ConversionResult, error) {
	return c.urlResults, nil
}

// receive pulls one message off a stage queue, failing the test if empty
func (e *testEnv) receive(t *testing.T, name interfaces.QueueName) (*models.Envelope, interfaces.DeleteFunc) {
	t.Helper()
	env, del, err := e.queue.Receive(context.Background(), name)
	require.NoError(t, err)
	require.NotNil(t, env)
	return env, del
}

func (e *testEnv) getJob(t *testing.T, id string) *models.ProcessingJob {
	t.Helper()
	job, err := e.jobs.GetJob(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, job)
	return job
}

func TestSubmitFile(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	job, err := e.svc.SubmitFile(ctx, "user-1", "proj-1", "notes.txt", "text/plain", []byte("some notes"))
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusQueued, job.Status)
	assert.Equal(t, models.InputTypeFile, job.InputType)
	assert.True(t, len(job.ID) > len("job_"))

	stored, err := e.blobs.Get(ctx, job.InputSource)
	require.NoError(t, err)
	assert.Equal(t, []byte("some notes"), stored)

	env, _ := e.receive(t, interfaces.QueueProcessing)
	assert.Equal(t, models.MessageTypeProcessing, env.Type)
	var msg models.ProcessingJobMessage
	require.NoError(t, env.DecodeBody(&msg))
	assert.Equal(t, job.ID, msg.JobID)
	assert.Equal(t, "notes.txt", msg.FileName)
}

func TestSubmitFile_Empty(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.svc.SubmitFile(context.Background(), "user-1", "proj-1", "empty.txt", "", nil)
	require.Error(t, err)
}

func TestSubmitURL_InvalidSeed(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.svc.SubmitURL(context.Background(), "user-1", "proj-1", "ftp://example.com", models.CrawlParams{})
	require.Error(t, err)
	_, err = e.svc.SubmitURL(context.Background(), "user-1", "proj-1", "not a url", models.CrawlParams{})
	require.Error(t, err)
}

func TestSubmitURL_CarriesCrawlParams(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	job, err := e.svc.SubmitURL(ctx, "user-1", "proj-1", "https://example.com/docs", models.CrawlParams{MaxDepth: 3, MaxPages: 25})
	require.NoError(t, err)
	require.NotNil(t, job.Crawl)
	assert.Equal(t, 25, job.Crawl.MaxPages)

	env, _ := e.receive(t, interfaces.QueueProcessing)
	var msg models.ProcessingJobMessage
	require.NoError(t, env.DecodeBody(&msg))
	require.NotNil(t, msg.Crawl)
	assert.Equal(t, 3, msg.Crawl.MaxDepth)
}

func TestPipelineEndToEnd_File(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	body := "The quick brown fox jumps over the lazy dog. Badger storage keeps every artifact durable between stages."
	job, err := e.svc.SubmitFile(ctx, "user-1", "proj-1", "fox.txt", "text/plain", []byte(body))
	require.NoError(t, err)

	// Process
	env, del := e.receive(t, interfaces.QueueProcessing)
	require.NoError(t, e.svc.HandleProcessing(ctx, env))
	require.NoError(t, del())

	after := e.getJob(t, job.ID)
	assert.Equal(t, models.JobStatusChunking, after.Status)
	assert.Equal(t, 40, after.Progress)
	require.NotNil(t, after.Results)
	require.Equal(t, []string{job.ID + "/0.md"}, after.Results.MarkdownFiles)

	markdown, err := e.blobs.Get(ctx, job.ID+"/0.md")
	require.NoError(t, err)
	assert.Contains(t, string(markdown), "quick brown fox")

	// Chunk
	env, del = e.receive(t, interfaces.QueueChunking)
	require.NoError(t, e.svc.HandleChunking(ctx, env))
	require.NoError(t, del())

	after = e.getJob(t, job.ID)
	assert.Equal(t, models.JobStatusChunking, after.Status)
	assert.Equal(t, 70, after.Progress)
	require.Equal(t, []string{job.ID + "/0.chunks.jsonl"}, after.Results.ChunkFiles)
	// Results from the processing stage survive the merge
	assert.Equal(t, []string{job.ID + "/0.md"}, after.Results.MarkdownFiles)

	// Index
	env, del = e.receive(t, interfaces.QueueIndexing)
	require.NoError(t, e.svc.HandleIndexing(ctx, env))
	require.NoError(t, del())

	after = e.getJob(t, job.ID)
	assert.Equal(t, models.JobStatusCompleted, after.Status)
	assert.Equal(t, 100, after.Progress)
	assert.Greater(t, after.Results.IndexedDocuments, 0)
	assert.Zero(t, after.Results.FailedDocuments)
	assert.GreaterOrEqual(t, after.Results.ProcessingTimeMs, int64(0))

	count, err := e.index.Count(ctx, "proj-1")
	require.NoError(t, err)
	assert.Equal(t, after.Results.IndexedDocuments, count)

	docs, err := e.index.Search(ctx, "proj-1", "badger", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, docs)
}

func TestHandleProcessing_ConverterErrorFailsJob(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.converter.fileErr = errors.New("unsupported document format")

	job, err := e.svc.SubmitFile(ctx, "user-1", "proj-1", "bad.bin", "", []byte{1, 2, 3})
	require.NoError(t, err)

	env, del := e.receive(t, interfaces.QueueProcessing)
	require.NoError(t, e.svc.HandleProcessing(ctx, env))
	require.NoError(t, del())

	after := e.getJob(t, job.ID)
	assert.Equal(t, models.JobStatusFailed, after.Status)
	assert.Contains(t, after.ErrorMessage, "conversion failed")

	// The failure must not spawn a chunking message
	_, _, err = e.queue.Receive(ctx, interfaces.QueueChunking)
	assert.ErrorIs(t, err, models.ErrNoMessage)
}

func TestHandleProcessing_UnknownJobDropped(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	env, err := models.NewEnvelope(models.MessageTypeProcessing, &models.ProcessingJobMessage{
		JobID:     "job_missing",
		InputType: models.InputTypeFile,
	})
	require.NoError(t, err)

	// Nil return acknowledges: a deleted job's message must not redeliver
	require.NoError(t, e.svc.HandleProcessing(ctx, env))
}

func TestHandleProcessing_RedeliveryResendsChunkingHandoff(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	job, err := e.svc.SubmitFile(ctx, "user-1", "proj-1", "notes.txt", "", []byte("note body"))
	require.NoError(t, err)

	env, del := e.receive(t, interfaces.QueueProcessing)
	require.NoError(t, e.svc.HandleProcessing(ctx, env))
	require.NoError(t, del())

	// Simulate a crash between the advance-to-chunking write and the
	// chunking enqueue: the job sits at chunking but its handoff message
	// is gone.
	first, del := e.receive(t, interfaces.QueueChunking)
	require.NoError(t, del())

	// Redelivery of the processing message must re-send the handoff, not
	// drop it, or the job would be wedged at chunking forever.
	require.NoError(t, e.svc.HandleProcessing(ctx, env))

	resent, del := e.receive(t, interfaces.QueueChunking)
	require.NoError(t, del())

	var firstMsg, resentMsg models.ChunkingJobMessage
	require.NoError(t, first.DecodeBody(&firstMsg))
	require.NoError(t, resent.DecodeBody(&resentMsg))
	assert.Equal(t, firstMsg.MarkdownFiles, resentMsg.MarkdownFiles)
	assert.Equal(t, job.ID, resentMsg.JobID)

	after := e.getJob(t, job.ID)
	assert.Equal(t, models.JobStatusChunking, after.Status)

	// The re-sent handoff carries the pipeline forward normally
	require.NoError(t, e.svc.HandleChunking(ctx, resent))
	after = e.getJob(t, job.ID)
	assert.Equal(t, 70, after.Progress)
}

func TestHandleProcessing_RedeliveryAfterChunkingStageDropped(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	job, err := e.svc.SubmitFile(ctx, "user-1", "proj-1", "notes.txt", "", []byte("note body"))
	require.NoError(t, err)

	env, del := e.receive(t, interfaces.QueueProcessing)
	require.NoError(t, e.svc.HandleProcessing(ctx, env))
	require.NoError(t, del())

	chunkEnv, del := e.receive(t, interfaces.QueueChunking)
	require.NoError(t, e.svc.HandleChunking(ctx, chunkEnv))
	require.NoError(t, del())

	// The chunking stage already ran and its indexing handoff is queued;
	// a redelivered processing message now has nothing to recover and is
	// dropped without enqueueing anything further.
	require.NoError(t, e.svc.HandleProcessing(ctx, env))
	_, _, err = e.queue.Receive(ctx, interfaces.QueueChunking)
	assert.ErrorIs(t, err, models.ErrNoMessage)

	after := e.getJob(t, job.ID)
	assert.Equal(t, models.JobStatusChunking, after.Status)
	assert.Equal(t, 70, after.Progress)
}

func TestHandleProcessing_URLZeroPagesFailsJobButStoresDiagnostic(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	e.converter.urlResults = []*models.ConversionResult{{
		Markdown: "---\ndocument_type: url\nerror_summary: \"crawl produced no pages\"\n---\n\n# Crawl Failed\n\nNo pages retrieved.\n",
		Metadata: models.DocumentMetadata{
			Title:        "Crawl Failed",
			DocumentType: models.KindURL,
			SourceFile:   "https://blocked.example.com/",
			Error:        "crawl of https://blocked.example.com/ produced no pages (dominant failure: bot_detection)",
		},
	}}

	job, err := e.svc.SubmitURL(ctx, "user-1", "proj-1", "https://blocked.example.com/", models.CrawlParams{MaxPages: 5})
	require.NoError(t, err)

	env, del := e.receive(t, interfaces.QueueProcessing)
	require.NoError(t, e.svc.HandleProcessing(ctx, env))
	require.NoError(t, del())

	after := e.getJob(t, job.ID)
	assert.Equal(t, models.JobStatusFailed, after.Status)
	assert.Contains(t, after.ErrorMessage, "bot_detection")
	require.NotNil(t, after.Results)
	require.Len(t, after.Results.CrawlErrors, 1)

	// Diagnostic artifact is stored despite the failure
	diag, err := e.blobs.Get(ctx, job.ID+"/0.md")
	require.NoError(t, err)
	assert.Contains(t, string(diag), "# Crawl Failed")

	_, _, err = e.queue.Receive(ctx, interfaces.QueueChunking)
	assert.ErrorIs(t, err, models.ErrNoMessage)
}

func TestHandleProcessing_URLMultiPage(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	e.converter.urlResults = []*models.ConversionResult{
		{
			Markdown: "---\ndocument_type: url\n---\n\nHome page content with enough words to chunk.\n",
			Metadata: models.DocumentMetadata{SourceFile: "https://example.com/", PagesCrawled: 2},
		},
		{
			Markdown: "---\ndocument_type: url\n---\n\nDocs page content with enough words to chunk.\n",
			Metadata: models.DocumentMetadata{SourceFile: "https://example.com/docs", PagesCrawled: 2},
		},
	}

	job, err := e.svc.SubmitURL(ctx, "user-1", "proj-1", "https://example.com/", models.CrawlParams{MaxPages: 10})
	require.NoError(t, err)

	env, del := e.receive(t, interfaces.QueueProcessing)
	require.NoError(t, e.svc.HandleProcessing(ctx, env))
	require.NoError(t, del())

	after := e.getJob(t, job.ID)
	assert.Equal(t, models.JobStatusChunking, after.Status)
	assert.Equal(t, 2, after.Results.PagesCrawled)
	assert.Equal(t, []string{job.ID + "/0.md", job.ID + "/1.md"}, after.Results.MarkdownFiles)
}

func TestHandleChunking_EmptyDocumentsSkipped(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	job, err := e.svc.SubmitFile(ctx, "user-1", "proj-1", "notes.txt", "", []byte("real content to keep"))
	require.NoError(t, err)

	// Move the job into the chunking stage by hand with one empty and one
	// real markdown blob.
	chunking := models.JobStatusChunking
	processing := models.JobStatusProcessing
	require.NoError(t, e.jobs.UpdateJob(ctx, job.ID, &models.JobUpdate{Status: &processing}))
	require.NoError(t, e.jobs.UpdateJob(ctx, job.ID, &models.JobUpdate{Status: &chunking}))

	_, err = e.blobs.Put(ctx, job.ID+"/0.md", []byte("---\ntitle: \"empty\"\n---\n"), nil)
	require.NoError(t, err)
	_, err = e.blobs.Put(ctx, job.ID+"/1.md", []byte("Real body that chunks fine."), nil)
	require.NoError(t, err)

	env, err := models.NewEnvelope(models.MessageTypeChunking, &models.ChunkingJobMessage{
		JobID:         job.ID,
		ProjectID:     "proj-1",
		MarkdownFiles: []string{job.ID + "/0.md", job.ID + "/1.md"},
	})
	require.NoError(t, err)
	require.NoError(t, e.svc.HandleChunking(ctx, env))

	after := e.getJob(t, job.ID)
	assert.Equal(t, 70, after.Progress)
	assert.Equal(t, []string{job.ID + "/1.chunks.jsonl"}, after.Results.ChunkFiles)
}

func TestHandleChunking_AllEmptyFailsJob(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	job, err := e.svc.SubmitFile(ctx, "user-1", "proj-1", "notes.txt", "", []byte("x"))
	require.NoError(t, err)

	chunking := models.JobStatusChunking
	processing := models.JobStatusProcessing
	require.NoError(t, e.jobs.UpdateJob(ctx, job.ID, &models.JobUpdate{Status: &processing}))
	require.NoError(t, e.jobs.UpdateJob(ctx, job.ID, &models.JobUpdate{Status: &chunking}))

	_, err = e.blobs.Put(ctx, job.ID+"/0.md", []byte("---\ntitle: \"empty\"\n---\n"), nil)
	require.NoError(t, err)

	env, err := models.NewEnvelope(models.MessageTypeChunking, &models.ChunkingJobMessage{
		JobID:         job.ID,
		ProjectID:     "proj-1",
		MarkdownFiles: []string{job.ID + "/0.md"},
	})
	require.NoError(t, err)
	require.NoError(t, e.svc.HandleChunking(ctx, env))

	after := e.getJob(t, job.ID)
	assert.Equal(t, models.JobStatusFailed, after.Status)
	assert.Contains(t, after.ErrorMessage, "no chunks")
}

func TestReactivateStuckJobs(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	job, err := e.svc.SubmitURL(ctx, "user-1", "proj-1", "https://example.com/", models.CrawlParams{MaxDepth: 2, MaxPages: 8})
	require.NoError(t, err)

	// Drain the submission message and wedge the job in processing
	_, del := e.receive(t, interfaces.QueueProcessing)
	require.NoError(t, del())
	processing := models.JobStatusProcessing
	require.NoError(t, e.jobs.UpdateJob(ctx, job.ID, &models.JobUpdate{Status: &processing}))

	time.Sleep(20 * time.Millisecond)

	count, err := e.svc.ReactivateStuckJobs(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	after := e.getJob(t, job.ID)
	assert.Equal(t, models.JobStatusQueued, after.Status)
	assert.Empty(t, after.ErrorMessage)

	// The message is rebuilt from the job record, crawl bounds included
	env, _ := e.receive(t, interfaces.QueueProcessing)
	var msg models.ProcessingJobMessage
	require.NoError(t, env.DecodeBody(&msg))
	assert.Equal(t, job.ID, msg.JobID)
	require.NotNil(t, msg.Crawl)
	assert.Equal(t, 8, msg.Crawl.MaxPages)
}

func TestReactivateStuckJobs_FreshJobsUntouched(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	job, err := e.svc.SubmitFile(ctx, "user-1", "proj-1", "notes.txt", "", []byte("body"))
	require.NoError(t, err)
	processing := models.JobStatusProcessing
	require.NoError(t, e.jobs.UpdateJob(ctx, job.ID, &models.JobUpdate{Status: &processing}))

	count, err := e.svc.ReactivateStuckJobs(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, count)

	after := e.getJob(t, job.ID)
	assert.Equal(t, models.JobStatusProcessing, after.Status)
}
