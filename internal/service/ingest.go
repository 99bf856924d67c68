package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/stayline/concierge/internal/config"
	"github.com/stayline/concierge/internal/domain"
	"github.com/stayline/concierge/internal/domain/document"
	"github.com/stayline/concierge/internal/port/embedding"
	"github.com/stayline/concierge/internal/port/messagequeue"
	"github.com/stayline/concierge/internal/port/vectorstore"
)

var ingestTracer = otel.Tracer("concierge/ingest")

// Document statuses as a job moves through the pipeline.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusReady      = "ready"
	StatusError      = "error"
)

// DocumentInfo holds the in-memory state of one ingestion job.
type DocumentInfo struct {
	DocID      string    `json:"doc_id"`
	TenantID   string    `json:"tenant_id"`
	Source     string    `json:"source"`
	Status     string    `json:"status"`
	ChunkCount int       `json:"chunk_count"`
	Error      string    `json:"error,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Extractor pulls plain text out of a stored upload.
type Extractor func(path string) (string, error)

// IngestService accepts document uploads, queues them, and runs the
// extract-chunk-embed-upsert worker.
type IngestService struct {
	queue    messagequeue.Queue
	embedder embedding.Embedder
	vectors  vectorstore.Store
	extract  Extractor
	cfg      *config.Ingest

	mu   sync.RWMutex
	docs map[string]*DocumentInfo

	chunkCounter metric.Int64Counter
	jobDuration  metric.Float64Histogram
}

// NewIngestService creates an IngestService.
func NewIngestService(queue messagequeue.Queue, embedder embedding.Embedder, vectors vectorstore.Store, extract Extractor, cfg *config.Ingest) *IngestService {
	meter := otel.Meter("concierge/ingest")
	chunkCounter, _ := meter.Int64Counter("concierge.ingest.chunks",
		metric.WithDescription("Chunks embedded and upserted"))
	jobDuration, _ := meter.Float64Histogram("concierge.ingest.job.duration",
		metric.WithDescription("Ingestion job latency in seconds"), metric.WithUnit("s"))

	return &IngestService{
		queue:        queue,
		embedder:     embedder,
		vectors:      vectors,
		extract:      extract,
		cfg:          cfg,
		docs:         make(map[string]*DocumentInfo),
		chunkCounter: chunkCounter,
		jobDuration:  jobDuration,
	}
}

// Enqueue stores the upload on disk and publishes an ingestion job. The
// HTTP handler returns the doc id immediately; the pipeline runs async.
func (s *IngestService) Enqueue(ctx context.Context, tenantID, filename string, r io.Reader) (*DocumentInfo, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenant id is required", domain.ErrValidation)
	}
	if filename == "" {
		return nil, fmt.Errorf("%w: filename is required", domain.ErrValidation)
	}

	docID := uuid.NewString()
	if err := os.MkdirAll(s.cfg.UploadDir, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	// Keep the original extension so the extractor can pick a format.
	path := filepath.Join(s.cfg.UploadDir, docID+filepath.Ext(filename))
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create upload file: %w", err)
	}
	written, err := io.Copy(f, io.LimitReader(r, s.cfg.MaxUploadBytes+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("store upload: %w", err)
	}
	if written > s.cfg.MaxUploadBytes {
		_ = os.Remove(path)
		return nil, fmt.Errorf("%w: upload exceeds %d bytes", domain.ErrValidation, s.cfg.MaxUploadBytes)
	}

	payload := messagequeue.EmbedJobPayload{
		TenantID: tenantID,
		FilePath: path,
		DocID:    docID,
		Source:   filename,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal ingest job: %w", err)
	}
	if err := s.queue.Publish(ctx, messagequeue.SubjectIngestJob, data); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("%w: publish ingest job: %w", domain.ErrQueue, err)
	}

	info := &DocumentInfo{
		DocID:     docID,
		TenantID:  tenantID,
		Source:    filename,
		Status:    StatusQueued,
		UpdatedAt: time.Now(),
	}
	s.setInfo(info)

	slog.Info("document queued", "doc_id", docID, "tenant_id", tenantID, "source", filename, "bytes", written)
	return info, nil
}

// HandleJob is the queue handler for ingestion jobs. Transient failures
// (embedding, vector writes) return an error so the queue redelivers;
// permanent failures (bad payload, unreadable document) are recorded and
// acked so they do not loop forever.
func (s *IngestService) HandleJob(ctx context.Context, _ string, data []byte) error {
	var job messagequeue.EmbedJobPayload
	if err := json.Unmarshal(data, &job); err != nil {
		slog.Error("ingest job payload malformed", "error", err)
		return nil
	}
	if job.DocID == "" || job.TenantID == "" || job.FilePath == "" {
		slog.Error("ingest job payload incomplete", "doc_id", job.DocID, "tenant_id", job.TenantID)
		return nil
	}

	start := time.Now()
	ctx, span := ingestTracer.Start(ctx, "ingest.job", trace.WithAttributes(
		attribute.String("tenant.id", job.TenantID),
		attribute.String("doc.id", job.DocID),
	))
	defer span.End()

	s.setStatus(job, StatusProcessing, 0, "")

	count, err := s.process(ctx, job)
	if err != nil {
		s.setStatus(job, StatusError, 0, err.Error())
		if errors.Is(err, domain.ErrExtraction) || errors.Is(err, domain.ErrValidation) {
			slog.Error("document rejected", "doc_id", job.DocID, "error", err)
			return nil
		}
		slog.Warn("ingest job failed, will redeliver", "doc_id", job.DocID, "error", err)
		return err
	}

	s.setStatus(job, StatusReady, count, "")
	s.chunkCounter.Add(ctx, int64(count), metric.WithAttributes(attribute.String("tenant.id", job.TenantID)))
	s.jobDuration.Record(ctx, time.Since(start).Seconds())
	slog.Info("document indexed", "doc_id", job.DocID, "tenant_id", job.TenantID, "chunks", count,
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

// process runs one job end to end and returns the number of chunks
// written.
func (s *IngestService) process(ctx context.Context, job messagequeue.EmbedJobPayload) (int, error) {
	text, err := s.extract(job.FilePath)
	if err != nil {
		return 0, fmt.Errorf("extract %s: %w", job.Source, err)
	}

	chunks, err := document.ChunkText(text, s.cfg.ChunkSize, s.cfg.ChunkOverlap)
	if err != nil {
		return 0, fmt.Errorf("chunk: %w", err)
	}
	if len(chunks) == 0 {
		return 0, fmt.Errorf("%w: document is empty", domain.ErrExtraction)
	}

	// Embed chunks concurrently but keep record order by index. Vector
	// ids derive from doc id and chunk index, so re-running this job
	// overwrites rather than duplicates.
	records := make([]vectorstore.Record, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.EmbedWorkers)
	for i, chunk := range chunks {
		g.Go(func() error {
			vec, err := s.embedder.Embed(gctx, chunk.Text)
			if err != nil {
				return fmt.Errorf("embed chunk %d: %w", chunk.Index, err)
			}
			records[i] = vectorstore.Record{
				ID:        fmt.Sprintf("%s-%d", job.DocID, chunk.Index),
				Embedding: vec,
				Metadata: map[string]any{
					"text":        chunk.Text,
					"doc_id":      job.DocID,
					"source":      job.Source,
					"chunk_index": chunk.Index,
				},
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	if err := s.vectors.Upsert(ctx, job.TenantID, records); err != nil {
		return 0, fmt.Errorf("upsert %d records: %w", len(records), err)
	}
	return len(records), nil
}

// GetStatus returns the tracked state of an ingestion job.
func (s *IngestService) GetStatus(docID string) (*DocumentInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.docs[docID]
	if !ok {
		return nil, fmt.Errorf("%w: document %q", domain.ErrNotFound, docID)
	}
	out := *info
	return &out, nil
}

func (s *IngestService) setInfo(info *DocumentInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[info.DocID] = info
}

func (s *IngestService) setStatus(job messagequeue.EmbedJobPayload, status string, chunks int, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.docs[job.DocID]
	if !ok {
		// The job may have been enqueued by another instance; track it
		// here so status polls against this one still answer.
		info = &DocumentInfo{DocID: job.DocID, TenantID: job.TenantID, Source: job.Source}
		s.docs[job.DocID] = info
	}
	info.Status = status
	info.ChunkCount = chunks
	info.Error = errMsg
	info.UpdatedAt = time.Now()
}
