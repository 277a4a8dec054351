package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"docchat/internal/chunker"
	"docchat/internal/logging"
	"docchat/internal/model"
	"docchat/internal/pkg/pdfextract"
	"docchat/internal/repository"
	"docchat/internal/storage"
	"docchat/internal/vectorstore"
)

const defaultEmbeddingBatchSize = 10

var ErrNoExtractableText = errors.New("document has no extractable text")

// Publisher hands a JSON payload to a named queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, payload any) error
}

// ExtractFunc turns stored PDF bytes into plain text.
type ExtractFunc func(r io.Reader) (string, error)

// IngestJob asks for one document to be embedded under Tenant.
type IngestJob struct {
	DocumentID uint   `json:"document_id"`
	Tenant     string `json:"tenant"`
	IsPublic   bool   `json:"is_public"`
}

type IngestResult struct {
	Filename string `json:"filename"`
	Chunks   int    `json:"chunks"`
	Error    string `json:"error,omitempty"`
}

type IngestConfig struct {
	BatchSize int
	Queue     string
}

type IngestService struct {
	docRepo    *repository.DocumentRepository
	recordRepo *repository.IngestRecordRepository
	userRepo   *repository.UserRepository
	store      storage.Storage
	vectors    vectorstore.Store
	chunker    *chunker.Chunker
	embedder   Embedder
	extract    ExtractFunc
	publisher  Publisher
	cfg        IngestConfig
	logger     *slog.Logger
}

// NewIngestService builds the ingestion pipeline. A nil publisher runs dispatched jobs inline.
func NewIngestService(
	docRepo *repository.DocumentRepository,
	recordRepo *repository.IngestRecordRepository,
	userRepo *repository.UserRepository,
	store storage.Storage,
	vectors vectorstore.Store,
	ch *chunker.Chunker,
	embedder Embedder,
	publisher Publisher,
	cfg IngestConfig,
) *IngestService {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultEmbeddingBatchSize
	}
	return &IngestService{
		docRepo:    docRepo,
		recordRepo: recordRepo,
		userRepo:   userRepo,
		store:      store,
		vectors:    vectors,
		chunker:    ch,
		embedder:   embedder,
		extract:    pdfextract.ExtractText,
		publisher:  publisher,
		cfg:        cfg,
		logger:     logging.NewModuleLogger("ingest", "service"),
	}
}

// WithExtractor replaces the PDF text extractor.
func (s *IngestService) WithExtractor(fn ExtractFunc) *IngestService {
	if fn != nil {
		s.extract = fn
	}
	return s
}

// Dispatch queues the job when a publisher is configured and runs it inline otherwise.
func (s *IngestService) Dispatch(ctx context.Context, job IngestJob) error {
	if s.publisher != nil && s.cfg.Queue != "" {
		return s.publisher.Publish(ctx, s.cfg.Queue, job)
	}
	_, err := s.Run(ctx, job)
	return err
}

// Run executes one queued ingestion job.
func (s *IngestService) Run(ctx context.Context, job IngestJob) (*model.IngestRecord, error) {
	if job.DocumentID == 0 || strings.TrimSpace(job.Tenant) == "" {
		return nil, ErrInvalidInput
	}
	doc, err := s.docRepo.GetByID(ctx, job.DocumentID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}
	return s.ingest(ctx, doc, job.Tenant, job.IsPublic)
}

// IngestAllPublic ingests every public document under the public tenant.
func (s *IngestService) IngestAllPublic(ctx context.Context) ([]IngestResult, error) {
	docs, err := s.docRepo.ListByOwner(ctx, model.PublicOwner)
	if err != nil {
		return nil, err
	}
	return s.ingestEach(ctx, docs, func(model.Document) (string, bool) {
		return model.PublicOwner, true
	}), nil
}

// IngestOne ingests the document named filename privately for tenant, or publicly when tenant is empty.
func (s *IngestService) IngestOne(ctx context.Context, filename, tenant string) (*model.IngestRecord, error) {
	if strings.TrimSpace(tenant) == "" {
		return s.IngestPublic(ctx, filename)
	}
	return s.IngestPrivate(ctx, filename, tenant)
}

func (s *IngestService) IngestPublic(ctx context.Context, filename string) (*model.IngestRecord, error) {
	doc, err := s.findByFilename(ctx, filename)
	if err != nil {
		return nil, err
	}
	return s.ingest(ctx, doc, model.PublicOwner, true)
}

// IngestPrivate ingests any document on behalf of an existing user.
func (s *IngestService) IngestPrivate(ctx context.Context, filename, tenant string) (*model.IngestRecord, error) {
	tenant = strings.TrimSpace(tenant)
	if tenant == "" {
		return nil, ErrInvalidInput
	}
	user, err := s.userRepo.GetByUsername(ctx, tenant)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	doc, err := s.findByFilename(ctx, filename)
	if err != nil {
		return nil, err
	}
	return s.ingest(ctx, doc, tenant, false)
}

// IngestAllOwn ingests every document the user uploaded, keeping each document's visibility.
func (s *IngestService) IngestAllOwn(ctx context.Context, username string) ([]IngestResult, error) {
	docs, err := s.docRepo.ListByUploader(ctx, username)
	if err != nil {
		return nil, err
	}
	return s.ingestEach(ctx, docs, func(d model.Document) (string, bool) {
		return username, d.IsPublic
	}), nil
}

func (s *IngestService) IngestOwn(ctx context.Context, username, filename string) (*model.IngestRecord, error) {
	doc, err := s.docRepo.FindByUploaderAndFilename(ctx, username, filename)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}
	return s.ingest(ctx, doc, username, doc.IsPublic)
}

func (s *IngestService) findByFilename(ctx context.Context, filename string) (*model.Document, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, ErrInvalidInput
	}
	doc, err := s.docRepo.FindByFilename(ctx, filename)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}
	return doc, nil
}

func (s *IngestService) ingestEach(ctx context.Context, docs []model.Document, target func(model.Document) (string, bool)) []IngestResult {
	results := make([]IngestResult, 0, len(docs))
	for i := range docs {
		tenant, isPublic := target(docs[i])
		res := IngestResult{Filename: docs[i].Filename}
		record, err := s.ingest(ctx, &docs[i], tenant, isPublic)
		if err != nil {
			res.Error = err.Error()
		} else {
			res.Chunks = record.ChunkCount
		}
		results = append(results, res)
	}
	return results
}

func (s *IngestService) ingest(ctx context.Context, doc *model.Document, tenant string, isPublic bool) (*model.IngestRecord, error) {
	body, _, err := s.store.Get(ctx, doc.StorageKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}
	text, err := s.extract(body)
	_ = body.Close()
	if err != nil {
		return nil, fmt.Errorf("extract %s failed: %w", doc.Filename, err)
	}

	pieces := s.chunker.Split(text)
	if len(pieces) == 0 {
		return nil, ErrNoExtractableText
	}

	chunks := make([]vectorstore.Chunk, 0, len(pieces))
	for start := 0; start < len(pieces); start += s.cfg.BatchSize {
		end := min(start+s.cfg.BatchSize, len(pieces))
		vectors, err := s.embedder.EmbedBatch(ctx, pieces[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed %s failed: %w", doc.Filename, err)
		}
		for i, vec := range vectors {
			chunks = append(chunks, vectorstore.Chunk{
				ID:         uuid.NewString(),
				DocumentID: doc.ID,
				Source:     doc.Filename,
				Tenant:     tenant,
				IsPublic:   isPublic,
				Content:    pieces[start+i],
				Embedding:  vec,
			})
		}
	}

	if err := s.vectors.AddChunks(ctx, chunks); err != nil {
		return nil, err
	}

	record := &model.IngestRecord{
		DocumentID: doc.ID,
		Filename:   doc.Filename,
		IngestedBy: tenant,
		IsPublic:   isPublic,
		ChunkCount: len(chunks),
	}
	if err := s.recordRepo.Create(ctx, record); err != nil {
		return nil, err
	}
	s.logger.Info("document ingested", "filename", doc.Filename, "tenant", tenant, "public", isPublic, "chunks", len(chunks))
	return record, nil
}

// RemoveSource drops every chunk of filename across all tenants.
func (s *IngestService) RemoveSource(ctx context.Context, filename string) error {
	if strings.TrimSpace(filename) == "" {
		return ErrInvalidInput
	}
	if err := s.vectors.DeleteChunks(ctx, vectorstore.ChunkFilter{Source: filename}); err != nil {
		return err
	}
	return s.recordRepo.DeleteByFilename(ctx, filename)
}

// RemoveTenant drops every chunk ingested for tenant.
func (s *IngestService) RemoveTenant(ctx context.Context, tenant string) error {
	if strings.TrimSpace(tenant) == "" {
		return ErrInvalidInput
	}
	if err := s.vectors.DeleteChunks(ctx, vectorstore.ChunkFilter{Tenant: tenant}); err != nil {
		return err
	}
	return s.recordRepo.DeleteByTenant(ctx, tenant)
}

func (s *IngestService) RemoveAll(ctx context.Context) error {
	if err := s.vectors.DeleteAllChunks(ctx); err != nil {
		return err
	}
	return s.recordRepo.DeleteAll(ctx)
}

// RemoveOwnSource drops the chunks of filename that were ingested for username.
func (s *IngestService) RemoveOwnSource(ctx context.Context, username, filename string) error {
	if strings.TrimSpace(username) == "" || strings.TrimSpace(filename) == "" {
		return ErrInvalidInput
	}
	if err := s.vectors.DeleteChunks(ctx, vectorstore.ChunkFilter{Source: filename, Tenant: username}); err != nil {
		return err
	}
	return s.recordRepo.DeleteByFilenameAndTenant(ctx, filename, username)
}

func (s *IngestService) ListAllSources(ctx context.Context) ([]vectorstore.SourceInfo, error) {
	return s.vectors.ListAllSources(ctx)
}

// ListVisibleSources lists sources ingested for tenant plus public ones.
func (s *IngestService) ListVisibleSources(ctx context.Context, tenant string) ([]vectorstore.SourceInfo, error) {
	return s.vectors.ListSources(ctx, tenant)
}

func (s *IngestService) ListRecords(ctx context.Context) ([]model.IngestRecord, error) {
	return s.recordRepo.List(ctx)
}

func (s *IngestService) ListOwnRecords(ctx context.Context, tenant string) ([]model.IngestRecord, error) {
	return s.recordRepo.ListByTenant(ctx, tenant)
}

func (s *IngestService) PurgeTenant(ctx context.Context, tenant string) error {
	return s.RemoveTenant(ctx, tenant)
}
