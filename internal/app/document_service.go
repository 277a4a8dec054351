package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"docchat/internal/logging"
	"docchat/internal/model"
	"docchat/internal/repository"
	"docchat/internal/storage"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrNoValidPDF       = errors.New("no valid pdfs uploaded")
)

const (
	deleteErrNotInDatabase = "Not found in database"
	deleteErrNotOnDisk     = "File not found on disk"
)

// KeyFunc maps a document owner and filename to a storage key.
type KeyFunc func(owner, filename string) string

// LocalKey lays documents out as {owner}/{filename}.
func LocalKey(owner, filename string) string {
	return path.Join(owner, filename)
}

// ObjectKey lays documents out as users/{owner}/{uuid8}_{filename} so re-uploads never overwrite in place.
func ObjectKey(owner, filename string) string {
	return path.Join("users", owner, uuid.NewString()[:8]+"_"+filename)
}

// IngestDispatcher schedules ingestion of a freshly uploaded document.
type IngestDispatcher interface {
	Dispatch(ctx context.Context, job IngestJob) error
}

type DocumentService struct {
	docRepo       *repository.DocumentRepository
	store         storage.Storage
	objectKey     KeyFunc
	presignExpiry time.Duration
	dispatcher    IngestDispatcher
	logger        *slog.Logger
}

type UploadFile struct {
	Filename string
	Size     int64
	Body     io.Reader
}

// UploadInput describes one upload request. AsAdmin makes public uploads ingest under the public tenant.
type UploadInput struct {
	Uploader string
	AsAdmin  bool
	IsPublic bool
	Files    []UploadFile
}

type UploadResult struct {
	Uploaded []string `json:"uploaded"`
	Skipped  []string `json:"skipped,omitempty"`
}

type DeleteError struct {
	Filename string `json:"filename"`
	Error    string `json:"error"`
}

type DeleteResult struct {
	Deleted []string      `json:"deleted"`
	Errors  []DeleteError `json:"errors"`
}

// Download carries either a presigned URL or an open body the caller must close.
type Download struct {
	Document *model.Document
	URL      string
	Body     io.ReadCloser
	Info     storage.ObjectInfo
}

// NewDocumentService wires the catalog to its byte store. dispatcher may be nil to disable auto-ingest.
func NewDocumentService(
	docRepo *repository.DocumentRepository,
	store storage.Storage,
	objectKey KeyFunc,
	presignExpiry time.Duration,
	dispatcher IngestDispatcher,
) *DocumentService {
	if objectKey == nil {
		objectKey = LocalKey
	}
	if presignExpiry <= 0 {
		presignExpiry = time.Hour
	}
	return &DocumentService{
		docRepo:       docRepo,
		store:         store,
		objectKey:     objectKey,
		presignExpiry: presignExpiry,
		dispatcher:    dispatcher,
		logger:        logging.NewModuleLogger("document", "service"),
	}
}

// Upload stores every .pdf file under the uploader, or under the public owner when IsPublic is set.
// Other files are skipped. Auto-ingest failures are logged and never fail the upload.
func (s *DocumentService) Upload(ctx context.Context, input UploadInput) (*UploadResult, error) {
	uploader := strings.TrimSpace(input.Uploader)
	if uploader == "" {
		return nil, ErrInvalidInput
	}
	owner := uploader
	if input.IsPublic {
		owner = model.PublicOwner
	}

	result := &UploadResult{Uploaded: []string{}}
	for _, f := range input.Files {
		filename := path.Base(strings.ReplaceAll(strings.TrimSpace(f.Filename), `\`, "/"))
		if !isPDFName(filename) || f.Body == nil {
			result.Skipped = append(result.Skipped, f.Filename)
			continue
		}

		doc, err := s.saveFile(ctx, owner, uploader, filename, input.IsPublic, f)
		if err != nil {
			return nil, err
		}
		result.Uploaded = append(result.Uploaded, filename)

		if s.dispatcher != nil {
			job := IngestJob{DocumentID: doc.ID, Tenant: uploader, IsPublic: doc.IsPublic}
			if input.AsAdmin && doc.IsPublic {
				job.Tenant = model.PublicOwner
			}
			if err := s.dispatcher.Dispatch(ctx, job); err != nil {
				s.logger.Warn("auto ingest failed", "filename", filename, "document_id", doc.ID, "err", err)
			}
		}
	}

	if len(result.Uploaded) == 0 {
		return nil, ErrNoValidPDF
	}
	return result, nil
}

func (s *DocumentService) saveFile(ctx context.Context, owner, uploader, filename string, isPublic bool, f UploadFile) (*model.Document, error) {
	previous, err := s.docRepo.GetByOwnerAndFilename(ctx, owner, filename)
	if err != nil {
		return nil, err
	}

	key := s.objectKey(owner, filename)
	size := f.Size
	if size <= 0 {
		size = -1
	}
	info, err := s.store.Put(ctx, key, f.Body, storage.PutObjectOptions{
		Size:        size,
		ContentType: "application/pdf",
		Metadata:    map[string]string{"uploaded-by": uploader},
	})
	if err != nil {
		return nil, fmt.Errorf("store %s failed: %w", filename, err)
	}

	doc := &model.Document{
		Filename:   filename,
		Owner:      owner,
		UploadedBy: uploader,
		IsPublic:   isPublic,
		StorageKey: key,
		Size:       info.Size,
	}
	if err := s.docRepo.Save(ctx, doc); err != nil {
		// A replaced file under the same key still backs the previous row.
		if previous != nil && previous.StorageKey == key {
			return nil, err
		}
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			return nil, fmt.Errorf("%w; rollback delete failed: %v", err, delErr)
		}
		return nil, err
	}

	if previous != nil && previous.StorageKey != key {
		if err := s.store.Delete(ctx, previous.StorageKey); err != nil {
			s.logger.Warn("remove replaced object failed", "key", previous.StorageKey, "err", err)
		}
	}
	return doc, nil
}

func (s *DocumentService) List(ctx context.Context) ([]model.Document, error) {
	return s.docRepo.List(ctx)
}

func (s *DocumentService) ListByUploader(ctx context.Context, uploader string) ([]model.Document, error) {
	if strings.TrimSpace(uploader) == "" {
		return nil, ErrInvalidInput
	}
	return s.docRepo.ListByUploader(ctx, uploader)
}

// DeleteOwn removes documents the user uploaded, looked up by filename.
func (s *DocumentService) DeleteOwn(ctx context.Context, uploader string, filenames []string) (*DeleteResult, error) {
	if len(filenames) == 0 {
		return nil, ErrInvalidInput
	}
	return s.deleteEach(ctx, filenames, func(filename string) (*model.Document, error) {
		return s.docRepo.FindByUploaderAndFilename(ctx, uploader, filename)
	}), nil
}

// DeleteAny removes the first document matching each filename regardless of owner.
func (s *DocumentService) DeleteAny(ctx context.Context, filenames []string) (*DeleteResult, error) {
	if len(filenames) == 0 {
		return nil, ErrInvalidInput
	}
	return s.deleteEach(ctx, filenames, func(filename string) (*model.Document, error) {
		return s.docRepo.FindByFilename(ctx, filename)
	}), nil
}

// DeletePublic removes the named public documents, or every public document when filenames is empty.
func (s *DocumentService) DeletePublic(ctx context.Context, filenames []string) (*DeleteResult, error) {
	if len(filenames) == 0 {
		docs, err := s.docRepo.ListByOwner(ctx, model.PublicOwner)
		if err != nil {
			return nil, err
		}
		for _, d := range docs {
			filenames = append(filenames, d.Filename)
		}
	}
	return s.deleteEach(ctx, filenames, func(filename string) (*model.Document, error) {
		return s.docRepo.GetByOwnerAndFilename(ctx, model.PublicOwner, filename)
	}), nil
}

func (s *DocumentService) deleteEach(ctx context.Context, filenames []string, lookup func(string) (*model.Document, error)) *DeleteResult {
	result := &DeleteResult{Deleted: []string{}, Errors: []DeleteError{}}
	for _, filename := range filenames {
		doc, err := lookup(filename)
		if err != nil {
			result.Errors = append(result.Errors, DeleteError{Filename: filename, Error: err.Error()})
			continue
		}
		if doc == nil {
			result.Errors = append(result.Errors, DeleteError{Filename: filename, Error: deleteErrNotInDatabase})
			continue
		}
		if err := s.remove(ctx, doc); err != nil {
			msg := err.Error()
			if errors.Is(err, storage.ErrNotFound) {
				msg = deleteErrNotOnDisk
			}
			result.Errors = append(result.Errors, DeleteError{Filename: filename, Error: msg})
			continue
		}
		result.Deleted = append(result.Deleted, filename)
	}
	return result
}

// remove deletes the stored bytes and then the catalog row. Chunks already ingested stay in the vector store.
func (s *DocumentService) remove(ctx context.Context, doc *model.Document) error {
	if _, err := s.store.Stat(ctx, doc.StorageKey); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, doc.StorageKey); err != nil {
		return err
	}
	return s.docRepo.DeleteByID(ctx, doc.ID)
}

// Download resolves a document the user may read: one they uploaded, one they own, or a public one.
func (s *DocumentService) Download(ctx context.Context, username string, id uint) (*Download, error) {
	doc, err := s.docRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil || !(doc.IsPublic || doc.Owner == username || doc.UploadedBy == username) {
		return nil, ErrDocumentNotFound
	}

	url, err := s.store.PresignGet(ctx, doc.StorageKey, s.presignExpiry)
	if err == nil {
		return &Download{Document: doc, URL: url}, nil
	}
	if !errors.Is(err, storage.ErrPresignUnsupported) {
		return nil, err
	}

	body, info, err := s.store.Get(ctx, doc.StorageKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &Download{Document: doc, Body: body, Info: info}, nil
}

// PurgeTenant removes every document owned by tenant along with its bytes.
func (s *DocumentService) PurgeTenant(ctx context.Context, tenant string) error {
	docs, err := s.docRepo.ListByOwner(ctx, tenant)
	if err != nil {
		return err
	}
	var errs []error
	for i := range docs {
		if err := s.store.Delete(ctx, docs[i].StorageKey); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := s.docRepo.DeleteByID(ctx, docs[i].ID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func isPDFName(filename string) bool {
	return filename != "" && filename != "." && filename != "/" && strings.EqualFold(path.Ext(filename), ".pdf")
}
