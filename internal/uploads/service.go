package uploads

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nclamvn/prismy-production-sub017/pkg/db/models"
	"github.com/nclamvn/prismy-production-sub017/pkg/enums"
	pkgerrors "github.com/nclamvn/prismy-production-sub017/pkg/errors"
	"github.com/nclamvn/prismy-production-sub017/pkg/logger"
)

const chunkContentType = "application/octet-stream"

type sessionsRepository interface {
	CreateSession(ctx context.Context, session *models.UploadSession) (*models.UploadSession, error)
	FindSessionByID(ctx context.Context, id uuid.UUID) (*models.UploadSession, error)
	SaveChunk(ctx context.Context, chunk *models.UploadChunk) error
	RefreshChunkCount(ctx context.Context, sessionID uuid.UUID) (int, error)
	CompleteSession(ctx context.Context, id uuid.UUID) error
	DeleteChunks(ctx context.Context, sessionID uuid.UUID) error
}

type documentsRepository interface {
	Create(ctx context.Context, doc *models.Document) (*models.Document, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type objectStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	Download(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// Service exposes chunked-upload semantics: session registration, chunk
// ingestion, and reassembly into a document.
type Service interface {
	RegisterSession(ctx context.Context, userID uuid.UUID, input RegisterInput) (*SessionOutput, error)
	StoreChunk(ctx context.Context, userID, sessionID uuid.UUID, index int, data []byte) (*ChunkOutput, error)
	Complete(ctx context.Context, userID uuid.UUID, input CompleteInput) (*CompleteOutput, error)
}

type service struct {
	sessions       sessionsRepository
	documents      documentsRepository
	store          objectStore
	logg           *logger.Logger
	maxUploadBytes int64
	maxChunks      int
}

// NewService constructs an uploads service backed by the provided repositories
// and object store.
func NewService(sessions sessionsRepository, documents documentsRepository, store objectStore, logg *logger.Logger, maxUploadBytes int64, maxChunks int) (Service, error) {
	if sessions == nil {
		return nil, fmt.Errorf("sessions repository required")
	}
	if documents == nil {
		return nil, fmt.Errorf("documents repository required")
	}
	if store == nil {
		return nil, fmt.Errorf("object store required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if maxUploadBytes <= 0 {
		return nil, fmt.Errorf("max upload bytes must be positive")
	}
	if maxChunks <= 0 {
		return nil, fmt.Errorf("max chunks must be positive")
	}
	return &service{
		sessions:       sessions,
		documents:      documents,
		store:          store,
		logg:           logg,
		maxUploadBytes: maxUploadBytes,
		maxChunks:      maxChunks,
	}, nil
}

// RegisterInput models the payload required to open an upload session.
type RegisterInput struct {
	FileName    string
	TotalSize   int64
	TotalChunks int
}

// SessionOutput is returned to the client after session registration.
type SessionOutput struct {
	UploadID    uuid.UUID          `json:"upload_id"`
	Status      enums.UploadStatus `json:"status"`
	TotalChunks int                `json:"total_chunks"`
}

// ChunkOutput reports chunk-ingestion progress.
type ChunkOutput struct {
	UploadID       uuid.UUID `json:"upload_id"`
	ChunkIndex     int       `json:"chunk_index"`
	ChunksUploaded int       `json:"chunks_uploaded"`
	TotalChunks    int       `json:"total_chunks"`
}

// CompleteInput models the reassembly request.
type CompleteInput struct {
	UploadID uuid.UUID
	FileName string
	FileSize int64
	FileType string
}

// CompleteOutput carries the identity of the assembled document.
type CompleteOutput struct {
	FileID uuid.UUID `json:"file_id"`
}

func (s *service) RegisterSession(ctx context.Context, userID uuid.UUID, input RegisterInput) (*SessionOutput, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user identity missing")
	}

	fileName := strings.TrimSpace(input.FileName)
	if fileName == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "file_name is required")
	}
	if input.TotalSize <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "total_size must be positive")
	}
	if input.TotalSize > s.maxUploadBytes {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("total_size must be at most %d bytes", s.maxUploadBytes))
	}
	if input.TotalChunks <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "total_chunks must be positive")
	}
	if input.TotalChunks > s.maxChunks {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("total_chunks must be at most %d", s.maxChunks))
	}

	session := &models.UploadSession{
		ID:          uuid.New(),
		UserID:      userID,
		FileName:    fileName,
		TotalSize:   input.TotalSize,
		TotalChunks: input.TotalChunks,
		Status:      enums.UploadStatusPending,
	}
	if _, err := s.sessions.CreateSession(ctx, session); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist upload session")
	}

	return &SessionOutput{
		UploadID:    session.ID,
		Status:      session.Status,
		TotalChunks: session.TotalChunks,
	}, nil
}

func (s *service) StoreChunk(ctx context.Context, userID, sessionID uuid.UUID, index int, data []byte) (*ChunkOutput, error) {
	session, err := s.loadOwnedSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != enums.UploadStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "upload session already finalized")
	}
	if index < 0 || index >= session.TotalChunks {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("chunk index must be in [0, %d)", session.TotalChunks))
	}
	if len(data) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "chunk body is empty")
	}
	if int64(len(data)) > session.TotalSize {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "chunk exceeds declared total size")
	}

	key := chunkKey(session.ID, index)
	if err := s.store.Upload(ctx, key, data, chunkContentType); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store chunk bytes")
	}

	chunk := &models.UploadChunk{
		ID:         uuid.New(),
		SessionID:  session.ID,
		ChunkIndex: index,
		SizeBytes:  int64(len(data)),
		StorageKey: key,
	}
	if err := s.sessions.SaveChunk(ctx, chunk); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist chunk row")
	}

	count, err := s.sessions.RefreshChunkCount(ctx, session.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "refresh chunk count")
	}

	return &ChunkOutput{
		UploadID:       session.ID,
		ChunkIndex:     index,
		ChunksUploaded: count,
		TotalChunks:    session.TotalChunks,
	}, nil
}

func (s *service) Complete(ctx context.Context, userID uuid.UUID, input CompleteInput) (*CompleteOutput, error) {
	session, err := s.loadOwnedSession(ctx, userID, input.UploadID)
	if err != nil {
		return nil, err
	}
	if session.Status != enums.UploadStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "upload already completed")
	}

	fileName := strings.TrimSpace(input.FileName)
	if fileName == "" {
		fileName = session.FileName
	}
	if strings.TrimSpace(input.FileType) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "file_type is required")
	}
	if input.FileSize <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "file_size must be positive")
	}

	if session.ChunksUploaded != session.TotalChunks {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("incomplete upload: %d of %d chunks stored", session.ChunksUploaded, session.TotalChunks))
	}

	// strict index order: reassembly is not commutative
	var assembled bytes.Buffer
	for index := 0; index < session.TotalChunks; index++ {
		data, err := s.store.Download(ctx, chunkKey(session.ID, index))
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("missing chunk %d", index))
		}
		assembled.Write(data)
	}

	if int64(assembled.Len()) != input.FileSize {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("size mismatch: declared %d bytes, assembled %d", input.FileSize, assembled.Len()))
	}

	docID := uuid.New()
	cleanName := sanitizeFileName(fileName)
	if cleanName == "" {
		cleanName = docID.String()
	}
	finalKey := fmt.Sprintf("documents/%s/%s", docID, cleanName)

	if err := s.store.Upload(ctx, finalKey, assembled.Bytes(), input.FileType); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist assembled object")
	}

	doc := &models.Document{
		ID:          docID,
		UserID:      userID,
		FileName:    fileName,
		FileSize:    input.FileSize,
		MimeType:    input.FileType,
		StoragePath: finalKey,
		Status:      enums.DocumentStatusUploaded,
	}
	if _, err := s.documents.Create(ctx, doc); err != nil {
		s.bestEffortDelete(ctx, finalKey)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist document record")
	}

	if err := s.sessions.CompleteSession(ctx, session.ID); err != nil {
		if errors.Is(err, ErrSessionConflict) {
			// another caller finalized first; undo our writes
			if delErr := s.documents.Delete(ctx, docID); delErr != nil {
				s.logg.Error(ctx, "undo document record after lost completion race", delErr)
			}
			s.bestEffortDelete(ctx, finalKey)
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "upload already completed")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "finalize upload session")
	}

	s.cleanupChunks(ctx, session)

	return &CompleteOutput{FileID: docID}, nil
}

func (s *service) loadOwnedSession(ctx context.Context, userID, sessionID uuid.UUID) (*models.UploadSession, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user identity missing")
	}
	if sessionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "upload id is required")
	}

	session, err := s.sessions.FindSessionByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "upload session not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load upload session")
	}
	if session.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "upload session belongs to another user")
	}
	return session, nil
}

// cleanupChunks is best effort: the session is already complete, so failures
// are logged and never surfaced.
func (s *service) cleanupChunks(ctx context.Context, session *models.UploadSession) {
	for index := 0; index < session.TotalChunks; index++ {
		s.bestEffortDelete(ctx, chunkKey(session.ID, index))
	}
	if err := s.sessions.DeleteChunks(ctx, session.ID); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "session_id", session.ID.String()), "chunk row cleanup failed")
	}
}

func (s *service) bestEffortDelete(ctx context.Context, key string) {
	if err := s.store.Delete(ctx, key); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "object_key", key), "object cleanup failed")
	}
}

func chunkKey(sessionID uuid.UUID, index int) string {
	return fmt.Sprintf("uploads/%s/chunks/%d", sessionID, index)
}

func sanitizeFileName(name string) string {
	if name == "" {
		return ""
	}
	clean := path.Base(strings.TrimSpace(name))
	if clean == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(clean))
	for _, r := range clean {
		switch {
		case r == '/' || r == '\\' || unicode.IsControl(r):
			continue
		case unicode.IsSpace(r):
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "-_.")
}
