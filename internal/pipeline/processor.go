package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nclamvn/prismy-production-sub017/internal/documents"
	"github.com/nclamvn/prismy-production-sub017/pkg/db/models"
	"github.com/nclamvn/prismy-production-sub017/pkg/enums"
	pkgerrors "github.com/nclamvn/prismy-production-sub017/pkg/errors"
	"github.com/nclamvn/prismy-production-sub017/pkg/logger"
	"github.com/nclamvn/prismy-production-sub017/pkg/metrics"
)

const (
	stageDownload    = "download"
	stageExtraction  = "extraction"
	stageTranslation = "translation"
	stageRebuild     = "rebuild"
)

type documentStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Document, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.DocumentStatus, fields map[string]any) error
	MarkFailed(ctx context.Context, id uuid.UUID, message string) error
}

type objectStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	Download(ctx context.Context, key string) ([]byte, error)
}

// Processor drives one document through extract → translate → rebuild,
// persisting a status transition before each stage. All outcomes land on the
// document record; the returned error exists for the dispatch layer's
// ack/nack decision only.
type Processor struct {
	docs         documentStore
	store        objectStore
	extractor    Extractor
	translator   Translator
	rebuilder    Rebuilder
	logg         *logger.Logger
	metrics      *metrics.PipelineMetrics
	stageTimeout time.Duration
}

// NewProcessor constructs a pipeline processor.
func NewProcessor(docs documentStore, store objectStore, extractor Extractor, translator Translator, rebuilder Rebuilder, logg *logger.Logger, pm *metrics.PipelineMetrics, stageTimeout time.Duration) (*Processor, error) {
	if docs == nil {
		return nil, fmt.Errorf("document store required")
	}
	if store == nil {
		return nil, fmt.Errorf("object store required")
	}
	if extractor == nil {
		return nil, fmt.Errorf("extractor required")
	}
	if translator == nil {
		return nil, fmt.Errorf("translator required")
	}
	if rebuilder == nil {
		return nil, fmt.Errorf("rebuilder required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if stageTimeout <= 0 {
		return nil, fmt.Errorf("stage timeout must be positive")
	}
	return &Processor{
		docs:         docs,
		store:        store,
		extractor:    extractor,
		translator:   translator,
		rebuilder:    rebuilder,
		logg:         logg,
		metrics:      pm,
		stageTimeout: stageTimeout,
	}, nil
}

// Process runs the pipeline for one document. The claim transition
// (uploaded → processing) makes concurrent duplicate runs lose the race
// instead of double-processing.
func (p *Processor) Process(ctx context.Context, documentID uuid.UUID) error {
	ctx = p.logg.WithDocumentID(ctx, documentID.String())

	doc, err := p.docs.FindByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "document not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load document")
	}

	kind := ResolveKind(doc.MimeType)
	if kind == KindUnsupported {
		message := fmt.Sprintf("unsupported media type: %s", doc.MimeType)
		if failErr := p.docs.MarkFailed(ctx, doc.ID, message); failErr != nil && !errors.Is(failErr, documents.ErrStatusConflict) {
			p.logg.Error(ctx, "persist unsupported-type failure", failErr)
		}
		p.observeFailure("entry")
		return pkgerrors.New(pkgerrors.CodeUnsupportedMedia, message)
	}

	if err := p.docs.TransitionStatus(ctx, doc.ID, enums.DocumentStatusUploaded, enums.DocumentStatusProcessing, nil); err != nil {
		if errors.Is(err, documents.ErrStatusConflict) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "document already claimed by another run")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim document")
	}

	stage, err := p.run(ctx, doc, kind)
	if err != nil {
		if errors.Is(err, documents.ErrStatusConflict) {
			// another writer owns the record now; leave it alone
			return pkgerrors.New(pkgerrors.CodeStateConflict, "document status changed mid-run")
		}
		p.observeFailure(stage)
		p.logg.Error(ctx, "pipeline run failed", err)
		if failErr := p.docs.MarkFailed(ctx, doc.ID, err.Error()); failErr != nil && !errors.Is(failErr, documents.ErrStatusConflict) {
			p.logg.Error(ctx, "persist pipeline failure", failErr)
		}
		return err
	}

	if p.metrics != nil {
		p.metrics.IncCompleted()
	}
	p.logg.Info(ctx, "pipeline run completed")
	return nil
}

// run executes stages 2–5. It returns the stage that failed alongside the
// error; earlier stage outputs are deliberately left in place on failure.
func (p *Processor) run(ctx context.Context, doc *models.Document, kind Kind) (string, error) {
	var data []byte
	err := p.stage(ctx, stageDownload, func(ctx context.Context) error {
		var err error
		data, err = p.store.Download(ctx, doc.StoragePath)
		return err
	})
	if err != nil {
		return stageDownload, fmt.Errorf("download failed: %w", err)
	}

	if err := p.docs.TransitionStatus(ctx, doc.ID, enums.DocumentStatusProcessing, enums.DocumentStatusOCRProcessing, nil); err != nil {
		return stageExtraction, err
	}

	var extraction *Extraction
	err = p.stage(ctx, stageExtraction, func(ctx context.Context) error {
		var err error
		extraction, err = p.extractor.Extract(ctx, data, kind)
		return err
	})
	if err != nil {
		return stageExtraction, fmt.Errorf("extraction failed: %w", err)
	}

	if err := p.docs.TransitionStatus(ctx, doc.ID, enums.DocumentStatusOCRProcessing, enums.DocumentStatusTranslationProcessing, map[string]any{
		"extracted_text":    extraction.Text,
		"detected_language": extraction.Language,
	}); err != nil {
		return stageTranslation, err
	}

	sourceLang := extraction.Language
	if doc.SourceLanguage != nil && *doc.SourceLanguage != "" {
		sourceLang = *doc.SourceLanguage
	}
	targetLang := ""
	if doc.TargetLanguage != nil {
		targetLang = *doc.TargetLanguage
	}

	var translated string
	err = p.stage(ctx, stageTranslation, func(ctx context.Context) error {
		var err error
		translated, err = p.translator.Translate(ctx, extraction.Text, sourceLang, targetLang)
		return err
	})
	if err != nil {
		return stageTranslation, fmt.Errorf("translation failed: %w", err)
	}

	if err := p.docs.TransitionStatus(ctx, doc.ID, enums.DocumentStatusTranslationProcessing, enums.DocumentStatusRebuilding, map[string]any{
		"translated_text": translated,
	}); err != nil {
		return stageRebuild, err
	}

	var output []byte
	var contentType string
	outputKey := outputObjectKey(doc)
	err = p.stage(ctx, stageRebuild, func(ctx context.Context) error {
		var err error
		output, contentType, err = p.rebuilder.Rebuild(ctx, translated, kind, extraction.Layout)
		if err != nil {
			return err
		}
		return p.store.Upload(ctx, outputKey, output, contentType)
	})
	if err != nil {
		return stageRebuild, fmt.Errorf("rebuild failed: %w", err)
	}

	if err := p.docs.TransitionStatus(ctx, doc.ID, enums.DocumentStatusRebuilding, enums.DocumentStatusCompleted, map[string]any{
		"output_file_path": outputKey,
		"processed_at":     time.Now().UTC(),
	}); err != nil {
		return stageRebuild, err
	}

	return "", nil
}

// stage runs fn under the per-stage deadline and records its duration.
func (p *Processor) stage(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	stageCtx, cancel := context.WithTimeout(ctx, p.stageTimeout)
	defer cancel()

	started := time.Now()
	err := fn(stageCtx)
	if p.metrics != nil {
		p.metrics.ObserveStage(name, time.Since(started))
	}
	return err
}

func (p *Processor) observeFailure(stage string) {
	if p.metrics != nil {
		p.metrics.IncFailed(stage)
	}
}

// outputObjectKey names the rebuilt object deterministically from the
// document identity and original filename.
func outputObjectKey(doc *models.Document) string {
	name := path.Base(doc.FileName)
	if name == "" || name == "." || name == "/" {
		name = doc.ID.String()
	}
	return fmt.Sprintf("output/%s/%s", doc.ID, name)
}
