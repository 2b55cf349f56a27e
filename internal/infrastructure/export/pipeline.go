// Package export renders computed report payloads into downloadable
// artifacts. Renderers only see the payload; they never query farm data.
package export

import (
	"context"
	"time"

	"github.com/orchard/backend/internal/domain/report"
	"github.com/orchard/backend/internal/domain/shared"
	"github.com/orchard/backend/internal/infrastructure/storage"
	"go.uber.org/zap"
)

const defaultTitle = "Orchard report"

// PDFConverter turns a rendered HTML document into PDF bytes
type PDFConverter interface {
	Convert(ctx context.Context, html []byte) ([]byte, error)
}

// MetricsRecorder receives one observation per export attempt
type MetricsRecorder interface {
	RecordExport(ctx context.Context, format report.Format, err error)
}

// Pipeline renders payloads into export artifacts
type Pipeline struct {
	now     func() time.Time
	title   string
	pdf     PDFConverter
	storage storage.ArtifactStorage
	metrics MetricsRecorder
	logger  *zap.Logger
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithClock overrides the clock used for the generation timestamp
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// WithTitle sets the document title
func WithTitle(title string) Option {
	return func(p *Pipeline) {
		if title != "" {
			p.title = title
		}
	}
}

// WithPDFConverter makes document exports produce PDF instead of HTML
func WithPDFConverter(c PDFConverter) Option {
	return func(p *Pipeline) {
		p.pdf = c
	}
}

// WithArtifactStorage enables Publish
func WithArtifactStorage(s storage.ArtifactStorage) Option {
	return func(p *Pipeline) {
		p.storage = s
	}
}

// WithMetrics sets the export metrics recorder
func WithMetrics(m MetricsRecorder) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithPipelineLogger sets the logger
func WithPipelineLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPipeline creates an export pipeline
func NewPipeline(opts ...Option) *Pipeline {
	p := &Pipeline{
		now:    time.Now,
		title:  defaultTitle,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Render renders payload in the requested format. The whole artifact is
// built in memory; on error nothing is returned.
func (p *Pipeline) Render(ctx context.Context, payload *report.Payload, format report.Format) (*report.Artifact, error) {
	artifact, err := p.render(ctx, payload, format)
	if p.metrics != nil {
		p.metrics.RecordExport(ctx, format, err)
	}
	if err != nil {
		p.logger.Warn("Export render failed", zap.String("format", string(format)), zap.Error(err))
		return nil, err
	}
	return artifact, nil
}

func (p *Pipeline) render(ctx context.Context, payload *report.Payload, format report.Format) (*report.Artifact, error) {
	if !format.IsValid() {
		_, err := report.ParseFormat(string(format))
		return nil, err
	}
	if payload == nil {
		return nil, shared.NewDomainError(shared.CodeRenderError, "payload is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, shared.WrapDomainError(shared.CodeRenderError, "export cancelled", err)
	}

	generatedAt := p.now().UTC().Truncate(time.Second)

	switch format {
	case report.FormatSpreadsheet:
		data, err := renderSpreadsheet(payload, generatedAt)
		if err != nil {
			return nil, shared.WrapDomainError(shared.CodeRenderError, "render spreadsheet", err)
		}
		return &report.Artifact{
			Format:      format,
			ContentType: "text/csv; charset=utf-8",
			Extension:   "csv",
			Data:        data,
			GeneratedAt: generatedAt,
		}, nil
	default:
		html, err := renderDocument(p.title, payload, generatedAt)
		if err != nil {
			return nil, shared.WrapDomainError(shared.CodeRenderError, "render document", err)
		}
		if p.pdf == nil {
			return &report.Artifact{
				Format:      format,
				ContentType: "text/html; charset=utf-8",
				Extension:   "html",
				Data:        html,
				GeneratedAt: generatedAt,
			}, nil
		}
		pdf, err := p.pdf.Convert(ctx, html)
		if err != nil {
			return nil, shared.WrapDomainError(shared.CodeRenderError, "convert document to pdf", err)
		}
		return &report.Artifact{
			Format:      format,
			ContentType: "application/pdf",
			Extension:   "pdf",
			Data:        pdf,
			GeneratedAt: generatedAt,
		}, nil
	}
}

// ArtifactName is the storage name of an artifact rendered for a report key
func ArtifactName(key string, artifact *report.Artifact) string {
	return key + "." + artifact.Extension
}

// Publish writes a rendered artifact to the configured storage under
// <key>.<ext>.
func (p *Pipeline) Publish(ctx context.Context, key string, artifact *report.Artifact) (*storage.StoredArtifact, error) {
	if p.storage == nil {
		return nil, shared.NewDomainError(shared.CodeRenderError, "artifact storage is not configured")
	}
	if artifact == nil || key == "" {
		return nil, shared.NewDomainError(shared.CodeRenderError, "artifact and key are required")
	}

	stored, err := p.storage.Put(ctx, ArtifactName(key, artifact), artifact.ContentType, artifact.Data)
	if err != nil {
		return nil, shared.WrapDomainError(shared.CodeRenderError, "store artifact", err)
	}

	p.logger.Info("Export artifact stored",
		zap.String("name", stored.Name),
		zap.String("location", stored.Location),
		zap.Int64("size", stored.Size),
	)
	return stored, nil
}

var _ report.Exporter = (*Pipeline)(nil)
