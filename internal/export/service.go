package export

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"

	"go.uber.org/zap"

	"onereply/api/internal/atoms"
)

// Source loads the reply to export. version is "latest" or a commit hash.
type Source interface {
	ExportDocument(ctx context.Context, ticketID, version string) (Document, error)
}

// Renderer turns a standalone HTML page into another format.
type Renderer func(ctx context.Context, html string) ([]byte, error)

type Service struct {
	source  Source
	archive Archiver
	pdf     Renderer
	docx    Renderer
	logger  *zap.Logger
}

type Option func(*Service)

func WithArchive(archive Archiver) Option {
	return func(s *Service) { s.archive = archive }
}

func WithPDFRenderer(r Renderer) Option {
	return func(s *Service) { s.pdf = r }
}

func WithDOCXRenderer(r Renderer) Option {
	return func(s *Service) { s.docx = r }
}

func NewService(source Source, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		source: source,
		pdf:    renderPDF,
		docx:   renderDOCX,
		logger: logger.Named("export"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	doc, err := s.source.ExportDocument(ctx, req.TicketID, req.Version)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContentUnavailable, err)
	}

	page, err := RenderHTML(doc)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	base := sanitizeFilename(doc.Subject)
	var result *Result
	switch req.Format {
	case FormatHTML:
		result = &Result{Data: []byte(page), Filename: base + ".html", MimeType: "text/html; charset=utf-8"}
	case FormatPDF:
		data, err := s.pdf(ctx, page)
		if err != nil {
			return nil, err
		}
		result = &Result{Data: data, Filename: base + ".pdf", MimeType: "application/pdf"}
	case FormatDOCX:
		data, err := s.docx(ctx, page)
		if err != nil {
			return nil, err
		}
		result = &Result{Data: data, Filename: base + ".docx", MimeType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document"}
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}

	if req.Archive && s.archive != nil {
		version := doc.CommitHash
		if version == "" {
			version = req.Version
		}
		key := ArchiveKey(doc.TicketID, version, req.Format)
		if err := s.archive.Put(ctx, key, result.Data, result.MimeType); err != nil {
			s.logger.Warn("archive export failed", zap.String("ticket_id", doc.TicketID), zap.String("key", key), zap.Error(err))
		} else {
			result.ArchiveKey = key
		}
	}
	return result, nil
}

// RenderHTML builds the printable page for a reply. Empty topics are left
// out.
func RenderHTML(doc Document) (string, error) {
	if doc.TicketID == "" && doc.Subject == "" {
		return "", errors.New("document has no ticket")
	}
	data := TemplateData{
		Subject:     doc.Subject,
		Requester:   doc.Requester,
		Departments: doc.Departments,
		CommitHash:  doc.CommitHash,
		AssembledAt: doc.AssembledAt,
	}
	texts := map[atoms.TopicKey]string{
		atoms.TopicSituation: doc.Situation,
		atoms.TopicGuidance:  doc.Guidance,
		atoms.TopicNextSteps: doc.NextSteps,
	}
	for _, topic := range atoms.Topics {
		text := strings.TrimSpace(texts[topic])
		if text == "" {
			continue
		}
		data.Topics = append(data.Topics, TemplateTopic{
			Title: topic.Title(),
			HTML:  template.HTML(TopicToHTML(text)),
		})
	}
	return RenderReplyHTML(data)
}
