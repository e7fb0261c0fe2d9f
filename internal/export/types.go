// Package export renders assembled ticket replies as HTML, PDF or DOCX.
package export

import (
	"errors"
	"time"
)

type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

func ParseFormat(value string) (Format, bool) {
	switch Format(value) {
	case FormatHTML, FormatPDF, FormatDOCX:
		return Format(value), true
	case "":
		return FormatPDF, true
	default:
		return "", false
	}
}

type Request struct {
	TicketID string
	Version  string // "latest" or commit hash
	Format   Format
	Archive  bool
}

// Document is the assembled reply as it will be printed. Topic fields hold
// rendered text, one per reply topic.
type Document struct {
	TicketID    string
	Subject     string
	Requester   string
	Departments []string
	Situation   string
	Guidance    string
	NextSteps   string
	CommitHash  string
	AssembledAt time.Time
}

type Result struct {
	Data       []byte
	Filename   string
	MimeType   string
	ArchiveKey string
}

var (
	// ErrContentUnavailable indicates the reply could not be loaded for export.
	ErrContentUnavailable = errors.New("export content unavailable")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing indicates DOCX export runtime dependencies are unavailable.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
)
