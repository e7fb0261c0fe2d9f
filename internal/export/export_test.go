package export

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeSource struct {
	doc Document
	err error
}

func (f fakeSource) ExportDocument(context.Context, string, string) (Document, error) {
	return f.doc, f.err
}

type memoryArchive struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

func (m *memoryArchive) Put(_ context.Context, key string, data []byte, _ string) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[key] = data
	return nil
}

func (m *memoryArchive) URL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "memory://" + key, nil
}

func sampleDocument() Document {
	return Document{
		TicketID:    "tkt_1",
		Subject:     "Driveway apron & curb cut",
		Requester:   "resident@example.com",
		Departments: []string{"Planning & Zoning", "Public Works"},
		Situation:   "Understanding:\nResident wants a wider apron\n\nProperty Facts:\n• Zoning: R-1 (Planning & Zoning)",
		Guidance:    "Recommendations:\n• Apply for a curb cut permit",
		CommitHash:  "abc1234",
		AssembledAt: time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC),
	}
}

func TestTopicToHTML(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "empty", input: "", expected: ""},
		{name: "heading and paragraph", input: "Understanding:\nNeeds a permit", expected: "<h4>Understanding</h4>\n<p>Needs a permit</p>\n"},
		{name: "bullets", input: "• one\n• two", expected: "<ul>\n<li>one</li>\n<li>two</li>\n</ul>\n"},
		{name: "numbered", input: "Actions:\n1. Call\n2. File", expected: "<h4>Actions</h4>\n<ol>\n<li>Call</li>\n<li>File</li>\n</ol>\n"},
		{name: "escapes", input: "<b>x</b>", expected: "<p>&lt;b&gt;x&lt;/b&gt;</p>\n"},
		{name: "fact line is not a heading", input: "• Zoning: R-1", expected: "<ul>\n<li>Zoning: R-1</li>\n</ul>\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TopicToHTML(tt.input); got != tt.expected {
				t.Errorf("TopicToHTML(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Simple Title", "Simple-Title"},
		{"With/Slashes\\And:Colons", "WithSlashesAndColons"},
		{"", "reply"},
		{"!!!", "reply"},
		{strings.Repeat("a", 60), strings.Repeat("a", 50)},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := sanitizeFilename(tt.input); got != tt.expected {
				t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello world", "hello%20world"},
		{"test+sign", "test%2Bsign"},
		{"special<>", "special%3C%3E"},
		{"normal-text.txt", "normal-text.txt"},
		{"é", "%C3%A9"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := percentEncodeForDataURL(tt.input); got != tt.expected {
				t.Errorf("percentEncodeForDataURL(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestRenderHTMLSkipsEmptyTopics(t *testing.T) {
	page, err := RenderHTML(sampleDocument())
	if err != nil {
		t.Fatalf("RenderHTML() error = %v", err)
	}
	for _, want := range []string{
		"Driveway apron &amp; curb cut",
		"<h2>Situation</h2>",
		"<h2>Guidance</h2>",
		"<li>Apply for a curb cut permit</li>",
		"Planning &amp; Zoning, Public Works",
		"Reply version abc1234",
		"Mar 4, 2026",
	} {
		if !strings.Contains(page, want) {
			t.Errorf("page missing %q", want)
		}
	}
	if strings.Contains(page, "<h2>Next Steps</h2>") {
		t.Error("empty topic should not be rendered")
	}
	if strings.Contains(page, "&lt;li&gt;") {
		t.Error("topic HTML was escaped twice")
	}
}

func TestExportHTMLArchives(t *testing.T) {
	archive := &memoryArchive{}
	svc := NewService(fakeSource{doc: sampleDocument()}, nil, WithArchive(archive))

	result, err := svc.Export(context.Background(), Request{TicketID: "tkt_1", Version: "latest", Format: FormatHTML, Archive: true})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if result.Filename != "Driveway-apron--curb-cut.html" {
		t.Fatalf("unexpected filename %q", result.Filename)
	}
	if result.ArchiveKey != "tickets/tkt_1/abc1234.html" {
		t.Fatalf("unexpected archive key %q", result.ArchiveKey)
	}
	if _, ok := archive.objects[result.ArchiveKey]; !ok {
		t.Fatal("expected export to be archived")
	}
}

func TestExportArchiveFailureIsNotFatal(t *testing.T) {
	svc := NewService(fakeSource{doc: sampleDocument()}, nil, WithArchive(&memoryArchive{err: errors.New("bucket down")}))
	result, err := svc.Export(context.Background(), Request{TicketID: "tkt_1", Format: FormatHTML, Archive: true})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if result.ArchiveKey != "" {
		t.Fatalf("expected no archive key, got %q", result.ArchiveKey)
	}
}

func TestExportUsesRenderers(t *testing.T) {
	var received string
	svc := NewService(fakeSource{doc: sampleDocument()}, nil,
		WithPDFRenderer(func(_ context.Context, html string) ([]byte, error) {
			received = html
			return []byte("%PDF"), nil
		}),
		WithDOCXRenderer(func(context.Context, string) ([]byte, error) {
			return nil, ErrDOCXDependencyMissing
		}),
	)

	result, err := svc.Export(context.Background(), Request{TicketID: "tkt_1", Format: FormatPDF})
	if err != nil {
		t.Fatalf("Export(pdf) error = %v", err)
	}
	if string(result.Data) != "%PDF" || result.MimeType != "application/pdf" {
		t.Fatalf("unexpected pdf result: %+v", result)
	}
	if !strings.Contains(received, "<h2>Situation</h2>") {
		t.Fatal("pdf renderer did not receive the reply page")
	}

	if _, err := svc.Export(context.Background(), Request{TicketID: "tkt_1", Format: FormatDOCX}); !errors.Is(err, ErrDOCXDependencyMissing) {
		t.Fatalf("expected docx dependency error, got %v", err)
	}
	if _, err := svc.Export(context.Background(), Request{TicketID: "tkt_1", Format: "odt"}); err == nil {
		t.Fatal("expected unsupported format error")
	}
}

func TestExportMissingContent(t *testing.T) {
	svc := NewService(fakeSource{err: errors.New("no reply")}, nil)
	_, err := svc.Export(context.Background(), Request{TicketID: "tkt_1", Format: FormatHTML})
	if !errors.Is(err, ErrContentUnavailable) {
		t.Fatalf("expected ErrContentUnavailable, got %v", err)
	}
}

func TestParseFormat(t *testing.T) {
	if f, ok := ParseFormat(""); !ok || f != FormatPDF {
		t.Fatalf("empty format should default to pdf")
	}
	if _, ok := ParseFormat("odt"); ok {
		t.Fatal("odt should be rejected")
	}
}
