package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var replyTemplate = template.Must(template.New("reply.html").Funcs(template.FuncMap{
	"join": strings.Join,
	"formatDate": func(t time.Time, layout string) string {
		if t.IsZero() {
			return ""
		}
		return t.Format(layout)
	},
}).ParseFS(templateFS, "templates/reply.html"))

type TemplateTopic struct {
	Title string
	HTML  template.HTML
}

// TemplateData holds data for reply template rendering
type TemplateData struct {
	Subject     string
	Requester   string
	Departments []string
	Topics      []TemplateTopic
	CommitHash  string
	AssembledAt time.Time
}

// RenderReplyHTML renders the reply template with provided data
func RenderReplyHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := replyTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
