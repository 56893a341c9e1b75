package reporting

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
)

// HTMLResultsFilename is the report file written into the run directory.
const HTMLResultsFilename = "results.html"

//go:embed templates/*.html.tmpl
var templateFS embed.FS

// HTMLRenderer writes a self-contained HTML report. Screenshots are inlined.
type HTMLRenderer struct {
	dir  string
	tmpl *template.Template
}

func NewHTMLRenderer(dir string) (*HTMLRenderer, error) {
	tmpl, err := template.New("report.html.tmpl").Funcs(templateFuncs()).ParseFS(templateFS, "templates/report.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to parse report template: %w", err)
	}
	return &HTMLRenderer{dir: dir, tmpl: tmpl}, nil
}

// Path returns where the report is written.
func (h *HTMLRenderer) Path() string {
	return filepath.Join(h.dir, HTMLResultsFilename)
}

func (h *HTMLRenderer) Render(r *Report) error {
	var buf bytes.Buffer
	if err := h.tmpl.Execute(&buf, r); err != nil {
		return fmt.Errorf("failed to execute report template: %w", err)
	}
	if err := os.MkdirAll(h.dir, 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	if err := os.WriteFile(h.Path(), buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write HTML report: %w", err)
	}
	return nil
}
