package services

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf/v2"

	"github.com/caesarus-droid/audio-ink/internal/domain"
)

// Exporter renders transcript text into a downloadable PDF document. It is a
// pure content-to-bytes function with no job-state side effects.
type Exporter struct{}

func NewExporter() *Exporter {
	return &Exporter{}
}

func (e *Exporter) Render(job domain.Job, content string) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("Transcript %s", job.ID), false)
	pdf.SetAuthor("audio-ink", false)
	pdf.AddPage()

	title := strings.TrimSpace(job.SourceName)
	if title == "" {
		title = "Transcript"
	}

	pdf.SetFont("Helvetica", "B", 18)
	pdf.MultiCell(0, 10, title, "", "L", false)
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "", 10)
	meta := fmt.Sprintf("Created: %s", job.CreatedAt.Local().Format("02 Jan 2006 15:04"))
	if job.Language != "" {
		meta += fmt.Sprintf("  ·  Language: %s", job.Language)
	}
	pdf.Cell(0, 6, meta)
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 12)
	for _, line := range strings.Split(strings.TrimSpace(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			pdf.Ln(4)
			continue
		}
		pdf.MultiCell(0, 6, line, "", "L", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
