// Package report renders job reports as PDF documents.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"codeberg.org/go-pdf/fpdf"

	"github.com/aescanero/quizsolver/pkg/domain"
)

// Config controls page layout
type Config struct {
	PageSize   string
	MarginsMM  float64
	FontFamily string
	Compress   bool
}

// DefaultConfig returns an A4 layout with Helvetica
func DefaultConfig() Config {
	return Config{
		PageSize:   "A4",
		MarginsMM:  15,
		FontFamily: "Helvetica",
		Compress:   true,
	}
}

// Generator writes job reports
type Generator struct {
	cfg Config
}

// NewGenerator creates a report generator
func NewGenerator(cfg Config) *Generator {
	return &Generator{cfg: cfg}
}

// Generate writes a PDF report of the job to w
func (g *Generator) Generate(ctx context.Context, job *domain.Job, w io.Writer) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}

	pdf := fpdf.New("P", "mm", g.cfg.PageSize, "")
	pdf.SetCompression(g.cfg.Compress)
	pdf.SetMargins(g.cfg.MarginsMM, g.cfg.MarginsMM, g.cfg.MarginsMM)
	pdf.SetAutoPageBreak(true, g.cfg.MarginsMM)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	title := fmt.Sprintf("Quiz job %s", job.ID)
	pdf.SetTitle(title, true)
	pdf.AddPage()

	pdf.SetFont(g.cfg.FontFamily, "B", 18)
	pdf.CellFormat(0, 12, tr(title), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont(g.cfg.FontFamily, "", 11)
	summary := [][2]string{
		{"Email", job.Email},
		{"Start URL", job.StartURL},
		{"Current URL", job.CurrentURL},
		{"Status", string(job.Status)},
		{"Submitted", formatTime(&job.SubmittedAt)},
		{"Started", formatTime(job.StartedAt)},
		{"Completed", formatTime(job.CompletedAt)},
		{"Deadline", formatTime(&job.Deadline)},
		{"Answers", fmt.Sprintf("%d submitted, %d correct", len(job.Attempts), job.CorrectCount())},
	}
	if job.Error != "" {
		summary = append(summary, [2]string{"Error", job.Error})
	}
	for _, row := range summary {
		g.field(pdf, tr, row[0], row[1])
	}

	for i, a := range job.Attempts {
		if err := ctx.Err(); err != nil {
			return err
		}

		pdf.Ln(6)
		pdf.SetFont(g.cfg.FontFamily, "B", 13)
		pdf.CellFormat(0, 8, tr(fmt.Sprintf("Attempt %d", i+1)), "B", 1, "L", false, 0, "")
		pdf.SetFont(g.cfg.FontFamily, "", 11)

		result := "incorrect"
		if a.Correct {
			result = "correct"
		}
		g.field(pdf, tr, "Quiz URL", a.QuizURL)
		g.field(pdf, tr, "Submit URL", a.SubmitURL)
		g.field(pdf, tr, "Try", fmt.Sprintf("%d", a.Try))
		g.field(pdf, tr, "Answer", formatAnswer(a.Answer))
		g.field(pdf, tr, "Result", result)
		if a.Reason != "" {
			g.field(pdf, tr, "Reason", a.Reason)
		}
		if a.NextURL != "" {
			g.field(pdf, tr, "Next URL", a.NextURL)
		}
		g.field(pdf, tr, "Duration", a.Duration.Round(time.Millisecond).String())
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func (g *Generator) field(pdf *fpdf.Fpdf, tr func(string) string, label, value string) {
	if value == "" {
		value = "-"
	}
	pdf.MultiCell(0, 6, tr(label+": "+value), "", "L", false)
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// formatAnswer shortens long answers such as chart data URIs
func formatAnswer(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	s := string(b)
	if len(s) > 300 {
		s = s[:300] + "..."
	}
	return s
}
