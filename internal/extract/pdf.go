package extract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
)

// pdfStringRe matches literal strings in raw PDF content streams.
var pdfStringRe = regexp.MustCompile(`\((.*?)\)`)

// extractPDFFile tries pdftotext, then the pure-Go reader, then a raw string scrape.
// Only the scrape result is marked lossy.
func (e *Extractor) extractPDFFile(ctx context.Context, path string) (Result, error) {
	if e.runner.Available("pdftotext") {
		out, err := e.runner.Output(ctx, "pdftotext", "-layout", path, "-")
		if err == nil && strings.TrimSpace(string(out)) != "" {
			return Result{Text: string(out)}, nil
		}
		e.logger.Debug("pdftotext produced no text", zap.String("path", path), zap.Error(err))
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("read file: %w", err)
	}
	text, libErr := extractPDF(content)
	if libErr == nil && strings.TrimSpace(text) != "" {
		return Result{Text: text}, nil
	}
	if libErr != nil {
		e.logger.Debug("pdf reader failed", zap.String("path", path), zap.Error(libErr))
	}

	scraped := scrapePDFStrings(content)
	if scraped == "" {
		return Result{}, libErr
	}
	e.logger.Warn("pdf text recovered by raw scrape; quality is lossy", zap.String("path", path))
	return Result{Text: scraped, Quality: models.QualityLossy}, nil
}

func extractPDF(content []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse PDF: %v", r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open PDF: %w", err)
	}
	var buf bytes.Buffer
	numPages := r.NumPage()
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("extract page %d: %w", i, err)
		}
		buf.WriteString(pageText)
		// blank line between pages keeps them as separate paragraphs for chunking
		if i < numPages {
			buf.WriteString("\n\n")
		}
	}
	return buf.String(), nil
}

// scrapePDFStrings joins the parenthesised literal strings of an uncompressed PDF.
func scrapePDFStrings(content []byte) string {
	matches := pdfStringRe.FindAllSubmatch(content, -1)
	parts := make([]string, 0, len(matches))
	for _, m := range matches {
		s := strings.TrimSpace(strings.ToValidUTF8(string(m[1]), ""))
		if s == "" || !mostlyPrintable(s) {
			continue
		}
		parts = append(parts, s)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

func mostlyPrintable(s string) bool {
	var printable, total int
	for _, r := range s {
		total++
		if r >= 0x20 && r != 0x7f {
			printable++
		}
	}
	return total > 0 && printable*10 >= total*9
}
