package knowledge

import (
	"context"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"
)

// SupportedExtensions lists the file types ReadFile understands.
func SupportedExtensions() []string {
	return []string{".txt", ".md", ".markdown", ".pdf", ".docx", ".xlsx"}
}

// ReadFile extracts text content from a document on disk. The format is
// selected by file extension.
func ReadFile(ctx context.Context, path string) (string, map[string]any, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".txt", ".md", ".markdown":
		return readTextFile(path)
	case ".pdf":
		return readPDF(ctx, path)
	case ".docx":
		return readDOCX(path)
	case ".xlsx":
		return readXLSX(ctx, path)
	default:
		return "", nil, fmt.Errorf("unsupported document type %q (supported: %s)",
			ext, strings.Join(SupportedExtensions(), ", "))
	}
}

func readTextFile(path string) (string, map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), map[string]any{"type": "text"}, nil
}

func readPDF(ctx context.Context, path string) (string, map[string]any, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", nil, fmt.Errorf("failed to open PDF %s: %w", path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", nil, fmt.Errorf("failed to stat PDF %s: %w", path, err)
	}

	reader, err := pdf.NewReader(file, info.Size())
	if err != nil {
		return "", nil, fmt.Errorf("failed to parse PDF %s: %w", path, err)
	}

	var parts []string
	totalPages := reader.NumPage()

	for pageNum := 1; pageNum <= totalPages; pageNum++ {
		select {
		case <-ctx.Done():
			return "", nil, ctx.Err()
		default:
		}

		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			// Keep going; a single broken page should not sink the document.
			parts = append(parts, fmt.Sprintf("--- Page %d (extraction failed: %v) ---", pageNum, err))
			continue
		}

		if strings.TrimSpace(text) != "" {
			parts = append(parts, fmt.Sprintf("--- Page %d ---\n%s", pageNum, text))
		}
	}

	meta := map[string]any{
		"type":  "pdf",
		"pages": totalPages,
	}
	return strings.Join(parts, "\n\n"), meta, nil
}

var docxTagPattern = regexp.MustCompile(`<[^>]+>`)

func readDOCX(path string) (string, map[string]any, error) {
	doc, err := docx.ReadDocxFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("failed to parse DOCX %s: %w", path, err)
	}
	defer doc.Close()

	// GetContent returns the raw document XML; flatten paragraphs to
	// newlines and strip the remaining markup before embedding.
	raw := doc.Editable().GetContent()
	raw = strings.ReplaceAll(raw, "</w:p>", "\n")
	content := html.UnescapeString(docxTagPattern.ReplaceAllString(raw, ""))

	meta := map[string]any{"type": "docx"}
	return content, meta, nil
}

// maxCellsPerSheet caps extraction so a dense spreadsheet cannot blow up
// the embedding payload.
const maxCellsPerSheet = 1000

func readXLSX(ctx context.Context, path string) (string, map[string]any, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("failed to parse XLSX %s: %w", path, err)
	}
	defer f.Close()

	var parts []string
	sheets := f.GetSheetList()

	for _, sheetName := range sheets {
		select {
		case <-ctx.Done():
			return "", nil, ctx.Err()
		default:
		}

		var sheetText strings.Builder
		sheetText.WriteString(fmt.Sprintf("--- Sheet: %s ---\n", sheetName))

		rows, err := f.GetRows(sheetName)
		if err != nil {
			sheetText.WriteString(fmt.Sprintf("Error reading sheet: %v\n", err))
			parts = append(parts, strings.TrimSpace(sheetText.String()))
			continue
		}

		cellCount := 0
		for rowIndex, row := range rows {
			if cellCount >= maxCellsPerSheet {
				sheetText.WriteString("... (truncated)\n")
				break
			}
			for colIndex, cell := range row {
				if cellCount >= maxCellsPerSheet {
					break
				}
				if text := strings.TrimSpace(cell); text != "" {
					sheetText.WriteString(fmt.Sprintf("%s%d: %s\n", columnLetter(colIndex), rowIndex+1, text))
					cellCount++
				}
			}
		}

		if text := strings.TrimSpace(sheetText.String()); text != "" {
			parts = append(parts, text)
		}
	}

	meta := map[string]any{
		"type":   "xlsx",
		"sheets": len(sheets),
	}
	return strings.Join(parts, "\n\n"), meta, nil
}

// columnLetter converts a 0-based column index to its spreadsheet
// letter (A, B, ..., Z, AA, AB, ...).
func columnLetter(index int) string {
	result := ""
	for {
		result = string(rune('A'+index%26)) + result
		index = index/26 - 1
		if index < 0 {
			break
		}
	}
	return result
}
