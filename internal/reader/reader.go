// Package reader extracts page-tagged text and basic metadata from document
// files. The pipeline only sees its output, never the file formats.
package reader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"

	"docqa/internal/models"
)

// Read extracts the full text and metadata of the document at path.
func Read(path string) (*models.Document, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	meta := models.DocumentMetadata{
		FileName: filepath.Base(path),
		FileSize: stat.Size(),
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".pdf":
		return readPDF(path, meta)
	case ".docx":
		return readDOCX(path, meta)
	case ".xlsx":
		return readXLSX(path, meta)
	case ".ods":
		return readODS(path, meta)
	case ".md", ".markdown":
		return readMarkdown(path, meta)
	case ".txt", ".text":
		return readText(path, meta)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", ext)
	}
}

// Identity derives the default document identity: the file name without its
// extension.
func Identity(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func readPDF(path string, meta models.DocumentMetadata) (*models.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := pdf.NewReader(f, meta.FileSize)
	if err != nil {
		return nil, fmt.Errorf("opening pdf: %w", err)
	}

	meta.NumPages = r.NumPage()
	info := r.Trailer().Key("Info")
	if !info.IsNull() {
		meta.Title = pdfText(info.Key("Title"))
		meta.Author = pdfText(info.Key("Author"))
	}

	var parts []string
	for i := 1; i <= meta.NumPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extracting page %d: %w", i, err)
		}
		if strings.TrimSpace(pageText) == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("--- Page %d ---\n%s", i, pageText))
	}

	log.Debug().Str("file", meta.FileName).Int("pages", meta.NumPages).Msg("extracted pdf text")
	return &models.Document{FullText: strings.Join(parts, "\n\n"), Metadata: meta}, nil
}

func pdfText(v pdf.Value) string {
	if v.Kind() == pdf.String {
		return v.Text()
	}
	return ""
}

func readDOCX(path string, meta models.DocumentMetadata) (*models.Document, error) {
	r, err := docx.ReadDocxFile(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	content := r.Editable().GetContent()
	content = strings.ReplaceAll(content, "</w:p>", "\n")
	text := stripTags(content)

	meta.NumPages = 1
	return &models.Document{FullText: text, Metadata: meta}, nil
}

func readXLSX(path string, meta models.DocumentMetadata) (*models.Document, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, err
	}

	var parts []string
	for _, sheet := range f.Sheets {
		var text strings.Builder
		text.WriteString(fmt.Sprintf("## Sheet: %s\n", sheet.Name))
		for _, row := range sheet.Rows {
			for _, cell := range row.Cells {
				text.WriteString(cell.String() + "\t")
			}
			text.WriteString("\n")
		}
		parts = append(parts, text.String())
	}

	meta.NumPages = len(f.Sheets)
	return &models.Document{FullText: strings.Join(parts, "\n\n"), Metadata: meta}, nil
}

func readODS(path string, meta models.DocumentMetadata) (*models.Document, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	var parts []string
	for _, sheetName := range sheets {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			continue
		}
		var text strings.Builder
		text.WriteString(fmt.Sprintf("## Sheet: %s\n", sheetName))
		for _, row := range rows {
			for _, cell := range row {
				text.WriteString(cell + "\t")
			}
			text.WriteString("\n")
		}
		parts = append(parts, text.String())
	}

	meta.NumPages = len(sheets)
	return &models.Document{FullText: strings.Join(parts, "\n\n"), Metadata: meta}, nil
}

func readText(path string, meta models.DocumentMetadata) (*models.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	meta.NumPages = 1
	return &models.Document{FullText: string(data), Metadata: meta}, nil
}

// stripTags drops XML/HTML tags, keeping only character data.
func stripTags(s string) string {
	var out strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			out.WriteRune(r)
		}
	}
	return out.String()
}
