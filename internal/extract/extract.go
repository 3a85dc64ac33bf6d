// Package extract turns retrieved artifacts into normalized prompt text.
package extract

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

var ErrUnsupported = errors.New("unsupported artifact format")

// Reader extracts text from an artifact stream. name is only used to pick the format.
func Reader(r io.Reader, name string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	return Bytes(data, name)
}

// File extracts text from a local file.
func File(path string) (string, error) {
	if format(path) == "pdf" {
		file, reader, err := pdf.Open(path)
		if err != nil {
			return "", fmt.Errorf("open pdf %s: %w", filepath.Base(path), err)
		}
		defer file.Close()
		return pdfText(reader)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return Bytes(data, path)
}

func Bytes(data []byte, name string) (string, error) {
	switch format(name) {
	case "pdf":
		reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return "", fmt.Errorf("parse pdf %s: %w", filepath.Base(name), err)
		}
		return pdfText(reader)
	case "csv":
		return tableText(data)
	case "txt", "md", "json":
		return Normalize(string(data)), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupported, filepath.Base(name))
	}
}

func pdfText(reader *pdf.Reader) (text string, err error) {
	// the pdf parser panics on some malformed content streams
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extract pdf text: %v", r)
		}
	}()

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return Normalize(buf.String()), nil
}

// tableText renders CSV rows as pipe-separated lines.
func tableText(data []byte) (string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	records, err := reader.ReadAll()
	if err != nil {
		return "", fmt.Errorf("parse csv: %w", err)
	}

	lines := make([]string, 0, len(records))
	for _, record := range records {
		cells := make([]string, 0, len(record))
		for _, cell := range record {
			cells = append(cells, strings.TrimSpace(cell))
		}
		lines = append(lines, strings.Join(cells, " | "))
	}
	return Normalize(strings.Join(lines, "\n")), nil
}

var blankRuns = regexp.MustCompile(`\n{3,}`)

// Normalize fixes line endings, drops invalid UTF-8 and trailing whitespace,
// and collapses runs of blank lines.
func Normalize(text string) string {
	text = strings.ToValidUTF8(text, "")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.ReplaceAll(text, "\x00", "")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	text = strings.Join(lines, "\n")
	text = blankRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

func format(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}
