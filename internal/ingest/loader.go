package ingest

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// File is one loaded context document with its extracted raw text.
type File struct {
	Path string
	Name string
	Type string // pdf | docx | text | markdown
	Text string
}

// Loader reads supported files from a directory and extracts their text.
type Loader struct {
	logger *slog.Logger
}

// NewLoader creates a file loader.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// fileType maps an extension to its document type; unsupported extensions
// map to "".
func fileType(ext string) string {
	switch strings.ToLower(ext) {
	case ".pdf":
		return "pdf"
	case ".docx", ".doc":
		return "docx"
	case ".md":
		return "markdown"
	case ".txt":
		return "text"
	default:
		return ""
	}
}

// LoadDir loads every supported file directly inside dir. Unsupported
// extensions are skipped with a warning; a file that fails to parse becomes
// a Failure, never a fatal error. A missing directory yields no files.
func (l *Loader) LoadDir(dir string) ([]File, []Failure, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			l.logger.Warn("context directory does not exist", "dir", dir)
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("reading directory %s: %w", dir, err)
	}

	var files []File
	var failures []Failure
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		typ := fileType(filepath.Ext(entry.Name()))
		if typ == "" {
			l.logger.Warn("skipping unsupported file", "file", entry.Name())
			continue
		}

		text, err := l.extract(path, typ)
		if err != nil {
			failures = append(failures, Failure{Source: path, Err: err})
			l.logger.Warn("failed to load file", "file", entry.Name(), "error", err)
			continue
		}

		files = append(files, File{
			Path: path,
			Name: entry.Name(),
			Type: typ,
			Text: text,
		})
		l.logger.Info("loaded document", "file", entry.Name(), "type", typ, "chars", len(text))
	}

	return files, failures, nil
}

func (l *Loader) extract(path, typ string) (string, error) {
	switch typ {
	case "pdf":
		return extractPDF(path)
	case "docx":
		return extractDocx(path)
	default: // text, markdown
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", path, err)
		}
		return string(data), nil
	}
}

// extractPDF pulls the plain text out of a PDF file.
func extractPDF(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	defer func() { _ = f.Close() }()

	r, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting pdf text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	return buf.String(), nil
}
