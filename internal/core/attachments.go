package core

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const maxDocumentRunes = 20000

var (
	ErrUnsupportedImage    = errors.New("only JPEG, PNG and GIF images are supported")
	ErrUnsupportedDocument = errors.New("only text documents are supported")
)

// Document is an uploaded file whose text is handed to the model.
type Document struct {
	Name        string
	ContentType string
	Data        []byte
}

var textExtensions = map[string]bool{
	".txt": true, ".md": true, ".markdown": true, ".csv": true, ".tsv": true,
	".json": true, ".yaml": true, ".yml": true, ".xml": true, ".html": true,
	".log": true, ".ini": true, ".toml": true,
}

var textContentTypes = map[string]bool{
	"application/json":   true,
	"application/xml":    true,
	"application/x-yaml": true,
	"application/yaml":   true,
}

// ImageType sniffs the picture format. Only the formats the vision model is
// known to accept pass.
func ImageType(data []byte) (string, error) {
	switch ct := http.DetectContentType(data); ct {
	case "image/jpeg", "image/png", "image/gif":
		return ct, nil
	default:
		return "", fmt.Errorf("%w: got %s", ErrUnsupportedImage, ct)
	}
}

// ExtractText returns the document's text. Non UTF-8 input is decoded from
// its BOM, or as Windows-1252 when there is none. Long documents are cut.
func ExtractText(doc Document) (string, error) {
	if !isText(doc) {
		return "", ErrUnsupportedDocument
	}

	var text string
	if utf8.Valid(doc.Data) {
		text = strings.TrimPrefix(string(doc.Data), "\ufeff")
	} else {
		decoded, _, err := transform.Bytes(unicode.BOMOverride(charmap.Windows1252.NewDecoder()), doc.Data)
		if err != nil {
			return "", fmt.Errorf("failed to decode %s: %w", doc.Name, err)
		}
		text = string(decoded)
	}

	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) > maxDocumentRunes {
		text = string([]rune(text)[:maxDocumentRunes]) + "\n[truncated]"
	}
	return text, nil
}

func isText(doc Document) bool {
	ct, _, _ := strings.Cut(strings.ToLower(doc.ContentType), ";")
	ct = strings.TrimSpace(ct)
	if strings.HasPrefix(ct, "text/") || textContentTypes[ct] {
		return true
	}
	if textExtensions[strings.ToLower(filepath.Ext(doc.Name))] {
		return true
	}
	return strings.HasPrefix(http.DetectContentType(doc.Data), "text/")
}
