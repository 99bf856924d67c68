// Package extract pulls plain text out of uploaded documents for the
// ingestion pipeline. Dispatch is by file extension: PDF and DOCX get
// real extraction, everything else is treated as UTF-8 plain text.
package extract

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/stayline/concierge/internal/domain"
)

// Text extracts the plain text of the file at path.
func Text(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return pdfText(path)
	case ".docx":
		return docxText(path)
	default:
		data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from our own upload dir
		if err != nil {
			return "", fmt.Errorf("%w: read %s: %w", domain.ErrExtraction, path, err)
		}
		return string(data), nil
	}
}

func pdfText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: open pdf: %w", domain.ErrExtraction, err)
	}
	defer func() { _ = f.Close() }()

	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("%w: pdf text: %w", domain.ErrExtraction, err)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("%w: read pdf text: %w", domain.ErrExtraction, err)
	}
	return string(data), nil
}

// docxText reads word/document.xml from the Office XML container and
// collects the text runs, inserting a newline per paragraph.
func docxText(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("%w: open docx: %w", domain.ErrExtraction, err)
	}
	defer func() { _ = zr.Close() }()

	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", fmt.Errorf("%w: docx missing word/document.xml", domain.ErrExtraction)
	}

	rc, err := doc.Open()
	if err != nil {
		return "", fmt.Errorf("%w: open document.xml: %w", domain.ErrExtraction, err)
	}
	defer func() { _ = rc.Close() }()

	var sb strings.Builder
	dec := xml.NewDecoder(rc)
	inText := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: parse document.xml: %w", domain.ErrExtraction, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	return sb.String(), nil
}
