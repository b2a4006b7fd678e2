// Package resume ingests candidate resumes: download from object storage,
// text extraction, and deterministic skill scoring that feeds STT keyword
// boosting and question generation.
package resume

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
)

// MIME types accepted by ExtractText.
const (
	MIMEPlainText = "text/plain"
	MIMEPDF       = "application/pdf"
	MIMEDocx      = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// ErrUnsupportedFormat is returned by ExtractText for MIME types it cannot
// parse.
var ErrUnsupportedFormat = errors.New("resume: unsupported file format")

// ExtractText returns the plain text of a resume document, keyed by MIME
// type.
func ExtractText(mime string, data []byte) (string, error) {
	switch mime {
	case MIMEPlainText:
		return string(data), nil
	case MIMEPDF:
		return extractPDF(data)
	case MIMEDocx:
		return extractDocx(data)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, mime)
	}
}

func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("resume: read pdf: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		// A page that fails to extract degrades the resume, it does not
		// fail the whole document.
		text, _ := page.GetPlainText(nil)
		sb.WriteString(text)
	}
	return sb.String(), nil
}

func extractDocx(data []byte) (string, error) {
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("resume: parse docx: %w", err)
	}
	defer doc.Close()

	return doc.Editable().GetContent(), nil
}
