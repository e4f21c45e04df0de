package fulltext

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

var pdfMagic = []byte("%PDF-")

// IsPDF reports whether body looks like a PDF document.
func IsPDF(body []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(body, " \t\r\n"), pdfMagic)
}

// ParsePDF extracts the plain text of every page of a PDF document.
func ParsePDF(body []byte) (res *Result, err error) {
	// The reader panics on malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("parse pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return nil, fmt.Errorf("parse pdf: %w", err)
	}
	rd, err := r.GetPlainText()
	if err != nil {
		return nil, fmt.Errorf("pdf text: %w", err)
	}
	raw, err := io.ReadAll(rd)
	if err != nil {
		return nil, fmt.Errorf("pdf text: %w", err)
	}
	text := strings.Join(strings.Fields(string(raw)), " ")
	if text == "" {
		return nil, errors.New("pdf has no extractable text")
	}
	return &Result{Text: clip(text), Method: "pdf"}, nil
}
