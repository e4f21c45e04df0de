package fulltext

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"testing"
)

// onePagePDF builds a minimal single-page PDF showing text in Helvetica.
func onePagePDF(text string) []byte {
	content := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 4 0 R >> >> /Contents 5 0 R >>",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestIsPDF(t *testing.T) {
	if !IsPDF(onePagePDF("x")) {
		t.Error("generated document not detected as PDF")
	}
	if IsPDF([]byte(articleHTML)) {
		t.Error("HTML detected as PDF")
	}
}

func TestParsePDF(t *testing.T) {
	res, err := ParsePDF(onePagePDF("Google plans 300 MW data center in Temple, Texas"))
	if err != nil {
		t.Fatalf("ParsePDF failed: %v", err)
	}
	if res.Method != "pdf" {
		t.Errorf("method = %q, want pdf", res.Method)
	}
	if !strings.Contains(res.Text, "300 MW data center in Temple") {
		t.Errorf("unexpected text %q", res.Text)
	}
}

func TestParse_DispatchesPDF(t *testing.T) {
	u, _ := url.Parse("https://example.gov/filings/permit.pdf")
	res, err := Parse(onePagePDF("Permit approved"), u)
	if err != nil {
		t.Fatal(err)
	}
	if res.Method != "pdf" || !strings.Contains(res.Text, "Permit approved") {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestParsePDF_Malformed(t *testing.T) {
	if _, err := ParsePDF([]byte("%PDF-1.4\nnot really a pdf")); err == nil {
		t.Error("expected an error for a truncated document")
	}
}
