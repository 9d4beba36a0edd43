package fetch

import (
	"bytes"
	"strings"

	"github.com/ledongthuc/pdf"
)

// extractPDF reads every page of a PDF document and returns its plain
// text, page breaks collapsed to double newlines. A PDF containing only
// scanned images (no extractable text layer) returns an informative
// placeholder rather than an error (spec §8 boundary behavior).
func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if strings.TrimSpace(text) != "" {
			b.WriteString(text)
			b.WriteString("\n\n")
		}
	}

	extracted := strings.TrimSpace(b.String())
	if extracted == "" {
		return "This PDF appears to contain only scanned images; no extractable text layer was found.", nil
	}
	return extracted, nil
}
