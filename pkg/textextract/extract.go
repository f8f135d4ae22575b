package textextract

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

var ErrUnsupportedType = errors.New("unsupported file type")

const (
	MethodPDF  = "pdf-text"
	MethodDOCX = "docx-xml"
	MethodText = "plain-text"
)

type ExtractedText struct {
	Content    string
	Pages      int
	Method     string
	Confidence float64 // 0-100 text quality estimate
	Metadata   map[string]string
}

func Extract(data io.ReaderAt, size int64, fileType string) (*ExtractedText, error) {
	var (
		out *ExtractedText
		err error
	)
	switch NormalizeType(fileType) {
	case "pdf":
		out, err = extractPDF(data, size)
	case "docx":
		out, err = extractDOCX(data, size)
	case "txt":
		out, err = extractTXT(data, size)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, fileType)
	}
	if err != nil {
		return nil, err
	}
	out.Confidence = Confidence(out.Content)
	return out, nil
}

// NormalizeType maps extensions, file names and MIME types to "pdf",
// "docx" or "txt". Unknown inputs are returned lowercased.
func NormalizeType(fileType string) string {
	t := strings.ToLower(strings.TrimSpace(fileType))
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	switch t {
	case "application/pdf":
		return "pdf"
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return "docx"
	case "text/plain", "text/markdown":
		return "txt"
	}
	if ext := filepath.Ext(t); ext != "" {
		t = ext
	}
	t = strings.TrimPrefix(t, ".")
	if t == "md" {
		return "txt"
	}
	return t
}

var (
	sentencePunct = regexp.MustCompile(`[.!?]`)
	properCase    = regexp.MustCompile(`[A-Z][a-z]`)
	anyLetter     = regexp.MustCompile(`[a-zA-Z]`)
)

// Confidence scores extracted text from 0 to 100 using length, word count
// and structure signals, penalizing encoding damage and letter-free output.
func Confidence(text string) float64 {
	if text == "" {
		return 0
	}
	score := 50.0
	n := len([]rune(text))
	if n > 100 {
		score += 20
	}
	if n > 500 {
		score += 10
	}
	words := len(strings.Fields(text))
	if words > 20 {
		score += 10
	}
	if words > 100 {
		score += 5
	}
	if strings.Contains(text, "\n\n") {
		score += 5
	}
	if sentencePunct.MatchString(text) {
		score += 5
	}
	if properCase.MatchString(text) {
		score += 5
	}
	if strings.ContainsRune(text, '\uFFFD') {
		score -= 10
	}
	if n < 50 {
		score -= 20
	}
	if !anyLetter.MatchString(text) {
		score -= 30
	}
	return min(max(score, 0), 100)
}

func SupportedTypes() []string {
	return []string{".pdf", ".docx", ".txt", ".md"}
}

func extractPDF(data io.ReaderAt, size int64) (*ExtractedText, error) {
	reader, err := pdf.NewReader(data, size)
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}

	var buf strings.Builder
	numPages := reader.NumPage()

	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		buf.WriteString(text)
		buf.WriteString("\n")
	}

	return &ExtractedText{
		Content: strings.TrimSpace(buf.String()),
		Pages:   numPages,
		Method:  MethodPDF,
		Metadata: map[string]string{
			"type": "pdf",
		},
	}, nil
}

func extractDOCX(data io.ReaderAt, size int64) (*ExtractedText, error) {
	reader, err := zip.NewReader(data, size)
	if err != nil {
		return nil, fmt.Errorf("open DOCX: %w", err)
	}

	var buf strings.Builder
	for _, f := range reader.File {
		if filepath.Base(f.Name) == "document.xml" {
			rc, err := f.Open()
			if err != nil {
				return nil, fmt.Errorf("open document.xml: %w", err)
			}
			defer rc.Close()

			content, err := io.ReadAll(rc)
			if err != nil {
				return nil, fmt.Errorf("read document.xml: %w", err)
			}

			text := stripXMLTags(string(content))
			buf.WriteString(text)
			break
		}
	}

	return &ExtractedText{
		Content: buf.String(),
		Pages:   1,
		Method:  MethodDOCX,
		Metadata: map[string]string{
			"type": "docx",
		},
	}, nil
}

func extractTXT(data io.ReaderAt, size int64) (*ExtractedText, error) {
	buf := make([]byte, size)
	_, err := data.ReadAt(buf, 0)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read TXT: %w", err)
	}

	return &ExtractedText{
		Content: string(bytes.TrimSpace(buf)),
		Pages:   1,
		Method:  MethodText,
		Metadata: map[string]string{
			"type": "txt",
		},
	}, nil
}

// stripXMLTags keeps one paragraph per </w:p> so the chunker can see the
// document's structure.
func stripXMLTags(s string) string {
	var paragraphs []string
	for _, para := range strings.Split(s, "</w:p>") {
		var result strings.Builder
		inTag := false
		for _, r := range para {
			switch {
			case r == '<':
				inTag = true
			case r == '>':
				inTag = false
			case !inTag:
				result.WriteRune(r)
			}
		}
		if text := strings.Join(strings.Fields(result.String()), " "); text != "" {
			paragraphs = append(paragraphs, text)
		}
	}
	return strings.Join(paragraphs, "\n\n")
}
