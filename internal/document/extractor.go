package document

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/nikhilbhutani/docqa/pkg/textextract"
)

// TextExtractor turns an uploaded file into plain text.
type TextExtractor interface {
	Extract(ctx context.Context, data io.ReaderAt, size int64, fileType string) (*textextract.ExtractedText, error)
	SupportedTypes() []string
}

// lowConfidence is the score under which extracted text is probably a
// scanned or image-only document.
const lowConfidence = 40

type extractor struct{}

func NewTextExtractor() TextExtractor {
	return &extractor{}
}

func (e *extractor) Extract(ctx context.Context, data io.ReaderAt, size int64, fileType string) (*textextract.ExtractedText, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := textextract.Extract(data, size, fileType)
	if err != nil {
		return nil, fmt.Errorf("extract text: %w", err)
	}

	if result.Confidence < lowConfidence {
		slog.Warn("extracted text looks unreliable",
			"file_type", fileType,
			"pages", result.Pages,
			"confidence", result.Confidence,
			"chars", len(result.Content),
		)
	}
	return result, nil
}

func (e *extractor) SupportedTypes() []string {
	return textextract.SupportedTypes()
}

// ReaderAtFromBytes creates an io.ReaderAt from a byte slice.
func ReaderAtFromBytes(data []byte) *bytes.Reader {
	return bytes.NewReader(data)
}
