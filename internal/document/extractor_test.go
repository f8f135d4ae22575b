package document

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/docqa/pkg/textextract"
)

func TestExtractor(t *testing.T) {
	ex := NewTextExtractor()
	data := []byte("Quarterly results.\n\nRevenue increased by 15% year-over-year to $42.5M.")

	out, err := ex.Extract(context.Background(), ReaderAtFromBytes(data), int64(len(data)), ".txt")
	require.NoError(t, err)
	assert.Contains(t, out.Content, "$42.5M")
	assert.Contains(t, ex.SupportedTypes(), ".pdf")

	_, err = ex.Extract(context.Background(), ReaderAtFromBytes(data), int64(len(data)), ".exe")
	assert.ErrorIs(t, err, textextract.ErrUnsupportedType)
}

func TestExtractor_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	data := []byte("text")
	_, err := NewTextExtractor().Extract(ctx, ReaderAtFromBytes(data), int64(len(data)), "txt")
	assert.ErrorIs(t, err, context.Canceled)
}
