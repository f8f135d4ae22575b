package vectorstore

import (
	"errors"

	"github.com/nikhilbhutani/docqa/internal/models"
)

var ErrNotFound = errors.New("document not found")

// ChunkRef is one chunk of a stored document, as seen by retrieval.
type ChunkRef struct {
	DocumentID   string
	DocumentName string
	ChunkIndex   int
	Content      string
	Embedding    []float32 // nil when the document has no embeddings
}

// Store is the collection of ingested documents. Implementations must be
// safe for concurrent use and must not hand out slices they later mutate.
type Store interface {
	Add(doc *models.Document) error
	Get(id string) (models.Document, error)
	Remove(id string) bool
	Clear()
	List() []models.Document
	Len() int
	// SetEmbeddings replaces a document's vectors and merges metadata.
	SetEmbeddings(id string, embeddings [][]float32, metadata map[string]any) error
	// Snapshot returns every stored document in insertion order for read-only use.
	Snapshot() []models.Document
}

// ChunkRefs flattens documents into per-chunk records in document then
// chunk order. Documents whose embeddings do not line up with their chunks
// are reported through skip and contribute no embeddings.
func ChunkRefs(docs []models.Document, skip func(doc models.Document, reason string)) []ChunkRef {
	var refs []ChunkRef
	for _, d := range docs {
		aligned := len(d.Embeddings) == len(d.Chunks)
		if len(d.Embeddings) > 0 && !aligned && skip != nil {
			skip(d, "chunk and embedding counts differ")
		}
		for i, c := range d.Chunks {
			ref := ChunkRef{DocumentID: d.ID, DocumentName: d.Name, ChunkIndex: i, Content: c}
			if aligned && len(d.Embeddings) > 0 {
				ref.Embedding = d.Embeddings[i]
			}
			refs = append(refs, ref)
		}
	}
	return refs
}
