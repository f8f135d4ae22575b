package handlers

import (
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nikhilbhutani/docqa/internal/models"
	"github.com/nikhilbhutani/docqa/internal/rag"
	"github.com/nikhilbhutani/docqa/internal/vectorstore"
)

type DocumentHandler struct {
	engine    *rag.Engine
	maxUpload int64
}

func NewDocumentHandler(engine *rag.Engine, maxUpload int64) *DocumentHandler {
	return &DocumentHandler{engine: engine, maxUpload: maxUpload}
}

// DocumentSummary is the listing form of a stored document.
type DocumentSummary struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	UploadedAt    time.Time      `json:"uploaded_at"`
	ChunkCount    int            `json:"chunk_count"`
	HasEmbeddings bool           `json:"has_embeddings"`
	Metadata      map[string]any `json:"metadata"`
}

func summarize(d *models.Document) DocumentSummary {
	return DocumentSummary{
		ID:            d.ID,
		Name:          d.Name,
		UploadedAt:    d.UploadedAt,
		ChunkCount:    len(d.Chunks),
		HasEmbeddings: d.HasEmbeddings(),
		Metadata:      d.Metadata,
	}
}

func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "file required"})
		return
	}
	defer file.Close()

	name := r.FormValue("name")
	if name == "" {
		name = header.Filename
	}
	fileType := filepath.Ext(header.Filename)
	if ct := header.Header.Get("Content-Type"); fileType == "" && ct != "" {
		fileType = ct
	}

	doc, err := h.engine.Ingest(r.Context(), rag.Upload{
		Name:     name,
		FileType: fileType,
		Data:     file,
		Size:     header.Size,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, summarize(doc))
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	docs := h.engine.Documents()
	out := make([]DocumentSummary, len(docs))
	for i := range docs {
		out[i] = summarize(&docs[i])
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"documents": out, "count": len(out)})
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	removed, err := h.engine.RemoveDocument(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !removed {
		writeError(w, r, fmt.Errorf("%w: %s", vectorstore.ErrNotFound, id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DocumentHandler) Clear(w http.ResponseWriter, r *http.Request) {
	h.engine.ClearDocuments()
	w.WriteHeader(http.StatusNoContent)
}
