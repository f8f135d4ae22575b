package handlers

import (
	"net/http"
	"time"

	"github.com/nikhilbhutani/docqa/internal/llm"
	"github.com/nikhilbhutani/docqa/internal/rag"
)

type RAGHandler struct {
	engine *rag.Engine
}

func NewRAGHandler(engine *rag.Engine) *RAGHandler {
	return &RAGHandler{engine: engine}
}

type configRequest struct {
	Provider       string  `json:"provider"`
	APIKey         string  `json:"api_key"`
	Model          string  `json:"model"`
	BaseURL        string  `json:"base_url"`
	EmbeddingModel string  `json:"embedding_model"`
	TimeoutSeconds int     `json:"timeout_seconds"`
	MaxTokens      int     `json:"max_tokens"`
	Temperature    float64 `json:"temperature"`
}

func (h *RAGHandler) Configure(w http.ResponseWriter, r *http.Request) {
	var req configRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Provider == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "provider is required"})
		return
	}

	err := h.engine.Initialize(r.Context(), llm.Config{
		Provider:       req.Provider,
		APIKey:         req.APIKey,
		Model:          req.Model,
		BaseURL:        req.BaseURL,
		EmbeddingModel: req.EmbeddingModel,
		Timeout:        time.Duration(req.TimeoutSeconds) * time.Second,
		MaxTokens:      req.MaxTokens,
		Temperature:    req.Temperature,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Status())
}

func (h *RAGHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Status())
}

type queryRequest struct {
	Question string `json:"question"`
}

func (h *RAGHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	resp, err := h.engine.Query(r.Context(), req.Question)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
