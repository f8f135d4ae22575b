package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/docqa/internal/rag"
)

type HealthHandler struct {
	engine *rag.Engine
	redis  *redis.Client
}

func NewHealthHandler(engine *rag.Engine, rdb *redis.Client) *HealthHandler {
	return &HealthHandler{engine: engine, redis: rdb}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type readiness struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
	Engine rag.Status        `json:"engine"`
}

// Readyz fails when the embedding cache is configured but unreachable or
// the engine has no provider yet.
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	out := readiness{Status: "ok", Checks: map[string]string{}, Engine: h.engine.Status()}

	if h.redis != nil {
		out.Checks["redis"] = check(h.redis.Ping(r.Context()).Err())
	}
	if out.Engine.Initialized {
		out.Checks["engine"] = check(nil)
	} else {
		out.Checks["engine"] = check(rag.ErrNotInitialized)
	}

	status := http.StatusOK
	for _, v := range out.Checks {
		if v != "ok" {
			status = http.StatusServiceUnavailable
			out.Status = "unhealthy"
			break
		}
	}
	writeJSON(w, status, out)
}

func check(err error) string {
	if err != nil {
		return "unhealthy: " + err.Error()
	}
	return "ok"
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func decodeJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return errors.New("request body required")
	}
	return json.NewDecoder(r.Body).Decode(v)
}
