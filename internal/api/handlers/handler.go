// handler.go — маршрутизация HTTP endpoints Gaia Hub и общие помощники.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/gaiahub/internal/api/errors"
	"github.com/bigkaa/gaiahub/internal/config"
	"github.com/bigkaa/gaiahub/internal/service"
)

// addressPattern — шаблон сегмента адреса bucket'а в URL.
const addressPattern = "{address:[A-Za-z0-9]+}"

// Handler — обработчик всех endpoints hub.
type Handler struct {
	hub    *service.Hub
	cfg    *config.Config
	health *HealthHandler
}

// New создаёт обработчик endpoints.
func New(hub *service.Hub, cfg *config.Config, health *HealthHandler) *Handler {
	return &Handler{
		hub:    hub,
		cfg:    cfg,
		health: health,
	}
}

// Routes монтирует маршруты hub на роутер.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.Welcome)
	r.Get("/hub_info", h.HubInfo)
	r.Get("/hub_info/", h.HubInfo)

	r.Post("/store/"+addressPattern+"/*", h.Store)
	r.Delete("/delete/"+addressPattern+"/*", h.Delete)

	r.Post("/list-files/"+addressPattern, h.ListFiles)
	r.Post("/list-files/"+addressPattern+"/", h.ListFiles)
	r.Post("/perform-files/"+addressPattern, h.PerformFiles)
	r.Post("/perform-files/"+addressPattern+"/", h.PerformFiles)
	r.Post("/revoke-all/"+addressPattern, h.RevokeAll)
	r.Post("/revoke-all/"+addressPattern+"/", h.RevokeAll)

	r.Get("/health/live", h.health.HealthLive)
	r.Get("/health/ready", h.health.HealthReady)
}

// writeJSON записывает JSON-ответ с указанным статус-кодом.
func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSONBody декодирует JSON-тело с ограничением размера.
// Превышение лимита — payloadTooLarge, прочие ошибки — invalidInput.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, limit int64, dst any) error {
	body := http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apierrors.PayloadTooLarge("request body exceeds %d bytes", limit)
		}
		return apierrors.InvalidInput("malformed JSON request body")
	}
	return nil
}
