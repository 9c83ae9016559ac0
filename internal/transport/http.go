package transport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/msbot/internal/platform/httpx"
)

// Handler wires the HTTP message and status endpoints.
type Handler struct {
	logger     *slog.Logger
	dispatcher Dispatcher
	validator  *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, dispatcher Dispatcher) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, dispatcher: dispatcher, validator: validator.New()}
}

// MountRoutes registers message routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/messages", h.handleMessage)
	r.Get("/status", h.handleStatus)
}

func (h *Handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if err := httpx.DecodeJSON(w, r, maxBodyBytes, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := validateRequest(h.validator, req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	resp := h.dispatcher.Dispatch(r.Context(), toEvent(req, time.Now()))
	httpx.JSON(w, http.StatusOK, toResponse(resp))
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, h.dispatcher.Status(r.Context()))
}
