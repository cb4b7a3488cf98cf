package handlers

import (
	"net/http"

	"github.com/hongminglow/userhub/internal/config"
	"github.com/hongminglow/userhub/internal/http/respond"
	"github.com/hongminglow/userhub/internal/models/dto"
)

// MetaHandler serves the greeting and the redacted configuration echo.
type MetaHandler struct {
	info dto.ConfigInfo
}

func NewMetaHandler(cfg config.Config) *MetaHandler {
	return &MetaHandler{info: dto.ConfigInfo{
		DatabaseURL:  config.Redact(cfg.DatabaseURL),
		RabbitMQURL:  config.Redact(cfg.RabbitMQURL),
		AppAddress:   cfg.Address,
		AppPort:      cfg.Port,
		StorageMode:  cfg.StorageDriver,
		EventsTarget: cfg.EventExchange,
	}}
}

func (h *MetaHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/hello", h.handleHello)
	mux.HandleFunc("GET /api/v1/config", h.handleConfig)
}

func (h *MetaHandler) handleHello(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Hello, world! 🌎"))
}

func (h *MetaHandler) handleConfig(w http.ResponseWriter, _ *http.Request) {
	respond.JSON(w, http.StatusOK, "ok", h.info)
}
