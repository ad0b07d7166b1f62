package handler

import (
	"database/sql"
	"net/http"
	"time"

	"orderpay/internal/logging"
)

type brokerConn interface {
	IsClosed() bool
}

type HealthHandler struct {
	db     *sql.DB
	broker brokerConn
}

func NewHealthHandler(db *sql.DB, broker brokerConn) *HealthHandler {
	return &HealthHandler{db: db, broker: broker}
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	dbStatus := "ok"
	brokerStatus := "ok"
	httpStatus := http.StatusOK

	if err := h.db.PingContext(r.Context()); err != nil {
		logging.FromContext(r.Context()).Warn("readiness check failed: database unreachable", "error", err)
		dbStatus = "down"
		httpStatus = http.StatusServiceUnavailable
	}

	if h.broker != nil && h.broker.IsClosed() {
		logging.FromContext(r.Context()).Warn("readiness check failed: broker connection closed")
		brokerStatus = "down"
		httpStatus = http.StatusServiceUnavailable
	}

	overallStatus := "ok"
	if httpStatus != http.StatusOK {
		overallStatus = "down"
	}

	RespondJSON(w, httpStatus, map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks": map[string]string{
			"database": dbStatus,
			"broker":   brokerStatus,
		},
	})
}
