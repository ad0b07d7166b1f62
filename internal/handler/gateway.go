package handler

import (
	"net/http"
	"time"

	"orderpay/internal/logging"
)

// GatewayHealthHandler aggregates the readiness of both downstream services:
// the gateway is only as healthy as the services it fronts.
type GatewayHealthHandler struct {
	client    *http.Client
	upstreams map[string]string
}

func NewGatewayHealthHandler(orderURL, paymentURL string) *GatewayHealthHandler {
	return &GatewayHealthHandler{
		client: &http.Client{Timeout: 5 * time.Second},
		upstreams: map[string]string{
			"order":   orderURL,
			"payment": paymentURL,
		},
	}
}

func (h *GatewayHealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *GatewayHealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.upstreams))
	httpStatus := http.StatusOK

	for name, base := range h.upstreams {
		if err := h.checkReadiness(r, base); err != nil {
			logging.FromContext(r.Context()).Warn("upstream readiness check failed",
				"upstream", name,
				"error", err,
			)
			checks[name] = "down"
			httpStatus = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	overallStatus := "ok"
	if httpStatus != http.StatusOK {
		overallStatus = "down"
	}

	RespondJSON(w, httpStatus, map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

func (h *GatewayHealthHandler) checkReadiness(r *http.Request, base string) error {
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, base+"/health/ready", nil)
	if err != nil {
		return err
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &AppError{Status: resp.StatusCode, Code: "UPSTREAM_NOT_READY", Message: "upstream reported not ready"}
	}
	return nil
}
