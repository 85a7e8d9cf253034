package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/tao-j/helvetic/internal/utils"
)

// Pinger is implemented by stores that can report their own health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type healthchecker struct {
	pinger Pinger
}

func (h *healthchecker) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if h.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.pinger.Ping(ctx); err != nil {
			slog.Error("failed to check store connectivity", "error", err)
			utils.WriteError(w, http.StatusInternalServerError, "failed to check store connectivity")
			return
		}
	}
	utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// registerHealthcheck mounts GET /healthz. A nil pinger always reports ok.
func registerHealthcheck(mux *http.ServeMux, pinger Pinger) {
	h := &healthchecker{pinger: pinger}
	mux.HandleFunc("GET /healthz", h.handleHealthz)
}
