package controller

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/tao-j/helvetic/internal/measurement"
	"github.com/tao-j/helvetic/internal/modules/scale/views"
	"github.com/tao-j/helvetic/internal/protocol"
	"github.com/tao-j/helvetic/internal/utils"
)

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if _, err := io.WriteString(w, body); err != nil {
		slog.Error("write response failed", "error", err)
	}
}

func (c *scaleControllerImpl) handleUpload(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeText(w, http.StatusRequestEntityTooLarge, "Request too large")
			return
		}
		slog.Error("upload: read body failed", "error", err)
		writeText(w, http.StatusBadRequest, "Invalid request")
		return
	}

	res, err := c.service.HandleUpload(r.Context(), body)
	if err != nil {
		if errors.Is(err, protocol.ErrTooShort) {
			slog.Warn("upload rejected", "len", len(body), "error", err)
			writeText(w, http.StatusBadRequest, "Invalid request")
			return
		}
		slog.Error("upload failed", "error", err)
		writeText(w, http.StatusInternalServerError, "Internal error")
		return
	}

	utils.WriteBinary(w, http.StatusOK, res.Response[:])
}

func (c *scaleControllerImpl) handleRegister(w http.ResponseWriter, r *http.Request) {
	slog.Debug("scale register", "query", r.URL.Query())
	w.WriteHeader(http.StatusOK)
}

func (c *scaleControllerImpl) handleValidate(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, "T")
}

func (c *scaleControllerImpl) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, "Hello from helvetic!")
}

func (c *scaleControllerImpl) handleNotFound(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/portal", http.StatusFound)
}

func (c *scaleControllerImpl) handlePortal(w http.ResponseWriter, r *http.Request) {
	p := c.service.Profile()
	rec := c.service.Latest()
	data := &views.PortalData{
		DeviceName: p.DeviceName,
		UserName:   p.User.Name,
		Gender:     p.User.Gender.String(),
		Age:        p.User.Age,
		HeightMM:   p.User.Height,
		WeightKg:   rec.Weight,
		BodyFatPct: rec.BodyFat,
		Impedance:  rec.Impedance,
		MeasuredAt: rec.Time(),
		HasReading: rec.Timestamp != 0 || rec.Weight != 0,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.RenderPortal(w, data); err != nil {
		slog.Error("portal template render failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to render page")
	}
}

func (c *scaleControllerImpl) handleLatest(w http.ResponseWriter, r *http.Request) {
	msg := measurement.NewMessage(c.service.Profile().DeviceName, c.service.Latest())
	utils.WriteJSON(w, http.StatusOK, msg)
}
