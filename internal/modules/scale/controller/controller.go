package controller

import (
	"context"
	"net/http"

	"github.com/niktheblak/web-common/pkg/auth"

	"github.com/tao-j/helvetic/internal/config"
	"github.com/tao-j/helvetic/internal/httpapi"
	"github.com/tao-j/helvetic/internal/measurement"
	"github.com/tao-j/helvetic/internal/modules/scale/service"
)

type ScaleService interface {
	HandleUpload(ctx context.Context, body []byte) (service.Result, error)
	Latest() measurement.Record
	Profile() config.Profile
}

type ScaleController interface {
	RegisterRoutes(mux *http.ServeMux)
}

type scaleControllerImpl struct {
	service       ScaleService
	authenticator auth.Authenticator
}

func NewScaleController(service ScaleService, authenticator auth.Authenticator) ScaleController {
	if authenticator == nil {
		authenticator = auth.AlwaysAllow()
	}
	return &scaleControllerImpl{service: service, authenticator: authenticator}
}

func (c *scaleControllerImpl) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /scale/upload", c.handleUpload)
	mux.HandleFunc("GET /scale/register", c.handleRegister)
	mux.HandleFunc("GET /scale/validate", c.handleValidate)
	mux.HandleFunc("GET /portal", c.handlePortal)
	mux.HandleFunc("GET /{$}", c.handleRoot)
	mux.Handle("GET /api/v1/measurement", httpapi.RequireBearer(http.HandlerFunc(c.handleLatest), c.authenticator))
	mux.HandleFunc("/", c.handleNotFound)
}
