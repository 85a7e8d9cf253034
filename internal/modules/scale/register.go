package scale

import (
	"net/http"

	"github.com/niktheblak/web-common/pkg/auth"

	"github.com/tao-j/helvetic/internal/modules/scale/controller"
	"github.com/tao-j/helvetic/internal/modules/scale/service"
)

func RegisterFeature(mux *http.ServeMux, svc *service.Service, authenticator auth.Authenticator) {
	scaleController := controller.NewScaleController(svc, authenticator)
	scaleController.RegisterRoutes(mux)
}
