package httpapi

import "net/http"

func NewMux(pinger Pinger) *http.ServeMux {
	mux := http.NewServeMux()
	registerHealthcheck(mux, pinger)
	return mux
}
