package httpapi

import (
	"net/http"
	"time"
)

// maxUploadBytes bounds request bodies; uploads are a few hundred bytes.
const maxUploadBytes = 64 << 10

func NewServer(addr string, mux *http.ServeMux) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           requestLogger(limitBody(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		}
		next.ServeHTTP(w, r)
	})
}
