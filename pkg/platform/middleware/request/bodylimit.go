package request

import (
	"net/http"
)

// BodyLimit caps request bodies. A declared Content-Length over the limit is
// rejected with 413 before the handler runs; undeclared bodies are cut off by
// http.MaxBytesReader, which makes the decoder fail.
func BodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				writeJSONError(w, http.StatusRequestEntityTooLarge, "request_too_large", "request body too large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
