package middleware

import (
	"net/http"

	"github.com/google/uuid"
)

// MaxBodyBytes caps request bodies. Chat turns are short; anything larger
// than this is audio, which has its own route with its own cap.
const MaxBodyBytes = 64 << 10

// MaxAudioBytes caps transcription uploads.
const MaxAudioBytes = 15 << 20

// LimitBody rejects oversized request bodies.
func LimitBody(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}

// ValidUUID reports whether s parses as a UUID. Path ids are validated
// before they reach storage.
func ValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
