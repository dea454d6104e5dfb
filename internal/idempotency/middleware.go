package idempotency

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/saman-erp/saman-erp/internal/platform/httpx"
)

const (
	headerKey    = "Idempotency-Key"
	headerKeyAlt = "X-Idempotency-Key"
	// headerReplayed marks a response served from the store.
	headerReplayed = "Idempotent-Replayed"

	minKeyLength = 16
	maxKeyLength = 255
)

// MetricsPort counts replays served from the store.
type MetricsPort interface {
	IdempotentReplay()
}

// Fingerprint derives the deduplication key for one request.
func Fingerprint(method, path, key string) string {
	sum := sha256.Sum256([]byte(method + "|" + path + "|" + key))
	return hex.EncodeToString(sum[:])
}

type responseCapture struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (rc *responseCapture) WriteHeader(code int) {
	rc.status = code
	rc.ResponseWriter.WriteHeader(code)
}

func (rc *responseCapture) Write(p []byte) (int, error) {
	if rc.status == 0 {
		rc.status = http.StatusOK
	}
	rc.body.Write(p)
	return rc.ResponseWriter.Write(p)
}

// Middleware makes mutating handlers safe to retry. Idempotency is opt-in:
// requests without a key header pass straight through. Keyed requests replay
// a stored response, are rejected while the first attempt still runs, or
// execute the handler and persist its response.
func Middleware(store Store, metrics MetricsPort, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(headerKey)
			if key == "" {
				key = r.Header.Get(headerKeyAlt)
			}
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) < minKeyLength || len(key) > maxKeyLength {
				httpx.Problem(w, http.StatusBadRequest, "Validation Failed",
					fmt.Sprintf("idempotency key must be %d-%d characters", minKeyLength, maxKeyLength))
				return
			}

			fingerprint := Fingerprint(r.Method, r.URL.Path, key)
			state, record, err := store.Begin(r.Context(), fingerprint)
			if err != nil {
				logger.Error("idempotency begin", slog.Any("error", err))
				// Fail open: the handler is the priority, dedup is best effort.
				next.ServeHTTP(w, r)
				return
			}

			switch state {
			case StateCompleted:
				if metrics != nil {
					metrics.IdempotentReplay()
				}
				if record.ContentType != "" {
					w.Header().Set("Content-Type", record.ContentType)
				}
				w.Header().Set(headerKeyAlt, key)
				w.Header().Set(headerReplayed, "true")
				w.WriteHeader(record.Status)
				w.Write(record.Body)
				return
			case StateProcessing:
				httpx.Problem(w, http.StatusConflict, "Request In Progress",
					"a request with this idempotency key is still being processed")
				return
			}

			w.Header().Set(headerKeyAlt, key)
			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			// 5xx responses are not worth replaying; forget the marker so the
			// client can retry immediately.
			if capture.status >= http.StatusInternalServerError {
				if err := store.Forget(r.Context(), fingerprint); err != nil {
					logger.Warn("idempotency forget", slog.Any("error", err))
				}
				return
			}
			rec := Record{
				Status:      capture.status,
				ContentType: capture.Header().Get("Content-Type"),
				Body:        capture.body.Bytes(),
			}
			if err := store.Complete(r.Context(), fingerprint, rec); err != nil {
				logger.Warn("idempotency complete", slog.Any("error", err))
			}
		})
	}
}
