package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/erpledger/internal/domain"
	"github.com/iho/erpledger/internal/usecase"
)

const (
	// IdempotencyKeyHeader carries the client's key for a mutating request.
	IdempotencyKeyHeader = "Idempotency-Key"
	// IdempotencyReplayHeader is set on responses served from the store.
	IdempotencyReplayHeader = "X-Idempotency-Replay"

	maxIdempotentBody = 1 << 20
)

// Idempotency makes POST requests carrying an Idempotency-Key safe to retry.
// The first request claims the key; a successful response is stored and
// replayed, status included, to later requests with the same key and body.
// A failed request releases the key. Keys are scoped by caller, method and
// path, so the middleware must run after authentication.
func Idempotency(store usecase.IdempotencyStore, ttl time.Duration, logger zerolog.Logger) func(http.Handler) http.Handler {
	if ttl <= 0 {
		ttl = usecase.IdempotencyKeyTTL
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get(IdempotencyKeyHeader)
			if r.Method != http.MethodPost || header == "" {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxIdempotentBody))
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					writeError(w, http.StatusRequestEntityTooLarge, "request body too large", "")
					return
				}
				writeError(w, http.StatusBadRequest, "invalid request body", "")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			log := logger.With().Str("idempotency_key", header).Logger()
			key := domain.RequestMetaFromContext(r.Context()).UserID + "|" + r.Method + "|" + r.URL.Path + "|" + header
			fp := fingerprint(body)

			held, err := store.Claim(r.Context(), key, fp, ttl)
			if err != nil {
				log.Error().Err(err).Msg("claim idempotency key")
				writeError(w, http.StatusInternalServerError, "idempotency check failed", "")
				return
			}
			if held != nil {
				replay(w, held, fp)
				return
			}

			// The outcome is stored even if the client has gone away.
			ctx := context.WithoutCancel(r.Context())
			rec := &capture{ResponseWriter: w, status: http.StatusOK}
			stored := false
			defer func() {
				if stored {
					return
				}
				if err := store.Release(ctx, key); err != nil {
					log.Warn().Err(err).Msg("release idempotency key")
				}
			}()

			next.ServeHTTP(rec, r)

			if rec.status < 200 || rec.status >= 300 {
				return
			}
			resp := &usecase.StoredResponse{Fingerprint: fp, Status: rec.status, Body: rec.body.Bytes()}
			if err := store.Complete(ctx, key, resp, ttl); err != nil {
				log.Warn().Err(err).Msg("store idempotent response")
				return
			}
			stored = true
		})
	}
}

func replay(w http.ResponseWriter, held *usecase.StoredResponse, fp string) {
	switch {
	case held.Fingerprint != fp:
		writeError(w, http.StatusUnprocessableEntity, "idempotency key reused",
			"the key was first used with a different request body")
	case held.Pending():
		writeError(w, http.StatusConflict, "request in progress",
			"a request with this idempotency key is still running")
	default:
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set(IdempotencyReplayHeader, "true")
		w.WriteHeader(held.Status)
		_, _ = w.Write(held.Body)
	}
}

func fingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// capture tees the response so it can be stored.
type capture struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (c *capture) WriteHeader(status int) {
	c.status = status
	c.ResponseWriter.WriteHeader(status)
}

func (c *capture) Write(b []byte) (int, error) {
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}
