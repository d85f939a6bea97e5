package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/ayo6706/wallet-policy/internal/api/problem"
	"github.com/ayo6706/wallet-policy/internal/idempotency"
	"github.com/ayo6706/wallet-policy/internal/observability"
	"go.uber.org/zap"
)

// ResolveIdempotency makes a resolve call safe to retry: a repeated
// Idempotency-Key replays the stored decision instead of granting cashback a
// second time. Keys are scoped to the calling service, and the request hash
// covers the JSON body's content rather than its formatting.
func ResolveIdempotency(store *idempotency.Store, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if store == nil {
				next.ServeHTTP(w, r)
				return
			}

			clientKey := r.Header.Get("Idempotency-Key")
			if clientKey == "" {
				observability.IncrementIdempotencyEvent("missing_key")
				problem.Write(w, r, http.StatusBadRequest, problem.Type("idempotency/missing-key"), "", "Idempotency-Key header is required")
				return
			}

			bodyBytes, err := io.ReadAll(r.Body)
			if err != nil {
				problem.Write(w, r, http.StatusBadRequest, problem.Type("request/invalid-body"), "", "Failed to read request body")
				return
			}
			_ = r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))

			caller, _ := CallerFromContext(r.Context())
			key := scopedKey(caller.Subject, clientKey)
			reqHash := hashResolveRequest(r.URL.Path, bodyBytes)
			log := logger.With(zap.String("idempotency_key", clientKey), zap.String("caller", caller.Subject))

			replay := func(rec *idempotency.Record, event string) {
				observability.IncrementIdempotencyEvent(event)
				respondFromRecord(w, rec)
			}
			inProgress := func(waitErr error) {
				observability.IncrementIdempotencyEvent("in_progress_conflict")
				log.Warn("idempotency wait failed", zap.Error(waitErr))
				problem.Write(w, r, http.StatusConflict, problem.Type("idempotency/in-progress"), "", "a resolve with this key is still running")
			}

			rec, err := store.Lookup(r.Context(), key, reqHash)
			switch {
			case err == nil:
				replay(rec, "replay")
				return
			case errors.Is(err, idempotency.ErrHashMismatch):
				observability.IncrementIdempotencyEvent("hash_mismatch")
				problem.Write(w, r, http.StatusConflict, problem.Type("idempotency/key-conflict"), "", "Idempotency-Key was already used for a different transaction")
				return
			case errors.Is(err, idempotency.ErrInProgress):
				if rec, waitErr := store.WaitForCompletion(r.Context(), key, reqHash); waitErr == nil {
					replay(rec, "replay_after_wait")
				} else {
					inProgress(waitErr)
				}
				return
			case !errors.Is(err, idempotency.ErrNotFound):
				observability.IncrementIdempotencyEvent("lookup_error")
				log.Warn("idempotency lookup failed", zap.Error(err))
			}

			reserved, err := store.Reserve(r.Context(), key, reqHash, r.Method, r.URL.Path)
			if err != nil {
				observability.IncrementIdempotencyEvent("reserve_error")
				log.Error("idempotency reserve failed", zap.Error(err))
				problem.Write(w, r, http.StatusServiceUnavailable, problem.Type("idempotency/unavailable"), "", "resolve is unavailable until idempotency storage recovers")
				return
			}
			if !reserved {
				if rec, waitErr := store.WaitForCompletion(r.Context(), key, reqHash); waitErr == nil {
					replay(rec, "replay_after_reserve")
				} else {
					inProgress(waitErr)
				}
				return
			}
			observability.IncrementIdempotencyEvent("reserved")

			recorder := &bodyRecorder{ResponseWriter: w}
			next.ServeHTTP(recorder, r)

			contentType := recorder.Header().Get("Content-Type")
			if contentType == "" {
				contentType = "application/json"
			}
			if recorder.status == 0 {
				recorder.status = http.StatusOK
			}

			if _, err := store.Finalize(r.Context(), key, reqHash, recorder.status, recorder.body.Bytes(), contentType); err != nil {
				observability.IncrementIdempotencyEvent("finalize_error")
				log.Warn("idempotency finalize failed", zap.Error(err))
				return
			}
			observability.IncrementIdempotencyEvent("finalized")
		})
	}
}

// scopedKey keeps two services that happen to pick the same key apart.
func scopedKey(subject, key string) string {
	return subject + "/" + key
}

// hashResolveRequest hashes the path and a canonical form of the body. JSON
// is re-encoded so key order and whitespace do not change the hash; numbers
// keep their literal text. A body that is not JSON is hashed as sent.
func hashResolveRequest(path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(path))
	h.Write([]byte{'|'})
	h.Write(canonicalJSON(body))
	return hex.EncodeToString(h.Sum(nil))
}

func canonicalJSON(body []byte) []byte {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return body
	}
	if _, err := dec.Token(); err != io.EOF {
		return body
	}
	out, err := json.Marshal(v)
	if err != nil {
		return body
	}
	return out
}

type bodyRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (br *bodyRecorder) WriteHeader(code int) {
	br.status = code
	br.ResponseWriter.WriteHeader(code)
}

func (br *bodyRecorder) Write(b []byte) (int, error) {
	if br.status == 0 {
		br.status = http.StatusOK
	}
	br.body.Write(b)
	return br.ResponseWriter.Write(b)
}

func respondFromRecord(w http.ResponseWriter, rec *idempotency.Record) {
	w.Header().Set("Content-Type", rec.ContentType)
	w.Header().Set("X-Idempotent-Replay", rec.ServedBy)
	w.WriteHeader(rec.Status)
	_, _ = w.Write(rec.Body)
}
