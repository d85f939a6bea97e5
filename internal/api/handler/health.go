package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/ayo6706/wallet-policy/internal/service"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// HealthHandler exposes Kubernetes-style liveness and readiness endpoints.
type HealthHandler struct {
	db        *pgxpool.Pool
	redis     redis.Cmdable
	snapshots *service.SnapshotStore
}

// NewHealthHandler accepts nil db and redis for the in-memory backend.
func NewHealthHandler(db *pgxpool.Pool, redis redis.Cmdable, snapshots *service.SnapshotStore) *HealthHandler {
	return &HealthHandler{db: db, redis: redis, snapshots: snapshots}
}

// Live always reports OK – if the process is up, it's live.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready checks dependencies and that a policy snapshot has been loaded.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
	defer cancel()

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			RespondError(w, r, http.StatusServiceUnavailable, "health/database-unavailable", "database unavailable")
			return
		}
	}

	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err != nil {
			RespondError(w, r, http.StatusServiceUnavailable, "health/redis-unavailable", "redis unavailable")
			return
		}
	}

	snap := h.snapshots.Load()
	if snap == nil {
		RespondError(w, r, http.StatusServiceUnavailable, "health/snapshot-missing", "policy snapshot not loaded")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]any{
		"status":             "ready",
		"snapshot_loaded_at": snap.LoadedAt,
	})
}
