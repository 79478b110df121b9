package rbac

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-stock/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// Invalidator drops cached grants of one user.
type Invalidator interface {
	Invalidate(ctx context.Context, userID int64) error
}

// PermissionsHandler reports the calling actor's grants and lets
// administrators flush cached grants after a role change.
type PermissionsHandler struct {
	logger *slog.Logger
	cache  Invalidator
}

// NewPermissionsHandler builds PermissionsHandler instance. cache may be nil,
// in which case the admin routes are not mounted.
func NewPermissionsHandler(logger *slog.Logger, cache Invalidator) *PermissionsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PermissionsHandler{logger: logger, cache: cache}
}

// MountRoutes registers the /me routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Get("/", h.me)
}

// MountAdminRoutes registers the grant cache routes.
func (h *PermissionsHandler) MountAdminRoutes(r chi.Router) {
	if h.cache == nil {
		return
	}
	r.Delete("/grants/{userID}", h.invalidate)
}

func (h *PermissionsHandler) me(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.Actor(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"user_id":     actor.ID,
		"role":        actor.Role,
		"permissions": actor.Permissions,
	})
}

func (h *PermissionsHandler) invalidate(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.Actor(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !actor.Can(shared.PermRBACManage) {
		httpx.RespondError(w, shared.ErrPermissionDenied)
		return
	}
	userID, err := httpx.IDParam(r, "userID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.cache.Invalidate(r.Context(), userID); err != nil {
		h.logger.Error("rbac invalidate grants", slog.Int64("user_id", userID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("rbac grants invalidated", slog.Int64("user_id", userID), slog.Int64("actor_id", actor.ID))
	w.WriteHeader(http.StatusNoContent)
}
