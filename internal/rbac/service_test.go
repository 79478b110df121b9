package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

func newCachedService(t *testing.T, loader Loader) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewService(loader, client, time.Minute, nil), mr
}

func TestResolveCachesGrants(t *testing.T) {
	var loads atomic.Int32
	svc, mr := newCachedService(t, LoaderFunc(func(context.Context, int64) (Grants, error) {
		loads.Add(1)
		return Grants{Role: "warehouse", Permissions: []string{"Inventory.View", "inventory.view", " movement.post "}}, nil
	}))
	ctx := context.Background()

	actor, err := svc.Resolve(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, int64(42), actor.ID)
	require.Equal(t, "warehouse", actor.Role)
	require.Equal(t, []string{"inventory.view", "movement.post"}, actor.Permissions)
	require.True(t, mr.Exists("odyssey-stock:rbac:grants:42"))

	_, err = svc.Resolve(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, int32(1), loads.Load())

	mr.FastForward(2 * time.Minute)
	_, err = svc.Resolve(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, int32(2), loads.Load())
}

func TestInvalidateForcesReload(t *testing.T) {
	var loads atomic.Int32
	svc, _ := newCachedService(t, LoaderFunc(func(context.Context, int64) (Grants, error) {
		loads.Add(1)
		return Grants{Role: "finance"}, nil
	}))
	ctx := context.Background()

	_, err := svc.Resolve(ctx, 7)
	require.NoError(t, err)
	require.NoError(t, svc.Invalidate(ctx, 7))
	_, err = svc.Resolve(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, int32(2), loads.Load())
}

func TestConcurrentMissesShareOneLoad(t *testing.T) {
	var loads atomic.Int32
	release := make(chan struct{})
	svc := NewService(LoaderFunc(func(context.Context, int64) (Grants, error) {
		loads.Add(1)
		<-release
		return Grants{Role: "warehouse"}, nil
	}), nil, 0, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Resolve(context.Background(), 3)
			assert.NoError(t, err)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	require.Equal(t, int32(1), loads.Load())
}

func TestCorruptCacheEntryFallsBackToLoader(t *testing.T) {
	svc, mr := newCachedService(t, LoaderFunc(func(context.Context, int64) (Grants, error) {
		return Grants{Role: "buyer", Permissions: []string{"procurement.pr.create"}}, nil
	}))
	require.NoError(t, mr.Set("rbac:grants:5", "{not json"))

	actor, err := svc.Resolve(context.Background(), 5)
	require.NoError(t, err)
	require.Equal(t, "buyer", actor.Role)
}

func TestResolveRejectsInvalidUser(t *testing.T) {
	svc := NewService(LoaderFunc(func(context.Context, int64) (Grants, error) {
		t.Fatal("loader must not run")
		return Grants{}, nil
	}), nil, 0, nil)
	_, err := svc.Resolve(context.Background(), 0)
	require.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestMiddlewareResolvesActor(t *testing.T) {
	svc := NewService(LoaderFunc(func(_ context.Context, userID int64) (Grants, error) {
		return Grants{Role: "warehouse", Permissions: []string{shared.PermInventoryView}}, nil
	}), nil, 0, nil)
	mw := Middleware{Service: svc}

	router := chi.NewRouter()
	router.Use(mw.Authenticate)
	router.With(mw.RequireAny(shared.PermInventoryView)).Mount("/me", func() http.Handler {
		r := chi.NewRouter()
		NewPermissionsHandler(nil, nil).MountRoutes(r)
		return r
	}())
	router.With(mw.RequireAny(shared.PermPOApprove)).Get("/approve", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(UserHeader, "12")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"role":"warehouse"`)

	req = httptest.NewRequest(http.MethodGet, "/approve", nil)
	req.Header.Set(UserHeader, "12")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDefaultRolesCoverScopes(t *testing.T) {
	roles := DefaultRoles()
	byName := make(map[string][]string, len(roles))
	for _, r := range roles {
		byName[r.Name] = normalizePermissions(r.Permissions)
	}
	require.Contains(t, byName["admin"], shared.PermAuditView)
	for _, perm := range shared.InventoryScopes() {
		require.Contains(t, byName["admin"], perm)
		require.Contains(t, byName["warehouse"], perm)
	}
	require.Contains(t, byName["purchasing"], shared.PermPRConvert)
	require.NotContains(t, byName["auditor"], shared.PermMovementPost)
}

func TestAdminRoutesInvalidateGrants(t *testing.T) {
	var loads atomic.Int32
	svc, mr := newCachedService(t, LoaderFunc(func(_ context.Context, userID int64) (Grants, error) {
		loads.Add(1)
		if userID == 1 {
			return Grants{Role: "admin", Permissions: []string{shared.PermRBACManage}}, nil
		}
		return Grants{Role: "warehouse", Permissions: []string{shared.PermInventoryView}}, nil
	}))
	mw := Middleware{Service: svc}
	router := chi.NewRouter()
	router.Use(mw.Authenticate)
	router.Route("/rbac", NewPermissionsHandler(nil, svc).MountAdminRoutes)

	_, err := svc.Resolve(context.Background(), 5)
	require.NoError(t, err)
	require.True(t, mr.Exists(cacheKey(5)))

	req := httptest.NewRequest(http.MethodDelete, "/rbac/grants/5", nil)
	req.Header.Set(UserHeader, "5")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.True(t, mr.Exists(cacheKey(5)))

	req = httptest.NewRequest(http.MethodDelete, "/rbac/grants/5", nil)
	req.Header.Set(UserHeader, "1")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.False(t, mr.Exists(cacheKey(5)))

	req = httptest.NewRequest(http.MethodDelete, "/rbac/grants/abc", nil)
	req.Header.Set(UserHeader, "1")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
