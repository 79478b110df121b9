package erpsync_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-stock/internal/erpsync"
	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	"github.com/odyssey-erp/odyssey-stock/internal/masterdata"
	"github.com/odyssey-erp/odyssey-stock/internal/movement"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
	"github.com/odyssey-erp/odyssey-stock/internal/testutil"
)

type memoryLog struct {
	mu      sync.Mutex
	entries []erpsync.LogEntry
}

func (l *memoryLog) Record(_ context.Context, entry erpsync.LogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

type env struct {
	store     *testutil.Store
	movements *testutil.Movements
	log       *memoryLog
	service   *erpsync.Service
	product   masterdata.Product
	dock      masterdata.Location
	shelf     masterdata.Location
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := testutil.NewStore()
	catalog := testutil.NewCatalog()
	notifier := &testutil.Notifier{}
	inv := inventory.NewService(&testutil.InventoryRepo{Store: store, Catalog: catalog}, nil, inventory.ServiceConfig{}, notifier, nil)
	movements := testutil.NewMovements(store)
	poster := movement.NewService(movements, catalog, inv, nil, notifier, nil)
	wh := catalog.AddWarehouse("main")
	log := &memoryLog{}
	return &env{
		store:     store,
		movements: movements,
		log:       log,
		service:   erpsync.NewService(catalog, poster, log, erpsync.Config{SystemUserID: 1}, nil),
		product:   catalog.AddProduct(masterdata.Product{SKU: "BOLT-10", Name: "Bolt"}),
		dock:      catalog.AddLocation(wh.ID, "DOCK"),
		shelf:     catalog.AddLocation(wh.ID, "SHELF-1"),
	}
}

func (e *env) receive(reference, qty string) erpsync.Request {
	return erpsync.Request{
		Reference: reference,
		Type:      inventory.MovementReceive,
		Lines:     []erpsync.RequestLine{{SKU: " bolt-10 ", ToLocation: "dock", Qty: testutil.D(qty), UnitCost: testutil.D("1.5")}},
	}
}

func TestSyncMovementPostsAsSystemUser(t *testing.T) {
	e := newEnv(t)

	result, err := e.service.SyncMovement(context.Background(), e.receive("ERP-1", "12"))
	require.NoError(t, err)
	require.Equal(t, "MV-000001", result.Number)
	require.Equal(t, string(movement.StatusPosted), result.Status)

	key := inventory.BalanceKey{ProductID: e.product.ID, LocationID: e.dock.ID}
	require.True(t, e.store.Balance(key).QtyOnHand.Equal(testutil.D("12")))

	events := e.store.EventsFor(shared.DocStockMovement, result.MovementID)
	require.NotEmpty(t, events)
	for _, ev := range events {
		require.Equal(t, int64(1), ev.ActorID)
	}

	require.Len(t, e.log.entries, 1)
	entry := e.log.entries[0]
	require.Equal(t, erpsync.LogSuccess, entry.Status)
	require.Equal(t, "erp", entry.Source)
	require.Equal(t, result.MovementID, entry.MovementID)
	require.Equal(t, result.CorrelationID, entry.CorrelationID)
}

func TestSyncMovementReplayIsDuplicate(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.service.SyncMovement(ctx, e.receive("ERP-2", "5"))
	require.NoError(t, err)
	_, err = e.service.SyncMovement(ctx, e.receive("ERP-2", "5"))
	require.ErrorIs(t, err, shared.ErrDuplicateDocument)

	require.Len(t, e.movements.All(), 1)
	require.Equal(t, map[string]string{"erp:ERP-2": erpsync.IdempotencyModule}, e.store.ClaimedKeys())
	require.Len(t, e.log.entries, 2)
	require.Equal(t, erpsync.LogFailed, e.log.entries[1].Status)
	require.Equal(t, string(shared.CodeDuplicateDocument), e.log.entries[1].ErrorCode)
}

func TestFailedSyncReleasesReference(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	issue := erpsync.Request{
		Reference: "ERP-3",
		Type:      inventory.MovementIssue,
		Lines:     []erpsync.RequestLine{{SKU: "BOLT-10", FromLocation: "SHELF-1", Qty: testutil.D("4")}},
	}

	_, err := e.service.SyncMovement(ctx, issue)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.Empty(t, e.movements.All())
	require.Empty(t, e.store.ClaimedKeys())
	require.Equal(t, string(shared.CodeInsufficientStock), e.log.entries[0].ErrorCode)

	e.store.SetBalance(inventory.BalanceKey{ProductID: e.product.ID, LocationID: e.shelf.ID}, testutil.D("10"), testutil.D("1"))
	_, err = e.service.SyncMovement(ctx, issue)
	require.NoError(t, err)
}

func TestSyncMovementNeedsSystemUser(t *testing.T) {
	e := newEnv(t)
	svc := erpsync.NewService(testutil.NewCatalog(), nil, e.log, erpsync.Config{}, nil)

	_, err := svc.SyncMovement(context.Background(), e.receive("ERP-9", "1"))
	require.ErrorIs(t, err, shared.ErrMisconfigured)
	require.Equal(t, shared.CodeMisconfigured, shared.CodeOf(err))
	require.False(t, shared.IsRetryable(err))
}

func TestSyncMovementResolvesCodes(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.service.SyncMovement(ctx, erpsync.Request{
		Reference: "ERP-4",
		Type:      inventory.MovementReceive,
		Lines:     []erpsync.RequestLine{{SKU: "NOPE", ToLocation: "DOCK", Qty: testutil.D("1")}},
	})
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = e.service.SyncMovement(ctx, erpsync.Request{
		Reference: "ERP-5",
		Type:      inventory.MovementReceive,
		Lines:     []erpsync.RequestLine{{SKU: "BOLT-10", ToLocation: "NOWHERE", Qty: testutil.D("1")}},
	})
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = e.service.SyncMovement(ctx, erpsync.Request{Type: inventory.MovementReceive})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Empty(t, e.store.ClaimedKeys())
}

func TestKeyChecker(t *testing.T) {
	hashed, err := erpsync.HashKey("stored-secret")
	require.NoError(t, err)
	checker, err := erpsync.NewKeyChecker([]string{"plain-secret", hashed, " "})
	require.NoError(t, err)

	require.True(t, checker.Valid("plain-secret"))
	require.True(t, checker.Valid("stored-secret"))
	require.False(t, checker.Valid("guess"))
	require.False(t, checker.Valid(""))
}

func TestHandlerRequiresAPIKey(t *testing.T) {
	e := newEnv(t)
	checker, err := erpsync.NewKeyChecker([]string{"k1"})
	require.NoError(t, err)
	router := chi.NewRouter()
	router.Route("/api/erp/v1", erpsync.NewHandler(testutil.Logger(), e.service, checker).MountRoutes)

	body := `{"reference":"ERP-9","type":"RECEIVE","lines":[{"sku":"BOLT-10","to_location":"DOCK","qty":"3","unit_cost":"2"}]}`
	send := func(key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/erp/v1/movements", strings.NewReader(body))
		if key != "" {
			req.Header.Set(erpsync.APIKeyHeader, key)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusUnauthorized, send("").Code)
	require.Equal(t, http.StatusUnauthorized, send("wrong").Code)

	rec := send("k1")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))
	require.Contains(t, rec.Body.String(), fmt.Sprintf(`"number":%q`, "MV-000001"))

	require.Equal(t, http.StatusConflict, send("k1").Code)
}
