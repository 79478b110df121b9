package sequence_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-stock/internal/sequence"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
	"github.com/odyssey-erp/odyssey-stock/internal/testutil"
)

func TestFormat(t *testing.T) {
	require.Equal(t, "PR-000001", sequence.Format("PR-", 1, 6))
	require.Equal(t, "GRN-1234567", sequence.Format("GRN-", 1234567, 6))
	require.Equal(t, "MV7", sequence.Format("MV", 7, 0))
}

func TestNextSeedsDefaultsAndIncrements(t *testing.T) {
	store := testutil.NewStore()
	seq := sequence.New(nil)
	ctx := context.Background()

	first, err := seq.Next(ctx, store, shared.DocPurchaseOrder)
	require.NoError(t, err)
	require.Equal(t, "PO-000001", first)

	second, err := seq.Next(ctx, store, shared.DocPurchaseOrder)
	require.NoError(t, err)
	require.Equal(t, "PO-000002", second)

	other, err := seq.Next(ctx, store, shared.DocGoodsReceipt)
	require.NoError(t, err)
	require.Equal(t, "GRN-000001", other)
}

func TestNextUnknownType(t *testing.T) {
	_, err := sequence.New(nil).Next(context.Background(), testutil.NewStore(), shared.DocType("XX"))
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = sequence.New(nil).Next(context.Background(), testutil.NewStore(), "")
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestNextConcurrentCallersNeverDuplicate(t *testing.T) {
	store := testutil.NewStore()
	seq := sequence.New(nil)
	ctx := context.Background()

	const workers = 32
	numbers := make(chan string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := seq.Next(ctx, store, shared.DocStockMovement)
			require.NoError(t, err)
			numbers <- n
		}()
	}
	wg.Wait()
	close(numbers)

	seen := map[string]struct{}{}
	for n := range numbers {
		_, dup := seen[n]
		require.False(t, dup, n)
		seen[n] = struct{}{}
	}
	require.Len(t, seen, workers)
}
