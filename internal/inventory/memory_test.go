package inventory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLedger(t *testing.T) *MemoryLedger {
	t.Helper()
	l := NewMemoryLedger()
	ctx := context.Background()
	require.NoError(t, l.SetStock(ctx, "WIDGET-1", 5, 0))
	require.NoError(t, l.SetStock(ctx, "WIDGET-2", 10, 0))
	return l
}

func TestMemoryLedger_ReserveDecrementsImmediately(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()

	token, err := l.Reserve(ctx, []ItemQuantity{{SKU: "WIDGET-1", Quantity: 3}})
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	avail, err := l.Available(ctx, "WIDGET-1")
	require.NoError(t, err)
	assert.Equal(t, 2, avail)

	res, ok := l.Reservation(token)
	require.True(t, ok)
	assert.Equal(t, ReservationReserved, res.Status)
}

func TestMemoryLedger_ReserveInsufficient(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()

	_, err := l.Reserve(ctx, []ItemQuantity{{SKU: "WIDGET-1", Quantity: 6}})

	var stockErr *StockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "WIDGET-1", stockErr.SKU)
	assert.Equal(t, 6, stockErr.Requested)
	assert.Equal(t, 5, stockErr.Available)

	avail, _ := l.Available(ctx, "WIDGET-1")
	assert.Equal(t, 5, avail)
}

func TestMemoryLedger_ReserveAllOrNothing(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()

	// Second item cannot be covered; the first must stay untouched.
	_, err := l.Reserve(ctx, []ItemQuantity{
		{SKU: "WIDGET-1", Quantity: 2},
		{SKU: "WIDGET-2", Quantity: 11},
	})

	var stockErr *StockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "WIDGET-2", stockErr.SKU)

	a1, _ := l.Available(ctx, "WIDGET-1")
	a2, _ := l.Available(ctx, "WIDGET-2")
	assert.Equal(t, 5, a1)
	assert.Equal(t, 10, a2)
}

func TestMemoryLedger_ReserveUnknownSKU(t *testing.T) {
	l := setupLedger(t)

	_, err := l.Reserve(context.Background(), []ItemQuantity{{SKU: "NOPE", Quantity: 1}})
	assert.ErrorIs(t, err, ErrUnknownSKU)
}

func TestMemoryLedger_ReserveRejectsBadInput(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()

	_, err := l.Reserve(ctx, nil)
	assert.ErrorIs(t, err, ErrEmptyReservation)

	_, err = l.Reserve(ctx, []ItemQuantity{{SKU: "WIDGET-1", Quantity: 0}})
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = l.Reserve(ctx, []ItemQuantity{{SKU: "WIDGET-1", Quantity: -2}})
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestMemoryLedger_ReserveMergesDuplicateSKUs(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()

	_, err := l.Reserve(ctx, []ItemQuantity{
		{SKU: "WIDGET-1", Quantity: 2},
		{SKU: "WIDGET-1", Quantity: 2},
	})
	require.NoError(t, err)

	avail, _ := l.Available(ctx, "WIDGET-1")
	assert.Equal(t, 1, avail)
}

func TestMemoryLedger_ConcurrentContention(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()

	// Two reservations of 3 against 5 units: exactly one can win.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = l.Reserve(ctx, []ItemQuantity{{SKU: "WIDGET-1", Quantity: 3}})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			var stockErr *StockError
			assert.ErrorAs(t, err, &stockErr)
		}
	}
	assert.Equal(t, 1, wins)

	avail, _ := l.Available(ctx, "WIDGET-1")
	assert.Equal(t, 2, avail)
}

func TestMemoryLedger_ConcurrentNeverOversells(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()
	require.NoError(t, l.SetStock(ctx, "HOT-ITEM", 100, 0))

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Reserve(ctx, []ItemQuantity{{SKU: "HOT-ITEM", Quantity: 7}}); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 14, wins) // 100 / 7
	avail, _ := l.Available(ctx, "HOT-ITEM")
	assert.Equal(t, 2, avail)
}

func TestMemoryLedger_CommitIsIdempotent(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()

	token, err := l.Reserve(ctx, []ItemQuantity{{SKU: "WIDGET-1", Quantity: 3}})
	require.NoError(t, err)

	require.NoError(t, l.Commit(ctx, token))
	require.NoError(t, l.Commit(ctx, token))

	res, _ := l.Reservation(token)
	assert.Equal(t, ReservationCommitted, res.Status)

	// Commit does not change quantity; the decrement already happened.
	avail, _ := l.Available(ctx, "WIDGET-1")
	assert.Equal(t, 2, avail)
}

func TestMemoryLedger_CommitUnknownToken(t *testing.T) {
	l := setupLedger(t)
	assert.ErrorIs(t, l.Commit(context.Background(), "nope"), ErrReservationNotFound)
}

func TestMemoryLedger_CommitAfterRelease(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()

	token, _ := l.Reserve(ctx, []ItemQuantity{{SKU: "WIDGET-1", Quantity: 1}})
	require.NoError(t, l.Release(ctx, token))

	assert.ErrorIs(t, l.Commit(ctx, token), ErrReservationState)
}

func TestMemoryLedger_ReleaseRestoresAndIsIdempotent(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()

	token, _ := l.Reserve(ctx, []ItemQuantity{{SKU: "WIDGET-1", Quantity: 3}})

	require.NoError(t, l.Release(ctx, token))
	avail, _ := l.Available(ctx, "WIDGET-1")
	assert.Equal(t, 5, avail)

	// Double release must not add the stock back twice.
	require.NoError(t, l.Release(ctx, token))
	avail, _ = l.Available(ctx, "WIDGET-1")
	assert.Equal(t, 5, avail)
}

func TestMemoryLedger_ReleaseAfterCommitRestores(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()

	token, _ := l.Reserve(ctx, []ItemQuantity{
		{SKU: "WIDGET-1", Quantity: 3},
		{SKU: "WIDGET-2", Quantity: 4},
	})
	require.NoError(t, l.Commit(ctx, token))
	require.NoError(t, l.Release(ctx, token))

	a1, _ := l.Available(ctx, "WIDGET-1")
	a2, _ := l.Available(ctx, "WIDGET-2")
	assert.Equal(t, 5, a1)
	assert.Equal(t, 10, a2)
}

func TestMemoryLedger_LowStockCallback(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()
	require.NoError(t, l.SetStock(ctx, "SCARCE", 6, 5))

	var mu sync.Mutex
	var got []ItemQuantity
	l.OnLowStock = func(sku string, remaining int) {
		mu.Lock()
		got = append(got, ItemQuantity{SKU: sku, Quantity: remaining})
		mu.Unlock()
	}

	// 6 -> 4 crosses the threshold of 5.
	_, err := l.Reserve(ctx, []ItemQuantity{{SKU: "SCARCE", Quantity: 2}})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, "SCARCE", got[0].SKU)
	assert.Equal(t, 4, got[0].Quantity)
}
