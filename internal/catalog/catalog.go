package catalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// Item is the read-only view of a purchasable variant at lookup time.
type Item struct {
	SKU       string
	Name      string
	UnitPrice decimal.Decimal
}

// InconsistencyError means a SKU vanished (or was never there) between the
// cart being assembled and checkout reading its price. The caller retries
// checkout after adjusting the cart.
type InconsistencyError struct {
	SKU string
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("catalog has no sku=%s", e.SKU)
}

// Catalog is the collaborator boundary to the product catalog.
type Catalog interface {
	Item(ctx context.Context, sku string) (Item, error)
}

// Memory is an in-process catalog used in tests and dev wiring.
type Memory struct {
	mu    sync.RWMutex
	items map[string]Item
}

func NewMemory() *Memory {
	return &Memory{items: make(map[string]Item)}
}

func (m *Memory) Put(item Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[item.SKU] = item
}

func (m *Memory) Delete(sku string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, sku)
}

func (m *Memory) Item(_ context.Context, sku string) (Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.items[sku]
	if !ok {
		return Item{}, &InconsistencyError{SKU: sku}
	}
	return item, nil
}
