package storage

import (
	"context"
	"sync"

	"github.com/example/ride-dispatch/internal/models"
)

// MemoryStore keeps orders in a mutex-guarded map. It honors the same
// compare-and-set contract as the Postgres store, so tests exercise the
// exact race behavior the engine depends on.
type MemoryStore struct {
	mu     sync.RWMutex
	orders map[string]*models.Order
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{orders: make(map[string]*models.Order)}
}

func (m *MemoryStore) Create(ctx context.Context, o *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *MemoryStore) UpdateDetails(ctx context.Context, id string, patch DetailsPatch) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.Status != models.StatusWaiting {
		return nil, ErrNotFound
	}
	o.PassengerCount = patch.PassengerCount
	o.VehicleType = patch.VehicleType
	t := patch.DepartureTime
	o.DepartureTime = &t
	o.Price = patch.Price
	cp := *o
	return &cp, nil
}

func (m *MemoryStore) ConditionalTransition(ctx context.Context, id string, expected models.Status, patch TransitionPatch) (*models.Order, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.Status != expected {
		return nil, false, nil
	}
	o.Status = patch.Status
	if patch.DriverID != "" {
		o.DriverID = patch.DriverID
	}
	if patch.DriverName != "" {
		o.DriverName = patch.DriverName
	}
	if patch.CompletedAt != nil {
		t := *patch.CompletedAt
		o.CompletedAt = &t
	}
	cp := *o
	return &cp, true, nil
}

func (m *MemoryStore) PendingForVehicle(ctx context.Context, vehicle models.VehicleType) ([]*models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Order
	for _, o := range m.orders {
		if o.Status == models.StatusWaiting && o.VehicleType == vehicle {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}
