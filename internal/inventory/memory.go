package inventory

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps everything in process memory. Ids restart at 1 on every run.
type MemoryStore struct {
	mu sync.RWMutex

	users     map[int64]*User
	locations map[int64]*Location
	items     map[int64]*FoodItem

	nextUser, nextLocation, nextItem int64
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[int64]*User),
		locations: make(map[int64]*Location),
		items:     make(map[int64]*FoodItem),
	}
}

func (m *MemoryStore) CreateUser(_ context.Context, username, passwordHash string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Username == username {
			return nil, ErrUsernameTaken
		}
	}
	m.nextUser++
	u := &User{ID: m.nextUser, Username: username, PasswordHash: passwordHash}
	m.users[u.ID] = u
	c := *u
	return &c, nil
}

func (m *MemoryStore) GetUser(_ context.Context, id int64) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, notFound("user", id)
	}
	c := *u
	return &c, nil
}

func (m *MemoryStore) GetUserByUsername(_ context.Context, username string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if u.Username == username {
			c := *u
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ListLocations(_ context.Context, owner int64) ([]*Location, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	locations := make([]*Location, 0)
	for _, l := range m.locations {
		if l.UserID == owner {
			c := *l
			locations = append(locations, &c)
		}
	}
	sort.Slice(locations, func(i, j int) bool { return locations[i].ID < locations[j].ID })
	return locations, nil
}

func (m *MemoryStore) GetLocation(_ context.Context, owner, id int64) (*Location, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	l, ok := m.locations[id]
	if !ok || l.UserID != owner {
		return nil, notFound("location", id)
	}
	c := *l
	return &c, nil
}

func (m *MemoryStore) CreateLocation(_ context.Context, owner int64, in NewLocation) (*Location, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextLocation++
	l := &Location{ID: m.nextLocation, Name: in.Name, Type: in.Type, UserID: owner}
	m.locations[l.ID] = l
	c := *l
	return &c, nil
}

func (m *MemoryStore) UpdateLocation(_ context.Context, owner, id int64, patch LocationPatch) (*Location, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.locations[id]
	if !ok || l.UserID != owner {
		return nil, notFound("location", id)
	}
	patch.apply(l)
	c := *l
	return &c, nil
}

func (m *MemoryStore) DeleteLocation(_ context.Context, owner, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.locations[id]
	if !ok || l.UserID != owner {
		return notFound("location", id)
	}
	for _, item := range m.items {
		if item.LocationID == id {
			return ErrLocationInUse
		}
	}
	delete(m.locations, id)
	return nil
}

func (m *MemoryStore) ListFoodItems(_ context.Context, owner int64) ([]*FoodItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	items := make([]*FoodItem, 0)
	for _, f := range m.items {
		if f.UserID == owner {
			items = append(items, cloneFoodItem(f))
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (m *MemoryStore) GetFoodItem(_ context.Context, owner, id int64) (*FoodItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.items[id]
	if !ok || f.UserID != owner {
		return nil, notFound("food item", id)
	}
	return cloneFoodItem(f), nil
}

func (m *MemoryStore) CreateFoodItem(_ context.Context, owner int64, in NewFoodItem) (*FoodItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if l, ok := m.locations[in.LocationID]; !ok || l.UserID != owner {
		return nil, missingLocation(in.LocationID)
	}

	m.nextItem++
	f := newFoodItem(m.nextItem, owner, in, time.Now())
	m.items[f.ID] = f
	return cloneFoodItem(f), nil
}

func (m *MemoryStore) UpdateFoodItem(_ context.Context, owner, id int64, patch FoodItemPatch) (*FoodItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.items[id]
	if !ok || f.UserID != owner {
		return nil, notFound("food item", id)
	}
	if patch.LocationID != nil {
		if l, ok := m.locations[*patch.LocationID]; !ok || l.UserID != owner {
			return nil, missingLocation(*patch.LocationID)
		}
	}
	patch.apply(f)
	return cloneFoodItem(f), nil
}

func (m *MemoryStore) DeleteFoodItem(_ context.Context, owner, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.items[id]
	if !ok || f.UserID != owner {
		return notFound("food item", id)
	}
	delete(m.items, id)
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
