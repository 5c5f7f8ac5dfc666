package scenario

// Store exposes scenario retrieval for services and HTTP handlers.
type Store interface {
	List() []Scenario
	FindByID(id string) (Scenario, bool)
}

// MemoryStore implements Store with an in-memory slice.
type MemoryStore struct {
	items []Scenario
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied scenarios.
func NewMemoryStore(items []Scenario) *MemoryStore {
	return &MemoryStore{items: append([]Scenario(nil), items...)}
}

// List returns the scenario list.
func (s *MemoryStore) List() []Scenario {
	return append([]Scenario(nil), s.items...)
}

// FindByID looks up a scenario by identifier.
func (s *MemoryStore) FindByID(id string) (Scenario, bool) {
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return Scenario{}, false
}
