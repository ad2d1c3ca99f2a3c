package graph

// EntityMap is the two-level index (domain type → object id → entity) of all
// imported entities. Insertion order is preserved per level so submission
// runs are deterministic.
type EntityMap struct {
	entities    map[string]map[string]*Entity
	domainOrder []string
	idOrder     map[string][]string
}

// NewEntityMap creates an empty map
func NewEntityMap() *EntityMap {
	return &EntityMap{
		entities: make(map[string]map[string]*Entity),
		idOrder:  make(map[string][]string),
	}
}

// Add inserts an entity. A reference stub and its canonical entity merge
// into one; two canonical entities for the same (domain, id) are an error.
func (m *EntityMap) Add(entity *Entity) error {
	byID, ok := m.entities[entity.DomainType]
	if !ok {
		byID = make(map[string]*Entity)
		m.entities[entity.DomainType] = byID
		m.domainOrder = append(m.domainOrder, entity.DomainType)
	}

	existing, ok := byID[entity.ObjectID]
	if !ok {
		byID[entity.ObjectID] = entity
		m.idOrder[entity.DomainType] = append(m.idOrder[entity.DomainType], entity.ObjectID)
		return nil
	}

	if !existing.IsReference && !entity.IsReference {
		return &DuplicateEntityError{DomainType: entity.DomainType, ObjectID: entity.ObjectID}
	}
	existing.mergeFrom(entity)
	return nil
}

// Get looks an entity up by (domain type, object id)
func (m *EntityMap) Get(domainType, objectID string) (*Entity, bool) {
	e, ok := m.entities[domainType][objectID]
	return e, ok
}

// Entities returns all entities in insertion order
func (m *EntityMap) Entities() []*Entity {
	var out []*Entity
	for _, domain := range m.domainOrder {
		for _, id := range m.idOrder[domain] {
			out = append(out, m.entities[domain][id])
		}
	}
	return out
}

// NonReferences returns all entities that carry real content, in insertion
// order.
func (m *EntityMap) NonReferences() []*Entity {
	var out []*Entity
	for _, e := range m.Entities() {
		if !e.IsReference {
			out = append(out, e)
		}
	}
	return out
}

// OfDomain returns the entities of one domain type in insertion order
func (m *EntityMap) OfDomain(domainType string) []*Entity {
	var out []*Entity
	for _, id := range m.idOrder[domainType] {
		out = append(out, m.entities[domainType][id])
	}
	return out
}

// Project returns the distinguished project entity. The map must contain
// exactly one.
func (m *EntityMap) Project() (*Entity, error) {
	projects := m.OfDomain("project")
	if len(projects) != 1 {
		return nil, &ProjectCountError{Count: len(projects)}
	}
	return projects[0], nil
}

// Count returns the total number of entities
func (m *EntityMap) Count() int {
	n := 0
	for _, byID := range m.entities {
		n += len(byID)
	}
	return n
}

// CountDomain returns the number of entities of one domain type
func (m *EntityMap) CountDomain(domainType string) int {
	return len(m.entities[domainType])
}
