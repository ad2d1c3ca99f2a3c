// Package graph holds the in-memory entity graph produced by the workbook
// importer: typed metadata entities, the two-level entity map, and the
// linker that validates declared links and synthesizes connector processes.
package graph

import (
	"fmt"

	"github.com/biobroker/biobroker/internal/jsondoc"
)

// SheetLocation records where an entity's row came from
type SheetLocation struct {
	Sheet string
	Row   int
}

// String renders the location for error messages
func (l SheetLocation) String() string {
	return fmt.Sprintf("%s!row %d", l.Sheet, l.Row)
}

// Entity is the in-memory representation of one workbook row during import.
// Content is immutable after import; the linker records direct links on the
// side and the submitter replaces the content with the registry-assigned
// resource.
type Entity struct {
	ConcreteType string
	DomainType   string
	ObjectID     string
	Content      *jsondoc.Node

	// LinksByEntity groups declared intra-workbook links by target domain
	// type; values are object ids.
	LinksByEntity map[string][]string
	// ExternalLinksByEntity groups links to pre-existing registry entities
	// by target domain type; values are UUIDs.
	ExternalLinksByEntity map[string][]string
	// LinkingDetails accumulates content for the connector process
	// synthesized from this entity's row.
	LinkingDetails *jsondoc.Node

	// IsReference marks an entity brought in purely by UUID
	IsReference bool
	Location    SheetLocation

	// RegistryURL and RegistryUUID are set once the registry has created
	// the entity.
	RegistryURL  string
	RegistryUUID string
}

// NewEntity creates an entity with empty content and link sets
func NewEntity(concreteType, domainType, objectID string) *Entity {
	return &Entity{
		ConcreteType:          concreteType,
		DomainType:            domainType,
		ObjectID:              objectID,
		Content:               jsondoc.New(),
		LinksByEntity:         make(map[string][]string),
		ExternalLinksByEntity: make(map[string][]string),
		LinkingDetails:        jsondoc.New(),
	}
}

// AddLink declares a link to another workbook entity
func (e *Entity) AddLink(domainType, objectID string) {
	e.LinksByEntity[domainType] = appendUnique(e.LinksByEntity[domainType], objectID)
}

// AddExternalLink declares a link to a pre-existing registry entity by UUID
func (e *Entity) AddExternalLink(domainType, uuid string) {
	e.ExternalLinksByEntity[domainType] = appendUnique(e.ExternalLinksByEntity[domainType], uuid)
}

// Links returns declared links to one domain type
func (e *Entity) Links(domainType string) []string {
	return e.LinksByEntity[domainType]
}

// DeclaredProcessID returns the single declared process link, if any. More
// than one declared process is a topology error.
func (e *Entity) DeclaredProcessID() (string, error) {
	processes := e.LinksByEntity["process"]
	switch len(processes) {
	case 0:
		return "", nil
	case 1:
		return processes[0], nil
	default:
		return "", &MultipleProcessesError{
			DomainType: e.DomainType,
			ObjectID:   e.ObjectID,
			Processes:  processes,
		}
	}
}

// HasInputs reports whether the entity declares biomaterial or file inputs
func (e *Entity) HasInputs() bool {
	return len(e.LinksByEntity["biomaterial"]) > 0 || len(e.LinksByEntity["file"]) > 0
}

// mergeFrom folds another entity for the same (domain, id) into this one.
// Canonical content wins over reference stubs; link sets are unioned.
func (e *Entity) mergeFrom(other *Entity) {
	if e.IsReference && !other.IsReference {
		e.ConcreteType = other.ConcreteType
		e.Content = other.Content
		e.LinkingDetails = other.LinkingDetails
		e.Location = other.Location
		e.IsReference = false
	}
	for domain, ids := range other.LinksByEntity {
		for _, id := range ids {
			e.AddLink(domain, id)
		}
	}
	for domain, uuids := range other.ExternalLinksByEntity {
		for _, uuid := range uuids {
			e.AddExternalLink(domain, uuid)
		}
	}
}

func appendUnique(list []string, value string) []string {
	for _, v := range list {
		if v == value {
			return list
		}
	}
	return append(list, value)
}
