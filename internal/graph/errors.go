package graph

import (
	"fmt"
	"strings"
)

// InvalidLinkError reports a declared link between two domain types the
// workbook topology does not admit.
type InvalidLinkError struct {
	SourceType string
	TargetType string
}

// Error implements the error interface
func (e *InvalidLinkError) Error() string {
	return fmt.Sprintf("invalid spreadsheet link from %s to %s", e.SourceType, e.TargetType)
}

// LinkedEntityNotFoundError reports a declared link whose target entity is
// not present in the entity map.
type LinkedEntityNotFoundError struct {
	DomainType string
	ObjectID   string
}

// Error implements the error interface
func (e *LinkedEntityNotFoundError) Error() string {
	return fmt.Sprintf("linked %s entity %q not found", e.DomainType, e.ObjectID)
}

// MultipleProcessesError reports an entity declaring more than one process
// link.
type MultipleProcessesError struct {
	DomainType string
	ObjectID   string
	Processes  []string
}

// Error implements the error interface
func (e *MultipleProcessesError) Error() string {
	return fmt.Sprintf("%s entity %q declares multiple processes: %s",
		e.DomainType, e.ObjectID, strings.Join(e.Processes, ", "))
}

// DuplicateEntityError reports two canonical entities sharing one
// (domain type, object id).
type DuplicateEntityError struct {
	DomainType string
	ObjectID   string
}

// Error implements the error interface
func (e *DuplicateEntityError) Error() string {
	return fmt.Sprintf("duplicate %s entity %q", e.DomainType, e.ObjectID)
}

// ProjectCountError reports an entity map without exactly one project
type ProjectCountError struct {
	Count int
}

// Error implements the error interface
func (e *ProjectCountError) Error() string {
	if e.Count == 0 {
		return "no project entity found"
	}
	return fmt.Sprintf("expected exactly one project entity, found %d", e.Count)
}
