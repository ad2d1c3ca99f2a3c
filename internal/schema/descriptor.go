// Package schema loads a catalog of JSON metadata schemas and exposes a
// uniform, queryable description of every concrete entity type: its fields,
// identifying keys, display labels, and the migration chain that maps legacy
// field paths to current ones.
package schema

import (
	"net/url"
	"regexp"
	"strings"
)

// HighLevelEntity classifies a schema document by its role in the catalog
type HighLevelEntity int

const (
	// EntityType is a concrete, submittable entity schema
	EntityType HighLevelEntity = iota
	// EntityModule is an embeddable sub-document schema
	EntityModule
	// EntityCore is a core fragment shared by a family of types
	EntityCore
	// EntitySystem is an infrastructure schema (e.g. the links document)
	EntitySystem
)

// String returns the path segment used for the high-level entity
func (h HighLevelEntity) String() string {
	switch h {
	case EntityType:
		return "type"
	case EntityModule:
		return "module"
	case EntityCore:
		return "core"
	case EntitySystem:
		return "system"
	default:
		return "unknown"
	}
}

// ParseHighLevelEntity converts a path segment to a HighLevelEntity
func ParseHighLevelEntity(s string) (HighLevelEntity, bool) {
	switch s {
	case "type":
		return EntityType, true
	case "module":
		return EntityModule, true
	case "core":
		return EntityCore, true
	case "system":
		return EntitySystem, true
	default:
		return 0, false
	}
}

var versionPattern = regexp.MustCompile(`^(\d+(\.\d+){0,2}|latest)$`)

// Descriptor identifies a single JSON-schema document, derived by parsing the
// schema's $id URL.
type Descriptor struct {
	HighLevelEntity HighLevelEntity
	// DomainEntity is the high-level family the schema belongs to. It may be
	// slash-separated (protocol/sequencing) and is empty for system schemas.
	DomainEntity string
	// Module is the leaf schema name, e.g. donor_organism
	Module string
	// Version is a semver string or the literal "latest"
	Version string
	// URL is the original $id the descriptor was parsed from
	URL string
}

// ParseDescriptor derives a Descriptor from a schema $id URL. The URL must
// follow <base>/<high_level>/<domain...>/<version>/<module>; the domain part
// may span several segments or be absent (system schemas).
func ParseDescriptor(rawURL string) (*Descriptor, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, &InvalidSchemaURLError{URL: rawURL, Reason: "not an absolute url"}
	}

	segments := splitPath(u.Path)
	if len(segments) < 3 {
		return nil, &InvalidSchemaURLError{URL: rawURL, Reason: "too few path segments"}
	}

	high, ok := ParseHighLevelEntity(segments[0])
	if !ok {
		return nil, &InvalidSchemaURLError{URL: rawURL, Reason: "unknown high-level entity " + segments[0]}
	}

	module := segments[len(segments)-1]
	version := segments[len(segments)-2]
	if !versionPattern.MatchString(version) {
		return nil, &InvalidSchemaURLError{URL: rawURL, Reason: "missing version segment"}
	}

	domain := strings.Join(segments[1:len(segments)-2], "/")
	if domain == "" && high != EntitySystem {
		return nil, &InvalidSchemaURLError{URL: rawURL, Reason: "missing domain entity"}
	}

	return &Descriptor{
		HighLevelEntity: high,
		DomainEntity:    domain,
		Module:          module,
		Version:         version,
		URL:             rawURL,
	}, nil
}

// ConcreteType returns the leaf schema name the descriptor identifies
func (d *Descriptor) ConcreteType() string {
	return d.Module
}

// DomainType returns the first segment of the domain entity; for
// protocol/sequencing this is protocol.
func (d *Descriptor) DomainType() string {
	if i := strings.Index(d.DomainEntity, "/"); i >= 0 {
		return d.DomainEntity[:i]
	}
	return d.DomainEntity
}

func splitPath(p string) []string {
	var out []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
