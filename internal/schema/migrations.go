package schema

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Migration describes one property move in the migration ledger
type Migration struct {
	// ReplacedBy is the fully-qualified replacement path
	// (<target_schema>.<property>), empty when the property was retired.
	ReplacedBy string
	// EffectiveFrom is the source-schema version the migration applies from
	EffectiveFrom string
	// TargetVersion is the target-schema version the replacement landed in,
	// empty for retirements.
	TargetVersion string
}

// Migrations reconciles legacy field paths to current ones via a chain of
// recorded property moves, indexed by <source_schema>.<property>.
type Migrations struct {
	entries map[string]Migration
}

// migrationDocument mirrors the wire shape of the property-migration ledger
type migrationDocument struct {
	Migrations []migrationEntry `json:"migrations"`
}

type migrationEntry struct {
	SourceSchema        string `json:"source_schema"`
	Property            string `json:"property"`
	TargetSchema        string `json:"target_schema"`
	ReplacedBy          string `json:"replaced_by"`
	EffectiveFrom       string `json:"effective_from"`
	EffectiveFromSource string `json:"effective_from_source"`
	EffectiveFromTarget string `json:"effective_from_target"`
	TargetVersion       string `json:"target_version"`
}

// ParseMigrations decodes a property-migration ledger
func ParseMigrations(data []byte) (*Migrations, error) {
	var doc migrationDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse property migrations: %w", err)
	}

	m := NewMigrations()
	for _, entry := range doc.Migrations {
		if entry.SourceSchema == "" || entry.Property == "" {
			return nil, fmt.Errorf("property migration missing source_schema or property")
		}
		effectiveFrom := entry.EffectiveFrom
		targetVersion := entry.TargetVersion
		if effectiveFrom == "" {
			effectiveFrom = entry.EffectiveFromSource
			if targetVersion == "" {
				targetVersion = entry.EffectiveFromTarget
			}
		}
		m.Add(entry.SourceSchema+"."+entry.Property, Migration{
			ReplacedBy:    entry.ReplacedBy,
			EffectiveFrom: effectiveFrom,
			TargetVersion: targetVersion,
		})
	}
	return m, nil
}

// NewMigrations creates an empty ledger
func NewMigrations() *Migrations {
	return &Migrations{entries: make(map[string]Migration)}
}

// Add records a migration for a source path
func (m *Migrations) Add(sourcePath string, migration Migration) {
	m.entries[sourcePath] = migration
}

// Len returns the number of recorded migrations
func (m *Migrations) Len() int {
	return len(m.entries)
}

// NextLatest returns the direct replacement of path, or path unchanged when
// no migration is recorded. Retired properties return the empty string.
func (m *Migrations) NextLatest(path string) string {
	entry, ok := m.entries[path]
	if !ok {
		return path
	}
	return entry.ReplacedBy
}

// AbsoluteLatest applies NextLatest transitively until a fixed point
func (m *Migrations) AbsoluteLatest(path string) string {
	seen := map[string]bool{path: true}
	current := path
	for {
		next := m.NextLatest(current)
		if next == current || next == "" {
			if next == "" {
				return next
			}
			return current
		}
		if seen[next] {
			// Cyclic ledger; stop at the repeated path.
			return next
		}
		seen[next] = true
		current = next
	}
}

// ReplacedByAt returns the replacement of path active at the given source
// schema version, or path unchanged when the migration is not yet effective.
func (m *Migrations) ReplacedByAt(path, version string) string {
	entry, ok := m.entries[path]
	if !ok || entry.ReplacedBy == "" {
		return path
	}
	if compareVersions(version, entry.EffectiveFrom) < 0 {
		return path
	}
	return entry.ReplacedBy
}

// compareVersions orders two dotted numeric versions. Missing segments count
// as zero; non-numeric segments compare lexically.
func compareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		av, bv := 0, 0
		var aOK, bOK bool
		if i < len(as) {
			av, aOK = atoi(as[i])
		} else {
			aOK = true
		}
		if i < len(bs) {
			bv, bOK = atoi(bs[i])
		} else {
			bOK = true
		}
		if !aOK || !bOK {
			// Fall back to a lexical comparison of the raw segments.
			var aRaw, bRaw string
			if i < len(as) {
				aRaw = as[i]
			}
			if i < len(bs) {
				bRaw = bs[i]
			}
			if aRaw != bRaw {
				return strings.Compare(aRaw, bRaw)
			}
			continue
		}
		if av != bv {
			if av < bv {
				return -1
			}
			return 1
		}
	}
	return 0
}

func atoi(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	return n, err == nil
}
