package dss

import (
	"fmt"
	"time"
)

// Timestamp layouts. The registry records dcpVersion values with colons and
// millisecond precision; the store addresses file versions with a compact
// microsecond layout.
const (
	RegistryVersionLayout = "2006-01-02T15:04:05.000Z"
	StoreVersionLayout    = "2006-01-02T150405.000000Z"
)

// ToStoreVersion translates a registry dcpVersion into the store's version
// format.
func ToStoreVersion(dcpVersion string) (string, error) {
	t, err := time.Parse(RegistryVersionLayout, dcpVersion)
	if err != nil {
		return "", fmt.Errorf("invalid dcp version %q: %w", dcpVersion, err)
	}
	return t.UTC().Format(StoreVersionLayout), nil
}

// NewVersion produces a store version for the current instant.
func NewVersion(now time.Time) string {
	return now.UTC().Format(StoreVersionLayout)
}
