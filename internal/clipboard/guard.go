package clipboard

import "slices"

// MarkerTypeTag is declared alongside every text the engine writes back.
// Snapshots carrying it are the engine's own output and are never processed.
const MarkerTypeTag = "org.clipflow.self-write"

// HasMarker reports whether s was written by the engine.
func HasMarker(s Snapshot) bool {
	return slices.Contains(s.TypeTags, MarkerTypeTag)
}
