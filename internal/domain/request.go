package domain

import (
	"strings"
	"time"
)

// RequestKind identifies the OGC operation a resolution targets.
type RequestKind string

const (
	KindGetMap     RequestKind = "GetMap"
	KindGetFeature RequestKind = "GetFeature"
	KindGetTile    RequestKind = "GetTile"
)

// ParseRequestKind converts a case-insensitive string into a RequestKind.
func ParseRequestKind(s string) (RequestKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "getmap", "map":
		return KindGetMap, nil
	case "getfeature", "feature":
		return KindGetFeature, nil
	case "gettile", "tile":
		return KindGetTile, nil
	default:
		return "", ErrInvalidRequestKind
	}
}

// Valid reports whether the kind is a supported operation.
func (k RequestKind) Valid() bool {
	return k == KindGetMap || k == KindGetFeature || k == KindGetTile
}

// ServiceType returns the protocol family that serves this kind.
func (k RequestKind) ServiceType() ServiceType {
	switch k {
	case KindGetFeature:
		return ServiceWFS
	case KindGetTile:
		return ServiceWMTS
	default:
		return ServiceWMS
	}
}

// ResolvedRequest is the ephemeral product of parameter resolution: a registry
// record plus the complete protocol parameter set for one operation. It is
// rebuilt on every resolution and never cached.
type ResolvedRequest struct {
	Record LayerRecord       // The resolved registry record
	Kind   RequestKind       // Operation the parameters target
	Params map[string]string // Final protocol parameters, overrides applied
}

// Param returns a parameter value, empty when unset.
func (r *ResolvedRequest) Param(key string) string {
	return r.Params[key]
}

// Point is a geographic position in lon/lat order.
type Point struct {
	Lon float64
	Lat float64
}

// CompositeView is the ephemeral product of composite assembly. Layers keeps
// the caller's order as bottom-to-top render order. UnionBox is computed in
// the first extent-carrying layer's CRS; layers in other reference systems
// keep their native CRS in CRSs and are excluded from the union rather than
// reprojected.
type CompositeView struct {
	ID        string            // Stable over identical ordered input
	Layers    []ResolvedRequest // Render order, bottom first
	UnionBox  *BoundingBox      // nil when no layer carries a usable extent
	CRSs      []string          // Distinct native CRSs, composite CRS first
	Center    Point             // Suggested map center
	Zoom      int               // Suggested initial zoom level
	CreatedAt time.Time
}

// LayerCount returns the number of composed layers.
func (v *CompositeView) LayerCount() int {
	return len(v.Layers)
}

// PreviewArtifact references an executed request's payload staged in artifact
// storage.
type PreviewArtifact struct {
	ID          string    // Opaque artifact identifier
	Key         string    // Storage key
	ContentType string    // Payload MIME type
	Size        int64     // Payload size in bytes
	URL         string    // Public retrieval path
	CreatedAt   time.Time // Staging time
}
