package domain

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// ServiceType identifies the OGC protocol family of a registered service.
type ServiceType string

const (
	ServiceWMS  ServiceType = "WMS"
	ServiceWFS  ServiceType = "WFS"
	ServiceWMTS ServiceType = "WMTS"
)

// AllServiceTypes lists the supported protocol families in probe order.
var AllServiceTypes = []ServiceType{ServiceWMS, ServiceWFS, ServiceWMTS}

// ParseServiceType converts a case-insensitive string into a ServiceType.
func ParseServiceType(s string) (ServiceType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "WMS":
		return ServiceWMS, nil
	case "WFS":
		return ServiceWFS, nil
	case "WMTS":
		return ServiceWMTS, nil
	default:
		return "", ErrInvalidServiceType
	}
}

// Valid reports whether the service type is one of the supported families.
func (t ServiceType) Valid() bool {
	return t == ServiceWMS || t == ServiceWFS || t == ServiceWMTS
}

// CapabilityVersion returns the single protocol version this system speaks.
func (t ServiceType) CapabilityVersion() string {
	switch t {
	case ServiceWMS:
		return "1.3.0"
	case ServiceWFS:
		return "2.0.0"
	case ServiceWMTS:
		return "1.0.0"
	default:
		return ""
	}
}

// DefaultKind returns the request kind a layer of this service type resolves
// to when the caller does not specify one.
func (t ServiceType) DefaultKind() RequestKind {
	switch t {
	case ServiceWFS:
		return KindGetFeature
	case ServiceWMTS:
		return KindGetTile
	default:
		return KindGetMap
	}
}

// BoundingBox is an axis-aligned extent, always stored x-first
// (x=easting/longitude, y=northing/latitude). Parsers normalize documents
// that advertise latitude-first boxes; axis flipping for wire formats that
// want latitude first happens at request-build time, never here.
type BoundingBox struct {
	CRS  string  // Normalized CRS identifier (EPSG:n)
	MinX float64 // Western / minimum x bound
	MinY float64 // Southern / minimum y bound
	MaxX float64 // Eastern / maximum x bound
	MaxY float64 // Northern / maximum y bound
}

// Valid reports whether the box spans a positive area on both axes.
func (b *BoundingBox) Valid() bool {
	return b != nil && b.MinX < b.MaxX && b.MinY < b.MaxY
}

// InWGS84Range reports whether the box fits geographic coordinate limits.
func (b *BoundingBox) InWGS84Range() bool {
	return b.Valid() &&
		b.MinX >= -180 && b.MaxX <= 180 &&
		b.MinY >= -90 && b.MaxY <= 90
}

// Union returns the smallest box covering both b and o. The CRS of b wins;
// callers must not union boxes in different reference systems.
func (b *BoundingBox) Union(o *BoundingBox) *BoundingBox {
	if b == nil {
		if o == nil {
			return nil
		}
		c := *o
		return &c
	}
	u := *b
	if o == nil {
		return &u
	}
	if o.MinX < u.MinX {
		u.MinX = o.MinX
	}
	if o.MinY < u.MinY {
		u.MinY = o.MinY
	}
	if o.MaxX > u.MaxX {
		u.MaxX = o.MaxX
	}
	if o.MaxY > u.MaxY {
		u.MaxY = o.MaxY
	}
	return &u
}

// Center returns the midpoint of the box.
func (b *BoundingBox) Center() (x, y float64) {
	return (b.MinX + b.MaxX) / 2, (b.MinY + b.MaxY) / 2
}

// Area returns the extent area in squared CRS units.
func (b *BoundingBox) Area() float64 {
	if !b.Valid() {
		return 0
	}
	return (b.MaxX - b.MinX) * (b.MaxY - b.MinY)
}

// String renders the box as the comma-separated minx,miny,maxx,maxy form used
// in OGC request parameters.
func (b *BoundingBox) String() string {
	return strings.Join([]string{
		formatCoord(b.MinX),
		formatCoord(b.MinY),
		formatCoord(b.MaxX),
		formatCoord(b.MaxY),
	}, ",")
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ServiceRegistration describes one registered (service_url, service_type)
// scope. Re-registering the same pair refreshes it; it never duplicates.
type ServiceRegistration struct {
	ServiceURL   string      // Canonical service URL
	ServiceType  ServiceType // Protocol family
	ServiceName  string      // Derived from the URL or supplied by the caller
	LayerCount   int         // Layers currently registered under this scope
	RegisteredAt time.Time   // First registration time
}

// Key returns the registry scope identifier for this registration.
func (s *ServiceRegistration) Key() string {
	return ServiceKey(s.ServiceURL, s.ServiceType)
}

// ServiceKey builds the write-serialization key for a service scope.
func ServiceKey(serviceURL string, serviceType ServiceType) string {
	return serviceURL + "|" + string(serviceType)
}

// LayerDescriptor is the protocol-normalized output of capability parsing.
// The field set is identical regardless of the source protocol; WMTS is the
// only family that populates TileMatrixSets.
type LayerDescriptor struct {
	Name           string       // Machine-readable layer identifier
	Title          string       // Human-readable title
	Abstract       string       // Optional description
	BoundingBox    *BoundingBox // Optional extent
	DefaultCRS     string       // Advertised default CRS, normalized (WFS)
	DefaultStyle   string       // Advertised default style, if any
	Formats        []string     // Advertised output or tile formats
	TileMatrixSets []string     // Linked tile matrix sets (WMTS)
}

// LayerRecord is the persisted form of a discovered layer. ResourceID is
// opaque and stable across refreshes; LayerName is unique within its
// (ServiceURL, ServiceType) scope, not globally.
type LayerRecord struct {
	ResourceID     string       // Opaque stable identifier
	ServiceName    string       // Owning service display name
	ServiceURL     string       // Canonical service URL
	ServiceType    ServiceType  // Protocol family
	LayerName      string       // Protocol-level layer identifier
	LayerTitle     string       // Human-readable title
	LayerAbstract  string       // Optional description
	BoundingBox    *BoundingBox // Optional extent
	DefaultCRS     string       // Advertised default CRS, normalized (WFS)
	DefaultStyle   string       // Advertised default style
	Formats        []string     // Advertised output or tile formats
	TileMatrixSets []string     // Linked tile matrix sets (WMTS)
	CreatedAt      time.Time    // First registration time
	UpdatedAt      time.Time    // Last time a refresh changed a mutable field
}

// Apply copies the descriptor's mutable fields onto the record and reports
// whether anything actually changed. Identity fields (resource id, service
// scope, layer name, created_at) are never touched; callers bump UpdatedAt
// only on a true result.
func (r *LayerRecord) Apply(d LayerDescriptor) bool {
	changed := false
	if r.LayerTitle != d.Title {
		r.LayerTitle = d.Title
		changed = true
	}
	if r.LayerAbstract != d.Abstract {
		r.LayerAbstract = d.Abstract
		changed = true
	}
	if !equalBox(r.BoundingBox, d.BoundingBox) {
		r.BoundingBox = d.BoundingBox
		changed = true
	}
	if r.DefaultCRS != d.DefaultCRS {
		r.DefaultCRS = d.DefaultCRS
		changed = true
	}
	if r.DefaultStyle != d.DefaultStyle {
		r.DefaultStyle = d.DefaultStyle
		changed = true
	}
	if !equalStrings(r.Formats, d.Formats) {
		r.Formats = d.Formats
		changed = true
	}
	if !equalStrings(r.TileMatrixSets, d.TileMatrixSets) {
		r.TileMatrixSets = d.TileMatrixSets
		changed = true
	}
	return changed
}

func equalBox(a, b *BoundingBox) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// RegistrationReport summarizes one upsert batch. Counts cover exactly the
// descriptors in the batch; ResourceIDs lists every affected record in
// descriptor order.
type RegistrationReport struct {
	ServiceURL  string      // Canonical URL the batch belongs to
	ServiceType ServiceType // Protocol family of the batch
	ServiceName string      // Service display name
	Inserted    int         // Newly created records
	Updated     int         // Records with changed mutable fields
	Unchanged   int         // Records already up to date
	ResourceIDs []string    // Affected record ids, inserted and existing
}

// Total returns the number of descriptors the batch covered.
func (r *RegistrationReport) Total() int {
	return r.Inserted + r.Updated + r.Unchanged
}

// ListFilter narrows registry listings. The zero value lists everything with
// the default page size.
type ListFilter struct {
	ServiceType ServiceType // Optional protocol family filter
	ServiceName string      // Optional exact service name filter
	Query       string      // Case-insensitive substring over name/title/abstract
	Limit       int         // Page size, defaulted and capped by Normalize
	Offset      int         // Rows to skip
}

// Pagination bounds.
const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// Normalize applies pagination defaults and bounds.
func (f *ListFilter) Normalize() {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

// RegistryStats aggregates registry contents for monitoring and discovery.
type RegistryStats struct {
	TotalLayers   int                 // All registered layers
	ServiceCount  int                 // Distinct (url, type) scopes
	ByServiceType map[ServiceType]int // Layer counts per protocol family
	ByServiceName map[string]int      // Layer counts per service name
}

// ServiceTypesSorted returns the per-type keys in stable order for rendering.
func (s *RegistryStats) ServiceTypesSorted() []ServiceType {
	types := make([]ServiceType, 0, len(s.ByServiceType))
	for t := range s.ByServiceType {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
