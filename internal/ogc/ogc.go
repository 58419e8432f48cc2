// Package ogc speaks the wire formats of OGC web services: it parses WMS,
// WFS and WMTS capability documents into protocol-normalized layer
// descriptors, canonicalizes service URLs and assembles request parameters
// for the GetMap, GetFeature and GetTile operations.
package ogc

import (
	"bytes"
	"encoding/xml"
	"regexp"
	"strconv"
	"strings"

	"github.com/geoflux/stratum/internal/domain"
)

// WGS84 is the normalized identifier of the geographic CRS every protocol
// family can fall back to.
const WGS84 = "EPSG:4326"

// Parse converts a capability document into layer descriptors. The service
// type selects the protocol grammar; each family accepts exactly one version.
func Parse(doc []byte, serviceType domain.ServiceType) ([]domain.LayerDescriptor, error) {
	switch serviceType {
	case domain.ServiceWMS:
		return parseWMS(doc)
	case domain.ServiceWFS:
		return parseWFS(doc)
	case domain.ServiceWMTS:
		return parseWMTS(doc)
	default:
		return nil, domain.ErrInvalidServiceType
	}
}

// epsgPattern matches both the compact (EPSG:4326) and URN
// (urn:ogc:def:crs:EPSG::4326) spellings.
var epsgPattern = regexp.MustCompile(`(?i)EPSG:+(?:[\d.]+:)?(\d+)`)

// NormalizeCRS reduces the various EPSG spellings to the compact EPSG:n
// form. Identifiers outside the EPSG authority pass through trimmed.
func NormalizeCRS(crs string) string {
	crs = strings.TrimSpace(crs)
	if m := epsgPattern.FindStringSubmatch(crs); m != nil {
		return "EPSG:" + m[1]
	}
	return crs
}

// rootElement returns the document's root element name and its version
// attribute without decoding the full tree. It lets the parsers distinguish
// an unsupported protocol version from a document that is not a capability
// document at all.
func rootElement(doc []byte) (xml.Name, string, error) {
	dec := xml.NewDecoder(bytes.NewReader(doc))
	for {
		tok, err := dec.Token()
		if err != nil {
			return xml.Name{}, "", err
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		var version string
		for _, attr := range start.Attr {
			if attr.Name.Local == "version" {
				version = attr.Value
			}
		}
		return start.Name, version, nil
	}
}

func parseCoord(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return v, err == nil
}

func fmtCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// owsBoundingBox is the OWS Common corner-pair box shared by WFS and WMTS
// capability documents. Corners are space-separated lon/lat pairs.
type owsBoundingBox struct {
	LowerCorner string `xml:"LowerCorner"`
	UpperCorner string `xml:"UpperCorner"`
}

func (b *owsBoundingBox) toDomain() *domain.BoundingBox {
	if b == nil {
		return nil
	}
	minx, miny, ok := parseCorner(b.LowerCorner)
	if !ok {
		return nil
	}
	maxx, maxy, ok := parseCorner(b.UpperCorner)
	if !ok {
		return nil
	}
	box := &domain.BoundingBox{CRS: WGS84, MinX: minx, MinY: miny, MaxX: maxx, MaxY: maxy}
	if !box.Valid() {
		return nil
	}
	return box
}

func parseCorner(s string) (x, y float64, ok bool) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return 0, 0, false
	}
	x, okX := parseCoord(fields[0])
	y, okY := parseCoord(fields[1])
	return x, y, okX && okY
}
