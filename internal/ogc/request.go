package ogc

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/geoflux/stratum/internal/domain"
)

// Fixed request defaults. Resolution is deterministic: identical inputs
// always produce identical parameter sets, and callers override on top.
const (
	DefaultMapWidth      = 256
	DefaultMapHeight     = 256
	DefaultMapFormat     = "image/png"
	DefaultTileFormat    = "image/png"
	DefaultFeatureFormat = "application/json"
	DefaultMaxFeatures   = 100
	DefaultTileStyle     = "default"
)

// preferredMatrixSets orders well-known tile matrix sets from most to least
// commonly supported by web map clients.
var preferredMatrixSets = []string{
	"GoogleMapsCompatible",
	"EPSG:3857",
	"EPSG:4326",
	"WebMercatorQuad",
	"WGS84",
}

// PreferredTileMatrixSet picks the advertised matrix set a web client is most
// likely to handle, falling back to the first advertised one.
func PreferredTileMatrixSet(advertised []string) string {
	for _, want := range preferredMatrixSets {
		for _, have := range advertised {
			if strings.EqualFold(have, want) {
				return have
			}
		}
	}
	if len(advertised) > 0 {
		return advertised[0]
	}
	return preferredMatrixSets[0]
}

// BuildGetMap assembles the WMS 1.3.0 GetMap parameter set for one layer.
// WMS 1.3.0 mandates lat/lon axis order for EPSG:4326, so the bbox value is
// flipped for that CRS; the box itself stays x-first everywhere else in the
// system.
func BuildGetMap(layerName string, box *domain.BoundingBox) map[string]string {
	crs := NormalizeCRS(box.CRS)
	bbox := box.String()
	if strings.EqualFold(crs, WGS84) {
		bbox = latFirstBBox(box)
	}
	return map[string]string{
		"service":     "WMS",
		"version":     domain.ServiceWMS.CapabilityVersion(),
		"request":     "GetMap",
		"layers":      layerName,
		"styles":      "",
		"crs":         crs,
		"bbox":        bbox,
		"width":       strconv.Itoa(DefaultMapWidth),
		"height":      strconv.Itoa(DefaultMapHeight),
		"format":      DefaultMapFormat,
		"transparent": "true",
	}
}

// BuildGetFeature assembles the WFS 2.0.0 GetFeature parameter set. The
// bounding box is optional; when present it is sent x-first together with a
// matching srsName. Without a box the srsName falls back to the feature
// type's advertised default CRS, then to WGS84.
func BuildGetFeature(typeName string, box *domain.BoundingBox, defaultCRS string) map[string]string {
	srs := NormalizeCRS(defaultCRS)
	if srs == "" {
		srs = WGS84
	}
	if box.Valid() && box.CRS != "" {
		srs = NormalizeCRS(box.CRS)
	}
	params := map[string]string{
		"service":      "WFS",
		"version":      domain.ServiceWFS.CapabilityVersion(),
		"request":      "GetFeature",
		"typeName":     typeName,
		"outputFormat": DefaultFeatureFormat,
		"maxFeatures":  strconv.Itoa(DefaultMaxFeatures),
		"srsName":      srs,
	}
	if box.Valid() {
		params["bbox"] = box.String()
	}
	return params
}

// BuildGetTile assembles the WMTS 1.0.0 GetTile parameter set. Tile indices
// are left empty; they have no sensible default and must come from the
// caller. WMTS conventionally spells its KVP keys uppercase.
func BuildGetTile(layerName, style, matrixSet string) map[string]string {
	if style == "" {
		style = DefaultTileStyle
	}
	return map[string]string{
		"SERVICE":       "WMTS",
		"VERSION":       domain.ServiceWMTS.CapabilityVersion(),
		"REQUEST":       "GetTile",
		"LAYER":         layerName,
		"STYLE":         style,
		"TILEMATRIXSET": matrixSet,
		"TILEMATRIX":    "",
		"TILEROW":       "",
		"TILECOL":       "",
		"FORMAT":        DefaultTileFormat,
	}
}

// BuildRequestURL renders the final request URL. Keys are sorted by
// url.Values encoding, which keeps URLs stable across runs.
func BuildRequestURL(serviceURL string, params map[string]string) string {
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	sep := "?"
	if strings.Contains(serviceURL, "?") {
		sep = "&"
	}
	return serviceURL + sep + values.Encode()
}

// latFirstBBox renders the box in lat/lon component order.
func latFirstBBox(b *domain.BoundingBox) string {
	return strings.Join([]string{
		fmtCoord(b.MinY),
		fmtCoord(b.MinX),
		fmtCoord(b.MaxY),
		fmtCoord(b.MaxX),
	}, ",")
}

// ParseBBoxParam parses a caller-supplied minx,miny,maxx,maxy override into
// a box with the given CRS.
func ParseBBoxParam(s, crs string) (*domain.BoundingBox, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 4 {
		return nil, &domain.ValidationError{
			Field:      "bbox",
			Value:      s,
			Constraint: "minx,miny,maxx,maxy",
			Message:    "bounding box must have four comma-separated coordinates",
		}
	}
	coords := make([]float64, 4)
	for i, p := range parts {
		v, ok := parseCoord(p)
		if !ok {
			return nil, &domain.ValidationError{
				Field:      "bbox",
				Value:      s,
				Constraint: "numeric coordinates",
				Message:    "bounding box coordinate is not a number",
			}
		}
		coords[i] = v
	}
	box := &domain.BoundingBox{
		CRS:  NormalizeCRS(crs),
		MinX: coords[0],
		MinY: coords[1],
		MaxX: coords[2],
		MaxY: coords[3],
	}
	if !box.Valid() {
		return nil, &domain.ValidationError{
			Field:      "bbox",
			Value:      s,
			Constraint: "min < max on both axes",
			Message:    "bounding box is inverted or empty",
		}
	}
	return box, nil
}
