package ogc

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/geoflux/stratum/internal/domain"
)

// wmsCapabilities mirrors the WMS 1.3.0 capability document, reduced to the
// elements layer discovery needs.
type wmsCapabilities struct {
	XMLName    xml.Name `xml:"WMS_Capabilities"`
	Version    string   `xml:"version,attr"`
	Capability struct {
		Request struct {
			GetMap struct {
				Format []string `xml:"Format"`
			} `xml:"GetMap"`
		} `xml:"Request"`
		Layer []wmsLayer `xml:"Layer"`
	} `xml:"Capability"`
}

// wmsLayer is the recursive Layer element. Coordinate systems, extents and
// styles inherit from the nearest ancestor that declared them; a layer's own
// declaration replaces the inherited value wholesale.
type wmsLayer struct {
	Name          string            `xml:"Name"`
	Title         string            `xml:"Title"`
	Abstract      string            `xml:"Abstract"`
	CRS           []string          `xml:"CRS"`
	GeographicBox *wmsGeographicBox `xml:"EX_GeographicBoundingBox"`
	BoundingBoxes []wmsBoundingBox  `xml:"BoundingBox"`
	Styles        []wmsStyle        `xml:"Style"`
	Children      []wmsLayer        `xml:"Layer"`
}

// wmsGeographicBox is always expressed in lon/lat regardless of any CRS axis
// order rules.
type wmsGeographicBox struct {
	West  string `xml:"westBoundLongitude"`
	East  string `xml:"eastBoundLongitude"`
	South string `xml:"southBoundLatitude"`
	North string `xml:"northBoundLatitude"`
}

type wmsBoundingBox struct {
	CRS  string `xml:"CRS,attr"`
	MinX string `xml:"minx,attr"`
	MinY string `xml:"miny,attr"`
	MaxX string `xml:"maxx,attr"`
	MaxY string `xml:"maxy,attr"`
}

type wmsStyle struct {
	Name  string `xml:"Name"`
	Title string `xml:"Title"`
}

// wmsInherited is the tree state flowing parent to child during collection.
type wmsInherited struct {
	crs    []string
	geoBox *wmsGeographicBox
	boxes  []wmsBoundingBox
	styles []wmsStyle
}

func parseWMS(doc []byte) ([]domain.LayerDescriptor, error) {
	root, version, err := rootElement(doc)
	if err != nil {
		return nil, &domain.ParseError{Reason: domain.ParseMalformed, Service: domain.ServiceWMS, Err: err}
	}
	switch root.Local {
	case "WMS_Capabilities":
	case "WMT_MS_Capabilities":
		// The pre-1.3.0 grammar identifies itself by this root element.
		return nil, &domain.ParseError{Reason: domain.ParseUnsupportedVersion, Service: domain.ServiceWMS, Version: version}
	default:
		return nil, &domain.ParseError{
			Reason:  domain.ParseMalformed,
			Service: domain.ServiceWMS,
			Err:     fmt.Errorf("unexpected root element %q", root.Local),
		}
	}

	var caps wmsCapabilities
	if err := xml.Unmarshal(doc, &caps); err != nil {
		return nil, &domain.ParseError{Reason: domain.ParseMalformed, Service: domain.ServiceWMS, Err: err}
	}
	if caps.Version != domain.ServiceWMS.CapabilityVersion() {
		return nil, &domain.ParseError{Reason: domain.ParseUnsupportedVersion, Service: domain.ServiceWMS, Version: caps.Version}
	}

	formats := caps.Capability.Request.GetMap.Format
	var descriptors []domain.LayerDescriptor
	for i := range caps.Capability.Layer {
		collectWMSLayers(&caps.Capability.Layer[i], wmsInherited{}, formats, &descriptors)
	}
	if len(descriptors) == 0 {
		return nil, &domain.ParseError{Reason: domain.ParseNoLayers, Service: domain.ServiceWMS}
	}
	return descriptors, nil
}

// collectWMSLayers walks the layer tree depth-first. Every named layer is
// emitted; unnamed layers exist only to group children and pass state down.
func collectWMSLayers(layer *wmsLayer, inherited wmsInherited, formats []string, out *[]domain.LayerDescriptor) {
	state := inherited
	if len(layer.CRS) > 0 {
		state.crs = layer.CRS
	}
	if layer.GeographicBox != nil {
		state.geoBox = layer.GeographicBox
	}
	if len(layer.BoundingBoxes) > 0 {
		state.boxes = layer.BoundingBoxes
	}
	if len(layer.Styles) > 0 {
		state.styles = layer.Styles
	}

	if name := strings.TrimSpace(layer.Name); name != "" {
		*out = append(*out, wmsDescriptor(name, layer, state, formats))
	}
	for i := range layer.Children {
		collectWMSLayers(&layer.Children[i], state, formats, out)
	}
}

func wmsDescriptor(name string, layer *wmsLayer, state wmsInherited, formats []string) domain.LayerDescriptor {
	d := domain.LayerDescriptor{
		Name:        name,
		Title:       strings.TrimSpace(layer.Title),
		Abstract:    strings.TrimSpace(layer.Abstract),
		BoundingBox: wmsBox(state),
		Formats:     formats,
	}
	if d.Title == "" {
		d.Title = d.Name
	}
	if len(state.styles) > 0 {
		d.DefaultStyle = strings.TrimSpace(state.styles[0].Name)
	}
	return d
}

// wmsBox picks the effective extent: the geographic box when present, else
// the first parseable BoundingBox element. WMS 1.3.0 writes EPSG:4326
// BoundingBox attributes in lat/lon axis order, so those are swapped back to
// the x-first convention the rest of the system uses.
func wmsBox(state wmsInherited) *domain.BoundingBox {
	if g := state.geoBox; g != nil {
		west, okW := parseCoord(g.West)
		east, okE := parseCoord(g.East)
		south, okS := parseCoord(g.South)
		north, okN := parseCoord(g.North)
		if okW && okE && okS && okN {
			box := &domain.BoundingBox{CRS: WGS84, MinX: west, MinY: south, MaxX: east, MaxY: north}
			if box.Valid() {
				return box
			}
		}
	}
	for i := range state.boxes {
		b := &state.boxes[i]
		minx, ok1 := parseCoord(b.MinX)
		miny, ok2 := parseCoord(b.MinY)
		maxx, ok3 := parseCoord(b.MaxX)
		maxy, ok4 := parseCoord(b.MaxY)
		if !(ok1 && ok2 && ok3 && ok4) {
			continue
		}
		crs := NormalizeCRS(b.CRS)
		if crs == WGS84 {
			minx, miny = miny, minx
			maxx, maxy = maxy, maxx
		}
		box := &domain.BoundingBox{CRS: crs, MinX: minx, MinY: miny, MaxX: maxx, MaxY: maxy}
		if box.Valid() {
			return box
		}
	}
	return nil
}
