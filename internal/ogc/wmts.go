package ogc

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/geoflux/stratum/internal/domain"
)

// wmtsCapabilities mirrors the WMTS 1.0.0 capability document. Only the
// Contents section matters for discovery; tile matrix definitions themselves
// are not read, just the identifiers layers link to.
type wmtsCapabilities struct {
	XMLName xml.Name    `xml:"Capabilities"`
	Version string      `xml:"version,attr"`
	Layers  []wmtsLayer `xml:"Contents>Layer"`
}

type wmtsLayer struct {
	Title       string           `xml:"Title"`
	Abstract    string           `xml:"Abstract"`
	Identifier  string           `xml:"Identifier"`
	WGS84Box    *owsBoundingBox  `xml:"WGS84BoundingBox"`
	Styles      []wmtsStyle      `xml:"Style"`
	Formats     []string         `xml:"Format"`
	MatrixLinks []wmtsMatrixLink `xml:"TileMatrixSetLink"`
}

type wmtsStyle struct {
	Identifier string `xml:"Identifier"`
	IsDefault  bool   `xml:"isDefault,attr"`
}

type wmtsMatrixLink struct {
	TileMatrixSet string `xml:"TileMatrixSet"`
}

func parseWMTS(doc []byte) ([]domain.LayerDescriptor, error) {
	root, _, err := rootElement(doc)
	if err != nil {
		return nil, &domain.ParseError{Reason: domain.ParseMalformed, Service: domain.ServiceWMTS, Err: err}
	}
	if root.Local != "Capabilities" {
		return nil, &domain.ParseError{
			Reason:  domain.ParseMalformed,
			Service: domain.ServiceWMTS,
			Err:     fmt.Errorf("unexpected root element %q", root.Local),
		}
	}

	var caps wmtsCapabilities
	if err := xml.Unmarshal(doc, &caps); err != nil {
		return nil, &domain.ParseError{Reason: domain.ParseMalformed, Service: domain.ServiceWMTS, Err: err}
	}
	if caps.Version != domain.ServiceWMTS.CapabilityVersion() {
		return nil, &domain.ParseError{Reason: domain.ParseUnsupportedVersion, Service: domain.ServiceWMTS, Version: caps.Version}
	}

	descriptors := make([]domain.LayerDescriptor, 0, len(caps.Layers))
	for i := range caps.Layers {
		layer := &caps.Layers[i]
		name := strings.TrimSpace(layer.Identifier)
		if name == "" {
			continue
		}
		d := domain.LayerDescriptor{
			Name:           name,
			Title:          strings.TrimSpace(layer.Title),
			Abstract:       strings.TrimSpace(layer.Abstract),
			BoundingBox:    layer.WGS84Box.toDomain(),
			DefaultStyle:   defaultWMTSStyle(layer.Styles),
			Formats:        layer.Formats,
			TileMatrixSets: matrixSetIDs(layer.MatrixLinks),
		}
		if d.Title == "" {
			d.Title = d.Name
		}
		descriptors = append(descriptors, d)
	}
	if len(descriptors) == 0 {
		return nil, &domain.ParseError{Reason: domain.ParseNoLayers, Service: domain.ServiceWMTS}
	}
	return descriptors, nil
}

// defaultWMTSStyle prefers the style flagged isDefault, then the first
// advertised one.
func defaultWMTSStyle(styles []wmtsStyle) string {
	for _, s := range styles {
		if s.IsDefault {
			return strings.TrimSpace(s.Identifier)
		}
	}
	if len(styles) > 0 {
		return strings.TrimSpace(styles[0].Identifier)
	}
	return ""
}

func matrixSetIDs(links []wmtsMatrixLink) []string {
	if len(links) == 0 {
		return nil
	}
	ids := make([]string, 0, len(links))
	for _, link := range links {
		if id := strings.TrimSpace(link.TileMatrixSet); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
