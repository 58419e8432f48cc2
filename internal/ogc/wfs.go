package ogc

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/geoflux/stratum/internal/domain"
)

// wfsCapabilities mirrors the WFS 2.0.0 capability document. Feature types
// form a flat list; there is no inheritance to resolve.
type wfsCapabilities struct {
	XMLName      xml.Name         `xml:"WFS_Capabilities"`
	Version      string           `xml:"version,attr"`
	FeatureTypes []wfsFeatureType `xml:"FeatureTypeList>FeatureType"`
}

type wfsFeatureType struct {
	Name       string          `xml:"Name"`
	Title      string          `xml:"Title"`
	Abstract   string          `xml:"Abstract"`
	DefaultCRS string          `xml:"DefaultCRS"`
	Formats    []string        `xml:"OutputFormats>Format"`
	WGS84Box   *owsBoundingBox `xml:"WGS84BoundingBox"`
}

func parseWFS(doc []byte) ([]domain.LayerDescriptor, error) {
	root, _, err := rootElement(doc)
	if err != nil {
		return nil, &domain.ParseError{Reason: domain.ParseMalformed, Service: domain.ServiceWFS, Err: err}
	}
	if root.Local != "WFS_Capabilities" {
		return nil, &domain.ParseError{
			Reason:  domain.ParseMalformed,
			Service: domain.ServiceWFS,
			Err:     fmt.Errorf("unexpected root element %q", root.Local),
		}
	}

	var caps wfsCapabilities
	if err := xml.Unmarshal(doc, &caps); err != nil {
		return nil, &domain.ParseError{Reason: domain.ParseMalformed, Service: domain.ServiceWFS, Err: err}
	}
	if caps.Version != domain.ServiceWFS.CapabilityVersion() {
		return nil, &domain.ParseError{Reason: domain.ParseUnsupportedVersion, Service: domain.ServiceWFS, Version: caps.Version}
	}

	descriptors := make([]domain.LayerDescriptor, 0, len(caps.FeatureTypes))
	for i := range caps.FeatureTypes {
		ft := &caps.FeatureTypes[i]
		name := strings.TrimSpace(ft.Name)
		if name == "" {
			continue
		}
		d := domain.LayerDescriptor{
			Name:        name,
			Title:       strings.TrimSpace(ft.Title),
			Abstract:    strings.TrimSpace(ft.Abstract),
			BoundingBox: ft.WGS84Box.toDomain(),
			DefaultCRS:  NormalizeCRS(ft.DefaultCRS),
			Formats:     ft.Formats,
		}
		if d.Title == "" {
			d.Title = d.Name
		}
		descriptors = append(descriptors, d)
	}
	if len(descriptors) == 0 {
		return nil, &domain.ParseError{Reason: domain.ParseNoLayers, Service: domain.ServiceWFS}
	}
	return descriptors, nil
}
