package ogc

import (
	"errors"
	"strings"
	"testing"

	"github.com/geoflux/stratum/internal/domain"
)

const wmsThreeLevelDoc = `<?xml version="1.0" encoding="UTF-8"?>
<WMS_Capabilities version="1.3.0" xmlns="http://www.opengis.net/wms">
  <Service>
    <Name>WMS</Name>
    <Title>Test Server</Title>
  </Service>
  <Capability>
    <Request>
      <GetMap>
        <Format>image/png</Format>
        <Format>image/jpeg</Format>
      </GetMap>
    </Request>
    <Layer>
      <Title>Root</Title>
      <CRS>EPSG:4326</CRS>
      <CRS>EPSG:3857</CRS>
      <EX_GeographicBoundingBox>
        <westBoundLongitude>-180</westBoundLongitude>
        <eastBoundLongitude>180</eastBoundLongitude>
        <southBoundLatitude>-90</southBoundLatitude>
        <northBoundLatitude>90</northBoundLatitude>
      </EX_GeographicBoundingBox>
      <Layer>
        <Name>transport</Name>
        <Title>Transport Group</Title>
        <Layer>
          <Name>roads</Name>
          <Title>Roads</Title>
          <Abstract>All roads</Abstract>
          <Style>
            <Name>line</Name>
            <Title>Default line style</Title>
          </Style>
        </Layer>
        <Layer>
          <Name>railways</Name>
          <Title>Railways</Title>
        </Layer>
      </Layer>
      <Layer>
        <Title>Unnamed Group</Title>
        <Layer>
          <Name>rivers</Name>
          <Title>Rivers</Title>
          <EX_GeographicBoundingBox>
            <westBoundLongitude>10</westBoundLongitude>
            <eastBoundLongitude>20</eastBoundLongitude>
            <southBoundLatitude>40</southBoundLatitude>
            <northBoundLatitude>50</northBoundLatitude>
          </EX_GeographicBoundingBox>
        </Layer>
      </Layer>
    </Layer>
  </Capability>
</WMS_Capabilities>`

func TestParseWMSInheritance(t *testing.T) {
	descs, err := Parse([]byte(wmsThreeLevelDoc), domain.ServiceWMS)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	byName := make(map[string]domain.LayerDescriptor, len(descs))
	for _, d := range descs {
		byName[d.Name] = d
	}

	// Named non-leaf plus three leaves; the unnamed root and group are
	// grouping-only.
	wantNames := []string{"transport", "roads", "railways", "rivers"}
	if len(descs) != len(wantNames) {
		t.Fatalf("Parse() returned %d descriptors, want %d (%v)", len(descs), len(wantNames), descs)
	}
	for _, name := range wantNames {
		if _, ok := byName[name]; !ok {
			t.Errorf("descriptor %q missing", name)
		}
	}

	roads := byName["roads"]
	if roads.BoundingBox == nil {
		t.Fatal("roads should inherit the root extent")
	}
	if roads.BoundingBox.CRS != "EPSG:4326" {
		t.Errorf("roads CRS = %q, want EPSG:4326", roads.BoundingBox.CRS)
	}
	if roads.BoundingBox.MinX != -180 || roads.BoundingBox.MaxY != 90 {
		t.Errorf("roads box = %+v, want root extent", *roads.BoundingBox)
	}
	if roads.DefaultStyle != "line" {
		t.Errorf("roads style = %q, want line", roads.DefaultStyle)
	}
	if len(roads.Formats) != 2 || roads.Formats[0] != "image/png" {
		t.Errorf("roads formats = %v, want GetMap formats", roads.Formats)
	}

	rivers := byName["rivers"]
	if rivers.BoundingBox == nil || rivers.BoundingBox.MinX != 10 || rivers.BoundingBox.MaxY != 50 {
		t.Errorf("rivers box = %+v, want its own declared extent", rivers.BoundingBox)
	}

	railways := byName["railways"]
	if railways.BoundingBox == nil || railways.BoundingBox.MinX != -180 {
		t.Errorf("railways box = %+v, want inherited root extent", railways.BoundingBox)
	}
	if railways.DefaultStyle != "" {
		t.Errorf("railways style = %q, want empty (style declared on a sibling only)", railways.DefaultStyle)
	}
}

func TestParseWMSBoundingBoxAxisOrder(t *testing.T) {
	// WMS 1.3.0 writes EPSG:4326 BoundingBox attributes latitude-first.
	doc := `<?xml version="1.0"?>
<WMS_Capabilities version="1.3.0">
  <Capability>
    <Layer>
      <Name>roads</Name>
      <Title>Roads</Title>
      <CRS>EPSG:4326</CRS>
      <BoundingBox CRS="EPSG:4326" minx="30" miny="110" maxx="31" maxy="112"/>
    </Layer>
  </Capability>
</WMS_Capabilities>`

	descs, err := Parse([]byte(doc), domain.ServiceWMS)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	box := descs[0].BoundingBox
	if box == nil {
		t.Fatal("expected a bounding box")
	}
	want := domain.BoundingBox{CRS: "EPSG:4326", MinX: 110, MinY: 30, MaxX: 112, MaxY: 31}
	if *box != want {
		t.Errorf("box = %+v, want axis-normalized %+v", *box, want)
	}
}

func TestParseWMSProjectedBoundingBox(t *testing.T) {
	doc := `<?xml version="1.0"?>
<WMS_Capabilities version="1.3.0">
  <Capability>
    <Layer>
      <Name>buildings</Name>
      <Title>Buildings</Title>
      <CRS>EPSG:3857</CRS>
      <BoundingBox CRS="EPSG:3857" minx="-20037508" miny="-20037508" maxx="20037508" maxy="20037508"/>
    </Layer>
  </Capability>
</WMS_Capabilities>`

	descs, err := Parse([]byte(doc), domain.ServiceWMS)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	box := descs[0].BoundingBox
	if box == nil || box.CRS != "EPSG:3857" || box.MinX != -20037508 {
		t.Errorf("box = %+v, want untouched EPSG:3857 extent", box)
	}
}

func TestParseWMSUnsupportedVersion(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{
			name: "1.1.1 grammar",
			doc:  `<WMT_MS_Capabilities version="1.1.1"><Capability/></WMT_MS_Capabilities>`,
		},
		{
			name: "wrong version attribute",
			doc:  `<WMS_Capabilities version="1.1.1"><Capability/></WMS_Capabilities>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc), domain.ServiceWMS)
			var parseErr *domain.ParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("Parse() error = %v, want *domain.ParseError", err)
			}
			if parseErr.Reason != domain.ParseUnsupportedVersion {
				t.Errorf("Reason = %q, want %q", parseErr.Reason, domain.ParseUnsupportedVersion)
			}
			if parseErr.Version != "1.1.1" {
				t.Errorf("Version = %q, want 1.1.1", parseErr.Version)
			}
		})
	}
}

func TestParseWMSMalformed(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"truncated", `<WMS_Capabilities version="1.3.0"><Capability>`},
		{"not xml", `{"service": "WMS"}`},
		{"wrong root", `<ServiceExceptionReport version="1.3.0"/>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc), domain.ServiceWMS)
			var parseErr *domain.ParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("Parse() error = %v, want *domain.ParseError", err)
			}
			if parseErr.Reason != domain.ParseMalformed {
				t.Errorf("Reason = %q, want %q", parseErr.Reason, domain.ParseMalformed)
			}
		})
	}
}

func TestParseWMSNoLayers(t *testing.T) {
	doc := `<WMS_Capabilities version="1.3.0">
  <Capability>
    <Layer><Title>Empty group</Title></Layer>
  </Capability>
</WMS_Capabilities>`

	_, err := Parse([]byte(doc), domain.ServiceWMS)
	var parseErr *domain.ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("Parse() error = %v, want *domain.ParseError", err)
	}
	if parseErr.Reason != domain.ParseNoLayers {
		t.Errorf("Reason = %q, want %q", parseErr.Reason, domain.ParseNoLayers)
	}
}

func TestParseWMSTitleFallsBackToName(t *testing.T) {
	doc := `<WMS_Capabilities version="1.3.0">
  <Capability>
    <Layer><Name>bare</Name></Layer>
  </Capability>
</WMS_Capabilities>`

	descs, err := Parse([]byte(doc), domain.ServiceWMS)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if descs[0].Title != "bare" {
		t.Errorf("Title = %q, want fallback to name", descs[0].Title)
	}
	if !strings.Contains(descs[0].Name, "bare") {
		t.Errorf("Name = %q, want bare", descs[0].Name)
	}
}
