package ogc

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/geoflux/stratum/internal/domain"
)

// probeEndpoints lists the suffixes worth trying per protocol family when
// the supplied URL itself does not answer. Order reflects how commonly each
// deployment shape appears in the wild.
var probeEndpoints = map[domain.ServiceType][]string{
	domain.ServiceWMS:  {"/ows", "/wms", "/geoserver/ows", "/geoserver/wms", "/mapserver", "/cgi-bin/mapserv"},
	domain.ServiceWFS:  {"/ows", "/wfs", "/geoserver/ows", "/geoserver/wfs", "/mapserver", "/cgi-bin/mapserv"},
	domain.ServiceWMTS: {"/gwc/service/wmts", "/geoserver/gwc/service/wmts", "/wmts", "/geoserver/wmts", "/ows"},
}

// CanonicalServiceURL reduces a user-supplied URL to the base form stored in
// the registry: scheme, host and path with query, fragment and trailing
// slashes removed. A capability request URL and its base endpoint therefore
// canonicalize to the same registration scope.
func CanonicalServiceURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("service url %q: %w", raw, domain.ErrInvalidInput)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("service url %q: %w", raw, domain.ErrInvalidInput)
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.RawFragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	return u.String(), nil
}

// CapabilitiesURL builds the GetCapabilities request URL for a canonical
// service URL. URLs that already spell out a capability request pass
// through untouched.
func CapabilitiesURL(serviceURL string, serviceType domain.ServiceType) string {
	if strings.Contains(serviceURL, "?") &&
		strings.Contains(strings.ToLower(serviceURL), "getcapabilities") {
		return serviceURL
	}
	return serviceURL + "?service=" + string(serviceType) + "&request=GetCapabilities"
}

// EndpointCandidates expands a canonical service URL into the list of URLs
// worth probing for a protocol family. The URL itself always comes first;
// well-known suffixes follow, deduplicated against suffixes the URL already
// carries.
func EndpointCandidates(serviceURL string, serviceType domain.ServiceType) []string {
	suffixes := probeEndpoints[serviceType]
	seen := map[string]bool{serviceURL: true}
	out := []string{serviceURL}
	for _, suffix := range suffixes {
		candidate := joinEndpoint(serviceURL, suffix)
		if seen[candidate] {
			continue
		}
		seen[candidate] = true
		out = append(out, candidate)
	}
	return out
}

// joinEndpoint appends a well-known suffix, avoiding doubled segments when
// the base already ends in the suffix or already sits under /geoserver.
func joinEndpoint(base, suffix string) string {
	if suffix == "" || strings.HasSuffix(base, suffix) {
		return base
	}
	if strings.HasPrefix(suffix, "/geoserver/") && strings.Contains(base, "/geoserver") {
		trimmed := strings.TrimPrefix(suffix, "/geoserver")
		if strings.HasSuffix(base, trimmed) {
			return base
		}
		return base + trimmed
	}
	return base + suffix
}

// Software names that identify a service when they appear in the URL path.
var knownServers = []string{"geoserver", "mapserver", "qgis", "arcgis"}

// Path segments too generic to serve as a name.
var genericSegments = map[string]bool{
	"ows": true, "wms": true, "wfs": true, "wmts": true, "gwc": true, "service": true,
}

// Registrable second-level domains whose real name sits one label deeper.
var secondLevelDomains = map[string]bool{
	"gov": true, "com": true, "org": true, "net": true,
}

// DeriveServiceName extracts a human-meaningful service name from a URL when
// the caller did not supply one. Known server software in the path wins,
// then the first meaningful path segment for local addresses, then the
// registrable part of the hostname.
func DeriveServiceName(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "unknown_service"
	}
	host := strings.ToLower(u.Hostname())
	path := strings.Trim(u.Path, "/")

	lowerPath := strings.ToLower(path)
	for _, server := range knownServers {
		if strings.Contains(lowerPath, server) {
			return server
		}
	}

	if host == "localhost" || net.ParseIP(host) != nil {
		for _, part := range strings.Split(path, "/") {
			if part == "" {
				continue
			}
			if p := strings.ToLower(part); !genericSegments[p] {
				return p
			}
			break
		}
		if host == "localhost" || host == "127.0.0.1" || host == "::1" {
			return "localhost"
		}
		return host
	}

	if host == "" {
		return "unknown_service"
	}
	host = strings.TrimPrefix(host, "www.")
	parts := strings.Split(host, ".")
	if len(parts) >= 3 && secondLevelDomains[parts[len(parts)-2]] {
		return parts[len(parts)-3]
	}
	if len(parts) >= 2 {
		return parts[len(parts)-2]
	}
	return parts[0]
}
