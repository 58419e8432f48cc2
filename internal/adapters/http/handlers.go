package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/geoflux/stratum/internal/application"
	"github.com/geoflux/stratum/internal/domain"
	"github.com/geoflux/stratum/internal/ports/input"
)

// registerRequest is the body of POST /api/v1/services.
type registerRequest struct {
	URLs        []string `json:"urls"`
	ServiceType string   `json:"service_type,omitempty"`
	ServiceName string   `json:"service_name,omitempty"`
}

// resolveRequest is the body of POST /api/v1/resolve and /api/v1/preview,
// and one entry of POST /api/v1/composites.
type resolveRequest struct {
	Layer       string            `json:"layer"`
	Kind        string            `json:"kind,omitempty"`
	ServiceType string            `json:"service_type,omitempty"`
	Overrides   map[string]string `json:"overrides,omitempty"`
}

// compositeRequest is the body of POST /api/v1/composites.
type compositeRequest struct {
	Layers []resolveRequest `json:"layers"`
}

// handleRegister ingests one or more service URLs.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.registration.Register(r.Context(), input.RegisterRequest{
		URLs:        req.URLs,
		ServiceType: normalizeServiceType(req.ServiceType),
		ServiceName: req.ServiceName,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	reports := make([]map[string]interface{}, len(result.Reports))
	for i := range result.Reports {
		reports[i] = s.formatReport(&result.Reports[i])
	}
	failures := make([]map[string]interface{}, len(result.Failures))
	for i, f := range result.Failures {
		failures[i] = map[string]interface{}{
			"url":          f.URL,
			"service_type": string(f.ServiceType),
			"reason":       f.Reason,
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"reports":  reports,
		"failures": failures,
		"count":    len(reports),
	})
}

// handleListServices returns the distinct registered services.
func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request) {
	services, err := s.catalog.Services(r.Context())
	if err != nil {
		s.logger.Error("failed to list services", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to list services")
		return
	}

	response := make([]map[string]interface{}, len(services))
	for i := range services {
		response[i] = s.formatService(&services[i])
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"services": response,
		"count":    len(services),
	})
}

// handleRefresh triggers a manual capability refresh.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	result, err := s.refresh.TriggerRefresh(r.Context())
	if err != nil {
		if errors.Is(err, application.ErrRateLimited) {
			w.Header().Set("Retry-After", "30")
			s.writeError(w, http.StatusTooManyRequests, "Rate limit exceeded. Try again in 30 seconds.")
			return
		}
		s.logger.Error("refresh failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Refresh failed")
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

// handleListLayers returns layer records matching the query filters.
func (s *Server) handleListLayers(w http.ResponseWriter, r *http.Request) {
	filter, err := s.parseListFilter(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := s.catalog.List(r.Context(), filter)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	layers := make([]map[string]interface{}, len(records))
	for i := range records {
		layers[i] = s.formatRecord(&records[i])
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"layers": layers,
		"count":  len(layers),
	})
}

// handleGetLayer returns a single layer record.
func (s *Server) handleGetLayer(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	resourceID := vars["resourceId"]

	record, err := s.catalog.Get(r.Context(), resourceID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, s.formatRecord(record))
}

// handleDeleteLayer removes a layer record. Records are never removed by
// refresh; this is the only way out of the registry.
func (s *Server) handleDeleteLayer(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	resourceID := vars["resourceId"]

	if err := s.registration.Deregister(r.Context(), resourceID); err != nil {
		s.writeDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleStats returns registry statistics.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.catalog.Stats(r.Context())
	if err != nil {
		s.logger.Error("failed to read stats", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to read stats")
		return
	}

	byType := make(map[string]int, len(stats.ByServiceType))
	for k, v := range stats.ByServiceType {
		byType[string(k)] = v
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"total_layers":    stats.TotalLayers,
		"service_count":   stats.ServiceCount,
		"by_service_type": byType,
		"by_service_name": stats.ByServiceName,
	})
}

// handleResolve turns a layer reference into a parameterized request.
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resolved, err := s.resolver.Resolve(r.Context(), req.toQuery())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, s.formatResolved(resolved))
}

// handlePreview resolves a layer reference, executes the request upstream
// and returns the staged artifact.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resolved, err := s.resolver.Resolve(r.Context(), req.toQuery())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	artifact, err := s.preview.Execute(r.Context(), resolved)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, s.formatArtifact(artifact))
}

// handleGetArtifact streams a staged preview artifact.
func (s *Server) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	artifactID := vars["artifactId"]

	reader, contentType, err := s.preview.Open(r.Context(), artifactID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	defer func() { _ = reader.Close() }()

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	_, _ = io.Copy(w, reader)
}

// handleComposite resolves every referenced layer and assembles them into a
// composite view.
func (s *Server) handleComposite(w http.ResponseWriter, r *http.Request) {
	var req compositeRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resolved := make([]domain.ResolvedRequest, 0, len(req.Layers))
	for _, layer := range req.Layers {
		rr, err := s.resolver.Resolve(r.Context(), layer.toQuery())
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		resolved = append(resolved, *rr)
	}

	view, err := s.composites.Compose(r.Context(), resolved)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, s.formatComposite(view))
}

// handleHealth returns detailed health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	details := s.health.GetHealthDetails(r.Context())

	status := http.StatusOK
	if !details.Healthy {
		status = http.StatusServiceUnavailable
	}

	s.writeJSON(w, status, map[string]interface{}{
		"status":              boolToStatus(details.Healthy),
		"ready":               details.Ready,
		"layers_registered":   details.LayersRegistered,
		"services_registered": details.ServicesRegistered,
		"components":          details.Components,
	})
}

// handleLiveness returns liveness status.
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	if s.health.IsHealthy(r.Context()) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	} else {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
	}
}

// handleReadiness returns readiness status.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.health.IsReady(r.Context()) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	} else {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
	}
}

// toQuery converts the request body into a resolver query.
func (r *resolveRequest) toQuery() input.ResolveQuery {
	return input.ResolveQuery{
		Layer:     r.Layer,
		Kind:      normalizeKind(r.Kind),
		TypeHint:  normalizeServiceType(r.ServiceType),
		Overrides: r.Overrides,
	}
}

// decodeJSON decodes a JSON request body.
func (s *Server) decodeJSON(r *http.Request, v interface{}) error {
	defer func() { _ = r.Body.Close() }()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %v", err)
	}
	return nil
}

// parseListFilter reads catalog filters from the query string.
func (s *Server) parseListFilter(r *http.Request) (domain.ListFilter, error) {
	q := r.URL.Query()

	filter := domain.ListFilter{
		ServiceType: normalizeServiceType(q.Get("service_type")),
		ServiceName: q.Get("service_name"),
		Query:       q.Get("q"),
	}

	if limit := q.Get("limit"); limit != "" {
		v, err := strconv.Atoi(limit)
		if err != nil || v < 0 {
			return filter, errors.New("invalid limit parameter")
		}
		filter.Limit = v
	}

	if offset := q.Get("offset"); offset != "" {
		v, err := strconv.Atoi(offset)
		if err != nil || v < 0 {
			return filter, errors.New("invalid offset parameter")
		}
		filter.Offset = v
	}

	filter.Normalize()
	return filter, nil
}

// normalizeServiceType maps query/body strings onto the canonical uppercase
// service type. Unknown values pass through for the application layer to
// reject.
func normalizeServiceType(s string) domain.ServiceType {
	return domain.ServiceType(strings.ToUpper(strings.TrimSpace(s)))
}

// normalizeKind maps request kind strings case-insensitively onto the
// canonical spelling. Unknown values pass through for the resolver to reject.
func normalizeKind(s string) domain.RequestKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return ""
	case "getmap":
		return domain.KindGetMap
	case "getfeature":
		return domain.KindGetFeature
	case "gettile":
		return domain.KindGetTile
	default:
		return domain.RequestKind(s)
	}
}

// formatRecord formats a layer record for JSON output.
func (s *Server) formatRecord(rec *domain.LayerRecord) map[string]interface{} {
	record := map[string]interface{}{
		"resource_id":    rec.ResourceID,
		"service_name":   rec.ServiceName,
		"service_url":    rec.ServiceURL,
		"service_type":   string(rec.ServiceType),
		"layer_name":     rec.LayerName,
		"layer_title":    rec.LayerTitle,
		"layer_abstract": rec.LayerAbstract,
		"default_style":  rec.DefaultStyle,
		"formats":        rec.Formats,
		"created_at":     rec.CreatedAt,
		"updated_at":     rec.UpdatedAt,
	}
	if rec.BoundingBox != nil {
		record["bounding_box"] = formatBBox(rec.BoundingBox)
	}
	if rec.DefaultCRS != "" {
		record["default_crs"] = rec.DefaultCRS
	}
	if len(rec.TileMatrixSets) > 0 {
		record["tile_matrix_sets"] = rec.TileMatrixSets
	}
	return record
}

// formatService formats a service registration for JSON output.
func (s *Server) formatService(svc *domain.ServiceRegistration) map[string]interface{} {
	return map[string]interface{}{
		"service_url":   svc.ServiceURL,
		"service_type":  string(svc.ServiceType),
		"service_name":  svc.ServiceName,
		"layer_count":   svc.LayerCount,
		"registered_at": svc.RegisteredAt,
	}
}

// formatReport formats a registration report for JSON output.
func (s *Server) formatReport(report *domain.RegistrationReport) map[string]interface{} {
	return map[string]interface{}{
		"service_url":  report.ServiceURL,
		"service_type": string(report.ServiceType),
		"service_name": report.ServiceName,
		"inserted":     report.Inserted,
		"updated":      report.Updated,
		"unchanged":    report.Unchanged,
		"total":        report.Total(),
		"resource_ids": report.ResourceIDs,
	}
}

// formatResolved formats a resolved request for JSON output.
func (s *Server) formatResolved(rr *domain.ResolvedRequest) map[string]interface{} {
	return map[string]interface{}{
		"kind":   string(rr.Kind),
		"params": rr.Params,
		"record": s.formatRecord(&rr.Record),
	}
}

// formatComposite formats a composite view for JSON output.
func (s *Server) formatComposite(v *domain.CompositeView) map[string]interface{} {
	layers := make([]map[string]interface{}, len(v.Layers))
	for i := range v.Layers {
		layers[i] = s.formatResolved(&v.Layers[i])
	}

	view := map[string]interface{}{
		"id":          v.ID,
		"layers":      layers,
		"layer_count": v.LayerCount(),
		"crss":        v.CRSs,
		"center":      map[string]interface{}{"lon": v.Center.Lon, "lat": v.Center.Lat},
		"zoom":        v.Zoom,
		"created_at":  v.CreatedAt,
	}
	if v.UnionBox != nil {
		view["union_bbox"] = formatBBox(v.UnionBox)
	}
	return view
}

// formatArtifact formats a preview artifact for JSON output.
func (s *Server) formatArtifact(a *domain.PreviewArtifact) map[string]interface{} {
	return map[string]interface{}{
		"id":           a.ID,
		"key":          a.Key,
		"content_type": a.ContentType,
		"size":         a.Size,
		"url":          a.URL,
		"created_at":   a.CreatedAt,
	}
}

// formatBBox formats a bounding box for JSON output.
func formatBBox(b *domain.BoundingBox) map[string]interface{} {
	return map[string]interface{}{
		"crs":   b.CRS,
		"min_x": b.MinX,
		"min_y": b.MinY,
		"max_x": b.MaxX,
		"max_y": b.MaxY,
	}
}

// writeDomainError maps application errors onto HTTP statuses. Reason-carrying
// errors surface their stable code so callers can branch without parsing
// messages.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	var (
		validationErr *domain.ValidationError
		resolveErr    *domain.ResolveError
		compositeErr  *domain.CompositeError
		executionErr  *domain.ExecutionError
		fetchErr      *domain.FetchError
		parseErr      *domain.ParseError
		storageErr    *domain.StorageError
	)

	switch {
	case errors.As(err, &validationErr):
		s.writeError(w, http.StatusBadRequest, validationErr.Error())

	case errors.As(err, &resolveErr):
		s.writeResolveError(w, resolveErr)

	case errors.As(err, &compositeErr):
		s.writeErrorCode(w, http.StatusBadRequest, string(compositeErr.Reason), compositeErr.Error())

	case errors.As(err, &executionErr):
		s.writeError(w, http.StatusBadGateway, executionErr.Error())

	case errors.As(err, &fetchErr):
		s.writeErrorCode(w, http.StatusBadGateway, string(fetchErr.Reason), fetchErr.Error())

	case errors.As(err, &parseErr):
		s.writeErrorCode(w, http.StatusBadGateway, string(parseErr.Reason), parseErr.Error())

	case errors.As(err, &storageErr):
		s.logger.Error("artifact storage failure", "error", err)
		s.writeError(w, http.StatusServiceUnavailable, "Artifact storage unavailable")

	case errors.Is(err, domain.ErrLayerNotFound),
		errors.Is(err, domain.ErrArtifactNotFound),
		errors.Is(err, domain.ErrServiceNotFound),
		errors.Is(err, domain.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())

	case errors.Is(err, domain.ErrInvalidServiceType),
		errors.Is(err, domain.ErrInvalidRequestKind),
		errors.Is(err, domain.ErrInvalidInput):
		s.writeError(w, http.StatusBadRequest, err.Error())

	case errors.Is(err, domain.ErrStorageUnavailable),
		errors.Is(err, domain.ErrUnavailable):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())

	default:
		s.logger.Error("request failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Request failed")
	}
}

// writeResolveError writes a resolution failure. Ambiguity is a conflict and
// carries the candidate records; everything else is unprocessable input.
func (s *Server) writeResolveError(w http.ResponseWriter, resolveErr *domain.ResolveError) {
	status := http.StatusUnprocessableEntity
	if resolveErr.Reason == domain.ResolveAmbiguous {
		status = http.StatusConflict
	}

	body := map[string]interface{}{
		"error":   http.StatusText(status),
		"code":    string(resolveErr.Reason),
		"message": resolveErr.Error(),
	}
	if len(resolveErr.Candidates) > 0 {
		candidates := make([]map[string]interface{}, len(resolveErr.Candidates))
		for i := range resolveErr.Candidates {
			candidates[i] = s.formatRecord(&resolveErr.Candidates[i])
		}
		body["candidates"] = candidates
	}

	s.writeJSON(w, status, body)
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]interface{}{
		"error":   http.StatusText(status),
		"message": message,
	})
}

// writeErrorCode writes an error response with a stable machine-readable code.
func (s *Server) writeErrorCode(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, map[string]interface{}{
		"error":   http.StatusText(status),
		"code":    code,
		"message": message,
	})
}

func boolToStatus(b bool) string {
	if b {
		return "ok"
	}
	return "unhealthy"
}
