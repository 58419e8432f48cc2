package application

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/geoflux/stratum/internal/domain"
	"github.com/geoflux/stratum/internal/ogc"
	"github.com/geoflux/stratum/internal/ports/output"
)

// PreviewPathPrefix is the public route artifacts are served under.
const PreviewPathPrefix = "/preview/"

// contentTypeExtensions maps upstream payload types to artifact file
// extensions. The extension rides inside the artifact id so storage
// backends and browsers can type the payload without a metadata lookup.
var contentTypeExtensions = map[string]string{
	"image/png":            ".png",
	"image/jpeg":           ".jpg",
	"image/gif":            ".gif",
	"image/tiff":           ".tif",
	"image/webp":           ".webp",
	"application/json":     ".json",
	"application/geo+json": ".json",
	"text/xml":             ".xml",
	"application/xml":      ".xml",
	"application/gml+xml":  ".xml",
	"text/html":            ".html",
}

// ExecutorService performs resolved requests against their upstream service
// and stages the payloads as preview artifacts. It implements
// input.PreviewService.
type ExecutorService struct {
	client    output.RequestClient
	artifacts output.ArtifactStorage
	metrics   output.MetricsCollector
	logger    *slog.Logger
}

// NewExecutorService creates the executor.
func NewExecutorService(client output.RequestClient, artifacts output.ArtifactStorage, metrics output.MetricsCollector, logger *slog.Logger) *ExecutorService {
	if metrics == nil {
		metrics = &output.NoOpMetrics{}
	}
	return &ExecutorService{
		client:    client,
		artifacts: artifacts,
		metrics:   metrics,
		logger:    logger,
	}
}

// Execute performs the upstream request exactly once and stages the payload.
// Failures are never retried here: previews are interactive and the caller
// decides whether to try again.
func (s *ExecutorService) Execute(ctx context.Context, req *domain.ResolvedRequest) (*domain.PreviewArtifact, error) {
	if req == nil || len(req.Params) == 0 {
		return nil, fmt.Errorf("resolved request required: %w", domain.ErrInvalidInput)
	}

	requestURL := ogc.BuildRequestURL(req.Record.ServiceURL, req.Params)

	start := time.Now()
	resp, err := s.client.Do(ctx, requestURL)
	s.metrics.ObserveUpstreamDuration(string(req.Kind), time.Since(start))
	if err != nil {
		s.metrics.IncExecute(string(req.Kind), false)
		return nil, &domain.ExecutionError{URL: requestURL, Err: err}
	}
	if resp.Status < 200 || resp.Status > 299 {
		s.metrics.IncExecute(string(req.Kind), false)
		return nil, &domain.ExecutionError{URL: requestURL, Status: resp.Status}
	}
	if isExceptionPayload(requestedFormat(req), resp) {
		s.metrics.IncExecute(string(req.Kind), false)
		return nil, &domain.ExecutionError{
			URL:    requestURL,
			Status: resp.Status,
			Err:    fmt.Errorf("upstream answered with an OGC exception document"),
		}
	}

	contentType := resp.ContentType
	if contentType == "" {
		contentType = requestedFormat(req)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	id := uuid.NewString() + artifactExtension(contentType)

	putStart := time.Now()
	size, err := s.artifacts.Put(ctx, id, contentType, bytes.NewReader(resp.Body))
	s.metrics.IncStorageOperations("put", err == nil)
	s.metrics.ObserveStorageDuration("put", time.Since(putStart))
	if err != nil {
		s.metrics.IncExecute(string(req.Kind), false)
		return nil, fmt.Errorf("stage artifact: %w", err)
	}

	s.metrics.IncExecute(string(req.Kind), true)
	s.logger.Info("preview staged",
		"artifact", id,
		"kind", req.Kind,
		"layer", req.Record.LayerName,
		"content_type", contentType,
		"bytes", size)

	return &domain.PreviewArtifact{
		ID:          id,
		Key:         id,
		ContentType: contentType,
		Size:        size,
		URL:         PreviewPathPrefix + id,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// Open streams a staged artifact and reports its content type.
func (s *ExecutorService) Open(ctx context.Context, artifactID string) (io.ReadCloser, string, error) {
	if artifactID == "" {
		return nil, "", fmt.Errorf("artifact id required: %w", domain.ErrInvalidInput)
	}

	exists, err := s.artifacts.Exists(ctx, artifactID)
	if err != nil {
		return nil, "", err
	}
	if !exists {
		return nil, "", fmt.Errorf("%s: %w", artifactID, domain.ErrArtifactNotFound)
	}

	reader, contentType, err := s.artifacts.GetReader(ctx, artifactID)
	s.metrics.IncStorageOperations("get", err == nil)
	if err != nil {
		return nil, "", err
	}
	return reader, contentType, nil
}

// requestedFormat returns the payload format the request asked for, checking
// the format keys each protocol family uses.
func requestedFormat(req *domain.ResolvedRequest) string {
	for key, val := range req.Params {
		switch strings.ToLower(key) {
		case "format", "outputformat":
			return val
		}
	}
	return ""
}

// isExceptionPayload detects servers that answer 200 with an OGC exception
// document instead of the requested payload. XML is only suspicious when
// the request did not ask for XML.
func isExceptionPayload(requested string, resp *output.UpstreamResponse) bool {
	if strings.Contains(strings.ToLower(requested), "xml") {
		return false
	}
	if !strings.Contains(strings.ToLower(resp.ContentType), "xml") {
		return false
	}
	head := resp.Body
	if len(head) > 1024 {
		head = head[:1024]
	}
	return bytes.Contains(head, []byte("ExceptionReport")) || bytes.Contains(head, []byte("ServiceException"))
}

// artifactExtension maps a content type to the staged file's extension.
func artifactExtension(contentType string) string {
	mediaType := contentType
	if idx := strings.Index(mediaType, ";"); idx >= 0 {
		mediaType = mediaType[:idx]
	}
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	if ext, ok := contentTypeExtensions[mediaType]; ok {
		return ext
	}
	return ".bin"
}
