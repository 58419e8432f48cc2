package domain

import (
	"errors"
	"fmt"
)

// Base error types (sentinel errors).
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnsupported  = errors.New("unsupported operation")
	ErrInternal     = errors.New("internal error")
	ErrUnavailable  = errors.New("service unavailable")
)

// Specific errors.
var (
	ErrLayerNotFound      = fmt.Errorf("layer: %w", ErrNotFound)
	ErrArtifactNotFound   = fmt.Errorf("artifact: %w", ErrNotFound)
	ErrServiceNotFound    = fmt.Errorf("service: %w", ErrNotFound)
	ErrInvalidServiceType = fmt.Errorf("service type: %w", ErrInvalidInput)
	ErrInvalidRequestKind = fmt.Errorf("request kind: %w", ErrInvalidInput)
	ErrNotReady           = fmt.Errorf("service not ready: %w", ErrUnavailable)
	ErrStorageUnavailable = fmt.Errorf("storage: %w", ErrUnavailable)
)

// FetchReason classifies capability fetch failures.
type FetchReason string

const (
	FetchUnreachable FetchReason = "unreachable"        // Network failure after exhausted retries
	FetchBadStatus   FetchReason = "bad_status"         // Non-2xx HTTP response
	FetchEmptyBody   FetchReason = "empty_body"         // 2xx with no payload
	FetchTooLarge    FetchReason = "document_too_large" // Payload exceeded the configured cap
)

// FetchError represents a capability document fetch failure.
type FetchError struct {
	Reason FetchReason // Failure classification
	URL    string      // Request URL
	Status int         // HTTP status for bad_status
	Err    error       // Underlying error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	switch e.Reason {
	case FetchBadStatus:
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.Status)
	case FetchEmptyBody:
		return fmt.Sprintf("fetch %s: empty response body", e.URL)
	case FetchTooLarge:
		return fmt.Sprintf("fetch %s: document exceeds size limit", e.URL)
	default:
		return fmt.Sprintf("fetch %s: unreachable: %v", e.URL, e.Err)
	}
}

// Unwrap returns the underlying error alongside ErrUnavailable so callers
// can match either with errors.Is.
func (e *FetchError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Err, ErrUnavailable}
	}
	return []error{ErrUnavailable}
}

// Retryable reports whether the failure may succeed on a later attempt.
func (e *FetchError) Retryable() bool {
	return e.Reason == FetchUnreachable
}

// ParseReason classifies capability parse failures. None of them are retryable.
type ParseReason string

const (
	ParseMalformed          ParseReason = "malformed_document"
	ParseUnsupportedVersion ParseReason = "unsupported_version"
	ParseNoLayers           ParseReason = "no_layers"
)

// ParseError represents a capability document parse failure.
type ParseError struct {
	Reason  ParseReason // Failure classification
	Service ServiceType // Protocol being parsed
	Version string      // Version encountered, for unsupported_version
	Err     error       // Underlying error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	switch e.Reason {
	case ParseUnsupportedVersion:
		return fmt.Sprintf("parse %s capabilities: unsupported version %q (supported: %s)",
			e.Service, e.Version, e.Service.CapabilityVersion())
	case ParseNoLayers:
		return fmt.Sprintf("parse %s capabilities: document advertises no layers", e.Service)
	default:
		return fmt.Sprintf("parse %s capabilities: malformed document: %v", e.Service, e.Err)
	}
}

// Unwrap returns the underlying error alongside ErrInvalidInput so callers
// can match either with errors.Is.
func (e *ParseError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Err, ErrInvalidInput}
	}
	return []error{ErrInvalidInput}
}

// ResolveReason classifies parameter resolution failures.
type ResolveReason string

const (
	ResolveAmbiguous    ResolveReason = "ambiguous_layer"
	ResolveMissingTile  ResolveReason = "missing_tile_coordinates"
	ResolveMissingBBox  ResolveReason = "missing_bounding_box"
	ResolveKindMismatch ResolveReason = "kind_mismatch"
)

// ResolveError represents a parameter resolution failure. All variants are
// caller-actionable; Candidates is populated for ambiguous_layer so the caller
// can disambiguate instead of the resolver guessing.
type ResolveError struct {
	Reason     ResolveReason // Failure classification
	Layer      string        // Name or resource id the caller asked for
	Kind       RequestKind   // Requested kind
	Candidates []LayerRecord // Matching records, for ambiguous_layer
}

// Error implements the error interface.
func (e *ResolveError) Error() string {
	switch e.Reason {
	case ResolveAmbiguous:
		return fmt.Sprintf("resolve %q: %d layers match, disambiguate by resource id or service type",
			e.Layer, len(e.Candidates))
	case ResolveMissingTile:
		return fmt.Sprintf("resolve %q: %s requires tilematrix, tilerow and tilecol", e.Layer, e.Kind)
	case ResolveMissingBBox:
		return fmt.Sprintf("resolve %q: no bounding box stored and none supplied", e.Layer)
	default:
		return fmt.Sprintf("resolve %q: %s not available for this layer's service type", e.Layer, e.Kind)
	}
}

// Unwrap returns the underlying error type.
func (e *ResolveError) Unwrap() error {
	return ErrInvalidInput
}

// ExecutionError represents an upstream request failure during preview
// execution. Execution never retries; the caller decides.
type ExecutionError struct {
	URL    string // Final request URL
	Status int    // HTTP status, when the upstream answered
	Err    error  // Underlying error
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("execute %s: upstream returned status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("execute %s: upstream failure: %v", e.URL, e.Err)
}

// Unwrap returns the underlying error alongside ErrUnavailable so callers
// can match either with errors.Is.
func (e *ExecutionError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Err, ErrUnavailable}
	}
	return []error{ErrUnavailable}
}

// CompositeReason classifies composite assembly failures.
type CompositeReason string

const (
	CompositeEmptyInput     CompositeReason = "empty_input"
	CompositeDuplicateLayer CompositeReason = "duplicate_layer"
)

// CompositeError represents a composite assembly failure.
type CompositeError struct {
	Reason     CompositeReason // Failure classification
	ResourceID string          // Offending layer, for duplicate_layer
}

// Error implements the error interface.
func (e *CompositeError) Error() string {
	if e.Reason == CompositeDuplicateLayer {
		return fmt.Sprintf("compose: layer %s appears more than once", e.ResourceID)
	}
	return "compose: no layers given"
}

// Unwrap returns the underlying error type.
func (e *CompositeError) Unwrap() error {
	return ErrInvalidInput
}

// ValidationError represents a detailed input validation error.
type ValidationError struct {
	Field      string      // Field that failed validation
	Value      interface{} // The invalid value
	Constraint string      // The constraint that was violated
	Message    string      // Human-readable message
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s: %s (value: %v, constraint: %s)",
		e.Field, e.Message, e.Value, e.Constraint)
}

// Unwrap returns the underlying error type.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// StorageError represents an error during artifact storage operations.
type StorageError struct {
	Operation string // Operation that failed (put, get, delete, list)
	Key       string // Object key
	Err       error  // Underlying error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("storage error during %s for %s: %v",
			e.Operation, e.Key, e.Err)
	}
	return fmt.Sprintf("storage error during %s: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error {
	return e.Err
}
