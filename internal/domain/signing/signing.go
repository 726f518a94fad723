// Package signing defines the port to the external signing authority
// that turns canonical content into a non-repudiable signed artifact.
package signing

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/erp/ledger/internal/domain/shared"
)

// Artifact is the normalized output of the signing authority, whatever
// shape the authority answered in
type Artifact struct {
	Bytes         []byte
	ContentType   string
	SuggestedName string
}

// Extension returns the file extension for storing the artifact, taken
// from the suggested name or else the content type
func (a *Artifact) Extension() string {
	if ext := path.Ext(a.SuggestedName); ext != "" && len(ext) <= 8 {
		return strings.ToLower(ext)
	}
	ct := strings.ToLower(a.ContentType)
	switch {
	case strings.Contains(ct, "xml"):
		return ".xml"
	case strings.Contains(ct, "pdf"):
		return ".pdf"
	case strings.Contains(ct, "json"):
		return ".json"
	case strings.Contains(ct, "pkcs7"), strings.Contains(ct, "cms"):
		return ".p7m"
	}
	return ".bin"
}

// Signer signs canonical content
type Signer interface {
	Sign(ctx context.Context, content []byte) (*Artifact, error)
}

// Signing errors
var (
	// ErrTimeout is returned when the authority did not answer in time
	ErrTimeout = shared.NewRetryableDomainError("SIGNING_TIMEOUT", "The signing authority did not answer in time")

	// ErrUpstream is returned for a non-2xx answer or an unusable body
	ErrUpstream = shared.NewRetryableDomainError("SIGNING_UPSTREAM", "The signing authority rejected the request")
)

// NewTimeoutError wraps a deadline failure
func NewTimeoutError(cause error) error {
	return ErrTimeout.WithCause(cause)
}

// NewUpstreamError carries the upstream status and body verbatim
func NewUpstreamError(status int, body []byte) error {
	e := ErrUpstream.
		WithDetail("upstream_status", status).
		WithDetail("upstream_body", string(body))
	e.Message = fmt.Sprintf("The signing authority answered HTTP %d", status)
	return e
}

// NewMalformedResponseError reports a 2xx answer that carried no usable artifact
func NewMalformedResponseError(cause error) error {
	e := ErrUpstream.WithCause(cause)
	e.Message = "The signing authority returned an unusable artifact"
	return e
}

// NewTransportError reports an authority that could not be reached
func NewTransportError(cause error) error {
	e := ErrUpstream.WithCause(cause)
	e.Message = "The signing authority could not be reached"
	return e
}
