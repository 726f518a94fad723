// Package verification renders the regulator verification code printed
// on every issued invoice: a query URL and its QR image.
package verification

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/config"
	"github.com/shopspring/decimal"
	qrcode "github.com/skip2/go-qrcode"
	"golang.org/x/text/unicode/norm"
)

// DefaultImageSize is the QR edge length in pixels
const DefaultImageSize = 256

const dateLayout = "02-01-2006"

// ErrEncoding is returned when a reference cannot be encoded
var ErrEncoding = shared.NewDomainError("ENCODING_ERROR", "Verification code cannot be encoded")

// NewEncodingError reports which field made the reference unencodable
func NewEncodingError(field, reason string) error {
	return ErrEncoding.WithDetail("field", field).WithDetail("reason", reason)
}

// Reference identifies one issued invoice
type Reference struct {
	IssuerID  string
	Series    string
	Number    int64
	Hash      string // hex encoded chain hash
	IssueDate *time.Time
	Total     *decimal.Decimal
}

// Code is a rendered verification code
type Code struct {
	URL   string
	Image []byte // PNG
}

// Renderer builds verification codes against a fixed base URL
type Renderer struct {
	baseURL   string
	imageSize int
}

// NewRenderer validates the base URL and builds a renderer
func NewRenderer(cfg *config.VerificationConfig) (*Renderer, error) {
	if cfg == nil || cfg.BaseURL == "" {
		return nil, shared.ErrConfiguration.WithDetail("field", "verification.base_url")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, shared.ErrConfiguration.WithDetail("field", "verification.base_url")
	}
	if u.RawQuery != "" {
		return nil, shared.ErrConfiguration.
			WithDetail("field", "verification.base_url").
			WithDetail("reason", "base url must not carry a query")
	}
	size := cfg.ImageSize
	if size <= 0 {
		size = DefaultImageSize
	}
	return &Renderer{baseURL: cfg.BaseURL, imageSize: size}, nil
}

// URL builds the verification URL without rendering the image
func (r *Renderer) URL(ref Reference) (string, error) {
	issuer, err := normalizeIdentity(ref.IssuerID)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(ref.Series) == "" {
		return "", NewEncodingError("series", "empty")
	}
	if ref.Number < 1 {
		return "", NewEncodingError("number", "must be at least 1")
	}
	digest, err := ledger.ParseDigest(ref.Hash)
	if err != nil {
		return "", NewEncodingError("hash", "not a 32-byte digest")
	}

	// Parameter order is fixed by the regulator, so url.Values (which
	// sorts keys) is not used.
	var b strings.Builder
	b.WriteString(r.baseURL)
	b.WriteByte('?')
	writeParam(&b, "nif", issuer, true)
	writeParam(&b, "numserie", ref.Series+"-"+strconv.FormatInt(ref.Number, 10), false)
	if ref.IssueDate != nil {
		writeParam(&b, "fecha", ref.IssueDate.Format(dateLayout), false)
	}
	if ref.Total != nil {
		writeParam(&b, "importe", ref.Total.StringFixed(2), false)
	}
	writeParam(&b, "huella", digest.Hex(), false)
	return b.String(), nil
}

// Render builds the URL and its PNG QR code
func (r *Renderer) Render(ref Reference) (*Code, error) {
	u, err := r.URL(ref)
	if err != nil {
		return nil, err
	}
	png, err := qrcode.Encode(u, qrcode.Medium, r.imageSize)
	if err != nil {
		return nil, fmt.Errorf("render verification code: %w", ErrEncoding.WithCause(err))
	}
	return &Code{URL: u, Image: png}, nil
}

func writeParam(b *strings.Builder, key, value string, first bool) {
	if !first {
		b.WriteByte('&')
	}
	b.WriteString(key)
	b.WriteByte('=')
	b.WriteString(url.QueryEscape(value))
}

func normalizeIdentity(id string) (string, error) {
	id = norm.NFC.String(strings.TrimSpace(id))
	if id == "" {
		return "", NewEncodingError("issuer_id", "empty")
	}
	for _, r := range id {
		if !unicode.IsPrint(r) {
			return "", NewEncodingError("issuer_id", "not printable")
		}
	}
	return id, nil
}
