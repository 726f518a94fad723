package ledger

import (
	"encoding/json"
	"time"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/shopspring/decimal"
)

// AltaCommand registers one invoice in its series chain
type AltaCommand struct {
	Series    string          `json:"series" validate:"required,max=40"`
	IssueDate time.Time       `json:"issue_date" validate:"required"`
	IssuerID  string          `json:"issuer_id" validate:"omitempty,max=64"`
	Total     decimal.Decimal `json:"total"`
	// Payload is the invoice body as submitted; it is fingerprinted, not interpreted
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Registro is the record returned to the caller after an alta
type Registro struct {
	SoftwareID string `json:"software_id"`
	Mode       string `json:"mode"`
	IssuerNIF  string `json:"issuer_nif"`
	Series     string `json:"series"`
	Number     int64  `json:"number"`
	Hash       string `json:"hash"`
	PrevHash   string `json:"prev_hash"`
	QRURL      string `json:"qr_url"`
}

// AltaResult is the outcome of an alta
type AltaResult struct {
	Registro          Registro
	QRImage           []byte // PNG
	Position          int64
	SignedArtifactRef string
}

// SeriesConfigCommand configures a series
type SeriesConfigCommand struct {
	ResetPolicy string `json:"reset_policy" validate:"omitempty,oneof=never yearly"`
	IssuerID    string `json:"issuer_id" validate:"omitempty,max=64"`
}

// ChainHeadResponse is the public view of a chain head
type ChainHeadResponse struct {
	Series    string    `json:"series"`
	LastHash  string    `json:"last_hash"`
	Length    int64     `json:"length"`
	Started   bool      `json:"started"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// ToChainHeadResponse converts a domain head
func ToChainHeadResponse(h ledger.ChainHead) ChainHeadResponse {
	return ChainHeadResponse{
		Series:    h.Series,
		LastHash:  h.LastHash.String(),
		Length:    h.Length,
		Started:   h.IsStarted(),
		UpdatedAt: h.UpdatedAt,
	}
}

// SeriesConfigResponse is the public view of a series config
type SeriesConfigResponse struct {
	Series      string    `json:"series"`
	ResetPolicy string    `json:"reset_policy"`
	IssuerID    string    `json:"issuer_id,omitempty"`
	Configured  bool      `json:"configured"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// ToSeriesConfigResponse converts a domain config
func ToSeriesConfigResponse(cfg *ledger.SeriesConfig, configured bool) SeriesConfigResponse {
	return SeriesConfigResponse{
		Series:      cfg.Series,
		ResetPolicy: cfg.ResetPolicy.String(),
		IssuerID:    cfg.IssuerID,
		Configured:  configured,
		UpdatedAt:   cfg.UpdatedAt,
	}
}
