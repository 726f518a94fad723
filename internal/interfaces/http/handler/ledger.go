package handler

import (
	"encoding/json"
	"time"

	appledger "github.com/erp/ledger/internal/application/ledger"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// ClaimSequenceRequest asks for the next number of a series
type ClaimSequenceRequest struct {
	Series    string `json:"series" binding:"required,max=40"`
	IssueDate string `json:"issue_date" binding:"required,datetime=2006-01-02"`
}

// ConfigureSeriesRequest sets the options of a series
type ConfigureSeriesRequest struct {
	ResetPolicy string `json:"reset_policy" binding:"omitempty,oneof=never yearly"`
	IssuerID    string `json:"issuer_id" binding:"omitempty,max=64"`
}

// AltaRequest registers an invoice
type AltaRequest struct {
	Series    string          `json:"series" binding:"required,max=40"`
	IssueDate string          `json:"issue_date" binding:"required,datetime=2006-01-02"`
	IssuerID  string          `json:"issuer_id" binding:"omitempty,max=64"`
	Total     decimal.Decimal `json:"total"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// AltaResponse is the registro plus its verification code image
type AltaResponse struct {
	Registro          appledger.Registro `json:"registro"`
	QRImage           []byte             `json:"qr_image"`
	Position          int64              `json:"position"`
	SignedArtifactRef string             `json:"signed_artifact_ref,omitempty"`
}

// LedgerHandler serves sequencing, series configuration and the invoice chain
type LedgerHandler struct {
	BaseHandler
	sequences *appledger.SequenceService
	series    *appledger.SeriesService
	invoices  *appledger.InvoiceService
	chains    *appledger.ChainService
}

// NewLedgerHandler creates a LedgerHandler
func NewLedgerHandler(
	sequences *appledger.SequenceService,
	series *appledger.SeriesService,
	invoices *appledger.InvoiceService,
	chains *appledger.ChainService,
) *LedgerHandler {
	return &LedgerHandler{
		sequences: sequences,
		series:    series,
		invoices:  invoices,
		chains:    chains,
	}
}

// ClaimSequence godoc
// @ID           claimLedgerSequence
// @Summary      Claim the next number of a series
// @Tags         ledger
// @Accept       json
// @Produce      json
// @Param        request body ClaimSequenceRequest true "Series and issue date"
// @Success      200 {object} dto.Response
// @Failure      503 {object} dto.Response
// @Router       /ledger/sequences/claim [post]
func (h *LedgerHandler) ClaimSequence(c *gin.Context) {
	owner, ok := h.requireOwner(c)
	if !ok {
		return
	}
	var req ClaimSequenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}
	issueDate, _ := time.Parse(dateLayout, req.IssueDate)

	alloc, err := h.sequences.ClaimNext(c.Request.Context(), owner, req.Series, issueDate)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, alloc)
}

// ConfigureSeries godoc
// @ID           configureLedgerSeries
// @Summary      Create or replace the configuration of a series
// @Tags         ledger
// @Accept       json
// @Produce      json
// @Param        series path string true "Series"
// @Param        request body ConfigureSeriesRequest true "Series options"
// @Success      200 {object} dto.Response
// @Failure      409 {object} dto.Response "Reset policy change on a series that issued numbers"
// @Router       /ledger/series/{series} [put]
func (h *LedgerHandler) ConfigureSeries(c *gin.Context) {
	owner, ok := h.requireOwner(c)
	if !ok {
		return
	}
	series, ok := h.parseSeries(c)
	if !ok {
		return
	}
	var req ConfigureSeriesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	cfg, err := h.series.Configure(c.Request.Context(), owner, series, appledger.SeriesConfigCommand{
		ResetPolicy: req.ResetPolicy,
		IssuerID:    req.IssuerID,
	})
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, appledger.ToSeriesConfigResponse(cfg, true))
}

// GetSeries godoc
// @ID           getLedgerSeries
// @Summary      Read the configuration of a series
// @Tags         ledger
// @Produce      json
// @Param        series path string true "Series"
// @Success      200 {object} dto.Response
// @Router       /ledger/series/{series} [get]
func (h *LedgerHandler) GetSeries(c *gin.Context) {
	owner, ok := h.requireOwner(c)
	if !ok {
		return
	}
	series, ok := h.parseSeries(c)
	if !ok {
		return
	}

	cfg, configured, err := h.series.Get(c.Request.Context(), owner, series)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, appledger.ToSeriesConfigResponse(cfg, configured))
}

// Alta godoc
// @ID           altaLedgerInvoice
// @Summary      Register an invoice in its series chain
// @Description  Claims a number, links the invoice to the chain head and returns the registro with its verification code
// @Tags         ledger
// @Accept       json
// @Produce      json
// @Param        Idempotency-Key header string false "Client retry key"
// @Param        request body AltaRequest true "Invoice"
// @Success      201 {object} dto.Response
// @Failure      409 {object} dto.Response
// @Failure      502 {object} dto.Response
// @Failure      504 {object} dto.Response
// @Router       /ledger/invoices/alta [post]
func (h *LedgerHandler) Alta(c *gin.Context) {
	owner, ok := h.requireOwner(c)
	if !ok {
		return
	}
	var req AltaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}
	issueDate, _ := time.Parse(dateLayout, req.IssueDate)

	result, err := h.invoices.Alta(c.Request.Context(), owner, appledger.AltaCommand{
		Series:    req.Series,
		IssueDate: issueDate,
		IssuerID:  req.IssuerID,
		Total:     req.Total,
		Payload:   req.Payload,
	})
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Created(c, AltaResponse{
		Registro:          result.Registro,
		QRImage:           result.QRImage,
		Position:          result.Position,
		SignedArtifactRef: result.SignedArtifactRef,
	})
}

// GetChainHead godoc
// @ID           getLedgerChainHead
// @Summary      Read the head of a chain
// @Tags         ledger
// @Produce      json
// @Param        series path string true "Series"
// @Success      200 {object} dto.Response
// @Router       /ledger/chains/{series} [get]
func (h *LedgerHandler) GetChainHead(c *gin.Context) {
	owner, ok := h.requireOwner(c)
	if !ok {
		return
	}
	series, ok := h.parseSeries(c)
	if !ok {
		return
	}

	head, err := h.chains.ReadHead(c.Request.Context(), owner, series)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, appledger.ToChainHeadResponse(head))
}

// VerifyChain godoc
// @ID           verifyLedgerChain
// @Summary      Recompute a chain and report the first broken link
// @Tags         ledger
// @Produce      json
// @Param        series path string true "Series"
// @Success      200 {object} dto.Response
// @Router       /ledger/chains/{series}/verify [get]
func (h *LedgerHandler) VerifyChain(c *gin.Context) {
	owner, ok := h.requireOwner(c)
	if !ok {
		return
	}
	series, ok := h.parseSeries(c)
	if !ok {
		return
	}

	report, err := h.chains.Verify(c.Request.Context(), owner, series)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, report)
}
