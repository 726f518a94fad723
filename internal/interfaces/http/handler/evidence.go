package handler

import (
	"io"
	"mime"
	"net/http"
	"strconv"

	appevidence "github.com/erp/ledger/internal/application/evidence"
	appledger "github.com/erp/ledger/internal/application/ledger"
	"github.com/erp/ledger/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// IngestForm is the multipart form of a document upload
type IngestForm struct {
	BatchID string `form:"batch_id" binding:"omitempty,uuid"`
}

// AuditQuery selects the audit trail of one batch or invoice
type AuditQuery struct {
	Reference string `form:"reference" binding:"required,max=128"`
}

// EvidenceHandler serves document ingestion, batch sealing and export
type EvidenceHandler struct {
	BaseHandler
	batches *appevidence.BatchService
	audit   *appledger.AuditService
}

// NewEvidenceHandler creates an EvidenceHandler
func NewEvidenceHandler(batches *appevidence.BatchService, audit *appledger.AuditService) *EvidenceHandler {
	return &EvidenceHandler{batches: batches, audit: audit}
}

// IngestDocument godoc
// @ID           ingestEvidenceDocument
// @Summary      Upload a document into a batch
// @Description  Without batch_id a new batch is opened
// @Tags         evidence
// @Accept       multipart/form-data
// @Produce      json
// @Param        file formData file true "Document"
// @Param        batch_id formData string false "Open batch to append to"
// @Success      201 {object} dto.Response
// @Failure      422 {object} dto.Response
// @Router       /evidence/batches/documents [post]
func (h *EvidenceHandler) IngestDocument(c *gin.Context) {
	owner, ok := h.requireOwner(c)
	if !ok {
		return
	}
	var form IngestForm
	if err := c.ShouldBind(&form); err != nil {
		h.ValidationError(c, err)
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		h.BadRequest(c, "Missing file")
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		h.BadRequest(c, "Unreadable file")
		return
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	var batchID *uuid.UUID
	if form.BatchID != "" {
		id := uuid.MustParse(form.BatchID)
		batchID = &id
	}

	result, err := h.batches.Ingest(c.Request.Context(), owner, batchID, appevidence.Upload{
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Content:     content,
	})
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Created(c, result)
}

// SealBatch godoc
// @ID           sealEvidenceBatch
// @Summary      Sign the manifest of a batch and freeze it
// @Description  Sealing a sealed batch returns the stored result
// @Tags         evidence
// @Produce      json
// @Param        id path string true "Batch ID" format(uuid)
// @Param        Idempotency-Key header string false "Client retry key"
// @Success      200 {object} dto.Response
// @Failure      409 {object} dto.Response
// @Failure      502 {object} dto.Response
// @Router       /evidence/batches/{id}/seal [post]
func (h *EvidenceHandler) SealBatch(c *gin.Context) {
	owner, ok := h.requireOwner(c)
	if !ok {
		return
	}
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	result, err := h.batches.Seal(c.Request.Context(), owner, id)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, result)
}

// GetBatch godoc
// @ID           getEvidenceBatch
// @Summary      Read a batch with its documents
// @Tags         evidence
// @Produce      json
// @Param        id path string true "Batch ID" format(uuid)
// @Success      200 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Router       /evidence/batches/{id} [get]
func (h *EvidenceHandler) GetBatch(c *gin.Context) {
	owner, ok := h.requireOwner(c)
	if !ok {
		return
	}
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	batch, err := h.batches.Get(c.Request.Context(), owner, id)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, batch)
}

// ExportBatch godoc
// @ID           exportEvidenceBatch
// @Summary      Download a batch as a zip archive
// @Description  X-Integrity-Guaranteed is false for open batches, whose archive carries no signed manifest
// @Tags         evidence
// @Produce      application/zip
// @Param        id path string true "Batch ID" format(uuid)
// @Success      200 {file} binary
// @Router       /evidence/batches/{id}/export [get]
func (h *EvidenceHandler) ExportBatch(c *gin.Context) {
	owner, ok := h.requireOwner(c)
	if !ok {
		return
	}
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	export, err := h.batches.Export(c.Request.Context(), owner, id)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": export.Filename}))
	c.Header(middleware.IntegrityHeader, strconv.FormatBool(export.Sealed))
	c.Data(http.StatusOK, "application/zip", export.Archive)
}

// ListAudit godoc
// @ID           listEvidenceAudit
// @Summary      Audit trail of one batch or invoice
// @Tags         evidence
// @Produce      json
// @Param        reference query string true "Batch ID or SERIES-NUMBER"
// @Success      200 {object} dto.Response
// @Router       /evidence/audit [get]
func (h *EvidenceHandler) ListAudit(c *gin.Context) {
	owner, ok := h.requireOwner(c)
	if !ok {
		return
	}
	var query AuditQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.ValidationError(c, err)
		return
	}

	events, err := h.audit.List(c.Request.Context(), owner, query.Reference)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, events)
}
