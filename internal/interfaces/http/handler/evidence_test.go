package handler

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"testing"

	appevidence "github.com/erp/ledger/internal/application/evidence"
	appledger "github.com/erp/ledger/internal/application/ledger"
	"github.com/erp/ledger/internal/domain/ledger"
	domainsigning "github.com/erp/ledger/internal/domain/signing"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ingest(t *testing.T, s *testServer, name string, content []byte, batchID string) appevidence.IngestResult {
	t.Helper()
	w := s.upload(t, name, content, batchID)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[appevidence.IngestResult](t, w)
}

func TestEvidenceHandler_IngestSealExport(t *testing.T) {
	s := newTestServer(t)

	first := ingest(t, s, "invoice.pdf", []byte("%PDF-1.7 first"), "")
	assert.True(t, first.BatchCreated)
	assert.Equal(t, 1, first.Document.Position)
	batchID := first.BatchID.String()

	second := ingest(t, s, "receipt.pdf", []byte("%PDF-1.7 second"), batchID)
	assert.False(t, second.BatchCreated)
	assert.Equal(t, first.BatchID, second.BatchID)
	assert.Equal(t, 2, second.Document.Position)

	w := s.do(t, http.MethodGet, "/api/v1/evidence/batches/"+batchID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	open := decode[appevidence.BatchResponse](t, w)
	assert.Equal(t, "open", open.Status)
	assert.Equal(t, 2, open.DocumentCount)
	assert.Empty(t, open.ManifestDigest)

	w = s.do(t, http.MethodPost, "/api/v1/evidence/batches/"+batchID+"/seal", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	sealed := decode[appevidence.SealResult](t, w)
	assert.False(t, sealed.AlreadySealed)

	h1, _ := hex.DecodeString(first.Document.Digest)
	h2, _ := hex.DecodeString(second.Document.Digest)
	want := sha256.Sum256(append(h1, h2...))
	assert.Equal(t, hex.EncodeToString(want[:]), sealed.ManifestDigest)
	assert.Equal(t, 1, s.signer.calls)

	// resealing answers from the stored result
	w = s.do(t, http.MethodPost, "/api/v1/evidence/batches/"+batchID+"/seal", nil)
	require.Equal(t, http.StatusOK, w.Code)
	again := decode[appevidence.SealResult](t, w)
	assert.True(t, again.AlreadySealed)
	assert.Equal(t, sealed.ManifestDigest, again.ManifestDigest)
	assert.Equal(t, 1, s.signer.calls)

	// sealed batches take no more documents
	w = s.upload(t, "late.pdf", []byte("late"), batchID)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "BATCH_SEALED", decodeError(t, w).Code)

	w = s.do(t, http.MethodGet, "/api/v1/evidence/batches/"+batchID+"/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/zip", w.Header().Get("Content-Type"))
	assert.Equal(t, "true", w.Header().Get("X-Integrity-Guaranteed"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "batch-"+batchID+".zip")

	zr, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
	require.NoError(t, err)
	names := map[string][]byte{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		_ = rc.Close()
		names[f.Name] = data
	}
	assert.Len(t, names, 4)
	assert.Contains(t, names, "manifest.xml")
	signed, ok := names["manifest.signed.xsig"]
	require.True(t, ok)
	assert.Equal(t, append(append([]byte("<Signed>"), names["manifest.xml"]...), []byte("</Signed>")...), signed)

	// the seal extended the evidence chain and left an audit trail
	w = s.do(t, http.MethodGet, "/api/v1/ledger/chains/EVIDENCE", nil)
	head := decode[appledger.ChainHeadResponse](t, w)
	assert.Equal(t, int64(1), head.Length)

	w = s.do(t, http.MethodGet, "/api/v1/evidence/audit?reference="+batchID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	events := decode[[]ledger.AuditEvent](t, w)
	kinds := make([]ledger.AuditKind, 0, len(events))
	for _, e := range events {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []ledger.AuditKind{ledger.AuditKindUpload, ledger.AuditKindUpload, ledger.AuditKindSeal}, kinds)
}

func TestEvidenceHandler_ExportOpenBatch(t *testing.T) {
	s := newTestServer(t)
	res := ingest(t, s, "a.txt", []byte("alpha"), "")

	w := s.do(t, http.MethodGet, "/api/v1/evidence/batches/"+res.BatchID.String()+"/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "false", w.Header().Get("X-Integrity-Guaranteed"))

	zr, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	assert.Contains(t, zr.File[0].Name, "documents/")
}

func TestEvidenceHandler_SealSigningFailure(t *testing.T) {
	s := newTestServer(t)
	res := ingest(t, s, "a.txt", []byte("alpha"), "")
	s.signer.err = domainsigning.NewUpstreamError(http.StatusBadGateway, []byte("hsm offline"))

	w := s.do(t, http.MethodPost, "/api/v1/evidence/batches/"+res.BatchID.String()+"/seal", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	info := decodeError(t, w)
	assert.Equal(t, "SIGNING_UPSTREAM", info.Code)
	assert.True(t, info.Retryable)
	assert.Equal(t, float64(http.StatusBadGateway), info.Context["upstream_status"])
	assert.Equal(t, "hsm offline", info.Context["upstream_body"])

	// the batch stays open and still accepts documents
	more := ingest(t, s, "b.txt", []byte("beta"), res.BatchID.String())
	assert.Equal(t, 2, more.Document.Position)
}

func TestEvidenceHandler_Errors(t *testing.T) {
	s := newTestServer(t)

	t.Run("unknown batch", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/evidence/batches/"+uuid.NewString(), nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("malformed batch id", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/evidence/batches/not-a-uuid/seal", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("ingest into unknown batch", func(t *testing.T) {
		w := s.upload(t, "a.txt", []byte("alpha"), uuid.NewString())
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("empty file", func(t *testing.T) {
		w := s.upload(t, "a.txt", nil, "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("audit needs a reference", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/evidence/audit", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "VALIDATION_ERROR", decodeError(t, w).Code)
	})
}
