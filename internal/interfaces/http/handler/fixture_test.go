package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	appevidence "github.com/erp/ledger/internal/application/evidence"
	appledger "github.com/erp/ledger/internal/application/ledger"
	"github.com/erp/ledger/internal/domain/ledger"
	domainsigning "github.com/erp/ledger/internal/domain/signing"
	"github.com/erp/ledger/internal/infrastructure/config"
	"github.com/erp/ledger/internal/infrastructure/persistence"
	"github.com/erp/ledger/internal/infrastructure/persistence/models"
	"github.com/erp/ledger/internal/infrastructure/storage"
	"github.com/erp/ledger/internal/infrastructure/verification"
	"github.com/erp/ledger/internal/interfaces/http/dto"
	"github.com/erp/ledger/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubSigner wraps content in a fixed envelope, or fails with err
type stubSigner struct {
	err   error
	calls int
}

func (s *stubSigner) Sign(_ context.Context, content []byte) (*domainsigning.Artifact, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	signed := append([]byte("<Signed>"), content...)
	signed = append(signed, []byte("</Signed>")...)
	return &domainsigning.Artifact{Bytes: signed, ContentType: "application/xml", SuggestedName: "manifest.xsig"}, nil
}

type testServer struct {
	engine  *gin.Engine
	signer  *stubSigner
	objects *storage.MemoryObjectStorage
}

// newTestServer wires the handlers over SQLite and in-memory storage
func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := persistence.NewDatabase(&config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "ledger.db"),
	}, nil)
	require.NoError(t, err)
	require.NoError(t, db.DB.AutoMigrate(models.AllModels()...))
	t.Cleanup(func() { _ = db.Close() })

	signer := &stubSigner{}
	objects := storage.NewMemoryObjectStorage()
	retry := appledger.RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}

	configs := persistence.NewGormSeriesConfigRepository(db.DB)
	chainRepo := persistence.NewGormChainRepository(db.DB)
	recordRepo := persistence.NewGormRecordRepository(db.DB)
	auditRepo := persistence.NewGormAuditRepository(db.DB)
	scope := persistence.NewGormTransactionScope(db.DB)

	sequenceRepo := persistence.NewGormSequenceRepository(db.DB)
	sequences := appledger.NewSequenceService(sequenceRepo, configs, ledger.ResetYearly, retry)
	series := appledger.NewSeriesService(configs, sequenceRepo, ledger.ResetYearly)
	chains := appledger.NewChainService(chainRepo, recordRepo, scope, retry)
	renderer, err := verification.NewRenderer(&config.VerificationConfig{BaseURL: "https://verify.example/qr"})
	require.NoError(t, err)
	invoices, err := appledger.NewInvoiceService(sequences, chains, configs, renderer, signer, objects,
		appledger.InvoiceOptions{SoftwareID: "LEDGER-TEST", Mode: "VERIFACTU"})
	require.NoError(t, err)
	batches, err := appevidence.NewBatchService(
		persistence.NewGormBatchRepository(db.DB), persistence.NewGormDocumentRepository(db.DB),
		scope, chains, signer, objects, "EVIDENCE")
	require.NoError(t, err)

	ledgerHandler := NewLedgerHandler(sequences, series, invoices, chains)
	evidenceHandler := NewEvidenceHandler(batches, appledger.NewAuditService(auditRepo))

	middleware.SetupValidator()
	engine := gin.New()
	engine.Use(middleware.RequestID())
	engine.GET("/health", NewSystemHandler(db, "ledger", "test").Health)
	api := engine.Group("/api/v1", middleware.Owner(middleware.OwnerConfigForEnv("production")))
	api.POST("/ledger/sequences/claim", ledgerHandler.ClaimSequence)
	api.PUT("/ledger/series/:series", ledgerHandler.ConfigureSeries)
	api.GET("/ledger/series/:series", ledgerHandler.GetSeries)
	api.POST("/ledger/invoices/alta", ledgerHandler.Alta)
	api.GET("/ledger/chains/:series", ledgerHandler.GetChainHead)
	api.GET("/ledger/chains/:series/verify", ledgerHandler.VerifyChain)
	api.POST("/evidence/batches/documents", evidenceHandler.IngestDocument)
	api.POST("/evidence/batches/:id/seal", evidenceHandler.SealBatch)
	api.GET("/evidence/batches/:id", evidenceHandler.GetBatch)
	api.GET("/evidence/batches/:id/export", evidenceHandler.ExportBatch)
	api.GET("/evidence/audit", evidenceHandler.ListAudit)

	return &testServer{engine: engine, signer: signer, objects: objects}
}

const testOwnerHeader = "11111111-2222-3333-4444-555555555555"

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.OwnerHeaderKey, testOwnerHeader)
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func (s *testServer) upload(t *testing.T, filename string, content []byte, batchID string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if batchID != "" {
		require.NoError(t, mw.WriteField("batch_id", batchID))
	}
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/evidence/batches/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(middleware.OwnerHeaderKey, testOwnerHeader)
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

// envelope mirrors dto.Response with the data left raw
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *dto.ErrorInfo  `json:"error"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	require.True(t, env.Success, w.Body.String())
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) *dto.ErrorInfo {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	require.False(t, env.Success)
	require.NotNil(t, env.Error)
	return env.Error
}

func (s *testServer) doWithoutOwner(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}
