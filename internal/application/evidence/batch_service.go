package evidence

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	appledger "github.com/erp/ledger/internal/application/ledger"
	"github.com/erp/ledger/internal/domain/evidence"
	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/domain/signing"
	"github.com/erp/ledger/internal/infrastructure/logger"
	"github.com/erp/ledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"
)

// BatchService ingests documents into batches and seals them
type BatchService struct {
	batches        evidence.BatchRepository
	documents      evidence.DocumentRepository
	txScope        appledger.TransactionScope
	chains         *appledger.ChainService
	signer         signing.Signer
	objects        shared.ObjectStorage
	evidenceSeries string
	metrics        *telemetry.LedgerMetrics
}

// NewBatchService creates a BatchService. Sealed batches extend the
// owner's chain named evidenceSeries.
func NewBatchService(
	batches evidence.BatchRepository,
	documents evidence.DocumentRepository,
	txScope appledger.TransactionScope,
	chains *appledger.ChainService,
	signer signing.Signer,
	objects shared.ObjectStorage,
	evidenceSeries string,
) (*BatchService, error) {
	if signer == nil || objects == nil {
		return nil, shared.ErrConfiguration.WithDetail("field", "signing")
	}
	if err := ledger.ValidateSeries(evidenceSeries); err != nil {
		return nil, shared.ErrConfiguration.WithDetail("field", "ledger.evidence_series").WithCause(err)
	}
	return &BatchService{
		batches:        batches,
		documents:      documents,
		txScope:        txScope,
		chains:         chains,
		signer:         signer,
		objects:        objects,
		evidenceSeries: evidenceSeries,
		metrics:        telemetry.NewNoopLedgerMetrics(),
	}, nil
}

// SetMetrics sets the ledger metrics
func (s *BatchService) SetMetrics(m *telemetry.LedgerMetrics) {
	if m != nil {
		s.metrics = m
	}
}

// Ingest stores one document. A nil batchID opens a new batch.
func (s *BatchService) Ingest(ctx context.Context, ownerID uuid.UUID, batchID *uuid.UUID, upload Upload) (*IngestResult, error) {
	var (
		batch   *evidence.Batch
		created bool
	)
	if batchID == nil {
		batch = evidence.NewBatch(ownerID)
		created = true
	} else {
		found, err := s.batches.FindByID(ctx, ownerID, *batchID)
		if err != nil {
			return nil, err
		}
		if err := found.EnsureOpen(); err != nil {
			return nil, err
		}
		batch = found
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "batch", "ingest",
		telemetry.SpanAttrOwnerID, ownerID, telemetry.SpanAttrBatchID, batch.ID)
	defer span.End()

	doc, err := evidence.NewDocument(batch, upload.Filename, upload.ContentType, upload.Content)
	if err != nil {
		return nil, err
	}

	// Bytes go first; a document row never points at a missing object.
	if err := s.objects.Put(ctx, doc.ObjectRef, upload.Content, doc.ContentType); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("store document: %w", err)
	}

	err = s.txScope.Execute(ctx, func(repos appledger.TransactionalRepositories) error {
		if created {
			if err := repos.BatchRepo().Create(ctx, batch); err != nil {
				return fmt.Errorf("create batch: %w", err)
			}
		}
		position, err := repos.BatchRepo().ClaimPosition(ctx, ownerID, batch.ID)
		if err != nil {
			return err
		}
		doc.Position = position
		if err := repos.DocumentRepo().Create(ctx, doc); err != nil {
			return fmt.Errorf("create document: %w", err)
		}
		if err := batch.RecordIngest(doc); err != nil {
			return err
		}
		return appendAudit(ctx, repos, batch)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	batch.ClearDomainEvents()

	logger.L(ctx).Info("Document ingested",
		zap.String("batch_id", batch.ID.String()),
		zap.Int("position", doc.Position),
		zap.String("digest", doc.Digest.Hex()),
	)

	return &IngestResult{
		Document:     ToDocumentResponse(doc),
		BatchID:      batch.ID,
		BatchCreated: created,
	}, nil
}

// Seal signs the manifest of an open batch and freezes it. Sealing a
// sealed batch returns the stored result.
func (s *BatchService) Seal(ctx context.Context, ownerID, batchID uuid.UUID) (result *SealResult, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "batch", "seal",
		telemetry.SpanAttrOwnerID, ownerID, telemetry.SpanAttrBatchID, batchID)
	defer span.End()

	alreadySealed := false
	defer func() {
		s.metrics.RecordSeal(ctx, alreadySealed, err)
		if err != nil {
			telemetry.RecordError(span, err)
		}
	}()

	batch, err := s.batches.FindByID(ctx, ownerID, batchID)
	if err != nil {
		return nil, err
	}
	if batch.IsSealed() {
		alreadySealed = true
		return sealResultOf(batch, true), nil
	}
	if batch.DocumentCount == 0 {
		return nil, evidence.ErrEmptyBatch
	}

	docs, err := s.documents.ListByBatch(ctx, ownerID, batchID)
	if err != nil {
		return nil, fmt.Errorf("list batch documents: %w", err)
	}
	manifest, digest, err := evidence.BuildManifest(batch, docs)
	if err != nil {
		return nil, err
	}
	expectedCount := batch.DocumentCount

	canonical, err := manifest.Canonical()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	artifact, err := s.signer.Sign(ctx, canonical)
	s.metrics.RecordSigning(ctx, time.Since(start), err)
	if err != nil {
		logger.L(ctx).Warn("Manifest signing failed, batch stays open",
			zap.String("batch_id", batchID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	manifestRef := evidence.ManifestKey(ownerID, batchID)
	signedRef := evidence.SignedManifestKey(ownerID, batchID, artifact.Extension())
	if err := s.objects.Put(ctx, manifestRef, canonical, "application/xml"); err != nil {
		return nil, fmt.Errorf("store manifest: %w", err)
	}
	if err := s.objects.Put(ctx, signedRef, artifact.Bytes, artifact.ContentType); err != nil {
		s.discardManifests(ctx, ownerID, batchID, manifestRef, signedRef)
		return nil, fmt.Errorf("store signed manifest: %w", err)
	}

	if err := batch.Seal(digest, manifestRef, signedRef); err != nil {
		s.discardManifests(ctx, ownerID, batchID, manifestRef, signedRef)
		return nil, err
	}

	issuer := ownerID.String()
	_, err = s.chains.Append(ctx, ownerID, s.evidenceSeries, func(_ context.Context, head ledger.ChainHead) (*appledger.Link, error) {
		rec := ledger.NewRecord(head, ledger.RecordKindBatchManifest, batch.Reference(), digest, issuer)
		rec.SignedArtifactRef = signedRef
		return &appledger.Link{
			Record: rec,
			Within: func(ctx context.Context, repos appledger.TransactionalRepositories) error {
				if err := repos.BatchRepo().MarkSealed(ctx, batch, expectedCount); err != nil {
					return err
				}
				return appendAudit(ctx, repos, batch)
			},
		}, nil
	})
	if errors.Is(err, evidence.ErrBatchSealed) {
		// Another seal committed first; answer with what it stored.
		current, findErr := s.batches.FindByID(ctx, ownerID, batchID)
		if findErr != nil {
			return nil, findErr
		}
		alreadySealed = true
		return sealResultOf(current, true), nil
	}
	if err != nil {
		s.discardManifests(ctx, ownerID, batchID, manifestRef, signedRef)
		return nil, err
	}
	batch.ClearDomainEvents()

	logger.L(ctx).Info("Batch sealed",
		zap.String("batch_id", batchID.String()),
		zap.Int("documents", expectedCount),
		zap.String("chain_digest", digest.Hex()),
	)
	return sealResultOf(batch, false), nil
}

// discardManifests removes the manifests of a seal that did not commit.
// The keys are shared by every seal of the batch, so they stay when the
// stored batch is sealed or cannot be read.
func (s *BatchService) discardManifests(ctx context.Context, ownerID, batchID uuid.UUID, keys ...string) {
	ctx = context.WithoutCancel(ctx)
	current, err := s.batches.FindByID(ctx, ownerID, batchID)
	if err != nil || current.IsSealed() {
		return
	}
	for _, key := range keys {
		if err := s.objects.Delete(ctx, key); err != nil {
			logger.L(ctx).Warn("Failed to remove manifest of unsealed batch",
				zap.String("batch_id", batchID.String()),
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}
}

// Get returns a batch with its documents in position order
func (s *BatchService) Get(ctx context.Context, ownerID, batchID uuid.UUID) (*BatchResponse, error) {
	batch, docs, err := s.load(ctx, ownerID, batchID)
	if err != nil {
		return nil, err
	}
	resp := ToBatchResponse(batch, docs)
	return &resp, nil
}

// Export zips the manifests and documents of a batch. Open batches
// export their documents only and report Sealed false.
func (s *BatchService) Export(ctx context.Context, ownerID, batchID uuid.UUID) (*ExportResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "batch", "export",
		telemetry.SpanAttrOwnerID, ownerID, telemetry.SpanAttrBatchID, batchID)
	defer span.End()

	batch, docs, err := s.load(ctx, ownerID, batchID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	modified := batch.CreatedAt
	if batch.SealedAt != nil {
		modified = *batch.SealedAt
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	add := func(name, key string) error {
		data, err := s.objects.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("read %s: %w", key, err)
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: modified})
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}

	if batch.IsSealed() {
		if err := add(path.Base(batch.SignedManifestRef), batch.SignedManifestRef); err != nil {
			return nil, err
		}
		if err := add(evidence.ManifestArtifact, batch.ManifestRef); err != nil {
			return nil, err
		}
	}
	for _, d := range docs {
		if err := add(path.Join("documents", path.Base(d.ObjectRef)), d.ObjectRef); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}

	if !batch.IsSealed() {
		logger.L(ctx).Warn("Exporting open batch without integrity guarantee",
			zap.String("batch_id", batchID.String()),
		)
	}
	return &ExportResult{
		Archive:  buf.Bytes(),
		Sealed:   batch.IsSealed(),
		Filename: fmt.Sprintf("batch-%s.zip", batchID),
	}, nil
}

func (s *BatchService) load(ctx context.Context, ownerID, batchID uuid.UUID) (*evidence.Batch, []evidence.Document, error) {
	batch, err := s.batches.FindByID(ctx, ownerID, batchID)
	if err != nil {
		return nil, nil, err
	}
	docs, err := s.documents.ListByBatch(ctx, ownerID, batchID)
	if err != nil {
		return nil, nil, fmt.Errorf("list batch documents: %w", err)
	}
	return batch, docs, nil
}

// appendAudit writes the audit entries for the batch's pending events.
// Events stay pending so a rolled back attempt can write them again.
func appendAudit(ctx context.Context, repos appledger.TransactionalRepositories, batch *evidence.Batch) error {
	for _, event := range batch.GetDomainEvents() {
		if a := evidence.AuditEventFor(event); a != nil {
			if err := repos.AuditRepo().Append(ctx, a); err != nil {
				return fmt.Errorf("append audit: %w", err)
			}
		}
	}
	return nil
}
