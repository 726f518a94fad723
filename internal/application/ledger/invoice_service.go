package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/domain/signing"
	"github.com/erp/ledger/internal/infrastructure/logger"
	"github.com/erp/ledger/internal/infrastructure/telemetry"
	"github.com/erp/ledger/internal/infrastructure/verification"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

// CodeRenderer renders the verification code of an invoice
type CodeRenderer interface {
	URL(ref verification.Reference) (string, error)
	Render(ref verification.Reference) (*verification.Code, error)
}

// InvoiceOptions are the fixed values reported in every registro
type InvoiceOptions struct {
	SoftwareID string
	Mode       string
	// SignInvoices sends the canonical alta of every invoice to the
	// signing authority before the chain is extended
	SignInvoices bool
}

// InvoiceService registers invoices: number, link, audit and
// verification code
type InvoiceService struct {
	sequences *SequenceService
	chains    *ChainService
	configs   ledger.SeriesConfigRepository
	renderer  CodeRenderer
	signer    signing.Signer
	objects   shared.ObjectStorage
	opts      InvoiceOptions
	validate  *validator.Validate
	metrics   *telemetry.LedgerMetrics
}

// NewInvoiceService creates an InvoiceService. signer and objects may be
// nil when invoice signing is off.
func NewInvoiceService(
	sequences *SequenceService,
	chains *ChainService,
	configs ledger.SeriesConfigRepository,
	renderer CodeRenderer,
	signer signing.Signer,
	objects shared.ObjectStorage,
	opts InvoiceOptions,
) (*InvoiceService, error) {
	if opts.SignInvoices && (signer == nil || objects == nil) {
		return nil, shared.ErrConfiguration.WithDetail("field", "ledger.sign_invoices")
	}
	return &InvoiceService{
		sequences: sequences,
		chains:    chains,
		configs:   configs,
		renderer:  renderer,
		signer:    signer,
		objects:   objects,
		opts:      opts,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		metrics:   telemetry.NewNoopLedgerMetrics(),
	}, nil
}

// SetMetrics sets the ledger metrics
func (s *InvoiceService) SetMetrics(m *telemetry.LedgerMetrics) {
	if m != nil {
		s.metrics = m
	}
}

// Alta claims the next number of the series, appends the invoice to the
// series chain and renders its verification code. The number is claimed
// in the transaction that extends the chain, so an alta that fails at
// any step leaves the counter where it was. Each build peeks the number
// the claim will issue; when the claim disagrees the build is stale and
// is redone like any other chain conflict.
func (s *InvoiceService) Alta(ctx context.Context, ownerID uuid.UUID, cmd AltaCommand) (*AltaResult, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return nil, shared.ErrInvalidInput.WithCause(err)
	}
	if cmd.Total.IsNegative() {
		return nil, shared.ErrInvalidInput.WithDetail("field", "total")
	}
	series := strings.TrimSpace(cmd.Series)
	if err := ledger.ValidateSeries(series); err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "alta",
		telemetry.SpanAttrOwnerID, ownerID, telemetry.SpanAttrSeries, series)
	defer span.End()

	issuer, err := s.resolveIssuer(ctx, ownerID, series, cmd.IssuerID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	base := ledger.Invoice{
		IssuerID:  issuer,
		Series:    series,
		IssueDate: cmd.IssueDate,
		Total:     cmd.Total,
		Body:      cmd.Payload,
	}

	// An unencodable reference must fail before anything is written
	if _, err := s.renderer.URL(s.reference(&base, 1, ledger.Digest{}.Hex())); err != nil {
		return nil, err
	}

	key, err := s.sequences.counterKey(ctx, ownerID, series, cmd.IssueDate)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	var (
		inv    *ledger.Invoice
		staged []string
	)
	rec, err := s.chains.Append(ctx, ownerID, series, func(ctx context.Context, head ledger.ChainHead) (*Link, error) {
		number, err := s.sequences.peek(ctx, key)
		if err != nil {
			return nil, err
		}
		built := base
		built.Number = number
		digest, err := built.Digest()
		if err != nil {
			return nil, err
		}
		reference := ledger.InvoiceReference(series, number)

		rec := ledger.NewRecord(head, ledger.RecordKindAlta, reference, digest, issuer)
		if s.opts.SignInvoices {
			ref, err := s.signRecord(ctx, ownerID, &built, rec)
			if err != nil {
				return nil, err
			}
			staged = append(staged, ref)
			rec.SignedArtifactRef = ref
		}
		inv = &built
		return &Link{
			Record: rec,
			Within: func(ctx context.Context, repos TransactionalRepositories) error {
				claimed, err := repos.SequenceRepo().ClaimNext(ctx, key)
				if err != nil {
					return err
				}
				if claimed != number {
					return ledger.ErrChainConflict.
						WithDetail("peeked", strconv.FormatInt(number, 10)).
						WithDetail("claimed", strconv.FormatInt(claimed, 10))
				}
				details := fmt.Sprintf("position=%d hash=%s prev_hash=%s", rec.Position, rec.Hash, rec.PrevHash)
				return repos.AuditRepo().Append(ctx, ledger.NewAuditEvent(ownerID, reference, ledger.AuditKindAlta, details))
			},
		}, nil
	})
	keep := ""
	if rec != nil {
		keep = rec.SignedArtifactRef
	}
	s.discardArtifacts(ctx, staged, keep)
	if err == nil || errors.Is(err, ledger.ErrAllocation) {
		s.sequences.metrics.RecordClaim(ctx, series, err)
	}
	if err != nil {
		telemetry.RecordError(span, err)
		logger.L(ctx).Error("Invoice alta failed, no number was spent",
			zap.String("series", series),
			zap.String("period", key.Period),
			zap.Error(err),
		)
		return nil, err
	}
	telemetry.SetAttributes(span, telemetry.SpanAttrNumber, inv.Number)

	code, err := s.renderer.Render(s.reference(inv, inv.Number, rec.Hash.String()))
	if err != nil {
		return nil, err
	}

	logger.L(ctx).Info("Invoice registered",
		zap.String("reference", rec.Reference),
		zap.Int64("position", rec.Position),
		zap.String("hash", rec.Hash.String()),
	)

	return &AltaResult{
		Registro: Registro{
			SoftwareID: s.opts.SoftwareID,
			Mode:       s.opts.Mode,
			IssuerNIF:  issuer,
			Series:     series,
			Number:     inv.Number,
			Hash:       rec.Hash.String(),
			PrevHash:   rec.PrevHash.String(),
			QRURL:      code.URL,
		},
		QRImage:           code.Image,
		Position:          rec.Position,
		SignedArtifactRef: rec.SignedArtifactRef,
	}, nil
}

// resolveIssuer applies the series issuer. A payload may omit the issuer
// of a configured series but may not contradict it. Issuers are NFC
// normalized so the hashed issuer is the one the verification code shows.
func (s *InvoiceService) resolveIssuer(ctx context.Context, ownerID uuid.UUID, series, requested string) (string, error) {
	requested = norm.NFC.String(strings.TrimSpace(requested))
	cfg, err := s.configs.Find(ctx, ownerID, series)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return "", fmt.Errorf("load series config: %w", err)
	}
	configured := ""
	if cfg != nil {
		configured = norm.NFC.String(cfg.IssuerID)
	}
	switch {
	case configured != "" && requested != "" && requested != configured:
		return "", ledger.ErrIssuerMismatch.
			WithDetail("series", series).
			WithDetail("issuer_id", requested)
	case configured != "":
		return configured, nil
	case requested != "":
		return requested, nil
	}
	return "", shared.ErrInvalidInput.WithDetail("field", "issuer_id")
}

func (s *InvoiceService) signRecord(ctx context.Context, ownerID uuid.UUID, inv *ledger.Invoice, rec *ledger.Record) (string, error) {
	content, err := inv.SignedForm(rec)
	if err != nil {
		return "", err
	}
	start := time.Now()
	artifact, err := s.signer.Sign(ctx, content)
	s.metrics.RecordSigning(ctx, time.Since(start), err)
	if err != nil {
		return "", err
	}
	key := ledger.InvoiceArtifactKey(ownerID, inv.Series, inv.Number, rec.Hash, artifact.Extension())
	if err := s.objects.Put(ctx, key, artifact.Bytes, artifact.ContentType); err != nil {
		return "", fmt.Errorf("store signed invoice: %w", err)
	}
	return key, nil
}

// discardArtifacts removes signed artifacts of links that were never
// committed. keep is the artifact of the committed link, if any.
func (s *InvoiceService) discardArtifacts(ctx context.Context, staged []string, keep string) {
	for _, key := range staged {
		if key == keep {
			continue
		}
		if err := s.objects.Delete(context.WithoutCancel(ctx), key); err != nil {
			logger.L(ctx).Warn("Failed to remove uncommitted signed invoice",
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}
}

func (s *InvoiceService) reference(inv *ledger.Invoice, number int64, hash string) verification.Reference {
	date := inv.IssueDate
	total := inv.Total
	return verification.Reference{
		IssuerID:  inv.IssuerID,
		Series:    inv.Series,
		Number:    number,
		Hash:      hash,
		IssueDate: &date,
		Total:     &total,
	}
}
