package ledger

import (
	"context"
	"strings"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/google/uuid"
)

// AuditService reads the append-only audit trail
type AuditService struct {
	audit ledger.AuditRepository
}

// NewAuditService creates an AuditService
func NewAuditService(audit ledger.AuditRepository) *AuditService {
	return &AuditService{audit: audit}
}

// List returns the events recorded for reference, oldest first
func (s *AuditService) List(ctx context.Context, ownerID uuid.UUID, reference string) ([]ledger.AuditEvent, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, shared.ErrInvalidInput.WithDetail("field", "reference")
	}
	events, err := s.audit.ListByReference(ctx, ownerID, reference)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []ledger.AuditEvent{}
	}
	return events, nil
}
