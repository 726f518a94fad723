package evidence

import (
	"path"
	"strings"
	"time"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/google/uuid"
)

// maxFilenameLength bounds stored document names
const maxFilenameLength = 200

// Document is one file in a batch
type Document struct {
	ID          uuid.UUID
	OwnerID     uuid.UUID
	BatchID     uuid.UUID
	Position    int
	Filename    string
	ContentType string
	Size        int64
	Digest      ledger.Digest
	ObjectRef   string
	CreatedAt   time.Time
}

// NewDocument fingerprints content for batch. Position is assigned when
// the document is stored.
func NewDocument(batch *Batch, filename, contentType string, content []byte) (*Document, error) {
	if len(content) == 0 {
		return nil, ErrEmptyDocument
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	id := uuid.New()
	name := SanitizeFilename(filename)
	return &Document{
		ID:          id,
		OwnerID:     batch.OwnerID,
		BatchID:     batch.ID,
		Filename:    name,
		ContentType: contentType,
		Size:        int64(len(content)),
		Digest:      ledger.Fingerprint(content),
		ObjectRef:   DocumentKey(batch.OwnerID, batch.ID, id, name),
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// SanitizeFilename strips directories and characters that would escape
// an object key segment
func SanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r < 0x20, r == 0x7f, r == '/', r == ':':
			return '_'
		}
		return r
	}, name)
	if name == "." || name == "" {
		name = "document"
	}
	if runes := []rune(name); len(runes) > maxFilenameLength {
		name = string(runes[len(runes)-maxFilenameLength:])
	}
	return name
}
