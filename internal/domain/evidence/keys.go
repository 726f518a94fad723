package evidence

import (
	"fmt"

	"github.com/google/uuid"
)

// Object keys follow {owner}/{batchId}/{artifact}

const (
	ManifestArtifact       = "manifest.xml"
	SignedManifestArtifact = "manifest.signed"
)

// DocumentKey is where a document's bytes are stored
func DocumentKey(ownerID, batchID, documentID uuid.UUID, filename string) string {
	return fmt.Sprintf("%s/%s/documents/%s-%s", ownerID, batchID, documentID, filename)
}

// ManifestKey is where the raw manifest is stored
func ManifestKey(ownerID, batchID uuid.UUID) string {
	return fmt.Sprintf("%s/%s/%s", ownerID, batchID, ManifestArtifact)
}

// SignedManifestKey is where the signed manifest is stored. ext is the
// extension suggested by the signing authority, with its leading dot.
func SignedManifestKey(ownerID, batchID uuid.UUID, ext string) string {
	return fmt.Sprintf("%s/%s/%s%s", ownerID, batchID, SignedManifestArtifact, ext)
}
