package evidence

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"sort"

	"github.com/erp/ledger/internal/domain/ledger"
)

// ManifestVersion is the layout version written into every manifest
const ManifestVersion = 1

// Manifest lists the documents of a batch in insertion order together
// with their chained digest. Its canonical form is what gets signed.
type Manifest struct {
	XMLName     xml.Name        `xml:"EvidenceManifest"`
	Version     int             `xml:"version,attr"`
	Algorithm   string          `xml:"algorithm,attr"`
	OwnerID     string          `xml:"OwnerID"`
	BatchID     string          `xml:"BatchID"`
	Documents   []ManifestEntry `xml:"Documents>Document"`
	ChainDigest string          `xml:"ChainDigest"`
}

// ManifestEntry is one document line of the manifest
type ManifestEntry struct {
	Position    int    `xml:"position,attr"`
	DocumentID  string `xml:"DocumentID"`
	Filename    string `xml:"Filename"`
	ContentType string `xml:"ContentType"`
	Size        int64  `xml:"Size"`
	Digest      string `xml:"Digest"`
}

// BuildManifest orders docs by position and chains their digests.
// The document set must be exactly the batch's positions 1..DocumentCount.
func BuildManifest(batch *Batch, docs []Document) (*Manifest, ledger.Digest, error) {
	if len(docs) == 0 {
		return nil, ledger.Digest{}, ErrEmptyBatch
	}
	ordered := make([]Document, len(docs))
	copy(ordered, docs)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Position < ordered[j].Position })

	if len(ordered) != batch.DocumentCount {
		return nil, ledger.Digest{}, ErrBatchChanged
	}

	m := &Manifest{
		Version:   ManifestVersion,
		Algorithm: "sha256",
		OwnerID:   batch.OwnerID.String(),
		BatchID:   batch.ID.String(),
		Documents: make([]ManifestEntry, 0, len(ordered)),
	}
	digests := make([]ledger.Digest, 0, len(ordered))
	for i, d := range ordered {
		if d.Position != i+1 {
			return nil, ledger.Digest{}, fmt.Errorf("batch %s: document position %d out of sequence", batch.ID, d.Position)
		}
		m.Documents = append(m.Documents, ManifestEntry{
			Position:    d.Position,
			DocumentID:  d.ID.String(),
			Filename:    d.Filename,
			ContentType: d.ContentType,
			Size:        d.Size,
			Digest:      d.Digest.Hex(),
		})
		digests = append(digests, d.Digest)
	}

	chain, err := ledger.ChainOf(digests)
	if err != nil {
		return nil, ledger.Digest{}, err
	}
	m.ChainDigest = chain.Hex()
	return m, chain, nil
}

// Canonical returns the byte form that is signed and stored. The same
// document set always yields the same bytes.
func (m *Manifest) Canonical() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(m); err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// ParseManifest decodes a stored manifest
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := xml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	return &m, nil
}
