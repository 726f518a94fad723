package ledger

import "fmt"

// VerificationReport is the outcome of re-walking a stored chain
type VerificationReport struct {
	Valid    bool   `json:"valid"`
	Links    int    `json:"links"`
	HeadHash string `json:"head_hash"`
	BrokenAt *int64 `json:"broken_at,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// VerifyChain re-walks records in position order and reports the first
// link that does not recompute or does not point at its predecessor.
// head is the stored chain head; it must match the last record.
func VerifyChain(records []Record, head ChainHead) VerificationReport {
	report := VerificationReport{Links: len(records), HeadHash: head.LastHash.String()}
	prev := GenesisHash
	for i := range records {
		r := &records[i]
		expectedPos := int64(i + 1)
		switch {
		case r.Position != expectedPos:
			return report.broken(r.Position, fmt.Sprintf("expected position %d", expectedPos))
		case r.PrevHash != prev:
			return report.broken(r.Position, "previous hash does not match preceding link")
		case !r.Verify():
			return report.broken(r.Position, "hash does not recompute from payload")
		}
		prev = r.Hash
	}
	if prev != head.LastHash || int64(len(records)) != head.Length {
		pos := int64(len(records))
		return report.broken(pos, "chain head does not match last link")
	}
	report.Valid = true
	return report
}

func (r VerificationReport) broken(pos int64, reason string) VerificationReport {
	r.Valid = false
	r.BrokenAt = &pos
	r.Reason = reason
	return r
}

// Rechain recomputes every hash from the payload digests alone, feeding
// each recomputed hash into the next link
func Rechain(records []Record) []ChainHash {
	out := make([]ChainHash, len(records))
	prev := GenesisHash
	for i := range records {
		prev = ChainedFingerprint(records[i].PayloadDigest, prev, records[i].IssuerID)
		out[i] = prev
	}
	return out
}
