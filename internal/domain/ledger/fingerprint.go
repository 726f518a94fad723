package ledger

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
)

// DigestSize is the length in bytes of every digest in the ledger
const DigestSize = sha256.Size

// Digest is a SHA-256 content hash
type Digest [DigestSize]byte

// ErrEmptyDigestList is returned by ChainOf when there is nothing to fold
var ErrEmptyDigestList = errors.New("ledger: cannot chain an empty digest list")

// Fingerprint hashes content
func Fingerprint(content []byte) Digest {
	return sha256.Sum256(content)
}

// ParseDigest decodes a hex encoded digest
func ParseDigest(s string) (Digest, error) {
	var d Digest
	b, err := hex.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("ledger: invalid digest %q: %w", s, err)
	}
	if len(b) != DigestSize {
		return d, fmt.Errorf("ledger: digest must be %d bytes, got %d", DigestSize, len(b))
	}
	copy(d[:], b)
	return d, nil
}

// Hex returns the lowercase hex encoding
func (d Digest) Hex() string {
	return hex.EncodeToString(d[:])
}

// String implements fmt.Stringer
func (d Digest) String() string {
	return d.Hex()
}

// IsZero reports whether d is the zero digest
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// ChainHash is a link in a hash chain. The zero value is GenesisHash,
// the explicit "chain not started" marker: it is what the head of a
// chain with no links holds and what the first link points back to.
type ChainHash struct {
	digest  Digest
	started bool
}

// GenesisHash marks a chain that has no links yet
var GenesisHash = ChainHash{}

// NewChainHash wraps a digest as a started chain hash
func NewChainHash(d Digest) ChainHash {
	return ChainHash{digest: d, started: true}
}

// ParseChainHash decodes the stored form. The empty string is GenesisHash.
func ParseChainHash(s string) (ChainHash, error) {
	if s == "" {
		return GenesisHash, nil
	}
	d, err := ParseDigest(s)
	if err != nil {
		return GenesisHash, err
	}
	return NewChainHash(d), nil
}

// IsGenesis reports whether h is the "chain not started" marker
func (h ChainHash) IsGenesis() bool {
	return !h.started
}

// Digest returns the underlying digest. Zero for GenesisHash.
func (h ChainHash) Digest() Digest {
	return h.digest
}

// String returns the stored form: hex, or "" for GenesisHash
func (h ChainHash) String() string {
	if !h.started {
		return ""
	}
	return h.digest.Hex()
}

// ChainedFingerprint computes the link hash binding payloadDigest to the
// previous link and to the issuer. Every part is length prefixed so that
// no two distinct inputs share an encoding.
func ChainedFingerprint(payloadDigest Digest, prevHash ChainHash, issuerID string) ChainHash {
	h := sha256.New()
	writePart(h, payloadDigest[:])
	if prevHash.IsGenesis() {
		writePart(h, nil)
	} else {
		writePart(h, prevHash.digest[:])
	}
	writePart(h, []byte(issuerID))

	var out Digest
	copy(out[:], h.Sum(nil))
	return NewChainHash(out)
}

func writePart(h hash.Hash, part []byte) {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(part)))
	h.Write(n[:])
	h.Write(part)
}

// ChainOf folds digests left to right: acc0 = d0, acc_i = H(acc_{i-1} || d_i).
func ChainOf(digests []Digest) (Digest, error) {
	if len(digests) == 0 {
		return Digest{}, ErrEmptyDigestList
	}
	acc := digests[0]
	buf := make([]byte, 0, 2*DigestSize)
	for _, d := range digests[1:] {
		buf = append(buf[:0], acc[:]...)
		buf = append(buf, d[:]...)
		acc = sha256.Sum256(buf)
	}
	return acc, nil
}
