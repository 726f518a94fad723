package ledger

import (
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// MaxSeriesLength bounds series codes so that series plus number fit the
// regulator's invoice number field
const MaxSeriesLength = 40

// NoPeriod is the counter period of series that never reset
const NoPeriod = "-"

// ResetPolicy decides when a series counter starts again at 1
type ResetPolicy string

const (
	ResetNever  ResetPolicy = "never"
	ResetYearly ResetPolicy = "yearly"
)

// IsValid checks if the ResetPolicy is a valid value
func (p ResetPolicy) IsValid() bool {
	switch p {
	case ResetNever, ResetYearly:
		return true
	}
	return false
}

// String returns the string representation of ResetPolicy
func (p ResetPolicy) String() string {
	return string(p)
}

// PeriodFor returns the counter period an issue date falls in.
// Yearly series key their counter by calendar year, so the first claim
// dated in a new year lands on a fresh counter and gets number 1.
func (p ResetPolicy) PeriodFor(issueDate time.Time) string {
	if p == ResetYearly {
		return issueDate.Format("2006")
	}
	return NoPeriod
}

// CounterKey identifies one sequence counter
type CounterKey struct {
	OwnerID uuid.UUID
	Series  string
	Period  string
}

// Allocation is a claimed invoice number
type Allocation struct {
	Series string `json:"series"`
	Number int64  `json:"number"`
	Period string `json:"period"`
}

// SeriesConfig holds the per-series options of an owner
type SeriesConfig struct {
	OwnerID     uuid.UUID
	Series      string
	ResetPolicy ResetPolicy
	// IssuerID is the tax identity bound into every link of the series.
	// Empty means the issuer comes from each payload.
	IssuerID  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewSeriesConfig validates and builds a series configuration
func NewSeriesConfig(ownerID uuid.UUID, series string, policy ResetPolicy, issuerID string) (*SeriesConfig, error) {
	series = strings.TrimSpace(series)
	if err := ValidateSeries(series); err != nil {
		return nil, err
	}
	if !policy.IsValid() {
		return nil, ErrInvalidSeries.WithDetail("reset_policy", string(policy))
	}
	now := time.Now().UTC()
	return &SeriesConfig{
		OwnerID:     ownerID,
		Series:      series,
		ResetPolicy: policy,
		IssuerID:    strings.TrimSpace(issuerID),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// ValidateSeries checks a series code: non-empty, bounded, printable and
// free of whitespace. Path separators are rejected because the series is
// a segment of object storage keys.
func ValidateSeries(series string) error {
	if series == "" || len(series) > MaxSeriesLength {
		return ErrInvalidSeries
	}
	for _, r := range series {
		if unicode.IsSpace(r) || !unicode.IsPrint(r) || r == '/' || r == '\\' {
			return ErrInvalidSeries
		}
	}
	return nil
}
