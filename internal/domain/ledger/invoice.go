package ledger

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Invoice is the content an alta record attests
type Invoice struct {
	IssuerID  string
	Series    string
	Number    int64
	IssueDate time.Time
	Total     decimal.Decimal
	// Body is the invoice as submitted. Only its fingerprint enters the record.
	Body []byte
}

// InvoiceReference is the audit and record reference of an invoice
func InvoiceReference(series string, number int64) string {
	return series + "-" + strconv.FormatInt(number, 10)
}

// InvoiceArtifactKey is where the signed form of an invoice record is
// stored. The record hash keeps writers racing for the same number from
// overwriting each other's artifact.
func InvoiceArtifactKey(ownerID uuid.UUID, series string, number int64, hash ChainHash, ext string) string {
	return fmt.Sprintf("%s/invoices/%s/signed-%s%s", ownerID, InvoiceReference(series, number), hash, ext)
}

type altaXML struct {
	XMLName    xml.Name `xml:"RegistroAlta"`
	IssuerID   string   `xml:"IDEmisorFactura"`
	Series     string   `xml:"NumSerieFactura"`
	IssueDate  string   `xml:"FechaExpedicionFactura"`
	Total      string   `xml:"ImporteTotal"`
	BodyDigest string   `xml:"HuellaContenido,omitempty"`
	PrevHash   *string  `xml:"Encadenamiento>HuellaAnterior,omitempty"`
	Hash       string   `xml:"Huella,omitempty"`
}

func (inv *Invoice) xmlForm() altaXML {
	a := altaXML{
		IssuerID:  inv.IssuerID,
		Series:    InvoiceReference(inv.Series, inv.Number),
		IssueDate: inv.IssueDate.Format("02-01-2006"),
		Total:     inv.Total.StringFixed(2),
	}
	if len(inv.Body) > 0 {
		a.BodyDigest = Fingerprint(inv.Body).Hex()
	}
	return a
}

// Digest is the payload digest of the alta record: the fingerprint of
// the canonical invoice form, without chain fields
func (inv *Invoice) Digest() (Digest, error) {
	b, err := encodeCanonical(inv.xmlForm())
	if err != nil {
		return Digest{}, err
	}
	return Fingerprint(b), nil
}

// SignedForm is the canonical content sent for signing: the invoice
// together with the link that chains it
func (inv *Invoice) SignedForm(rec *Record) ([]byte, error) {
	a := inv.xmlForm()
	prev := rec.PrevHash.String()
	a.PrevHash = &prev
	a.Hash = rec.Hash.String()
	return encodeCanonical(a)
}

func encodeCanonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	if err := xml.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode invoice: %w", err)
	}
	return buf.Bytes(), nil
}
