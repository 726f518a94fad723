package signing

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	domainsigning "github.com/erp/ledger/internal/domain/signing"
)

// response is the decoded body of a successful signing call. It is
// either a rawResponse or an envelopeResponse.
type response interface {
	artifact() (*domainsigning.Artifact, error)
}

// rawResponse is a body that is itself the signed artifact
type rawResponse struct {
	body        []byte
	contentType string
	filename    string
}

func (r rawResponse) artifact() (*domainsigning.Artifact, error) {
	if len(r.body) == 0 {
		return nil, errors.New("empty response body")
	}
	ct := r.contentType
	if ct == "" {
		ct = http.DetectContentType(r.body)
	}
	return &domainsigning.Artifact{Bytes: r.body, ContentType: ct, SuggestedName: r.filename}, nil
}

// envelopeResponse is a JSON object carrying the artifact base64 encoded.
// Authorities disagree on key names, so each alias is accepted.
type envelopeResponse struct {
	Signed      string `json:"signed"`
	SignedXML   string `json:"signedXml"`
	Content     string `json:"content"`
	Data        string `json:"data"`
	File        string `json:"file"`
	Filename    string `json:"filename"`
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	MimeType    string `json:"mimeType"`
}

func (e envelopeResponse) artifact() (*domainsigning.Artifact, error) {
	encoded := firstNonEmpty(e.Signed, e.SignedXML, e.Content, e.Data, e.File)
	if encoded == "" {
		return nil, errors.New("envelope carries no signed content")
	}
	data, err := decodeBase64(encoded)
	if err != nil {
		return nil, fmt.Errorf("envelope content is not base64: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("envelope content decodes to nothing")
	}
	ct := firstNonEmpty(e.ContentType, e.MimeType)
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	return &domainsigning.Artifact{
		Bytes:         data,
		ContentType:   ct,
		SuggestedName: firstNonEmpty(e.Filename, e.FileName),
	}, nil
}

// decodeResponse picks the union member from the response headers
func decodeResponse(header http.Header, body []byte) (response, error) {
	contentType := header.Get("Content-Type")
	if isJSON(contentType, body) {
		var env envelopeResponse
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, fmt.Errorf("invalid JSON envelope: %w", err)
		}
		return env, nil
	}
	return rawResponse{
		body:        body,
		contentType: contentType,
		filename:    dispositionFilename(header.Get("Content-Disposition")),
	}, nil
}

func isJSON(contentType string, body []byte) bool {
	if contentType == "" {
		return bytes.HasPrefix(bytes.TrimSpace(body), []byte("{"))
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

func dispositionFilename(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return params["filename"]
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if data, err := base64.StdEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
