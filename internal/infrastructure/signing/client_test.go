package signing

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/erp/ledger/internal/domain/shared"
	domainsigning "github.com/erp/ledger/internal/domain/signing"
	"github.com/erp/ledger/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, timeout time.Duration) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(&config.SigningConfig{
		Endpoint: srv.URL + "/sign",
		APIKey:   "secret",
		Timeout:  timeout,
	}, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	return c
}

func TestNewClient_Configuration(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.SigningConfig
	}{
		{"nil config", nil},
		{"missing endpoint", &config.SigningConfig{APIKey: "k"}},
		{"relative endpoint", &config.SigningConfig{Endpoint: "/sign"}},
		{"unsupported scheme", &config.SigningConfig{Endpoint: "ftp://sign.example"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(tt.cfg)
			assert.ErrorIs(t, err, shared.ErrConfiguration)
		})
	}
}

func TestClient_Sign_RawBody(t *testing.T) {
	var gotKey, gotType string
	var gotBody []byte
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-Key")
		gotType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/xml")
		w.Header().Set("Content-Disposition", `attachment; filename="manifest.xsig"`)
		_, _ = w.Write([]byte("<signed/>"))
	}, time.Second)

	art, err := c.Sign(context.Background(), []byte("<manifest/>"))

	require.NoError(t, err)
	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, "application/xml", gotType)
	assert.Equal(t, "<manifest/>", string(gotBody))
	assert.Equal(t, "<signed/>", string(art.Bytes))
	assert.Equal(t, "application/xml", art.ContentType)
	assert.Equal(t, "manifest.xsig", art.SuggestedName)
	assert.Equal(t, ".xsig", art.Extension())
}

func TestClient_Sign_Envelope(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte("%PDF-signed"))

	tests := []struct {
		name     string
		body     string
		wantName string
		wantType string
	}{
		{"signed key", `{"signed":"` + payload + `","filename":"m.pdf","contentType":"application/pdf"}`, "m.pdf", "application/pdf"},
		{"signedXml key", `{"signedXml":"` + payload + `","fileName":"m.pdf","mimeType":"application/pdf"}`, "m.pdf", "application/pdf"},
		{"data key", `{"data":"` + payload + `"}`, "", "application/pdf"},
		{"file key", `{"file":"` + payload + `"}`, "", "application/pdf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = io.WriteString(w, tt.body)
			}, time.Second)

			art, err := c.Sign(context.Background(), []byte("x"))

			require.NoError(t, err)
			assert.Equal(t, "%PDF-signed", string(art.Bytes))
			assert.Equal(t, tt.wantName, art.SuggestedName)
			assert.Equal(t, tt.wantType, art.ContentType)
		})
	}
}

func TestClient_Sign_UpstreamError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"error":"certificate expired"}`)
	}, time.Second)

	_, err := c.Sign(context.Background(), []byte("x"))

	require.Error(t, err)
	assert.ErrorIs(t, err, domainsigning.ErrUpstream)
	var de *shared.DomainError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, http.StatusUnprocessableEntity, de.Details["upstream_status"])
	assert.Equal(t, `{"error":"certificate expired"}`, de.Details["upstream_body"])
}

func TestClient_Sign_Timeout(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, 50*time.Millisecond)
	defer close(release)

	_, err := c.Sign(context.Background(), []byte("x"))

	assert.ErrorIs(t, err, domainsigning.ErrTimeout)
	assert.True(t, shared.IsRetryable(err))
}

func TestClient_Sign_CallerCancel(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := c.Sign(ctx, []byte("x"))

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, domainsigning.ErrTimeout))
}

func TestClient_Sign_EmptyArtifact(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
	}{
		{"empty raw body", "application/xml", ""},
		{"envelope without content", "application/json", `{"filename":"x.xml"}`},
		{"envelope with bad base64", "application/json", `{"signed":"***"}`},
		{"broken json", "application/json", `{"signed":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				_, _ = io.WriteString(w, tt.body)
			}, time.Second)

			art, err := c.Sign(context.Background(), []byte("x"))

			assert.Nil(t, art)
			assert.ErrorIs(t, err, domainsigning.ErrUpstream)
		})
	}
}

func TestClient_Sign_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL
	srv.Close()

	c, err := NewClient(&config.SigningConfig{Endpoint: endpoint, Timeout: time.Second})
	require.NoError(t, err)

	_, err = c.Sign(context.Background(), []byte("x"))

	assert.ErrorIs(t, err, domainsigning.ErrUpstream)
}

func TestClient_Sign_CustomHeader(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		_, _ = w.Write([]byte("sig"))
	}))
	defer srv.Close()

	c, err := NewClient(&config.SigningConfig{
		Endpoint:     srv.URL,
		APIKey:       "Bearer abc",
		APIKeyHeader: "Authorization",
	})
	require.NoError(t, err)

	_, err = c.Sign(context.Background(), []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "Bearer abc", got)
}
