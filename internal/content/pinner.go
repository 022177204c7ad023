package content

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/ipfs/go-cid"

	"custodia/pkg/platform/sentinel"
)

// Pinner stores content through an IPFS pinning service and reads it back
// through a public gateway. The pinning API is Pinata-shaped: a multipart
// upload returning the pinned hash.
type Pinner struct {
	pinURL     string
	gatewayURL string
	apiKey     string
	apiSecret  string
	client     *http.Client
}

// NewPinner builds a pinning-service client. gatewayURL serves GETs of the
// form {gatewayURL}/{cid}.
func NewPinner(pinURL, gatewayURL, apiKey, apiSecret string, timeout time.Duration) *Pinner {
	return &Pinner{
		pinURL:     pinURL,
		gatewayURL: gatewayURL,
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		client:     &http.Client{Timeout: timeout},
	}
}

func (p *Pinner) Put(ctx context.Context, data []byte, name, mimeType string) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return "", fmt.Errorf("build pin request: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("build pin request: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("build pin request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.pinURL, &buf)
	if err != nil {
		return "", fmt.Errorf("build pin request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("pinata_api_key", p.apiKey)
	req.Header.Set("pinata_secret_api_key", p.apiSecret)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: pinning service: %v", sentinel.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: pinning service returned %s", sentinel.ErrUnavailable, resp.Status)
	}

	var payload struct {
		IpfsHash string `json:"IpfsHash"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode pin response: %w", err)
	}
	if _, err := cid.Decode(payload.IpfsHash); err != nil {
		return "", fmt.Errorf("pinning service returned invalid cid %q: %w", payload.IpfsHash, err)
	}
	return payload.IpfsHash, nil
}

func (p *Pinner) Get(ctx context.Context, contentID string) ([]byte, error) {
	if _, err := cid.Decode(contentID); err != nil {
		return nil, sentinel.ErrNotFound
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.gatewayURL+"/"+contentID, nil)
	if err != nil {
		return nil, fmt.Errorf("build gateway request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: content gateway: %v", sentinel.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, sentinel.ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: content gateway returned %s", sentinel.ErrUnavailable, resp.Status)
	}
	return io.ReadAll(resp.Body)
}
