package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"custodia/pkg/platform/sentinel"
)

// HTTPClient talks to a ledger node's RPC gateway over JSON/HTTP. The node is
// responsible for consensus and finality; a successful response means the
// mutation is final.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient builds a ledger client for the given node endpoint.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type recordPayload struct {
	EvidenceID   int64  `json:"evidenceId"`
	ContentID    string `json:"cid"`
	OriginalName string `json:"originalName"`
	MimeType     string `json:"mimeType"`
	DisplayName  string `json:"name"`
	Description  string `json:"description"`
	Owner        string `json:"owner"`
	RegisteredAt int64  `json:"timestamp"`
}

func (p recordPayload) toRecord() Record {
	return Record{
		EvidenceID:   p.EvidenceID,
		ContentID:    p.ContentID,
		OriginalName: p.OriginalName,
		MimeType:     p.MimeType,
		DisplayName:  p.DisplayName,
		Description:  p.Description,
		Owner:        p.Owner,
		RegisteredAt: time.Unix(p.RegisteredAt, 0).UTC(),
	}
}

func (c *HTTPClient) Register(ctx context.Context, params RegisterParams) (Record, error) {
	body := map[string]string{
		"cid":          params.ContentID,
		"originalName": params.OriginalName,
		"mimeType":     params.MimeType,
		"name":         params.DisplayName,
		"description":  params.Description,
		"owner":        params.Owner,
	}
	var payload recordPayload
	if err := c.post(ctx, "/evidence", body, &payload); err != nil {
		return Record{}, err
	}
	return payload.toRecord(), nil
}

func (c *HTTPClient) Get(ctx context.Context, evidenceID int64, asPrincipal string) (Record, error) {
	var payload recordPayload
	path := fmt.Sprintf("/evidence/%d?as=%s", evidenceID, url.QueryEscape(asPrincipal))
	if err := c.get(ctx, path, &payload); err != nil {
		return Record{}, err
	}
	return payload.toRecord(), nil
}

func (c *HTTPClient) Grant(ctx context.Context, evidenceID int64, owner, grantee string) error {
	body := map[string]string{"owner": owner, "principal": grantee}
	return c.post(ctx, fmt.Sprintf("/evidence/%d/grants", evidenceID), body, nil)
}

func (c *HTTPClient) Revoke(ctx context.Context, evidenceID int64, owner, target string) error {
	body := map[string]string{"owner": owner, "principal": target}
	return c.post(ctx, fmt.Sprintf("/evidence/%d/revocations", evidenceID), body, nil)
}

func (c *HTTPClient) AccessibleIDs(ctx context.Context, principal string) ([]int64, error) {
	var payload struct {
		IDs []int64 `json:"ids"`
	}
	path := "/principals/" + url.PathEscape(principal) + "/evidence"
	if err := c.get(ctx, path, &payload); err != nil {
		return nil, err
	}
	return payload.IDs, nil
}

func (c *HTTPClient) Count(ctx context.Context) (int64, error) {
	var payload struct {
		Count int64 `json:"count"`
	}
	if err := c.get(ctx, "/evidence/count", &payload); err != nil {
		return 0, err
	}
	return payload.Count, nil
}

func (c *HTTPClient) EventLog(ctx context.Context, evidenceID int64) ([]Event, error) {
	var payload struct {
		Events []struct {
			Kind      string `json:"kind"`
			Principal string `json:"principal"`
			Timestamp int64  `json:"timestamp"`
		} `json:"events"`
	}
	if err := c.get(ctx, fmt.Sprintf("/evidence/%d/events", evidenceID), &payload); err != nil {
		return nil, err
	}
	events := make([]Event, 0, len(payload.Events))
	for _, e := range payload.Events {
		events = append(events, Event{
			EvidenceID: evidenceID,
			Kind:       EventKind(e.Kind),
			Principal:  e.Principal,
			At:         time.Unix(e.Timestamp, 0).UTC(),
		})
	}
	return events, nil
}

func (c *HTTPClient) Role(ctx context.Context, principal string) (Role, error) {
	var payload struct {
		Role int `json:"role"`
	}
	path := "/principals/" + url.PathEscape(principal) + "/role"
	if err := c.get(ctx, path, &payload); err != nil {
		return RoleNone, err
	}
	return Role(payload.Role), nil
}

func (c *HTTPClient) AssignRole(ctx context.Context, admin, principal string, role Role) error {
	body := map[string]any{"admin": admin, "principal": principal, "role": int(role)}
	return c.post(ctx, "/roles", body, nil)
}

func (c *HTTPClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build ledger request: %w", err)
	}
	return c.do(req, out)
}

func (c *HTTPClient) post(ctx context.Context, path string, body any, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal ledger request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build ledger request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *HTTPClient) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: ledger node: %v", sentinel.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden:
		return sentinel.ErrAccessDenied
	case resp.StatusCode == http.StatusNotFound:
		return sentinel.ErrNotFound
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: ledger node returned %s", sentinel.ErrUnavailable, resp.Status)
	case resp.StatusCode >= 400:
		return fmt.Errorf("%w: ledger node returned %s", sentinel.ErrInvalidState, strconv.Itoa(resp.StatusCode))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode ledger response: %w", err)
	}
	return nil
}
