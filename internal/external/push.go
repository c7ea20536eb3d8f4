package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"skyguard/internal/types"
)

// PushClient posts notifications to an HTTP push gateway that fans out to
// the user's registered devices.
type PushClient struct {
	base   *BaseClient
	url    string
	apiKey string
}

// NewPushClient creates a PushClient for the gateway at url.
func NewPushClient(base *BaseClient, url, apiKey string) *PushClient {
	return &PushClient{base: base, url: strings.TrimRight(url, "/"), apiKey: apiKey}
}

type pushRequest struct {
	UserID   string `json:"user_id"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	Priority string `json:"priority"`
	Ref      string `json:"reference_id,omitempty"`
}

type pushResponse struct {
	ID    string `json:"id"`
	Error string `json:"error,omitempty"`
}

// Send pushes n to every device of user n.To. High and critical alerts are
// sent with high delivery priority.
func (p *PushClient) Send(ctx context.Context, n Notification) (string, error) {
	prio := "normal"
	if n.Priority == types.PriorityHigh || n.Priority == types.PriorityCritical {
		prio = "high"
	}
	payload, err := json.Marshal(pushRequest{UserID: n.To, Title: n.Title, Body: n.Body, Priority: prio, Ref: n.ReferenceID})
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode push payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url+"/v1/notifications", bytes.NewReader(payload))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build push request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.base.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var body pushResponse
	_ = json.NewDecoder(resp.Body).Decode(&body)

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return "", types.NewAppError(types.ErrCodeDeliveryRejected, "no registered devices for user", nil)
	case resp.StatusCode >= 400:
		return "", types.NewAppError(types.ErrCodeUpstreamDelivery,
			fmt.Sprintf("push gateway returned %d: %s", resp.StatusCode, body.Error), nil)
	}
	return body.ID, nil
}

// Ping checks that the gateway is reachable.
func (p *PushClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := p.base.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("push gateway health returned %d", resp.StatusCode)
	}
	return nil
}
