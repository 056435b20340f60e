package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// HTTPGateway charges saved payment methods through the provider's REST API.
type HTTPGateway struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPGateway constructs a gateway client.
func NewHTTPGateway(baseURL string) *HTTPGateway {
	return &HTTPGateway{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Ping checks if the remote provider is reachable.
func (g *HTTPGateway) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/health", g.baseURL), nil)
	if err != nil {
		return err
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}
	return nil
}

// Charge submits one charge attempt. The provider deduplicates on the
// reference, so a retried sweep cannot double-charge.
func (g *HTTPGateway) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	payload, err := json.Marshal(map[string]string{
		"method":    req.Method,
		"amount":    req.Amount.StringFixed(2),
		"reference": req.Reference,
	})
	if err != nil {
		return ChargeResult{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/charges", g.baseURL), bytes.NewReader(payload))
	if err != nil {
		return ChargeResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return ChargeResult{}, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return ChargeResult{}, fmt.Errorf("charge failed with status %d", resp.StatusCode)
	}

	var body struct {
		TransactionID string    `json:"transaction_id"`
		ChargedAt     time.Time `json:"charged_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return ChargeResult{}, err
	}
	if body.ChargedAt.IsZero() {
		body.ChargedAt = time.Now().UTC()
	}
	return ChargeResult{TransactionID: body.TransactionID, ChargedAt: body.ChargedAt}, nil
}

// SandboxGateway approves every charge without leaving the process. Local
// development and the worker's dry runs use it when no provider is configured.
type SandboxGateway struct{}

// Charge approves the request with a synthetic transaction id.
func (SandboxGateway) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	return ChargeResult{
		TransactionID: "sandbox-" + uuid.NewString(),
		ChargedAt:     time.Now().UTC(),
	}, nil
}
