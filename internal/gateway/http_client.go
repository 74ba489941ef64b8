package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPClient talks to the gateway's REST API. Construct with NewHTTPClient.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a gateway client against baseURL authenticating
// with apiKey
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *HTTPClient) CreateIntent(ctx context.Context, params CreateIntentParams) (*Intent, error) {
	var intent Intent
	headers := map[string]string{}
	if params.IdempotencyKey != "" {
		headers["Idempotency-Key"] = params.IdempotencyKey
	}
	if err := c.do(ctx, http.MethodPost, "/v1/intents", params, headers, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

func (c *HTTPClient) ConfirmIntent(ctx context.Context, intentID string) (*Intent, error) {
	var intent Intent
	path := fmt.Sprintf("/v1/intents/%s/confirm", intentID)
	if err := c.do(ctx, http.MethodPost, path, nil, nil, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

func (c *HTTPClient) CancelIntent(ctx context.Context, intentID string) (*Intent, error) {
	var intent Intent
	path := fmt.Sprintf("/v1/intents/%s/cancel", intentID)
	if err := c.do(ctx, http.MethodPost, path, nil, nil, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

func (c *HTTPClient) GetIntent(ctx context.Context, intentID string) (*Intent, error) {
	var intent Intent
	path := fmt.Sprintf("/v1/intents/%s", intentID)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

func (c *HTTPClient) CreateRefund(ctx context.Context, intentID string, amount float64) (*Refund, error) {
	var refund Refund
	body := map[string]interface{}{
		"intent_id": intentID,
		"amount":    amount,
	}
	if err := c.do(ctx, http.MethodPost, "/v1/refunds", body, nil, &refund); err != nil {
		return nil, err
	}
	return &refund, nil
}

func (c *HTTPClient) AttachPaymentMethod(ctx context.Context, customerRef, methodRef string) (*PaymentMethodInfo, error) {
	var method PaymentMethodInfo
	body := map[string]interface{}{
		"customer_ref": customerRef,
	}
	path := fmt.Sprintf("/v1/payment_methods/%s/attach", methodRef)
	if err := c.do(ctx, http.MethodPost, path, body, nil, &method); err != nil {
		return nil, err
	}
	return &method, nil
}

func (c *HTTPClient) DetachPaymentMethod(ctx context.Context, methodRef string) error {
	path := fmt.Sprintf("/v1/payment_methods/%s/detach", methodRef)
	return c.do(ctx, http.MethodPost, path, nil, nil, nil)
}

// apiError is the gateway's error envelope
type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body interface{}, headers map[string]string, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal gateway request: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build gateway request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Code: "network_error", Message: err.Error(), Retryable: true}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Code: "network_error", Message: err.Error(), Retryable: true}
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return &Error{
			Code:      fmt.Sprintf("http_%d", resp.StatusCode),
			Message:   string(data),
			Retryable: true,
		}
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if jsonErr := json.Unmarshal(data, &apiErr); jsonErr == nil && apiErr.Error.Code != "" {
			return &Error{Code: apiErr.Error.Code, Message: apiErr.Error.Message}
		}
		return &Error{
			Code:    fmt.Sprintf("http_%d", resp.StatusCode),
			Message: string(data),
		}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode gateway response: %w", err)
		}
	}
	return nil
}
