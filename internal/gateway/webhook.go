package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Signature verification errors
var (
	ErrBadSignature   = errors.New("webhook signature mismatch")
	ErrStaleTimestamp = errors.New("webhook timestamp outside tolerance")
)

// DefaultSignatureTolerance bounds how old a signed payload may be before
// it is rejected as a possible replay
const DefaultSignatureTolerance = 5 * time.Minute

// WebhookEvent is one signed event delivered by the gateway. Data holds
// the event object (an Intent or PaymentMethodInfo depending on Kind).
type WebhookEvent struct {
	ID        string          `json:"id"`
	Kind      string          `json:"type"`
	CreatedAt int64           `json:"created_at"`
	Data      json.RawMessage `json:"data"`
}

// Intent decodes the event payload as a charge intent
func (e *WebhookEvent) Intent() (*Intent, error) {
	var intent Intent
	if err := json.Unmarshal(e.Data, &intent); err != nil {
		return nil, fmt.Errorf("decode intent payload: %w", err)
	}
	return &intent, nil
}

// PaymentMethod decodes the event payload as a stored payment method
func (e *WebhookEvent) PaymentMethod() (*PaymentMethodInfo, error) {
	var method PaymentMethodInfo
	if err := json.Unmarshal(e.Data, &method); err != nil {
		return nil, fmt.Errorf("decode payment method payload: %w", err)
	}
	return &method, nil
}

// ParseWebhook verifies the signature header against the raw payload and
// decodes the event. The header format is "t=<unix>,v1=<hex hmac sha256>"
// where the MAC covers "<unix>.<payload>".
func ParseWebhook(payload []byte, sigHeader, secret string, now time.Time) (*WebhookEvent, error) {
	if err := VerifySignature(payload, sigHeader, secret, now, DefaultSignatureTolerance); err != nil {
		return nil, err
	}

	var event WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("decode webhook event: %w", err)
	}
	if event.ID == "" || event.Kind == "" {
		return nil, fmt.Errorf("webhook event missing id or type")
	}
	return &event, nil
}

// VerifySignature checks the timestamped HMAC in sigHeader over payload
func VerifySignature(payload []byte, sigHeader, secret string, now time.Time, tolerance time.Duration) error {
	var ts int64
	var sig string

	for _, part := range strings.Split(sigHeader, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			parsed, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return ErrBadSignature
			}
			ts = parsed
		case "v1":
			sig = kv[1]
		}
	}

	if ts == 0 || sig == "" {
		return ErrBadSignature
	}

	sent := time.Unix(ts, 0)
	age := now.Sub(sent)
	if age > tolerance || age < -tolerance {
		return ErrStaleTimestamp
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return ErrBadSignature
	}
	return nil
}

// SignPayload produces a signature header for payload, used by tests and
// by the local gateway simulator
func SignPayload(payload []byte, secret string, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	return fmt.Sprintf("t=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}
