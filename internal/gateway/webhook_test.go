package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_test"

func TestParseWebhook_ValidSignature(t *testing.T) {
	now := time.Now()
	payload := []byte(`{"id":"evt_1","type":"intent.succeeded","created_at":1706000000,"data":{"id":"pi_1","status":"succeeded","amount":1200,"charge_id":"ch_1"}}`)
	header := SignPayload(payload, testSecret, now)

	event, err := ParseWebhook(payload, header, testSecret, now)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)
	assert.Equal(t, EventIntentSucceeded, event.Kind)

	intent, err := event.Intent()
	require.NoError(t, err)
	assert.Equal(t, "pi_1", intent.ID)
	assert.Equal(t, IntentStatusSucceeded, intent.Status)
	assert.Equal(t, "ch_1", intent.ChargeID)
}

func TestParseWebhook_BadSignature(t *testing.T) {
	now := time.Now()
	payload := []byte(`{"id":"evt_1","type":"intent.succeeded","data":{}}`)
	header := SignPayload(payload, "whsec_other", now)

	_, err := ParseWebhook(payload, header, testSecret, now)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestParseWebhook_TamperedPayload(t *testing.T) {
	now := time.Now()
	payload := []byte(`{"id":"evt_1","type":"intent.succeeded","data":{}}`)
	header := SignPayload(payload, testSecret, now)

	tampered := []byte(`{"id":"evt_2","type":"intent.succeeded","data":{}}`)
	_, err := ParseWebhook(tampered, header, testSecret, now)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestParseWebhook_StaleTimestamp(t *testing.T) {
	now := time.Now()
	payload := []byte(`{"id":"evt_1","type":"intent.succeeded","data":{}}`)
	header := SignPayload(payload, testSecret, now.Add(-10*time.Minute))

	_, err := ParseWebhook(payload, header, testSecret, now)
	assert.ErrorIs(t, err, ErrStaleTimestamp)
}

func TestParseWebhook_MissingHeaderParts(t *testing.T) {
	_, err := ParseWebhook([]byte(`{}`), "v1=deadbeef", testSecret, time.Now())
	assert.ErrorIs(t, err, ErrBadSignature)

	_, err = ParseWebhook([]byte(`{}`), "", testSecret, time.Now())
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&Error{Code: "http_503", Retryable: true}))
	assert.False(t, IsRetryable(&Error{Code: "card_declined"}))
	assert.False(t, IsRetryable(nil))
}
