package payme

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"water-service/internal/gateway/gatewaytest"
	"water-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "secret-key"

type countingSettlement struct {
	*gatewaytest.Settlement
	lookups int
}

func (c *countingSettlement) GetPaymentByTransactionID(ctx context.Context, txID string) (*models.Payment, error) {
	c.lookups++
	return c.Settlement.GetPaymentByTransactionID(ctx, txID)
}

func auth(key string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte("Paycom:"+key))
}

func call(method string, id int, params string) []byte {
	return []byte(fmt.Sprintf(`{"method":%q,"params":%s,"id":%d}`, method, params, id))
}

func result(t *testing.T, resp *Response) map[string]interface{} {
	t.Helper()
	require.Nil(t, resp.Error, "unexpected error: %v", resp.Error)
	m, ok := resp.Result.(map[string]interface{})
	require.True(t, ok)
	return m
}

func newTestProcessor() (*Processor, *gatewaytest.Settlement) {
	s := gatewaytest.New()
	return NewProcessor(s, testKey), s
}

func TestUnauthorizedRejectedBeforeLookup(t *testing.T) {
	s := &countingSettlement{Settlement: gatewaytest.New()}
	s.Add("tx-1", models.ProviderPayme, 19900000)
	p := NewProcessor(s, testKey)

	for _, header := range []string{"", "Bearer x", auth("wrong"), "Basic !!!"} {
		resp := p.Handle(context.Background(), header,
			call("CheckPerformTransaction", 7, `{"amount":19900000,"account":{"transaction_id":"tx-1"}}`))
		require.NotNil(t, resp.Error)
		assert.Equal(t, CodeInsufficientAccess, resp.Error.Code)
		assert.JSONEq(t, "7", string(resp.ID))
	}
	assert.Zero(t, s.lookups)
}

func TestEmptyKeyRejectsEverything(t *testing.T) {
	p := NewProcessor(gatewaytest.New(), "")
	assert.False(t, p.Authorized(auth("")))
}

func TestParseErrors(t *testing.T) {
	p, _ := newTestProcessor()

	resp := p.Handle(context.Background(), auth(testKey), []byte("{not json"))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeParseError, resp.Error.Code)

	resp = p.Handle(context.Background(), auth(testKey), call("ChangePassword", 3, `{}`))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMethodNotFound, resp.Error.Code)
	assert.JSONEq(t, "3", string(resp.ID))

	resp = p.Handle(context.Background(), auth(testKey), call("PerformTransaction", 4, `{}`))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidRequest, resp.Error.Code)
}

func TestCheckPerform(t *testing.T) {
	p, s := newTestProcessor()
	s.Add("tx-1", models.ProviderPayme, 19900000)
	s.Add("tx-click", models.ProviderClick, 19900000)
	ctx := context.Background()

	resp := p.Handle(ctx, auth(testKey), call("CheckPerformTransaction", 1, `{"amount":19900000,"account":{"transaction_id":"tx-1"}}`))
	assert.Equal(t, true, result(t, resp)["allow"])

	resp = p.Handle(ctx, auth(testKey), call("CheckPerformTransaction", 1, `{"amount":100,"account":{"transaction_id":"tx-1"}}`))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidAmount, resp.Error.Code)

	resp = p.Handle(ctx, auth(testKey), call("CheckPerformTransaction", 1, `{"amount":19900000,"account":{"transaction_id":"nope"}}`))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeAccountNotFound, resp.Error.Code)

	resp = p.Handle(ctx, auth(testKey), call("CheckPerformTransaction", 1, `{"amount":19900000,"account":{"transaction_id":"tx-click"}}`))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeAccountNotFound, resp.Error.Code)
}

func TestCreateAmountMismatchLeavesPaymentPending(t *testing.T) {
	p, s := newTestProcessor()
	s.Add("tx-1", models.ProviderPayme, 19900000)

	resp := p.Handle(context.Background(), auth(testKey),
		call("CreateTransaction", 1, `{"id":"pm-1","time":1,"amount":19900001,"account":{"transaction_id":"tx-1"}}`))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidAmount, resp.Error.Code)
	assert.Equal(t, models.PaymentStatusPending, s.Get("tx-1").Status)
}

func TestFullFlowIsIdempotent(t *testing.T) {
	p, s := newTestProcessor()
	clock := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	s.Now = func() time.Time { clock = clock.Add(time.Second); return clock }
	s.Add("tx-1", models.ProviderPayme, 19900000)
	ctx := context.Background()
	create := call("CreateTransaction", 1, `{"id":"pm-1","time":1,"amount":19900000,"account":{"transaction_id":"tx-1"}}`)

	first := result(t, p.Handle(ctx, auth(testKey), create))
	again := result(t, p.Handle(ctx, auth(testKey), create))
	assert.Equal(t, StateCreated, first["state"])
	assert.Equal(t, first["create_time"], again["create_time"])

	other := p.Handle(ctx, auth(testKey),
		call("CreateTransaction", 2, `{"id":"pm-2","time":1,"amount":19900000,"account":{"transaction_id":"tx-1"}}`))
	require.NotNil(t, other.Error)
	assert.Equal(t, CodeCannotPerform, other.Error.Code)

	perform := call("PerformTransaction", 3, `{"id":"pm-1"}`)
	done := result(t, p.Handle(ctx, auth(testKey), perform))
	replay := result(t, p.Handle(ctx, auth(testKey), perform))
	assert.Equal(t, StatePerformed, done["state"])
	assert.Equal(t, done["perform_time"], replay["perform_time"])
	assert.Equal(t, 1, s.Completions["tx-1"])

	cancel := p.Handle(ctx, auth(testKey), call("CancelTransaction", 4, `{"id":"pm-1","reason":5}`))
	require.NotNil(t, cancel.Error)
	assert.Equal(t, CodeCannotCancel, cancel.Error.Code)

	check := result(t, p.Handle(ctx, auth(testKey), call("CheckTransaction", 5, `{"id":"pm-1"}`)))
	assert.Equal(t, StatePerformed, check["state"])
	assert.Equal(t, done["perform_time"], check["perform_time"])
}

func TestCancelBeforePerform(t *testing.T) {
	p, s := newTestProcessor()
	s.Add("tx-1", models.ProviderPayme, 9900000)
	ctx := context.Background()

	result(t, p.Handle(ctx, auth(testKey),
		call("CreateTransaction", 1, `{"id":"pm-1","time":1,"amount":9900000,"account":{"transaction_id":"tx-1"}}`)))

	cancel := call("CancelTransaction", 2, `{"id":"pm-1","reason":3}`)
	first := result(t, p.Handle(ctx, auth(testKey), cancel))
	again := result(t, p.Handle(ctx, auth(testKey), cancel))
	assert.Equal(t, StateCancelled, first["state"])
	assert.Equal(t, first["cancel_time"], again["cancel_time"])
	assert.Equal(t, models.PaymentStatusCancelled, s.Get("tx-1").Status)

	perform := p.Handle(ctx, auth(testKey), call("PerformTransaction", 3, `{"id":"pm-1"}`))
	require.NotNil(t, perform.Error)
	assert.Equal(t, CodeCannotPerform, perform.Error.Code)
	assert.Zero(t, s.Completions["tx-1"])
}

func TestUnknownProviderTransaction(t *testing.T) {
	p, _ := newTestProcessor()

	resp := p.Handle(context.Background(), auth(testKey), call("PerformTransaction", 1, `{"id":"missing"}`))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeTransactionMissing, resp.Error.Code)
}

func TestResponseEnvelope(t *testing.T) {
	p, _ := newTestProcessor()

	resp := p.Handle(context.Background(), auth(testKey), call("CheckTransaction", 9, `{"id":"missing"}`))
	body, err := json.Marshal(resp)
	require.NoError(t, err)

	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Contains(t, decoded, "error")
	assert.NotContains(t, decoded, "result")
	assert.JSONEq(t, "9", string(decoded["id"]))
}

func TestCheckoutURL(t *testing.T) {
	c := Checkout{MerchantID: "m-42", BaseURL: "https://checkout.paycom.uz/", ReturnURL: "https://app.example/billing"}
	url, err := c.CheckoutURL(&models.Payment{TransactionID: "abc123", Amount: 19900000})
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(url, "https://checkout.paycom.uz/"))
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, "https://checkout.paycom.uz/"))
	require.NoError(t, err)
	assert.Equal(t, "m=m-42;ac.transaction_id=abc123;a=19900000;c=https://app.example/billing", string(raw))

	_, err = Checkout{}.CheckoutURL(&models.Payment{})
	assert.Error(t, err)
}
