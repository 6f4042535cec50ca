package broker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/cywu/reversal/shared"
	"github.com/peterldowns/testy/assert"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	log := zerolog.New(os.Stdout)
	client, err := NewClient(&ClientConfig{
		BaseURL: server.URL,
		APIKey:  "test-key",
		Logger:  &log,
	})
	assert.NoError(t, err)

	return client
}

func TestClientPlaceOrder(t *testing.T) {
	var gotAuth, gotBody string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, ordersPath, r.URL.Path)
		gotAuth = r.Header.Get("Authorization")

		body := make([]byte, r.ContentLength)
		r.Body.Read(body)
		gotBody = string(body)

		w.Write([]byte(`{"ok":true,"order":{"id":"o-77","status":"Filled"}}`))
	})

	resp, err := client.PlaceOrder(context.Background(), shared.OrderRequest{
		Market:       "MXF",
		ContractCode: "MXFR1",
		Side:         shared.Buy,
		Quantity:     1,
		PriceType:    "MKT",
		TimeInForce:  "IOC",
		OpenClose:    "Auto",
		Session:      "Day",
	})
	assert.NoError(t, err)
	assert.True(t, resp.Ok)
	assert.Equal(t, "o-77", resp.Order["id"])
	assert.Equal(t, "Filled", resp.Order["status"])

	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "MXFR1", gjson.Get(gotBody, "code").String())
	assert.Equal(t, "buy", gjson.Get(gotBody, "side").String())
	assert.Equal(t, int64(1), gjson.Get(gotBody, "quantity").Int())
}

func TestClientPlaceOrderRejected(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":false,"error":"insufficient margin"}`))
	})

	resp, err := client.PlaceOrder(context.Background(), shared.OrderRequest{
		ContractCode: "MXFR1",
		Side:         shared.Sell,
		Quantity:     1,
	})
	assert.NoError(t, err)
	assert.Equal(t, false, resp.Ok)
	assert.Equal(t, "insufficient margin", resp.Err)
}

func TestClientListPositions(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, positionsPath, r.URL.Path)
		w.Write([]byte(`{"positions":[{"code":"MXFR1","side":"LONG","quantity":2},` +
			`{"code":"TXFR1","side":"SHORT","quantity":1}]}`))
	})

	positions, err := client.ListPositions(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 2, len(positions))
	assert.Equal(t, "MXFR1", positions[0].Code)
	assert.Equal(t, "LONG", positions[0].Side)
	assert.Equal(t, 2, positions[0].Quantity)
	assert.Equal(t, -1, NetPosition(positions, "TXF"))
}

func TestClientGatewayError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	})

	_, err := client.ListPositions(context.Background())
	assert.Error(t, err)
}
