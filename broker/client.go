package broker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cywu/reversal/shared"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

const (
	// ordersPath is the gateway order placement path.
	ordersPath = "/orders"
	// positionsPath is the gateway position listing path.
	positionsPath = "/positions"
)

// ClientConfig represents the configuration for the trade gateway client.
type ClientConfig struct {
	// BaseURL is the trade gateway endpoint.
	BaseURL string
	// APIKey is the trade gateway API key.
	APIKey string
	// Logger is the client logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *ClientConfig) Validate() error {
	var errs error

	if cfg.BaseURL == "" {
		errs = errors.Join(errs, fmt.Errorf("gateway url cannot be an empty string"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Client is the trade gateway API client.
type Client struct {
	cfg   *ClientConfig
	httpc http.Client
}

// Ensure the Client implements the Broker interface.
var _ shared.Broker = (*Client)(nil)

// NewClient instantiates a new trade gateway client.
func NewClient(cfg *ClientConfig) (*Client, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating gateway client config: %w", err)
	}

	return &Client{
		cfg:   cfg,
		httpc: http.Client{Timeout: time.Second * 5},
	}, nil
}

// do issues the request and returns the response body.
func (c *Client) do(ctx context.Context, method string, path string, payload []byte) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("forming %s request: %w", path, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending %s request: %w", path, err)
	}

	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s response body: %w", path, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s request failed: %d -> %s", path,
			resp.StatusCode, string(data))
	}

	return data, nil
}

// PlaceOrder submits the provided order request to the gateway.
func (c *Client) PlaceOrder(ctx context.Context, req shared.OrderRequest) (shared.OrderResponse, error) {
	payload := fmt.Sprintf(`{"code":%q,"side":%q,"quantity":%d,"price_type":%q,`+
		`"time_in_force":%q,"open_close":%q,"session":%q}`,
		req.ContractCode, req.Side.String(), req.Quantity, req.PriceType,
		req.TimeInForce, req.OpenClose, req.Session)

	data, err := c.do(ctx, http.MethodPost, ordersPath, []byte(payload))
	if err != nil {
		return shared.OrderResponse{}, err
	}

	body := string(data)
	resp := shared.OrderResponse{
		Ok:    gjson.Get(body, "ok").Bool(),
		Err:   gjson.Get(body, "error").String(),
		Order: make(map[string]string),
	}
	gjson.Get(body, "order").ForEach(func(key, value gjson.Result) bool {
		resp.Order[key.String()] = value.String()
		return true
	})

	return resp, nil
}

// ListPositions fetches the open positions from the gateway.
func (c *Client) ListPositions(ctx context.Context) ([]shared.PositionRecord, error) {
	data, err := c.do(ctx, http.MethodGet, positionsPath, nil)
	if err != nil {
		return nil, err
	}

	results := gjson.GetBytes(data, "positions").Array()
	positions := make([]shared.PositionRecord, 0, len(results))
	for idx := range results {
		positions = append(positions, shared.PositionRecord{
			Code:     results[idx].Get("code").String(),
			Side:     results[idx].Get("side").String(),
			Quantity: int(results[idx].Get("quantity").Int()),
		})
	}

	return positions, nil
}
