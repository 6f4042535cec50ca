package feed

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/cywu/reversal/shared"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

const (
	// handshakeTimeout is the websocket dial timeout.
	handshakeTimeout = time.Second * 10
	// maxMessageSize is the websocket read limit.
	maxMessageSize = 1 << 20
)

// WebsocketFeedConfig is the configuration for a websocket tick feed.
type WebsocketFeedConfig struct {
	// URL is the websocket endpoint streaming ticks.
	URL string
	// Markets is the set of markets to subscribe to.
	Markets []string
	// Logger is the feed logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *WebsocketFeedConfig) Validate() error {
	var errs error

	if cfg.URL == "" {
		errs = errors.Join(errs, fmt.Errorf("feed url cannot be an empty string"))
	}
	if len(cfg.Markets) == 0 {
		errs = errors.Join(errs, fmt.Errorf("no markets provided"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// WebsocketFeed streams ticks from a websocket endpoint.
type WebsocketFeed struct {
	cfg  *WebsocketFeedConfig
	conn *websocket.Conn
}

// NewWebsocketFeed initializes a websocket tick feed and subscribes to
// the configured markets.
func NewWebsocketFeed(cfg *WebsocketFeedConfig) (*WebsocketFeed, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating websocket feed config: %w", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.Dial(cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing tick feed %s: %w", cfg.URL, err)
	}

	conn.SetReadLimit(maxMessageSize)

	sub := fmt.Sprintf(`{"op":"subscribe","markets":["%s"]}`,
		strings.Join(cfg.Markets, `","`))
	err = conn.WriteMessage(websocket.TextMessage, []byte(sub))
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribing to markets: %w", err)
	}

	cfg.Logger.Info().Str("url", cfg.URL).Strs("markets", cfg.Markets).
		Msg("connected tick feed")

	return &WebsocketFeed{
		cfg:  cfg,
		conn: conn,
	}, nil
}

// parseTick decodes a tick message, returning nil for messages that are
// not ticks (heartbeats, acks).
func parseTick(msg []byte) (*shared.Tick, error) {
	payload := string(msg)
	if gjson.Get(payload, "type").String() != "tick" {
		return nil, nil
	}

	market := gjson.Get(payload, "market").String()
	if market == "" {
		return nil, fmt.Errorf("tick message missing market")
	}

	ts, err := time.ParseInLocation(shared.DateLayout,
		gjson.Get(payload, "ts").String(), shared.TaipeiLocation())
	if err != nil {
		return nil, fmt.Errorf("parsing tick timestamp: %w", err)
	}

	return &shared.Tick{
		Market:    market,
		Timestamp: ts,
		Price:     gjson.Get(payload, "price").Float(),
		Volume:    gjson.Get(payload, "volume").Float(),
		Opening:   gjson.Get(payload, "simtrade").Bool(),
	}, nil
}

// NextTick returns the next tick from the feed, waiting up to the
// provided timeout. shared.ErrNoTick is returned when the deadline
// lapses without one.
func (f *WebsocketFeed) NextTick(timeout time.Duration) (*shared.Tick, error) {
	deadline := time.Now().Add(timeout)
	err := f.conn.SetReadDeadline(deadline)
	if err != nil {
		return nil, fmt.Errorf("setting feed read deadline: %w", err)
	}

	for {
		_, msg, err := f.conn.ReadMessage()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return nil, shared.ErrNoTick
			}
			return nil, fmt.Errorf("reading tick message: %w", err)
		}

		tick, err := parseTick(msg)
		if err != nil {
			f.cfg.Logger.Warn().Err(err).Msg("skipping malformed tick message")
			continue
		}
		if tick == nil {
			continue
		}

		return tick, nil
	}
}

// Close terminates the feed connection.
func (f *WebsocketFeed) Close() error {
	return f.conn.Close()
}
