package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"OptionsFlow/internal/domain/models"
	drepo "OptionsFlow/internal/domain/repository"
	"OptionsFlow/pkg/logger"
)

// Client implements a TradeStream backed by an options-trade WebSocket feed.
type Client struct {
	apiKey         string
	websocketURL   string
	underlyings    []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	log            *logger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected atomic.Bool
}

var _ drepo.TradeStream = (*Client)(nil)

// New creates a new feed TradeStream.
func New(apiKey, websocketURL string, underlyings []string, reconnectDelay, pingInterval time.Duration, log *logger.Logger) *Client {
	return &Client{
		apiKey:         apiKey,
		websocketURL:   websocketURL,
		underlyings:    underlyings,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		log:            log.Component("feed"),
	}
}

// Connect establishes the WebSocket connection.
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.websocketURL)
	if err != nil {
		return fmt.Errorf("feed url: %w", err)
	}
	if c.apiKey != "" {
		q := u.Query()
		q.Set("token", c.apiKey)
		u.RawQuery = q.Encode()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("feed connect: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.connected.Store(true)
	c.log.Info("connected", logger.String("host", u.Host))
	return nil
}

type subscribeMessage struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
}

// Subscribe subscribes to the configured underlyings.
func (c *Client) Subscribe(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || !c.connected.Load() {
		return fmt.Errorf("feed not connected")
	}
	for _, s := range c.underlyings {
		if err := c.conn.WriteJSON(subscribeMessage{Type: "subscribe", Symbol: s}); err != nil {
			return fmt.Errorf("subscribe %s: %w", s, err)
		}
	}
	c.log.Info("subscribed", logger.Strings("underlyings", c.underlyings))
	return nil
}

type feedMessage struct {
	Type string                `json:"type"`
	Data []models.OptionsTrade `json:"data"`
}

// Read streams trades and errors until ctx is done or the connection fails.
func (c *Client) Read(ctx context.Context) (<-chan *models.OptionsTrade, <-chan error) {
	trades := make(chan *models.OptionsTrade, 1024)
	errs := make(chan error, 1)

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	// ping loop
	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.mu.Lock()
				if c.conn == conn && conn != nil {
					_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.pingInterval))
				}
				c.mu.Unlock()
			}
		}
	}()

	// read loop
	go func() {
		defer close(trades)
		defer close(errs)
		if conn == nil {
			errs <- fmt.Errorf("feed conn nil")
			return
		}
		for {
			if ctx.Err() != nil {
				return
			}
			_, b, err := conn.ReadMessage()
			if err != nil {
				errs <- fmt.Errorf("feed read: %w", err)
				return
			}
			var m feedMessage
			if err := json.Unmarshal(b, &m); err != nil {
				c.log.Debug("skip frame", logger.Error(err))
				continue
			}
			if m.Type != "trade" {
				continue
			}
			for i := range m.Data {
				t := m.Data[i]
				select {
				case trades <- &t:
				case <-ctx.Done():
					return
				default:
					c.log.Warn("trade dropped on backpressure", logger.String("trade_id", t.ID))
				}
			}
		}
	}()

	return trades, errs
}

// Reconnect closes and reconnects after the configured delay.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	select {
	case <-time.After(c.reconnectDelay):
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close closes the WS connection.
func (c *Client) Close() error {
	c.connected.Store(false)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool { return c.connected.Load() }
