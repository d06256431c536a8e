package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"ProbDesk/internal/domain/models"
	drepo "ProbDesk/internal/domain/repository"
	applogger "ProbDesk/pkg/logger"

	"github.com/gorilla/websocket"
)

// Client implements a SampleStream backed by a collector WebSocket feed.
//
// Frames are JSON: {"type":"samples","data":[RawSample...]}. Other frame
// types (heartbeats, acks) are ignored, as are samples that do not decode.
type Client struct {
	apiKey         string
	websocketURL   string
	markets        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	log            *applogger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
}

type Config struct {
	APIKey         string
	WebSocketURL   string
	Markets        []string
	ReconnectDelay time.Duration
	PingInterval   time.Duration
}

// New creates a new collector SampleStream.
func New(cfg Config, l *applogger.Logger) drepo.SampleStream {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &Client{
		apiKey:         cfg.APIKey,
		websocketURL:   cfg.WebSocketURL,
		markets:        cfg.Markets,
		reconnectDelay: cfg.ReconnectDelay,
		pingInterval:   cfg.PingInterval,
		log:            l.With(applogger.String("component", "collector")),
	}
}

// Connect establishes the WebSocket connection.
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.websocketURL)
	if err != nil {
		return fmt.Errorf("collector url: %w", err)
	}
	if c.apiKey != "" {
		q := u.Query()
		q.Set("token", c.apiKey)
		u.RawQuery = q.Encode()
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("collector connect: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()
	c.log.Info("collector connected", applogger.String("url", c.websocketURL))
	return nil
}

// Subscribe subscribes to configured markets. An empty list means the full feed.
func (c *Client) Subscribe(ctx context.Context) error {
	conn := c.current()
	if conn == nil {
		return fmt.Errorf("collector not connected")
	}
	for _, m := range c.markets {
		msg := map[string]string{"type": "subscribe", "market_id": m}
		if err := conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("subscribe %s: %w", m, err)
		}
		c.log.Debug("collector subscribed", applogger.String("market_id", m))
	}
	return nil
}

type frame struct {
	Type string            `json:"type"`
	Data []json.RawMessage `json:"data"`
}

// Read streams samples and a terminal error. Both channels close when the
// read loop ends.
func (c *Client) Read(ctx context.Context) (<-chan *models.RawSample, <-chan error) {
	samples := make(chan *models.RawSample, 1024)
	errs := make(chan error, 1)
	conn := c.current()

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				if conn != nil {
					_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
				}
			}
		}
	}()

	go func() {
		defer close(done)
		defer close(samples)
		defer close(errs)
		if conn == nil {
			errs <- fmt.Errorf("collector conn nil")
			return
		}
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					errs <- fmt.Errorf("collector read: %w", err)
				}
				return
			}
			var f frame
			if err := json.Unmarshal(b, &f); err != nil {
				c.log.Debug("collector frame ignored", applogger.Error(err))
				continue
			}
			if f.Type != "samples" {
				continue
			}
			for i, item := range f.Data {
				raw, err := models.DecodeRawSample(item)
				if err != nil {
					c.log.Warn("collector sample dropped",
						applogger.Int("index", i),
						applogger.String("market_id", raw.MarketID),
						applogger.Error(err))
					continue
				}
				select {
				case samples <- &raw:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	// unblock ReadMessage on cancellation
	go func() {
		select {
		case <-ctx.Done():
			if conn != nil {
				_ = conn.Close()
			}
		case <-done:
		}
	}()

	return samples, errs
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
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) current() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}
