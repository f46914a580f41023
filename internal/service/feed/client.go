package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"IPHForecast/internal/domain/models"
	drepo "IPHForecast/internal/domain/repository"
	"IPHForecast/pkg/logger"
	"IPHForecast/pkg/util"

	"github.com/gorilla/websocket"
)

// Client implements IndicatorStream over a WebSocket price feed.
type Client struct {
	url            string
	token          string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	bufferSize     int
	l              *logger.Logger

	writeMu   sync.Mutex
	conn      *websocket.Conn
	connected atomic.Bool
}

type Option func(*Client)

func WithToken(token string) Option { return func(c *Client) { c.token = token } }

func WithReconnectDelay(d time.Duration) Option { return func(c *Client) { c.reconnectDelay = d } }

func WithPingInterval(d time.Duration) Option { return func(c *Client) { c.pingInterval = d } }

func WithBufferSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.bufferSize = n
		}
	}
}

func WithLogger(l *logger.Logger) Option { return func(c *Client) { c.l = l } }

func New(feedURL string, opts ...Option) *Client {
	c := &Client{
		url:            feedURL,
		reconnectDelay: 5 * time.Second,
		pingInterval:   30 * time.Second,
		bufferSize:     256,
		l:              logger.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

var _ drepo.IndicatorStream = (*Client)(nil)

func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.url)
	if err != nil {
		return fmt.Errorf("feed url: %w", err)
	}
	if c.token != "" {
		q := u.Query()
		q.Set("token", c.token)
		u.RawQuery = q.Encode()
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("feed connect: %w", err)
	}
	c.writeMu.Lock()
	c.conn = conn
	c.writeMu.Unlock()
	c.connected.Store(true)
	c.l.Info("feed connected", logger.String("host", u.Host))
	return nil
}

func (c *Client) Subscribe(_ context.Context) error {
	if !c.connected.Load() {
		return fmt.Errorf("feed not connected")
	}
	return c.writeJSON(map[string]string{"type": "subscribe", "channel": "iph"})
}

func (c *Client) writeJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("feed not connected")
	}
	return c.conn.WriteJSON(v)
}

type feedPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

type feedMessage struct {
	Type string      `json:"type"`
	Data []feedPoint `json:"data"`
}

// Read streams parsed updates until ctx ends or the connection fails.
// Updates are dropped when the consumer falls behind the buffer.
func (c *Client) Read(ctx context.Context) (<-chan *models.IndicatorUpdate, <-chan error) {
	updates := make(chan *models.IndicatorUpdate, c.bufferSize)
	errs := make(chan error, 1)

	c.writeMu.Lock()
	conn := c.conn
	c.writeMu.Unlock()
	if conn == nil {
		errs <- fmt.Errorf("feed not connected")
		close(updates)
		close(errs)
		return updates, errs
	}

	go c.pingLoop(ctx, conn)
	go func() {
		defer close(updates)
		defer close(errs)
		for {
			if ctx.Err() != nil {
				return
			}
			_, b, err := conn.ReadMessage()
			if err != nil {
				c.connected.Store(false)
				if ctx.Err() == nil {
					errs <- fmt.Errorf("feed read: %w", err)
				}
				return
			}
			var m feedMessage
			if err := json.Unmarshal(b, &m); err != nil || m.Type != "iph" {
				continue
			}
			for _, p := range m.Data {
				d, ok := util.ParseDate(p.Date)
				if !ok {
					c.l.Warn("feed point with bad date", logger.String("date", p.Date))
					continue
				}
				select {
				case updates <- &models.IndicatorUpdate{Date: d, Value: p.Value, Source: "feed"}:
				default:
					c.l.Warn("feed buffer full, dropping update", logger.Date("date", d))
				}
			}
		}
	}()
	return updates, errs
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	if c.pingInterval <= 0 {
		return
	}
	t := time.NewTicker(c.pingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Reconnect closes the connection, waits the reconnect delay, then reconnects and resubscribes.
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

func (c *Client) Close() error {
	c.connected.Store(false)
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) IsConnected() bool { return c.connected.Load() }
