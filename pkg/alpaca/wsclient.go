package alpaca

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSClient handles the WebSocket connection to the Alpaca market data stream
// and message delivery to a handler. One connection per API key pair is
// allowed upstream, so callers keep a single client per process.
type WSClient struct {
	url       string
	apiKey    string
	apiSecret string
	logger    *zap.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	handler func([]byte)
	subs    map[string][]string // action channel ("trades"/"quotes"/"bars") -> symbols
	closed  chan struct{}
}

func NewWSClient(url, apiKey, apiSecret string, logger *zap.Logger) (*WSClient, error) {
	if apiKey == "" || apiSecret == "" {
		return nil, ErrMissingCredentials
	}
	return &WSClient{
		url:       url,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		logger:    logger,
		subs:      make(map[string][]string),
		closed:    make(chan struct{}),
	}, nil
}

// SetMessageHandler sets the function to handle incoming data messages.
func (c *WSClient) SetMessageHandler(h func([]byte)) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

// Connect establishes the connection, authenticates, and subscribes to the
// given channels. It does not start the listener.
func (c *WSClient) Connect(subscriptions map[string][]string) error {
	conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
	if err != nil {
		c.logger.Error("failed to connect to websocket", zap.String("url", c.url), zap.Error(err))
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.subs = subscriptions
	c.mu.Unlock()

	if err := c.authAndSubscribe(conn); err != nil {
		conn.Close()
		return err
	}

	c.logger.Info("websocket connected", zap.String("url", c.url))
	return nil
}

// Listen reads messages until Stop is called, reconnecting with capped
// exponential backoff on read errors and reapplying subscriptions.
func (c *WSClient) Listen() {
	for {
		c.mu.Lock()
		conn := c.conn
		handler := c.handler
		c.mu.Unlock()

		if conn == nil {
			return
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
				return
			default:
			}
			c.logger.Error("websocket read error", zap.Error(err))

			backoff := 3 * time.Second
			for {
				select {
				case <-c.closed:
					return
				case <-time.After(backoff):
				}
				if err := c.reconnectAndResubscribe(); err != nil {
					c.logger.Warn("reconnect failed, retrying",
						zap.Duration("backoff", backoff), zap.Error(err))
					if backoff *= 2; backoff > 30*time.Second {
						backoff = 30 * time.Second
					}
					continue
				}
				c.logger.Info("reconnected successfully")
				break
			}
			continue
		}

		if handler != nil {
			handler(msg)
		}
	}
}

// Stop closes the connection and ends the listener. Safe to call more than
// once and from a different goroutine than Listen.
func (c *WSClient) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.closed:
		return
	default:
		close(c.closed)
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.logger.Info("websocket stopped")
}

func (c *WSClient) reconnectAndResubscribe() error {
	newConn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
	if err != nil {
		return err
	}

	if err := c.authAndSubscribe(newConn); err != nil {
		newConn.Close()
		return err
	}

	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = newConn
	c.mu.Unlock()
	return nil
}

// authAndSubscribe runs the stream handshake: auth first, then the
// subscription message built from the stored channel map.
func (c *WSClient) authAndSubscribe(conn *websocket.Conn) error {
	authMsg := map[string]string{
		"action": "auth",
		"key":    c.apiKey,
		"secret": c.apiSecret,
	}
	if err := conn.WriteJSON(authMsg); err != nil {
		return fmt.Errorf("websocket auth failed: %w", err)
	}

	c.mu.Lock()
	subMsg := map[string]any{"action": "subscribe"}
	for channel, symbols := range c.subs {
		if len(symbols) > 0 {
			subMsg[channel] = symbols
		}
	}
	c.mu.Unlock()

	if len(subMsg) > 1 {
		if err := conn.WriteJSON(subMsg); err != nil {
			return fmt.Errorf("websocket subscribe failed: %w", err)
		}
	}
	return nil
}

// Subscribe adds channels to the live connection and remembers them for
// reconnects.
func (c *WSClient) Subscribe(subscriptions map[string][]string) error {
	c.mu.Lock()
	conn := c.conn
	subMsg := map[string]any{"action": "subscribe"}
	for channel, symbols := range subscriptions {
		if len(symbols) == 0 {
			continue
		}
		subMsg[channel] = symbols
		c.subs[channel] = appendUnique(c.subs[channel], symbols)
	}
	c.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("websocket not connected")
	}
	if len(subMsg) == 1 {
		return nil
	}
	if err := conn.WriteJSON(subMsg); err != nil {
		return fmt.Errorf("websocket subscribe failed: %w", err)
	}
	return nil
}

func appendUnique(existing, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, s := range existing {
		seen[s] = struct{}{}
	}
	for _, s := range incoming {
		if _, ok := seen[s]; !ok {
			existing = append(existing, s)
			seen[s] = struct{}{}
		}
	}
	return existing
}
