package lighter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yukaisun/crossarb/internal/domain"
)

const (
	defaultWSURL = "wss://mainnet.zklighter.elliot.ai/stream"

	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second

	reconnectDelay    = time.Second
	maxReconnectDelay = 30 * time.Second
)

// nextDelay advances the reconnect backoff one step.
func nextDelay(d time.Duration) time.Duration {
	d *= 2
	if d > maxReconnectDelay {
		return maxReconnectDelay
	}
	return d
}

// bookHandler receives book payloads; snapshot is true for the initial
// subscribed/order_book frame after every (re)connect.
type bookHandler func(ob wsOrderBook, snapshot bool)

// wsClient maintains the Lighter stream. Unlike Backpack the heartbeat is an
// application-level JSON ping the server initiates; we answer with a pong
// frame of the same shape.
type wsClient struct {
	wsURL  string
	logger *slog.Logger

	onBook bookHandler
	// authFn supplies a token for the best-effort private channel; nil
	// disables it.
	authFn func() string

	mu          sync.RWMutex
	conn        *websocket.Conn
	closed      bool
	channels    []string
	privateChan string

	done chan struct{}
}

func newWSClient(wsURL string, logger *slog.Logger) *wsClient {
	if wsURL == "" {
		wsURL = defaultWSURL
	}
	return &wsClient{
		wsURL:  wsURL,
		logger: logger,
		done:   make(chan struct{}),
	}
}

func (w *wsClient) connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("lighter/ws: client is closed")
	}

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("lighter/ws: connect: %w", err)
	}
	w.conn = conn
	w.conn.SetReadDeadline(time.Now().Add(pongWait))

	go w.readLoop()

	for _, ch := range w.channels {
		if err := w.send(wsSubscribe{Type: "subscribe", Channel: ch}); err != nil {
			return fmt.Errorf("lighter/ws: restore subscription %s: %w", ch, err)
		}
	}
	w.sendPrivateSub()
	return nil
}

// subscribe registers and sends a public channel subscription. The server
// answers with a subscribed/<channel> snapshot frame.
func (w *wsClient) subscribe(channel string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("lighter/ws: %w", domain.ErrNotConnected)
	}
	if err := w.send(wsSubscribe{Type: "subscribe", Channel: channel}); err != nil {
		return fmt.Errorf("lighter/ws: subscribe %s: %w", channel, err)
	}
	w.channels = append(w.channels, channel)
	return nil
}

// subscribePrivate registers the account channel. Best effort: a failed auth
// never disrupts the market-data stream.
func (w *wsClient) subscribePrivate(channel string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.privateChan = channel
	w.sendPrivateSub()
}

// sendPrivateSub sends the private subscription if configured. Caller holds
// w.mu.
func (w *wsClient) sendPrivateSub() {
	if w.privateChan == "" || w.authFn == nil || w.conn == nil {
		return
	}
	if err := w.send(wsSubscribe{Type: "subscribe", Channel: w.privateChan, Auth: w.authFn()}); err != nil {
		w.logger.Warn("private subscription failed", slog.String("error", err.Error()))
	}
}

// send writes one frame. Caller holds w.mu.
func (w *wsClient) send(v any) error {
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *wsClient) close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	close(w.done)

	if w.conn != nil {
		_ = w.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return w.conn.Close()
	}
	return nil
}

func (w *wsClient) readLoop() {
	defer func() {
		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()
		if conn != nil {
			conn.Close()
		}
	}()

	for {
		select {
		case <-w.done:
			return
		default:
		}

		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()
		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-w.done:
				return
			default:
			}
			w.logger.Warn("stream read failed, reconnecting", slog.String("error", err.Error()))
			w.reconnect()
			return
		}

		conn.SetReadDeadline(time.Now().Add(pongWait))
		w.handleMessage(message)
	}
}

func (w *wsClient) handleMessage(raw []byte) {
	var msg wsMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}

	switch msg.Type {
	case "ping":
		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()
		if conn != nil {
			w.mu.Lock()
			if err := w.send(wsSubscribe{Type: "pong"}); err != nil {
				w.logger.Warn("pong failed", slog.String("error", err.Error()))
			}
			w.mu.Unlock()
		}
	case "subscribed/order_book":
		if msg.OrderBook != nil && w.onBook != nil {
			w.onBook(*msg.OrderBook, true)
		}
	case "update/order_book":
		if msg.OrderBook != nil && w.onBook != nil {
			w.onBook(*msg.OrderBook, false)
		}
	}
}

func (w *wsClient) reconnect() {
	delay := reconnectDelay

	for {
		select {
		case <-w.done:
			return
		default:
		}

		time.Sleep(delay)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := w.connect(ctx)
		cancel()
		if err == nil {
			w.logger.Info("stream reconnected")
			return
		}

		w.logger.Warn("reconnect failed",
			slog.String("error", err.Error()),
			slog.Duration("next_delay", nextDelay(delay)),
		)
		delay = nextDelay(delay)
	}
}
