package backpack

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yukaisun/crossarb/internal/domain"
)

const (
	defaultWSURL = "wss://ws.backpack.exchange"

	writeWait  = 10 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the first backoff step; it doubles per failed
	// attempt up to maxReconnectDelay and resets after a successful connect.
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

// depthHandler receives parsed depth deltas from the stream.
type depthHandler func(depthEvent)

// wsClient maintains the Backpack market-data stream with automatic
// reconnection and resubscription.
type wsClient struct {
	wsURL  string
	logger *slog.Logger

	// onDepth handles depth deltas; onReconnect lets the venue re-seed the
	// local book from a REST snapshot after every (re)connect.
	onDepth     depthHandler
	onReconnect func()
	// signer provides the credential tuple for private streams; nil skips
	// the private subscription.
	signer func() []string

	mu         sync.RWMutex
	conn       *websocket.Conn
	closed     bool
	publicSubs []string
	signedSubs []string

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

// connect dials the stream and starts the read and ping loops. Previously
// registered subscriptions are restored.
func (w *wsClient) connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("backpack/ws: client is closed")
	}

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("backpack/ws: connect: %w", err)
	}
	w.conn = conn

	w.conn.SetReadDeadline(time.Now().Add(pongWait))
	w.conn.SetPongHandler(func(string) error {
		w.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go w.readLoop()
	go w.pingLoop()

	if len(w.publicSubs) > 0 {
		if err := w.send(wsRequest{Method: "SUBSCRIBE", Params: w.publicSubs}); err != nil {
			return fmt.Errorf("backpack/ws: restore subscriptions: %w", err)
		}
	}
	w.restoreSignedSubs()

	if w.onReconnect != nil {
		go w.onReconnect()
	}
	return nil
}

// subscribe registers and sends a public stream subscription.
func (w *wsClient) subscribe(streams ...string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("backpack/ws: %w", domain.ErrNotConnected)
	}
	if err := w.send(wsRequest{Method: "SUBSCRIBE", Params: streams}); err != nil {
		return fmt.Errorf("backpack/ws: subscribe: %w", err)
	}
	w.publicSubs = append(w.publicSubs, streams...)
	return nil
}

// subscribeSigned registers a private stream subscription. Failures are
// logged, not returned: order updates are best effort, the depth stream is
// what trading depends on.
func (w *wsClient) subscribeSigned(streams ...string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.signedSubs = append(w.signedSubs, streams...)
	if w.conn == nil || w.signer == nil {
		return
	}
	if err := w.send(wsRequest{Method: "SUBSCRIBE", Params: streams, Signature: w.signer()}); err != nil {
		w.logger.Warn("private subscription failed", slog.String("error", err.Error()))
	}
}

// restoreSignedSubs resends private subscriptions. Caller holds w.mu.
func (w *wsClient) restoreSignedSubs() {
	if len(w.signedSubs) == 0 || w.signer == nil {
		return
	}
	if err := w.send(wsRequest{Method: "SUBSCRIBE", Params: w.signedSubs, Signature: w.signer()}); err != nil {
		w.logger.Warn("restore private subscriptions failed", slog.String("error", err.Error()))
	}
}

// send writes one frame. Caller holds w.mu.
func (w *wsClient) send(req wsRequest) error {
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

// close shuts the stream down for good; reconnection stops.
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

		w.handleMessage(message)
	}
}

func (w *wsClient) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.mu.RLock()
			conn := w.conn
			w.mu.RUnlock()
			if conn == nil {
				return
			}

			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (w *wsClient) handleMessage(raw []byte) {
	var envelope wsEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return
	}
	if !strings.HasPrefix(envelope.Stream, "depth.") {
		return
	}

	var event depthEvent
	if err := json.Unmarshal(envelope.Data, &event); err != nil {
		return
	}
	if w.onDepth != nil {
		w.onDepth(event)
	}
}

// reconnect redials with exponential backoff until it succeeds or the client
// is closed.
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
