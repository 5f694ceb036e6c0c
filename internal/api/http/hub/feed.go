package hub

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oshokin/alarm-monitor/internal/logger"
	"github.com/oshokin/alarm-monitor/internal/metrics"
)

const (
	// subscriberBuffer is how many messages may queue for one subscriber.
	subscriberBuffer = 64
	// writeWait bounds every write to a subscriber.
	writeWait = 5 * time.Second
	// pingPeriod keeps idle connections alive through proxies.
	pingPeriod = 30 * time.Second
)

// Feed fans alert messages out to WebSocket subscribers. A subscriber that
// falls subscriberBuffer messages behind is disconnected.
type Feed struct {
	upgrader websocket.Upgrader

	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
	closed      bool
	wg          sync.WaitGroup
}

type subscriber struct {
	conn *websocket.Conn
	send chan string
	once sync.Once
	done chan struct{}
}

// NewFeed creates an empty feed.
func NewFeed() *Feed {
	return &Feed{
		upgrader: websocket.Upgrader{
			// Clients are not browsers; the bearer token is the access check.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		subscribers: make(map[*subscriber]struct{}),
	}
}

// Publish queues message for every subscriber.
func (f *Feed) Publish(message string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	metrics.HubBroadcastsTotal.Inc()

	for s := range f.subscribers {
		select {
		case s.send <- message:
		default:
			f.dropLocked(s)
		}
	}
}

// Subscribers returns the number of connected subscribers.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.subscribers)
}

// ServeHTTP upgrades the request and streams messages until the client leaves.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader already answered the client.
		logger.WarnKV(ctx, "Feed upgrade failed", "error", err)
		return
	}

	s := &subscriber{
		conn: conn,
		send: make(chan string, subscriberBuffer),
		done: make(chan struct{}),
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()

		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(writeWait))
		_ = conn.Close()

		return
	}

	f.subscribers[s] = struct{}{}
	f.wg.Add(1)
	f.mu.Unlock()

	metrics.HubFeedSubscribers.Inc()
	logger.InfoKV(ctx, "Feed subscriber joined", "remote", r.RemoteAddr)

	go f.readLoop(s)

	f.writeLoop(ctx, s)

	f.mu.Lock()
	f.dropLocked(s)
	f.mu.Unlock()

	_ = conn.Close()

	metrics.HubFeedSubscribers.Dec()
	logger.InfoKV(ctx, "Feed subscriber left", "remote", r.RemoteAddr)
	f.wg.Done()
}

// readLoop discards client frames and notices when the client goes away.
func (f *Feed) readLoop(s *subscriber) {
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			s.stop()
			return
		}
	}
}

// writeLoop sends queued messages and pings until the subscriber stops.
func (f *Feed) writeLoop(ctx context.Context, s *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))

			return
		case message := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if err := s.conn.WriteMessage(websocket.TextMessage, []byte(message)); err != nil {
				logger.DebugKV(ctx, "Feed write failed", "error", err)
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// Close disconnects every subscriber and waits for their handlers to return.
func (f *Feed) Close() {
	f.mu.Lock()
	f.closed = true

	for s := range f.subscribers {
		f.dropLocked(s)
	}
	f.mu.Unlock()

	f.wg.Wait()
}

// dropLocked removes s and signals its writer. f.mu must be held.
func (f *Feed) dropLocked(s *subscriber) {
	delete(f.subscribers, s)
	s.stop()
}

// stop signals the writer once.
func (s *subscriber) stop() {
	s.once.Do(func() {
		close(s.done)
	})
}
