// Package broadcast implements the Broadcaster: a push server that
// delivers every RateUpdate to all connected observers over a WebSocket
// upgrade, best-effort.
package broadcast

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/RedBird96/detect-amm-imbalance/internal/arberr"
	"github.com/RedBird96/detect-amm-imbalance/internal/evaluate"
	"github.com/RedBird96/detect-amm-imbalance/internal/metrics"
	gethlog "github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/websocket"
)

// outboundBuffer bounds how many pending messages an observer's writer
// goroutine will queue before the observer is treated as too slow and
// dropped; there is no unbounded per-observer queue beyond this buffer.
const outboundBuffer = 64

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wireMessage is the JSON frame pushed to every connected observer.
type wireMessage struct {
	Type            string  `json:"type"`
	PathID          string  `json:"pathId"`
	PathDescription string  `json:"pathDescription"`
	Rate            float64 `json:"rate"`
}

// Broadcaster accepts observer WebSocket connections and fans out every
// RateUpdate it reads from Events.
type Broadcaster struct {
	addr    string
	log     gethlog.Logger
	metrics *metrics.Metrics

	server *http.Server

	mu        sync.Mutex
	observers map[*observer]struct{}
	closed    bool
}

type observer struct {
	conn    *websocket.Conn
	outbox  chan wireMessage
	closeMu sync.Once
	done    chan struct{}
}

// New builds a Broadcaster listening on port. healthz reports true once
// the caller considers the engine ready to serve traffic. m may be nil.
func New(port int, healthz func() bool, m *metrics.Metrics, logger gethlog.Logger) *Broadcaster {
	b := &Broadcaster{
		addr:      portAddr(port),
		log:       logger,
		metrics:   m,
		observers: make(map[*observer]struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", b.handleUpgrade)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if healthz == nil || healthz() {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	if m != nil {
		m.Register(mux)
	}

	b.server = &http.Server{Addr: b.addr, Handler: mux}
	return b
}

func portAddr(port int) string {
	return ":" + strconv.Itoa(port)
}

// ListenAndServe binds the configured port and starts serving. It
// returns once the listener is bound, surfacing a bind failure as a
// FatalError-worthy error to the Supervisor; serving itself continues
// in a background goroutine until Close is called.
func (b *Broadcaster) ListenAndServe() error {
	ln, err := net.Listen("tcp", b.addr)
	if err != nil {
		return err
	}
	go func() {
		if err := b.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			if b.log != nil {
				b.log.Error("broadcaster serve exited", "err", err)
			}
		}
	}()
	return nil
}

// Run drains events and fans each one out to every open observer until
// ctx is cancelled.
func (b *Broadcaster) Run(ctx context.Context, events <-chan evaluate.RateUpdate) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-events:
			if !ok {
				return
			}
			b.fanOut(update)
		}
	}
}

func (b *Broadcaster) fanOut(update evaluate.RateUpdate) {
	msg := wireMessage{
		Type:            "arbitrageRateUpdated",
		PathID:          update.PathID,
		PathDescription: update.PathDescription,
		Rate:            update.Rate,
	}

	b.mu.Lock()
	observers := make([]*observer, 0, len(b.observers))
	for o := range b.observers {
		observers = append(observers, o)
	}
	b.mu.Unlock()

	for _, o := range observers {
		select {
		case o.outbox <- msg:
		default:
			// Observer's writer isn't keeping up; drop it rather than
			// block fan-out to everyone else.
			b.removeObserver(o)
		}
	}
}

func (b *Broadcaster) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if b.log != nil {
			b.log.Warn("websocket upgrade failed", "err", err)
		}
		return
	}

	o := &observer{
		conn:   conn,
		outbox: make(chan wireMessage, outboundBuffer),
		done:   make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		conn.Close()
		return
	}
	b.observers[o] = struct{}{}
	b.mu.Unlock()
	if b.metrics != nil {
		b.metrics.BroadcastObserversGauge.Inc()
	}

	go b.writeLoop(o)
	go b.readLoop(o) // drains/discards client frames so pongs and close frames are processed
}

// writeLoop is the one goroutine per observer that owns conn.WriteJSON;
// a slow observer's blocking write only stalls this goroutine, never
// the shared fan-out loop in fanOut.
func (b *Broadcaster) writeLoop(o *observer) {
	defer o.conn.Close()
	for {
		select {
		case <-o.done:
			return
		case msg := <-o.outbox:
			o.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := o.conn.WriteJSON(msg); err != nil {
				if b.log != nil {
					b.log.Debug("observer write failed", "err", &arberr.BroadcastError{Cause: err})
				}
				b.removeObserver(o)
				return
			}
			if b.metrics != nil {
				b.metrics.BroadcastFanOutTotal.Inc()
			}
		}
	}
}

func (b *Broadcaster) readLoop(o *observer) {
	defer b.removeObserver(o)
	for {
		if _, _, err := o.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (b *Broadcaster) removeObserver(o *observer) {
	b.mu.Lock()
	_, present := b.observers[o]
	delete(b.observers, o)
	b.mu.Unlock()
	if present {
		if b.metrics != nil {
			b.metrics.BroadcastObserversGauge.Dec()
		}
		o.closeMu.Do(func() { close(o.done) })
	}
}

// Close stops accepting new connections and closes every open one.
func (b *Broadcaster) Close() error {
	b.mu.Lock()
	b.closed = true
	observers := make([]*observer, 0, len(b.observers))
	for o := range b.observers {
		observers = append(observers, o)
	}
	b.mu.Unlock()

	for _, o := range observers {
		b.removeObserver(o)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return b.server.Shutdown(ctx)
}
