package broadcast

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/RedBird96/detect-amm-imbalance/internal/evaluate"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// newTestServer builds a Broadcaster wired to an httptest.Server so
// websocket upgrades can be exercised without binding the configured
// port; httptest listens on an ephemeral loopback port instead.
func newTestServer(t *testing.T) (*Broadcaster, *httptest.Server, chan evaluate.RateUpdate) {
	t.Helper()
	b := New(0, func() bool { return true }, nil, nil)
	srv := httptest.NewServer(b.server.Handler)
	t.Cleanup(srv.Close)

	events := make(chan evaluate.RateUpdate, 8)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go b.Run(ctx, events)

	return b, srv, events
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestBroadcasterFansOutToObserver(t *testing.T) {
	_, srv, events := newTestServer(t)
	conn := dialWS(t, srv)

	events <- evaluate.RateUpdate{PathID: "1", PathDescription: "WETH -> USDC -> WETH", Rate: 0.02}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg wireMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	require.Equal(t, "arbitrageRateUpdated", msg.Type)
	require.Equal(t, "1", msg.PathID)
	require.InDelta(t, 0.02, msg.Rate, 1e-12)
}

func TestBroadcasterDropsSlowObserverWithoutStallingOthers(t *testing.T) {
	b, srv, events := newTestServer(t)

	slow := dialWS(t, srv) // never read from
	fast := dialWS(t, srv)

	// Exceed the slow observer's outbound buffer so fanOut's non-blocking
	// send starts hitting default and drops it.
	for i := 0; i < outboundBuffer+5; i++ {
		events <- evaluate.RateUpdate{PathID: "x", Rate: float64(i)}
	}

	require.NoError(t, fast.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := fast.ReadMessage()
	require.NoError(t, err, "a well-behaved observer must keep receiving even when another stalls")

	require.Eventually(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return len(b.observers) <= 1
	}, 2*time.Second, 10*time.Millisecond, "the slow observer must eventually be dropped")

	_ = slow
}
