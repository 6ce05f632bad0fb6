package events

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const writeTimeout = 5 * time.Second

// StatusSnapshot is sent once to a newly connected subscriber before
// streaming further events, per §4.9.8.
type StatusSnapshot func() any

// WSBridge serves the loopback event-stream listener (§6): default
// ws://127.0.0.1:<port>/events, disabled unless configured. Every
// connection gets the current status snapshot, then a live feed of Bus
// events as JSON frames.
type WSBridge struct {
	bus      *Bus
	snapshot StatusSnapshot
	logger   *slog.Logger

	server   *http.Server
	listener net.Listener
}

// NewWSBridge creates a bridge over bus. snapshot is invoked once per new
// connection to produce the initial status frame.
func NewWSBridge(bus *Bus, snapshot StatusSnapshot, logger *slog.Logger) *WSBridge {
	if logger == nil {
		logger = slog.Default()
	}

	b := &WSBridge{bus: bus, snapshot: snapshot, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("/events", b.handle)

	// Request contexts derive from baseCtx, which Shutdown cancels, so Stop
	// also ends handlers whose connections were upgraded to WebSocket.
	baseCtx, cancelBase := context.WithCancel(context.Background())
	b.server = &http.Server{
		Handler:     mux,
		BaseContext: func(net.Listener) context.Context { return baseCtx },
	}
	b.server.RegisterOnShutdown(cancelBase)

	return b
}

// Start binds a loopback-only listener on port (0 for an OS-assigned
// ephemeral port) and begins serving. Returns the bound address.
func (b *WSBridge) Start(port int) (string, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", portString(port)))
	if err != nil {
		return "", err
	}

	b.listener = ln

	go func() {
		if err := b.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			b.logger.Error("events: websocket bridge stopped", "error", err)
		}
	}()

	return ln.Addr().String(), nil
}

// Stop closes the listener and any open connections.
func (b *WSBridge) Stop(ctx context.Context) error {
	if b.server == nil {
		return nil
	}

	return b.server.Shutdown(ctx)
}

func (b *WSBridge) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		b.logger.Warn("events: websocket accept failed", "error", err)

		return
	}
	defer conn.CloseNow()

	ctx := r.Context()

	if b.snapshot != nil {
		writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
		err := wsjson.Write(writeCtx, conn, b.snapshot())
		cancel()

		if err != nil {
			b.logger.Debug("events: failed to send initial snapshot", "error", err)

			return
		}
	}

	sub, unsubscribe := b.bus.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "client disconnected")

			return
		case ev, ok := <-sub:
			if !ok {
				return
			}

			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(writeCtx, conn, ev)
			cancel()

			if err != nil {
				b.logger.Debug("events: write failed, closing connection", "error", err)
				conn.Close(websocket.StatusInternalError, "write failed")

				return
			}
		}
	}
}

func portString(port int) string {
	return strconv.Itoa(port)
}
