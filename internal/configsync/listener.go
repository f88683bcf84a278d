package configsync

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/canmogol/archura-router/internal/config"
	"github.com/canmogol/archura-router/internal/logging"
)

// EventType classifies what happened on the notification connection.
type EventType int

const (
	// EventConnected fires after every successful (re)connect.
	EventConnected EventType = iota
	// EventMessage carries a text frame pushed by the server.
	EventMessage
	// EventDisconnected fires when the connection is lost.
	EventDisconnected
)

// Event is a single occurrence on the notification connection.
type Event struct {
	Type    EventType
	Message string
}

// Listener maintains a websocket connection to the notification server
// and emits typed events. It reconnects forever until its context is
// canceled; the server being down never takes the router down.
type Listener struct {
	store  *config.Store
	events chan<- Event
}

// NewListener creates a listener publishing into events.
func NewListener(store *config.Store, events chan<- Event) *Listener {
	return &Listener{store: store, events: events}
}

// Run connects, reads until failure, waits the retry interval and
// reconnects. It returns when ctx is canceled.
func (l *Listener) Run(ctx context.Context) {
	for {
		snapshot := l.store.Snapshot()
		interval := time.Duration(snapshot.NotificationServerRetryInterval) * time.Millisecond
		if interval <= 0 {
			interval = 10 * time.Second
		}

		if err := l.session(ctx, snapshot, interval); err != nil {
			logging.Warn("notification server connection lost", zap.Error(err))
			l.emit(ctx, Event{Type: EventDisconnected})
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// session dials, announces the connect and reads frames until the
// connection breaks or ctx is canceled.
func (l *Listener) session(ctx context.Context, snapshot *config.GlobalConfig, interval time.Duration) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: time.Duration(snapshot.NotificationServerConnectionTimeout) * time.Millisecond,
	}
	headers := http.Header{}
	for name, value := range snapshot.NotificationServerRequestHeaders {
		headers.Set(name, value)
	}

	conn, _, err := dialer.DialContext(ctx, snapshot.NotificationServerURL, headers)
	if err != nil {
		return err
	}
	defer conn.Close()

	logging.Info("connected to notification server", zap.String("url", snapshot.NotificationServerURL))
	l.emit(ctx, Event{Type: EventConnected})

	// Periodic pings double as the liveness probe: a broken link
	// surfaces as a write error and triggers the reconnect.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				conn.Close()
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(interval)); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if messageType != websocket.TextMessage {
			continue
		}
		l.emit(ctx, Event{Type: EventMessage, Message: string(payload)})
	}
}

func (l *Listener) emit(ctx context.Context, event Event) {
	select {
	case l.events <- event:
	case <-ctx.Done():
	}
}
