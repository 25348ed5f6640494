package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
)

// Conn is the subset of *dbus.Conn the client drives.
type Conn interface {
	Object(dest string, path dbus.ObjectPath) dbus.BusObject
	AddMatchSignal(options ...dbus.MatchOption) error
	Signal(ch chan<- *dbus.Signal)
	Context() context.Context
	Close() error
}

// Dialer opens a fresh bus connection.
type Dialer func() (Conn, error)

// SessionDialer connects to the user's session bus.
func SessionDialer() (Conn, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Client owns one logical connection to the daemon. Calls are asynchronous;
// events are dispatched in receive order on a single goroutine.
type Client struct {
	cfg    Config
	logger *slog.Logger
	dial   Dialer

	mu   sync.RWMutex
	conn Conn

	hmu       sync.RWMutex
	handlers  map[string][]Handler
	onConnect []func()
}

// NewClient builds a client. A nil dialer uses SessionDialer.
func NewClient(cfg Config, logger *slog.Logger, dial Dialer) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if dial == nil {
		dial = SessionDialer
	}
	return &Client{
		cfg:      cfg.withDefaults(),
		logger:   logger,
		dial:     dial,
		handlers: make(map[string][]Handler),
	}
}

// Subscribe registers h for events named name.
func (c *Client) Subscribe(name string, h Handler) {
	if h == nil {
		return
	}
	c.hmu.Lock()
	defer c.hmu.Unlock()
	c.handlers[name] = append(c.handlers[name], h)
}

// OnConnect registers fn to run on the dispatcher goroutine after every
// successful (re)connect, before any signal of that connection is dispatched.
func (c *Client) OnConnect(fn func()) {
	if fn == nil {
		return
	}
	c.hmu.Lock()
	defer c.hmu.Unlock()
	c.onConnect = append(c.onConnect, fn)
}

// Connected reports whether a bus connection is currently established.
func (c *Client) Connected() bool {
	return c.current() != nil
}

// Run keeps the bus connection alive until ctx is cancelled, reconnecting
// after ReconnectDelay whenever it drops.
func (c *Client) Run(ctx context.Context) error {
	for {
		conn, err := c.dial()
		if err != nil {
			c.logger.Warn("session bus connect failed", "error", err.Error())
		} else {
			lost := c.serve(ctx, conn)
			c.setConn(nil)
			_ = conn.Close()
			if ctx.Err() != nil {
				return nil
			}
			if lost {
				c.logger.Warn("session bus connection lost")
				c.emit(Event{Name: EventServiceLost, Text: "bus connection lost"})
			}
		}

		timer := time.NewTimer(c.cfg.ReconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// serve subscribes conn and dispatches its signals until it closes or ctx
// ends. It reports whether the connection was lost.
func (c *Client) serve(ctx context.Context, conn Conn) bool {
	signals := make(chan *dbus.Signal, 64)
	conn.Signal(signals)

	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(dbus.ObjectPath(c.cfg.Path)),
		dbus.WithMatchInterface(c.cfg.Interface),
	); err != nil {
		c.logger.Error("subscribe daemon signals failed", "error", err.Error())
		return true
	}
	if err := conn.AddMatchSignal(
		dbus.WithMatchSender("org.freedesktop.DBus"),
		dbus.WithMatchInterface("org.freedesktop.DBus"),
		dbus.WithMatchMember("NameOwnerChanged"),
		dbus.WithMatchArg(0, c.cfg.Service),
	); err != nil {
		c.logger.Warn("watch daemon name owner failed", "error", err.Error())
	}

	c.setConn(conn)
	c.logger.Info("session bus connected", "service", c.cfg.Service)
	c.hmu.RLock()
	hooks := append([]func(){}, c.onConnect...)
	c.hmu.RUnlock()
	for _, hook := range hooks {
		hook()
	}

	for {
		select {
		case <-ctx.Done():
			return false
		case <-conn.Context().Done():
			return true
		case sig, ok := <-signals:
			if !ok {
				return true
			}
			event, ok := c.decode(sig)
			if !ok {
				continue
			}
			c.emit(event)
		}
	}
}

func (c *Client) emit(event Event) {
	c.hmu.RLock()
	handlers := append([]Handler(nil), c.handlers[event.Name]...)
	c.hmu.RUnlock()
	for _, h := range handlers {
		h(event)
	}
}

// Call issues op asynchronously. The returned channel receives exactly one
// Outcome and is never closed without one.
func (c *Client) Call(ctx context.Context, op Op, args ...any) <-chan Outcome {
	out := make(chan Outcome, 1)
	conn := c.current()
	if conn == nil {
		out <- Outcome{Op: op, Err: &Failure{Kind: ConnectionLost, Op: op, Err: ErrNotConnected}}
		return out
	}

	go func() {
		out <- c.invoke(ctx, conn, op, args...)
	}()
	return out
}

func (c *Client) invoke(ctx context.Context, conn Conn, op Op, args ...any) Outcome {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	obj := conn.Object(c.cfg.Service, dbus.ObjectPath(c.cfg.Path))
	call := obj.CallWithContext(callCtx, c.cfg.Interface+"."+string(op), 0, args...)
	if call.Err != nil {
		return Outcome{Op: op, Err: classify(op, call.Err)}
	}

	result := Outcome{Op: op}
	if op == OpGetStatus {
		if err := call.Store(&result.Active); err != nil {
			return Outcome{Op: op, Err: &Failure{Kind: RemoteRejected, Op: op, Err: fmt.Errorf("decode status reply: %w", err)}}
		}
	}
	return result
}

func (c *Client) current() Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

func (c *Client) setConn(conn Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
}

// Status dials a short-lived connection and asks the daemon whether it is
// recording. It is used by one-shot commands that do not run the client.
func Status(ctx context.Context, cfg Config, dial Dialer) (bool, error) {
	cfg = cfg.withDefaults()
	if dial == nil {
		dial = SessionDialer
	}
	conn, err := dial()
	if err != nil {
		return false, &Failure{Kind: ConnectionLost, Op: OpGetStatus, Err: err}
	}
	defer conn.Close()

	c := &Client{cfg: cfg, logger: slog.New(slog.DiscardHandler)}
	outcome := c.invoke(ctx, conn, OpGetStatus)
	return outcome.Active, outcome.Err
}
