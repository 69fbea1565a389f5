// Package feed implements the inbound feed adapter (§6): start/stop/
// subscribe/unsubscribe over a WebSocket connection, delivering
// events.MarketDataEvent and events.OrderStatusReport to two injected
// delivery functions and raising events.AdapterConnectionStateChanged on
// every connect/disconnect transition. The core (book, fair value, engine)
// never sees the wire format.
//
// Grounded on the teacher's exchange.WSFeed (internal/exchange/ws.go):
// same auto-reconnect-with-exponential-backoff, re-subscribe-on-reconnect,
// read-deadline-triggers-reconnect shape, generalized from Polymarket's
// two fixed channels (market/user) into one adapter per exchange handling
// both market-data and order-report topics, and from typed WS event
// structs into the specification's exchange-agnostic event + connection
// state callbacks.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"hftcore/internal/events"
)

const (
	pingInterval     = 50 * time.Second
	readTimeout      = 90 * time.Second
	maxReconnectWait = 30 * time.Second
	writeTimeout     = 10 * time.Second
)

// MarketDataHandler delivers a parsed market-data event to the distributor.
type MarketDataHandler func(events.MarketDataEvent)

// OrderReportHandler delivers a parsed order-status report to the router.
type OrderReportHandler func(events.OrderStatusReport)

// ConnectionStateHandler is invoked on every connect/disconnect transition.
type ConnectionStateHandler func(events.AdapterConnectionStateChanged)

// Decoder turns a raw WebSocket frame into exactly one of a
// MarketDataEvent or an OrderStatusReport. The core never sees the wire
// format; Decoder is the sole translation point. isMD and isReport are
// both false for frames the decoder recognises but intentionally ignores
// (pings, informational events); err is non-nil only for frames that fail
// to parse.
type Decoder interface {
	Decode(raw []byte) (md events.MarketDataEvent, isMD bool, report events.OrderStatusReport, isReport bool, err error)
	SubscribeMessage(topics []string) (any, error)
	UnsubscribeMessage(topics []string) (any, error)
}

// Adapter is one WebSocket connection to one exchange, carrying both
// market-data and order-report topics.
type Adapter struct {
	url      string
	exchange string
	decoder  Decoder
	logger   *slog.Logger

	connMu sync.Mutex
	conn   *websocket.Conn

	subMu sync.RWMutex
	subs  map[string]struct{}

	onMarketData MarketDataHandler
	onReport     OrderReportHandler
	onState      ConnectionStateHandler
}

// New constructs an Adapter for one exchange. onReport may be nil for a
// market-data-only adapter.
func New(exchange, url string, decoder Decoder, onMarketData MarketDataHandler, onReport OrderReportHandler, onState ConnectionStateHandler, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		url:          url,
		exchange:     exchange,
		decoder:      decoder,
		onMarketData: onMarketData,
		onReport:     onReport,
		onState:      onState,
		subs:         make(map[string]struct{}),
		logger:       logger.With("component", "feed", "exchange", exchange),
	}
}

// Start connects and maintains the connection with auto-reconnect,
// exponential backoff (1s doubling to 30s), and re-subscription of every
// tracked topic on each reconnect. Blocks until ctx is cancelled.
func (a *Adapter) Start(ctx context.Context, symbols []string) error {
	a.Subscribe(ctx, symbols)

	backoff := time.Second
	for {
		err := a.connectAndRead(ctx)
		if ctx.Err() != nil {
			a.raiseState(false, "stopped")
			return ctx.Err()
		}

		a.raiseState(false, err.Error())
		a.logger.Warn("feed disconnected, reconnecting", "error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxReconnectWait {
			backoff = maxReconnectWait
		}
	}
}

// Stop closes the underlying connection; Start's read loop then returns an
// error and, if ctx is not yet cancelled, reconnects.
func (a *Adapter) Stop() error {
	a.connMu.Lock()
	defer a.connMu.Unlock()
	if a.conn != nil {
		return a.conn.Close()
	}
	return nil
}

// Subscribe adds topics and, if connected, sends the subscribe message
// immediately; otherwise they are sent on the next connect.
func (a *Adapter) Subscribe(ctx context.Context, topics []string) error {
	a.subMu.Lock()
	for _, t := range topics {
		a.subs[t] = struct{}{}
	}
	a.subMu.Unlock()

	msg, err := a.decoder.SubscribeMessage(topics)
	if err != nil {
		return err
	}
	return a.writeJSON(msg)
}

// Unsubscribe removes topics and sends the unsubscribe message.
func (a *Adapter) Unsubscribe(ctx context.Context, topics []string) error {
	a.subMu.Lock()
	for _, t := range topics {
		delete(a.subs, t)
	}
	a.subMu.Unlock()

	msg, err := a.decoder.UnsubscribeMessage(topics)
	if err != nil {
		return err
	}
	return a.writeJSON(msg)
}

func (a *Adapter) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, a.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	a.connMu.Lock()
	a.conn = conn
	a.connMu.Unlock()
	defer func() {
		a.connMu.Lock()
		conn.Close()
		a.conn = nil
		a.connMu.Unlock()
	}()

	if err := a.resubscribeAll(); err != nil {
		return fmt.Errorf("resubscribe: %w", err)
	}

	a.raiseState(true, "")
	a.logger.Info("feed connected")

	pingCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go a.pingLoop(pingCtx)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		a.dispatch(msg)
	}
}

func (a *Adapter) resubscribeAll() error {
	a.subMu.RLock()
	topics := make([]string, 0, len(a.subs))
	for t := range a.subs {
		topics = append(topics, t)
	}
	a.subMu.RUnlock()
	if len(topics) == 0 {
		return nil
	}
	msg, err := a.decoder.SubscribeMessage(topics)
	if err != nil {
		return err
	}
	return a.writeJSON(msg)
}

func (a *Adapter) dispatch(raw []byte) {
	md, isMD, report, isReport, err := a.decoder.Decode(raw)
	if err != nil {
		a.logger.Debug("dropping undecodable frame", "error", err)
		return
	}
	if isMD && a.onMarketData != nil {
		a.onMarketData(md)
	}
	if isReport && a.onReport != nil {
		a.onReport(report)
	}
}

func (a *Adapter) raiseState(connected bool, reason string) {
	if a.onState == nil {
		return
	}
	a.onState(events.AdapterConnectionStateChanged{Connected: connected, Exchange: a.exchange, Reason: reason})
}

func (a *Adapter) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.writeMessage(websocket.PingMessage, nil); err != nil {
				a.logger.Warn("ping failed", "error", err)
				return
			}
		}
	}
}

func (a *Adapter) writeJSON(v any) error {
	if v == nil {
		return nil
	}
	a.connMu.Lock()
	defer a.connMu.Unlock()
	if a.conn == nil {
		return nil // queued; resubscribeAll replays on connect
	}
	a.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return a.conn.WriteJSON(v)
}

func (a *Adapter) writeMessage(msgType int, data []byte) error {
	a.connMu.Lock()
	defer a.connMu.Unlock()
	if a.conn == nil {
		return fmt.Errorf("not connected")
	}
	a.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return a.conn.WriteMessage(msgType, data)
}
