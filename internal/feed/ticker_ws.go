// Package feed streams price ticks from an upstream WebSocket source into
// the price observation port, where the engine reads them at round
// transitions.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oddsworks/parimutuel/internal/domain"
)

const (
	reconnectDelay = 2 * time.Second
	readTimeout    = 30 * time.Second
	writeTimeout   = 10 * time.Second
)

// tickMessage is the upstream wire shape: one price tick per message.
type tickMessage struct {
	Feed      string `json:"feed"`
	Price     string `json:"price"`
	Timestamp string `json:"timestamp"`
}

// subscribeMessage is sent once per connection.
type subscribeMessage struct {
	Op    string   `json:"op"`
	Feeds []string `json:"feeds"`
}

// TickerFeed connects to the upstream tick WebSocket, subscribes to the
// configured feeds, and publishes each tick as an observation. It reconnects
// with a fixed delay on disconnect.
type TickerFeed struct {
	wsURL     string
	feeds     []string
	sink      domain.PriceSource
	logger    *slog.Logger
	closeOnce sync.Once
	done      chan struct{}
}

// NewTickerFeed creates a feed that will subscribe to the given feed keys.
func NewTickerFeed(wsURL string, feeds []string, sink domain.PriceSource, logger *slog.Logger) *TickerFeed {
	return &TickerFeed{
		wsURL:  wsURL,
		feeds:  feeds,
		sink:   sink,
		logger: logger.With(slog.String("component", "ticker_feed")),
		done:   make(chan struct{}),
	}
}

// Run connects and consumes ticks until ctx is cancelled or Close is called.
func (f *TickerFeed) Run(ctx context.Context) error {
	if len(f.feeds) == 0 {
		f.logger.Info("no feeds to subscribe, exiting")
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		err := f.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("tick feed disconnected, reconnecting", slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case <-time.After(reconnectDelay):
		}
	}
}

func (f *TickerFeed) runConnection(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, f.wsURL, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("feed: dial %s: %w", f.wsURL, err)
	}
	defer conn.Close()

	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(subscribeMessage{Op: "subscribe", Feeds: f.feeds}); err != nil {
		return fmt.Errorf("feed: subscribe: %w", err)
	}
	f.logger.Info("tick feed subscribed", slog.Int("feeds", len(f.feeds)))

	// Close the socket when the context ends so ReadMessage unblocks.
	go func() {
		select {
		case <-ctx.Done():
		case <-f.done:
		}
		_ = conn.Close()
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("feed: read: %w", err)
		}
		if err := f.handleTick(ctx, data); err != nil {
			f.logger.Debug("tick dropped",
				slog.String("error", err.Error()),
				slog.Int("payload_len", len(data)),
			)
		}
	}
}

func (f *TickerFeed) handleTick(ctx context.Context, data []byte) error {
	var tick tickMessage
	if err := json.Unmarshal(data, &tick); err != nil {
		return err
	}
	if tick.Feed == "" {
		return nil
	}

	price, err := parsePrice(tick.Price)
	if err != nil {
		return err
	}

	observedAt := time.Now().UTC()
	if tick.Timestamp != "" {
		if t, err := time.Parse(time.RFC3339Nano, tick.Timestamp); err == nil {
			observedAt = t.UTC()
		}
	}

	return f.sink.Publish(ctx, tick.Feed, domain.Observation{
		Price:      price,
		ObservedAt: observedAt,
	})
}

// parsePrice converts an upstream decimal price string to the fixed internal
// scale.
func parsePrice(s string) (int64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("feed: parse price %q: %w", s, err)
	}
	scaled := math.Round(v * domain.PriceScale)
	if math.IsNaN(scaled) || scaled > math.MaxInt64 || scaled < math.MinInt64 {
		return 0, fmt.Errorf("feed: price %q out of range", s)
	}
	return int64(scaled), nil
}

// Close stops the feed.
func (f *TickerFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}
