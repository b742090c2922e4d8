package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"shortscout/internal/model"
)

const (
	defaultFeedURL  = "wss://stream.bybit.com/v5/public/linear"
	feedPingEvery   = 20 * time.Second
	reconnectDelay  = 5 * time.Second
	defaultMaxBars  = 600
	feedReadTimeout = 60 * time.Second
)

// FeedConfig configures the live kline feed.
type FeedConfig struct {
	URL       string // empty = Bybit public linear stream
	Timeframe string // base timeframe, e.g. "5m"
	Symbols   []string
	MaxBars   int // rolling window per symbol
}

// Feed subscribes to the exchange's public kline stream and maintains a
// rolling in-memory Series per symbol on the base timeframe. The scanner
// uses it as a warm path that saves one REST fetch per symbol per cycle;
// when the feed has gaps or is still warming up, callers fall back to REST.
type Feed struct {
	url     string
	spec    TimeframeSpec
	symbols []string
	maxBars int
	retryIn time.Duration

	// OnStateChange is called with true after subscribing and false when
	// the session ends. OnReconnect is called before each retry dial.
	OnStateChange func(connected bool)
	OnReconnect   func()

	mu     sync.RWMutex
	series map[string]model.Series
}

// NewFeed creates a live kline feed for the given symbols.
func NewFeed(cfg FeedConfig) (*Feed, error) {
	spec, err := Spec(cfg.Timeframe)
	if err != nil {
		return nil, err
	}
	url := cfg.URL
	if url == "" {
		url = defaultFeedURL
	}
	maxBars := cfg.MaxBars
	if maxBars <= 0 {
		maxBars = defaultMaxBars
	}
	return &Feed{
		url:     url,
		spec:    spec,
		symbols: cfg.Symbols,
		maxBars: maxBars,
		retryIn: reconnectDelay,
		series:  make(map[string]model.Series),
	}, nil
}

// Series returns a copy of the rolling series for symbol when it is warm
// enough to use: at least minBars bars and a final bar no older than two
// intervals. ok=false means the caller should fetch over REST instead.
func (f *Feed) Series(symbol string, minBars int, now time.Time) (model.Series, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	s := f.series[symbol]
	if len(s) < minBars {
		return nil, false
	}
	staleAfter := time.Duration(2*f.spec.Minutes) * time.Minute
	if now.Sub(s[len(s)-1].TS) > staleAfter {
		return nil, false
	}
	out := make(model.Series, len(s))
	copy(out, s)
	return out, true
}

// Run connects, subscribes, and consumes kline events until ctx is
// cancelled, reconnecting on every failure.
func (f *Feed) Run(ctx context.Context) {
	for {
		if err := f.connectAndConsume(ctx); err != nil {
			log.Printf("[feed] session ended: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(f.retryIn):
		}
		if f.OnReconnect != nil {
			f.OnReconnect()
		}
	}
}

func (f *Feed) connectAndConsume(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("feed dial: %w", err)
	}
	defer conn.Close()

	args := make([]string, len(f.symbols))
	for i, sym := range f.symbols {
		args[i] = "kline." + f.spec.Code + "." + sym
	}
	sub := map[string]interface{}{"op": "subscribe", "args": args}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("feed subscribe: %w", err)
	}
	log.Printf("[feed] connected, subscribed to %d kline topics on %s", len(args), f.spec.Name)

	if f.OnStateChange != nil {
		f.OnStateChange(true)
		defer f.OnStateChange(false)
	}

	// Heartbeat: the stream drops idle connections without pings.
	pingCtx, cancelPing := context.WithCancel(ctx)
	defer cancelPing()
	go func() {
		ticker := time.NewTicker(feedPingEvery)
		defer ticker.Stop()
		for {
			select {
			case <-pingCtx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteJSON(map[string]string{"op": "ping"}); err != nil {
					return
				}
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		conn.SetReadDeadline(time.Now().Add(feedReadTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("feed read: %w", err)
		}
		f.handleMessage(raw)
	}
}

// klineEvent is one push frame of the public kline topic.
type klineEvent struct {
	Topic string `json:"topic"`
	Data  []struct {
		Start   int64  `json:"start"`
		Open    string `json:"open"`
		High    string `json:"high"`
		Low     string `json:"low"`
		Close   string `json:"close"`
		Volume  string `json:"volume"`
		Confirm bool   `json:"confirm"`
	} `json:"data"`
}

func (f *Feed) handleMessage(raw []byte) {
	var ev klineEvent
	if err := json.Unmarshal(raw, &ev); err != nil || len(ev.Data) == 0 {
		return // op acks, pongs, malformed frames
	}
	symbol, ok := symbolFromTopic(ev.Topic)
	if !ok {
		return
	}

	for _, d := range ev.Data {
		bar, err := barFromEvent(d.Start, d.Open, d.High, d.Low, d.Close, d.Volume)
		if err != nil {
			log.Printf("[feed] %s: bad kline frame: %v", symbol, err)
			continue
		}
		f.upsert(symbol, bar)
	}
}

// upsert replaces the forming bar in place or appends a new bucket,
// trimming the window to maxBars.
func (f *Feed) upsert(symbol string, bar model.Bar) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := f.series[symbol]
	switch {
	case len(s) > 0 && s[len(s)-1].TS.Equal(bar.TS):
		s[len(s)-1] = bar
	case len(s) > 0 && bar.TS.Before(s[len(s)-1].TS):
		return // out-of-order frame after reconnect, window already ahead
	default:
		s = append(s, bar)
		if len(s) > f.maxBars {
			s = s[len(s)-f.maxBars:]
		}
	}
	f.series[symbol] = s
}

// symbolFromTopic extracts the symbol from "kline.<code>.<symbol>".
func symbolFromTopic(topic string) (string, bool) {
	for i := len(topic) - 1; i >= 0; i-- {
		if topic[i] == '.' {
			return topic[i+1:], i+1 < len(topic)
		}
	}
	return "", false
}

func barFromEvent(startMs int64, open, high, low, close_, volume string) (model.Bar, error) {
	parse := func(s string) (float64, error) { return strconv.ParseFloat(s, 64) }
	o, err := parse(open)
	if err != nil {
		return model.Bar{}, fmt.Errorf("open %q: %w", open, err)
	}
	h, err := parse(high)
	if err != nil {
		return model.Bar{}, fmt.Errorf("high %q: %w", high, err)
	}
	l, err := parse(low)
	if err != nil {
		return model.Bar{}, fmt.Errorf("low %q: %w", low, err)
	}
	c, err := parse(close_)
	if err != nil {
		return model.Bar{}, fmt.Errorf("close %q: %w", close_, err)
	}
	v, err := parse(volume)
	if err != nil {
		return model.Bar{}, fmt.Errorf("volume %q: %w", volume, err)
	}
	return model.Bar{
		TS:     time.UnixMilli(startMs).UTC(),
		Open:   o,
		High:   h,
		Low:    l,
		Close:  c,
		Volume: v,
	}, nil
}
