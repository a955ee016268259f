package market

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// StreamClient streams klines from the Binance public websocket. It is the
// native push source a push-mode feed delegates to.
type StreamClient struct {
	StreamURL string
	dialer    *websocket.Dialer
}

// NewStreamClient builds a websocket client; testnet toggles the host.
func NewStreamClient(testnet bool) *StreamClient {
	host := "stream.binance.com:9443"
	if testnet {
		host = "testnet.binance.vision"
	}
	return &StreamClient{
		StreamURL: (&url.URL{Scheme: "wss", Host: host, Path: "/ws"}).String(),
		dialer:    websocket.DefaultDialer,
	}
}

// SubscribeKlines listens to the kline stream and invokes fn per parsed
// candle until the stream ends or ctx is canceled.
func (c *StreamClient) SubscribeKlines(ctx context.Context, symbol, interval string, fn func(Kline)) error {
	// Binance requires lowercase symbols for websocket streams.
	stream := fmt.Sprintf("%s@kline_%s", strings.ToLower(symbol), interval)
	u := fmt.Sprintf("%s/%s", c.StreamURL, stream)

	conn, _, err := c.dialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("dial binance ws: %w", err)
	}

	var once sync.Once
	closeConn := func() {
		once.Do(func() {
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = conn.Close()
		})
	}
	defer closeConn()

	go func() {
		<-ctx.Done()
		closeConn()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			// Connection closed by caller/context: exit quietly.
			if ctx.Err() != nil ||
				websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
				strings.Contains(err.Error(), "use of closed network connection") {
				return ctx.Err()
			}
			return fmt.Errorf("binance ws read: %w", err)
		}

		parsed, err := parseKlineMessage(msg)
		if err != nil {
			log.Printf("binance ws parse error: %v", err)
			continue
		}
		fn(parsed)
	}
}

// parseKlineMessage decodes only the fields the feed needs.
func parseKlineMessage(msg []byte) (Kline, error) {
	var raw struct {
		Data struct {
			StartTime int64  `json:"t"`
			CloseTime int64  `json:"T"`
			Symbol    string `json:"s"`
			Final     bool   `json:"x"`
			Open      any    `json:"o"`
			Close     any    `json:"c"`
			High      any    `json:"h"`
			Low       any    `json:"l"`
			Volume    any    `json:"v"`
		} `json:"k"`
	}
	if err := json.Unmarshal(msg, &raw); err != nil {
		return Kline{}, err
	}
	k := raw.Data
	return Kline{
		Symbol:    k.Symbol,
		OpenTime:  k.StartTime,
		Open:      toFloat(k.Open),
		High:      toFloat(k.High),
		Low:       toFloat(k.Low),
		Close:     toFloat(k.Close),
		Volume:    toFloat(k.Volume),
		CloseTime: k.CloseTime,
		Final:     k.Final,
	}, nil
}
