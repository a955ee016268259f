package market

// Kline is one candlestick as served by the Binance endpoints.
type Kline struct {
	Symbol    string
	OpenTime  int64 // ms
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	CloseTime int64 // ms
	Final     bool  // websocket only: candle is closed
}
