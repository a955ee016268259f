package strategy

import (
	"fmt"
	"log"

	"backtest-core/internal/engine"
	"backtest-core/internal/indicators"
	"backtest-core/internal/ledger"
)

// RSIReversion buys oversold dips and exits once momentum recovers.
type RSIReversion struct {
	id         string
	symbol     string
	period     int
	oversold   float64
	overbought float64
	size       float64

	window *indicators.Window
	long   bool
}

func NewRSIReversion(id, symbol string, period int, oversold, overbought, size float64) *RSIReversion {
	if period <= 0 {
		period = 14
	}
	if oversold <= 0 || oversold >= 100 {
		oversold = 30
	}
	if overbought <= oversold || overbought >= 100 {
		overbought = 70
	}
	if size <= 0 {
		size = 0.001
	}
	return &RSIReversion{
		id:         id,
		symbol:     symbol,
		period:     period,
		oversold:   oversold,
		overbought: overbought,
		size:       size,
		window:     indicators.NewWindow(period + 1),
	}
}

func (s *RSIReversion) ID() string { return s.id }

func (s *RSIReversion) Name() string {
	return fmt.Sprintf("rsi_%d_%.0f_%.0f", s.period, s.oversold, s.overbought)
}

func (s *RSIReversion) OnTick(ex engine.Exchange, t engine.Ticker) error {
	if t.Symbol != s.symbol {
		return nil
	}
	s.window.Push(t.Close)
	if !s.window.Full() {
		return nil
	}

	rsi := indicators.RSI(s.window.Values(), s.period)
	switch {
	case rsi <= s.oversold && !s.long:
		o, err := ex.CreateOrder(s.symbol, ledger.TypeMarket, ledger.SideBuy, s.size, 0, engine.OrderParams{})
		if err != nil {
			return err
		}
		if o.IsRejected() {
			log.Printf("%s: buy rejected: %s", s.Name(), o.Error)
			return nil
		}
		s.long = true
	case rsi >= s.overbought && s.long:
		o, err := ex.CreateOrder(s.symbol, ledger.TypeMarket, ledger.SideSell, s.size, 0, engine.OrderParams{ReduceOnly: true})
		if err != nil {
			return err
		}
		if o.IsRejected() {
			log.Printf("%s: sell rejected: %s", s.Name(), o.Error)
			return nil
		}
		s.long = false
	}
	return nil
}

func (s *RSIReversion) OnOrderChange(ex engine.Exchange, o ledger.Order) error {
	if o.Status == ledger.StatusCanceled && o.ReduceOnly {
		s.long = false
	}
	return nil
}

func (s *RSIReversion) OnTickEnd(engine.Exchange, engine.Ticker) error { return nil }
