package strategy

import (
	"fmt"
	"log"

	"backtest-core/internal/engine"
	"backtest-core/internal/indicators"
	"backtest-core/internal/ledger"
)

// MACross is a simple moving-average crossover strategy used to exercise the
// replay loop end to end: long on a golden cross, flat on a death cross.
type MACross struct {
	id         string
	symbol     string
	fastPeriod int
	slowPeriod int
	size       float64

	window *indicators.Window
	long   bool
}

func NewMACross(id, symbol string, fastPeriod, slowPeriod int, size float64) *MACross {
	if fastPeriod <= 0 {
		fastPeriod = 10
	}
	if slowPeriod <= fastPeriod {
		slowPeriod = fastPeriod * 3
	}
	if size <= 0 {
		size = 0.001
	}
	return &MACross{
		id:         id,
		symbol:     symbol,
		fastPeriod: fastPeriod,
		slowPeriod: slowPeriod,
		size:       size,
		window:     indicators.NewWindow(slowPeriod),
	}
}

func (s *MACross) ID() string { return s.id }

func (s *MACross) Name() string {
	return fmt.Sprintf("ma_cross_%d_%d", s.fastPeriod, s.slowPeriod)
}

func (s *MACross) OnTick(ex engine.Exchange, t engine.Ticker) error {
	if t.Symbol != s.symbol {
		return nil
	}
	s.window.Push(t.Close)
	if !s.window.Full() {
		return nil
	}

	values := s.window.Values()
	fast := indicators.SMA(values, s.fastPeriod)
	slow := indicators.SMA(values, s.slowPeriod)
	switch {
	case fast > slow && !s.long:
		o, err := ex.CreateOrder(s.symbol, ledger.TypeMarket, ledger.SideBuy, s.size, 0, engine.OrderParams{})
		if err != nil {
			return err
		}
		if o.IsRejected() {
			log.Printf("%s: buy rejected: %s", s.Name(), o.Error)
			return nil
		}
		s.long = true
	case fast < slow && s.long:
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

func (s *MACross) OnOrderChange(ex engine.Exchange, o ledger.Order) error {
	if o.Status == ledger.StatusCanceled && o.ReduceOnly {
		// Position was already flat; resync our view.
		s.long = false
	}
	return nil
}

func (s *MACross) OnTickEnd(engine.Exchange, engine.Ticker) error { return nil }
