// Package scenario loads backtest scenario definitions from YAML.
package scenario

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"backtest-core/internal/ledger"
)

// Scenario describes one backtest run.
type Scenario struct {
	Name         string  `yaml:"name"`
	Symbol       string  `yaml:"symbol"`
	TimeframeMin int     `yaml:"timeframe_min"`
	Start        string  `yaml:"start"` // RFC3339 or empty
	End          string  `yaml:"end"`
	Engine       string  `yaml:"engine"` // "sync" or "async"
	Balance      float64 `yaml:"balance"`

	Leverage       float64 `yaml:"leverage"`
	MakerFee       float64 `yaml:"maker_fee"`
	TakerFee       float64 `yaml:"taker_fee"`
	Spread         float64 `yaml:"spread"`
	PricePrecision int     `yaml:"price_precision"`
	ContractSize   float64 `yaml:"contract_size"`
	HedgeMode      bool    `yaml:"hedge_mode"`

	Strategy struct {
		Type       string         `yaml:"type"`
		Parameters map[string]any `yaml:"parameters"`
	} `yaml:"strategy"`
}

// File is the top-level YAML structure.
type File struct {
	Scenarios []Scenario `yaml:"scenarios"`
}

// Load reads scenarios from a YAML file.
func Load(path string) ([]Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file File
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse scenario file %s: %w", path, err)
	}
	for i := range file.Scenarios {
		if err := file.Scenarios[i].validate(); err != nil {
			return nil, fmt.Errorf("scenario %d: %w", i, err)
		}
	}
	return file.Scenarios, nil
}

func (s *Scenario) validate() error {
	if s.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if s.TimeframeMin <= 0 {
		return fmt.Errorf("timeframe_min must be positive")
	}
	if s.Balance < 0 {
		return fmt.Errorf("balance must not be negative")
	}
	if _, err := s.StartTime(); err != nil {
		return err
	}
	if _, err := s.EndTime(); err != nil {
		return err
	}
	return nil
}

// LedgerConfig maps the scenario onto a cart config.
func (s *Scenario) LedgerConfig() ledger.Config {
	return ledger.Config{
		Leverage:       s.Leverage,
		MakerFee:       s.MakerFee,
		TakerFee:       s.TakerFee,
		Spread:         s.Spread,
		PricePrecision: s.PricePrecision,
		ContractSize:   s.ContractSize,
		HedgeMode:      s.HedgeMode,
	}
}

// StartTime returns the range start in unix ms (0 when unset).
func (s *Scenario) StartTime() (int64, error) {
	return parseTime(s.Start)
}

// EndTime returns the range end in unix ms (0 when unset).
func (s *Scenario) EndTime() (int64, error) {
	return parseTime(s.End)
}

func parseTime(v string) (int64, error) {
	if v == "" {
		return 0, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: %w", v, err)
	}
	return t.UnixMilli(), nil
}
