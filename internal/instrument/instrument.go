// Package instrument implements InstrumentRepository (§6): a read-only,
// CSV-backed lookup keyed by instrument_id and by (symbol, product_type,
// exchange), exposing tick size, lot size, contract multiplier, base/quote
// currencies, and product type. Loaded once at startup; never polled.
//
// encoding/csv is used deliberately: no third-party CSV parser appears
// anywhere in the retrieved pack, so the standard library is the grounded
// choice here (see DESIGN.md).
package instrument

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/shopspring/decimal"

	"hftcore/pkg/fixedpoint"
)

// ProductType distinguishes the instrument's market structure.
type ProductType string

const (
	Spot       ProductType = "spot"
	Perp       ProductType = "perp"
	Future     ProductType = "future"
	Prediction ProductType = "prediction"
)

// Instrument is one row of the static instrument table.
type Instrument struct {
	InstrumentID          string
	Market                string // exchange/venue
	Symbol                string
	Type                  ProductType
	BaseCurrency          string
	QuoteCurrency         string
	MinimumPriceVariation fixedpoint.TickSize
	LotSize               decimal.Decimal
	ContractMultiplier    decimal.Decimal
	MinimumOrderSize      decimal.Decimal
}

type symbolKey struct {
	symbol  string
	product ProductType
	market  string
}

// Repository is the read-only lookup, built once via Load.
type Repository struct {
	byID     map[string]Instrument
	bySymbol map[symbolKey]Instrument
}

// Load parses a CSV with the header
// instrument_id,market,symbol,type,base_currency,quote_currency,minimum_price_variation,lot_size,contract_multiplier,minimum_order_size
// (§9) into a Repository.
func Load(r io.Reader) (*Repository, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 10

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("instrument: read header: %w", err)
	}
	if err := validateHeader(header); err != nil {
		return nil, err
	}

	repo := &Repository{
		byID:     make(map[string]Instrument),
		bySymbol: make(map[symbolKey]Instrument),
	}

	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("instrument: read row: %w", err)
		}
		inst, err := parseRow(record)
		if err != nil {
			return nil, err
		}
		repo.byID[inst.InstrumentID] = inst
		repo.bySymbol[symbolKey{symbol: inst.Symbol, product: inst.Type, market: inst.Market}] = inst
	}

	return repo, nil
}

var wantHeader = []string{
	"instrument_id", "market", "symbol", "type", "base_currency", "quote_currency",
	"minimum_price_variation", "lot_size", "contract_multiplier", "minimum_order_size",
}

func validateHeader(got []string) error {
	if len(got) != len(wantHeader) {
		return fmt.Errorf("instrument: header has %d columns, want %d", len(got), len(wantHeader))
	}
	for i, col := range wantHeader {
		if got[i] != col {
			return fmt.Errorf("instrument: header column %d = %q, want %q", i, got[i], col)
		}
	}
	return nil
}

func parseRow(r []string) (Instrument, error) {
	tick, err := decimal.NewFromString(r[6])
	if err != nil {
		return Instrument{}, fmt.Errorf("instrument: parse minimum_price_variation %q: %w", r[6], err)
	}
	lot, err := decimal.NewFromString(r[7])
	if err != nil {
		return Instrument{}, fmt.Errorf("instrument: parse lot_size %q: %w", r[7], err)
	}
	mult, err := decimal.NewFromString(r[8])
	if err != nil {
		return Instrument{}, fmt.Errorf("instrument: parse contract_multiplier %q: %w", r[8], err)
	}
	minOrder, err := decimal.NewFromString(r[9])
	if err != nil {
		return Instrument{}, fmt.Errorf("instrument: parse minimum_order_size %q: %w", r[9], err)
	}

	return Instrument{
		InstrumentID:          r[0],
		Market:                r[1],
		Symbol:                r[2],
		Type:                  ProductType(r[3]),
		BaseCurrency:          r[4],
		QuoteCurrency:         r[5],
		MinimumPriceVariation: fixedpoint.NewTickSize(tick),
		LotSize:               lot,
		ContractMultiplier:    mult,
		MinimumOrderSize:      minOrder,
	}, nil
}

// ByID looks up an instrument by its instrument_id.
func (r *Repository) ByID(instrumentID string) (Instrument, bool) {
	inst, ok := r.byID[instrumentID]
	return inst, ok
}

// BySymbol looks up an instrument by (symbol, product_type, market/exchange).
func (r *Repository) BySymbol(symbol string, product ProductType, market string) (Instrument, bool) {
	inst, ok := r.bySymbol[symbolKey{symbol: symbol, product: product, market: market}]
	return inst, ok
}

// Len returns the number of loaded instruments.
func (r *Repository) Len() int { return len(r.byID) }
