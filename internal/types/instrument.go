package types

// CurrencyCategory buckets an instrument's quote currency for the
// approximate margin conversion used by the simulated venue. The rates are
// deliberately coarse; see venue.CategoryRates.
type CurrencyCategory string

const (
	CurrencyCategoryAccount CurrencyCategory = "account"
	CurrencyCategoryMajor   CurrencyCategory = "major"
	CurrencyCategoryJPY     CurrencyCategory = "jpy"
	CurrencyCategoryExotic  CurrencyCategory = "exotic"
	CurrencyCategoryCrypto  CurrencyCategory = "crypto"
)

// InstrumentInfo is the read-only runtime metadata for one instrument.
// Loaded once per instrument before replay starts and never mutated during
// replay.
type InstrumentInfo struct {
	Symbol string `yaml:"symbol" json:"symbol" validate:"required"`
	// PointSize is the smallest quote increment (e.g. 0.00001 for EURUSD).
	PointSize float64 `yaml:"point_size" json:"point_size" validate:"gt=0"`
	// Digits is the quote precision in decimal places.
	Digits int `yaml:"digits" json:"digits" validate:"gte=0"`
	// TickValue is the account-currency value of one TickSize move per lot.
	TickValue float64 `yaml:"tick_value" json:"tick_value" validate:"gt=0"`
	TickSize  float64 `yaml:"tick_size" json:"tick_size" validate:"gt=0"`
	LotStep   float64 `yaml:"lot_step" json:"lot_step" validate:"gt=0"`
	MinLot    float64 `yaml:"min_lot" json:"min_lot" validate:"gt=0"`
	MaxLot    float64 `yaml:"max_lot" json:"max_lot" validate:"gt=0"`
	// ContractSize is the deliverable amount of one lot.
	ContractSize float64 `yaml:"contract_size" json:"contract_size" validate:"gt=0"`
	// SpreadPoints is the fixed bid/ask spread in points.
	SpreadPoints float64 `yaml:"spread_points" json:"spread_points" validate:"gte=0"`
	// StopsLevelPoints is the minimum distance between price and SL/TP in points.
	StopsLevelPoints float64 `yaml:"stops_level_points" json:"stops_level_points" validate:"gte=0"`
	// QuoteCategory buckets the quote currency for margin conversion.
	QuoteCategory CurrencyCategory `yaml:"quote_category" json:"quote_category"`
	// TradeAllowed is false when the venue refuses orders on this instrument.
	TradeAllowed bool `yaml:"trade_allowed" json:"trade_allowed"`
}

// Point converts a count of points to a price delta.
func (i InstrumentInfo) Point(points float64) float64 {
	return points * i.PointSize
}

// ClampVolume snaps a requested volume onto the instrument's lot grid.
// Returns the snapped volume; callers still reject volumes outside
// [MinLot, MaxLot].
func (i InstrumentInfo) ClampVolume(volume float64) float64 {
	if i.LotStep <= 0 {
		return volume
	}

	steps := int64(volume/i.LotStep + 0.5)

	return float64(steps) * i.LotStep
}
