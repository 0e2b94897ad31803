package models

import (
	"encoding/json"
	"time"
)

// RegressionType names a hedge-ratio estimator.
type RegressionType string

const (
	RegressionOLS      RegressionType = "ols"
	RegressionKalman   RegressionType = "kalman"
	RegressionHuber    RegressionType = "huber"
	RegressionTheilSen RegressionType = "theilsen"
)

// IsValidRegression reports whether r is a known estimator.
func IsValidRegression(r RegressionType) bool {
	switch r {
	case RegressionOLS, RegressionKalman, RegressionHuber, RegressionTheilSen:
		return true
	}
	return false
}

// NullFloat is a float that encodes as JSON null when not Valid.
type NullFloat struct {
	Value float64
	Valid bool
}

// Some wraps a defined value.
func Some(v float64) NullFloat { return NullFloat{Value: v, Valid: true} }

func (n NullFloat) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

func (n *NullFloat) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*n = NullFloat{}
		return nil
	}
	if err := json.Unmarshal(b, &n.Value); err != nil {
		return err
	}
	n.Valid = true
	return nil
}

// ADFResult is the outcome of an augmented Dickey-Fuller test.
type ADFResult struct {
	Statistic      float64            `json:"statistic"`
	PValue         float64            `json:"pvalue"`
	IsStationary   bool               `json:"is_stationary"`
	Lags           int                `json:"lags"`
	NObs           int                `json:"nobs"`
	CriticalValues map[string]float64 `json:"critical_values"`
}

// SpreadSeries is the spread with its summary statistics.
type SpreadSeries struct {
	Values     []float64   `json:"values"`
	Mean       float64     `json:"mean"`
	Std        float64     `json:"std"`
	Timestamps []time.Time `json:"timestamps"`
}

// ZScoreSeries holds rolling z-scores; entries before the first full window are null.
type ZScoreSeries struct {
	Values  []NullFloat `json:"values"`
	Current NullFloat   `json:"current"`
	Window  int         `json:"window"`
}

// PairAnalytics is one consistent computation for a directed pair.
type PairAnalytics struct {
	SymbolA        string         `json:"symbolA"`
	SymbolB        string         `json:"symbolB"`
	Timeframe      Timeframe      `json:"timeframe"`
	HedgeRatio     float64        `json:"hedge_ratio"`
	Intercept      float64        `json:"intercept"`
	RegressionType RegressionType `json:"regression_type"`
	Spread         SpreadSeries   `json:"spread"`
	ZScore         ZScoreSeries   `json:"zscore"`
	Correlation    float64        `json:"correlation"`
	ADF            *ADFResult     `json:"adf_test"`
	PriceA         float64        `json:"price_a"`
	PriceB         float64        `json:"price_b"`
	ComputedAt     time.Time      `json:"computed_at"`
}

// CorrelationMatrix is symmetric with a unit diagonal.
type CorrelationMatrix struct {
	Symbols   []string                      `json:"symbols"`
	Values    map[string]map[string]float64 `json:"correlation_matrix"`
	Valid     map[string]bool               `json:"valid"`
	Window    int                           `json:"window"`
	UpdatedAt time.Time                     `json:"updated_at"`
}

// Get returns the correlation between x and y (0 when unknown).
func (m *CorrelationMatrix) Get(x, y string) float64 {
	if m == nil {
		return 0
	}
	row, ok := m.Values[x]
	if !ok {
		return 0
	}
	return row[y]
}

// ExportRow is one aligned sample of the CSV export.
type ExportRow struct {
	Timestamp time.Time
	Spread    float64
	ZScore    NullFloat
}
