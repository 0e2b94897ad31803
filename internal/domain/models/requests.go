package models

// Requests for HTTP endpoints. Defined in domain for consistency and reuse.

type ComputeAnalyticsRequest struct {
	SymbolA        string `json:"symbolA" validate:"required"`
	SymbolB        string `json:"symbolB" validate:"required,nefield=SymbolA"`
	Timeframe      string `json:"timeframe" default:"1m" validate:"oneof=1s 1m 5m"`
	RegressionType string `json:"regressionType" default:"ols" validate:"oneof=ols kalman huber theilsen"`
	Window         int    `json:"window" validate:"gte=0,lte=1000"`
}

type ADFTestRequest struct {
	SymbolA        string `json:"symbolA" validate:"required"`
	SymbolB        string `json:"symbolB" validate:"required,nefield=SymbolA"`
	Timeframe      string `json:"timeframe" default:"1m" validate:"oneof=1s 1m 5m"`
	RegressionType string `json:"regressionType" default:"ols" validate:"oneof=ols kalman huber theilsen"`
}

type ExportRequest struct {
	SymbolA   string `query:"symbolA" validate:"required"`
	SymbolB   string `query:"symbolB" validate:"required,nefield=SymbolA"`
	Format    string `query:"format" default:"csv" validate:"oneof=csv"`
	Timeframe string `query:"timeframe" default:"1m" validate:"oneof=1s 1m 5m"`
}

type BarsRequest struct {
	Symbol string `query:"symbol" validate:"required"`
	TF     string `query:"tf" default:"1m" validate:"oneof=1s 1m 5m"`
	N      int    `query:"n" default:"100" validate:"gte=1,lte=5000"`
}

type CreateAlertRequest struct {
	Name       string  `json:"name" validate:"required,max=128"`
	Metric     string  `json:"metric" validate:"required,oneof=zscore spread price correlation"`
	Operator   string  `json:"operator" validate:"required,oneof=> < >= <= =="`
	Threshold  float64 `json:"threshold"`
	SymbolPair string  `json:"symbol_pair" validate:"required"`
	Enabled    *bool   `json:"enabled"`
}

type ToggleAlertRequest struct {
	ID      string `param:"id" validate:"required"`
	Enabled bool   `json:"enabled"`
}

type AlertIDRequest struct {
	ID string `param:"id" validate:"required"`
}
