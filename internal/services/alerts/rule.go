// Package alerts compiles operator rules and evaluates them edge-triggered
// against live metric values.
package alerts

import (
	"fmt"
	"math"
	"strings"

	"PairPulse/internal/domain/errs"
	"PairPulse/internal/domain/models"
)

// EqualTolerance is the absolute tolerance used by the == operator.
const EqualTolerance = 1e-9

type Metric uint8

const (
	MetricZScore Metric = iota + 1
	MetricSpread
	MetricPrice
	MetricCorrelation
)

var metricNames = map[string]Metric{
	"zscore":      MetricZScore,
	"spread":      MetricSpread,
	"price":       MetricPrice,
	"correlation": MetricCorrelation,
}

func (m Metric) String() string {
	for name, v := range metricNames {
		if v == m {
			return name
		}
	}
	return "unknown"
}

// ParseMetric maps a wire name onto a Metric.
func ParseMetric(s string) (Metric, error) {
	m, ok := metricNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, errs.InvalidRequest("alerts.compile", fmt.Sprintf("unknown metric %q", s))
	}
	return m, nil
}

type Operator uint8

const (
	OpGreater Operator = iota + 1
	OpLess
	OpGreaterEqual
	OpLessEqual
	OpEqual
)

var operatorNames = map[string]Operator{
	">":  OpGreater,
	"<":  OpLess,
	">=": OpGreaterEqual,
	"<=": OpLessEqual,
	"==": OpEqual,
}

func (o Operator) String() string {
	for name, v := range operatorNames {
		if v == o {
			return name
		}
	}
	return "?"
}

// ParseOperator maps a wire operator onto an Operator.
func ParseOperator(s string) (Operator, error) {
	o, ok := operatorNames[strings.TrimSpace(s)]
	if !ok {
		return 0, errs.InvalidRequest("alerts.compile", fmt.Sprintf("unknown operator %q", s))
	}
	return o, nil
}

// Holds reports whether value op threshold is true.
func (o Operator) Holds(value, threshold float64) bool {
	switch o {
	case OpGreater:
		return value > threshold
	case OpLess:
		return value < threshold
	case OpGreaterEqual:
		return value >= threshold
	case OpLessEqual:
		return value <= threshold
	case OpEqual:
		return math.Abs(value-threshold) <= EqualTolerance
	}
	return false
}

// Rule is the compiled form of models.AlertRule.
type Rule struct {
	Source    models.AlertRule
	Metric    Metric
	Op        Operator
	Threshold float64
	// First and Second keep the order the operator wrote; Second is empty
	// for single-symbol price rules.
	First  string
	Second string
}

// Compile validates the textual rule and resolves it into closed enums.
func Compile(r models.AlertRule) (*Rule, error) {
	metric, err := ParseMetric(r.Metric)
	if err != nil {
		return nil, err
	}
	op, err := ParseOperator(r.Operator)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(r.Threshold) || math.IsInf(r.Threshold, 0) {
		return nil, errs.InvalidRequest("alerts.compile", "threshold must be finite")
	}
	first, second, err := models.ParseSymbolPair(r.SymbolPair)
	if err != nil {
		return nil, errs.InvalidRequest("alerts.compile", err.Error())
	}
	if second == "" && metric != MetricPrice {
		return nil, errs.InvalidRequest("alerts.compile", fmt.Sprintf("metric %s needs a symbol pair", metric))
	}
	return &Rule{
		Source:    r,
		Metric:    metric,
		Op:        op,
		Threshold: r.Threshold,
		First:     first,
		Second:    second,
	}, nil
}

// Symbols lists the symbols the rule reads.
func (r *Rule) Symbols() []string {
	if r.Second == "" {
		return []string{r.First}
	}
	return []string{r.First, r.Second}
}

// IsPair reports whether the rule needs pair analytics.
func (r *Rule) IsPair() bool {
	return r.Metric == MetricZScore || r.Metric == MetricSpread || r.Metric == MetricCorrelation
}

func (r *Rule) subject() string {
	if r.Second == "" {
		return r.First
	}
	return r.First + "/" + r.Second
}
