// Package errs defines the typed failures surfaced by the analytics core.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an analytics failure.
type Kind string

const (
	KindInvalidTick         Kind = "InvalidTick"
	KindInsufficientData    Kind = "InsufficientData"
	KindSingularInput       Kind = "SingularInput"
	KindSessionOverflow     Kind = "SessionOverflow"
	KindUpstreamUnavailable Kind = "UpstreamUnavailable"
	KindInvalidRequest      Kind = "InvalidRequest"
	KindNotFound            Kind = "NotFound"
)

// Sentinels for errors.Is matching by kind.
var (
	ErrInvalidTick         = &Error{Kind: KindInvalidTick}
	ErrInsufficientData    = &Error{Kind: KindInsufficientData}
	ErrSingularInput       = &Error{Kind: KindSingularInput}
	ErrSessionOverflow     = &Error{Kind: KindSessionOverflow}
	ErrUpstreamUnavailable = &Error{Kind: KindUpstreamUnavailable}
	ErrInvalidRequest      = &Error{Kind: KindInvalidRequest}
	ErrNotFound            = &Error{Kind: KindNotFound}
)

// Stats describes an input vector; attached to SingularInput failures.
type Stats struct {
	N    int     `json:"n"`
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// Error carries enough context to diagnose a failed computation from the outside.
type Error struct {
	Kind    Kind
	Op      string
	Method  string
	Pair    string
	Symbol  string
	N       int
	Need    int
	Detail  string
	StatsA  *Stats
	StatsB  *Stats
	Wrapped error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Op != "" {
		b.WriteString(" in ")
		b.WriteString(e.Op)
	}
	if e.Method != "" {
		fmt.Fprintf(&b, " method=%s", e.Method)
	}
	if e.Pair != "" {
		fmt.Fprintf(&b, " pair=%s", e.Pair)
	}
	if e.Symbol != "" {
		fmt.Fprintf(&b, " symbol=%s", e.Symbol)
	}
	if e.N > 0 || e.Need > 0 {
		fmt.Fprintf(&b, " n=%d", e.N)
	}
	if e.Need > 0 {
		fmt.Fprintf(&b, " need=%d", e.Need)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Wrapped != nil {
		fmt.Fprintf(&b, ": %v", e.Wrapped)
	}
	return b.String()
}

// Is reports kind equality so callers can match against the sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func (e *Error) Unwrap() error { return e.Wrapped }

// Params flattens the context for transport-level error payloads.
func (e *Error) Params() map[string]interface{} {
	p := make(map[string]interface{})
	if e.Op != "" {
		p["op"] = e.Op
	}
	if e.Method != "" {
		p["method"] = e.Method
	}
	if e.Pair != "" {
		p["pair"] = e.Pair
	}
	if e.Symbol != "" {
		p["symbol"] = e.Symbol
	}
	if e.N > 0 {
		p["n"] = e.N
	}
	if e.Need > 0 {
		p["need"] = e.Need
	}
	if e.StatsA != nil {
		p["stats_a"] = e.StatsA
	}
	if e.StatsB != nil {
		p["stats_b"] = e.StatsB
	}
	return p
}

// KindOf returns the kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// InvalidTick builds an InvalidTick error for symbol.
func InvalidTick(symbol, detail string) *Error {
	return &Error{Kind: KindInvalidTick, Op: "ingest", Symbol: symbol, Detail: detail}
}

// InsufficientData builds an InsufficientData error.
func InsufficientData(op, method string, n, need int) *Error {
	return &Error{Kind: KindInsufficientData, Op: op, Method: method, N: n, Need: need}
}

// InvalidRequest builds an InvalidRequest error.
func InvalidRequest(op, detail string) *Error {
	return &Error{Kind: KindInvalidRequest, Op: op, Detail: detail}
}

// NotFound builds a NotFound error.
func NotFound(op, detail string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Detail: detail}
}
