package alerts

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"PairPulse/internal/domain/errs"
	"PairPulse/internal/domain/models"
)

// Values resolves the current value of a metric. ok is false when the
// value is undefined (e.g. a z-score inside the warm-up window).
type Values interface {
	Value(metric Metric, first, second string) (v float64, ok bool)
}

// Snapshot is a map-backed Values. Pair keys use the ordered "A/B" form.
type Snapshot struct {
	ZScore      map[string]models.NullFloat
	Spread      map[string]models.NullFloat
	Prices      map[string]float64
	Correlation *models.CorrelationMatrix
}

func (s Snapshot) Value(metric Metric, first, second string) (float64, bool) {
	key := first + "/" + second
	switch metric {
	case MetricZScore:
		z, ok := s.ZScore[key]
		return z.Value, ok && z.Valid
	case MetricSpread:
		v, ok := s.Spread[key]
		return v.Value, ok && v.Valid
	case MetricPrice:
		p, ok := s.Prices[first]
		return p, ok && p > 0
	case MetricCorrelation:
		if s.Correlation == nil || !s.Correlation.Valid[first] || !s.Correlation.Valid[second] {
			return 0, false
		}
		return s.Correlation.Get(first, second), true
	}
	return 0, false
}

type entry struct {
	rule   *Rule
	active bool
}

// Evaluator holds compiled rules and their trigger state.
type Evaluator struct {
	mu    sync.Mutex
	rules map[string]*entry
	now   func() time.Time
}

func NewEvaluator() *Evaluator {
	return &Evaluator{
		rules: make(map[string]*entry),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Put compiles and installs r, replacing any rule with the same id.
// Replacing a rule clears its trigger state.
func (e *Evaluator) Put(r models.AlertRule) (*Rule, error) {
	if r.ID == "" {
		return nil, errs.InvalidRequest("alerts.put", "rule id is empty")
	}
	c, err := Compile(r)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.rules[r.ID] = &entry{rule: c}
	e.mu.Unlock()
	return c, nil
}

func (e *Evaluator) Remove(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.rules[id]; !ok {
		return false
	}
	delete(e.rules, id)
	return true
}

// SetEnabled toggles a rule. A disabled to enabled transition resets the
// rule so the next true evaluation fires again.
func (e *Evaluator) SetEnabled(id string, enabled bool) (models.AlertRule, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	en, ok := e.rules[id]
	if !ok {
		return models.AlertRule{}, errs.NotFound("alerts.toggle", "rule "+id)
	}
	if enabled && !en.rule.Source.Enabled {
		en.active = false
	}
	en.rule.Source.Enabled = enabled
	return en.rule.Source, nil
}

// Rules returns the installed rules ordered by creation time then id.
func (e *Evaluator) Rules() []*Rule {
	e.mu.Lock()
	out := make([]*Rule, 0, len(e.rules))
	for _, en := range e.rules {
		c := *en.rule
		out = append(out, &c)
	}
	e.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Source, out[j].Source
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out
}

// Evaluate runs every enabled rule against values and returns one event per
// rule that moved from not triggering to triggering.
func (e *Evaluator) Evaluate(values Values) []models.AlertEvent {
	now := e.now()
	e.mu.Lock()
	defer e.mu.Unlock()

	var events []models.AlertEvent
	for _, en := range e.rules {
		r := en.rule
		if !r.Source.Enabled {
			continue
		}
		v, ok := values.Value(r.Metric, r.First, r.Second)
		if !ok {
			continue
		}
		holds := r.Op.Holds(v, r.Threshold)
		if holds && !en.active {
			events = append(events, models.AlertEvent{
				RuleID:    r.Source.ID,
				RuleName:  r.Source.Name,
				Metric:    r.Metric.String(),
				Message:   fmt.Sprintf("%s: %s %s is %.6g (%s %g)", r.Source.Name, r.subject(), r.Metric, v, r.Op, r.Threshold),
				Value:     v,
				Timestamp: now,
			})
		}
		en.active = holds
	}
	sort.Slice(events, func(i, j int) bool { return events[i].RuleID < events[j].RuleID })
	return events
}
