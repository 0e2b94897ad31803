package usecase

import (
	"context"
	"fmt"
	"time"

	"PairPulse/internal/domain/errs"
	"PairPulse/internal/domain/models"
	drepo "PairPulse/internal/domain/repository"
	"PairPulse/internal/services/alerts"
	applogger "PairPulse/pkg/logger"

	"github.com/google/uuid"
)

// SymbolSet answers whether a symbol is part of the tracked universe.
type SymbolSet interface {
	HasSymbol(symbol string) bool
}

// AlertRulesUseCase keeps the rule store and the live evaluator in sync.
type AlertRulesUseCase struct {
	store     drepo.AlertRuleStore
	evaluator *alerts.Evaluator
	symbols   SymbolSet
	log       *applogger.Logger
	now       func() time.Time
	newID     func() string
}

func NewAlertRulesUseCase(store drepo.AlertRuleStore, evaluator *alerts.Evaluator, symbols SymbolSet, log *applogger.Logger) *AlertRulesUseCase {
	return &AlertRulesUseCase{
		store:     store,
		evaluator: evaluator,
		symbols:   symbols,
		log:       log.With("alert-rules"),
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Load compiles every stored rule into the evaluator. Rules that no longer
// compile are skipped with a warning.
func (uc *AlertRulesUseCase) Load(ctx context.Context) (int, error) {
	rules, err := uc.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("load alert rules: %w", err)
	}
	n := 0
	for _, r := range rules {
		if _, err := uc.evaluator.Put(r); err != nil {
			uc.log.Warn("stored rule skipped", applogger.String("id", r.ID), applogger.Error(err))
			continue
		}
		n++
	}
	uc.log.Info("alert rules loaded", applogger.Int("count", n))
	return n, nil
}

type CreateAlertParams struct {
	Name       string
	Metric     string
	Operator   string
	Threshold  float64
	SymbolPair string
	Enabled    *bool
}

func (uc *AlertRulesUseCase) Create(ctx context.Context, p CreateAlertParams) (models.AlertRule, error) {
	rule := models.AlertRule{
		ID:         uc.newID(),
		Name:       p.Name,
		Metric:     p.Metric,
		Operator:   p.Operator,
		Threshold:  p.Threshold,
		SymbolPair: p.SymbolPair,
		Enabled:    true,
		CreatedAt:  uc.now().UTC(),
	}
	if p.Enabled != nil {
		rule.Enabled = *p.Enabled
	}

	compiled, err := alerts.Compile(rule)
	if err != nil {
		return models.AlertRule{}, err
	}
	for _, s := range compiled.Symbols() {
		if !uc.symbols.HasSymbol(s) {
			return models.AlertRule{}, errs.InvalidRequest("alerts.create", "unknown symbol "+s)
		}
	}
	// store the normalized pair so the stored rule matches what is evaluated
	rule.SymbolPair = compiled.First
	if compiled.Second != "" {
		rule.SymbolPair += "/" + compiled.Second
	}

	if err := uc.store.Save(ctx, rule); err != nil {
		return models.AlertRule{}, fmt.Errorf("save alert rule: %w", err)
	}
	if _, err := uc.evaluator.Put(rule); err != nil {
		_ = uc.store.Delete(ctx, rule.ID)
		return models.AlertRule{}, err
	}
	uc.log.Info("alert rule created",
		applogger.String("id", rule.ID),
		applogger.String("metric", rule.Metric),
		applogger.String("pair", rule.SymbolPair),
	)
	return rule, nil
}

// List returns the live rules ordered by creation.
func (uc *AlertRulesUseCase) List(_ context.Context) []models.AlertRule {
	compiled := uc.evaluator.Rules()
	out := make([]models.AlertRule, 0, len(compiled))
	for _, r := range compiled {
		out = append(out, r.Source)
	}
	return out
}

// SetEnabled toggles a rule. Re-enabling rearms it.
func (uc *AlertRulesUseCase) SetEnabled(ctx context.Context, id string, enabled bool) (models.AlertRule, error) {
	rule, err := uc.evaluator.SetEnabled(id, enabled)
	if err != nil {
		return models.AlertRule{}, err
	}
	if err := uc.store.Save(ctx, rule); err != nil {
		// keep the evaluator consistent with what is persisted
		_, _ = uc.evaluator.SetEnabled(id, !enabled)
		return models.AlertRule{}, fmt.Errorf("save alert rule: %w", err)
	}
	return rule, nil
}

func (uc *AlertRulesUseCase) Delete(ctx context.Context, id string) error {
	if !uc.evaluator.Remove(id) {
		return errs.NotFound("alerts.delete", "alert rule "+id+" not found")
	}
	if err := uc.store.Delete(ctx, id); err != nil && errs.KindOf(err) != errs.KindNotFound {
		return fmt.Errorf("delete alert rule: %w", err)
	}
	uc.log.Info("alert rule deleted", applogger.String("id", id))
	return nil
}
