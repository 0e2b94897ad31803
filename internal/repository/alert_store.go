package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"PairPulse/internal/domain/errs"
	"PairPulse/internal/domain/models"
	domrepo "PairPulse/internal/domain/repository"
	"PairPulse/pkg/cache"
)

// MemoryAlertStore keeps rules in process; they are lost on restart.
type MemoryAlertStore struct {
	mu    sync.RWMutex
	rules map[string]models.AlertRule
}

var _ domrepo.AlertRuleStore = (*MemoryAlertStore)(nil)

func NewMemoryAlertStore() *MemoryAlertStore {
	return &MemoryAlertStore{rules: make(map[string]models.AlertRule)}
}

func (s *MemoryAlertStore) List(_ context.Context) ([]models.AlertRule, error) {
	s.mu.RLock()
	out := make([]models.AlertRule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, r)
	}
	s.mu.RUnlock()
	sortRules(out)
	return out, nil
}

func (s *MemoryAlertStore) Get(_ context.Context, id string) (models.AlertRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rules[id]
	if !ok {
		return models.AlertRule{}, errs.NotFound("alerts.get", "rule "+id)
	}
	return r, nil
}

func (s *MemoryAlertStore) Save(_ context.Context, rule models.AlertRule) error {
	s.mu.Lock()
	s.rules[rule.ID] = rule
	s.mu.Unlock()
	return nil
}

func (s *MemoryAlertStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[id]; !ok {
		return errs.NotFound("alerts.delete", "rule "+id)
	}
	delete(s.rules, id)
	return nil
}

// alertRulesKey is the hash holding every rule as id -> JSON.
const alertRulesKey = "alerts:rules"

// RedisAlertStore persists rules in a single Redis hash.
type RedisAlertStore struct {
	c cache.Service
}

var _ domrepo.AlertRuleStore = (*RedisAlertStore)(nil)

func NewRedisAlertStore(c cache.Service) *RedisAlertStore {
	return &RedisAlertStore{c: c}
}

func (s *RedisAlertStore) List(ctx context.Context) ([]models.AlertRule, error) {
	vals, err := s.c.HValues(ctx, alertRulesKey)
	if err != nil {
		return nil, fmt.Errorf("list alert rules: %w", err)
	}
	out := make([]models.AlertRule, 0, len(vals))
	for _, v := range vals {
		var r models.AlertRule
		if err := json.Unmarshal([]byte(v), &r); err != nil {
			return nil, fmt.Errorf("decode alert rule: %w", err)
		}
		out = append(out, r)
	}
	sortRules(out)
	return out, nil
}

func (s *RedisAlertStore) Get(ctx context.Context, id string) (models.AlertRule, error) {
	var r models.AlertRule
	if err := s.c.HGet(ctx, alertRulesKey, id, &r); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return models.AlertRule{}, errs.NotFound("alerts.get", "rule "+id)
		}
		return models.AlertRule{}, fmt.Errorf("get alert rule: %w", err)
	}
	return r, nil
}

func (s *RedisAlertStore) Save(ctx context.Context, rule models.AlertRule) error {
	if err := s.c.HSet(ctx, alertRulesKey, rule.ID, rule); err != nil {
		return fmt.Errorf("save alert rule: %w", err)
	}
	return nil
}

func (s *RedisAlertStore) Delete(ctx context.Context, id string) error {
	ok, err := s.c.HDel(ctx, alertRulesKey, id)
	if err != nil {
		return fmt.Errorf("delete alert rule: %w", err)
	}
	if !ok {
		return errs.NotFound("alerts.delete", "rule "+id)
	}
	return nil
}

func sortRules(rules []models.AlertRule) {
	sort.Slice(rules, func(i, j int) bool {
		if !rules[i].CreatedAt.Equal(rules[j].CreatedAt) {
			return rules[i].CreatedAt.Before(rules[j].CreatedAt)
		}
		return rules[i].ID < rules[j].ID
	})
}
