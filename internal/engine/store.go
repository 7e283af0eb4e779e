// internal/engine/store.go
package engine

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/quillform/quillform/internal/core/db"
	"github.com/quillform/quillform/internal/types"
)

/*
 * Cached rule lookup.
 *
 * Active rules are read on every branching decision, so they are cached
 * per survey with a short TTL. Rule mutations call Invalidate synchronously
 * before returning, which means a decision made after a mutation completes
 * always sees the new rule set; the TTL only bounds staleness for processes
 * that missed an invalidation.
 */

const ruleCacheKeyPrefix = "survey_rules_"

// RuleStore serves a survey's active rules, ordered by (priority, id)
// ascending, through a TTL cache.
type RuleStore struct {
	store *db.Store
	cache *gocache.Cache
}

// NewRuleStore builds a RuleStore over the given storage. A non-positive ttl
// selects the default.
func NewRuleStore(store *db.Store, ttl time.Duration) *RuleStore {
	if ttl <= 0 {
		ttl = types.RuleCacheTTL
	}
	return &RuleStore{
		store: store,
		cache: gocache.New(ttl, 2*ttl),
	}
}

// ActiveRules returns the survey's active rules in evaluation order,
// from cache when fresh.
func (r *RuleStore) ActiveRules(ctx context.Context, surveyID types.SurveyID) ([]*types.SurveyRule, error) {
	key := ruleCacheKeyPrefix + string(surveyID)
	if cached, ok := r.cache.Get(key); ok {
		return cached.([]*types.SurveyRule), nil
	}

	rules, err := r.store.ActiveRules(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	r.cache.Set(key, rules, gocache.DefaultExpiration)
	return rules, nil
}

// Invalidate drops the cached rule set for one survey. Callers mutate rules
// first and invalidate second, so a stale entry never outlives the mutation.
func (r *RuleStore) Invalidate(surveyID types.SurveyID) {
	r.cache.Delete(ruleCacheKeyPrefix + string(surveyID))
}
