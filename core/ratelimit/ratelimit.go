// Package ratelimit implements fixed-window request limits per client and request category.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/schooldriver/schooldriver/core"
)

const (
	CategoryLogin   = "login"
	CategoryAPI     = "api"
	CategoryGeneral = "general"

	keyPrefix = "rate_limit"
)

// LoginPaths are limited with the login rule.
var LoginPaths = []string{"/v1/users/login", "/v1/parents/register"}

type (
	Rule struct {
		Category string
		Limit    int
		Window   time.Duration
	}

	// Store counts hits per key over fixed windows.
	Store interface {
		// Incr increments the counter of key and returns its new value.
		// The counter is reset window after its first increment.
		Incr(ctx context.Context, key string, window time.Duration) (int64, error)
	}

	Limiter struct {
		store  Store
		rules  map[string]Rule
		logger core.Logger
	}
)

func DefaultRules() []Rule {
	return []Rule{
		{Category: CategoryLogin, Limit: 5, Window: 5 * time.Minute},
		{Category: CategoryAPI, Limit: 100, Window: time.Minute},
		{Category: CategoryGeneral, Limit: 300, Window: time.Minute},
	}
}

// RulesFromConfig returns the configured rules; unset values keep their defaults.
func RulesFromConfig(conf core.RateLimitConfig) []Rule {
	rules := DefaultRules()
	for i, cr := range []core.RateLimitRule{conf.Login, conf.API, conf.General} {
		if cr.Limit > 0 {
			rules[i].Limit = cr.Limit
		}
		if cr.Window > 0 {
			rules[i].Window = cr.Window
		}
	}
	return rules
}

// Classify returns the category of a request path.
func Classify(path string) string {
	for _, p := range LoginPaths {
		if strings.HasPrefix(path, p) {
			return CategoryLogin
		}
	}
	if strings.HasPrefix(path, "/v1/") {
		return CategoryAPI
	}
	return CategoryGeneral
}

func Key(category, clientID string) string {
	return keyPrefix + ":" + category + ":" + clientID
}

func NewLimiter(store Store, logger core.Logger, rules ...Rule) *Limiter {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	l := &Limiter{store: store, rules: make(map[string]Rule, len(rules)), logger: logger}
	for _, r := range rules {
		l.rules[r.Category] = r
	}
	return l
}

func (l *Limiter) Rule(category string) (Rule, bool) {
	r, ok := l.rules[category]
	return r, ok
}

// Allow reports whether the client may make one more request of the given category.
// Store failures let the request through.
func (l *Limiter) Allow(ctx context.Context, category, clientID string) bool {
	rule, ok := l.rules[category]
	if !ok || rule.Limit <= 0 {
		return true
	}
	cnt, err := l.store.Incr(ctx, Key(category, clientID), rule.Window)
	if err != nil {
		l.logger.Error(fmt.Sprintf("rate limiting store: %v", err), err)
		return true
	}
	return cnt <= int64(rule.Limit)
}
