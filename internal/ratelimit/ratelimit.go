// Package ratelimit meters image engine calls per caller and endpoint in fixed
// hourly windows kept in Redis.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Scope names the endpoint a call is charged to. Each scope has its own budget.
type Scope string

const (
	ScopeGenerate   Scope = "generate"
	ScopeRegenerate Scope = "regenerate"
)

var incrWithTTLScript = redis.NewScript(`
local c = redis.call("INCR", KEYS[1])
if c == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return c
`)

// Quota is the caller's standing in the current window after one call.
type Quota struct {
	Allowed bool
	Used    int64
	Limit   int64
	ResetAt time.Time
}

func (q Quota) Remaining() int64 {
	if q.Used >= q.Limit {
		return 0
	}
	return q.Limit - q.Used
}

type Limiter struct {
	redis    *redis.Client
	perHour  int64
	perScope map[Scope]int64
}

// New charges every scope perHour calls unless perScope overrides it. A
// non-positive override leaves the scope on the shared budget.
func New(rdb *redis.Client, perHour int64, perScope map[Scope]int64) *Limiter {
	limits := make(map[Scope]int64, len(perScope))
	for s, n := range perScope {
		if n > 0 {
			limits[s] = n
		}
	}
	return &Limiter{redis: rdb, perHour: perHour, perScope: limits}
}

func (l *Limiter) limitFor(scope Scope) int64 {
	if n, ok := l.perScope[scope]; ok {
		return n
	}
	return l.perHour
}

// Allow charges one call by subject against scope for the hour containing now.
func (l *Limiter) Allow(ctx context.Context, scope Scope, subject string, now time.Time) (Quota, error) {
	windowStart := now.UTC().Truncate(time.Hour)
	windowEnd := windowStart.Add(time.Hour)
	ttl := int64(windowEnd.Sub(now.UTC()).Seconds())
	if ttl < 1 {
		ttl = 1
	}

	limit := l.limitFor(scope)
	used, err := incrWithTTLScript.Run(ctx, l.redis, []string{windowKey(scope, subject, windowStart)}, ttl).Int64()
	if err != nil {
		return Quota{}, fmt.Errorf("rate limit script: %w", err)
	}
	return Quota{Allowed: used <= limit, Used: used, Limit: limit, ResetAt: windowEnd}, nil
}

func windowKey(scope Scope, subject string, windowStart time.Time) string {
	return fmt.Sprintf("imagegate:ratelimit:%s:%s:%s", scope, subject, windowStart.Format("2006010215"))
}
