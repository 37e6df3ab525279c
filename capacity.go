/*
Copyright 2025 Leadroute Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package leadroute

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/leadroutehq/leadroute/config"
	"github.com/leadroutehq/leadroute/model"
)

// AdmissionResult is the outcome of a capacity consumption attempt.
type AdmissionResult string

const (
	Admitted      AdmissionResult = "admitted"
	CappedDaily   AdmissionResult = "capped_daily"
	CappedMonthly AdmissionResult = "capped_monthly"
)

// Capped reports whether the result denied admission.
func (r AdmissionResult) Capped() bool {
	return r == CappedDaily || r == CappedMonthly
}

// tryConsumeScript checks both period counters against their caps and
// increments them in one atomic step. Either both counters advance or neither
// does, so a target can never be left with partial consumption, and under
// arbitrary concurrent callers the number of admissions per period never
// exceeds the cap. A cap argument of 0 means unlimited for that cadence.
// TTLs are applied on first increment only, so a counter expires relative to
// its creation rather than its last touch.
var tryConsumeScript = redis.NewScript(`
local daily = tonumber(redis.call('GET', KEYS[1]) or '0')
local monthly = tonumber(redis.call('GET', KEYS[2]) or '0')
local daily_cap = tonumber(ARGV[1])
local monthly_cap = tonumber(ARGV[2])

if daily_cap > 0 and daily + 1 > daily_cap then
	return 'capped_daily'
end
if monthly_cap > 0 and monthly + 1 > monthly_cap then
	return 'capped_monthly'
end

if redis.call('INCR', KEYS[1]) == 1 then
	redis.call('EXPIRE', KEYS[1], ARGV[3])
end
if redis.call('INCR', KEYS[2]) == 1 then
	redis.call('EXPIRE', KEYS[2], ARGV[4])
end
return 'admitted'
`)

// CapacityLedger tracks per-target, per-period consumption counters in Redis.
// It is the only code path allowed to write capacity counters; every mutation
// goes through the single conditional script above.
type CapacityLedger struct {
	redis      redis.UniversalClient
	dailyTTL   time.Duration
	monthlyTTL time.Duration
}

// NewCapacityLedger creates a capacity ledger backed by the given Redis client.
func NewCapacityLedger(client redis.UniversalClient, conf *config.Configuration) *CapacityLedger {
	return &CapacityLedger{
		redis:      client,
		dailyTTL:   time.Duration(conf.Capacity.DailyRetentionHours) * time.Hour,
		monthlyTTL: time.Duration(conf.Capacity.MonthlyRetentionHours) * time.Hour,
	}
}

// TryConsume attempts to consume one unit of the rule's target capacity for
// the daily and monthly periods containing now. Both conditional increments
// succeed atomically or neither counter is mutated.
func (c *CapacityLedger) TryConsume(ctx context.Context, rule *model.AssignmentRule, now time.Time) (AdmissionResult, error) {
	dailyKey := dailyCounterKey(rule.TargetID, now)
	monthlyKey := monthlyCounterKey(rule.TargetID, now)

	result, err := tryConsumeScript.Run(ctx, c.redis,
		[]string{dailyKey, monthlyKey},
		capOrZero(rule.DailyCap),
		capOrZero(rule.MonthlyCap),
		int(c.dailyTTL.Seconds()),
		int(c.monthlyTTL.Seconds()),
	).Text()
	if err != nil {
		return "", fmt.Errorf("capacity consume for target %s: %w", rule.TargetID, err)
	}

	return AdmissionResult(result), nil
}

// Usage returns the current daily and monthly consumption for a target.
// Missing counters read as zero; counters are created lazily on first consume.
func (c *CapacityLedger) Usage(ctx context.Context, targetID string, now time.Time) (daily int64, monthly int64, err error) {
	daily, err = c.counterValue(ctx, dailyCounterKey(targetID, now))
	if err != nil {
		return 0, 0, err
	}
	monthly, err = c.counterValue(ctx, monthlyCounterKey(targetID, now))
	if err != nil {
		return 0, 0, err
	}
	return daily, monthly, nil
}

func (c *CapacityLedger) counterValue(ctx context.Context, key string) (int64, error) {
	val, err := c.redis.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return val, nil
}

func capOrZero(limit *int64) int64 {
	if limit == nil {
		return 0
	}
	return *limit
}

func dailyCounterKey(targetID string, now time.Time) string {
	return fmt.Sprintf("leadroute:capacity:%s:day:%s", targetID, now.UTC().Format("2006-01-02"))
}

func monthlyCounterKey(targetID string, now time.Time) string {
	return fmt.Sprintf("leadroute:capacity:%s:month:%s", targetID, now.UTC().Format("2006-01"))
}
