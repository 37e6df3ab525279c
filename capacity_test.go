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
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadroutehq/leadroute/config"
	redis_db "github.com/leadroutehq/leadroute/internal/redis-db"
	"github.com/leadroutehq/leadroute/model"
)

func newTestLedger(t *testing.T) (*CapacityLedger, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rds, err := redis_db.NewRedisClient([]string{mr.Addr()})
	require.NoError(t, err)

	cnf := &config.Configuration{}
	config.MockConfig(cnf)

	return NewCapacityLedger(rds.Client(), cnf), mr
}

func int64Ptr(v int64) *int64 {
	return &v
}

func cappedRule(targetID string, daily, monthly *int64) *model.AssignmentRule {
	return &model.AssignmentRule{
		RuleID:     "rule_" + targetID,
		Active:     true,
		TargetType: model.TargetOrganization,
		TargetID:   targetID,
		DailyCap:   daily,
		MonthlyCap: monthly,
	}
}

func TestTryConsumeAdmitsUnderCap(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	rule := cappedRule("org_1", int64Ptr(3), int64Ptr(10))

	for i := 0; i < 3; i++ {
		result, err := ledger.TryConsume(ctx, rule, now)
		require.NoError(t, err)
		assert.Equal(t, Admitted, result)
	}

	daily, monthly, err := ledger.Usage(ctx, "org_1", now)
	require.NoError(t, err)
	assert.EqualValues(t, 3, daily)
	assert.EqualValues(t, 3, monthly)
}

func TestTryConsumeDailyCapDenies(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	rule := cappedRule("org_1", int64Ptr(1), nil)

	result, err := ledger.TryConsume(ctx, rule, now)
	require.NoError(t, err)
	assert.Equal(t, Admitted, result)

	result, err = ledger.TryConsume(ctx, rule, now)
	require.NoError(t, err)
	assert.Equal(t, CappedDaily, result)
	assert.True(t, result.Capped())
}

func TestTryConsumeMonthlyCapDeniesWithoutPartialConsumption(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	rule := cappedRule("org_1", int64Ptr(100), int64Ptr(2))

	for i := 0; i < 2; i++ {
		result, err := ledger.TryConsume(ctx, rule, now)
		require.NoError(t, err)
		assert.Equal(t, Admitted, result)
	}

	result, err := ledger.TryConsume(ctx, rule, now)
	require.NoError(t, err)
	assert.Equal(t, CappedMonthly, result)

	// A monthly denial must not have advanced the daily counter either.
	daily, monthly, err := ledger.Usage(ctx, "org_1", now)
	require.NoError(t, err)
	assert.EqualValues(t, 2, daily)
	assert.EqualValues(t, 2, monthly)
}

func TestTryConsumeZeroCapMeansUnlimited(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	rule := cappedRule("org_1", nil, nil)

	for i := 0; i < 50; i++ {
		result, err := ledger.TryConsume(ctx, rule, now)
		require.NoError(t, err)
		assert.Equal(t, Admitted, result)
	}
}

func TestTryConsumeNeverOverAdmitsUnderConcurrency(t *testing.T) {
	ledger, _ := newTestLedger(t)
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	rule := cappedRule("org_1", int64Ptr(5), nil)

	const attempts = 25
	results := make(chan AdmissionResult, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := ledger.TryConsume(context.Background(), rule, now)
			assert.NoError(t, err)
			results <- result
		}()
	}
	wg.Wait()
	close(results)

	admitted := 0
	for result := range results {
		if result == Admitted {
			admitted++
		}
	}
	assert.Equal(t, 5, admitted)

	daily, _, err := ledger.Usage(context.Background(), "org_1", now)
	require.NoError(t, err)
	assert.EqualValues(t, 5, daily)
}

func TestTryConsumeCountersRollOverAcrossPeriods(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()
	day1 := time.Date(2026, 3, 15, 23, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 16, 1, 0, 0, 0, time.UTC)
	rule := cappedRule("org_1", int64Ptr(1), nil)

	result, err := ledger.TryConsume(ctx, rule, day1)
	require.NoError(t, err)
	assert.Equal(t, Admitted, result)

	result, err = ledger.TryConsume(ctx, rule, day1)
	require.NoError(t, err)
	assert.Equal(t, CappedDaily, result)

	// A new UTC day opens a fresh daily counter.
	result, err = ledger.TryConsume(ctx, rule, day2)
	require.NoError(t, err)
	assert.Equal(t, Admitted, result)

	_, monthly, err := ledger.Usage(ctx, "org_1", day2)
	require.NoError(t, err)
	assert.EqualValues(t, 2, monthly)
}

func TestTryConsumeSetsRetentionTTL(t *testing.T) {
	ledger, mr := newTestLedger(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	rule := cappedRule("org_1", int64Ptr(10), int64Ptr(10))

	_, err := ledger.TryConsume(ctx, rule, now)
	require.NoError(t, err)

	assert.Greater(t, mr.TTL(dailyCounterKey("org_1", now)), time.Duration(0))
	assert.Greater(t, mr.TTL(monthlyCounterKey("org_1", now)), time.Duration(0))
}

func TestUsageMissingCountersReadZero(t *testing.T) {
	ledger, _ := newTestLedger(t)

	daily, monthly, err := ledger.Usage(context.Background(), "org_never_seen", time.Now())
	require.NoError(t, err)
	assert.Zero(t, daily)
	assert.Zero(t, monthly)
}
