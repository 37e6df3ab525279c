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
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadroutehq/leadroute/config"
	redis_db "github.com/leadroutehq/leadroute/internal/redis-db"
	"github.com/leadroutehq/leadroute/model"
)

func newTestSnapshotProvider(t *testing.T, ds *MockDataSource) *SnapshotProvider {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rds, err := redis_db.NewRedisClient([]string{mr.Addr()})
	require.NoError(t, err)

	cnf := &config.Configuration{}
	config.MockConfig(cnf)

	return NewSnapshotProvider(ds, rds.Client(), cnf)
}

func TestSnapshotCurrentLoadsAndCaches(t *testing.T) {
	loads := 0
	ds := &MockDataSource{
		mockGetActiveRules: func(ctx context.Context) ([]model.AssignmentRule, error) {
			loads++
			return []model.AssignmentRule{
				activeRule("rule_1", 1, nil, nil),
			}, nil
		},
	}
	provider := newTestSnapshotProvider(t, ds)

	first := provider.Current(context.Background())
	require.NotNil(t, first)
	assert.Len(t, first.Rules, 1)
	assert.NotEmpty(t, first.Version)

	second := provider.Current(context.Background())
	assert.Equal(t, first.Version, second.Version)
	assert.Equal(t, 1, loads, "second read must come from cache")
}

func TestSnapshotVersionTracksRuleChanges(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	ruleV1 := activeRule("rule_1", 1, nil, nil)
	ruleV1.UpdatedAt = base
	ruleV2 := ruleV1
	ruleV2.UpdatedAt = base.Add(time.Hour)

	v1 := snapshotVersion([]model.AssignmentRule{ruleV1})
	v2 := snapshotVersion([]model.AssignmentRule{ruleV2})

	assert.NotEmpty(t, v1)
	assert.NotEqual(t, v1, v2)
	assert.Equal(t, v1, snapshotVersion([]model.AssignmentRule{ruleV1}))
}

func TestSnapshotStoreFailureYieldsEmptySnapshot(t *testing.T) {
	failing := true
	ds := &MockDataSource{
		mockGetActiveRules: func(ctx context.Context) ([]model.AssignmentRule, error) {
			if failing {
				return nil, errors.New("store unreachable")
			}
			return []model.AssignmentRule{activeRule("rule_1", 1, nil, nil)}, nil
		},
	}
	provider := newTestSnapshotProvider(t, ds)

	snap := provider.Current(context.Background())
	require.NotNil(t, snap)
	assert.True(t, snap.IsEmpty())
	assert.Empty(t, snap.Version)

	// The failed load must not be cached; recovery is immediate once the
	// store is back.
	failing = false
	snap = provider.Current(context.Background())
	assert.False(t, snap.IsEmpty())
	assert.NotEmpty(t, snap.Version)
}
