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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadroutehq/leadroute/model"
)

func TestRecoverStuckEvaluationsReEnqueues(t *testing.T) {
	var seenOlderThan time.Time
	ds := &MockDataSource{
		mockGetStuckEvaluations: func(ctx context.Context, olderThan time.Time, limit int) ([]model.Lead, error) {
			seenOlderThan = olderThan
			return []model.Lead{
				{LeadID: "lead_stuck_1", FunnelID: "funnel_a", CreatedAt: testNow.Add(-2 * time.Hour)},
				{LeadID: "lead_stuck_2", FunnelID: "funnel_b", ZipCode: "33101", CreatedAt: testNow.Add(-3 * time.Hour)},
			}, nil
		},
	}
	engine := newTestEngine(t, ds)

	recovered, err := engine.RecoverStuckEvaluations(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, recovered)
	assert.Equal(t, testNow.Add(-time.Hour), seenOlderThan)

	for _, leadID := range []string{"lead_stuck_1", "lead_stuck_2"} {
		event, err := engine.queue.GetLeadFromQueue(leadID)
		require.NoError(t, err)
		require.NotNil(t, event, "stuck lead %s must be back on the queue", leadID)
		assert.Equal(t, leadID, event.LeadID)
	}
}

func TestRecoverStuckEvaluationsEnforcesMinimumThreshold(t *testing.T) {
	var seenOlderThan time.Time
	ds := &MockDataSource{
		mockGetStuckEvaluations: func(ctx context.Context, olderThan time.Time, limit int) ([]model.Lead, error) {
			seenOlderThan = olderThan
			return []model.Lead{}, nil
		},
	}
	engine := newTestEngine(t, ds)

	recovered, err := engine.RecoverStuckEvaluations(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Zero(t, recovered)

	// Sub-2-minute thresholds are clamped so in-flight evaluations are not
	// recovered out from under a live worker.
	assert.Equal(t, testNow.Add(-2*time.Minute), seenOlderThan)
}
