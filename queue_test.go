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
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadroutehq/leadroute/config"
)

func newTestQueue(t *testing.T) (*Queue, *config.Configuration) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cnf := &config.Configuration{
		Redis: config.RedisConfig{Dns: mr.Addr()},
	}
	config.MockConfig(cnf)

	return NewQueue(cnf), cnf
}

func TestEnqueueLeadLandsOnShardedQueue(t *testing.T) {
	q, cnf := newTestQueue(t)

	event := leadEvent("lead_123")
	err := q.Enqueue(context.Background(), event)
	require.NoError(t, err)

	queueIndex := hashLeadID(event.LeadID) % cnf.Queue.NumberOfQueues
	queueName := fmt.Sprintf("%s_%d", cnf.Queue.AssignmentQueue, queueIndex+1)

	task, err := q.Inspector.GetTaskInfo(queueName, event.LeadID)
	require.NoError(t, err)
	assert.Equal(t, event.LeadID, task.ID)
}

func TestEnqueueDuplicateLeadIsSkipped(t *testing.T) {
	q, _ := newTestQueue(t)

	event := leadEvent("lead_123")
	require.NoError(t, q.Enqueue(context.Background(), event))

	// The second enqueue hits the task ID conflict and is treated as success;
	// the reservation guard downstream covers redelivery after completion.
	assert.NoError(t, q.Enqueue(context.Background(), event))
}

func TestEnqueueShardingIsStablePerLead(t *testing.T) {
	first := hashLeadID("lead_abc")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, hashLeadID("lead_abc"))
	}
	assert.NotEqual(t, hashLeadID("lead_abc"), hashLeadID("lead_abd"))
}

func TestGetLeadFromQueue(t *testing.T) {
	q, _ := newTestQueue(t)

	event := leadEvent("lead_123")
	require.NoError(t, q.Enqueue(context.Background(), event))

	got, err := q.GetLeadFromQueue(event.LeadID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, event.LeadID, got.LeadID)
	assert.Equal(t, event.FunnelID, got.FunnelID)

	missing, err := q.GetLeadFromQueue("lead_never_enqueued")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
