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
	"embed"
	"fmt"

	"go.opentelemetry.io/otel"

	"github.com/leadroutehq/leadroute/config"
	"github.com/leadroutehq/leadroute/database"
	redis_db "github.com/leadroutehq/leadroute/internal/redis-db"
	"github.com/leadroutehq/leadroute/model"
	"github.com/redis/go-redis/v9"
)

var tracer = otel.Tracer("leadroute.assignment")

//go:embed sql/*.sql
var SQLFiles embed.FS

// Leadroute represents the main struct for the assignment engine. It wires
// the rule store, the capacity ledger, the snapshot provider, and the queue.
type Leadroute struct {
	queue      *Queue
	redis      redis.UniversalClient
	datasource database.IDataSource
	capacity   *CapacityLedger
	snapshots  *SnapshotProvider
}

// NewLeadroute initializes a new instance of Leadroute with the provided
// database datasource. It fetches the configuration and initializes the Redis
// client, capacity ledger, snapshot provider, and queue.
func NewLeadroute(db database.IDataSource) (*Leadroute, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	redisClient, err := redis_db.NewRedisClient([]string{fmt.Sprintf("redis://%s", configuration.Redis.Dns)})
	if err != nil {
		return nil, err
	}

	newQueue := NewQueue(configuration)
	client := redisClient.Client()

	return &Leadroute{
		datasource: db,
		queue:      newQueue,
		redis:      client,
		capacity:   NewCapacityLedger(client, configuration),
		snapshots:  NewSnapshotProvider(db, client, configuration),
	}, nil
}

// EnqueueLeadCreated validates an inbound lead.created event and enqueues it
// for assignment. This is the engine's intake edge; the capture service is
// responsible for everything upstream of the event.
func (l *Leadroute) EnqueueLeadCreated(ctx context.Context, event *model.LeadCreatedEvent) error {
	if err := ValidateLeadEvent(event); err != nil {
		return err
	}
	return l.queue.Enqueue(ctx, event)
}

// GetOutcome retrieves the assignment outcome for a lead.
func (l *Leadroute) GetOutcome(ctx context.Context, leadID string) (*model.AssignmentOutcome, error) {
	return l.datasource.GetOutcome(ctx, leadID)
}

// GetRule retrieves an assignment rule by ID, active or not. Used to attach
// the winning rule to assignment reads.
func (l *Leadroute) GetRule(ctx context.Context, ruleID string) (*model.AssignmentRule, error) {
	return l.datasource.GetRuleByID(ctx, ruleID)
}

// GetUnassignedLeads retrieves unassigned pool rows for triage.
func (l *Leadroute) GetUnassignedLeads(ctx context.Context, limit, offset int) ([]model.UnassignedLead, error) {
	return l.datasource.GetUnassignedLeads(ctx, limit, offset)
}

// TargetUsage reports current capacity consumption for a target, for the
// operational API.
func (l *Leadroute) TargetUsage(ctx context.Context, targetID string) (daily int64, monthly int64, err error) {
	return l.capacity.Usage(ctx, targetID, nowFunc())
}
