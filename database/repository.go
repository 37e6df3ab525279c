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

package database

import (
	"context"
	"time"

	"github.com/leadroutehq/leadroute/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	rule       // Interface for assignment rule reads
	outcome    // Interface for assignment outcome operations
	unassigned // Interface for unassigned pool operations
}

// rule defines read-only access to assignment rules. The rule-management
// service is the sole writer of this table; the engine only ever reads.
type rule interface {
	GetActiveRules(ctx context.Context) ([]model.AssignmentRule, error) // Retrieves all active rules for a snapshot
	GetRuleByID(ctx context.Context, id string) (*model.AssignmentRule, error)
}

// outcome defines methods for handling assignment outcomes.
type outcome interface {
	ReserveOutcome(ctx context.Context, lead *model.Lead) (bool, error)                // Conditional create of the EVALUATING placeholder; false means the lead was already reserved
	CommitOutcome(ctx context.Context, outcome *model.AssignmentOutcome) (bool, error) // Overwrites the placeholder with the terminal outcome; false means it was already terminal
	GetOutcome(ctx context.Context, leadID string) (*model.AssignmentOutcome, error)   // Retrieves an outcome by lead ID
	MarkOutcomePublished(ctx context.Context, leadID string, publishedAt time.Time) error
	GetStuckEvaluations(ctx context.Context, olderThan time.Time, limit int) ([]model.Lead, error)
}

// unassigned defines methods for the unassigned pool.
type unassigned interface {
	RecordUnassignedLead(ctx context.Context, lead *model.UnassignedLead) error                // Writes a pool row; idempotent on lead ID
	GetUnassignedLeads(ctx context.Context, limit, offset int) ([]model.UnassignedLead, error) // Retrieves pool rows for triage
}
