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
	"time"

	"github.com/leadroutehq/leadroute/model"
)

// MockDataSource is a function-field stand-in for database.IDataSource.
// Unset fields fall back to inert defaults so a test only wires the calls it
// cares about.
type MockDataSource struct {
	mockGetActiveRules       func(ctx context.Context) ([]model.AssignmentRule, error)
	mockGetRuleByID          func(ctx context.Context, id string) (*model.AssignmentRule, error)
	mockReserveOutcome       func(ctx context.Context, lead *model.Lead) (bool, error)
	mockCommitOutcome        func(ctx context.Context, outcome *model.AssignmentOutcome) (bool, error)
	mockGetOutcome           func(ctx context.Context, leadID string) (*model.AssignmentOutcome, error)
	mockMarkPublished        func(ctx context.Context, leadID string, publishedAt time.Time) error
	mockGetStuckEvaluations  func(ctx context.Context, olderThan time.Time, limit int) ([]model.Lead, error)
	mockRecordUnassignedLead func(ctx context.Context, lead *model.UnassignedLead) error
	mockGetUnassignedLeads   func(ctx context.Context, limit, offset int) ([]model.UnassignedLead, error)
}

func (m *MockDataSource) GetActiveRules(ctx context.Context) ([]model.AssignmentRule, error) {
	if m.mockGetActiveRules != nil {
		return m.mockGetActiveRules(ctx)
	}
	return []model.AssignmentRule{}, nil
}

func (m *MockDataSource) GetRuleByID(ctx context.Context, id string) (*model.AssignmentRule, error) {
	if m.mockGetRuleByID != nil {
		return m.mockGetRuleByID(ctx, id)
	}
	return nil, nil
}

func (m *MockDataSource) ReserveOutcome(ctx context.Context, lead *model.Lead) (bool, error) {
	if m.mockReserveOutcome != nil {
		return m.mockReserveOutcome(ctx, lead)
	}
	return true, nil
}

func (m *MockDataSource) CommitOutcome(ctx context.Context, outcome *model.AssignmentOutcome) (bool, error) {
	if m.mockCommitOutcome != nil {
		return m.mockCommitOutcome(ctx, outcome)
	}
	return true, nil
}

func (m *MockDataSource) GetOutcome(ctx context.Context, leadID string) (*model.AssignmentOutcome, error) {
	if m.mockGetOutcome != nil {
		return m.mockGetOutcome(ctx, leadID)
	}
	return nil, nil
}

func (m *MockDataSource) MarkOutcomePublished(ctx context.Context, leadID string, publishedAt time.Time) error {
	if m.mockMarkPublished != nil {
		return m.mockMarkPublished(ctx, leadID, publishedAt)
	}
	return nil
}

func (m *MockDataSource) GetStuckEvaluations(ctx context.Context, olderThan time.Time, limit int) ([]model.Lead, error) {
	if m.mockGetStuckEvaluations != nil {
		return m.mockGetStuckEvaluations(ctx, olderThan, limit)
	}
	return []model.Lead{}, nil
}

func (m *MockDataSource) RecordUnassignedLead(ctx context.Context, lead *model.UnassignedLead) error {
	if m.mockRecordUnassignedLead != nil {
		return m.mockRecordUnassignedLead(ctx, lead)
	}
	return nil
}

func (m *MockDataSource) GetUnassignedLeads(ctx context.Context, limit, offset int) ([]model.UnassignedLead, error) {
	if m.mockGetUnassignedLeads != nil {
		return m.mockGetUnassignedLeads(ctx, limit, offset)
	}
	return []model.UnassignedLead{}, nil
}
