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

package model

import "time"

// Domain event names.
const (
	EventLeadCreated    = "lead.created"
	EventLeadAssigned   = "lead.assigned"
	EventLeadUnassigned = "lead.unassigned"
)

// LeadCreatedEvent is the inbound trigger produced by the capture service.
// Delivery is at-least-once; LeadID is the dedup key for the whole pipeline.
type LeadCreatedEvent struct {
	LeadID    string    `json:"lead_id"`
	FunnelID  string    `json:"funnel_id"`
	ZipCode   string    `json:"zip_code,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Lead returns the routing view of the captured lead.
func (e *LeadCreatedEvent) Lead() *Lead {
	return &Lead{
		LeadID:    e.LeadID,
		FunnelID:  e.FunnelID,
		ZipCode:   e.ZipCode,
		CreatedAt: e.CreatedAt,
	}
}

// LeadAssignedEvent is emitted after an assignment commits. Downstream
// consumers (notifications, analytics, billing metering) dedup on LeadID.
type LeadAssignedEvent struct {
	LeadID           string    `json:"lead_id"`
	FunnelID         string    `json:"funnel_id"`
	AssignedOrgID    string    `json:"assigned_org_id"`
	AssignedUserID   string    `json:"assigned_user_id,omitempty"`
	AssignmentRuleID string    `json:"assignment_rule_id"`
	AssignedAt       time.Time `json:"assigned_at"`
}

// LeadUnassignedEvent is emitted when a lead exhausts every candidate or
// matches no rule at all.
type LeadUnassignedEvent struct {
	LeadID      string    `json:"lead_id"`
	FunnelID    string    `json:"funnel_id"`
	ZipCode     string    `json:"zip_code,omitempty"`
	Reason      string    `json:"reason"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}
