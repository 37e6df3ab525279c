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

// Outcome statuses. EVALUATING is the dedup guard's placeholder; ASSIGNED and
// UNASSIGNED are terminal.
const (
	StatusEvaluating = "EVALUATING"
	StatusAssigned   = "ASSIGNED"
	StatusUnassigned = "UNASSIGNED"
)

// Unassignment reasons. These are expected terminal business outcomes, not
// failures.
const (
	ReasonNoMatchingRule   = "no_matching_rule"
	ReasonAllTargetsCapped = "all_targets_capped"
	ReasonTargetInactive   = "target_inactive"
)

// AssignmentOutcome is the terminal, append-only record of one lead's trip
// through the engine. At most one outcome row per lead ever exists; the lead
// ID is the idempotency key for the whole pipeline.
//
// An outcome starts life as an EVALUATING placeholder (the dedup guard's
// conditional create) and is overwritten exactly once with the terminal
// state: ASSIGNED with the winning target, or UNASSIGNED with a reason.
type AssignmentOutcome struct {
	LeadID           string    `json:"lead_id"`
	FunnelID         string    `json:"funnel_id"`
	ZipCode          string    `json:"zip_code,omitempty"`
	Status           string    `json:"status"`
	AssignedOrgID    string    `json:"assigned_org_id,omitempty"`
	AssignedUserID   string    `json:"assigned_user_id,omitempty"`
	AssignmentRuleID string    `json:"assignment_rule_id,omitempty"`
	AssignedAt       time.Time `json:"assigned_at,omitempty"`
	Reason           string    `json:"reason,omitempty"`
	EvaluatedAt      time.Time `json:"evaluated_at,omitempty"`
	PublishedAt      time.Time `json:"published_at,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// IsAssigned reports whether the outcome is a terminal assignment.
func (o *AssignmentOutcome) IsAssigned() bool {
	return o.AssignedOrgID != "" || o.AssignedUserID != ""
}

// IsPublished reports whether the outcome's outbound event and pool write
// have completed.
func (o *AssignmentOutcome) IsPublished() bool {
	return !o.PublishedAt.IsZero()
}

// UnassignedLead is one row of the unassigned pool: a lead that exhausted all
// candidates, held durably for human triage.
type UnassignedLead struct {
	LeadID      string    `json:"lead_id"`
	FunnelID    string    `json:"funnel_id"`
	ZipCode     string    `json:"zip_code,omitempty"`
	Reason      string    `json:"reason"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}
