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

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/leadroutehq/leadroute/model"
)

// LeadCreatedRequest is the intake payload for a captured lead. It mirrors
// the lead.created event the capture service emits.
type LeadCreatedRequest struct {
	LeadID    string    `json:"lead_id"`
	FunnelID  string    `json:"funnel_id"`
	ZipCode   string    `json:"zip_code,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ValidateLeadCreatedRequest checks the intake payload. Requests that fail
// here are rejected at the edge and never reach the queue.
func (r *LeadCreatedRequest) ValidateLeadCreatedRequest() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.LeadID, validation.Required),
		validation.Field(&r.FunnelID, validation.Required),
	)
}

// ToLeadCreatedEvent converts the request to the domain event, defaulting the
// capture timestamp when the caller omitted it.
func (r *LeadCreatedRequest) ToLeadCreatedEvent() *model.LeadCreatedEvent {
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return &model.LeadCreatedEvent{
		LeadID:    r.LeadID,
		FunnelID:  r.FunnelID,
		ZipCode:   r.ZipCode,
		CreatedAt: createdAt,
	}
}
