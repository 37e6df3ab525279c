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
	"database/sql"

	"github.com/leadroutehq/leadroute/internal/apierror"
	"github.com/leadroutehq/leadroute/model"
)

// RecordUnassignedLead writes a triage row for a lead that exhausted every
// candidate. The write is idempotent on lead ID so it can be retried freely
// alongside the event publish.
func (d Datasource) RecordUnassignedLead(ctx context.Context, lead *model.UnassignedLead) error {
	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO leadroute.unassigned_leads (lead_id, funnel_id, zip_code, reason, evaluated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (lead_id) DO NOTHING
	`, lead.LeadID, lead.FunnelID, nullString(lead.ZipCode), lead.Reason, lead.EvaluatedAt)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record unassigned lead", err)
	}
	return nil
}

// GetUnassignedLeads retrieves pool rows for triage, newest first.
func (d Datasource) GetUnassignedLeads(ctx context.Context, limit, offset int) ([]model.UnassignedLead, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT lead_id, funnel_id, zip_code, reason, evaluated_at
		FROM leadroute.unassigned_leads
		ORDER BY evaluated_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve unassigned leads", err)
	}
	defer rows.Close()

	leads := []model.UnassignedLead{}

	for rows.Next() {
		lead := model.UnassignedLead{}
		var zipCode sql.NullString
		err = rows.Scan(&lead.LeadID, &lead.FunnelID, &zipCode, &lead.Reason, &lead.EvaluatedAt)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan unassigned lead data", err)
		}
		lead.ZipCode = zipCode.String
		leads = append(leads, lead)
	}

	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over unassigned leads", err)
	}

	return leads, nil
}
